package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/rbac"
	"github.com/medsourcepro/msapi/internal/repository"
)

// analyticsService implements the Service interface.
type analyticsService struct {
	orders     repository.OrderRepository
	authorizer Authorizer
}

// Dependencies contains all runtime dependencies for analytics service construction.
type Dependencies struct {
	Orders     repository.OrderRepository
	Authorizer Authorizer
}

// NewService creates a new analytics service.
func NewService(deps Dependencies) (Service, error) {
	if deps.Orders == nil {
		return nil, errors.New("analytics: order repository is required")
	}
	if deps.Authorizer == nil {
		return nil, errors.New("analytics: authorizer is required")
	}
	return &analyticsService{orders: deps.Orders, authorizer: deps.Authorizer}, nil
}

func (s *analyticsService) RevenueSummary(ctx context.Context, actor auth.Principal, since time.Time) (*RevenueSummary, error) {
	scope, err := s.scopeFor(ctx, actor)
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.ListSince(ctx, scope, since)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	summary := &RevenueSummary{
		Context:      scope.Context,
		Since:        since,
		StatusCounts: make(map[string]int),
	}

	var totals []float64
	for _, order := range orders {
		summary.StatusCounts[string(order.Status)]++
		if !revenueStatus(order.Status) {
			continue
		}
		summary.OrderCount++
		summary.RevenueCent += order.TotalCent
		totals = append(totals, float64(order.TotalCent))
	}

	if len(totals) > 0 {
		sort.Float64s(totals)
		summary.MeanCent = stat.Mean(totals, nil)
		summary.StdDevCent = stat.StdDev(totals, nil)
		summary.MedianCent = stat.Quantile(0.5, stat.Empirical, totals, nil)
		summary.P90Cent = stat.Quantile(0.9, stat.Empirical, totals, nil)
	}
	return summary, nil
}

func (s *analyticsService) TopProducts(ctx context.Context, actor auth.Principal, since time.Time, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = 10
	}

	scope, err := s.scopeFor(ctx, actor)
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.ListSince(ctx, scope, since)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	byProduct := make(map[string]*TopProduct)
	for _, order := range orders {
		if !revenueStatus(order.Status) {
			continue
		}
		for _, item := range order.Items {
			row, ok := byProduct[item.ProductID]
			if !ok {
				row = &TopProduct{ProductID: item.ProductID, SKU: item.SKU}
				byProduct[item.ProductID] = row
			}
			row.Quantity += item.Quantity
			row.RevenueCent += item.UnitPriceCent * int64(item.Quantity)
		}
	}

	ranked := make([]TopProduct, 0, len(byProduct))
	for _, row := range byProduct {
		ranked = append(ranked, *row)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].RevenueCent != ranked[j].RevenueCent {
			return ranked[i].RevenueCent > ranked[j].RevenueCent
		}
		return ranked[i].SKU < ranked[j].SKU
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// scopeFor resolves the broadest analytics context the actor may use and
// builds the matching data scope.
func (s *analyticsService) scopeFor(ctx context.Context, actor auth.Principal) (repository.Scope, error) {
	broadest, ok, err := s.authorizer.BroadestContext(ctx, actor.Level, rbac.ResourceAnalytics, rbac.ActionRead)
	if err != nil {
		return repository.Scope{}, fmt.Errorf("resolve analytics context: %w", err)
	}
	if !ok {
		return repository.Scope{}, ErrNoAccess
	}
	return repository.Scope{
		Context:   string(broadest),
		UserID:    actor.ID,
		TeamID:    actor.TeamID,
		AccountID: actor.AccountID,
	}, nil
}

// revenueStatus reports whether an order in this status counts as revenue.
func revenueStatus(status models.OrderStatus) bool {
	switch status {
	case models.OrderStatusSubmitted, models.OrderStatusApproved,
		models.OrderStatusFulfilled, models.OrderStatusShipped:
		return true
	default:
		return false
	}
}
