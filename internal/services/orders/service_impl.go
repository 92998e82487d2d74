package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/repository"
)

// orderService implements the Service interface.
type orderService struct {
	orders   repository.OrderRepository
	products repository.ProductRepository
	accounts repository.AccountRepository
}

// Dependencies contains all runtime dependencies for order service construction.
type Dependencies struct {
	Orders   repository.OrderRepository
	Products repository.ProductRepository
	Accounts repository.AccountRepository
}

// NewService creates a new order service.
func NewService(deps Dependencies) (Service, error) {
	if deps.Orders == nil || deps.Products == nil || deps.Accounts == nil {
		return nil, errors.New("orders: all repositories are required")
	}
	return &orderService{
		orders:   deps.Orders,
		products: deps.Products,
		accounts: deps.Accounts,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, actor auth.Principal, params CreateOrderParams) (*models.Order, error) {
	if params.AccountID == "" {
		return nil, errors.New("account_id is required")
	}
	if len(params.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	account, err := s.accounts.GetByID(ctx, params.AccountID)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	items, err := s.buildItems(ctx, params.Items)
	if err != nil {
		return nil, err
	}

	number, err := models.NewDocumentNumber("ORD")
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		Number:    number,
		AccountID: account.ID,
		OwnerID:   actor.ID,
		Status:    models.OrderStatusDraft,
		Notes:     params.Notes,
		Items:     items,
	}
	// Team scoping follows the owner when they belong to a team, otherwise
	// the account's sales team.
	if actor.TeamID != "" {
		teamID := actor.TeamID
		order.TeamID = &teamID
	} else if account.TeamID != nil {
		order.TeamID = account.TeamID
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, scope repository.Scope, id string) (*models.Order, error) {
	return s.getVisible(ctx, scope, id)
}

func (s *orderService) ListOrders(ctx context.Context, scope repository.Scope) ([]models.Order, error) {
	return s.orders.List(ctx, scope)
}

func (s *orderService) UpdateOrderItems(ctx context.Context, scope repository.Scope, orderID string, itemParams []ItemParams) (*models.Order, error) {
	if len(itemParams) == 0 {
		return nil, ErrEmptyOrder
	}

	order, err := s.getVisible(ctx, scope, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusDraft {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrOrderNotEditable)
	}

	items, err := s.buildItems(ctx, itemParams)
	if err != nil {
		return nil, err
	}
	if err := s.orders.ReplaceItems(ctx, orderID, items); err != nil {
		return nil, err
	}

	return s.orders.GetByID(ctx, orderID)
}

// =========================================================================
// Status lifecycle
// =========================================================================

func (s *orderService) SubmitOrder(ctx context.Context, scope repository.Scope, id string) (*models.Order, error) {
	return s.transition(ctx, scope, id, models.OrderStatusSubmitted, func(o *models.Order, now time.Time) {
		o.SubmittedAt = &now
	}, s.checkCreditLimit)
}

func (s *orderService) ApproveOrder(ctx context.Context, scope repository.Scope, id string) (*models.Order, error) {
	return s.transition(ctx, scope, id, models.OrderStatusApproved, func(o *models.Order, now time.Time) {
		o.ApprovedAt = &now
	})
}

func (s *orderService) FulfillOrder(ctx context.Context, scope repository.Scope, id string) (*models.Order, error) {
	return s.transition(ctx, scope, id, models.OrderStatusFulfilled, func(o *models.Order, now time.Time) {
		o.FulfilledAt = &now
	})
}

func (s *orderService) ShipOrder(ctx context.Context, scope repository.Scope, id string) (*models.Order, error) {
	return s.transition(ctx, scope, id, models.OrderStatusShipped, func(o *models.Order, now time.Time) {
		o.ShippedAt = &now
	})
}

func (s *orderService) CancelOrder(ctx context.Context, scope repository.Scope, id string) (*models.Order, error) {
	return s.transition(ctx, scope, id, models.OrderStatusCancelled, func(o *models.Order, now time.Time) {
		o.CancelledAt = &now
	})
}

// transition moves an order to the next status. The write is conditional on
// the status the order was read at, so two concurrent transitions cannot both
// succeed; the loser gets repository.ErrStatusConflict.
func (s *orderService) transition(ctx context.Context, scope repository.Scope, id string, next models.OrderStatus, stamp func(*models.Order, time.Time), guards ...func(context.Context, *models.Order) error) (*models.Order, error) {
	order, err := s.getVisible(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransition(next) {
		return nil, models.TransitionError(string(order.Status), string(next))
	}
	for _, guard := range guards {
		if err := guard(ctx, order); err != nil {
			return nil, err
		}
	}

	prev := order.Status
	order.Status = next
	stamp(order, time.Now())
	if err := s.orders.UpdateStatus(ctx, order, prev); err != nil {
		return nil, err
	}
	return order, nil
}

// checkCreditLimit refuses submission when the order total exceeds the
// account's credit limit. A zero limit means the account is not capped.
func (s *orderService) checkCreditLimit(ctx context.Context, order *models.Order) error {
	account, err := s.accounts.GetByID(ctx, order.AccountID)
	if err != nil {
		return fmt.Errorf("resolve account: %w", err)
	}
	if account.CreditLimitCent > 0 && order.TotalCent > account.CreditLimitCent {
		return fmt.Errorf("order total %d exceeds credit limit %d: %w",
			order.TotalCent, account.CreditLimitCent, ErrCreditLimitExceeded)
	}
	return nil
}

// =========================================================================
// Helpers
// =========================================================================

// getVisible loads an order and hides it from scopes that cannot see it,
// indistinguishable from the order not existing.
func (s *orderService) getVisible(ctx context.Context, scope repository.Scope, id string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Visible(order.OwnerID, order.TeamID, &order.AccountID) {
		return nil, fmt.Errorf("order %s: %w", id, repository.ErrNotFound)
	}
	return order, nil
}

// buildItems resolves requested lines against the catalog, capturing the SKU
// and current unit price on each line.
func (s *orderService) buildItems(ctx context.Context, params []ItemParams) ([]*models.OrderItem, error) {
	items := make([]*models.OrderItem, 0, len(params))
	for _, p := range params {
		if p.Quantity <= 0 {
			return nil, fmt.Errorf("product %s: quantity must be positive", p.ProductID)
		}
		product, err := s.products.GetByID(ctx, p.ProductID)
		if err != nil {
			return nil, fmt.Errorf("resolve product: %w", err)
		}
		if product.DiscontinuedAt != nil {
			return nil, fmt.Errorf("product %s: %w", product.SKU, ErrProductUnavailable)
		}
		items = append(items, &models.OrderItem{
			ProductID:     product.ID,
			SKU:           product.SKU,
			Quantity:      p.Quantity,
			UnitPriceCent: product.UnitPriceCent,
		})
	}
	return items, nil
}
