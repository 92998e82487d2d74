package quotes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/repository"
)

// quoteService implements the Service interface.
type quoteService struct {
	quotes   repository.QuoteRepository
	orders   repository.OrderRepository
	products repository.ProductRepository
	accounts repository.AccountRepository

	// approvalThreshold is the discount percentage above which a manager
	// approval is required before conversion.
	approvalThreshold float64
}

// Dependencies contains all runtime dependencies for quote service construction.
type Dependencies struct {
	Quotes   repository.QuoteRepository
	Orders   repository.OrderRepository
	Products repository.ProductRepository
	Accounts repository.AccountRepository
}

// Config contains tunables for quote service construction.
type Config struct {
	ApprovalDiscountThreshold float64
}

// NewService creates a new quote service.
func NewService(deps Dependencies, cfg Config) (Service, error) {
	if deps.Quotes == nil || deps.Orders == nil || deps.Products == nil || deps.Accounts == nil {
		return nil, errors.New("quotes: all repositories are required")
	}

	threshold := cfg.ApprovalDiscountThreshold
	if threshold <= 0 {
		threshold = 10
	}

	return &quoteService{
		quotes:            deps.Quotes,
		orders:            deps.Orders,
		products:          deps.Products,
		accounts:          deps.Accounts,
		approvalThreshold: threshold,
	}, nil
}

func (s *quoteService) RequestQuote(ctx context.Context, actor auth.Principal, params RequestQuoteParams) (*models.Quote, error) {
	if params.AccountID == "" {
		return nil, errors.New("account_id is required")
	}
	if len(params.Items) == 0 {
		return nil, ErrEmptyQuote
	}

	account, err := s.accounts.GetByID(ctx, params.AccountID)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	items, err := s.buildItems(ctx, params.Items)
	if err != nil {
		return nil, err
	}

	number, err := models.NewDocumentNumber("QTE")
	if err != nil {
		return nil, err
	}

	quote := &models.Quote{
		Number:    number,
		AccountID: account.ID,
		OwnerID:   actor.ID,
		Status:    models.QuoteStatusRequested,
		Notes:     params.Notes,
		Items:     items,
	}
	if actor.TeamID != "" {
		teamID := actor.TeamID
		quote.TeamID = &teamID
	} else if account.TeamID != nil {
		quote.TeamID = account.TeamID
	}

	if err := s.quotes.Create(ctx, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *quoteService) GetQuote(ctx context.Context, scope repository.Scope, id string) (*models.Quote, error) {
	return s.getVisible(ctx, scope, id)
}

func (s *quoteService) ListQuotes(ctx context.Context, scope repository.Scope) ([]models.Quote, error) {
	return s.quotes.List(ctx, scope)
}

func (s *quoteService) PriceQuote(ctx context.Context, scope repository.Scope, id string, params PriceParams) (*models.Quote, error) {
	if params.DiscountPercent < 0 || params.DiscountPercent > 100 {
		return nil, fmt.Errorf("discount_percent %v out of range", params.DiscountPercent)
	}

	quote, err := s.getVisible(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !quote.Status.CanTransition(models.QuoteStatusPriced) {
		return nil, models.TransitionError(string(quote.Status), string(models.QuoteStatusPriced))
	}

	now := time.Now()
	prev := quote.Status
	quote.Status = models.QuoteStatusPriced
	quote.DiscountPercent = params.DiscountPercent
	quote.ExpiresAt = params.ExpiresAt
	quote.PricedAt = &now
	quote.TotalCent = quote.ComputeTotal()
	if params.Notes != "" {
		quote.Notes = params.Notes
	}

	if err := s.quotes.UpdateStatus(ctx, quote, prev); err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *quoteService) ApproveQuote(ctx context.Context, scope repository.Scope, actor auth.Principal, id string) (*models.Quote, error) {
	quote, err := s.getVisible(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !quote.Status.CanTransition(models.QuoteStatusApproved) {
		return nil, models.TransitionError(string(quote.Status), string(models.QuoteStatusApproved))
	}

	now := time.Now()
	prev := quote.Status
	quote.Status = models.QuoteStatusApproved
	quote.ApprovedAt = &now
	quote.ApprovedBy = &actor.ID

	if err := s.quotes.UpdateStatus(ctx, quote, prev); err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *quoteService) RejectQuote(ctx context.Context, scope repository.Scope, id string) (*models.Quote, error) {
	quote, err := s.getVisible(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !quote.Status.CanTransition(models.QuoteStatusRejected) {
		return nil, models.TransitionError(string(quote.Status), string(models.QuoteStatusRejected))
	}

	prev := quote.Status
	quote.Status = models.QuoteStatusRejected
	if err := s.quotes.UpdateStatus(ctx, quote, prev); err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *quoteService) ConvertQuote(ctx context.Context, scope repository.Scope, id string) (*models.Quote, *models.Order, error) {
	quote, err := s.getVisible(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	if !quote.Status.CanTransition(models.QuoteStatusConverted) {
		return nil, nil, models.TransitionError(string(quote.Status), string(models.QuoteStatusConverted))
	}
	if quote.Expired(time.Now()) {
		return nil, nil, fmt.Errorf("quote %s: %w", quote.Number, ErrQuoteExpired)
	}
	if quote.Status != models.QuoteStatusApproved && quote.DiscountPercent > s.approvalThreshold {
		return nil, nil, fmt.Errorf("discount %.1f%% exceeds %.1f%%: %w",
			quote.DiscountPercent, s.approvalThreshold, ErrApprovalRequired)
	}

	number, err := models.NewDocumentNumber("ORD")
	if err != nil {
		return nil, nil, err
	}

	// Claim the quote first. The conditional write guarantees a single
	// winner when two converts race, so at most one order is created.
	now := time.Now()
	prev := quote.Status
	quote.Status = models.QuoteStatusConverted
	quote.ConvertedAt = &now
	if err := s.quotes.UpdateStatus(ctx, quote, prev); err != nil {
		return nil, nil, err
	}

	order := &models.Order{
		Number:    number,
		AccountID: quote.AccountID,
		OwnerID:   quote.OwnerID,
		TeamID:    quote.TeamID,
		Status:    models.OrderStatusDraft,
		Notes:     quote.Notes,
		QuoteID:   &quote.ID,
		Items:     discountedItems(quote),
	}
	if err := s.orders.Create(ctx, order); err != nil {
		// Hand the quote back so it can be converted again.
		quote.Status = prev
		quote.ConvertedAt = nil
		_ = s.quotes.UpdateStatus(ctx, quote, models.QuoteStatusConverted)
		return nil, nil, fmt.Errorf("create order from quote: %w", err)
	}
	return quote, order, nil
}

// =========================================================================
// Helpers
// =========================================================================

func (s *quoteService) getVisible(ctx context.Context, scope repository.Scope, id string) (*models.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Visible(quote.OwnerID, quote.TeamID, &quote.AccountID) {
		return nil, fmt.Errorf("quote %s: %w", id, repository.ErrNotFound)
	}
	return quote, nil
}

func (s *quoteService) buildItems(ctx context.Context, params []ItemParams) ([]*models.QuoteItem, error) {
	items := make([]*models.QuoteItem, 0, len(params))
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
		items = append(items, &models.QuoteItem{
			ProductID:     product.ID,
			SKU:           product.SKU,
			Quantity:      p.Quantity,
			UnitPriceCent: product.UnitPriceCent,
		})
	}
	return items, nil
}

// discountedItems copies the quote lines onto order lines with the quote
// discount folded into each unit price, rounded down per line.
func discountedItems(quote *models.Quote) []*models.OrderItem {
	factor := 1 - quote.DiscountPercent/100
	items := make([]*models.OrderItem, 0, len(quote.Items))
	for _, qi := range quote.Items {
		price := qi.UnitPriceCent
		if quote.DiscountPercent > 0 {
			price = int64(math.Floor(float64(qi.UnitPriceCent) * factor))
		}
		items = append(items, &models.OrderItem{
			ProductID:     qi.ProductID,
			SKU:           qi.SKU,
			Quantity:      qi.Quantity,
			UnitPriceCent: price,
		})
	}
	return items
}
