package quotes

import (
	"context"
	"errors"
	"time"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/repository"
)

var (
	// ErrEmptyQuote is returned when a quote is requested with no line items.
	ErrEmptyQuote = errors.New("quote has no items")

	// ErrQuoteExpired is returned when converting a quote past its expiry.
	ErrQuoteExpired = errors.New("quote has expired")

	// ErrApprovalRequired is returned when converting a quote whose discount
	// exceeds the approval threshold without a manager approval.
	ErrApprovalRequired = errors.New("quote requires approval")

	// ErrProductUnavailable is returned when a line references a
	// discontinued product.
	ErrProductUnavailable = errors.New("product unavailable")
)

// ItemParams identifies one requested line. Unit price is resolved from the
// catalog at request time.
type ItemParams struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// RequestQuoteParams collects the fields of a new quote request.
type RequestQuoteParams struct {
	AccountID string       `json:"account_id"`
	Notes     string       `json:"notes"`
	Items     []ItemParams `json:"items"`
}

// PriceParams carries the rep's pricing decision.
type PriceParams struct {
	DiscountPercent float64    `json:"discount_percent"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// Service provides quote operations. Lifecycle: requested -> priced ->
// (approved ->) converted, with rejection possible until conversion. A
// discount above the configured threshold must be approved before the quote
// can convert; conversion past expiry is refused.
type Service interface {
	// RequestQuote creates a quote in requested state with catalog-priced
	// lines and no discount.
	RequestQuote(ctx context.Context, actor auth.Principal, params RequestQuoteParams) (*models.Quote, error)

	// GetQuote retrieves a quote with its items if the scope can see it.
	GetQuote(ctx context.Context, scope repository.Scope, id string) (*models.Quote, error)

	// ListQuotes returns the quotes visible at the scope, newest first.
	ListQuotes(ctx context.Context, scope repository.Scope) ([]models.Quote, error)

	// PriceQuote applies a discount and expiry to a requested quote and
	// moves it to priced.
	PriceQuote(ctx context.Context, scope repository.Scope, id string, params PriceParams) (*models.Quote, error)

	// ApproveQuote records a manager approval on a priced quote.
	ApproveQuote(ctx context.Context, scope repository.Scope, actor auth.Principal, id string) (*models.Quote, error)

	// RejectQuote terminates a quote.
	RejectQuote(ctx context.Context, scope repository.Scope, id string) (*models.Quote, error)

	// ConvertQuote turns a quote into a draft order carrying the discounted
	// line prices. The quote moves to converted and the new order references
	// it.
	ConvertQuote(ctx context.Context, scope repository.Scope, id string) (*models.Quote, *models.Order, error)
}
