package orders

import (
	"context"
	"errors"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/repository"
)

var (
	// ErrEmptyOrder is returned when an order is created or edited with no
	// line items.
	ErrEmptyOrder = errors.New("order has no items")

	// ErrOrderNotEditable is returned when items are changed on an order
	// that has left draft.
	ErrOrderNotEditable = errors.New("order is no longer editable")

	// ErrProductUnavailable is returned when a line references a
	// discontinued product.
	ErrProductUnavailable = errors.New("product unavailable")

	// ErrCreditLimitExceeded is returned when a submitted order total exceeds
	// the account's credit limit.
	ErrCreditLimitExceeded = errors.New("account credit limit exceeded")
)

// ItemParams identifies one requested line. Unit price is resolved from the
// catalog at order time, never taken from the caller.
type ItemParams struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderParams collects the fields of a new order.
type CreateOrderParams struct {
	AccountID string       `json:"account_id"`
	Notes     string       `json:"notes"`
	Items     []ItemParams `json:"items"`
}

// Service provides order operations. All reads take a Scope limiting
// visibility to the caller's context; status changes follow the lifecycle
// draft -> submitted -> approved -> fulfilled -> shipped, with cancellation
// allowed from draft and submitted only.
type Service interface {
	// CreateOrder creates a draft order owned by the actor. Line prices are
	// captured from the catalog and the total computed server-side.
	CreateOrder(ctx context.Context, actor auth.Principal, params CreateOrderParams) (*models.Order, error)

	// GetOrder retrieves an order with its items if the scope can see it.
	GetOrder(ctx context.Context, scope repository.Scope, id string) (*models.Order, error)

	// ListOrders returns the orders visible at the scope, newest first.
	ListOrders(ctx context.Context, scope repository.Scope) ([]models.Order, error)

	// UpdateOrderItems replaces the line items of a draft order.
	UpdateOrderItems(ctx context.Context, scope repository.Scope, orderID string, items []ItemParams) (*models.Order, error)

	// SubmitOrder moves a draft order to submitted. Orders whose total
	// exceeds the account's credit limit are refused.
	SubmitOrder(ctx context.Context, scope repository.Scope, id string) (*models.Order, error)

	// ApproveOrder moves a submitted order to approved.
	ApproveOrder(ctx context.Context, scope repository.Scope, id string) (*models.Order, error)

	// FulfillOrder moves an approved order to fulfilled.
	FulfillOrder(ctx context.Context, scope repository.Scope, id string) (*models.Order, error)

	// ShipOrder moves a fulfilled order to shipped.
	ShipOrder(ctx context.Context, scope repository.Scope, id string) (*models.Order, error)

	// CancelOrder cancels an order still in draft or submitted.
	CancelOrder(ctx context.Context, scope repository.Scope, id string) (*models.Order, error)
}
