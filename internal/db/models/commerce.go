package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Account represents a customer organization (hospital, clinic, distributor).
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID              string    `bun:"id,pk,type:uuid"`
	Name            string    `bun:"name,notnull,unique"`
	Type            string    `bun:"type,notnull"` // hospital, clinic, pharmacy, distributor
	Territory       string    `bun:"territory"`
	TeamID          *string   `bun:"team_id,type:uuid"`  // FK to teams(id), owning sales team
	OwnerID         *string   `bun:"owner_id,type:uuid"` // FK to users(id), assigned sales rep
	CreditLimitCent int64     `bun:"credit_limit_cent,notnull,default:0"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusApproved  OrderStatus = "approved"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions maps each status to the statuses reachable from it.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:     {OrderStatusSubmitted, OrderStatusCancelled},
	OrderStatusSubmitted: {OrderStatusApproved, OrderStatusCancelled},
	OrderStatusApproved:  {OrderStatusFulfilled},
	OrderStatusFulfilled: {OrderStatusShipped},
	OrderStatusShipped:   {},
	OrderStatusCancelled: {},
}

// CanTransition reports whether the order may move from its current status to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether the status is a known lifecycle state.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Order represents a purchase order placed against an account.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID          string      `bun:"id,pk,type:uuid"`
	Number      string      `bun:"number,notnull,unique"` // human-facing order number
	AccountID   string      `bun:"account_id,notnull,type:uuid"`
	OwnerID     string      `bun:"owner_id,notnull,type:uuid"` // FK to users(id), creator
	TeamID      *string     `bun:"team_id,type:uuid"`          // denormalized from owner for scoping
	Status      OrderStatus `bun:"status,notnull,default:'draft'"`
	TotalCent   int64       `bun:"total_cent,notnull,default:0"` // recomputed from items on every write
	Notes       string      `bun:"notes"`
	QuoteID     *string     `bun:"quote_id,type:uuid"` // set when converted from a quote
	CreatedAt   time.Time   `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull,default:current_timestamp"`
	SubmittedAt *time.Time  `bun:"submitted_at"`
	ApprovedAt  *time.Time  `bun:"approved_at"`
	FulfilledAt *time.Time  `bun:"fulfilled_at"`
	ShippedAt   *time.Time  `bun:"shipped_at"`
	CancelledAt *time.Time  `bun:"cancelled_at"`

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id"`
}

// ComputeTotal sums the line totals. Stored rather than derived so list
// queries and analytics avoid a join.
func (o *Order) ComputeTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.UnitPriceCent * int64(item.Quantity)
	}
	return total
}

// OrderItem is a single line on an order. Unit price is captured at order
// time and does not follow later catalog price changes.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID            string `bun:"id,pk,type:uuid"`
	OrderID       string `bun:"order_id,notnull,type:uuid"`
	ProductID     string `bun:"product_id,notnull,type:uuid"`
	SKU           string `bun:"sku,notnull"`
	Quantity      int    `bun:"quantity,notnull"`
	UnitPriceCent int64  `bun:"unit_price_cent,notnull"`
}

// ValidateForCreate verifies the line is well formed before insertion.
func (oi *OrderItem) ValidateForCreate() error {
	if oi.ProductID == "" {
		return errors.New("product_id is required")
	}
	if oi.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if oi.UnitPriceCent < 0 {
		return errors.New("unit_price_cent must not be negative")
	}
	return nil
}

// QuoteStatus is the lifecycle state of a quote.
type QuoteStatus string

const (
	QuoteStatusRequested QuoteStatus = "requested"
	QuoteStatusPriced    QuoteStatus = "priced"
	QuoteStatusApproved  QuoteStatus = "approved"
	QuoteStatusConverted QuoteStatus = "converted"
	QuoteStatusRejected  QuoteStatus = "rejected"
)

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusRequested: {QuoteStatusPriced, QuoteStatusRejected},
	QuoteStatusPriced:    {QuoteStatusApproved, QuoteStatusConverted, QuoteStatusRejected},
	QuoteStatusApproved:  {QuoteStatusConverted, QuoteStatusRejected},
	QuoteStatusConverted: {},
	QuoteStatusRejected:  {},
}

// CanTransition reports whether the quote may move from its current status to next.
func (s QuoteStatus) CanTransition(next QuoteStatus) bool {
	for _, allowed := range quoteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Quote represents a priced proposal that can convert into an order.
type Quote struct {
	bun.BaseModel `bun:"table:quotes,alias:q"`

	ID              string      `bun:"id,pk,type:uuid"`
	Number          string      `bun:"number,notnull,unique"`
	AccountID       string      `bun:"account_id,notnull,type:uuid"`
	OwnerID         string      `bun:"owner_id,notnull,type:uuid"`
	TeamID          *string     `bun:"team_id,type:uuid"`
	Status          QuoteStatus `bun:"status,notnull,default:'requested'"`
	DiscountPercent float64     `bun:"discount_percent,notnull,default:0"`
	TotalCent       int64       `bun:"total_cent,notnull,default:0"`
	Notes           string      `bun:"notes"`
	ExpiresAt       *time.Time  `bun:"expires_at"`
	CreatedAt       time.Time   `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt       time.Time   `bun:"updated_at,notnull,default:current_timestamp"`
	PricedAt        *time.Time  `bun:"priced_at"`
	ApprovedAt      *time.Time  `bun:"approved_at"`
	ApprovedBy      *string     `bun:"approved_by,type:uuid"`
	ConvertedAt     *time.Time  `bun:"converted_at"`

	Items []*QuoteItem `bun:"rel:has-many,join:id=quote_id"`
}

// Expired reports whether the quote has passed its expiry at the given time.
func (q *Quote) Expired(now time.Time) bool {
	return q.ExpiresAt != nil && now.After(*q.ExpiresAt)
}

// ComputeTotal sums line totals after the quote-level discount.
func (q *Quote) ComputeTotal() int64 {
	var subtotal int64
	for _, item := range q.Items {
		subtotal += item.UnitPriceCent * int64(item.Quantity)
	}
	if q.DiscountPercent <= 0 {
		return subtotal
	}
	discounted := float64(subtotal) * (1 - q.DiscountPercent/100)
	if discounted < 0 {
		return 0
	}
	return int64(discounted)
}

// QuoteItem is a single line on a quote.
type QuoteItem struct {
	bun.BaseModel `bun:"table:quote_items,alias:qi"`

	ID            string `bun:"id,pk,type:uuid"`
	QuoteID       string `bun:"quote_id,notnull,type:uuid"`
	ProductID     string `bun:"product_id,notnull,type:uuid"`
	SKU           string `bun:"sku,notnull"`
	Quantity      int    `bun:"quantity,notnull"`
	UnitPriceCent int64  `bun:"unit_price_cent,notnull"`
}

// ValidateForCreate verifies the line is well formed before insertion.
func (qi *QuoteItem) ValidateForCreate() error {
	if qi.ProductID == "" {
		return errors.New("product_id is required")
	}
	if qi.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if qi.UnitPriceCent < 0 {
		return errors.New("unit_price_cent must not be negative")
	}
	return nil
}

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError builds a wrapped ErrInvalidTransition with both states.
func TransitionError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
