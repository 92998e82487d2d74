package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/rbac"
)

// ErrNoAccess is returned when the caller's level has no analytics grant at
// any context.
var ErrNoAccess = errors.New("no analytics access")

// Authorizer answers which context a level may use for a permission tuple.
// Satisfied by the IAM service.
type Authorizer interface {
	BroadestContext(ctx context.Context, level rbac.RoleLevel, resource rbac.Resource, action rbac.Action) (rbac.Context, bool, error)
}

// RevenueSummary aggregates order revenue over a window. All statistics are
// over per-order totals in cents; cancelled and draft orders are excluded.
type RevenueSummary struct {
	Context     string    `json:"context"` // scope the summary was computed at
	Since       time.Time `json:"since"`
	OrderCount  int       `json:"order_count"`
	RevenueCent int64     `json:"revenue_cent"`

	MeanCent   float64 `json:"mean_cent"`
	StdDevCent float64 `json:"stddev_cent"`
	MedianCent float64 `json:"median_cent"`
	P90Cent    float64 `json:"p90_cent"`

	StatusCounts map[string]int `json:"status_counts"`
}

// TopProduct is one row of the top-products-by-revenue report.
type TopProduct struct {
	ProductID   string `json:"product_id"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
	RevenueCent int64  `json:"revenue_cent"`
}

// Service computes RBAC-gated dashboard aggregates. Every operation resolves
// the broadest analytics context the caller's level allows and scopes the
// underlying order data to it; callers with no grant are refused.
type Service interface {
	// RevenueSummary returns revenue statistics for orders created at or
	// after since.
	RevenueSummary(ctx context.Context, actor auth.Principal, since time.Time) (*RevenueSummary, error)

	// TopProducts returns up to limit products ranked by revenue over
	// orders created at or after since.
	TopProducts(ctx context.Context, actor auth.Principal, since time.Time, limit int) ([]TopProduct, error)
}
