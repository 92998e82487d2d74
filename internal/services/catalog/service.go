package catalog

import (
	"context"
	"errors"

	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/repository"
)

var (
	// ErrDuplicateSKU is returned when a create collides with an existing SKU.
	ErrDuplicateSKU = errors.New("sku already exists")

	// ErrInvalidLabelExpr is returned for a label filter expression that does
	// not parse.
	ErrInvalidLabelExpr = errors.New("invalid label filter expression")

	// ErrInvalidImport is returned when a bulk import document fails schema
	// validation.
	ErrInvalidImport = errors.New("invalid import document")
)

// ImportError describes one rejected row of a bulk import.
type ImportError struct {
	SKU    string `json:"sku"`
	Reason string `json:"reason"`
}

// ImportResult summarizes a bulk import run.
type ImportResult struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Errors  []ImportError `json:"errors,omitempty"`
}

// Service provides catalog operations.
//
// Reads go through an LRU cache keyed by product ID; every write to a product
// invalidates its entry. Label filter expressions use go-bexpr syntax (e.g.
// `line == "surgical" and vendor != "acme"`) evaluated against Product.Labels.
type Service interface {
	// CreateProduct validates and inserts a new product.
	CreateProduct(ctx context.Context, product *models.Product) error

	// GetProduct retrieves a product by ID, served from cache when possible.
	GetProduct(ctx context.Context, id string) (*models.Product, error)

	// GetProductBySKU retrieves a product by SKU. Not cached; SKU lookups are
	// an import and admin path.
	GetProductBySKU(ctx context.Context, sku string) (*models.Product, error)

	// UpdateProduct persists changes to an existing product.
	UpdateProduct(ctx context.Context, product *models.Product) error

	// DiscontinueProduct marks a product discontinued. Discontinued products
	// drop out of default listings but stay resolvable for order history.
	DiscontinueProduct(ctx context.Context, id string) error

	// DeleteProduct removes a product entirely.
	DeleteProduct(ctx context.Context, id string) error

	// ListProducts returns products matching the filter. The LabelExpr field
	// is evaluated here against each product's labels.
	ListProducts(ctx context.Context, filter repository.ProductFilter) ([]models.Product, error)

	// ImportProducts ingests a JSON bulk-import document. The document is
	// validated against the embedded import schema before any row is touched;
	// rows then upsert by SKU. Row-level failures are reported per SKU and do
	// not abort the rest of the import.
	ImportProducts(ctx context.Context, doc []byte) (*ImportResult, error)
}
