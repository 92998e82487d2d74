package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/repository"
)

// catalogService implements the Service interface.
type catalogService struct {
	products repository.ProductRepository

	// cache holds recently read products keyed by ID. Writes invalidate.
	cache    *lru.Cache[string, *models.Product]
	importer *importValidator
}

// Dependencies contains all runtime dependencies for catalog service construction.
type Dependencies struct {
	Products repository.ProductRepository
}

// Config contains tunables for catalog service construction.
type Config struct {
	ProductCacheSize int
	SchemaCacheSize  int
}

// NewService creates a new catalog service.
func NewService(deps Dependencies, cfg Config) (Service, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog: product repository is required")
	}

	size := cfg.ProductCacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, *models.Product](size)
	if err != nil {
		return nil, fmt.Errorf("catalog: create product cache: %w", err)
	}

	importer, err := newImportValidator(cfg.SchemaCacheSize)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	return &catalogService{
		products: deps.Products,
		cache:    cache,
		importer: importer,
	}, nil
}

// =========================================================================
// CRUD
// =========================================================================

func (s *catalogService) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := product.ValidateForCreate(); err != nil {
		return err
	}

	_, err := s.products.GetBySKU(ctx, product.SKU)
	if err == nil {
		return fmt.Errorf("sku %s: %w", product.SKU, ErrDuplicateSKU)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("check sku: %w", err)
	}

	return s.products.Create(ctx, product)
}

func (s *catalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if product, ok := s.cache.Get(id); ok {
		return product, nil
	}

	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.Add(id, product)
	return product, nil
}

func (s *catalogService) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	return s.products.GetBySKU(ctx, sku)
}

func (s *catalogService) UpdateProduct(ctx context.Context, product *models.Product) error {
	if err := s.products.Update(ctx, product); err != nil {
		return err
	}
	s.cache.Remove(product.ID)
	return nil
}

func (s *catalogService) DiscontinueProduct(ctx context.Context, id string) error {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if product.DiscontinuedAt != nil {
		return nil // already discontinued
	}

	now := time.Now()
	product.DiscontinuedAt = &now
	if err := s.products.Update(ctx, product); err != nil {
		return err
	}
	s.cache.Remove(id)
	return nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Remove(id)
	return nil
}

// =========================================================================
// Listing
// =========================================================================

func (s *catalogService) ListProducts(ctx context.Context, filter repository.ProductFilter) ([]models.Product, error) {
	// Fail fast on a bad expression before touching the database.
	evaluator, err := compileLabelExpr(filter.LabelExpr)
	if err != nil {
		return nil, err
	}

	products, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if evaluator == nil {
		return products, nil
	}

	matched := products[:0]
	for _, product := range products {
		if matchLabels(evaluator, product.Labels) {
			matched = append(matched, product)
		}
	}
	return matched, nil
}

// =========================================================================
// Bulk import
// =========================================================================

// importProduct mirrors one row of the import document.
type importProduct struct {
	SKU           string            `json:"sku"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Category      string            `json:"category"`
	UnitPriceCent int64             `json:"unit_price_cent"`
	UnitOfMeasure string            `json:"unit_of_measure"`
	RxRequired    bool              `json:"rx_required"`
	HazmatClass   string            `json:"hazmat_class"`
	StockQty      int               `json:"stock_qty"`
	Labels        map[string]string `json:"labels"`
}

type importDocument struct {
	Products []importProduct `json:"products"`
}

func (s *catalogService) ImportProducts(ctx context.Context, doc []byte) (*ImportResult, error) {
	if _, err := s.importer.validate(importSchemaJSON, doc); err != nil {
		return nil, err
	}

	var parsed importDocument
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	result := &ImportResult{}
	for _, row := range parsed.Products {
		if err := s.importRow(ctx, row, result); err != nil {
			result.Errors = append(result.Errors, ImportError{SKU: row.SKU, Reason: err.Error()})
		}
	}
	return result, nil
}

// importRow upserts one row by SKU.
func (s *catalogService) importRow(ctx context.Context, row importProduct, result *ImportResult) error {
	existing, err := s.products.GetBySKU(ctx, row.SKU)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if existing != nil {
		applyImportRow(existing, row)
		if err := s.products.Update(ctx, existing); err != nil {
			return err
		}
		s.cache.Remove(existing.ID)
		result.Updated++
		return nil
	}

	product := &models.Product{SKU: row.SKU}
	applyImportRow(product, row)
	if err := product.ValidateForCreate(); err != nil {
		return err
	}
	if err := s.products.Create(ctx, product); err != nil {
		return err
	}
	result.Created++
	return nil
}

func applyImportRow(product *models.Product, row importProduct) {
	product.Name = row.Name
	product.Description = row.Description
	product.Category = row.Category
	product.UnitPriceCent = row.UnitPriceCent
	product.RxRequired = row.RxRequired
	product.HazmatClass = row.HazmatClass
	product.StockQty = row.StockQty
	if row.UnitOfMeasure != "" {
		product.UnitOfMeasure = row.UnitOfMeasure
	} else if product.UnitOfMeasure == "" {
		product.UnitOfMeasure = "each"
	}
	if row.Labels != nil {
		product.Labels = row.Labels
	} else if product.Labels == nil {
		product.Labels = models.LabelMap{}
	}
}
