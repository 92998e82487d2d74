package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/medsourcepro/msapi/internal/db/bunx"
	"github.com/medsourcepro/msapi/internal/db/models"
)

// BunProductRepository implements ProductRepository using Bun ORM
type BunProductRepository struct {
	db *bun.DB
}

// NewBunProductRepository creates a new Bun-based product repository
func NewBunProductRepository(db *bun.DB) ProductRepository {
	return &BunProductRepository{db: db}
}

// Create inserts a new product
func (r *BunProductRepository) Create(ctx context.Context, product *models.Product) error {
	if err := product.ValidateForCreate(); err != nil {
		return fmt.Errorf("validate product: %w", err)
	}
	if product.ID == "" {
		product.ID = bunx.NewUUIDv7()
	}

	_, err := r.db.NewInsert().
		Model(product).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by ID
func (r *BunProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	product := new(models.Product)
	err := r.db.NewSelect().
		Model(product).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// GetBySKU retrieves a product by SKU
func (r *BunProductRepository) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	product := new(models.Product)
	err := r.db.NewSelect().
		Model(product).
		Where("sku = ?", sku).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", sku, ErrNotFound)
		}
		return nil, fmt.Errorf("get product by sku: %w", err)
	}
	return product, nil
}

// Update updates an existing product
func (r *BunProductRepository) Update(ctx context.Context, product *models.Product) error {
	product.UpdatedAt = time.Now()
	result, err := r.db.NewUpdate().
		Model(product).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("product %s: %w", product.ID, ErrNotFound)
	}
	return nil
}

// Delete removes a product by ID
func (r *BunProductRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.Product)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return nil
}

// List retrieves products matching the filter. Label expressions are applied
// by the caller; the query handles category, search and discontinued state.
func (r *BunProductRepository) List(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	var products []models.Product
	q := r.db.NewSelect().
		Model(&products).
		Order("sku ASC")

	if !filter.IncludeDiscontinued {
		q = q.Where("discontinued_at IS NULL")
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("name LIKE ?", pattern).
				WhereOr("sku LIKE ?", pattern)
		})
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}
