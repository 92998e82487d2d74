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

// BunOrderRepository implements OrderRepository using Bun ORM
type BunOrderRepository struct {
	db *bun.DB
}

// NewBunOrderRepository creates a new Bun-based order repository
func NewBunOrderRepository(db *bun.DB) OrderRepository {
	return &BunOrderRepository{db: db}
}

// Create inserts an order and its items in one transaction
func (r *BunOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = bunx.NewUUIDv7()
	}
	for _, item := range order.Items {
		if err := item.ValidateForCreate(); err != nil {
			return fmt.Errorf("validate order item: %w", err)
		}
		if item.ID == "" {
			item.ID = bunx.NewUUIDv7()
		}
		item.OrderID = order.ID
	}
	order.TotalCent = order.ComputeTotal()

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if len(order.Items) > 0 {
			if _, err := tx.NewInsert().Model(&order.Items).Exec(ctx); err != nil {
				return fmt.Errorf("create order items: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves an order with its items
func (r *BunOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	order := new(models.Order)
	err := r.db.NewSelect().
		Model(order).
		Relation("Items").
		Where("o.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// UpdateStatus writes the order header, guarded by the status the caller
// read. Zero rows affected means a concurrent transition got there first.
func (r *BunOrderRepository) UpdateStatus(ctx context.Context, order *models.Order, prev models.OrderStatus) error {
	order.UpdatedAt = time.Now()
	result, err := r.db.NewUpdate().
		Model(order).
		WherePK().
		Where("status = ?", prev).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("order %s: %w", order.ID, ErrStatusConflict)
	}
	return nil
}

// List retrieves orders visible at the given scope
func (r *BunOrderRepository) List(ctx context.Context, scope Scope) ([]models.Order, error) {
	var orders []models.Order
	q := r.db.NewSelect().
		Model(&orders).
		Order("created_at DESC")

	q, err := applyScope(q, scope, "owner_id", "team_id", "account_id")
	if err != nil {
		return nil, err
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListSince retrieves scoped orders created at or after the cutoff
func (r *BunOrderRepository) ListSince(ctx context.Context, scope Scope, since time.Time) ([]models.Order, error) {
	var orders []models.Order
	q := r.db.NewSelect().
		Model(&orders).
		Relation("Items").
		Where("o.created_at >= ?", since).
		Order("created_at DESC")

	q, err := applyScope(q, scope, "owner_id", "team_id", "account_id")
	if err != nil {
		return nil, err
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list orders since: %w", err)
	}
	return orders, nil
}

// ReplaceItems swaps the full item set of an order and recomputes the total
func (r *BunOrderRepository) ReplaceItems(ctx context.Context, orderID string, items []*models.OrderItem) error {
	var total int64
	for _, item := range items {
		if err := item.ValidateForCreate(); err != nil {
			return fmt.Errorf("validate order item: %w", err)
		}
		if item.ID == "" {
			item.ID = bunx.NewUUIDv7()
		}
		item.OrderID = orderID
		total += item.UnitPriceCent * int64(item.Quantity)
	}

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.OrderItem)(nil)).
			Where("order_id = ?", orderID).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		if len(items) > 0 {
			if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
				return fmt.Errorf("insert order items: %w", err)
			}
		}
		if _, err := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("total_cent = ?", total).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", orderID).
			Exec(ctx); err != nil {
			return fmt.Errorf("update order total: %w", err)
		}
		return nil
	})
}
