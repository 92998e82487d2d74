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

// BunQuoteRepository implements QuoteRepository using Bun ORM
type BunQuoteRepository struct {
	db *bun.DB
}

// NewBunQuoteRepository creates a new Bun-based quote repository
func NewBunQuoteRepository(db *bun.DB) QuoteRepository {
	return &BunQuoteRepository{db: db}
}

// Create inserts a quote and its items in one transaction
func (r *BunQuoteRepository) Create(ctx context.Context, quote *models.Quote) error {
	if quote.ID == "" {
		quote.ID = bunx.NewUUIDv7()
	}
	for _, item := range quote.Items {
		if err := item.ValidateForCreate(); err != nil {
			return fmt.Errorf("validate quote item: %w", err)
		}
		if item.ID == "" {
			item.ID = bunx.NewUUIDv7()
		}
		item.QuoteID = quote.ID
	}
	quote.TotalCent = quote.ComputeTotal()

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(quote).Exec(ctx); err != nil {
			return fmt.Errorf("create quote: %w", err)
		}
		if len(quote.Items) > 0 {
			if _, err := tx.NewInsert().Model(&quote.Items).Exec(ctx); err != nil {
				return fmt.Errorf("create quote items: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a quote with its items
func (r *BunQuoteRepository) GetByID(ctx context.Context, id string) (*models.Quote, error) {
	quote := new(models.Quote)
	err := r.db.NewSelect().
		Model(quote).
		Relation("Items").
		Where("q.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("quote %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return quote, nil
}

// UpdateStatus writes the quote header, guarded by the status the caller
// read. Zero rows affected means a concurrent transition got there first.
func (r *BunQuoteRepository) UpdateStatus(ctx context.Context, quote *models.Quote, prev models.QuoteStatus) error {
	quote.UpdatedAt = time.Now()
	result, err := r.db.NewUpdate().
		Model(quote).
		WherePK().
		Where("status = ?", prev).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update quote: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("quote %s: %w", quote.ID, ErrStatusConflict)
	}
	return nil
}

// List retrieves quotes visible at the given scope
func (r *BunQuoteRepository) List(ctx context.Context, scope Scope) ([]models.Quote, error) {
	var quotes []models.Quote
	q := r.db.NewSelect().
		Model(&quotes).
		Order("created_at DESC")

	q, err := applyScope(q, scope, "owner_id", "team_id", "account_id")
	if err != nil {
		return nil, err
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return quotes, nil
}

// ReplaceItems swaps the full item set of a quote. The caller recomputes and
// persists the discounted total on its next header write.
func (r *BunQuoteRepository) ReplaceItems(ctx context.Context, quoteID string, items []*models.QuoteItem) error {
	for _, item := range items {
		if err := item.ValidateForCreate(); err != nil {
			return fmt.Errorf("validate quote item: %w", err)
		}
		if item.ID == "" {
			item.ID = bunx.NewUUIDv7()
		}
		item.QuoteID = quoteID
	}

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.QuoteItem)(nil)).
			Where("quote_id = ?", quoteID).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete quote items: %w", err)
		}
		if len(items) > 0 {
			if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
				return fmt.Errorf("insert quote items: %w", err)
			}
		}
		if _, err := tx.NewUpdate().
			Model((*models.Quote)(nil)).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", quoteID).
			Exec(ctx); err != nil {
			return fmt.Errorf("touch quote: %w", err)
		}
		return nil
	})
}
