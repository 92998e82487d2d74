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

// BunAccountRepository implements AccountRepository using Bun ORM
type BunAccountRepository struct {
	db *bun.DB
}

// NewBunAccountRepository creates a new Bun-based account repository
func NewBunAccountRepository(db *bun.DB) AccountRepository {
	return &BunAccountRepository{db: db}
}

// Create inserts a new account
func (r *BunAccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.Name == "" {
		return errors.New("account name is required")
	}
	if account.Type == "" {
		return errors.New("account type is required")
	}
	if account.ID == "" {
		account.ID = bunx.NewUUIDv7()
	}

	_, err := r.db.NewInsert().
		Model(account).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by ID
func (r *BunAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// Update updates an existing account
func (r *BunAccountRepository) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now()
	result, err := r.db.NewUpdate().
		Model(account).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %s: %w", account.ID, ErrNotFound)
	}
	return nil
}

// Delete removes an account by ID
func (r *BunAccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.NewDelete().
		Model((*models.Account)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return nil
}

// List retrieves accounts visible at the given scope. The own context means
// the caller's own organization (customer users) or the accounts they are
// assigned to (sales reps).
func (r *BunAccountRepository) List(ctx context.Context, scope Scope) ([]models.Account, error) {
	var accounts []models.Account
	q := r.db.NewSelect().
		Model(&accounts).
		Order("name ASC")

	q, err := applyScope(q, scope, "owner_id", "team_id", "id")
	if err != nil {
		return nil, err
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}
