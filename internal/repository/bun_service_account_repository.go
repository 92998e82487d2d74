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

// BunServiceAccountRepository implements ServiceAccountRepository using Bun ORM
type BunServiceAccountRepository struct {
	db *bun.DB
}

// NewBunServiceAccountRepository creates a new Bun-based service account repository
func NewBunServiceAccountRepository(db *bun.DB) ServiceAccountRepository {
	return &BunServiceAccountRepository{db: db}
}

// Create inserts a new service account
func (r *BunServiceAccountRepository) Create(ctx context.Context, sa *models.ServiceAccount) error {
	if sa.ID == "" {
		sa.ID = bunx.NewUUIDv7()
	}

	_, err := r.db.NewInsert().
		Model(sa).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create service account: %w", err)
	}
	return nil
}

// GetByID retrieves a service account by ID
func (r *BunServiceAccountRepository) GetByID(ctx context.Context, id string) (*models.ServiceAccount, error) {
	sa := new(models.ServiceAccount)
	err := r.db.NewSelect().
		Model(sa).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("service account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get service account: %w", err)
	}
	return sa, nil
}

// GetByClientID retrieves a service account by client ID
func (r *BunServiceAccountRepository) GetByClientID(ctx context.Context, clientID string) (*models.ServiceAccount, error) {
	sa := new(models.ServiceAccount)
	err := r.db.NewSelect().
		Model(sa).
		Where("client_id = ?", clientID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("service account %s: %w", clientID, ErrNotFound)
		}
		return nil, fmt.Errorf("get service account by client id: %w", err)
	}
	return sa, nil
}

// Update updates an existing service account
func (r *BunServiceAccountRepository) Update(ctx context.Context, sa *models.ServiceAccount) error {
	result, err := r.db.NewUpdate().
		Model(sa).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update service account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("service account %s: %w", sa.ID, ErrNotFound)
	}
	return nil
}

// List retrieves all service accounts
func (r *BunServiceAccountRepository) List(ctx context.Context) ([]models.ServiceAccount, error) {
	var accounts []models.ServiceAccount
	err := r.db.NewSelect().
		Model(&accounts).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list service accounts: %w", err)
	}
	return accounts, nil
}

// RecordUse stamps the last-used time of a service account
func (r *BunServiceAccountRepository) RecordUse(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.ServiceAccount)(nil)).
		Set("last_used_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record service account use: %w", err)
	}
	return nil
}
