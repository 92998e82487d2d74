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

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db *bun.DB
}

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db *bun.DB) UserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new user
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = bunx.NewUUIDv7()
	}

	_, err := r.db.NewInsert().
		Model(user).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *BunUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (r *BunUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("email = ?", email).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// Update updates an existing user
func (r *BunUserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	result, err := r.db.NewUpdate().
		Model(user).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", user.ID, ErrNotFound)
	}
	return nil
}

// List retrieves all users
func (r *BunUserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.NewSelect().
		Model(&users).
		Order("email ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ListByTeam retrieves all users on a team
func (r *BunUserRepository) ListByTeam(ctx context.Context, teamID string) ([]models.User, error) {
	var users []models.User
	err := r.db.NewSelect().
		Model(&users).
		Where("team_id = ?", teamID).
		Order("email ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list team users: %w", err)
	}
	return users, nil
}

// RecordLogin stamps the last login time without touching updated_at
func (r *BunUserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("last_login_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

// BunTeamRepository implements TeamRepository using Bun ORM
type BunTeamRepository struct {
	db *bun.DB
}

// NewBunTeamRepository creates a new Bun-based team repository
func NewBunTeamRepository(db *bun.DB) TeamRepository {
	return &BunTeamRepository{db: db}
}

// Create inserts a new team
func (r *BunTeamRepository) Create(ctx context.Context, team *models.Team) error {
	if team.ID == "" {
		team.ID = bunx.NewUUIDv7()
	}

	_, err := r.db.NewInsert().
		Model(team).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

// GetByID retrieves a team by ID
func (r *BunTeamRepository) GetByID(ctx context.Context, id string) (*models.Team, error) {
	team := new(models.Team)
	err := r.db.NewSelect().
		Model(team).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("team %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get team: %w", err)
	}
	return team, nil
}

// List retrieves all teams
func (r *BunTeamRepository) List(ctx context.Context) ([]models.Team, error) {
	var teams []models.Team
	err := r.db.NewSelect().
		Model(&teams).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}
