package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/repository"
)

var accountTypes = map[string]bool{
	"hospital":    true,
	"clinic":      true,
	"pharmacy":    true,
	"distributor": true,
}

// ErrInvalidAccountType is returned for an unknown account type.
var ErrInvalidAccountType = errors.New("invalid account type")

// Service provides customer account operations. Reads take a Scope; customer
// users resolve to their own organization, reps to owned accounts, managers
// to their team's book.
type Service interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, scope repository.Scope, id string) (*models.Account, error)
	ListAccounts(ctx context.Context, scope repository.Scope) ([]models.Account, error)
	UpdateAccount(ctx context.Context, scope repository.Scope, account *models.Account) error
	DeleteAccount(ctx context.Context, id string) error
}

type accountService struct {
	accounts repository.AccountRepository
}

// NewService creates a new account service.
func NewService(accounts repository.AccountRepository) (Service, error) {
	if accounts == nil {
		return nil, errors.New("accounts: repository is required")
	}
	return &accountService{accounts: accounts}, nil
}

func (s *accountService) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.Name == "" {
		return errors.New("name is required")
	}
	if !accountTypes[account.Type] {
		return fmt.Errorf("type %q: %w", account.Type, ErrInvalidAccountType)
	}
	if account.CreditLimitCent < 0 {
		return errors.New("credit_limit_cent must not be negative")
	}
	return s.accounts.Create(ctx, account)
}

func (s *accountService) GetAccount(ctx context.Context, scope repository.Scope, id string) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.visible(scope, account) {
		return nil, fmt.Errorf("account %s: %w", id, repository.ErrNotFound)
	}
	return account, nil
}

func (s *accountService) ListAccounts(ctx context.Context, scope repository.Scope) ([]models.Account, error) {
	return s.accounts.List(ctx, scope)
}

func (s *accountService) UpdateAccount(ctx context.Context, scope repository.Scope, account *models.Account) error {
	existing, err := s.GetAccount(ctx, scope, account.ID)
	if err != nil {
		return err
	}
	if account.Type != existing.Type && !accountTypes[account.Type] {
		return fmt.Errorf("type %q: %w", account.Type, ErrInvalidAccountType)
	}
	if account.CreditLimitCent < 0 {
		return errors.New("credit_limit_cent must not be negative")
	}
	return s.accounts.Update(ctx, account)
}

func (s *accountService) DeleteAccount(ctx context.Context, id string) error {
	return s.accounts.Delete(ctx, id)
}

// visible applies the account-specific twist on scoping: an account is its
// own "account" for customer users.
func (s *accountService) visible(scope repository.Scope, account *models.Account) bool {
	ownerID := ""
	if account.OwnerID != nil {
		ownerID = *account.OwnerID
	}
	return scope.Visible(ownerID, account.TeamID, &account.ID)
}
