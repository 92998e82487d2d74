package repository

import (
	"context"
	"errors"
	"time"

	"github.com/medsourcepro/msapi/internal/db/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrStatusConflict is returned by conditional status updates when the row's
// status no longer matches the one the caller read, meaning a concurrent
// transition won.
var ErrStatusConflict = errors.New("status changed concurrently")

// UserRepository exposes persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	List(ctx context.Context) ([]models.User, error)
	ListByTeam(ctx context.Context, teamID string) ([]models.User, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

// TeamRepository exposes persistence operations for sales teams.
type TeamRepository interface {
	Create(ctx context.Context, team *models.Team) error
	GetByID(ctx context.Context, id string) (*models.Team, error)
	List(ctx context.Context) ([]models.Team, error)
}

// SessionRepository exposes persistence operations for cookie sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	Touch(ctx context.Context, id string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// RevokedJTIRepository exposes the JWT revocation denylist.
type RevokedJTIRepository interface {
	Revoke(ctx context.Context, entry *models.RevokedJTI) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ServiceAccountRepository exposes persistence operations for service accounts.
type ServiceAccountRepository interface {
	Create(ctx context.Context, sa *models.ServiceAccount) error
	GetByID(ctx context.Context, id string) (*models.ServiceAccount, error)
	GetByClientID(ctx context.Context, clientID string) (*models.ServiceAccount, error)
	Update(ctx context.Context, sa *models.ServiceAccount) error
	List(ctx context.Context) ([]models.ServiceAccount, error)
	RecordUse(ctx context.Context, id string, at time.Time) error
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Category string
	Search   string // matches name or SKU, case-insensitive
	// LabelExpr is evaluated in the service layer against Product.Labels;
	// repositories ignore it.
	LabelExpr           string
	IncludeDiscontinued bool
}

// ProductRepository exposes persistence operations for catalog products.
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetBySKU(ctx context.Context, sku string) (*models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ProductFilter) ([]models.Product, error)
}

// Scope restricts list and read queries to the rows a caller may see.
// Context all applies no restriction, team restricts by team column, own by
// owner (or the caller's account for customer users).
type Scope struct {
	Context   string // rbac context name: own, team or all
	UserID    string
	TeamID    string
	AccountID string
}

// OrderRepository exposes persistence operations for orders.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	// UpdateStatus writes the order header only if the stored status still
	// equals prev, returning ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, order *models.Order, prev models.OrderStatus) error
	List(ctx context.Context, scope Scope) ([]models.Order, error)
	ListSince(ctx context.Context, scope Scope, since time.Time) ([]models.Order, error)
	ReplaceItems(ctx context.Context, orderID string, items []*models.OrderItem) error
}

// QuoteRepository exposes persistence operations for quotes.
type QuoteRepository interface {
	Create(ctx context.Context, quote *models.Quote) error
	GetByID(ctx context.Context, id string) (*models.Quote, error)
	// UpdateStatus writes the quote header only if the stored status still
	// equals prev, returning ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, quote *models.Quote, prev models.QuoteStatus) error
	List(ctx context.Context, scope Scope) ([]models.Quote, error)
	ReplaceItems(ctx context.Context, quoteID string, items []*models.QuoteItem) error
}

// AccountRepository exposes persistence operations for customer accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, scope Scope) ([]models.Account, error)
}
