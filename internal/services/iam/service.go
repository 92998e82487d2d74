package iam

import (
	"context"
	"errors"
	"time"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/rbac"
)

var (
	// ErrInvalidCredentials is returned for a bad email/password or
	// client id/secret pair. Deliberately indistinguishable between the two.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPrincipalDisabled is returned when the backing user or service
	// account has been disabled.
	ErrPrincipalDisabled = errors.New("principal disabled")

	// ErrTokenRevoked is returned when a presented JWT is on the denylist.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrRoleEscalation is returned when an actor tries to grant a role
	// level their own level does not let them grant.
	ErrRoleEscalation = errors.New("insufficient level to grant role")
)

// AuthRequest carries the credentials extracted from an incoming request.
// Either field may be empty; session tokens take priority over bearer tokens.
type AuthRequest struct {
	SessionToken string
	BearerToken  string
}

// LoginResult is returned on a successful password login.
type LoginResult struct {
	User         *models.User
	Token        string // signed JWT
	SessionToken string // opaque cookie token, unhashed
	ExpiresAt    time.Time
}

// Service provides all identity and access management operations.
//
// This service centralizes:
//   - Authentication (request path, session then bearer token)
//   - Authorization (request path, read-only Casbin with an LRU decision cache)
//   - Session and token revocation
//   - User, service account and policy administration
type Service interface {
	// AuthenticateRequest resolves the credentials on a request to a
	// Principal. Session tokens are tried before bearer tokens.
	//
	// Returns:
	//   - (principal, nil): authentication succeeded
	//   - (nil, nil): no credentials present (anonymous request)
	//   - (nil, error): credentials present but invalid, expired or revoked
	AuthenticateRequest(ctx context.Context, req AuthRequest) (*auth.Principal, error)

	// Login verifies a password and establishes both a JWT and a cookie
	// session for the user.
	Login(ctx context.Context, email, password, userAgent, ipAddress string) (*LoginResult, error)

	// ClientCredentialsLogin verifies a service account's client id and
	// secret and issues a JWT for it.
	ClientCredentialsLogin(ctx context.Context, clientID, clientSecret string) (string, *auth.Claims, error)

	// Logout revokes the principal's active session and denylists its JWT.
	Logout(ctx context.Context, principal auth.Principal) error

	// Authorize checks whether the given role level may perform action on
	// resource at the requested context. Decisions are cached; the cache is
	// purged whenever the policy changes.
	Authorize(ctx context.Context, level rbac.RoleLevel, resource rbac.Resource, action rbac.Action, reqCtx rbac.Context) (bool, error)

	// BroadestContext returns the widest context at which the level may
	// perform action on resource, and false when no context is allowed.
	BroadestContext(ctx context.Context, level rbac.RoleLevel, resource rbac.Resource, action rbac.Action) (rbac.Context, bool, error)

	// ListUserSessions returns the live sessions of a user.
	ListUserSessions(ctx context.Context, userID string) ([]models.Session, error)

	// RevokeSession invalidates a single session by ID.
	RevokeSession(ctx context.Context, sessionID string) error

	// RevokeAllSessions invalidates every live session of a user.
	RevokeAllSessions(ctx context.Context, userID string) error

	// RevokeJTI adds a JWT ID to the denylist until the token would have
	// expired anyway.
	RevokeJTI(ctx context.Context, jti, subject string, expiresAt time.Time, revokedBy string) error

	// CreateUser creates a user. Granting Admin or above requires a
	// SuperAdmin actor; granting any level requires the actor to be at
	// least Admin.
	CreateUser(ctx context.Context, actor auth.Principal, params CreateUserParams) (*models.User, error)

	// GetUserByID retrieves a user by internal ID.
	GetUserByID(ctx context.Context, userID string) (*models.User, error)

	// GetUserByEmail retrieves a user by email address.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// ListUsers returns all users.
	ListUsers(ctx context.Context) ([]models.User, error)

	// DisableUser blocks a user from authenticating and revokes their
	// sessions.
	DisableUser(ctx context.Context, userID string) error

	// SetUserRole changes a user's role level and revokes their sessions so
	// stale levels cannot linger in live credentials. Granting Admin or
	// above requires a SuperAdmin actor.
	SetUserRole(ctx context.Context, actor auth.Principal, userID string, level rbac.RoleLevel) error

	// CreateServiceAccount creates a service account and returns the
	// unhashed client secret exactly once.
	CreateServiceAccount(ctx context.Context, name, description string, level rbac.RoleLevel, createdBy string) (*models.ServiceAccount, string, error)

	// ListServiceAccounts returns all service accounts.
	ListServiceAccounts(ctx context.Context) ([]models.ServiceAccount, error)

	// RotateServiceAccountSecret replaces a service account's secret,
	// returning the new unhashed secret.
	RotateServiceAccountSecret(ctx context.Context, clientID string) (string, time.Time, error)

	// RevokeServiceAccount disables a service account and revokes its
	// sessions.
	RevokeServiceAccount(ctx context.Context, clientID string) error

	// ListPolicy returns the current permission thresholds.
	ListPolicy(ctx context.Context) ([]rbac.Rule, error)

	// SetPermissionThreshold inserts or replaces the minimum level for one
	// (resource, action, context) tuple and purges the decision cache.
	SetPermissionThreshold(ctx context.Context, resource rbac.Resource, action rbac.Action, permCtx rbac.Context, minLevel rbac.RoleLevel) error

	// RemovePermission deletes the threshold for one tuple, causing it to
	// deny, and purges the decision cache.
	RemovePermission(ctx context.Context, resource rbac.Resource, action rbac.Action, permCtx rbac.Context) error
}

// CreateUserParams collects the fields of a new user.
type CreateUserParams struct {
	Email     string
	Name      string
	Password  string
	Level     rbac.RoleLevel
	TeamID    *string
	AccountID *string
}
