package auth

import (
	"context"

	"github.com/medsourcepro/msapi/internal/rbac"
)

// PrincipalType describes the type of authenticated principal.
type PrincipalType string

const (
	// PrincipalTypeUser represents a human user.
	PrincipalTypeUser PrincipalType = "user"
	// PrincipalTypeServiceAccount represents a non-interactive service account.
	PrincipalTypeServiceAccount PrincipalType = "service_account"
)

// Principal captures identity metadata propagated through the request
// context. The role level is resolved once at authentication time; handlers
// never consult the users table for authorization.
type Principal struct {
	// ID references the backing database record (users.id or service_accounts.id).
	ID string
	// Email is present for human users.
	Email string
	// Name is an optional display name.
	Name string
	// Level is the effective role level used for every authorization check.
	Level rbac.RoleLevel
	// TeamID scopes team-context checks; empty when the principal has no team.
	TeamID string
	// AccountID links customer users to their organization.
	AccountID string
	// SessionID references the active session row when cookie-authenticated.
	SessionID string
	// JTI is the token ID when bearer-authenticated, used for revocation.
	JTI string
	// Type differentiates users and service accounts.
	Type PrincipalType
}

type principalContextKey struct{}

// WithPrincipal stores the authenticated principal on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext retrieves the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
