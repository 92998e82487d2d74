package models

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/medsourcepro/msapi/internal/rbac"
)

// User represents a human principal. Role assignment is a single numeric
// level on the user row; there is no many-to-many role mapping.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string         `bun:"id,pk,type:uuid"`
	Email        string         `bun:"email,notnull,unique"`
	Name         string         `bun:"name"`
	PasswordHash string         `bun:"password_hash,notnull"`
	RoleLevel    rbac.RoleLevel `bun:"role_level,notnull"`
	TeamID       *string        `bun:"team_id,type:uuid"`    // FK to teams(id), nullable
	AccountID    *string        `bun:"account_id,type:uuid"` // FK to accounts(id), customer users only
	CreatedAt    time.Time      `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,notnull,default:current_timestamp"`
	LastLoginAt  *time.Time     `bun:"last_login_at"`
	DisabledAt   *time.Time     `bun:"disabled_at"`
}

// Active reports whether the user may authenticate.
func (u *User) Active() bool {
	return u != nil && u.DisabledAt == nil
}

// Team groups sales reps under a manager for team-context scoping.
type Team struct {
	bun.BaseModel `bun:"table:teams,alias:t"`

	ID        string    `bun:"id,pk,type:uuid"`
	Name      string    `bun:"name,notnull,unique"`
	Territory string    `bun:"territory"`
	ManagerID *string   `bun:"manager_id,type:uuid"` // FK to users(id)
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ServiceAccount represents a non-interactive principal (integrations, EDI
// feeds). It authenticates with client_id + client_secret and carries a role
// level like a user does.
type ServiceAccount struct {
	bun.BaseModel `bun:"table:service_accounts,alias:sa"`

	ID               string         `bun:"id,pk,type:uuid"`
	ClientID         string         `bun:"client_id,notnull,unique"`
	ClientSecretHash string         `bun:"client_secret_hash,notnull"` // bcrypt hash
	Name             string         `bun:"name,notnull"`
	Description      string         `bun:"description"`
	RoleLevel        rbac.RoleLevel `bun:"role_level,notnull"`
	CreatedAt        time.Time      `bun:"created_at,notnull,default:current_timestamp"`
	CreatedBy        string         `bun:"created_by,notnull,type:uuid"` // FK to users(id)
	LastUsedAt       time.Time      `bun:"last_used_at"`
	SecretRotatedAt  time.Time      `bun:"secret_rotated_at"`
	Disabled         bool           `bun:"disabled,notnull,default:false"`
}

// Session tracks active cookie sessions for human users and service accounts.
// Only the SHA256 hash of the opaque token is stored.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID               string    `bun:"id,pk,type:uuid"`
	UserID           *string   `bun:"user_id,type:uuid"`            // FK to users(id), nullable
	ServiceAccountID *string   `bun:"service_account_id,type:uuid"` // FK to service_accounts(id), nullable
	TokenHash        string    `bun:"token_hash,notnull,unique"`
	ExpiresAt        time.Time `bun:"expires_at,notnull"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp"`
	LastUsedAt       time.Time `bun:"last_used_at,notnull,default:current_timestamp"`
	UserAgent        *string   `bun:"user_agent"`
	IPAddress        *string   `bun:"ip_address"`
	Revoked          bool      `bun:"revoked,notnull,default:false"`
}

// RevokedJTI tracks revoked JWT tokens by their JTI claim for denylist-based revocation
type RevokedJTI struct {
	bun.BaseModel `bun:"table:revoked_jti,alias:rjti"`

	JTI       string    `bun:"jti,pk"`
	Subject   string    `bun:"subject,notnull"`
	Exp       time.Time `bun:"exp,notnull"` // token expiration, used for cleanup
	RevokedAt time.Time `bun:"revoked_at,notnull,default:current_timestamp"`
	RevokedBy *string   `bun:"revoked_by"`
}
