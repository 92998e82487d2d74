package iam

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/casbin/casbin/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/rbac"
	"github.com/medsourcepro/msapi/internal/repository"
)

// iamService implements the Service interface. It coordinates repositories,
// the Casbin enforcer, the token issuer and the decision cache.
type iamService struct {
	users           repository.UserRepository
	serviceAccounts repository.ServiceAccountRepository
	sessions        repository.SessionRepository
	revokedJTIs     repository.RevokedJTIRepository

	enforcer casbin.IEnforcer
	issuer   *auth.TokenIssuer

	sessionTTL time.Duration

	// decisions caches Authorize outcomes keyed by level|resource|action|context.
	// Purged whenever the policy mutates.
	decisions *lru.Cache[string, bool]
}

// Dependencies contains all runtime dependencies for IAM service construction.
type Dependencies struct {
	Users           repository.UserRepository
	ServiceAccounts repository.ServiceAccountRepository
	Sessions        repository.SessionRepository
	RevokedJTIs     repository.RevokedJTIRepository
	Enforcer        casbin.IEnforcer
	Issuer          *auth.TokenIssuer
}

// Config contains tunables for IAM service construction.
type Config struct {
	SessionTTL        time.Duration
	DecisionCacheSize int
}

// NewService creates a new IAM service with all dependencies.
func NewService(deps Dependencies, cfg Config) (Service, error) {
	if deps.Enforcer == nil {
		return nil, errors.New("iam: enforcer is required")
	}
	if deps.Issuer == nil {
		return nil, errors.New("iam: token issuer is required")
	}

	size := cfg.DecisionCacheSize
	if size <= 0 {
		size = 4096
	}
	decisions, err := lru.New[string, bool](size)
	if err != nil {
		return nil, fmt.Errorf("iam: create decision cache: %w", err)
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	return &iamService{
		users:           deps.Users,
		serviceAccounts: deps.ServiceAccounts,
		sessions:        deps.Sessions,
		revokedJTIs:     deps.RevokedJTIs,
		enforcer:        deps.Enforcer,
		issuer:          deps.Issuer,
		sessionTTL:      ttl,
		decisions:       decisions,
	}, nil
}

// =========================================================================
// Authentication
// =========================================================================

func (s *iamService) AuthenticateRequest(ctx context.Context, req AuthRequest) (*auth.Principal, error) {
	if req.SessionToken != "" {
		return s.authenticateSession(ctx, req.SessionToken)
	}
	if req.BearerToken != "" {
		return s.authenticateBearer(ctx, req.BearerToken)
	}
	return nil, nil
}

func (s *iamService) authenticateSession(ctx context.Context, token string) (*auth.Principal, error) {
	session, err := s.sessions.GetByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	_ = s.sessions.Touch(ctx, session.ID, time.Now())

	if session.UserID != nil {
		user, err := s.users.GetByID(ctx, *session.UserID)
		if err != nil {
			return nil, fmt.Errorf("load session user: %w", err)
		}
		if !user.Active() {
			return nil, ErrPrincipalDisabled
		}
		p := principalFromUser(user)
		p.SessionID = session.ID
		return &p, nil
	}

	if session.ServiceAccountID != nil {
		sa, err := s.serviceAccounts.GetByID(ctx, *session.ServiceAccountID)
		if err != nil {
			return nil, fmt.Errorf("load session service account: %w", err)
		}
		if sa.Disabled {
			return nil, ErrPrincipalDisabled
		}
		p := principalFromServiceAccount(sa)
		p.SessionID = session.ID
		return &p, nil
	}

	return nil, ErrInvalidCredentials
}

func (s *iamService) authenticateBearer(ctx context.Context, token string) (*auth.Principal, error) {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revokedJTIs.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	// The database row is authoritative for the role level so that role
	// changes and disablement take effect before token expiry.
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err == nil {
		if !user.Active() {
			return nil, ErrPrincipalDisabled
		}
		p := principalFromUser(user)
		p.JTI = claims.ID
		return &p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load token user: %w", err)
	}

	sa, err := s.serviceAccounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load token service account: %w", err)
	}
	if sa.Disabled {
		return nil, ErrPrincipalDisabled
	}
	p := principalFromServiceAccount(sa)
	p.JTI = claims.ID
	return &p, nil
}

func (s *iamService) Login(ctx context.Context, email, password, userAgent, ipAddress string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active() {
		return nil, ErrPrincipalDisabled
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.issuer.Issue(user.ID, user.Email, user.Name, user.RoleLevel)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	sessionToken, err := auth.NewSessionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.Session{
		UserID:     &user.ID,
		TokenHash:  auth.HashToken(sessionToken),
		ExpiresAt:  now.Add(s.sessionTTL),
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}
	if ipAddress != "" {
		session.IPAddress = &ipAddress
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	return &LoginResult{
		User:         user,
		Token:        token,
		SessionToken: sessionToken,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

func (s *iamService) ClientCredentialsLogin(ctx context.Context, clientID, clientSecret string) (string, *auth.Claims, error) {
	sa, err := s.serviceAccounts.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("lookup service account: %w", err)
	}
	if sa.Disabled {
		return "", nil, ErrPrincipalDisabled
	}
	if err := auth.CheckPassword(sa.ClientSecretHash, clientSecret); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, claims, err := s.issuer.Issue(sa.ID, "", sa.Name, sa.RoleLevel)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}

	if err := s.serviceAccounts.RecordUse(ctx, sa.ID, time.Now()); err != nil {
		return "", nil, fmt.Errorf("record service account use: %w", err)
	}

	return token, claims, nil
}

func (s *iamService) Logout(ctx context.Context, principal auth.Principal) error {
	if principal.SessionID != "" {
		if err := s.sessions.Revoke(ctx, principal.SessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("revoke session: %w", err)
		}
	}
	if principal.JTI != "" {
		entry := &models.RevokedJTI{
			JTI:       principal.JTI,
			Subject:   principal.ID,
			Exp:       time.Now().Add(s.issuer.TTL()),
			RevokedAt: time.Now(),
		}
		if err := s.revokedJTIs.Revoke(ctx, entry); err != nil {
			return fmt.Errorf("revoke token: %w", err)
		}
	}
	return nil
}

// =========================================================================
// Authorization
// =========================================================================

func (s *iamService) Authorize(ctx context.Context, level rbac.RoleLevel, resource rbac.Resource, action rbac.Action, reqCtx rbac.Context) (bool, error) {
	if !level.Valid() {
		return false, nil
	}
	if !rbac.ValidContext(reqCtx) {
		return false, nil
	}

	key := decisionKey(level, resource, action, reqCtx)
	if allowed, ok := s.decisions.Get(key); ok {
		return allowed, nil
	}

	allowed, err := s.enforcer.Enforce(
		strconv.Itoa(int(level)),
		string(resource),
		string(action),
		string(reqCtx),
	)
	if err != nil {
		return false, fmt.Errorf("enforce: %w", err)
	}

	s.decisions.Add(key, allowed)
	return allowed, nil
}

func (s *iamService) BroadestContext(ctx context.Context, level rbac.RoleLevel, resource rbac.Resource, action rbac.Action) (rbac.Context, bool, error) {
	for _, permCtx := range []rbac.Context{rbac.ContextAll, rbac.ContextTeam, rbac.ContextOwn, rbac.ContextNone} {
		allowed, err := s.Authorize(ctx, level, resource, action, permCtx)
		if err != nil {
			return rbac.ContextNone, false, err
		}
		if allowed {
			return permCtx, true, nil
		}
	}
	return rbac.ContextNone, false, nil
}

func decisionKey(level rbac.RoleLevel, resource rbac.Resource, action rbac.Action, reqCtx rbac.Context) string {
	return strconv.Itoa(int(level)) + "|" + string(resource) + "|" + string(action) + "|" + string(reqCtx)
}

// =========================================================================
// Session and token revocation
// =========================================================================

func (s *iamService) ListUserSessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

func (s *iamService) RevokeSession(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID)
}

func (s *iamService) RevokeAllSessions(ctx context.Context, userID string) error {
	return s.sessions.RevokeAllForUser(ctx, userID)
}

func (s *iamService) RevokeJTI(ctx context.Context, jti, subject string, expiresAt time.Time, revokedBy string) error {
	entry := &models.RevokedJTI{
		JTI:       jti,
		Subject:   subject,
		Exp:       expiresAt,
		RevokedAt: time.Now(),
	}
	if revokedBy != "" {
		entry.RevokedBy = &revokedBy
	}
	return s.revokedJTIs.Revoke(ctx, entry)
}

// =========================================================================
// User management
// =========================================================================

func (s *iamService) CreateUser(ctx context.Context, actor auth.Principal, params CreateUserParams) (*models.User, error) {
	if params.Email == "" {
		return nil, errors.New("email is required")
	}
	if !params.Level.Valid() {
		return nil, fmt.Errorf("invalid role level %d", params.Level)
	}
	if err := checkGrant(actor, params.Level); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        params.Email,
		Name:         params.Name,
		PasswordHash: hash,
		RoleLevel:    params.Level,
		TeamID:       params.TeamID,
		AccountID:    params.AccountID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *iamService) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *iamService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.users.GetByEmail(ctx, email)
}

func (s *iamService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

func (s *iamService) DisableUser(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.DisabledAt != nil {
		return nil // already disabled
	}

	now := time.Now()
	user.DisabledAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	return s.sessions.RevokeAllForUser(ctx, userID)
}

func (s *iamService) SetUserRole(ctx context.Context, actor auth.Principal, userID string, level rbac.RoleLevel) error {
	if !level.Valid() {
		return fmt.Errorf("invalid role level %d", level)
	}
	if err := checkGrant(actor, level); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.RoleLevel == level {
		return nil
	}

	user.RoleLevel = level
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	// Live sessions carry the old level; force re-authentication.
	return s.sessions.RevokeAllForUser(ctx, userID)
}

// checkGrant enforces the escalation rule: granting Admin or SuperAdmin
// requires a SuperAdmin actor. The system user bypasses the check for CLI
// bootstrap operations.
func checkGrant(actor auth.Principal, level rbac.RoleLevel) error {
	if actor.ID == auth.SystemUserID {
		return nil
	}
	if level.AtLeast(rbac.RoleAdmin) && !actor.Level.AtLeast(rbac.RoleSuperAdmin) {
		return ErrRoleEscalation
	}
	return nil
}

// =========================================================================
// Service account management
// =========================================================================

func (s *iamService) CreateServiceAccount(ctx context.Context, name, description string, level rbac.RoleLevel, createdBy string) (*models.ServiceAccount, string, error) {
	if name == "" {
		return nil, "", errors.New("name is required")
	}
	if !level.Valid() {
		return nil, "", fmt.Errorf("invalid role level %d", level)
	}

	clientID, err := auth.NewClientID()
	if err != nil {
		return nil, "", err
	}
	secret, err := auth.NewClientSecret()
	if err != nil {
		return nil, "", err
	}
	secretHash, err := auth.HashPassword(secret)
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	sa := &models.ServiceAccount{
		ClientID:         clientID,
		ClientSecretHash: secretHash,
		Name:             name,
		Description:      description,
		RoleLevel:        level,
		CreatedBy:        createdBy,
		CreatedAt:        now,
		SecretRotatedAt:  now,
	}
	if err := s.serviceAccounts.Create(ctx, sa); err != nil {
		return nil, "", err
	}

	return sa, secret, nil
}

func (s *iamService) ListServiceAccounts(ctx context.Context) ([]models.ServiceAccount, error) {
	return s.serviceAccounts.List(ctx)
}

func (s *iamService) RotateServiceAccountSecret(ctx context.Context, clientID string) (string, time.Time, error) {
	sa, err := s.serviceAccounts.GetByClientID(ctx, clientID)
	if err != nil {
		return "", time.Time{}, err
	}

	secret, err := auth.NewClientSecret()
	if err != nil {
		return "", time.Time{}, err
	}
	secretHash, err := auth.HashPassword(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	rotatedAt := time.Now()
	sa.ClientSecretHash = secretHash
	sa.SecretRotatedAt = rotatedAt
	if err := s.serviceAccounts.Update(ctx, sa); err != nil {
		return "", time.Time{}, err
	}

	return secret, rotatedAt, nil
}

func (s *iamService) RevokeServiceAccount(ctx context.Context, clientID string) error {
	sa, err := s.serviceAccounts.GetByClientID(ctx, clientID)
	if err != nil {
		return err
	}
	if sa.Disabled {
		return nil
	}

	sa.Disabled = true
	return s.serviceAccounts.Update(ctx, sa)
}

// =========================================================================
// Policy administration
// =========================================================================

func (s *iamService) ListPolicy(ctx context.Context) ([]rbac.Rule, error) {
	policy, err := s.enforcer.GetPolicy()
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}

	rules := make([]rbac.Rule, 0, len(policy))
	for _, row := range policy {
		if len(row) < 4 {
			continue
		}
		minLevel, err := strconv.Atoi(row[3])
		if err != nil {
			return nil, fmt.Errorf("malformed policy row %v: %w", row, err)
		}
		rules = append(rules, rbac.Rule{
			Resource: rbac.Resource(row[0]),
			Action:   rbac.Action(row[1]),
			Context:  rbac.Context(row[2]),
			MinLevel: rbac.RoleLevel(minLevel),
		})
	}
	return rules, nil
}

func (s *iamService) SetPermissionThreshold(ctx context.Context, resource rbac.Resource, action rbac.Action, permCtx rbac.Context, minLevel rbac.RoleLevel) error {
	if resource == "" || action == "" {
		return errors.New("resource and action are required")
	}
	if !rbac.ValidContext(permCtx) {
		return fmt.Errorf("invalid context %q", permCtx)
	}
	if !minLevel.Valid() {
		return fmt.Errorf("invalid role level %d", minLevel)
	}

	// Replace any existing threshold for the same tuple.
	if _, err := s.enforcer.RemoveFilteredPolicy(0, string(resource), string(action), string(permCtx)); err != nil {
		return fmt.Errorf("remove existing threshold: %w", err)
	}
	if _, err := s.enforcer.AddPolicy(string(resource), string(action), string(permCtx), strconv.Itoa(int(minLevel))); err != nil {
		return fmt.Errorf("add threshold: %w", err)
	}

	s.decisions.Purge()
	return nil
}

func (s *iamService) RemovePermission(ctx context.Context, resource rbac.Resource, action rbac.Action, permCtx rbac.Context) error {
	if resource == "" || action == "" {
		return errors.New("resource and action are required")
	}

	removed, err := s.enforcer.RemoveFilteredPolicy(0, string(resource), string(action), string(permCtx))
	if err != nil {
		return fmt.Errorf("remove threshold: %w", err)
	}
	if !removed {
		return fmt.Errorf("permission %s:%s:%s: %w", resource, action, permCtx, repository.ErrNotFound)
	}

	s.decisions.Purge()
	return nil
}

// =========================================================================
// Helpers
// =========================================================================

func principalFromUser(user *models.User) auth.Principal {
	p := auth.Principal{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Level: user.RoleLevel,
		Type:  auth.PrincipalTypeUser,
	}
	if user.TeamID != nil {
		p.TeamID = *user.TeamID
	}
	if user.AccountID != nil {
		p.AccountID = *user.AccountID
	}
	return p
}

func principalFromServiceAccount(sa *models.ServiceAccount) auth.Principal {
	return auth.Principal{
		ID:    sa.ID,
		Name:  sa.Name,
		Level: sa.RoleLevel,
		Type:  auth.PrincipalTypeServiceAccount,
	}
}
