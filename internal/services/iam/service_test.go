package iam

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/db/bunx"
	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/rbac"
	"github.com/medsourcepro/msapi/internal/repository"
)

// =========================================================================
// Stub repositories
// =========================================================================

type stubUserRepo struct {
	users map[string]*models.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*models.User)}
}

func (r *stubUserRepo) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = bunx.NewUUIDv7()
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) Update(_ context.Context, user *models.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *stubUserRepo) List(_ context.Context) ([]models.User, error) {
	out := make([]models.User, 0, len(r.users))
	for _, user := range r.users {
		out = append(out, *user)
	}
	return out, nil
}

func (r *stubUserRepo) ListByTeam(_ context.Context, teamID string) ([]models.User, error) {
	var out []models.User
	for _, user := range r.users {
		if user.TeamID != nil && *user.TeamID == teamID {
			out = append(out, *user)
		}
	}
	return out, nil
}

func (r *stubUserRepo) RecordLogin(_ context.Context, id string, at time.Time) error {
	if user, ok := r.users[id]; ok {
		user.LastLoginAt = &at
	}
	return nil
}

type stubSessionRepo struct {
	sessions map[string]*models.Session
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: make(map[string]*models.Session)}
}

func (r *stubSessionRepo) Create(_ context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = bunx.NewUUIDv7()
	}
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *stubSessionRepo) GetByTokenHash(_ context.Context, tokenHash string) (*models.Session, error) {
	for _, session := range r.sessions {
		if session.TokenHash == tokenHash && !session.Revoked && session.ExpiresAt.After(time.Now()) {
			cp := *session
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubSessionRepo) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	var out []models.Session
	for _, session := range r.sessions {
		if session.UserID != nil && *session.UserID == userID && !session.Revoked {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (r *stubSessionRepo) Revoke(_ context.Context, id string) error {
	session, ok := r.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	session.Revoked = true
	return nil
}

func (r *stubSessionRepo) RevokeAllForUser(_ context.Context, userID string) error {
	for _, session := range r.sessions {
		if session.UserID != nil && *session.UserID == userID {
			session.Revoked = true
		}
	}
	return nil
}

func (r *stubSessionRepo) Touch(_ context.Context, id string, at time.Time) error {
	if session, ok := r.sessions[id]; ok {
		session.LastUsedAt = at
	}
	return nil
}

func (r *stubSessionRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for id, session := range r.sessions {
		if session.ExpiresAt.Before(before) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type stubJTIRepo struct {
	revoked map[string]*models.RevokedJTI
}

func newStubJTIRepo() *stubJTIRepo {
	return &stubJTIRepo{revoked: make(map[string]*models.RevokedJTI)}
}

func (r *stubJTIRepo) Revoke(_ context.Context, entry *models.RevokedJTI) error {
	if _, ok := r.revoked[entry.JTI]; !ok {
		r.revoked[entry.JTI] = entry
	}
	return nil
}

func (r *stubJTIRepo) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := r.revoked[jti]
	return ok, nil
}

func (r *stubJTIRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for jti, entry := range r.revoked {
		if entry.Exp.Before(before) {
			delete(r.revoked, jti)
			n++
		}
	}
	return n, nil
}

type stubServiceAccountRepo struct {
	accounts map[string]*models.ServiceAccount
}

func newStubServiceAccountRepo() *stubServiceAccountRepo {
	return &stubServiceAccountRepo{accounts: make(map[string]*models.ServiceAccount)}
}

func (r *stubServiceAccountRepo) Create(_ context.Context, sa *models.ServiceAccount) error {
	if sa.ID == "" {
		sa.ID = bunx.NewUUIDv7()
	}
	cp := *sa
	r.accounts[sa.ID] = &cp
	return nil
}

func (r *stubServiceAccountRepo) GetByID(_ context.Context, id string) (*models.ServiceAccount, error) {
	sa, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sa
	return &cp, nil
}

func (r *stubServiceAccountRepo) GetByClientID(_ context.Context, clientID string) (*models.ServiceAccount, error) {
	for _, sa := range r.accounts {
		if sa.ClientID == clientID {
			cp := *sa
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubServiceAccountRepo) Update(_ context.Context, sa *models.ServiceAccount) error {
	if _, ok := r.accounts[sa.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *sa
	r.accounts[sa.ID] = &cp
	return nil
}

func (r *stubServiceAccountRepo) List(_ context.Context) ([]models.ServiceAccount, error) {
	out := make([]models.ServiceAccount, 0, len(r.accounts))
	for _, sa := range r.accounts {
		out = append(out, *sa)
	}
	return out, nil
}

func (r *stubServiceAccountRepo) RecordUse(_ context.Context, id string, at time.Time) error {
	if sa, ok := r.accounts[id]; ok {
		sa.LastUsedAt = at
	}
	return nil
}

// =========================================================================
// Fixtures
// =========================================================================

type testEnv struct {
	svc      Service
	users    *stubUserRepo
	sessions *stubSessionRepo
	jtis     *stubJTIRepo
	sas      *stubServiceAccountRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	enforcer, err := auth.InitMemoryEnforcer()
	require.NoError(t, err)
	for _, rule := range rbac.DefaultPolicy() {
		_, err := enforcer.AddPolicy(
			string(rule.Resource),
			string(rule.Action),
			string(rule.Context),
			strconv.Itoa(int(rule.MinLevel)),
		)
		require.NoError(t, err)
	}

	issuer, err := auth.NewTokenIssuer("test-secret-0123456789", "msapi-test", "medsource-pro", time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		users:    newStubUserRepo(),
		sessions: newStubSessionRepo(),
		jtis:     newStubJTIRepo(),
		sas:      newStubServiceAccountRepo(),
	}

	svc, err := NewService(Dependencies{
		Users:           env.users,
		ServiceAccounts: env.sas,
		Sessions:        env.sessions,
		RevokedJTIs:     env.jtis,
		Enforcer:        enforcer,
		Issuer:          issuer,
	}, Config{SessionTTL: time.Hour, DecisionCacheSize: 128})
	require.NoError(t, err)

	env.svc = svc
	return env
}

func (e *testEnv) seedUser(t *testing.T, email, password string, level rbac.RoleLevel) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		Email:        email,
		Name:         strings.Split(email, "@")[0],
		PasswordHash: hash,
		RoleLevel:    level,
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

func systemActor() auth.Principal {
	return auth.Principal{ID: auth.SystemUserID, Level: rbac.RoleSuperAdmin, Type: auth.PrincipalTypeUser}
}

// =========================================================================
// Tests
// =========================================================================

func TestLoginIssuesTokenAndSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "rep@medsource.test", "correct-horse", rbac.RoleSalesRep)

	result, err := env.svc.Login(ctx, "rep@medsource.test", "correct-horse", "go-test", "127.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.NotEmpty(t, result.SessionToken)
	require.True(t, result.ExpiresAt.After(time.Now()))

	stored, err := env.svc.GetUserByID(ctx, result.User.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)

	// Bearer token authenticates.
	principal, err := env.svc.AuthenticateRequest(ctx, AuthRequest{BearerToken: result.Token})
	require.NoError(t, err)
	require.NotNil(t, principal)
	require.Equal(t, rbac.RoleSalesRep, principal.Level)
	require.Equal(t, auth.PrincipalTypeUser, principal.Type)
	require.NotEmpty(t, principal.JTI)

	// Session token authenticates and carries the session ID.
	principal, err = env.svc.AuthenticateRequest(ctx, AuthRequest{SessionToken: result.SessionToken})
	require.NoError(t, err)
	require.NotNil(t, principal)
	require.NotEmpty(t, principal.SessionID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "rep@medsource.test", "correct-horse", rbac.RoleSalesRep)

	_, err := env.svc.Login(ctx, "rep@medsource.test", "wrong-password", "", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.Login(ctx, "nobody@medsource.test", "correct-horse", "", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsDisabledUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "rep@medsource.test", "correct-horse", rbac.RoleSalesRep)

	require.NoError(t, env.svc.DisableUser(ctx, user.ID))

	_, err := env.svc.Login(ctx, "rep@medsource.test", "correct-horse", "", "")
	require.ErrorIs(t, err, ErrPrincipalDisabled)
}

func TestAnonymousRequest(t *testing.T) {
	env := newTestEnv(t)

	principal, err := env.svc.AuthenticateRequest(context.Background(), AuthRequest{})
	require.NoError(t, err)
	require.Nil(t, principal)
}

func TestLogoutRevokesTokenAndSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "rep@medsource.test", "correct-horse", rbac.RoleSalesRep)

	result, err := env.svc.Login(ctx, "rep@medsource.test", "correct-horse", "", "")
	require.NoError(t, err)

	principal, err := env.svc.AuthenticateRequest(ctx, AuthRequest{BearerToken: result.Token})
	require.NoError(t, err)

	sessions, err := env.svc.ListUserSessions(ctx, principal.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	principal.SessionID = sessions[0].ID

	require.NoError(t, env.svc.Logout(ctx, *principal))

	_, err = env.svc.AuthenticateRequest(ctx, AuthRequest{BearerToken: result.Token})
	require.ErrorIs(t, err, ErrTokenRevoked)

	_, err = env.svc.AuthenticateRequest(ctx, AuthRequest{SessionToken: result.SessionToken})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthorizeThresholds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		level    rbac.RoleLevel
		resource rbac.Resource
		action   rbac.Action
		permCtx  rbac.Context
		want     bool
	}{
		{rbac.RoleCustomer, rbac.ResourceProduct, rbac.ActionRead, rbac.ContextNone, true},
		{rbac.RoleCustomer, rbac.ResourceProduct, rbac.ActionCreate, rbac.ContextAll, false},
		{rbac.RoleAdmin, rbac.ResourceProduct, rbac.ActionCreate, rbac.ContextAll, true},
		{rbac.RoleCustomer, rbac.ResourceOrder, rbac.ActionRead, rbac.ContextOwn, true},
		{rbac.RoleCustomer, rbac.ResourceOrder, rbac.ActionRead, rbac.ContextTeam, false},
		{rbac.RoleSalesManager, rbac.ResourceOrder, rbac.ActionRead, rbac.ContextTeam, true},
		{rbac.RoleFulfillment, rbac.ResourceOrder, rbac.ActionRead, rbac.ContextOwn, true},
		{rbac.RoleFulfillment, rbac.ResourceOrder, rbac.ActionFulfill, rbac.ContextAll, true},
		{rbac.RoleAdmin, rbac.ResourcePolicy, rbac.ActionWrite, rbac.ContextAll, false},
		{rbac.RoleSuperAdmin, rbac.ResourcePolicy, rbac.ActionWrite, rbac.ContextAll, true},
	}

	for _, tc := range cases {
		got, err := env.svc.Authorize(ctx, tc.level, tc.resource, tc.action, tc.permCtx)
		require.NoError(t, err)
		require.Equalf(t, tc.want, got, "%s may %s:%s:%s", tc.level, tc.resource, tc.action, tc.permCtx)

		// Second call hits the decision cache and must agree.
		cached, err := env.svc.Authorize(ctx, tc.level, tc.resource, tc.action, tc.permCtx)
		require.NoError(t, err)
		require.Equal(t, got, cached)
	}
}

func TestAuthorizeDeniesUnknownTuple(t *testing.T) {
	env := newTestEnv(t)

	allowed, err := env.svc.Authorize(context.Background(), rbac.RoleSuperAdmin, "warehouse", "teleport", rbac.ContextAll)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestSetPermissionThresholdPurgesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Warm the cache with an allow.
	allowed, err := env.svc.Authorize(ctx, rbac.RoleAdmin, rbac.ResourceProduct, rbac.ActionCreate, rbac.ContextAll)
	require.NoError(t, err)
	require.True(t, allowed)

	// Tighten the threshold to SuperAdmin.
	err = env.svc.SetPermissionThreshold(ctx, rbac.ResourceProduct, rbac.ActionCreate, rbac.ContextAll, rbac.RoleSuperAdmin)
	require.NoError(t, err)

	allowed, err = env.svc.Authorize(ctx, rbac.RoleAdmin, rbac.ResourceProduct, rbac.ActionCreate, rbac.ContextAll)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = env.svc.Authorize(ctx, rbac.RoleSuperAdmin, rbac.ResourceProduct, rbac.ActionCreate, rbac.ContextAll)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRemovePermissionDenies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.RemovePermission(ctx, rbac.ResourceOrder, rbac.ActionRead, rbac.ContextOwn))

	allowed, err := env.svc.Authorize(ctx, rbac.RoleCustomer, rbac.ResourceOrder, rbac.ActionRead, rbac.ContextOwn)
	require.NoError(t, err)
	require.False(t, allowed)

	// Unknown tuples report not found.
	err = env.svc.RemovePermission(ctx, rbac.ResourceOrder, rbac.ActionRead, rbac.ContextOwn)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBroadestContext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	broadest, ok, err := env.svc.BroadestContext(ctx, rbac.RoleAdmin, rbac.ResourceAnalytics, rbac.ActionRead)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rbac.ContextAll, broadest)

	broadest, ok, err = env.svc.BroadestContext(ctx, rbac.RoleSalesManager, rbac.ResourceAnalytics, rbac.ActionRead)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rbac.ContextTeam, broadest)

	broadest, ok, err = env.svc.BroadestContext(ctx, rbac.RoleSalesRep, rbac.ResourceAnalytics, rbac.ActionRead)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rbac.ContextOwn, broadest)

	_, ok, err = env.svc.BroadestContext(ctx, rbac.RoleCustomer, rbac.ResourceAnalytics, rbac.ActionRead)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetUserRoleEscalationGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "rep@medsource.test", "correct-horse", rbac.RoleSalesRep)

	adminActor := auth.Principal{ID: bunx.NewUUIDv7(), Level: rbac.RoleAdmin, Type: auth.PrincipalTypeUser}
	superActor := auth.Principal{ID: bunx.NewUUIDv7(), Level: rbac.RoleSuperAdmin, Type: auth.PrincipalTypeUser}

	// Admin may adjust levels below Admin.
	require.NoError(t, env.svc.SetUserRole(ctx, adminActor, user.ID, rbac.RoleSalesManager))

	// Admin may not grant Admin.
	err := env.svc.SetUserRole(ctx, adminActor, user.ID, rbac.RoleAdmin)
	require.ErrorIs(t, err, ErrRoleEscalation)

	// SuperAdmin may.
	require.NoError(t, env.svc.SetUserRole(ctx, superActor, user.ID, rbac.RoleAdmin))

	updated, err := env.svc.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, rbac.RoleAdmin, updated.RoleLevel)
}

func TestSetUserRoleRevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "rep@medsource.test", "correct-horse", rbac.RoleSalesRep)

	result, err := env.svc.Login(ctx, "rep@medsource.test", "correct-horse", "", "")
	require.NoError(t, err)

	require.NoError(t, env.svc.SetUserRole(ctx, systemActor(), user.ID, rbac.RoleSalesManager))

	_, err = env.svc.AuthenticateRequest(ctx, AuthRequest{SessionToken: result.SessionToken})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateUserEscalationGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	adminActor := auth.Principal{ID: bunx.NewUUIDv7(), Level: rbac.RoleAdmin, Type: auth.PrincipalTypeUser}

	_, err := env.svc.CreateUser(ctx, adminActor, CreateUserParams{
		Email:    "boss@medsource.test",
		Name:     "Boss",
		Password: "long-enough-pw",
		Level:    rbac.RoleSuperAdmin,
	})
	require.ErrorIs(t, err, ErrRoleEscalation)

	user, err := env.svc.CreateUser(ctx, adminActor, CreateUserParams{
		Email:    "rep2@medsource.test",
		Name:     "Rep Two",
		Password: "long-enough-pw",
		Level:    rbac.RoleSalesRep,
	})
	require.NoError(t, err)
	require.Equal(t, rbac.RoleSalesRep, user.RoleLevel)
}

func TestServiceAccountLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sa, secret, err := env.svc.CreateServiceAccount(ctx, "edi-feed", "EDI order feed", rbac.RoleFulfillment, auth.SystemUserID)
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.NotEqual(t, secret, sa.ClientSecretHash)

	token, claims, err := env.svc.ClientCredentialsLogin(ctx, sa.ClientID, secret)
	require.NoError(t, err)
	require.Equal(t, sa.ID, claims.Subject)
	require.Equal(t, int(rbac.RoleFulfillment), claims.Level)

	principal, err := env.svc.AuthenticateRequest(ctx, AuthRequest{BearerToken: token})
	require.NoError(t, err)
	require.Equal(t, auth.PrincipalTypeServiceAccount, principal.Type)

	// Rotation invalidates the old secret.
	newSecret, _, err := env.svc.RotateServiceAccountSecret(ctx, sa.ClientID)
	require.NoError(t, err)
	require.NotEqual(t, secret, newSecret)

	_, _, err = env.svc.ClientCredentialsLogin(ctx, sa.ClientID, secret)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = env.svc.ClientCredentialsLogin(ctx, sa.ClientID, newSecret)
	require.NoError(t, err)

	// Revocation disables the account entirely.
	require.NoError(t, env.svc.RevokeServiceAccount(ctx, sa.ClientID))
	_, _, err = env.svc.ClientCredentialsLogin(ctx, sa.ClientID, newSecret)
	require.ErrorIs(t, err, ErrPrincipalDisabled)
}

func TestListPolicyRoundTrips(t *testing.T) {
	env := newTestEnv(t)

	rules, err := env.svc.ListPolicy(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, len(rbac.DefaultPolicy()))

	table, err := rbac.NewTable(rules)
	require.NoError(t, err)
	require.True(t, table.HasPermission(rbac.RoleAdmin, rbac.ResourceProduct, rbac.ActionCreate, rbac.ContextAll))
}
