package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/db/bunx"
	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/rbac"
	"github.com/medsourcepro/msapi/internal/repository"
	"github.com/medsourcepro/msapi/internal/services/accounts"
	"github.com/medsourcepro/msapi/internal/services/analytics"
	"github.com/medsourcepro/msapi/internal/services/catalog"
	"github.com/medsourcepro/msapi/internal/services/iam"
	"github.com/medsourcepro/msapi/internal/services/orders"
	"github.com/medsourcepro/msapi/internal/services/quotes"
)

// =========================================================================
// Stub repositories
// =========================================================================

type stubUserRepo struct{ users map[string]*models.User }

func (r *stubUserRepo) Create(_ context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = bunx.NewUUIDv7()
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) Update(_ context.Context, u *models.User) error {
	if _, ok := r.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *stubUserRepo) List(_ context.Context) ([]models.User, error) {
	out := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func (r *stubUserRepo) ListByTeam(_ context.Context, teamID string) ([]models.User, error) {
	var out []models.User
	for _, u := range r.users {
		if u.TeamID != nil && *u.TeamID == teamID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *stubUserRepo) RecordLogin(_ context.Context, id string, at time.Time) error {
	if u, ok := r.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

type stubSessionRepo struct{ sessions map[string]*models.Session }

func (r *stubSessionRepo) Create(_ context.Context, s *models.Session) error {
	if s.ID == "" {
		s.ID = bunx.NewUUIDv7()
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *stubSessionRepo) GetByTokenHash(_ context.Context, hash string) (*models.Session, error) {
	for _, s := range r.sessions {
		if s.TokenHash == hash && !s.Revoked && s.ExpiresAt.After(time.Now()) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubSessionRepo) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	var out []models.Session
	for _, s := range r.sessions {
		if s.UserID != nil && *s.UserID == userID && !s.Revoked {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *stubSessionRepo) Revoke(_ context.Context, id string) error {
	s, ok := r.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Revoked = true
	return nil
}

func (r *stubSessionRepo) RevokeAllForUser(_ context.Context, userID string) error {
	for _, s := range r.sessions {
		if s.UserID != nil && *s.UserID == userID {
			s.Revoked = true
		}
	}
	return nil
}

func (r *stubSessionRepo) Touch(_ context.Context, id string, at time.Time) error {
	if s, ok := r.sessions[id]; ok {
		s.LastUsedAt = at
	}
	return nil
}

func (r *stubSessionRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(before) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type stubJTIRepo struct{ revoked map[string]*models.RevokedJTI }

func (r *stubJTIRepo) Revoke(_ context.Context, entry *models.RevokedJTI) error {
	r.revoked[entry.JTI] = entry
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

type stubServiceAccountRepo struct{ accounts map[string]*models.ServiceAccount }

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

type stubProductRepo struct{ products map[string]*models.Product }

func (r *stubProductRepo) Create(_ context.Context, p *models.Product) error {
	if p.ID == "" {
		p.ID = bunx.NewUUIDv7()
	}
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *stubProductRepo) GetByID(_ context.Context, id string) (*models.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *stubProductRepo) GetBySKU(_ context.Context, sku string) (*models.Product, error) {
	for _, p := range r.products {
		if p.SKU == sku {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubProductRepo) Update(_ context.Context, p *models.Product) error {
	if _, ok := r.products[p.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *stubProductRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *stubProductRepo) List(_ context.Context, filter repository.ProductFilter) ([]models.Product, error) {
	var out []models.Product
	for _, p := range r.products {
		if !filter.IncludeDiscontinued && p.DiscontinuedAt != nil {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

type stubOrderRepo struct{ orders map[string]*models.Order }

func (r *stubOrderRepo) Create(_ context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = bunx.NewUUIDv7()
	}
	for _, item := range o.Items {
		if item.ID == "" {
			item.ID = bunx.NewUUIDv7()
		}
		item.OrderID = o.ID
	}
	o.TotalCent = o.ComputeTotal()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *stubOrderRepo) GetByID(_ context.Context, id string) (*models.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *stubOrderRepo) UpdateStatus(_ context.Context, o *models.Order, prev models.OrderStatus) error {
	stored, ok := r.orders[o.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != prev {
		return repository.ErrStatusConflict
	}
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *stubOrderRepo) List(_ context.Context, scope repository.Scope) ([]models.Order, error) {
	return r.ListSince(context.Background(), scope, time.Time{})
}

func (r *stubOrderRepo) ListSince(_ context.Context, scope repository.Scope, since time.Time) ([]models.Order, error) {
	var out []models.Order
	for _, o := range r.orders {
		if o.CreatedAt.Before(since) {
			continue
		}
		if scope.Visible(o.OwnerID, o.TeamID, &o.AccountID) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *stubOrderRepo) ReplaceItems(_ context.Context, orderID string, items []*models.OrderItem) error {
	o, ok := r.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, item := range items {
		if item.ID == "" {
			item.ID = bunx.NewUUIDv7()
		}
		item.OrderID = orderID
	}
	o.Items = items
	o.TotalCent = o.ComputeTotal()
	return nil
}

type stubQuoteRepo struct{ quotes map[string]*models.Quote }

func (r *stubQuoteRepo) Create(_ context.Context, q *models.Quote) error {
	if q.ID == "" {
		q.ID = bunx.NewUUIDv7()
	}
	for _, item := range q.Items {
		if item.ID == "" {
			item.ID = bunx.NewUUIDv7()
		}
		item.QuoteID = q.ID
	}
	q.TotalCent = q.ComputeTotal()
	cp := *q
	r.quotes[q.ID] = &cp
	return nil
}

func (r *stubQuoteRepo) GetByID(_ context.Context, id string) (*models.Quote, error) {
	q, ok := r.quotes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (r *stubQuoteRepo) UpdateStatus(_ context.Context, q *models.Quote, prev models.QuoteStatus) error {
	stored, ok := r.quotes[q.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != prev {
		return repository.ErrStatusConflict
	}
	cp := *q
	r.quotes[q.ID] = &cp
	return nil
}

func (r *stubQuoteRepo) List(_ context.Context, scope repository.Scope) ([]models.Quote, error) {
	var out []models.Quote
	for _, q := range r.quotes {
		if scope.Visible(q.OwnerID, q.TeamID, &q.AccountID) {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (r *stubQuoteRepo) ReplaceItems(_ context.Context, quoteID string, items []*models.QuoteItem) error {
	q, ok := r.quotes[quoteID]
	if !ok {
		return repository.ErrNotFound
	}
	q.Items = items
	return nil
}

type stubAccountRepo struct{ accounts map[string]*models.Account }

func (r *stubAccountRepo) Create(_ context.Context, a *models.Account) error {
	if a.ID == "" {
		a.ID = bunx.NewUUIDv7()
	}
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *stubAccountRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *stubAccountRepo) Update(_ context.Context, a *models.Account) error {
	if _, ok := r.accounts[a.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *stubAccountRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.accounts, id)
	return nil
}

func (r *stubAccountRepo) List(_ context.Context, scope repository.Scope) ([]models.Account, error) {
	var out []models.Account
	for _, a := range r.accounts {
		ownerID := ""
		if a.OwnerID != nil {
			ownerID = *a.OwnerID
		}
		if scope.Visible(ownerID, a.TeamID, &a.ID) {
			out = append(out, *a)
		}
	}
	return out, nil
}

// =========================================================================
// Fixtures
// =========================================================================

type testServer struct {
	router   http.Handler
	products *stubProductRepo
	accounts *stubAccountRepo

	accountID      string
	otherAccountID string
}

func newTestServer(t *testing.T) *testServer {
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

	users := &stubUserRepo{users: make(map[string]*models.User)}
	sessions := &stubSessionRepo{sessions: make(map[string]*models.Session)}
	jtis := &stubJTIRepo{revoked: make(map[string]*models.RevokedJTI)}
	sas := &stubServiceAccountRepo{accounts: make(map[string]*models.ServiceAccount)}
	products := &stubProductRepo{products: make(map[string]*models.Product)}
	orderRepo := &stubOrderRepo{orders: make(map[string]*models.Order)}
	quoteRepo := &stubQuoteRepo{quotes: make(map[string]*models.Quote)}
	accountRepo := &stubAccountRepo{accounts: make(map[string]*models.Account)}

	iamSvc, err := iam.NewService(iam.Dependencies{
		Users:           users,
		ServiceAccounts: sas,
		Sessions:        sessions,
		RevokedJTIs:     jtis,
		Enforcer:        enforcer,
		Issuer:          issuer,
	}, iam.Config{SessionTTL: time.Hour, DecisionCacheSize: 128})
	require.NoError(t, err)

	catalogSvc, err := catalog.NewService(catalog.Dependencies{Products: products}, catalog.Config{})
	require.NoError(t, err)

	orderSvc, err := orders.NewService(orders.Dependencies{
		Orders:   orderRepo,
		Products: products,
		Accounts: accountRepo,
	})
	require.NoError(t, err)

	quoteSvc, err := quotes.NewService(quotes.Dependencies{
		Quotes:   quoteRepo,
		Orders:   orderRepo,
		Products: products,
		Accounts: accountRepo,
	}, quotes.Config{})
	require.NoError(t, err)

	accountSvc, err := accounts.NewService(accountRepo)
	require.NoError(t, err)

	analyticsSvc, err := analytics.NewService(analytics.Dependencies{
		Orders:     orderRepo,
		Authorizer: iamSvc,
	})
	require.NoError(t, err)

	ts := &testServer{
		products: products,
		accounts: accountRepo,
	}

	ctx := context.Background()

	account := &models.Account{Name: "Mercy General", Type: "hospital"}
	require.NoError(t, accountRepo.Create(ctx, account))
	ts.accountID = account.ID

	other := &models.Account{Name: "Lakeside Clinic", Type: "clinic"}
	require.NoError(t, accountRepo.Create(ctx, other))
	ts.otherAccountID = other.ID

	seedUser := func(email string, level rbac.RoleLevel, accountID *string) {
		hash, err := auth.HashPassword("correct-horse")
		require.NoError(t, err)
		require.NoError(t, users.Create(ctx, &models.User{
			Email:        email,
			Name:         email,
			PasswordHash: hash,
			RoleLevel:    level,
			AccountID:    accountID,
		}))
	}
	seedUser("customer@mercy.test", rbac.RoleCustomer, &account.ID)
	seedUser("other@lakeside.test", rbac.RoleCustomer, &other.ID)
	seedUser("admin@medsource.test", rbac.RoleAdmin, nil)
	seedUser("root@medsource.test", rbac.RoleSuperAdmin, nil)

	ts.router = NewRouter(RouterOptions{
		IAM:       iamSvc,
		Catalog:   catalogSvc,
		Orders:    orderSvc,
		Quotes:    quoteSvc,
		Accounts:  accountSvc,
		Analytics: analyticsSvc,
	})
	return ts
}

func (ts *testServer) seedProduct(t *testing.T, sku string, priceCent int64) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:           sku,
		Name:          sku,
		Category:      "supplies",
		UnitPriceCent: priceCent,
		UnitOfMeasure: "each",
		Labels:        models.LabelMap{},
	}
	require.NoError(t, ts.products.Create(context.Background(), product))
	return product
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, email string) string {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Email: email, Password: "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// =========================================================================
// Tests
// =========================================================================

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestLoginSetsSessionCookie(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "admin@medsource.test",
		Password: "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	require.True(t, sessionCookie.HttpOnly)

	// The cookie authenticates a follow-up request on its own.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/whoami", nil)
	req.AddCookie(sessionCookie)
	cookieRec := httptest.NewRecorder()
	ts.router.ServeHTTP(cookieRec, req)
	require.Equal(t, http.StatusOK, cookieRec.Code)

	whoami := decode[WhoamiResponse](t, cookieRec)
	require.Equal(t, "admin@medsource.test", whoami.Email)
	require.Equal(t, int(rbac.RoleAdmin), whoami.RoleLevel)
}

func TestWhoamiRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/auth/whoami", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/auth/whoami", "not-a-real-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProductRoutePermissions(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.login(t, "customer@mercy.test")
	admin := ts.login(t, "admin@medsource.test")

	params := ProductParams{
		SKU:           "GLV-100",
		Name:          "Nitrile Gloves",
		Category:      "ppe",
		UnitPriceCent: 1299,
		Labels:        map[string]string{"line": "exam"},
	}

	// Catalog writes are admin-only; reads are open to every role.
	rec := ts.do(t, http.MethodPost, "/api/products", customer, params)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/products", admin, params)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[ProductResponse](t, rec)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "GLV-100", created.SKU)

	rec = ts.do(t, http.MethodGet, "/api/products", customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]ProductResponse](t, rec)
	require.Len(t, listed, 1)

	rec = ts.do(t, http.MethodGet, "/api/products/"+created.ID, customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Duplicate SKU conflicts.
	rec = ts.do(t, http.MethodPost, "/api/products", admin, params)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestOrderFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.login(t, "customer@mercy.test")
	other := ts.login(t, "other@lakeside.test")

	gloves := ts.seedProduct(t, "GLV-100", 1299)
	gowns := ts.seedProduct(t, "GWN-200", 4500)

	rec := ts.do(t, http.MethodPost, "/api/orders", customer, orders.CreateOrderParams{
		AccountID: ts.accountID,
		Items: []orders.ItemParams{
			{ProductID: gloves.ID, Quantity: 10},
			{ProductID: gowns.ID, Quantity: 2},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[OrderResponse](t, rec)
	require.Equal(t, "draft", created.Status)
	require.Equal(t, int64(10*1299+2*4500), created.TotalCent)
	require.Len(t, created.Items, 2)

	// The owner sees it; a customer on another account gets a 404.
	rec = ts.do(t, http.MethodGet, "/api/orders/"+created.ID, customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/orders/"+created.ID, other, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/submit", created.ID), customer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	submitted := decode[OrderResponse](t, rec)
	require.Equal(t, "submitted", submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)

	// Customers cannot approve their own orders.
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/approve", created.ID), customer, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Out-of-sequence transitions conflict.
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/orders/%s/submit", created.ID), customer, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminRouteGate(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.login(t, "customer@mercy.test")
	admin := ts.login(t, "admin@medsource.test")
	super := ts.login(t, "root@medsource.test")

	rec := ts.do(t, http.MethodGet, "/api/admin/policy", customer, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/policy", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rules := decode[[]PolicyRuleResponse](t, rec)
	require.Len(t, rules, len(rbac.DefaultPolicy()))

	// Policy writes need SuperAdmin.
	tighten := PolicyRuleRequest{Resource: "product", Action: "create", Context: "all", MinLevel: int(rbac.RoleSuperAdmin)}
	rec = ts.do(t, http.MethodPut, "/api/admin/policy", admin, tighten)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/admin/policy", super, tighten)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The tightened threshold takes effect immediately.
	rec = ts.do(t, http.MethodPost, "/api/products", admin, ProductParams{
		SKU: "MSK-300", Name: "Masks", Category: "ppe", UnitPriceCent: 500,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNoneContextGrantDeniesScopedReads(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.login(t, "customer@mercy.test")
	super := ts.login(t, "root@medsource.test")

	// Rewrite order reads so customers hold only a none-context grant.
	for _, rule := range []PolicyRuleRequest{
		{Resource: "order", Action: "read", Context: "own", MinLevel: int(rbac.RoleSuperAdmin)},
		{Resource: "order", Action: "read", Context: "none", MinLevel: int(rbac.RoleCustomer)},
	} {
		rec := ts.do(t, http.MethodPut, "/api/admin/policy", super, rule)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	// A none grant confers no data visibility: 403, not a scope failure.
	rec := ts.do(t, http.MethodGet, "/api/orders", customer, nil)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
}

func TestAnalyticsEndpointGating(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.login(t, "customer@mercy.test")
	admin := ts.login(t, "admin@medsource.test")

	rec := ts.do(t, http.MethodGet, "/api/analytics/revenue-summary", customer, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/analytics/revenue-summary", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[analytics.RevenueSummary](t, rec)
	require.Equal(t, string(rbac.ContextAll), summary.Context)
	require.Zero(t, summary.OrderCount)
}

func TestLogoutRevokesCredentials(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "admin@medsource.test")

	rec := ts.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/auth/whoami", token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
