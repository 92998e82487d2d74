package quotes

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
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

type stubQuoteRepo struct {
	mu     sync.Mutex
	quotes map[string]*models.Quote

	// readBarrier, when set, holds every GetByID until all expected readers
	// have loaded their copy, forcing transition races.
	readBarrier *sync.WaitGroup
}

func (r *stubQuoteRepo) Create(_ context.Context, quote *models.Quote) error {
	if quote.ID == "" {
		quote.ID = bunx.NewUUIDv7()
	}
	for _, item := range quote.Items {
		if err := item.ValidateForCreate(); err != nil {
			return err
		}
		if item.ID == "" {
			item.ID = bunx.NewUUIDv7()
		}
		item.QuoteID = quote.ID
	}
	quote.TotalCent = quote.ComputeTotal()
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *quote
	r.quotes[quote.ID] = &cp
	return nil
}

func (r *stubQuoteRepo) GetByID(_ context.Context, id string) (*models.Quote, error) {
	r.mu.Lock()
	quote, ok := r.quotes[id]
	if !ok {
		r.mu.Unlock()
		return nil, repository.ErrNotFound
	}
	cp := *quote
	r.mu.Unlock()

	if r.readBarrier != nil {
		r.readBarrier.Done()
		r.readBarrier.Wait()
	}
	return &cp, nil
}

func (r *stubQuoteRepo) UpdateStatus(_ context.Context, quote *models.Quote, prev models.QuoteStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.quotes[quote.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != prev {
		return repository.ErrStatusConflict
	}
	quote.UpdatedAt = time.Now()
	cp := *quote
	r.quotes[quote.ID] = &cp
	return nil
}

func (r *stubQuoteRepo) List(_ context.Context, scope repository.Scope) ([]models.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Quote
	for _, quote := range r.quotes {
		if scope.Visible(quote.OwnerID, quote.TeamID, &quote.AccountID) {
			out = append(out, *quote)
		}
	}
	return out, nil
}

func (r *stubQuoteRepo) ReplaceItems(_ context.Context, quoteID string, items []*models.QuoteItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	quote, ok := r.quotes[quoteID]
	if !ok {
		return repository.ErrNotFound
	}
	quote.Items = items
	quote.TotalCent = quote.ComputeTotal()
	return nil
}

type stubOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func (r *stubOrderRepo) Create(_ context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = bunx.NewUUIDv7()
	}
	for _, item := range order.Items {
		if err := item.ValidateForCreate(); err != nil {
			return err
		}
		if item.ID == "" {
			item.ID = bunx.NewUUIDv7()
		}
		item.OrderID = order.ID
	}
	order.TotalCent = order.ComputeTotal()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepo) GetByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		return o, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *stubOrderRepo) UpdateStatus(_ context.Context, _ *models.Order, _ models.OrderStatus) error {
	return nil
}
func (r *stubOrderRepo) List(_ context.Context, _ repository.Scope) ([]models.Order, error) {
	return nil, nil
}
func (r *stubOrderRepo) ListSince(_ context.Context, _ repository.Scope, _ time.Time) ([]models.Order, error) {
	return nil, nil
}
func (r *stubOrderRepo) ReplaceItems(_ context.Context, _ string, _ []*models.OrderItem) error {
	return nil
}

type stubProductRepo struct {
	products map[string]*models.Product
}

func (r *stubProductRepo) Create(_ context.Context, p *models.Product) error {
	if p.ID == "" {
		p.ID = bunx.NewUUIDv7()
	}
	r.products[p.ID] = p
	return nil
}

func (r *stubProductRepo) GetByID(_ context.Context, id string) (*models.Product, error) {
	if p, ok := r.products[id]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubProductRepo) GetBySKU(_ context.Context, sku string) (*models.Product, error) {
	for _, p := range r.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubProductRepo) Update(_ context.Context, _ *models.Product) error { return nil }
func (r *stubProductRepo) Delete(_ context.Context, _ string) error          { return nil }
func (r *stubProductRepo) List(_ context.Context, _ repository.ProductFilter) ([]models.Product, error) {
	return nil, nil
}

type stubAccountRepo struct {
	accounts map[string]*models.Account
}

func (r *stubAccountRepo) Create(_ context.Context, a *models.Account) error {
	if a.ID == "" {
		a.ID = bunx.NewUUIDv7()
	}
	r.accounts[a.ID] = a
	return nil
}

func (r *stubAccountRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	if a, ok := r.accounts[id]; ok {
		return a, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubAccountRepo) Update(_ context.Context, _ *models.Account) error { return nil }
func (r *stubAccountRepo) Delete(_ context.Context, _ string) error          { return nil }
func (r *stubAccountRepo) List(_ context.Context, _ repository.Scope) ([]models.Account, error) {
	return nil, nil
}

// =========================================================================
// Fixtures
// =========================================================================

type testEnv struct {
	svc      Service
	quotes   *stubQuoteRepo
	orders   *stubOrderRepo
	account  *models.Account
	gloves   *models.Product
	customer auth.Principal
	rep      auth.Principal
	manager  auth.Principal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	quotes := &stubQuoteRepo{quotes: make(map[string]*models.Quote)}
	orders := &stubOrderRepo{orders: make(map[string]*models.Order)}
	products := &stubProductRepo{products: make(map[string]*models.Product)}
	accounts := &stubAccountRepo{accounts: make(map[string]*models.Account)}

	teamID := bunx.NewUUIDv7()
	account := &models.Account{Name: "Lakeside Clinic", Type: "clinic", TeamID: &teamID}
	require.NoError(t, accounts.Create(ctx, account))

	gloves := &models.Product{SKU: "GLV-100", Name: "Nitrile Exam Gloves", Category: "ppe", UnitPriceCent: 1000}
	require.NoError(t, products.Create(ctx, gloves))

	svc, err := NewService(
		Dependencies{Quotes: quotes, Orders: orders, Products: products, Accounts: accounts},
		Config{ApprovalDiscountThreshold: 10},
	)
	require.NoError(t, err)

	return &testEnv{
		svc:     svc,
		quotes:  quotes,
		orders:  orders,
		account: account,
		gloves:  gloves,
		customer: auth.Principal{
			ID: bunx.NewUUIDv7(), Level: rbac.RoleCustomer,
			AccountID: account.ID, Type: auth.PrincipalTypeUser,
		},
		rep:     auth.Principal{ID: bunx.NewUUIDv7(), Level: rbac.RoleSalesRep, TeamID: teamID},
		manager: auth.Principal{ID: bunx.NewUUIDv7(), Level: rbac.RoleSalesManager, TeamID: teamID},
	}
}

func allScope() repository.Scope {
	return repository.Scope{Context: string(rbac.ContextAll)}
}

func (e *testEnv) requestQuote(t *testing.T) *models.Quote {
	t.Helper()
	quote, err := e.svc.RequestQuote(context.Background(), e.customer, RequestQuoteParams{
		AccountID: e.account.ID,
		Items:     []ItemParams{{ProductID: e.gloves.ID, Quantity: 10}},
	})
	require.NoError(t, err)
	return quote
}

// =========================================================================
// Tests
// =========================================================================

func TestRequestQuote(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	quote := env.requestQuote(t)
	require.Equal(t, models.QuoteStatusRequested, quote.Status)
	require.NotEmpty(t, quote.Number)
	require.Equal(t, int64(10000), quote.TotalCent)
	require.Zero(t, quote.DiscountPercent)

	_, err := env.svc.RequestQuote(context.Background(), env.customer, RequestQuoteParams{AccountID: env.account.ID})
	require.ErrorIs(t, err, ErrEmptyQuote)
}

func TestPriceQuoteAppliesDiscount(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	quote := env.requestQuote(t)

	priced, err := env.svc.PriceQuote(ctx, allScope(), quote.ID, PriceParams{DiscountPercent: 5})
	require.NoError(t, err)
	require.Equal(t, models.QuoteStatusPriced, priced.Status)
	require.NotNil(t, priced.PricedAt)
	require.Equal(t, int64(9500), priced.TotalCent)

	// Pricing is a one-way step from requested.
	_, err = env.svc.PriceQuote(ctx, allScope(), quote.ID, PriceParams{DiscountPercent: 8})
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = env.svc.PriceQuote(ctx, allScope(), env.requestQuote(t).ID, PriceParams{DiscountPercent: 101})
	require.Error(t, err)
}

func TestConvertQuoteWithinThreshold(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	quote := env.requestQuote(t)
	_, err := env.svc.PriceQuote(ctx, allScope(), quote.ID, PriceParams{DiscountPercent: 10})
	require.NoError(t, err)

	converted, order, err := env.svc.ConvertQuote(ctx, allScope(), quote.ID)
	require.NoError(t, err)
	require.Equal(t, models.QuoteStatusConverted, converted.Status)
	require.NotNil(t, converted.ConvertedAt)

	require.Equal(t, models.OrderStatusDraft, order.Status)
	require.NotNil(t, order.QuoteID)
	require.Equal(t, quote.ID, *order.QuoteID)
	require.Equal(t, quote.AccountID, order.AccountID)

	// The 10% discount lands on the line price: 1000 -> 900.
	require.Len(t, order.Items, 1)
	require.Equal(t, int64(900), order.Items[0].UnitPriceCent)
	require.Equal(t, int64(9000), order.TotalCent)

	// Converted is terminal.
	_, _, err = env.svc.ConvertQuote(ctx, allScope(), quote.ID)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestConvertQuoteRequiresApprovalAboveThreshold(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	quote := env.requestQuote(t)
	_, err := env.svc.PriceQuote(ctx, allScope(), quote.ID, PriceParams{DiscountPercent: 25})
	require.NoError(t, err)

	_, _, err = env.svc.ConvertQuote(ctx, allScope(), quote.ID)
	require.ErrorIs(t, err, ErrApprovalRequired)

	approved, err := env.svc.ApproveQuote(ctx, allScope(), env.manager, quote.ID)
	require.NoError(t, err)
	require.Equal(t, models.QuoteStatusApproved, approved.Status)
	require.Equal(t, env.manager.ID, *approved.ApprovedBy)

	_, order, err := env.svc.ConvertQuote(ctx, allScope(), quote.ID)
	require.NoError(t, err)
	require.Equal(t, int64(750), order.Items[0].UnitPriceCent)
}

func TestConcurrentConvertCreatesOneOrder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	quote := env.requestQuote(t)
	_, err := env.svc.PriceQuote(ctx, allScope(), quote.ID, PriceParams{DiscountPercent: 5})
	require.NoError(t, err)

	// Both converters load the priced quote before either writes; the
	// status predicate on the claim admits exactly one.
	var reads sync.WaitGroup
	reads.Add(2)
	env.quotes.readBarrier = &reads

	var succeeded, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := env.svc.ConvertQuote(ctx, allScope(), quote.ID)
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case errors.Is(err, repository.ErrStatusConflict):
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()
	env.quotes.readBarrier = nil

	require.EqualValues(t, 1, succeeded, "a priced quote must convert at most once")
	require.EqualValues(t, 1, conflicts)
	require.Equal(t, 1, env.orders.count())

	got, err := env.svc.GetQuote(ctx, allScope(), quote.ID)
	require.NoError(t, err)
	require.Equal(t, models.QuoteStatusConverted, got.Status)
}

func TestConvertQuoteHonorsExpiry(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	quote := env.requestQuote(t)
	expired := time.Now().Add(-time.Hour)
	_, err := env.svc.PriceQuote(ctx, allScope(), quote.ID, PriceParams{DiscountPercent: 5, ExpiresAt: &expired})
	require.NoError(t, err)

	_, _, err = env.svc.ConvertQuote(ctx, allScope(), quote.ID)
	require.ErrorIs(t, err, ErrQuoteExpired)
}

func TestRejectQuote(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	quote := env.requestQuote(t)
	rejected, err := env.svc.RejectQuote(ctx, allScope(), quote.ID)
	require.NoError(t, err)
	require.Equal(t, models.QuoteStatusRejected, rejected.Status)

	// Rejected is terminal.
	_, err = env.svc.PriceQuote(ctx, allScope(), quote.ID, PriceParams{DiscountPercent: 5})
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	_, _, err = env.svc.ConvertQuote(ctx, allScope(), quote.ID)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestQuoteScope(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	quote := env.requestQuote(t)

	own := repository.Scope{
		Context:   string(rbac.ContextOwn),
		UserID:    env.customer.ID,
		AccountID: env.customer.AccountID,
	}
	got, err := env.svc.GetQuote(ctx, own, quote.ID)
	require.NoError(t, err)
	require.Equal(t, quote.ID, got.ID)

	foreign := repository.Scope{
		Context:   string(rbac.ContextOwn),
		UserID:    bunx.NewUUIDv7(),
		AccountID: bunx.NewUUIDv7(),
	}
	_, err = env.svc.GetQuote(ctx, foreign, quote.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)

	listed, err := env.svc.ListQuotes(ctx, repository.Scope{
		Context: string(rbac.ContextTeam),
		TeamID:  *env.account.TeamID,
	})
	require.NoError(t, err)
	require.Len(t, listed, 1)
}
