package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	msmiddleware "github.com/medsourcepro/msapi/internal/middleware"
	"github.com/medsourcepro/msapi/internal/rbac"
	"github.com/medsourcepro/msapi/internal/services/accounts"
	"github.com/medsourcepro/msapi/internal/services/analytics"
	"github.com/medsourcepro/msapi/internal/services/catalog"
	"github.com/medsourcepro/msapi/internal/services/iam"
	"github.com/medsourcepro/msapi/internal/services/orders"
	"github.com/medsourcepro/msapi/internal/services/quotes"
	"github.com/medsourcepro/msapi/internal/telemetry"
)

// RouterOptions controls the construction of the HTTP router. IAM is
// required; route groups for the other services are mounted only when the
// service is present, so tests can build partial routers.
type RouterOptions struct {
	IAM       iam.Service
	Catalog   catalog.Service
	Orders    orders.Service
	Quotes    quotes.Service
	Accounts  accounts.Service
	Analytics analytics.Service

	ServerMetrics *telemetry.ServerMetrics
	AuthMetrics   *telemetry.AuthMetrics

	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware and every handler
// mounted behind its permission guard.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	if opts.ServerMetrics != nil {
		r.Use(msmiddleware.Metrics(opts.ServerMetrics))
	}

	r.Use(msmiddleware.Authenticate(msmiddleware.AuthnDependencies{
		IAM:     opts.IAM,
		Metrics: opts.AuthMetrics,
	}))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	r.Post("/auth/login", HandleLogin(opts.IAM))
	r.Post("/auth/token", HandleToken(opts.IAM))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/logout", HandleLogout(opts.IAM))
		r.Get("/auth/whoami", HandleWhoAmI())
		r.Get("/auth/sessions", HandleListMySessions(opts.IAM))
		r.Delete("/auth/sessions/{id}", HandleRevokeMySession(opts.IAM))

		if opts.Catalog != nil {
			r.Route("/products", func(r chi.Router) {
				read := msmiddleware.RequirePermission(opts.IAM, rbac.ResourceProduct, rbac.ActionRead, rbac.ContextNone)
				r.With(read).Get("/", HandleListProducts(opts.Catalog))
				r.With(read).Get("/{id}", HandleGetProduct(opts.Catalog))

				r.With(msmiddleware.RequirePermission(opts.IAM, rbac.ResourceProduct, rbac.ActionCreate, rbac.ContextAll)).
					Post("/", HandleCreateProduct(opts.Catalog))
				r.With(msmiddleware.RequirePermission(opts.IAM, rbac.ResourceProduct, rbac.ActionCreate, rbac.ContextAll)).
					Post("/import", HandleImportProducts(opts.Catalog))

				write := msmiddleware.RequirePermission(opts.IAM, rbac.ResourceProduct, rbac.ActionWrite, rbac.ContextAll)
				r.With(write).Put("/{id}", HandleUpdateProduct(opts.Catalog))
				r.With(write).Post("/{id}/discontinue", HandleDiscontinueProduct(opts.Catalog))

				r.With(msmiddleware.RequirePermission(opts.IAM, rbac.ResourceProduct, rbac.ActionDelete, rbac.ContextAll)).
					Delete("/{id}", HandleDeleteProduct(opts.Catalog))
			})
		}

		if opts.Orders != nil {
			r.Route("/orders", func(r chi.Router) {
				r.With(msmiddleware.RequirePermission(opts.IAM, rbac.ResourceOrder, rbac.ActionCreate, rbac.ContextOwn)).
					Post("/", HandleCreateOrder(opts.Orders))

				// Read and lifecycle handlers resolve the caller's broadest
				// context themselves; a 403 means no grant at any context.
				r.Get("/", HandleListOrders(opts.IAM, opts.Orders))
				r.Get("/{id}", HandleGetOrder(opts.IAM, opts.Orders))
				r.Put("/{id}/items", HandleUpdateOrderItems(opts.IAM, opts.Orders))
				r.Post("/{id}/submit", HandleSubmitOrder(opts.IAM, opts.Orders))
				r.Post("/{id}/approve", HandleApproveOrder(opts.IAM, opts.Orders))
				r.Post("/{id}/fulfill", HandleFulfillOrder(opts.IAM, opts.Orders))
				r.Post("/{id}/ship", HandleShipOrder(opts.IAM, opts.Orders))
				r.Post("/{id}/cancel", HandleCancelOrder(opts.IAM, opts.Orders))
			})
		}

		if opts.Quotes != nil {
			r.Route("/quotes", func(r chi.Router) {
				r.With(msmiddleware.RequirePermission(opts.IAM, rbac.ResourceQuote, rbac.ActionCreate, rbac.ContextOwn)).
					Post("/", HandleRequestQuote(opts.Quotes))

				r.Get("/", HandleListQuotes(opts.IAM, opts.Quotes))
				r.Get("/{id}", HandleGetQuote(opts.IAM, opts.Quotes))
				r.Post("/{id}/price", HandlePriceQuote(opts.IAM, opts.Quotes))
				r.Post("/{id}/approve", HandleApproveQuote(opts.IAM, opts.Quotes))
				r.Post("/{id}/reject", HandleRejectQuote(opts.IAM, opts.Quotes))
				r.Post("/{id}/convert", HandleConvertQuote(opts.IAM, opts.Quotes))
			})
		}

		if opts.Accounts != nil {
			r.Route("/accounts", func(r chi.Router) {
				r.With(msmiddleware.RequirePermission(opts.IAM, rbac.ResourceAccount, rbac.ActionCreate, rbac.ContextAll)).
					Post("/", HandleCreateAccount(opts.Accounts))

				r.Get("/", HandleListAccounts(opts.IAM, opts.Accounts))
				r.Get("/{id}", HandleGetAccount(opts.IAM, opts.Accounts))
				r.Put("/{id}", HandleUpdateAccount(opts.IAM, opts.Accounts))

				r.With(msmiddleware.RequirePermission(opts.IAM, rbac.ResourceAccount, rbac.ActionDelete, rbac.ContextAll)).
					Delete("/{id}", HandleDeleteAccount(opts.Accounts))
			})
		}

		if opts.Analytics != nil {
			r.Route("/analytics", func(r chi.Router) {
				r.Get("/revenue-summary", HandleRevenueSummary(opts.Analytics))
				r.Get("/top-products", HandleTopProducts(opts.Analytics))
			})
		}

		r.Route("/admin", func(r chi.Router) {
			r.Use(msmiddleware.RequireLevel(rbac.RoleAdmin))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", HandleListUsers(opts.IAM))
				r.Post("/", HandleCreateUser(opts.IAM))
				r.Get("/{id}", HandleGetUser(opts.IAM))
				r.Put("/{id}/role", HandleSetUserRole(opts.IAM))
				r.Post("/{id}/disable", HandleDisableUser(opts.IAM))
				r.Get("/{id}/sessions", HandleListUserSessions(opts.IAM))
				r.Delete("/{id}/sessions", HandleRevokeUserSessions(opts.IAM))
			})

			r.Route("/service-accounts", func(r chi.Router) {
				sa := msmiddleware.RequirePermission(opts.IAM, rbac.ResourceServiceAccount, rbac.ActionCreate, rbac.ContextAll)
				r.Get("/", HandleListServiceAccounts(opts.IAM))
				r.With(sa).Post("/", HandleCreateServiceAccount(opts.IAM))
				r.With(sa).Post("/{clientID}/rotate", HandleRotateServiceAccountSecret(opts.IAM))
				r.With(sa).Delete("/{clientID}", HandleRevokeServiceAccount(opts.IAM))
			})

			r.Route("/policy", func(r chi.Router) {
				write := msmiddleware.RequirePermission(opts.IAM, rbac.ResourcePolicy, rbac.ActionWrite, rbac.ContextAll)
				r.Get("/", HandleListPolicy(opts.IAM))
				r.With(write).Put("/", HandleSetPolicy(opts.IAM))
				r.With(write).Delete("/", HandleRemovePolicy(opts.IAM))
			})
		})
	})

	return r
}
