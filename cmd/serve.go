package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/db/bunx"
	"github.com/medsourcepro/msapi/internal/repository"
	"github.com/medsourcepro/msapi/internal/server"
	"github.com/medsourcepro/msapi/internal/services/accounts"
	"github.com/medsourcepro/msapi/internal/services/analytics"
	"github.com/medsourcepro/msapi/internal/services/catalog"
	"github.com/medsourcepro/msapi/internal/services/iam"
	"github.com/medsourcepro/msapi/internal/services/orders"
	"github.com/medsourcepro/msapi/internal/services/quotes"
	"github.com/medsourcepro/msapi/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Starts the HTTP server with all API endpoints mounted behind RBAC guards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.AuthEnabled() {
			return errors.New("JWT_SECRET must be set to start the server")
		}

		shutdownTelemetry, err := telemetry.Init(cmd.Context(), cfg.Observability)
		if err != nil {
			return fmt.Errorf("initialize telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				log.Printf("Warning: telemetry shutdown failed: %v", err)
			}
		}()

		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		log.Printf("Connected to database")

		userRepo := repository.NewBunUserRepository(db)
		sessionRepo := repository.NewBunSessionRepository(db)
		revokedJTIRepo := repository.NewBunRevokedJTIRepository(db)
		serviceAccountRepo := repository.NewBunServiceAccountRepository(db)
		productRepo := repository.NewBunProductRepository(db)
		orderRepo := repository.NewBunOrderRepository(db)
		quoteRepo := repository.NewBunQuoteRepository(db)
		accountRepo := repository.NewBunAccountRepository(db)

		enforcer, err := auth.InitEnforcer(db)
		if err != nil {
			return fmt.Errorf("configure casbin enforcer: %w", err)
		}

		issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("configure token issuer: %w", err)
		}

		iamSvc, err := iam.NewService(iam.Dependencies{
			Users:           userRepo,
			ServiceAccounts: serviceAccountRepo,
			Sessions:        sessionRepo,
			RevokedJTIs:     revokedJTIRepo,
			Enforcer:        enforcer,
			Issuer:          issuer,
		}, iam.Config{
			SessionTTL:        cfg.Auth.SessionTTL,
			DecisionCacheSize: cfg.Cache.DecisionCacheSize,
		})
		if err != nil {
			return fmt.Errorf("create IAM service: %w", err)
		}

		catalogSvc, err := catalog.NewService(catalog.Dependencies{Products: productRepo}, catalog.Config{
			ProductCacheSize: cfg.Cache.ProductCacheSize,
			SchemaCacheSize:  cfg.Cache.SchemaCacheSize,
		})
		if err != nil {
			return fmt.Errorf("create catalog service: %w", err)
		}

		orderSvc, err := orders.NewService(orders.Dependencies{
			Orders:   orderRepo,
			Products: productRepo,
			Accounts: accountRepo,
		})
		if err != nil {
			return fmt.Errorf("create order service: %w", err)
		}

		quoteSvc, err := quotes.NewService(quotes.Dependencies{
			Quotes:   quoteRepo,
			Orders:   orderRepo,
			Products: productRepo,
			Accounts: accountRepo,
		}, quotes.Config{
			ApprovalDiscountThreshold: cfg.Quotes.ApprovalDiscountPct,
		})
		if err != nil {
			return fmt.Errorf("create quote service: %w", err)
		}

		accountSvc, err := accounts.NewService(accountRepo)
		if err != nil {
			return fmt.Errorf("create account service: %w", err)
		}

		analyticsSvc, err := analytics.NewService(analytics.Dependencies{
			Orders:     orderRepo,
			Authorizer: iamSvc,
		})
		if err != nil {
			return fmt.Errorf("create analytics service: %w", err)
		}

		serverMetrics, err := telemetry.NewServerMetrics()
		if err != nil {
			return fmt.Errorf("create server metrics: %w", err)
		}
		authMetrics, err := telemetry.NewAuthMetrics()
		if err != nil {
			return fmt.Errorf("create auth metrics: %w", err)
		}

		router := server.NewRouter(server.RouterOptions{
			IAM:           iamSvc,
			Catalog:       catalogSvc,
			Orders:        orderSvc,
			Quotes:        quoteSvc,
			Accounts:      accountSvc,
			Analytics:     analyticsSvc,
			ServerMetrics: serverMetrics,
			AuthMetrics:   authMetrics,
		})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s", cfg.ServerAddr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Printf("Received signal %v, shutting down gracefully", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			log.Printf("Server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
