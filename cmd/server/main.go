package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/amica-legal/amica/internal"
	"github.com/amica-legal/amica/internal/account"
	"github.com/amica-legal/amica/internal/billing"
	"github.com/amica-legal/amica/internal/domain"
	"github.com/amica-legal/amica/internal/entitlement"
	"github.com/amica-legal/amica/internal/events"
	"github.com/amica-legal/amica/internal/handler"
	"github.com/amica-legal/amica/internal/middleware"
	"github.com/amica-legal/amica/internal/reconciler"
	"github.com/amica-legal/amica/internal/router"
	"github.com/amica-legal/amica/internal/store"
	"github.com/amica-legal/amica/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	logger.Info("starting amica billing service",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Migrations run over database/sql because goose requires it. The
	// application itself talks to Postgres through pgxpool.
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return fmt.Errorf("pinging database: %w", err)
	}
	if err := internal.RunMigrations(sqlDB); err != nil {
		sqlDB.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	sqlDB.Close()
	logger.Info("database migrations applied")

	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)

	stripeCfg := billing.StripeConfig{
		APIKey:         cfg.Stripe.SecretKey,
		WebhookSecret:  cfg.Stripe.WebhookSecret,
		TimeoutSeconds: cfg.Stripe.TimeoutSeconds,
	}
	provider, err := billing.NewStripeProvider(stripeCfg)
	if err != nil {
		return fmt.Errorf("creating stripe provider: %w", err)
	}
	logger.Info("stripe provider initialized", "test_mode", stripeCfg.IsTestMode())

	var cache entitlement.TierCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("pinging redis: %w", err)
		}
		defer client.Close()
		cache = entitlement.NewRedisCache(client)
		logger.Info("redis entitlement cache enabled", "addr", cfg.Redis.Addr)
	} else {
		cache = entitlement.NewMemoryCache()
		logger.Info("in-memory entitlement cache enabled")
	}

	resolver := entitlement.NewResolver(st, cache,
		time.Duration(cfg.Resolver.CacheTTLSeconds)*time.Second, logger)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATS.Enabled {
		conn, err := nats.Connect(cfg.NATS.URL,
			nats.Name("amica-billing"),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer conn.Drain()
		publisher = events.NewNATSPublisher(conn)

		// Other instances reconcile webhooks too. Drop our cached copy
		// whenever any instance changes an entitlement.
		sub, err := events.SubscribeEntitlementChanged(conn, logger, func(evt events.EntitlementChanged) {
			resolver.Invalidate(context.Background(), evt.UserID)
		})
		if err != nil {
			return fmt.Errorf("subscribing to entitlement changes: %w", err)
		}
		defer sub.Unsubscribe()
		logger.Info("nats publisher enabled", "url", cfg.NATS.URL)
	}

	prices := priceTable(cfg.Prices)
	logger.Info("price table loaded", "mapped_prices", len(prices))

	businessMetrics := telemetry.NewBusinessMetrics("amica")
	accountSvc := account.NewService(st, provider, businessMetrics, logger)
	rec := reconciler.New(st, prices, publisher, resolver, businessMetrics, logger)

	webhookHandler := handler.NewWebhookHandler(provider, cfg.Stripe.WebhookSecret, rec, logger)
	apiHandler := handler.NewAPIHandler(accountSvc, resolver, logger)

	httpMetrics := middleware.NewMetrics("amica")

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		middleware.WithRequestLogger(logger),
		httpMetrics.Middleware,
		router.Logger(logger),
		middleware.MaxBodySize(),
		middleware.Timeout(),
	)

	r.Get("/health", handleHealth(pool))
	r.Get("/metrics", httpMetrics.Handler().ServeHTTP)

	r.Post("/webhooks/stripe", webhookHandler.HandleWebhook)

	api := r.Group(middleware.RateLimit(middleware.DefaultRateLimiterConfig()))
	api.Get("/api/entitlements/{userID}", apiHandler.GetEntitlement)
	api.Get("/api/entitlements/{userID}/capabilities/{capability}", apiHandler.CheckCapability)
	api.Post("/api/billing/checkout", apiHandler.CreateCheckout)
	api.Post("/api/billing/portal", apiHandler.CreatePortal)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// priceTable builds the Stripe price to tier mapping from configuration.
// Unset price IDs are skipped so partial catalogs work in dev.
func priceTable(prices internal.PricesConfig) entitlement.PriceTable {
	table := entitlement.PriceTable{}
	add := func(priceID string, tier domain.Tier) {
		if priceID != "" {
			table[priceID] = tier
		}
	}
	add(prices.Essential, domain.TierEssential)
	add(prices.Professional, domain.TierProfessional)
	add(prices.Attorney, domain.TierAttorney)
	add(prices.Enterprise, domain.TierEnterprise)
	return table
}

func handleHealth(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			handler.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
		handler.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
