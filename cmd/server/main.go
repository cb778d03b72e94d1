package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/hireready/internal"
	"github.com/DukeRupert/hireready/internal/ai"
	"github.com/DukeRupert/hireready/internal/ai/anthropic"
	"github.com/DukeRupert/hireready/internal/ai/mock"
	"github.com/DukeRupert/hireready/internal/billing"
	"github.com/DukeRupert/hireready/internal/cache"
	"github.com/DukeRupert/hireready/internal/handler"
	"github.com/DukeRupert/hireready/internal/identity"
	"github.com/DukeRupert/hireready/internal/jobs"
	"github.com/DukeRupert/hireready/internal/metrics"
	"github.com/DukeRupert/hireready/internal/middleware"
	"github.com/DukeRupert/hireready/internal/repository"
	"github.com/DukeRupert/hireready/internal/service"
	"github.com/DukeRupert/hireready/internal/storage"
	"github.com/DukeRupert/hireready/internal/worker"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := internal.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	store := repository.NewStore(db)

	// ==========================================================================
	// Supporting infrastructure
	// ==========================================================================

	analysisCache, err := newCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cache initialization failed: %w", err)
	}
	defer analysisCache.Close()
	logger.Info("Cache ready", "provider", cfg.CacheProvider)

	archiveStore, err := newArchiveStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("archive storage initialization failed: %w", err)
	}
	archive := storage.NewArchive(archiveStore, logger)
	logger.Info("Webhook archive ready", "provider", cfg.ArchiveProvider)

	tokenVerifier, err := newTokenVerifier(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("identity verifier initialization failed: %w", err)
	}

	clerkWebhooks, err := identity.NewWebhookVerifier(cfg.ClerkWebhookSecret)
	if err != nil {
		return fmt.Errorf("clerk webhook verifier initialization failed: %w", err)
	}
	if cfg.ClerkWebhookSecret == "" {
		logger.Warn("CLERK_WEBHOOK_SECRET not set, identity webhooks will be rejected")
	}

	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(billing.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			TopUpPriceID:  cfg.StripeTopUpPriceID,
			TopUpMinutes:  cfg.TopUpMinutes,
		})
		logger.Info("Stripe billing enabled", "topup_minutes", cfg.TopUpMinutes)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, top-ups are disabled")
	}

	evaluator, err := newEvaluator(cfg, logger)
	if err != nil {
		return fmt.Errorf("evaluation provider initialization failed: %w", err)
	}

	// ==========================================================================
	// Services
	// ==========================================================================

	subscriptionService := service.NewSubscriptionService(store, logger)
	identityService := service.NewIdentityService(store, subscriptionService, logger)
	usageService := service.NewUsageService(store, logger)
	creditService := service.NewCreditService(store, logger)
	couponService := service.NewCouponService(store, logger)
	sessionService := service.NewSessionService(store, usageService, cfg.SessionStaleAfter, logger)
	analysisService := service.NewAnalysisService(store, usageService, analysisCache, logger)

	// ==========================================================================
	// Background work
	// ==========================================================================

	var jobWorker *worker.Worker
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Concurrency = cfg.WorkerConcurrency
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout

		jobWorker, err = worker.New(store, workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		jobWorker.Register(jobs.NewEvaluateSessionHandler(store, evaluator, analysisService, cfg.AIRequestTimeout, logger))
		jobWorker.Start(ctx)
	} else {
		logger.Warn("Worker disabled, analysis requests will queue until a worker runs")
	}

	go service.RunSessionSweeper(ctx, sessionService, cfg.SessionSweepInterval, logger)

	// With Redis the per-user budget is shared across instances.
	var limiterRedis *redis.Client
	if rc, ok := analysisCache.(*cache.RedisCache); ok {
		limiterRedis = rc.Client()
	}
	limiter := middleware.NewRateLimiter(cfg.APIRateLimit, cfg.APIRateWindow, limiterRedis, logger)
	go limiter.Run(ctx)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	authMw := middleware.NewAuthMiddleware(tokenVerifier, identityService, logger)
	rateLimitMw := middleware.NewRateLimitMiddleware(limiter, logger)
	adminMw := middleware.NewAdminMiddleware(cfg.AdminEmails, logger)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, logger)
	if !metricsAuth.Enabled() && !cfg.IsDevelopment() {
		logger.Warn("METRICS_USERNAME/METRICS_PASSWORD not set, /metrics is unprotected")
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			logger.Error("Health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Authenticated API, rate limited per user
	requireUser := middleware.Stack(authMw.RequireUser, rateLimitMw.Limit)
	requireAdmin := middleware.Stack(requireUser, adminMw.RequireAdmin)

	handler.NewUserHandler(identityService, logger).RegisterRoutes(mux, requireUser)
	handler.NewUsageHandler(usageService, logger).RegisterRoutes(mux, requireUser)
	handler.NewSessionHandler(sessionService, logger).RegisterRoutes(mux, requireUser)
	handler.NewSubscriptionHandler(subscriptionService, logger).RegisterRoutes(mux, requireUser)
	handler.NewCouponHandler(couponService, logger).RegisterRoutes(mux, requireUser, requireAdmin)
	handler.NewAnalysisHandler(analysisService, logger).RegisterRoutes(mux, requireUser)
	handler.NewBillingHandler(billingService, cfg.BaseURL, logger).RegisterRoutes(mux, requireUser)

	// Provider webhooks authenticate by signature
	handler.NewWebhookHandler(handler.WebhookDeps{
		ClerkVerifier: clerkWebhooks,
		Billing:       billingService,
		Identity:      identityService,
		Subscriptions: subscriptionService,
		Credits:       creditService,
		Archive:       archive,
	}, logger).RegisterRoutes(mux)

	// Outermost first: request IDs and logs wrap everything
	root := middleware.Stack(
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		metrics.Middleware,
		middleware.NewSecurityHeadersMiddleware(!cfg.IsDevelopment()).Handler,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		// Long enough for a top-up checkout round trip to Stripe.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if jobWorker != nil {
		jobWorker.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func newCache(ctx context.Context, cfg *internal.Config) (cache.Cache, error) {
	if cfg.CacheProvider == "redis" {
		return cache.NewRedis(ctx, cache.RedisConfig{
			URL:    cfg.RedisURL,
			TTL:    cfg.CacheTTL,
			Prefix: "hireready:",
		})
	}
	return cache.NewMemory(cfg.CacheMaxEntries, cfg.CacheTTL), nil
}

func newArchiveStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.ArchiveProvider == storage.ProviderR2 {
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
		}, logger)
	}
	return storage.NewLocalStorage(storage.LocalConfig{BasePath: cfg.LocalArchivePath}, logger)
}

func newTokenVerifier(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (identity.TokenVerifier, error) {
	if cfg.ClerkIssuer == "" {
		logger.Warn("CLERK_ISSUER not set, every API request will be rejected")
		return identity.RejectAll{}, nil
	}
	return identity.NewClerkVerifier(ctx, cfg.ClerkIssuer, cfg.ClerkPlanClaim)
}

func newEvaluator(cfg *internal.Config, logger *slog.Logger) (ai.Evaluator, error) {
	if cfg.AIProvider == "anthropic" {
		logger.Info("Using Anthropic evaluation provider", "model", cfg.AnthropicModel)
		return anthropic.New(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
	}
	logger.Info("Using mock evaluation provider")
	return mock.New(logger), nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
