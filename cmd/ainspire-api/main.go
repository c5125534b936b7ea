// Package main is the entry point for the ainspire-api server.
// Note: User management, OAuth, sessions, and billing are handled by Clerk.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ErGaurav155/ainspiretech-api/internal/auth"
	"github.com/ErGaurav155/ainspiretech-api/internal/config"
	"github.com/ErGaurav155/ainspiretech-api/internal/constants"
	"github.com/ErGaurav155/ainspiretech-api/internal/database"
	"github.com/ErGaurav155/ainspiretech-api/internal/http/handlers"
	"github.com/ErGaurav155/ainspiretech-api/internal/http/mw"
	"github.com/ErGaurav155/ainspiretech-api/internal/http/routes"
	"github.com/ErGaurav155/ainspiretech-api/internal/logging"
	"github.com/ErGaurav155/ainspiretech-api/internal/repository"
	"github.com/ErGaurav155/ainspiretech-api/internal/service"
	"github.com/ErGaurav155/ainspiretech-api/internal/version"
	"github.com/ErGaurav155/ainspiretech-api/internal/worker"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting ainspire-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db)

	services, err := service.NewServices(cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	clerkVerifier := auth.NewClerkVerifier(cfg.ClerkIssuerURL)
	logger.Info("clerk authentication enabled", "issuer", cfg.ClerkIssuerURL)

	// Tier setting overrides from object storage (optional)
	if services.Storage.IsEnabled() {
		constants.InitTierLoader(constants.TierSettingsConfig{
			S3Client: services.Storage.Client(),
			Bucket:   services.Storage.Bucket(),
			Key:      "config/tier_settings.json",
			Logger:   logger,
		})
		logger.Info("tier setting overrides enabled",
			"bucket", services.Storage.Bucket(),
			"key", "config/tier_settings.json",
		)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Pull plan display metadata from Clerk in the background; webhook
	// events keep it fresh afterwards.
	if services.TierSync != nil {
		go func() {
			if err := services.TierSync.SyncFromClerk(ctx); err != nil {
				logger.Warn("initial tier metadata sync failed", "error", err)
			}
		}()
	}

	// Recover queue items stranded in processing by a previous crash.
	if recovered, err := services.Drain.RecoverStale(ctx); err != nil {
		logger.Warn("failed to recover stale queue claims", "error", err)
	} else if recovered > 0 {
		logger.Info("recovered stale queue claims", "count", recovered)
	}

	// Background drain, rollover, and cleanup loops
	var cleanupSvc *service.CleanupService
	if cfg.CleanupEnabled {
		cleanupSvc = services.Cleanup
	}
	bgWorker := worker.New(
		services.Drain,
		services.Pause,
		cleanupSvc,
		worker.Config{
			PollInterval:    cfg.WorkerPollInterval,
			CleanupInterval: cfg.CleanupInterval,
			QueueMaxAge:     cfg.CleanupMaxAgeQueue,
			UsageMaxAge:     cfg.CleanupMaxAgeUsage,
		},
		logger,
	)
	bgWorker.Start(ctx)

	// Create router
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default: constants.DefaultRequestTimeout,
	}))
	router.Use(mw.APIVersion())

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (1MB) - prevent large payload attacks
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	// Global rate limit by IP (fallback for unauthenticated requests),
	// then per-user tier limits for authenticated ones.
	router.Use(mw.RateLimitByIP(constants.GlobalIPRateLimitPerMinute))
	router.Use(middleware.Throttle(100))
	router.Use(mw.OptionalAuth(clerkVerifier))
	router.Use(mw.RateLimitByUser(mw.DefaultRateLimitConfig()))

	router.Use(mw.Cache(mw.DefaultCacheConfig()))

	// Handlers
	h := handlers.New(
		handlers.NewCallsHandler(services.Gate, logger),
		handlers.NewStatsHandler(services.Stats, logger),
		handlers.NewAutomationHandler(services.Pause, logger),
		handlers.NewAccountsHandler(services.Account, logger),
		db,
	)

	// Huma API with per-operation auth enforcement
	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))
	api.UseMiddleware(mw.HumaAuth(api, mw.HumaAuthConfig{
		ClerkVerifier: clerkVerifier,
	}))
	routes.Register(api, h)

	// Clerk webhook (signature verified by handler, not user auth)
	if cfg.ClerkWebhookSecret != "" {
		clerkWebhook := handlers.NewClerkWebhookHandler(cfg, services.Subscription, services.Account, services.TierSync, logger)
		router.Post("/api/v1/webhooks/clerk", clerkWebhook.HandleWebhook)
		logger.Info("clerk webhook endpoint enabled")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		// Stop the worker first so in-flight drains settle before the DB closes.
		cancel()
		stopped := make(chan struct{})
		go func() {
			bgWorker.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(cfg.WorkerShutdownGracePeriod):
			logger.Warn("worker did not stop within grace period")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
