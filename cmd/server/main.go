package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lembra-app/lembra/internal/api"
	"github.com/lembra-app/lembra/internal/circuitbreaker"
	"github.com/lembra-app/lembra/internal/config"
	"github.com/lembra-app/lembra/internal/db"
	"github.com/lembra-app/lembra/internal/engine"
	"github.com/lembra-app/lembra/internal/metrics"
	"github.com/lembra-app/lembra/internal/observ"
	"github.com/lembra-app/lembra/internal/push"
	"github.com/lembra-app/lembra/internal/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting lembra server",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.Duration("scan_interval", cfg.ScanInterval),
		zap.String("push_provider", cfg.PushProvider),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository
	repo := db.NewRepository(database, logger)

	// Initialize Redis for the fire guard and rate limiting. The server runs
	// fine without it; a single instance does not need the cross-instance
	// guard.
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, fire guard and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
		redisClient = nil
	}

	var fireGuard engine.FireGuard
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		fireGuard = redis.NewFireGuard(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  100,             // 100 requests
			Window: 1 * time.Minute, // per minute per user
		})
		defer redisClient.Close()
	}

	// Select the push provider
	var sender push.Sender
	switch cfg.PushProvider {
	case "onesignal":
		sender, err = push.NewOneSignalSender(push.OneSignalConfig{
			AppID:   cfg.OneSignalAppID,
			APIKey:  cfg.OneSignalAPIKey,
			Timeout: cfg.DispatchTimeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create OneSignal sender: %w", err)
		}
	case "sns":
		sender, err = push.NewSNSSender(ctx, push.SNSConfig{
			Region: cfg.AWSRegion,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SNS sender: %w", err)
		}
	default:
		sender = push.NewLogSender(logger)
	}

	// Wrap the provider in a circuit breaker so a dead provider does not
	// stall every cycle on timeouts.
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig(sender.Name()), logger)
	protected := circuitbreaker.NewProtectedSender(sender, breaker, logger)

	logger.Info("push dispatch configured",
		zap.String("provider", sender.Name()),
		zap.Bool("fire_guard_enabled", fireGuard != nil),
	)

	// Start the alert engine
	eng := engine.New(repo, protected, fireGuard, engine.Config{
		ScanInterval:    cfg.ScanInterval,
		DispatchTimeout: cfg.DispatchTimeout,
	}, logger)

	engineCtx, engineCancel := context.WithCancel(context.Background())
	defer engineCancel()

	go eng.Start(engineCtx)

	logger.Info("alert engine started")

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	handler := api.NewHandler(logger, repo, protected)
	r.Route("/v1", func(r chi.Router) {
		// Apply rate limiting to API routes
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.UserKeyFunc))

		handler.Routes(r)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Stop scheduling new cycles before closing the listener
		engineCancel()

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
