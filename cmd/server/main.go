package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	specpkg "github.com/brinkadata/brinkadata-platform/api"
	"github.com/brinkadata/brinkadata-platform/internal/account"
	"github.com/brinkadata/brinkadata-platform/internal/api"
	"github.com/brinkadata/brinkadata-platform/internal/api/middleware"
	"github.com/brinkadata/brinkadata-platform/internal/asset"
	"github.com/brinkadata/brinkadata-platform/internal/auth"
	"github.com/brinkadata/brinkadata-platform/internal/config"
	"github.com/brinkadata/brinkadata-platform/internal/database"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
	"github.com/brinkadata/brinkadata-platform/internal/events"
	"github.com/brinkadata/brinkadata-platform/internal/resume"
	"github.com/brinkadata/brinkadata-platform/internal/scenario"
	"github.com/brinkadata/brinkadata-platform/internal/subscription"
	"github.com/brinkadata/brinkadata-platform/internal/sweeper"
	"github.com/brinkadata/brinkadata-platform/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool()); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations applied")

	rdb := initRedis(ctx, cfg.RedisURL)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	publisher := initPublisher(cfg)
	if closer, ok := publisher.(*events.AMQPPublisher); ok {
		defer func() { _ = closer.Close() }()
	}

	policy := cfg.Strictness()
	pool := db.Pool()

	accounts := account.NewRepository(pool)
	subs := subscription.NewRepository(pool)
	sessions := auth.NewRepository(pool)
	codes := resume.NewStore(pool)
	guard := tenant.NewGuard(policy, "assets", "scenarios")
	assets := asset.NewRepository(pool, guard)
	scenarios := scenario.NewRepository(pool, guard)

	issuer := auth.NewIssuer(sessions, auth.IssuerConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, publisher)
	resolver := entitlements.NewResolver(subs, policy)

	router := api.NewRouter(api.RouterDeps{
		DBPinger:      db,
		Version:       cfg.Version,
		Env:           cfg.Env,
		IsDev:         cfg.IsDev(),
		OpenAPISpec:   specpkg.OpenAPISpec,
		Authenticator: auth.NewAuthenticator(issuer, accounts, resolver),
		AuthService:   auth.NewService(accounts, issuer, cfg.BcryptCost),
		ResumeBroker:  resume.NewBroker(codes, issuer, accounts, cfg.ResumeCodeTTL),
		Accounts:      accounts,
		Subscriptions: subs,
		Assets:        assets,
		Scenarios:     scenarios,
		Publisher:     publisher,
		Redis:         rdb,
		RateLimit: middleware.RateLimitConfig{
			Prefix:         "ratelimit",
			Capacity:       cfg.RateLimitCapacity,
			RefillTokens:   1,
			RefillInterval: cfg.RateLimitRefillInterval,
			TTL:            10 * time.Minute,
		},
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	sw := sweeper.New(sessions, codes, cfg.SweepInterval, cfg.SessionRetention, cfg.ResumeCodeTTL)
	go sw.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting platform server", "port", cfg.Port, "version", cfg.Version, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		stop()
		os.Exit(1)
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// initRedis returns nil when REDIS_URL is unset or unreachable; rate limiting is
// then disabled.
func initRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		slog.Info("REDIS_URL not set; rate limiting disabled")
		return nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		slog.Warn("invalid REDIS_URL; rate limiting disabled", "error", err)
		return nil
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable; rate limiting disabled", "error", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func initPublisher(cfg *config.Config) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.NopPublisher{}
	}

	p, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		slog.Warn("amqp unavailable; events disabled", "error", err)
		return events.NopPublisher{}
	}
	slog.Info("publishing events", "exchange", cfg.AMQPExchange)
	return p
}
