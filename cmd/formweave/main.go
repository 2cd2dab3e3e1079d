// Package main is the entry point for the formweave API server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/formweave/formweave/internal/config"
	"github.com/formweave/formweave/internal/identifier"
	"github.com/formweave/formweave/internal/observability"
	"github.com/formweave/formweave/internal/persistence"
	"github.com/formweave/formweave/internal/transport"
	"github.com/formweave/formweave/internal/verification"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "formweave", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	ids := identifier.New()

	forms, submissions, storesCloser, err := buildStores(ctx, cfg.Database, ids, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}

	drafts, draftsCloser, err := buildDraftCache(cfg.Drafts, logger)
	if err != nil {
		logger.Error("draft cache initialization failed", zap.Error(err))
		return 1
	}

	gateway := verification.NewHTTPGateway(verification.Settings{
		Timeout:          cfg.Verification.Timeout,
		MaxAttempts:      cfg.Verification.Retry.MaxAttempts,
		Backoff:          cfg.Verification.Retry.BackoffInitial,
		MaxBackoff:       cfg.Verification.Retry.BackoffMax,
		FailureThreshold: cfg.Verification.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.Verification.CircuitBreaker.SuccessThreshold,
		BreakerCooldown:  cfg.Verification.CircuitBreaker.Timeout,
	}, logger, verification.WithGatewayMetrics(metrics))

	var authenticate func(http.Handler) http.Handler
	if cfg.Identity.JWKSURL != "" {
		jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)
		authenticate = transport.JWTAuthenticator(cfg.Identity, jwks)
	} else {
		logger.Warn("no JWKS URL configured, authentication disabled")
	}

	readiness := observability.ReadinessChecks{}
	if hc, ok := forms.(observability.HealthChecker); ok {
		readiness.FormStore = hc
	}
	if hc, ok := submissions.(observability.HealthChecker); ok {
		readiness.SubmissionStore = hc
	}
	if hc, ok := drafts.(observability.HealthChecker); ok {
		readiness.DraftCache = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		IDs:          ids,
		Forms:        forms,
		Submissions:  submissions,
		Drafts:       drafts,
		Gateway:      gateway,
		Authenticate: authenticate,
		Readiness:    observability.HandleReady(readiness),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if draftsCloser != nil {
		draftsCloser()
	}
	if storesCloser != nil {
		storesCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildStores creates the form and submission stores. An empty DSN selects
// the in-memory stores; otherwise a shared pgx pool backs both.
func buildStores(ctx context.Context, cfg config.DatabaseConfig, ids identifier.Generator, logger *zap.Logger) (persistence.FormStore, persistence.SubmissionStore, func(), error) {
	dsn := cfg.DSN()
	if dsn == "" {
		logger.Info("using in-memory stores")
		subs := persistence.NewMemorySubmissionStore(ids)
		return persistence.NewMemoryFormStore(ids, subs), subs, nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database: parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("database: ping: %w", err)
	}

	logger.Info("connected to postgres")
	return persistence.NewPgFormStore(pool, ids), persistence.NewPgSubmissionStore(pool, ids), pool.Close, nil
}

// buildDraftCache creates the working-draft cache based on config.
func buildDraftCache(cfg config.DraftConfig, logger *zap.Logger) (persistence.DraftCache, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory draft cache")
		return persistence.NewMemoryDraftCache(), nil, nil
	case "redis":
		addr := cfg.Addr()
		if addr == "" {
			return nil, nil, fmt.Errorf("draft cache: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		logger.Info("using redis draft cache", zap.String("addr", addr))
		return persistence.NewRedisDraftCache(client, cfg.KeyPrefix, cfg.TTL),
			func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported draft cache driver: %q", cfg.Driver)
	}
}
