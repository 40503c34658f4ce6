// Command resource-broker runs the mutual-exclusion lease broker HTTP
// server: it loads configuration, seeds the resource catalog, starts the
// background expirer, and serves the five JSON endpoints until signalled to
// stop.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"          // postgres driver
	_ "modernc.org/sqlite"         // sqlite driver

	"github.com/sbgisen/resource-broker/pkg/api"
	"github.com/sbgisen/resource-broker/pkg/bootstrap"
	"github.com/sbgisen/resource-broker/pkg/clock"
	"github.com/sbgisen/resource-broker/pkg/config"
	"github.com/sbgisen/resource-broker/pkg/engine"
	"github.com/sbgisen/resource-broker/pkg/expirer"
	"github.com/sbgisen/resource-broker/pkg/observability"
	"github.com/sbgisen/resource-broker/pkg/resource"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the testable entrypoint: it returns an exit code instead of calling
// os.Exit and writes output only to stdout/stderr. Configuration is read from
// the environment (args is not parsed), and Run installs SIGINT/SIGTERM
// handlers for its own lifetime.
func Run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(stderr, nil))
	cfg := config.Load()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		return 1
	}
	defer closeStore()

	if err := bootstrap.Run(ctx, cfg.ResourceYAMLPath, store, logger); err != nil {
		logger.Error("bootstrap failed", "error", err)
		return 1
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.ObservabilityEnabled
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		logger.Error("failed to initialize observability", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("observability shutdown failed", "error", err)
		}
	}()

	clk := clock.System{}
	eng := engine.New(store, clk, logger)

	exp := expirer.New(store, clk, logger, provider)
	expCtx, stopExpirer := context.WithCancel(ctx)
	defer stopExpirer()
	go exp.Run(expCtx)

	router, err := api.NewRouter(eng, clk, logger, provider)
	if err != nil {
		logger.Error("failed to build router", "error", err)
		return 1
	}
	limiter := api.NewGlobalRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router.Handler(limiter),
	}

	go func() {
		fmt.Fprintf(stdout, "resource-broker listening on :%s (backend=%s)\n", cfg.Port, cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	stopExpirer()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return 1
	}
	return 0
}

// openStore constructs the resource.Store backend selected by cfg, and
// returns a matching close func. Exactly one of the three backends is
// active per process (spec §4.2: the store contract is backend-agnostic).
func openStore(ctx context.Context, cfg *config.Config) (resource.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		store, err := resource.OpenPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		store := resource.NewRedisStore(rdb)
		return store, func() { _ = store.Close() }, nil

	case config.BackendSQLite, "":
		store, err := resource.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, func() { _ = store.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
