// Package main is the entrypoint for the InsightX API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/insightx/internal/analysis"
	"github.com/kiranshivaraju/insightx/internal/api"
	"github.com/kiranshivaraju/insightx/internal/api/handler"
	mw "github.com/kiranshivaraju/insightx/internal/api/middleware"
	"github.com/kiranshivaraju/insightx/internal/cache"
	"github.com/kiranshivaraju/insightx/internal/config"
	"github.com/kiranshivaraju/insightx/internal/dataset"
	"github.com/kiranshivaraju/insightx/internal/guard"
	"github.com/kiranshivaraju/insightx/internal/metrics"
	"github.com/kiranshivaraju/insightx/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	if err := config.LoadEnvFiles(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "data_source", cfg.Data.Source, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Load the dataset and wire the analysis stack
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// 3. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// app is the fully wired server.
type app struct {
	handler  http.Handler
	provider *dataset.Provider
	redis    *cache.RedisCache
}

// newApp loads the dataset and builds the router. A dataset that fails to
// load does not stop the server: the guard rejects every intent and health
// reports degraded until restart.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	m := metrics.New()
	a := &app{provider: store.NewProvider(cfg)}

	ds, err := a.provider.Dataset(ctx)
	if err != nil {
		slog.Error("dataset unavailable", "error", err)
		m.SetDataset(false, 0)
	} else {
		m.SetDataset(true, ds.Rows())
	}

	// Optional Redis: result cache and shared rate-limit counters
	var c cache.Cache
	var pinger handler.Pinger
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		if err := rc.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, continuing without a warm cache", "error", err)
		} else {
			slog.Info("redis connected")
		}
		a.redis, c, pinger = rc, rc, rc
	}

	g := guard.New(guard.WithAvailability(a.provider))
	engine := analysis.NewEngine(a.provider)

	opts := []analysis.ServiceOption{analysis.WithMetrics(m)}
	if c != nil && cfg.Redis.CacheTTL > 0 {
		opts = append(opts, analysis.WithCache(c, cfg.Redis.CacheTTL, a.provider))
	}
	svc := analysis.NewService(g, engine, opts...)

	auth := mw.NewAuth(cfg.Auth.APIKeyHashes)
	if !auth.Enabled() {
		slog.Warn("API_KEY_HASHES not set, API key authentication disabled")
	}

	a.handler = api.NewRouter(api.Dependencies{
		Auth:           auth,
		RateLimit:      mw.NewRateLimit(c, cfg.Auth.RateLimitPerMin, m),
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,

		HealthHandler:     handler.NewHealthHandler(a.provider, pinger),
		AnalyzeHandler:    handler.NewAnalyzeHandler(svc),
		CheckHandler:      handler.NewCheckHandler(svc),
		VocabularyHandler: handler.NewVocabularyHandler(g.Vocabulary(), a.provider),
	})
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.provider.Close(); err != nil {
		slog.Warn("close dataset", "error", err)
	}
}
