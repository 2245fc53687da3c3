package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terra-clan/duewatch/internal/api"
	"github.com/terra-clan/duewatch/internal/assignments"
	"github.com/terra-clan/duewatch/internal/catalog"
	"github.com/terra-clan/duewatch/internal/config"
	"github.com/terra-clan/duewatch/internal/dashboard"
	"github.com/terra-clan/duewatch/internal/health"
	"github.com/terra-clan/duewatch/internal/metrics"
	"github.com/terra-clan/duewatch/internal/refresh"
	"github.com/terra-clan/duewatch/internal/session"
	"github.com/terra-clan/duewatch/internal/storage"
	"github.com/terra-clan/duewatch/internal/transport"
	"github.com/terra-clan/duewatch/migrations"
	"github.com/terra-clan/duewatch/pkg/client"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Naive timestamps from the course service are read in this zone
	loc, _ := cfg.Location()
	time.Local = loc

	order, _ := catalog.ParseOrder(cfg.API.CatalogOrder)

	slog.Info("starting duewatch",
		"version", version,
		"api", cfg.API.BaseURL,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"session_backend", cfg.Session.Backend,
		"timezone", loc.String(),
		"catalog_order", order.String(),
	)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	checks := health.NewRegistry(2 * time.Second)

	// Session persistence
	persister, persisterCloser, err := newPersister(initCtx, cfg, checks)
	if err != nil {
		slog.Error("failed to create session persister", "error", err)
		os.Exit(1)
	}
	defer persisterCloser.Close()

	apiClient := client.New(cfg.API.BaseURL,
		client.WithTimeout(cfg.API.Timeout),
		client.WithUserAgent("duewatch/"+version),
	)

	store := session.NewStore(apiClient, persister)
	if err := store.Restore(initCtx); err != nil {
		slog.Warn("failed to restore session", "error", err)
	}

	// Snapshot storage
	repo, err := newRepository(initCtx, cfg)
	if err != nil {
		slog.Error("failed to create snapshot repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	checks.Register("storage", health.CheckerFunc(repo.Ping))

	m := metrics.New()

	// Pipeline
	tr := transport.New(apiClient, store, transport.Config{
		MaxAttempts: cfg.API.AuthMaxAttempts,
		Backoff:     cfg.API.AuthRetryBackoff,
		RateLimit:   cfg.API.RateLimit,
	})
	catalogClient := catalog.NewClient(tr, catalog.WithCache(cfg.API.CatalogCacheTTL, store.Token))
	aggregator := assignments.NewAggregator(tr, assignments.WithConcurrency(cfg.API.FetchConcurrency))

	svc := dashboard.NewService(store, catalogClient, aggregator, repo, m, dashboard.Config{
		Order:    order,
		Location: loc,
	})

	if store.Snapshot().Authenticated {
		if err := svc.LoadLatest(initCtx); err != nil {
			slog.Warn("failed to load latest snapshot", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background workers
	go svc.Watch(ctx)
	refresh.NewRefresher(svc, cfg.Refresh.Interval).Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, svc, checks, m)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Stop background workers and any running cycle
	svc.Cancel()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("duewatch stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newPersister builds the configured session backend
func newPersister(ctx context.Context, cfg *config.Config, checks *health.Registry) (session.Persister, io.Closer, error) {
	switch cfg.Session.Backend {
	case config.BackendRedis:
		p, err := session.NewRedisPersister(ctx, session.RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		checks.Register("session_store", p)
		slog.Info("session persisted in redis", "address", cfg.Redis.Address)
		return p, p, nil
	case config.BackendBolt:
		p, err := session.NewBoltPersister(cfg.Session.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("session persisted in bolt", "path", cfg.Session.BoltPath)
		return p, p, nil
	default:
		return session.NewMemoryPersister(), nopCloser{}, nil
	}
}

// newRepository connects to PostgreSQL when a DSN is set, else keeps
// snapshots in memory
func newRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	if cfg.Database.DSN == "" {
		slog.Info("no database configured, keeping snapshots in memory")
		return storage.NewMemoryRepository(cfg.Database.Retention), nil
	}

	var fsys fs.FS = migrations.FS
	if cfg.Database.MigrationsDir != "" {
		fsys = os.DirFS(cfg.Database.MigrationsDir)
	}

	slog.Info("running database migrations", "schema", cfg.Database.Schema)
	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:        cfg.Database.DSN,
		Schema:     cfg.Database.Schema,
		Migrations: fsys,
		Retention:  cfg.Database.Retention,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("database connected successfully")
	return repo, nil
}
