package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite" // registers "sqlite"

	"github.com/Mindburn-Labs/coffeechain/pkg/api"
	"github.com/Mindburn-Labs/coffeechain/pkg/archive"
	"github.com/Mindburn-Labs/coffeechain/pkg/config"
	"github.com/Mindburn-Labs/coffeechain/pkg/ledger"
	"github.com/Mindburn-Labs/coffeechain/pkg/observability"
	"github.com/Mindburn-Labs/coffeechain/pkg/report"
	"github.com/Mindburn-Labs/coffeechain/pkg/seed"
	"github.com/Mindburn-Labs/coffeechain/pkg/util/resiliency"
)

// backend is an opened ledger with whatever it needs closed on exit.
type backend struct {
	store  ledger.Store
	db     *sql.DB // nil for file and memory stores
	redis  *redis.Client
	checks map[string]api.HealthCheck
}

func (b *backend) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

// setupLogger installs the process-wide slog handler.
func setupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// openLedger opens the backend selected by DB_DRIVER.
func openLedger(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{checks: make(map[string]api.HealthCheck)}

	switch cfg.DBDriver {
	case "memory":
		mem := ledger.NewMemoryStore()
		fx, err := seed.Demo()
		if err != nil {
			return nil, err
		}
		if _, err := seed.Run(ctx, mem, fx); err != nil {
			return nil, fmt.Errorf("seed memory ledger: %w", err)
		}
		slog.InfoContext(ctx, "memory ledger seeded with demo fixture")
		b.store = mem
	case "file":
		fs, err := ledger.OpenFileStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.store = fs
	case "sqlite", "postgres", "pgx":
		db, err := sql.Open(cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
		}
		if cfg.DBDriver == "sqlite" {
			// One writer; also keeps ":memory:" databases on a single connection.
			db.SetMaxOpenConns(1)
		}
		attempts := 5
		if cfg.DBDriver == "sqlite" {
			attempts = 1
		}
		// A database container may still be starting.
		if err := resiliency.Retry(ctx, attempts, 200*time.Millisecond, db.PingContext); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
		}
		st := ledger.NewSQLStore(db)
		if err := st.Init(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		b.db, b.store = db, st
		b.checks["ledger"] = db.PingContext
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (sqlite, postgres, pgx, file, memory)", cfg.DBDriver)
	}

	if cfg.RedisAddr != "" {
		b.redis = ledger.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		b.checks["redis"] = func(ctx context.Context) error { return b.redis.Ping(ctx).Err() }
	}
	return b, nil
}

// cachedSource serves Reader calls through the cache and actor scans from
// the backend.
type cachedSource struct {
	*ledger.CachedReader
	ledger.Directory
}

// reportSource returns the Source reports read from.
func (b *backend) reportSource(cfg *config.Config) report.Source {
	if b.redis == nil {
		return b.store
	}
	return cachedSource{
		CachedReader: ledger.NewCachedReader(b.store, b.redis, cfg.CacheTTL),
		Directory:    b.store,
	}
}

// newService wires the report service with the engine profile, telemetry
// and archive. The returned shutdown flushes telemetry.
func newService(ctx context.Context, cfg *config.Config, b *backend) (*report.Service, func(context.Context) error, error) {
	profile, err := config.LoadEngineProfile(cfg.EngineProfile)
	if err != nil {
		return nil, nil, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTelEnabled
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		obsCfg.Environment = env
	}
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return nil, nil, err
	}

	svc := report.NewService(b.reportSource(cfg), report.Options{
		Resolver:       profile.Resolver,
		Attribution:    profile.Attribution.AttributionOptions(),
		RequestTimeout: profile.RequestTimeout,
	}).WithObservability(obs)

	store, err := archive.NewStore(ctx, archive.Config{
		Backend:  archive.Backend(cfg.ArchiveBackend),
		Location: cfg.ArchiveLocation,
		Region:   cfg.ArchiveRegion,
		Endpoint: cfg.ArchiveEndpoint,
	})
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, nil, err
	}
	if store != nil {
		svc.WithArchive(archive.New(store))
	}
	return svc, obs.Shutdown, nil
}
