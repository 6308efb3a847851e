package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/giisexport/internal/catalog"
	"github.com/JonMunkholm/giisexport/internal/config"
	"github.com/JonMunkholm/giisexport/internal/core"
	_ "github.com/JonMunkholm/giisexport/internal/core/guides" // Register all guides
	"github.com/JonMunkholm/giisexport/internal/logging"
	"github.com/JonMunkholm/giisexport/internal/metrics"
	"github.com/JonMunkholm/giisexport/internal/schema"
	"github.com/JonMunkholm/giisexport/internal/store"
	"github.com/JonMunkholm/giisexport/internal/web"
)

// stores bundles the ports a backend provides.
type stores struct {
	records core.RecordSource
	tenants core.TenantResolver
	batches core.BatchStore
	audit   core.AuditSink
}

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	key, err := cfg.Export.Key()
	if err != nil {
		return fmt.Errorf("decode encryption key: %w", err)
	}

	schemas, err := loadSchemas(cfg.Export.SchemaDir)
	if err != nil {
		return err
	}
	slog.Info("guide schemas loaded", "guides", schemas.Guides(), "registered", core.Codes())

	var pool *pgxpool.Pool
	if cfg.Database.Enabled() {
		pool, err = connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	st, err := openStores(ctx, cfg.Database, pool)
	if err != nil {
		return err
	}

	cat, err := openCatalog(cfg, pool)
	if err != nil {
		return err
	}

	writer, err := core.NewArtifactWriter(cfg.Export.OutputDir)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)

	limiter := core.NewGenerationLimiter(cfg.Export.MaxConcurrent, cfg.Export.MaxWaitTime)

	service, err := core.NewService(core.Options{
		Schemas: schemas,
		Records: st.records,
		Tenants: st.tenants,
		Batches: st.batches,
		Audit:   st.audit,
		Writer:  writer,
		Key:     key,
		Catalog: cat,
		Limiter: limiter,
		Metrics: recorder,
	})
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	recorder.ObserveLimiter(limiter, service.Guides()...)

	server := web.NewServer(service, web.Options{
		Security:       cfg.Security,
		Rate:           cfg.Rate,
		RequestTimeout: cfg.Server.RequestTimeout,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	go writer.StartTempSweeper(jobCtx, core.SweepConfig{
		MaxAge:        cfg.Sweep.MaxAge,
		CheckInterval: cfg.Sweep.CheckInterval,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for generations to complete", "active", status.Active, "by_guide", status.ByGuide)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("generations did not complete in time", "error", err)
			} else {
				slog.Info("all generations completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func loadSchemas(dir string) (*schema.Registry, error) {
	if dir == "" {
		return schema.Embedded()
	}
	reg, err := schema.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load schemas from %s: %w", dir, err)
	}
	return reg, nil
}

func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, pool *pgxpool.Pool) (stores, error) {
	if pool != nil {
		if cfg.Migrate {
			if err := store.Migrate(ctx, pool); err != nil {
				return stores{}, fmt.Errorf("migrate: %w", err)
			}
			slog.Info("database migrated")
		}
		pg := store.NewPostgres(pool)
		return stores{records: pg, tenants: pg, batches: pg, audit: pg}, nil
	}

	mem := store.NewMemory()
	if cfg.FixturesFile != "" {
		if err := mem.LoadFixturesFile(cfg.FixturesFile); err != nil {
			return stores{}, err
		}
		slog.Info("fixtures loaded", "file", cfg.FixturesFile)
	}
	slog.Warn("using in-memory stores; batches are lost on restart")
	return stores{records: mem, tenants: mem, batches: mem, audit: mem}, nil
}

// openCatalog returns nil when catalog checks are disabled.
func openCatalog(cfg *config.Config, pool *pgxpool.Pool) (core.Catalog, error) {
	if !cfg.Catalog.Enabled {
		slog.Warn("catalog checks disabled")
		return nil, nil
	}

	var cat core.Catalog
	switch strings.ToLower(cfg.Catalog.Source) {
	case "postgres":
		cat = catalog.NewPostgres(pool)
	default:
		static, err := loadStaticCatalog(cfg.Catalog.File)
		if err != nil {
			return nil, err
		}
		cat = static
	}

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cat = catalog.NewCached(cat, client, catalog.WithTTL(cfg.Catalog.CacheTTL))
		slog.Info("catalog cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Catalog.CacheTTL.String())
	}

	slog.Info("catalog ready", "source", cfg.Catalog.Source)
	return cat, nil
}

func loadStaticCatalog(path string) (*catalog.Static, error) {
	if path == "" {
		return catalog.Default()
	}
	static, err := catalog.LoadStaticFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return static, nil
}
