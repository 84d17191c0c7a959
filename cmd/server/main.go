package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/dataimport/internal/config"
	"github.com/JonMunkholm/dataimport/internal/core"
	"github.com/JonMunkholm/dataimport/internal/logging"
	"github.com/JonMunkholm/dataimport/internal/permission"
	"github.com/JonMunkholm/dataimport/internal/schema"
	"github.com/JonMunkholm/dataimport/internal/sink"
	"github.com/JonMunkholm/dataimport/internal/store"
	"github.com/JonMunkholm/dataimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"sink", cfg.Sink.Kind,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	n, err := schema.Setup(true, cfg.Schema.Dir)
	if err != nil {
		slog.Error("failed to register tables", "error", err, "dir", cfg.Schema.Dir)
		os.Exit(1)
	}
	slog.Info("tables registered", "count", n, "groups", len(core.Groups()))

	ctx := context.Background()

	var importSink core.Sink
	switch cfg.Sink.Kind {
	case "remote":
		importSink = sink.NewRemote(cfg.Sink.RemoteURL, cfg.Sink.RemoteToken, cfg.Sink.Timeout)
		slog.Info("using remote sink", "url", cfg.Sink.RemoteURL)
	default:
		pool, err := openPool(ctx, &cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		importSink = sink.NewPostgres(pool, sink.WithSchema(cfg.Database.Schema), sink.WithLogger(logger))
	}

	history, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open history store", "error", err, "path", cfg.Store.Path)
		os.Exit(1)
	}
	defer history.Close()

	perms, err := permission.Open(cfg.Permission.Driver, cfg.Permission.DSN, cfg.DefaultPermission())
	if err != nil {
		slog.Error("failed to open permission store", "error", err, "driver", cfg.Permission.Driver)
		os.Exit(1)
	}
	defer perms.Close()

	ctrl := core.NewController(importSink, core.ControllerConfig{
		PollInterval:    cfg.Import.PollInterval,
		MaxPollFailures: cfg.Import.MaxPollFailures,
		MaxRetries:      cfg.Import.MaxRetries,
		MaxConcurrent:   cfg.Import.MaxConcurrent,
		SlotWait:        cfg.Import.SlotWait,
		Recorder:        history,
		Logger:          logger,
	})

	server := web.NewServer(ctrl, perms, history, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go ctrl.StartRetentionScheduler(jobCtx, core.RetentionConfig{
		JobRetention:     cfg.Import.JobRetention,
		HistoryRetention: time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour,
		CheckInterval:    cfg.Store.PurgeInterval,
	}, history)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Wait for imports that already hold a write slot
		if status := ctrl.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
		}
		if err := ctrl.Shutdown(shutdownCtx); err != nil {
			slog.Warn("imports did not complete in time", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

// openPool connects to Postgres with the configured pool limits.
func openPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
