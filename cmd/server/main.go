package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"room_chat/internal/app"
	"room_chat/internal/config"
	"room_chat/internal/repository"
	"room_chat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level)
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Server exited")
}

func run(ctx context.Context, cfg *config.Config, appLogger logger.Logger) error {
	directory, err := openDirectory(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer directory.Close()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		appLogger.Info("Redis connection established")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	repos := repository.NewRepositories(directory, rdb, appLogger)
	application := app.New(cfg, repos, appLogger, registry)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      application.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * cfg.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting server", "addr", srv.Addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// hijacked websocket connections are not tracked by http.Server
		if err := application.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Websocket sessions did not drain", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openDirectory(ctx context.Context, cfg *config.Config, appLogger logger.Logger) (repository.DirectoryStore, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		if cfg.Database.Migrate {
			if err := repository.MigratePostgres(cfg.Database.DSN); err != nil {
				return nil, err
			}
			appLogger.Info("Database migrations applied")
		}

		poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse database DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Database.MaxConnections)

		dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := dbPool.Ping(ctx); err != nil {
			dbPool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		appLogger.Info("Database connection established")
		return repository.NewPostgresDirectory(dbPool, appLogger), nil

	case config.DriverSQLite:
		directory, err := repository.OpenSQLite(cfg.Database.DSN, appLogger)
		if err != nil {
			return nil, err
		}
		appLogger.Info("SQLite database opened", "dsn", cfg.Database.DSN)
		return directory, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
