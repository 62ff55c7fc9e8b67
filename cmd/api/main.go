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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddsmith/sportsbook/internal/app"
	"github.com/oddsmith/sportsbook/internal/clock"
	"github.com/oddsmith/sportsbook/internal/eventbus"
	"github.com/oddsmith/sportsbook/internal/infra"
	"github.com/oddsmith/sportsbook/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Storage: Postgres when configured, in-memory stores otherwise.
	var (
		events store.EventStore
		states store.StateStore
		ping   func(ctx context.Context) error
	)
	if cfg.UsePostgres() {
		pool, err := infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		logger.Info("connected to postgres")

		if err := store.RunMigrations(cfg.DSN(), logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		events = store.NewPostgresEventStore(pool)
		states = store.NewPostgresStateStore(pool)
		ping = pingFunc(pool)
	} else {
		logger.Warn("running on in-memory stores, data will not survive a restart")
		events = store.NewMemoryEventStore()
		states = store.NewMemoryStateStore()
	}

	// Event bus: Kafka when enabled, no-op otherwise.
	var bus eventbus.Publisher = eventbus.NopPublisher{}
	if cfg.KafkaEnabled {
		kafka := eventbus.NewKafkaPublisher(cfg.KafkaBrokers, logger)
		defer kafka.Close()
		bus = kafka
		logger.Info("kafka publisher enabled", "brokers", cfg.KafkaBrokers)
	}

	application, err := app.NewApp(app.RouterDeps{
		Cfg:    cfg,
		Logger: logger,
		Events: events,
		States: states,
		Bus:    bus,
		Clock:  clock.RealClock{},
		Ping:   ping,
	})
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}
	defer application.System.Shutdown()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      application.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

func pingFunc(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return infra.HealthCheck(ctx, pool)
	}
}
