// cmd/affinity-engine/serve.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"office-affinity/internal/api"
	calendarprovider "office-affinity/internal/calendar/calendar-provider"
	calendarsync "office-affinity/internal/calendar/calendar-sync"
	"office-affinity/internal/catalog"
	"office-affinity/internal/common/config"
	"office-affinity/internal/common/database"
	"office-affinity/internal/common/logger"
	"office-affinity/internal/common/observability"
	"office-affinity/internal/engine"
	"office-affinity/internal/persistence"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine and its HTTP API",
	RunE:  runServe,
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting affinity engine...",
		zap.String("environment", cfg.App.Environment),
		zap.String("catalog", cfg.Catalog.Source),
		zap.String("persistence", cfg.Persistence.Backend),
	)

	obs := observability.New(observability.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		TraceStdout: cfg.Telemetry.TraceStdout,
		Logger:      log,
	})
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := make(map[string]api.ReadinessCheck)

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	if cfg.Catalog.Source == "postgres" || cfg.Persistence.Backend == "postgres" {
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			if err := pg.Ping(ctx); err != nil {
				pg.Close()
				return err
			}
			return nil
		}, 5, 2*time.Second, zapLog, "PostgreSQL initialization")
		if err != nil {
			return err
		}
		defer pg.Close()
		checks["postgres"] = pg.Ping
		zapLog.Info("PostgreSQL connected successfully")
	}

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	if cfg.Database.Redis.Address != "" {
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			if err := rdb.Ping(ctx); err != nil {
				rdb.Close()
				return err
			}
			return nil
		}, 5, 2*time.Second, zapLog, "Redis initialization")
		if err != nil {
			return err
		}
		defer rdb.Close()
		checks["redis"] = rdb.Ping
		zapLog.Info("Redis connected successfully")
	}

	profiles, err := catalog.New(cfg, pg, rdb, log)
	if err != nil {
		return err
	}
	defer profiles.Close()

	store, err := persistence.New(cfg, pg, rdb, log)
	if err != nil {
		return err
	}
	if s, ok := store.(*persistence.PostgresStore); ok {
		if err := s.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	deps := engine.Dependencies{
		Catalog:       profiles,
		Persistence:   store,
		SyncConfig:    calendarsync.FromAppConfig(cfg),
		Observability: obs,
		Logger:        log,
	}
	if providerCfg := calendarprovider.FromAppConfig(cfg); providerCfg.HasCredentials() {
		deps.Provider = calendarprovider.New(providerCfg, log)
	} else {
		zapLog.Warn("No calendar credentials configured, presence will use the demo calendar")
	}

	eng, err := engine.New(engine.FromAppConfig(cfg), deps)
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}

	if cfg.Catalog.Watch || cfg.Catalog.Source == "postgres" {
		if err := profiles.Watch(ctx); err != nil {
			zapLog.Warn("Profile change watch unavailable", zap.Error(err))
		}
	}

	status := eng.ConnectCalendar(ctx)
	zapLog.Info("Calendar session ready", zap.String("state", string(status.State)), zap.Bool("demo", status.Demo))

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.New(eng, checks, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// --- Graceful Shutdown ---
	select {
	case <-ctx.Done():
		zapLog.Info("Shutdown signal received, stopping engine...")
	case err := <-serveErr:
		if err != nil {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := eng.Close(shutdownCtx); err != nil {
		zapLog.Error("Engine shutdown failed", zap.Error(err))
	}

	zapLog.Info("Affinity engine stopped")
	return nil
}
