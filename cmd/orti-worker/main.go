package main

import (
	"context"
	"os"
	"time"

	"orti/internal/cache"
	"orti/internal/cli"
	"orti/internal/log"
	"orti/internal/services"
	"orti/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	logger.Info("Starting orti-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	backend := cli.InitBackend(ctx, logger, cfg)

	company, err := cli.ResolveCompany(ctx, backend.Store, cfg.CompanyCode)
	if err != nil {
		logger.Error("Failed to resolve company", log.FieldCompany, cfg.CompanyCode, log.FieldError, err)
		os.Exit(1)
	}

	loc := cfg.Location()
	registry := services.NewRegistry(backend.Store, company, backend.Notifier(), services.SessionConfig{
		PersistTimeout:     cfg.PersistTimeout,
		PersistConcurrency: cfg.PersistConcurrency,
		Now:                func() time.Time { return time.Now().In(loc) },
	}, cfg.SessionCacheSize, cfg.SessionCacheTTL, logger)

	caches := cache.NewManager()
	caches.Register(registry.Cache())
	caches.StartCleanup(time.Minute)

	scheduler, err := worker.NewScheduler(registry, worker.Schedule{
		Reconcile: cfg.ReconcileSchedule,
		Rollover:  cfg.RolloverSchedule,
		Location:  loc,
		Announce:  backend.Notifier(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create scheduler", log.FieldError, err)
		os.Exit(1)
	}

	// The worker drains the shared queue so its sweeps see fresh data; without
	// a broker only the scheduled jobs run
	var watcher *services.Watcher
	if backend.Changes != nil {
		watcher = services.NewWatcher(backend.Changes, registry, company.ID, services.WatcherConfig{
			Debounce: cfg.ReloadDebounce,
		}, logger)
	} else {
		logger.Info("AMQP disabled - change notifications will not be consumed")
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if watcher != nil {
			if err := watcher.Stop(ctx); err != nil {
				logger.Error("Failed to stop change watcher", log.FieldError, err)
			}
		}
		if err := scheduler.Stop(ctx); err != nil {
			logger.Warn("Scheduled jobs still running at shutdown", log.FieldError, err)
		}
		caches.Stop()
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	})

	// Open the current year and check it once before waiting for the schedule
	if n, err := scheduler.ReconcileSweep(shutdownCtx); err != nil {
		logger.Error("Startup reconciliation sweep failed", log.FieldError, err)
	} else {
		logger.Info("Startup reconciliation sweep complete", "mismatches", n)
	}

	if watcher != nil {
		if err := watcher.Start(shutdownCtx); err != nil {
			logger.Error("Failed to start change watcher", log.FieldError, err)
			os.Exit(1)
		}
	}
	scheduler.Start()

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Worker stopped")
}
