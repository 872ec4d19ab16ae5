package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"orti/internal/amqp"
	"orti/internal/cache"
	"orti/internal/cli"
	apphttp "orti/internal/http"
	"orti/internal/log"
	"orti/internal/services"
)

func main() {
	cli.LoadEnvFile()

	// Logger first so config errors are reported in the same format
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting orti", "port", cfg.Port, "backend", cfg.DataBackend)

	ctx := context.Background()
	backend := cli.InitBackend(ctx, logger, cfg)

	company, err := cli.ResolveCompany(ctx, backend.Store, cfg.CompanyCode)
	if err != nil {
		logger.Error("Failed to resolve company", log.FieldCompany, cfg.CompanyCode, log.FieldError, err)
		os.Exit(1)
	}

	// Month states and the current year follow the configured timezone
	loc := cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }

	registry := services.NewRegistry(backend.Store, company, backend.Notifier(), services.SessionConfig{
		PersistTimeout:     cfg.PersistTimeout,
		PersistConcurrency: cfg.PersistConcurrency,
		Now:                now,
	}, cfg.SessionCacheSize, cfg.SessionCacheTTL, logger)

	// Idle years expire from the registry
	caches := cache.NewManager()
	caches.Register(registry.Cache())
	caches.StartCleanup(time.Minute)

	// Every replica reloads on changes made by the others and by the worker
	var watcher *services.Watcher
	var listener *amqp.Client
	if backend.Changes != nil {
		listener, err = amqp.NewReplicaClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to open change listener, sessions reload on expiry only", log.FieldError, err)
		} else {
			watcher = services.NewWatcher(listener, registry, company.ID, services.WatcherConfig{
				Debounce: cfg.ReloadDebounce,
			}, logger)
		}
	}

	serverCfg := apphttp.DefaultServerConfig()
	serverCfg.Now = now
	srv := apphttp.NewServer(":"+cfg.Port, registry, serverCfg, logger)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if watcher != nil {
			if err := watcher.Stop(ctx); err != nil {
				logger.Error("Failed to stop change watcher", log.FieldError, err)
			}
			if err := listener.Close(); err != nil {
				logger.Error("Failed to close change listener", log.FieldError, err)
			}
		}
		caches.Stop()
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	})

	if watcher != nil {
		if err := watcher.Start(shutdownCtx); err != nil {
			logger.Error("Failed to start change watcher", log.FieldError, err)
			os.Exit(1)
		}
	}

	go func() {
		logger.Info("Listening", "addr", srv.Addr, log.FieldCompany, company.Code)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
