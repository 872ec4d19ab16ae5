// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/orti, cmd/orti-worker, and cmd/orti-seed.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"orti/internal/backend"
	"orti/internal/config"
	"orti/internal/core"
	"orti/internal/log"
	"orti/internal/store"
)

// SetupLogger initializes structured logging from LOG_LEVEL and LOG_FORMAT values.
// Returns the configured logger and sets it as the default logger.
func SetupLogger(level, format string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Format:    log.ParseFormat(format),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitBackend opens the configured store and, when configured, the AMQP client.
// Returns the backend or exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	return result
}

// ResolveCompany returns the company with code, creating it when missing.
func ResolveCompany(ctx context.Context, st store.CompanyStore, code string) (core.Company, error) {
	company, err := st.GetCompanyByCode(ctx, code)
	if errors.Is(err, core.ErrNotFound) {
		return st.CreateCompany(ctx, code, code)
	}
	return company, err
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
