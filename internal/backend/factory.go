package backend

import (
	"context"
	"errors"
	"fmt"
	"os"

	"orti/internal/amqp"
	"orti/internal/log"
	"orti/internal/seed"
	"orti/internal/storage"
	"orti/internal/store"
	"orti/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		st  store.EntryStore
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		st, err = f.createSQLiteStore(config)
	case PostgresBackend:
		st, err = f.createPostgresStore(ctx, config)
	case MemoryBackend:
		st, err = f.createMemoryStore(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Store: st}

	// Change notifications are optional
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change notifications", log.FieldError, err)
		} else {
			result.Changes = client
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if result.Changes != nil {
			if err := result.Changes.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close AMQP client: %w", err))
			}
		}
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		return errors.Join(errs...)
	}
	return result, nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (store.EntryStore, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createPostgresStore(ctx context.Context, config Config) (store.EntryStore, error) {
	repo, err := storage.NewPostgresRepository(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}
	f.logger.Info("Initialized Postgres backend")
	return repo, nil
}

// createMemoryStore starts empty, or from the seed chart when one exists.
func (f *DefaultFactory) createMemoryStore(ctx context.Context, config Config) (store.EntryStore, error) {
	st := memory.New()
	if config.SeedFile == "" {
		f.logger.Info("Initialized memory backend")
		return st, nil
	}
	if _, err := os.Stat(config.SeedFile); errors.Is(err, os.ErrNotExist) {
		f.logger.Info("Initialized memory backend, seed file not found", "seed_file", config.SeedFile)
		return st, nil
	}

	chart, err := seed.LoadChart(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("load seed chart: %w", err)
	}
	if _, _, err := seed.Apply(ctx, st, chart, f.logger); err != nil {
		return nil, fmt.Errorf("apply seed chart: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)
	return st, nil
}
