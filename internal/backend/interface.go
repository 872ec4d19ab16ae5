package backend

import (
	"context"

	"orti/internal/amqp"
	"orti/internal/services"
	"orti/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the optional change notification client
// and the cleanup function releasing both
type BackendResult struct {
	Store   store.EntryStore
	Changes *amqp.Client
	Cleanup CleanupFunc
}

// Notifier returns the change publisher, or nil when AMQP is not configured.
func (r *BackendResult) Notifier() services.Notifier {
	if r.Changes == nil {
		return nil
	}
	return r.Changes
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	DatabaseURL string

	// Change notifications, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Memory backend specific: chart applied at start, if present
	SeedFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
