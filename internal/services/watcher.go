package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"orti/internal/amqp"
	"orti/internal/log"
)

// ChangeSource delivers change notifications until ctx ends.
type ChangeSource interface {
	ConsumeChanges(ctx context.Context, handler func(context.Context, *amqp.ChangeMessage) error) error
}

// Refresher reloads the session of a year.
type Refresher interface {
	Refresh(ctx context.Context, year int) error
}

// WatcherConfig holds configuration for the change watcher
type WatcherConfig struct {
	// Debounce collapses bursts of notifications per year (default: 500ms)
	Debounce time.Duration

	// ReloadTimeout bounds one refresh (default: 30s)
	ReloadTimeout time.Duration
}

// DefaultWatcherConfig returns sensible defaults
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Debounce:      500 * time.Millisecond,
		ReloadTimeout: 30 * time.Second,
	}
}

// Watcher turns change notifications into debounced session reloads.
type Watcher struct {
	source    ChangeSource
	refresher Refresher
	companyID uuid.UUID
	config    WatcherConfig
	logger    *log.Logger
	debouncer *Debouncer

	// Lifecycle management
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

func NewWatcher(source ChangeSource, refresher Refresher, companyID uuid.UUID, config WatcherConfig, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if config.ReloadTimeout <= 0 {
		config.ReloadTimeout = DefaultWatcherConfig().ReloadTimeout
	}
	w := &Watcher{
		source:    source,
		refresher: refresher,
		companyID: companyID,
		config:    config,
		logger:    logger.WithComponent(log.ComponentWatcher),
	}
	w.debouncer = NewDebouncer(config.Debounce, w.refresh)
	return w
}

// Start begins consuming notifications. Returns an error if already running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	done := make(chan struct{})
	w.doneCh = done
	w.debouncer = NewDebouncer(w.config.Debounce, w.refresh)
	w.mu.Unlock()

	go w.runLoop(runCtx, done)

	w.logger.InfoContext(ctx, "Change watcher started", "debounce", w.config.Debounce)
	return nil
}

// Stop cancels consumption and pending reloads, and waits for the loop to exit.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel, done, debouncer := w.cancel, w.doneCh, w.debouncer
	w.mu.Unlock()

	cancel()
	debouncer.Stop()

	// The consumer is cancelled either way; a slow exit must not block a
	// later Start.
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	select {
	case <-done:
		w.logger.InfoContext(ctx, "Change watcher stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Change watcher stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the watcher is currently running
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	if err := w.source.ConsumeChanges(ctx, w.Handle); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "Change consumer exited", log.FieldError, err)
	}
}

// Handle schedules a reload for the year a notification refers to.
// Notifications of other companies are ignored.
func (w *Watcher) Handle(_ context.Context, msg *amqp.ChangeMessage) error {
	if msg.CompanyID != uuid.Nil && msg.CompanyID != w.companyID {
		return nil
	}
	w.mu.Lock()
	d := w.debouncer
	w.mu.Unlock()
	d.Trigger(strconv.Itoa(msg.Year))
	return nil
}

func (w *Watcher) refresh(key string) {
	year, err := strconv.Atoi(key)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.config.ReloadTimeout)
	defer cancel()

	start := time.Now()
	if err := w.refresher.Refresh(ctx, year); err != nil {
		w.logger.ErrorContext(ctx, "Reload after change notification failed",
			log.FieldYear, year,
			log.FieldError, err)
		return
	}
	w.logger.DebugContext(ctx, "Reloaded after change notification",
		log.FieldYear, year,
		log.FieldDuration, time.Since(start).Milliseconds())
}
