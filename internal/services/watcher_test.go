package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"orti/internal/amqp"
)

// scriptedSource replays msgs then blocks until the consumer is cancelled.
type scriptedSource struct {
	msgs []*amqp.ChangeMessage
}

func (s *scriptedSource) ConsumeChanges(ctx context.Context, handler func(context.Context, *amqp.ChangeMessage) error) error {
	for _, m := range s.msgs {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

type recordingRefresher struct {
	mu    sync.Mutex
	years []int
	done  chan int
}

func (r *recordingRefresher) Refresh(_ context.Context, year int) error {
	r.mu.Lock()
	r.years = append(r.years, year)
	r.mu.Unlock()
	r.done <- year
	return nil
}

func (r *recordingRefresher) refreshed() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.years...)
}

func TestWatcher_DebouncesPerYear(t *testing.T) {
	company := uuid.New()
	var msgs []*amqp.ChangeMessage
	for month := 1; month <= 5; month++ {
		msgs = append(msgs, amqp.NewChangeMessage(company, 2025, month, amqp.ReasonEntry))
	}
	msgs = append(msgs, amqp.NewChangeMessage(uuid.New(), 2024, 1, amqp.ReasonEntry))

	refresher := &recordingRefresher{done: make(chan int, 8)}
	w := NewWatcher(&scriptedSource{msgs: msgs}, refresher, company,
		WatcherConfig{Debounce: 20 * time.Millisecond, ReloadTimeout: time.Second}, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !w.IsRunning() {
		t.Error("watcher should be running after Start")
	}
	if err := w.Start(ctx); err == nil {
		t.Error("expected error when starting a running watcher")
	}

	select {
	case year := <-refresher.done:
		if year != 2025 {
			t.Errorf("refreshed year %d, want 2025", year)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh within 2s")
	}

	time.Sleep(100 * time.Millisecond)
	if got := refresher.refreshed(); len(got) != 1 {
		t.Errorf("refreshed %v, want a single 2025 refresh", got)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if w.IsRunning() {
		t.Error("watcher should not be running after Stop")
	}
}

// stubbornSource ignores cancellation until released.
type stubbornSource struct {
	release chan struct{}
}

func (s *stubbornSource) ConsumeChanges(ctx context.Context, _ func(context.Context, *amqp.ChangeMessage) error) error {
	<-s.release
	return ctx.Err()
}

func TestWatcher_RestartAfterStopTimeout(t *testing.T) {
	src := &stubbornSource{release: make(chan struct{})}
	w := NewWatcher(src, &recordingRefresher{done: make(chan int, 1)}, uuid.New(), DefaultWatcherConfig(), nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := w.Stop(ctx); err == nil {
		t.Error("expected Stop to time out while the consumer hangs")
	}
	if w.IsRunning() {
		t.Error("watcher still reported running after Stop")
	}

	close(src.release)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestWatcher_StopNotRunning(t *testing.T) {
	w := NewWatcher(&scriptedSource{}, &recordingRefresher{done: make(chan int, 1)}, uuid.New(), DefaultWatcherConfig(), nil)
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on idle watcher returned %v", err)
	}
}

func TestDefaultWatcherConfig(t *testing.T) {
	config := DefaultWatcherConfig()
	if config.Debounce != 500*time.Millisecond {
		t.Errorf("expected Debounce 500ms, got %v", config.Debounce)
	}
	if config.ReloadTimeout != 30*time.Second {
		t.Errorf("expected ReloadTimeout 30s, got %v", config.ReloadTimeout)
	}
}
