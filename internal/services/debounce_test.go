package services

import (
	"sync"
	"testing"
	"time"
)

type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
	fired chan string
}

func newCallCounter() *callCounter {
	return &callCounter{calls: make(map[string]int), fired: make(chan string, 16)}
}

func (c *callCounter) record(key string) {
	c.mu.Lock()
	c.calls[key]++
	c.mu.Unlock()
	c.fired <- key
}

func (c *callCounter) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

func TestDebouncer_CollapsesBurst(t *testing.T) {
	counter := newCallCounter()
	d := NewDebouncer(30*time.Millisecond, counter.record)
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger("2025")
		time.Sleep(2 * time.Millisecond)
	}
	d.Trigger("2024")

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case key := <-counter.fired:
			seen[key] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, fired so far: %v", seen)
		}
	}

	// nothing else is scheduled
	time.Sleep(80 * time.Millisecond)
	if got := counter.count("2025"); got != 1 {
		t.Errorf("2025 fired %d times, want 1", got)
	}
	if got := counter.count("2024"); got != 1 {
		t.Errorf("2024 fired %d times, want 1", got)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", d.Pending())
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	counter := newCallCounter()
	d := NewDebouncer(50*time.Millisecond, counter.record)

	d.Trigger("2025")
	if d.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", d.Pending())
	}
	d.Stop()
	d.Trigger("2025")

	time.Sleep(120 * time.Millisecond)
	if got := counter.count("2025"); got != 0 {
		t.Errorf("fired %d times after Stop, want 0", got)
	}
}
