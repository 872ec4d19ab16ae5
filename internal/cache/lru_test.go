package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](size, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Hour)
	var evicted []string
	c.OnEvict(func(key string, _ int) { evicted = append(evicted, key) })

	c.Set("2024", 1)
	c.Set("2025", 2)
	if _, ok := c.Get("2024"); !ok {
		t.Fatal("2024 should be cached")
	}
	c.Set("2026", 3)

	if _, ok := c.Get("2025"); ok {
		t.Error("2025 should have been evicted")
	}
	if len(evicted) != 1 || evicted[0] != "2025" {
		t.Errorf("evicted = %v, want [2025]", evicted)
	}
	keys := c.Keys()
	if len(keys) != 2 || keys[0] != "2026" || keys[1] != "2024" {
		t.Errorf("Keys() = %v, want [2026 2024]", keys)
	}
}

func TestLRUCache_TTL(t *testing.T) {
	c, clock := newTestCache(4, time.Minute)
	evicted := 0
	c.OnEvict(func(string, int) { evicted++ })

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(30 * time.Second)
	c.Set("b", 3) // refreshes b

	clock.Advance(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if v, ok := c.Get("b"); !ok || v != 3 {
		t.Errorf("Get(b) = %v, %v; want 3, true", v, ok)
	}
	if len(c.Keys()) != 1 {
		t.Errorf("Keys() = %v", c.Keys())
	}

	clock.Advance(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if evicted != 2 || c.Size() != 0 {
		t.Errorf("evicted=%d size=%d", evicted, c.Size())
	}
}

func TestLRUCache_DeleteDoesNotNotify(t *testing.T) {
	c, _ := newTestCache(2, time.Hour)
	called := false
	c.OnEvict(func(string, int) { called = true })
	c.Set("x", 1)
	c.Delete("x")
	if called || c.Size() != 0 {
		t.Errorf("called=%v size=%d", called, c.Size())
	}
}

func TestManager_Sweep(t *testing.T) {
	c, clock := newTestCache(4, time.Minute)
	c.Set("a", 1)
	clock.Advance(2 * time.Minute)

	m := NewManager()
	m.Register(c)
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
}
