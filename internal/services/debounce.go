package services

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of triggers per key into one trailing call.
type Debouncer struct {
	delay time.Duration
	fn    func(key string)

	mu      sync.Mutex
	timers  map[string]*pendingCall
	stopped bool
}

type pendingCall struct {
	timer *time.Timer
}

func NewDebouncer(delay time.Duration, fn func(key string)) *Debouncer {
	return &Debouncer{
		delay:  delay,
		fn:     fn,
		timers: make(map[string]*pendingCall),
	}
}

// Trigger schedules fn(key) delay after the last Trigger for key.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if p, ok := d.timers[key]; ok {
		p.timer.Stop()
	}
	p := &pendingCall{}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(key, p) })
	d.timers[key] = p
}

func (d *Debouncer) fire(key string, p *pendingCall) {
	d.mu.Lock()
	// a superseded timer may still fire once Stop lost the race
	if d.stopped || d.timers[key] != p {
		d.mu.Unlock()
		return
	}
	delete(d.timers, key)
	d.mu.Unlock()
	d.fn(key)
}

// Pending is the number of keys waiting to fire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels every pending call. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, p := range d.timers {
		p.timer.Stop()
		delete(d.timers, key)
	}
}
