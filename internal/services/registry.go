package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"orti/internal/cache"
	"orti/internal/core"
	"orti/internal/log"
	"orti/internal/store"
)

// Registry keeps the open sessions of one company, one per year.
type Registry struct {
	store    store.EntryStore
	company  core.Company
	notifier Notifier
	cfg      SessionConfig
	logger   *log.Logger

	sessions *cache.LRUCache[*Session]
	loads    singleflight.Group
}

func NewRegistry(st store.EntryStore, company core.Company, notifier Notifier, cfg SessionConfig, size int, ttl time.Duration, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	r := &Registry{
		store:    st,
		company:  company,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		sessions: cache.NewLRUCache[*Session](size, ttl),
	}
	r.sessions.OnEvict(func(key string, _ *Session) {
		r.logger.WithComponent(log.ComponentCache).Debug("Session evicted", log.FieldYear, key)
	})
	return r
}

func (r *Registry) Company() core.Company { return r.company }

// Cache exposes the session cache for periodic expiry.
func (r *Registry) Cache() *cache.LRUCache[*Session] { return r.sessions }

// Session returns the session of year, opening it on first use. Concurrent
// callers for the same year share one load.
func (r *Registry) Session(ctx context.Context, year int) (*Session, error) {
	if err := core.ValidateYear(year); err != nil {
		return nil, err
	}
	key := strconv.Itoa(year)
	if s, ok := r.sessions.Get(key); ok {
		return s, nil
	}

	v, err, _ := r.loads.Do(key, func() (any, error) {
		if s, ok := r.sessions.Get(key); ok {
			return s, nil
		}
		s, err := OpenSession(ctx, r.store, r.company, year, r.notifier, r.cfg, r.logger)
		if err != nil {
			return nil, err
		}
		r.sessions.Set(key, s)
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("open session %d: %w", year, err)
	}
	return v.(*Session), nil
}

// Refresh reloads the session of year if it is open.
func (r *Registry) Refresh(ctx context.Context, year int) error {
	s, ok := r.sessions.Get(strconv.Itoa(year))
	if !ok {
		return nil
	}
	_, err := s.Reload(ctx)
	return err
}

// RefreshAll reloads every open session, returning the first error.
func (r *Registry) RefreshAll(ctx context.Context) error {
	var first error
	for _, year := range r.Years() {
		if err := r.Refresh(ctx, year); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Years lists the open years in ascending order.
func (r *Registry) Years() []int {
	keys := r.sessions.Keys()
	years := make([]int, 0, len(keys))
	for _, k := range keys {
		if y, err := strconv.Atoi(k); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years
}
