package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"orti/internal/amqp"
	"orti/internal/cache"
	"orti/internal/core"
	"orti/internal/engine"
	"orti/internal/log"
	"orti/internal/store"
)

// Notifier announces persisted changes to other processes.
type Notifier interface {
	PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
}

// SessionConfig holds the tunables of a Session.
type SessionConfig struct {
	// PersistTimeout bounds the background sort order persistence (default: 10s)
	PersistTimeout time.Duration

	// PersistConcurrency is the number of sort order updates in flight (default: 4)
	PersistConcurrency int

	// Now is the clock used for month classification (default: time.Now)
	Now func() time.Time
}

// DefaultSessionConfig returns sensible defaults
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PersistTimeout:     10 * time.Second,
		PersistConcurrency: 4,
		Now:                time.Now,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	def := DefaultSessionConfig()
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = def.PersistTimeout
	}
	if c.PersistConcurrency < 1 {
		c.PersistConcurrency = def.PersistConcurrency
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	return c
}

// Session owns the snapshot of one company year. Readers never lock: every
// change installs a whole new snapshot.
type Session struct {
	store    store.EntryStore
	notifier Notifier
	company  core.Company
	year     int
	cfg      SessionConfig
	logger   *log.Logger
	orders   *OrderManager

	current atomic.Pointer[engine.Snapshot]
	gen     atomic.Uint64

	pendingMu sync.Mutex
	pending   []*ReorderCommand
	reorders  *cache.LRUCache[*ReorderCommand]
}

// Recent reorder commands stay queryable for this long after they start.
const (
	reorderHistorySize = 64
	reorderHistoryTTL  = 15 * time.Minute
)

// NewSession creates an empty session for year. Call Reload to populate it.
func NewSession(st store.EntryStore, company core.Company, year int, notifier Notifier, cfg SessionConfig, logger *log.Logger) (*Session, error) {
	if err := core.ValidateYear(year); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	cfg = cfg.withDefaults()

	s := &Session{
		store:    st,
		notifier: notifier,
		company:  company,
		year:     year,
		cfg:      cfg,
		logger:   logger.WithComponent(log.ComponentSession).ForYear(company.Code, year),
		reorders: cache.NewLRUCache[*ReorderCommand](reorderHistorySize, reorderHistoryTTL),
	}
	s.orders = NewOrderManager(st, cfg.PersistTimeout, cfg.PersistConcurrency, logger)
	s.current.Store(engine.NewSnapshot(company.ID, year, nil, nil, nil))
	return s, nil
}

// OpenSession creates a session and performs its first load.
func OpenSession(ctx context.Context, st store.EntryStore, company core.Company, year int, notifier Notifier, cfg SessionConfig, logger *log.Logger) (*Session, error) {
	s, err := NewSession(st, company, year, notifier, cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) Year() int             { return s.year }
func (s *Session) Company() core.Company { return s.company }

// Orders exposes the order manager so callers can observe reorder outcomes.
func (s *Session) Orders() *OrderManager { return s.orders }

// Snapshot returns the currently installed snapshot.
func (s *Session) Snapshot() *engine.Snapshot {
	return s.current.Load()
}

// Reload fetches the structure, entries and month statuses of the session year
// and installs them, unless a newer reload already installed something. The
// installed snapshot is returned.
func (s *Session) Reload(ctx context.Context) (*engine.Snapshot, error) {
	ticket := s.gen.Add(1)

	var (
		cats     []core.Category
		entries  []core.Entry
		statuses []core.MonthStatusRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cats, err = s.store.ListCategories(gctx, s.company.ID)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.store.ListEntries(gctx, s.company.ID, s.year, store.AllMonths)
		return err
	})
	g.Go(func() error {
		var err error
		statuses, err = s.store.ListMonthStatuses(gctx, s.company.ID, s.year)
		return err
	})
	if err := g.Wait(); err != nil {
		return s.Snapshot(), fmt.Errorf("reload %d: %w", s.year, err)
	}

	snap := engine.NewSnapshot(s.company.ID, s.year, cats, entries, statuses).WithGeneration(ticket)
	for _, w := range snap.Warnings() {
		s.logger.WarnContext(ctx, "Entry skipped during aggregation",
			log.FieldEntryID, w.EntryID,
			log.FieldSubcategoryID, w.SubcategoryID,
			"reason", w.Reason)
	}

	installed, ok := s.install(snap)
	if !ok {
		s.logger.DebugContext(ctx, "Discarding stale reload", log.FieldGeneration, ticket)
		return s.Snapshot(), nil
	}
	s.logger.DebugContext(ctx, "Snapshot installed",
		log.FieldGeneration, ticket,
		log.FieldCount, snap.EntryCount())
	return installed, nil
}

// install swaps a loaded snapshot in when nothing newer is installed. Pending
// reorders are applied again on every attempt, so one installed concurrently
// is not lost.
func (s *Session) install(loaded *engine.Snapshot) (*engine.Snapshot, bool) {
	for {
		cur := s.current.Load()
		if cur != nil && cur.Generation > loaded.Generation {
			return nil, false
		}
		next := s.withPendingOrders(loaded)
		if s.current.CompareAndSwap(cur, next) {
			return next, true
		}
	}
}

// Presentation

// Cell is the displayed value of a category or subcategory month under view.
func (s *Session) Cell(id uuid.UUID, month int, view core.ViewMode) (decimal.Decimal, error) {
	if err := core.ValidateMonth(month); err != nil {
		return decimal.Zero, err
	}
	if !view.IsValid() {
		return decimal.Zero, core.ErrInvalidView
	}
	cell, ok := s.Snapshot().Table().Cell(id, month)
	if !ok {
		return decimal.Zero, core.NewStructuralError("cell", id.String(), core.ErrNotFound)
	}
	return engine.Project(cell, view), nil
}

func (s *Session) YearTotals(view core.ViewMode) (engine.YearTotals, error) {
	if !view.IsValid() {
		return engine.YearTotals{}, core.ErrInvalidView
	}
	return s.Snapshot().Table().Totals(view), nil
}

func (s *Session) MonthStatus(month int) (engine.MonthStatus, error) {
	return s.Snapshot().MonthStatus(month, s.cfg.Now())
}

// MonthStatuses classifies all twelve months against one clock reading.
func (s *Session) MonthStatuses() []engine.MonthStatus {
	snap := s.Snapshot()
	now := s.cfg.Now()
	out := make([]engine.MonthStatus, 0, core.MonthsPerYear)
	for m := 1; m <= core.MonthsPerYear; m++ {
		st, _ := snap.MonthStatus(m, now)
		out = append(out, st)
	}
	return out
}

// Validation reconciles one category month.
func (s *Session) Validation(categoryID uuid.UUID, month int, view core.ViewMode) (engine.ReconciliationResult, error) {
	if err := core.ValidateMonth(month); err != nil {
		return engine.ReconciliationResult{}, err
	}
	if !view.IsValid() {
		return engine.ReconciliationResult{}, core.ErrInvalidView
	}
	res, ok := s.Snapshot().Table().Reconcile(categoryID, month, view)
	if !ok {
		return engine.ReconciliationResult{}, core.NewStructuralError("validation", categoryID.String(), core.ErrNotFound)
	}
	return res, nil
}

// ValidateYear returns the mismatching category months of the year.
func (s *Session) ValidateYear(view core.ViewMode) ([]engine.ReconciliationResult, error) {
	if !view.IsValid() {
		return nil, core.ErrInvalidView
	}
	snap := s.Snapshot()
	table := snap.Table()
	var out []engine.ReconciliationResult
	for _, c := range snap.Categories() {
		for m := 1; m <= core.MonthsPerYear; m++ {
			res, ok := table.Reconcile(c.ID, m, view)
			if ok && !res.IsValid {
				out = append(out, res)
			}
		}
	}
	return out, nil
}

// BalanceSeries rolls startingBalance forward from anchorMonth; months before
// the anchor keep their recorded balances.
func (s *Session) BalanceSeries(anchorMonth int, startingBalance decimal.Decimal, view core.ViewMode) (engine.Series, error) {
	if !view.IsValid() {
		return engine.Series{}, core.ErrInvalidView
	}
	table := s.Snapshot().Table()
	return engine.RollForward(anchorMonth, startingBalance, table.NetCashFlow(view), table.RecordedBalances(view))
}

func (s *Session) Variance() engine.YearVariance {
	return s.Snapshot().Table().YearVariance()
}

func (s *Session) CategoryVariance(id uuid.UUID) ([core.MonthsPerYear]engine.Variance, error) {
	v, ok := s.Snapshot().Table().CategoryVariance(id)
	if !ok {
		return v, core.NewStructuralError("variance", id.String(), core.ErrNotFound)
	}
	return v, nil
}

func (s *Session) MonthlySummary() []engine.MonthSummary {
	return s.Snapshot().Table().MonthlySummary()
}

func (s *Session) Categories() []core.Category {
	return s.Snapshot().Categories()
}

// Writes

// EntryRequest targets either a subcategory or a category; a category id
// writes to the category's Main subcategory.
type EntryRequest struct {
	TargetID uuid.UUID
	Month    int
	Plane    core.Plane
	Value    decimal.Decimal
	Notes    string
}

// SaveEntry upserts one cell and reloads.
func (s *Session) SaveEntry(ctx context.Context, req EntryRequest) (core.Entry, error) {
	subID, err := s.resolveTarget(req.TargetID)
	if err != nil {
		return core.Entry{}, err
	}

	in := core.EntryInput{
		SubcategoryID: subID,
		Year:          s.year,
		Month:         req.Month,
		Plane:         req.Plane,
		Value:         req.Value.Round(2),
		Notes:         req.Notes,
	}
	if err := in.Validate(); err != nil {
		return core.Entry{}, err
	}

	entry, err := s.store.UpsertEntry(ctx, in)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Entry{}, core.NewStructuralError("save entry", subID.String(), err)
		}
		return core.Entry{}, fmt.Errorf("save entry: %w", err)
	}

	log.NewStructuredLogger(s.logger).LogCellWritten(ctx, subID.String(), req.Month, req.Plane.String(), entry.Value.String())
	s.afterWrite(ctx, req.Month, amqp.ReasonEntry)
	return entry, nil
}

// resolveTarget maps a category or subcategory id to the subcategory that
// receives the entry.
func (s *Session) resolveTarget(id uuid.UUID) (uuid.UUID, error) {
	snap := s.Snapshot()
	if cat, sub, ok := snap.CategoryOfSubcategory(id); ok {
		if cat.IsCalculated {
			return uuid.Nil, core.NewStructuralError("save entry", cat.Name, core.ErrCalculatedCategory)
		}
		return sub.ID, nil
	}
	cat, ok := snap.Category(id)
	if !ok {
		return uuid.Nil, core.NewStructuralError("save entry", id.String(), core.ErrNotFound)
	}
	if cat.IsCalculated {
		return uuid.Nil, core.NewStructuralError("save entry", cat.Name, core.ErrCalculatedCategory)
	}
	main, ok := cat.Main()
	if !ok {
		return uuid.Nil, core.NewStructuralError("save entry", cat.Name+"/"+core.MainSubcategoryName, core.ErrNotFound)
	}
	return main.ID, nil
}

// ClearSubcategory zeroes every entry of a subcategory in the session year.
func (s *Session) ClearSubcategory(ctx context.Context, subID uuid.UUID) (int, error) {
	cat, _, ok := s.Snapshot().CategoryOfSubcategory(subID)
	if !ok {
		return 0, core.NewStructuralError("clear subcategory", subID.String(), core.ErrNotFound)
	}
	if cat.IsCalculated {
		return 0, core.NewStructuralError("clear subcategory", cat.Name, core.ErrCalculatedCategory)
	}
	n, err := s.store.ClearSubcategory(ctx, subID, s.year)
	if err != nil {
		return 0, fmt.Errorf("clear subcategory: %w", err)
	}
	s.afterWrite(ctx, amqp.WholeYear, amqp.ReasonEntry)
	return n, nil
}

// CreateCategory appends a category at the end of its kind.
func (s *Session) CreateCategory(ctx context.Context, name string, kind core.Kind, calculated bool) (core.Category, error) {
	next := 1
	for _, order := range s.Snapshot().SortOrders(engine.CategoriesOf(kind)) {
		if order >= next {
			next = order + 1
		}
	}
	cat, err := s.store.CreateCategory(ctx, store.CategoryInput{
		CompanyID:    s.company.ID,
		Name:         name,
		Kind:         kind,
		SortOrder:    next,
		IsCalculated: calculated,
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.afterWrite(ctx, amqp.WholeYear, amqp.ReasonStructure)
	return cat, nil
}

// DeleteCategory removes a category with its subcategories and entries.
func (s *Session) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.NewStructuralError("delete category", id.String(), err)
		}
		return fmt.Errorf("delete category: %w", err)
	}
	s.afterWrite(ctx, amqp.WholeYear, amqp.ReasonStructure)
	return nil
}

// CreateSubcategory appends a subcategory to categoryID.
func (s *Session) CreateSubcategory(ctx context.Context, categoryID uuid.UUID, name string) (core.Subcategory, error) {
	cat, ok := s.Snapshot().Category(categoryID)
	if !ok {
		return core.Subcategory{}, core.NewStructuralError("create subcategory", categoryID.String(), core.ErrNotFound)
	}
	if cat.IsCalculated {
		return core.Subcategory{}, core.NewStructuralError("create subcategory", cat.Name, core.ErrCalculatedCategory)
	}
	next := 1
	for _, sub := range cat.Subcategories {
		if sub.SortOrder >= next {
			next = sub.SortOrder + 1
		}
	}
	sub, err := s.store.CreateSubcategory(ctx, categoryID, name, next)
	if err != nil {
		return core.Subcategory{}, fmt.Errorf("create subcategory: %w", err)
	}
	s.afterWrite(ctx, amqp.WholeYear, amqp.ReasonStructure)
	return sub, nil
}

// DeleteSubcategory removes an explicit subcategory and its entries.
func (s *Session) DeleteSubcategory(ctx context.Context, subID uuid.UUID) error {
	_, sub, ok := s.Snapshot().CategoryOfSubcategory(subID)
	if !ok {
		return core.NewStructuralError("delete subcategory", subID.String(), core.ErrNotFound)
	}
	if sub.IsMain() {
		return core.NewStructuralError("delete subcategory", sub.Name, core.ErrMainSubcategory)
	}
	if err := s.store.DeleteSubcategory(ctx, subID); err != nil {
		return fmt.Errorf("delete subcategory: %w", err)
	}
	s.afterWrite(ctx, amqp.WholeYear, amqp.ReasonStructure)
	return nil
}

// afterWrite announces the change and reloads. Neither failure fails the
// write: the store already holds the new state.
func (s *Session) afterWrite(ctx context.Context, month int, reason string) {
	s.publish(ctx, month, reason)
	if _, err := s.Reload(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Reload after write failed",
			log.FieldOperation, reason,
			log.FieldError, err)
	}
}

func (s *Session) publish(ctx context.Context, month int, reason string) {
	if s.notifier == nil {
		return
	}
	msg := amqp.NewChangeMessage(s.company.ID, s.year, month, reason)
	if err := s.notifier.PublishChange(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish change notification",
			log.FieldMonth, month,
			log.FieldOperation, reason,
			log.FieldError, err)
	}
}
