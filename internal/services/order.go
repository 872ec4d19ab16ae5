package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"orti/internal/amqp"
	"orti/internal/core"
	"orti/internal/engine"
	"orti/internal/log"
	"orti/internal/store"
)

// OrderState is the lifecycle of one reorder command.
type OrderState int32

const (
	OrderIdle OrderState = iota
	OrderLocallyApplied
	OrderPersisting
	OrderCommitted
	OrderRolledBack
)

func (s OrderState) String() string {
	switch s {
	case OrderIdle:
		return "idle"
	case OrderLocallyApplied:
		return "locally_applied"
	case OrderPersisting:
		return "persisting"
	case OrderCommitted:
		return "committed"
	case OrderRolledBack:
		return "rolled_back"
	}
	return fmt.Sprintf("order_state(%d)", int32(s))
}

func (s OrderState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OrderState) UnmarshalText(b []byte) error {
	for st := OrderIdle; st <= OrderRolledBack; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown order state %q", b)
}

// ReorderOutcome is delivered to the outcome callback once a command settles.
type ReorderOutcome struct {
	ID      uuid.UUID
	Scope   engine.Scope
	MovedID uuid.UUID
	State   OrderState
	Err     error
}

// ReorderCommand captures one optimistic reorder: the snapshot it replaced,
// the snapshot it installed and the write that makes it durable.
type ReorderCommand struct {
	ID          uuid.UUID
	Scope       engine.Scope
	MovedID     uuid.UUID
	TargetIndex int
	Ordered     []uuid.UUID
	Previous    *engine.Snapshot
	Next        *engine.Snapshot

	state   atomic.Int32
	err     error
	done    chan struct{}
	persist func(ctx context.Context) error
}

func newReorderCommand(scope engine.Scope, moved uuid.UUID, target int, ordered []uuid.UUID, prev, next *engine.Snapshot) *ReorderCommand {
	return &ReorderCommand{
		ID:          uuid.New(),
		Scope:       scope,
		MovedID:     moved,
		TargetIndex: target,
		Ordered:     ordered,
		Previous:    prev,
		Next:        next,
		done:        make(chan struct{}),
	}
}

func (c *ReorderCommand) State() OrderState { return OrderState(c.state.Load()) }

func (c *ReorderCommand) setState(s OrderState) { c.state.Store(int32(s)) }

// Done is closed once the command is committed or rolled back.
func (c *ReorderCommand) Done() <-chan struct{} { return c.done }

// Err is the persistence failure, if any. Only meaningful after Done.
func (c *ReorderCommand) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the command settles or ctx ends.
func (c *ReorderCommand) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Persist writes the new order to the store.
func (c *ReorderCommand) Persist(ctx context.Context) error {
	if c.persist == nil {
		return nil
	}
	return c.persist(ctx)
}

func (c *ReorderCommand) finish(state OrderState, err error) {
	c.err = err
	c.setState(state)
	close(c.done)
}

// ReorderHooks lets the owner of the snapshot react to a settled command.
type ReorderHooks struct {
	// Settled is called first, whatever the outcome.
	Settled func()
	// Reload is called after a failure so the persisted order wins.
	Reload func(ctx context.Context) error
	// Committed is called after every update landed.
	Committed func(ctx context.Context)
}

// OrderManager persists sibling orders in the background.
type OrderManager struct {
	writer      store.OrderWriter
	timeout     time.Duration
	concurrency int
	logger      *log.Logger

	mu        sync.Mutex
	onOutcome func(ReorderOutcome)
	inflight  sync.WaitGroup
}

func NewOrderManager(writer store.OrderWriter, timeout time.Duration, concurrency int, logger *log.Logger) *OrderManager {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &OrderManager{
		writer:      writer,
		timeout:     timeout,
		concurrency: concurrency,
		logger:      logger.WithComponent(log.ComponentOrder),
	}
}

// OnOutcome registers fn to be called, from the persisting goroutine, each
// time a command settles.
func (m *OrderManager) OnOutcome(fn func(ReorderOutcome)) {
	m.mu.Lock()
	m.onOutcome = fn
	m.mu.Unlock()
}

// Wait blocks until every background persistence has settled.
func (m *OrderManager) Wait() {
	m.inflight.Wait()
}

// Execute starts background persistence of cmd and returns immediately.
// ctx contributes values only; its cancellation does not stop the write.
func (m *OrderManager) Execute(ctx context.Context, cmd *ReorderCommand, hooks ReorderHooks) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		m.run(context.WithoutCancel(ctx), cmd, hooks)
	}()
}

func (m *OrderManager) run(ctx context.Context, cmd *ReorderCommand, hooks ReorderHooks) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	fields := log.NewFields().WithReorder(cmd.Scope.String(), cmd.MovedID.String(), cmd.TargetIndex)

	cmd.setState(OrderPersisting)
	err := cmd.Persist(ctx)
	if hooks.Settled != nil {
		hooks.Settled()
	}
	if err == nil {
		if hooks.Committed != nil {
			hooks.Committed(ctx)
		}
		cmd.finish(OrderCommitted, nil)
		m.logger.DebugContext(ctx, "Reorder committed", fields.ToSlice()...)
		m.report(cmd)
		return
	}

	failure := &core.PersistenceFailure{Op: "reorder " + cmd.Scope.String(), Err: err}
	m.logger.ErrorContext(ctx, "Reorder persistence failed, reloading", fields.WithError(failure).ToSlice()...)

	if hooks.Reload != nil {
		reloadCtx, cancelReload := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		if rerr := hooks.Reload(reloadCtx); rerr != nil {
			m.logger.ErrorContext(ctx, "Reload after failed reorder failed", fields.WithError(rerr).ToSlice()...)
		}
		cancelReload()
	}
	cmd.finish(OrderRolledBack, failure)
	m.report(cmd)
}

func (m *OrderManager) report(cmd *ReorderCommand) {
	m.mu.Lock()
	fn := m.onOutcome
	m.mu.Unlock()
	if fn != nil {
		fn(ReorderOutcome{ID: cmd.ID, Scope: cmd.Scope, MovedID: cmd.MovedID, State: cmd.State(), Err: cmd.err})
	}
}

// persist numbers ordered 1..N. When an update fails, members already
// rewritten get their previous sort order back, best effort.
func (m *OrderManager) persist(ctx context.Context, scope engine.Scope, ordered []uuid.UUID, previous map[uuid.UUID]int) error {
	update := m.writer.UpdateCategorySortOrder
	if scope.Level == engine.ScopeSubcategories {
		update = m.writer.UpdateSubcategorySortOrder
	}

	var (
		mu      sync.Mutex
		written []uuid.UUID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, id := range ordered {
		g.Go(func() error {
			if err := update(gctx, id, i+1); err != nil {
				return fmt.Errorf("sort order of %s: %w", id, err)
			}
			mu.Lock()
			written = append(written, id)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		return nil
	}

	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()
	for _, id := range written {
		prev, ok := previous[id]
		if !ok {
			continue
		}
		if rerr := update(restoreCtx, id, prev); rerr != nil {
			m.logger.WarnContext(ctx, "Could not restore sort order",
				log.FieldRowID, id,
				log.FieldError, rerr)
		}
	}
	return err
}

// Reorder moves movedID to target within scope. The new order is visible in
// the returned command's Next snapshot, and installed, before this returns;
// persistence continues in the background. Until the command settles, every
// reloaded snapshot gets the new order applied on top.
func (s *Session) Reorder(ctx context.Context, scope engine.Scope, movedID uuid.UUID, target int) (*ReorderCommand, error) {
	prev := s.Snapshot()
	ids, err := prev.Group(scope)
	if err != nil {
		return nil, core.NewStructuralError("reorder", scope.String(), err)
	}
	ordered, err := engine.Reorder(ids, movedID, target)
	if err != nil {
		return nil, core.NewStructuralError("reorder", movedID.String(), err)
	}

	cmd := newReorderCommand(scope, movedID, target, ordered, prev, nil)
	previous := prev.SortOrders(scope)
	cmd.persist = func(ctx context.Context) error {
		return s.orders.persist(ctx, scope, ordered, previous)
	}

	s.trackOrder(cmd)
	next, err := s.applyOrder(cmd)
	if err != nil {
		s.untrackOrder(cmd)
		s.reorders.Delete(cmd.ID.String())
		return nil, core.NewStructuralError("reorder", scope.String(), err)
	}
	cmd.Next = next
	cmd.setState(OrderLocallyApplied)
	s.logger.DebugContext(ctx, "Reorder applied locally",
		log.NewFields().WithReorder(scope.String(), movedID.String(), target).ToSlice()...)

	s.orders.Execute(ctx, cmd, ReorderHooks{
		Settled: func() { s.untrackOrder(cmd) },
		Reload: func(ctx context.Context) error {
			_, err := s.Reload(ctx)
			return err
		},
		Committed: func(ctx context.Context) {
			s.publish(ctx, amqp.WholeYear, amqp.ReasonOrder)
			if _, err := s.Reload(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Reload after reorder failed", log.FieldError, err)
			}
		},
	})
	return cmd, nil
}

// ReorderCommand returns a recent command of this session by id.
func (s *Session) ReorderCommand(id uuid.UUID) (*ReorderCommand, bool) {
	return s.reorders.Get(id.String())
}

// applyOrder installs the order of cmd on whatever snapshot is current. The
// generation is kept, so a reload that started earlier still wins.
func (s *Session) applyOrder(cmd *ReorderCommand) (*engine.Snapshot, error) {
	for {
		cur := s.current.Load()
		next, err := cur.WithOrder(cmd.Scope, cmd.Ordered)
		if err != nil {
			return nil, err
		}
		if s.current.CompareAndSwap(cur, next) {
			return next, nil
		}
	}
}

func (s *Session) trackOrder(cmd *ReorderCommand) {
	s.reorders.Set(cmd.ID.String(), cmd)
	s.pendingMu.Lock()
	s.pending = append(s.pending, cmd)
	s.pendingMu.Unlock()
}

func (s *Session) untrackOrder(cmd *ReorderCommand) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for i, p := range s.pending {
		if p == cmd {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// withPendingOrders applies unsettled reorders to a freshly loaded snapshot.
// A group whose members changed in the store keeps the loaded order.
func (s *Session) withPendingOrders(snap *engine.Snapshot) *engine.Snapshot {
	s.pendingMu.Lock()
	pending := make([]*ReorderCommand, len(s.pending))
	copy(pending, s.pending)
	s.pendingMu.Unlock()

	for _, cmd := range pending {
		if next, err := snap.WithOrder(cmd.Scope, cmd.Ordered); err == nil {
			snap = next
		}
	}
	return snap
}
