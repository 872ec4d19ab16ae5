// Package memory is an in-process EntryStore used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orti/internal/core"
	"orti/internal/store"
)

type entryKey struct {
	sub   uuid.UUID
	year  int
	month int
	plane core.Plane
}

type statusKey struct {
	company uuid.UUID
	year    int
	month   int
}

type Store struct {
	mu        sync.Mutex
	companies map[uuid.UUID]core.Company
	cats      map[uuid.UUID]core.Category
	subs      map[uuid.UUID]core.Subcategory
	entries   map[entryKey]core.Entry
	statuses  map[statusKey]core.MonthStatusRecord

	// failure injection
	sortFailures map[uuid.UUID]error
	sortGate     <-chan struct{}
	sortWrites   int
}

var _ store.EntryStore = (*Store)(nil)

func New() *Store {
	return &Store{
		companies:    make(map[uuid.UUID]core.Company),
		cats:         make(map[uuid.UUID]core.Category),
		subs:         make(map[uuid.UUID]core.Subcategory),
		entries:      make(map[entryKey]core.Entry),
		statuses:     make(map[statusKey]core.MonthStatusRecord),
		sortFailures: make(map[uuid.UUID]error),
	}
}

func (s *Store) Close() error { return nil }

// FailSortOrderFor makes every sort order update of id return err.
// A nil err clears the injection.
func (s *Store) FailSortOrderFor(id uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.sortFailures, id)
		return
	}
	s.sortFailures[id] = err
}

// HoldSortOrders makes sort order updates wait until gate is closed.
func (s *Store) HoldSortOrders(gate <-chan struct{}) {
	s.mu.Lock()
	s.sortGate = gate
	s.mu.Unlock()
}

// SortOrderWrites counts successful sort order updates.
func (s *Store) SortOrderWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortWrites
}

// InjectEntry stores e verbatim, without resolving its subcategory.
func (s *Store) InjectEntry(e core.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.entries[entryKey{e.SubcategoryID, e.Year, e.Month, e.Plane}] = e
}

func (s *Store) GetCompanyByCode(_ context.Context, code string) (core.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.companies {
		if c.Code == code {
			return c, nil
		}
	}
	return core.Company{}, fmt.Errorf("company %q: %w", code, core.ErrNotFound)
}

func (s *Store) CreateCompany(_ context.Context, code, name string) (core.Company, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.Company{}, core.ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.companies {
		if c.Code == code {
			return core.Company{}, fmt.Errorf("company %q: %w", code, core.ErrDuplicateName)
		}
	}
	c := core.Company{ID: uuid.New(), Code: code, Name: name, CreatedAt: time.Now().UTC()}
	s.companies[c.ID] = c
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, companyID uuid.UUID) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.cats {
		if c.CompanyID == companyID {
			out = append(out, s.withSubs(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id uuid.UUID) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	return s.withSubs(c), nil
}

// withSubs must be called with mu held.
func (s *Store) withSubs(c core.Category) core.Category {
	c.Subcategories = nil
	for _, sub := range s.subs {
		if sub.CategoryID == c.ID {
			c.Subcategories = append(c.Subcategories, sub)
		}
	}
	sort.Slice(c.Subcategories, func(i, j int) bool {
		a, b := c.Subcategories[i], c.Subcategories[j]
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.Name < b.Name
	})
	return c
}

func (s *Store) ListEntries(_ context.Context, companyID uuid.UUID, year int, month int) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Entry
	for k, e := range s.entries {
		if k.year != year || (month != store.AllMonths && k.month != month) {
			continue
		}
		if sub, ok := s.subs[k.sub]; ok {
			if s.cats[sub.CategoryID].CompanyID != companyID {
				continue
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) UpsertEntry(_ context.Context, in core.EntryInput) (core.Entry, error) {
	if err := in.Validate(); err != nil {
		return core.Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[in.SubcategoryID]; !ok {
		return core.Entry{}, fmt.Errorf("subcategory %s: %w", in.SubcategoryID, core.ErrNotFound)
	}
	k := entryKey{in.SubcategoryID, in.Year, in.Month, in.Plane}
	e, ok := s.entries[k]
	if !ok {
		e = core.Entry{ID: uuid.New(), SubcategoryID: in.SubcategoryID, Year: in.Year, Month: in.Month, Plane: in.Plane}
	}
	e.Value = in.Value
	e.Notes = in.Notes
	e.UpdatedAt = time.Now().UTC()
	s.entries[k] = e
	return e, nil
}

func (s *Store) ClearSubcategory(_ context.Context, subcategoryID uuid.UUID, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[subcategoryID]; !ok {
		return 0, fmt.Errorf("subcategory %s: %w", subcategoryID, core.ErrNotFound)
	}
	n := 0
	now := time.Now().UTC()
	for k, e := range s.entries {
		if k.sub == subcategoryID && k.year == year {
			e.Value = decimal.Zero
			e.UpdatedAt = now
			s.entries[k] = e
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateCategorySortOrder(ctx context.Context, id uuid.UUID, sortOrder int) error {
	if err := s.waitSortGate(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	c.SortOrder = sortOrder
	s.cats[id] = c
	s.sortWrites++
	return nil
}

func (s *Store) UpdateSubcategorySortOrder(ctx context.Context, id uuid.UUID, sortOrder int) error {
	if err := s.waitSortGate(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return fmt.Errorf("subcategory %s: %w", id, core.ErrNotFound)
	}
	sub.SortOrder = sortOrder
	s.subs[id] = sub
	s.sortWrites++
	return nil
}

func (s *Store) waitSortGate(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	gate := s.sortGate
	failure := s.sortFailures[id]
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return failure
}

func (s *Store) CreateCategory(_ context.Context, in store.CategoryInput) (core.Category, error) {
	if err := in.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[in.CompanyID]; !ok {
		return core.Category{}, fmt.Errorf("company %s: %w", in.CompanyID, core.ErrNotFound)
	}
	for _, c := range s.cats {
		if c.CompanyID == in.CompanyID && strings.EqualFold(c.Name, in.Name) {
			return core.Category{}, fmt.Errorf("category %q: %w", in.Name, core.ErrDuplicateName)
		}
	}
	c := core.Category{
		ID:           uuid.New(),
		CompanyID:    in.CompanyID,
		Name:         in.Name,
		Kind:         in.Kind,
		SortOrder:    in.SortOrder,
		IsCalculated: in.IsCalculated,
	}
	s.cats[c.ID] = c
	main := core.Subcategory{ID: uuid.New(), CategoryID: c.ID, Name: core.MainSubcategoryName, SortOrder: 0}
	s.subs[main.ID] = main
	return s.withSubs(c), nil
}

func (s *Store) DeleteCategory(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cats[id]; !ok {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	for subID, sub := range s.subs {
		if sub.CategoryID == id {
			s.dropEntries(subID)
			delete(s.subs, subID)
		}
	}
	delete(s.cats, id)
	return nil
}

func (s *Store) CreateSubcategory(_ context.Context, categoryID uuid.UUID, name string, sortOrder int) (core.Subcategory, error) {
	name, err := core.ValidateName(name)
	if err != nil {
		return core.Subcategory{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cats[categoryID]; !ok {
		return core.Subcategory{}, fmt.Errorf("category %s: %w", categoryID, core.ErrNotFound)
	}
	for _, sub := range s.subs {
		if sub.CategoryID == categoryID && strings.EqualFold(sub.Name, name) {
			return core.Subcategory{}, fmt.Errorf("subcategory %q: %w", name, core.ErrDuplicateName)
		}
	}
	sub := core.Subcategory{ID: uuid.New(), CategoryID: categoryID, Name: name, SortOrder: sortOrder}
	s.subs[sub.ID] = sub
	return sub, nil
}

func (s *Store) DeleteSubcategory(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return fmt.Errorf("subcategory %s: %w", id, core.ErrNotFound)
	}
	s.dropEntries(id)
	delete(s.subs, id)
	return nil
}

// dropEntries must be called with mu held.
func (s *Store) dropEntries(subID uuid.UUID) {
	for k := range s.entries {
		if k.sub == subID {
			delete(s.entries, k)
		}
	}
}

func (s *Store) ListMonthStatuses(_ context.Context, companyID uuid.UUID, year int) ([]core.MonthStatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.MonthStatusRecord
	for k, st := range s.statuses {
		if k.company == companyID && k.year == year {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (s *Store) SetMonthStatus(_ context.Context, rec core.MonthStatusRecord) error {
	if err := core.ValidateYear(rec.Year); err != nil {
		return err
	}
	if err := core.ValidateMonth(rec.Month); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[statusKey{rec.CompanyID, rec.Year, rec.Month}] = rec
	return nil
}

func (s *Store) ClearMonthStatus(_ context.Context, companyID uuid.UUID, year, month int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.statuses, statusKey{companyID, year, month})
	return nil
}
