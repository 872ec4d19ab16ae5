package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"orti/internal/core"
)

var kindRank = map[core.Kind]int{
	core.KindRevenue: 0,
	core.KindExpense: 1,
	core.KindBalance: 2,
}

// Snapshot is one immutable, fully aggregated view of a company year.
// Changes produce a new Snapshot; nothing is mutated in place.
type Snapshot struct {
	CompanyID  uuid.UUID
	Year       int
	Generation uint64
	LoadedAt   time.Time

	categories []core.Category
	statuses   map[int]core.MonthStatusRecord
	table      *Table
	warnings   []core.IntegrityWarning
	entries    int
}

// NewSnapshot sorts the structure and aggregates entries of year.
func NewSnapshot(companyID uuid.UUID, year int, categories []core.Category, entries []core.Entry, statuses []core.MonthStatusRecord) *Snapshot {
	cats := cloneCategories(categories)
	sortCategories(cats)
	for i := range cats {
		sortSubcategories(cats[i].Subcategories)
	}

	table, warnings := Aggregate(year, cats, entries)

	byMonth := make(map[int]core.MonthStatusRecord, len(statuses))
	for _, st := range statuses {
		if st.Year == year && core.ValidateMonth(st.Month) == nil {
			byMonth[st.Month] = st
		}
	}

	return &Snapshot{
		CompanyID:  companyID,
		Year:       year,
		LoadedAt:   time.Now(),
		categories: cats,
		statuses:   byMonth,
		table:      table,
		warnings:   warnings,
		entries:    len(entries),
	}
}

// Table returns the aggregate. Callers must treat it as read-only.
func (s *Snapshot) Table() *Table { return s.table }

// Warnings lists the entries skipped during aggregation.
func (s *Snapshot) Warnings() []core.IntegrityWarning {
	return append([]core.IntegrityWarning(nil), s.warnings...)
}

// EntryCount is the number of records fed to aggregation.
func (s *Snapshot) EntryCount() int { return s.entries }

// Categories returns a deep copy of the ordered structure.
func (s *Snapshot) Categories() []core.Category {
	return cloneCategories(s.categories)
}

// Category returns a copy of one category.
func (s *Snapshot) Category(id uuid.UUID) (core.Category, bool) {
	for _, c := range s.categories {
		if c.ID == id {
			return cloneCategories([]core.Category{c})[0], true
		}
	}
	return core.Category{}, false
}

// CategoryOfSubcategory resolves a subcategory to its owner.
func (s *Snapshot) CategoryOfSubcategory(subID uuid.UUID) (core.Category, core.Subcategory, bool) {
	for _, c := range s.categories {
		if sub, ok := c.Subcategory(subID); ok {
			return c, sub, true
		}
	}
	return core.Category{}, core.Subcategory{}, false
}

// StatusRecord returns the manual override stored for month, if any.
func (s *Snapshot) StatusRecord(month int) (core.MonthStatusRecord, bool) {
	st, ok := s.statuses[month]
	return st, ok
}

// MonthStatus classifies month relative to now.
func (s *Snapshot) MonthStatus(month int, now time.Time) (MonthStatus, error) {
	if err := core.ValidateMonth(month); err != nil {
		return MonthStatus{}, err
	}
	rec, hasRec := s.statuses[month]
	override := hasRec && rec.IsConsolidated
	hasCons := s.table.HasData(month, core.PlaneConsolidated)
	hasProj := s.table.HasData(month, core.PlaneProjected)

	st := MonthStatus{
		Year:               s.Year,
		Month:              month,
		State:              Classify(s.Year, month, now, hasCons, hasProj, override),
		ManuallyOverridden: override && rec.ManuallyMarked,
		HasConsolidated:    hasCons,
		HasProjected:       hasProj,
	}
	if override && !rec.ConsolidatedAt.IsZero() {
		at := rec.ConsolidatedAt
		st.ConsolidatedAt = &at
	}
	return st, nil
}

// Group returns the ordered ids of a sibling group.
func (s *Snapshot) Group(scope Scope) ([]uuid.UUID, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	switch scope.Level {
	case ScopeCategories:
		for _, c := range s.categories {
			if c.Kind == scope.Kind {
				ids = append(ids, c.ID)
			}
		}
	case ScopeSubcategories:
		cat, ok := s.Category(scope.CategoryID)
		if !ok {
			return nil, fmt.Errorf("category %s: %w", scope.CategoryID, core.ErrNotFound)
		}
		for _, sub := range cat.Subcategories {
			ids = append(ids, sub.ID)
		}
	}
	return ids, nil
}

// SortOrders returns the current sort order of each member of scope.
func (s *Snapshot) SortOrders(scope Scope) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int)
	for _, c := range s.categories {
		switch scope.Level {
		case ScopeCategories:
			if c.Kind == scope.Kind {
				out[c.ID] = c.SortOrder
			}
		case ScopeSubcategories:
			if c.ID == scope.CategoryID {
				for _, sub := range c.Subcategories {
					out[sub.ID] = sub.SortOrder
				}
			}
		}
	}
	return out
}

// WithOrder returns a copy whose sibling group follows ordered, numbered 1..N.
// Totals are order independent, so the aggregate is shared.
func (s *Snapshot) WithOrder(scope Scope, ordered []uuid.UUID) (*Snapshot, error) {
	current, err := s.Group(scope)
	if err != nil {
		return nil, err
	}
	if len(current) != len(ordered) {
		return nil, fmt.Errorf("reorder %s: expected %d members, got %d", scope, len(current), len(ordered))
	}
	pos := make(map[uuid.UUID]int, len(ordered))
	for i, id := range ordered {
		pos[id] = i + 1
	}
	for _, id := range current {
		if _, ok := pos[id]; !ok {
			return nil, fmt.Errorf("reorder %s: %s missing: %w", scope, id, core.ErrNotFound)
		}
	}

	next := *s
	next.categories = make([]core.Category, len(s.categories))
	copy(next.categories, s.categories)

	switch scope.Level {
	case ScopeCategories:
		for i := range next.categories {
			if order, ok := pos[next.categories[i].ID]; ok {
				next.categories[i].SortOrder = order
			}
		}
		sortCategories(next.categories)
	case ScopeSubcategories:
		for i := range next.categories {
			if next.categories[i].ID != scope.CategoryID {
				continue
			}
			subs := make([]core.Subcategory, len(next.categories[i].Subcategories))
			copy(subs, next.categories[i].Subcategories)
			for j := range subs {
				subs[j].SortOrder = pos[subs[j].ID]
			}
			sortSubcategories(subs)
			next.categories[i].Subcategories = subs
		}
	}
	return &next, nil
}

// WithGeneration returns a shallow copy stamped with gen.
func (s *Snapshot) WithGeneration(gen uint64) *Snapshot {
	next := *s
	next.Generation = gen
	return &next
}

func cloneCategories(in []core.Category) []core.Category {
	out := make([]core.Category, len(in))
	for i, c := range in {
		out[i] = c
		out[i].Subcategories = append([]core.Subcategory(nil), c.Subcategories...)
	}
	return out
}

func sortCategories(cats []core.Category) {
	sort.SliceStable(cats, func(i, j int) bool {
		a, b := cats[i], cats[j]
		if kindRank[a.Kind] != kindRank[b.Kind] {
			return kindRank[a.Kind] < kindRank[b.Kind]
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.Name < b.Name
	})
}

func sortSubcategories(subs []core.Subcategory) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].SortOrder != subs[j].SortOrder {
			return subs[i].SortOrder < subs[j].SortOrder
		}
		return subs[i].Name < subs[j].Name
	})
}
