package engine

import (
	"github.com/google/uuid"

	"orti/internal/core"
)

// CategoryTotals is the per-month aggregate of one category.
//
// Direct is the category's own "Main" bucket, Explicit the sum of every other
// subcategory and Rollup the sum of all of them. Effective is what gets shown:
// per month and plane it is Explicit when any explicit subcategory holds a
// non-zero value there, and Direct otherwise.
type CategoryTotals struct {
	CategoryID uuid.UUID
	Kind       core.Kind
	Calculated bool
	Direct     MonthCells
	Explicit   MonthCells
	Rollup     MonthCells
	Effective  MonthCells
}

// SubcategoryTotals is the per-month aggregate of one subcategory.
type SubcategoryTotals struct {
	SubcategoryID uuid.UUID
	CategoryID    uuid.UUID
	Main          bool
	Cells         MonthCells
}

// Table is the result of folding one year of entries. It is never mutated
// after Aggregate returns.
type Table struct {
	Year          int
	categories    map[uuid.UUID]*CategoryTotals
	subcategories map[uuid.UUID]*SubcategoryTotals
	// explicit subcategory ids per category, in structure order
	children map[uuid.UUID][]uuid.UUID
}

// Aggregate initializes every category and subcategory month to zero and adds
// each entry of year into its plane. Entries whose subcategory is unknown, or
// whose month is out of range, are skipped and reported.
func Aggregate(year int, categories []core.Category, entries []core.Entry) (*Table, []core.IntegrityWarning) {
	t := &Table{
		Year:          year,
		categories:    make(map[uuid.UUID]*CategoryTotals, len(categories)),
		subcategories: make(map[uuid.UUID]*SubcategoryTotals),
		children:      make(map[uuid.UUID][]uuid.UUID, len(categories)),
	}

	for _, c := range categories {
		t.categories[c.ID] = &CategoryTotals{
			CategoryID: c.ID,
			Kind:       c.Kind,
			Calculated: c.IsCalculated,
			Direct:     zeroCells(),
			Explicit:   zeroCells(),
			Rollup:     zeroCells(),
			Effective:  zeroCells(),
		}
		for _, s := range c.Subcategories {
			t.subcategories[s.ID] = &SubcategoryTotals{
				SubcategoryID: s.ID,
				CategoryID:    c.ID,
				Main:          s.IsMain(),
				Cells:         zeroCells(),
			}
			if !s.IsMain() {
				t.children[c.ID] = append(t.children[c.ID], s.ID)
			}
		}
	}

	var warnings []core.IntegrityWarning
	for _, e := range entries {
		if e.Year != year {
			continue
		}
		sub, ok := t.subcategories[e.SubcategoryID]
		if !ok {
			warnings = append(warnings, core.IntegrityWarning{
				EntryID:       e.ID,
				SubcategoryID: e.SubcategoryID,
				Reason:        "subcategory does not resolve to a known category",
			})
			continue
		}
		if core.ValidateMonth(e.Month) != nil {
			warnings = append(warnings, core.IntegrityWarning{
				EntryID:       e.ID,
				SubcategoryID: e.SubcategoryID,
				Reason:        "month out of range",
			})
			continue
		}
		sub.Cells[e.Month-1].add(e.Plane, e.Value)
	}

	for _, sub := range t.subcategories {
		cat := t.categories[sub.CategoryID]
		for m := range sub.Cells {
			cat.Rollup[m] = cat.Rollup[m].Add(sub.Cells[m])
			if sub.Main {
				cat.Direct[m] = cat.Direct[m].Add(sub.Cells[m])
			} else {
				cat.Explicit[m] = cat.Explicit[m].Add(sub.Cells[m])
			}
		}
	}

	for id, cat := range t.categories {
		for m := range cat.Effective {
			consolidated, projected := t.explicitHasData(id, m)
			eff := Cell{Entries: cat.Rollup[m].Entries}
			if consolidated {
				eff.Consolidated = cat.Explicit[m].Consolidated
			} else {
				eff.Consolidated = cat.Direct[m].Consolidated
			}
			if projected {
				eff.Projected = cat.Explicit[m].Projected
			} else {
				eff.Projected = cat.Direct[m].Projected
			}
			cat.Effective[m] = eff
		}
	}

	return t, warnings
}

// explicitHasData reports, per plane, whether any explicit subcategory of the
// category holds a non-zero value in month index m.
func (t *Table) explicitHasData(categoryID uuid.UUID, m int) (consolidated, projected bool) {
	for _, id := range t.children[categoryID] {
		c := t.subcategories[id].Cells[m]
		if !c.Consolidated.IsZero() {
			consolidated = true
		}
		if !c.Projected.IsZero() {
			projected = true
		}
	}
	return consolidated, projected
}

// Category returns a copy of the category aggregate.
func (t *Table) Category(id uuid.UUID) (CategoryTotals, bool) {
	c, ok := t.categories[id]
	if !ok {
		return CategoryTotals{}, false
	}
	return *c, true
}

// Subcategory returns a copy of the subcategory aggregate.
func (t *Table) Subcategory(id uuid.UUID) (SubcategoryTotals, bool) {
	s, ok := t.subcategories[id]
	if !ok {
		return SubcategoryTotals{}, false
	}
	return *s, true
}

// ExplicitChildren lists the non-Main subcategory ids of a category.
func (t *Table) ExplicitChildren(categoryID uuid.UUID) []uuid.UUID {
	return append([]uuid.UUID(nil), t.children[categoryID]...)
}

// Row returns the displayed months for a category or subcategory id.
func (t *Table) Row(id uuid.UUID) (MonthCells, bool) {
	if c, ok := t.categories[id]; ok {
		return c.Effective, true
	}
	if s, ok := t.subcategories[id]; ok {
		return s.Cells, true
	}
	return MonthCells{}, false
}

// Cell returns the displayed cell of a category or subcategory month.
func (t *Table) Cell(id uuid.UUID, month int) (Cell, bool) {
	if core.ValidateMonth(month) != nil {
		return Cell{}, false
	}
	row, ok := t.Row(id)
	if !ok {
		return Cell{}, false
	}
	return row[month-1], true
}

// KindTotals sums Effective cells of every non-calculated category of kind.
func (t *Table) KindTotals(kind core.Kind) MonthCells {
	out := zeroCells()
	for _, c := range t.categories {
		if c.Kind != kind || c.Calculated {
			continue
		}
		for m := range out {
			out[m] = out[m].Add(c.Effective[m])
		}
	}
	return out
}

// HasData reports whether any subcategory holds a non-zero value on plane in month.
func (t *Table) HasData(month int, plane core.Plane) bool {
	if core.ValidateMonth(month) != nil {
		return false
	}
	for _, s := range t.subcategories {
		if !s.Cells[month-1].Plane(plane).IsZero() {
			return true
		}
	}
	return false
}
