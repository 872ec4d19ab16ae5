// Package engine folds raw entries into per-month totals and derives every
// read-side figure from them: projected cells, reconciliation results, month
// states, rolling balances and variances. Everything here is a pure function
// of an immutable Snapshot.
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"orti/internal/core"
)

// Cell holds the two planes of one (row, month) intersection.
type Cell struct {
	Consolidated decimal.Decimal `json:"consolidated"`
	Projected    decimal.Decimal `json:"projected"`
	// Entries counts stored records behind the cell, zero-valued ones included.
	Entries int `json:"entries"`
}

// MonthCells is indexed by month-1.
type MonthCells [core.MonthsPerYear]Cell

// Project reduces a cell to the single value shown for view.
func Project(c Cell, view core.ViewMode) decimal.Decimal {
	switch view {
	case core.ViewConsolidated:
		return c.Consolidated
	case core.ViewProjections:
		return c.Projected
	case core.ViewCombined:
		return c.Consolidated.Add(c.Projected)
	}
	panic(fmt.Sprintf("engine: unhandled view mode %d", int(view)))
}

// Plane returns the value stored on one plane.
func (c Cell) Plane(p core.Plane) decimal.Decimal {
	if p.IsProjection() {
		return c.Projected
	}
	return c.Consolidated
}

// Add sums two cells plane by plane.
func (c Cell) Add(o Cell) Cell {
	return Cell{
		Consolidated: c.Consolidated.Add(o.Consolidated),
		Projected:    c.Projected.Add(o.Projected),
		Entries:      c.Entries + o.Entries,
	}
}

// IsZero is true when both planes are zero.
func (c Cell) IsZero() bool {
	return c.Consolidated.IsZero() && c.Projected.IsZero()
}

func (c *Cell) add(p core.Plane, v decimal.Decimal) {
	if p.IsProjection() {
		c.Projected = c.Projected.Add(v)
	} else {
		c.Consolidated = c.Consolidated.Add(v)
	}
	c.Entries++
}

// Month returns the cell for a 1-based month.
func (m *MonthCells) Month(month int) Cell {
	return m[month-1]
}

// Sum adds the twelve months together.
func (m *MonthCells) Sum() Cell {
	var total Cell
	for _, c := range m {
		total = total.Add(c)
	}
	return total
}

// Project applies view to every month.
func (m *MonthCells) Project(view core.ViewMode) [core.MonthsPerYear]decimal.Decimal {
	var out [core.MonthsPerYear]decimal.Decimal
	for i, c := range m {
		out[i] = Project(c, view)
	}
	return out
}

func zeroCells() MonthCells {
	var m MonthCells
	for i := range m {
		m[i] = Cell{Consolidated: decimal.Zero, Projected: decimal.Zero}
	}
	return m
}
