package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orti/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Variance compares actual against forecast for one figure.
type Variance struct {
	Consolidated decimal.Decimal `json:"consolidated"`
	Projected    decimal.Decimal `json:"projected"`
	Amount       decimal.Decimal `json:"amount"`
	// Percent is nil when nothing was projected.
	Percent *decimal.Decimal `json:"percent,omitempty"`
}

// NewVariance derives amount = consolidated - projected and its percentage of |projected|.
func NewVariance(c Cell) Variance {
	v := Variance{
		Consolidated: c.Consolidated,
		Projected:    c.Projected,
		Amount:       c.Consolidated.Sub(c.Projected),
	}
	if !c.Projected.IsZero() {
		p := v.Amount.Div(c.Projected.Abs()).Mul(hundred).Round(2)
		v.Percent = &p
	}
	return v
}

// YearVariance is the year summary: net is actual result minus forecast result.
type YearVariance struct {
	Revenue Variance        `json:"revenue"`
	Expense Variance        `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

func (t *Table) YearVariance() YearVariance {
	rev := t.KindTotals(core.KindRevenue)
	exp := t.KindTotals(core.KindExpense)
	r := rev.Sum()
	e := exp.Sum()
	actual := r.Consolidated.Sub(e.Consolidated)
	forecast := r.Projected.Sub(e.Projected)
	return YearVariance{
		Revenue: NewVariance(r),
		Expense: NewVariance(e),
		Net:     actual.Sub(forecast),
	}
}

// CategoryVariance returns month by month variance of a category's displayed cells.
func (t *Table) CategoryVariance(id uuid.UUID) ([core.MonthsPerYear]Variance, bool) {
	var out [core.MonthsPerYear]Variance
	c, ok := t.categories[id]
	if !ok {
		return out, false
	}
	for m, cell := range c.Effective {
		out[m] = NewVariance(cell)
	}
	return out, true
}
