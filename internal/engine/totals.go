package engine

import (
	"github.com/shopspring/decimal"

	"orti/internal/core"
)

// YearTotals is the year-level revenue/expense/net under one view.
type YearTotals struct {
	View    core.ViewMode   `json:"view"`
	Revenue decimal.Decimal `json:"revenue"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

// MonthSummary is the cross-category view of one month on both planes.
type MonthSummary struct {
	Month           int  `json:"month"`
	Revenue         Cell `json:"revenue"`
	Expense         Cell `json:"expense"`
	HasConsolidated bool `json:"has_consolidated"`
	HasProjected    bool `json:"has_projected"`
}

// Totals sums projected month values; projection and summation commute so
// this equals projecting the summed cells.
func (t *Table) Totals(view core.ViewMode) YearTotals {
	rev := t.KindTotals(core.KindRevenue)
	exp := t.KindTotals(core.KindExpense)
	out := YearTotals{View: view, Revenue: decimal.Zero, Expense: decimal.Zero}
	for m := range rev {
		out.Revenue = out.Revenue.Add(Project(rev[m], view))
		out.Expense = out.Expense.Add(Project(exp[m], view))
	}
	out.Net = out.Revenue.Sub(out.Expense)
	return out
}

// MonthlySummary returns twelve month summaries.
func (t *Table) MonthlySummary() []MonthSummary {
	rev := t.KindTotals(core.KindRevenue)
	exp := t.KindTotals(core.KindExpense)
	out := make([]MonthSummary, core.MonthsPerYear)
	for m := range out {
		out[m] = MonthSummary{
			Month:           m + 1,
			Revenue:         rev[m],
			Expense:         exp[m],
			HasConsolidated: t.HasData(m+1, core.PlaneConsolidated),
			HasProjected:    t.HasData(m+1, core.PlaneProjected),
		}
	}
	return out
}
