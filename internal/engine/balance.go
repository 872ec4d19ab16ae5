package engine

import (
	"github.com/shopspring/decimal"

	"orti/internal/core"
)

// Series is one value per month, indexed by month-1.
type Series [core.MonthsPerYear]decimal.Decimal

// RollForward pivots a balance series at anchorMonth. Months before the anchor
// keep the recorded balance, the anchor month takes startingBalance and every
// later month adds that month's net cash flow to the previous balance.
func RollForward(anchorMonth int, startingBalance decimal.Decimal, netCashFlow, recorded Series) (Series, error) {
	if err := core.ValidateMonth(anchorMonth); err != nil {
		return Series{}, err
	}

	var out Series
	for m := 0; m < anchorMonth-1; m++ {
		out[m] = recorded[m]
	}
	out[anchorMonth-1] = startingBalance
	for m := anchorMonth; m < core.MonthsPerYear; m++ {
		out[m] = out[m-1].Add(netCashFlow[m])
	}
	return out, nil
}

// NetCashFlow is revenue minus expense, month by month, under view.
func (t *Table) NetCashFlow(view core.ViewMode) Series {
	rev := t.KindTotals(core.KindRevenue)
	exp := t.KindTotals(core.KindExpense)
	var out Series
	for m := range out {
		out[m] = Project(rev[m], view).Sub(Project(exp[m], view))
	}
	return out
}

// RecordedBalances sums the balance-kind categories month by month under view.
func (t *Table) RecordedBalances(view core.ViewMode) Series {
	bal := t.KindTotals(core.KindBalance)
	var out Series
	for m := range out {
		out[m] = Project(bal[m], view)
	}
	return out
}
