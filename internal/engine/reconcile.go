package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orti/internal/core"
)

// ReconciliationResult is advisory: a mismatch is surfaced, never enforced.
type ReconciliationResult struct {
	CategoryID       uuid.UUID       `json:"category_id"`
	Month            int             `json:"month"`
	View             core.ViewMode   `json:"view"`
	IsValid          bool            `json:"is_valid"`
	HasSubcategories bool            `json:"has_subcategories"`
	CategoryTotal    decimal.Decimal `json:"category_total"`
	SubcategorySum   decimal.Decimal `json:"subcategory_sum"`
	Difference       decimal.Decimal `json:"difference"`
}

// Reconcile compares a category month against the sum of its explicit
// subcategories under view.
//
// When no explicit subcategory is non-zero the check passes trivially. Otherwise
// CategoryTotal is everything booked on the category (its "Main" bucket
// included) and the difference is whatever sits on "Main" on top of the
// subcategories: a stale direct entry left behind once the category was split.
func (t *Table) Reconcile(categoryID uuid.UUID, month int, view core.ViewMode) (ReconciliationResult, bool) {
	cat, ok := t.categories[categoryID]
	if !ok || core.ValidateMonth(month) != nil {
		return ReconciliationResult{}, false
	}
	m := month - 1

	res := ReconciliationResult{
		CategoryID:     categoryID,
		Month:          month,
		View:           view,
		SubcategorySum: decimal.Zero,
		Difference:     decimal.Zero,
	}

	for _, id := range t.children[categoryID] {
		v := Project(t.subcategories[id].Cells[m], view)
		if !v.IsZero() {
			res.HasSubcategories = true
		}
		res.SubcategorySum = res.SubcategorySum.Add(v)
	}

	if !res.HasSubcategories {
		res.IsValid = true
		res.CategoryTotal = Project(cat.Effective[m], view)
		res.SubcategorySum = decimal.Zero
		return res, true
	}

	res.CategoryTotal = Project(cat.Rollup[m], view)
	res.Difference = res.CategoryTotal.Sub(res.SubcategorySum)
	res.IsValid = core.WithinTolerance(res.CategoryTotal, res.SubcategorySum)
	return res, true
}
