package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orti/internal/core"
	"orti/internal/engine"
	"orti/internal/services"
)

// JSON shapes of the API. Domain types stay free of transport tags.

type subcategoryView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	SortOrder int       `json:"sort_order"`
	IsMain    bool      `json:"is_main"`
}

type categoryView struct {
	ID            uuid.UUID         `json:"id"`
	Name          string            `json:"name"`
	Kind          core.Kind         `json:"kind"`
	SortOrder     int               `json:"sort_order"`
	IsCalculated  bool              `json:"is_calculated"`
	Subcategories []subcategoryView `json:"subcategories"`
}

func newSubcategoryView(s core.Subcategory) subcategoryView {
	return subcategoryView{ID: s.ID, Name: s.Name, SortOrder: s.SortOrder, IsMain: s.IsMain()}
}

func newCategoryView(c core.Category) categoryView {
	v := categoryView{
		ID:            c.ID,
		Name:          c.Name,
		Kind:          c.Kind,
		SortOrder:     c.SortOrder,
		IsCalculated:  c.IsCalculated,
		Subcategories: make([]subcategoryView, 0, len(c.Subcategories)),
	}
	for _, s := range c.Subcategories {
		v.Subcategories = append(v.Subcategories, newSubcategoryView(s))
	}
	return v
}

func newCategoryViews(cats []core.Category) []categoryView {
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, newCategoryView(c))
	}
	return out
}

type entryView struct {
	ID            uuid.UUID       `json:"id"`
	SubcategoryID uuid.UUID       `json:"subcategory_id"`
	Year          int             `json:"year"`
	Month         int             `json:"month"`
	Plane         string          `json:"plane"`
	Value         decimal.Decimal `json:"value"`
	Notes         string          `json:"notes,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func newEntryView(e core.Entry) entryView {
	return entryView{
		ID:            e.ID,
		SubcategoryID: e.SubcategoryID,
		Year:          e.Year,
		Month:         e.Month,
		Plane:         e.Plane.String(),
		Value:         e.Value,
		Notes:         e.Notes,
		UpdatedAt:     e.UpdatedAt,
	}
}

type cellView struct {
	ID    uuid.UUID       `json:"id"`
	Year  int             `json:"year"`
	Month int             `json:"month"`
	View  core.ViewMode   `json:"view"`
	Value decimal.Decimal `json:"value"`
}

type statusesView struct {
	Year   int                  `json:"year"`
	Months []engine.MonthStatus `json:"months"`
}

type yearValidationView struct {
	Year       int                           `json:"year"`
	View       core.ViewMode                 `json:"view"`
	Valid      bool                          `json:"valid"`
	Mismatches []engine.ReconciliationResult `json:"mismatches"`
}

type balanceView struct {
	Year            int               `json:"year"`
	View            core.ViewMode     `json:"view"`
	AnchorMonth     int               `json:"anchor_month"`
	StartingBalance decimal.Decimal   `json:"starting_balance"`
	Balances        []decimal.Decimal `json:"balances"`
}

type categoryVarianceView struct {
	CategoryID uuid.UUID         `json:"category_id"`
	Months     []engine.Variance `json:"months"`
}

type reorderView struct {
	ID         uuid.UUID           `json:"id"`
	Scope      string              `json:"scope"`
	MovedID    uuid.UUID           `json:"moved_id"`
	State      services.OrderState `json:"state"`
	Ordered    []uuid.UUID         `json:"ordered"`
	Generation uint64              `json:"generation"`
	Error      *ErrorBody          `json:"error,omitempty"`
}

func newReorderView(cmd *services.ReorderCommand) reorderView {
	v := reorderView{
		ID:         cmd.ID,
		Scope:      cmd.Scope.String(),
		MovedID:    cmd.MovedID,
		State:      cmd.State(),
		Ordered:    cmd.Ordered,
		Generation: cmd.Next.Generation,
	}
	if err := cmd.Err(); err != nil {
		_, body := errorBody(err)
		v.Error = &body
	}
	return v
}

type consolidationView struct {
	Month    int                `json:"month"`
	Promoted int                `json:"promoted"`
	Status   engine.MonthStatus `json:"status"`
}
