package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestParseKind(t *testing.T) {
	for _, s := range []string{"revenue", "Expense", " balance "} {
		if _, err := ParseKind(s); err != nil {
			t.Fatalf("%q expected ok, got %v", s, err)
		}
	}
	if _, err := ParseKind("financing"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestParsePlane(t *testing.T) {
	p, err := ParsePlane("projection")
	if err != nil || !p.IsProjection() {
		t.Fatalf("expected projected plane, got %v (err=%v)", p, err)
	}
	p, err = ParsePlane("consolidated")
	if err != nil || p.IsProjection() {
		t.Fatalf("expected consolidated plane, got %v (err=%v)", p, err)
	}
	if _, err := ParsePlane("maybe"); !errors.Is(err, ErrInvalidPlane) {
		t.Fatalf("expected ErrInvalidPlane, got %v", err)
	}
	if PlaneFromProjection(true) != PlaneProjected || PlaneFromProjection(false) != PlaneConsolidated {
		t.Fatal("PlaneFromProjection mapping is wrong")
	}
}

func TestParseViewMode(t *testing.T) {
	cases := map[string]ViewMode{
		"":             ViewCombined,
		"combined":     ViewCombined,
		"Consolidated": ViewConsolidated,
		"projections":  ViewProjections,
	}
	for in, want := range cases {
		got, err := ParseViewMode(in)
		if err != nil || got != want {
			t.Errorf("ParseViewMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseViewMode("monthly"); !errors.Is(err, ErrInvalidView) {
		t.Fatalf("expected ErrInvalidView, got %v", err)
	}
	for _, v := range ViewModes {
		b, err := v.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", v, err)
		}
		var back ViewMode
		if err := back.UnmarshalText(b); err != nil || back != v {
			t.Fatalf("round trip of %v gave %v (err=%v)", v, back, err)
		}
	}
}

func TestCategoryMainLookup(t *testing.T) {
	main := Subcategory{ID: uuid.New(), Name: "Main"}
	rooms := Subcategory{ID: uuid.New(), Name: "Rooms"}

	flat := Category{Name: "Interest", Subcategories: []Subcategory{main}}
	if _, ok := flat.Main(); !ok {
		t.Fatal("expected Main subcategory")
	}
	if flat.HasExplicitSubcategories() {
		t.Fatal("flat category reported explicit subcategories")
	}

	split := Category{Name: "Revenue-Hotel", Subcategories: []Subcategory{main, rooms}}
	if !split.HasExplicitSubcategories() {
		t.Fatal("expected explicit subcategories")
	}
	if got, ok := split.Subcategory(rooms.ID); !ok || got.Name != "Rooms" {
		t.Fatalf("lookup by id failed: %+v", got)
	}
}

func TestEntryInputValidate(t *testing.T) {
	good := EntryInput{
		SubcategoryID: uuid.New(),
		Year:          2025,
		Month:         3,
		Plane:         PlaneProjected,
		Value:         decimal.NewFromInt(-10),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		name   string
		mutate func(*EntryInput)
		want   error
	}{
		{"month zero", func(e *EntryInput) { e.Month = 0 }, ErrInvalidMonth},
		{"month thirteen", func(e *EntryInput) { e.Month = 13 }, ErrInvalidMonth},
		{"year", func(e *EntryInput) { e.Year = 1999 }, ErrInvalidYear},
		{"plane", func(e *EntryInput) { e.Plane = Plane(7) }, ErrInvalidPlane},
		{"notes", func(e *EntryInput) { e.Notes = strings.Repeat("x", 501) }, ErrNotesTooLong},
		{"subcategory", func(e *EntryInput) { e.SubcategoryID = uuid.Nil }, ErrNotFound},
	}
	for _, tc := range bads {
		t.Run(tc.name, func(t *testing.T) {
			in := good
			tc.mutate(&in)
			if err := in.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	se := NewStructuralError("save entry", "Revenue-Hotel", ErrNotFound)
	if !IsStructural(se) || !errors.Is(se, ErrNotFound) {
		t.Fatalf("structural error not classified: %v", se)
	}
	pf := &PersistenceFailure{Op: "sort order", Err: errors.New("connection reset")}
	if !IsPersistence(pf) || IsStructural(pf) {
		t.Fatalf("persistence failure not classified: %v", pf)
	}
	if !IsValidation(ValidateMonth(14)) {
		t.Fatal("month error should be a validation error")
	}
	if IsValidation(pf) {
		t.Fatal("persistence failure is not a validation error")
	}
}
