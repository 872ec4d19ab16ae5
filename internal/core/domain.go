package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MainSubcategoryName is the implicit subcategory that carries a category's direct entries.
const MainSubcategoryName = "Main"

const (
	MonthsPerYear = 12
	MinYear       = 2000
	MaxYear       = 2100
)

const (
	KindRevenue Kind = "revenue"
	KindExpense Kind = "expense"
	KindBalance Kind = "balance"
)

const (
	PlaneConsolidated Plane = iota
	PlaneProjected
)

type (
	// Kind groups categories into revenue, expense and balance lines.
	Kind string

	// Plane tells consolidated (actual) values from projected (forecast) ones.
	Plane int

	Company struct {
		ID        uuid.UUID
		Code      string
		Name      string
		CreatedAt time.Time
	}

	Category struct {
		ID            uuid.UUID
		CompanyID     uuid.UUID
		Name          string
		Kind          Kind
		SortOrder     int
		IsCalculated  bool
		Subcategories []Subcategory
	}

	Subcategory struct {
		ID         uuid.UUID
		CategoryID uuid.UUID
		Name       string
		SortOrder  int
	}

	Entry struct {
		ID            uuid.UUID
		SubcategoryID uuid.UUID
		Year          int
		Month         int
		Plane         Plane
		Value         decimal.Decimal
		Notes         string
		UpdatedAt     time.Time
	}

	// EntryInput is the payload of an upsert keyed by (subcategory, year, month, plane).
	EntryInput struct {
		SubcategoryID uuid.UUID
		Year          int
		Month         int
		Plane         Plane
		Value         decimal.Decimal
		Notes         string
	}

	// MonthStatusRecord is the sparse manual override stored for a (year, month).
	MonthStatusRecord struct {
		CompanyID      uuid.UUID
		Year           int
		Month          int
		IsConsolidated bool
		ManuallyMarked bool
		ConsolidatedAt time.Time
	}
)

var (
	ErrInvalidYear        = errors.New("invalid year")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidKind        = errors.New("invalid category kind")
	ErrInvalidPlane       = errors.New("invalid plane")
	ErrInvalidView        = errors.New("invalid view mode")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyName          = errors.New("empty name")
	ErrNameTooLong        = errors.New("name too long (max 100 characters)")
	ErrNotesTooLong       = errors.New("notes too long (max 500 characters)")
	ErrCalculatedCategory = errors.New("calculated categories are not editable")
	ErrMainSubcategory    = errors.New("the Main subcategory cannot be removed")
	ErrDuplicateName      = errors.New("duplicate name")
	ErrNotFound           = errors.New("not found")
)

func (k Kind) IsValid() bool {
	switch k {
	case KindRevenue, KindExpense, KindBalance:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// ParseKind accepts the kind names case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

func (p Plane) IsProjection() bool { return p == PlaneProjected }

func (p Plane) IsValid() bool {
	return p == PlaneConsolidated || p == PlaneProjected
}

func (p Plane) String() string {
	switch p {
	case PlaneConsolidated:
		return "consolidated"
	case PlaneProjected:
		return "projected"
	}
	return fmt.Sprintf("plane(%d)", int(p))
}

// PlaneFromProjection maps the stored is_projection flag to a Plane.
func PlaneFromProjection(isProjection bool) Plane {
	if isProjection {
		return PlaneProjected
	}
	return PlaneConsolidated
}

// ParsePlane accepts "consolidated" or "projected" (and "projection").
func ParsePlane(s string) (Plane, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "consolidated", "actual":
		return PlaneConsolidated, nil
	case "projected", "projection", "projections":
		return PlaneProjected, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPlane, s)
}

func ValidateYear(year int) error {
	if year < MinYear || year > MaxYear {
		return fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}
	return nil
}

func ValidateMonth(month int) error {
	if month < 1 || month > MonthsPerYear {
		return fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}
	return nil
}

// ValidateName trims and checks a category or subcategory display name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if len(name) > 100 {
		return "", ErrNameTooLong
	}
	return name, nil
}

// IsMain reports whether the subcategory is the category's implicit direct bucket.
func (s Subcategory) IsMain() bool {
	return strings.EqualFold(s.Name, MainSubcategoryName)
}

// Main returns the category's "Main" subcategory, if present.
func (c Category) Main() (Subcategory, bool) {
	for _, s := range c.Subcategories {
		if s.IsMain() {
			return s, true
		}
	}
	return Subcategory{}, false
}

// Subcategory looks up a child by id.
func (c Category) Subcategory(id uuid.UUID) (Subcategory, bool) {
	for _, s := range c.Subcategories {
		if s.ID == id {
			return s, true
		}
	}
	return Subcategory{}, false
}

// HasExplicitSubcategories is true when the category declares children beyond "Main".
func (c Category) HasExplicitSubcategories() bool {
	for _, s := range c.Subcategories {
		if !s.IsMain() {
			return true
		}
	}
	return false
}

func (e EntryInput) Validate() error {
	if e.SubcategoryID == uuid.Nil {
		return fmt.Errorf("%w: subcategory", ErrNotFound)
	}
	if err := ValidateYear(e.Year); err != nil {
		return err
	}
	if err := ValidateMonth(e.Month); err != nil {
		return err
	}
	if !e.Plane.IsValid() {
		return ErrInvalidPlane
	}
	if len(e.Notes) > 500 {
		return ErrNotesTooLong
	}
	return nil
}
