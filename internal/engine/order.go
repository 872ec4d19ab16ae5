package engine

import (
	"fmt"

	"github.com/google/uuid"

	"orti/internal/core"
)

// ScopeLevel tells sibling categories from sibling subcategories.
type ScopeLevel int

const (
	ScopeCategories ScopeLevel = iota
	ScopeSubcategories
)

// Scope identifies a sibling group whose sort order is renumbered together:
// the categories sharing a kind, or the subcategories of one category.
type Scope struct {
	Level      ScopeLevel
	Kind       core.Kind
	CategoryID uuid.UUID
}

func CategoriesOf(kind core.Kind) Scope {
	return Scope{Level: ScopeCategories, Kind: kind}
}

func SubcategoriesOf(categoryID uuid.UUID) Scope {
	return Scope{Level: ScopeSubcategories, CategoryID: categoryID}
}

func (s Scope) String() string {
	if s.Level == ScopeSubcategories {
		return "subcategories:" + s.CategoryID.String()
	}
	return "categories:" + string(s.Kind)
}

func (s Scope) Validate() error {
	switch s.Level {
	case ScopeCategories:
		if !s.Kind.IsValid() {
			return fmt.Errorf("%w: %q", core.ErrInvalidKind, s.Kind)
		}
	case ScopeSubcategories:
		if s.CategoryID == uuid.Nil {
			return fmt.Errorf("scope: %w: category", core.ErrNotFound)
		}
	default:
		return fmt.Errorf("scope: unknown level %d", int(s.Level))
	}
	return nil
}

// Reorder removes moved from ids and reinserts it at target, clamped to the
// group bounds. The input slice is not modified.
func Reorder(ids []uuid.UUID, moved uuid.UUID, target int) ([]uuid.UUID, error) {
	from := -1
	for i, id := range ids {
		if id == moved {
			from = i
			break
		}
	}
	if from < 0 {
		return nil, fmt.Errorf("%w: %s not in sibling group", core.ErrNotFound, moved)
	}

	rest := make([]uuid.UUID, 0, len(ids))
	rest = append(rest, ids[:from]...)
	rest = append(rest, ids[from+1:]...)

	if target < 0 {
		target = 0
	}
	if target > len(rest) {
		target = len(rest)
	}

	out := make([]uuid.UUID, 0, len(ids))
	out = append(out, rest[:target]...)
	out = append(out, moved)
	out = append(out, rest[target:]...)
	return out, nil
}
