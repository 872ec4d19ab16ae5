package core

import (
	"fmt"
	"strings"
)

// ViewMode selects which planes contribute to a displayed value.
type ViewMode int

const (
	ViewCombined ViewMode = iota
	ViewConsolidated
	ViewProjections
)

// ViewModes lists every mode, in display order.
var ViewModes = []ViewMode{ViewCombined, ViewConsolidated, ViewProjections}

func (v ViewMode) String() string {
	switch v {
	case ViewCombined:
		return "combined"
	case ViewConsolidated:
		return "consolidated"
	case ViewProjections:
		return "projections"
	}
	return fmt.Sprintf("view(%d)", int(v))
}

func (v ViewMode) IsValid() bool {
	return v >= ViewCombined && v <= ViewProjections
}

// ParseViewMode maps a query value to a mode. Empty means combined.
func ParseViewMode(s string) (ViewMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "combined", "all":
		return ViewCombined, nil
	case "consolidated":
		return ViewConsolidated, nil
	case "projections", "projected":
		return ViewProjections, nil
	}
	return ViewCombined, fmt.Errorf("%w: %q", ErrInvalidView, s)
}

func (v ViewMode) MarshalText() ([]byte, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidView, int(v))
	}
	return []byte(v.String()), nil
}

func (v *ViewMode) UnmarshalText(b []byte) error {
	parsed, err := ParseViewMode(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
