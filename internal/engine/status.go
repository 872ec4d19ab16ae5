package engine

import (
	"fmt"
	"time"
)

// MonthState is the lifecycle of a (year, month).
type MonthState int

const (
	StateClosed MonthState = iota
	StateCurrent
	StateFuture
)

func (s MonthState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateCurrent:
		return "current"
	case StateFuture:
		return "future"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s MonthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MonthStatus is what the presentation layer receives for a month.
type MonthStatus struct {
	Year               int        `json:"year"`
	Month              int        `json:"month"`
	State              MonthState `json:"state"`
	ManuallyOverridden bool       `json:"manually_overridden"`
	ConsolidatedAt     *time.Time `json:"consolidated_at,omitempty"`
	HasConsolidated    bool       `json:"has_consolidated"`
	HasProjected       bool       `json:"has_projected"`
}

// Classify assigns a month its state. Rules in priority order: a manual
// override closes the month; a calendar-past month is closed only when it has
// consolidated data, otherwise it stays current; the calendar month is
// current; anything later is future.
//
// hasProjectedData does not influence the outcome: speculative projections
// never move a month out of the future.
func Classify(year, month int, now time.Time, hasConsolidatedData, hasProjectedData, manualOverride bool) MonthState {
	if manualOverride {
		return StateClosed
	}

	nowYear, nowMonth := now.Year(), int(now.Month())
	switch {
	case year < nowYear || (year == nowYear && month < nowMonth):
		if hasConsolidatedData {
			return StateClosed
		}
		return StateCurrent
	case year == nowYear && month == nowMonth:
		return StateCurrent
	default:
		return StateFuture
	}
}
