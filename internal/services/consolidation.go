package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orti/internal/amqp"
	"orti/internal/core"
	"orti/internal/log"
)

type monthCells struct {
	consolidated *core.Entry
	projected    *core.Entry
}

// ConsolidateMonth closes month by hand. Every subcategory holding only a
// projection for the month gets it promoted to a consolidated entry, and the
// projection is zeroed so combined totals keep the same value. Returns the
// number of promoted cells.
func (s *Session) ConsolidateMonth(ctx context.Context, month int) (int, error) {
	if err := core.ValidateMonth(month); err != nil {
		return 0, err
	}
	snap := s.Snapshot()

	entries, err := s.store.ListEntries(ctx, s.company.ID, s.year, month)
	if err != nil {
		return 0, fmt.Errorf("consolidate %d-%02d: %w", s.year, month, err)
	}
	bySub := make(map[uuid.UUID]*monthCells)
	for i := range entries {
		e := &entries[i]
		mc, ok := bySub[e.SubcategoryID]
		if !ok {
			mc = &monthCells{}
			bySub[e.SubcategoryID] = mc
		}
		if e.Plane.IsProjection() {
			mc.projected = e
		} else {
			mc.consolidated = e
		}
	}

	promoted := 0
	var firstErr error
	for subID, mc := range bySub {
		cat, _, ok := snap.CategoryOfSubcategory(subID)
		if !ok || cat.IsCalculated {
			continue
		}
		if mc.projected == nil || mc.projected.Value.IsZero() {
			continue
		}
		if mc.consolidated != nil && !mc.consolidated.Value.IsZero() {
			continue
		}
		if err := s.promote(ctx, subID, month, mc.projected); err != nil {
			firstErr = err
			break
		}
		promoted++
	}

	if firstErr == nil {
		rec := core.MonthStatusRecord{
			CompanyID:      s.company.ID,
			Year:           s.year,
			Month:          month,
			IsConsolidated: true,
			ManuallyMarked: true,
			ConsolidatedAt: s.cfg.Now().UTC(),
		}
		if err := s.store.SetMonthStatus(ctx, rec); err != nil {
			firstErr = fmt.Errorf("set month status: %w", err)
		}
	}

	s.afterWrite(ctx, month, amqp.ReasonStatus)
	if firstErr != nil {
		return promoted, fmt.Errorf("consolidate %d-%02d: %w", s.year, month, firstErr)
	}

	s.logger.InfoContext(ctx, "Month consolidated",
		log.FieldMonth, month,
		log.FieldCount, promoted)
	return promoted, nil
}

func (s *Session) promote(ctx context.Context, subID uuid.UUID, month int, projected *core.Entry) error {
	notes := "consolidated from projection " + projected.Value.StringFixed(2)
	if projected.Notes != "" && len(projected.Notes)+len(notes)+2 <= 500 {
		notes = projected.Notes + "; " + notes
	}
	if _, err := s.store.UpsertEntry(ctx, core.EntryInput{
		SubcategoryID: subID,
		Year:          s.year,
		Month:         month,
		Plane:         core.PlaneConsolidated,
		Value:         projected.Value,
		Notes:         notes,
	}); err != nil {
		return fmt.Errorf("promote %s: %w", subID, err)
	}
	if _, err := s.store.UpsertEntry(ctx, core.EntryInput{
		SubcategoryID: subID,
		Year:          s.year,
		Month:         month,
		Plane:         core.PlaneProjected,
		Value:         decimal.Zero,
		Notes:         projected.Notes,
	}); err != nil {
		return fmt.Errorf("zero projection %s: %w", subID, err)
	}
	return nil
}

// RevertConsolidation drops the manual override of month. Entries stay as
// they are.
func (s *Session) RevertConsolidation(ctx context.Context, month int) error {
	if err := core.ValidateMonth(month); err != nil {
		return err
	}
	if err := s.store.ClearMonthStatus(ctx, s.company.ID, s.year, month); err != nil {
		return fmt.Errorf("revert consolidation %d-%02d: %w", s.year, month, err)
	}
	s.afterWrite(ctx, month, amqp.ReasonStatus)
	return nil
}
