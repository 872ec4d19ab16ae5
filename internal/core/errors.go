package core

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// StructuralError aborts a single operation that references a record which
// does not exist (or cannot be edited). Local state is left untouched.
type StructuralError struct {
	Op  string
	Ref string
	Err error
}

func (e *StructuralError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// NewStructuralError wraps err for operation op on the referenced record.
func NewStructuralError(op, ref string, err error) error {
	return &StructuralError{Op: op, Ref: ref, Err: err}
}

// PersistenceFailure is raised when a background write fails after the change
// was already applied locally. The owner reloads to recover.
type PersistenceFailure struct {
	Op  string
	Err error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

// IntegrityWarning describes an entry skipped during aggregation.
type IntegrityWarning struct {
	EntryID       uuid.UUID
	SubcategoryID uuid.UUID
	Reason        string
}

func (w IntegrityWarning) String() string {
	return fmt.Sprintf("entry %s (subcategory %s): %s", w.EntryID, w.SubcategoryID, w.Reason)
}

// IsStructural reports whether err is, or wraps, a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsPersistence reports whether err is, or wraps, a PersistenceFailure.
func IsPersistence(err error) bool {
	var pf *PersistenceFailure
	return errors.As(err, &pf)
}

// IsValidation reports whether err is one of the input validation sentinels.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidYear, ErrInvalidMonth, ErrInvalidKind, ErrInvalidPlane, ErrInvalidView,
		ErrInvalidAmount, ErrEmptyName, ErrNameTooLong, ErrNotesTooLong, ErrDuplicateName,
		ErrCalculatedCategory, ErrMainSubcategory,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
