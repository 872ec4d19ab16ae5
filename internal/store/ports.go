// Package store declares the ports through which the engine reads and writes
// persisted structure and entries.
package store

import (
	"context"

	"github.com/google/uuid"

	"orti/internal/core"
)

// AllMonths passed to ListEntries returns the whole year.
const AllMonths = 0

// Ports for outbound adapters.
type (
	CategoryReader interface {
		// ListCategories returns the company's categories nested with their subcategories.
		ListCategories(ctx context.Context, companyID uuid.UUID) ([]core.Category, error)
		GetCategory(ctx context.Context, id uuid.UUID) (core.Category, error)
	}

	EntryReader interface {
		// ListEntries returns the entries of year, optionally narrowed to one month.
		// Entries whose subcategory no longer resolves are returned as well so the
		// engine can report them.
		ListEntries(ctx context.Context, companyID uuid.UUID, year int, month int) ([]core.Entry, error)
	}

	EntryWriter interface {
		// UpsertEntry creates or replaces the unique (subcategory, year, month, plane) record.
		UpsertEntry(ctx context.Context, in core.EntryInput) (core.Entry, error)
		// ClearSubcategory zeroes every entry of a subcategory in year. Structure is kept.
		ClearSubcategory(ctx context.Context, subcategoryID uuid.UUID, year int) (int, error)
	}

	OrderWriter interface {
		UpdateCategorySortOrder(ctx context.Context, id uuid.UUID, sortOrder int) error
		UpdateSubcategorySortOrder(ctx context.Context, id uuid.UUID, sortOrder int) error
	}

	StructureWriter interface {
		// CreateCategory also creates the category's "Main" subcategory.
		CreateCategory(ctx context.Context, in CategoryInput) (core.Category, error)
		// DeleteCategory removes entries, subcategories and the category.
		DeleteCategory(ctx context.Context, id uuid.UUID) error
		CreateSubcategory(ctx context.Context, categoryID uuid.UUID, name string, sortOrder int) (core.Subcategory, error)
		DeleteSubcategory(ctx context.Context, id uuid.UUID) error
	}

	StatusStore interface {
		ListMonthStatuses(ctx context.Context, companyID uuid.UUID, year int) ([]core.MonthStatusRecord, error)
		SetMonthStatus(ctx context.Context, rec core.MonthStatusRecord) error
		ClearMonthStatus(ctx context.Context, companyID uuid.UUID, year, month int) error
	}

	CompanyStore interface {
		GetCompanyByCode(ctx context.Context, code string) (core.Company, error)
		CreateCompany(ctx context.Context, code, name string) (core.Company, error)
	}

	// EntryStore is everything a session needs from a backend.
	EntryStore interface {
		CategoryReader
		EntryReader
		EntryWriter
		OrderWriter
		StructureWriter
		StatusStore
		CompanyStore
		Close() error
	}
)

// CategoryInput describes a category to create.
type CategoryInput struct {
	CompanyID    uuid.UUID
	Name         string
	Kind         core.Kind
	SortOrder    int
	IsCalculated bool
}

// Validate normalizes the name and checks the kind.
func (in *CategoryInput) Validate() error {
	name, err := core.ValidateName(in.Name)
	if err != nil {
		return err
	}
	in.Name = name
	if !in.Kind.IsValid() {
		return core.ErrInvalidKind
	}
	if in.CompanyID == uuid.Nil {
		return core.ErrNotFound
	}
	return nil
}
