package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orti/internal/core"
	"orti/internal/store"
)

func newSQLite(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "orti.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestDialectRebind(t *testing.T) {
	q := `SELECT * FROM entries WHERE year = ? AND month = ?`
	assert.Equal(t, q, DialectSQLite.Rebind(q))
	assert.Equal(t, `SELECT * FROM entries WHERE year = $1 AND month = $2`, DialectPostgres.Rebind(q))
	assert.Equal(t, "pgx", DialectPostgres.DriverName())
	assert.Equal(t, "sqlite", DialectSQLite.DriverName())
}

func TestSQLiteRoundTrip(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()

	co, err := repo.CreateCompany(ctx, "ACME", "Acme Hotels")
	require.NoError(t, err)
	_, err = repo.CreateCompany(ctx, "ACME", "again")
	assert.ErrorIs(t, err, core.ErrDuplicateName)

	got, err := repo.GetCompanyByCode(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, co.ID, got.ID)

	cat, err := repo.CreateCategory(ctx, store.CategoryInput{CompanyID: co.ID, Name: "Revenue-Hotel", Kind: core.KindRevenue, SortOrder: 1})
	require.NoError(t, err)
	main, ok := cat.Main()
	require.True(t, ok)

	_, err = repo.CreateCategory(ctx, store.CategoryInput{CompanyID: co.ID, Name: "revenue-hotel", Kind: core.KindRevenue})
	assert.ErrorIs(t, err, core.ErrDuplicateName)

	rooms, err := repo.CreateSubcategory(ctx, cat.ID, "Rooms", 1)
	require.NoError(t, err)

	in := core.EntryInput{SubcategoryID: rooms.ID, Year: 2025, Month: 3, Plane: core.PlaneConsolidated, Value: decimal.RequireFromString("1000.50")}
	first, err := repo.UpsertEntry(ctx, in)
	require.NoError(t, err)
	in.Value = decimal.RequireFromString("1200.25")
	in.Notes = "adjusted"
	second, err := repo.UpsertEntry(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "upsert must replace the unique record")

	_, err = repo.UpsertEntry(ctx, core.EntryInput{SubcategoryID: main.ID, Year: 2025, Month: 3, Plane: core.PlaneProjected, Value: decimal.NewFromInt(500)})
	require.NoError(t, err)

	entries, err := repo.ListEntries(ctx, co.ID, 2025, store.AllMonths)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	var cons core.Entry
	for _, e := range entries {
		if e.SubcategoryID == rooms.ID {
			cons = e
		}
	}
	assert.True(t, cons.Value.Equal(decimal.RequireFromString("1200.25")), "got %s", cons.Value)
	assert.Equal(t, "adjusted", cons.Notes)
	assert.Equal(t, core.PlaneConsolidated, cons.Plane)

	april, err := repo.ListEntries(ctx, co.ID, 2025, 4)
	require.NoError(t, err)
	assert.Empty(t, april)

	cats, err := repo.ListCategories(ctx, co.ID)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Len(t, cats[0].Subcategories, 2)

	require.NoError(t, repo.UpdateSubcategorySortOrder(ctx, rooms.ID, 7))
	reloaded, err := repo.GetCategory(ctx, cat.ID)
	require.NoError(t, err)
	r, _ := reloaded.Subcategory(rooms.ID)
	assert.Equal(t, 7, r.SortOrder)
	assert.ErrorIs(t, repo.UpdateCategorySortOrder(ctx, uuid.New(), 1), core.ErrNotFound)

	n, err := repo.ClearSubcategory(ctx, rooms.ID, 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.DeleteCategory(ctx, cat.ID))
	cats, _ = repo.ListCategories(ctx, co.ID)
	entries, _ = repo.ListEntries(ctx, co.ID, 2025, store.AllMonths)
	assert.Empty(t, cats)
	assert.Empty(t, entries)
	assert.ErrorIs(t, repo.DeleteCategory(ctx, cat.ID), core.ErrNotFound)
}

func TestSQLiteUpsertUnknownSubcategory(t *testing.T) {
	repo := newSQLite(t)
	_, err := repo.UpsertEntry(context.Background(), core.EntryInput{SubcategoryID: uuid.New(), Year: 2025, Month: 1})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLiteMonthStatuses(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()
	co, err := repo.CreateCompany(ctx, "ACME", "")
	require.NoError(t, err)

	at := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetMonthStatus(ctx, core.MonthStatusRecord{CompanyID: co.ID, Year: 2025, Month: 1, IsConsolidated: true, ManuallyMarked: true, ConsolidatedAt: at}))
	require.NoError(t, repo.SetMonthStatus(ctx, core.MonthStatusRecord{CompanyID: co.ID, Year: 2025, Month: 2, IsConsolidated: true}))

	list, err := repo.ListMonthStatuses(ctx, co.ID, 2025)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].ConsolidatedAt.Equal(at))
	assert.True(t, list[1].ConsolidatedAt.IsZero())

	require.NoError(t, repo.ClearMonthStatus(ctx, co.ID, 2025, 1))
	list, _ = repo.ListMonthStatuses(ctx, co.ID, 2025)
	assert.Len(t, list, 1)
}

func TestDeleteCategoryRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewWithDB(db, DialectPostgres)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM entries").WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM subcategories").WithArgs(sqlmock.AnyArg()).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = repo.DeleteCategory(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete subcategories")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCategoryNotFoundRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewWithDB(db, DialectPostgres)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM entries").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM subcategories").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM categories WHERE id = \$1`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = repo.DeleteCategory(context.Background(), uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEntryPropagatesDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewWithDB(db, DialectPostgres)
	sub := uuid.New()

	mock.ExpectQuery(`SELECT 1 FROM subcategories WHERE id = \$1`).
		WithArgs(sub).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO entries").WillReturnError(errors.New("deadlock detected"))

	_, err = repo.UpsertEntry(context.Background(), core.EntryInput{SubcategoryID: sub, Year: 2025, Month: 6, Value: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert entry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSortOrderUsesPostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewWithDB(db, DialectPostgres)
	id := uuid.New()

	mock.ExpectExec(`UPDATE categories SET sort_order = \$1 WHERE id = \$2`).
		WithArgs(3, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateCategorySortOrder(context.Background(), id, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}
