package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orti/internal/core"
	"orti/internal/log"
	"orti/internal/store"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Repository is the database/sql EntryStore for sqlite and postgres.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.EntryStore = (*Repository)(nil)

func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open(DialectSQLite.DriverName(), dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(DialectSQLite, dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewWithDB(db, DialectSQLite), nil
}

func NewPostgresRepository(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open(DialectPostgres.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectPostgres, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewWithDB(db, DialectPostgres), nil
}

// NewWithDB wraps an already migrated connection.
func NewWithDB(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect}
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) q(query string) string {
	return r.dialect.Rebind(query)
}

func (r *Repository) GetCompanyByCode(ctx context.Context, code string) (core.Company, error) {
	var c core.Company
	err := r.db.QueryRowContext(ctx,
		r.q(`SELECT id, code, name, created_at FROM companies WHERE code = ?`), code).
		Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Company{}, fmt.Errorf("company %q: %w", code, core.ErrNotFound)
	}
	if err != nil {
		return core.Company{}, fmt.Errorf("get company: %w", err)
	}
	return c, nil
}

func (r *Repository) CreateCompany(ctx context.Context, code, name string) (core.Company, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.Company{}, core.ErrEmptyName
	}
	if _, err := r.GetCompanyByCode(ctx, code); err == nil {
		return core.Company{}, fmt.Errorf("company %q: %w", code, core.ErrDuplicateName)
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.Company{}, err
	}

	c := core.Company{ID: uuid.New(), Code: code, Name: name, CreatedAt: time.Now().UTC()}
	if _, err := r.db.ExecContext(ctx,
		r.q(`INSERT INTO companies (id, code, name, created_at) VALUES (?, ?, ?, ?)`),
		c.ID, c.Code, c.Name, c.CreatedAt); err != nil {
		return core.Company{}, fmt.Errorf("create company: %w", err)
	}

	slog.InfoContext(ctx, "Company created", log.FieldComponent, log.ComponentStorage, "id", c.ID, "code", c.Code)
	return c, nil
}

// ListCategories reads categories and subcategories in two passes; rows are
// fully drained before the next query so a single connection is enough.
func (r *Repository) ListCategories(ctx context.Context, companyID uuid.UUID) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT id, company_id, name, kind, sort_order, is_calculated
		FROM categories
		WHERE company_id = ?
		ORDER BY sort_order, name`), companyID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	var cats []core.Category
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var c core.Category
		var kind string
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &kind, &c.SortOrder, &c.IsCalculated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.Kind(kind)
		index[c.ID] = len(cats)
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	rows.Close()

	subRows, err := r.db.QueryContext(ctx, r.q(`
		SELECT s.id, s.category_id, s.name, s.sort_order
		FROM subcategories s
		JOIN categories c ON c.id = s.category_id
		WHERE c.company_id = ?
		ORDER BY s.sort_order, s.name`), companyID)
	if err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}
	defer subRows.Close()
	for subRows.Next() {
		var s core.Subcategory
		if err := subRows.Scan(&s.ID, &s.CategoryID, &s.Name, &s.SortOrder); err != nil {
			return nil, fmt.Errorf("scan subcategory: %w", err)
		}
		if i, ok := index[s.CategoryID]; ok {
			cats[i].Subcategories = append(cats[i].Subcategories, s)
		}
	}
	if err := subRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subcategories: %w", err)
	}
	return cats, nil
}

func (r *Repository) GetCategory(ctx context.Context, id uuid.UUID) (core.Category, error) {
	var c core.Category
	var kind string
	err := r.db.QueryRowContext(ctx, r.q(`
		SELECT id, company_id, name, kind, sort_order, is_calculated
		FROM categories WHERE id = ?`), id).
		Scan(&c.ID, &c.CompanyID, &c.Name, &kind, &c.SortOrder, &c.IsCalculated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Kind = core.Kind(kind)

	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT id, category_id, name, sort_order
		FROM subcategories WHERE category_id = ?
		ORDER BY sort_order, name`), id)
	if err != nil {
		return core.Category{}, fmt.Errorf("list subcategories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s core.Subcategory
		if err := rows.Scan(&s.ID, &s.CategoryID, &s.Name, &s.SortOrder); err != nil {
			return core.Category{}, fmt.Errorf("scan subcategory: %w", err)
		}
		c.Subcategories = append(c.Subcategories, s)
	}
	return c, rows.Err()
}

// ListEntries left joins through subcategories so entries that no longer
// resolve are still returned.
func (r *Repository) ListEntries(ctx context.Context, companyID uuid.UUID, year int, month int) ([]core.Entry, error) {
	query := `
		SELECT e.id, e.subcategory_id, e.year, e.month, e.is_projection, e.value, e.notes, e.updated_at
		FROM entries e
		LEFT JOIN subcategories s ON s.id = e.subcategory_id
		LEFT JOIN categories c ON c.id = s.category_id
		WHERE e.year = ? AND (c.company_id = ? OR c.id IS NULL)`
	args := []any{year, companyID}
	if month != store.AllMonths {
		query += ` AND e.month = ?`
		args = append(args, month)
	}
	query += ` ORDER BY e.month, e.id`

	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []core.Entry
	for rows.Next() {
		var e core.Entry
		var projection bool
		if err := rows.Scan(&e.ID, &e.SubcategoryID, &e.Year, &e.Month, &projection, &e.Value, &e.Notes, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Plane = core.PlaneFromProjection(projection)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

func (r *Repository) subcategoryExists(ctx context.Context, id uuid.UUID) error {
	var one int
	err := r.db.QueryRowContext(ctx, r.q(`SELECT 1 FROM subcategories WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("subcategory %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup subcategory: %w", err)
	}
	return nil
}

func (r *Repository) UpsertEntry(ctx context.Context, in core.EntryInput) (core.Entry, error) {
	if err := in.Validate(); err != nil {
		return core.Entry{}, err
	}
	if err := r.subcategoryExists(ctx, in.SubcategoryID); err != nil {
		return core.Entry{}, err
	}

	e := core.Entry{
		ID:            uuid.New(),
		SubcategoryID: in.SubcategoryID,
		Year:          in.Year,
		Month:         in.Month,
		Plane:         in.Plane,
		Value:         in.Value.Round(2),
		Notes:         in.Notes,
		UpdatedAt:     time.Now().UTC(),
	}
	err := r.db.QueryRowContext(ctx, r.q(`
		INSERT INTO entries (id, subcategory_id, year, month, is_projection, value, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subcategory_id, year, month, is_projection)
		DO UPDATE SET value = excluded.value, notes = excluded.notes, updated_at = excluded.updated_at
		RETURNING id`),
		e.ID, e.SubcategoryID, e.Year, e.Month, e.Plane.IsProjection(), e.Value, e.Notes, e.UpdatedAt).
		Scan(&e.ID)
	if err != nil {
		return core.Entry{}, fmt.Errorf("upsert entry: %w", err)
	}

	slog.DebugContext(ctx, "Entry upserted", log.FieldComponent, log.ComponentStorage,
		"id", e.ID,
		"subcategory_id", e.SubcategoryID,
		"year", e.Year,
		"month", e.Month,
		"plane", e.Plane.String())

	return e, nil
}

func (r *Repository) ClearSubcategory(ctx context.Context, subcategoryID uuid.UUID, year int) (int, error) {
	if err := r.subcategoryExists(ctx, subcategoryID); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		r.q(`UPDATE entries SET value = ?, updated_at = ? WHERE subcategory_id = ? AND year = ?`),
		decimal.Zero, time.Now().UTC(), subcategoryID, year)
	if err != nil {
		return 0, fmt.Errorf("clear subcategory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear subcategory: %w", err)
	}
	return int(n), nil
}

func (r *Repository) UpdateCategorySortOrder(ctx context.Context, id uuid.UUID, sortOrder int) error {
	return r.updateSortOrder(ctx, "categories", id, sortOrder)
}

func (r *Repository) UpdateSubcategorySortOrder(ctx context.Context, id uuid.UUID, sortOrder int) error {
	return r.updateSortOrder(ctx, "subcategories", id, sortOrder)
}

// updateSortOrder only ever receives one of the two fixed table names above.
func (r *Repository) updateSortOrder(ctx context.Context, table string, id uuid.UUID, sortOrder int) error {
	res, err := r.db.ExecContext(ctx, r.q(`UPDATE `+table+` SET sort_order = ? WHERE id = ?`), sortOrder, id)
	if err != nil {
		return fmt.Errorf("update %s sort order: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s sort order: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, core.ErrNotFound)
	}
	return nil
}

// CreateCategory inserts the category and its "Main" subcategory in one transaction.
func (r *Repository) CreateCategory(ctx context.Context, in store.CategoryInput) (core.Category, error) {
	if err := in.Validate(); err != nil {
		return core.Category{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Category{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var dup int
	if err := tx.QueryRowContext(ctx,
		r.q(`SELECT COUNT(*) FROM categories WHERE company_id = ? AND LOWER(name) = LOWER(?)`),
		in.CompanyID, in.Name).Scan(&dup); err != nil {
		return core.Category{}, fmt.Errorf("check category name: %w", err)
	}
	if dup > 0 {
		return core.Category{}, fmt.Errorf("category %q: %w", in.Name, core.ErrDuplicateName)
	}

	c := core.Category{
		ID:           uuid.New(),
		CompanyID:    in.CompanyID,
		Name:         in.Name,
		Kind:         in.Kind,
		SortOrder:    in.SortOrder,
		IsCalculated: in.IsCalculated,
	}
	if _, err := tx.ExecContext(ctx, r.q(`
		INSERT INTO categories (id, company_id, name, kind, sort_order, is_calculated)
		VALUES (?, ?, ?, ?, ?, ?)`),
		c.ID, c.CompanyID, c.Name, string(c.Kind), c.SortOrder, c.IsCalculated); err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}

	main := core.Subcategory{ID: uuid.New(), CategoryID: c.ID, Name: core.MainSubcategoryName}
	if _, err := tx.ExecContext(ctx, r.q(`
		INSERT INTO subcategories (id, category_id, name, sort_order) VALUES (?, ?, ?, ?)`),
		main.ID, main.CategoryID, main.Name, main.SortOrder); err != nil {
		return core.Category{}, fmt.Errorf("insert main subcategory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Category{}, fmt.Errorf("commit category: %w", err)
	}
	c.Subcategories = []core.Subcategory{main}

	slog.InfoContext(ctx, "Category created", log.FieldComponent, log.ComponentStorage, "id", c.ID, "name", c.Name, "kind", c.Kind)
	return c, nil
}

// DeleteCategory removes entries, then subcategories, then the category, atomically.
func (r *Repository) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.q(`
		DELETE FROM entries
		WHERE subcategory_id IN (SELECT id FROM subcategories WHERE category_id = ?)`), id); err != nil {
		return fmt.Errorf("delete category entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.q(`DELETE FROM subcategories WHERE category_id = ?`), id); err != nil {
		return fmt.Errorf("delete subcategories: %w", err)
	}
	res, err := tx.ExecContext(ctx, r.q(`DELETE FROM categories WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	slog.InfoContext(ctx, "Category deleted", log.FieldComponent, log.ComponentStorage, "id", id)
	return nil
}

func (r *Repository) CreateSubcategory(ctx context.Context, categoryID uuid.UUID, name string, sortOrder int) (core.Subcategory, error) {
	name, err := core.ValidateName(name)
	if err != nil {
		return core.Subcategory{}, err
	}
	if _, err := r.GetCategory(ctx, categoryID); err != nil {
		return core.Subcategory{}, err
	}

	var dup int
	if err := r.db.QueryRowContext(ctx,
		r.q(`SELECT COUNT(*) FROM subcategories WHERE category_id = ? AND LOWER(name) = LOWER(?)`),
		categoryID, name).Scan(&dup); err != nil {
		return core.Subcategory{}, fmt.Errorf("check subcategory name: %w", err)
	}
	if dup > 0 {
		return core.Subcategory{}, fmt.Errorf("subcategory %q: %w", name, core.ErrDuplicateName)
	}

	s := core.Subcategory{ID: uuid.New(), CategoryID: categoryID, Name: name, SortOrder: sortOrder}
	if _, err := r.db.ExecContext(ctx,
		r.q(`INSERT INTO subcategories (id, category_id, name, sort_order) VALUES (?, ?, ?, ?)`),
		s.ID, s.CategoryID, s.Name, s.SortOrder); err != nil {
		return core.Subcategory{}, fmt.Errorf("insert subcategory: %w", err)
	}
	return s, nil
}

func (r *Repository) DeleteSubcategory(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.q(`DELETE FROM entries WHERE subcategory_id = ?`), id); err != nil {
		return fmt.Errorf("delete subcategory entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, r.q(`DELETE FROM subcategories WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete subcategory: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete subcategory: %w", err)
	} else if n == 0 {
		return fmt.Errorf("subcategory %s: %w", id, core.ErrNotFound)
	}
	return tx.Commit()
}

func (r *Repository) ListMonthStatuses(ctx context.Context, companyID uuid.UUID, year int) ([]core.MonthStatusRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT company_id, year, month, is_consolidated, manually_marked, consolidated_at
		FROM month_statuses
		WHERE company_id = ? AND year = ?
		ORDER BY month`), companyID, year)
	if err != nil {
		return nil, fmt.Errorf("list month statuses: %w", err)
	}
	defer rows.Close()

	var out []core.MonthStatusRecord
	for rows.Next() {
		var rec core.MonthStatusRecord
		var at sql.NullTime
		if err := rows.Scan(&rec.CompanyID, &rec.Year, &rec.Month, &rec.IsConsolidated, &rec.ManuallyMarked, &at); err != nil {
			return nil, fmt.Errorf("scan month status: %w", err)
		}
		if at.Valid {
			rec.ConsolidatedAt = at.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) SetMonthStatus(ctx context.Context, rec core.MonthStatusRecord) error {
	if err := core.ValidateYear(rec.Year); err != nil {
		return err
	}
	if err := core.ValidateMonth(rec.Month); err != nil {
		return err
	}
	at := sql.NullTime{Time: rec.ConsolidatedAt, Valid: !rec.ConsolidatedAt.IsZero()}
	if _, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO month_statuses (company_id, year, month, is_consolidated, manually_marked, consolidated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id, year, month)
		DO UPDATE SET is_consolidated = excluded.is_consolidated,
			manually_marked = excluded.manually_marked,
			consolidated_at = excluded.consolidated_at`),
		rec.CompanyID, rec.Year, rec.Month, rec.IsConsolidated, rec.ManuallyMarked, at); err != nil {
		return fmt.Errorf("set month status: %w", err)
	}
	return nil
}

func (r *Repository) ClearMonthStatus(ctx context.Context, companyID uuid.UUID, year, month int) error {
	if _, err := r.db.ExecContext(ctx,
		r.q(`DELETE FROM month_statuses WHERE company_id = ? AND year = ? AND month = ?`),
		companyID, year, month); err != nil {
		return fmt.Errorf("clear month status: %w", err)
	}
	return nil
}
