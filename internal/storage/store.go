// Package storage owns the SQLite store: schema lifecycle, record CRUD,
// category reads and the derived summary reports. It is the only writer of
// the persisted representation; callers hold transient copies obtained from
// the read operations.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"facturas/internal/core"

	_ "modernc.org/sqlite"
)

// MemoryPath designates the non-persistent, process-lifetime-only store.
const MemoryPath = ":memory:"

// Store wraps the SQLite handle. For file stores the database/sql pool hands
// out connections per call; the in-memory store pins a single connection for
// the process lifetime, since each pooled connection would otherwise see its
// own empty database. Concurrent write serialization is delegated to SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the store at path and brings the schema up to date:
// both tables, both indexes and the default category seed, all idempotent.
// Failure here is fatal to application startup.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the underlying handle. The in-memory store's contents are
// lost at this point.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the location the store was opened at.
func (s *Store) Path() string {
	return s.path
}

// excludedCategories is a legacy read-side filter: these names never appear
// in listings or summaries even when present in storage. Category resolution
// on the write path still finds them.
const excludedCategories = "('coche', 'coches')"

// ListCategories returns all categories except the excluded legacy names,
// ordered by name ascending. An empty result is valid, not an error.
func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(color, '')
		FROM categories
		WHERE LOWER(name) NOT IN `+excludedCategories+`
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return cats, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// resolveCategory returns the id for name, creating the category (empty
// description and color) if no match exists. Shared by AddRecord,
// UpdateRecord and the importer so the auto-vivification policy lives in one
// place. Name matching is exact, like the unique constraint.
func resolveCategory(ctx context.Context, q execer, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup category %q: %w", name, err)
	}

	res, err := q.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("create category %q: %w", name, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("new category id: %w", err)
	}
	slog.InfoContext(ctx, "Category created", "name", name, "id", id)
	return id, nil
}

// normalizeDate converts a display-form date to ISO form, substituting the
// current date when parsing fails. The substitution is deliberate legacy
// policy: a write never fails because of a malformed date. Callers that want
// strict dates must validate upstream; the WARN below is the only signal.
func normalizeDate(ctx context.Context, display string) string {
	iso, err := core.ToISO(display)
	if err != nil {
		slog.WarnContext(ctx, "Unparseable date on write, substituting today",
			"date", display)
		return core.Today()
	}
	return iso
}

// AddRecord inserts a record, resolving or creating its category, and
// returns the new id. Category resolution and the insert share one
// transaction, so the operation is atomic.
func (s *Store) AddRecord(ctx context.Context, in core.RecordInput) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin add record: %w", err)
	}
	defer tx.Rollback()

	catID, err := resolveCategory(ctx, tx, in.Category)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO records (date, category_id, description, amount)
		VALUES (?, ?, ?, ?)`,
		normalizeDate(ctx, in.Date), catID, in.Description, in.Amount)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("new record id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit add record: %w", err)
	}

	slog.InfoContext(ctx, "Record saved",
		"id", id,
		"category", in.Category,
		"amount", in.Amount)
	return id, nil
}

// UpdateRecord rewrites all fields of the record identified by id and
// refreshes its modification timestamp. It reports true iff the id existed;
// false with a nil error is the expected outcome for stale references, while
// a non-nil error means the store itself failed.
func (s *Store) UpdateRecord(ctx context.Context, id int64, in core.RecordInput) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update record: %w", err)
	}
	defer tx.Rollback()

	catID, err := resolveCategory(ctx, tx, in.Category)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE records
		SET date = ?,
		    category_id = ?,
		    description = ?,
		    amount = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		normalizeDate(ctx, in.Date), catID, in.Description, in.Amount, id)
	if err != nil {
		return false, fmt.Errorf("update record %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update record %d rows: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update record: %w", err)
	}
	return affected > 0, nil
}

// DeleteRecord hard-deletes a record. Same outcome contract as UpdateRecord.
func (s *Store) DeleteRecord(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete record %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete record %d rows: %w", id, err)
	}
	return affected > 0, nil
}

// rangeBounds implements the both-or-neither date range contract carried
// over from the original system: a single bound is ignored, not treated as a
// half-open range. The WARN makes the artifact visible to callers.
func rangeBounds(ctx context.Context, from, to string) (string, string, bool) {
	if from != "" && to != "" {
		return from, to, true
	}
	if from != "" || to != "" {
		slog.WarnContext(ctx, "Partial date range ignored, returning unfiltered set",
			"from", from, "to", to)
	}
	return "", "", false
}

// ListRecords returns records joined to their category, newest date first.
// Bounds are ISO dates and inclusive; ISO text compares in calendar order.
// Dates come back in display form.
func (s *Store) ListRecords(ctx context.Context, from, to string) ([]core.Record, error) {
	query := `
		SELECT r.id, r.date, c.name, r.description, r.amount, COALESCE(c.color, '')
		FROM records r
		JOIN categories c ON r.category_id = c.id`
	var args []any
	if f, t, ok := rangeBounds(ctx, from, to); ok {
		query += ` WHERE r.date BETWEEN ? AND ?`
		args = append(args, f, t)
	}
	query += ` ORDER BY r.date DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var recs []core.Record
	for rows.Next() {
		var r core.Record
		if err := rows.Scan(&r.ID, &r.Date, &r.Category, &r.Description, &r.Amount, &r.Color); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Date = core.FromISO(r.Date)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}

// SummaryByCategory aggregates records per category, largest total first.
// The left join keeps idle categories visible with count 0 when no range is
// given; with a range, only categories with records in range remain, which
// matches the original report. The excluded legacy names are filtered here
// as on every read path.
func (s *Store) SummaryByCategory(ctx context.Context, from, to string) ([]core.CategorySummary, error) {
	query := `
		SELECT c.name, COALESCE(c.color, ''), COUNT(r.id), COALESCE(SUM(r.amount), 0)
		FROM categories c
		LEFT JOIN records r ON c.id = r.category_id
		WHERE LOWER(c.name) NOT IN ` + excludedCategories
	var args []any
	if f, t, ok := rangeBounds(ctx, from, to); ok {
		query += ` AND r.date BETWEEN ? AND ?`
		args = append(args, f, t)
	}
	query += `
		GROUP BY c.id, c.name, c.color
		ORDER BY SUM(r.amount) DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary by category: %w", err)
	}
	defer rows.Close()

	var sums []core.CategorySummary
	for rows.Next() {
		var cs core.CategorySummary
		if err := rows.Scan(&cs.Category, &cs.Color, &cs.Count, &cs.Total); err != nil {
			return nil, fmt.Errorf("scan category summary: %w", err)
		}
		sums = append(sums, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category summary: %w", err)
	}
	return sums, nil
}

// SummaryByMonth totals records per year-month for the given calendar year
// (current year when 0), ascending. Months without records are absent: this
// report is record-driven, unlike SummaryByCategory.
func (s *Store) SummaryByMonth(ctx context.Context, year int) ([]core.MonthSummary, error) {
	if year == 0 {
		year = time.Now().Year()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m', date) AS month, SUM(amount)
		FROM records
		WHERE strftime('%Y', date) = ?
		GROUP BY month
		ORDER BY month`, strconv.Itoa(year))
	if err != nil {
		return nil, fmt.Errorf("summary by month: %w", err)
	}
	defer rows.Close()

	var sums []core.MonthSummary
	for rows.Next() {
		var ms core.MonthSummary
		if err := rows.Scan(&ms.Month, &ms.Total); err != nil {
			return nil, fmt.Errorf("scan month summary: %w", err)
		}
		sums = append(sums, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate month summary: %w", err)
	}
	return sums, nil
}

// CountRecords reports the total number of stored records. The startup
// importer uses it to decide whether the store is fresh.
func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}
