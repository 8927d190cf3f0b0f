package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"pbietl/internal/storage"
)

// maxParams stays under SQLITE_MAX_VARIABLE_NUMBER of older builds.
const maxParams = 999

// Warehouse implements storage.Warehouse for SQLite.
//
// SQLite has no date type; dates are stored as YYYY-MM-DD text and timestamps
// as RFC3339Nano text so they sort and round-trip.
type Warehouse struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", Open)
}

// Open opens the database at cfg.DSN (a path or a file: URI).
func Open(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Warehouse{db: db}, nil
}

func (w *Warehouse) Close() { _ = w.db.Close() }

// ReplaceTable drops, recreates and fills spec.Name in one transaction.
func (w *Warehouse) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, buildDropSQL(spec.Name)); err != nil {
		return 0, fmt.Errorf("drop table %s: %w", spec.Name, err)
	}
	if _, err := tx.ExecContext(ctx, buildCreateSQL(spec)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", spec.Name, err)
	}

	vals := storage.TextTimes(spec, storage.Values(spec, rows))
	var n int64
	for _, batch := range storage.Batches(vals, len(spec.Columns), maxParams) {
		q, args := buildInsertSQL(spec.Name, spec.ColumnNames(), batch)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return n, fmt.Errorf("insert into %s: %w", spec.Name, err)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", spec.Name, err)
	}
	return n, nil
}

func buildDropSQL(table string) string {
	return "DROP TABLE IF EXISTS " + sqlIdent(table) + ";"
}

func buildCreateSQL(spec storage.TableSpec) string {
	defs := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		defs[i] = sqlIdent(c.Name) + " " + sqliteType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s);", sqlIdent(spec.Name), strings.Join(defs, ", "))
}

// buildInsertSQL is pure so placeholder layout can be tested without a database.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
		args = append(args, r[:len(columns)]...)
	}
	b.WriteString(";")
	return b.String(), args
}

func sqliteType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger, storage.TypeBool:
		return "INTEGER"
	case storage.TypeReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// sqlIdent double-quotes an identifier, escaping embedded quotes.
func sqlIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
