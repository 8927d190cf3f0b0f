package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pbietl/internal/storage"
)

// maxParams stays under the SQL Server limit of 2100 parameters per request.
const maxParams = 2000

func init() {
	storage.Register("mssql", Open)
}

// Warehouse implements storage.Warehouse for Microsoft SQL Server.
//
// The package does not import a driver; storage/all registers
// github.com/microsoft/go-mssqldb under "sqlserver".
type Warehouse struct {
	db dbConn
}

// Open connects with the "sqlserver" driver and pings the server.
func Open(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(8)
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Warehouse{db: &sqlDB{db: raw}}, nil
}

// Close releases database resources.
func (w *Warehouse) Close() {
	if w == nil || w.db == nil {
		return
	}
	_ = w.db.Close()
}

// ReplaceTable drops, recreates and fills spec.Name in one transaction.
func (w *Warehouse) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, buildDropSQL(spec.Name)); err != nil {
		return 0, fmt.Errorf("drop table %s: %w", spec.Name, err)
	}
	if _, err := tx.ExecContext(ctx, buildCreateSQL(spec)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", spec.Name, err)
	}

	var n int64
	vals := storage.Values(spec, rows)
	for _, batch := range storage.Batches(vals, len(spec.Columns), maxParams) {
		q, args := buildBulkInsertSQL(spec.Name, spec.ColumnNames(), batch)
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
	committed = true
	return n, nil
}

func buildDropSQL(table string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;",
		strings.ReplaceAll(mssqlTableIdent(table), "'", "''"), mssqlTableIdent(table))
}

func buildCreateSQL(spec storage.TableSpec) string {
	defs := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		defs[i] = mssqlIdent(c.Name) + " " + mssqlType(c.Type) + " NULL"
	}
	return fmt.Sprintf("CREATE TABLE %s (%s);", mssqlTableIdent(spec.Name), strings.Join(defs, ", "))
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for all rows
// with @pN placeholders.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}

func mssqlType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger:
		return "BIGINT"
	case storage.TypeReal:
		return "FLOAT"
	case storage.TypeDate:
		return "DATE"
	case storage.TypeTimestamp:
		return "DATETIME2"
	case storage.TypeBool:
		return "BIT"
	default:
		return "NVARCHAR(MAX)"
	}
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes schema-qualified names: "dbo.fct" -> [dbo].[fct].
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// ---- database/sql seam types ----

// dbConn is the part of *sql.DB this package uses.
type dbConn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is the part of *sql.Tx this package uses.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)
