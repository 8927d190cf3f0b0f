package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pbietl/internal/storage"
)

// maxParams is the Postgres wire limit on bind parameters per statement.
const maxParams = 65535

func init() {
	storage.Register("postgres", Open)
}

// Warehouse implements storage.Warehouse for Postgres on a pgx pool.
type Warehouse struct {
	pool *pgxpool.Pool
}

// Open creates the pool and checks connectivity.
func Open(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Warehouse{pool: pool}, nil
}

// Close closes the connection pool.
func (w *Warehouse) Close() { w.pool.Close() }

// ReplaceTable drops, recreates and fills spec.Name in one transaction.
// Schema-qualified names ("bi.DimPlanta") create the schema when missing.
func (w *Warehouse) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	tx, err := w.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range buildReplaceDDL(spec) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("ddl %s: %w", spec.Name, err)
		}
	}

	var n int64
	vals := storage.Values(spec, rows)
	for _, batch := range storage.Batches(vals, len(spec.Columns), maxParams) {
		q, args := buildInsertSQL(spec.Name, spec.ColumnNames(), batch)
		tag, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return n, fmt.Errorf("insert into %s: %w", spec.Name, err)
		}
		n += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %s: %w", spec.Name, err)
	}
	return n, nil
}

// buildReplaceDDL returns the statements run before the inserts.
func buildReplaceDDL(spec storage.TableSpec) []string {
	var out []string
	if schema, _ := splitQualifiedName(spec.Name); schema != "" {
		out = append(out, "CREATE SCHEMA IF NOT EXISTS "+pgIdent(schema)+";")
	}
	out = append(out, "DROP TABLE IF EXISTS "+pgTableIdent(spec.Name)+";")

	defs := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		defs[i] = pgIdent(c.Name) + " " + pgType(c.Type)
	}
	out = append(out, fmt.Sprintf("CREATE TABLE %s (%s);", pgTableIdent(spec.Name), strings.Join(defs, ", ")))
	return out
}

// buildInsertSQL constructs one multi-row INSERT with $n placeholders.
//
// Constraints:
//   - every row has at least len(columns) cells.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
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
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}

func pgType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInteger:
		return "BIGINT"
	case storage.TypeReal:
		return "DOUBLE PRECISION"
	case storage.TypeDate:
		return "DATE"
	case storage.TypeTimestamp:
		return "TIMESTAMP"
	case storage.TypeBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func splitQualifiedName(name string) (schema string, table string) {
	if i := strings.Index(name, "."); i > 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func pgTableIdent(name string) string {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}
