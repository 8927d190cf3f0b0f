package mssql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbietl/internal/storage"
)

func newMock(t *testing.T) (*Warehouse, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Warehouse{db: &sqlDB{db: db}}, mock
}

func dimSpec() storage.TableSpec {
	return storage.TableSpec{Name: "dbo.DimCliente", Columns: []storage.ColumnSpec{
		{Name: "Key_Cliente", Type: storage.TypeInteger},
		{Name: "Cliente", Type: storage.TypeText},
	}}
}

func TestBuildSQL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "IF OBJECT_ID(N'[dbo].[DimCliente]', N'U') IS NOT NULL DROP TABLE [dbo].[DimCliente];", buildDropSQL("dbo.DimCliente"))
	assert.Equal(t, "CREATE TABLE [dbo].[DimCliente] ([Key_Cliente] BIGINT NULL, [Cliente] NVARCHAR(MAX) NULL);", buildCreateSQL(dimSpec()))

	q, args := buildBulkInsertSQL("t", []string{"a]b", "c"}, [][]any{{1, 2}, {3, 4}})
	assert.Equal(t, "INSERT INTO [t] ([a]]b], [c]) VALUES (@p1, @p2), (@p3, @p4);", q)
	assert.Equal(t, []any{1, 2, 3, 4}, args)
}

func TestReplaceTable_Transaction(t *testing.T) {
	t.Parallel()

	w, mock := newMock(t)
	spec := dimSpec()
	rows := [][]any{{int64(1), "ACME"}, {2.0, "Beta"}}

	insert, _ := buildBulkInsertSQL(spec.Name, spec.ColumnNames(), rows)
	mock.ExpectBegin()
	mock.ExpectExec(buildDropSQL(spec.Name)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(buildCreateSQL(spec)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insert).WithArgs(int64(1), "ACME", int64(2), "Beta").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := w.ReplaceTable(context.Background(), spec, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_RollsBackOnInsertError(t *testing.T) {
	t.Parallel()

	w, mock := newMock(t)
	spec := dimSpec()
	rows := [][]any{{int64(1), "ACME"}}

	insert, _ := buildBulkInsertSQL(spec.Name, spec.ColumnNames(), rows)
	mock.ExpectBegin()
	mock.ExpectExec(buildDropSQL(spec.Name)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(buildCreateSQL(spec)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insert).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err := w.ReplaceTable(context.Background(), spec, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert into dbo.DimCliente")
	require.NoError(t, mock.ExpectationsWereMet())
}
