package sqlite

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Lumos-Labs-HQ/datagen/internal/database/common"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPath(t *testing.T) {
	assert.Equal(t, "data.db?_foreign_keys=on&_busy_timeout=5000", Path("sqlite://data.db"))
	assert.Equal(t, "data.db?cache=shared&_foreign_keys=on", Path("sqlite://data.db?cache=shared"))
	assert.Equal(t, "data.db?_fk=1", Path("data.db?_fk=1"))
}

func TestIntrospect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	a := NewWithDB(db)

	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA table_info("orders")`)).
		WillReturnRows(sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
			AddRow(0, "id", "INTEGER", 0, nil, 1).
			AddRow(1, "customer_id", "INTEGER", 1, nil, 0).
			AddRow(2, "code", "VARCHAR(8)", 1, nil, 0).
			AddRow(3, "note", "TEXT", 0, nil, 0).
			AddRow(4, "created_at", "DATETIME", 1, "CURRENT_TIMESTAMP", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA foreign_key_list("orders")`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq", "table", "from", "to", "on_update", "on_delete", "match"}).
			AddRow(0, 0, "customers", "customer_id", "id", "NO ACTION", "CASCADE", "NONE"))
	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA index_list("orders")`)).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "name", "unique", "origin", "partial"}).
			AddRow(0, "idx_orders_code", 1, "c", 0).
			AddRow(1, "idx_orders_note", 0, "c", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA index_info("idx_orders_code")`)).
		WillReturnRows(sqlmock.NewRows([]string{"seqno", "cid", "name"}).AddRow(0, 2, "code"))

	tables, err := a.Introspect(context.Background(), []string{"orders"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	orders := tables["orders"]
	require.NotNil(t, orders)
	assert.Equal(t, "id", orders.PrimaryKey)
	assert.True(t, orders.PKAutoIncrement)
	assert.True(t, orders.IsUnique("code"))
	assert.False(t, orders.IsUnique("note"))
	assert.True(t, orders.Columns["note"].Nullable)
	assert.False(t, orders.Columns["code"].Nullable)
	assert.True(t, orders.Columns["created_at"].DynamicDefault())
	require.NotNil(t, orders.ForeignKeyFor("customer_id"))
	assert.Equal(t, "customers", orders.ForeignKeyFor("customer_id").RefTable)
}

func TestIntrospectMissingTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	a := NewWithDB(db)

	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA table_info("ghost")`)).
		WillReturnRows(sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}))

	tables, err := a.Introspect(context.Background(), []string{"ghost"})
	require.NoError(t, err)
	assert.Empty(t, tables)

	_, err = a.Introspect(context.Background(), []string{"bad name;"})
	assert.Error(t, err)
}

func TestClearTableResetsSequence(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	a := NewWithDB(db)

	mock.ExpectExec("PRAGMA foreign_keys = OFF").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM "orders"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM sqlite_sequence WHERE name = \\?").
		WithArgs("orders").
		WillReturnError(errors.New("no such table: sqlite_sequence"))
	mock.ExpectExec("PRAGMA foreign_keys = ON").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, a.DisableForeignKeys(ctx, db))
	require.NoError(t, a.ClearTable(ctx, db, "orders"))
	require.NoError(t, a.EnableForeignKeys(ctx, db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	se, ok := Classify(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})
	require.True(t, ok)
	assert.Equal(t, common.DuplicateKey, se.Kind)

	se, ok = Classify(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey})
	require.True(t, ok)
	assert.Equal(t, common.DuplicateKey, se.Kind)

	se, ok = Classify(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey})
	require.True(t, ok)
	assert.Equal(t, common.ForeignKeyViolation, se.Kind)

	se, ok = Classify(sqlite3.Error{Code: sqlite3.ErrTooBig})
	require.True(t, ok)
	assert.Equal(t, common.Truncation, se.Kind)

	se, ok = Classify(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull})
	require.True(t, ok)
	assert.Equal(t, common.Other, se.Kind)

	_, ok = Classify(errors.New("disk I/O error"))
	assert.False(t, ok)
}

func TestColumnFromConstraintMessage(t *testing.T) {
	assert.Equal(t, "email", common.ColumnFromMessage("UNIQUE constraint failed: users.email"))
}
