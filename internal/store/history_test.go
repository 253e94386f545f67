package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHistory(t *testing.T, provider string) (*SQLHistory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLHistory(db, provider), mock
}

func TestCreateUsesLastInsertID(t *testing.T) {
	h, mock := newHistory(t, "mysql")

	query := "INSERT INTO task_execution (task_id,start_time,status,total_count,success_count,error_count) VALUES (?,?,?,?,?,?)"
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs(int64(3), sqlmock.AnyArg(), "RUNNING", int64(0), int64(0), int64(0)).
		WillReturnResult(sqlmock.NewResult(42, 1))

	id, err := h.Create(context.Background(), &types.ExecutionRecord{TaskID: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReturningIDOnPostgres(t *testing.T) {
	h, mock := newHistory(t, "postgresql")

	query := "INSERT INTO task_execution (task_id,start_time,status,total_count,success_count,error_count) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(int64(3), sqlmock.AnyArg(), "RUNNING", int64(0), int64(0), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := h.Create(context.Background(), &types.ExecutionRecord{TaskID: 3, StartTime: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeOnlyOnce(t *testing.T) {
	h, mock := newHistory(t, "sqlite")

	query := "UPDATE task_execution SET end_time = ?, status = ?, error_message = ?, total_count = ?, success_count = ?, error_count = ? WHERE id = ? AND status = ?"
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs(sqlmock.AnyArg(), "SUCCESS", "2 rows dropped", int64(10), int64(8), int64(2), int64(5), "RUNNING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, h.Finalize(ctx, 5, types.ExecutionSuccess, "2 rows dropped", 10, 8, 2))

	err := h.Finalize(ctx, 5, types.ExecutionStopped, "", 10, 8, 2)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRunning(t *testing.T) {
	h, mock := newHistory(t, "mysql")

	query := "SELECT id, task_id, start_time, end_time, status, total_count, success_count, error_count, error_message FROM task_execution WHERE task_id = ? AND status = ? ORDER BY id DESC LIMIT 1"
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(int64(3), "RUNNING").
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(int64(9), int64(3), start, nil, "RUNNING", int64(0), int64(0), int64(0), nil))
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(int64(4), "RUNNING").
		WillReturnRows(sqlmock.NewRows(historyColumns))

	ctx := context.Background()
	rec, err := h.LatestRunning(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(9), rec.ID)
	assert.Equal(t, start, rec.StartTime)
	assert.Nil(t, rec.EndTime)
	assert.Equal(t, types.ExecutionRunning, rec.Status)

	_, err = h.LatestRunning(ctx, 4)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNewestFirst(t *testing.T) {
	h, mock := newHistory(t, "postgresql")

	query := "SELECT id, task_id, start_time, end_time, status, total_count, success_count, error_count, error_message FROM task_execution WHERE task_id = $1 ORDER BY id DESC LIMIT 2"
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(int64(2), int64(1), now, now, "FAILED", int64(5), int64(0), int64(5), "connection refused").
			AddRow(int64(1), int64(1), now, now, "SUCCESS", int64(5), int64(5), int64(0), nil))

	recs, err := h.List(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "connection refused", recs[0].ErrorMessage)
	assert.NotNil(t, recs[0].EndTime)
	assert.Equal(t, types.ExecutionSuccess, recs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateCreatesIndexOutsideMySQL(t *testing.T) {
	h, mock := newHistory(t, "sqlite")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS task_execution").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_task_execution_task").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, h.Migrate(context.Background()))

	m, mysqlMock := newHistory(t, "mysql")
	mysqlMock.ExpectExec("CREATE TABLE IF NOT EXISTS task_execution").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, m.Migrate(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, mysqlMock.ExpectationsWereMet())
}
