package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/config"
	mysqladapter "github.com/Lumos-Labs-HQ/datagen/internal/database/mysql"
	sqliteadapter "github.com/Lumos-Labs-HQ/datagen/internal/database/sqlite"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/Masterminds/squirrel"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const historyTable = "task_execution"

var historyColumns = []string{
	"id", "task_id", "start_time", "end_time", "status",
	"total_count", "success_count", "error_count", "error_message",
}

// SQLHistory stores execution records in the task_execution table.
type SQLHistory struct {
	db       *sql.DB
	qb       squirrel.StatementBuilderType
	provider string
}

func NewSQLHistory(db *sql.DB, provider string) *SQLHistory {
	qb := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
	if provider == "postgresql" {
		qb = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	}
	return &SQLHistory{db: db, qb: qb, provider: provider}
}

// OpenHistory connects to the history database named by url and creates the
// table when it is missing.
func OpenHistory(ctx context.Context, url string) (*SQLHistory, error) {
	provider := config.ProviderFromURL(url)
	db, err := openDB(provider, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history store: %w", err)
	}

	h := NewSQLHistory(db, provider)
	if err := h.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

func openDB(provider, url string) (*sql.DB, error) {
	switch provider {
	case "postgresql":
		return sql.Open("pgx", url)
	case "mysql":
		return sql.Open("mysql", mysqladapter.DSN(url))
	case "sqlite":
		db, err := sql.Open("sqlite3", sqliteadapter.Path(url))
		if err != nil {
			return nil, err
		}
		// one writer avoids SQLITE_BUSY between concurrent finalizations
		db.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported history store URL: %s", url)
	}
}

func (h *SQLHistory) Close() error {
	return h.db.Close()
}

func (h *SQLHistory) Migrate(ctx context.Context) error {
	var query string
	switch h.provider {
	case "postgresql":
		query = `
        CREATE TABLE IF NOT EXISTS task_execution (
            id BIGSERIAL PRIMARY KEY,
            task_id BIGINT NOT NULL,
            start_time TIMESTAMP WITH TIME ZONE NOT NULL,
            end_time TIMESTAMP WITH TIME ZONE,
            status VARCHAR(16) NOT NULL,
            total_count BIGINT NOT NULL DEFAULT 0,
            success_count BIGINT NOT NULL DEFAULT 0,
            error_count BIGINT NOT NULL DEFAULT 0,
            error_message TEXT
        )`
	case "mysql":
		query = `
        CREATE TABLE IF NOT EXISTS task_execution (
            id BIGINT AUTO_INCREMENT PRIMARY KEY,
            task_id BIGINT NOT NULL,
            start_time DATETIME(3) NOT NULL,
            end_time DATETIME(3) NULL,
            status VARCHAR(16) NOT NULL,
            total_count BIGINT NOT NULL DEFAULT 0,
            success_count BIGINT NOT NULL DEFAULT 0,
            error_count BIGINT NOT NULL DEFAULT 0,
            error_message TEXT,
            INDEX idx_task_execution_task (task_id, status)
        )`
	default:
		query = `
        CREATE TABLE IF NOT EXISTS task_execution (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_id INTEGER NOT NULL,
            start_time DATETIME NOT NULL,
            end_time DATETIME,
            status TEXT NOT NULL,
            total_count INTEGER NOT NULL DEFAULT 0,
            success_count INTEGER NOT NULL DEFAULT 0,
            error_count INTEGER NOT NULL DEFAULT 0,
            error_message TEXT
        )`
	}

	if _, err := h.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s table: %w", historyTable, err)
	}
	if h.provider != "mysql" {
		index := `CREATE INDEX IF NOT EXISTS idx_task_execution_task ON task_execution (task_id, status)`
		if _, err := h.db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create %s index: %w", historyTable, err)
		}
	}
	return nil
}

func (h *SQLHistory) Create(ctx context.Context, rec *types.ExecutionRecord) (int64, error) {
	start := rec.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	status := rec.Status
	if status == "" {
		status = types.ExecutionRunning
	}

	q := h.qb.Insert(historyTable).
		Columns("task_id", "start_time", "status", "total_count", "success_count", "error_count").
		Values(rec.TaskID, start.UTC(), string(status), rec.TotalCount, rec.SuccessCount, rec.ErrorCount)

	if h.provider == "postgresql" {
		var id int64
		query, args, err := q.Suffix("RETURNING id").ToSql()
		if err != nil {
			return 0, err
		}
		if err := h.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to create execution record: %w", err)
		}
		return id, nil
	}

	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	result, err := h.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to create execution record: %w", err)
	}
	return result.LastInsertId()
}

// Finalize closes a RUNNING record. A record that is already final yields
// ErrNotRunning and is left untouched.
func (h *SQLHistory) Finalize(ctx context.Context, id int64, status types.ExecutionStatus, msg string, total, success, errCount int64) error {
	query, args, err := h.qb.Update(historyTable).
		Set("end_time", time.Now().UTC()).
		Set("status", string(status)).
		Set("error_message", nullString(msg)).
		Set("total_count", total).
		Set("success_count", success).
		Set("error_count", errCount).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"status": string(types.ExecutionRunning)}).
		ToSql()
	if err != nil {
		return err
	}

	result, err := h.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to finalize execution %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("execution %d: %w", id, ErrNotRunning)
	}
	return nil
}

func (h *SQLHistory) LatestRunning(ctx context.Context, taskID int64) (*types.ExecutionRecord, error) {
	query, args, err := h.qb.Select(historyColumns...).
		From(historyTable).
		Where(squirrel.Eq{"task_id": taskID}).
		Where(squirrel.Eq{"status": string(types.ExecutionRunning)}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	rec, err := scanRecord(h.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("running execution of task %d: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read execution of task %d: %w", taskID, err)
	}
	return rec, nil
}

// List returns the newest records first. taskID 0 lists every task.
func (h *SQLHistory) List(ctx context.Context, taskID int64, limit int) ([]*types.ExecutionRecord, error) {
	q := h.qb.Select(historyColumns...).From(historyTable).OrderBy("id DESC")
	if taskID != 0 {
		q = q.Where(squirrel.Eq{"task_id": taskID})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []*types.ExecutionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*types.ExecutionRecord, error) {
	var (
		rec     types.ExecutionRecord
		status  string
		endTime sql.NullTime
		message sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.TaskID, &rec.StartTime, &endTime, &status,
		&rec.TotalCount, &rec.SuccessCount, &rec.ErrorCount, &message); err != nil {
		return nil, err
	}
	rec.Status = types.ExecutionStatus(status)
	if endTime.Valid {
		t := endTime.Time
		rec.EndTime = &t
	}
	rec.ErrorMessage = message.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
