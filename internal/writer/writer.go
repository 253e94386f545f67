package writer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/Lumos-Labs-HQ/datagen/internal/config"
	"github.com/Lumos-Labs-HQ/datagen/internal/database"
	"github.com/Lumos-Labs-HQ/datagen/internal/logger"
	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
)

// Repairer fixes rows in place after the store rejected a chunk.
type Repairer interface {
	RegeneratePrimaryKeys(rows []map[string]interface{})
	// RefreshForeignKeys re-reads the pool behind column, or every FK column
	// when column is empty, and re-picks values in rows.
	RefreshForeignKeys(ctx context.Context, column string, rows []map[string]interface{}) error
	Reclamp(column string, rows []map[string]interface{})
}

type Result struct {
	Inserted int
	Failed   int
	Skipped  int
}

// Total is the number of rows the call was asked to write.
func (r Result) Total() int {
	return r.Inserted + r.Failed + r.Skipped
}

type Writer struct {
	flushSize  int
	maxRetries int
	log        *logger.Logger
}

func New(cfg config.Writer, log *logger.Logger) *Writer {
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 1000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if log == nil {
		log = logger.New("writer")
	}
	return &Writer{flushSize: cfg.FlushSize, maxRetries: cfg.MaxRetries, log: log}
}

// Write inserts rows into table over one dedicated connection. OVERWRITE
// clears the table first with foreign key checks disabled for the whole call.
// Exhausted retries stop the table and return the partial result with a nil
// error; an unclassified store error is returned.
func (w *Writer) Write(ctx context.Context, target database.Target, table *metadata.TableMetadata, rows []map[string]interface{}, mode types.WriteMode, repair Repairer) (res Result, err error) {
	conn, err := target.Conn(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to acquire connection for %s: %w", table.Name, err)
	}
	defer conn.Close()

	if mode == types.ModeOverwrite {
		if err := target.DisableForeignKeys(ctx, conn); err != nil {
			return res, fmt.Errorf("failed to disable foreign key checks: %w", err)
		}
		defer func() {
			if enableErr := target.EnableForeignKeys(context.WithoutCancel(ctx), conn); enableErr != nil {
				err = errors.Join(err, fmt.Errorf("failed to re-enable foreign key checks: %w", enableErr))
			}
		}()

		if err := target.ClearTable(ctx, conn, table.Name); err != nil {
			res.Skipped = len(rows)
			return res, err
		}
		w.log.Info("🗑️  Cleared %s", table.Name)
	}

	if len(rows) == 0 {
		return res, nil
	}

	columns := columnsOf(table, rows)
	size := chunkSize(w.flushSize, target.MaxParams(), len(columns))
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		ok, flushErr := w.flush(ctx, conn, target, table.Name, columns, chunk, repair)
		if flushErr != nil {
			res.Failed += len(chunk)
			res.Skipped += len(rows) - end
			return res, flushErr
		}
		if !ok {
			res.Failed += len(chunk)
			res.Skipped += len(rows) - end
			w.log.Error("❌ Giving up on %s after %d attempts: %d rows failed, %d skipped",
				table.Name, w.maxRetries, len(chunk), len(rows)-end)
			return res, nil
		}
		res.Inserted += len(chunk)
	}
	return res, nil
}

// flush inserts one chunk, repairing and retrying classified failures. It
// reports false when the attempts ran out.
func (w *Writer) flush(ctx context.Context, conn *sql.Conn, target database.Target, table string, columns []string, chunk []map[string]interface{}, repair Repairer) (bool, error) {
	for attempt := 1; ; attempt++ {
		err := insert(ctx, conn, target, table, columns, chunk)
		if err == nil {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		se := database.Classify(err)
		if se.Kind == database.Other {
			return false, fmt.Errorf("failed to insert into %s: %w", table, se)
		}
		if attempt >= w.maxRetries {
			w.log.Warn("⚠️  %s: %v", table, se)
			return false, nil
		}
		w.log.Warn("🔄 Retrying %s chunk (attempt %d/%d) after %s", table, attempt+1, w.maxRetries, se.Kind)

		if repair == nil {
			continue
		}
		switch se.Kind {
		case database.DuplicateKey:
			repair.RegeneratePrimaryKeys(chunk)
		case database.ForeignKeyViolation:
			if err := repair.RefreshForeignKeys(ctx, se.Column, chunk); err != nil {
				w.log.Warn("⚠️  Could not refresh foreign keys of %s: %v", table, err)
				return false, nil
			}
		case database.Truncation:
			repair.Reclamp(se.Column, chunk)
		}
	}
}

// chunkSize caps flushSize so one INSERT stays within the store's bind
// parameter limit.
func chunkSize(flushSize, maxParams, columns int) int {
	if columns == 0 || maxParams <= 0 {
		return flushSize
	}
	if limit := maxParams / columns; limit < flushSize {
		if limit < 1 {
			return 1
		}
		return limit
	}
	return flushSize
}

func insert(ctx context.Context, conn *sql.Conn, target database.Target, table string, columns []string, chunk []map[string]interface{}) error {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = target.QuoteIdent(c)
	}

	q := target.Builder().Insert(target.QuoteIdent(table)).Columns(quoted...)
	for _, row := range chunk {
		values := make([]interface{}, len(columns))
		for i, c := range columns {
			values[i] = row[c]
		}
		q = q.Values(values...)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert for %s: %w", table, err)
	}
	_, err = conn.ExecContext(ctx, query, args...)
	return err
}

// columnsOf lists every column present in any row, in table order.
func columnsOf(table *metadata.TableMetadata, rows []map[string]interface{}) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for name := range row {
			seen[name] = true
		}
	}
	columns := make([]string, 0, len(seen))
	for name := range seen {
		columns = append(columns, name)
	}
	sort.Slice(columns, func(i, j int) bool {
		pi, pj := position(table, columns[i]), position(table, columns[j])
		if pi != pj {
			return pi < pj
		}
		return columns[i] < columns[j]
	})
	return columns
}

func position(table *metadata.TableMetadata, column string) int {
	if col := table.Columns[column]; col != nil && col.Position > 0 {
		return col.Position
	}
	return len(table.Columns) + 1
}
