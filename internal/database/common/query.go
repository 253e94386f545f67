package common

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/Masterminds/squirrel"
)

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ValidateIdent rejects names that cannot be safely quoted into PRAGMA or DDL text.
func ValidateIdent(name string) error {
	if !identRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier: %q", name)
	}
	return nil
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Base carries the *sql.DB and statement builder shared by every adapter.
type Base struct {
	DB    *sql.DB
	QB    squirrel.StatementBuilderType
	Quote func(string) string
	// Params is the most bind parameters one statement may carry.
	Params int
}

// DefaultMaxParams is SQLite's limit, the lowest of the supported stores.
const DefaultMaxParams = 32766

func (b *Base) Builder() squirrel.StatementBuilderType {
	return b.QB
}

func (b *Base) MaxParams() int {
	if b.Params <= 0 {
		return DefaultMaxParams
	}
	return b.Params
}

func (b *Base) QuoteIdent(name string) string {
	return b.Quote(name)
}

func (b *Base) Conn(ctx context.Context) (*sql.Conn, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("adapter is not connected")
	}
	return b.DB.Conn(ctx)
}

func (b *Base) Close() error {
	if b.DB != nil {
		return b.DB.Close()
	}
	return nil
}

func (b *Base) Ping(ctx context.Context) error {
	if b.DB == nil {
		return fmt.Errorf("adapter is not connected")
	}
	return b.DB.PingContext(ctx)
}

// SetPool applies the connection limits every adapter uses for a single run.
func SetPool(db *sql.DB, maxOpen int) {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)
}

// DistinctValues reads up to limit distinct non-null values of table.column.
func (b *Base) DistinctValues(ctx context.Context, table, column string, limit int) ([]interface{}, error) {
	col := b.Quote(column)
	q := b.QB.Select("DISTINCT " + col).
		From(b.Quote(table)).
		Where(col + " IS NOT NULL")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := b.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var values []interface{}
	for rows.Next() {
		var v interface{}
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, NormalizeValue(v))
	}
	return values, rows.Err()
}

// MaxValue returns MAX(table.column) and whether the table had any rows.
func (b *Base) MaxValue(ctx context.Context, table, column string) (int64, bool, error) {
	query, args, err := b.QB.Select("MAX(" + b.Quote(column) + ")").From(b.Quote(table)).ToSql()
	if err != nil {
		return 0, false, err
	}
	var max sql.NullInt64
	if err := b.DB.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		return 0, false, fmt.Errorf("failed to read max %s.%s: %w", table, column, err)
	}
	return max.Int64, max.Valid, nil
}

// NormalizeValue converts driver byte slices to strings so pooled values compare by content.
func NormalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int32:
		return int64(val)
	case int:
		return int64(val)
	}
	return v
}
