package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/database/common"
	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

type Adapter struct {
	common.Base
	pool   *pgxpool.Pool
	driver string
}

type Option func(*Adapter)

// WithDriver selects "pgx" (default) or "pq".
func WithDriver(driver string) Option {
	return func(a *Adapter) { a.driver = strings.ToLower(driver) }
}

func New(opts ...Option) *Adapter {
	a := &Adapter{
		Base: common.Base{
			QB:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
			Quote:  quote,
			Params: 65535,
		},
		driver: "pgx",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func NewWithDB(db *sql.DB) *Adapter {
	a := New()
	a.DB = db
	return a
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (p *Adapter) Provider() string {
	return "postgresql"
}

func (p *Adapter) Connect(ctx context.Context, url string) error {
	if p.driver == "pq" || p.driver == "postgres" {
		db, err := sql.Open("postgres", url)
		if err != nil {
			return fmt.Errorf("failed to open PostgreSQL connection: %w", err)
		}
		common.SetPool(db, 4)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		p.DB = db
		return nil
	}

	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return fmt.Errorf("failed to parse connection URL: %w", err)
	}

	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec
	config.MaxConns = 4
	config.MinConns = 0
	config.MaxConnLifetime = 15 * time.Minute
	config.MaxConnIdleTime = 3 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	p.pool = pool
	p.DB = stdlib.OpenDBFromPool(pool)
	return nil
}

func (p *Adapter) Close() error {
	err := p.Base.Close()
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return err
}

// DisableForeignKeys switches the session to replica mode, which skips FK triggers.
func (p *Adapter) DisableForeignKeys(ctx context.Context, conn common.Execer) error {
	_, err := conn.ExecContext(ctx, "SET session_replication_role = replica")
	return err
}

func (p *Adapter) EnableForeignKeys(ctx context.Context, conn common.Execer) error {
	_, err := conn.ExecContext(ctx, "SET session_replication_role = origin")
	return err
}

func (p *Adapter) ClearTable(ctx context.Context, conn common.Execer, table string) error {
	if _, err := conn.ExecContext(ctx, "DELETE FROM "+quote(table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

// Classify maps SQLSTATE codes from pgx and lib/pq onto write failure kinds.
func Classify(err error) (*common.StoreError, bool) {
	var code, column, constraint, detail, message string

	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		code, column, constraint, detail, message = pgErr.Code, pgErr.ColumnName, pgErr.ConstraintName, pgErr.Detail, pgErr.Message
	case errors.As(err, &pqErr):
		code, column, constraint, detail, message = string(pqErr.Code), pqErr.Column, pqErr.Constraint, pqErr.Detail, pqErr.Message
	default:
		return nil, false
	}

	if column == "" {
		column = common.ColumnFromMessage(detail)
	}
	if column == "" {
		column = common.ColumnFromMessage(message)
	}

	se := &common.StoreError{Err: err, Column: column, Constraint: constraint}
	switch code {
	case "23505":
		se.Kind = common.DuplicateKey
	case "23503":
		se.Kind = common.ForeignKeyViolation
	case "22001", "22003":
		se.Kind = common.Truncation
	default:
		se.Kind = common.Other
	}
	return se, true
}

func (p *Adapter) Classify(err error) (*common.StoreError, bool) {
	return Classify(err)
}
