package database

import (
	"context"
	"database/sql"

	"github.com/Lumos-Labs-HQ/datagen/internal/database/common"
	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"github.com/Masterminds/squirrel"
)

type (
	Kind       = common.Kind
	StoreError = common.StoreError
	Execer     = common.Execer
)

const (
	Other               = common.Other
	DuplicateKey        = common.DuplicateKey
	ForeignKeyViolation = common.ForeignKeyViolation
	Truncation          = common.Truncation
)

// Target is the write side of an adapter, used by the batch writer.
type Target interface {
	Conn(ctx context.Context) (*sql.Conn, error)
	Builder() squirrel.StatementBuilderType
	QuoteIdent(name string) string
	// MaxParams is the store's limit on bind parameters per statement.
	MaxParams() int

	DisableForeignKeys(ctx context.Context, conn Execer) error
	EnableForeignKeys(ctx context.Context, conn Execer) error
	ClearTable(ctx context.Context, conn Execer, table string) error
}

type Adapter interface {
	Target

	Provider() string
	Connect(ctx context.Context, url string) error
	Close() error
	Ping(ctx context.Context) error

	// Introspect describes the named tables. Missing tables are absent from the map.
	Introspect(ctx context.Context, tables []string) (map[string]*metadata.TableMetadata, error)
	DistinctValues(ctx context.Context, table, column string, limit int) ([]interface{}, error)
	MaxValue(ctx context.Context, table, column string) (int64, bool, error)
}
