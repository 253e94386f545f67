package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Lumos-Labs-HQ/datagen/internal/database/common"
	"github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"
)

type Adapter struct {
	common.Base
}

func New() *Adapter {
	return &Adapter{
		Base: common.Base{
			QB:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
			Quote:  quote,
			Params: 32766,
		},
	}
}

func NewWithDB(db *sql.DB) *Adapter {
	a := New()
	a.DB = db
	return a
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *Adapter) Provider() string {
	return "sqlite"
}

// Path turns a sqlite:// URL into a go-sqlite3 DSN with foreign keys enforced.
func Path(url string) string {
	dbPath := strings.TrimPrefix(strings.TrimPrefix(url, "sqlite://"), "file:")
	if !strings.Contains(dbPath, "?") {
		dbPath += "?_foreign_keys=on&_busy_timeout=5000"
	} else if !strings.Contains(dbPath, "_foreign_keys") && !strings.Contains(dbPath, "_fk=") {
		dbPath += "&_foreign_keys=on"
	}
	return dbPath
}

func (s *Adapter) Connect(ctx context.Context, url string) error {
	db, err := sql.Open("sqlite3", Path(url))
	if err != nil {
		return fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	common.SetPool(db, 4)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to SQLite: %w", err)
	}
	s.DB = db
	return nil
}

func (s *Adapter) DisableForeignKeys(ctx context.Context, conn common.Execer) error {
	_, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF")
	return err
}

func (s *Adapter) EnableForeignKeys(ctx context.Context, conn common.Execer) error {
	_, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON")
	return err
}

// ClearTable deletes every row and resets the table's AUTOINCREMENT counter.
func (s *Adapter) ClearTable(ctx context.Context, conn common.Execer, table string) error {
	if _, err := conn.ExecContext(ctx, "DELETE FROM "+quote(table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if _, err := conn.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?", table); err != nil {
		// sqlite_sequence only exists once an AUTOINCREMENT table has been created
		if !strings.Contains(err.Error(), "no such table") {
			return fmt.Errorf("failed to reset sequence of %s: %w", table, err)
		}
	}
	return nil
}

// Classify maps extended SQLite result codes onto write failure kinds.
func Classify(err error) (*common.StoreError, bool) {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return nil, false
	}
	se := &common.StoreError{Err: err, Column: common.ColumnFromMessage(sqliteErr.Error())}
	switch {
	case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique, sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		se.Kind = common.DuplicateKey
	case sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		se.Kind = common.ForeignKeyViolation
	case sqliteErr.Code == sqlite3.ErrTooBig:
		se.Kind = common.Truncation
	default:
		se.Kind = common.Other
	}
	return se, true
}

func (s *Adapter) Classify(err error) (*common.StoreError, bool) {
	return Classify(err)
}
