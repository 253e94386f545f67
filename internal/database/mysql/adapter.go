package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Lumos-Labs-HQ/datagen/internal/database/common"
	"github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
)

type Adapter struct {
	common.Base
}

func New() *Adapter {
	return &Adapter{
		Base: common.Base{
			QB:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
			Quote:  quote,
			Params: 65535,
		},
	}
}

// NewWithDB wraps an already opened database, e.g. a sqlmock handle.
func NewWithDB(db *sql.DB) *Adapter {
	a := New()
	a.DB = db
	return a
}

func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (m *Adapter) Provider() string {
	return "mysql"
}

// DSN converts a mysql:// URL into the driver's DSN form.
func DSN(url string) string {
	dsn := url
	if !strings.HasPrefix(url, "mysql://") {
		return dsn
	}
	dsn = strings.TrimPrefix(url, "mysql://")

	atIndex := strings.LastIndex(dsn, "@")
	credentials := ""
	remainder := dsn
	if atIndex > 0 {
		credentials = dsn[:atIndex]
		remainder = dsn[atIndex+1:]
	}

	hostPort, dbAndParams := remainder, ""
	if slashIndex := strings.Index(remainder, "/"); slashIndex >= 0 {
		hostPort = remainder[:slashIndex]
		dbAndParams = remainder[slashIndex+1:]
	}

	dbAndParams = strings.ReplaceAll(dbAndParams, "ssl-mode=REQUIRED", "tls=skip-verify")
	dbAndParams = strings.ReplaceAll(dbAndParams, "ssl-mode=DISABLED", "tls=false")
	dbAndParams = strings.ReplaceAll(dbAndParams, "ssl-mode=VERIFY_CA", "tls=true")
	dbAndParams = strings.ReplaceAll(dbAndParams, "ssl-mode=VERIFY_IDENTITY", "tls=true")
	dbAndParams = strings.ReplaceAll(dbAndParams, "sslmode=require", "tls=skip-verify")
	dbAndParams = strings.ReplaceAll(dbAndParams, "sslmode=disable", "tls=false")
	dbAndParams = strings.ReplaceAll(dbAndParams, "sslmode=verify-ca", "tls=true")
	dbAndParams = strings.ReplaceAll(dbAndParams, "sslmode=verify-full", "tls=true")

	if !strings.Contains(dbAndParams, "parseTime=") {
		if strings.Contains(dbAndParams, "?") {
			dbAndParams += "&parseTime=true"
		} else {
			dbAndParams += "?parseTime=true"
		}
	}

	if credentials != "" {
		return fmt.Sprintf("%s@tcp(%s)/%s", credentials, hostPort, dbAndParams)
	}
	return fmt.Sprintf("tcp(%s)/%s", hostPort, dbAndParams)
}

func (m *Adapter) Connect(ctx context.Context, url string) error {
	db, err := sql.Open("mysql", DSN(url))
	if err != nil {
		return fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	common.SetPool(db, 4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	m.DB = db
	return nil
}

func (m *Adapter) DisableForeignKeys(ctx context.Context, conn common.Execer) error {
	_, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0")
	return err
}

func (m *Adapter) EnableForeignKeys(ctx context.Context, conn common.Execer) error {
	_, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1")
	return err
}

func (m *Adapter) ClearTable(ctx context.Context, conn common.Execer, table string) error {
	if _, err := conn.ExecContext(ctx, "TRUNCATE TABLE "+quote(table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

// Classify maps MySQL error numbers onto write failure kinds.
func Classify(err error) (*common.StoreError, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return nil, false
	}
	se := &common.StoreError{Err: err, Column: common.ColumnFromMessage(me.Message)}
	switch me.Number {
	case 1062:
		se.Kind = common.DuplicateKey
		se.Constraint = common.ConstraintFromMessage(me.Message)
	case 1452, 1216:
		se.Kind = common.ForeignKeyViolation
	case 1406, 1264, 1265:
		se.Kind = common.Truncation
	default:
		se.Kind = common.Other
	}
	return se, true
}

func (m *Adapter) Classify(err error) (*common.StoreError, bool) {
	return Classify(err)
}
