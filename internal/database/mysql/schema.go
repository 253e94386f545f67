package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/Lumos-Labs-HQ/datagen/internal/database/common"
	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"github.com/Masterminds/squirrel"
)

// Introspect reads columns, keys, unique indexes and comments for tables in
// the current database. Tables that do not exist are absent from the result.
func (m *Adapter) Introspect(ctx context.Context, tables []string) (map[string]*metadata.TableMetadata, error) {
	b := common.NewSchemaBuilder()
	if len(tables) == 0 {
		return b.Build(), nil
	}

	if err := m.loadColumns(ctx, b, tables); err != nil {
		return nil, err
	}
	if err := m.loadForeignKeys(ctx, b, tables); err != nil {
		return nil, err
	}
	if err := m.loadUniqueIndexes(ctx, b, tables); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

func (m *Adapter) loadColumns(ctx context.Context, b *common.SchemaBuilder, tables []string) error {
	query, args, err := m.QB.Select(
		"table_name", "column_name", "column_type", "is_nullable", "column_default",
		"column_key", "extra", "column_comment", "ordinal_position", "character_maximum_length",
	).
		From("information_schema.columns").
		Where("table_schema = DATABASE()").
		Where(squirrel.Eq{"table_name": tables}).
		OrderBy("table_name", "ordinal_position").
		ToSql()
	if err != nil {
		return err
	}

	rows, err := m.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, columnName, columnType, isNullable, columnKey, extra string
		var columnDefault, comment sql.NullString
		var position int
		var charMaxLength sql.NullInt64

		if err := rows.Scan(&tableName, &columnName, &columnType, &isNullable, &columnDefault,
			&columnKey, &extra, &comment, &position, &charMaxLength); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}

		col := &metadata.ColumnMetadata{
			Name:       columnName,
			DataType:   columnType,
			Nullable:   isNullable == "YES",
			Default:    formatDefault(columnDefault),
			HasDefault: columnDefault.Valid,
			Comment:    comment.String,
			Key:        columnKey,
			Extra:      extra,
			Position:   position,
		}
		if charMaxLength.Valid {
			col.MaxLength = strconv.FormatInt(charMaxLength.Int64, 10)
		}
		b.AddColumn(tableName, col)
		if columnKey == "PRI" {
			b.AddPrimaryKey(tableName, columnName)
		}
	}
	return rows.Err()
}

func (m *Adapter) loadForeignKeys(ctx context.Context, b *common.SchemaBuilder, tables []string) error {
	query, args, err := m.QB.Select("table_name", "column_name", "referenced_table_name", "referenced_column_name").
		From("information_schema.key_column_usage").
		Where("table_schema = DATABASE()").
		Where("referenced_table_name IS NOT NULL").
		Where(squirrel.Eq{"table_name": tables}).
		OrderBy("table_name", "ordinal_position").
		ToSql()
	if err != nil {
		return err
	}

	rows, err := m.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to read foreign keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, column, refTable, refColumn string
		if err := rows.Scan(&table, &column, &refTable, &refColumn); err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}
		b.AddForeignKey(table, column, refTable, refColumn)
	}
	return rows.Err()
}

func (m *Adapter) loadUniqueIndexes(ctx context.Context, b *common.SchemaBuilder, tables []string) error {
	query, args, err := m.QB.Select("table_name", "index_name", "column_name").
		From("information_schema.statistics").
		Where("table_schema = DATABASE()").
		Where("non_unique = 0").
		Where("index_name <> 'PRIMARY'").
		Where(squirrel.Eq{"table_name": tables}).
		OrderBy("table_name", "index_name", "seq_in_index").
		ToSql()
	if err != nil {
		return err
	}

	rows, err := m.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to read indexes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, index, column string
		if err := rows.Scan(&table, &index, &column); err != nil {
			return fmt.Errorf("failed to scan index: %w", err)
		}
		b.AddUniqueIndex(table, index, column)
	}
	return rows.Err()
}

func formatDefault(defaultValue sql.NullString) string {
	if !defaultValue.Valid {
		return ""
	}
	if strings.Contains(strings.ToLower(defaultValue.String), "current_timestamp") {
		return "CURRENT_TIMESTAMP"
	}
	return defaultValue.String
}
