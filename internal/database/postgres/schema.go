package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/Lumos-Labs-HQ/datagen/internal/database/common"
	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"github.com/lib/pq"
)

const columnsQuery = `
	SELECT
		c.table_name,
		c.column_name,
		c.data_type,
		c.udt_name,
		c.is_nullable,
		c.column_default,
		c.is_identity,
		c.character_maximum_length,
		c.numeric_precision,
		c.numeric_scale,
		c.ordinal_position,
		col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position)
	FROM information_schema.columns c
	WHERE c.table_schema = current_schema()
	  AND c.table_name = ANY($1)
	ORDER BY c.table_name, c.ordinal_position`

const constraintsQuery = `
	SELECT
		rel.relname,
		c.contype,
		c.conname,
		a.attname,
		COALESCE(frel.relname, ''),
		COALESCE(fa.attname, ''),
		array_length(c.conkey, 1)
	FROM pg_constraint c
	JOIN pg_class rel ON rel.oid = c.conrelid
	JOIN pg_namespace n ON n.oid = rel.relnamespace
	CROSS JOIN LATERAL unnest(c.conkey) WITH ORDINALITY AS k(attnum, ord)
	JOIN pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = k.attnum
	LEFT JOIN pg_class frel ON frel.oid = c.confrelid
	LEFT JOIN pg_attribute fa ON fa.attrelid = c.confrelid AND fa.attnum = c.confkey[k.ord]
	WHERE n.nspname = current_schema()
	  AND rel.relname = ANY($1)
	  AND c.contype IN ('p', 'u', 'f')
	ORDER BY rel.relname, c.conname, k.ord`

const enumsQuery = `
	SELECT t.typname, e.enumlabel
	FROM pg_type t
	JOIN pg_enum e ON e.enumtypid = t.oid
	JOIN pg_namespace n ON n.oid = t.typnamespace
	WHERE n.nspname = current_schema()
	ORDER BY t.typname, e.enumsortorder`

// Introspect reads columns, constraints, enum types and column comments.
func (p *Adapter) Introspect(ctx context.Context, tables []string) (map[string]*metadata.TableMetadata, error) {
	b := common.NewSchemaBuilder()
	if len(tables) == 0 {
		return b.Build(), nil
	}

	enums, err := p.loadEnums(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.loadColumns(ctx, b, tables, enums); err != nil {
		return nil, err
	}
	if err := p.loadConstraints(ctx, b, tables); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

func (p *Adapter) loadEnums(ctx context.Context) (map[string][]string, error) {
	rows, err := p.DB.QueryContext(ctx, enumsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to read enum types: %w", err)
	}
	defer rows.Close()

	enums := make(map[string][]string)
	for rows.Next() {
		var typeName, label string
		if err := rows.Scan(&typeName, &label); err != nil {
			return nil, err
		}
		enums[typeName] = append(enums[typeName], label)
	}
	return enums, rows.Err()
}

func (p *Adapter) loadColumns(ctx context.Context, b *common.SchemaBuilder, tables []string, enums map[string][]string) error {
	rows, err := p.DB.QueryContext(ctx, columnsQuery, pq.Array(tables))
	if err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, columnName, dataType, udtName, isNullable string
		var columnDefault, isIdentity, comment sql.NullString
		var charMaxLength, numericPrecision, numericScale sql.NullInt64
		var position int

		if err := rows.Scan(&tableName, &columnName, &dataType, &udtName, &isNullable, &columnDefault,
			&isIdentity, &charMaxLength, &numericPrecision, &numericScale, &position, &comment); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}

		col := &metadata.ColumnMetadata{
			Name:       columnName,
			DataType:   formatType(dataType, udtName, charMaxLength, numericPrecision, numericScale, enums),
			Nullable:   isNullable == "YES",
			Default:    cleanDefault(columnDefault.String),
			HasDefault: columnDefault.Valid,
			Comment:    comment.String,
			Position:   position,
		}
		if isIdentity.String == "YES" {
			col.Extra = "identity"
		} else if strings.HasPrefix(columnDefault.String, "nextval(") {
			col.Extra = "auto_increment"
		}
		if charMaxLength.Valid {
			col.MaxLength = strconv.FormatInt(charMaxLength.Int64, 10)
		}
		b.AddColumn(tableName, col)
	}
	return rows.Err()
}

func (p *Adapter) loadConstraints(ctx context.Context, b *common.SchemaBuilder, tables []string) error {
	rows, err := p.DB.QueryContext(ctx, constraintsQuery, pq.Array(tables))
	if err != nil {
		return fmt.Errorf("failed to read constraints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, kind, name, column, refTable, refColumn string
		var width int
		if err := rows.Scan(&table, &kind, &name, &column, &refTable, &refColumn, &width); err != nil {
			return fmt.Errorf("failed to scan constraint: %w", err)
		}
		switch kind {
		case "p":
			b.AddPrimaryKey(table, column)
		case "u":
			b.AddUniqueIndex(table, name, column)
		case "f":
			// composite foreign keys cannot be filled from a single-column pool
			if width == 1 {
				b.AddForeignKey(table, column, refTable, refColumn)
			}
		}
	}
	return rows.Err()
}

func formatType(dataType, udtName string, charMaxLength, precision, scale sql.NullInt64, enums map[string][]string) string {
	if values, ok := enums[udtName]; ok {
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
		return "enum(" + strings.Join(quoted, ",") + ")"
	}

	switch dataType {
	case "character varying", "character":
		if charMaxLength.Valid {
			return fmt.Sprintf("%s(%d)", dataType, charMaxLength.Int64)
		}
		return dataType
	case "numeric":
		if precision.Valid && scale.Valid {
			return fmt.Sprintf("numeric(%d,%d)", precision.Int64, scale.Int64)
		}
		return "numeric"
	case "USER-DEFINED", "ARRAY":
		return udtName
	}
	return dataType
}

// cleanDefault strips casts such as 'abc'::character varying down to 'abc'.
func cleanDefault(defaultVal string) string {
	if defaultVal == "" || strings.HasPrefix(defaultVal, "nextval(") {
		return defaultVal
	}
	lower := strings.ToLower(defaultVal)
	if strings.Contains(lower, "now()") || strings.Contains(lower, "current_timestamp") {
		return "CURRENT_TIMESTAMP"
	}
	if idx := strings.Index(defaultVal, "::"); idx > 0 {
		return defaultVal[:idx]
	}
	return defaultVal
}
