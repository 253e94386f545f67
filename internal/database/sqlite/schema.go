package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/Lumos-Labs-HQ/datagen/internal/database/common"
	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"golang.org/x/sync/errgroup"
)

type foreignKey struct {
	column, refTable, refColumn string
}

type tableInfo struct {
	name    string
	columns []*metadata.ColumnMetadata
	pks     []string
	fks     []foreignKey
	uniques map[string][]string
}

// Introspect runs the PRAGMA queries for each table concurrently.
func (s *Adapter) Introspect(ctx context.Context, tables []string) (map[string]*metadata.TableMetadata, error) {
	for _, name := range tables {
		if err := common.ValidateIdent(name); err != nil {
			return nil, err
		}
	}

	var mu sync.Mutex
	infos := make([]*tableInfo, 0, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range tables {
		name := name
		g.Go(func() error {
			info, err := s.tableInfo(gctx, name)
			if err != nil {
				return err
			}
			mu.Lock()
			infos = append(infos, info)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := common.NewSchemaBuilder()
	for _, info := range infos {
		if len(info.columns) == 0 {
			continue
		}
		for _, col := range info.columns {
			if len(info.pks) == 1 && col.Name == info.pks[0] && strings.EqualFold(col.DataType, "INTEGER") {
				col.Extra = "autoincrement"
			}
			b.AddColumn(info.name, col)
		}
		for _, pk := range info.pks {
			b.AddPrimaryKey(info.name, pk)
		}
		for _, fk := range info.fks {
			b.AddForeignKey(info.name, fk.column, fk.refTable, fk.refColumn)
		}
		for index, cols := range info.uniques {
			for _, col := range cols {
				b.AddUniqueIndex(info.name, index, col)
			}
		}
	}
	return b.Build(), nil
}

func (s *Adapter) tableInfo(ctx context.Context, table string) (*tableInfo, error) {
	info := &tableInfo{name: table, uniques: make(map[string][]string)}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quote(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue sql.NullString
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		col := &metadata.ColumnMetadata{
			Name:       name,
			DataType:   dataType,
			Nullable:   notNull == 0 && pk == 0,
			Default:    formatDefault(defaultValue.String),
			HasDefault: defaultValue.Valid,
			Position:   cid + 1,
		}
		info.columns = append(info.columns, col)
		if pk > 0 {
			info.pks = append(info.pks, name)
		}
	}
	rows.Close()
	if len(info.columns) == 0 {
		return info, nil
	}

	fkRows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quote(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys of %s: %w", table, err)
	}
	for fkRows.Next() {
		var id, seq int
		var refTable, from, to, onUpdate, onDelete, match string
		if err := fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			fkRows.Close()
			return nil, fmt.Errorf("failed to scan foreign key of %s: %w", table, err)
		}
		info.fks = append(info.fks, foreignKey{column: from, refTable: refTable, refColumn: to})
	}
	fkRows.Close()

	indexes, err := s.uniqueIndexes(ctx, table)
	if err != nil {
		return nil, err
	}
	for _, index := range indexes {
		cols, err := s.indexColumns(ctx, index)
		if err != nil {
			return nil, err
		}
		info.uniques[index] = cols
	}
	return info, nil
}

func (s *Adapter) uniqueIndexes(ctx context.Context, table string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", quote(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read indexes of %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, fmt.Errorf("failed to scan index of %s: %w", table, err)
		}
		if unique == 1 && origin != "pk" && partial == 0 {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

func (s *Adapter) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quote(index)))
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", index, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, rows.Err()
}

func formatDefault(defaultValue string) string {
	if strings.EqualFold(defaultValue, "CURRENT_TIMESTAMP") || strings.Contains(strings.ToLower(defaultValue), "datetime('now'") {
		return "CURRENT_TIMESTAMP"
	}
	return defaultValue
}
