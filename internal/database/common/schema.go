package common

import (
	"sort"

	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
)

// SchemaBuilder assembles introspection query results into table metadata.
type SchemaBuilder struct {
	tables  map[string]*metadata.TableMetadata
	pks     map[string][]string
	uniques map[string]map[string][]string
}

func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{
		tables:  make(map[string]*metadata.TableMetadata),
		pks:     make(map[string][]string),
		uniques: make(map[string]map[string][]string),
	}
}

func (b *SchemaBuilder) table(name string) *metadata.TableMetadata {
	t, ok := b.tables[name]
	if !ok {
		t = metadata.NewTable(name)
		b.tables[name] = t
	}
	return t
}

func (b *SchemaBuilder) AddColumn(table string, col *metadata.ColumnMetadata) {
	b.table(table).AddColumn(col)
}

func (b *SchemaBuilder) AddPrimaryKey(table, column string) {
	for _, existing := range b.pks[table] {
		if existing == column {
			return
		}
	}
	b.pks[table] = append(b.pks[table], column)
}

func (b *SchemaBuilder) AddForeignKey(table, column, refTable, refColumn string) {
	b.table(table).AddForeignKey(metadata.NewForeignKey(column, refTable, refColumn))
}

// AddUniqueIndex records one column of a unique index. Only single-column
// indexes mark the column unique.
func (b *SchemaBuilder) AddUniqueIndex(table, index, column string) {
	idx, ok := b.uniques[table]
	if !ok {
		idx = make(map[string][]string)
		b.uniques[table] = idx
	}
	idx[index] = append(idx[index], column)
}

// Build returns the assembled tables. A composite primary key leaves the
// table without a single generated key.
func (b *SchemaBuilder) Build() map[string]*metadata.TableMetadata {
	for name, t := range b.tables {
		if pk := b.pks[name]; len(pk) == 1 {
			t.SetPrimaryKey(pk[0])
		}
		indexes := b.uniques[name]
		names := make([]string, 0, len(indexes))
		for idx := range indexes {
			names = append(names, idx)
		}
		sort.Strings(names)
		for _, idx := range names {
			if cols := indexes[idx]; len(cols) == 1 {
				t.MarkUnique(cols[0])
			}
		}
	}
	return b.tables
}
