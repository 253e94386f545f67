package metadata

import (
	"sort"
	"strings"
)

// ColumnMetadata describes one column as reported by the store.
type ColumnMetadata struct {
	Name       string
	DataType   string // declared type, e.g. "varchar(50)", "int unsigned", "enum('a','b')"
	Nullable   bool
	MaxLength  string // length or "precision[,scale]" when the store reports it separately
	Default    string
	HasDefault bool
	Comment    string
	Key        string // PRI, UNI, MUL
	Extra      string
	Position   int
}

func (c *ColumnMetadata) IsAutoIncrement() bool {
	extra := strings.ToLower(c.Extra)
	return strings.Contains(extra, "auto_increment") || strings.Contains(extra, "autoincrement") ||
		strings.Contains(extra, "identity") || strings.Contains(strings.ToLower(c.Default), "nextval(")
}

// DynamicDefault reports defaults the store evaluates at insert time.
func (c *ColumnMetadata) DynamicDefault() bool {
	if !c.HasDefault {
		return false
	}
	d := strings.ToUpper(c.Default)
	return strings.Contains(d, "CURRENT_TIMESTAMP") || strings.Contains(d, "NOW()") ||
		strings.Contains(d, "CURRENT_DATE") || strings.Contains(d, "CURRENT_TIME") ||
		strings.Contains(d, "LOCALTIMESTAMP")
}

func (c *ColumnMetadata) Kind() Kind {
	return KindOf(c.DataType)
}

// ForeignKey is an imported key with its valid-value pool for the current run.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
	Pool      *ValuePool
}

func NewForeignKey(column, refTable, refColumn string) *ForeignKey {
	return &ForeignKey{
		Column:    column,
		RefTable:  refTable,
		RefColumn: refColumn,
		Pool:      NewValuePool(),
	}
}

func (fk *ForeignKey) SelfReference(table string) bool {
	return strings.EqualFold(fk.RefTable, table)
}

type TableMetadata struct {
	Name            string
	Columns         map[string]*ColumnMetadata
	PrimaryKey      string
	PKAutoIncrement bool
	ForeignKeys     []*ForeignKey
	Unique          map[string]bool
}

func NewTable(name string) *TableMetadata {
	return &TableMetadata{
		Name:    name,
		Columns: make(map[string]*ColumnMetadata),
		Unique:  make(map[string]bool),
	}
}

func (t *TableMetadata) AddColumn(col *ColumnMetadata) {
	if col.Position == 0 {
		col.Position = len(t.Columns) + 1
	}
	t.Columns[col.Name] = col
	if strings.EqualFold(col.Key, "UNI") {
		t.Unique[col.Name] = true
	}
}

func (t *TableMetadata) Column(name string) *ColumnMetadata {
	return t.Columns[name]
}

// ColumnNames returns the columns in declaration order.
func (t *TableMetadata) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := t.Columns[names[i]].Position, t.Columns[names[j]].Position
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

func (t *TableMetadata) SetPrimaryKey(column string) {
	t.PrimaryKey = column
	if col := t.Columns[column]; col != nil {
		col.Key = "PRI"
		t.PKAutoIncrement = col.IsAutoIncrement()
	}
}

func (t *TableMetadata) AddForeignKey(fk *ForeignKey) {
	for _, existing := range t.ForeignKeys {
		if existing.Column == fk.Column {
			return
		}
	}
	t.ForeignKeys = append(t.ForeignKeys, fk)
}

func (t *TableMetadata) ForeignKeyFor(column string) *ForeignKey {
	for _, fk := range t.ForeignKeys {
		if fk.Column == column {
			return fk
		}
	}
	return nil
}

func (t *TableMetadata) MarkUnique(column string) {
	if column == t.PrimaryKey {
		return
	}
	t.Unique[column] = true
}

func (t *TableMetadata) IsUnique(column string) bool {
	return t.Unique[column]
}

// IsStoreAssigned reports whether the store fills the column (auto-increment PK).
func (t *TableMetadata) IsStoreAssigned(column string) bool {
	return column != "" && column == t.PrimaryKey && t.PKAutoIncrement
}

// Dependencies lists the distinct tables referenced by this table, excluding itself.
func (t *TableMetadata) Dependencies() []string {
	seen := make(map[string]bool)
	var deps []string
	for _, fk := range t.ForeignKeys {
		if fk.SelfReference(t.Name) || seen[fk.RefTable] {
			continue
		}
		seen[fk.RefTable] = true
		deps = append(deps, fk.RefTable)
	}
	return deps
}

// DependencyMap builds the table -> referenced tables map the resolver consumes.
func DependencyMap(tables map[string]*TableMetadata) map[string][]string {
	deps := make(map[string][]string, len(tables))
	for name, table := range tables {
		deps[name] = table.Dependencies()
	}
	return deps
}
