package generator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/logger"
	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"github.com/Lumos-Labs-HQ/datagen/internal/rules"
	"github.com/google/uuid"
)

type Options struct {
	PKAttempts     int
	UniqueAttempts int
	Log            *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.PKAttempts <= 0 {
		o.PKAttempts = 1000
	}
	if o.UniqueAttempts <= 0 {
		o.UniqueAttempts = 100
	}
	if o.Log == nil {
		o.Log = logger.New("generator")
	}
	return o
}

type Diagnostic struct {
	Row     int
	Column  string
	Message string
	Fatal   bool
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("row %d, %s: %s", d.Row, d.Column, d.Message)
}

type Batch struct {
	Rows        []map[string]interface{}
	Dropped     int
	Diagnostics []Diagnostic
}

// rowError makes a single row unusable without affecting the rest of the batch.
type rowError struct {
	column string
	reason string
}

func (e *rowError) Error() string {
	return fmt.Sprintf("%s: %s", e.column, e.reason)
}

// Generator turns rule output into rows that satisfy the table's constraints.
type Generator struct {
	table  *metadata.TableMetadata
	rules  *rules.Set
	state  *RunState
	opts   Options
	cols   []string
	limits map[string]metadata.FieldLimit
	enums  map[string][]string
}

func New(table *metadata.TableMetadata, set *rules.Set, state *RunState, opts Options) *Generator {
	if state == nil {
		state = NewRunState(set.Rand())
	}
	g := &Generator{
		table:  table,
		rules:  set,
		state:  state,
		opts:   opts.withDefaults(),
		limits: make(map[string]metadata.FieldLimit, len(table.Columns)),
		enums:  make(map[string][]string),
	}
	for _, name := range table.ColumnNames() {
		col := table.Columns[name]
		g.limits[name] = metadata.LimitFor(col)
		if values := metadata.EnumValues(col); len(values) > 0 {
			g.enums[name] = values
		}
		if table.IsStoreAssigned(name) {
			continue
		}
		if set.Has(name) || name == table.PrimaryKey || table.ForeignKeyFor(name) != nil {
			g.cols = append(g.cols, name)
		}
	}
	return g
}

func (g *Generator) State() *RunState {
	return g.state
}

// Columns lists the columns every generated row carries, in table order.
func (g *Generator) Columns() []string {
	out := make([]string, len(g.cols))
	copy(out, g.cols)
	return out
}

func (g *Generator) Generate(ctx context.Context, count int) (Batch, error) {
	batch := Batch{Rows: make([]map[string]interface{}, 0, count)}
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		row, diags, err := g.buildRow(i)
		batch.Diagnostics = append(batch.Diagnostics, diags...)
		if err != nil {
			batch.Dropped++
			re, _ := err.(*rowError)
			d := Diagnostic{Row: i, Message: err.Error(), Fatal: true}
			if re != nil {
				d.Column, d.Message = re.column, re.reason
			}
			batch.Diagnostics = append(batch.Diagnostics, d)
			g.opts.Log.Debug("row %d of %s dropped: %v", i, g.table.Name, err)
			continue
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

func (g *Generator) buildRow(index int) (map[string]interface{}, []Diagnostic, error) {
	raw := g.rules.Row()
	row := make(map[string]interface{}, len(g.cols))
	var diags []Diagnostic
	pending := make(map[string]interface{})

	note := func(column, msg string) {
		diags = append(diags, Diagnostic{Row: index, Column: column, Message: msg})
	}

	pkName := g.table.PrimaryKey
	var pkValue interface{}
	if pkName != "" && !g.table.IsStoreAssigned(pkName) {
		pkValue = g.primaryKey(raw[pkName])
		row[pkName] = pkValue
	}

	for _, name := range g.cols {
		if name == pkName {
			continue
		}
		col := g.table.Columns[name]

		if fk := g.table.ForeignKeyFor(name); fk != nil {
			v, err := g.pickForeignKey(fk, col, pkValue)
			if err != nil {
				return nil, diags, err
			}
			row[name] = v
			continue
		}

		v, err := g.fieldValue(col, raw[name], note)
		if err != nil {
			return nil, diags, err
		}

		if v != nil && g.table.IsUnique(name) {
			attempts := 0
			for g.state.uniqueTaken(name, v) || duplicatePending(pending, name, v) {
				attempts++
				if attempts > g.opts.UniqueAttempts {
					return nil, diags, &rowError{column: name, reason: fmt.Sprintf("no unique value after %d attempts", g.opts.UniqueAttempts)}
				}
				v, err = g.fieldValue(col, g.rules.NextFor(name, raw), note)
				if err != nil {
					return nil, diags, err
				}
				if v == nil {
					break
				}
			}
			if v != nil {
				pending[name] = v
			}
		}
		row[name] = v
	}

	if pkValue != nil {
		g.state.claimKey(pkValue)
	}
	for name, v := range pending {
		g.state.claimUnique(name, v)
	}
	return row, diags, nil
}

func duplicatePending(pending map[string]interface{}, column string, v interface{}) bool {
	prev, ok := pending[column]
	return ok && metadata.ValueKey(prev) == metadata.ValueKey(v)
}

// fieldValue applies the nullability, coercion, clamping and enum steps to one value.
func (g *Generator) fieldValue(col *metadata.ColumnMetadata, v interface{}, note func(string, string)) (interface{}, error) {
	if v == nil {
		if col.Nullable {
			return nil, nil
		}
		def, ok := DefaultValue(col)
		if !ok {
			return nil, &rowError{column: col.Name, reason: "NOT NULL column has no usable default"}
		}
		v = def
	}

	coerced, err := Coerce(v, col)
	if err != nil {
		note(col.Name, fmt.Sprintf("coercion failed, using default: %v", err))
		def, ok := DefaultValue(col)
		if !ok {
			if col.Nullable {
				return nil, nil
			}
			return nil, &rowError{column: col.Name, reason: "value could not be converted and no default exists"}
		}
		coerced = def
	}

	clamped, msg := Clamp(coerced, col, g.limits[col.Name])
	if msg != "" {
		note(col.Name, msg)
	}

	if allowed, ok := g.enums[col.Name]; ok {
		if s, isString := clamped.(string); isString {
			clamped = metadata.NormalizeEnum(s, allowed)
		} else if clamped != nil {
			clamped = metadata.NormalizeEnum(toText(clamped), allowed)
		}
	}
	return clamped, nil
}

func (g *Generator) pickForeignKey(fk *metadata.ForeignKey, col *metadata.ColumnMetadata, pkValue interface{}) (interface{}, error) {
	if !fk.Pool.Empty() {
		v := fk.Pool.Pick(g.state.Rand)
		if coerced, err := Coerce(v, col); err == nil {
			return coerced, nil
		}
		return v, nil
	}
	if col.Nullable {
		return nil, nil
	}
	if fk.SelfReference(g.table.Name) && fk.RefColumn == g.table.PrimaryKey && pkValue != nil {
		return pkValue, nil
	}
	return nil, &rowError{column: col.Name, reason: fmt.Sprintf("no valid values in %s.%s", fk.RefTable, fk.RefColumn)}
}

// primaryKey keeps a template-supplied key that is free, otherwise issues a new one.
func (g *Generator) primaryKey(candidate interface{}) interface{} {
	col := g.table.Columns[g.table.PrimaryKey]
	if col == nil {
		return candidate
	}
	if candidate != nil {
		if v, err := Coerce(candidate, col); err == nil && v != nil {
			v, _ = Clamp(v, col, g.limits[col.Name])
			if !g.state.KeyTaken(v) {
				return v
			}
		}
	}
	return g.nextKey(col)
}

func (g *Generator) nextKey(col *metadata.ColumnMetadata) interface{} {
	limit := g.limits[col.Name]
	kind := col.Kind()
	r := g.state.Rand

	if kind == metadata.KindInt || kind == metadata.KindDecimal || kind == metadata.KindFloat {
		hi := limit.MaxInt
		if kind != metadata.KindInt || hi > math.MaxInt32 {
			hi = math.MaxInt32
		}

		if g.state.hasMax {
			for i := 0; i < g.opts.PKAttempts && g.state.nextPK < hi; i++ {
				g.state.nextPK++
				if !g.state.KeyTaken(g.state.nextPK) {
					return g.numericKey(kind, g.state.nextPK)
				}
			}
		}

		lo := int64(10000)
		if hi <= 2*lo {
			lo = 1
		}
		for i := 0; i < g.opts.PKAttempts; i++ {
			v := lo + r.Int63n(hi-lo+1)
			if !g.state.KeyTaken(v) {
				return g.numericKey(kind, v)
			}
		}

		// timestamp-derived fallback, walked forward until free
		span := hi - lo + 1
		v := lo + (time.Now().UnixMilli()*1000+int64(r.Intn(1000)))%span
		for i := int64(0); i < span; i++ {
			cand := lo + (v-lo+i)%span
			if !g.state.KeyTaken(cand) {
				return g.numericKey(kind, cand)
			}
		}
		return g.numericKey(kind, v)
	}

	maxLen := int(limit.MaxLength)
	for i := 0; i < g.opts.PKAttempts; i++ {
		v := fitLength(uuid.NewString(), maxLen)
		if !g.state.KeyTaken(v) {
			return v
		}
	}
	for {
		v := fitLength(fmt.Sprintf("%d_%d", time.Now().UnixMilli(), r.Intn(1000000)), maxLen)
		if !g.state.KeyTaken(v) {
			return v
		}
	}
}

func (g *Generator) numericKey(kind metadata.Kind, v int64) interface{} {
	if kind == metadata.KindInt {
		return v
	}
	return float64(v)
}

func fitLength(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen >= 32 {
		return strings.ReplaceAll(s, "-", "")[:maxLen]
	}
	return s[len(s)-maxLen:]
}

// RegenerateKeys issues a fresh primary key and fresh unique values for row.
func (g *Generator) RegenerateKeys(row map[string]interface{}) {
	pkName := g.table.PrimaryKey
	if pkName != "" && !g.table.IsStoreAssigned(pkName) {
		if old, ok := row[pkName]; ok && old != nil {
			g.state.releaseKey(old)
			// keep the old key reserved for this run; the store already holds it
			g.state.SeedExisting([]interface{}{old})
		}
		if col := g.table.Columns[pkName]; col != nil {
			v := g.nextKey(col)
			g.state.claimKey(v)
			row[pkName] = v
		}
	}

	for _, name := range g.cols {
		if name == pkName || !g.table.IsUnique(name) || g.table.ForeignKeyFor(name) != nil {
			continue
		}
		col := g.table.Columns[name]
		noop := func(string, string) {}
		for i := 0; i < g.opts.UniqueAttempts; i++ {
			v, err := g.fieldValue(col, g.rules.NextFor(name, row), noop)
			if err != nil || v == nil {
				break
			}
			if !g.state.uniqueTaken(name, v) {
				g.state.claimUnique(name, v)
				row[name] = v
				break
			}
		}
	}
}

// AssignForeignKey re-picks column from its pool. It reports false when the
// pool is empty and the column cannot be null.
func (g *Generator) AssignForeignKey(row map[string]interface{}, column string) bool {
	fk := g.table.ForeignKeyFor(column)
	if fk == nil {
		return true
	}
	col := g.table.Columns[column]
	v, err := g.pickForeignKey(fk, col, row[g.table.PrimaryKey])
	if err != nil {
		return false
	}
	row[column] = v
	return true
}

// Reclamp re-applies bounds to column, or to every column when column is
// empty. Values that were already within bounds are replaced by the column
// default, since the store rejected them anyway.
func (g *Generator) Reclamp(row map[string]interface{}, column string) {
	targets := g.cols
	if column != "" {
		targets = []string{column}
	}
	for _, name := range targets {
		col := g.table.Columns[name]
		v, ok := row[name]
		if col == nil || !ok || v == nil || name == g.table.PrimaryKey || g.table.ForeignKeyFor(name) != nil {
			continue
		}
		clamped, msg := Clamp(v, col, g.limits[name])
		if msg == "" && column != "" {
			if def, ok := DefaultValue(col); ok {
				clamped, _ = Clamp(def, col, g.limits[name])
			}
		}
		row[name] = clamped
	}
}

// MinimalRows builds n rows for a referenced table that only need a key and
// NOT NULL columns filled. Used when a referenced table is empty.
func MinimalRows(table *metadata.TableMetadata, state *RunState, n int) []map[string]interface{} {
	pkCol := table.Columns[table.PrimaryKey]
	rows := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		row := make(map[string]interface{})
		for _, name := range table.ColumnNames() {
			col := table.Columns[name]
			if table.IsStoreAssigned(name) || name == table.PrimaryKey || col.Nullable {
				continue
			}
			if fk := table.ForeignKeyFor(name); fk != nil && !fk.SelfReference(table.Name) {
				if fk.Pool.Empty() {
					continue
				}
				row[name] = fk.Pool.Pick(state.Rand)
				continue
			}
			if v, ok := DefaultValue(col); ok {
				if table.IsUnique(name) {
					v = uniqueMinimal(col, v, i)
				}
				row[name] = v
			}
		}
		if pkCol != nil && !table.IsStoreAssigned(pkCol.Name) {
			var key interface{}
			if pkCol.Kind() == metadata.KindInt {
				for {
					cand := int64(10000 + state.Rand.Intn(90000))
					if !state.KeyTaken(cand) {
						key = cand
						break
					}
				}
			} else {
				key = fitLength(uuid.NewString(), int(metadata.LimitFor(pkCol).MaxLength))
			}
			state.claimKey(key)
			row[pkCol.Name] = key
			for _, fk := range table.ForeignKeys {
				if col := table.Columns[fk.Column]; col != nil && fk.SelfReference(table.Name) && !col.Nullable {
					row[fk.Column] = key
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func uniqueMinimal(col *metadata.ColumnMetadata, v interface{}, i int) interface{} {
	switch val := v.(type) {
	case string:
		s := fmt.Sprintf("%s%d", val, i)
		limit := metadata.LimitFor(col)
		if limit.MaxLength > 0 && int64(len(s)) > limit.MaxLength {
			s = s[int64(len(s))-limit.MaxLength:]
		}
		return s
	case int64:
		return val + int64(i)
	case float64:
		return val + float64(i)
	}
	return v
}
