package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/Lumos-Labs-HQ/datagen/internal/database"
	"github.com/Lumos-Labs-HQ/datagen/internal/generator"
	"github.com/Lumos-Labs-HQ/datagen/internal/logger"
	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"github.com/Lumos-Labs-HQ/datagen/internal/resolver"
	"github.com/Lumos-Labs-HQ/datagen/internal/rules"
	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"golang.org/x/sync/errgroup"
)

const preloadConcurrency = 4

// tableRun is the state of one relational run. It lives for a single
// ExecuteTask call and is never shared across runs.
type tableRun struct {
	e       *Engine
	task    *types.Task
	adapter database.Adapter
	log     *logger.Logger
	rand    *rand.Rand

	inSet    map[string]bool
	tables   map[string]*metadata.TableMetadata
	external map[string]*metadata.TableMetadata
	states   map[string]*generator.RunState

	refPools map[string]*metadata.ValuePool
}

func (e *Engine) runTables(ctx context.Context, task *types.Task, src *types.DataSource, log *logger.Logger) (Stats, error) {
	var stats Stats
	names := task.Targets()
	if len(names) == 0 {
		return stats, &ConfigError{Message: fmt.Sprintf("task %d has no target tables", task.ID)}
	}
	stats.Total = int64(task.BatchSize * len(names))

	adapter, err := e.open(ctx, src)
	if err != nil {
		if _, ok := err.(*database.UnsupportedError); ok {
			return stats, err
		}
		return stats, &ConnectError{Source: src.Name, Err: err}
	}
	defer adapter.Close()

	r := &tableRun{
		e:        e,
		task:     task,
		adapter:  adapter,
		log:      log,
		rand:     e.newRand(),
		inSet:    make(map[string]bool, len(names)),
		external: make(map[string]*metadata.TableMetadata),
		states:   make(map[string]*generator.RunState),
		refPools: make(map[string]*metadata.ValuePool),
	}
	for _, name := range names {
		r.inSet[name] = true
	}

	if err := r.introspect(ctx, names); err != nil {
		return stats, err
	}

	mode := task.Mode()
	if mode == types.ModeOverwrite {
		if err := r.clear(ctx, names); err != nil {
			return stats, err
		}
	}

	plan := resolver.Resolve(names, metadata.DependencyMap(r.tables), types.ModeAppend)
	if plan.Fallback() {
		log.Warn("⚠️  Dependency order fell back to in-degree ranking (%s)", plan.Outcome)
	}
	log.Info("📋 Insert order: %s", strings.Join(plan.Order, " -> "))

	if err := r.preload(ctx, mode); err != nil {
		return stats, err
	}
	r.materializeExternal(ctx)

	for _, name := range plan.Order {
		if err := r.e.guard(ctx, task); err != nil {
			return stats, err
		}
		if err := r.generateTable(ctx, name, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (r *tableRun) introspect(ctx context.Context, names []string) error {
	tables, err := r.adapter.Introspect(ctx, names)
	if err != nil {
		return &ConnectError{Source: r.adapter.Provider(), Err: fmt.Errorf("failed to read table metadata: %w", err)}
	}
	for _, name := range names {
		if tables[name] == nil {
			return &ConfigError{Message: fmt.Sprintf("table %q does not exist", name)}
		}
	}
	r.tables = tables

	var outside []string
	seen := make(map[string]bool)
	for _, name := range names {
		for _, dep := range tables[name].Dependencies() {
			if !r.inSet[dep] && !seen[dep] {
				seen[dep] = true
				outside = append(outside, dep)
			}
		}
	}
	if len(outside) == 0 {
		return nil
	}
	external, err := r.adapter.Introspect(ctx, outside)
	if err != nil {
		r.log.Warn("⚠️  Could not read referenced tables %v: %v", outside, err)
		return nil
	}
	r.external = external
	return nil
}

// clear empties the target tables referencing tables first, each with
// foreign key checks disabled on the writer's connection.
func (r *tableRun) clear(ctx context.Context, names []string) error {
	order := resolver.Resolve(names, metadata.DependencyMap(r.tables), types.ModeOverwrite)
	for _, name := range order.Order {
		if err := r.e.guard(ctx, r.task); err != nil {
			return err
		}
		if _, err := r.e.writer.Write(ctx, r.adapter, r.tables[name], nil, types.ModeOverwrite, nil); err != nil {
			return fmt.Errorf("failed to clear %s: %w", name, err)
		}
	}
	return nil
}

func (r *tableRun) state(table string) *generator.RunState {
	st, ok := r.states[table]
	if !ok {
		st = generator.NewRunState(r.rand)
		r.states[table] = st
	}
	return st
}

// preload reads existing keys, unique values and foreign key pools of every
// target table concurrently. Each goroutine touches only its own table.
func (r *tableRun) preload(ctx context.Context, mode types.WriteMode) error {
	limit := r.e.cfg.Generator.PoolLimit
	for name := range r.tables {
		r.state(name)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadConcurrency)
	for name := range r.inSet {
		table := r.tables[name]
		st := r.states[name]
		g.Go(func() error {
			for _, fk := range table.ForeignKeys {
				values, err := r.adapter.DistinctValues(gctx, fk.RefTable, fk.RefColumn, limit)
				if err != nil {
					return fmt.Errorf("failed to load %s.%s: %w", fk.RefTable, fk.RefColumn, err)
				}
				fk.Pool.Replace(values)
			}

			if mode == types.ModeOverwrite {
				return nil
			}
			if pk := table.PrimaryKey; pk != "" && !table.IsStoreAssigned(pk) {
				existing, err := r.adapter.DistinctValues(gctx, table.Name, pk, limit)
				if err != nil {
					return fmt.Errorf("failed to load keys of %s: %w", table.Name, err)
				}
				st.SeedExisting(existing)
				if table.Columns[pk].Kind() == metadata.KindInt {
					max, ok, err := r.adapter.MaxValue(gctx, table.Name, pk)
					if err != nil {
						return fmt.Errorf("failed to read max key of %s: %w", table.Name, err)
					}
					if ok {
						st.SetMaxPK(max)
					}
				}
			}
			for column := range table.Unique {
				values, err := r.adapter.DistinctValues(gctx, table.Name, column, limit)
				if err != nil {
					return fmt.Errorf("failed to load %s.%s: %w", table.Name, column, err)
				}
				st.SeedUnique(column, values)
			}
			return nil
		})
	}
	return g.Wait()
}

// materializeExternal inserts minimal rows into empty referenced tables that
// are not part of the task, so their referencers have something to point at.
func (r *tableRun) materializeExternal(ctx context.Context) {
	done := make(map[string]bool)
	for _, name := range sortedKeys(r.inSet) {
		for _, fk := range r.tables[name].ForeignKeys {
			if r.inSet[fk.RefTable] || !fk.Pool.Empty() {
				continue
			}
			if !done[fk.RefTable] {
				done[fk.RefTable] = true
				if err := r.materialize(ctx, fk.RefTable); err != nil {
					r.log.Warn("⚠️  %v", err)
				}
			}
			if err := r.reloadPool(ctx, fk); err != nil {
				r.log.Warn("⚠️  %v", err)
			}
		}
	}
}

// materialize writes DefaultFKRows minimal rows into table.
func (r *tableRun) materialize(ctx context.Context, table string) error {
	meta := r.metadataFor(table)
	if meta == nil {
		return fmt.Errorf("no metadata for referenced table %s", table)
	}
	for _, fk := range meta.ForeignKeys {
		if fk.SelfReference(meta.Name) || !fk.Pool.Empty() {
			continue
		}
		values, err := r.adapter.DistinctValues(ctx, fk.RefTable, fk.RefColumn, r.e.cfg.Generator.PoolLimit)
		if err == nil {
			fk.Pool.Replace(values)
		}
	}

	rows := generator.MinimalRows(meta, r.state(table), r.e.cfg.Generator.DefaultFKRows)
	res, err := r.e.writer.Write(ctx, r.adapter, meta, rows, types.ModeAppend, nil)
	if err != nil {
		return fmt.Errorf("failed to create rows in referenced table %s: %w", table, err)
	}
	r.log.Info("🔗 Created %d placeholder rows in %s", res.Inserted, table)
	return nil
}

func (r *tableRun) metadataFor(table string) *metadata.TableMetadata {
	if meta := r.tables[table]; meta != nil {
		return meta
	}
	return r.external[table]
}

func (r *tableRun) reloadPool(ctx context.Context, fk *metadata.ForeignKey) error {
	values, err := r.adapter.DistinctValues(ctx, fk.RefTable, fk.RefColumn, r.e.cfg.Generator.PoolLimit)
	if err != nil {
		return fmt.Errorf("failed to reload %s.%s: %w", fk.RefTable, fk.RefColumn, err)
	}
	fk.Pool.Replace(values)
	return nil
}

func (r *tableRun) generateTable(ctx context.Context, name string, stats *Stats) error {
	table := r.tables[name]
	log := r.log.With(name)

	set, err := r.e.compile(r.task, r.rand)
	if err != nil {
		return err
	}
	filled, err := generator.AutoFill(table, set)
	if err != nil {
		return err
	}
	if len(filled) > 0 {
		log.Debug("auto-filled columns: %s", strings.Join(filled, ", "))
	}
	if err := r.bindReferences(ctx, set); err != nil {
		return err
	}

	gen := generator.New(table, set, r.state(name), generator.Options{
		PKAttempts:     r.e.cfg.Generator.PKAttempts,
		UniqueAttempts: r.e.cfg.Generator.UniqueAttempts,
		Log:            log,
	})
	batch, err := gen.Generate(ctx, r.task.BatchSize)
	if err != nil {
		return err
	}
	if batch.Dropped > 0 {
		stats.Errors += int64(batch.Dropped)
		stats.note("%s: %d rows dropped", name, batch.Dropped)
		for _, d := range batch.Diagnostics {
			if d.Fatal {
				log.Debug("%s", d)
			}
		}
	}

	if err := r.e.guard(ctx, r.task); err != nil {
		return err
	}
	log.Info("📝 Writing %d rows", len(batch.Rows))
	res, err := r.e.writer.Write(ctx, r.adapter, table, batch.Rows, types.ModeAppend, &repairer{run: r, table: table, gen: gen})
	stats.Success += int64(res.Inserted)
	stats.Errors += int64(res.Failed + res.Skipped)
	if res.Failed+res.Skipped > 0 {
		stats.note("%s: %d rows failed, %d skipped", name, res.Failed, res.Skipped)
	}
	if err != nil {
		return err
	}

	r.propagate(ctx, table, batch.Rows[:res.Inserted])
	return nil
}

// propagate feeds the keys just written into the pools of target tables that
// reference table. Store-assigned keys are re-read from the store.
func (r *tableRun) propagate(ctx context.Context, table *metadata.TableMetadata, inserted []map[string]interface{}) {
	for _, name := range sortedKeys(r.inSet) {
		for _, fk := range r.tables[name].ForeignKeys {
			if fk.RefTable != table.Name {
				continue
			}
			if table.IsStoreAssigned(fk.RefColumn) || !carries(inserted, fk.RefColumn) {
				if err := r.reloadPool(ctx, fk); err != nil {
					r.log.Warn("⚠️  %v", err)
				}
				continue
			}
			for _, row := range inserted {
				fk.Pool.Add(row[fk.RefColumn])
			}
		}
	}
}

func carries(rows []map[string]interface{}, column string) bool {
	for _, row := range rows {
		if _, ok := row[column]; !ok {
			return false
		}
	}
	return true
}

// bindReferences points reference rules that name a table at that table's
// current values.
func (r *tableRun) bindReferences(ctx context.Context, set *rules.Set) error {
	for field, ref := range set.References() {
		if ref.Table == "" {
			continue
		}
		key := ref.Table + "." + ref.Field
		pool, ok := r.refPools[key]
		if !ok {
			values, err := r.adapter.DistinctValues(ctx, ref.Table, ref.Field, r.e.cfg.Generator.PoolLimit)
			if err != nil {
				return &ConfigError{Message: fmt.Sprintf("reference rule for %s: failed to read %s: %v", field, key, err)}
			}
			pool = metadata.NewValuePool(values...)
			r.refPools[key] = pool
		}
		ref.Bind(pool)
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
