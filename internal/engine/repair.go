package engine

import (
	"context"
	"fmt"

	"github.com/Lumos-Labs-HQ/datagen/internal/generator"
	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
)

// repairer fixes rejected rows of one table through its generator.
type repairer struct {
	run   *tableRun
	table *metadata.TableMetadata
	gen   *generator.Generator
}

func (p *repairer) RegeneratePrimaryKeys(rows []map[string]interface{}) {
	for _, row := range rows {
		p.gen.RegenerateKeys(row)
	}
}

func (p *repairer) Reclamp(column string, rows []map[string]interface{}) {
	for _, row := range rows {
		p.gen.Reclamp(row, column)
	}
}

// RefreshForeignKeys re-reads the referenced columns, creating minimal rows in
// a referenced table that turns out empty, and re-picks the values in rows.
func (p *repairer) RefreshForeignKeys(ctx context.Context, column string, rows []map[string]interface{}) error {
	fks := p.table.ForeignKeys
	if column != "" {
		fk := p.table.ForeignKeyFor(column)
		if fk == nil {
			return fmt.Errorf("%s.%s is not a foreign key", p.table.Name, column)
		}
		fks = []*metadata.ForeignKey{fk}
	}

	for _, fk := range fks {
		if err := p.run.reloadPool(ctx, fk); err != nil {
			return err
		}
		if fk.Pool.Empty() && !fk.SelfReference(p.table.Name) {
			if err := p.run.materialize(ctx, fk.RefTable); err != nil {
				return err
			}
			if err := p.run.reloadPool(ctx, fk); err != nil {
				return err
			}
		}
		for _, row := range rows {
			if !p.gen.AssignForeignKey(row, fk.Column) {
				return fmt.Errorf("no valid values in %s.%s", fk.RefTable, fk.RefColumn)
			}
		}
	}
	return nil
}
