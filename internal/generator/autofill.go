package generator

import (
	"math"
	"strings"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"github.com/Lumos-Labs-HQ/datagen/internal/rules"
)

const boundLayout = "2006-01-02 15:04:05"

// AutoFill adds a rule to set for every column the template leaves out.
// Store-assigned keys and foreign keys are left to Generate. It returns the
// columns it filled.
func AutoFill(table *metadata.TableMetadata, set *rules.Set) ([]string, error) {
	var filled []string
	for _, name := range table.ColumnNames() {
		if set.Has(name) || name == table.PrimaryKey || table.ForeignKeyFor(name) != nil {
			continue
		}
		col := table.Columns[name]
		rule, ok := DefaultRule(table, col)
		if !ok {
			continue
		}
		if err := set.AddRule(name, rule); err != nil {
			return filled, err
		}
		filled = append(filled, name)
	}
	return filled, nil
}

// DefaultRule derives a generation rule from column metadata alone.
func DefaultRule(table *metadata.TableMetadata, col *metadata.ColumnMetadata) (rules.Rule, bool) {
	p := map[string]interface{}{"nullable": col.Nullable}
	rule := func(typ string) (rules.Rule, bool) {
		return rules.Rule{Type: typ, Params: p}, true
	}

	if values := metadata.EnumValues(col); len(values) > 0 {
		list := make([]interface{}, len(values))
		for i, v := range values {
			list[i] = v
		}
		p["values"] = list
		return rule("enum")
	}

	if !col.Nullable && col.HasDefault {
		if col.DynamicDefault() {
			p["kind"] = dateKind(col.Kind())
			return rule("date")
		}
		if d, ok := staticDefault(col); ok {
			delete(p, "nullable")
			p["value"] = d
			return rule("fixed")
		}
	}

	limit := metadata.LimitFor(col)
	switch col.Kind() {
	case metadata.KindString:
		switch {
		case limit.MaxLength <= 2:
			p["values"] = []interface{}{"1", "2", "3", "4", "5", "6", "7", "8", "9"}
			return rule("enum")
		case limit.MaxLength <= 5:
			p["pattern"] = "${number}"
		case limit.MaxLength <= 10:
			p["pattern"] = "${shortString}"
		case table.IsUnique(col.Name):
			if limit.MaxLength >= 32 {
				p["pattern"] = "${uuid}"
			} else {
				p["pattern"] = "${number}"
			}
		default:
			p["pattern"] = patternFor(col.Name, limit.MaxLength)
		}
		return rule("string")
	case metadata.KindText:
		p["pattern"] = patternFor(col.Name, limit.MaxLength)
		return rule("string")
	case metadata.KindInt:
		max := limit.MaxInt
		if max > math.MaxInt32 {
			max = math.MaxInt32
		}
		min := int64(1)
		if max < 1 {
			min = 0
		}
		p["integer"] = true
		p["min"] = min
		p["max"] = max
		return rule("random")
	case metadata.KindDecimal:
		max := limit.MaxValue
		if max > 1e6 {
			max = 1e6
		}
		p["min"] = math.Min(1.0, max)
		p["max"] = max
		p["scale"] = limit.Scale
		return rule("random")
	case metadata.KindFloat:
		p["min"] = 1.0
		p["max"] = 10000.0
		return rule("random")
	case metadata.KindDate, metadata.KindDateTime, metadata.KindTime:
		now := time.Now()
		p["kind"] = dateKind(col.Kind())
		p["startDate"] = now.AddDate(-1, 0, 0).Format(boundLayout)
		p["endDate"] = now.AddDate(1, 0, 0).Format(boundLayout)
		return rule("date")
	case metadata.KindBool:
		p["values"] = []interface{}{true, false}
		return rule("enum")
	case metadata.KindJSON:
		p["pattern"] = `{"generated": true}`
		return rule("string")
	case metadata.KindSpatial, metadata.KindBinary:
		return rules.Rule{}, false
	default:
		p["pattern"] = "${uuid}"
		return rule("string")
	}
}

func dateKind(kind metadata.Kind) string {
	switch kind {
	case metadata.KindDate:
		return "date"
	case metadata.KindTime:
		return "time"
	default:
		return "datetime"
	}
}

// patternFor picks a token from the column name first, then from its length.
func patternFor(column string, maxLength int64) string {
	colLower := strings.ToLower(column)

	switch {
	case strings.Contains(colLower, "email"):
		return "${email}"
	case strings.Contains(colLower, "phone"):
		return "${phone}"
	case strings.Contains(colLower, "company"):
		return "${company}"
	case strings.Contains(colLower, "city") || strings.Contains(colLower, "address"):
		return "${city}"
	case strings.Contains(colLower, "name") && !strings.Contains(colLower, "file"):
		return "${name}"
	case strings.Contains(colLower, "description") || strings.Contains(colLower, "content"):
		if maxLength > 50 {
			return "${text}"
		}
	case strings.Contains(colLower, "title"):
		return "${word}"
	}

	switch {
	case maxLength <= 5:
		return "${number}"
	case maxLength <= 10:
		return "${shortString}"
	case maxLength <= 20:
		return "${mediumString}"
	case maxLength <= 50:
		return "${longString}"
	default:
		return "${text}"
	}
}
