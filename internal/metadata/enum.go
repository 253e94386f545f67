package metadata

import (
	"regexp"
	"strings"
)

var commentEnumRe = regexp.MustCompile(`\[([^\]]+)\]`)

// EnumValues returns the permitted values for an enum column, read from the
// declared type or, failing that, a "[a,b,c]" list in the column comment.
func EnumValues(col *ColumnMetadata) []string {
	if values := extractEnumValues(col.DataType); len(values) > 0 {
		return values
	}
	if m := commentEnumRe.FindStringSubmatch(col.Comment); m != nil {
		var values []string
		for _, part := range strings.Split(m[1], ",") {
			part = strings.Trim(strings.TrimSpace(part), `'"`)
			if part != "" {
				values = append(values, part)
			}
		}
		return values
	}
	return nil
}

func extractEnumValues(columnType string) []string {
	lower := strings.ToLower(columnType)
	if !strings.HasPrefix(lower, "enum(") && !strings.HasPrefix(lower, "set(") {
		return nil
	}
	start := strings.Index(columnType, "(")
	end := strings.LastIndex(columnType, ")")
	if start < 0 || end <= start {
		return nil
	}

	var values []string
	for _, part := range strings.Split(columnType[start+1:end], ",") {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, "'")
		values = append(values, part)
	}
	return values
}

// NormalizeEnum maps v onto a permitted value ignoring case, falling back to
// the first permitted value.
func NormalizeEnum(v string, permitted []string) string {
	if len(permitted) == 0 {
		return v
	}
	for _, p := range permitted {
		if p == v {
			return p
		}
	}
	for _, p := range permitted {
		if strings.EqualFold(p, v) {
			return p
		}
	}
	return permitted[0]
}
