package generator

import (
	"regexp"
	"strings"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"github.com/google/uuid"
)

var pgCast = regexp.MustCompile(`::[a-zA-Z_ ]+(\[\])?$`)

// staticDefault unwraps a declared default such as 'abc'::character varying.
func staticDefault(col *metadata.ColumnMetadata) (string, bool) {
	if !col.HasDefault || col.DynamicDefault() {
		return "", false
	}
	d := strings.TrimSpace(col.Default)
	if d == "" || strings.EqualFold(d, "NULL") || strings.Contains(strings.ToLower(d), "nextval(") {
		return "", false
	}
	d = pgCast.ReplaceAllString(d, "")
	d = strings.TrimPrefix(strings.TrimSuffix(d, ")"), "(")
	return strings.Trim(d, `'"`), true
}

// DefaultValue synthesizes a type-appropriate value for a NOT NULL column.
func DefaultValue(col *metadata.ColumnMetadata) (interface{}, bool) {
	if d, ok := staticDefault(col); ok {
		if v, err := Coerce(d, col); err == nil {
			return v, true
		}
	}
	if col.DynamicDefault() {
		if v, err := Coerce(time.Now(), col); err == nil {
			return v, true
		}
	}
	if values := metadata.EnumValues(col); len(values) > 0 {
		return values[0], true
	}

	limit := metadata.LimitFor(col)
	switch col.Kind() {
	case metadata.KindString, metadata.KindText:
		return defaultString(limit.MaxLength), true
	case metadata.KindInt:
		if limit.MaxInt < 1 {
			return int64(0), true
		}
		return int64(1), true
	case metadata.KindDecimal, metadata.KindFloat:
		return 1.0, true
	case metadata.KindDate:
		v, _ := Coerce(time.Now(), col)
		return v, true
	case metadata.KindDateTime:
		return time.Now().Truncate(time.Second), true
	case metadata.KindTime:
		return time.Now().Format("15:04:05"), true
	case metadata.KindBool:
		return true, true
	case metadata.KindUUID:
		return uuid.NewString(), true
	case metadata.KindJSON:
		return "{}", true
	case metadata.KindBinary:
		return []byte{}, true
	case metadata.KindSpatial:
		return nil, false
	default:
		return "default", true
	}
}

func defaultString(maxLength int64) string {
	switch {
	case maxLength <= 2:
		return "1"
	case maxLength <= 5:
		return "12345"[:maxLength]
	default:
		id := strings.ReplaceAll(uuid.NewString(), "-", "")
		n := int(maxLength) - 4
		if n > len(id) {
			n = len(id)
		}
		return "def_" + id[:n]
	}
}
