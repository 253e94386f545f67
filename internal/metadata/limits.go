package metadata

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

type Kind int

const (
	KindOther Kind = iota
	KindString
	KindText
	KindInt
	KindDecimal
	KindFloat
	KindDate
	KindDateTime
	KindTime
	KindBool
	KindEnum
	KindJSON
	KindUUID
	KindBinary
	KindSpatial
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindTime:
		return "time"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	case KindJSON:
		return "json"
	case KindUUID:
		return "uuid"
	case KindBinary:
		return "binary"
	case KindSpatial:
		return "spatial"
	default:
		return "other"
	}
}

func (k Kind) Textual() bool {
	return k == KindString || k == KindText
}

func (k Kind) Numeric() bool {
	return k == KindInt || k == KindDecimal || k == KindFloat
}

func (k Kind) Temporal() bool {
	return k == KindDate || k == KindDateTime || k == KindTime
}

var (
	parenRe  = regexp.MustCompile(`\([^)]*\)`)
	lengthRe = regexp.MustCompile(`\((\d+)(?:\s*,\s*(\d+))?\)`)
)

// BaseType strips length, modifiers and case: "INT(11) UNSIGNED" -> "int".
func BaseType(dataType string) string {
	t := strings.ToLower(strings.TrimSpace(dataType))
	t = parenRe.ReplaceAllString(t, "")
	fields := strings.Fields(t)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) >= 2 {
		switch two := fields[0] + " " + fields[1]; two {
		case "character varying", "double precision", "bit varying", "national character":
			return two
		}
	}
	return fields[0]
}

func KindOf(dataType string) Kind {
	switch BaseType(dataType) {
	case "char", "varchar", "character", "character varying", "nchar", "nvarchar", "bpchar", "citext",
		"national character", "string":
		return KindString
	case "text", "tinytext", "mediumtext", "longtext", "clob":
		return KindText
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint", "int2", "int4", "int8",
		"serial", "smallserial", "bigserial", "serial4", "serial8", "bit", "year":
		return KindInt
	case "decimal", "numeric", "dec", "money", "fixed":
		return KindDecimal
	case "float", "double", "real", "double precision", "float4", "float8":
		return KindFloat
	case "date":
		return KindDate
	case "datetime", "timestamp", "timestamptz":
		return KindDateTime
	case "time", "timetz":
		return KindTime
	case "bool", "boolean":
		return KindBool
	case "enum", "set":
		return KindEnum
	case "json", "jsonb":
		return KindJSON
	case "uuid", "uniqueidentifier":
		return KindUUID
	case "blob", "tinyblob", "mediumblob", "longblob", "binary", "varbinary", "bytea":
		return KindBinary
	case "geometry", "point", "linestring", "polygon", "multipoint", "multipolygon", "geography":
		return KindSpatial
	default:
		return KindOther
	}
}

func IsUnsigned(dataType string) bool {
	return strings.Contains(strings.ToLower(dataType), "unsigned")
}

// FieldLimit is the length/precision/range envelope of a column.
type FieldLimit struct {
	MaxLength int64
	Precision int
	Scale     int
	MaxInt    int64
	MinInt    int64
	MaxValue  float64
	MinValue  float64
	Unsigned  bool
}

var defaultLengths = map[string]int64{
	"tinyint": 3, "smallint": 5, "int2": 5, "mediumint": 7, "int": 10, "integer": 10, "int4": 10, "serial": 10,
	"bigint": 19, "int8": 19, "bigserial": 19,
	"char": 255, "varchar": 255, "character": 255, "character varying": 255, "nchar": 255, "nvarchar": 255, "bpchar": 255,
	"tinytext": 255, "text": 65535, "mediumtext": 16777215, "longtext": 4294967295,
	"datetime": 19, "timestamp": 19, "date": 10, "time": 8,
}

func parseLength(s string) (int64, int, bool) {
	if m := lengthRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, 0, false
		}
		scale := 0
		if m[2] != "" {
			scale, _ = strconv.Atoi(m[2])
		}
		return n, scale, true
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, false
	}
	parts := strings.SplitN(s, ",", 2)
	n, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	scale := 0
	if len(parts) == 2 {
		scale, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	return n, scale, true
}

func LimitFor(col *ColumnMetadata) FieldLimit {
	base := BaseType(col.DataType)
	kind := KindOf(col.DataType)
	limit := FieldLimit{Unsigned: IsUnsigned(col.DataType)}

	length, scale, explicit := parseLength(col.DataType)
	if !explicit {
		length, scale, explicit = parseLength(col.MaxLength)
	}

	switch kind {
	case KindInt:
		limit.MaxInt, limit.MinInt = intRange(base, limit.Unsigned)
		limit.MaxValue, limit.MinValue = float64(limit.MaxInt), float64(limit.MinInt)
		limit.MaxLength = defaultLengths[base]
		if limit.MaxLength == 0 {
			limit.MaxLength = 19
		}
	case KindDecimal:
		limit.Precision, limit.Scale = 10, 2
		if explicit && length > 0 {
			limit.Precision, limit.Scale = int(length), scale
		}
		if limit.Scale > limit.Precision {
			limit.Scale = limit.Precision
		}
		limit.MaxValue = math.Pow(10, float64(limit.Precision-limit.Scale)) - math.Pow(10, -float64(limit.Scale))
		limit.MinValue = -limit.MaxValue
		if limit.Unsigned {
			limit.MinValue = 0
		}
		limit.MaxLength = int64(limit.Precision) + 2
	case KindFloat:
		limit.MaxValue, limit.MinValue = math.MaxFloat64, -math.MaxFloat64
		if limit.Unsigned {
			limit.MinValue = 0
		}
		limit.MaxLength = 24
	default:
		if explicit && length > 0 {
			limit.MaxLength = length
		} else if def, ok := defaultLengths[base]; ok {
			limit.MaxLength = def
		} else if kind == KindUUID {
			limit.MaxLength = 36
		} else {
			limit.MaxLength = 255
		}
	}
	return limit
}

func intRange(base string, unsigned bool) (int64, int64) {
	switch base {
	case "tinyint":
		if unsigned {
			return 255, 0
		}
		return 127, -128
	case "smallint", "int2", "smallserial":
		if unsigned {
			return 65535, 0
		}
		return 32767, -32768
	case "mediumint":
		if unsigned {
			return 16777215, 0
		}
		return 8388607, -8388608
	case "int", "integer", "int4", "serial", "serial4", "year":
		if unsigned {
			return 4294967295, 0
		}
		return math.MaxInt32, math.MinInt32
	case "bit":
		return 1, 0
	default:
		if unsigned {
			return math.MaxInt64, 0
		}
		return math.MaxInt64, math.MinInt64
	}
}
