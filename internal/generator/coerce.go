package generator

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
)

var leftoverToken = regexp.MustCompile(`\$\{[^}]*\}?`)

var temporalLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

// Coerce converts a generated value to the column's native Go representation.
func Coerce(v interface{}, col *metadata.ColumnMetadata) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok && col.Kind() != metadata.KindBinary {
		v = string(b)
	}
	if s, ok := v.(string); ok && strings.Contains(s, "${") {
		v = leftoverToken.ReplaceAllString(s, "1")
	}

	switch col.Kind() {
	case metadata.KindInt:
		return toInt64(v)
	case metadata.KindDecimal, metadata.KindFloat:
		return toFloat64(v)
	case metadata.KindBool:
		return toBool(v)
	case metadata.KindDate, metadata.KindDateTime:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		if col.Kind() == metadata.KindDate {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, t.Location()), nil
		}
		return t, nil
	case metadata.KindTime:
		return toClock(v)
	case metadata.KindJSON:
		return toJSON(v)
	case metadata.KindBinary:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		default:
			return []byte(fmt.Sprint(b)), nil
		}
	default:
		return toText(v), nil
	}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return math.MaxInt64, nil
		}
		return int64(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("cannot convert %v to integer", n)
		}
		if n >= math.MaxInt64 {
			return math.MaxInt64, nil
		}
		if n <= math.MinInt64 {
			return math.MinInt64, nil
		}
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to integer", n)
		}
		return toInt64(f)
	case time.Time:
		return n.Unix(), nil
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot convert %T to number", v)
}

func toBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case float64:
		return b != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "t", "yes", "y", "on":
			return true, nil
		case "0", "false", "f", "no", "n", "off", "":
			return false, nil
		}
		return false, fmt.Errorf("cannot convert %q to bool", b)
	}
	return false, fmt.Errorf("cannot convert %T to bool", v)
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case int64:
		return time.UnixMilli(t), nil
	case float64:
		return time.UnixMilli(int64(t)), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range temporalLayouts {
			if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
				return parsed, nil
			}
		}
		if clock, err := time.ParseInLocation("15:04:05", s, time.Local); err == nil {
			now := time.Now()
			return time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, time.Local), nil
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as a date", t)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to a date", v)
}

func toClock(v interface{}) (string, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format("15:04:05"), nil
	case string:
		s := strings.TrimSpace(t)
		if _, err := time.Parse("15:04:05", s); err == nil {
			return s, nil
		}
		parsed, err := toTime(s)
		if err != nil {
			return "", err
		}
		return parsed.Format("15:04:05"), nil
	}
	return "", fmt.Errorf("cannot convert %T to a time of day", v)
}

func toJSON(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		if json.Valid([]byte(s)) {
			return s, nil
		}
		b, err := json.Marshal(s)
		return string(b), err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func toText(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	case float64:
		if s == math.Trunc(s) && math.Abs(s) < 1e15 {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case time.Time:
		return s.Format("2006-01-02 15:04:05")
	case map[string]interface{}, []interface{}:
		if b, err := json.Marshal(s); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// Clamp forces v into the column's length, precision and range. The
// returned message is empty when nothing changed.
func Clamp(v interface{}, col *metadata.ColumnMetadata, limit metadata.FieldLimit) (interface{}, string) {
	switch val := v.(type) {
	case string:
		kind := col.Kind()
		if kind == metadata.KindJSON || limit.MaxLength <= 0 {
			return v, ""
		}
		if int64(utf8.RuneCountInString(val)) <= limit.MaxLength {
			return v, ""
		}
		runes := []rune(val)
		return string(runes[:limit.MaxLength]), fmt.Sprintf("truncated to %d characters", limit.MaxLength)
	case int64:
		if col.Kind() != metadata.KindInt {
			return v, ""
		}
		if val > limit.MaxInt {
			return limit.MaxInt, fmt.Sprintf("clamped %d to max %d", val, limit.MaxInt)
		}
		if val < limit.MinInt {
			return limit.MinInt, fmt.Sprintf("clamped %d to min %d", val, limit.MinInt)
		}
	case float64:
		kind := col.Kind()
		if kind == metadata.KindDecimal {
			pow := math.Pow(10, float64(limit.Scale))
			rounded := math.Round(val*pow) / pow
			if rounded > limit.MaxValue {
				return limit.MaxValue, fmt.Sprintf("clamped %v to max %v", val, limit.MaxValue)
			}
			if rounded < limit.MinValue {
				return limit.MinValue, fmt.Sprintf("clamped %v to min %v", val, limit.MinValue)
			}
			return rounded, ""
		}
		if kind == metadata.KindFloat && val < limit.MinValue {
			return limit.MinValue, fmt.Sprintf("clamped %v to min %v", val, limit.MinValue)
		}
	}
	return v, ""
}
