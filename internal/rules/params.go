package rules

import (
	"fmt"
	"strconv"
	"strings"
)

type params map[string]interface{}

func (p params) value(keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if v, ok := p[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (p params) float(def float64, keys ...string) float64 {
	v, ok := p.value(keys...)
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

func (p params) int(def int64, keys ...string) int64 {
	v, ok := p.value(keys...)
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return int64(f)
	}
	return def
}

func (p params) bool(def bool, keys ...string) bool {
	v, ok := p.value(keys...)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	case float64:
		return b != 0
	}
	return def
}

func (p params) string(def string, keys ...string) string {
	v, ok := p.value(keys...)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// list accepts a JSON array or a "a,b,c" / "a|b|c" string.
func (p params) list(keys ...string) ([]interface{}, bool) {
	v, ok := p.value(keys...)
	if !ok {
		return nil, false
	}
	switch l := v.(type) {
	case []interface{}:
		return l, true
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case string:
		sep := ","
		if strings.Contains(l, "|") {
			sep = "|"
		}
		var out []interface{}
		for _, part := range strings.Split(l, sep) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, true
	}
	return nil, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
