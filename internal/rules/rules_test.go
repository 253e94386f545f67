package rules

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceFormula(t *testing.T) {
	set, err := Compile([]byte(`{"id": {"type": "sequence", "params": {"start": 5, "step": 3}}}`), WithSeed(1))
	require.NoError(t, err)

	for n := int64(1); n <= 20; n++ {
		assert.Equal(t, 5+(n-1)*3, set.Next("id"))
	}
}

func TestSequenceDefaults(t *testing.T) {
	set, err := Compile([]byte(`{"id": {"type": "sequence"}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), set.Next("id"))
	assert.Equal(t, int64(2), set.Next("id"))
}

func TestEnumRoundRobin(t *testing.T) {
	set, err := Compile([]byte(`{"s": {"type": "enum", "params": {"values": ["a","b","c"], "random": false}}}`))
	require.NoError(t, err)

	var got []interface{}
	for i := 0; i < 4; i++ {
		got = append(got, set.Next("s"))
	}
	assert.Equal(t, []interface{}{"a", "b", "c", "a"}, got)
}

func TestEnumEmptyValuesYieldNull(t *testing.T) {
	set, err := Compile([]byte(`{"s": {"type": "enum", "params": {"values": []}}}`))
	require.NoError(t, err)
	assert.Nil(t, set.Next("s"))
}

func TestFlatNodeForm(t *testing.T) {
	set, err := Compile([]byte(`{"qty": {"type": "random", "min": 1, "max": 5, "isInteger": true, "nullable": false}}`), WithSeed(7))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		v, ok := set.Next("qty").(int64)
		require.True(t, ok)
		assert.GreaterOrEqual(t, v, int64(1))
		assert.Less(t, v, int64(5))
	}
}

func TestRandomNullRate(t *testing.T) {
	set, err := Compile([]byte(`{"v": {"type": "random", "params": {"min": 0, "max": 1}}}`), WithSeed(3), WithNullRate(1))
	require.NoError(t, err)
	assert.Nil(t, set.Next("v"))

	set, err = Compile([]byte(`{"v": {"type": "random", "params": {"min": 0, "max": 1}}}`), WithSeed(3), WithNullRate(0))
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		assert.NotNil(t, set.Next("v"))
	}
}

func TestRandomDefaultOverrides(t *testing.T) {
	set, err := Compile([]byte(`{"v": {"type": "random", "params": {"defaultValue": 42}}}`))
	require.NoError(t, err)
	assert.Equal(t, float64(42), set.Next("v"))
}

func TestConfigErrors(t *testing.T) {
	cases := map[string]string{
		"not an object":   `{"a": 5}`,
		"missing type":    `{"a": {"params": {}}}`,
		"unknown type":    `{"a": {"type": "markov"}}`,
		"enum values":     `{"a": {"type": "enum", "params": {}}}`,
		"reference field": `{"a": {"type": "reference", "params": {"table": "users"}}}`,
		"fixed value":     `{"a": {"type": "fixed", "params": {}}}`,
		"bad expression":  `{"a": {"type": "expression", "params": {"expression": "1 +* 2"}}}`,
		"params type":     `{"a": {"type": "random", "params": [1, 2]}}`,
	}
	for name, tmpl := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compile([]byte(tmpl))
			require.Error(t, err)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, "a", cfgErr.Field)
			assert.Equal(t, "RULE_CONFIG", cfgErr.Code())
		})
	}

	_, err := Compile([]byte(`[1,2]`))
	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestEveryRuleTypeIsCallable(t *testing.T) {
	tmpl := map[string]interface{}{
		"id":      map[string]interface{}{"type": "sequence", "params": map[string]interface{}{"start": 100}},
		"score":   map[string]interface{}{"type": "random", "params": map[string]interface{}{"min": 1, "max": 10}},
		"status":  map[string]interface{}{"type": "enum", "params": map[string]interface{}{"values": []interface{}{"NEW", "PAID"}}},
		"created": map[string]interface{}{"type": "date", "params": map[string]interface{}{"startDate": "2024-01-01 00:00:00", "endDate": "2024-12-31 00:00:00", "format": "yyyy-MM-dd HH:mm:ss"}},
		"code":    map[string]interface{}{"type": "string", "params": map[string]interface{}{"prefix": "C-", "minLength": 4, "maxLength": 4}},
		"owner":   map[string]interface{}{"type": "reference", "params": map[string]interface{}{"field": "id", "values": []interface{}{map[string]interface{}{"id": 1.0}}}},
		"source":  map[string]interface{}{"type": "fixed", "params": map[string]interface{}{"value": "import"}},
		"total":   map[string]interface{}{"type": "expression", "params": map[string]interface{}{"expression": "id * 2"}},
	}
	raw, err := json.Marshal(tmpl)
	require.NoError(t, err)

	set, err := Compile(raw, WithSeed(11))
	require.NoError(t, err)
	assert.Equal(t, 8, set.Len())

	const batchSize = 500
	for i := 0; i < batchSize; i++ {
		row := set.Row()
		assert.Len(t, row, 8)
		assert.Equal(t, "import", row["source"])
		assert.Equal(t, 1.0, row["owner"])
		assert.EqualValues(t, row["id"].(int64)*2, row["total"])
		if code, ok := row["code"].(string); ok {
			assert.True(t, strings.HasPrefix(code, "C-"))
			assert.Len(t, code, 6)
		}
	}
}

func TestDateWalkWrapsToStart(t *testing.T) {
	set, err := Compile([]byte(`{"d": {"type": "date", "params": {
		"startDate": "2024-01-01", "endDate": "2024-01-03", "format": "yyyy-MM-dd",
		"random": false, "step": 86400000, "nullable": false}}}`))
	require.NoError(t, err)

	var got []interface{}
	for i := 0; i < 5; i++ {
		got = append(got, set.Next("d"))
	}
	assert.Equal(t, []interface{}{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-01", "2024-01-02"}, got)
}

func TestDateBadBoundsFallBackToNow(t *testing.T) {
	set, err := Compile([]byte(`{"d": {"type": "date", "params": {"startDate": "yesterday", "endDate": "never", "nullable": false}}}`))
	require.NoError(t, err)

	v, ok := set.Next("d").(time.Time)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), v, 2*time.Second)
}

func TestDateRandomWithinBounds(t *testing.T) {
	set, err := Compile([]byte(`{"d": {"type": "date", "params": {"kind": "date", "startDate": "2024-03-01", "endDate": "2024-03-31", "nullable": false}}}`), WithSeed(5))
	require.NoError(t, err)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.Local)
	for i := 0; i < 100; i++ {
		v := set.Next("d").(time.Time)
		assert.False(t, v.Before(start))
		assert.False(t, v.After(end))
		assert.Equal(t, 0, v.Hour())
	}
}

func TestGoLayout(t *testing.T) {
	assert.Equal(t, "2006-01-02 15:04:05", GoLayout("yyyy-MM-dd HH:mm:ss"))
	assert.Equal(t, "02/01/06", GoLayout("dd/MM/yy"))
	assert.Equal(t, "2006-01-02T15:04:05.000", GoLayout("yyyy-MM-dd'T'HH:mm:ss.SSS"))
}

func TestStringTemplates(t *testing.T) {
	set, err := Compile([]byte(`{
		"sku":     {"type": "string", "params": {"pattern": "${string:sku}", "nullable": false}},
		"status":  {"type": "string", "params": {"pattern": "${enum:on|off}", "nullable": false}},
		"age":     {"type": "string", "params": {"pattern": "${random:18-18}", "nullable": false}},
		"token":   {"type": "string", "params": {"pattern": "${string:[a-zA-Z0-9]{8,8}}", "nullable": false}},
		"literal": {"type": "string", "params": {"pattern": "hello", "nullable": false}},
		"broken":  {"type": "string", "params": {"pattern": "${mystery}", "nullable": false}},
		"payload": {"type": "string", "params": {"pattern": "{\"page\": \"${string:page}\", \"n\": ${random:1-1}}", "nullable": false}},
		"mail":    {"type": "string", "params": {"pattern": "${email}", "nullable": false}}
	}`), WithSeed(9))
	require.NoError(t, err)

	assert.Regexp(t, `^sku\d{6}$`, set.Next("sku"))
	assert.Contains(t, []interface{}{"on", "off"}, set.Next("status"))
	assert.Equal(t, "18", set.Next("age"))
	assert.Regexp(t, `^[a-zA-Z0-9]{8}$`, set.Next("token"))
	assert.Equal(t, "hello", set.Next("literal"))
	assert.Regexp(t, `^default_\d+$`, set.Next("broken"))
	assert.Contains(t, set.Next("mail"), "@")

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(set.Next("payload").(string)), &payload))
	assert.Regexp(t, `^page\d{3}$`, payload["page"])
	assert.Equal(t, 1.0, payload["n"])
}

func TestStringCursorWalk(t *testing.T) {
	set, err := Compile([]byte(`{"s": {"type": "string", "params": {"charset": "ab", "minLength": 3, "maxLength": 3, "random": false, "nullable": false}}}`))
	require.NoError(t, err)
	assert.Equal(t, "aba", set.Next("s"))
	assert.Equal(t, "bab", set.Next("s"))
}

func TestReferenceBoundPool(t *testing.T) {
	set, err := Compile([]byte(`{"customer_id": {"type": "reference", "params": {"field": "id", "table": "customers", "values": [99]}}}`), WithSeed(2))
	require.NoError(t, err)

	assert.Equal(t, 99.0, set.Next("customer_id"))

	refs := set.References()
	require.Contains(t, refs, "customer_id")
	pool := metadata.NewValuePool(int64(1), int64(2), int64(3))
	refs["customer_id"].Bind(pool)
	for i := 0; i < 50; i++ {
		assert.True(t, pool.Contains(set.Next("customer_id")))
	}
}

func TestExpressionRuntimeErrorYieldsNil(t *testing.T) {
	set, err := Compile([]byte(`{"x": {"type": "expression", "params": {"expression": "name + 1"}}, "name": {"type": "fixed", "params": {"value": "bob"}}}`))
	require.NoError(t, err)
	row := set.Row()
	assert.Nil(t, row["x"])
	assert.Equal(t, "bob", row["name"])
}

func TestSetsDoNotShareState(t *testing.T) {
	tmpl := []byte(`{"id": {"type": "sequence"}}`)
	a, err := Compile(tmpl)
	require.NoError(t, err)
	b, err := Compile(tmpl)
	require.NoError(t, err)

	a.Next("id")
	a.Next("id")
	assert.Equal(t, int64(1), b.Next("id"))
}

func TestFakerTokensRepeatWithSeed(t *testing.T) {
	tmpl := []byte(`{
		"name": {"type": "string", "params": {"pattern": "${name}", "nullable": false}},
		"mail": {"type": "string", "params": {"pattern": "${email}", "nullable": false}},
		"note": {"type": "string", "params": {"pattern": "${text} ${uuid}", "nullable": false}}
	}`)
	draw := func(seed int64) []interface{} {
		set, err := Compile(tmpl, WithSeed(seed))
		require.NoError(t, err)
		var out []interface{}
		for i := 0; i < 5; i++ {
			out = append(out, set.Next("name"), set.Next("mail"), set.Next("note"))
		}
		return out
	}

	first := draw(21)
	assert.Equal(t, first, draw(21))
	assert.NotEqual(t, first, draw(22))
}
