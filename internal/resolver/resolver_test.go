package resolver

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/Lumos-Labs-HQ/datagen/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func positions(order []string) map[string]int {
	pos := make(map[string]int, len(order))
	for i, t := range order {
		pos[t] = i
	}
	return pos
}

func TestResolveOrdersDependenciesFirst(t *testing.T) {
	deps := map[string][]string{
		"orders":      {"customers", "products"},
		"order_items": {"orders", "products"},
		"customers":   {},
		"products":    {"categories"},
		"categories":  nil,
	}
	tables := []string{"order_items", "orders", "customers", "products", "categories"}

	result := Resolve(tables, deps, types.ModeAppend)
	require.Equal(t, Ordered, result.Outcome)
	require.Len(t, result.Order, len(tables))

	pos := positions(result.Order)
	for table, ds := range deps {
		for _, dep := range ds {
			assert.Less(t, pos[dep], pos[table], "%s must precede %s", dep, table)
		}
	}
}

func TestResolveRandomDAGs(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := 1 + r.Intn(12)
		tables := make([]string, n)
		for i := range tables {
			tables[i] = fmt.Sprintf("t%02d", i)
		}

		// edges only point at lower indices, so the graph is acyclic
		deps := make(map[string][]string)
		for i := 1; i < n; i++ {
			for j := 0; j < i; j++ {
				if r.Float64() < 0.3 {
					deps[tables[i]] = append(deps[tables[i]], tables[j])
				}
			}
		}
		// a dependency outside the set is ignored
		deps[tables[0]] = append(deps[tables[0]], "external")

		shuffled := append([]string(nil), tables...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		result := Resolve(shuffled, deps, types.ModeAppend)
		require.Equal(t, Ordered, result.Outcome)
		require.Len(t, result.Order, n)

		pos := positions(result.Order)
		for table, ds := range deps {
			for _, dep := range ds {
				if dep == "external" {
					continue
				}
				assert.Less(t, pos[dep], pos[table])
			}
		}
	}
}

func TestResolveCycleCoversEveryTable(t *testing.T) {
	deps := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
		"d": {"a"},
	}
	tables := []string{"d", "c", "b", "a"}

	result := Resolve(tables, deps, types.ModeAppend)
	assert.Equal(t, CycleDetected, result.Outcome)
	assert.True(t, result.Fallback())

	sorted := append([]string(nil), result.Order...)
	sort.Strings(sorted)
	assert.Equal(t, []string{"a", "b", "c", "d"}, sorted)

	// a is referenced by c and d
	assert.Equal(t, "a", result.Order[0])
	assert.Equal(t, []string{"a", "b", "c", "d"}, result.Order)
}

func TestResolveIgnoresSelfReference(t *testing.T) {
	deps := map[string][]string{
		"employees":   {"employees", "departments"},
		"departments": nil,
	}
	result := Resolve([]string{"employees", "departments"}, deps, types.ModeAppend)
	assert.Equal(t, Ordered, result.Outcome)
	assert.Equal(t, []string{"departments", "employees"}, result.Order)
}

func TestResolveOverwriteReverses(t *testing.T) {
	deps := map[string][]string{"orders": {"customers"}}
	result := Resolve([]string{"orders", "customers"}, deps, types.ModeOverwrite)
	assert.Equal(t, []string{"orders", "customers"}, result.Order)

	result = Resolve([]string{"orders", "customers"}, deps, types.ModeAppend)
	assert.Equal(t, []string{"customers", "orders"}, result.Order)
}

func TestResolveDuplicateTables(t *testing.T) {
	result := Resolve([]string{"a", "a", "b"}, nil, types.ModeAppend)
	assert.Equal(t, []string{"a", "b"}, result.Order)
}

func TestValidRejectsBrokenOrder(t *testing.T) {
	g := NewDependencyGraph([]string{"orders", "customers"}, map[string][]string{"orders": {"customers"}})
	assert.True(t, g.Valid([]string{"customers", "orders"}))
	assert.False(t, g.Valid([]string{"orders", "customers"}))
	assert.False(t, g.Valid([]string{"customers"}))
}

func TestInDegreeRankingTieBreak(t *testing.T) {
	g := NewDependencyGraph([]string{"z", "y", "x"}, map[string][]string{"x": {"z"}, "y": {"z"}})
	assert.Equal(t, []string{"z", "x", "y"}, g.inDegreeRanking())
}
