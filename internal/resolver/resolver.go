package resolver

import (
	"sort"

	"github.com/Lumos-Labs-HQ/datagen/internal/types"
)

type Outcome int

const (
	// Ordered means the DFS order passed validation.
	Ordered Outcome = iota
	// CycleDetected means a back edge forced the in-degree ranking.
	CycleDetected
	// ValidationFallback means the DFS order broke an edge and was replaced.
	ValidationFallback
)

func (o Outcome) String() string {
	switch o {
	case Ordered:
		return "ordered"
	case CycleDetected:
		return "cycle detected"
	case ValidationFallback:
		return "validation fallback"
	default:
		return "unknown"
	}
}

type Result struct {
	Order   []string
	Outcome Outcome
}

func (r Result) Fallback() bool {
	return r.Outcome != Ordered
}

const (
	white = iota
	grey
	black
)

// DependencyGraph holds the FK edges of a table set, restricted to that set.
type DependencyGraph struct {
	tables []string
	edges  map[string][]string
}

func NewDependencyGraph(tables []string, deps map[string][]string) *DependencyGraph {
	g := &DependencyGraph{edges: make(map[string][]string)}

	inSet := make(map[string]bool, len(tables))
	for _, t := range tables {
		if inSet[t] {
			continue
		}
		inSet[t] = true
		g.tables = append(g.tables, t)
	}

	for _, t := range g.tables {
		seen := make(map[string]bool)
		for _, dep := range deps[t] {
			if dep == t || !inSet[dep] || seen[dep] {
				continue
			}
			seen[dep] = true
			g.edges[t] = append(g.edges[t], dep)
		}
	}
	return g
}

// Resolve orders tables so that every table follows the tables it
// references. OVERWRITE mode reverses the final order.
func Resolve(tables []string, deps map[string][]string, mode types.WriteMode) Result {
	g := NewDependencyGraph(tables, deps)
	result := g.Order()
	if mode == types.ModeOverwrite {
		reverse(result.Order)
	}
	return result
}

func (g *DependencyGraph) Order() Result {
	order, ok := g.dfs()
	if !ok {
		return Result{Order: g.inDegreeRanking(), Outcome: CycleDetected}
	}
	if !g.Valid(order) {
		return Result{Order: g.inDegreeRanking(), Outcome: ValidationFallback}
	}
	return Result{Order: order, Outcome: Ordered}
}

func (g *DependencyGraph) dfs() ([]string, bool) {
	color := make(map[string]int, len(g.tables))
	order := make([]string, 0, len(g.tables))

	var visit func(string) bool
	visit = func(table string) bool {
		switch color[table] {
		case grey:
			return false
		case black:
			return true
		}

		color[table] = grey
		for _, dep := range g.edges[table] {
			if !visit(dep) {
				return false
			}
		}
		color[table] = black
		order = append(order, table)
		return true
	}

	for _, table := range g.tables {
		if color[table] == white && !visit(table) {
			return nil, false
		}
	}
	return order, true
}

// Valid reports whether every dependency precedes its dependent in order.
func (g *DependencyGraph) Valid(order []string) bool {
	pos := make(map[string]int, len(order))
	for i, t := range order {
		pos[t] = i
	}
	if len(pos) != len(g.tables) {
		return false
	}
	for table, deps := range g.edges {
		for _, dep := range deps {
			if pos[dep] >= pos[table] {
				return false
			}
		}
	}
	return true
}

// inDegreeRanking sorts most-referenced tables first, ties broken by name.
func (g *DependencyGraph) inDegreeRanking() []string {
	referencers := make(map[string]int, len(g.tables))
	for _, deps := range g.edges {
		for _, dep := range deps {
			referencers[dep]++
		}
	}

	order := make([]string, len(g.tables))
	copy(order, g.tables)
	sort.SliceStable(order, func(i, j int) bool {
		ri, rj := referencers[order[i]], referencers[order[j]]
		if ri != rj {
			return ri > rj
		}
		return order[i] < order[j]
	})
	return order
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
