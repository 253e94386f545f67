package rules

import (
	"errors"
	"math"

	"github.com/Lumos-Labs-HQ/datagen/internal/metadata"
)

type Sequence struct {
	Start int64
	Step  int64
	calls int64
}

func newSequence(p params) *Sequence {
	return &Sequence{
		Start: p.int(1, "start"),
		Step:  p.int(1, "step"),
	}
}

func (g *Sequence) Next() interface{} {
	v := g.Start + g.Step*g.calls
	g.calls++
	return v
}

type Random struct {
	Min      float64
	Max      float64
	Integer  bool
	Nullable bool
	Scale    int
	Default  interface{}
	env      *Env
}

func newRandom(env *Env, p params) *Random {
	g := &Random{
		Min:      p.float(0, "min"),
		Max:      p.float(100, "max"),
		Integer:  p.bool(false, "integer", "isInteger"),
		Nullable: p.bool(true, "nullable"),
		Scale:    int(p.int(-1, "scale")),
		env:      env,
	}
	if v, ok := p.value("defaultValue"); ok {
		g.Default = v
	}
	if g.Max < g.Min {
		g.Min, g.Max = g.Max, g.Min
	}
	return g
}

func (g *Random) Next() interface{} {
	if g.Default != nil {
		return g.Default
	}
	if g.Nullable && g.env.Rand.Float64() < g.env.NullRate {
		return nil
	}
	v := g.Min + g.env.Rand.Float64()*(g.Max-g.Min)
	if g.Integer {
		return int64(v)
	}
	if g.Scale >= 0 {
		pow := math.Pow(10, float64(g.Scale))
		v = math.Round(v*pow) / pow
	}
	return v
}

type Enum struct {
	Values   []interface{}
	Random   bool
	Nullable bool
	Default  interface{}
	cursor   int
	env      *Env
}

func newEnum(env *Env, p params) (*Enum, error) {
	values, ok := p.list("values")
	if !ok {
		return nil, errors.New("enum rule requires values")
	}
	g := &Enum{
		Values:   values,
		Random:   p.bool(true, "random"),
		Nullable: p.bool(false, "nullable"),
		env:      env,
	}
	if v, ok := p.value("defaultValue"); ok {
		g.Default = v
	}
	return g, nil
}

func (g *Enum) Next() interface{} {
	if g.Default != nil {
		return g.Default
	}
	if g.Nullable && g.env.Rand.Float64() < g.env.NullRate {
		return nil
	}
	if len(g.Values) == 0 {
		return nil
	}
	if g.Random {
		return g.Values[g.env.Rand.Intn(len(g.Values))]
	}
	v := g.Values[g.cursor]
	g.cursor = (g.cursor + 1) % len(g.Values)
	return v
}

type Fixed struct {
	Value interface{}
}

func newFixed(p params) (*Fixed, error) {
	v, ok := p["value"]
	if !ok {
		return nil, errors.New("fixed rule requires value")
	}
	return &Fixed{Value: v}, nil
}

func (g *Fixed) Next() interface{} {
	return g.Value
}

// Reference picks from a bound pool when one is set, otherwise from the
// listed values. Row-shaped values are read through Field.
type Reference struct {
	Field  string
	Table  string
	Values []interface{}
	Random bool
	pool   *metadata.ValuePool
	cursor int
	env    *Env
}

func newReference(env *Env, p params) (*Reference, error) {
	field := p.string("", "field")
	if field == "" {
		return nil, errors.New("reference rule requires field")
	}
	values, _ := p.list("values")
	return &Reference{
		Field:  field,
		Table:  p.string("", "table"),
		Values: values,
		Random: p.bool(true, "random"),
		env:    env,
	}, nil
}

func (g *Reference) Bind(pool *metadata.ValuePool) {
	g.pool = pool
}

func (g *Reference) Next() interface{} {
	if g.pool != nil && !g.pool.Empty() {
		return g.pool.Pick(g.env.Rand)
	}
	if len(g.Values) == 0 {
		return nil
	}
	var v interface{}
	if g.Random {
		v = g.Values[g.env.Rand.Intn(len(g.Values))]
	} else {
		v = g.Values[g.cursor]
		g.cursor = (g.cursor + 1) % len(g.Values)
	}
	if row, ok := v.(map[string]interface{}); ok {
		return row[g.Field]
	}
	return v
}

// References returns the reference generators of the set keyed by field.
func (s *Set) References() map[string]*Reference {
	out := make(map[string]*Reference)
	for field, gen := range s.gens {
		if ref, ok := gen.(*Reference); ok {
			out[field] = ref
		}
	}
	return out
}
