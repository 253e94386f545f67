package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Generator produces the next value for one field. Implementations keep
// their own cursor state and are not safe for concurrent use.
type Generator interface {
	Next() interface{}
}

// RowGenerator is evaluated after every plain field of the row is set.
type RowGenerator interface {
	Eval(row map[string]interface{}) interface{}
}

type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid template: %s", e.Message)
	}
	return fmt.Sprintf("invalid rule for field %q: %s", e.Field, e.Message)
}

func (e *ConfigError) Code() string {
	return "RULE_CONFIG"
}

// Rule is a normalised template node.
type Rule struct {
	Type   string
	Params map[string]interface{}
}

// Env is the per-set source of randomness and null probability.
type Env struct {
	Rand     *rand.Rand
	NullRate float64

	fake *gofakeit.Faker
}

// Faker returns a faker seeded from Rand, so faker tokens repeat with the seed.
func (e *Env) Faker() *gofakeit.Faker {
	if e.fake == nil {
		e.fake = gofakeit.New(e.Rand.Uint64())
	}
	return e.fake
}

type Option func(*Env)

func WithNullRate(rate float64) Option {
	return func(e *Env) { e.NullRate = rate }
}

func WithSeed(seed int64) Option {
	return func(e *Env) { e.Rand = rand.New(rand.NewSource(seed)) }
}

func WithRand(r *rand.Rand) Option {
	return func(e *Env) { e.Rand = r }
}

// Set is a compiled template: one generator per field, owned by a single run.
type Set struct {
	env     *Env
	rules   map[string]Rule
	gens    map[string]Generator
	derived map[string]RowGenerator
}

func NewSet(opts ...Option) *Set {
	env := &Env{NullRate: 0.1}
	for _, opt := range opts {
		opt(env)
	}
	if env.Rand == nil {
		env.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Set{
		env:     env,
		rules:   make(map[string]Rule),
		gens:    make(map[string]Generator),
		derived: make(map[string]RowGenerator),
	}
}

// Compile parses a JSON template object into a Set. An empty template
// compiles to an empty Set.
func Compile(template []byte, opts ...Option) (*Set, error) {
	trimmed := bytes.TrimSpace(template)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return NewSet(opts...), nil
	}

	var raw interface{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("template is not valid JSON: %v", err)}
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &ConfigError{Message: "template must be a JSON object"}
	}
	return CompileMap(obj, opts...)
}

func CompileMap(template map[string]interface{}, opts ...Option) (*Set, error) {
	set := NewSet(opts...)

	fields := make([]string, 0, len(template))
	for field := range template {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		rule, err := ParseNode(field, template[field])
		if err != nil {
			return nil, err
		}
		if err := set.AddRule(field, rule); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// ParseNode accepts {type, params:{...}} or the flat {type, ...params}.
func ParseNode(field string, node interface{}) (Rule, error) {
	obj, ok := node.(map[string]interface{})
	if !ok {
		return Rule{}, &ConfigError{Field: field, Message: "rule must be an object"}
	}
	typ, ok := obj["type"].(string)
	if !ok || strings.TrimSpace(typ) == "" {
		return Rule{}, &ConfigError{Field: field, Message: "rule is missing a type"}
	}

	if raw, present := obj["params"]; present && raw != nil {
		p, ok := raw.(map[string]interface{})
		if !ok {
			return Rule{}, &ConfigError{Field: field, Message: "params must be an object"}
		}
		return Rule{Type: strings.ToLower(strings.TrimSpace(typ)), Params: p}, nil
	}

	flat := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		if k == "type" || k == "params" {
			continue
		}
		flat[k] = v
	}
	return Rule{Type: strings.ToLower(strings.TrimSpace(typ)), Params: flat}, nil
}

// AddRule compiles rule and binds it to field, replacing any previous rule.
func (s *Set) AddRule(field string, rule Rule) error {
	p := params(rule.Params)
	if p == nil {
		p = params{}
	}

	var (
		gen     Generator
		derived RowGenerator
		err     error
	)
	switch rule.Type {
	case "sequence":
		gen = newSequence(p)
	case "random":
		gen = newRandom(s.env, p)
	case "enum":
		gen, err = newEnum(s.env, p)
	case "date":
		gen = newDate(s.env, p)
	case "string":
		gen = newString(s.env, p)
	case "reference":
		gen, err = newReference(s.env, p)
	case "fixed":
		gen, err = newFixed(p)
	case "expression":
		derived, err = newExpression(p)
	default:
		return &ConfigError{Field: field, Message: fmt.Sprintf("unsupported rule type %q", rule.Type)}
	}
	if err != nil {
		return &ConfigError{Field: field, Message: err.Error()}
	}

	delete(s.gens, field)
	delete(s.derived, field)
	s.rules[field] = rule
	if derived != nil {
		s.derived[field] = derived
	} else {
		s.gens[field] = gen
	}
	return nil
}

func (s *Set) Fields() []string {
	fields := make([]string, 0, len(s.rules))
	for field := range s.rules {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func (s *Set) Has(field string) bool {
	_, ok := s.rules[field]
	return ok
}

func (s *Set) Rule(field string) (Rule, bool) {
	r, ok := s.rules[field]
	return r, ok
}

func (s *Set) Get(field string) Generator {
	return s.gens[field]
}

func (s *Set) Len() int {
	return len(s.rules)
}

func (s *Set) Rand() *rand.Rand {
	return s.env.Rand
}

func (s *Set) NullRate() float64 {
	return s.env.NullRate
}

// Next draws one value for field. Expression fields see an empty row.
func (s *Set) Next(field string) interface{} {
	return s.NextFor(field, nil)
}

// NextFor draws one value for field, evaluating expressions against row.
func (s *Set) NextFor(field string, row map[string]interface{}) interface{} {
	if gen, ok := s.gens[field]; ok {
		return gen.Next()
	}
	if d, ok := s.derived[field]; ok {
		if row == nil {
			row = map[string]interface{}{}
		}
		return d.Eval(row)
	}
	return nil
}

// Row draws every field once. Expressions run last, in field order.
func (s *Set) Row() map[string]interface{} {
	row := make(map[string]interface{}, len(s.rules))
	fields := s.Fields()
	for _, field := range fields {
		if gen, ok := s.gens[field]; ok {
			row[field] = gen.Next()
		}
	}
	for _, field := range fields {
		if d, ok := s.derived[field]; ok {
			row[field] = d.Eval(row)
		}
	}
	return row
}

// Nullable reports whether the rule for field may produce null on its own.
func (s *Set) Nullable(field string) bool {
	switch g := s.gens[field].(type) {
	case *Random:
		return g.Nullable && g.Default == nil
	case *Enum:
		return g.Nullable && g.Default == nil
	case *Date:
		return g.Nullable && g.Default == nil
	case *String:
		return g.Nullable && g.Default == nil
	}
	return false
}
