package rules

import (
	"fmt"
	"strings"
	"time"
)

const alnum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type String struct {
	Prefix    string
	Suffix    string
	MinLength int
	MaxLength int
	Charset   []rune
	Pattern   string
	Random    bool
	Nullable  bool
	Default   interface{}

	cursor int
	env    *Env
}

func newString(env *Env, p params) *String {
	g := &String{
		Prefix:    p.string("", "prefix"),
		Suffix:    p.string("", "suffix"),
		MinLength: int(p.int(5, "minLength")),
		MaxLength: int(p.int(10, "maxLength")),
		Charset:   []rune(p.string(alnum, "charset")),
		Pattern:   p.string("", "pattern"),
		Random:    p.bool(true, "random"),
		Nullable:  p.bool(true, "nullable"),
		env:       env,
	}
	if v, ok := p.value("defaultValue"); ok {
		g.Default = v
	}
	if len(g.Charset) == 0 {
		g.Charset = []rune(alnum)
	}
	if g.MinLength < 0 {
		g.MinLength = 0
	}
	if g.MaxLength < g.MinLength {
		g.MaxLength = g.MinLength
	}
	return g
}

func (g *String) Next() interface{} {
	if g.Default != nil {
		return g.Default
	}
	if g.Nullable && g.env.Rand.Float64() < g.env.NullRate {
		return nil
	}
	if g.Pattern != "" {
		return g.byPattern()
	}
	return g.byLength()
}

func (g *String) byPattern() string {
	if !IsTemplate(g.Pattern) {
		return g.Pattern
	}
	out, ok := expandTemplate(g.Pattern, g.env, g.MinLength, g.MaxLength)
	if !ok {
		return fallbackString()
	}
	return out
}

func (g *String) byLength() string {
	length := g.MinLength
	if g.MaxLength > g.MinLength {
		length += g.env.Rand.Intn(g.MaxLength - g.MinLength + 1)
	}

	var sb strings.Builder
	sb.WriteString(g.Prefix)
	for i := 0; i < length; i++ {
		if g.Random {
			sb.WriteRune(g.Charset[g.env.Rand.Intn(len(g.Charset))])
			continue
		}
		sb.WriteRune(g.Charset[g.cursor])
		g.cursor = (g.cursor + 1) % len(g.Charset)
	}
	sb.WriteString(g.Suffix)
	return sb.String()
}

// IsTemplate reports whether a pattern is expanded rather than emitted literally.
func IsTemplate(pattern string) bool {
	return strings.HasPrefix(pattern, "{") || strings.HasPrefix(pattern, "[") || strings.Contains(pattern, "${")
}

func fallbackString() string {
	return fmt.Sprintf("default_%d", time.Now().UnixMilli())
}
