package rules

import (
	"strings"
	"time"
)

const defaultDateStep = 86400000 * time.Millisecond

// javaLayout converts yyyy-MM-dd HH:mm:ss style patterns to Go layouts.
var javaLayout = strings.NewReplacer(
	"yyyy", "2006",
	"yy", "06",
	"MM", "01",
	"dd", "02",
	"HH", "15",
	"hh", "03",
	"mm", "04",
	"ss", "05",
	"SSS", "000",
	"'T'", "T",
)

var boundLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"15:04:05",
}

func GoLayout(format string) string {
	if format == "" {
		return ""
	}
	return javaLayout.Replace(format)
}

type Date struct {
	Kind     string // date, datetime, time
	Start    time.Time
	End      time.Time
	Layout   string
	Random   bool
	Step     time.Duration
	Nullable bool
	Default  interface{}

	bounded bool
	cursor  int64
	env     *Env
}

func newDate(env *Env, p params) *Date {
	kind := strings.ToLower(p.string("", "kind", "dateType"))
	if kind == "" {
		switch t := strings.ToLower(p.string("", "type")); t {
		case "date", "datetime", "time":
			kind = t
		}
	}
	if kind == "" {
		kind = "datetime"
	}

	g := &Date{
		Kind:     kind,
		Layout:   GoLayout(p.string("", "format")),
		Random:   p.bool(true, "random"),
		Step:     time.Duration(p.int(int64(defaultDateStep/time.Millisecond), "step")) * time.Millisecond,
		Nullable: p.bool(true, "nullable"),
		env:      env,
	}
	if v, ok := p.value("defaultValue"); ok {
		g.Default = v
	}
	if g.Step <= 0 {
		g.Step = defaultDateStep
	}

	start, okStart := g.parse(p.string("", "startDate", "start"))
	end, okEnd := g.parse(p.string("", "endDate", "end"))
	if okStart && okEnd {
		if end.Before(start) {
			start, end = end, start
		}
		g.Start, g.End, g.bounded = start, end, true
	}
	return g
}

func (g *Date) parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if g.Layout != "" {
		if t, err := time.ParseInLocation(g.Layout, s, time.Local); err == nil {
			return t, true
		}
	}
	for _, layout := range boundLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (g *Date) Next() interface{} {
	if g.Default != nil {
		return g.Default
	}
	if g.Nullable && g.env.Rand.Float64() < g.env.NullRate {
		return nil
	}
	if !g.bounded {
		return g.format(time.Now())
	}

	span := g.End.Sub(g.Start)
	var t time.Time
	if g.Random {
		if span <= 0 {
			t = g.Start
		} else {
			t = g.Start.Add(time.Duration(g.env.Rand.Int63n(int64(span))))
		}
	} else {
		t = g.Start.Add(time.Duration(g.cursor) * g.Step)
		if t.After(g.End) {
			t = g.Start
			g.cursor = 0
		}
		g.cursor++
	}
	return g.format(t)
}

func (g *Date) format(t time.Time) interface{} {
	if g.Layout != "" {
		return t.Format(g.Layout)
	}
	switch g.Kind {
	case "date":
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	case "time":
		return t.Format("15:04:05")
	default:
		return t.Truncate(time.Second)
	}
}
