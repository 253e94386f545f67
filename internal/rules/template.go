package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	enumToken   = regexp.MustCompile(`\$\{enum:([^}]+)\}`)
	randomToken = regexp.MustCompile(`\$\{random:(\d+)-(\d+)\}`)
	stringToken = regexp.MustCompile(`\$\{string:((?:[^{}]|\{[^{}]*\})+)\}`)
	fakerToken  = regexp.MustCompile(`\$\{([a-zA-Z]+)\}`)
	quotedValue = regexp.MustCompile(`"([^"]*)"`)
	lengthSpec  = regexp.MustCompile(`\{(\d+)(?:,(\d+))?\}`)
)

// expandTemplate fills every ${...} token. It reports false when a token is
// left that no expansion understands.
func expandTemplate(tmpl string, env *Env, minLen, maxLen int) (string, bool) {
	r := env.Rand

	out := enumToken.ReplaceAllStringFunc(tmpl, func(m string) string {
		options := strings.Split(enumToken.FindStringSubmatch(m)[1], "|")
		return options[r.Intn(len(options))]
	})

	out = randomToken.ReplaceAllStringFunc(out, func(m string) string {
		sub := randomToken.FindStringSubmatch(m)
		lo, err1 := strconv.ParseInt(sub[1], 10, 64)
		hi, err2 := strconv.ParseInt(sub[2], 10, 64)
		if err1 != nil || err2 != nil {
			return m
		}
		if hi < lo {
			lo, hi = hi, lo
		}
		return strconv.FormatInt(lo+r.Int63n(hi-lo+1), 10)
	})

	out = stringToken.ReplaceAllStringFunc(out, func(m string) string {
		return stringSpec(stringToken.FindStringSubmatch(m)[1], env, minLen, maxLen)
	})

	out = fakerToken.ReplaceAllStringFunc(out, func(m string) string {
		name := fakerToken.FindStringSubmatch(m)[1]
		if v, ok := fakeToken(name, env); ok {
			return v
		}
		return m
	})

	if strings.HasPrefix(tmpl, "{") || strings.HasPrefix(tmpl, "[") {
		out = quotedValue.ReplaceAllStringFunc(out, func(m string) string {
			return strings.ReplaceAll(m, "}", "")
		})
	}

	if strings.Contains(out, "${") {
		return out, false
	}
	return out, true
}

func stringSpec(spec string, env *Env, minLen, maxLen int) string {
	r := env.Rand
	switch {
	case strings.Contains(spec, "[a-zA-Z0-9]"):
		lo, hi := specLength(spec, 8, 16)
		return randomFrom(env, alnum, lo+r.Intn(hi-lo+1))
	case strings.HasPrefix(spec, "[a-z]"):
		lo, hi := specLength(spec, 8, 8)
		return randomFrom(env, "abcdefghijklmnopqrstuvwxyz", lo+r.Intn(hi-lo+1))
	case strings.HasPrefix(spec, "[A-Z]"):
		lo, hi := specLength(spec, 8, 8)
		return randomFrom(env, "ABCDEFGHIJKLMNOPQRSTUVWXYZ", lo+r.Intn(hi-lo+1))
	case strings.HasPrefix(spec, "[0-9]"):
		lo, hi := specLength(spec, 6, 6)
		return randomFrom(env, "0123456789", lo+r.Intn(hi-lo+1))
	case strings.HasPrefix(spec, "sku"):
		return fmt.Sprintf("sku%06d", r.Intn(1000000))
	case strings.HasPrefix(spec, "page"):
		return fmt.Sprintf("page%03d", r.Intn(1000))
	case strings.HasPrefix(spec, "act"):
		return fmt.Sprintf("act%03d", r.Intn(1000))
	case strings.HasPrefix(spec, "pos"):
		return fmt.Sprintf("pos%03d", r.Intn(1000))
	case strings.HasPrefix(spec, "ad"):
		return "ad" + randomFrom(env, alnum, 6)
	case strings.HasPrefix(spec, "err"):
		return "err" + randomFrom(env, alnum, 6)
	default:
		if maxLen < minLen {
			maxLen = minLen
		}
		return randomFrom(env, alnum, minLen+r.Intn(maxLen-minLen+1))
	}
}

func specLength(spec string, defLo, defHi int) (int, int) {
	m := lengthSpec.FindStringSubmatch(spec)
	if m == nil {
		return defLo, defHi
	}
	lo, err := strconv.Atoi(m[1])
	if err != nil {
		return defLo, defHi
	}
	hi := lo
	if m[2] != "" {
		if v, err := strconv.Atoi(m[2]); err == nil {
			hi = v
		}
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo, hi
}

func randomFrom(env *Env, charset string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = charset[env.Rand.Intn(len(charset))]
	}
	return string(b)
}

func fakeToken(name string, env *Env) (string, bool) {
	switch name {
	case "number":
		return strconv.Itoa(1 + env.Rand.Intn(99999)), true
	case "shortString":
		return randomFrom(env, alnum, 6), true
	case "mediumString":
		return randomFrom(env, alnum, 12), true
	case "longString":
		return randomFrom(env, alnum, 24), true
	case "text":
		return env.Faker().Sentence(8), true
	case "uuid":
		return env.Faker().UUID(), true
	case "name":
		return env.Faker().Name(), true
	case "email":
		return env.Faker().Email(), true
	case "phone":
		return env.Faker().Phone(), true
	case "city":
		return env.Faker().City(), true
	case "company":
		return env.Faker().Company(), true
	case "word":
		return env.Faker().Word(), true
	}
	return "", false
}
