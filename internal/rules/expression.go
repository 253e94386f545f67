package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Expression derives a value from the other fields of the row.
type Expression struct {
	Source  string
	program *vm.Program
}

func newExpression(p params) (*Expression, error) {
	src := strings.TrimSpace(p.string("", "expression", "expr"))
	if src == "" {
		return nil, errors.New("expression rule requires expression")
	}
	program, err := expr.Compile(src, expressionOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}
	return &Expression{Source: src, program: program}, nil
}

func expressionOptions() []expr.Option {
	return []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.Function("NOW", func(params ...interface{}) (interface{}, error) {
			return time.Now().Format("2006-01-02 15:04:05"), nil
		}),
		expr.Function("TODAY", func(params ...interface{}) (interface{}, error) {
			return time.Now().Format("2006-01-02"), nil
		}),
		expr.Function("UPPER", func(params ...interface{}) (interface{}, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("UPPER requires 1 argument")
			}
			return strings.ToUpper(fmt.Sprint(params[0])), nil
		}),
		expr.Function("LOWER", func(params ...interface{}) (interface{}, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("LOWER requires 1 argument")
			}
			return strings.ToLower(fmt.Sprint(params[0])), nil
		}),
	}
}

// Eval returns nil when the expression fails at runtime.
func (g *Expression) Eval(row map[string]interface{}) interface{} {
	env := make(map[string]interface{}, len(row))
	for k, v := range row {
		env[k] = v
	}
	out, err := expr.Run(g.program, env)
	if err != nil {
		return nil
	}
	return out
}
