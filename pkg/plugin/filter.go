package plugin

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/neel-jay/claudeUIMCP/pkg/protocol"
)

// filter is a compiled manifest filter expression.
type filter struct {
	source  string
	program *vm.Program
}

// compileFilter compiles a manifest filter. An empty expression means
// match everything and returns nil.
func compileFilter(expression string) (*filter, error) {
	if expression == "" {
		return nil, nil
	}
	program, err := expr.Compile(expression,
		expr.Env(filterEnv(&protocol.Envelope{})),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: filter %q: %v", ErrInvalidManifest, expression, err)
	}
	return &filter{source: expression, program: program}, nil
}

// matches evaluates the filter against a message. Evaluation errors
// count as no match.
func (f *filter) matches(env *protocol.Envelope) bool {
	if f == nil {
		return true
	}
	out, err := expr.Run(f.program, filterEnv(env))
	if err != nil {
		return false
	}
	matched, _ := out.(bool)
	return matched
}

func filterEnv(env *protocol.Envelope) map[string]any {
	data := env.Data
	if data == nil {
		data = map[string]any{}
	}
	return map[string]any{
		"type":      env.Type,
		"namespace": env.Namespace(),
		"data":      data,
	}
}
