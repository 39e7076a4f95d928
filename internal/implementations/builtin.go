package implementations

import (
	"time"

	"github.com/rendis/flowcheck/internal/expressions"
)

// RegisterBuiltins registers the in-process units behind every module of the
// built-in catalog.
func RegisterBuiltins(reg *Registry) error {
	ev := expressions.NewExprEngine()
	jq := expressions.NewGoJQEngine()
	cel, err := expressions.NewCELEngine("input")
	if err != nil {
		return err
	}

	units := []struct {
		category, module string
		fns              map[string]Func
	}{
		{"data", "json", jsonFunctions(jq)},
		{"data", "array", arrayFunctions(ev)},
		{"logic", "expression", expressionFunctions(ev)},
		{"logic", "condition", conditionFunctions(cel)},
		{"utilities", "crypto", cryptoFunctions()},
		{"utilities", "id", idFunctions()},
		{"utilities", "datetime", datetimeFunctions(time.Now)},
	}

	for _, u := range units {
		if err := reg.Register(u.category, u.module, Static(moduleKey(u.category, u.module), u.fns)); err != nil {
			return err
		}
	}
	return nil
}

// NewBuiltinRegistry returns a Registry holding only the built-in units.
func NewBuiltinRegistry() (*Registry, error) {
	reg := NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
