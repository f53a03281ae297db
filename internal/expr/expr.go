// Package expr implements a tiny sandboxed expression evaluator for the
// policy engine's custom condition policy. It accepts a fixed grammar —
// attribute access, `.get(...)`, comparisons, boolean connectives, `in`,
// and literal strings/numbers/None — over a read-only binding. There is no
// function call dispatch beyond `.get`, no imports, and no way for an
// expression to reach host state.
package expr

import (
	"fmt"
)

// Value is the dynamic value type expressions operate over: nil, bool,
// float64, string, []interface{}, or map[string]interface{}.
type Value = interface{}

// Binding is the read-only root object an expression evaluates against,
// e.g. {"model": {"name": ..., "tags": [...], "meta": {...}, "columns": [...]}}.
type Binding map[string]Value

// Eval parses and evaluates expr against binding. Any parse or evaluation
// error is returned rather than panicking; callers (the custom policy) turn
// evaluation errors into warning-severity violations.
func Eval(source string, binding Binding) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("expression evaluation panicked: %v", r)
		}
	}()

	toks, err := lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: toks}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("unexpected trailing input at token %d", p.pos)
	}
	env := &env{vars: map[string]Value(binding)}
	return node.eval(env)
}

// EvalBool is a convenience wrapper for conditions expected to produce a
// boolean: truthiness follows Python-like rules (nil, false, 0, "", empty
// collections are falsy).
func EvalBool(source string, binding Binding) (bool, error) {
	v, err := Eval(source, binding)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func truthy(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}

type env struct {
	vars map[string]Value
}
