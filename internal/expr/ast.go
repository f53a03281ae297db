package expr

import "fmt"

type node interface {
	eval(e *env) (Value, error)
}

type literalNode struct{ val Value }

func (n *literalNode) eval(*env) (Value, error) { return n.val, nil }

type identNode struct{ name string }

func (n *identNode) eval(e *env) (Value, error) {
	v, ok := e.vars[n.name]
	if !ok {
		return nil, fmt.Errorf("undefined name %q", n.name)
	}
	return v, nil
}

type attrNode struct {
	receiver node
	name     string
}

func (n *attrNode) eval(e *env) (Value, error) {
	recv, err := n.receiver.eval(e)
	if err != nil {
		return nil, err
	}
	m, ok := recv.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("attribute access %q on non-object value", n.name)
	}
	v, ok := m[n.name]
	if !ok {
		return nil, nil // missing attribute reads as None, matching attribute-style .get semantics
	}
	return v, nil
}

type indexNode struct {
	receiver node
	index    node
}

func (n *indexNode) eval(e *env) (Value, error) {
	recv, err := n.receiver.eval(e)
	if err != nil {
		return nil, err
	}
	idx, err := n.index.eval(e)
	if err != nil {
		return nil, err
	}
	switch coll := recv.(type) {
	case []interface{}:
		i, ok := idx.(float64)
		if !ok {
			return nil, fmt.Errorf("list index must be a number")
		}
		ii := int(i)
		if ii < 0 || ii >= len(coll) {
			return nil, fmt.Errorf("list index %d out of range", ii)
		}
		return coll[ii], nil
	case map[string]interface{}:
		key, ok := idx.(string)
		if !ok {
			return nil, fmt.Errorf("map index must be a string")
		}
		return coll[key], nil
	default:
		return nil, fmt.Errorf("indexing not supported on this value")
	}
}

// callNode supports only the one allowed method: `.get(key[, default])`,
// mirroring dict.get semantics. Any other method name is a sandbox
// violation and is rejected.
type callNode struct {
	receiver node
	method   string
	args     []node
}

func (n *callNode) eval(e *env) (Value, error) {
	if n.method != "get" {
		return nil, fmt.Errorf("method %q is not permitted in a sandboxed expression", n.method)
	}
	if len(n.args) < 1 || len(n.args) > 2 {
		return nil, fmt.Errorf("get() takes 1 or 2 arguments")
	}
	recv, err := n.receiver.eval(e)
	if err != nil {
		return nil, err
	}
	m, ok := recv.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("get() called on non-object value")
	}
	keyVal, err := n.args[0].eval(e)
	if err != nil {
		return nil, err
	}
	key, ok := keyVal.(string)
	if !ok {
		return nil, fmt.Errorf("get() key must be a string")
	}
	if v, ok := m[key]; ok {
		return v, nil
	}
	if len(n.args) == 2 {
		return n.args[1].eval(e)
	}
	return nil, nil
}

type notNode struct{ operand node }

func (n *notNode) eval(e *env) (Value, error) {
	v, err := n.operand.eval(e)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

type boolOpNode struct {
	op          string // "and" | "or"
	left, right node
}

func (n *boolOpNode) eval(e *env) (Value, error) {
	l, err := n.left.eval(e)
	if err != nil {
		return nil, err
	}
	if n.op == "and" {
		if !truthy(l) {
			return l, nil
		}
		return n.right.eval(e)
	}
	if truthy(l) {
		return l, nil
	}
	return n.right.eval(e)
}

type isNode struct {
	left, right node
	negate      bool
}

func (n *isNode) eval(e *env) (Value, error) {
	l, err := n.left.eval(e)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(e)
	if err != nil {
		return nil, err
	}
	eq := l == nil && r == nil
	if !eq {
		eq = equalValues(l, r)
	}
	if n.negate {
		return !eq, nil
	}
	return eq, nil
}

type inNode struct {
	needle, haystack node
}

func (n *inNode) eval(e *env) (Value, error) {
	needle, err := n.needle.eval(e)
	if err != nil {
		return nil, err
	}
	haystack, err := n.haystack.eval(e)
	if err != nil {
		return nil, err
	}
	switch coll := haystack.(type) {
	case []interface{}:
		for _, item := range coll {
			if equalValues(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case map[string]interface{}:
		key, ok := needle.(string)
		if !ok {
			return false, nil
		}
		_, found := coll[key]
		return found, nil
	case string:
		sub, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("'in' on a string requires a string operand")
		}
		return containsSubstring(coll, sub), nil
	default:
		return nil, fmt.Errorf("'in' not supported against this value")
	}
}

func containsSubstring(s, sub string) bool {
	return len(sub) == 0 || (len(s) >= len(sub) && indexOf(s, sub) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

type compareNode struct {
	op          string
	left, right node
}

func (n *compareNode) eval(e *env) (Value, error) {
	l, err := n.left.eval(e)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(e)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "==":
		return equalValues(l, r), nil
	case "!=":
		return !equalValues(l, r), nil
	}
	lf, lok := l.(float64)
	rf, rok := r.(float64)
	if lok && rok {
		switch n.op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	ls, lsok := l.(string)
	rs, rsok := r.(string)
	if lsok && rsok {
		switch n.op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return nil, fmt.Errorf("operator %q not supported between these value types", n.op)
}

func equalValues(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}
