package expr

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Env carries everything an evaluation may read: the context record and the
// decision-scoped time that now() reports. Programs are stateless, so one
// Program may be evaluated concurrently under different Envs.
type Env struct {
	Vars map[string]any
	Now  time.Time
}

// Eval runs the program. Values follow the JSON model: nil, bool, float64,
// string, []any, map[string]any. A returned error is a runtime failure; the
// host counts the referring rule as false.
func (p *Program) Eval(env Env) (any, error) {
	return eval(p.root, env)
}

// EvalBool runs the program and coerces the result to a boolean with JSON
// truthiness. Errors coerce to false.
func (p *Program) EvalBool(env Env) bool {
	v, err := p.Eval(env)
	if err != nil {
		return false
	}
	return Truthy(v)
}

// Truthy applies JSON truthiness: false, null, 0, "", and the empty array
// are false; everything else, including the empty object, is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	}
	return true
}

func eval(n node, env Env) (any, error) {
	switch t := n.(type) {
	case *litNode:
		return t.val, nil

	case *identNode:
		return env.Vars[t.name], nil

	case *memberNode:
		obj, err := eval(t.x, env)
		if err != nil {
			return nil, err
		}
		m, ok := obj.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot read %q of %s", t.name, typeName(obj))
		}
		return m[t.name], nil

	case *indexNode:
		return evalIndex(t, env)

	case *unaryNode:
		x, err := eval(t.x, env)
		if err != nil {
			return nil, err
		}
		if t.op == tokBang {
			return !Truthy(x), nil
		}
		f, ok := x.(float64)
		if !ok {
			return nil, fmt.Errorf("cannot negate %s", typeName(x))
		}
		return -f, nil

	case *binaryNode:
		return evalBinary(t, env)

	case *callNode:
		return evalCall(t, env)

	case *pipeNode:
		return evalPipe(t, env)

	case *arrayNode:
		out := make([]any, len(t.elems))
		for i, elem := range t.elems {
			v, err := eval(elem, env)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown expression node")
}

func evalIndex(n *indexNode, env Env) (any, error) {
	obj, err := eval(n.x, env)
	if err != nil {
		return nil, err
	}
	key, err := eval(n.key, env)
	if err != nil {
		return nil, err
	}
	switch t := obj.(type) {
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("object index must be a string, not %s", typeName(key))
		}
		return t[k], nil
	case []any:
		f, ok := key.(float64)
		if !ok {
			return nil, fmt.Errorf("array index must be a number, not %s", typeName(key))
		}
		i := int(f)
		if float64(i) != f || i < 0 || i >= len(t) {
			return nil, nil
		}
		return t[i], nil
	}
	return nil, fmt.Errorf("cannot index %s", typeName(obj))
}

func evalBinary(n *binaryNode, env Env) (any, error) {
	// && and || short-circuit and return the deciding operand.
	if n.op == tokAnd || n.op == tokOr {
		left, err := eval(n.x, env)
		if err != nil {
			return nil, err
		}
		if n.op == tokAnd && !Truthy(left) {
			return left, nil
		}
		if n.op == tokOr && Truthy(left) {
			return left, nil
		}
		return eval(n.y, env)
	}

	left, err := eval(n.x, env)
	if err != nil {
		return nil, err
	}
	right, err := eval(n.y, env)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case tokEq:
		return equals(left, right), nil
	case tokNeq:
		return !equals(left, right), nil
	case tokLt, tokLte, tokGt, tokGte:
		return compare(n.op, left, right)
	case tokIn:
		return evalIn(left, right)
	case tokPlus:
		if ls, ok := left.(string); ok {
			rs, ok := right.(string)
			if !ok {
				return nil, fmt.Errorf("cannot add string and %s", typeName(right))
			}
			return ls + rs, nil
		}
		return arith(n.op, left, right)
	case tokMinus, tokStar, tokSlash, tokPercent:
		return arith(n.op, left, right)
	}
	return nil, fmt.Errorf("unknown operator")
}

// equals is strict: operands of different types are unequal, never coerced.
func equals(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equals(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, present := y[k]
			if !present || !equals(v, w) {
				return false
			}
		}
		return true
	}
	return false
}

func compare(op tokenKind, a, b any) (any, error) {
	if lf, ok := a.(float64); ok {
		rf, ok := b.(float64)
		if !ok {
			return nil, fmt.Errorf("cannot compare number with %s", typeName(b))
		}
		return applyOrder(op, lf < rf, lf == rf), nil
	}
	if ls, ok := a.(string); ok {
		rs, ok := b.(string)
		if !ok {
			return nil, fmt.Errorf("cannot compare string with %s", typeName(b))
		}
		return applyOrder(op, ls < rs, ls == rs), nil
	}
	return nil, fmt.Errorf("cannot order %s", typeName(a))
}

func applyOrder(op tokenKind, lt, eq bool) bool {
	switch op {
	case tokLt:
		return lt
	case tokLte:
		return lt || eq
	case tokGt:
		return !lt && !eq
	case tokGte:
		return !lt
	}
	return false
}

func evalIn(needle, haystack any) (any, error) {
	switch t := haystack.(type) {
	case []any:
		for _, elem := range t {
			if equals(needle, elem) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return nil, fmt.Errorf("left side of 'in' over a string must be a string, not %s", typeName(needle))
		}
		return strings.Contains(t, s), nil
	}
	return nil, fmt.Errorf("'in' needs an array or string, not %s", typeName(haystack))
}

func arith(op tokenKind, a, b any) (any, error) {
	lf, ok := a.(float64)
	if !ok {
		return nil, fmt.Errorf("arithmetic on %s", typeName(a))
	}
	rf, ok := b.(float64)
	if !ok {
		return nil, fmt.Errorf("arithmetic on %s", typeName(b))
	}
	switch op {
	case tokPlus:
		return lf + rf, nil
	case tokMinus:
		return lf - rf, nil
	case tokStar:
		return lf * rf, nil
	case tokSlash:
		return lf / rf, nil
	case tokPercent:
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("unknown arithmetic operator")
}

func evalCall(n *callNode, env Env) (any, error) {
	switch n.name {
	case "now":
		return float64(env.Now.UnixMilli()), nil
	case "ts":
		arg, err := eval(n.args[0], env)
		if err != nil {
			return nil, err
		}
		// Numbers pass through so ts() can wrap values that are already
		// epoch milliseconds.
		if f, ok := arg.(float64); ok {
			return f, nil
		}
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("ts expects a timestamp string, not %s", typeName(arg))
		}
		t, err := ParseTimestamp(s)
		if err != nil {
			return nil, err
		}
		return float64(t.UnixMilli()), nil
	}
	return nil, fmt.Errorf("unknown function %q", n.name)
}

func evalPipe(n *pipeNode, env Env) (any, error) {
	in, err := eval(n.x, env)
	if err != nil {
		return nil, err
	}
	s, ok := in.(string)
	if !ok {
		return nil, fmt.Errorf("cannot pipe %s into %s", typeName(in), n.name)
	}
	switch n.name {
	case "lower":
		return strings.ToLower(s), nil
	case "upper":
		return strings.ToUpper(s), nil
	case "split":
		sepVal, err := eval(n.args[0], env)
		if err != nil {
			return nil, err
		}
		sep, ok := sepVal.(string)
		if !ok {
			return nil, fmt.Errorf("split separator must be a string, not %s", typeName(sepVal))
		}
		parts := strings.Split(s, sep)
		out := make([]any, len(parts))
		for i, part := range parts {
			out[i] = part
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown transform %q", n.name)
}

// timestampLayouts are tried in order; dates without an offset are UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. Rollout step starts and ts()
// arguments share this single definition of "parseable".
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
