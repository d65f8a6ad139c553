package expr

import (
	"fmt"
	"math"
	"strings"
)

// Eval parses and evaluates an expression against the given variables,
// returning the raw result.
func Eval(expression string, vars map[string]any) (any, error) {
	root, err := parse(expression)
	if err != nil {
		return nil, err
	}
	return evalNode(root, vars)
}

// EvalBool parses and evaluates an expression and coerces the result to a
// boolean using JSON-style truthiness: nil and zero values are false,
// everything else is true.
func EvalBool(expression string, vars map[string]any) (bool, error) {
	v, err := Eval(expression, vars)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// Lookup resolves a dotted path against a variable map. Missing segments
// resolve to nil rather than an error, so conditions over absent variables
// simply evaluate falsy.
func Lookup(path string, vars map[string]any) any {
	segments := strings.Split(path, ".")
	var current any = vars
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return current
}

func evalNode(n node, vars map[string]any) (any, error) {
	switch n := n.(type) {
	case *literalNode:
		return n.value, nil

	case *variableNode:
		return Lookup(n.path, vars), nil

	case *unaryNode:
		v, err := evalNode(n.operand, vars)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case "!":
			return !truthy(v), nil
		case "-":
			f, ok := toNumber(v)
			if !ok {
				return nil, fmt.Errorf("cannot negate %T", v)
			}
			return -f, nil
		}
		return nil, fmt.Errorf("unknown unary operator %q", n.op)

	case *binaryNode:
		// Short-circuit the boolean operators.
		switch n.op {
		case "&&":
			l, err := evalNode(n.left, vars)
			if err != nil {
				return nil, err
			}
			if !truthy(l) {
				return false, nil
			}
			r, err := evalNode(n.right, vars)
			if err != nil {
				return nil, err
			}
			return truthy(r), nil
		case "||":
			l, err := evalNode(n.left, vars)
			if err != nil {
				return nil, err
			}
			if truthy(l) {
				return true, nil
			}
			r, err := evalNode(n.right, vars)
			if err != nil {
				return nil, err
			}
			return truthy(r), nil
		}

		l, err := evalNode(n.left, vars)
		if err != nil {
			return nil, err
		}
		r, err := evalNode(n.right, vars)
		if err != nil {
			return nil, err
		}
		return evalBinary(n.op, l, r)
	}
	return nil, fmt.Errorf("unknown node type %T", n)
}

func evalBinary(op string, l, r any) (any, error) {
	switch op {
	case "==":
		return looseEqual(l, r), nil
	case "!=":
		return !looseEqual(l, r), nil
	}

	// String comparison and concatenation.
	if ls, lok := l.(string); lok {
		if rs, rok := r.(string); rok {
			switch op {
			case "+":
				return ls + rs, nil
			case "<":
				return ls < rs, nil
			case "<=":
				return ls <= rs, nil
			case ">":
				return ls > rs, nil
			case ">=":
				return ls >= rs, nil
			}
			return nil, fmt.Errorf("operator %q not defined for strings", op)
		}
	}

	lf, lok := toNumber(l)
	rf, rok := toNumber(r)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %q needs numeric operands, got %T and %T", op, l, r)
	}

	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Mod(lf, rf), nil
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

// looseEqual compares values with numeric coercion, so 1 == 1.0 and an int
// variable compares equal to a literal written without a decimal point.
func looseEqual(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	if lf, lok := toNumber(l); lok {
		if rf, rok := toNumber(r); rok {
			return lf == rf
		}
		return false
	}
	return l == r
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	default:
		return true
	}
}
