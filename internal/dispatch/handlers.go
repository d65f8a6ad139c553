package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/avensk/floe/internal/expr"
	"github.com/avensk/floe/pkg/api"
)

// validationHandler applies a rule list to named fields in the step's
// variables. Failures are data, not errors: the flow continues and the
// outcome is reported in the output as {isValid, errors}.
//
// Config shape:
//
//	{"rules": [
//	    {"field": "email", "rule": "required"},
//	    {"field": "email", "rule": "email_format"},
//	    {"field": "name",  "rule": "min_length", "value": 3}
//	]}
func validationHandler(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
	rules, _ := sc.Config["rules"].([]any)
	var failures []string

	for _, raw := range rules {
		rule, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		field, _ := rule["field"].(string)
		kind, _ := rule["rule"].(string)
		value := sc.Variables[field]

		switch kind {
		case "required":
			if isEmpty(value) {
				failures = append(failures, field+" is required")
			}

		case "equals":
			if value != rule["value"] {
				failures = append(failures, fmt.Sprintf("%s must equal %v", field, rule["value"]))
			}

		case "min_length":
			min := intConfig(rule["value"])
			if s, ok := value.(string); !ok || len(s) < min {
				failures = append(failures, fmt.Sprintf("%s must be at least %d characters", field, min))
			}

		case "max_length":
			max := intConfig(rule["value"])
			if s, ok := value.(string); ok && len(s) > max {
				failures = append(failures, fmt.Sprintf("%s must be at most %d characters", field, max))
			}

		case "email_format":
			s, ok := value.(string)
			if !ok || !emailPattern.MatchString(s) {
				failures = append(failures, field+" must be a valid email address")
			}

		case "numeric":
			switch value.(type) {
			case int, int64, float64, float32:
			default:
				failures = append(failures, field+" must be numeric")
			}

		default:
			failures = append(failures, fmt.Sprintf("unknown validation rule %q for %s", kind, field))
		}
	}

	errs := make([]any, len(failures))
	for i, f := range failures {
		errs[i] = f
	}
	return map[string]any{
		"isValid": len(failures) == 0,
		"errors":  errs,
	}, nil
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// transformHandler builds an output object from the config mapping,
// substituting $name tokens with variable values. A mapping value that is
// exactly one token passes the variable through with its original type;
// tokens embedded in longer strings interpolate as text.
//
// Config shape:
//
//	{"mapping": {"greeting": "Hello $name", "score": "$result.score"}}
func transformHandler(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
	mapping, _ := sc.Config["mapping"].(map[string]any)
	out := make(map[string]any, len(mapping))

	for key, raw := range mapping {
		tmpl, ok := raw.(string)
		if !ok {
			out[key] = raw
			continue
		}
		out[key] = substitute(tmpl, sc.Variables)
	}
	return out, nil
}

var tokenPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_.]*)`)

func substitute(tmpl string, vars map[string]any) any {
	if m := tokenPattern.FindStringSubmatch(tmpl); m != nil && m[0] == tmpl {
		return expr.Lookup(m[1], vars)
	}
	return tokenPattern.ReplaceAllStringFunc(tmpl, func(tok string) string {
		v := expr.Lookup(strings.TrimPrefix(tok, "$"), vars)
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	})
}

// conditionHandler evaluates a boolean expression over the variables and
// returns one of two configured values under the "result" key.
//
// Config shape:
//
//	{"expression": "score >= 50", "ifTrue": "pass", "ifFalse": "fail"}
func conditionHandler(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
	expression, _ := sc.Config["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("condition node requires an expression")
	}

	matched, err := expr.EvalBool(expression, sc.Variables)
	if err != nil {
		return nil, err
	}

	result := sc.Config["ifFalse"]
	if matched {
		result = sc.Config["ifTrue"]
	}
	return map[string]any{
		"result":  result,
		"matched": matched,
	}, nil
}

// waitHandler delays for the configured duration, honoring context
// cancellation, and passes no new variables along.
//
// Config shape:
//
//	{"duration_ms": 200}
func waitHandler(ctx context.Context, sc *api.StepContext) (map[string]any, error) {
	ms := intConfig(sc.Config["duration_ms"])
	if ms <= 0 {
		return map[string]any{}, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return map[string]any{}, nil
	}
}

func intConfig(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}
