package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
)

// ExpressionEvaluator resolves {{ expression }} templates and boolean
// comparisons against a run's variables.
type ExpressionEvaluator interface {
	// Evaluate recursively walks data (strings, maps, slices) and replaces
	// every {{ expression }} with its value from scope.
	Evaluate(ctx context.Context, data any, scope map[string]any) (any, error)

	// Interpolate is Evaluate for a single string that always yields text.
	Interpolate(ctx context.Context, template string, scope map[string]any) (string, error)

	// Condition evaluates expr as a CEL boolean.
	Condition(ctx context.Context, expr string, scope map[string]any) (bool, error)
}

// celEvaluator is an implementation of ExpressionEvaluator using CEL-Go.
type celEvaluator struct {
	expressionRegex *regexp.Regexp
}

func NewCelEvaluator() ExpressionEvaluator {
	return &celEvaluator{
		expressionRegex: regexp.MustCompile(`\{\{([^}]+)\}\}`),
	}
}

func (e *celEvaluator) Evaluate(ctx context.Context, data any, scope map[string]any) (any, error) {
	return e.evaluateRecursive(reflect.ValueOf(data), scope)
}

func (e *celEvaluator) Interpolate(ctx context.Context, template string, scope map[string]any) (string, error) {
	if !strings.Contains(template, "{{") {
		return template, nil
	}
	return e.replaceSegments(template, scope), nil
}

func (e *celEvaluator) Condition(ctx context.Context, expr string, scope map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if m := e.expressionRegex.FindStringSubmatch(expr); len(m) > 0 && m[0] == expr {
		expr = strings.TrimSpace(m[1])
	}
	if expr == "" {
		return false, fmt.Errorf("empty condition expression")
	}

	out, err := e.evaluateCEL(expr, coerceNumericStrings(scope))
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression '%s' returned %T, expected bool", expr, out)
	}
	return b, nil
}

func (e *celEvaluator) evaluateRecursive(val reflect.Value, scope map[string]any) (any, error) {
	if !val.IsValid() {
		return nil, nil
	}
	if val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return nil, nil
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.String:
		return e.evaluateString(val.String(), scope)

	case reflect.Map:
		newMap := make(map[string]any, val.Len())
		for _, key := range val.MapKeys() {
			evaluatedVal, err := e.evaluateRecursive(val.MapIndex(key), scope)
			if err != nil {
				return nil, err
			}
			newMap[fmt.Sprint(key.Interface())] = evaluatedVal
		}
		return newMap, nil

	case reflect.Slice:
		newSlice := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			evaluatedItem, err := e.evaluateRecursive(val.Index(i), scope)
			if err != nil {
				return nil, err
			}
			newSlice[i] = evaluatedItem
		}
		return newSlice, nil

	default:
		return val.Interface(), nil
	}
}

// evaluateString finds and evaluates all expressions in a single string.
// Only a string that is one whole expression can fail; embedded segments
// that do not resolve are left as written.
func (e *celEvaluator) evaluateString(s string, scope map[string]any) (any, error) {
	matches := e.expressionRegex.FindStringSubmatch(s)

	// A string that is only an expression keeps the value's type.
	if len(matches) > 0 && s == matches[0] {
		expr := strings.TrimSpace(matches[1])
		if value, found := getNestedValue(scope, expr); found {
			return value, nil
		}
		return e.evaluateCEL(expr, scope)
	}

	return e.replaceSegments(s, scope), nil
}

// replaceSegments substitutes every {{ }} segment that resolves.
func (e *celEvaluator) replaceSegments(s string, scope map[string]any) string {
	return e.expressionRegex.ReplaceAllStringFunc(s, func(match string) string {
		expr := strings.TrimSpace(e.expressionRegex.FindStringSubmatch(match)[1])

		if value, found := getNestedValue(scope, expr); found {
			return stringify(value)
		}

		evaluatedVal, err := e.evaluateCEL(expr, scope)
		if err != nil {
			return match
		}
		return stringify(evaluatedVal)
	})
}

// evaluateCEL compiles and runs a single CEL expression.
func (e *celEvaluator) evaluateCEL(expression string, scope map[string]any) (any, error) {
	envOptions := []cel.EnvOption{cel.CrossTypeNumericComparisons(true)}
	for key := range scope {
		if isIdentifier(key) {
			envOptions = append(envOptions, cel.Variable(key, cel.DynType))
		}
	}

	env, err := cel.NewEnv(envOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	parsed, issues := env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to parse expression '%s': %w", expression, issues.Err())
	}

	checked, issues := env.Check(parsed)
	if issues != nil && issues.Err() != nil {
		// Dynamic data: fall back to the unchecked AST.
		log.Printf("⚠️  CEL check warning for '%s': %v", expression, issues.Err())
		checked = parsed
	}

	prg, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for '%s': %w", expression, err)
	}

	out, _, err := prg.Eval(scope)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression '%s': %w", expression, err)
	}

	return e.convertToNative(out)
}

// convertToNative converts a CEL-Go `ref.Val` to a native Go type.
func (e *celEvaluator) convertToNative(val ref.Val) (any, error) {
	if val == nil || val.Value() == nil {
		return nil, nil
	}
	native, err := val.ConvertToNative(reflect.TypeOf(map[string]any{}))
	if err == nil {
		return native, nil
	}
	return val.Value(), nil
}

func getNestedValue(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := any(data)

	for _, part := range parts {
		switch v := current.(type) {
		case map[string]any:
			if val, ok := v[part]; ok {
				current = val
			} else {
				return nil, false
			}
		default:
			return nil, false
		}
	}

	return current, true
}

// coerceNumericStrings turns "150" into 150.0 so CRM values (always text)
// compare against numeric literals.
func coerceNumericStrings(scope map[string]any) map[string]any {
	out := make(map[string]any, len(scope))
	for k, v := range scope {
		if s, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				out[k] = f
				continue
			}
		}
		out[k] = v
	}
	return out
}

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func isIdentifier(s string) bool { return identifierRegex.MatchString(s) }

// stringify renders a value for message text: strings verbatim, composites as JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Stringify is exported for executors that write variables into messages.
func Stringify(v any) string { return stringify(v) }
