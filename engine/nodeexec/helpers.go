package nodeexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
)

var entityRegex = regexp.MustCompile(`^[a-z][a-z_]*$`)

// render interpolates {{ }} templates in s against the run variables.
func render(ctx context.Context, expr engine.ExpressionEvaluator, field, s string, run *engine.RunContext) (string, error) {
	if expr == nil || s == "" {
		return s, nil
	}
	out, err := expr.Interpolate(ctx, s, run.TemplateScope())
	if err != nil {
		return "", engine.ErrMalformedPayload(field, err)
	}
	return out, nil
}

// renderValue interpolates every string inside an already parsed JSON value.
func renderValue(ctx context.Context, expr engine.ExpressionEvaluator, field string, v any, run *engine.RunContext) (any, error) {
	if expr == nil || v == nil {
		return v, nil
	}
	out, err := expr.Evaluate(ctx, v, run.TemplateScope())
	if err != nil {
		return nil, engine.ErrMalformedPayload(field, err)
	}
	return out, nil
}

// parseJSONObject decodes a JSON-text field that must hold an object. Empty
// text yields a nil map.
func parseJSONObject(field, text string) (map[string]any, error) {
	if text == "" {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, engine.ErrMalformedPayload(field, err)
	}
	return obj, nil
}

func dataMismatch(node engine.Node) error {
	return engine.ErrMalformedPayload("data", fmt.Errorf("node %s of type %s carries %T", node.ID, node.Type, node.Data))
}

// asNodeError keeps NodeErrors raised by collaborators and classifies the rest.
func asNodeError(err error, fallback func(error) *engine.NodeError) error {
	var nodeErr *engine.NodeError
	if errors.As(err, &nodeErr) {
		return err
	}
	return fallback(err)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
