package nodeexec

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun(vars map[string]any) *engine.RunContext {
	return engine.NewRunContext("1", "chat123", vars)
}

func node(id string, data engine.NodeData) engine.Node {
	return engine.Node{ID: id, Type: data.NodeType(), Data: data}
}

func TestMessageExecutor(t *testing.T) {
	gw := enginetest.NewGateway()
	exec := NewMessageExecutor(gw, engine.NewCelEvaluator())

	_, err := exec.Execute(context.Background(), node("1", engine.MessageData{Content: "Hi {{name}}"}), newRun(map[string]any{"name": "Ana"}))
	require.NoError(t, err)

	require.Len(t, gw.Sent, 1)
	assert.Equal(t, "chat123", gw.Sent[0].DialogID.String())
	assert.Equal(t, "Hi Ana", gw.Sent[0].Text)
}

func TestMessageExecutorKeepsUnresolvedPlaceholders(t *testing.T) {
	gw := enginetest.NewGateway()
	exec := NewMessageExecutor(gw, engine.NewCelEvaluator())

	_, err := exec.Execute(context.Background(), node("1", engine.MessageData{Content: "Use code {{PROMO}} at checkout"}), newRun(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"Use code {{PROMO}} at checkout"}, gw.Texts())
}

func TestMessageExecutorFailures(t *testing.T) {
	tests := []struct {
		name string
		data engine.NodeData
		run  *engine.RunContext
		gw   func(*enginetest.Gateway)
		kind engine.ErrorKind
	}{
		{"empty content", engine.MessageData{}, newRun(nil), nil, engine.KindMissingField},
		{"no dialog", engine.MessageData{Content: "x"}, engine.NewRunContext("1", "", nil), nil, engine.KindMissingField},
		{"gateway down", engine.MessageData{Content: "x"}, newRun(nil), func(g *enginetest.Gateway) { g.SendErr = errors.New("timeout") }, engine.KindGatewayError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := enginetest.NewGateway()
			if tt.gw != nil {
				tt.gw(gw)
			}
			exec := NewMessageExecutor(gw, engine.NewCelEvaluator())
			_, err := exec.Execute(context.Background(), node("1", tt.data), tt.run)
			require.Error(t, err)
			assert.Equal(t, tt.kind, engine.KindOf(err))
		})
	}
}

func TestQuestionExecutor(t *testing.T) {
	gw := enginetest.NewGateway()
	exec := NewMessageExecutor(gw, nil)

	_, err := exec.Execute(context.Background(), node("q", engine.QuestionData{Question: "Pick one", Options: []string{"A", "B"}}), newRun(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"Pick one\n- A\n- B"}, gw.Texts())
	assert.Equal(t, "Just asking", FormatQuestion("Just asking", nil))
}

func TestConditionExecutor(t *testing.T) {
	pred := &enginetest.StaticPredicate{Label: "true"}
	exec := NewConditionExecutor(pred)

	out, err := exec.Execute(context.Background(), node("c", engine.ConditionData{ConditionType: "cadastro"}), newRun(nil))
	require.NoError(t, err)
	assert.Equal(t, "true", out.Label)

	pred.Err = errors.New("crm down")
	_, err = exec.Execute(context.Background(), node("c", engine.ConditionData{}), newRun(nil))
	assert.Equal(t, engine.KindProviderError, engine.KindOf(err))

	pred.Err = engine.ErrMalformedPayload("comparison", nil)
	_, err = exec.Execute(context.Background(), node("c", engine.ConditionData{}), newRun(nil))
	assert.Equal(t, engine.KindMalformedPayload, engine.KindOf(err))
}

func TestDataMismatch(t *testing.T) {
	exec := NewMediaExecutor(nil, nil, nil)
	_, err := exec.Execute(context.Background(), engine.Node{ID: "x", Type: engine.NodeTypeMedia, Data: engine.MessageData{}}, newRun(nil))
	assert.Equal(t, engine.KindMalformedPayload, engine.KindOf(err))
}
