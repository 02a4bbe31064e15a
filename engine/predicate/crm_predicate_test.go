package predicate

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredFromVariables(t *testing.T) {
	gw := enginetest.NewGateway()
	p := NewCRMPredicate(gw, nil)
	run := engine.NewRunContext("1", "chat", map[string]any{"EMAIL": "a@b.c"})

	label, err := p.Evaluate(context.Background(), engine.ConditionData{ConditionType: "cadastro", Field: "EMAIL"}, run)
	require.NoError(t, err)
	assert.Equal(t, LabelTrue, label)
	assert.Zero(t, gw.Gets)
}

func TestRegisteredFromCRM(t *testing.T) {
	gw := enginetest.NewGateway()
	gw.Records["lead:42"] = map[string]any{"EMAIL": "", "PHONE": []any{map[string]any{"VALUE": "+55"}}}
	p := NewCRMPredicate(gw, nil)
	run := engine.NewRunContext("1", "chat", map[string]any{"crm_entity_id": "42"})

	label, err := p.Evaluate(context.Background(), engine.ConditionData{ConditionType: "cadastro", Field: "PHONE"}, run)
	require.NoError(t, err)
	assert.Equal(t, LabelTrue, label)

	label, err = p.Evaluate(context.Background(), engine.ConditionData{ConditionType: "cadastro", Field: "EMAIL"}, run)
	require.NoError(t, err)
	assert.Equal(t, LabelFalse, label)
}

func TestRegisteredWithoutRecord(t *testing.T) {
	p := NewCRMPredicate(nil, nil)
	label, err := p.Evaluate(context.Background(), engine.ConditionData{ConditionType: "cadastro", Field: "EMAIL"}, engine.NewRunContext("1", "chat", nil))
	require.NoError(t, err)
	assert.Equal(t, LabelFalse, label)
}

func TestValueComparison(t *testing.T) {
	gw := enginetest.NewGateway()
	gw.Records["deal:7"] = map[string]any{"OPPORTUNITY": "1500.00", "STAGE_ID": "NEW"}
	p := NewCRMPredicate(gw, nil)
	run := engine.NewRunContext("1", "chat", nil)

	cond := engine.ConditionData{ConditionType: "valor", Entity: "deal", EntityID: "7", Comparison: "OPPORTUNITY > 1000"}
	label, err := p.Evaluate(context.Background(), cond, run)
	require.NoError(t, err)
	assert.Equal(t, LabelTrue, label)

	cond.Comparison = "STAGE_ID == 'WON'"
	label, err = p.Evaluate(context.Background(), cond, run)
	require.NoError(t, err)
	assert.Equal(t, LabelFalse, label)
}

func TestUnresolvedEntityIDFallsBackToRunRecord(t *testing.T) {
	gw := enginetest.NewGateway()
	gw.Records["lead:9"] = map[string]any{"EMAIL": "a@b.c"}
	p := NewCRMPredicate(gw, engine.NewCelEvaluator())
	run := engine.NewRunContext("1", "chat", map[string]any{"crm_entity_id": "9"})

	cond := engine.ConditionData{ConditionType: "cadastro", Field: "EMAIL", EntityID: "{{missing_id}}"}
	label, err := p.Evaluate(context.Background(), cond, run)
	require.NoError(t, err)
	assert.Equal(t, LabelTrue, label)
}

func TestValueComparisonVariablesWin(t *testing.T) {
	p := NewCRMPredicate(nil, nil)
	run := engine.NewRunContext("1", "chat", map[string]any{"score": 3})

	label, err := p.Evaluate(context.Background(), engine.ConditionData{ConditionType: "valor", Comparison: "score >= 3"}, run)
	require.NoError(t, err)
	assert.Equal(t, LabelTrue, label)
}

func TestPredicateErrors(t *testing.T) {
	gw := enginetest.NewGateway()
	gw.GetErr = errors.New("bitrix down")
	p := NewCRMPredicate(gw, nil)
	run := engine.NewRunContext("1", "chat", map[string]any{"crm_entity_id": "1"})

	tests := []struct {
		name string
		cond engine.ConditionData
		kind engine.ErrorKind
	}{
		{"unknown type", engine.ConditionData{ConditionType: "weather"}, engine.KindMalformedPayload},
		{"missing field", engine.ConditionData{ConditionType: "cadastro"}, engine.KindMissingField},
		{"missing comparison", engine.ConditionData{ConditionType: "valor"}, engine.KindMissingField},
		{"crm failure", engine.ConditionData{ConditionType: "cadastro", Field: "EMAIL"}, engine.KindProviderError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Evaluate(context.Background(), tt.cond, run)
			require.Error(t, err)
			assert.Equal(t, tt.kind, engine.KindOf(err))
		})
	}

	_, err := NewCRMPredicate(nil, nil).Evaluate(context.Background(),
		engine.ConditionData{ConditionType: "valor", Comparison: "'text'"}, run)
	assert.Equal(t, engine.KindMalformedPayload, engine.KindOf(err))
}
