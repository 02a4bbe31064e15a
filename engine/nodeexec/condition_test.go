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

func TestConditionExecutorReturnsLabel(t *testing.T) {
	pred := &enginetest.StaticPredicate{Label: "false"}
	exec := NewConditionExecutor(pred)

	out, err := exec.Execute(context.Background(),
		node("c", engine.ConditionData{ConditionType: "cadastro", Field: "EMAIL"}), newRun(nil))
	require.NoError(t, err)
	assert.Equal(t, "false", out.Label)
	assert.Equal(t, 1, pred.Calls)
}

func TestConditionExecutorErrors(t *testing.T) {
	exec := NewConditionExecutor(&enginetest.StaticPredicate{Err: errors.New("crm down")})
	_, err := exec.Execute(context.Background(), node("c", engine.ConditionData{ConditionType: "valor"}), newRun(nil))
	assert.Equal(t, engine.KindProviderError, engine.KindOf(err))

	exec = NewConditionExecutor(&enginetest.StaticPredicate{Err: engine.ErrMissingField("field")})
	_, err = exec.Execute(context.Background(), node("c", engine.ConditionData{ConditionType: "cadastro"}), newRun(nil))
	assert.Equal(t, engine.KindMissingField, engine.KindOf(err))
}
