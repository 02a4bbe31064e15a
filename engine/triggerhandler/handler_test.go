package triggerhandler

import (
	"context"
	"testing"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	flowID   kernel.FlowID
	dialogID kernel.DialogID
	vars     map[string]any
}

type fakeRunner struct {
	waiting  bool
	replies  []string
	executed []execCall
}

func (r *fakeRunner) ExecuteFlow(ctx context.Context, id kernel.FlowID, dialogID kernel.DialogID, vars map[string]any) (*engine.ExecutionResult, error) {
	r.executed = append(r.executed, execCall{id, dialogID, vars})
	return &engine.ExecutionResult{FlowID: id, Status: engine.RunStatusCompleted}, nil
}

func (r *fakeRunner) ResumeWithReply(ctx context.Context, dialogID kernel.DialogID, text string) (*engine.ExecutionResult, bool, error) {
	if !r.waiting {
		return nil, false, nil
	}
	r.replies = append(r.replies, text)
	return &engine.ExecutionResult{Status: engine.RunStatusCompleted}, true, nil
}

func TestMessageStartsConfiguredFlow(t *testing.T) {
	runner := &fakeRunner{}
	h := NewTriggerHandler(runner, Routes{MessageFlowID: "5"})

	res, err := h.Dispatch(context.Background(), &engine.RunTrigger{
		Kind: engine.TriggerInboundMessage, Event: "ONIMBOTMESSAGEADD", DialogID: "chat1", Message: "hi",
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, runner.executed, 1)
	call := runner.executed[0]
	assert.Equal(t, kernel.FlowID("5"), call.flowID)
	assert.Equal(t, kernel.DialogID("chat1"), call.dialogID)
	assert.Equal(t, "hi", call.vars["message"])
}

func TestMessageResumesWaitingRun(t *testing.T) {
	runner := &fakeRunner{waiting: true}
	h := NewTriggerHandler(runner, Routes{MessageFlowID: "5"})

	_, err := h.Dispatch(context.Background(), &engine.RunTrigger{Kind: engine.TriggerInboundMessage, DialogID: "chat1", Message: "2"})
	require.NoError(t, err)

	assert.Equal(t, []string{"2"}, runner.replies)
	assert.Empty(t, runner.executed)
}

func TestRecordUpdateStartsRecordFlow(t *testing.T) {
	runner := &fakeRunner{}
	h := NewTriggerHandler(runner, Routes{RecordFlowID: "8"})

	_, err := h.Dispatch(context.Background(), &engine.RunTrigger{
		Kind: engine.TriggerRecordUpdated, Entity: "deal", EntityID: "12",
		Fields: map[string]any{"STAGE_ID": "WON"},
	})
	require.NoError(t, err)

	require.Len(t, runner.executed, 1)
	vars := runner.executed[0].vars
	assert.Equal(t, "deal", vars["crm_entity"])
	assert.Equal(t, "12", vars["crm_entity_id"])
	assert.Equal(t, map[string]any{"STAGE_ID": "WON"}, vars["crm_fields"])
}

func TestUnroutedTriggersAreDropped(t *testing.T) {
	runner := &fakeRunner{}
	h := NewTriggerHandler(runner, Routes{})

	for _, trigger := range []*engine.RunTrigger{
		nil,
		{Kind: engine.TriggerInboundMessage, DialogID: "chat1"},
		{Kind: engine.TriggerRecordUpdated, Entity: "lead", EntityID: "1"},
		{Kind: "unknown"},
	} {
		res, err := h.Dispatch(context.Background(), trigger)
		require.NoError(t, err)
		assert.Nil(t, res)
	}
	assert.Empty(t, runner.executed)
}
