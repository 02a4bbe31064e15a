package triggerhandler

import (
	"context"
	"log"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
)

// FlowRunner is the part of the flow service a trigger needs.
type FlowRunner interface {
	ExecuteFlow(ctx context.Context, id kernel.FlowID, dialogID kernel.DialogID, variables map[string]any) (*engine.ExecutionResult, error)
	ResumeWithReply(ctx context.Context, dialogID kernel.DialogID, text string) (*engine.ExecutionResult, bool, error)
}

// Routes names the flow each trigger kind starts. Empty ids disable the kind.
type Routes struct {
	MessageFlowID kernel.FlowID
	RecordFlowID  kernel.FlowID
}

// TriggerHandler starts or resumes runs for routed webhook events.
type TriggerHandler struct {
	runner FlowRunner
	routes Routes
}

func NewTriggerHandler(runner FlowRunner, routes Routes) *TriggerHandler {
	return &TriggerHandler{runner: runner, routes: routes}
}

// Dispatch handles one trigger. The result is nil when nothing ran.
func (h *TriggerHandler) Dispatch(ctx context.Context, trigger *engine.RunTrigger) (*engine.ExecutionResult, error) {
	if trigger == nil {
		return nil, nil
	}

	log.Printf("🔔 Handling trigger: kind=%s, event=%s, dialog=%s", trigger.Kind, trigger.Event, trigger.DialogID)

	switch trigger.Kind {
	case engine.TriggerInboundMessage:
		return h.handleMessage(ctx, trigger)
	case engine.TriggerRecordUpdated:
		return h.handleRecordUpdate(ctx, trigger)
	default:
		log.Printf("ℹ️  No handler for trigger kind: %s", trigger.Kind)
		return nil, nil
	}
}

// handleMessage answers a waiting question first and only starts the message
// flow when no run is waiting on the dialog.
func (h *TriggerHandler) handleMessage(ctx context.Context, trigger *engine.RunTrigger) (*engine.ExecutionResult, error) {
	res, resumed, err := h.runner.ResumeWithReply(ctx, trigger.DialogID, trigger.Message)
	if err != nil {
		return nil, err
	}
	if resumed {
		return res, nil
	}

	if h.routes.MessageFlowID.IsEmpty() {
		log.Printf("ℹ️  No message flow configured, dropping message from %s", trigger.DialogID)
		return nil, nil
	}

	return h.runner.ExecuteFlow(ctx, h.routes.MessageFlowID, trigger.DialogID, map[string]any{
		"message": trigger.Message,
		"event":   trigger.Event,
	})
}

func (h *TriggerHandler) handleRecordUpdate(ctx context.Context, trigger *engine.RunTrigger) (*engine.ExecutionResult, error) {
	if h.routes.RecordFlowID.IsEmpty() {
		log.Printf("ℹ️  No record flow configured, dropping %s %s", trigger.Entity, trigger.EntityID)
		return nil, nil
	}

	vars := map[string]any{
		"crm_entity":    trigger.Entity,
		"crm_entity_id": trigger.EntityID,
		"event":         trigger.Event,
	}
	if trigger.Fields != nil {
		vars["crm_fields"] = trigger.Fields
	}

	return h.runner.ExecuteFlow(ctx, h.routes.RecordFlowID, trigger.DialogID, vars)
}
