package nodeexec

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/Abraxas-365/chatflow/engine"
)

// UpdateCRMExecutor sets one field on an existing CRM record.
type UpdateCRMExecutor struct {
	crm  engine.CRMGateway
	expr engine.ExpressionEvaluator
}

var _ engine.NodeExecutor = (*UpdateCRMExecutor)(nil)

func NewUpdateCRMExecutor(crm engine.CRMGateway, expr engine.ExpressionEvaluator) *UpdateCRMExecutor {
	return &UpdateCRMExecutor{crm: crm, expr: expr}
}

func (e *UpdateCRMExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeUpdateCRM
}

func (e *UpdateCRMExecutor) Execute(ctx context.Context, node engine.Node, run *engine.RunContext) (*engine.NodeOutcome, error) {
	data, ok := node.Data.(engine.UpdateCRMData)
	if !ok {
		return nil, dataMismatch(node)
	}

	entity, err := crmEntity(data.Entity)
	if err != nil {
		return nil, err
	}

	entityID, err := render(ctx, e.expr, "entity_id", data.EntityID, run)
	if err != nil {
		return nil, err
	}
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, engine.ErrMissingEntityID(entity)
	}
	if _, err := strconv.ParseUint(entityID, 10, 64); err != nil {
		return nil, engine.ErrMalformedPayload("entity_id", fmt.Errorf("entity id %q is not numeric", entityID))
	}

	if data.Field == "" {
		return nil, engine.ErrMissingField("field")
	}
	value, err := render(ctx, e.expr, "value", data.Value, run)
	if err != nil {
		return nil, err
	}

	if err := e.crm.UpdateRecord(ctx, entity, entityID, map[string]any{data.Field: value}); err != nil {
		return nil, asNodeError(err, func(err error) *engine.NodeError {
			return engine.ErrProvider("crm", err)
		})
	}

	log.Printf("📝 Updated %s %s: %s", entity, entityID, data.Field)
	return engine.Success(), nil
}

// CreateRecordExecutor creates a CRM record from the node's JSON fields.
type CreateRecordExecutor struct {
	crm  engine.CRMGateway
	expr engine.ExpressionEvaluator
}

var _ engine.NodeExecutor = (*CreateRecordExecutor)(nil)

func NewCreateRecordExecutor(crm engine.CRMGateway, expr engine.ExpressionEvaluator) *CreateRecordExecutor {
	return &CreateRecordExecutor{crm: crm, expr: expr}
}

func (e *CreateRecordExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeCreateRecord
}

func (e *CreateRecordExecutor) Execute(ctx context.Context, node engine.Node, run *engine.RunContext) (*engine.NodeOutcome, error) {
	data, ok := node.Data.(engine.CreateRecordData)
	if !ok {
		return nil, dataMismatch(node)
	}

	entity, err := crmEntity(data.Entity)
	if err != nil {
		return nil, err
	}

	if data.Fields == "" {
		return nil, engine.ErrMalformedPayload("fields", fmt.Errorf("fields must be a JSON object"))
	}
	fields, err := parseJSONObject("fields", data.Fields)
	if err != nil {
		return nil, err
	}

	rendered, err := renderValue(ctx, e.expr, "fields", fields, run)
	if err != nil {
		return nil, err
	}
	fields, _ = rendered.(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}

	if data.Stage != "" {
		stageField := "STATUS_ID"
		if entity == "deal" {
			stageField = "STAGE_ID"
		}
		if _, set := fields[stageField]; !set {
			fields[stageField] = data.Stage
		}
	}

	resp, err := e.crm.CreateRecord(ctx, entity, fields)
	if err != nil {
		return nil, asNodeError(err, func(err error) *engine.NodeError {
			return engine.ErrProvider("crm", err)
		})
	}

	output := map[string]any{
		node.ID:      resp,
		"crm_entity": entity,
	}
	if id := engine.Stringify(resp["result"]); id != "" {
		output["crm_entity_id"] = id
	}

	log.Printf("🆕 Created %s record (node %s)", entity, node.ID)
	return &engine.NodeOutcome{Output: output}, nil
}

func crmEntity(entity string) (string, error) {
	entity = strings.ToLower(strings.TrimSpace(entity))
	if entity == "" {
		return engine.DefaultCRMEntity, nil
	}
	if !entityRegex.MatchString(entity) {
		return "", engine.ErrMalformedPayload("entity", fmt.Errorf("invalid CRM entity %q", entity))
	}
	return entity, nil
}
