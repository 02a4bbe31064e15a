package predicate

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/Abraxas-365/chatflow/engine"
)

const (
	TypeRegistered = "cadastro"
	TypeValue      = "valor"

	LabelTrue  = "true"
	LabelFalse = "false"
)

// CRMPredicate evaluates condition nodes against the run variables first and
// the CRM record second.
type CRMPredicate struct {
	crm  engine.CRMGateway
	expr engine.ExpressionEvaluator
}

var _ engine.PredicateEvaluator = (*CRMPredicate)(nil)

// NewCRMPredicate: crm may be nil, conditions then only see run variables.
func NewCRMPredicate(crm engine.CRMGateway, expr engine.ExpressionEvaluator) *CRMPredicate {
	if expr == nil {
		expr = engine.NewCelEvaluator()
	}
	return &CRMPredicate{crm: crm, expr: expr}
}

func (p *CRMPredicate) Evaluate(ctx context.Context, cond engine.ConditionData, run *engine.RunContext) (string, error) {
	switch strings.ToLower(strings.TrimSpace(cond.ConditionType)) {
	case TypeRegistered:
		return p.registered(ctx, cond, run)
	case TypeValue:
		return p.value(ctx, cond, run)
	default:
		return "", engine.ErrMalformedPayload("conditionType",
			fmt.Errorf("unsupported condition type %q", cond.ConditionType))
	}
}

// registered is true when the field has a non-empty value.
func (p *CRMPredicate) registered(ctx context.Context, cond engine.ConditionData, run *engine.RunContext) (string, error) {
	if cond.Field == "" {
		return "", engine.ErrMissingField("field")
	}
	if present(run.Variables[cond.Field]) {
		return LabelTrue, nil
	}

	record, err := p.record(ctx, cond, run)
	if err != nil {
		return "", err
	}
	if record != nil && present(record[cond.Field]) {
		return LabelTrue, nil
	}
	return LabelFalse, nil
}

// value evaluates the comparison over the record fields overlaid with the run
// variables.
func (p *CRMPredicate) value(ctx context.Context, cond engine.ConditionData, run *engine.RunContext) (string, error) {
	if strings.TrimSpace(cond.Comparison) == "" {
		return "", engine.ErrMissingField("comparison")
	}

	record, err := p.record(ctx, cond, run)
	if err != nil {
		return "", err
	}

	scope := make(map[string]any, len(record)+len(run.Variables))
	for k, v := range record {
		scope[k] = v
	}
	for k, v := range run.TemplateScope() {
		scope[k] = v
	}

	ok, err := p.expr.Condition(ctx, cond.Comparison, scope)
	if err != nil {
		return "", engine.ErrMalformedPayload("comparison", err)
	}
	if ok {
		return LabelTrue, nil
	}
	return LabelFalse, nil
}

// record fetches the CRM record when an entity id is known, nil otherwise.
func (p *CRMPredicate) record(ctx context.Context, cond engine.ConditionData, run *engine.RunContext) (map[string]any, error) {
	if p.crm == nil {
		return nil, nil
	}

	entityID, err := p.expr.Interpolate(ctx, strings.TrimSpace(cond.EntityID), run.TemplateScope())
	if err != nil {
		return nil, engine.ErrMalformedPayload("entity_id", err)
	}
	if entityID == "" || strings.Contains(entityID, "{{") {
		entityID = run.GetString("crm_entity_id")
	}
	if entityID == "" {
		return nil, nil
	}

	entity := cond.Entity
	if entity == "" {
		entity = run.GetString("crm_entity")
	}
	if entity == "" {
		entity = engine.DefaultCRMEntity
	}

	record, err := p.crm.GetRecord(ctx, entity, entityID)
	if err != nil {
		log.Printf("❌ Condition lookup of %s %s failed: %v", entity, entityID, err)
		return nil, engine.ErrProvider("crm", err)
	}
	return record, nil
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case bool:
		return t
	default:
		return true
	}
}
