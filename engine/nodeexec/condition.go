package nodeexec

import (
	"context"
	"log"

	"github.com/Abraxas-365/chatflow/engine"
)

// ConditionExecutor delegates to a PredicateEvaluator and reports the branch
// label; the engine picks the matching edge.
type ConditionExecutor struct {
	predicate engine.PredicateEvaluator
}

var _ engine.NodeExecutor = (*ConditionExecutor)(nil)

func NewConditionExecutor(predicate engine.PredicateEvaluator) *ConditionExecutor {
	return &ConditionExecutor{predicate: predicate}
}

func (e *ConditionExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeCondition
}

func (e *ConditionExecutor) Execute(ctx context.Context, node engine.Node, run *engine.RunContext) (*engine.NodeOutcome, error) {
	data, ok := node.Data.(engine.ConditionData)
	if !ok {
		return nil, dataMismatch(node)
	}

	label, err := e.predicate.Evaluate(ctx, data, run)
	if err != nil {
		return nil, asNodeError(err, func(err error) *engine.NodeError {
			return engine.ErrProvider("predicate", err)
		})
	}

	log.Printf("🔀 Condition %s (%s) -> %s", node.ID, data.ConditionType, label)
	return engine.Labelled(label), nil
}
