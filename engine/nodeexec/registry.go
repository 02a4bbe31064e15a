package nodeexec

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
)

// Dependencies are the collaborators shared by the standard executors.
type Dependencies struct {
	Gateway      engine.Gateway
	Predicate    engine.PredicateEvaluator
	Model        engine.LanguageModel
	Media        engine.MediaResolver
	Expr         engine.ExpressionEvaluator
	HTTPClient   *http.Client
	Delay        engine.DelayPolicy
	APITimeout   time.Duration
	DefaultModel string
}

// NewExecutors returns one executor per executable node type.
func NewExecutors(d Dependencies) []engine.NodeExecutor {
	if d.Expr == nil {
		d.Expr = engine.NewCelEvaluator()
	}
	return []engine.NodeExecutor{
		NewMessageExecutor(d.Gateway, d.Expr),
		NewMediaExecutor(d.Gateway, d.Media, d.Expr),
		NewConditionExecutor(d.Predicate),
		NewAPIExecutor(d.HTTPClient, d.Expr, d.APITimeout),
		NewUpdateCRMExecutor(d.Gateway, d.Expr),
		NewCreateRecordExecutor(d.Gateway, d.Expr),
		NewIntervalExecutor(d.Delay),
		NewAIReplyExecutor(d.Model, d.Gateway, d.Expr, d.DefaultModel),
	}
}
