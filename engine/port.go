package engine

import (
	"context"
	"time"

	"github.com/Abraxas-365/chatflow/pkg/kernel"
)

// ============================================================================
// Storage
// ============================================================================

// FlowRepository stores flow documents as opaque JSON.
type FlowRepository interface {
	SaveFlow(ctx context.Context, doc []byte) (kernel.FlowID, error)
	GetFlow(ctx context.Context, id kernel.FlowID) ([]byte, error)
}

// ============================================================================
// Gateway Adapter
// ============================================================================

// Messenger delivers text to a dialog on the messaging platform.
type Messenger interface {
	SendMessage(ctx context.Context, dialogID kernel.DialogID, text string) error
}

// CRMGateway reads and writes CRM records. Entity is "lead", "deal",
// "contact", ...
type CRMGateway interface {
	UpdateRecord(ctx context.Context, entity, id string, fields map[string]any) error
	CreateRecord(ctx context.Context, entity string, fields map[string]any) (map[string]any, error)
	GetRecord(ctx context.Context, entity, id string) (map[string]any, error)
}

// Gateway is the full external adapter the executors talk to.
type Gateway interface {
	Messenger
	CRMGateway
}

// ============================================================================
// Node execution
// ============================================================================

// NodeExecutor runs one node type. Errors should be *NodeError so the run log
// carries a failure kind.
type NodeExecutor interface {
	Execute(ctx context.Context, node Node, run *RunContext) (*NodeOutcome, error)
	SupportsType(nodeType NodeType) bool
}

// PredicateEvaluator decides which branch a condition node takes. It returns
// the edge handle to follow ("true"/"false" for CRM predicates).
type PredicateEvaluator interface {
	Evaluate(ctx context.Context, cond ConditionData, run *RunContext) (string, error)
}

type LanguageModelRequest struct {
	APIKey       string
	Model        string
	Instructions string
	UserMessage  string
}

type LanguageModelResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// LanguageModel generates AI replies.
type LanguageModel interface {
	Reply(ctx context.Context, req LanguageModelRequest) (*LanguageModelResponse, error)
}

// MediaResolver turns stored media references into URLs the chat client can open.
type MediaResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// ============================================================================
// Suspension
// ============================================================================

// ContinuationHandler resumes a checkpoint once its delay has elapsed.
type ContinuationHandler func(ctx context.Context, cp *RunCheckpoint) error

// DelayPolicy decides whether a delay blocks the run or suspends it.
type DelayPolicy interface {
	ShouldUseAsync(d time.Duration) bool
}

// DelayScheduler persists checkpoints and hands them back when due.
type DelayScheduler interface {
	DelayPolicy
	Schedule(ctx context.Context, cp *RunCheckpoint, delay time.Duration) error
	Cancel(ctx context.Context, id kernel.CheckpointID) error
	SetHandler(handler ContinuationHandler)
	StartWorker(ctx context.Context)
	StopWorker()
}

// ReplyRegistry parks runs waiting for a dialog's next message. At most one
// run waits per dialog; Await replaces an older one.
type ReplyRegistry interface {
	Await(ctx context.Context, cp *RunCheckpoint) error
	// Take removes and returns the waiting checkpoint, nil when none.
	Take(ctx context.Context, dialogID kernel.DialogID) (*RunCheckpoint, error)
}
