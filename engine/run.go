package engine

import (
	"time"

	"github.com/Abraxas-365/chatflow/pkg/kernel"
)

// ============================================================================
// Run state
// ============================================================================

type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusSuspended RunStatus = "suspended"
	RunStatusFailed    RunStatus = "failed"
)

type NodeOutcomeKind string

const (
	OutcomeSuccess   NodeOutcomeKind = "success"
	OutcomeFailed    NodeOutcomeKind = "failed"
	OutcomeSuspended NodeOutcomeKind = "suspended"
)

// LogEntry records one executed (or rejected) node.
type LogEntry struct {
	NodeID     string          `json:"node_id"`
	NodeType   NodeType        `json:"node_type,omitempty"`
	Outcome    NodeOutcomeKind `json:"outcome"`
	Label      string          `json:"label,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  ErrorKind       `json:"error_kind,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Timestamp  time.Time       `json:"timestamp"`
}

// RunContext is the mutable state of a single run. It is owned by exactly one
// engine invocation at a time.
type RunContext struct {
	RunID     kernel.RunID    `json:"run_id"`
	FlowID    kernel.FlowID   `json:"flow_id"`
	DialogID  kernel.DialogID `json:"dialog_id"`
	Variables map[string]any  `json:"variables"`
	Log       []LogEntry      `json:"execution_log"`

	visited map[string]bool
}

func NewRunContext(flowID kernel.FlowID, dialogID kernel.DialogID, variables map[string]any) *RunContext {
	vars := make(map[string]any, len(variables))
	for k, v := range variables {
		vars[k] = v
	}
	return &RunContext{
		RunID:     kernel.NewRunID(),
		FlowID:    flowID,
		DialogID:  dialogID,
		Variables: vars,
		Log:       []LogEntry{},
		visited:   make(map[string]bool),
	}
}

func (r *RunContext) Set(key string, value any) {
	r.Variables[key] = value
}

func (r *RunContext) Get(key string) (any, bool) {
	v, ok := r.Variables[key]
	return v, ok
}

// GetString returns the variable formatted as text, "" when absent.
func (r *RunContext) GetString(key string) string {
	v, ok := r.Variables[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return stringify(v)
}

// TemplateScope is what {{ }} expressions can see.
func (r *RunContext) TemplateScope() map[string]any {
	scope := make(map[string]any, len(r.Variables)+3)
	for k, v := range r.Variables {
		scope[k] = v
	}
	scope["dialog_id"] = r.DialogID.String()
	scope["flow_id"] = r.FlowID.String()
	scope["run_id"] = r.RunID.String()
	return scope
}

func (r *RunContext) MarkVisited(nodeID string) { r.visited[nodeID] = true }

func (r *RunContext) Visited(nodeID string) bool { return r.visited[nodeID] }

func (r *RunContext) VisitedNodes() []string {
	out := make([]string, 0, len(r.visited))
	for id := range r.visited {
		out = append(out, id)
	}
	return out
}

func (r *RunContext) Append(entry LogEntry) {
	r.Log = append(r.Log, entry)
}

// ============================================================================
// Executor outcome
// ============================================================================

type SuspendReason string

const (
	SuspendForDelay SuspendReason = "delay"
	SuspendForReply SuspendReason = "reply"
)

// Suspension asks the engine to park the run.
type Suspension struct {
	Reason SuspendReason
	Delay  time.Duration
}

// NodeOutcome is what an executor returns on success. Label selects the
// outgoing edge of branching nodes.
type NodeOutcome struct {
	Label   string
	Output  map[string]any
	Suspend *Suspension
}

func Success() *NodeOutcome { return &NodeOutcome{} }

func Labelled(label string) *NodeOutcome { return &NodeOutcome{Label: label} }

func SuspendFor(d time.Duration) *NodeOutcome {
	return &NodeOutcome{Suspend: &Suspension{Reason: SuspendForDelay, Delay: d}}
}

// ============================================================================
// Result & checkpoints
// ============================================================================

type ExecutionResult struct {
	RunID      kernel.RunID    `json:"run_id"`
	FlowID     kernel.FlowID   `json:"flow_id"`
	DialogID   kernel.DialogID `json:"dialog_id"`
	Status     RunStatus       `json:"status"`
	Log        []LogEntry      `json:"log"`
	LastNodeID string          `json:"last_node_id,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  ErrorKind       `json:"error_kind,omitempty"`
	Variables  map[string]any  `json:"variables,omitempty"`
	Checkpoint *RunCheckpoint  `json:"checkpoint,omitempty"`
}

func (r *ExecutionResult) Completed() bool { return r.Status == RunStatusCompleted }
func (r *ExecutionResult) Suspended() bool { return r.Status == RunStatusSuspended }
func (r *ExecutionResult) Failed() bool    { return r.Status == RunStatusFailed }

// RunCheckpoint is the persisted state of a suspended run.
type RunCheckpoint struct {
	ID            kernel.CheckpointID `json:"id"`
	RunID         kernel.RunID        `json:"run_id"`
	FlowID        kernel.FlowID       `json:"flow_id"`
	DialogID      kernel.DialogID     `json:"dialog_id"`
	Reason        SuspendReason       `json:"reason"`
	NextNodeID    string              `json:"next_node_id,omitempty"`
	WaitingNodeID string              `json:"waiting_node_id,omitempty"`
	Variables     map[string]any      `json:"variables"`
	Log           []LogEntry          `json:"log"`
	Visited       []string            `json:"visited"`
	ResumeAt      time.Time           `json:"resume_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewCheckpoint snapshots the run.
func NewCheckpoint(run *RunContext, reason SuspendReason) *RunCheckpoint {
	vars := make(map[string]any, len(run.Variables))
	for k, v := range run.Variables {
		vars[k] = v
	}
	log := make([]LogEntry, len(run.Log))
	copy(log, run.Log)

	return &RunCheckpoint{
		ID:        kernel.NewCheckpointID(),
		RunID:     run.RunID,
		FlowID:    run.FlowID,
		DialogID:  run.DialogID,
		Reason:    reason,
		Variables: vars,
		Log:       log,
		Visited:   run.VisitedNodes(),
		CreatedAt: time.Now(),
	}
}

// Restore rebuilds the run context a checkpoint was taken from.
func (c *RunCheckpoint) Restore() *RunContext {
	run := &RunContext{
		RunID:     c.RunID,
		FlowID:    c.FlowID,
		DialogID:  c.DialogID,
		Variables: make(map[string]any, len(c.Variables)),
		Log:       append([]LogEntry{}, c.Log...),
		visited:   make(map[string]bool, len(c.Visited)),
	}
	if run.RunID.IsEmpty() {
		run.RunID = kernel.NewRunID()
	}
	for k, v := range c.Variables {
		run.Variables[k] = v
	}
	for _, id := range c.Visited {
		run.visited[id] = true
	}
	return run
}

// ============================================================================
// Triggers
// ============================================================================

type TriggerKind string

const (
	TriggerInboundMessage TriggerKind = "inbound_message"
	TriggerRecordUpdated  TriggerKind = "record_updated"
)

// RunTrigger is what the webhook router extracts from an inbound event.
type RunTrigger struct {
	Kind     TriggerKind     `json:"kind"`
	Event    string          `json:"event"`
	DialogID kernel.DialogID `json:"dialog_id,omitempty"`
	Message  string          `json:"message,omitempty"`
	Entity   string          `json:"entity,omitempty"`
	EntityID string          `json:"entity_id,omitempty"`
	Fields   map[string]any  `json:"fields,omitempty"`
}
