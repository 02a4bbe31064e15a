package flowexec

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
)

// Options configures a FlowEngine. Scheduler and Replies may be nil: a run
// that needs them then fails with SchedulingFailed.
type Options struct {
	Scheduler   engine.DelayScheduler
	Replies     engine.ReplyRegistry
	NodeTimeout time.Duration
}

// FlowEngine walks a flow graph node by node.
type FlowEngine struct {
	nodeExecutors map[engine.NodeType]engine.NodeExecutor
	scheduler     engine.DelayScheduler
	replies       engine.ReplyRegistry
	nodeTimeout   time.Duration
}

// NewFlowEngine registers the executors and fails unless every executable node
// type is covered by exactly one of them.
func NewFlowEngine(opts Options, nodeExecutors ...engine.NodeExecutor) (*FlowEngine, error) {
	e := &FlowEngine{
		nodeExecutors: make(map[engine.NodeType]engine.NodeExecutor),
		scheduler:     opts.Scheduler,
		replies:       opts.Replies,
		nodeTimeout:   opts.NodeTimeout,
	}

	for _, nodeType := range engine.ExecutableNodeTypes() {
		for _, exec := range nodeExecutors {
			if !exec.SupportsType(nodeType) {
				continue
			}
			if _, dup := e.nodeExecutors[nodeType]; dup {
				return nil, fmt.Errorf("node type %s has more than one executor", nodeType)
			}
			e.nodeExecutors[nodeType] = exec
		}
	}

	var missing []string
	for _, nodeType := range engine.ExecutableNodeTypes() {
		if _, ok := e.nodeExecutors[nodeType]; !ok {
			missing = append(missing, string(nodeType))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("no executor registered for node types: %s", strings.Join(missing, ", "))
	}

	return e, nil
}

// ============================================================================
// Execute - Main flow execution
// ============================================================================

// Execute runs graph from startNodeID (or the graph entry point when empty).
// It never returns an error: every failure ends up in the result.
func (e *FlowEngine) Execute(
	ctx context.Context,
	graph *engine.FlowGraph,
	startNodeID string,
	run *engine.RunContext,
) *engine.ExecutionResult {
	log.Printf("🚀 Starting flow %s for dialog %s (run %s)", graph.ID, run.DialogID, run.RunID)

	if startNodeID == "" {
		entry, err := graph.EntryPoint()
		if err != nil {
			return e.fail(run, "", engine.NewNodeError(engine.KindInvalidGraph, err))
		}
		startNodeID = entry
	}

	return e.walk(ctx, graph, startNodeID, run)
}

// Resume continues a run suspended by a delay.
func (e *FlowEngine) Resume(
	ctx context.Context,
	graph *engine.FlowGraph,
	cp *engine.RunCheckpoint,
) *engine.ExecutionResult {
	log.Printf("🔄 Resuming flow %s at node %s (checkpoint %s)", graph.ID, cp.NextNodeID, cp.ID)
	return e.walk(ctx, graph, cp.NextNodeID, cp.Restore())
}

// ResumeWithReply continues a run that was waiting on a question node.
func (e *FlowEngine) ResumeWithReply(
	ctx context.Context,
	graph *engine.FlowGraph,
	cp *engine.RunCheckpoint,
	reply string,
) *engine.ExecutionResult {
	run := cp.Restore()
	run.Set("reply", reply)
	if cp.WaitingNodeID != "" {
		run.Set(cp.WaitingNodeID, reply)
	}

	next := selectReplyBranch(graph, cp.WaitingNodeID, reply)
	log.Printf("💬 Reply for dialog %s routed from %s to %q", run.DialogID, cp.WaitingNodeID, next)

	return e.walk(ctx, graph, next, run)
}

func (e *FlowEngine) walk(
	ctx context.Context,
	graph *engine.FlowGraph,
	currentNodeID string,
	run *engine.RunContext,
) *engine.ExecutionResult {
	startTime := time.Now()
	lastNodeID := ""

	for {
		node, ok := graph.Node(currentNodeID)
		if currentNodeID == "" || !ok {
			break
		}

		if err := ctx.Err(); err != nil {
			log.Printf("⏹️  Run %s cancelled before node %s", run.RunID, currentNodeID)
			return e.fail(run, lastNodeID, engine.ErrRunCancelled(err))
		}

		if run.Visited(node.ID) {
			cycleErr := engine.ErrCycleDetected(node.ID)
			run.Append(failedEntry(node, cycleErr, time.Now(), 0))
			log.Printf("🔁 Cycle detected at node %s in flow %s", node.ID, graph.ID)
			return e.fail(run, node.ID, cycleErr)
		}
		run.MarkVisited(node.ID)
		lastNodeID = node.ID

		if node.Type == engine.NodeTypeEnd {
			run.Append(engine.LogEntry{
				NodeID:    node.ID,
				NodeType:  node.Type,
				Outcome:   engine.OutcomeSuccess,
				Timestamp: time.Now(),
			})
			break
		}

		nodeStart := time.Now()
		outcome, err := e.executeNode(ctx, *node, run)
		elapsed := time.Since(nodeStart).Milliseconds()

		if err != nil {
			log.Printf("❌ Node %s (%s) failed: %v", node.ID, node.Type, err)
			run.Append(failedEntry(node, err, nodeStart, elapsed))
			return e.fail(run, node.ID, err)
		}
		for k, v := range outcome.Output {
			run.Set(k, v)
		}

		switch {
		case outcome.Suspend != nil:
			return e.suspendForDelay(ctx, graph, node, outcome, run, nodeStart, elapsed)

		case node.Type == engine.NodeTypeQuestion && graph.HasBranches(node.ID):
			return e.suspendForReply(ctx, node, run, nodeStart, elapsed)
		}

		run.Append(engine.LogEntry{
			NodeID:     node.ID,
			NodeType:   node.Type,
			Outcome:    engine.OutcomeSuccess,
			Label:      outcome.Label,
			DurationMs: elapsed,
			Timestamp:  nodeStart,
		})

		if node.Type == engine.NodeTypeCondition {
			currentNodeID = graph.NextByHandle(node.ID, outcome.Label)
			if currentNodeID == "" {
				log.Printf("🛑 Condition %s returned %q with no matching branch", node.ID, outcome.Label)
			}
		} else {
			currentNodeID = graph.Next(node.ID)
		}
	}

	log.Printf("✅ Flow %s completed for dialog %s in %v", graph.ID, run.DialogID, time.Since(startTime))
	return e.result(run, engine.RunStatusCompleted, lastNodeID)
}

// ============================================================================
// Suspension
// ============================================================================

func (e *FlowEngine) suspendForDelay(
	ctx context.Context,
	graph *engine.FlowGraph,
	node *engine.Node,
	outcome *engine.NodeOutcome,
	run *engine.RunContext,
	nodeStart time.Time,
	elapsed int64,
) *engine.ExecutionResult {
	// An empty next node still suspends; the resume then completes the run.
	next := graph.Next(node.ID)

	if e.scheduler == nil {
		err := engine.ErrSchedulingFailed(fmt.Errorf("no delay scheduler configured"))
		run.Append(failedEntry(node, err, nodeStart, elapsed))
		return e.fail(run, node.ID, err)
	}

	run.Append(engine.LogEntry{
		NodeID: node.ID, NodeType: node.Type, Outcome: engine.OutcomeSuspended,
		DurationMs: elapsed, Timestamp: nodeStart,
	})

	cp := engine.NewCheckpoint(run, engine.SuspendForDelay)
	cp.NextNodeID = next
	cp.ResumeAt = time.Now().Add(outcome.Suspend.Delay)

	if err := e.scheduler.Schedule(ctx, cp, outcome.Suspend.Delay); err != nil {
		run.Log[len(run.Log)-1] = failedEntry(node, err, nodeStart, elapsed)
		return e.fail(run, node.ID, engine.ErrSchedulingFailed(err))
	}

	log.Printf("⏸️  Run %s suspended for %v, resumes at node %q", run.RunID, outcome.Suspend.Delay, next)
	res := e.result(run, engine.RunStatusSuspended, node.ID)
	res.Checkpoint = cp
	return res
}

func (e *FlowEngine) suspendForReply(
	ctx context.Context,
	node *engine.Node,
	run *engine.RunContext,
	nodeStart time.Time,
	elapsed int64,
) *engine.ExecutionResult {
	if e.replies == nil {
		err := engine.ErrSchedulingFailed(fmt.Errorf("no reply registry configured"))
		run.Append(failedEntry(node, err, nodeStart, elapsed))
		return e.fail(run, node.ID, err)
	}

	run.Append(engine.LogEntry{
		NodeID: node.ID, NodeType: node.Type, Outcome: engine.OutcomeSuspended,
		DurationMs: elapsed, Timestamp: nodeStart,
	})

	cp := engine.NewCheckpoint(run, engine.SuspendForReply)
	cp.WaitingNodeID = node.ID

	if err := e.replies.Await(ctx, cp); err != nil {
		run.Log[len(run.Log)-1] = failedEntry(node, err, nodeStart, elapsed)
		return e.fail(run, node.ID, engine.ErrSchedulingFailed(err))
	}

	log.Printf("⏸️  Run %s waiting for a reply from dialog %s", run.RunID, run.DialogID)
	res := e.result(run, engine.RunStatusSuspended, node.ID)
	res.Checkpoint = cp
	return res
}

// selectReplyBranch maps a reply onto the question's outgoing edges: the
// option-N handle whose option text (or 1-based number) matches, then a handle
// equal to the reply, then an unlabelled or "default" edge.
func selectReplyBranch(graph *engine.FlowGraph, questionID, reply string) string {
	node, ok := graph.Node(questionID)
	if !ok {
		return ""
	}
	answer := strings.TrimSpace(reply)

	if q, ok := node.Data.(engine.QuestionData); ok {
		for i, opt := range q.Options {
			if strings.EqualFold(opt, answer) || answer == strconv.Itoa(i+1) {
				if next := graph.NextByHandle(node.ID, fmt.Sprintf("option-%d", i)); next != "" {
					return next
				}
			}
		}
	}

	for _, e := range graph.Outgoing(node.ID) {
		if e.Handle != "" && strings.EqualFold(e.Handle, answer) {
			return e.Target
		}
	}
	for _, e := range graph.Outgoing(node.ID) {
		if e.Handle == "" || e.Handle == "default" {
			return e.Target
		}
	}
	return ""
}

// ============================================================================
// Internal Execution
// ============================================================================

func (e *FlowEngine) executeNode(
	ctx context.Context,
	node engine.Node,
	run *engine.RunContext,
) (outcome *engine.NodeOutcome, err error) {
	executor, ok := e.nodeExecutors[node.Type]
	if !ok {
		return nil, engine.ErrUnknownNodeType(node.Type)
	}

	log.Printf("⚡ Executing node: %s (type: %s)", node.ID, node.Type)

	// Interval nodes may block for their whole delay.
	if e.nodeTimeout > 0 && node.Type != engine.NodeTypeInterval {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.nodeTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("💥 Node %s panicked: %v", node.ID, r)
			outcome, err = nil, engine.ErrNodePanicked(r)
		}
	}()

	outcome, err = executor.Execute(ctx, node, run)
	if err == nil && outcome == nil {
		outcome = engine.Success()
	}
	return outcome, err
}

func (e *FlowEngine) fail(run *engine.RunContext, lastNodeID string, err error) *engine.ExecutionResult {
	res := e.result(run, engine.RunStatusFailed, lastNodeID)
	res.Error = err.Error()
	res.ErrorKind = engine.KindOf(err)
	return res
}

func (e *FlowEngine) result(run *engine.RunContext, status engine.RunStatus, lastNodeID string) *engine.ExecutionResult {
	return &engine.ExecutionResult{
		RunID:      run.RunID,
		FlowID:     run.FlowID,
		DialogID:   run.DialogID,
		Status:     status,
		Log:        run.Log,
		LastNodeID: lastNodeID,
		Variables:  run.Variables,
	}
}

func failedEntry(node *engine.Node, err error, at time.Time, elapsed int64) engine.LogEntry {
	return engine.LogEntry{
		NodeID:     node.ID,
		NodeType:   node.Type,
		Outcome:    engine.OutcomeFailed,
		Error:      err.Error(),
		ErrorKind:  engine.KindOf(err),
		DurationMs: elapsed,
		Timestamp:  at,
	}
}
