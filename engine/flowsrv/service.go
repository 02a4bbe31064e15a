package flowsrv

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/engine/flowexec"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/patrickmn/go-cache"
)

const DefaultGraphCacheTTL = 10 * time.Minute

// FlowService stores flow documents and runs them.
type FlowService struct {
	repo      engine.FlowRepository
	validator *engine.FlowValidator
	engine    *flowexec.FlowEngine
	replies   engine.ReplyRegistry
	graphs    *cache.Cache
}

func NewFlowService(
	repo engine.FlowRepository,
	validator *engine.FlowValidator,
	flowEngine *flowexec.FlowEngine,
	replies engine.ReplyRegistry,
	cacheTTL time.Duration,
) *FlowService {
	if cacheTTL <= 0 {
		cacheTTL = DefaultGraphCacheTTL
	}
	return &FlowService{
		repo:      repo,
		validator: validator,
		engine:    flowEngine,
		replies:   replies,
		graphs:    cache.New(cacheTTL, 2*cacheTTL),
	}
}

// ============================================================================
// Storage
// ============================================================================

// SaveFlow validates doc and stores it unchanged.
func (s *FlowService) SaveFlow(ctx context.Context, doc []byte) (kernel.FlowID, error) {
	if len(strings.TrimSpace(string(doc))) == 0 {
		return "", engine.ErrEmptyFlow()
	}

	graph, err := s.validator.Validate(doc)
	if err != nil {
		return "", err
	}

	id, err := s.repo.SaveFlow(ctx, doc)
	if err != nil {
		return "", err
	}

	graph.ID = id
	s.graphs.SetDefault(id.String(), graph)

	log.Printf("💾 Saved flow %s (%d nodes, %d edges)", id, len(graph.Nodes), len(graph.Edges))
	return id, nil
}

func (s *FlowService) GetFlow(ctx context.Context, id kernel.FlowID) ([]byte, error) {
	return s.repo.GetFlow(ctx, id)
}

// LoadGraph returns the parsed graph of a stored flow. Saved flows never
// change, so parsed graphs are cached by id.
func (s *FlowService) LoadGraph(ctx context.Context, id kernel.FlowID) (*engine.FlowGraph, error) {
	if cached, ok := s.graphs.Get(id.String()); ok {
		return cached.(*engine.FlowGraph), nil
	}

	doc, err := s.repo.GetFlow(ctx, id)
	if err != nil {
		return nil, err
	}

	graph, err := engine.ParseFlowGraph(id, doc)
	if err != nil {
		return nil, errx.Wrap(err, "stored flow is unreadable", errx.TypeInternal).
			WithDetail("flow_id", id.String())
	}

	s.graphs.SetDefault(id.String(), graph)
	return graph, nil
}

// ============================================================================
// Runs
// ============================================================================

// ExecuteFlow starts a run at the flow entry point. The error is only set
// when the flow cannot be loaded; node failures are reported in the result.
func (s *FlowService) ExecuteFlow(
	ctx context.Context,
	id kernel.FlowID,
	dialogID kernel.DialogID,
	variables map[string]any,
) (*engine.ExecutionResult, error) {
	graph, err := s.LoadGraph(ctx, id)
	if err != nil {
		return nil, err
	}

	run := engine.NewRunContext(id, dialogID, variables)
	res := s.engine.Execute(ctx, graph, "", run)
	logResult(res)
	return res, nil
}

// ResumeContinuation is the delay scheduler callback.
func (s *FlowService) ResumeContinuation(ctx context.Context, cp *engine.RunCheckpoint) error {
	graph, err := s.LoadGraph(ctx, cp.FlowID)
	if err != nil {
		return err
	}

	res := s.engine.Resume(ctx, graph, cp)
	logResult(res)
	return nil
}

// ResumeWithReply hands text to the run waiting on dialogID. It reports false
// when no run was waiting.
func (s *FlowService) ResumeWithReply(
	ctx context.Context,
	dialogID kernel.DialogID,
	text string,
) (*engine.ExecutionResult, bool, error) {
	if s.replies == nil {
		return nil, false, nil
	}

	cp, err := s.replies.Take(ctx, dialogID)
	if err != nil || cp == nil {
		return nil, false, err
	}

	graph, err := s.LoadGraph(ctx, cp.FlowID)
	if err != nil {
		// Park the run again so the next reply can retry.
		if awaitErr := s.replies.Await(ctx, cp); awaitErr != nil {
			log.Printf("❌ Run %s for dialog %s lost: %v", cp.RunID, dialogID, awaitErr)
		}
		return nil, true, err
	}

	res := s.engine.ResumeWithReply(ctx, graph, cp, text)
	logResult(res)
	return res, true, nil
}

func logResult(res *engine.ExecutionResult) {
	switch res.Status {
	case engine.RunStatusFailed:
		log.Printf("❌ Run %s of flow %s failed at %s: %s", res.RunID, res.FlowID, res.LastNodeID, res.Error)
	case engine.RunStatusSuspended:
		log.Printf("⏸️  Run %s of flow %s suspended at %s", res.RunID, res.FlowID, res.LastNodeID)
	default:
		log.Printf("✅ Run %s of flow %s completed (%d nodes)", res.RunID, res.FlowID, len(res.Log))
	}
}
