// Package enginetest holds in-memory doubles of the engine ports for tests.
package enginetest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
)

type SentMessage struct {
	DialogID kernel.DialogID
	Text     string
}

type RecordUpdate struct {
	Entity string
	ID     string
	Fields map[string]any
}

type RecordCreate struct {
	Entity string
	Fields map[string]any
}

// Gateway records every call and returns canned CRM data.
type Gateway struct {
	mu sync.Mutex

	Sent    []SentMessage
	Updates []RecordUpdate
	Creates []RecordCreate
	Gets    int

	Records map[string]map[string]any // "lead:42" -> fields

	SendErr   error
	UpdateErr error
	CreateErr error
	GetErr    error

	nextID int
}

var _ engine.Gateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{Records: make(map[string]map[string]any), nextID: 100}
}

func (g *Gateway) SendMessage(ctx context.Context, dialogID kernel.DialogID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SendErr != nil {
		return g.SendErr
	}
	g.Sent = append(g.Sent, SentMessage{DialogID: dialogID, Text: text})
	return nil
}

func (g *Gateway) UpdateRecord(ctx context.Context, entity, id string, fields map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.UpdateErr != nil {
		return g.UpdateErr
	}
	g.Updates = append(g.Updates, RecordUpdate{Entity: entity, ID: id, Fields: fields})
	return nil
}

func (g *Gateway) CreateRecord(ctx context.Context, entity string, fields map[string]any) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	g.Creates = append(g.Creates, RecordCreate{Entity: entity, Fields: fields})
	g.nextID++
	return map[string]any{"result": float64(g.nextID)}, nil
}

func (g *Gateway) GetRecord(ctx context.Context, entity, id string) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Gets++
	if g.GetErr != nil {
		return nil, g.GetErr
	}
	rec, ok := g.Records[entity+":"+id]
	if !ok {
		return nil, fmt.Errorf("%s %s not found", entity, id)
	}
	return rec, nil
}

func (g *Gateway) Texts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.Sent))
	for i, m := range g.Sent {
		out[i] = m.Text
	}
	return out
}

// StaticPredicate always returns Label.
type StaticPredicate struct {
	Label string
	Err   error
	Calls int
}

func (p *StaticPredicate) Evaluate(ctx context.Context, cond engine.ConditionData, run *engine.RunContext) (string, error) {
	p.Calls++
	return p.Label, p.Err
}

// LanguageModel echoes the request or returns Err.
type LanguageModel struct {
	Content  string
	Err      error
	Requests []engine.LanguageModelRequest
}

func (m *LanguageModel) Reply(ctx context.Context, req engine.LanguageModelRequest) (*engine.LanguageModelResponse, error) {
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return &engine.LanguageModelResponse{Content: m.Content}, nil
}

// Scheduler keeps scheduled checkpoints in memory until Fire is called.
type Scheduler struct {
	mu        sync.Mutex
	Threshold time.Duration
	Scheduled []*engine.RunCheckpoint
	Delays    []time.Duration
	Err       error
	handler   engine.ContinuationHandler
}

var _ engine.DelayScheduler = (*Scheduler)(nil)

func (s *Scheduler) ShouldUseAsync(d time.Duration) bool { return d > s.Threshold }

func (s *Scheduler) Schedule(ctx context.Context, cp *engine.RunCheckpoint, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Scheduled = append(s.Scheduled, cp)
	s.Delays = append(s.Delays, delay)
	return nil
}

func (s *Scheduler) Cancel(ctx context.Context, id kernel.CheckpointID) error { return nil }
func (s *Scheduler) SetHandler(h engine.ContinuationHandler)                { s.handler = h }
func (s *Scheduler) StartWorker(ctx context.Context)                        {}
func (s *Scheduler) StopWorker()                                            {}

// Fire hands every scheduled checkpoint to the handler.
func (s *Scheduler) Fire(ctx context.Context) error {
	s.mu.Lock()
	due := s.Scheduled
	s.Scheduled = nil
	s.mu.Unlock()
	for _, cp := range due {
		if err := s.handler(ctx, cp); err != nil {
			return err
		}
	}
	return nil
}

// Replies is an in-memory ReplyRegistry.
type Replies struct {
	mu      sync.Mutex
	waiting map[kernel.DialogID]*engine.RunCheckpoint
}

func NewReplies() *Replies {
	return &Replies{waiting: make(map[kernel.DialogID]*engine.RunCheckpoint)}
}

func (r *Replies) Await(ctx context.Context, cp *engine.RunCheckpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting[cp.DialogID] = cp
	return nil
}

func (r *Replies) Take(ctx context.Context, dialogID kernel.DialogID) (*engine.RunCheckpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.waiting[dialogID]
	delete(r.waiting, dialogID)
	return cp, nil
}

// LinearMessages builds a linear graph of message nodes m1 -> m2 -> ... for tests.
func LinearMessages(texts ...string) *engine.FlowGraph {
	var nodes []engine.Node
	var edges []engine.Edge
	for i, text := range texts {
		id := "m" + strconv.Itoa(i+1)
		nodes = append(nodes, engine.Node{ID: id, Type: engine.NodeTypeMessage, Data: engine.MessageData{Content: text}})
		if i > 0 {
			edges = append(edges, engine.Edge{Source: "m" + strconv.Itoa(i), Target: id})
		}
	}
	return engine.NewFlowGraph("test", nodes, edges)
}
