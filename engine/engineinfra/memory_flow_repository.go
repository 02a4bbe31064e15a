package engineinfra

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
)

// MemoryFlowRepository is a process local FlowRepository with sequential ids.
type MemoryFlowRepository struct {
	mu    sync.RWMutex
	flows map[kernel.FlowID][]byte
	seq   int64
}

var _ engine.FlowRepository = (*MemoryFlowRepository)(nil)

func NewMemoryFlowRepository() *MemoryFlowRepository {
	return &MemoryFlowRepository{flows: make(map[kernel.FlowID][]byte)}
}

func (r *MemoryFlowRepository) SaveFlow(ctx context.Context, doc []byte) (kernel.FlowID, error) {
	if !json.Valid(doc) {
		return "", engine.ErrInvalidFlow().WithDetail("reason", "document is not valid JSON")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := kernel.FlowID(strconv.FormatInt(r.seq, 10))
	r.flows[id] = append([]byte(nil), doc...)
	return id, nil
}

func (r *MemoryFlowRepository) GetFlow(ctx context.Context, id kernel.FlowID) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.flows[id]
	if !ok {
		return nil, engine.ErrFlowNotFound().WithDetail("flow_id", id.String())
	}
	return append([]byte(nil), doc...), nil
}
