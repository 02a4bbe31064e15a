package delayscheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
)

var _ engine.DelayScheduler = (*MemoryDelayScheduler)(nil)

// MemoryDelayScheduler resumes checkpoints with in-process timers. Scheduled
// runs are lost on restart.
type MemoryDelayScheduler struct {
	syncThreshold time.Duration

	mu      sync.Mutex
	handler engine.ContinuationHandler
	timers  map[kernel.CheckpointID]*time.Timer
	ctx     context.Context
	wg      sync.WaitGroup
}

func NewMemoryDelayScheduler(opts Options) *MemoryDelayScheduler {
	opts = opts.withDefaults()
	return &MemoryDelayScheduler{
		syncThreshold: opts.SyncThreshold,
		timers:        make(map[kernel.CheckpointID]*time.Timer),
		ctx:           context.Background(),
	}
}

func (m *MemoryDelayScheduler) ShouldUseAsync(d time.Duration) bool {
	return d > m.syncThreshold
}

func (m *MemoryDelayScheduler) SetHandler(handler engine.ContinuationHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

func (m *MemoryDelayScheduler) Schedule(ctx context.Context, cp *engine.RunCheckpoint, delay time.Duration) error {
	if cp.ID.IsEmpty() {
		cp.ID = kernel.NewCheckpointID()
	}
	cp.ResumeAt = time.Now().Add(delay)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.wg.Add(1)
	m.timers[cp.ID] = time.AfterFunc(delay, func() {
		defer m.wg.Done()
		m.fire(cp)
	})

	log.Printf("⏰ Scheduled checkpoint %s in memory (delay: %v)", cp.ID, delay)
	return nil
}

func (m *MemoryDelayScheduler) fire(cp *engine.RunCheckpoint) {
	m.mu.Lock()
	if _, ok := m.timers[cp.ID]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.timers, cp.ID)
	handler, ctx := m.handler, m.ctx
	m.mu.Unlock()

	if handler == nil {
		log.Printf("⚠️  No continuation handler, dropping checkpoint %s", cp.ID)
		return
	}
	if err := handler(ctx, cp); err != nil {
		log.Printf("❌ Failed to resume checkpoint %s: %v", cp.ID, err)
	}
}

func (m *MemoryDelayScheduler) Cancel(ctx context.Context, id kernel.CheckpointID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[id]; ok {
		if t.Stop() {
			m.wg.Done()
		}
		delete(m.timers, id)
	}
	return nil
}

// StartWorker binds resumed runs to ctx. Timers run on their own.
func (m *MemoryDelayScheduler) StartWorker(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
}

// StopWorker cancels every pending timer.
func (m *MemoryDelayScheduler) StopWorker() {
	m.mu.Lock()
	for id, t := range m.timers {
		if t.Stop() {
			m.wg.Done()
		}
		delete(m.timers, id)
	}
	m.mu.Unlock()
}

// Pending returns the number of scheduled checkpoints.
func (m *MemoryDelayScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Wait blocks until every fired timer has finished its handler.
func (m *MemoryDelayScheduler) Wait() {
	m.wg.Wait()
}
