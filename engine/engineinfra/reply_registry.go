package engineinfra

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/logx"
	"github.com/go-redis/redis/v8"
)

const (
	awaitingPrefix = "chatflow:awaiting:"

	// DefaultReplyTTL bounds how long a question waits for its answer.
	DefaultReplyTTL = 24 * time.Hour
)

// ============================================================================
// Redis
// ============================================================================

// RedisReplyRegistry parks question checkpoints under one key per dialog.
type RedisReplyRegistry struct {
	redis *redis.Client
	ttl   time.Duration
}

var _ engine.ReplyRegistry = (*RedisReplyRegistry)(nil)

func NewRedisReplyRegistry(client *redis.Client, ttl time.Duration) *RedisReplyRegistry {
	if ttl <= 0 {
		ttl = DefaultReplyTTL
	}
	return &RedisReplyRegistry{redis: client, ttl: ttl}
}

func (r *RedisReplyRegistry) Await(ctx context.Context, cp *engine.RunCheckpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return errx.Wrap(err, "failed to marshal checkpoint", errx.TypeInternal)
	}
	if err := r.redis.Set(ctx, awaitingPrefix+cp.DialogID.String(), data, r.ttl).Err(); err != nil {
		return errx.Wrap(err, "failed to park checkpoint", errx.TypeInternal).
			WithDetail("dialog_id", cp.DialogID.String())
	}
	return nil
}

// Take uses GETDEL so that two concurrent messages cannot resume the same run.
func (r *RedisReplyRegistry) Take(ctx context.Context, dialogID kernel.DialogID) (*engine.RunCheckpoint, error) {
	data, err := r.redis.GetDel(ctx, awaitingPrefix+dialogID.String()).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errx.Wrap(err, "failed to read parked checkpoint", errx.TypeInternal).
			WithDetail("dialog_id", dialogID.String())
	}

	var cp engine.RunCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		logx.Error("Dropping unreadable checkpoint for dialog %s: %v", dialogID, err)
		return nil, nil
	}
	return &cp, nil
}

// ============================================================================
// Memory
// ============================================================================

type parked struct {
	cp      *engine.RunCheckpoint
	expires time.Time
}

// MemoryReplyRegistry is the single process ReplyRegistry.
type MemoryReplyRegistry struct {
	mu      sync.Mutex
	ttl     time.Duration
	waiting map[kernel.DialogID]parked
}

var _ engine.ReplyRegistry = (*MemoryReplyRegistry)(nil)

func NewMemoryReplyRegistry(ttl time.Duration) *MemoryReplyRegistry {
	if ttl <= 0 {
		ttl = DefaultReplyTTL
	}
	return &MemoryReplyRegistry{ttl: ttl, waiting: make(map[kernel.DialogID]parked)}
}

func (r *MemoryReplyRegistry) Await(ctx context.Context, cp *engine.RunCheckpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting[cp.DialogID] = parked{cp: cp, expires: time.Now().Add(r.ttl)}
	return nil
}

func (r *MemoryReplyRegistry) Take(ctx context.Context, dialogID kernel.DialogID) (*engine.RunCheckpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.waiting[dialogID]
	if !ok {
		return nil, nil
	}
	delete(r.waiting, dialogID)
	if time.Now().After(p.expires) {
		return nil, nil
	}
	return p.cp, nil
}
