package delayscheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
)

const (
	delayedRunsKey   = "chatflow:delayed_runs" // Sorted set
	checkpointPrefix = "chatflow:checkpoint:"  // String keys

	DefaultSyncThreshold = 30 * time.Second
	DefaultPollSchedule  = "@every 1s"

	claimBatch = 10
)

// Options tunes a scheduler. A negative threshold or an empty schedule falls
// back to the defaults; a zero threshold suspends every delay.
type Options struct {
	SyncThreshold time.Duration
	PollSchedule  string
}

func (o Options) withDefaults() Options {
	if o.SyncThreshold < 0 {
		o.SyncThreshold = DefaultSyncThreshold
	}
	if o.PollSchedule == "" {
		o.PollSchedule = DefaultPollSchedule
	}
	return o
}

var _ engine.DelayScheduler = (*RedisDelayScheduler)(nil)

// RedisDelayScheduler keeps suspended runs in a redis sorted set scored by
// resume time. A cron job claims due entries with ZREM so that only one
// replica resumes each checkpoint.
type RedisDelayScheduler struct {
	redis         *redis.Client
	syncThreshold time.Duration
	pollSchedule  string

	mu             sync.Mutex
	onContinuation engine.ContinuationHandler
	cron           *cron.Cron
}

func NewRedisDelayScheduler(redisClient *redis.Client, opts Options) *RedisDelayScheduler {
	opts = opts.withDefaults()
	return &RedisDelayScheduler{
		redis:         redisClient,
		syncThreshold: opts.SyncThreshold,
		pollSchedule:  opts.PollSchedule,
	}
}

func (r *RedisDelayScheduler) SetHandler(handler engine.ContinuationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onContinuation = handler
}

// Schedule persists the checkpoint and queues it for resumption after delay.
func (r *RedisDelayScheduler) Schedule(
	ctx context.Context,
	cp *engine.RunCheckpoint,
	delay time.Duration,
) error {
	if cp.ID.IsEmpty() {
		cp.ID = kernel.NewCheckpointID()
	}
	cp.ResumeAt = time.Now().Add(delay)

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	key := checkpointPrefix + cp.ID.String()
	if err := r.redis.Set(ctx, key, data, delay+time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}

	if err := r.redis.ZAdd(ctx, delayedRunsKey, &redis.Z{
		Score:  float64(cp.ResumeAt.Unix()),
		Member: cp.ID.String(),
	}).Err(); err != nil {
		r.redis.Del(ctx, key)
		return fmt.Errorf("failed to schedule checkpoint: %w", err)
	}

	log.Printf("⏰ Scheduled checkpoint %s of run %s for %v (delay: %v)",
		cp.ID, cp.RunID, cp.ResumeAt.Format(time.RFC3339), delay)

	return nil
}

// ShouldUseAsync reports whether a delay is long enough to suspend the run.
func (r *RedisDelayScheduler) ShouldUseAsync(duration time.Duration) bool {
	return duration > r.syncThreshold
}

// StartWorker starts the cron poll job.
func (r *RedisDelayScheduler) StartWorker(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		log.Println("⚠️  Delay scheduler worker already running")
		return
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(r.pollSchedule, func() {
		if ctx.Err() != nil {
			return
		}
		if err := r.processDue(ctx); err != nil {
			log.Printf("❌ Error processing due checkpoints: %v", err)
		}
	})
	if err != nil {
		log.Printf("❌ Invalid poll schedule %q: %v", r.pollSchedule, err)
		return
	}

	log.Printf("🚀 Starting delay scheduler worker (%s)...", r.pollSchedule)
	c.Start()
	r.cron = c

	go func() {
		<-ctx.Done()
		r.StopWorker()
	}()
}

// StopWorker stops polling and waits for a running poll to finish.
func (r *RedisDelayScheduler) StopWorker() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	log.Println("🛑 Stopping delay scheduler worker...")
	<-c.Stop().Done()
	log.Println("⏹️  Delay scheduler worker stopped")
}

func (r *RedisDelayScheduler) processDue(ctx context.Context) error {
	now := float64(time.Now().Unix())

	ids, err := r.redis.ZRangeByScore(ctx, delayedRunsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", now),
		Count: claimBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to fetch due checkpoints: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	log.Printf("📋 Found %d due checkpoints", len(ids))

	for _, id := range ids {
		removed, err := r.redis.ZRem(ctx, delayedRunsKey, id).Result()
		if err != nil || removed == 0 {
			// claimed by another replica
			continue
		}
		go r.resume(context.Background(), id)
	}

	return nil
}

func (r *RedisDelayScheduler) resume(ctx context.Context, id string) {
	log.Printf("▶️  Resuming checkpoint: %s", id)

	key := checkpointPrefix + id
	cp, err := r.load(ctx, key)
	if err != nil {
		log.Printf("❌ Failed to load checkpoint %s: %v", id, err)
		return
	}
	defer r.redis.Del(ctx, key)

	r.mu.Lock()
	handler := r.onContinuation
	r.mu.Unlock()

	if handler == nil {
		log.Printf("⚠️  No continuation handler, dropping checkpoint %s", id)
		return
	}
	if err := handler(ctx, cp); err != nil {
		log.Printf("❌ Failed to resume checkpoint %s: %v", id, err)
		return
	}
	log.Printf("✅ Resumed checkpoint: %s", id)
}

func (r *RedisDelayScheduler) load(ctx context.Context, key string) (*engine.RunCheckpoint, error) {
	data, err := r.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var cp engine.RunCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// PendingCount returns the number of suspended runs waiting for their delay.
func (r *RedisDelayScheduler) PendingCount(ctx context.Context) (int64, error) {
	return r.redis.ZCard(ctx, delayedRunsKey).Result()
}

// Cancel drops a scheduled checkpoint.
func (r *RedisDelayScheduler) Cancel(ctx context.Context, id kernel.CheckpointID) error {
	if err := r.redis.ZRem(ctx, delayedRunsKey, id.String()).Err(); err != nil {
		return err
	}
	return r.redis.Del(ctx, checkpointPrefix+id.String()).Err()
}
