package nodeexec

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
)

const (
	DefaultIntervalSeconds = 300
	MaxInterval            = 24 * time.Hour
)

// IntervalExecutor pauses a run. Short delays block in place; longer ones
// (per the DelayPolicy) ask the engine to suspend the run.
type IntervalExecutor struct {
	policy engine.DelayPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ engine.NodeExecutor = (*IntervalExecutor)(nil)

// NewIntervalExecutor: with a nil policy every non-zero delay suspends.
func NewIntervalExecutor(policy engine.DelayPolicy) *IntervalExecutor {
	return &IntervalExecutor{policy: policy, sleep: sleepContext}
}

// WithSleeper replaces the blocking wait, for tests and dry runs.
func (e *IntervalExecutor) WithSleeper(sleep func(ctx context.Context, d time.Duration) error) *IntervalExecutor {
	e.sleep = sleep
	return e
}

func (e *IntervalExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeInterval
}

func (e *IntervalExecutor) Execute(ctx context.Context, node engine.Node, run *engine.RunContext) (*engine.NodeOutcome, error) {
	data, ok := node.Data.(engine.IntervalData)
	if !ok {
		return nil, dataMismatch(node)
	}

	delay, err := ParseIntervalDuration(data.Duration)
	if err != nil {
		return nil, err
	}
	if delay == 0 {
		return engine.Success(), nil
	}

	if e.policy == nil || e.policy.ShouldUseAsync(delay) {
		log.Printf("⏰ Interval %s: suspending run for %v", node.ID, delay)
		return engine.SuspendFor(delay), nil
	}

	log.Printf("⏱️  Interval %s: waiting %v", node.ID, delay)
	if err := e.sleep(ctx, delay); err != nil {
		return nil, engine.ErrRunCancelled(err)
	}
	return engine.Success(), nil
}

// ParseIntervalDuration reads the authored duration in seconds, defaulting to
// DefaultIntervalSeconds when empty.
func ParseIntervalDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return DefaultIntervalSeconds * time.Second, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, engine.ErrMalformedPayload("duration", err)
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, engine.ErrMalformedPayload("duration", fmt.Errorf("duration %q is not a number of seconds", raw))
	}
	if secs < 0 {
		return 0, engine.ErrMalformedPayload("duration", fmt.Errorf("negative duration %v", secs))
	}
	if secs > MaxInterval.Seconds() {
		return 0, engine.ErrMalformedPayload("duration", fmt.Errorf("duration %vs exceeds maximum %v", secs, MaxInterval))
	}
	return time.Duration(secs * float64(time.Second)), nil
}
