package nodeexec

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervalDuration(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 300 * time.Second, false},
		{"600", 600 * time.Second, false},
		{"1.5", 1500 * time.Millisecond, false},
		{"0", 0, false},
		{"soon", 0, true},
		{"-1", 0, true},
		{"90000", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"-Inf", 0, true},
		{"1e300", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseIntervalDuration(tt.raw)
		if tt.wantErr {
			require.Error(t, err, tt.raw)
			assert.Equal(t, engine.KindMalformedPayload, engine.KindOf(err))
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}

func TestIntervalExecutorSuspendsLongDelays(t *testing.T) {
	exec := NewIntervalExecutor(&enginetest.Scheduler{Threshold: 30 * time.Second})

	out, err := exec.Execute(context.Background(), node("i", engine.IntervalData{Duration: "600"}), newRun(nil))
	require.NoError(t, err)
	require.NotNil(t, out.Suspend)
	assert.Equal(t, engine.SuspendForDelay, out.Suspend.Reason)
	assert.Equal(t, 600*time.Second, out.Suspend.Delay)
}

func TestIntervalExecutorBlocksShortDelays(t *testing.T) {
	var slept time.Duration
	exec := NewIntervalExecutor(&enginetest.Scheduler{Threshold: time.Hour}).
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			slept = d
			return nil
		})

	out, err := exec.Execute(context.Background(), node("i", engine.IntervalData{Duration: "600"}), newRun(nil))
	require.NoError(t, err)
	assert.Nil(t, out.Suspend)
	assert.Equal(t, 600*time.Second, slept)
}

func TestIntervalExecutorCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewIntervalExecutor(&enginetest.Scheduler{Threshold: time.Hour})
	_, err := exec.Execute(ctx, node("i", engine.IntervalData{Duration: "5"}), newRun(nil))
	require.Error(t, err)
	assert.Equal(t, engine.KindCancelled, engine.KindOf(err))
}

func TestIntervalExecutorWithoutPolicySuspends(t *testing.T) {
	out, err := NewIntervalExecutor(nil).Execute(context.Background(), node("i", engine.IntervalData{Duration: "1"}), newRun(nil))
	require.NoError(t, err)
	assert.NotNil(t, out.Suspend)
}
