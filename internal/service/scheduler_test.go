package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, interval time.Duration) *DuelScheduler {
	t.Helper()
	s, err := NewDuelScheduler(interval, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestDuelScheduler_ArmFires(t *testing.T) {
	s := newTestScheduler(t, time.Hour)
	var fired atomic.Int32

	at := time.Now().Add(20 * time.Millisecond)
	s.Arm("g1", TimerVoting, at, func(ctx context.Context) {
		assert.NoError(t, ctx.Err())
		fired.Add(1)
	})

	kind, armedAt, ok := s.Armed("g1")
	require.True(t, ok)
	assert.Equal(t, TimerVoting, kind)
	assert.True(t, armedAt.Equal(at))

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	_, _, ok = s.Armed("g1")
	assert.False(t, ok, "a fired timer is no longer armed")
}

func TestDuelScheduler_PastDeadlineFiresImmediately(t *testing.T) {
	s := newTestScheduler(t, time.Hour)
	var fired atomic.Int32

	s.Arm("g1", TimerCooldown, time.Now().Add(-time.Minute), func(context.Context) { fired.Add(1) })

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDuelScheduler_Cancel(t *testing.T) {
	s := newTestScheduler(t, time.Hour)
	var fired atomic.Int32

	s.Arm("g1", TimerVoting, time.Now().Add(30*time.Millisecond), func(context.Context) { fired.Add(1) })
	s.Cancel("g1")

	_, _, ok := s.Armed("g1")
	assert.False(t, ok)
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestDuelScheduler_RearmReplaces(t *testing.T) {
	s := newTestScheduler(t, time.Hour)
	var first, second atomic.Int32

	s.Arm("g1", TimerVoting, time.Now().Add(20*time.Millisecond), func(context.Context) { first.Add(1) })
	s.Arm("g1", TimerCooldown, time.Now().Add(40*time.Millisecond), func(context.Context) { second.Add(1) })

	kind, _, ok := s.Armed("g1")
	require.True(t, ok)
	assert.Equal(t, TimerCooldown, kind)

	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, first.Load())
}

func TestDuelScheduler_GuildsAreIndependent(t *testing.T) {
	s := newTestScheduler(t, time.Hour)
	var fired atomic.Int32

	s.Arm("g1", TimerVoting, time.Now().Add(20*time.Millisecond), func(context.Context) { fired.Add(1) })
	s.Arm("g2", TimerVoting, time.Now().Add(20*time.Millisecond), func(context.Context) { fired.Add(1) })
	s.Cancel("g2")

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestDuelScheduler_StopCancelsTimers(t *testing.T) {
	s := newTestScheduler(t, time.Hour)
	var fired atomic.Int32

	s.Arm("g1", TimerVoting, time.Now().Add(30*time.Millisecond), func(context.Context) { fired.Add(1) })
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestDuelScheduler_Sweep(t *testing.T) {
	s := newTestScheduler(t, 20*time.Millisecond)
	var sweeps atomic.Int32

	require.NoError(t, s.Start(func(ctx context.Context) {
		sweeps.Add(1)
	}))

	assert.Eventually(t, func() bool { return sweeps.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}
