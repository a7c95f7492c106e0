package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/testutil"
)

// gatedPrompter blocks every Choose until release receives an answer
type gatedPrompter struct {
	calls   atomic.Int32
	release chan int
}

func (p *gatedPrompter) Confirm(ctx context.Context, title, message string) bool { return false }

func (p *gatedPrompter) Choose(ctx context.Context, title, message string, options []string) int {
	p.calls.Add(1)
	select {
	case n := <-p.release:
		return n
	case <-ctx.Done():
		return -1
	}
}

func fastTimings() *types.Timings {
	return &types.Timings{
		ReopenPollInterval:  time.Millisecond,
		ReopenSuppressShort: 50 * time.Millisecond,
	}
}

func TestMonitor_SinglePromptInFlight(t *testing.T) {
	sup := testutil.NewFakeSupervisor(true)
	sup.StayRunning = true
	p := &gatedPrompter{release: make(chan int)}

	m := New(sup, p, fastTimings())
	m.Start(context.Background(), nil)
	defer m.Stop()

	require.Eventually(t, func() bool { return sup.Terminations() >= 5 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int32(1), p.calls.Load(), "app kept closed without a second prompt")
	assert.True(t, m.State().PromptInFlight)

	p.release <- int(types.ReopenKeepClosed)
	require.Eventually(t, func() bool { return !m.State().PromptInFlight }, time.Second, time.Millisecond)
	assert.False(t, m.State().SuppressWarningsUntil.IsZero())
}

func TestMonitor_Choices(t *testing.T) {
	t.Run("proceed allows the app to stay open", func(t *testing.T) {
		sup := testutil.NewFakeSupervisor(true)
		p := testutil.NewScriptedPrompter(int(types.ReopenProceed))

		m := New(sup, p, fastTimings())
		m.Start(context.Background(), nil)
		defer m.Stop()

		require.Eventually(t, func() bool { return m.State().AllowExternalRelaunchOverride }, 2*time.Second, time.Millisecond)
		before := sup.Terminations()
		sup.SetRunning(true)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, before, sup.Terminations())
		assert.True(t, m.Running(), "still observing")
	})

	t.Run("cancel calls back once", func(t *testing.T) {
		sup := testutil.NewFakeSupervisor(true)
		p := testutil.NewScriptedPrompter(int(types.ReopenCancel))
		var cancelled atomic.Int32

		m := New(sup, p, fastTimings())
		m.Start(context.Background(), func() { cancelled.Add(1) })
		defer m.Stop()

		require.Eventually(t, func() bool { return cancelled.Load() == 1 }, 2*time.Second, time.Millisecond)
		assert.GreaterOrEqual(t, sup.Terminations(), 1)
	})

	t.Run("dismissed keeps the app closed", func(t *testing.T) {
		sup := testutil.NewFakeSupervisor(true)
		p := testutil.NewScriptedPrompter() // Every Choose returns -1

		m := New(sup, p, fastTimings())
		m.Start(context.Background(), nil)
		defer m.Stop()

		require.Eventually(t, func() bool { return len(p.Asked()) >= 1 }, 2*time.Second, time.Millisecond)
		assert.False(t, m.State().AllowExternalRelaunchOverride)
		assert.False(t, sup.IsRunning(context.Background()))
	})
}

func TestMonitor_Suppress(t *testing.T) {
	sup := testutil.NewFakeSupervisor(false)
	p := testutil.NewScriptedPrompter()

	m := New(sup, p, fastTimings())
	m.Start(context.Background(), nil)
	defer m.Stop()

	m.Suppress(time.Hour)
	m.Suppress(time.Millisecond) // Must not shorten the window
	sup.SetRunning(true)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, sup.Terminations())
	assert.Empty(t, p.Asked())
}

func TestMonitor_StartStop(t *testing.T) {
	sup := testutil.NewFakeSupervisor(false)
	m := New(sup, testutil.NewScriptedPrompter(), fastTimings())

	m.Stop() // Not started
	m.Start(context.Background(), nil)
	m.Start(context.Background(), nil)
	assert.True(t, m.Running())

	m.Stop()
	m.Stop()
	assert.False(t, m.Running())

	// No polling after Stop
	sup.SetRunning(true)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, sup.Terminations())
}

func TestMonitor_StopDismissesOpenPrompt(t *testing.T) {
	sup := testutil.NewFakeSupervisor(true)
	p := &gatedPrompter{release: make(chan int)}
	var cancelled atomic.Bool

	m := New(sup, p, fastTimings())
	m.Start(context.Background(), func() { cancelled.Store(true) })
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, 2*time.Second, time.Millisecond)

	m.Stop() // Returns once the prompt sees the cancelled context
	assert.False(t, cancelled.Load())
	assert.False(t, m.State().PromptInFlight)
}
