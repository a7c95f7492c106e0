// Package monitor keeps the tracked application closed while a protected
// download is running, asking the user what to do when it reappears.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/process"
	"github.com/sideassist/sideassist/internal/prompt"
	"github.com/sideassist/sideassist/internal/utils"
)

const (
	promptTitle   = "The app was reopened"
	promptMessage = "The app was closed again because a download is still writing to its files. What do you want to do?"
)

// Monitor polls for the tracked app while protection is active
type Monitor struct {
	Supervisor process.Supervisor
	Prompter   prompt.Prompter
	Timings    *types.Timings
	Clock      utils.Clock
	Console    *utils.Console

	mu     sync.Mutex
	state  types.ReopenGuardState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped monitor
func New(sup process.Supervisor, p prompt.Prompter, timings *types.Timings) *Monitor {
	return &Monitor{
		Supervisor: sup,
		Prompter:   p,
		Timings:    timings,
		Clock:      utils.RealClock{},
	}
}

// Start begins protection. onCancel runs on its own goroutine when the user
// chooses to cancel the protected operation. Calling Start while running is a no-op.
func (m *Monitor) Start(ctx context.Context, onCancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state = types.ReopenGuardState{}

	m.wg.Add(1)
	go m.loop(ctx, onCancel)
}

// Stop ends protection and waits for any open prompt to be dismissed.
// Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

// Running reports whether protection is active
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Suppress ignores the app for d, e.g. around an intentional launch.
// A shorter window never cuts an existing one.
func (m *Monitor) Suppress(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until := m.clock().Now().Add(d)
	if until.After(m.state.SuppressWarningsUntil) {
		m.state.SuppressWarningsUntil = until
	}
}

// State returns a copy of the guard state
func (m *Monitor) State() types.ReopenGuardState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) clock() utils.Clock {
	if m.Clock == nil {
		return utils.RealClock{}
	}
	return m.Clock
}

func (m *Monitor) loop(ctx context.Context, onCancel func()) {
	defer m.wg.Done()
	interval := m.Timings.GetReopenPollInterval()
	for {
		if err := utils.Sleep(ctx, m.clock(), interval); err != nil {
			return
		}
		m.check(ctx, onCancel)
	}
}

// check runs one poll. While a prompt is open the app is still kept
// closed, but no second prompt is shown.
func (m *Monitor) check(ctx context.Context, onCancel func()) {
	m.mu.Lock()
	st := m.state
	m.mu.Unlock()

	if m.clock().Now().Before(st.SuppressWarningsUntil) {
		return
	}
	if !m.Supervisor.IsRunning(ctx) {
		return
	}
	if st.AllowExternalRelaunchOverride {
		utils.Debug("Monitor: app running, allowed by user")
		return
	}

	m.Supervisor.TerminateAll(ctx)
	m.logf("The app was reopened during a download and has been closed")

	m.mu.Lock()
	if m.state.PromptInFlight {
		m.mu.Unlock()
		return
	}
	m.state.PromptInFlight = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.ask(ctx, onCancel)
}

func (m *Monitor) ask(ctx context.Context, onCancel func()) {
	defer m.wg.Done()
	choice := m.Prompter.Choose(ctx, promptTitle, promptMessage, types.ReopenChoiceLabels)

	m.mu.Lock()
	m.state.PromptInFlight = false
	cancelled := false
	switch types.ReopenChoice(choice) {
	case types.ReopenProceed:
		m.state.AllowExternalRelaunchOverride = true
	case types.ReopenCancel:
		cancelled = ctx.Err() == nil
	default:
		// Keep closed, or the prompt was dismissed
		m.state.SuppressWarningsUntil = m.clock().Now().Add(m.Timings.GetReopenSuppressShort())
	}
	m.mu.Unlock()

	switch {
	case cancelled:
		m.logf("Download cancelled because the app was reopened")
		if onCancel != nil {
			go onCancel()
		}
	case choice == int(types.ReopenProceed):
		m.logf("The app may stay open; the download continues")
	}
}

func (m *Monitor) logf(format string, args ...any) {
	if m.Console != nil {
		m.Console.Logf(format, args...)
		return
	}
	utils.Debug(format, args...)
}
