// Package session sequences the two flows sideassist offers: fetching the
// files the tracked app asks for (UpdateAssistant) and following a download
// the app performs itself (DownloadTracker).
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sideassist/sideassist/internal/config"
	"github.com/sideassist/sideassist/internal/engine/events"
	"github.com/sideassist/sideassist/internal/engine/transfer"
	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/history"
	"github.com/sideassist/sideassist/internal/notify"
	"github.com/sideassist/sideassist/internal/process"
	"github.com/sideassist/sideassist/internal/prompt"
	"github.com/sideassist/sideassist/internal/tracker"
	"github.com/sideassist/sideassist/internal/utils"
)

const (
	FlowUpdate = "update"
	FlowTrack  = "track"
)

var (
	// ErrNoLogReset is returned when the launched app never starts a new log
	ErrNoLogReset = errors.New("the app did not start a new log")
	// ErrPermission annotates filesystem failures with the usual remedy
	ErrPermission = errors.New("file access denied, grant Full Disk Access to sideassist in System Settings > Privacy & Security")
)

// Session is what the CLI and TUI drive
type Session interface {
	Start(ctx context.Context) error
	Stop()
	Finalize()
	Status() types.Status
	Snapshot() types.Snapshot
	Events() <-chan any
	Done() <-chan struct{}
	Err() error
}

// Deps are the collaborators shared by both flows
type Deps struct {
	Supervisor  process.Supervisor
	Guard       tracker.Mutator
	Prompter    prompt.Prompter
	Locator     config.Locator
	Paths       config.PathSettings
	General     config.GeneralSettings
	Notifier    notify.Sink
	History     history.Recorder // Optional
	Timings     *types.Timings
	Network     *types.NetworkConfig
	TransferDir string // Parent of the per-session temp directories
	Clock       utils.Clock
	Console     *utils.Console
}

func (d *Deps) defaults() {
	if d.Clock == nil {
		d.Clock = utils.RealClock{}
	}
	if d.Console == nil {
		d.Console = utils.NewConsole(types.ConsoleLines)
	}
	if d.Notifier == nil {
		d.Notifier = notify.Discard{}
	}
	if d.Prompter == nil {
		d.Prompter = prompt.Fixed{Answer: false, Choice: int(types.ReopenKeepClosed)}
	}
}

// lifecycle is the start/stop/finalize bookkeeping both flows share.
// The flow's run goroutine is the only writer of session state.
type lifecycle struct {
	flow     string
	deps     Deps
	events   chan any
	relaunch bool // Relaunch the app on success

	mu        sync.Mutex
	id        string
	progress  *types.ProgressState
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	finalized bool
	didNotify bool
	files     int
}

func (l *lifecycle) init(flow string, deps Deps) {
	deps.defaults()
	l.flow = flow
	l.deps = deps
	l.events = make(chan any, types.EventChannelBuffer)
}

// begin resets per-run state. It returns types.ErrSessionActive if a run is in progress.
func (l *lifecycle) begin(ctx context.Context) (context.Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return nil, types.ErrSessionActive
	}

	l.id = uuid.New().String()
	l.progress = types.NewProgressState(l.id, 0)
	l.startedAt = l.deps.Clock.Now()
	l.finalized = false
	l.didNotify = false
	l.files = 0

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	utils.Debug("Session %s (%s) started", l.id, l.flow)
	return runCtx, nil
}

// end records the outcome of a run, finalizes it and releases waiters
func (l *lifecycle) end(err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, transfer.ErrCancelled):
		l.setStatus(types.StatusStopped, "Stopped")
	default:
		l.progress.SetError(err)
		l.deps.Console.Errorf("%v", err)
		events.Publish(l.events, events.StatusMsg{SessionID: l.id, Status: types.StatusError, Message: err.Error()})
	}

	l.finalize()

	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()
	cancel()
	close(done)
}

// Stop cancels the running flow and waits for it to wind down.
// Safe to call repeatedly and before Start.
func (l *lifecycle) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Finalize stops the flow and runs the one-time end of session work.
// Safe to call repeatedly.
func (l *lifecycle) Finalize() {
	l.Stop()
	l.finalize()
}

func (l *lifecycle) finalize() {
	l.mu.Lock()
	if l.finalized || l.progress == nil {
		l.mu.Unlock()
		return
	}
	l.finalized = true
	status, message := l.progress.Status()
	post := !l.didNotify && (status == types.StatusDone || status == types.StatusError)
	if post {
		l.didNotify = true
	}
	entry := history.Entry{
		ID:         l.id,
		Flow:       l.flow,
		Status:     status,
		Files:      l.files,
		Bytes:      l.progress.Downloaded.Load(),
		Message:    message,
		StartedAt:  l.startedAt,
		FinishedAt: l.deps.Clock.Now(),
	}
	id := l.id
	l.mu.Unlock()

	if post {
		l.deps.Notifier.Post(l.notification(status, message))
	}
	if l.deps.History != nil {
		if err := l.deps.History.Record(context.Background(), entry); err != nil {
			utils.Warn("Session %s: %v", id, err)
		}
	}
	if status == types.StatusDone && l.relaunch {
		if err := l.deps.Supervisor.Launch(context.Background(), false); err != nil {
			l.deps.Console.Errorf("Could not relaunch the app: %v", err)
		}
	}

	switch status {
	case types.StatusError:
		events.Publish(l.events, events.SessionErrorMsg{SessionID: id, Flow: l.flow, Err: l.progress.Err()})
	default:
		events.Publish(l.events, events.SessionCompleteMsg{
			SessionID: id,
			Flow:      l.flow,
			Elapsed:   entry.Duration(),
			Total:     entry.Bytes,
		})
	}
	utils.Debug("Session %s finished: %s %s", id, status, message)
}

func (l *lifecycle) notification(status types.Status, message string) (string, string) {
	title := "Game update"
	if l.flow == FlowTrack {
		title = "Background download"
	}
	if status == types.StatusError {
		return title, "Failed: " + message
	}
	return title, message
}

func (l *lifecycle) setStatus(s types.Status, message string) {
	l.progress.SetStatus(s, message)
	l.deps.Console.Logf("%s", message)
	events.Publish(l.events, events.StatusMsg{SessionID: l.id, Status: s, Message: message})
}

func (l *lifecycle) logf(format string, args ...any) {
	l.deps.Console.Logf(format, args...)
}

// ID returns the id of the current or last run
func (l *lifecycle) ID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.id
}

// Active reports whether a run is in progress
func (l *lifecycle) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Status returns the user-facing status
func (l *lifecycle) Status() types.Status {
	l.mu.Lock()
	ps := l.progress
	l.mu.Unlock()
	if ps == nil {
		return types.StatusIdle
	}
	s, _ := ps.Status()
	return s
}

// Snapshot copies the published progress
func (l *lifecycle) Snapshot() types.Snapshot {
	l.mu.Lock()
	ps := l.progress
	l.mu.Unlock()
	if ps == nil {
		return types.Snapshot{Flow: l.flow, Status: types.StatusIdle}
	}
	return ps.Snapshot(l.flow)
}

// Events carries status, progress and prompt messages for the UI
func (l *lifecycle) Events() <-chan any {
	return l.events
}

// Done is closed when the current run has been finalized. Nil before Start.
func (l *lifecycle) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Err returns the error that ended the last run
func (l *lifecycle) Err() error {
	l.mu.Lock()
	ps := l.progress
	l.mu.Unlock()
	if ps == nil {
		return nil
	}
	return ps.Err()
}

// Console is the session's user-facing log
func (l *lifecycle) Console() *utils.Console {
	return l.deps.Console
}

// layout resolves the container, failing with config.ErrContainerNotFound
func (l *lifecycle) layout() (config.ContainerLayout, error) {
	if l.deps.Locator == nil {
		return config.ContainerLayout{}, config.ErrContainerNotFound
	}
	layout, err := config.ResolveLayout(l.deps.Locator, l.deps.Paths)
	if err != nil {
		return layout, fmt.Errorf("%w: is the app installed and launched once?", err)
	}
	return layout, nil
}
