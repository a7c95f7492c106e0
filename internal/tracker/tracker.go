// Package tracker follows a download that the tracked application performs
// by itself, inferring progress from its JSON progress file and from the
// size of its cache directory.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sideassist/sideassist/internal/engine/events"
	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/process"
	"github.com/sideassist/sideassist/internal/utils"
)

// ErrNoSignal is returned when the progress file never changes after launch
var ErrNoSignal = errors.New("no download detected: the app did not update its progress file")

// Interference is the reopen monitor as seen by the tracker
type Interference interface {
	Start(ctx context.Context, onCancel func())
	Stop()
	Suppress(d time.Duration)
}

// Mutator runs container mutations behind the write guard
type Mutator interface {
	Mutate(ctx context.Context, fn func() error) error
}

// Sample is one tick of observations. -1 marks a reading that failed.
type Sample struct {
	JSONBytes  int64
	JSONTotal  int64
	CacheBytes int64
}

// Action is what the polling loop must do after an observation
type Action int

const (
	ActionNone Action = iota
	ActionNudge
	ActionComplete
)

// Options wires a Tracker
type Options struct {
	ID         string
	Supervisor process.Supervisor
	Signal     SignalReader
	Cache      CacheSizer
	SignalPath string       // Removed by Reset
	Monitor    Interference // Optional
	Timings    *types.Timings
	Clock      utils.Clock
	Console    *utils.Console
	Events     chan<- any
	Progress   *types.ProgressState // Published progress; created by New if nil
}

// Snapshot is a copy of the tracker's state for display
type Snapshot struct {
	State    types.TrackerState
	Download types.BackgroundDownloadState
	Progress float64
}

// Tracker is the background download state machine. All transitions happen
// on the goroutine started by Start; other goroutines only read.
type Tracker struct {
	opts     Options
	clock    utils.Clock
	progress *types.ProgressState

	mu     sync.Mutex
	state  types.TrackerState
	bg     types.BackgroundDownloadState
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// New creates an idle tracker
func New(opts Options) *Tracker {
	clock := opts.Clock
	if clock == nil {
		clock = utils.RealClock{}
	}
	if opts.Progress == nil {
		opts.Progress = types.NewProgressState(opts.ID, 0)
	}
	return &Tracker{
		opts:     opts,
		clock:    clock,
		progress: opts.Progress,
		state:    types.TrackerIdle,
	}
}

// Start launches the app and begins tracking in the background
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return types.ErrSessionActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	t.err = nil
	t.bg = types.BackgroundDownloadState{}
	t.progress = t.opts.Progress
	t.progress.Downloaded.Store(0)
	t.progress.TotalSize.Store(0)
	t.mu.Unlock()

	go t.run(runCtx, cancel, done)
	return nil
}

// Stop cancels tracking and waits for the polling loop to exit.
// Progress counters are left as they were. Safe to call repeatedly.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Active reports whether the polling loop is running
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Done is closed when the current run ends. Nil before the first Start.
func (t *Tracker) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Err returns why the last run failed, if it did
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// State returns the current state machine position
func (t *Tracker) State() types.TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Progress returns the published progress of the current run
func (t *Tracker) Progress() *types.ProgressState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Snapshot copies the current state
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{State: t.state, Download: t.bg, Progress: t.bg.FileProgress()}
}

// Reset deletes the progress file so the app rebuilds it on next launch.
// It refuses to run while tracking.
func (t *Tracker) Reset(ctx context.Context, guard Mutator) error {
	if t.Active() {
		return types.ErrSessionActive
	}
	if t.opts.SignalPath == "" {
		return fmt.Errorf("reset: no progress file configured")
	}
	err := guard.Mutate(ctx, func() error {
		if err := os.Remove(t.opts.SignalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	t.logf("Removed %s", t.opts.SignalPath)
	return nil
}

func (t *Tracker) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer func() {
		cancel()
		t.mu.Lock()
		t.cancel = nil
		t.mu.Unlock()
		close(done)
	}()

	err := t.drive(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		t.setState(types.TrackerStopped, "Tracking stopped")
	default:
		t.fail(err)
	}
}

func (t *Tracker) drive(ctx context.Context) error {
	timings := t.opts.Timings
	sup := t.opts.Supervisor

	t.setState(types.TrackerLaunching, "Launching the app")
	initial, err := t.opts.Signal.Read()
	if err != nil {
		utils.Debug("Tracker: initial signal read: %v", err)
	}
	if err := sup.Launch(ctx, false); err != nil {
		return err
	}

	t.setState(types.TrackerWaitingForSignal, "Waiting for the app to start downloading")
	changed, err := utils.PollUntil(ctx, t.clock, timings.GetTrackerPollInterval(), timings.GetSignalWait(), func() bool {
		sig, _ := t.opts.Signal.Read()
		return sig.Fingerprint != initial.Fingerprint
	})
	if err != nil {
		return err
	}
	if !changed {
		return ErrNoSignal
	}

	// The download carries on in the app's background agent
	sup.TerminateAll(ctx)
	if sig, err := t.opts.Signal.Read(); err == nil {
		t.mu.Lock()
		t.bg.TotalExpectedBytes = sig.Total
		t.mu.Unlock()
		t.progress.TotalSize.Store(sig.Total)
	}

	if mon := t.opts.Monitor; mon != nil {
		mon.Start(ctx, func() { go t.Stop() })
		mon.Suppress(timings.GetReopenSuppressLong())
		defer mon.Stop()
	}

	t.mu.Lock()
	t.bg.LastProgressAt = t.clock.Now()
	t.mu.Unlock()
	t.setState(types.TrackerTracking, "Downloading in the background")

	samples := make(chan Sample)
	go t.sample(ctx, samples)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-samples:
			switch t.Observe(t.clock.Now(), s) {
			case ActionNudge:
				t.nudge(ctx)
			case ActionComplete:
				if mon := t.opts.Monitor; mon != nil {
					mon.Stop()
				}
				if err := sup.Launch(ctx, false); err != nil {
					t.errorf("Could not relaunch the app: %v", err)
				}
				t.setState(types.TrackerComplete, "Download complete")
				return nil
			}
		}
	}
}

// sample reads both signals off the state goroutine, since a large cache
// directory takes a while to walk
func (t *Tracker) sample(ctx context.Context, out chan<- Sample) {
	interval := t.opts.Timings.GetTrackerPollInterval()
	for {
		s := t.collect()
		select {
		case out <- s:
		case <-ctx.Done():
			return
		}
		if err := utils.Sleep(ctx, t.clock, interval); err != nil {
			return
		}
	}
}

func (t *Tracker) collect() Sample {
	s := Sample{JSONBytes: -1, JSONTotal: -1, CacheBytes: -1}
	if sig, err := t.opts.Signal.Read(); err != nil {
		utils.Debug("Tracker: skipping progress file sample: %v", err)
	} else {
		s.JSONBytes, s.JSONTotal = sig.Downloaded, sig.Total
	}
	if t.opts.Cache != nil {
		if n, err := t.opts.Cache.Size(); err != nil {
			utils.Debug("Tracker: skipping cache sample: %v", err)
		} else {
			s.CacheBytes = n
		}
	}
	return s
}

// Observe applies one sample and returns the action the loop must take.
// It performs no I/O, so the same samples and times always give the same
// result.
func (t *Tracker) Observe(now time.Time, s Sample) Action {
	t.mu.Lock()
	defer t.mu.Unlock()

	timings := t.opts.Timings
	bg := &t.bg

	switch t.state {
	case types.TrackerTracking:
		if s.JSONTotal > bg.TotalExpectedBytes {
			bg.TotalExpectedBytes = s.JSONTotal
			t.progress.TotalSize.Store(s.JSONTotal)
		}
		observed := max(s.JSONBytes, s.CacheBytes, bg.CumulativeObservedBytes)
		bg.CumulativeObservedBytes = observed
		t.progress.Advance(observed)
		if s.CacheBytes >= 0 {
			bg.LastLibrarySize = s.CacheBytes
		}
		if observed != bg.LastProgressValue {
			bg.LastProgressValue = observed
			bg.LastProgressAt = now
		}
		events.Publish(t.opts.Events, events.ProgressMsg{
			SessionID:  t.opts.ID,
			Downloaded: observed,
			Total:      bg.TotalExpectedBytes,
		})

		if bg.TotalExpectedBytes > 0 && observed >= bg.TotalExpectedBytes {
			bg.PendingFinish = true
			bg.PendingFinishStartedAt = now
			bg.LibrarySizeAtTrigger = bg.LastLibrarySize
			t.transitionLocked(types.TrackerPendingFinish, "Installing")
			return ActionNone
		}
		if now.Sub(bg.LastProgressAt) >= timings.GetStuckRecovery() {
			bg.LastProgressAt = now
			return ActionNudge
		}

	case types.TrackerPendingFinish:
		if s.CacheBytes >= 0 {
			switch {
			case s.CacheBytes > bg.LastLibrarySize:
				// Still writing
				bg.LastLibrarySize = s.CacheBytes
				bg.PendingFinishStartedAt = now
				return ActionNone
			case s.CacheBytes < bg.LibrarySizeAtTrigger:
				return ActionComplete
			}
			bg.LastLibrarySize = s.CacheBytes
		}
		if now.Sub(bg.PendingFinishStartedAt) >= timings.GetPendingFinishSettle() {
			return ActionComplete
		}
	}
	return ActionNone
}

// nudge relaunches the app silently for a moment to wake up its downloader
func (t *Tracker) nudge(ctx context.Context) {
	timings := t.opts.Timings
	t.logf("No progress for %s, nudging the app's downloader", timings.GetStuckRecovery())
	if mon := t.opts.Monitor; mon != nil {
		mon.Suppress(timings.GetNudgeLaunchDwell() + timings.GetReopenSuppressLong())
	}
	if err := t.opts.Supervisor.Launch(ctx, true); err != nil {
		utils.Warn("Tracker: nudge launch failed: %v", err)
		return
	}
	if err := utils.Sleep(ctx, t.clock, timings.GetNudgeLaunchDwell()); err != nil {
		return
	}
	t.opts.Supervisor.TerminateAll(ctx)
}

func (t *Tracker) setState(to types.TrackerState, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transitionLocked(to, message)
}

func (t *Tracker) transitionLocked(to types.TrackerState, message string) {
	from := t.state
	t.state = to
	t.progress.SetStatus(to.Status(), message)
	utils.Debug("Tracker %s: %s -> %s", t.opts.ID, from, to)
	if t.opts.Console != nil {
		t.opts.Console.Logf("%s", message)
	}
	events.Publish(t.opts.Events, events.TrackerStateMsg{SessionID: t.opts.ID, From: from, To: to})
	events.Publish(t.opts.Events, events.StatusMsg{SessionID: t.opts.ID, Status: to.Status(), Message: message})
}

func (t *Tracker) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	from := t.state
	t.state = types.TrackerError
	t.err = err
	t.progress.SetError(err)
	t.errorf("%v", err)
	events.Publish(t.opts.Events, events.TrackerStateMsg{SessionID: t.opts.ID, From: from, To: types.TrackerError})
	events.Publish(t.opts.Events, events.StatusMsg{SessionID: t.opts.ID, Status: types.StatusError, Message: err.Error()})
}

func (t *Tracker) logf(format string, args ...any) {
	if t.opts.Console != nil {
		t.opts.Console.Logf(format, args...)
		return
	}
	utils.Debug(format, args...)
}

func (t *Tracker) errorf(format string, args ...any) {
	if t.opts.Console != nil {
		t.opts.Console.Errorf(format, args...)
		return
	}
	utils.Error(format, args...)
}
