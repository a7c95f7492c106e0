package session

import (
	"context"
	"errors"
	"sync"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/monitor"
	"github.com/sideassist/sideassist/internal/tracker"
)

// DownloadTracker follows a download the app runs in its background agent
type DownloadTracker struct {
	lifecycle

	trMu    sync.Mutex
	tracker *tracker.Tracker
}

// NewDownloadTracker creates an idle tracking session
func NewDownloadTracker(deps Deps) *DownloadTracker {
	d := &DownloadTracker{}
	d.init(FlowTrack, deps)
	return d
}

// Start runs the tracker in the background. It returns
// types.ErrSessionActive while a run is in progress.
func (d *DownloadTracker) Start(ctx context.Context) error {
	runCtx, err := d.begin(ctx)
	if err != nil {
		return err
	}
	go func() {
		d.end(d.run(runCtx))
	}()
	return nil
}

// Tracker returns the state machine of the current run, or nil
func (d *DownloadTracker) Tracker() *tracker.Tracker {
	d.trMu.Lock()
	defer d.trMu.Unlock()
	return d.tracker
}

func (d *DownloadTracker) newTracker(layoutSignal, layoutCache string) *tracker.Tracker {
	deps := d.deps
	mon := monitor.New(deps.Supervisor, deps.Prompter, deps.Timings)
	mon.Console = deps.Console
	return tracker.New(tracker.Options{
		ID:         d.ID(),
		Supervisor: deps.Supervisor,
		Signal:     tracker.JSONSignal{Path: layoutSignal},
		Cache:      tracker.DirSize{Path: layoutCache},
		SignalPath: layoutSignal,
		Monitor:    mon,
		Timings:    deps.Timings,
		Clock:      deps.Clock,
		Console:    deps.Console,
		Events:     d.events,
		Progress:   d.progress,
	})
}

func (d *DownloadTracker) run(ctx context.Context) error {
	layout, err := d.layout()
	if err != nil {
		return err
	}

	tr := d.newTracker(layout.SignalFile, layout.CacheDir)
	d.trMu.Lock()
	d.tracker = tr
	d.trMu.Unlock()

	if err := tr.Start(ctx); err != nil {
		return err
	}
	<-tr.Done()

	switch tr.State() {
	case types.TrackerComplete:
		return nil
	case types.TrackerError:
		return tr.Err()
	default:
		return context.Canceled
	}
}

// ResetProgress deletes the app's progress file through the write guard
func (d *DownloadTracker) ResetProgress(ctx context.Context) error {
	if d.Active() {
		return types.ErrSessionActive
	}
	if d.deps.Guard == nil {
		return errors.New("reset progress: no write guard configured")
	}
	layout, err := d.layout()
	if err != nil {
		return err
	}
	tr := tracker.New(tracker.Options{
		SignalPath: layout.SignalFile,
		Timings:    d.deps.Timings,
		Console:    d.deps.Console,
	})
	return tr.Reset(ctx, d.deps.Guard)
}
