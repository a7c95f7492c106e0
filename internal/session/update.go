package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sideassist/sideassist/internal/engine/events"
	"github.com/sideassist/sideassist/internal/engine/transfer"
	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/extract"
	"github.com/sideassist/sideassist/internal/logtail"
	"github.com/sideassist/sideassist/internal/monitor"
	"github.com/sideassist/sideassist/internal/utils"
)

// UpdateAssistant watches the app's log for download requests and fetches
// the requested files into its container itself
type UpdateAssistant struct {
	lifecycle

	execMu sync.Mutex
	exec   *transfer.Executor
}

// NewUpdateAssistant creates an idle update session
func NewUpdateAssistant(deps Deps) *UpdateAssistant {
	u := &UpdateAssistant{}
	u.init(FlowUpdate, deps)
	u.relaunch = u.deps.General.RelaunchAfter
	return u
}

// Start runs the flow in the background. It returns types.ErrSessionActive
// while a run is in progress.
func (u *UpdateAssistant) Start(ctx context.Context) error {
	runCtx, err := u.begin(ctx)
	if err != nil {
		return err
	}
	go func() {
		u.end(u.run(runCtx))
	}()
	return nil
}

// Pause suspends the file currently transferring
func (u *UpdateAssistant) Pause() bool {
	u.execMu.Lock()
	defer u.execMu.Unlock()
	return u.exec != nil && u.exec.Pause()
}

// Resume continues a paused transfer
func (u *UpdateAssistant) Resume() bool {
	u.execMu.Lock()
	defer u.execMu.Unlock()
	return u.exec != nil && u.exec.Resume()
}

// Paused reports whether the current transfer is paused
func (u *UpdateAssistant) Paused() bool {
	u.execMu.Lock()
	defer u.execMu.Unlock()
	return u.exec != nil && u.exec.Paused()
}

func (u *UpdateAssistant) setExec(e *transfer.Executor) {
	u.execMu.Lock()
	u.exec = e
	u.execMu.Unlock()
}

func (u *UpdateAssistant) run(ctx context.Context) error {
	deps := u.deps
	timings := deps.Timings

	layout, err := u.layout()
	if err != nil {
		return err
	}

	u.setStatus(types.StatusLaunching, "Starting the app")
	reader := logtail.OpenAt(layout.LogFile)
	if deps.Supervisor.IsRunning(ctx) {
		u.logf("The app is already running, watching its log from here on")
		if err := reader.SeekEnd(); err != nil {
			return fmt.Errorf("open log: %w", err)
		}
	} else {
		original, err := logtail.Snapshot(layout.LogFile)
		if err != nil {
			return fmt.Errorf("read log: %w", err)
		}
		if err := deps.Supervisor.Launch(ctx, false); err != nil {
			return err
		}
		u.setStatus(types.StatusWaiting, "Waiting for the app to start a new log")
		reset, err := logtail.WaitForResetSince(ctx, deps.Clock, layout.LogFile, original,
			timings.GetLogPollInterval(), timings.GetLogResetWait())
		if err != nil {
			return err
		}
		if !reset {
			return ErrNoLogReset
		}
		reader.OpenAt(layout.LogFile)
	}

	batch, err := u.collect(ctx, reader, layout.DownloadRoot, layout.TransferConfig)
	if err != nil {
		return err
	}
	if batch == nil {
		u.setStatus(types.StatusDone, "Nothing to update")
		return nil
	}

	tasks := u.plan(*batch)
	if len(tasks) == 0 {
		u.setStatus(types.StatusDone, "Everything is already up to date")
		return nil
	}
	if err := u.execute(ctx, tasks); err != nil {
		return err
	}

	u.setStatus(types.StatusDone, fmt.Sprintf("Updated %d file(s)", len(tasks)))
	return nil
}

// collect tails the log until a batch closes. A nil batch means the app
// never asked for anything.
func (u *UpdateAssistant) collect(ctx context.Context, reader *logtail.Reader, downloadRoot, configPath string) (*types.DownloadBatch, error) {
	deps := u.deps
	ex := extract.New(extract.Options{
		DownloadRoot: downloadRoot,
		ConfigPath:   configPath,
		Timings:      deps.Timings,
		Console:      deps.Console,
	})

	u.setStatus(types.StatusWaiting, "Watching for download requests")
	start := deps.Clock.Now()
	for {
		lines, err := reader.ReadNewLines()
		if err != nil {
			utils.Debug("Session: read log: %v", err)
		}
		now := deps.Clock.Now()
		if added := ex.Ingest(lines, now); len(added) > 0 {
			u.logf("Found %d download request(s), %d in this batch", len(added), ex.Pending())
		}
		if ex.IsBatchReadyToClose(now) {
			batch := ex.DrainBatch()
			events.Publish(u.events, events.BatchClosedMsg{
				SessionID: u.ID(),
				Tasks:     len(batch.Tasks),
				Bytes:     batch.TotalExpected(),
			})
			return &batch, nil
		}
		if ex.NothingToUpdate(now, start) {
			return nil, nil
		}
		if err := utils.Sleep(ctx, deps.Clock, deps.Timings.GetLogPollInterval()); err != nil {
			return nil, err
		}
	}
}

// plan drops tasks that are already in place or that the app handles itself
func (u *UpdateAssistant) plan(batch types.DownloadBatch) []types.PendingDownloadTask {
	var tasks []types.PendingDownloadTask
	for _, task := range batch.Tasks {
		if u.deps.General.DirectDownloadOnly && task.Kind != types.KindDirectInstall {
			continue
		}
		if transfer.AlreadyPresent(task) {
			u.logf("%s is already up to date", task.RelativePath)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// execute downloads tasks in order with the app closed and kept closed
func (u *UpdateAssistant) execute(ctx context.Context, tasks []types.PendingDownloadTask) error {
	deps := u.deps
	timings := deps.Timings

	var total int64
	for _, t := range tasks {
		total += t.ExpectedSize
	}
	u.progress.TotalSize.Store(total)

	// Files must not change under a running app
	deps.Supervisor.TerminateAll(ctx)
	if !deps.Supervisor.WaitUntilStopped(ctx, timings.GetStopWaitTimeout()) {
		utils.Warn("Session %s: app still running before transfers", u.ID())
	}

	mon := monitor.New(deps.Supervisor, deps.Prompter, timings)
	mon.Console = deps.Console
	mon.Start(ctx, u.Stop)
	mon.Suppress(timings.GetReopenSuppressLong())
	defer mon.Stop()

	tempDir := filepath.Join(deps.TransferDir, u.ID())
	exec := transfer.NewExecutor(deps.Network, tempDir)
	exec.Console = deps.Console
	exec.StallTimeout = timings.GetTransferStall()
	u.setExec(exec)
	defer func() {
		u.setExec(nil)
		if err := os.RemoveAll(tempDir); err != nil {
			utils.Debug("Session: remove %s: %v", tempDir, err)
		}
	}()

	u.setStatus(types.StatusDownloading, fmt.Sprintf("Downloading %d file(s), %s", len(tasks), utils.ConvertBytesToHumanReadable(total)))
	return u.mutate(ctx, func() error {
		var base int64
		for _, task := range tasks {
			if err := ctx.Err(); err != nil {
				return err
			}
			var written int64
			onProgress := func(p transfer.Progress) {
				written = p.Written
				u.progress.Advance(p.BatchWritten())
				events.Publish(u.events, events.ProgressMsg{
					SessionID:  u.ID(),
					Downloaded: u.progress.Downloaded.Load(),
					Total:      total,
					Item:       p.Path,
				})
			}
			err := transfer.RunWithRetry(ctx, exec, task, base, onProgress, transfer.RetryOptions{
				Timings: timings,
				Clock:   deps.Clock,
				Console: deps.Console,
			})
			if err != nil {
				return transferFailed(task, err)
			}
			base += max(task.ExpectedSize, written)
			u.mu.Lock()
			u.files++
			u.mu.Unlock()
			u.logf("Installed %s", task.RelativePath)
		}
		return nil
	})
}

func (u *UpdateAssistant) mutate(ctx context.Context, fn func() error) error {
	if u.deps.Guard == nil {
		return fn()
	}
	return u.deps.Guard.Mutate(ctx, fn)
}

func transferFailed(task types.PendingDownloadTask, err error) error {
	switch {
	case errors.Is(err, transfer.ErrCancelled), errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w: %w", task.RelativePath, ErrPermission, err)
	default:
		return fmt.Errorf("download %s: %w", task.RelativePath, err)
	}
}
