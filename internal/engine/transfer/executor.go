// Package transfer fetches files into the tracked application's container,
// one at a time, committing each only once it is complete.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/utils"
)

// Progress is reported while a transfer runs
type Progress struct {
	Path    string // Relative path of the item
	Written int64  // Bytes of this item written so far
	Total   int64  // Expected bytes of this item, 0 if unknown
	Base    int64  // Bytes completed by earlier items of the batch
}

// BatchWritten is the batch-wide byte count
func (p Progress) BatchWritten() int64 { return p.Base + p.Written }

// ProgressFunc receives throttled progress updates and one final update
type ProgressFunc func(Progress)

// activeTransfer is owned by the executor for the lifetime of one Transfer call
type activeTransfer struct {
	tempPath  string
	destPath  string
	expected  int64
	written   int64
	startedAt time.Time
	lastLogAt time.Time
	base      int64
	cancel    context.CancelFunc
	cancelled bool
	gate      pauseGate

	lastActivity int64 // Atomic: Unix nano timestamp of last data received
	stalled      atomic.Bool
}

// Executor runs at most one transfer at a time
type Executor struct {
	Client  *http.Client
	Network *types.NetworkConfig
	TempDir string // Scoped cache directory for in-flight files
	Console *utils.Console

	// StallTimeout aborts a transfer that receives no data for this long.
	// Zero uses types.TransferStallTimeout.
	StallTimeout time.Duration

	mu     sync.Mutex
	active *activeTransfer
}

// NewExecutor creates an executor writing temp files under tempDir
func NewExecutor(network *types.NetworkConfig, tempDir string) *Executor {
	return &Executor{
		Client:  NewHTTPClient(network),
		Network: network,
		TempDir: tempDir,
	}
}

// Active reports whether a transfer is in flight
func (e *Executor) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Pause suspends the active transfer. It returns false if nothing is running.
func (e *Executor) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return false
	}
	e.active.gate.pause()
	return true
}

// Resume continues a paused transfer. It returns false if nothing is running.
func (e *Executor) Resume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return false
	}
	e.active.gate.resume()
	return true
}

// Paused reports whether the active transfer is paused
func (e *Executor) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil && e.active.gate.paused()
}

// CancelActive aborts the active transfer; its caller receives ErrCancelled
func (e *Executor) CancelActive() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return
	}
	e.active.cancelled = true
	e.active.cancel()
}

func (e *Executor) logf(format string, args ...any) {
	if e.Console != nil {
		e.Console.Logf(format, args...)
		return
	}
	utils.Debug(format, args...)
}

// AlreadyPresent reports whether task's destination exists with the expected size
func AlreadyPresent(task types.PendingDownloadTask) bool {
	if task.ExpectedSize <= 0 {
		return false
	}
	info, err := os.Stat(task.FullPath)
	return err == nil && info.Mode().IsRegular() && info.Size() == task.ExpectedSize
}

// Transfer streams task.SourceURL into a temp file and then replaces
// task.FullPath with it. A second call while one is active returns
// ErrTransferActive without touching the network.
func (e *Executor) Transfer(ctx context.Context, task types.PendingDownloadTask, base int64, progress ProgressFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.active != nil {
		e.mu.Unlock()
		return ErrTransferActive
	}
	at := &activeTransfer{
		destPath:  task.FullPath,
		expected:  task.ExpectedSize,
		startedAt: time.Now(),
		base:      base,
		cancel:    cancel,
	}
	e.active = at
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.active = nil
		e.mu.Unlock()
	}()

	err := e.run(ctx, at, task, progress)
	if err != nil && e.wasCancelled(ctx, at) {
		return ErrCancelled
	}
	return err
}

func (e *Executor) wasCancelled(ctx context.Context, at *activeTransfer) bool {
	e.mu.Lock()
	cancelled := at.cancelled
	e.mu.Unlock()
	return cancelled || errors.Is(ctx.Err(), context.Canceled)
}

func (e *Executor) stallTimeout() time.Duration {
	if e.StallTimeout > 0 {
		return e.StallTimeout
	}
	return types.TransferStallTimeout
}

// watchStall cancels the request when no data arrives for the stall timeout.
// Time spent paused does not count.
func (e *Executor) watchStall(ctx context.Context, at *activeTransfer, cancelRequest context.CancelFunc) {
	timeout := e.stallTimeout()
	interval := timeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if at.gate.paused() {
				atomic.StoreInt64(&at.lastActivity, now.UnixNano())
				continue
			}
			idle := now.Sub(time.Unix(0, atomic.LoadInt64(&at.lastActivity)))
			if idle > timeout {
				utils.Debug("Transfer %s stalled (no data for %v), cancelling", at.destPath, idle.Round(time.Millisecond))
				at.stalled.Store(true)
				cancelRequest()
				return
			}
		}
	}
}

func (e *Executor) run(ctx context.Context, at *activeTransfer, task types.PendingDownloadTask, progress ProgressFunc) error {
	reqCtx, cancelRequest := context.WithCancel(ctx)
	defer cancelRequest()
	atomic.StoreInt64(&at.lastActivity, time.Now().UnixNano())
	go e.watchStall(reqCtx, at, cancelRequest)

	err := e.fetch(ctx, reqCtx, at, task, progress)
	if err != nil && at.stalled.Load() && ctx.Err() == nil {
		return &Error{
			Retryable: true,
			Err:       fmt.Errorf("%w: no data for %s", ErrStalled, e.stallTimeout()),
		}
	}
	return err
}

// fetch streams the response into a temp file and commits it. reqCtx bounds
// the request and is cancelled early by the stall watchdog.
func (e *Executor) fetch(ctx, reqCtx context.Context, at *activeTransfer, task types.PendingDownloadTask, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, task.SourceURL, nil)
	if err != nil {
		return &Error{Err: err}
	}
	req.Header.Set("User-Agent", e.Network.GetUserAgent())

	resp, err := e.Client.Do(req)
	if err != nil {
		return Classify(err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.Debug("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp, time.Now())
	}
	if at.expected <= 0 && resp.ContentLength > 0 {
		at.expected = resp.ContentLength
	}

	if err := os.MkdirAll(e.TempDir, 0o755); err != nil {
		return &Error{Err: fmt.Errorf("create temp dir: %w", err)}
	}
	outFile, err := os.CreateTemp(e.TempDir, filepath.Base(task.FullPath)+".*"+types.IncompleteSuffix)
	if err != nil {
		return &Error{Err: fmt.Errorf("create temp file: %w", err)}
	}
	at.tempPath = outFile.Name()

	// Track whether we completed successfully for cleanup
	success := false
	defer func() {
		_ = outFile.Close()
		if !success {
			_ = os.Remove(at.tempPath)
		}
	}()

	report := func() {
		if progress != nil {
			progress(Progress{Path: task.RelativePath, Written: at.written, Total: at.expected, Base: at.base})
		}
	}
	limiter := rate.NewLimiter(rate.Every(types.ProgressInterval), 1)
	at.lastLogAt = at.startedAt

	buf := make([]byte, e.Network.GetWorkerBufferSize())
	for {
		if err := at.gate.wait(ctx); err != nil {
			return err
		}

		nr, readErr := resp.Body.Read(buf)
		if nr > 0 {
			nw, writeErr := outFile.Write(buf[0:nr])
			if nw > 0 {
				at.written += int64(nw)
				atomic.StoreInt64(&at.lastActivity, time.Now().UnixNano())
			}
			if writeErr != nil {
				return &Error{Err: fmt.Errorf("write error: %w", writeErr)}
			}
			if nr != nw {
				return &Error{Err: io.ErrShortWrite}
			}
			if limiter.Allow() {
				report()
			}
			if now := time.Now(); now.Sub(at.lastLogAt) >= types.ProgressLogInterval {
				at.lastLogAt = now
				e.logf("Downloading %s: %s", task.RelativePath, utils.FormatProgress(at.written, at.expected))
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break // Done reading
			}
			if reqCtx.Err() != nil {
				return reqCtx.Err()
			}
			return Classify(fmt.Errorf("read error: %w", readErr))
		}
	}

	if at.expected > 0 && at.written != at.expected {
		return &Error{
			Retryable: at.written < at.expected,
			Err:       fmt.Errorf("size mismatch for %s: got %d, want %d", task.RelativePath, at.written, at.expected),
		}
	}

	if err := outFile.Sync(); err != nil {
		return &Error{Err: fmt.Errorf("sync error: %w", err)}
	}
	if err := outFile.Close(); err != nil {
		return &Error{Err: fmt.Errorf("close error: %w", err)}
	}

	// Nothing may be placed at the destination after a cancel
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := commit(at.tempPath, at.destPath); err != nil {
		return &Error{Err: err}
	}
	success = true
	report()

	elapsed := time.Since(at.startedAt)
	speed := float64(at.written) / elapsed.Seconds()
	utils.Debug("Transferred %s in %s (%s/s)",
		task.RelativePath,
		elapsed.Round(time.Millisecond),
		utils.ConvertBytesToHumanReadable(int64(speed)),
	)
	return nil
}

// commit replaces dest with the finished temp file
func commit(tempPath, destPath string) error {
	if err := os.Remove(destPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", destPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(destPath), err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		// Fallback: copy if rename fails (cross-device)
		if copyErr := copyFile(tempPath, destPath); copyErr != nil {
			_ = os.Remove(destPath)
			return fmt.Errorf("failed to finalize %s: %w", destPath, copyErr)
		}
		_ = os.Remove(tempPath)
	}
	return nil
}

// copyFile copies a file from src to dst (fallback when rename fails)
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if err := in.Close(); err != nil {
			utils.Debug("Error closing input file: %v", err)
		}
	}()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			utils.Debug("Error closing output file: %v", err)
		}
	}()

	buf := make([]byte, 1024*1024)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return err
	}
	return out.Sync()
}

// pauseGate blocks the copy loop while paused
type pauseGate struct {
	mu      sync.Mutex
	resumed chan struct{} // nil while running
}

func (g *pauseGate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resumed == nil {
		g.resumed = make(chan struct{})
	}
}

func (g *pauseGate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resumed != nil {
		close(g.resumed)
		g.resumed = nil
	}
}

func (g *pauseGate) paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resumed != nil
}

func (g *pauseGate) wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.resumed
	g.mu.Unlock()
	if ch == nil {
		return ctx.Err()
	}
	select {
	case <-ch:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
