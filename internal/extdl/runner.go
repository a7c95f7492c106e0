// Package extdl supervises the external asset downloader. The downloader is
// an opaque executable: it is restarted when it exits with a failure or when
// it stops writing output for too long.
package extdl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/utils"
)

const (
	waitDelay = 2 * time.Second
	maxLine   = 64 * 1024
)

// ErrGaveUp is returned once the downloader has failed more times than allowed
var ErrGaveUp = errors.New("external downloader kept failing")

// Config describes the downloader invocation
type Config struct {
	Path string
	Args []string
	Dir  string
	Env  []string // Appended to the current environment

	Timings      *types.Timings // ExternalStall and ExternalMaxRestarts
	RestartDelay time.Duration
	Console      *utils.Console
	OnLine       func(stream, line string)
}

// Result summarises a supervised run
type Result struct {
	ExitCode int
	Restarts int
	Stalls   int
}

// attempt is the outcome of one process run
type attempt struct {
	exitCode int
	stalled  bool
}

// Runner runs the downloader until it succeeds, the context ends, or it
// runs out of restarts
type Runner struct {
	cfg Config

	lastOutput atomic.Int64 // unix nanos
}

// NewRunner creates a runner for cfg
func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg}
}

// Run supervises the downloader. Restarts counts every relaunch after the
// first start.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result
	maxRestarts := r.cfg.Timings.GetExternalMaxRestarts()

	for {
		a, err := r.runOnce(ctx)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err != nil {
			return res, err
		}
		res.ExitCode = a.exitCode
		if a.stalled {
			res.Stalls++
		} else if a.exitCode == 0 {
			return res, nil
		}

		if res.Restarts >= maxRestarts {
			return res, fmt.Errorf("%w: exit code %d after %d restart(s)", ErrGaveUp, a.exitCode, res.Restarts)
		}
		res.Restarts++
		reason := fmt.Sprintf("exited with code %d", a.exitCode)
		if a.stalled {
			reason = fmt.Sprintf("produced no output for %s", r.cfg.Timings.GetExternalStall())
		}
		r.logf("Downloader %s, restarting (%d/%d)", reason, res.Restarts, maxRestarts)

		if r.cfg.RestartDelay > 0 {
			if err := utils.Sleep(ctx, utils.RealClock{}, r.cfg.RestartDelay); err != nil {
				return res, err
			}
		}
	}
}

// runOnce starts the process and waits for it. A non-nil error means the
// process could not be started at all.
func (r *Runner) runOnce(ctx context.Context) (attempt, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Path, r.cfg.Args...)
	cmd.Dir = r.cfg.Dir
	if len(r.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), r.cfg.Env...)
	}
	stdout := &lineWriter{stream: "stdout", r: r}
	stderr := &lineWriter{stream: "stderr", r: r}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Children that inherit the pipes must not hold Wait open after a kill
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return attempt{}, fmt.Errorf("failed to start downloader: %w", err)
	}
	utils.Debug("extdl: started %s (pid %d)", r.cfg.Path, cmd.Process.Pid)
	r.touch()

	var stalled atomic.Bool
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		r.watch(runCtx, cancel, &stalled)
	}()

	waitErr := cmd.Wait()
	cancel()
	<-watchDone
	stdout.flush()
	stderr.flush()

	a := attempt{stalled: stalled.Load()}
	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			a.exitCode = exitErr.ExitCode()
		case errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil:
			a.exitCode = cmd.ProcessState.ExitCode()
		default:
			return a, fmt.Errorf("downloader wait failed: %w", waitErr)
		}
	}
	utils.Debug("extdl: %s exited with %d (stalled=%v)", r.cfg.Path, a.exitCode, a.stalled)
	return a, nil
}

// watch kills the process once it has been silent for the stall timeout
func (r *Runner) watch(ctx context.Context, kill context.CancelFunc, stalled *atomic.Bool) {
	timeout := r.cfg.Timings.GetExternalStall()
	tick := time.NewTicker(max(timeout/4, 10*time.Millisecond))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			silent := time.Since(time.Unix(0, r.lastOutput.Load()))
			if silent >= timeout {
				stalled.Store(true)
				kill()
				return
			}
		}
	}
}

func (r *Runner) emit(stream, line string) {
	r.touch()
	if r.cfg.Console != nil {
		if stream == "stderr" {
			r.cfg.Console.Errorf("%s", line)
		} else {
			r.cfg.Console.Logf("%s", line)
		}
	}
	if r.cfg.OnLine != nil {
		r.cfg.OnLine(stream, line)
	}
}

// lineWriter splits process output into lines. Carriage returns end a line
// too, since downloaders redraw progress with them.
type lineWriter struct {
	stream string
	r      *Runner

	mu  sync.Mutex
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(p) > 0 {
		w.r.touch()
	}
	for _, b := range p {
		if b == '\n' || b == '\r' {
			w.line()
			continue
		}
		if len(w.buf) < maxLine {
			w.buf = append(w.buf, b)
		}
	}
	return len(p), nil
}

func (w *lineWriter) line() {
	if len(w.buf) == 0 {
		return
	}
	line := string(w.buf)
	w.buf = w.buf[:0]
	w.r.emit(w.stream, line)
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.line()
}

func (r *Runner) touch() {
	r.lastOutput.Store(time.Now().UnixNano())
}

func (r *Runner) logf(format string, args ...any) {
	if r.cfg.Console != nil {
		r.cfg.Console.Logf(format, args...)
	}
	utils.Debug(format, args...)
}
