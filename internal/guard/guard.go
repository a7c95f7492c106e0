// Package guard gates writes into the tracked application's data container.
//
// The guard is cooperative: it makes sure the application is not running
// before a mutation starts, but it cannot stop the application's own
// background agents from touching the container at the same time.
package guard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/process"
	"github.com/sideassist/sideassist/internal/prompt"
	"github.com/sideassist/sideassist/internal/utils"
)

var (
	// ErrGuardRefused is returned when the app is running and the user declined to quit it
	ErrGuardRefused = errors.New("the app must be closed before its data can be modified")
	// ErrLocked is returned when another sideassist process is mutating the container
	ErrLocked = errors.New("container is locked by another sideassist process")
)

// Guard serializes container mutations behind an "app is not running" check
type Guard struct {
	Supervisor  process.Supervisor
	Prompter    prompt.Prompter
	LockPath    string
	StopTimeout time.Duration

	mu sync.Mutex // One prompt at a time
}

// New creates a guard. lockPath may be empty to skip the cross-process lock.
func New(sup process.Supervisor, p prompt.Prompter, lockPath string) *Guard {
	return &Guard{
		Supervisor:  sup,
		Prompter:    p,
		LockPath:    lockPath,
		StopTimeout: types.StopWaitTimeout,
	}
}

// ConfirmCanModify returns true once the app is known not to be running.
// If it is running the user is asked to quit it first.
func (g *Guard) ConfirmCanModify(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.Supervisor.IsRunning(ctx) {
		return true
	}

	ok := g.Prompter.Confirm(ctx,
		"The app is running",
		"It has to be closed before its files can be changed. Close it now?")
	if !ok {
		utils.Debug("Guard: user declined to close the app")
		return false
	}

	g.Supervisor.TerminateAll(ctx)
	stopped := g.Supervisor.WaitUntilStopped(ctx, g.StopTimeout)
	if !stopped {
		utils.Warn("Guard: app still running after %v", g.StopTimeout)
	}
	return stopped
}

// Mutate runs fn with the container lock held, after ConfirmCanModify succeeds
func (g *Guard) Mutate(ctx context.Context, fn func() error) error {
	if g.LockPath != "" {
		if err := os.MkdirAll(filepath.Dir(g.LockPath), 0o755); err != nil {
			return fmt.Errorf("guard: %w", err)
		}
		lock := flock.New(g.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("guard: lock: %w", err)
		}
		if !locked {
			return ErrLocked
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				utils.Warn("Guard: unlock failed: %v", err)
			}
		}()
	}

	if !g.ConfirmCanModify(ctx) {
		return ErrGuardRefused
	}
	return fn()
}
