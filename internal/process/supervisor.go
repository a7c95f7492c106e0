// Package process starts, stops and observes the tracked application.
package process

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/utils"
)

// Supervisor controls the tracked application as an OS process
type Supervisor interface {
	IsRunning(ctx context.Context) bool
	Launch(ctx context.Context, silent bool) error
	TerminateAll(ctx context.Context)
	WaitUntilStopped(ctx context.Context, timeout time.Duration) bool
}

// LaunchError is returned when the OS refuses to spawn the application
type LaunchError struct {
	Target string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Target, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Proc is the subset of a process handle the supervisor needs
type Proc interface {
	PID() int32
	Exe(ctx context.Context) (string, error)
	Name(ctx context.Context) (string, error)
	Kill(ctx context.Context) error
}

// Lister enumerates running processes
type Lister interface {
	List(ctx context.Context) ([]Proc, error)
}

// Runner spawns the OS "open application" command
type Runner func(ctx context.Context, name string, args ...string) error

// Matcher decides which processes belong to the tracked application
type Matcher struct {
	AppPath           string   // .app bundle; any executable below it matches
	ExecutableName    string   // Process name of the bundle executable
	LegacyExecutables []string // Wrapped or legacy executable paths
}

// Matches reports whether a process with the given exe path and name is the tracked app
func (m Matcher) Matches(exe, name string) bool {
	if exe != "" {
		exe = filepath.Clean(exe)
		if m.AppPath != "" {
			root := filepath.Clean(m.AppPath) + string(filepath.Separator)
			if strings.HasPrefix(exe, root) {
				return true
			}
		}
		for _, legacy := range m.LegacyExecutables {
			if legacy != "" && exe == filepath.Clean(legacy) {
				return true
			}
		}
	}
	return m.ExecutableName != "" && name == m.ExecutableName
}

// Local supervises the tracked application on this machine
type Local struct {
	BundleID string
	AppPath  string
	Matcher  Matcher
	Lister   Lister
	Run      Runner
	Clock    utils.Clock
	Poll     time.Duration
}

// NewLocal creates a supervisor backed by gopsutil and open(1)
func NewLocal(bundleID, appPath string, legacy []string) *Local {
	exeName := strings.TrimSuffix(filepath.Base(appPath), ".app")
	return &Local{
		BundleID: bundleID,
		AppPath:  appPath,
		Matcher: Matcher{
			AppPath:           appPath,
			ExecutableName:    exeName,
			LegacyExecutables: legacy,
		},
		Lister: gopsutilLister{},
		Run:    runCommand,
		Clock:  utils.RealClock{},
		Poll:   types.StopPollInterval,
	}
}

func (l *Local) matching(ctx context.Context) []Proc {
	procs, err := l.Lister.List(ctx)
	if err != nil {
		utils.Warn("process list failed: %v", err)
		return nil
	}

	var out []Proc
	for _, p := range procs {
		exe, _ := p.Exe(ctx)
		name, _ := p.Name(ctx)
		if l.Matcher.Matches(exe, name) {
			out = append(out, p)
		}
	}
	return out
}

// IsRunning reports whether any instance of the tracked app is alive
func (l *Local) IsRunning(ctx context.Context) bool {
	return len(l.matching(ctx)) > 0
}

// Launch starts the app through open(1). Silent launches stay in the background.
func (l *Local) Launch(ctx context.Context, silent bool) error {
	args := []string{}
	if silent {
		args = append(args, "-g")
	}
	target := l.BundleID
	if target != "" {
		args = append(args, "-b", target)
	} else {
		target = l.AppPath
		args = append(args, target)
	}

	utils.Debug("Launching %s (silent=%v)", target, silent)
	if err := l.Run(ctx, "open", args...); err != nil {
		return &LaunchError{Target: target, Err: err}
	}
	return nil
}

// TerminateAll kills every matching instance. Failures are logged, not returned.
func (l *Local) TerminateAll(ctx context.Context) {
	procs := l.matching(ctx)
	failed := 0
	for _, p := range procs {
		if err := p.Kill(ctx); err != nil {
			failed++
			utils.Warn("failed to terminate pid %d: %v", p.PID(), err)
		}
	}
	if len(procs) > 0 {
		utils.Debug("Terminated %d/%d instances", len(procs)-failed, len(procs))
	}
}

// WaitUntilStopped polls IsRunning until false or timeout
func (l *Local) WaitUntilStopped(ctx context.Context, timeout time.Duration) bool {
	poll := l.Poll
	if poll <= 0 {
		poll = types.StopPollInterval
	}
	stopped, err := utils.PollUntil(ctx, l.Clock, poll, timeout, func() bool {
		return !l.IsRunning(ctx)
	})
	return err == nil && stopped
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

type gopsutilLister struct{}

func (gopsutilLister) List(ctx context.Context) ([]Proc, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Proc, 0, len(procs))
	for _, p := range procs {
		out = append(out, gopsutilProc{p})
	}
	return out, nil
}

type gopsutilProc struct {
	p *process.Process
}

func (g gopsutilProc) PID() int32 { return g.p.Pid }

func (g gopsutilProc) Exe(ctx context.Context) (string, error) { return g.p.ExeWithContext(ctx) }

func (g gopsutilProc) Name(ctx context.Context) (string, error) { return g.p.NameWithContext(ctx) }

func (g gopsutilProc) Kill(ctx context.Context) error { return g.p.KillWithContext(ctx) }
