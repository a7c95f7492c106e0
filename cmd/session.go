package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sideassist/sideassist/internal/config"
	"github.com/sideassist/sideassist/internal/engine/events"
	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/guard"
	"github.com/sideassist/sideassist/internal/history"
	"github.com/sideassist/sideassist/internal/notify"
	"github.com/sideassist/sideassist/internal/process"
	"github.com/sideassist/sideassist/internal/prompt"
	"github.com/sideassist/sideassist/internal/session"
	"github.com/sideassist/sideassist/internal/tui"
	"github.com/sideassist/sideassist/internal/utils"
)

// ErrAlreadyRunning is returned when another sideassist session holds the instance lock
var ErrAlreadyRunning = errors.New("another sideassist session is already running")

const (
	headlessPollInterval  = 200 * time.Millisecond
	headlessProgressEvery = 2 * time.Second
)

// sessionEnv bundles what a session command needs besides the session itself
type sessionEnv struct {
	settings *config.Settings
	console  *utils.Console
	prompts  chan any // Non-nil in dashboard mode
	deps     session.Deps
	history  *history.Store
}

func (r *sessionEnv) Close() {
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			utils.Debug("close history: %v", err)
		}
	}
}

// newPrompter picks how decisions reach the user. The prompt channel is
// only returned when the dashboard will be shown.
func newPrompter(cmd *cobra.Command, dashboard bool) (prompt.Prompter, chan any) {
	yes, _ := cmd.Flags().GetBool("yes")
	useTUI, _ := cmd.Flags().GetBool("tui")
	switch {
	case yes:
		return prompt.Fixed{Answer: true, Choice: int(types.ReopenKeepClosed)}, nil
	case useTUI && dashboard:
		ch := make(chan any)
		return prompt.NewChannel(ch), ch
	default:
		return prompt.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout()), nil
	}
}

// newSessionEnv wires settings into session dependencies
func newSessionEnv(cmd *cobra.Command, settings *config.Settings, dashboard bool) (*sessionEnv, error) {
	console := utils.NewConsole(settings.General.ConsoleLines)
	prompter, prompts := newPrompter(cmd, dashboard)

	app := settings.App
	app.AppPath = config.ExpandHome(app.AppPath)
	app.ContainerPath = config.ExpandHome(app.ContainerPath)
	sup := process.NewLocal(app.BundleID, app.AppPath, app.LegacyExecutables)

	env := &sessionEnv{settings: settings, console: console, prompts: prompts}
	store, err := history.Open(filepath.Join(config.GetStateDir(), "history.db"))
	if err != nil {
		// History is optional
		utils.Warn("history disabled: %v", err)
	} else {
		env.history = store
	}

	env.deps = session.Deps{
		Supervisor:  sup,
		Guard:       guard.New(sup, prompter, filepath.Join(config.GetStateDir(), "container.lock")),
		Prompter:    prompter,
		Locator:     config.NewLocator(app),
		Paths:       settings.Paths,
		General:     settings.General,
		Notifier:    notify.New(settings.General.NotificationsEnabled, console),
		Timings:     types.ConvertTimings(settings.Timings),
		Network:     types.ConvertNetwork(settings.Network),
		TransferDir: config.GetTransferDir(),
		Console:     console,
	}
	if env.history != nil {
		env.deps.History = env.history
	}
	return env, nil
}

// runSession takes the instance lock, starts the session and drives it in
// the dashboard or headless until it ends
func runSession(cmd *cobra.Command, title string, newSession func(session.Deps) session.Session) error {
	settings, err := initializeGlobalState()
	if err != nil {
		return err
	}

	isMaster, err := AcquireLock()
	if err != nil {
		return err
	}
	if !isMaster {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := ReleaseLock(); err != nil {
			utils.Debug("release lock: %v", err)
		}
	}()

	env, err := newSessionEnv(cmd, settings, true)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := newSession(env.deps)
	if err := sess.Start(ctx); err != nil {
		return err
	}

	if env.prompts != nil {
		model := tui.New(sess, tui.Options{
			Title:    title,
			Console:  env.console,
			Prompts:  env.prompts,
			Settings: settings,
		})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			utils.Debug("dashboard: %v", err)
		}
		sess.Stop()
	} else {
		runHeadless(ctx, sess, env.console, cmd.OutOrStdout())
	}

	sess.Finalize()
	return sessionResult(sess)
}

// sessionResult maps the final session state to the command's error
func sessionResult(sess session.Session) error {
	switch sess.Status() {
	case types.StatusError:
		if err := sess.Err(); err != nil {
			return err
		}
		return errors.New("session failed")
	default:
		return nil
	}
}

// runHeadless mirrors console lines and periodic progress to out until the
// session ends. Cancelling ctx stops the session.
func runHeadless(ctx context.Context, sess session.Session, console *utils.Console, out io.Writer) {
	ticker := time.NewTicker(headlessPollInterval)
	defer ticker.Stop()

	progress := rate.Sometimes{Interval: headlessProgressEvery}
	seq := 0
	flush := func() {
		var lines []string
		lines, seq = console.Since(seq)
		for _, l := range lines {
			_, _ = fmt.Fprintln(out, l)
		}
	}

	for {
		select {
		case <-ctx.Done():
			sess.Stop()
			flush()
			return
		case <-sess.Done():
			flush()
			return
		case msg := <-sess.Events():
			if p, ok := msg.(events.ProgressMsg); ok && p.Total > 0 {
				progress.Do(func() {
					flush()
					line := utils.FormatProgress(p.Downloaded, p.Total)
					if p.Item != "" {
						line = p.Item + "  " + line
					}
					_, _ = fmt.Fprintln(out, line)
				})
			}
		case <-ticker.C:
			flush()
		}
	}
}
