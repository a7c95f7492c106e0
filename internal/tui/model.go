// Package tui renders a running session: status, progress, throughput and
// the console tail, and answers the session's prompts from the keyboard.
package tui

import (
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sideassist/sideassist/internal/config"
	"github.com/sideassist/sideassist/internal/engine/events"
	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/utils"
)

// Source is the session being displayed
type Source interface {
	Snapshot() types.Snapshot
	Events() <-chan any
	Done() <-chan struct{}
	Stop()
}

// Pausable is implemented by sources whose transfers can be suspended
type Pausable interface {
	Pause() bool
	Resume() bool
	Paused() bool
}

// UIState selects what the main view shows
type UIState int

const (
	DashboardState UIState = iota
	SettingsState
)

// Options configures the model
type Options struct {
	Title    string
	Console  *utils.Console
	Prompts  <-chan any // events.PromptMsg from a prompt.Channel
	Settings *config.Settings
	Styles   *Styles            // Detected from the terminal when nil
	Copy     func(string) error // Defaults to the system clipboard
}

// RootModel is the bubbletea model for one session
type RootModel struct {
	src  Source
	opts Options
	st   Styles

	width  int
	height int
	state  UIState

	snap     types.Snapshot
	progress progress.Model
	speeds   []float64
	lastSeen int64
	lastAt   time.Time

	prompt *events.PromptMsg
	notice string
	paused bool
	done   bool
	err    error

	SettingsActiveTab int
}

// New creates a model for src
func New(src Source, opts Options) RootModel {
	var st Styles
	if opts.Styles != nil {
		st = *opts.Styles
	} else {
		st = NewStyles(DetectPalette())
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	if opts.Console == nil {
		opts.Console = utils.NewConsole(types.ConsoleLines)
	}
	if opts.Title == "" {
		opts.Title = "sideassist"
	}
	return RootModel{
		src:      src,
		opts:     opts,
		st:       st,
		progress: progress.New(progress.WithGradient(string(st.Palette.Primary), string(st.Palette.Secondary))),
		snap:     src.Snapshot(),
	}
}

type tickMsg time.Time

// eventMsg wraps a message read from one of the session channels
type eventMsg struct {
	msg    any
	prompt bool
}

// doneMsg is sent once the session's Done channel closes
type doneMsg struct{}

type copiedMsg struct{ err error }

func (m RootModel) Init() tea.Cmd {
	cmds := []tea.Cmd{tick(), listenForActivity(m.src.Events(), false), waitDone(m.src.Done())}
	if m.opts.Prompts != nil {
		cmds = append(cmds, listenForActivity(m.opts.Prompts, true))
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(TickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func listenForActivity(sub <-chan any, prompt bool) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-sub
		if !ok {
			return nil
		}
		return eventMsg{msg: msg, prompt: prompt}
	}
}

func waitDone(done <-chan struct{}) tea.Cmd {
	if done == nil {
		return nil
	}
	return func() tea.Msg {
		<-done
		return doneMsg{}
	}
}

func (m RootModel) copyConsole() tea.Cmd {
	lines := m.opts.Console.Lines()
	copyFn := m.opts.Copy
	return func() tea.Msg {
		return copiedMsg{err: copyFn(strings.Join(lines, "\n"))}
	}
}

// pausable returns the source as a Pausable, if it is one
func (m RootModel) pausable() (Pausable, bool) {
	p, ok := m.src.(Pausable)
	return p, ok
}

// Done reports whether the session has finished
func (m RootModel) Done() bool {
	return m.done
}
