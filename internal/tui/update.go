package tui

import (
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sideassist/sideassist/internal/config"
	"github.com/sideassist/sideassist/internal/engine/events"
	"github.com/sideassist/sideassist/internal/utils"
)

// Update handles messages and updates the model
func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tickMsg:
		m.sample(time.Time(msg))
		cmds = append(cmds, m.progress.SetPercent(m.snap.Progress))
		if !m.done {
			cmds = append(cmds, tick())
		}

	case eventMsg:
		if msg.prompt {
			if p, ok := msg.msg.(events.PromptMsg); ok {
				m.prompt = &p
			}
			cmds = append(cmds, listenForActivity(m.opts.Prompts, true))
			break
		}
		switch ev := msg.msg.(type) {
		case events.StatusMsg:
			m.snap.Status = ev.Status
			m.snap.Message = ev.Message
		case events.ProgressMsg:
			m.snap.Downloaded = ev.Downloaded
			m.snap.Total = ev.Total
		case events.SessionErrorMsg:
			m.err = ev.Err
		case events.SessionCompleteMsg:
			m.notice = "Finished in " + ev.Elapsed.Round(time.Second).String()
		}
		cmds = append(cmds, listenForActivity(m.src.Events(), false))

	case doneMsg:
		m.done = true
		m.snap = m.src.Snapshot()
		cmds = append(cmds, m.progress.SetPercent(m.snap.Progress))

	case copiedMsg:
		if msg.err != nil {
			m.notice = "Copy failed: " + msg.err.Error()
		} else {
			m.notice = "Console copied to clipboard"
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(msg.Width-ProgressBarWidthOffset, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case progress.FrameMsg:
		newModel, cmd := m.progress.Update(msg)
		if p, ok := newModel.(progress.Model); ok {
			m.progress = p
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m RootModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.prompt != nil {
		switch key {
		case "esc":
			m.answer(-1)
		case "y", "n":
			if len(m.prompt.Options) == 2 {
				if key == "y" {
					m.answer(0)
				} else {
					m.answer(1)
				}
			}
		default:
			if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(m.prompt.Options) {
				m.answer(n - 1)
			}
		}
		return m, nil
	}

	switch m.state {
	case SettingsState:
		switch key {
		case "esc", "s", "q":
			m.state = DashboardState
		case "left", "h":
			m.SettingsActiveTab = (m.SettingsActiveTab + len(config.CategoryOrder()) - 1) % len(config.CategoryOrder())
		case "right", "l", "tab":
			m.SettingsActiveTab = (m.SettingsActiveTab + 1) % len(config.CategoryOrder())
		default:
			if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(config.CategoryOrder()) {
				m.SettingsActiveTab = n - 1
			}
		}
		return m, nil
	}

	switch key {
	case "q", "ctrl+c":
		if m.done {
			return m, tea.Quit
		}
		m.notice = "Stopping..."
		src := m.src
		return m, func() tea.Msg {
			src.Stop()
			return tea.QuitMsg{}
		}
	case "y":
		return m, m.copyConsole()
	case "s":
		if m.opts.Settings != nil {
			m.state = SettingsState
		}
	case "p":
		m.togglePause()
	}
	return m, nil
}

// togglePause pauses or resumes the source's active transfer
func (m *RootModel) togglePause() {
	p, ok := m.pausable()
	if !ok || m.done {
		return
	}
	switch {
	case p.Paused():
		if p.Resume() {
			m.notice = "Resumed"
		}
	case p.Pause():
		m.notice = "Paused"
	default:
		m.notice = "Nothing to pause"
	}
	m.paused = p.Paused()
}

// answer replies to the open prompt and closes it
func (m *RootModel) answer(n int) {
	select {
	case m.prompt.Reply <- n:
	default:
		utils.Debug("TUI: prompt %q already answered", m.prompt.Title)
	}
	m.prompt = nil
}

// sample refreshes the snapshot and records throughput since the last tick
func (m *RootModel) sample(now time.Time) {
	m.snap = m.src.Snapshot()
	if p, ok := m.pausable(); ok {
		m.paused = p.Paused()
	}
	if !m.lastAt.IsZero() {
		if dt := now.Sub(m.lastAt).Seconds(); dt > 0 {
			speed := float64(max(m.snap.Downloaded-m.lastSeen, 0)) / dt
			m.speeds = append(m.speeds, speed)
			if len(m.speeds) > SpeedHistory {
				m.speeds = m.speeds[len(m.speeds)-SpeedHistory:]
			}
		}
	}
	m.lastSeen = m.snap.Downloaded
	m.lastAt = now
}

// Speed returns the latest throughput sample in bytes per second
func (m RootModel) Speed() float64 {
	if len(m.speeds) == 0 {
		return 0
	}
	return m.speeds[len(m.speeds)-1]
}
