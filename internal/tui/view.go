package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sideassist/sideassist/internal/engine/types"
	"github.com/sideassist/sideassist/internal/utils"
)

func (m RootModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.state == SettingsState && m.opts.Settings != nil {
		return m.viewSettings()
	}

	width := max(m.width-4, MinWidth)
	inner := width - 4

	// Status line and progress
	label := strings.ToUpper(string(m.snap.Status))
	if m.paused {
		label += " (PAUSED)"
	}
	status := m.st.Status.Render(label)
	message := m.st.Message.Render(truncateString(m.snap.Message, max(inner-lipgloss.Width(status)-4, 10)))
	stats := m.st.Stats.Render(m.statsLine())

	top := lipgloss.JoinVertical(lipgloss.Left,
		status+"  "+message,
		"",
		m.progress.View(),
		stats,
	)

	graph := renderSpeedGraph(m.speeds, inner, GraphHeight, m.st.Palette.Success, m.st.Palette.Border)
	console := m.consoleTail(inner)

	sections := []string{
		renderBox(m.opts.Title, top, width, 6, statusColor(m.snap.Status, m.st.Palette), m.st),
		renderBox("Throughput "+utils.ConvertBytesToHumanReadable(int64(m.Speed()))+"/s", graph, width, GraphHeight+2, m.st.Palette.Border, m.st),
		renderBox("Console", console, width, ConsoleTailLines+2, m.st.Palette.Border, m.st),
	}
	if m.prompt != nil {
		sections = append(sections, m.viewPrompt(width))
	}
	sections = append(sections, m.st.Help.Render(m.helpLine()))

	return m.st.App.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m RootModel) statsLine() string {
	line := utils.FormatProgress(m.snap.Downloaded, m.snap.Total)
	if m.err != nil {
		line += "  " + m.st.ErrLine.Render(m.err.Error())
	}
	if m.notice != "" {
		line += "  " + m.notice
	}
	return line
}

func (m RootModel) consoleTail(width int) string {
	lines := m.opts.Console.Lines()
	if len(lines) > ConsoleTailLines {
		lines = lines[len(lines)-ConsoleTailLines:]
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = truncateString(l, max(width-3, 10))
		if strings.Contains(l, "] error: ") {
			out = append(out, m.st.ErrLine.Render(l))
		} else {
			out = append(out, m.st.Console.Render(l))
		}
	}
	return strings.Join(out, "\n")
}

func (m RootModel) viewPrompt(width int) string {
	p := m.prompt
	var b strings.Builder
	b.WriteString(m.st.Message.Render(p.Message))
	b.WriteString("\n\n")
	for i, opt := range p.Options {
		fmt.Fprintf(&b, "%s %s\n", m.st.Selected.Render(fmt.Sprintf("[%d]", i+1)), m.st.Item.Render(opt))
	}
	content := strings.TrimRight(b.String(), "\n")
	height := lipgloss.Height(content) + 2
	return renderBox(p.Title, content, width, height, m.st.Palette.Secondary, m.st)
}

func (m RootModel) helpLine() string {
	switch {
	case m.prompt != nil && len(m.prompt.Options) == 2:
		return "[y/n] or [1-2] Answer  [Esc] Dismiss"
	case m.prompt != nil:
		return fmt.Sprintf("[1-%d] Answer  [Esc] Dismiss", len(m.prompt.Options))
	case m.done:
		return "[y] Copy console  [q] Quit"
	}
	help := "[y] Copy console  [q] Stop"
	if _, ok := m.pausable(); ok {
		if m.paused {
			help += "  [p] Resume"
		} else {
			help += "  [p] Pause"
		}
	}
	if m.opts.Settings != nil {
		help += "  [s] Settings"
	}
	return help
}

// statusColor is the border color for a session status
func statusColor(s types.Status, p Palette) lipgloss.Color {
	switch s {
	case types.StatusDone:
		return p.Success
	case types.StatusError:
		return p.Error
	case types.StatusStopped:
		return p.Warning
	default:
		return p.Border
	}
}

func truncateString(s string, i int) string {
	runes := []rune(s)
	if len(runes) > i {
		return string(runes[:i]) + "..."
	}
	return s
}

// renderBox draws a rounded box with the title embedded in the top border:
//
//	╭─ TITLE ──────────╮
//	│ content          │
//	╰──────────────────╯
func renderBox(title, content string, width, height int, borderColor lipgloss.Color, st Styles) string {
	const (
		topLeft     = "╭"
		topRight    = "╮"
		bottomLeft  = "╰"
		bottomRight = "╯"
		horizontal  = "─"
		vertical    = "│"
	)

	border := lipgloss.NewStyle().Foreground(borderColor)
	innerWidth := max(width-2, 1)

	titleText := fmt.Sprintf(" %s ", title)
	remaining := max(innerWidth-lipgloss.Width(titleText)-1, 0)
	top := border.Render(topLeft+horizontal) +
		st.Title.Render(titleText) +
		border.Render(strings.Repeat(horizontal, remaining)+topRight)
	bottom := border.Render(bottomLeft + strings.Repeat(horizontal, innerWidth) + bottomRight)

	lines := strings.Split(content, "\n")
	rows := make([]string, 0, max(height-2, 0))
	for i := 0; i < height-2; i++ {
		line := " "
		if i < len(lines) {
			line += lines[i]
		}
		if w := lipgloss.Width(line); w < innerWidth {
			line += strings.Repeat(" ", innerWidth-w)
		}
		rows = append(rows, border.Render(vertical)+line+border.Render(vertical))
	}

	return lipgloss.JoinVertical(lipgloss.Left, top, strings.Join(rows, "\n"), bottom)
}
