package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sideassist/sideassist/internal/config"
)

// viewSettings renders the read-only settings page. Settings are edited
// with `sideassist settings set` while no session runs.
func (m RootModel) viewSettings() string {
	width := min(SettingsWidth, max(m.width-4, MinWidth))
	height := min(SettingsHeight, max(m.height-2, 8))

	categories := config.CategoryOrder()
	metadata := config.GetSettingsMetadata()

	var tabs []string
	for i, cat := range categories {
		label := fmt.Sprintf("[%d] %s", i+1, cat)
		if i == m.SettingsActiveTab {
			tabs = append(tabs, m.st.ActTab.Render(label))
		} else {
			tabs = append(tabs, m.st.Tab.Render(label))
		}
	}

	category := categories[m.SettingsActiveTab]
	values := config.Values(m.opts.Settings, category)

	labelWidth := 22
	var rows []string
	for _, meta := range metadata[category] {
		label := m.st.Item.Width(labelWidth).Render(meta.Label)
		value := m.st.Selected.Render(formatSettingValue(values[meta.Key], meta.Type))
		rows = append(rows, label+value)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Left, tabs...),
		"",
		strings.Join(rows, "\n"),
		"",
		m.st.Help.Render("[1-4] Tab  [Esc] Back"),
	)
	box := renderBox("Settings", content, width, height, m.st.Palette.Secondary, m.st)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// formatSettingValue formats a setting value for display
func formatSettingValue(value any, typ string) string {
	if value == nil {
		return "-"
	}

	switch typ {
	case "bool":
		if b, ok := value.(bool); ok {
			if b {
				return "On"
			}
			return "Off"
		}
	case "duration":
		if d, ok := value.(time.Duration); ok {
			if d == 0 {
				return "(default)"
			}
			return d.String()
		}
	case "string":
		if s, ok := value.(string); ok {
			if s == "" {
				return "(default)"
			}
			return truncateString(s, 40)
		}
	}
	return fmt.Sprintf("%v", value)
}
