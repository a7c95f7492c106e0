package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette holds the colors of one theme
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Text      lipgloss.Color
	Subtext   lipgloss.Color
	Border    lipgloss.Color
}

var (
	// Dracula
	DarkPalette = Palette{
		Primary:   lipgloss.Color("#bd93f9"),
		Secondary: lipgloss.Color("#ff79c6"),
		Success:   lipgloss.Color("#50fa7b"),
		Error:     lipgloss.Color("#ff5555"),
		Warning:   lipgloss.Color("#ffb86c"),
		Text:      lipgloss.Color("#f8f8f2"),
		Subtext:   lipgloss.Color("#6272a4"),
		Border:    lipgloss.Color("#44475a"),
	}

	// Alucard, the light Dracula variant
	LightPalette = Palette{
		Primary:   lipgloss.Color("#644ac9"),
		Secondary: lipgloss.Color("#a3144d"),
		Success:   lipgloss.Color("#14710a"),
		Error:     lipgloss.Color("#cb3a2a"),
		Warning:   lipgloss.Color("#a34d14"),
		Text:      lipgloss.Color("#1f1f1f"),
		Subtext:   lipgloss.Color("#635d97"),
		Border:    lipgloss.Color("#cfcfde"),
	}
)

// DetectPalette picks the theme matching the terminal background
func DetectPalette() Palette {
	if termenv.HasDarkBackground() {
		return DarkPalette
	}
	return LightPalette
}

// Styles are the lipgloss styles derived from a palette
type Styles struct {
	Palette Palette

	App      lipgloss.Style
	Title    lipgloss.Style
	Status   lipgloss.Style
	Message  lipgloss.Style
	Stats    lipgloss.Style
	Console  lipgloss.Style
	ErrLine  lipgloss.Style
	Help     lipgloss.Style
	Selected lipgloss.Style
	Item     lipgloss.Style
	Tab      lipgloss.Style
	ActTab   lipgloss.Style
}

// NewStyles builds the styles for p
func NewStyles(p Palette) Styles {
	return Styles{
		Palette: p,
		App: lipgloss.NewStyle().
			Padding(DefaultPaddingY, 2).
			Foreground(p.Text),
		Title: lipgloss.NewStyle().
			Foreground(p.Primary).
			Bold(true),
		Status: lipgloss.NewStyle().
			Foreground(p.Secondary).
			Bold(true),
		Message: lipgloss.NewStyle().
			Foreground(p.Text),
		Stats: lipgloss.NewStyle().
			Foreground(p.Subtext),
		Console: lipgloss.NewStyle().
			Foreground(p.Subtext),
		ErrLine: lipgloss.NewStyle().
			Foreground(p.Error),
		Help: lipgloss.NewStyle().
			Foreground(p.Subtext).
			Italic(true),
		Selected: lipgloss.NewStyle().
			Foreground(p.Secondary).
			Bold(true),
		Item: lipgloss.NewStyle().
			Foreground(p.Text),
		Tab: lipgloss.NewStyle().
			Foreground(p.Subtext).
			Padding(DefaultPaddingY, DefaultPaddingX),
		ActTab: lipgloss.NewStyle().
			Foreground(p.Secondary).
			Bold(true).
			Underline(true).
			Padding(DefaultPaddingY, DefaultPaddingX),
	}
}
