package tui

import "time"

const (
	// Timeouts and Intervals
	TickInterval = 250 * time.Millisecond

	// Layout Offsets and Padding
	ProgressBarWidthOffset = 6
	DefaultPaddingX        = 1
	DefaultPaddingY        = 0
	MinWidth               = 40
	SettingsWidth          = 70
	SettingsHeight         = 16

	// Panels
	ConsoleTailLines = 8
	GraphHeight      = 4
	SpeedHistory     = 120 // Samples kept for the graph
)
