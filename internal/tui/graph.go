package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var blocks = []string{" ", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// renderSpeedGraph draws the newest width samples as a bar graph filling
// from the right, scaled to the largest visible sample. Empty columns show a
// dashed grid on even rows.
func renderSpeedGraph(data []float64, width, height int, bar, grid lipgloss.Color) string {
	if width < 1 || height < 1 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}
	peak := 0.0
	for _, v := range data {
		peak = max(peak, v)
	}

	barStyle := lipgloss.NewStyle().Foreground(bar)
	gridStyle := lipgloss.NewStyle().Foreground(grid)
	offset := width - len(data)

	var s strings.Builder
	for row := range height {
		// Sub-blocks below this row
		floor := float64((height - 1 - row) * 8)
		for x := range width {
			level := 0.0
			if i := x - offset; i >= 0 && peak > 0 {
				level = max(data[i], 0) / peak * float64(height*8)
			}
			switch v := level - floor; {
			case v >= 8:
				s.WriteString(barStyle.Render("█"))
			case v > 0:
				s.WriteString(barStyle.Render(blocks[int(v)]))
			case row%2 == 0:
				s.WriteString(gridStyle.Render("╌"))
			default:
				s.WriteByte(' ')
			}
		}
		if row < height-1 {
			s.WriteByte('\n')
		}
	}
	return s.String()
}
