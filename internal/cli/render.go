package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/ccdash/internal/model"
)

// Theme colors (Flexoki Dark)
var (
	ColorBorder    = lipgloss.Color("#282726")
	ColorTextDim   = lipgloss.Color("#575653")
	ColorTextMuted = lipgloss.Color("#6F6E69")
	ColorText      = lipgloss.Color("#FFFCF0")
	ColorAccent    = lipgloss.Color("#3AA99F")
	ColorGreen     = lipgloss.Color("#879A39")
	ColorOrange    = lipgloss.Color("#DA702C")
	ColorBlue      = lipgloss.Color("#4385BE")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorText)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	valueStyle  = lipgloss.NewStyle().Foreground(ColorText)
	labelStyle  = lipgloss.NewStyle().Foreground(ColorTextMuted)
	barStyle    = lipgloss.NewStyle().Foreground(ColorBlue)
	dimStyle    = lipgloss.NewStyle().Foreground(ColorTextDim)

	// CostStyle and WarnStyle are exported for commands that highlight values inline.
	CostStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	WarnStyle = lipgloss.NewStyle().Foreground(ColorOrange)
)

// Table is a bordered text table. The first column is left-aligned and
// the rest right-aligned unless LeftAlign marks them.
type Table struct {
	Title     string
	Headers   []string
	Rows      [][]string
	LeftAlign map[int]bool
}

// SeparatorRow renders as a horizontal rule between data rows.
var SeparatorRow = []string{"---"}

// RenderTitle renders a centered title bar in a bordered box.
func RenderTitle(title string) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1)
	return box.Render(titleStyle.Render(title))
}

// RenderTable renders t with box-drawing borders.
func RenderTable(t Table) string {
	cols := len(t.Headers)
	if cols == 0 && len(t.Rows) > 0 {
		cols = len(t.Rows[0])
	}
	if cols == 0 {
		return ""
	}

	widths := make([]int, cols)
	for i, h := range t.Headers {
		widths[i] = max(widths[i], lipgloss.Width(h))
	}
	for _, row := range t.Rows {
		for i := 0; i < cols && i < len(row); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  " + headerStyle.Render(t.Title) + "\n")
	}

	rule := func(left, mid, right string) {
		b.WriteString(dimStyle.Render(left))
		for i, w := range widths {
			b.WriteString(dimStyle.Render(strings.Repeat("─", w+2)))
			if i < cols-1 {
				b.WriteString(dimStyle.Render(mid))
			}
		}
		b.WriteString(dimStyle.Render(right) + "\n")
	}
	line := func(cells []string, style lipgloss.Style, header bool) {
		b.WriteString(dimStyle.Render("│"))
		for i := range cols {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(style.Render(" " + pad(cell, widths[i], header || i == 0 || t.LeftAlign[i]) + " "))
			if i < cols-1 {
				b.WriteString(dimStyle.Render("│"))
			}
		}
		b.WriteString(dimStyle.Render("│") + "\n")
	}

	rule("╭", "┬", "╮")
	if len(t.Headers) > 0 {
		line(t.Headers, headerStyle, true)
		rule("├", "┼", "┤")
	}
	for _, row := range t.Rows {
		if len(row) == 1 && row[0] == SeparatorRow[0] {
			rule("├", "┼", "┤")
			continue
		}
		line(row, valueStyle, false)
	}
	rule("╰", "┴", "╯")
	return b.String()
}

func pad(s string, width int, left bool) string {
	gap := width - lipgloss.Width(s)
	if gap <= 0 {
		return s
	}
	if left {
		return s + strings.Repeat(" ", gap)
	}
	return strings.Repeat(" ", gap) + s
}

// RenderKV renders aligned label/value pairs, one per line.
func RenderKV(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p[0]))
	}
	var b strings.Builder
	for _, p := range pairs {
		b.WriteString("  " + labelStyle.Render(pad(p[0], width, true)) + "  " + valueStyle.Render(p[1]) + "\n")
	}
	return b.String()
}

// RenderSparkline draws one block character per value, scaled to the maximum.
func RenderSparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}

	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	peak := values[0]
	for _, v := range values[1:] {
		peak = max(peak, v)
	}
	if peak <= 0 {
		peak = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int(v / peak * float64(len(blocks)-1))
		idx = min(max(idx, 0), len(blocks)-1)
		b.WriteRune(blocks[idx])
	}
	return barStyle.Render(b.String())
}

// RenderRanking renders a ranked count series as labelled horizontal bars.
func RenderRanking(title string, entries []model.CountEntry, barWidth int) string {
	if len(entries) == 0 {
		return ""
	}

	labelWidth, peak := 0, 0
	for _, e := range entries {
		labelWidth = max(labelWidth, lipgloss.Width(e.Key))
		peak = max(peak, e.Count)
	}
	labelWidth = min(labelWidth, 28)

	var b strings.Builder
	b.WriteString("  " + headerStyle.Render(title) + "\n")
	for _, e := range entries {
		n := 0
		if peak > 0 {
			n = e.Count * barWidth / peak
		}
		fmt.Fprintf(&b, "  %s  %s %s\n",
			labelStyle.Render(pad(Truncate(e.Key, labelWidth), labelWidth, true)),
			barStyle.Render(strings.Repeat("█", max(n, 1))),
			valueStyle.Render(FormatNumber(int64(e.Count))),
		)
	}
	return b.String()
}
