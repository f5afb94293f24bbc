package tui

import (
	"path"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderHeader is the one-line title bar: app name, keyword and counts.
func (a *App) renderHeader() string {
	title := a.theme.Logo.Render(CompactLogo)
	sub := ""
	if kw := a.ctrl.Keyword(); kw != "" {
		sub = a.theme.Header.Render(truncateEnd(kw, a.width/3))
		if n := a.ctrl.Len(); n > 0 {
			sub += renderMuted(" · " + MsgGridSummary(a.counts()))
		}
	}
	return lipgloss.NewStyle().Width(a.width).MaxHeight(1).Render(title + " " + sub)
}

// renderInputFrame draws a rounded bordered container around a rendered input view.
func (a *App) renderInputFrame(inputView string, focused bool, contentWidth int) string {
	border := a.theme.Muted
	if focused {
		border = a.theme.Accent
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(contentWidth + 4).
		Render(inputView)
}

func renderCentered(width, height int, content string) string {
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(content)
}

func renderMuted(text string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8")).Render(text)
}

// renderCell draws one grid tile of the given outer size.
func (a *App) renderCell(index, width, height int) string {
	inner := width - 2
	if inner < 1 {
		inner = 1
	}
	innerH := height - 2
	if innerH < 1 {
		innerH = 1
	}

	c, ok := a.cells[index]
	if !ok {
		return lipgloss.NewStyle().Width(width).Height(height).Render("")
	}

	style := a.theme.Cell
	var label string
	switch c.state {
	case cellReady:
		glyph := "▣"
		if c.animated {
			glyph = "▶"
		}
		format := strings.ToUpper(c.format)
		if format == "" {
			format = "IMG"
		}
		label = lipgloss.NewStyle().Foreground(a.theme.Success).Render(glyph) +
			" " + format + " " + renderMuted(humanBytes(c.size))
	case cellFailed:
		style = a.theme.FailedCell
		label = "✗ " + c.code
	default:
		label = a.spinner.View() + renderMuted(" loading")
	}
	if index == a.selected {
		style = a.theme.SelectedCell
		if c.state == cellFailed {
			style = style.Foreground(a.theme.Error)
		}
	}

	name := path.Base(c.url)
	lines := []string{
		renderMuted("#"+strconv.Itoa(index)) + " " + label,
		renderMuted(truncateMiddle(name, inner)),
	}
	if innerH < len(lines) {
		lines = lines[:innerH]
	}

	return style.
		Width(inner).
		Height(innerH).
		MaxWidth(width).
		MaxHeight(height).
		Render(strings.Join(lines, "\n"))
}
