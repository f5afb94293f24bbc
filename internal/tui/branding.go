package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/moji/internal/config"
)

const AppName = "moji"

// LogoLines is the block-letter logo shown on the empty grid and by `moji version`.
var LogoLines = []string{
	"▄▄▄▄▄▄▄  ▄▄▄▄▄    ▄▄ ▄▄",
	"██ ██ ██ ██   ██   ██ ██",
	"██ ██ ██ ██   ██   ██ ██",
	"██    ██  ▀▀▀▀▀ ▀▀▀▀  ██",
}

const CompactLogo = `moji ›`

// BannerColors cycle over the banner lines.
var BannerColors = []lipgloss.Color{
	lipgloss.Color("#FF8C42"),
	lipgloss.Color("#FFD166"),
	lipgloss.Color("#4ECDC4"),
	lipgloss.Color("#FF8C42"),
}

// Theme holds the palette and the styles derived from it. The zero value is
// not usable; build one with NewTheme.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Text      lipgloss.Color
	Muted     lipgloss.Color
	Error     lipgloss.Color
	Success   lipgloss.Color

	Logo      lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Help      lipgloss.Style
	Separator lipgloss.Style

	Cell         lipgloss.Style
	SelectedCell lipgloss.Style
	FailedCell   lipgloss.Style

	StatusInfo    lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusWarn    lipgloss.Style
	StatusError   lipgloss.Style
}

// NewTheme builds styles from configured colors. Empty entries keep the
// default palette.
func NewTheme(c config.UIColors) Theme {
	pick := func(v, def string) lipgloss.Color {
		if v == "" {
			return lipgloss.Color(def)
		}
		return lipgloss.Color(v)
	}
	t := Theme{
		Primary:   pick(c.Primary, "#FF8C42"),
		Secondary: pick(c.Secondary, "#4ECDC4"),
		Accent:    pick(c.Accent, "#FFD166"),
		Text:      pick(c.Text, "#EAEAEA"),
		Muted:     pick(c.Muted, "#94A3B8"),
		Error:     pick(c.Error, "#F87171"),
		Success:   pick(c.Success, "#4ADE80"),
	}

	t.Logo = lipgloss.NewStyle().Foreground(t.Primary).Bold(true)
	t.Title = lipgloss.NewStyle().Foreground(t.Text).Bold(true).Padding(0, 1)
	t.Header = lipgloss.NewStyle().Foreground(t.Secondary).Bold(true)
	t.Help = lipgloss.NewStyle().Foreground(t.Muted).Italic(true)
	t.Separator = lipgloss.NewStyle().Foreground(t.Muted)

	t.Cell = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Muted).
		Foreground(t.Text)
	t.SelectedCell = t.Cell.BorderForeground(t.Accent).Bold(true)
	t.FailedCell = t.Cell.BorderForeground(t.Error).Foreground(t.Error)

	t.StatusInfo = lipgloss.NewStyle().Foreground(t.Muted)
	t.StatusSuccess = lipgloss.NewStyle().Foreground(t.Success)
	t.StatusWarn = lipgloss.NewStyle().Foreground(t.Accent)
	t.StatusError = lipgloss.NewStyle().Foreground(t.Error).Bold(true)
	return t
}

// StatusStyle returns the style for a severity.
func (t Theme) StatusStyle(kind StatusKind) lipgloss.Style {
	switch kind {
	case StatusSuccess:
		return t.StatusSuccess
	case StatusWarn:
		return t.StatusWarn
	case StatusError:
		return t.StatusError
	default:
		return t.StatusInfo
	}
}

// GetWelcomeMessage is the empty-grid placeholder.
func GetWelcomeMessage(searchKey string) string {
	return GetCompactBanner(fmt.Sprintf("Press %s to search for images", searchKey))
}

func GetCompactBanner(message string) string {
	logoStyle := lipgloss.NewStyle().Foreground(BannerColors[0]).Bold(true)
	lines := make([]string, 0, len(LogoLines))
	for _, line := range LogoLines {
		lines = append(lines, logoStyle.Render(line))
	}

	return lipgloss.JoinVertical(
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, lines...),
		"",
		lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8")).Italic(true).Render(message),
	)
}

func ShowBanner(version string) {
	lines := make([]string, len(LogoLines)+1)
	copy(lines, LogoLines)

	tagline := "    Image Search Grid"
	if version != "" && version != "dev" {
		if version[0] != 'v' && version[0] != 'V' {
			version = "v" + version
		}
		tagline += " " + version
	}
	lines = append(lines, tagline)

	colored := make([]string, 0, len(lines))
	for i, line := range lines {
		if line == "" {
			colored = append(colored, line)
			continue
		}
		style := lipgloss.NewStyle().
			Foreground(BannerColors[i%len(BannerColors)]).
			Bold(i < len(LogoLines))
		colored = append(colored, style.Render(line))
	}

	border := lipgloss.Border{
		Top:         "═",
		Bottom:      "═",
		Left:        "║",
		Right:       "║",
		TopLeft:     "╔",
		TopRight:    "╗",
		BottomLeft:  "╚",
		BottomRight: "╝",
	}
	banner := lipgloss.NewStyle().
		Border(border).
		BorderForeground(lipgloss.Color("#4ECDC4")).
		Padding(1, 3).
		MarginTop(1).
		Render(lipgloss.JoinVertical(lipgloss.Center, colored...))

	center := lipgloss.NewStyle().Width(70).Align(lipgloss.Center)
	fmt.Println(center.Render(banner))
	fmt.Println(center.MarginBottom(1).Render(
		lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD166")).Render("▪ ▫ ▪ ▫ ▪"),
	))
}
