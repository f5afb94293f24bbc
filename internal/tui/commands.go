package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/moji/internal/aggregate"
	"github.com/pders01/moji/internal/debuglog"
	"github.com/pders01/moji/internal/media"
)

const (
	maxSuggestions = 5
	maxReports     = 20
)

// waitForEvents blocks until a worker posts to the controller's mailbox.
func (a *App) waitForEvents() tea.Cmd {
	notify := a.ctrl.Mailbox().Notify()
	done := a.done
	return func() tea.Msg {
		select {
		case <-notify:
			return mailboxMsg{}
		case <-done:
			return nil
		}
	}
}

func (a *App) scheduleSuggestions(wait time.Duration) tea.Cmd {
	a.suggestSeq++
	seq := a.suggestSeq
	if wait <= 0 {
		return a.loadSuggestions(seq, a.searchInput.Value())
	}
	return tea.Tick(wait, func(time.Time) tea.Msg { return suggestDebounceMsg{seq: seq} })
}

func (a *App) loadSuggestions(seq int, prefix string) tea.Cmd {
	if a.history == nil {
		return nil
	}
	hist := a.history
	return func() tea.Msg {
		return suggestionsMsg{seq: seq, keywords: hist.Keywords(sanitizeKeyword(prefix), maxSuggestions)}
	}
}

func (a *App) selectedURL() (string, bool) {
	if a.ctrl.Len() == 0 {
		return "", false
	}
	return a.ctrl.URL(a.selected)
}

func (a *App) copySelected() tea.Cmd {
	url, ok := a.selectedURL()
	if !ok {
		return a.flash(MsgNoSelection, StatusWarn)
	}
	target := media.CopyURL(url)
	write := a.clipboard
	return func() tea.Msg {
		if err := write(target); err != nil {
			return flashMsg{text: wrapErr("copy failed", err).Error(), kind: StatusError}
		}
		return flashMsg{text: MsgCopied(target), kind: StatusSuccess}
	}
}

func (a *App) openSelected() tea.Cmd {
	url, ok := a.selectedURL()
	if !ok {
		return a.flash(MsgNoSelection, StatusWarn)
	}
	if a.launcher == nil {
		return a.flash(MsgNoViewer, StatusError)
	}
	target := media.OriginalURL(url)
	l := a.launcher
	return func() tea.Msg {
		if err := l.Open(target); err != nil {
			debuglog.Warnf("open %s: %v", target, err)
			return flashMsg{text: wrapErr("open failed", err).Error(), kind: StatusError}
		}
		return flashMsg{text: MsgOpened(l.Viewer()), kind: StatusSuccess}
	}
}

func (a *App) flash(text string, kind StatusKind) tea.Cmd {
	return func() tea.Msg { return flashMsg{text: text, kind: kind} }
}

// togglePanel switches between the grid and a markdown panel.
func (a *App) togglePanel(v View) tea.Cmd {
	if a.view == v {
		a.view = ViewGrid
		return nil
	}
	a.searchInput.Blur()
	a.view = v
	a.viewport.SetContent(renderMuted("Rendering…"))
	return a.renderPanel(v)
}

func (a *App) renderPanel(v View) tea.Cmd {
	var md string
	switch v {
	case ViewErrors:
		md = errorsMarkdown(a.reports)
	case ViewHelp:
		md = helpMarkdown(a.keys)
	default:
		return nil
	}
	r, err := a.getRenderer()
	if err != nil {
		return a.flash(wrapErr("renderer", err).Error(), StatusError)
	}
	return func() tea.Msg {
		out, err := r.Render(md)
		if err != nil {
			out = fmt.Sprintf("Failed to render: %v\n\n%s", err, md)
		}
		return panelRenderedMsg{view: v, content: out}
	}
}

// errorsMarkdown lists batches newest first.
func errorsMarkdown(reports []aggregate.Report) string {
	var b strings.Builder
	b.WriteString("# Image errors\n\n")
	if len(reports) == 0 {
		b.WriteString("_" + MsgErrorsEmpty + "_\n")
		return b.String()
	}
	for i := len(reports) - 1; i >= 0; i-- {
		r := reports[i]
		fmt.Fprintf(&b, "## %s · %d failed\n\n", r.At.Format("15:04:05"), r.Total())
		b.WriteString("| Code | Count | Indices | Message |\n|---|---:|---|---|\n")
		for _, s := range r.Summaries {
			idx := make([]string, len(s.Indices))
			for j, n := range s.Indices {
				idx[j] = fmt.Sprint(n)
			}
			msg := strings.ReplaceAll(truncateEnd(s.Message, 60), "|", "/")
			fmt.Fprintf(&b, "| `%s` | %d | %s | %s |\n", s.Code, s.Count, strings.Join(idx, ", "), msg)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func helpMarkdown(k KeyMap) string {
	var b strings.Builder
	b.WriteString("# Keys\n\n| Key | Action |\n|---|---|\n")
	for _, group := range k.FullHelp() {
		for _, kb := range group {
			h := kb.Help()
			fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
		}
	}
	b.WriteString("\nCopy places the medium-size variant on the clipboard; open launches the full-size image in the configured viewer.\n")
	return b.String()
}

func wrapErr(context string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
