package tui

import (
	"fmt"
	"strings"

	"github.com/pders01/moji/internal/aggregate"
)

// Canonical short status messages used across the app.
const (
	MsgNoSelection   = "Nothing selected"
	MsgNoViewer      = "No image viewer available"
	MsgHistoryEmpty  = "No search history yet"
	MsgErrorsEmpty   = "No image errors reported"
	MsgClearedSearch = "Cleared"
)

func MsgCopied(url string) string {
	return "Copied " + truncateMiddle(url, 60)
}

func MsgOpened(viewer string) string {
	return fmt.Sprintf("Opened in %s", viewer)
}

// MsgErrorBatch condenses a report to one line, e.g.
// "5 images failed: 3 TIMEOUT, 2 HTTP_404".
func MsgErrorBatch(r aggregate.Report) string {
	total := r.Total()
	if total == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.Summaries))
	for _, s := range r.Summaries {
		parts = append(parts, fmt.Sprintf("%d %s", s.Count, s.Code))
	}
	noun := "images"
	if total == 1 {
		noun = "image"
	}
	return fmt.Sprintf("%d %s failed: %s", total, noun, strings.Join(parts, ", "))
}

func MsgGridSummary(loaded, failed, pending int) string {
	base := fmt.Sprintf("%d loaded", loaded)
	if pending > 0 {
		base += fmt.Sprintf(" • %d loading", pending)
	}
	if failed > 0 {
		base += fmt.Sprintf(" • %d failed", failed)
	}
	return base
}
