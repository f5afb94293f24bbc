package tui

import "github.com/pders01/moji/internal/grid"

// StatusKind indicates severity for status messages/spinners.
type StatusKind int

const (
	StatusInfo StatusKind = iota
	StatusSuccess
	StatusWarn
	StatusError
)

func severityOf(k grid.StatusKind) StatusKind {
	switch k {
	case grid.StatusReady:
		return StatusSuccess
	case grid.StatusNoResults, grid.StatusExhausted:
		return StatusWarn
	case grid.StatusBlocked, grid.StatusFailed:
		return StatusError
	default:
		return StatusInfo
	}
}
