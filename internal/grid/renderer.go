package grid

import (
	"github.com/pders01/moji/internal/aggregate"
	"github.com/pders01/moji/internal/fault"
	"github.com/pders01/moji/internal/search"
)

// Renderer is the drawing surface. Its methods are called from the
// goroutine that calls Controller.Dispatch and friends.
type Renderer interface {
	// VisibleSlice places urls starting at grid index start. An empty slice
	// clears the grid.
	VisibleSlice(start int, urls []string)
	ImageReady(index int, data []byte, animated bool)
	ImageFailed(index int, err *fault.Error)
	ErrorBatch(report aggregate.Report)
	StatusChanged(status Status)
}

// StatusKind classifies the status line.
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusSearching
	StatusReady
	StatusNoResults
	StatusExhausted
	StatusBlocked
	StatusFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusSearching:
		return "searching"
	case StatusReady:
		return "ready"
	case StatusNoResults:
		return "no results"
	case StatusExhausted:
		return "no more"
	case StatusBlocked:
		return "blocked"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Status is the controller's user-facing state.
type Status struct {
	Kind    StatusKind
	Keyword string
	Page    int
	Total   int
	Text    string
	Err     error
}

// Event is something a worker hands to the controller.
type Event interface{ event() }

type pageEvent struct {
	gen     uint64
	keyword string
	page    int
	result  *search.Result
	err     error
}

type imageEvent struct {
	gen      uint64
	index    int
	url      string
	data     []byte
	animated bool
	err      *fault.Error
}

type reportEvent struct {
	report aggregate.Report
}

func (pageEvent) event()   {}
func (imageEvent) event()  {}
func (reportEvent) event() {}
