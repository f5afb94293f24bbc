package tui

type View int

const (
	ViewGrid View = iota
	ViewSearch
	ViewErrors
	ViewHelp
)

// cellState mirrors a slot's lifecycle as far as the screen cares.
type cellState int

const (
	cellPending cellState = iota
	cellReady
	cellFailed
)

// cell is what the renderer knows about one visible grid index.
type cell struct {
	url      string
	state    cellState
	format   string
	animated bool
	size     int
	code     string
}
