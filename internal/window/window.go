// Package window maps a scroll position onto the grid indices worth
// materialising, and recycles the slots that display them.
package window

import "github.com/pders01/moji/internal/config"

// Window is the viewport geometry. All distances share one unit (pixels
// in the original grid, terminal lines scaled by ui.line_pixels in the TUI).
type Window struct {
	Columns   int
	RowHeight int
	// BufferRows are materialised above and below the literal viewport.
	BufferRows int
	// LoadMoreThreshold is the distance from the bottom that triggers paging.
	LoadMoreThreshold int
}

// New returns a window from the [window] section.
func New(cfg config.WindowConfig) Window {
	return Window{
		Columns:           cfg.Columns,
		RowHeight:         cfg.RowHeight,
		BufferRows:        cfg.BufferRows,
		LoadMoreThreshold: cfg.LoadMoreThreshold,
	}
}

// Range is a half-open index interval.
type Range struct {
	Start, End int
}

func (r Range) Len() int { return r.End - r.Start }

func (r Range) Contains(i int) bool { return i >= r.Start && i < r.End }

// VisibleRows is the number of rows the viewport shows, at least one.
func (w Window) VisibleRows(viewportHeight int) int {
	rows := ceilDiv(viewportHeight, w.RowHeight)
	if rows < 1 {
		return 1
	}
	return rows
}

// VisibleRange returns the indices to materialise for a scroll offset,
// including BufferRows on both sides, clipped to [0, total).
func (w Window) VisibleRange(offset, viewportHeight, total int) Range {
	if total <= 0 || w.Columns <= 0 || w.RowHeight <= 0 {
		return Range{}
	}
	if offset < 0 {
		offset = 0
	}
	row := offset / w.RowHeight
	start := (row - w.BufferRows) * w.Columns
	end := (row + w.VisibleRows(viewportHeight) + w.BufferRows) * w.Columns
	return Range{Start: clamp(start, 0, total), End: clamp(end, 0, total)}
}

// Rows is the number of rows needed for total items.
func (w Window) Rows(total int) int {
	if total <= 0 || w.Columns <= 0 {
		return 0
	}
	return ceilDiv(total, w.Columns)
}

// RequiredContainerHeight is the scrollable height for total items. It is
// always at least one row taller than the viewport so scrolling keeps
// producing events even when the grid is short.
func (w Window) RequiredContainerHeight(total, viewportHeight int) int {
	h := w.Rows(total) * w.RowHeight
	if min := viewportHeight + w.RowHeight; h < min {
		return min
	}
	return h
}

// MaxScroll is the largest valid offset.
func (w Window) MaxScroll(total, viewportHeight int) int {
	m := w.RequiredContainerHeight(total, viewportHeight) - viewportHeight
	if m < 0 {
		return 0
	}
	return m
}

// ClampOffset keeps offset within [0, MaxScroll].
func (w Window) ClampOffset(offset, total, viewportHeight int) int {
	return clamp(offset, 0, w.MaxScroll(total, viewportHeight))
}

// NearBottom reports whether offset is within LoadMoreThreshold of the end.
func (w Window) NearBottom(offset, total, viewportHeight int) bool {
	return offset >= w.MaxScroll(total, viewportHeight)-w.LoadMoreThreshold
}

// Spacers returns the heights above and below r that keep unmaterialised
// rows from collapsing.
func (w Window) Spacers(r Range, total int) (top, bottom int) {
	if w.Columns <= 0 || r.Len() <= 0 {
		return 0, w.Rows(total) * w.RowHeight
	}
	top = (r.Start / w.Columns) * w.RowHeight
	bottom = (w.Rows(total) - ceilDiv(r.End, w.Columns)) * w.RowHeight
	if bottom < 0 {
		bottom = 0
	}
	return top, bottom
}

// Cell returns the row and column of index.
func (w Window) Cell(index int) (row, col int) {
	if w.Columns <= 0 {
		return 0, 0
	}
	return index / w.Columns, index % w.Columns
}

func ceilDiv(a, b int) int {
	if b <= 0 || a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
