package window

// Pool recycles display objects. Objects are never destroyed, only returned
// to the free list. A Pool is owned by one goroutine.
type Pool[T any] struct {
	newFn   func() T
	resetFn func(T)
	free    []T
	created int
}

// NewPool creates a pool. reset is applied on Release and may be nil.
func NewPool[T any](newFn func() T, reset func(T)) *Pool[T] {
	return &Pool[T]{newFn: newFn, resetFn: reset}
}

// Acquire reuses a free object or constructs one.
func (p *Pool[T]) Acquire() T {
	if n := len(p.free); n > 0 {
		obj := p.free[n-1]
		var zero T
		p.free[n-1] = zero
		p.free = p.free[:n-1]
		return obj
	}
	p.created++
	return p.newFn()
}

// Release clears obj and returns it to the free list.
func (p *Pool[T]) Release(obj T) {
	if p.resetFn != nil {
		p.resetFn(obj)
	}
	p.free = append(p.free, obj)
}

// Allocated is the number of objects ever constructed.
func (p *Pool[T]) Allocated() int { return p.created }

// Free is the number of objects waiting for reuse.
func (p *Pool[T]) Free() int { return len(p.free) }
