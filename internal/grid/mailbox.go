package grid

import "sync"

// Mailbox is an unbounded FIFO between worker goroutines and the goroutine
// that owns the Controller. Post never blocks.
type Mailbox struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
	closed bool
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{notify: make(chan struct{}, 1)}
}

// Post appends ev and wakes the owner. Posts after Close are dropped.
func (m *Mailbox) Post(ev Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.events = append(m.events, ev)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued event in arrival order.
func (m *Mailbox) Drain() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.events
	m.events = nil
	return out
}

// Len is the number of queued events.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Notify receives a value after one or more Posts. Several posts may share
// one notification, so the receiver must Drain.
func (m *Mailbox) Notify() <-chan struct{} { return m.notify }

// Close drops queued events and rejects further posts.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = nil
}
