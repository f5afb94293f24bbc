// Package aggregate batches per-image failures into periodic reports so a
// burst of errors reaches the user as one summary.
package aggregate

import (
	"sort"
	"sync"
	"time"

	"github.com/pders01/moji/internal/config"
	"github.com/pders01/moji/internal/fault"
)

// Summary describes one error code within a report.
type Summary struct {
	Code    string
	Kind    fault.Kind
	Count   int
	Indices []int
	Message string
	// Duration spans the first and last occurrence in the batch.
	Duration time.Duration
}

// Report is one flushed batch, ordered by descending count then code.
type Report struct {
	Summaries []Summary
	At        time.Time
}

// Total is the number of failures in the report.
func (r Report) Total() int {
	n := 0
	for _, s := range r.Summaries {
		n += s.Count
	}
	return n
}

type entry struct {
	kind    fault.Kind
	count   int
	indices []int
	seen    map[int]bool
	message string
	first   time.Time
	last    time.Time
}

// Aggregator is safe for concurrent use. Reports are delivered to onReport
// on the goroutine that triggered the flush.
type Aggregator struct {
	interval time.Duration
	sample   int
	onReport func(Report)
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	started bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an aggregator that keeps up to sample indices per code.
func New(interval time.Duration, sample int, onReport func(Report), opts ...Option) *Aggregator {
	if sample < 1 {
		sample = 5
	}
	a := &Aggregator{
		interval: interval,
		sample:   sample,
		onReport: onReport,
		now:      time.Now,
		entries:  make(map[string]*entry),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewFromConfig builds an aggregator from the [errors] section.
func NewFromConfig(cfg config.ErrorsConfig, onReport func(Report)) *Aggregator {
	return New(cfg.ReportInterval, cfg.SampleSize, onReport)
}

// Record adds a failure for index. The first timeout or connection failure
// of a batch flushes immediately.
func (a *Aggregator) Record(index int, err *fault.Error) {
	if err == nil {
		return
	}
	code := err.Code()
	now := a.now()

	a.mu.Lock()
	e, ok := a.entries[code]
	if !ok {
		e = &entry{kind: err.Kind, seen: make(map[int]bool), first: now}
		a.entries[code] = e
	}
	e.count++
	e.message = err.Error()
	e.last = now
	if !e.seen[index] {
		e.seen[index] = true
		if len(e.indices) < a.sample {
			e.indices = append(e.indices, index)
		}
	}
	immediate := err.Kind.Severe() && e.count == 1
	var report Report
	if immediate {
		report = a.drainLocked()
	}
	a.mu.Unlock()

	if immediate {
		a.deliver(report)
	}
}

// Flush emits the pending batch, if any, and clears it.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	report := a.drainLocked()
	a.mu.Unlock()
	a.deliver(report)
}

// Reset drops the pending batch without reporting it.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.entries = make(map[string]*entry)
	a.mu.Unlock()
}

// Pending is the number of failures recorded since the last flush.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.entries {
		n += e.count
	}
	return n
}

// Start flushes every interval until Stop.
func (a *Aggregator) Start() {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	if a.interval <= 0 {
		close(a.done)
		return
	}
	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Flush()
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop ends the flush loop started by Start and waits for it.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if !started {
		return
	}
	a.stopOnce.Do(func() {
		close(a.stop)
		<-a.done
	})
}

func (a *Aggregator) drainLocked() Report {
	if len(a.entries) == 0 {
		return Report{}
	}
	report := Report{At: a.now(), Summaries: make([]Summary, 0, len(a.entries))}
	for code, e := range a.entries {
		report.Summaries = append(report.Summaries, Summary{
			Code:     code,
			Kind:     e.kind,
			Count:    e.count,
			Indices:  e.indices,
			Message:  e.message,
			Duration: e.last.Sub(e.first),
		})
	}
	sort.Slice(report.Summaries, func(i, j int) bool {
		si, sj := report.Summaries[i], report.Summaries[j]
		if si.Count != sj.Count {
			return si.Count > sj.Count
		}
		return si.Code < sj.Code
	})
	a.entries = make(map[string]*entry)
	return report
}

func (a *Aggregator) deliver(r Report) {
	if len(r.Summaries) == 0 || a.onReport == nil {
		return
	}
	a.onReport(r)
}
