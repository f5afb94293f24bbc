// Package grid orchestrates one search session: it pages results in from
// the search service, maps the viewport onto pooled slots, schedules image
// fetches for them and funnels every background completion through a
// mailbox so that all state is mutated by a single goroutine.
package grid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pders01/moji/internal/aggregate"
	"github.com/pders01/moji/internal/debuglog"
	"github.com/pders01/moji/internal/fault"
	"github.com/pders01/moji/internal/fetch"
	"github.com/pders01/moji/internal/search"
	"github.com/pders01/moji/internal/window"
)

// Searcher resolves result pages. *search.Service satisfies it.
type Searcher interface {
	Search(ctx context.Context, keyword string, page int) (*search.Result, error)
}

// Loader fetches image payloads. *fetch.Scheduler satisfies it.
type Loader interface {
	Load(url string, index int, onSuccess fetch.SuccessFunc, onError fetch.ErrorFunc) bool
	CancelAll()
}

// Option configures a Controller.
type Option func(*Controller)

// WithViewport sets the initial viewport height.
func WithViewport(height int) Option {
	return func(c *Controller) { c.viewport = height }
}

// WithErrorReports batches image failures every interval, keeping sample
// indices per code.
func WithErrorReports(interval time.Duration, sample int) Option {
	return func(c *Controller) {
		c.reportInterval = interval
		c.reportSample = sample
	}
}

// WithSearchRecorder is called with the keyword and URLs of every first
// page that returned results.
func WithSearchRecorder(fn func(keyword string, results []string)) Option {
	return func(c *Controller) { c.recordSearch = fn }
}

// Controller must only be used from one goroutine. Workers reach it through
// its Mailbox; call Dispatch when the mailbox notifies.
type Controller struct {
	searcher Searcher
	loader   Loader
	renderer Renderer
	win      window.Window
	mailbox  *Mailbox
	agg      *aggregate.Aggregator
	pool     *window.Pool[*window.Slot]

	reportInterval time.Duration
	reportSample   int
	recordSearch   func(string, []string)

	ctx    context.Context
	cancel context.CancelFunc
	inner  context.CancelFunc
	wg     sync.WaitGroup

	gen       uint64
	keyword   string
	page      int
	urls      []string
	seen      map[string]bool
	loading   bool
	exhausted bool

	offset   int
	viewport int
	visible  window.Range
	slots    map[int]*window.Slot
	status   Status
}

// New builds a controller. Close releases it.
func New(s Searcher, l Loader, r Renderer, win window.Window, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		searcher:       s,
		loader:         l,
		renderer:       r,
		win:            win,
		mailbox:        NewMailbox(),
		pool:           window.NewPool(window.NewSlot, (*window.Slot).Reset),
		reportInterval: 2 * time.Second,
		reportSample:   5,
		ctx:            ctx,
		cancel:         cancel,
		inner:          func() {},
		seen:           make(map[string]bool),
		slots:          make(map[int]*window.Slot),
		viewport:       win.RowHeight * 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.agg = aggregate.New(c.reportInterval, c.reportSample, func(rep aggregate.Report) {
		c.mailbox.Post(reportEvent{report: rep})
	})
	c.agg.Start()
	return c
}

// Mailbox is the queue workers post to.
func (c *Controller) Mailbox() *Mailbox { return c.mailbox }

// Search starts a new session for keyword, superseding any previous one.
func (c *Controller) Search(keyword string) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return
	}
	c.reset()
	c.keyword = keyword
	c.setStatus(Status{Kind: StatusSearching, Keyword: keyword, Page: 1, Text: fmt.Sprintf("Searching %q...", keyword)})
	c.requestPage(1)
}

// Clear drops the session and empties the grid.
func (c *Controller) Clear() {
	c.reset()
	c.setStatus(Status{Kind: StatusIdle})
}

// Scroll moves the viewport and pages in more results near the bottom.
func (c *Controller) Scroll(offset int) {
	c.offset = c.win.ClampOffset(offset, len(c.urls), c.viewport)
	c.refresh()
	if len(c.urls) > 0 && c.win.NearBottom(c.offset, len(c.urls), c.viewport) {
		c.LoadMore()
	}
}

// ScrollBy moves the viewport relative to its current offset.
func (c *Controller) ScrollBy(delta int) { c.Scroll(c.offset + delta) }

// Resize changes the viewport height.
func (c *Controller) Resize(viewportHeight int) {
	if viewportHeight < 1 {
		viewportHeight = 1
	}
	c.viewport = viewportHeight
	c.Scroll(c.offset)
}

// LoadMore requests the next page unless one is pending or the results ran out.
func (c *Controller) LoadMore() bool {
	if c.keyword == "" || c.loading || c.exhausted {
		return false
	}
	c.requestPage(c.page + 1)
	return true
}

// Dispatch applies every queued event and returns how many it handled.
func (c *Controller) Dispatch() int {
	events := c.mailbox.Drain()
	for _, ev := range events {
		switch ev := ev.(type) {
		case pageEvent:
			c.applyPage(ev)
		case imageEvent:
			c.applyImage(ev)
		case reportEvent:
			c.renderer.ErrorBatch(ev.report)
		}
	}
	return len(events)
}

// Close cancels outstanding searches, stops error reporting and waits for
// search goroutines to exit. It does not close the Loader.
func (c *Controller) Close() {
	c.inner()
	c.cancel()
	c.wg.Wait()
	c.agg.Stop()
	c.mailbox.Close()
}

// FlushErrors emits the pending error batch now.
func (c *Controller) FlushErrors() { c.agg.Flush() }

func (c *Controller) Keyword() string { return c.keyword }
func (c *Controller) Status() Status { return c.status }
func (c *Controller) Offset() int { return c.offset }
func (c *Controller) Viewport() int { return c.viewport }
func (c *Controller) Visible() window.Range { return c.visible }
func (c *Controller) Window() window.Window { return c.win }
func (c *Controller) Len() int { return len(c.urls) }
func (c *Controller) Loading() bool { return c.loading }
func (c *Controller) Exhausted() bool { return c.exhausted }
func (c *Controller) Allocated() int { return c.pool.Allocated() }
func (c *Controller) Slot(i int) *window.Slot { return c.slots[i] }

// URL returns the source URL at index.
func (c *Controller) URL(index int) (string, bool) {
	if index < 0 || index >= len(c.urls) {
		return "", false
	}
	return c.urls[index], true
}

// Settled reports whether no page request is pending and every visible slot
// has finished loading.
func (c *Controller) Settled() bool {
	if c.loading {
		return false
	}
	for _, s := range c.slots {
		if s.State == window.Loading {
			return false
		}
	}
	return true
}

func (c *Controller) reset() {
	c.inner()
	c.gen++
	c.loader.CancelAll()
	c.agg.Reset()
	for i, s := range c.slots {
		c.pool.Release(s)
		delete(c.slots, i)
	}
	c.keyword, c.page = "", 0
	c.urls = nil
	c.seen = make(map[string]bool)
	c.loading, c.exhausted = false, false
	c.offset = 0
	c.visible = window.Range{}
	c.renderer.VisibleSlice(0, nil)
}

func (c *Controller) requestPage(page int) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.inner = cancel
	c.loading = true
	gen, keyword := c.gen, c.keyword

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, err := c.searcher.Search(ctx, keyword, page)
		c.mailbox.Post(pageEvent{gen: gen, keyword: keyword, page: page, result: res, err: err})
	}()
}

func (c *Controller) applyPage(ev pageEvent) {
	if ev.gen != c.gen {
		return
	}
	c.loading = false
	log := debuglog.WithFields(debuglog.Fields{"component": "grid", "keyword": ev.keyword, "page": ev.page})

	if ev.err != nil {
		if errors.Is(ev.err, context.Canceled) && c.ctx.Err() != nil {
			return
		}
		st := Status{Keyword: ev.keyword, Page: ev.page, Total: len(c.urls), Err: ev.err}
		switch {
		case errors.Is(ev.err, context.Canceled):
			st.Kind = StatusFailed
			st.Text = "Search interrupted, try again"
		case errors.Is(ev.err, fault.ErrAntiBotBlocked):
			st.Kind = StatusBlocked
			st.Text = "Blocked by the endpoint, retry later"
		default:
			st.Kind = StatusFailed
			st.Text = fmt.Sprintf("Search failed: %v", ev.err)
		}
		log.Warnf("%s", st.Text)
		c.setStatus(st)
		return
	}

	added := 0
	for _, u := range ev.result.URLs {
		if c.seen[u] {
			continue
		}
		c.seen[u] = true
		c.urls = append(c.urls, u)
		added++
	}
	c.page = ev.page

	switch {
	case added == 0 && len(c.urls) == 0:
		c.exhausted = true
		c.setStatus(Status{Kind: StatusNoResults, Keyword: ev.keyword, Page: ev.page, Text: fmt.Sprintf("No results for %q", ev.keyword)})
	case added == 0:
		c.exhausted = true
		c.setStatus(Status{Kind: StatusExhausted, Keyword: ev.keyword, Page: ev.page, Total: len(c.urls),
			Text: fmt.Sprintf("%d images, no more results", len(c.urls))})
	default:
		if ev.page == 1 && c.recordSearch != nil {
			c.recordSearch(ev.keyword, ev.result.URLs)
		}
		c.setStatus(Status{Kind: StatusReady, Keyword: ev.keyword, Page: ev.page, Total: len(c.urls),
			Text: fmt.Sprintf("%d images, scroll for more", len(c.urls))})
	}
	log.Debugf("%d new urls (%d total, cached=%t)", added, len(c.urls), ev.result.Cached)
	c.refresh()
}

func (c *Controller) applyImage(ev imageEvent) {
	if ev.gen != c.gen {
		return
	}
	slot := c.slots[ev.index]
	if slot == nil || !slot.Matches(ev.index, ev.url) {
		return
	}
	if ev.err != nil {
		_ = slot.Fail(ev.err)
		c.agg.Record(ev.index, ev.err)
		c.renderer.ImageFailed(ev.index, ev.err)
		return
	}
	_ = slot.Complete(ev.data, ev.animated)
	c.renderer.ImageReady(ev.index, ev.data, ev.animated)
}

// refresh recycles slots that left the visible range and binds and loads
// slots for indices that entered it.
func (c *Controller) refresh() {
	r := c.win.VisibleRange(c.offset, c.viewport, len(c.urls))
	for i, s := range c.slots {
		if !r.Contains(i) {
			s.Recycle()
			c.pool.Release(s)
			delete(c.slots, i)
		}
	}
	for i := r.Start; i < r.End; i++ {
		if _, ok := c.slots[i]; ok {
			continue
		}
		s := c.pool.Acquire()
		url := c.urls[i]
		_ = s.Bind(i, url)
		_ = s.StartLoading()
		c.slots[i] = s
		c.load(i, url)
	}
	if r != c.visible {
		c.visible = r
		c.renderer.VisibleSlice(r.Start, c.urls[r.Start:r.End])
	}
}

func (c *Controller) load(index int, url string) {
	gen := c.gen
	c.loader.Load(url, index,
		func(i int, data []byte, animated bool) {
			c.mailbox.Post(imageEvent{gen: gen, index: i, url: url, data: data, animated: animated})
		},
		func(i int, err *fault.Error) {
			c.mailbox.Post(imageEvent{gen: gen, index: i, url: url, err: err})
		})
}

func (c *Controller) setStatus(st Status) {
	c.status = st
	c.renderer.StatusChanged(st)
}
