// Package fetch downloads image payloads for visible grid indices on a bounded
// worker pool, with per-index deduplication, a byte cache in front and
// generation-based cancellation.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pders01/moji/internal/cache"
	"github.com/pders01/moji/internal/config"
	"github.com/pders01/moji/internal/debuglog"
	"github.com/pders01/moji/internal/fault"
	"github.com/pders01/moji/internal/media"
	"github.com/pders01/moji/internal/retry"
)

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// SuccessFunc receives a downloaded payload. It runs on a worker goroutine,
// or on the caller of Load for cache hits.
type SuccessFunc func(index int, data []byte, animated bool)

// ErrorFunc receives a classified failure. It runs on a worker goroutine.
type ErrorFunc func(index int, err *fault.Error)

// Options tune a Scheduler.
type Options struct {
	Workers     int
	Attempts    int
	MaxBytes    int64
	ProbeBytes  int
	ChunkSize   int
	ReadTimeout time.Duration
	CancelGrace time.Duration
	Variant     media.Variant
	Limits      media.Limits
	Headers     http.Header
}

// DefaultOptions mirrors the [fetch] defaults.
func DefaultOptions() Options {
	return Options{
		Workers:     8,
		Attempts:    2,
		MaxBytes:    10 << 20,
		ProbeBytes:  64 << 10,
		ChunkSize:   16 << 10,
		ReadTimeout: 5 * time.Second,
		CancelGrace: 100 * time.Millisecond,
		Variant:     media.VariantDisplay,
		Limits:      media.DefaultLimits,
	}
}

// OptionsFromConfig builds Options from the [fetch] and [image] sections.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	v, err := media.ParseVariant(cfg.Fetch.Variant)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Workers:     cfg.Fetch.Workers,
		Attempts:    cfg.Fetch.Attempts,
		MaxBytes:    cfg.Fetch.MaxBytes,
		ProbeBytes:  cfg.Fetch.ProbeBytes,
		ChunkSize:   cfg.Fetch.ChunkSize,
		ReadTimeout: cfg.Fetch.ReadTimeout,
		CancelGrace: cfg.Fetch.CancelGrace,
		Variant:     v,
		Limits:      media.Limits{MaxPixels: cfg.Image.MaxPixels, MaxDimension: cfg.Image.MaxDimension},
	}, nil
}

var (
	errStale    = errors.New("fetch: superseded")
	errReadIdle = errors.New("fetch: read idle timeout")
)

type generation struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	url       string
	fetchURL  string
	index     int
	gen       *generation
	onSuccess SuccessFunc
	onError   ErrorFunc
}

// Scheduler is safe for concurrent use. Load never blocks on the network:
// excess tasks wait in a FIFO until a worker frees.
type Scheduler struct {
	client Doer
	cache  *cache.ByteCache
	opts   Options
	policy retry.Policy
	sem    *semaphore.Weighted
	log    *debuglog.FieldLogger

	root       context.Context
	rootCancel context.CancelFunc

	mu       sync.Mutex
	current  *generation
	pending  []*task
	inflight map[int]*task
	closed   bool

	genID    atomic.Uint64
	running  atomic.Int32
	requests atomic.Int64

	wake       chan struct{}
	dispatched chan struct{}
	all        sync.WaitGroup
}

// New starts a scheduler. Call Close to stop it.
func New(client Doer, c *cache.ByteCache, opts Options) *Scheduler {
	def := DefaultOptions()
	if opts.Workers < 1 {
		opts.Workers = def.Workers
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.ProbeBytes <= 0 {
		opts.ProbeBytes = def.ProbeBytes
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = def.ReadTimeout
	}
	if opts.Variant == "" {
		opts.Variant = def.Variant
	}
	if opts.Limits == (media.Limits{}) {
		opts.Limits = def.Limits
	}

	root, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		client:     client,
		cache:      c,
		opts:       opts,
		policy:     retry.Transient(opts.Attempts, retry.None{}),
		sem:        semaphore.NewWeighted(int64(opts.Workers)),
		log:        debuglog.WithFields(debuglog.Fields{"component": "fetch"}),
		root:       root,
		rootCancel: cancel,
		inflight:   make(map[int]*task),
		wake:       make(chan struct{}, 1),
		dispatched: make(chan struct{}),
	}
	s.current = s.newGeneration()
	go s.dispatch()
	return s
}

func (s *Scheduler) newGeneration() *generation {
	ctx, cancel := context.WithCancel(s.root)
	return &generation{id: s.genID.Add(1), ctx: ctx, cancel: cancel}
}

// Load fetches url for index. It returns false when a task for index is
// already in flight or the scheduler is closed. A ByteCache hit invokes
// onSuccess before Load returns.
func (s *Scheduler) Load(url string, index int, onSuccess SuccessFunc, onError ErrorFunc) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if _, busy := s.inflight[index]; busy {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	if data, ok := s.cache.Get(url); ok {
		onSuccess(index, data, media.IsAnimated(data))
		return true
	}

	s.mu.Lock()
	if _, busy := s.inflight[index]; busy || s.closed {
		s.mu.Unlock()
		return false
	}
	t := &task{
		url:       url,
		fetchURL:  media.VariantURL(url, s.opts.Variant),
		index:     index,
		gen:       s.current,
		onSuccess: onSuccess,
		onError:   onError,
	}
	s.inflight[index] = t
	s.pending = append(s.pending, t)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// InFlight reports whether a task for index is queued or running.
func (s *Scheduler) InFlight(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[index]
	return ok
}

// Running is the number of tasks holding a worker.
func (s *Scheduler) Running() int { return int(s.running.Load()) }

// Queued is the number of tasks waiting for a worker.
func (s *Scheduler) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Requests is the number of HTTP requests issued so far.
func (s *Scheduler) Requests() int64 { return s.requests.Load() }

// Generation is the current cancellation generation.
func (s *Scheduler) Generation() uint64 { return s.genID.Load() }

// CancelAll invalidates every queued and running task. Results produced by
// those tasks are discarded. It waits at most the configured grace period
// for running workers to notice.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	old := s.current
	s.current = s.newGeneration()
	dropped := len(s.pending)
	s.pending = nil
	s.inflight = make(map[int]*task)
	s.mu.Unlock()

	old.cancel()
	s.log.Debugf("generation %d cancelled, %d queued tasks dropped", old.id, dropped)

	if s.opts.CancelGrace <= 0 {
		return
	}
	done := make(chan struct{})
	go func() {
		old.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(s.opts.CancelGrace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	}
}

// Close cancels all work and waits for every worker to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	s.inflight = make(map[int]*task)
	cur := s.current
	s.mu.Unlock()

	cur.cancel()
	s.rootCancel()
	<-s.dispatched
	s.all.Wait()
}

func (s *Scheduler) dispatch() {
	defer close(s.dispatched)
	for {
		if err := s.sem.Acquire(s.root, 1); err != nil {
			return
		}
		if !s.startNext() {
			s.sem.Release(1)
			return
		}
	}
}

// startNext waits for a pending task and starts it on the worker slot the
// dispatcher already holds. Popping and starting happen under one lock so a
// concurrent CancelAll either sees the task running or never queued.
func (s *Scheduler) startNext() bool {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return false
		}
		if len(s.pending) > 0 {
			t := s.pending[0]
			s.pending[0] = nil
			s.pending = s.pending[1:]
			t.gen.wg.Add(1)
			s.all.Add(1)
			s.running.Add(1)
			s.mu.Unlock()
			go s.run(t)
			return true
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.root.Done():
			return false
		}
	}
}

func (s *Scheduler) run(t *task) {
	defer func() {
		s.running.Add(-1)
		s.sem.Release(1)
		t.gen.wg.Done()
		s.all.Done()
	}()

	data, err := s.fetch(t)

	s.mu.Lock()
	if s.inflight[t.index] == t {
		delete(s.inflight, t.index)
	}
	s.mu.Unlock()

	if s.stale(t) || errors.Is(err, errStale) {
		return
	}
	if err != nil {
		fe := fault.Classify(err)
		s.log.WithField("index", t.index).Warnf("%s: %v", t.fetchURL, fe)
		t.onError(t.index, fe)
		return
	}
	s.cache.Set(t.url, data)
	t.onSuccess(t.index, data, media.IsAnimated(data))
}

func (s *Scheduler) stale(t *task) bool {
	return t.gen.ctx.Err() != nil || s.genID.Load() != t.gen.id
}

func (s *Scheduler) fetch(t *task) ([]byte, error) {
	attempts := s.policy.Attempts()
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var data []byte
		data, err = s.fetchOnce(t)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, errStale) || s.stale(t) {
			return nil, errStale
		}
		fe := fault.Classify(err)
		retryable := s.policy.ShouldRetry(fe.Kind, attempt) ||
			(fe.Kind == fault.KindHTTPStatus && fe.Status >= 500 && attempt < attempts)
		if !retryable {
			return nil, fe
		}
		s.log.WithField("index", t.index).Debugf("attempt %d failed: %v", attempt, fe)
	}
	return nil, err
}

func (s *Scheduler) fetchOnce(t *task) ([]byte, error) {
	ctx, cancel := context.WithCancelCause(t.gen.ctx)
	defer cancel(nil)
	idle := time.AfterFunc(s.opts.ReadTimeout, func() { cancel(errReadIdle) })
	defer idle.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.fetchURL, nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindUnknown, "building request", err)
	}
	for k, vs := range s.opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	s.requests.Add(1)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.transportError(ctx, t, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.HTTPStatus(resp.StatusCode)
	}
	if resp.ContentLength > s.opts.MaxBytes {
		return nil, fault.New(fault.KindSizeLimitExceeded, "declared length over limit")
	}

	var buf bytes.Buffer
	chunk := make([]byte, s.opts.ChunkSize)
	probed := false
	for {
		if s.stale(t) {
			return nil, errStale
		}
		idle.Reset(s.opts.ReadTimeout)
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if int64(buf.Len()) > s.opts.MaxBytes {
				return nil, fault.New(fault.KindSizeLimitExceeded, "payload over limit")
			}
			if !probed {
				var perr error
				probed, perr = s.probe(buf.Bytes())
				if perr != nil {
					return nil, perr
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, s.transportError(ctx, t, rerr)
		}
	}
	return buf.Bytes(), nil
}

// probe reports whether the header question is settled for head, and an
// OversizedContent error when the declared dimensions are over the limits.
func (s *Scheduler) probe(head []byte) (bool, error) {
	dims, err := media.Probe(head)
	switch {
	case err == nil:
		if s.opts.Limits.Oversized(dims.Width, dims.Height) {
			return true, fault.New(fault.KindOversizedContent, "image dimensions over limit")
		}
		return true, nil
	case errors.Is(err, media.ErrNeedMoreData):
		return len(head) >= s.opts.ProbeBytes, nil
	default:
		return true, nil
	}
}

func (s *Scheduler) transportError(ctx context.Context, t *task, err error) error {
	if errors.Is(context.Cause(ctx), errReadIdle) {
		return fault.Wrap(fault.KindNetworkTimeout, "read timed out", err)
	}
	if s.stale(t) {
		return errStale
	}
	return fault.Classify(err)
}
