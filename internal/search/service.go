// Package search resolves (keyword, page) to an ordered URL list. It owns the
// retry policy, anti-bot handling, request pacing and the result cache; the
// endpoint itself is a source.Source.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/pders01/moji/internal/cache"
	"github.com/pders01/moji/internal/config"
	"github.com/pders01/moji/internal/debuglog"
	"github.com/pders01/moji/internal/fault"
	"github.com/pders01/moji/internal/retry"
	"github.com/pders01/moji/internal/source"
)

// Result is a resolved page.
type Result struct {
	Keyword string
	Page    int
	URLs    []string
	Source  string
	// Cached is true when no request was made.
	Cached bool
	// Skipped counts URLs dropped for declared oversize.
	Skipped int
}

// Service is safe for concurrent use.
type Service struct {
	src     source.Source
	cache   *cache.SearchCache
	policy  retry.Policy
	limiter *rate.Limiter
	warmUp  bool
	sleep   func(context.Context, time.Duration) error

	group    singleflight.Group
	requests atomic.Int64
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy replaces the retry policy. Kinds outside Retryable fail
// immediately; throttling is always retried while attempts remain.
func WithPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithRateLimit paces outgoing requests. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Service) {
		if rps <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithWarmUp controls whether a throttled source implementing source.Warmer
// is warmed up before the next attempt.
func WithWarmUp(on bool) Option {
	return func(s *Service) { s.warmUp = on }
}

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(s *Service) { s.sleep = fn }
}

// DefaultPolicy makes three attempts, backing off 1.2s per attempt after a
// throttled response and retrying transport failures immediately.
func DefaultPolicy() retry.Policy {
	return retry.Transient(3, retry.Linear{Step: 1200 * time.Millisecond})
}

// New builds a service over src and c.
func New(src source.Source, c *cache.SearchCache, opts ...Option) *Service {
	s := &Service{
		src:     src,
		cache:   c,
		policy:  DefaultPolicy(),
		limiter: rate.NewLimiter(rate.Inf, 0),
		warmUp:  true,
		sleep:   retry.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig wires a service from the [search] section.
func NewFromConfig(cfg *config.Config, src source.Source) (*Service, error) {
	sc := cfg.Search
	c, err := cache.NewSearchCache(sc.TTL, sc.CacheEntries)
	if err != nil {
		return nil, err
	}
	return New(src, c,
		WithPolicy(retry.Transient(sc.Attempts, retry.Linear{Step: sc.BackoffStep})),
		WithRateLimit(sc.RequestsPerSecond, sc.Burst),
		WithWarmUp(sc.WarmupOnThrottle),
	), nil
}

// Requests is the number of requests issued to the source so far.
func (s *Service) Requests() int64 { return s.requests.Load() }

// SourceName names the underlying source.
func (s *Service) SourceName() string { return s.src.Name() }

// Search returns the URLs for keyword and page. A cache hit makes no request.
// Concurrent calls for the same page share one resolution.
//
// If the source signalled throttling on any attempt and the attempts ran out,
// the error matches fault.ErrAntiBotBlocked; an empty result is only ever a
// genuine "no results".
func (s *Service) Search(ctx context.Context, keyword string, page int) (*Result, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("search: empty keyword")
	}
	if page < 1 {
		page = 1
	}

	if urls, ok := s.cache.Get(keyword, page); ok {
		return &Result{Keyword: keyword, Page: page, URLs: urls, Source: s.src.Name(), Cached: true}, nil
	}

	key := fmt.Sprintf("%s\x00%d", keyword, page)
	for {
		ch := s.group.DoChan(key, func() (interface{}, error) {
			return s.resolve(ctx, keyword, page)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			if r.Err == nil {
				return r.Val.(*Result), nil
			}
			// The shared call ran under another caller's context. If that
			// one was cancelled while ours is live, resolve again.
			if isContextErr(r.Err) && ctx.Err() == nil {
				s.group.Forget(key)
				continue
			}
			return nil, r.Err
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) resolve(ctx context.Context, keyword string, page int) (*Result, error) {
	log := debuglog.WithFields(debuglog.Fields{
		"component": "search",
		"keyword":   keyword,
		"page":      page,
		"session":   uuid.NewString()[:8],
	})

	attempts := s.policy.Attempts()
	antiBotSeen := false
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		s.requests.Add(1)
		resp, err := s.src.Query(ctx, keyword, page)
		if err == nil {
			if len(resp.URLs) > 0 {
				s.cache.Set(keyword, page, resp.URLs)
			}
			log.Infof("attempt %d: %d urls", attempt, len(resp.URLs))
			return &Result{
				Keyword: keyword,
				Page:    page,
				URLs:    resp.URLs,
				Source:  resp.Source,
				Skipped: resp.Skipped,
			}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if errors.Is(err, source.ErrThrottled) {
			antiBotSeen = true
			lastErr = err
			if attempt == attempts {
				break
			}
			delay := s.policy.Delay(attempt)
			log.Warnf("attempt %d throttled (%v), backing off %s", attempt, err, delay)
			if err := s.sleep(ctx, delay); err != nil {
				return nil, err
			}
			if w, ok := s.src.(source.Warmer); ok && s.warmUp {
				_ = w.WarmUp(ctx)
			}
			continue
		}

		fe := fault.Classify(err)
		lastErr = fe
		if !s.policy.Retryable[fe.Kind] {
			log.Errorf("attempt %d failed: %v", attempt, fe)
			return nil, fe
		}
		log.Warnf("attempt %d failed: %v", attempt, fe)
	}

	if antiBotSeen {
		return nil, fault.Wrap(fault.KindAntiBotBlocked, "blocked by endpoint, retry later", lastErr)
	}
	return nil, lastErr
}
