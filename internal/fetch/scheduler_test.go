package fetch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pders01/moji/internal/cache"
	"github.com/pders01/moji/internal/config"
	"github.com/pders01/moji/internal/fault"
	"github.com/pders01/moji/internal/media"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

// gifHeader declares a w×h GIF without any frame data.
func gifHeader(w, h uint16) []byte {
	b := []byte("GIF89a")
	b = binary.LittleEndian.AppendUint16(b, w)
	b = binary.LittleEndian.AppendUint16(b, h)
	return append(b, 0, 0, 0)
}

// blockingDoer answers every request with body once release is closed. It
// fails with the request context error unless stubborn is set.
type blockingDoer struct {
	body     []byte
	release  chan struct{}
	stubborn bool
	calls    atomic.Int32
}

func (d *blockingDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls.Add(1)
	if d.stubborn {
		<-d.release
	} else {
		select {
		case <-d.release:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Body:          io.NopCloser(bytes.NewReader(d.body)),
		ContentLength: int64(len(d.body)),
		Request:       req,
	}, nil
}

// recorder collects callbacks.
type recorder struct {
	mu        sync.Mutex
	successes map[int][]byte
	animated  map[int]bool
	failures  map[int]*fault.Error
}

func newRecorder() *recorder {
	return &recorder{
		successes: make(map[int][]byte),
		animated:  make(map[int]bool),
		failures:  make(map[int]*fault.Error),
	}
}

func (r *recorder) onSuccess(index int, data []byte, animated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes[index] = data
	r.animated[index] = animated
}

func (r *recorder) onError(index int, err *fault.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[index] = err
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.successes), len(r.failures)
}

func (r *recorder) failure(index int) *fault.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[index]
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Attempts = 1
	opts.ReadTimeout = time.Second
	opts.CancelGrace = 50 * time.Millisecond
	return opts
}

func newTestScheduler(t *testing.T, d Doer, opts Options) (*Scheduler, *cache.ByteCache) {
	t.Helper()
	c := cache.NewByteCache(1 << 20)
	s := New(d, c, opts)
	t.Cleanup(s.Close)
	return s, c
}

func TestEightWorkersNineIndices(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := &blockingDoer{body: []byte("payload"), release: make(chan struct{})}
	c := cache.NewByteCache(1 << 20)
	s := New(d, c, testOptions())
	rec := newRecorder()

	for i := 0; i < 9; i++ {
		require.True(t, s.Load(fmt.Sprintf("https://cdn.test/large/%d.jpg", i), i, rec.onSuccess, rec.onError))
	}

	require.Eventually(t, func() bool { return s.Running() == 8 && d.calls.Load() == 8 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.Queued())
	assert.True(t, s.InFlight(8), "the ninth index waits for a worker")

	close(d.release)
	require.Eventually(t, func() bool {
		ok, _ := rec.counts()
		return ok == 9
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(9), d.calls.Load())
	assert.Equal(t, 0, s.Queued())

	s.Close()
}

func TestLoadDeduplicatesByIndex(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := &blockingDoer{body: []byte("payload"), release: make(chan struct{})}
	s := New(d, cache.NewByteCache(1<<20), testOptions())
	rec := newRecorder()

	assert.True(t, s.Load("https://cdn.test/large/a.jpg", 3, rec.onSuccess, rec.onError))
	assert.False(t, s.Load("https://cdn.test/large/a.jpg", 3, rec.onSuccess, rec.onError))
	assert.True(t, s.InFlight(3))

	close(d.release)
	require.Eventually(t, func() bool { return !s.InFlight(3) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), d.calls.Load())

	s.Close()
}

func TestCacheHitSkipsNetwork(t *testing.T) {
	d := &blockingDoer{release: make(chan struct{})}
	s, c := newTestScheduler(t, d, testOptions())
	rec := newRecorder()

	c.Set("https://cdn.test/large/a.jpg", []byte("cached"))
	require.True(t, s.Load("https://cdn.test/large/a.jpg", 0, rec.onSuccess, rec.onError))

	ok, _ := rec.counts()
	assert.Equal(t, 1, ok, "cache hits are delivered synchronously")
	assert.Equal(t, int32(0), d.calls.Load())
}

func TestCancelAllDiscardsLateResults(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := &blockingDoer{body: []byte("late"), release: make(chan struct{}), stubborn: true}
	c := cache.NewByteCache(1 << 20)
	s := New(d, c, testOptions())
	rec := newRecorder()

	for i := 0; i < 10; i++ {
		s.Load(fmt.Sprintf("https://cdn.test/large/%d.jpg", i), i, rec.onSuccess, rec.onError)
	}
	require.Eventually(t, func() bool { return s.Running() == 8 }, time.Second, 5*time.Millisecond)
	before := s.Generation()

	start := time.Now()
	s.CancelAll()
	assert.Less(t, time.Since(start), time.Second, "cancel waits only for the grace period")
	assert.Greater(t, s.Generation(), before)
	assert.Equal(t, 0, s.Queued())
	assert.False(t, s.InFlight(0))

	close(d.release)
	require.Eventually(t, func() bool { return s.Running() == 0 }, time.Second, 5*time.Millisecond)

	ok, failed := rec.counts()
	assert.Zero(t, ok)
	assert.Zero(t, failed)
	assert.Zero(t, c.Len())

	s.Close()
}

func TestCancelAllThenNewWork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	s, _ := newTestScheduler(t, srv.Client(), testOptions())
	rec := newRecorder()

	s.CancelAll()
	require.True(t, s.Load(srv.URL+"/large/a.jpg", 0, rec.onSuccess, rec.onError))
	require.Eventually(t, func() bool {
		ok, _ := rec.counts()
		return ok == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFetchDownloadsDisplayVariantAndCachesBySource(t *testing.T) {
	img := pngBytes(t, 4, 4)
	var paths sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths.Store(r.URL.Path, true)
		assert.Equal(t, "https://m.weibo.cn/", r.Header.Get("Referer"))
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Headers = http.Header{"Referer": {"https://m.weibo.cn/"}}
	s, c := newTestScheduler(t, srv.Client(), opts)
	rec := newRecorder()

	src := srv.URL + "/large/abc.png"
	require.True(t, s.Load(src, 7, rec.onSuccess, rec.onError))
	require.Eventually(t, func() bool {
		ok, _ := rec.counts()
		return ok == 1
	}, time.Second, 5*time.Millisecond)

	_, hitDisplay := paths.Load("/bmiddle/abc.png")
	assert.True(t, hitDisplay)
	cached, ok := c.Get(src)
	assert.True(t, ok, "cached under the source url")
	assert.Equal(t, img, cached)
	rec.mu.Lock()
	assert.Equal(t, img, rec.successes[7])
	assert.False(t, rec.animated[7])
	rec.mu.Unlock()
	assert.Equal(t, int64(1), s.Requests())
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		tweak   func(*Options)
		want    *fault.Error
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			want: &fault.Error{Kind: fault.KindHTTPStatus, Status: 404},
		},
		{
			name: "declared dimensions over limit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(append(gifHeader(12001, 10), make([]byte, 4096)...))
			},
			want: fault.ErrOversizedContent,
		},
		{
			name: "pixel count over limit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(gifHeader(6000, 5000))
			},
			want: fault.ErrOversizedContent,
		},
		{
			name: "streamed body over byte ceiling",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/octet-stream")
				for i := 0; i < 8; i++ {
					_, _ = w.Write([]byte(strings.Repeat("x", 512)))
					w.(http.Flusher).Flush()
				}
			},
			tweak: func(o *Options) { o.MaxBytes = 1000; o.ChunkSize = 256 },
			want:  fault.ErrSizeLimitExceeded,
		},
		{
			name: "declared length over byte ceiling",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(make([]byte, 2000))
			},
			tweak: func(o *Options) { o.MaxBytes = 1000 },
			want:  fault.ErrSizeLimitExceeded,
		},
		{
			name: "stalled body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("GIF"))
				w.(http.Flusher).Flush()
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			tweak: func(o *Options) { o.ReadTimeout = 50 * time.Millisecond },
			want:  fault.ErrNetworkTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			opts := testOptions()
			if tt.tweak != nil {
				tt.tweak(&opts)
			}
			s, c := newTestScheduler(t, srv.Client(), opts)
			rec := newRecorder()

			src := srv.URL + "/large/x.gif"
			require.True(t, s.Load(src, 1, rec.onSuccess, rec.onError))
			require.Eventually(t, func() bool { return rec.failure(1) != nil }, 2*time.Second, 5*time.Millisecond)

			assert.ErrorIs(t, rec.failure(1), tt.want)
			assert.Zero(t, c.Len())
			ok, _ := rec.counts()
			assert.Zero(t, ok)
		})
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Attempts = 2
	s, _ := newTestScheduler(t, srv.Client(), opts)
	rec := newRecorder()

	s.Load(srv.URL+"/large/x.jpg", 0, rec.onSuccess, rec.onError)
	require.Eventually(t, func() bool {
		ok, _ := rec.counts()
		return ok == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Attempts = 3
	s, _ := newTestScheduler(t, srv.Client(), opts)
	rec := newRecorder()

	s.Load(srv.URL+"/large/x.jpg", 0, rec.onSuccess, rec.onError)
	require.Eventually(t, func() bool { return rec.failure(0) != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "HTTP_403", rec.failure(0).Code())
}

func TestLoadAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := New(&blockingDoer{release: make(chan struct{})}, cache.NewByteCache(100), testOptions())
	s.Close()
	s.Close()
	rec := newRecorder()
	assert.False(t, s.Load("https://cdn.test/large/a.jpg", 0, rec.onSuccess, rec.onError))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.TestConfig()
	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 8, opts.Workers)
	assert.Equal(t, media.VariantDisplay, opts.Variant)
	assert.Equal(t, int64(24_000_000), opts.Limits.MaxPixels)

	cfg.Fetch.Variant = "poster"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}
