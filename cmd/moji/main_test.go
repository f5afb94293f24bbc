package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/moji/internal/config"
	"github.com/pders01/moji/internal/media"
	"github.com/pders01/moji/internal/search"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, r)
		outC <- buf.String()
	}()

	fn()

	w.Close()
	os.Stdout = old
	return <-outC
}

func TestVersionCommand(t *testing.T) {
	out := captureStdout(t, func() { versionCmd.Run(nil, nil) })

	if !strings.Contains(out, "moji dev") {
		t.Errorf("Expected version output to contain 'moji dev', got: %s", out)
	}
	if !strings.Contains(out, "github.com/pders01/moji") {
		t.Errorf("Expected version output to contain module path, got: %s", out)
	}
}

func TestGenerateConfigCommand(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, ".config", "moji", "config.toml")
	t.Setenv("HOME", tmpDir)

	out := captureStdout(t, func() { configGenCmd.Run(nil, nil) })

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		t.Errorf("Config file was not created at %s", configFile)
	}
	if !strings.Contains(out, "Generated default configuration at:") {
		t.Errorf("Expected output to contain 'Generated default configuration at:', got: %s", out)
	}

	cfg, err := config.Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Fetch.Workers)
}

type fixedSearcher struct{ urls []string }

func (s fixedSearcher) Search(_ context.Context, keyword string, page int) (*search.Result, error) {
	return &search.Result{Keyword: keyword, Page: page, URLs: s.urls, Source: "fixed"}, nil
}

func TestRunSearchRewritesVariant(t *testing.T) {
	var out bytes.Buffer
	s := fixedSearcher{urls: []string{"https://wx1.sinaimg.cn/orj360/a.jpg", "https://example.org/b.png"}}

	n, err := runSearch(context.Background(), s, "cats", 1, media.VariantOriginal, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "https://wx1.sinaimg.cn/large/a.jpg\nhttps://example.org/b.png\n", out.String())

	_, err = runSearch(context.Background(), s, "cats", 0, media.VariantDisplay, &out)
	assert.Error(t, err)
}

func tinyGIF(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestRunGrabEndToEnd(t *testing.T) {
	payload := tinyGIF(t)
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/feed/", func(w http.ResponseWriter, r *http.Request) {
		var items strings.Builder
		for i := 0; i < 4; i++ {
			fmt.Fprintf(&items, `<item><title>%d</title><enclosure url="%s/img/%d.gif" type="image/gif" length="1"/></item>`, i, base, i)
		}
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>%s</channel></rss>`, items.String())
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/img/2.gif" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/gif")
		w.Write(payload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	cfg := config.TestConfig()
	cfg.Search.Source = "feed"
	cfg.Search.FeedURL = srv.URL + "/feed/{keyword}.rss"

	d, err := newDeps(cfg, true)
	require.NoError(t, err)
	defer d.Close()

	var out bytes.Buffer
	sum, err := runGrab(context.Background(), cfg, d, "cats", grabOptions{rows: 2, pages: 1, timeout: 10 * time.Second}, &out)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.urls)
	assert.Equal(t, 3, sum.ready)
	assert.Equal(t, 1, sum.failed)
	assert.Equal(t, 1, sum.batches)
	assert.EqualValues(t, 1, sum.searches)
	assert.EqualValues(t, 4, sum.fetches)

	text := out.String()
	assert.Contains(t, text, "window [0, 4)")
	assert.Contains(t, text, "fail  HTTP_404")
	assert.Contains(t, text, "errors: HTTP_404×1 [2]")
	assert.Contains(t, text, "gif")

	recent, err := d.history.Recent(5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "cats", recent[0].Keyword)
	assert.Equal(t, 4, recent[0].Results)
}
