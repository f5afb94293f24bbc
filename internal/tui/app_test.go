package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/moji/internal/aggregate"
	"github.com/pders01/moji/internal/config"
	"github.com/pders01/moji/internal/fault"
	"github.com/pders01/moji/internal/fetch"
	"github.com/pders01/moji/internal/search"
)

type stubSearcher struct {
	mu    sync.Mutex
	pages map[string][]string
}

func (s *stubSearcher) Search(_ context.Context, keyword string, page int) (*search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var urls []string
	if page == 1 {
		urls = s.pages[keyword]
	}
	return &search.Result{Keyword: keyword, Page: page, URLs: urls, Source: "stub"}, nil
}

type stubLoader struct {
	fail map[string]*fault.Error
}

var gifBytes = []byte("GIF89a\x02\x00\x02\x00\x00\x00\x00;")

func (l *stubLoader) Load(url string, index int, onSuccess fetch.SuccessFunc, onError fetch.ErrorFunc) bool {
	if err, ok := l.fail[url]; ok {
		onError(index, err)
		return true
	}
	onSuccess(index, gifBytes, false)
	return true
}

func (l *stubLoader) CancelAll() {}

type stubOpener struct{ opened []string }

func (o *stubOpener) Open(url string) error {
	o.opened = append(o.opened, url)
	return nil
}

func (o *stubOpener) Viewer() string { return "stub-viewer" }

type stubHistory struct {
	recorded []string
	keywords []string
}

func (h *stubHistory) Record(keyword string, _ []string) error {
	h.recorded = append(h.recorded, keyword)
	return nil
}

func (h *stubHistory) Keywords(prefix string, limit int) []string {
	var out []string
	for _, k := range h.keywords {
		if strings.HasPrefix(k, prefix) && len(out) < limit {
			out = append(out, k)
		}
	}
	return out
}

type harness struct {
	app     *App
	opener  *stubOpener
	history *stubHistory
	copied  []string
}

func cdnURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://wx1.sinaimg.cn/orj360/a%d.jpg", i)
	}
	return urls
}

func newHarness(t *testing.T, loader *stubLoader) *harness {
	t.Helper()
	h := &harness{opener: &stubOpener{}, history: &stubHistory{keywords: []string{"cat", "catfish", "dog"}}}
	searcher := &stubSearcher{pages: map[string][]string{"cats": cdnURLs(6)}}
	if loader == nil {
		loader = &stubLoader{}
	}
	h.app = NewApp(config.TestConfig(), searcher, loader,
		WithOpener(h.opener),
		WithHistory(h.history),
		WithClipboard(func(s string) error {
			h.copied = append(h.copied, s)
			return nil
		}),
	)
	t.Cleanup(h.app.Close)
	h.app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return h
}

func (h *harness) press(keys ...tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		_, cmd = h.app.Update(k)
	}
	return cmd
}

func (h *harness) pump(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if h.app.ctrl.Mailbox().Len() > 0 {
			h.app.Update(mailboxMsg{})
		}
		return cond()
	}, 2*time.Second, 5*time.Millisecond)
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func (h *harness) search(t *testing.T, keyword string) {
	t.Helper()
	h.press(runes("/"), runes(keyword), tea.KeyMsg{Type: tea.KeyEnter})
	h.pump(t, func() bool {
		loaded, _, pending := h.app.counts()
		return h.app.ctrl.Len() > 0 && pending == 0 && loaded > 0
	})
}

func TestViewStateTransitions(t *testing.T) {
	tests := []struct {
		name         string
		initialView  View
		msg          tea.KeyMsg
		expectedView View
	}{
		{"grid to search on '/'", ViewGrid, runes("/"), ViewSearch},
		{"search to grid on escape", ViewSearch, tea.KeyMsg{Type: tea.KeyEsc}, ViewGrid},
		{"grid to help on '?'", ViewGrid, runes("?"), ViewHelp},
		{"help to grid on '?'", ViewHelp, runes("?"), ViewGrid},
		{"grid to errors on 'e'", ViewGrid, runes("e"), ViewErrors},
		{"errors to grid on escape", ViewErrors, tea.KeyMsg{Type: tea.KeyEsc}, ViewGrid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.app.view = tt.initialView
			if tt.initialView == ViewSearch {
				h.app.searchInput.Focus()
			}

			model, _ := h.app.Update(tt.msg)
			app, ok := model.(*App)
			require.True(t, ok, "model should be *App")
			assert.Equal(t, tt.expectedView, app.view)
		})
	}
}

func TestSearchPopulatesGrid(t *testing.T) {
	h := newHarness(t, nil)
	h.search(t, "cats")

	assert.Equal(t, ViewGrid, h.app.view)
	assert.False(t, h.app.searchInput.Focused())
	assert.Equal(t, 6, h.app.ctrl.Len())
	require.Len(t, h.app.cells, 6)
	assert.Equal(t, "gif", h.app.cells[0].format)
	assert.Equal(t, []string{"cats"}, h.history.recorded)

	view := h.app.View()
	assert.Contains(t, view, CompactLogo)
	assert.Contains(t, view, "cats")
}

func TestSearchIgnoresBlankInput(t *testing.T) {
	h := newHarness(t, nil)
	h.press(runes("/"), runes("   "), tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, ViewSearch, h.app.view)
	assert.Equal(t, "", h.app.ctrl.Keyword())
}

func TestSelectionCopyAndOpen(t *testing.T) {
	h := newHarness(t, nil)
	h.search(t, "cats")

	h.press(runes("l"))
	assert.Equal(t, 1, h.app.selected)
	h.press(runes("j"))
	assert.Equal(t, 5, h.app.selected)
	h.press(runes("k"), runes("h"), runes("h"))
	assert.Equal(t, 0, h.app.selected, "selection clamps at zero")
	h.press(runes("G"))
	assert.Equal(t, 5, h.app.selected)

	cmd := h.press(runes("y"))
	require.NotNil(t, cmd)
	h.app.Update(cmd())
	assert.Equal(t, []string{"https://wx1.sinaimg.cn/mw1024/a5.jpg"}, h.copied)
	assert.Contains(t, h.app.flashMsg, "Copied")

	cmd = h.press(runes("o"))
	require.NotNil(t, cmd)
	h.app.Update(cmd())
	assert.Equal(t, []string{"https://wx1.sinaimg.cn/large/a5.jpg"}, h.opener.opened)
	assert.Equal(t, MsgOpened("stub-viewer"), h.app.flashMsg)
}

func TestCopyWithoutResults(t *testing.T) {
	h := newHarness(t, nil)
	cmd := h.press(runes("y"))
	require.NotNil(t, cmd)
	h.app.Update(cmd())

	assert.Empty(t, h.copied)
	assert.Equal(t, MsgNoSelection, h.app.flashMsg)
}

func TestFailedImagesAreReported(t *testing.T) {
	urls := cdnURLs(6)
	loader := &stubLoader{fail: map[string]*fault.Error{
		urls[2]: fault.HTTPStatus(404),
		urls[4]: fault.HTTPStatus(404),
	}}
	h := newHarness(t, loader)
	h.press(runes("/"), runes("cats"), tea.KeyMsg{Type: tea.KeyEnter})

	h.pump(t, func() bool { return len(h.app.reports) > 0 })

	assert.Equal(t, cellFailed, h.app.cells[2].state)
	assert.Equal(t, "HTTP_404", h.app.cells[2].code)
	assert.Equal(t, cellReady, h.app.cells[3].state)
	assert.Contains(t, h.app.flashMsg, "2 images failed: 2 HTTP_404")

	md := errorsMarkdown(h.app.reports)
	assert.Contains(t, md, "`HTTP_404` | 2 | 2, 4")
}

func TestClearEmptiesGrid(t *testing.T) {
	h := newHarness(t, nil)
	h.search(t, "cats")

	h.press(runes("c"))
	assert.Equal(t, 0, h.app.ctrl.Len())
	assert.Empty(t, h.app.cells)
	assert.Contains(t, h.app.View(), "Press / to search")
}

func TestSuggestionsFollowLatestInput(t *testing.T) {
	h := newHarness(t, nil)
	h.press(runes("/"))

	stale := h.app.loadSuggestions(h.app.suggestSeq, "d")()
	h.app.suggestSeq++
	fresh := h.app.loadSuggestions(h.app.suggestSeq, "ca")()

	h.app.Update(fresh)
	h.app.Update(stale)
	assert.Equal(t, []string{"cat", "catfish"}, h.app.suggestions)
	assert.Contains(t, h.app.View(), "catfish")
}

func TestErrorsMarkdownEmpty(t *testing.T) {
	assert.Contains(t, errorsMarkdown(nil), MsgErrorsEmpty)
}

func TestMsgErrorBatch(t *testing.T) {
	r := aggregate.Report{Summaries: []aggregate.Summary{
		{Code: "TIMEOUT", Count: 3},
		{Code: "HTTP_404", Count: 1},
	}}
	assert.Equal(t, "4 images failed: 3 TIMEOUT, 1 HTTP_404", MsgErrorBatch(r))
	assert.Equal(t, "", MsgErrorBatch(aggregate.Report{}))
}
