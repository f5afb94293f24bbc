package tui

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/pders01/moji/internal/config"
)

func TestKeyMapUsesConfiguredBindings(t *testing.T) {
	b := config.TestConfig().Keys.Bindings
	b.Copy = "ctrl+y"
	km := NewKeyMap(b)

	assert.True(t, key.Matches(tea.KeyMsg{Type: tea.KeyCtrlY}, km.Copy))
	assert.False(t, key.Matches(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")}, km.Copy))
	assert.Equal(t, "ctrl+y", km.Copy.Help().Key)
}

func TestKeyHandler_QuitKeys(t *testing.T) {
	h := newHarness(t, nil)

	_, cmd := h.app.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.IsType(t, tea.QuitMsg{}, cmd())

	_, cmd = h.app.Update(runes("q"))
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestKeyHandler_QuitKeyTypesInSearch(t *testing.T) {
	h := newHarness(t, nil)
	h.press(runes("/"), runes("q"))

	assert.Equal(t, ViewSearch, h.app.view)
	assert.Equal(t, "q", h.app.searchInput.Value())
}

func TestKeyHandler_SearchPrefillsKeyword(t *testing.T) {
	h := newHarness(t, nil)
	h.search(t, "cats")

	h.press(runes("/"))
	assert.Equal(t, "cats", h.app.searchInput.Value())
	assert.True(t, h.app.searchInput.Focused())
}

func TestSanitizeKeyword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"cats", "cats"},
		{"  big   cats ", "big cats"},
		{"tab\tcat", "tab cat"},
		{"\x00\x1b", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeKeyword(tt.in), tt.in)
	}
}

func TestTruncateMiddle(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"abcdef", 10, "abcdef"},
		{"abcdefghij", 5, "ab…ij"},
		{"abcdefghij", 1, "…"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateMiddle(tt.in, tt.limit))
	}
}
