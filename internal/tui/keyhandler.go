package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/moji/internal/config"
)

const suggestDebounce = 120 * time.Millisecond

// KeyMap is the set of bindings the app reacts to. It satisfies help.KeyMap.
type KeyMap struct {
	Quit   key.Binding
	Search key.Binding
	Open   key.Binding
	Copy   key.Binding
	Errors key.Binding
	Clear  key.Binding
	Back   key.Binding
	Help   key.Binding

	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Submit   key.Binding
}

// NewKeyMap builds bindings from configuration. Navigation keys are fixed.
func NewKeyMap(b config.KeyBindings) KeyMap {
	bind := func(k, desc string) key.Binding {
		return key.NewBinding(key.WithKeys(k), key.WithHelp(k, desc))
	}
	return KeyMap{
		Quit:   bind(b.Quit, "quit"),
		Search: bind(b.Search, "search"),
		Open:   bind(b.Open, "open"),
		Copy:   bind(b.Copy, "copy url"),
		Errors: bind(b.Errors, "errors"),
		Clear:  bind(b.Clear, "clear"),
		Back:   bind(b.Back, "back"),
		Help:   bind(b.Help, "help"),

		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		PageUp:   key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("pgup", "page up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("pgdn", "page down")),
		Top:      key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "top")),
		Bottom:   key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "bottom")),
		Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "search")),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.Open, k.Copy, k.Errors, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.PageUp, k.PageDown, k.Top, k.Bottom},
		{k.Search, k.Submit, k.Clear, k.Back},
		{k.Open, k.Copy, k.Errors, k.Help, k.Quit},
	}
}

type KeyHandler struct {
	app  *App
	keys KeyMap
}

func NewKeyHandler(app *App, keys KeyMap) *KeyHandler {
	return &KeyHandler{app: app, keys: keys}
}

func (kh *KeyHandler) HandleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return kh.app, tea.Quit
	}
	if kh.isInTextInputMode() {
		return kh.handleTextInputMode(msg)
	}
	if model, cmd, handled := kh.handleCustomKeys(msg); handled {
		return model, cmd
	}
	return kh.delegateToCharm(msg)
}

func (kh *KeyHandler) isInTextInputMode() bool {
	return kh.app.view == ViewSearch && kh.app.searchInput.Focused()
}

func (kh *KeyHandler) handleTextInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyEsc:
		return kh.navigateBack()
	case key.Matches(msg, kh.keys.Submit):
		return kh.submitSearch()
	default:
		return kh.delegateToTextInput(msg)
	}
}

func (kh *KeyHandler) submitSearch() (tea.Model, tea.Cmd) {
	keyword := sanitizeKeyword(kh.app.searchInput.Value())
	if keyword == "" {
		return kh.app, nil
	}
	kh.app.searchInput.Blur()
	kh.app.view = ViewGrid
	kh.app.selected = 0
	kh.app.ctrl.Search(keyword)
	return kh.app, nil
}

// delegateToTextInput updates the search box and schedules a debounced
// suggestion lookup when its value changed.
func (kh *KeyHandler) delegateToTextInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	prev := kh.app.searchInput.Value()
	input, cmd := kh.app.searchInput.Update(msg)
	kh.app.searchInput = input

	if kh.app.searchInput.Value() == prev {
		return kh.app, cmd
	}
	return kh.app, tea.Batch(cmd, kh.app.scheduleSuggestions(suggestDebounce))
}

func (kh *KeyHandler) handleCustomKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, kh.keys.Quit):
		return kh.app, tea.Quit, true
	case key.Matches(msg, kh.keys.Back), msg.Type == tea.KeyEsc:
		model, cmd := kh.navigateBack()
		return model, cmd, true
	case key.Matches(msg, kh.keys.Search):
		model, cmd := kh.enterSearchMode()
		return model, cmd, true
	case key.Matches(msg, kh.keys.Help):
		return kh.app, kh.app.togglePanel(ViewHelp), true
	case key.Matches(msg, kh.keys.Errors):
		return kh.app, kh.app.togglePanel(ViewErrors), true
	}

	if kh.app.view == ViewGrid {
		return kh.handleGridCustomKeys(msg)
	}
	return kh.app, nil, false
}

func (kh *KeyHandler) handleGridCustomKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	a := kh.app
	cols := a.ctrl.Window().Columns
	page := a.visibleRows() * cols

	switch {
	case key.Matches(msg, kh.keys.Clear):
		a.ctrl.Clear()
		a.selected = 0
		return a, a.flash(MsgClearedSearch, StatusInfo), true
	case key.Matches(msg, kh.keys.Copy):
		return a, a.copySelected(), true
	case key.Matches(msg, kh.keys.Open):
		return a, a.openSelected(), true
	case key.Matches(msg, kh.keys.Up):
		a.moveSelection(-cols)
	case key.Matches(msg, kh.keys.Down):
		a.moveSelection(cols)
	case key.Matches(msg, kh.keys.Left):
		a.moveSelection(-1)
	case key.Matches(msg, kh.keys.Right):
		a.moveSelection(1)
	case key.Matches(msg, kh.keys.PageUp):
		a.moveSelection(-page)
	case key.Matches(msg, kh.keys.PageDown):
		a.moveSelection(page)
	case key.Matches(msg, kh.keys.Top):
		a.moveSelection(-a.selected)
	case key.Matches(msg, kh.keys.Bottom):
		a.moveSelection(a.ctrl.Len())
	default:
		return a, nil, false
	}
	return a, nil, true
}

// delegateToCharm lets the panel viewport scroll with its own bindings.
func (kh *KeyHandler) delegateToCharm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch kh.app.view {
	case ViewErrors, ViewHelp:
		vp, cmd := kh.app.viewport.Update(msg)
		kh.app.viewport = vp
		return kh.app, cmd
	case ViewSearch:
		return kh.delegateToTextInput(msg)
	default:
		return kh.app, nil
	}
}

func (kh *KeyHandler) enterSearchMode() (tea.Model, tea.Cmd) {
	a := kh.app
	a.view = ViewSearch
	a.searchInput.SetValue(a.ctrl.Keyword())
	a.searchInput.CursorEnd()
	return a, tea.Batch(a.searchInput.Focus(), a.scheduleSuggestions(0))
}

func (kh *KeyHandler) navigateBack() (tea.Model, tea.Cmd) {
	a := kh.app
	switch a.view {
	case ViewSearch:
		a.searchInput.Blur()
		a.view = ViewGrid
	case ViewErrors, ViewHelp:
		a.view = ViewGrid
	}
	return a, nil
}

// sanitizeKeyword collapses whitespace and drops control characters.
func sanitizeKeyword(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
