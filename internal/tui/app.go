// Package tui is the terminal front end. App is a bubbletea model and the
// grid.Renderer of the controller it owns; controller events reach it
// through a command that waits on the controller's mailbox.
package tui

import (
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/moji/internal/aggregate"
	"github.com/pders01/moji/internal/config"
	"github.com/pders01/moji/internal/debuglog"
	"github.com/pders01/moji/internal/fault"
	"github.com/pders01/moji/internal/grid"
	"github.com/pders01/moji/internal/media"
	"github.com/pders01/moji/internal/window"
)

// chromeLines is the header, the separator and the status bar.
const chromeLines = 3

// History records searches and suggests keywords. *history.Service satisfies it.
type History interface {
	Record(keyword string, results []string) error
	Keywords(prefix string, limit int) []string
}

// Opener shows an image URL outside the terminal. *media.Launcher satisfies it.
type Opener interface {
	Open(url string) error
	Viewer() string
}

type Option func(*App)

func WithHistory(h History) Option { return func(a *App) { a.history = h } }

func WithOpener(o Opener) Option { return func(a *App) { a.launcher = o } }

// WithClipboard replaces the system clipboard writer.
func WithClipboard(fn func(string) error) Option { return func(a *App) { a.clipboard = fn } }

// WithInitialSearch runs keyword as soon as the program starts.
func WithInitialSearch(keyword string) Option { return func(a *App) { a.initial = keyword } }

type App struct {
	config     *config.Config
	theme      Theme
	keys       KeyMap
	keyHandler *KeyHandler
	ctrl       *grid.Controller
	history    History
	launcher   Opener
	clipboard  func(string) error

	searchInput textinput.Model
	spinner     spinner.Model
	help        help.Model
	viewport    viewport.Model

	view     View
	cells    map[int]*cell
	selected int
	status   grid.Status
	flashMsg string
	flashKnd StatusKind
	reports  []aggregate.Report

	suggestSeq  int
	suggestions []string
	initial     string

	width  int
	height int

	glamourRenderer *glamour.TermRenderer
	rendererWidth   int

	done chan struct{}
}

// NewApp builds the app and the grid controller it renders.
func NewApp(cfg *config.Config, searcher grid.Searcher, loader grid.Loader, opts ...Option) *App {
	si := textinput.New()
	si.Placeholder = "Search images..."
	si.Prompt = "› "
	si.ShowSuggestions = true
	si.CharLimit = 100

	keys := NewKeyMap(cfg.Keys.Bindings)
	theme := NewTheme(cfg.UI.Colors)

	app := &App{
		config:      cfg,
		theme:       theme,
		keys:        keys,
		clipboard:   clipboard.WriteAll,
		searchInput: si,
		spinner:     spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(lipgloss.NewStyle().Foreground(theme.Accent))),
		help:        help.New(),
		viewport:    viewport.New(0, 0),
		view:        ViewGrid,
		cells:       make(map[int]*cell),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.launcher == nil {
		if l, err := media.NewLauncher(cfg.Media); err == nil {
			app.launcher = l
		} else {
			debuglog.Warnf("no image viewer: %v", err)
		}
	}

	gridOpts := []grid.Option{
		grid.WithErrorReports(cfg.Errors.ReportInterval, cfg.Errors.SampleSize),
	}
	if app.history != nil {
		hist := app.history
		gridOpts = append(gridOpts, grid.WithSearchRecorder(func(keyword string, results []string) {
			if err := hist.Record(keyword, results); err != nil {
				debuglog.Warnf("recording %q: %v", keyword, err)
			}
		}))
	}
	app.ctrl = grid.New(searcher, loader, app, window.New(cfg.Window), gridOpts...)
	app.keyHandler = NewKeyHandler(app, keys)
	return app
}

// Controller exposes the grid controller, mainly for tests.
func (a *App) Controller() *grid.Controller { return a.ctrl }

// Close stops the controller. Call it after the program exits.
func (a *App) Close() {
	select {
	case <-a.done:
		return
	default:
	}
	close(a.done)
	a.ctrl.Close()
}

func (a *App) getRenderer() (*glamour.TermRenderer, error) {
	wrap := (a.width * 9) / 10
	if wrap > 120 {
		wrap = 120
	}
	if wrap < 40 {
		wrap = 40
	}

	if a.glamourRenderer == nil || abs(a.rendererWidth-wrap) > 10 {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return nil, err
		}
		a.glamourRenderer = r
		a.rendererWidth = wrap
	}
	return a.glamourRenderer, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// rowLines is the terminal height of one grid row, borders included.
func (a *App) rowLines() int {
	px := a.config.UI.LinePixels
	if px <= 0 {
		px = 1
	}
	n := a.ctrl.Window().RowHeight / px
	if n < 3 {
		n = 3
	}
	return n
}

func (a *App) gridLines() int {
	n := a.height - chromeLines
	if n < 1 {
		n = 1
	}
	return n
}

// viewportPixels converts the grid area to window units.
func (a *App) viewportPixels() int {
	return a.gridLines() * a.ctrl.Window().RowHeight / a.rowLines()
}

func (a *App) visibleRows() int {
	rows := a.gridLines() / a.rowLines()
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.waitForEvents(), a.spinner.Tick}
	if a.initial != "" {
		a.ctrl.Search(a.initial)
	}
	return tea.Batch(cmds...)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.viewport.Width = msg.Width
		a.viewport.Height = a.gridLines()
		a.searchInput.Width = msg.Width - 10
		a.ctrl.Resize(a.viewportPixels())
		if a.view == ViewErrors || a.view == ViewHelp {
			cmds = append(cmds, a.renderPanel(a.view))
		}

	case tea.KeyMsg:
		return a.keyHandler.HandleKey(msg)

	case tea.MouseMsg:
		if a.view == ViewGrid && msg.Action == tea.MouseActionPress {
			step := a.ctrl.Window().RowHeight / a.rowLines() * 3
			switch msg.Button {
			case tea.MouseButtonWheelUp:
				a.ctrl.ScrollBy(-step)
			case tea.MouseButtonWheelDown:
				a.ctrl.ScrollBy(step)
			}
		}

	case mailboxMsg:
		a.ctrl.Dispatch()
		cmds = append(cmds, a.waitForEvents())

	case suggestDebounceMsg:
		if msg.seq == a.suggestSeq {
			cmds = append(cmds, a.loadSuggestions(msg.seq, a.searchInput.Value()))
		}

	case suggestionsMsg:
		if msg.seq == a.suggestSeq {
			a.suggestions = msg.keywords
			a.searchInput.SetSuggestions(msg.keywords)
		}

	case panelRenderedMsg:
		if a.view == msg.view {
			a.viewport.SetContent(msg.content)
		}

	case flashMsg:
		a.flashMsg, a.flashKnd = msg.text, msg.kind

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if a.view == ViewSearch {
		input, cmd := a.searchInput.Update(msg)
		a.searchInput = input
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

func (a *App) View() string {
	var content string
	switch a.view {
	case ViewSearch:
		content = a.renderSearch()
	case ViewErrors, ViewHelp:
		content = a.viewport.View()
	default:
		content = a.renderGrid()
	}
	content = lipgloss.NewStyle().
		Width(a.width).
		Height(a.gridLines()).
		MaxHeight(a.gridLines()).
		Render(content)

	sepWidth := a.width
	if sepWidth < 0 {
		sepWidth = 0
	}
	separator := a.theme.Separator.Render(strings.Repeat("─", sepWidth))
	return lipgloss.JoinVertical(lipgloss.Left, a.renderHeader(), content, separator, a.renderStatusBar())
}

func (a *App) renderSearch() string {
	width := a.width - 8
	if width < 10 {
		width = a.width - 4
	}
	a.searchInput.Width = width

	rows := []string{
		a.theme.Header.Render("› search"),
		"",
		a.renderInputFrame(a.searchInput.View(), a.searchInput.Focused(), width),
	}
	if len(a.suggestions) > 0 {
		rows = append(rows, renderMuted("recent:"))
		for _, s := range a.suggestions {
			rows = append(rows, renderMuted("  "+truncateEnd(s, width)))
		}
	}
	rows = append(rows, "", a.theme.Help.Render("Enter: search • Tab: complete • Esc: back"))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderGrid draws the materialised rows and cuts them to the scroll offset.
func (a *App) renderGrid() string {
	total := a.ctrl.Len()
	if total == 0 {
		msg := GetWelcomeMessage(a.keys.Search.Help().Key)
		switch a.status.Kind {
		case grid.StatusSearching:
			msg = a.spinner.View() + " " + a.status.Text
		case grid.StatusIdle:
		default:
			msg = a.theme.StatusStyle(severityOf(a.status.Kind)).Render(a.status.Text)
		}
		return renderCentered(a.width, a.gridLines(), msg)
	}

	win := a.ctrl.Window()
	vis := a.ctrl.Visible()
	if vis.Len() == 0 || win.Columns <= 0 {
		return ""
	}
	rowLines := a.rowLines()
	cellWidth := a.width / win.Columns
	if cellWidth < 4 {
		cellWidth = 4
	}

	firstRow, _ := win.Cell(vis.Start)
	lastRow, _ := win.Cell(vis.End - 1)
	var lines []string
	for row := firstRow; row <= lastRow; row++ {
		tiles := make([]string, win.Columns)
		for col := range tiles {
			tiles[col] = a.renderCell(row*win.Columns+col, cellWidth, rowLines)
		}
		block := lipgloss.JoinHorizontal(lipgloss.Top, tiles...)
		lines = append(lines, strings.Split(block, "\n")...)
	}

	offset := a.ctrl.Offset()
	topRow := offset / win.RowHeight
	skip := (topRow-firstRow)*rowLines + (offset%win.RowHeight)*rowLines/win.RowHeight
	if skip < 0 {
		skip = 0
	}
	if skip > len(lines) {
		skip = len(lines)
	}
	end := skip + a.gridLines()
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[skip:end], "\n")
}

func (a *App) renderStatusBar() string {
	left := ""
	switch {
	case a.flashMsg != "":
		left = a.theme.StatusStyle(a.flashKnd).Render(a.flashMsg)
	case a.status.Text != "":
		text := a.status.Text
		if a.status.Kind == grid.StatusSearching || a.ctrl.Loading() {
			text = a.spinner.View() + " " + text
		}
		left = a.theme.StatusStyle(severityOf(a.status.Kind)).Render(text)
	}
	right := a.help.ShortHelpView(a.keys.ShortHelp())

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return lipgloss.NewStyle().Width(a.width).MaxHeight(1).Padding(0, 1).Render(left)
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(left + strings.Repeat(" ", gap) + right)
}

// counts returns loaded, failed and pending visible cells.
func (a *App) counts() (loaded, failed, pending int) {
	for _, c := range a.cells {
		switch c.state {
		case cellReady:
			loaded++
		case cellFailed:
			failed++
		default:
			pending++
		}
	}
	return loaded, failed, pending
}

// moveSelection shifts the selected index and scrolls it into view. Moving
// past the last row still scrolls, which pages in more results.
func (a *App) moveSelection(delta int) {
	total := a.ctrl.Len()
	if total == 0 {
		return
	}
	a.selected += delta
	if a.selected < 0 {
		a.selected = 0
	}
	if a.selected >= total {
		a.selected = total - 1
	}

	win := a.ctrl.Window()
	row, _ := win.Cell(a.selected)
	top := row * win.RowHeight
	bottom := top + win.RowHeight
	offset := a.ctrl.Offset()
	vp := a.ctrl.Viewport()
	switch {
	case top < offset:
		offset = top
	case bottom > offset+vp:
		offset = bottom - vp
	}
	if delta > 0 && a.selected == total-1 {
		offset = win.MaxScroll(total, vp)
	}
	a.ctrl.Scroll(offset)
}

// VisibleSlice keeps cells that are still bound to the same URL.
func (a *App) VisibleSlice(start int, urls []string) {
	next := make(map[int]*cell, len(urls))
	for i, u := range urls {
		idx := start + i
		if c, ok := a.cells[idx]; ok && c.url == u {
			next[idx] = c
			continue
		}
		next[idx] = &cell{url: u}
	}
	a.cells = next
}

func (a *App) ImageReady(index int, data []byte, animated bool) {
	c, ok := a.cells[index]
	if !ok {
		return
	}
	c.state = cellReady
	c.format = string(media.Sniff(data))
	c.animated = animated
	c.size = len(data)
}

func (a *App) ImageFailed(index int, err *fault.Error) {
	c, ok := a.cells[index]
	if !ok {
		return
	}
	c.state = cellFailed
	c.code = err.Code()
}

func (a *App) ErrorBatch(report aggregate.Report) {
	if report.Total() == 0 {
		return
	}
	a.reports = append(a.reports, report)
	if len(a.reports) > maxReports {
		a.reports = a.reports[len(a.reports)-maxReports:]
	}
	a.flashMsg, a.flashKnd = MsgErrorBatch(report), StatusError
	debuglog.WithFields(debuglog.Fields{"component": "tui"}).Infof("%s", a.flashMsg)
}

func (a *App) StatusChanged(status grid.Status) {
	a.status = status
	a.flashMsg = ""
	if status.Kind == grid.StatusIdle || status.Kind == grid.StatusSearching {
		a.selected = 0
	}
}

type mailboxMsg struct{}

type suggestDebounceMsg struct{ seq int }

type suggestionsMsg struct {
	seq      int
	keywords []string
}

type panelRenderedMsg struct {
	view    View
	content string
}

type flashMsg struct {
	text string
	kind StatusKind
}
