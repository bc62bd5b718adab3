package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/lastview/internal/feed"
	"github.com/abelbrown/lastview/internal/otel"
	"github.com/abelbrown/lastview/internal/presenter"
	"github.com/abelbrown/lastview/internal/viewport"
)

const (
	defaultTick    = 100 * time.Millisecond
	noticeDuration = 4 * time.Second
	restoreNotice  = "Couldn't find where you left off"
)

// Presenter is the part of presenter.Presenter the view drives.
type Presenter interface {
	State() presenter.State
	Sample(viewport.Sample)
	DismissIndicator()
	Refresh()
	RestoreFailed() <-chan presenter.RestoreFailedEvent
}

// Feed is the read side of a feed.Provider.
type Feed interface {
	Snapshot() feed.Snapshot
	Peek(index int) (feed.Item, bool)
}

// AppConfig wires an App.
type AppConfig struct {
	Presenter Presenter
	Feed      Feed
	FeedKey   string
	// Feeds lists switchable feed keys in tab order.
	Feeds []string
	// SwitchFeed returns a Cmd that switches to key and answers FeedSwitched.
	SwitchFeed func(key string) tea.Cmd
	Scroller   *Scroller
	Ring       *otel.RingBuffer
	// Tick is how often the window is re-read. Zero uses 100ms.
	Tick time.Duration
	Now  func() time.Time
}

// App is the root Bubble Tea model: a one-row-per-post timeline.
// IMPORTANT: App never blocks on the presenter. Everything it sends is
// fire-and-forget, and everything it learns arrives as a message or a tick.
type App struct {
	cfg     AppConfig
	spinner spinner.Model

	feedKey string
	feed    Feed
	snap    feed.Snapshot
	state   presenter.State

	top    int
	topKey string

	reportedTop   int
	reportedCount int
	reported      bool

	notice      string
	noticeUntil time.Time
	err         error
	switching   bool

	width        int
	height       int
	ready        bool
	debugVisible bool
}

// NewApp creates an App.
func NewApp(cfg AppConfig) App {
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return App{
		cfg:     cfg,
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(StatusBarKey)),
		feedKey: cfg.FeedKey,
		feed:    cfg.Feed,
	}
}

// Init starts the tick and the listeners.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.tick(), a.spinner.Tick, a.listenScroll(), a.listenFailed())
}

func (a App) tick() tea.Cmd {
	return tea.Tick(a.cfg.Tick, func(time.Time) tea.Msg { return RefreshTick{} })
}

func (a App) listenScroll() tea.Cmd {
	if a.cfg.Scroller == nil {
		return nil
	}
	return a.cfg.Scroller.Listen()
}

func (a App) listenFailed() tea.Cmd {
	if a.cfg.Presenter == nil {
		return nil
	}
	ch := a.cfg.Presenter.RestoreFailed()
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return RestoreFailed{ev}
	}
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a = a.sync()
		return a, nil

	case RefreshTick:
		a = a.sync()
		return a, a.tick()

	case ScrollTo:
		if a.feed != nil {
			a.snap = a.feed.Snapshot()
		}
		a.top = msg.Index
		a = a.clamp()
		a = a.report(true)
		return a, a.listenScroll()

	case RestoreFailed:
		a.notice = restoreNotice
		a.noticeUntil = a.cfg.Now().Add(noticeDuration)
		return a, a.listenFailed()

	case FeedSwitched:
		a.switching = false
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.feedKey = msg.Key
		a.feed = msg.Feed
		a.top, a.topKey = 0, ""
		a.snap = feed.Snapshot{}
		a.reported = false
		a = a.sync()
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Clear any existing error on key press
	if a.err != nil {
		a.err = nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		return a.scrollBy(1), nil

	case "k", "up":
		return a.scrollBy(-1), nil

	case "ctrl+d", "pgdown", " ":
		return a.scrollBy(a.rows()), nil

	case "ctrl+u", "pgup":
		return a.scrollBy(-a.rows()), nil

	case "g", "home":
		return a.scrollBy(-a.top), nil

	case "G", "end":
		return a.scrollBy(a.snap.ItemCount), nil

	case "n":
		// Tapping the pill: jump to the newest post.
		if a.cfg.Presenter != nil {
			a.cfg.Presenter.DismissIndicator()
		}
		return a.scrollBy(-a.top), nil

	case "x", "esc":
		if a.cfg.Presenter != nil {
			a.cfg.Presenter.DismissIndicator()
		}
		return a, nil

	case "r":
		if a.cfg.Presenter != nil {
			a.cfg.Presenter.Refresh()
		}
		return a, nil

	case "tab":
		if a.switching || a.cfg.SwitchFeed == nil || len(a.cfg.Feeds) < 2 {
			return a, nil
		}
		a.switching = true
		return a, a.cfg.SwitchFeed(a.nextFeed())

	case "?":
		a.debugVisible = !a.debugVisible
		return a, nil
	}

	return a, nil
}

func (a App) nextFeed() string {
	for i, k := range a.cfg.Feeds {
		if k == a.feedKey {
			return a.cfg.Feeds[(i+1)%len(a.cfg.Feeds)]
		}
	}
	return a.cfg.Feeds[0]
}

func (a App) scrollBy(n int) App {
	a.top += n
	a = a.clamp()
	return a.report(false)
}

// clamp keeps top inside the window and remembers the key there.
func (a App) clamp() App {
	if a.top > a.snap.ItemCount-1 {
		a.top = a.snap.ItemCount - 1
	}
	if a.top < 0 {
		a.top = 0
	}
	a.topKey = ""
	if a.feed != nil {
		if it, ok := a.feed.Peek(a.top); ok {
			a.topKey = it.Key
		}
	}
	return a
}

// sync re-reads the window. When posts arrive above, top follows the
// post the user was looking at, unless the user is at the very top.
func (a App) sync() App {
	if a.feed == nil {
		return a
	}
	a.snap = a.feed.Snapshot()
	if a.top > 0 && a.topKey != "" {
		if it, ok := a.feed.Peek(a.top); !ok || it.Key != a.topKey {
			if i := a.find(a.topKey); i >= 0 {
				a.top = i
			}
		}
	}
	a = a.clamp()
	if a.cfg.Presenter != nil {
		a.state = a.cfg.Presenter.State()
	}
	if a.notice != "" && !a.cfg.Now().Before(a.noticeUntil) {
		a.notice = ""
	}
	return a.report(false)
}

func (a App) find(key string) int {
	for i := 0; i < a.snap.ItemCount; i++ {
		if it, ok := a.feed.Peek(i); ok && it.Key == key {
			return i
		}
	}
	return -1
}

// report sends the viewport to the presenter when it changed, or always
// when force is set.
func (a App) report(force bool) App {
	if !a.ready || a.cfg.Presenter == nil {
		return a
	}
	if !force && a.reported && a.top == a.reportedTop && a.snap.ItemCount == a.reportedCount {
		return a
	}
	a.cfg.Presenter.Sample(viewport.Window(a.top, 0, 1, a.rows(), a.snap.ItemCount))
	a.reportedTop = a.top
	a.reportedCount = a.snap.ItemCount
	a.reported = true
	return a
}

// rows is the number of post rows on screen: everything except the
// indicator line and the status bar.
func (a App) rows() int {
	return max(a.height-2, 1)
}

func (a App) window() []feed.Item {
	if a.feed == nil {
		return nil
	}
	var items []feed.Item
	for i := a.top; i < a.top+a.rows(); i++ {
		it, ok := a.feed.Peek(i)
		if !ok {
			break
		}
		items = append(items, it)
	}
	return items
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}
	if a.debugVisible {
		return debugOverlay(a.cfg.Ring, a.width, a.height-1, a.cfg.Now()) + "\n" + debugStatusBar(a.width)
	}

	var header string
	switch {
	case a.err != nil:
		header = ErrorStyle.Render("Error: " + a.err.Error())
	case a.state.ShowIndicator:
		header = RenderIndicator(a.state.UnseenCount, a.width)
	case a.notice != "":
		header = NoticeStyle.Render(a.notice)
	}

	busy := ""
	if a.state.IsBusy || a.switching {
		busy = a.spinner.View()
	}

	body := RenderTimeline(a.window(), a.top, a.width, a.rows(), a.cfg.Now())
	return header + "\n" + body + RenderStatusBar(a.feedKey, a.top, a.snap.ItemCount, a.width, busy)
}

// Top returns the index of the first visible post (for testing).
func (a App) Top() int {
	return a.top
}

// FeedKey returns the feed on screen (for testing).
func (a App) FeedKey() string {
	return a.feedKey
}
