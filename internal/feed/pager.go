package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/lastview/internal/metrics"
	"github.com/abelbrown/lastview/internal/otel"
)

// Direction of a page request.
type Direction int

const (
	DirRefresh Direction = iota
	DirPrepend
	DirAppend
)

func (d Direction) String() string {
	switch d {
	case DirRefresh:
		return "refresh"
	case DirPrepend:
		return "prepend"
	case DirAppend:
		return "append"
	default:
		return "unknown"
	}
}

// Request asks a PageSource for one page. Key is the continuation key
// returned by a previous page; empty for refresh.
type Request struct {
	Direction Direction
	Key       string
	Size      int
}

// Page is one page of items, newest first. An empty NextKey means there
// is nothing older. An empty PrevKey keeps the previous one.
type Page struct {
	Items   []Item
	PrevKey string
	NextKey string
}

// PageSource loads pages from wherever posts come from.
type PageSource interface {
	Load(ctx context.Context, req Request) (Page, error)
}

// Default pager tuning.
const (
	DefaultPageSize       = 20
	DefaultPagesPerSecond = 4
	DefaultMaxAnchorPages = 20
)

// PagerOptions configures a Pager. Zero values use the defaults.
type PagerOptions struct {
	FeedKey        string
	PageSize       int
	PagesPerSecond float64
	// MaxAnchorPages bounds the extra pages a refresh loads while
	// looking for the anchor. Negative disables the search.
	MaxAnchorPages int
	// Anchor returns the item key a refresh should try to include, or "".
	Anchor func(ctx context.Context) string
	Log    *otel.Logger
}

// Pager is the reference Provider over a PageSource.
//
// One load per direction runs at a time. A refresh supersedes in-flight
// prepend and append loads: their results are discarded.
type Pager struct {
	src     PageSource
	opts    PagerOptions
	limiter *rate.Limiter
	log     otel.Scope

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	updates chan Snapshot

	mu      sync.Mutex
	items   []Item
	prevKey string
	nextKey string
	snap    Snapshot
	gen     uint64 // bumped by every refresh
	waiters []chan error
}

var _ Provider = (*Pager)(nil)

// NewPager creates a Pager. Loads stop when ctx is cancelled or Close is called.
func NewPager(ctx context.Context, src PageSource, opts PagerOptions) *Pager {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PagesPerSecond <= 0 {
		opts.PagesPerSecond = DefaultPagesPerSecond
	}
	if opts.MaxAnchorPages == 0 {
		opts.MaxAnchorPages = DefaultMaxAnchorPages
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pager{
		src:     src,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.PagesPerSecond), 1),
		log:     opts.Log.Scope("pager", opts.FeedKey),
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan Snapshot, 1),
	}
}

// Close cancels in-flight loads and waits for them to exit.
func (p *Pager) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pager) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *Pager) Peek(index int) (Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.items) {
		return Item{}, false
	}
	return p.items[index], true
}

func (p *Pager) Updates() <-chan Snapshot { return p.updates }

// publish replaces any unread snapshot with the current one.
// Caller must hold p.mu.
func (p *Pager) publish() {
	p.snap.ItemCount = len(p.items)
	select {
	case <-p.updates:
	default:
	}
	select {
	case p.updates <- p.snap:
	default:
	}
}

// Refresh reloads the window from the newest page. A refresh already in
// flight absorbs the call.
func (p *Pager) Refresh() {
	p.startRefresh(nil)
}

// RefreshAndWait refreshes and blocks until the refresh commits or fails.
func (p *Pager) RefreshAndWait(ctx context.Context) error {
	done := make(chan error, 1)
	p.startRefresh(done)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pager) startRefresh(done chan error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		if done != nil {
			done <- p.ctx.Err()
		}
		return
	}
	if done != nil {
		p.waiters = append(p.waiters, done)
	}
	if p.snap.Refresh.IsLoading() {
		return
	}

	p.gen++
	gen := p.gen
	p.snap.Refresh = LoadState{Status: Loading}
	p.snap.Prepended = 0
	p.snap.Prepend = LoadState{Status: Idle}
	p.snap.Append = LoadState{Status: Idle}
	p.publish()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runRefresh(gen)
	}()
}

func (p *Pager) runRefresh(gen uint64) {
	start := time.Now()
	page, extra, err := p.loadRefreshWindow()

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}

	waiters := p.waiters
	p.waiters = nil
	defer func() {
		for _, w := range waiters {
			w <- err
		}
	}()

	if err != nil {
		p.snap.Refresh = LoadState{Status: Error, Err: err}
		p.publish()
		p.loadFailed(DirRefresh, err)
		return
	}

	p.items = page.Items
	p.prevKey = page.PrevKey
	p.nextKey = page.NextKey
	p.snap.Refresh = LoadState{Status: NotLoading}
	p.snap.Prepend = LoadState{Status: NotLoading, EndReached: p.prevKey == ""}
	p.snap.Append = LoadState{Status: NotLoading, EndReached: p.nextKey == ""}
	p.publish()
	p.loaded(DirRefresh, len(page.Items), time.Since(start), extra)
}

// loadRefreshWindow loads the newest page and, when an anchor is known
// and missing, keeps appending pages until it shows up.
func (p *Pager) loadRefreshWindow() (Page, int, error) {
	page, err := p.load(Request{Direction: DirRefresh, Size: p.opts.PageSize})
	if err != nil {
		return Page{}, 0, err
	}
	if p.opts.Anchor == nil || p.opts.MaxAnchorPages < 0 {
		return page, 0, nil
	}
	anchor := p.opts.Anchor(p.ctx)
	if anchor == "" || containsKey(page.Items, anchor) {
		return page, 0, nil
	}

	combined := slices.Clone(page.Items)
	next := page.NextKey
	extra := 0
	for extra < p.opts.MaxAnchorPages && next != "" {
		more, err := p.load(Request{Direction: DirAppend, Key: next, Size: p.opts.PageSize})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return Page{}, extra, err
			}
			// Keep what we have; the restorer can still page further.
			break
		}
		extra++
		if len(more.Items) == 0 {
			next = more.NextKey
			break
		}
		combined = append(combined, more.Items...)
		next = more.NextKey
		if containsKey(more.Items, anchor) {
			break
		}
	}
	page.Items = combined
	page.NextKey = next
	return page, extra, nil
}

func containsKey(items []Item, key string) bool {
	return slices.ContainsFunc(items, func(it Item) bool { return it.Key == key })
}

// LoadAppend loads the next older page. Ignored while a refresh or another
// append runs, after end of data, or before the first refresh.
func (p *Pager) LoadAppend() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.snap.Refresh.IsLoading() || p.snap.Append.IsLoading() || p.nextKey == "" {
		return
	}
	p.snap.Append = LoadState{Status: Loading}
	p.publish()
	p.startLoad(DirAppend, p.nextKey)
}

// LoadPrepend loads newer items above the window.
func (p *Pager) LoadPrepend() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.snap.Refresh.IsLoading() || p.snap.Prepend.IsLoading() || p.prevKey == "" {
		return
	}
	p.snap.Prepend = LoadState{Status: Loading}
	p.publish()
	p.startLoad(DirPrepend, p.prevKey)
}

// startLoad runs one prepend or append. Caller must hold p.mu.
func (p *Pager) startLoad(dir Direction, key string) {
	gen := p.gen
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		start := time.Now()
		page, err := p.load(Request{Direction: dir, Key: key, Size: p.opts.PageSize})

		p.mu.Lock()
		defer p.mu.Unlock()
		if gen != p.gen {
			return
		}

		state := &p.snap.Append
		if dir == DirPrepend {
			state = &p.snap.Prepend
		}
		if err != nil {
			*state = LoadState{Status: Error, Err: err}
			p.publish()
			p.loadFailed(dir, err)
			return
		}

		switch dir {
		case DirAppend:
			p.items = append(p.items, page.Items...)
			p.nextKey = page.NextKey
			*state = LoadState{Status: NotLoading, EndReached: p.nextKey == ""}
		case DirPrepend:
			p.items = append(slices.Clone(page.Items), p.items...)
			p.snap.Prepended += len(page.Items)
			if page.PrevKey != "" {
				p.prevKey = page.PrevKey
			}
			*state = LoadState{Status: NotLoading, EndReached: len(page.Items) == 0}
		}
		p.publish()
		p.loaded(dir, len(page.Items), time.Since(start), 0)
	}()
}

func (p *Pager) load(req Request) (Page, error) {
	if err := p.limiter.Wait(p.ctx); err != nil {
		return Page{}, fmt.Errorf("%s: %w", req.Direction, err)
	}
	page, err := p.src.Load(p.ctx, req)
	if err != nil {
		return Page{}, fmt.Errorf("%s: %w", req.Direction, err)
	}
	return page, nil
}

func (p *Pager) loaded(dir Direction, n int, dur time.Duration, extraPages int) {
	metrics.PageLoads.WithLabelValues(dir.String(), "ok").Inc()
	e := otel.Event{Kind: otel.KindFeedLoad, Status: dir.String(), Count: n, Dur: dur}
	if extraPages > 0 {
		e.Extra = map[string]any{"anchor_pages": extraPages}
	}
	p.log.Emit(e)
}

func (p *Pager) loadFailed(dir Direction, err error) {
	metrics.PageLoads.WithLabelValues(dir.String(), "error").Inc()
	p.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindFeedError, Status: dir.String(), Err: err.Error()})
}
