// Package presenter composes position capture, restoration and the
// new-posts indicator into the state a timeline view renders.
//
// A Presenter has one owner goroutine (Run). Every input, whether a
// provider snapshot, a viewport sample, a user request or a timer, is
// applied there one at a time, so none of the state below needs locking.
// Calls the view makes on every frame (Sample, DismissIndicator, Refresh)
// never block.
package presenter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abelbrown/lastview/internal/feed"
	"github.com/abelbrown/lastview/internal/logging"
	"github.com/abelbrown/lastview/internal/lvp"
	"github.com/abelbrown/lastview/internal/metrics"
	"github.com/abelbrown/lastview/internal/newposts"
	"github.com/abelbrown/lastview/internal/otel"
	"github.com/abelbrown/lastview/internal/viewport"
)

// Defaults for Options.
const (
	DefaultConfirmTimeout   = 3 * time.Second
	DefaultCaptureSettle    = 400 * time.Millisecond
	DefaultPrefetchDistance = 3
)

// ErrClosed is returned by calls made after the presenter stopped.
var ErrClosed = errors.New("presenter: closed")

// State is what the view renders.
type State struct {
	FeedKey       string
	ShowIndicator bool
	UnseenCount   int
	IsBusy        bool
	Restore       lvp.Status
	Outcome       lvp.Outcome
}

// RestoreFailedEvent is a one-shot notice that the saved position could
// not be found.
type RestoreFailedEvent struct {
	FeedKey string
	Time    time.Time
}

// Store reads and writes saved positions.
type Store interface {
	lvp.PositionReader
	lvp.PositionWriter
}

// Options tunes a Presenter. Zero values use the defaults.
type Options struct {
	ConfirmTimeout   time.Duration
	CaptureSettle    time.Duration
	PrefetchDistance int
	MaxScanned       int
	Log              *otel.Logger
	// OnChange is called on the owner goroutine after every state change.
	OnChange func(State)
}

type (
	confirmMsg struct{ gen uint64 }
	settleMsg  struct{ gen uint64 }
	refreshMsg struct {
		ctx  context.Context
		done chan error
	}
	switchMsg struct {
		feedKey  string
		provider feed.Provider
		done     chan struct{}
	}
)

// pending holds the latest non-blocking requests from the view.
type pending struct {
	sample  *viewport.Sample
	dismiss bool
	refresh bool
}

// Presenter is the façade for one timeline view.
type Presenter struct {
	opts     Options
	store    Store
	capturer *lvp.Capturer
	logger   *otel.Logger

	inbox   chan any
	kick    chan struct{}
	failed  chan RestoreFailedEvent
	stop    chan struct{}
	started chan struct{}
	done    chan struct{}

	// Restore-failed notices waiting for the reader.
	failMu    sync.Mutex
	failQueue []RestoreFailedEvent
	failKick  chan struct{}

	closeOnce sync.Once
	startOnce sync.Once

	mu      sync.Mutex
	pend    pending
	current State

	// Owner goroutine state.
	feedKey      string
	provider     feed.Provider
	restorer     *lvp.Restorer
	indicator    newposts.Controller
	snap         feed.Snapshot
	sample       viewport.Sample
	haveSample   bool
	confirmGen   uint64
	confirmTimer *time.Timer
	settleGen    uint64
	settleTimer  *time.Timer
	log          otel.Scope
}

// New creates a Presenter for feedKey. Call Run to start it.
func New(feedKey string, provider feed.Provider, store Store, scroller lvp.Scroller, opts Options) *Presenter {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.CaptureSettle <= 0 {
		opts.CaptureSettle = DefaultCaptureSettle
	}
	if opts.PrefetchDistance < 0 {
		opts.PrefetchDistance = DefaultPrefetchDistance
	}
	p := &Presenter{
		opts:     opts,
		store:    store,
		capturer: lvp.NewCapturer(store, opts.Log),
		logger:   opts.Log,
		inbox:    make(chan any, 16),
		kick:     make(chan struct{}, 1),
		failed:   make(chan RestoreFailedEvent, 8),
		failKick: make(chan struct{}, 1),
		stop:     make(chan struct{}),
		started:  make(chan struct{}),
		done:     make(chan struct{}),
		feedKey:  feedKey,
		provider: provider,
		restorer: lvp.NewRestorer(feedKey, store, scroller, lvp.RestorerOptions{MaxScanned: opts.MaxScanned, Log: opts.Log}),
		log:      opts.Log.Scope("presenter", feedKey),
	}
	p.current = p.compute()
	return p
}

// State returns the latest published state.
func (p *Presenter) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// RestoreFailed delivers restore-failed notices in order. None is dropped
// while Run is running: notices the reader has not taken yet are queued.
// Read it from one place.
func (p *Presenter) RestoreFailed() <-chan RestoreFailedEvent { return p.failed }

// Sample reports the view's current viewport. Only the latest unprocessed
// sample is kept.
func (p *Presenter) Sample(s viewport.Sample) {
	p.mu.Lock()
	p.pend.sample = &s
	p.mu.Unlock()
	p.signal()
}

// DismissIndicator hides the new-posts indicator.
func (p *Presenter) DismissIndicator() {
	p.mu.Lock()
	p.pend.dismiss = true
	p.mu.Unlock()
	p.signal()
}

// Refresh captures the current position, re-arms restoration and the
// indicator, then asks the provider to refresh.
func (p *Presenter) Refresh() {
	p.mu.Lock()
	p.pend.refresh = true
	p.mu.Unlock()
	p.signal()
}

func (p *Presenter) signal() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// RefreshAndWait is Refresh that waits for the provider's refresh to finish.
func (p *Presenter) RefreshAndWait(ctx context.Context) error {
	done := make(chan error, 1)
	if err := p.post(ctx, refreshMsg{ctx: ctx, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SwitchFeed captures the current feed and re-keys everything onto
// feedKey served by provider. It returns once the switch is applied.
func (p *Presenter) SwitchFeed(ctx context.Context, feedKey string, provider feed.Provider) error {
	done := make(chan struct{})
	if err := p.post(ctx, switchMsg{feedKey: feedKey, provider: provider, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Presenter) post(ctx context.Context, m any) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.inbox <- m:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// postTimer delivers a timer message unless the presenter has stopped.
func (p *Presenter) postTimer(m any) {
	select {
	case p.inbox <- m:
	case <-p.done:
	}
}

// Run is the owner loop. It returns nil after Close, or the context error
// when ctx is cancelled or restoration observed cancellation. A teardown
// capture is fired on the way out either way.
func (p *Presenter) Run(ctx context.Context) error {
	p.startOnce.Do(func() { close(p.started) })
	defer close(p.done)
	go p.deliverFailed()

	p.log.Emit(otel.Event{Kind: otel.KindStartup, Msg: "presenter started"})
	if err := p.onSnapshot(ctx, p.provider.Snapshot()); err != nil {
		return p.exit(ctx, err)
	}
	p.publish()

	for {
		var err error
		select {
		case <-ctx.Done():
			return p.exit(ctx, ctx.Err())
		case <-p.stop:
			return p.exit(ctx, nil)
		case snap := <-p.provider.Updates():
			err = p.onSnapshot(ctx, snap)
		case <-p.kick:
			err = p.drainPending(ctx)
		case m := <-p.inbox:
			err = p.handle(ctx, m)
		}
		if err != nil {
			return p.exit(ctx, err)
		}
		p.publish()
	}
}

// Close stops Run, fires the teardown capture, and waits for every
// capture write to finish. Safe to call more than once.
func (p *Presenter) Close() {
	p.closeOnce.Do(func() {
		close(p.stop)
		select {
		case <-p.started:
			<-p.done
		default:
			p.teardown(context.Background())
		}
	})
	p.capturer.Wait()
}

func (p *Presenter) exit(ctx context.Context, err error) error {
	p.teardown(ctx)
	p.log.Emit(otel.Event{Kind: otel.KindShutdown, Msg: "presenter stopped"})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err != nil {
		logging.Error("presenter stopped", "feed", p.feedKey, "err", err)
	}
	return err
}

// teardown captures the current position. The write is detached from ctx.
func (p *Presenter) teardown(ctx context.Context) {
	p.stopTimers()
	p.takePendingSample()
	p.capture(ctx)
}

// takePendingSample applies a sample the loop has not reached yet, so a
// capture sees the view's last report.
func (p *Presenter) takePendingSample() {
	p.mu.Lock()
	s := p.pend.sample
	p.pend.sample = nil
	p.mu.Unlock()
	if s != nil {
		p.sample = *s
		p.haveSample = true
	}
}

func (p *Presenter) capture(ctx context.Context) {
	if !p.haveSample {
		return
	}
	p.capturer.Capture(ctx, p.feedKey, p.provider, p.sample.FirstVisibleIndex)
}

func (p *Presenter) drainPending(ctx context.Context) error {
	p.mu.Lock()
	pend := p.pend
	p.pend = pending{}
	p.mu.Unlock()

	if pend.sample != nil {
		p.onSample(*pend.sample)
	}
	if pend.dismiss {
		p.hideIndicator("dismiss")
		p.indicator.Dismiss()
	}
	if pend.refresh {
		p.doRefresh(ctx, nil)
	}
	return nil
}

func (p *Presenter) handle(ctx context.Context, m any) error {
	switch m := m.(type) {
	case confirmMsg:
		if m.gen == p.confirmGen {
			p.apply(p.restorer.OnConfirmTimeout())
		}
	case settleMsg:
		if m.gen == p.settleGen && p.restorer.Status() == lvp.Completed {
			p.capture(ctx)
		}
	case refreshMsg:
		p.doRefresh(m.ctx, m.done)
	case switchMsg:
		err := p.doSwitch(ctx, m.feedKey, m.provider)
		close(m.done)
		return err
	}
	return nil
}

func (p *Presenter) doRefresh(ctx context.Context, done chan error) {
	p.capture(ctx)
	p.restorer.Reset()
	p.indicator.Reset()
	p.stopTimers()

	p.provider.Refresh()
	if done == nil {
		return
	}
	prov := p.provider
	go func() {
		done <- prov.RefreshAndWait(ctx)
	}()
}

func (p *Presenter) doSwitch(ctx context.Context, feedKey string, provider feed.Provider) error {
	p.takePendingSample()
	p.capture(ctx)
	p.stopTimers()

	p.feedKey = feedKey
	p.provider = provider
	p.restorer.Rekey(feedKey)
	p.indicator.Reset()
	p.sample = viewport.Sample{}
	p.haveSample = false
	p.log = p.logger.Scope("presenter", feedKey)

	return p.onSnapshot(ctx, provider.Snapshot())
}

func (p *Presenter) onSnapshot(ctx context.Context, snap feed.Snapshot) error {
	p.snap = snap
	p.log.Trace(otel.Event{Kind: otel.KindSnapshot, Count: snap.ItemCount, Status: snapStatus(snap)})

	if delta := p.indicator.ObservePrepend(snap); delta > 0 &&
		p.haveSample && !p.sample.AtTop() && p.restorer.Status() == lvp.Completed {
		p.indicator.Add(delta, p.prependAnchor(snap, delta))
		p.showIndicator("prepend")
	}

	tr, err := p.restorer.OnSnapshot(ctx, snap, p.provider, p.sample.FirstVisibleIndex)
	p.apply(tr)
	if err != nil {
		return err
	}
	p.maybePrefetch()
	return nil
}

// prependAnchor is the effective index of the user's post in snap, which
// has delta new items on top. A sample laid out before the prepend still
// counts from the old top.
func (p *Presenter) prependAnchor(snap feed.Snapshot, delta int) int {
	e := p.sample.EffectiveIndex()
	if p.sample.ItemCount < snap.ItemCount {
		e += delta
	}
	return e
}

func (p *Presenter) onSample(s viewport.Sample) {
	moved := !p.haveSample || s.FirstVisibleIndex != p.sample.FirstVisibleIndex
	p.sample = s
	p.haveSample = true
	p.log.Trace(otel.Event{Kind: otel.KindViewportSample, Index: otel.At(s.FirstVisibleIndex), Count: s.EffectiveIndex()})

	// Samples taken while a restore scroll is pending say nothing about
	// what the user has seen, including the one that confirms it.
	target := p.restorer.TargetIndex()
	p.apply(p.restorer.OnSample(s))
	if target < 0 {
		wasShown := p.indicator.State().Show
		p.indicator.Observe(s)
		if wasShown && !p.indicator.State().Show {
			p.hideIndicator("scroll")
		}
	}

	p.maybePrefetch()

	// A view still short of the target has not landed yet.
	landing := target >= 0 && s.FirstVisibleIndex < target
	if moved && !landing && p.restorer.Status() == lvp.Completed {
		p.armSettle()
	}
}

func (p *Presenter) apply(tr lvp.Transition) {
	if tr.Seed > 0 {
		p.indicator.Seed(tr.Seed, tr.Seed)
		cause := "restore"
		if tr.Failed {
			cause = "give_up"
		}
		p.showIndicator(cause)
	}
	if tr.Failed {
		p.notifyFailed(RestoreFailedEvent{FeedKey: p.feedKey, Time: time.Now()})
	}
	if tr.Await {
		p.armConfirm()
	}
	if tr.LoadMore {
		p.provider.LoadAppend()
	}
}

func (p *Presenter) notifyFailed(ev RestoreFailedEvent) {
	p.failMu.Lock()
	p.failQueue = append(p.failQueue, ev)
	p.failMu.Unlock()
	select {
	case p.failKick <- struct{}{}:
	default:
	}
}

// deliverFailed moves queued notices onto the failed channel, blocking on
// a slow reader instead of the owner loop.
func (p *Presenter) deliverFailed() {
	for {
		select {
		case <-p.failKick:
		case <-p.done:
			return
		}
		for {
			p.failMu.Lock()
			if len(p.failQueue) == 0 {
				p.failMu.Unlock()
				break
			}
			ev := p.failQueue[0]
			p.failQueue = p.failQueue[1:]
			p.failMu.Unlock()

			select {
			case p.failed <- ev:
			case <-p.done:
				return
			}
		}
	}
}

func (p *Presenter) armConfirm() {
	if p.confirmTimer != nil {
		p.confirmTimer.Stop()
	}
	p.confirmGen++
	gen := p.confirmGen
	p.confirmTimer = time.AfterFunc(p.opts.ConfirmTimeout, func() { p.postTimer(confirmMsg{gen: gen}) })
}

func (p *Presenter) armSettle() {
	if p.settleTimer != nil {
		p.settleTimer.Stop()
	}
	p.settleGen++
	gen := p.settleGen
	p.settleTimer = time.AfterFunc(p.opts.CaptureSettle, func() { p.postTimer(settleMsg{gen: gen}) })
}

// stopTimers invalidates pending timer messages.
func (p *Presenter) stopTimers() {
	if p.confirmTimer != nil {
		p.confirmTimer.Stop()
	}
	if p.settleTimer != nil {
		p.settleTimer.Stop()
	}
	p.confirmGen++
	p.settleGen++
}

// maybePrefetch asks for the next page once the view nears the end.
func (p *Presenter) maybePrefetch() {
	if !p.haveSample || p.snap.ItemCount == 0 {
		return
	}
	if p.snap.IsRefreshing() || p.snap.Append.IsLoading() || p.snap.Append.Ended() {
		return
	}
	if p.sample.LastVisibleIndex() >= p.snap.ItemCount-1-p.opts.PrefetchDistance {
		p.provider.LoadAppend()
	}
}

func (p *Presenter) showIndicator(cause string) {
	st := p.indicator.State()
	if !st.Show {
		return
	}
	metrics.IndicatorShown.WithLabelValues(cause).Inc()
	p.log.Emit(otel.Event{Kind: otel.KindNewPostsShow, Count: st.Count, Msg: cause})
}

func (p *Presenter) hideIndicator(cause string) {
	if !p.indicator.State().Show {
		return
	}
	p.log.Emit(otel.Event{Kind: otel.KindNewPostsHide, Msg: cause})
}

func (p *Presenter) compute() State {
	ind := p.indicator.State()
	return State{
		FeedKey:       p.feedKey,
		ShowIndicator: ind.Show,
		UnseenCount:   ind.Count,
		IsBusy: p.snap.IsRefreshing() ||
			(p.snap.Append.IsLoading() && p.snap.ItemCount == 0) ||
			p.restorer.Searching(),
		Restore: p.restorer.Status(),
		Outcome: p.restorer.Outcome(),
	}
}

func (p *Presenter) publish() {
	st := p.compute()
	p.mu.Lock()
	changed := st != p.current
	p.current = st
	p.mu.Unlock()
	if changed && p.opts.OnChange != nil {
		p.opts.OnChange(st)
	}
}

func snapStatus(s feed.Snapshot) string {
	return "refresh=" + s.Refresh.Status.String() +
		" prepend=" + s.Prepend.Status.String() +
		" append=" + s.Append.Status.String()
}
