package presenter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/lastview/internal/feed"
	"github.com/abelbrown/lastview/internal/lvp"
	"github.com/abelbrown/lastview/internal/scrollpos"
	"github.com/abelbrown/lastview/internal/viewport"
)

// fakeProvider is a hand-driven feed window of post-0..post-n-1.
type fakeProvider struct {
	mu         sync.Mutex
	items      []feed.Item
	snap       feed.Snapshot
	updates    chan feed.Snapshot
	appends    int
	refreshes  int
	refreshErr error
}

func newFakeProvider(n int) *fakeProvider {
	f := &fakeProvider{updates: make(chan feed.Snapshot, 1)}
	f.set(n, nil)
	return f
}

// set replaces the window with n items and publishes a settled snapshot,
// adjusted by mutate.
func (f *fakeProvider) set(n int, mutate func(*feed.Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = make([]feed.Item, n)
	for i := range f.items {
		f.items[i] = feed.Item{Key: fmt.Sprintf("post-%d", i), SortValue: int64(10_000 - i), Kind: feed.Content}
	}
	prepended := f.snap.Prepended
	f.snap = feed.Snapshot{
		ItemCount: n,
		Prepended: prepended,
		Refresh:   feed.LoadState{Status: feed.NotLoading},
		Prepend:   feed.LoadState{Status: feed.NotLoading},
		Append:    feed.LoadState{Status: feed.NotLoading},
	}
	if mutate != nil {
		mutate(&f.snap)
	}
	f.publish()
}

func (f *fakeProvider) publish() {
	select {
	case <-f.updates:
	default:
	}
	f.updates <- f.snap
}

func (f *fakeProvider) Snapshot() feed.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeProvider) Peek(i int) (feed.Item, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.items) {
		return feed.Item{}, false
	}
	return f.items[i], true
}

func (f *fakeProvider) Updates() <-chan feed.Snapshot { return f.updates }

func (f *fakeProvider) LoadAppend() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends++
}

func (f *fakeProvider) LoadPrepend() {}

func (f *fakeProvider) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	f.snap.Refresh = feed.LoadState{Status: feed.Loading}
	f.publish()
}

func (f *fakeProvider) RefreshAndWait(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshErr
}

func (f *fakeProvider) count(n *int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *n
}

type fakeStore struct {
	mu     sync.Mutex
	rows   map[string]scrollpos.Position
	getErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]scrollpos.Position{}}
}

func (s *fakeStore) save(feedKey, itemKey string) {
	s.rows[feedKey] = scrollpos.Position{FeedKey: feedKey, LastViewedItemID: itemKey, LastViewedSortValue: 1, LastUpdated: 1}
}

func (s *fakeStore) Get(_ context.Context, feedKey string) (scrollpos.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return scrollpos.Position{}, s.getErr
	}
	p, ok := s.rows[feedKey]
	if !ok {
		return scrollpos.Position{}, scrollpos.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) Put(_ context.Context, p scrollpos.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.FeedKey] = p
	return nil
}

func (s *fakeStore) item(feedKey string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[feedKey].LastViewedItemID
}

// fakeScroller records scrolls and, when land is set, reports the view
// arriving at the target.
type fakeScroller struct {
	mu    sync.Mutex
	calls []int
	land  func(index int)
}

func (f *fakeScroller) ScrollToIndex(_ context.Context, index, _ int) error {
	f.mu.Lock()
	f.calls = append(f.calls, index)
	land := f.land
	f.mu.Unlock()
	if land != nil {
		land(index)
	}
	return nil
}

func (f *fakeScroller) scrolls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

func at(i, count int) viewport.Sample {
	return viewport.Window(i, 0, 1, 5, count)
}

// slow keeps timers out of the way unless a test opts in.
var slow = Options{ConfirmTimeout: time.Hour, CaptureSettle: time.Hour}

func run(t *testing.T, p *Presenter) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	t.Cleanup(func() {
		p.Close()
		cancel()
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitState(t *testing.T, p *Presenter, cond func(State) bool) State {
	t.Helper()
	var st State
	eventually(t, "presenter state", func() bool {
		st = p.State()
		return cond(st)
	})
	return st
}

func completed(s State) bool { return s.Restore == lvp.Completed }

func TestRestoresSavedPosition(t *testing.T) {
	store := newFakeStore()
	store.save("home", "post-37")
	prov := newFakeProvider(50)
	scr := &fakeScroller{}

	var mu sync.Mutex
	var changes []State
	opts := slow
	opts.OnChange = func(s State) {
		mu.Lock()
		changes = append(changes, s)
		mu.Unlock()
	}
	p := New("home", prov, store, scr, opts)
	scr.land = func(i int) { p.Sample(at(i, 50)) }
	run(t, p)

	st := waitState(t, p, completed)
	if st.Outcome != lvp.Restored {
		t.Fatalf("Outcome = %v, want restored", st.Outcome)
	}
	if !st.ShowIndicator || st.UnseenCount != 37 {
		t.Errorf("indicator = %v/%d, want shown with 37", st.ShowIndicator, st.UnseenCount)
	}
	if st.IsBusy {
		t.Error("completed presenter should not be busy")
	}
	if got := scr.scrolls(); len(got) != 1 || got[0] != 37 {
		t.Errorf("scrolls = %v, want [37]", got)
	}

	eventually(t, "OnChange with the final state", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) > 0 && changes[len(changes)-1] == st
	})
}

func TestNoSavedPosition(t *testing.T) {
	p := New("home", newFakeProvider(20), newFakeStore(), &fakeScroller{}, slow)
	run(t, p)

	st := waitState(t, p, completed)
	if st.Outcome != lvp.NoPosition || st.ShowIndicator {
		t.Errorf("State = %+v", st)
	}
}

func TestStoreTimeoutKeepsRunning(t *testing.T) {
	store := newFakeStore()
	store.getErr = fmt.Errorf("get position: %w", context.DeadlineExceeded)
	p := New("home", newFakeProvider(20), store, &fakeScroller{}, slow)
	run(t, p)

	st := waitState(t, p, completed)
	if st.Outcome != lvp.Failed {
		t.Errorf("Outcome = %v, want failed", st.Outcome)
	}
	if err := p.RefreshAndWait(context.Background()); err != nil {
		t.Errorf("presenter stopped after a store timeout: %v", err)
	}
}

func TestConfirmTimeoutCompletes(t *testing.T) {
	store := newFakeStore()
	store.save("home", "post-12")
	opts := slow
	opts.ConfirmTimeout = 20 * time.Millisecond
	p := New("home", newFakeProvider(30), store, &fakeScroller{}, opts)
	run(t, p)

	st := waitState(t, p, completed)
	if st.Outcome != lvp.Restored || st.UnseenCount != 12 {
		t.Errorf("State = %+v", st)
	}
}

func TestGiveUpNotifiesOnce(t *testing.T) {
	store := newFakeStore()
	store.save("home", "post-99")
	prov := newFakeProvider(0)
	prov.set(10, func(s *feed.Snapshot) { s.Append.EndReached = true })
	p := New("home", prov, store, &fakeScroller{}, slow)
	run(t, p)

	select {
	case ev := <-p.RestoreFailed():
		if ev.FeedKey != "home" {
			t.Errorf("event feed = %q", ev.FeedKey)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no restore-failed notice")
	}
	st := waitState(t, p, completed)
	if st.Outcome != lvp.GaveUp || st.ShowIndicator {
		t.Errorf("State = %+v", st)
	}

	prov.set(10, func(s *feed.Snapshot) { s.Append.EndReached = true })
	select {
	case <-p.RestoreFailed():
		t.Error("second restore-failed notice")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestGiveUpNoticesQueueForSlowReader(t *testing.T) {
	store := newFakeStore()
	store.save("home", "post-99")
	prov := newFakeProvider(0)
	p := New("home", prov, store, &fakeScroller{}, slow)
	run(t, p)

	const rounds = 12
	for i := 0; i < rounds; i++ {
		if i > 0 {
			p.Refresh()
			waitState(t, p, func(s State) bool { return s.Restore == lvp.Ready })
		}
		prov.set(10, func(s *feed.Snapshot) { s.Append.EndReached = true })
		if st := waitState(t, p, completed); st.Outcome != lvp.GaveUp {
			t.Fatalf("round %d: Outcome = %v", i, st.Outcome)
		}
	}

	for i := 0; i < rounds; i++ {
		select {
		case ev := <-p.RestoreFailed():
			if ev.FeedKey != "home" {
				t.Errorf("notice %d feed = %q", i, ev.FeedKey)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d notices, want %d", i, rounds)
		}
	}
	select {
	case <-p.RestoreFailed():
		t.Error("extra restore-failed notice")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestGiveUpSeedsFromViewport(t *testing.T) {
	store := newFakeStore()
	store.save("home", "post-99")
	prov := newFakeProvider(20)
	scr := &fakeScroller{}
	p := New("home", prov, store, scr, slow)
	scr.land = func(i int) { p.Sample(at(i, 20)) }
	run(t, p)

	// The search scrolls to the end and asks for more; the landing sample
	// near the end prefetches too.
	eventually(t, "search and prefetch", func() bool { return prov.count(&prov.appends) >= 2 })
	if st := p.State(); st.Restore != lvp.NotFound || !st.IsBusy {
		t.Fatalf("State = %+v, want busy NotFound", st)
	}

	prov.set(20, func(s *feed.Snapshot) { s.Append.EndReached = true })
	st := waitState(t, p, completed)
	if st.Outcome != lvp.GaveUp {
		t.Fatalf("Outcome = %v", st.Outcome)
	}
	if !st.ShowIndicator || st.UnseenCount != 19 {
		t.Errorf("indicator = %v/%d, want shown with 19", st.ShowIndicator, st.UnseenCount)
	}
	<-p.RestoreFailed()
}

func TestSettledScrollIsCaptured(t *testing.T) {
	store := newFakeStore()
	opts := slow
	opts.CaptureSettle = 5 * time.Millisecond
	p := New("home", newFakeProvider(30), store, &fakeScroller{}, opts)
	run(t, p)
	waitState(t, p, completed)

	p.Sample(at(6, 30))
	eventually(t, "capture of post-6", func() bool { return store.item("home") == "post-6" })
}

func TestCloseCapturesLastSample(t *testing.T) {
	store := newFakeStore()
	p := New("home", newFakeProvider(30), store, &fakeScroller{}, slow)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	waitState(t, p, completed)

	p.Sample(at(3, 30))
	p.Close()
	if got := store.item("home"); got != "post-3" {
		t.Errorf("teardown capture = %q, want post-3", got)
	}
	p.Close()
}

func TestCancelStopsWithCapture(t *testing.T) {
	store := newFakeStore()
	p := New("home", newFakeProvider(30), store, &fakeScroller{}, slow)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()
	waitState(t, p, completed)

	p.Sample(at(8, 30))
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	p.Close()
	if got := store.item("home"); got != "post-8" {
		t.Errorf("teardown capture = %q, want post-8", got)
	}
}

func TestRefreshCapturesAndRearms(t *testing.T) {
	store := newFakeStore()
	prov := newFakeProvider(30)
	scr := &fakeScroller{}
	p := New("home", prov, store, scr, slow)
	scr.land = func(i int) { p.Sample(at(i, 30)) }
	run(t, p)
	waitState(t, p, completed)

	p.Sample(at(4, 30))
	p.Refresh()
	st := waitState(t, p, func(s State) bool { return s.Restore == lvp.Ready && s.IsBusy })
	if st.Outcome != lvp.OutcomeNone {
		t.Errorf("Outcome after refresh = %v", st.Outcome)
	}
	eventually(t, "refresh capture", func() bool { return store.item("home") == "post-4" })
	if n := prov.count(&prov.refreshes); n != 1 {
		t.Errorf("provider refreshes = %d, want 1", n)
	}

	// The refreshed window still holds the captured item.
	prov.set(30, nil)
	st = waitState(t, p, completed)
	if st.Outcome != lvp.Restored || st.UnseenCount != 4 {
		t.Errorf("State = %+v", st)
	}
	if got := scr.scrolls(); len(got) != 1 || got[0] != 4 {
		t.Errorf("scrolls = %v, want [4]", got)
	}
}

func TestRefreshAndWaitReturnsProviderResult(t *testing.T) {
	prov := newFakeProvider(10)
	boom := errors.New("offline")
	prov.refreshErr = boom
	p := New("home", prov, newFakeStore(), &fakeScroller{}, slow)
	run(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.RefreshAndWait(ctx); !errors.Is(err, boom) {
		t.Errorf("RefreshAndWait = %v, want %v", err, boom)
	}
}

func TestDismissHidesIndicator(t *testing.T) {
	store := newFakeStore()
	store.save("home", "post-9")
	scr := &fakeScroller{}
	p := New("home", newFakeProvider(30), store, scr, slow)
	scr.land = func(i int) { p.Sample(at(i, 30)) }
	run(t, p)
	waitState(t, p, func(s State) bool { return s.ShowIndicator })

	p.DismissIndicator()
	st := waitState(t, p, func(s State) bool { return !s.ShowIndicator })
	if st.UnseenCount != 0 {
		t.Errorf("count after dismiss = %d", st.UnseenCount)
	}
}

func TestScrollingUpConsumesIndicator(t *testing.T) {
	store := newFakeStore()
	store.save("home", "post-9")
	scr := &fakeScroller{}
	p := New("home", newFakeProvider(30), store, scr, slow)
	scr.land = func(i int) { p.Sample(at(i, 30)) }
	run(t, p)
	waitState(t, p, func(s State) bool { return s.UnseenCount == 9 })

	p.Sample(at(6, 30))
	waitState(t, p, func(s State) bool { return s.UnseenCount == 6 })
	p.Sample(at(0, 30))
	waitState(t, p, func(s State) bool { return !s.ShowIndicator })
}

func TestPrependShowsIndicator(t *testing.T) {
	store := newFakeStore()
	prov := newFakeProvider(30)
	opts := slow
	opts.CaptureSettle = time.Millisecond
	p := New("home", prov, store, &fakeScroller{}, opts)
	run(t, p)
	waitState(t, p, completed)

	p.Sample(at(10, 30))
	// The capture proves the sample was applied.
	eventually(t, "capture of post-10", func() bool { return store.item("home") == "post-10" })

	prov.set(35, func(s *feed.Snapshot) { s.Prepended = 5 })
	st := waitState(t, p, func(s State) bool { return s.ShowIndicator })
	if st.UnseenCount != 5 {
		t.Errorf("count = %d, want 5", st.UnseenCount)
	}
}

func TestRestoreSeedSurvivesSampleBeforeLanding(t *testing.T) {
	store := newFakeStore()
	store.save("home", "post-3")
	prov := newFakeProvider(30)
	scr := &fakeScroller{}
	opts := slow
	opts.CaptureSettle = time.Millisecond
	p := New("home", prov, store, scr, opts)
	run(t, p)

	eventually(t, "restore scroll", func() bool { return len(scr.scrolls()) == 1 })

	// Laid out before the scroll applied: the target is on screen, but the
	// view is still at the top.
	p.Sample(at(0, 30))
	st := waitState(t, p, completed)
	if !st.ShowIndicator || st.UnseenCount != 3 {
		t.Fatalf("after confirm: indicator = %v/%d, want shown with 3", st.ShowIndicator, st.UnseenCount)
	}
	time.Sleep(20 * time.Millisecond)
	if got := store.item("home"); got != "post-3" {
		t.Fatalf("sample before landing was captured: stored %s", got)
	}

	p.Sample(at(3, 30))
	time.Sleep(20 * time.Millisecond)
	if st := p.State(); !st.ShowIndicator || st.UnseenCount != 3 {
		t.Errorf("after landing: indicator = %v/%d, want shown with 3", st.ShowIndicator, st.UnseenCount)
	}
}

func TestPrependAnchorIgnoresInputOrder(t *testing.T) {
	tests := []struct {
		name         string
		sampleFirst  bool
		wantCaptured string
	}{
		{"snapshot first", false, "post-10"},
		{"sample first", true, "post-15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			prov := newFakeProvider(30)
			opts := slow
			opts.CaptureSettle = time.Millisecond
			p := New("home", prov, store, &fakeScroller{}, opts)
			run(t, p)
			waitState(t, p, completed)

			if tt.sampleFirst {
				// The view already moved with its post: five newer posts
				// pushed it from 10 to 15.
				p.Sample(at(15, 35))
			} else {
				p.Sample(at(10, 30))
			}
			eventually(t, "capture", func() bool { return store.item("home") == tt.wantCaptured })

			prov.set(35, func(s *feed.Snapshot) { s.Prepended = 5 })
			waitState(t, p, func(s State) bool { return s.ShowIndicator && s.UnseenCount == 5 })

			if !tt.sampleFirst {
				p.Sample(at(15, 35))
			}
			// Three rows up from the post the user was on.
			p.Sample(at(12, 35))
			st := waitState(t, p, func(s State) bool { return s.UnseenCount != 5 || !s.ShowIndicator })
			if !st.ShowIndicator || st.UnseenCount != 2 {
				t.Errorf("indicator = %v/%d, want shown with 2", st.ShowIndicator, st.UnseenCount)
			}
		})
	}
}

func TestPrependAtTopShowsNothing(t *testing.T) {
	store := newFakeStore()
	prov := newFakeProvider(30)
	p := New("home", prov, store, &fakeScroller{}, slow)
	p.Sample(at(0, 30))
	run(t, p)
	waitState(t, p, completed)

	prov.set(35, func(s *feed.Snapshot) { s.Prepended = 5 })
	time.Sleep(20 * time.Millisecond)
	if st := p.State(); st.ShowIndicator {
		t.Errorf("indicator shown at top: %+v", st)
	}
}

func TestPrefetchNearEnd(t *testing.T) {
	prov := newFakeProvider(20)
	p := New("home", prov, newFakeStore(), &fakeScroller{}, slow)
	run(t, p)
	waitState(t, p, completed)

	p.Sample(at(0, 20))
	time.Sleep(20 * time.Millisecond)
	if n := prov.count(&prov.appends); n != 0 {
		t.Fatalf("prefetch at top: appends = %d", n)
	}
	p.Sample(at(14, 20))
	eventually(t, "prefetch", func() bool { return prov.count(&prov.appends) == 1 })
}

func TestSwitchFeed(t *testing.T) {
	store := newFakeStore()
	store.save("lists/1", "post-8")
	home := newFakeProvider(30)
	scr := &fakeScroller{}
	p := New("home", home, store, scr, slow)
	run(t, p)
	waitState(t, p, completed)

	p.Sample(at(5, 30))
	lists := newFakeProvider(30)
	scr.mu.Lock()
	scr.land = func(i int) { p.Sample(at(i, 30)) }
	scr.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.SwitchFeed(ctx, "lists/1", lists); err != nil {
		t.Fatalf("SwitchFeed: %v", err)
	}

	st := waitState(t, p, func(s State) bool { return s.FeedKey == "lists/1" && completed(s) })
	if st.Outcome != lvp.Restored || st.UnseenCount != 8 {
		t.Errorf("State = %+v", st)
	}
	eventually(t, "home capture", func() bool { return store.item("home") == "post-5" })
}

func TestCallsAfterCloseFail(t *testing.T) {
	p := New("home", newFakeProvider(5), newFakeStore(), &fakeScroller{}, slow)
	run(t, p)
	waitState(t, p, completed)
	p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.SwitchFeed(ctx, "other", newFakeProvider(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("SwitchFeed after Close = %v, want ErrClosed", err)
	}
	// Non-blocking calls are simply dropped.
	p.Sample(at(1, 5))
	p.Refresh()
	p.DismissIndicator()
}
