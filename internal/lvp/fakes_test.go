package lvp

import (
	"context"
	"fmt"
	"sync"

	"github.com/abelbrown/lastview/internal/feed"
	"github.com/abelbrown/lastview/internal/scrollpos"
)

// fakeStore is an in-memory position store with injectable failures.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]scrollpos.Position
	getErr  error
	putErr  error
	gets    int
	puts    []scrollpos.Position
	putHook func(scrollpos.Position)
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]scrollpos.Position{}}
}

func (s *fakeStore) save(feedKey, itemKey string) {
	s.rows[feedKey] = scrollpos.Position{FeedKey: feedKey, LastViewedItemID: itemKey, LastViewedSortValue: 1_700_000_000_000, LastUpdated: 1}
}

func (s *fakeStore) Get(_ context.Context, feedKey string) (scrollpos.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
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
	if s.putHook != nil {
		s.putHook(p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.puts = append(s.puts, p)
	s.rows[p.FeedKey] = p
	return nil
}

func (s *fakeStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *fakeStore) written() []scrollpos.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scrollpos.Position(nil), s.puts...)
}

type scrollCall struct{ index, offset int }

type fakeScroller struct {
	calls []scrollCall
	err   error
}

func (f *fakeScroller) ScrollToIndex(_ context.Context, index, offset int) error {
	f.calls = append(f.calls, scrollCall{index, offset})
	return f.err
}

// items is a loaded window of n posts keyed post-0..post-n-1.
type items []feed.Item

func window(n int) items {
	out := make(items, n)
	for i := range out {
		out[i] = feed.Item{Key: fmt.Sprintf("post-%d", i), SortValue: int64(10_000 - i), Kind: feed.Content}
	}
	return out
}

func (w items) Peek(i int) (feed.Item, bool) {
	if i < 0 || i >= len(w) {
		return feed.Item{}, false
	}
	return w[i], true
}

func loaded(n int) feed.Snapshot {
	return feed.Snapshot{
		ItemCount: n,
		Refresh:   feed.LoadState{Status: feed.NotLoading},
		Prepend:   feed.LoadState{Status: feed.NotLoading},
		Append:    feed.LoadState{Status: feed.NotLoading},
	}
}

func ended(n int) feed.Snapshot {
	s := loaded(n)
	s.Append.EndReached = true
	return s
}

func refreshing(n int) feed.Snapshot {
	s := loaded(n)
	s.Refresh.Status = feed.Loading
	return s
}
