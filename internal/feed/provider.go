// Package feed defines the paginated feed contract consumed by the
// restoration core, and a reference Pager implementing it.
package feed

import "context"

// Status is the load state of one direction.
type Status int

const (
	Idle Status = iota
	Loading
	NotLoading
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case NotLoading:
		return "not_loading"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// LoadState describes one direction of the loader.
// EndReached is only meaningful when Status is NotLoading.
type LoadState struct {
	Status     Status
	EndReached bool
	Err        error
}

func (l LoadState) IsLoading() bool { return l.Status == Loading }

// Ended reports NotLoading with no more data.
func (l LoadState) Ended() bool { return l.Status == NotLoading && l.EndReached }

// Snapshot is the observable state of a Provider at one instant.
type Snapshot struct {
	ItemCount int
	// Prepended counts items added above the window since the last
	// refresh started. Readers diff it to learn how many arrived.
	Prepended int
	Refresh   LoadState
	Prepend   LoadState
	Append    LoadState
}

func (s Snapshot) IsRefreshing() bool { return s.Refresh.IsLoading() }

// Kind distinguishes real posts from loader placeholders.
type Kind int

const (
	Content Kind = iota
	Placeholder
)

// Item is one row of the loaded window.
type Item struct {
	Key       string
	SortValue int64 // unix ms
	Kind      Kind
	Title     string
	Author    string
}

// Provider is an ordered, lazily growing window of feed items, newest first.
//
// Updates delivers coalesced snapshots: a slow reader sees only the latest.
// There is exactly one reader per Provider.
type Provider interface {
	Snapshot() Snapshot
	Peek(index int) (Item, bool)
	Updates() <-chan Snapshot

	LoadAppend()
	LoadPrepend()
	Refresh()
	RefreshAndWait(ctx context.Context) error
}
