package lvp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abelbrown/lastview/internal/feed"
	"github.com/abelbrown/lastview/internal/logging"
	"github.com/abelbrown/lastview/internal/metrics"
	"github.com/abelbrown/lastview/internal/otel"
	"github.com/abelbrown/lastview/internal/scrollpos"
	"github.com/abelbrown/lastview/internal/viewport"
)

// DefaultMaxScanned is how many loaded items a search may scan without a
// match before giving up.
const DefaultMaxScanned = 500

// Scroller moves the live list. ScrollToIndex may return before the view
// has laid out the new position.
type Scroller interface {
	ScrollToIndex(ctx context.Context, index, offset int) error
}

// PositionReader reads saved positions.
type PositionReader interface {
	Get(ctx context.Context, feedKey string) (scrollpos.Position, error)
}

// Peeker reads the loaded window without blocking.
type Peeker interface {
	Peek(index int) (feed.Item, bool)
}

// RestorerOptions tunes a Restorer.
type RestorerOptions struct {
	// MaxScanned gives up once this many items are loaded without a match.
	// The bound is inclusive: exactly MaxScanned loaded items gives up.
	MaxScanned int
	Log        *otel.Logger
}

// Restorer finds the saved item of one feed view and scrolls to it.
// Not goroutine-safe: one owner feeds it inputs sequentially.
type Restorer struct {
	feedKey    string
	store      PositionReader
	scroller   Scroller
	maxScanned int
	logger     *otel.Logger
	log        otel.Scope

	status                Status
	outcome               Outcome
	lastObservedItemCount int
	targetIndex           int
	scrolledAt            time.Time
}

// NewRestorer creates a Ready restorer for feedKey.
func NewRestorer(feedKey string, store PositionReader, scroller Scroller, opts RestorerOptions) *Restorer {
	if opts.MaxScanned <= 0 {
		opts.MaxScanned = DefaultMaxScanned
	}
	r := &Restorer{
		store:      store,
		scroller:   scroller,
		maxScanned: opts.MaxScanned,
		logger:     opts.Log,
	}
	r.Rekey(feedKey)
	return r
}

func (r *Restorer) FeedKey() string  { return r.feedKey }
func (r *Restorer) Status() Status   { return r.status }
func (r *Restorer) Outcome() Outcome { return r.outcome }

// TargetIndex is the index awaiting layout confirmation, or -1.
func (r *Restorer) TargetIndex() int { return r.targetIndex }

// Searching reports Restoring or NotFound.
func (r *Restorer) Searching() bool {
	return r.status == Restoring || r.status == NotFound
}

// Rekey switches to another feed and resets all state.
func (r *Restorer) Rekey(feedKey string) {
	r.feedKey = feedKey
	r.log = r.logger.Scope("restorer", feedKey)
	r.Reset()
}

// Reset re-arms restoration.
func (r *Restorer) Reset() {
	r.status = Ready
	r.outcome = OutcomeNone
	r.lastObservedItemCount = 0
	r.targetIndex = -1
}

// OnSnapshot advances the machine for a provider state change.
// firstVisible is the raw first visible index of the latest sample.
// The only error returned is cancellation of ctx; every other failure
// completes restoration with Failed.
func (r *Restorer) OnSnapshot(ctx context.Context, snap feed.Snapshot, items Peeker, firstVisible int) (Transition, error) {
	if snap.IsRefreshing() {
		if r.status == Completed {
			r.Reset()
			return Transition{Changed: true}, nil
		}
		return Transition{}, nil
	}
	if r.targetIndex >= 0 || r.status == Completed {
		return Transition{}, nil
	}

	n := snap.ItemCount
	if n == 0 {
		if snap.Refresh.Status == feed.Error || snap.Append.Ended() {
			return r.complete(Empty, nil), nil
		}
		return Transition{}, nil
	}

	if r.status == NotFound && n <= r.lastObservedItemCount {
		if appendStuck(snap) {
			return r.giveUp(firstVisible, "end of feed"), nil
		}
		return Transition{}, nil
	}
	return r.search(ctx, snap, items, firstVisible)
}

// appendStuck reports that no further page will arrive.
func appendStuck(snap feed.Snapshot) bool {
	return snap.Append.Ended() || snap.Append.Status == feed.Error
}

func (r *Restorer) search(ctx context.Context, snap feed.Snapshot, items Peeker, firstVisible int) (Transition, error) {
	wasReady := r.status == Ready
	r.status = Restoring
	if wasReady {
		r.log.Emit(otel.Event{Kind: otel.KindRestoreStart, Count: snap.ItemCount})
	}

	pos, err := r.store.Get(ctx, r.feedKey)
	if errors.Is(err, scrollpos.ErrNotFound) {
		return r.complete(NoPosition, nil), nil
	}
	if err != nil {
		if cancelled(ctx, err) {
			return Transition{Changed: true}, err
		}
		metrics.StoreErrors.WithLabelValues("get").Inc()
		r.log.Fail(otel.KindStoreError, err, "get")
		return r.complete(Failed, fmt.Errorf("read position: %w", err)), nil
	}
	if !pos.Valid() {
		return r.complete(NoPosition, nil), nil
	}

	n := snap.ItemCount
	found := -1
	for i := 0; i < n; i++ {
		if it, ok := items.Peek(i); ok && it.Key == pos.LastViewedItemID {
			found = i
			break
		}
	}
	scanned := n
	if found >= 0 {
		scanned = found + 1
	}
	metrics.RestoreScanned.Observe(float64(scanned))

	switch {
	case found == 0:
		r.log.Emit(otel.Event{Kind: otel.KindRestoreFound, ItemKey: pos.LastViewedItemID, Index: otel.At(0)})
		return r.complete(AtTop, nil), nil

	case found > 0:
		r.log.Emit(otel.Event{Kind: otel.KindRestoreFound, ItemKey: pos.LastViewedItemID, Index: otel.At(found)})
		if err := r.scroller.ScrollToIndex(ctx, found, 0); err != nil {
			if cancelled(ctx, err) {
				return Transition{Changed: true}, err
			}
			return r.complete(Failed, fmt.Errorf("scroll to %d: %w", found, err)), nil
		}
		r.targetIndex = found
		r.scrolledAt = time.Now()
		return Transition{Changed: true, Seed: found, Await: true}, nil
	}

	r.lastObservedItemCount = n
	if n >= r.maxScanned {
		return r.giveUp(firstVisible, "scan ceiling"), nil
	}
	r.status = NotFound
	r.log.Emit(otel.Event{Kind: otel.KindRestoreNotFound, ItemKey: pos.LastViewedItemID, Count: n})
	if appendStuck(snap) {
		return r.giveUp(firstVisible, "end of feed"), nil
	}
	if err := r.scroller.ScrollToIndex(ctx, n-1, 0); err != nil {
		if cancelled(ctx, err) {
			return Transition{Changed: true}, err
		}
		return r.complete(Failed, fmt.Errorf("scroll to end: %w", err)), nil
	}
	return Transition{Changed: true, LoadMore: true}, nil
}

// OnSample completes a pending restore once the view shows the target.
func (r *Restorer) OnSample(s viewport.Sample) Transition {
	if r.targetIndex < 0 {
		return Transition{}
	}
	if s.FirstVisibleIndex < r.targetIndex && !s.Contains(r.targetIndex) {
		return Transition{}
	}
	metrics.RestoreConfirmSeconds.Observe(time.Since(r.scrolledAt).Seconds())
	return r.complete(Restored, nil)
}

// OnConfirmTimeout completes a pending restore that the view never confirmed.
func (r *Restorer) OnConfirmTimeout() Transition {
	if r.targetIndex < 0 {
		return Transition{}
	}
	r.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindConfirmTimeout, Index: otel.At(r.targetIndex)})
	return r.complete(Restored, nil)
}

func (r *Restorer) giveUp(firstVisible int, why string) Transition {
	r.log.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindRestoreGaveUp, Count: r.lastObservedItemCount, Msg: why})
	logging.Warn("restore gave up", "feed", r.feedKey, "reason", why)
	tr := r.complete(GaveUp, nil)
	tr.Failed = true
	if firstVisible > 0 {
		tr.Seed = firstVisible
	}
	return tr
}

func (r *Restorer) complete(o Outcome, err error) Transition {
	r.status = Completed
	r.outcome = o
	r.targetIndex = -1
	metrics.RestoreOutcomes.WithLabelValues(o.String()).Inc()
	if err != nil {
		r.log.Fail(otel.KindError, err, "restore failed open")
		logging.Error("restore failed open", "feed", r.feedKey, "err", err)
	}
	r.log.Emit(otel.Event{Kind: otel.KindRestoreDone, Status: o.String()})
	return Transition{Changed: true}
}

// cancelled reports that err is ctx's own cancellation. A collaborator
// timing out on its own while ctx is live is an ordinary failure.
func cancelled(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
