package lvp

import (
	"context"
	"sync"
	"time"

	"github.com/abelbrown/lastview/internal/feed"
	"github.com/abelbrown/lastview/internal/logging"
	"github.com/abelbrown/lastview/internal/metrics"
	"github.com/abelbrown/lastview/internal/otel"
	"github.com/abelbrown/lastview/internal/scrollpos"
)

// PositionWriter persists positions.
type PositionWriter interface {
	Put(ctx context.Context, p scrollpos.Position) error
}

type capturedItem struct {
	key  string
	sort int64
}

// Capturer writes the item at the top of the view to the store.
//
// Writes for one feed key run in the order they were captured, one at a
// time. Goroutine-safe.
type Capturer struct {
	store PositionWriter
	log   *otel.Logger
	now   func() time.Time

	mu   sync.Mutex
	last map[string]capturedItem  // last written item per feed, this session
	tail map[string]chan struct{} // completion of the newest write per feed
	wg   sync.WaitGroup
}

// NewCapturer creates a Capturer writing to store.
func NewCapturer(store PositionWriter, log *otel.Logger) *Capturer {
	return &Capturer{
		store: store,
		log:   log,
		now:   time.Now,
		last:  make(map[string]capturedItem),
		tail:  make(map[string]chan struct{}),
	}
}

// Capture persists the item at the raw first visible index if it is a
// content item with a key and a positive sort value, and differs from the
// last item written for feedKey. It returns whether a write was started.
// The write does not observe ctx cancellation.
func (c *Capturer) Capture(ctx context.Context, feedKey string, items Peeker, firstVisible int) bool {
	log := c.log.Scope("capture", feedKey)

	it, ok := items.Peek(firstVisible)
	if !ok || it.Kind != feed.Content || it.Key == "" || it.SortValue <= 0 {
		metrics.Captures.WithLabelValues(metrics.CaptureSkipped).Inc()
		log.Trace(otel.Event{Kind: otel.KindCaptureSkip, Index: otel.At(firstVisible), Msg: "not capturable"})
		return false
	}
	cur := capturedItem{key: it.Key, sort: it.SortValue}

	c.mu.Lock()
	if c.last[feedKey] == cur {
		c.mu.Unlock()
		metrics.Captures.WithLabelValues(metrics.CaptureSkipped).Inc()
		log.Trace(otel.Event{Kind: otel.KindCaptureSkip, ItemKey: it.Key, Msg: "unchanged"})
		return false
	}
	c.last[feedKey] = cur
	prev := c.tail[feedKey]
	done := make(chan struct{})
	c.tail[feedKey] = done
	c.mu.Unlock()

	pos := scrollpos.Position{
		FeedKey:             feedKey,
		LastViewedItemID:    it.Key,
		LastViewedSortValue: it.SortValue,
		LastUpdated:         c.now().UnixMilli(),
	}
	wctx := context.WithoutCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}

		start := time.Now()
		if err := c.store.Put(wctx, pos); err != nil {
			c.mu.Lock()
			if c.last[feedKey] == cur {
				delete(c.last, feedKey)
			}
			c.mu.Unlock()
			metrics.Captures.WithLabelValues(metrics.CaptureError).Inc()
			metrics.StoreErrors.WithLabelValues("put").Inc()
			log.Fail(otel.KindCaptureError, err, "put")
			logging.Warn("capture failed", "feed", feedKey, "item", it.Key, "err", err)
			return
		}
		metrics.Captures.WithLabelValues(metrics.CaptureWritten).Inc()
		log.Emit(otel.Event{Kind: otel.KindCapture, ItemKey: it.Key, Index: otel.At(firstVisible), Dur: time.Since(start)})
	}()
	return true
}

// Forget drops the dedupe memory for feedKey so the next capture writes.
func (c *Capturer) Forget(feedKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, feedKey)
}

// Wait blocks until every started write has finished.
func (c *Capturer) Wait() {
	c.wg.Wait()
}
