// Package coord polls watched feeds for newer posts in the background.
package coord

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/abelbrown/lastview/internal/otel"
)

// DefaultInterval is the time between prepend polls.
const DefaultInterval = 30 * time.Second

// Prepender starts a load of items newer than the current window.
// LoadPrepend must not block.
type Prepender interface {
	LoadPrepend()
}

// Coordinator asks every watched feed for newer posts on a ticker.
// Uses context cancellation as the ONLY stop mechanism.
type Coordinator struct {
	interval time.Duration
	log      *otel.Logger

	mu    sync.Mutex
	feeds map[string]Prepender

	wg sync.WaitGroup
}

// New creates a Coordinator polling every interval.
func New(interval time.Duration, log *otel.Logger) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coordinator{
		interval: interval,
		log:      log,
		feeds:    make(map[string]Prepender),
	}
}

// Watch polls p for feedKey, replacing any provider already watched there.
func (c *Coordinator) Watch(feedKey string, p Prepender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeds[feedKey] = p
}

// Unwatch stops polling feedKey.
func (c *Coordinator) Unwatch(feedKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.feeds, feedKey)
}

// Start begins polling. The first poll happens one interval in, after the
// initial refresh has had time to land.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.pollAll()
			}
		}
	}()
}

// Wait blocks until the background goroutine exits.
// Call after canceling the context passed to Start.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// pollAll asks each watched feed for newer posts, in key order.
func (c *Coordinator) pollAll() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.feeds))
	for k := range c.feeds {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	targets := make([]Prepender, len(keys))
	for i, k := range keys {
		targets[i] = c.feeds[k]
	}
	c.mu.Unlock()

	for i, p := range targets {
		c.log.Scope("coord", keys[i]).Trace(otel.Event{Kind: otel.KindFeedLoad, Status: "poll"})
		p.LoadPrepend()
	}
}
