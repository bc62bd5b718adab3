package scrollpos

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abelbrown/lastview/internal/metrics"
	"github.com/abelbrown/lastview/internal/otel"
)

// KeyPrefix prefixes every cached position key.
const KeyPrefix = "lvp:pos:"

// Repository is the full set of position operations. *Store and *Cache
// both implement it.
type Repository interface {
	Get(ctx context.Context, feedKey string) (Position, error)
	Put(ctx context.Context, p Position) error
	Delete(ctx context.Context, feedKey string) error
	Clear(ctx context.Context) (int64, error)
	List(ctx context.Context) ([]Position, error)
}

// Cache is a read-through, write-through Redis layer in front of a
// Repository. Redis failures never fail a call: reads fall back to the
// primary and write failures are only logged. A nil client makes the
// Cache a pass-through.
type Cache struct {
	primary Repository
	client  *redis.Client
	ttl     time.Duration
	log     otel.Scope
}

// NewCache wraps primary. ttl <= 0 stores entries without expiry.
func NewCache(primary Repository, client *redis.Client, ttl time.Duration, log *otel.Logger) *Cache {
	return &Cache{
		primary: primary,
		client:  client,
		ttl:     ttl,
		log:     log.Scope("cache", ""),
	}
}

// NewRedisClient builds a client for addr/db.
func NewRedisClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
}

func cacheKey(feedKey string) string {
	return KeyPrefix + feedKey
}

// Get returns the cached position, or reads the primary and fills the cache.
// A miss in the primary is not cached.
func (c *Cache) Get(ctx context.Context, feedKey string) (Position, error) {
	if c.client == nil {
		return c.primary.Get(ctx, feedKey)
	}

	data, err := c.client.Get(ctx, cacheKey(feedKey)).Bytes()
	switch {
	case err == nil:
		var p Position
		derr := msgpack.Unmarshal(data, &p)
		if derr == nil {
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return p, nil
		}
		c.fail(feedKey, derr, "decode")
	case errors.Is(err, redis.Nil):
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	default:
		if ctx.Err() != nil {
			return Position{}, ctx.Err()
		}
		c.fail(feedKey, err, "get")
	}

	p, err := c.primary.Get(ctx, feedKey)
	if err != nil {
		return Position{}, err
	}
	c.set(ctx, p)
	return p, nil
}

// Put writes the primary first, then the cache. When the cache cannot
// take the new value the old entry is dropped so reads fall through.
func (c *Cache) Put(ctx context.Context, p Position) error {
	if err := c.primary.Put(ctx, p); err != nil {
		return err
	}
	if c.client != nil && !c.set(ctx, p) {
		if err := c.client.Del(ctx, cacheKey(p.FeedKey)).Err(); err != nil {
			c.fail(p.FeedKey, err, "del")
		}
	}
	return nil
}

// Delete removes the position from the primary and invalidates the cache.
func (c *Cache) Delete(ctx context.Context, feedKey string) error {
	if err := c.primary.Delete(ctx, feedKey); err != nil {
		return err
	}
	if c.client != nil {
		if err := c.client.Del(ctx, cacheKey(feedKey)).Err(); err != nil {
			c.fail(feedKey, err, "del")
		}
	}
	return nil
}

// Clear removes every position and every cached entry.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	n, err := c.primary.Clear(ctx)
	if err != nil {
		return 0, err
	}
	if c.client != nil {
		iter := c.client.Scan(ctx, 0, KeyPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			if derr := c.client.Del(ctx, iter.Val()).Err(); derr != nil {
				c.fail("", derr, "clear")
				break
			}
		}
		if ierr := iter.Err(); ierr != nil {
			c.fail("", ierr, "scan")
		}
	}
	return n, nil
}

// List always reads the primary.
func (c *Cache) List(ctx context.Context) ([]Position, error) {
	return c.primary.List(ctx)
}

// set caches p and reports whether it was stored.
func (c *Cache) set(ctx context.Context, p Position) bool {
	data, err := msgpack.Marshal(&p)
	if err != nil {
		c.fail(p.FeedKey, err, "encode")
		return false
	}
	if err := c.client.Set(ctx, cacheKey(p.FeedKey), data, c.ttl).Err(); err != nil {
		c.fail(p.FeedKey, err, "set")
		return false
	}
	return true
}

func (c *Cache) fail(feedKey string, err error, op string) {
	metrics.CacheRequests.WithLabelValues("error").Inc()
	c.log.Emit(otel.Event{
		Level:   otel.LevelWarn,
		Kind:    otel.KindStoreError,
		FeedKey: feedKey,
		Err:     err.Error(),
		Msg:     "cache " + op,
	})
}
