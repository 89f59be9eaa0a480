// internal/scancache/cache.go
//
// Optional TTL cache in front of the infrastructure scanner.
//
// Context
// -------
// Scanning a namespace costs one or two API calls per registry type.  When
// `scan.cache_ttl` is positive, results are kept per cluster/namespace for
// that long; concurrent misses for the same key share one scan through
// singleflight.  A TTL of zero (the default) disables caching entirely and
// every resolution scans live.
//
// Only scan results are cached.  Resolved configurations never are, so a
// user override is visible on the very next resolution regardless of TTL.
//
// Notes
// -----
//   • Errors, including timeouts, are never cached.
//   • Callers receive deep copies; a request may not mutate shared state.
//   • Expired entries are skipped on read and swept by a background ticker.
package scancache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ushadow-io/ushadow/internal/metrics"
	"github.com/ushadow-io/ushadow/internal/scanner"
)

// Scanner is the subset of *scanner.Scanner the cache wraps.
type Scanner interface {
	Scan(ctx context.Context, clusterID, namespace string) (map[string]scanner.Result, error)
}

type entry struct {
	results  map[string]scanner.Result
	storedAt int64 // unix nanos
}

// Cache wraps a Scanner.  Zero TTL makes it a pass-through.
type Cache struct {
	inner Scanner
	ttl   time.Duration

	sfg         singleflight.Group
	m           sync.Map // "cluster/namespace" → *entry
	size        atomic.Int64
	evictTicker *time.Ticker
	stop        chan struct{}
	stopOnce    sync.Once
}

// New constructs a Cache and, when ttl > 0, starts the background evictor.
func New(inner Scanner, ttl time.Duration) *Cache {
	c := &Cache{inner: inner, ttl: ttl, stop: make(chan struct{})}
	if ttl > 0 {
		c.evictTicker = time.NewTicker(ttl)
		go c.evictLoop()
	}
	return c
}

// Enabled reports whether results are cached at all.
func (c *Cache) Enabled() bool { return c.ttl > 0 }

// Scan returns cached results for clusterID/namespace or scans live.
func (c *Cache) Scan(ctx context.Context, clusterID, namespace string) (map[string]scanner.Result, error) {
	if c.ttl <= 0 {
		return c.inner.Scan(ctx, clusterID, namespace)
	}

	key := clusterID + "/" + namespace
	if res, ok := c.fresh(key); ok {
		return res, nil
	}

	v, err, _ := c.sfg.Do(key, func() (any, error) {
		// Double-check after singleflight barrier.
		if res, ok := c.fresh(key); ok {
			return res, nil
		}
		// The shared scan must not die with whichever caller arrived first.
		res, err := c.inner.Scan(context.WithoutCancel(ctx), clusterID, namespace)
		if err != nil {
			return nil, err
		}
		if _, loaded := c.m.Swap(key, &entry{results: res, storedAt: time.Now().UnixNano()}); !loaded {
			c.size.Add(1)
			metrics.ScanCacheEntries.Inc()
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.(map[string]scanner.Result)), nil
}

// Invalidate drops every cached namespace of clusterID.
func (c *Cache) Invalidate(clusterID string) {
	prefix := clusterID + "/"
	c.m.Range(func(key, _ any) bool {
		if k := key.(string); strings.HasPrefix(k, prefix) {
			c.remove(k)
		}
		return true
	})
}

// Len returns the number of cached entries, expired or not.
func (c *Cache) Len() int { return int(c.size.Load()) }

// Close stops the evictor.  Safe to call more than once.
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		if c.evictTicker != nil {
			c.evictTicker.Stop()
		}
	})
}

func (c *Cache) fresh(key string) (map[string]scanner.Result, bool) {
	v, ok := c.m.Load(key)
	if !ok {
		return nil, false
	}
	ent := v.(*entry)
	if time.Since(time.Unix(0, ent.storedAt)) > c.ttl {
		return nil, false
	}
	return clone(ent.results), true
}

func (c *Cache) remove(key string) {
	if _, loaded := c.m.LoadAndDelete(key); loaded {
		c.size.Add(-1)
		metrics.ScanCacheEntries.Dec()
		metrics.ScanCacheEvictTotal.Inc()
	}
}

func clone(in map[string]scanner.Result) map[string]scanner.Result {
	out := make(map[string]scanner.Result, len(in))
	for k, r := range in {
		eps := make([]string, len(r.Endpoints))
		copy(eps, r.Endpoints)
		if r.Endpoints == nil {
			eps = nil
		}
		out[k] = scanner.Result{Found: r.Found, Endpoints: eps}
	}
	return out
}

//
// Eviction
//

func (c *Cache) evictLoop() {
	for {
		select {
		case <-c.stop:
			return
		case <-c.evictTicker.C:
			c.sweep(time.Now())
		}
	}
}

// sweep removes entries older than the TTL as of now.
func (c *Cache) sweep(now time.Time) {
	c.m.Range(func(key, value any) bool {
		ent := value.(*entry)
		age := now.Sub(time.Unix(0, ent.storedAt))
		if age > c.ttl {
			c.remove(key.(string))
			zap.S().Debugw("scan cache entry evicted", "key", key, "age", age.Truncate(time.Millisecond))
		}
		return true
	})
}
