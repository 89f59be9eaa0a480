package scancache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ushadow-io/ushadow/internal/scanner"
)

type countingScanner struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *countingScanner) Scan(ctx context.Context, clusterID, namespace string) (map[string]scanner.Result, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return map[string]scanner.Result{
		"mongo": {Found: true, Endpoints: []string{"mongo." + namespace + ".svc.cluster.local:27017"}},
		"redis": {},
	}, nil
}

func TestCache_ZeroTTLPassesThrough(t *testing.T) {
	inner := &countingScanner{}
	c := New(inner, 0)
	defer c.Close()

	for i := 0; i < 3; i++ {
		_, err := c.Scan(context.Background(), "prod", "apps")
		require.NoError(t, err)
	}
	assert.False(t, c.Enabled())
	assert.EqualValues(t, 3, inner.calls.Load())
	assert.Zero(t, c.Len())
}

func TestCache_HitWithinTTL(t *testing.T) {
	inner := &countingScanner{}
	c := New(inner, time.Minute)
	defer c.Close()

	a, err := c.Scan(context.Background(), "prod", "apps")
	require.NoError(t, err)
	b, err := c.Scan(context.Background(), "prod", "apps")
	require.NoError(t, err)

	assert.EqualValues(t, 1, inner.calls.Load())
	assert.Equal(t, a, b)
	assert.Equal(t, 1, c.Len())
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := New(&countingScanner{}, time.Minute)
	defer c.Close()

	a, err := c.Scan(context.Background(), "prod", "apps")
	require.NoError(t, err)
	a["mongo"].Endpoints[0] = "localhost:1"
	delete(a, "redis")

	b, err := c.Scan(context.Background(), "prod", "apps")
	require.NoError(t, err)
	assert.Equal(t, "mongo.apps.svc.cluster.local:27017", b["mongo"].Endpoints[0])
	assert.Contains(t, b, "redis")
}

func TestCache_SingleflightDedupesConcurrentMisses(t *testing.T) {
	inner := &countingScanner{delay: 50 * time.Millisecond}
	c := New(inner, time.Minute)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Scan(context.Background(), "prod", "apps")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	inner := &countingScanner{err: scanner.ErrScanTimeout}
	c := New(inner, time.Minute)
	defer c.Close()

	for i := 0; i < 2; i++ {
		_, err := c.Scan(context.Background(), "prod", "apps")
		assert.True(t, errors.Is(err, scanner.ErrScanTimeout))
	}
	assert.EqualValues(t, 2, inner.calls.Load())
	assert.Zero(t, c.Len())
}

func TestCache_SweepAndInvalidate(t *testing.T) {
	inner := &countingScanner{}
	c := New(inner, time.Hour)
	defer c.Close()

	_, _ = c.Scan(context.Background(), "prod", "apps")
	_, _ = c.Scan(context.Background(), "prod", "jobs")
	_, _ = c.Scan(context.Background(), "staging", "apps")
	require.Equal(t, 3, c.Len())

	c.Invalidate("prod")
	assert.Equal(t, 1, c.Len())

	c.sweep(time.Now().Add(2 * time.Hour))
	assert.Zero(t, c.Len())
}
