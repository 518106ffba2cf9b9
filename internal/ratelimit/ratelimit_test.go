package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *testClock {
	return &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

// exerciseWindow runs the N / N+1 / window reset property against any store.
func exerciseWindow(t *testing.T, store Store, clock *testClock, advance func(time.Duration)) {
	t.Helper()
	const limit = 5
	window := time.Hour
	limiter, err := NewLimiter(store, limit, window, WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= limit; i++ {
		dec, err := limiter.Check(ctx, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, dec.Allowed, "request %d should pass", i)
		assert.Equal(t, i, dec.Count)
		assert.Equal(t, limit-i, dec.Remaining)
	}

	advance(10 * time.Minute)
	dec, err := limiter.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, limit+1, dec.Count)
	assert.InDelta(t, (50 * time.Minute).Seconds(), dec.RetryAfter.Seconds(), 1)

	other, err := limiter.Check(ctx, "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "identities are counted separately")

	advance(50 * time.Minute)
	dec, err = limiter.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "counting restarts after the window")
	assert.Equal(t, 1, dec.Count)
}

func TestLimiterMemoryStoreWindow(t *testing.T) {
	clock := newClock()
	exerciseWindow(t, NewMemoryStore(), clock, clock.Advance)
}

func TestNewLimiterValidation(t *testing.T) {
	_, err := NewLimiter(NewMemoryStore(), 0, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewLimiter(NewMemoryStore(), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewLimiter(nil, 1, time.Hour)
	assert.Error(t, err)
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration, time.Time) (Counter, error) {
	return Counter{}, errors.New("store down")
}
func (failingStore) Get(context.Context, string, time.Duration, time.Time) (Counter, bool, error) {
	return Counter{}, false, errors.New("store down")
}
func (failingStore) Reset(context.Context, string) error { return errors.New("store down") }

func TestLimiterFailsOpen(t *testing.T) {
	limiter, err := NewLimiter(failingStore{}, 1, time.Minute)
	require.NoError(t, err)
	dec, err := limiter.Check(context.Background(), "ip")
	assert.Error(t, err)
	assert.True(t, dec.Allowed)
}

func TestLimiterPeekAndReset(t *testing.T) {
	clock := newClock()
	limiter, err := NewLimiter(NewMemoryStore(), 2, time.Minute, WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	dec, err := limiter.Peek(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 0, dec.Count)

	_, _ = limiter.Check(ctx, "ip")
	_, _ = limiter.Check(ctx, "ip")
	dec, err = limiter.Peek(ctx, "ip")
	require.NoError(t, err)
	assert.Equal(t, 2, dec.Count)
	assert.False(t, dec.Allowed, "next request would exceed the limit")

	require.NoError(t, limiter.Reset(ctx, "ip"))
	dec, err = limiter.Check(ctx, "ip")
	require.NoError(t, err)
	assert.Equal(t, 1, dec.Count)
}

func TestMemoryStoreCleanup(t *testing.T) {
	clock := newClock()
	store := NewMemoryStore()
	ctx := context.Background()
	_, _ = store.Increment(ctx, "a", time.Minute, clock.Now())
	_, _ = store.Increment(ctx, "b", time.Hour, clock.Now())

	store.Cleanup(clock.Now().Add(2 * time.Minute))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreJanitorStops(t *testing.T) {
	store := NewMemoryStore()
	_, _ = store.Increment(context.Background(), "a", time.Nanosecond, time.Now().Add(-time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	store.StartJanitor(ctx, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}
