// Package ratelimit caps accepted submissions per caller identity within a
// fixed window.
//
// Counters are approximate under concurrency: racing requests for the same
// identity may over-admit by a small margin. The in-process MemoryStore is
// per instance, so under horizontal scale-out each instance counts on its
// own and the effective limit grows with the instance count; RedisStore and
// DynamoStore share one counter across instances.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("ridgeline.internal.ratelimit")

var ErrInvalidConfig = errors.New("ratelimit: max and window must be positive")

// Counter is the state of one identity's current window.
type Counter struct {
	Count       int
	WindowStart time.Time
}

// Store persists counters. Increment must reset the counter to 1 with a new
// window start when the previous window has elapsed at now.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Counter, error)
	Get(ctx context.Context, key string, window time.Duration, now time.Time) (Counter, bool, error)
	Reset(ctx context.Context, key string) error
}

// Decision is the outcome of a Check.
type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter applies a max-per-window policy on top of a Store.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLimiter creates a limiter allowing max hits per window per identity.
func NewLimiter(store Store, max int, window time.Duration, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store cannot be nil")
	}
	if max <= 0 || window <= 0 {
		return nil, ErrInvalidConfig
	}
	l := &Limiter{store: store, max: max, window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Limit returns the configured maximum.
func (l *Limiter) Limit() int { return l.max }

// Window returns the configured window.
func (l *Limiter) Window() time.Duration { return l.window }

// Check counts a hit for identity. When the store fails the returned
// decision allows the request and the error is returned alongside it, so
// callers can log and fail open.
func (l *Limiter) Check(ctx context.Context, identity string) (Decision, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.check")
	defer span.End()

	now := l.now()
	c, err := l.store.Increment(ctx, identity, l.window, now)
	if err != nil {
		span.RecordError(err)
		return Decision{Allowed: true, Limit: l.max, Remaining: l.max}, err
	}
	d := l.decide(c, now)
	span.SetAttributes(
		attribute.Int("ratelimit.count", d.Count),
		attribute.Bool("ratelimit.allowed", d.Allowed),
	)
	return d, nil
}

// Peek reports the current state for identity without counting a hit.
func (l *Limiter) Peek(ctx context.Context, identity string) (Decision, error) {
	now := l.now()
	c, ok, err := l.store.Get(ctx, identity, l.window, now)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{Allowed: true, Limit: l.max, Remaining: l.max}, nil
	}
	d := l.decide(c, now)
	// Peek answers "would the next request pass".
	d.Allowed = c.Count < l.max
	return d, nil
}

// Reset clears the counter for identity.
func (l *Limiter) Reset(ctx context.Context, identity string) error {
	return l.store.Reset(ctx, identity)
}

func (l *Limiter) decide(c Counter, now time.Time) Decision {
	resetAt := c.WindowStart.Add(l.window)
	remaining := l.max - c.Count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   c.Count <= l.max,
		Count:     c.Count,
		Limit:     l.max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d
}
