// Package throttle paces outbound requests per endpoint class.
//
// Public SPARQL endpoints enforce aggressive rate limits. The Throttle
// keeps a minimum interval between requests to the same class and adds
// exponential backoff after observed 429 responses. State is held per
// Throttle instance so tests and multi-endpoint deployments each get
// their own pacing.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/c360/sparqlgate/metric"
)

const (
	// DefaultMinInterval is the floor between consecutive requests to
	// the same endpoint class.
	DefaultMinInterval = time.Second

	// maxBackoff caps the penalty delay regardless of hit count.
	maxBackoff = 32 * time.Second

	// maxHits caps the backoff exponent. 2^6 exceeds maxBackoff already,
	// so further 429s do not grow the stored counter without bound.
	maxHits = 6
)

type classState struct {
	lastRequest time.Time
	hits        int
}

// Throttle paces requests per endpoint class. The zero value is not
// usable; construct with New.
type Throttle struct {
	mu          sync.Mutex
	minInterval time.Duration
	classes     map[string]*classState
	metrics     *metric.Metrics

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithMinInterval overrides the default minimum spacing.
func WithMinInterval(d time.Duration) Option {
	return func(t *Throttle) {
		if d > 0 {
			t.minInterval = d
		}
	}
}

// WithMetrics records throttle waits and backoff events.
func WithMetrics(m *metric.Metrics) Option {
	return func(t *Throttle) { t.metrics = m }
}

// withClock injects a fake clock and sleeper for tests.
func withClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(t *Throttle) {
		t.now = now
		t.sleep = sleep
	}
}

// New creates a Throttle with the default one second minimum interval.
func New(opts ...Option) *Throttle {
	t := &Throttle{
		minInterval: DefaultMinInterval,
		classes:     make(map[string]*classState),
		now:         time.Now,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the current penalty delay for class. Zero when no
// 429s have been observed since the last success.
func (t *Throttle) Backoff(class string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.classes[class]
	if !ok {
		return 0
	}
	return backoffFor(st.hits)
}

func backoffFor(hits int) time.Duration {
	if hits <= 0 {
		return 0
	}
	if hits > maxHits {
		hits = maxHits
	}
	d := time.Duration(1<<uint(hits)) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// Wait blocks until a request to class is allowed, or until ctx is
// cancelled. On return the request slot is consumed: the caller is
// expected to issue the request immediately.
func (t *Throttle) Wait(ctx context.Context, class string) error {
	t.mu.Lock()
	st, ok := t.classes[class]
	if !ok {
		st = &classState{}
		t.classes[class] = st
	}

	now := t.now()
	interval := t.minInterval
	if penalty := backoffFor(st.hits); penalty > interval {
		interval = penalty
	}

	var wait time.Duration
	if !st.lastRequest.IsZero() {
		next := st.lastRequest.Add(interval)
		if next.After(now) {
			wait = next.Sub(now)
		}
	}
	// Reserve the slot before sleeping so concurrent callers queue up
	// behind each other instead of all firing at once.
	st.lastRequest = now.Add(wait)
	t.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	if t.metrics != nil {
		t.metrics.ThrottleWaits.WithLabelValues(class).Inc()
	}
	return t.sleep(ctx, wait)
}

// Observe records the outcome of a request. A rate-limited response
// grows the backoff; any other outcome resets it.
func (t *Throttle) Observe(class string, rateLimited bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.classes[class]
	if !ok {
		st = &classState{}
		t.classes[class] = st
	}
	if rateLimited {
		if st.hits < maxHits {
			st.hits++
		}
	} else {
		st.hits = 0
	}
	if t.metrics != nil {
		t.metrics.ThrottleBackoff.WithLabelValues(class).Set(float64(st.hits))
	}
}
