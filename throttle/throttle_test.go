package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances time manually and records requested sleeps instead
// of actually sleeping.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newFakeThrottle(opts ...Option) (*Throttle, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	opts = append(opts, withClock(clock.Now, clock.Sleep))
	return New(opts...), clock
}

func TestWait_FirstRequestImmediate(t *testing.T) {
	th, clock := newFakeThrottle()

	require.NoError(t, th.Wait(context.Background(), "wikidata"))
	assert.Empty(t, clock.sleeps)
}

func TestWait_EnforcesMinInterval(t *testing.T) {
	th, clock := newFakeThrottle()
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx, "wikidata"))
	require.NoError(t, th.Wait(ctx, "wikidata"))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, DefaultMinInterval, clock.sleeps[0])
}

func TestWait_NoWaitAfterIntervalElapsed(t *testing.T) {
	th, clock := newFakeThrottle()
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx, "wikidata"))
	clock.now = clock.now.Add(2 * time.Second)
	require.NoError(t, th.Wait(ctx, "wikidata"))

	assert.Empty(t, clock.sleeps)
}

func TestWait_ClassesIndependent(t *testing.T) {
	th, clock := newFakeThrottle()
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx, "wikidata"))
	require.NoError(t, th.Wait(ctx, "rhea"))

	assert.Empty(t, clock.sleeps)
}

func TestObserve_BackoffGrowsAndCaps(t *testing.T) {
	th, _ := newFakeThrottle()

	expected := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		32 * time.Second,
		32 * time.Second, // hit counter is capped
	}
	for i, want := range expected {
		th.Observe("wikidata", true)
		assert.Equal(t, want, th.Backoff("wikidata"), "after %d hits", i+1)
	}
}

func TestObserve_SuccessResetsBackoff(t *testing.T) {
	th, _ := newFakeThrottle()

	th.Observe("wikidata", true)
	th.Observe("wikidata", true)
	require.Equal(t, 4*time.Second, th.Backoff("wikidata"))

	th.Observe("wikidata", false)
	assert.Zero(t, th.Backoff("wikidata"))
}

func TestWait_BackoffExtendsInterval(t *testing.T) {
	th, clock := newFakeThrottle()
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx, "wikidata"))
	th.Observe("wikidata", true)
	th.Observe("wikidata", true)

	require.NoError(t, th.Wait(ctx, "wikidata"))
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 4*time.Second, clock.sleeps[0])
}

func TestWait_ConcurrentCallersQueue(t *testing.T) {
	th, clock := newFakeThrottle()
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx, "wikidata"))
	require.NoError(t, th.Wait(ctx, "wikidata"))
	require.NoError(t, th.Wait(ctx, "wikidata"))

	// Each caller waits behind the previously reserved slot, so gaps
	// never shrink below the minimum interval.
	require.Len(t, clock.sleeps, 2)
	for _, d := range clock.sleeps {
		assert.GreaterOrEqual(t, d, DefaultMinInterval)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	th := New(withClock(time.Now, sleepCtx))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, th.Wait(context.Background(), "wikidata"))
	err := th.Wait(ctx, "wikidata")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithMinInterval(t *testing.T) {
	th, clock := newFakeThrottle(WithMinInterval(250 * time.Millisecond))
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx, "wikidata"))
	require.NoError(t, th.Wait(ctx, "wikidata"))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 250*time.Millisecond, clock.sleeps[0])
}
