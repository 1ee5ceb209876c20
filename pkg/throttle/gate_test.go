package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGate(cfg Config) (*Gate, *fakeClock) {
	clock := &fakeClock{t: time.Now()}
	g := NewGate("test", cfg)
	g.now = clock.Now
	return g, clock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestGateSemaphoreCapacity(t *testing.T) {
	g, _ := testGate(Config{Capacity: 2})
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))
	require.NoError(t, g.Acquire(ctx))

	// Third acquire blocks; a short deadline should expire.
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := g.Acquire(shortCtx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Releasing a slot frees capacity.
	g.Release()
	require.NoError(t, g.Acquire(ctx))

	snap := g.Snapshot()
	assert.Equal(t, 2, snap.InFlight)
	assert.Equal(t, 2, snap.Capacity)
}

func TestGateOpensAfterThreshold(t *testing.T) {
	g, _ := testGate(Config{ServerErrorThreshold: 3})

	for i := 0; i < 3; i++ {
		g.RecordServerError()
	}
	assert.Equal(t, CircuitClosed, g.Snapshot().State)

	// One more pushes past the threshold.
	g.RecordServerError()
	assert.Equal(t, CircuitOpen, g.Snapshot().State)

	err := g.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestGateHalfOpenProbeSuccess(t *testing.T) {
	g, clock := testGate(Config{ServerErrorThreshold: 1, Cooldown: 30 * time.Second})

	g.RecordServerError()
	g.RecordServerError()
	require.Equal(t, CircuitOpen, g.Snapshot().State)

	// Before cooldown: fail fast.
	assert.ErrorIs(t, g.Acquire(context.Background()), ErrCircuitOpen)

	// After cooldown: exactly one probe is admitted.
	clock.Advance(31 * time.Second)
	require.NoError(t, g.Acquire(context.Background()))
	assert.ErrorIs(t, g.Acquire(context.Background()), ErrCircuitOpen)

	g.RecordSuccess()
	g.Release()
	assert.Equal(t, CircuitClosed, g.Snapshot().State)

	// Fully admitting again.
	require.NoError(t, g.Acquire(context.Background()))
	g.Release()
}

func TestGateHalfOpenProbeFailureReopens(t *testing.T) {
	g, clock := testGate(Config{ServerErrorThreshold: 1, Cooldown: 10 * time.Second})

	g.RecordServerError()
	g.RecordServerError()
	require.Equal(t, CircuitOpen, g.Snapshot().State)

	clock.Advance(11 * time.Second)
	require.NoError(t, g.Acquire(context.Background()))
	g.RecordServerError()
	g.Release()

	assert.Equal(t, CircuitOpen, g.Snapshot().State)
	assert.ErrorIs(t, g.Acquire(context.Background()), ErrCircuitOpen)
}

func TestGateWindowPruning(t *testing.T) {
	g, clock := testGate(Config{ServerErrorThreshold: 5, Window: 60 * time.Second})

	for i := 0; i < 4; i++ {
		g.RecordServerError()
	}
	assert.Equal(t, 4, g.Snapshot().ServerErrors)

	// Outside the window the counters decay and the circuit stays closed.
	clock.Advance(61 * time.Second)
	assert.Equal(t, 0, g.Snapshot().ServerErrors)

	g.RecordServerError()
	g.RecordServerError()
	assert.Equal(t, CircuitClosed, g.Snapshot().State)
}

func TestGateRecord429DoesNotOpen(t *testing.T) {
	g, _ := testGate(Config{ServerErrorThreshold: 1})

	for i := 0; i < 10; i++ {
		g.Record429()
	}
	snap := g.Snapshot()
	assert.Equal(t, CircuitClosed, snap.State)
	assert.Equal(t, 10, snap.RateLimits)
}
