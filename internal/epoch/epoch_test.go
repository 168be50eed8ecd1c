package epoch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source for rotation tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestObserveAdvances(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	m := NewManager(time.Hour, WithClock(clock.Now))

	start := m.Current()
	require.Equal(t, start, m.Observe())

	clock.Advance(time.Hour)
	require.Equal(t, start+1, m.Observe())
	require.Equal(t, start+1, m.Current())
}

func TestRotationNeverBackward(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	m := NewManager(time.Hour, WithClock(clock.Now))

	clock.Advance(2 * time.Hour)
	cur := m.Observe()

	// Clock regression must not move the epoch back.
	clock.Advance(-3 * time.Hour)
	require.Equal(t, cur, m.Observe())
}

func TestRotationProcessesIntermediateEpochs(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}
	m := NewManager(time.Hour, WithClock(clock.Now))

	var seen []uint64
	m.OnRotate(func(e uint64) { seen = append(seen, e) })

	start := m.Current()
	clock.Advance(5 * time.Hour)
	m.Observe()

	require.Equal(t, []uint64{start + 1, start + 2, start + 3, start + 4, start + 5}, seen,
		"a multi-epoch jump must fire the hook once per epoch, in order")
}

func TestSubSecondDurationFallsBack(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_000_000, 0)}

	// Epoch arithmetic is whole-second; anything shorter must not divide
	// by zero and falls back to the default duration.
	m := NewManager(500*time.Millisecond, WithClock(clock.Now))
	require.Equal(t, DefaultDuration, m.Duration())
	require.NotPanics(t, func() { m.Observe() })

	m = NewManager(0, WithClock(clock.Now))
	require.Equal(t, DefaultDuration, m.Duration())
}

func TestWithinSkew(t *testing.T) {
	m := NewManager(time.Hour, WithSkewTolerance(1))
	require.True(t, m.WithinSkew(100, 100))
	require.True(t, m.WithinSkew(99, 100))
	require.True(t, m.WithinSkew(101, 100))
	require.False(t, m.WithinSkew(98, 100))
	require.False(t, m.WithinSkew(102, 100))
}
