// epoch.go - Wall-clock-driven epoch lifecycle for the nullifier core.
//
// Epochs are floor(unix_time / epoch_duration). The manager advances the
// current epoch on demand, never backward, and never skips: a rotation that
// crosses several epochs fires the rotation hooks once per intermediate
// epoch, in order, so per-epoch side effects (key eviction, registry
// archival) are preserved.

package epoch

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDuration is the epoch length when none is configured.
const DefaultDuration = 24 * time.Hour

// DefaultSkewTolerance is the accepted distance between a caller's epoch
// view and ours (clock-skew window).
const DefaultSkewTolerance = 1

// Hook is fired once per epoch entered during a rotation, while rotation
// holds the manager lock. Hooks must be quick; long work (archival sweeps)
// should be dispatched asynchronously by the hook itself.
type Hook func(epoch uint64)

// Manager tracks the current epoch. Reads are lock-free snapshots; rotation
// is the single operation requiring mutual exclusion.
type Manager struct {
	duration time.Duration
	skew     uint64
	now      func() time.Time

	current atomic.Uint64

	mu    sync.Mutex
	hooks []Hook
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSkewTolerance overrides the clock-skew window.
func WithSkewTolerance(skew uint64) Option {
	return func(m *Manager) { m.skew = skew }
}

// NewManager creates a manager with the given epoch duration. Epoch
// arithmetic is in whole seconds, so durations under one second fall back
// to the default.
func NewManager(duration time.Duration, opts ...Option) *Manager {
	if duration < time.Second {
		duration = DefaultDuration
	}
	m := &Manager{
		duration: duration,
		skew:     DefaultSkewTolerance,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.current.Store(m.EpochOf(m.now()))
	return m
}

// EpochOf returns the epoch identifier for a point in time.
func (m *Manager) EpochOf(t time.Time) uint64 {
	return uint64(t.Unix()) / uint64(m.duration.Seconds())
}

// Current returns the last observed epoch without consulting the clock.
func (m *Manager) Current() uint64 {
	return m.current.Load()
}

// OnRotate registers a rotation hook.
func (m *Manager) OnRotate(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// Observe computes the epoch for the current wall clock, rotating forward if
// it advanced, and returns the (possibly new) current epoch. Rotation never
// moves backward even if the clock does.
func (m *Manager) Observe() uint64 {
	target := m.EpochOf(m.now())
	cur := m.current.Load()
	if target <= cur {
		return cur
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Re-check under the lock; another caller may have rotated already.
	cur = m.current.Load()
	for e := cur + 1; e <= target; e++ {
		m.current.Store(e)
		for _, h := range m.hooks {
			h(e)
		}
	}
	return m.current.Load()
}

// WithinSkew reports whether a caller-supplied epoch is acceptable against
// the given current epoch.
func (m *Manager) WithinSkew(epoch, current uint64) bool {
	if epoch > current {
		return epoch-current <= m.skew
	}
	return current-epoch <= m.skew
}

// SkewTolerance returns the configured clock-skew window.
func (m *Manager) SkewTolerance() uint64 {
	return m.skew
}

// Duration returns the configured epoch length.
func (m *Manager) Duration() time.Duration {
	return m.duration
}
