// registry.go - Two-tier used-nullifier registry.
//
// Tier one is an in-memory Bloom filter sized for a 0.1% false-positive rate;
// tier two is the authoritative Store. The filter only short-circuits store
// lookups: every acceptance is decided by the store, so a corrupt or lost
// filter degrades to slower, still-correct operation.

package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/rs/zerolog"
)

// DefaultRetentionEpochs is how many epochs a record stays in hot storage.
const DefaultRetentionEpochs = 30

// DefaultFilterCapacity is the expected hot-record count used to size the
// Bloom filter.
const DefaultFilterCapacity = 1 << 20

// FilterFalsePositiveRate is the target false-positive rate for tier one.
const FilterFalsePositiveRate = 0.001

// Registry is the nullifier registry fronting a Store with a Bloom filter.
type Registry struct {
	store     Store
	retention uint64
	capacity  uint
	log       zerolog.Logger

	// filterOK is cleared when the filter misbehaves; the registry then
	// consults the store for every lookup until the next rebuild.
	// mu guards the filter only; the store serializes itself.
	mu       sync.Mutex
	filter   *bloom.BloomFilter
	filterOK bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithRetention overrides the retention window in epochs.
func WithRetention(epochs uint64) Option {
	return func(r *Registry) { r.retention = epochs }
}

// WithFilterCapacity overrides the expected hot-record count.
func WithFilterCapacity(n uint) Option {
	return func(r *Registry) { r.capacity = n }
}

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// New creates a registry over the given store and warms the filter from hot
// storage.
func New(store Store, opts ...Option) (*Registry, error) {
	r := &Registry{
		store:     store,
		retention: DefaultRetentionEpochs,
		capacity:  DefaultFilterCapacity,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.filter = bloom.NewWithEstimates(r.capacity, FilterFalsePositiveRate)
	r.filterOK = true
	if err := r.rebuildFilter(context.Background()); err != nil {
		// Filter trouble is non-fatal: fall back to store-only lookups.
		r.log.Warn().Err(err).Msg("bloom filter warm-up failed, degrading to store-only lookups")
		r.mu.Lock()
		r.filterOK = false
		r.mu.Unlock()
	}
	return r, nil
}

// Insert registers a nullifier record.
//
// Write path: check the filter; if the key is possibly present, ask the
// store; insert into store then filter. The store insert itself is a
// compare-and-insert, so a racing duplicate is still caught.
func (r *Registry) Insert(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	key := filterKey(rec.Context, rec.Epoch, rec.Nullifier)

	if r.maybePresent(key) {
		present, err := r.store.Has(ctx, rec.Context, rec.Epoch, rec.Nullifier)
		if err != nil {
			return err
		}
		if present {
			return ErrDuplicateNullifier
		}
		// False positive: fall through to the authoritative insert.
	}

	if err := r.store.Insert(ctx, rec); err != nil {
		return err
	}
	r.mu.Lock()
	if r.filterOK {
		r.filter.Add(key)
	}
	r.mu.Unlock()
	return nil
}

// maybePresent is the tier-one check. True means "ask the store"; a healthy
// filter returning false is a definitive absence.
func (r *Registry) maybePresent(key []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.filterOK {
		return true
	}
	return r.filter.Test(key)
}

// Has reports whether a nullifier is registered for (context, epoch).
func (r *Registry) Has(ctx context.Context, domain string, epoch uint64, n [NullifierSize]byte) (bool, error) {
	if !r.maybePresent(filterKey(domain, epoch, n)) {
		return false, nil
	}
	return r.store.Has(ctx, domain, epoch, n)
}

// Sweep archives records older than the retention window relative to the
// given epoch and rebuilds the filter so archived keys stop occupying it.
// Invoked from the epoch manager's rotation hook.
func (r *Registry) Sweep(ctx context.Context, currentEpoch uint64) error {
	if currentEpoch < r.retention {
		return nil
	}
	cutoff := currentEpoch - r.retention
	moved, err := r.store.ArchiveBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archival sweep: %w", err)
	}
	if moved > 0 {
		r.log.Info().Uint64("cutoff_epoch", cutoff).Int("archived", moved).Msg("archived expired nullifier records")
	}
	if err := r.rebuildFilter(ctx); err != nil {
		r.log.Warn().Err(err).Msg("bloom filter rebuild failed, degrading to store-only lookups")
		r.mu.Lock()
		r.filterOK = false
		r.mu.Unlock()
		return nil
	}
	r.mu.Lock()
	r.filterOK = true
	r.mu.Unlock()
	return nil
}

// RetentionEpochs returns the configured retention window.
func (r *Registry) RetentionEpochs() uint64 { return r.retention }

// FilterHealthy reports whether tier one is in service.
func (r *Registry) FilterHealthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterOK
}

func (r *Registry) rebuildFilter(ctx context.Context) error {
	records, err := r.store.HotRecords(ctx)
	if err != nil {
		return err
	}
	fresh := bloom.NewWithEstimates(r.capacity, FilterFalsePositiveRate)
	for i := range records {
		fresh.Add(filterKey(records[i].Context, records[i].Epoch, records[i].Nullifier))
	}
	r.mu.Lock()
	r.filter = fresh
	r.mu.Unlock()
	return nil
}

func filterKey(domain string, epoch uint64, n [NullifierSize]byte) []byte {
	key := make([]byte, 0, len(domain)+1+20+1+NullifierSize)
	key = append(key, domain...)
	key = append(key, '|')
	key = fmt.Appendf(key, "%d", epoch)
	key = append(key, '|')
	key = append(key, n[:]...)
	return key
}
