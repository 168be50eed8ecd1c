// store.go - Authoritative storage contract for accepted nullifiers.
//
// The registry fronts a Store with a probabilistic filter; the Store is the
// ground truth. Keys are (context, epoch, nullifier); records are immutable
// after insertion and move to cold storage once the retention window passes.

package registry

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NullifierSize is the fixed nullifier length in bytes (256 bits).
const NullifierSize = 32

// ErrDuplicateNullifier signals that a nullifier was already accepted for
// the same (context, epoch). The caller must not retry with the same
// action/nonce.
var ErrDuplicateNullifier = errors.New("nullifier already registered for this context and epoch")

// ErrStoreUnavailable signals that the authoritative store cannot serve
// writes. Writes fail closed; there is no silent acceptance.
var ErrStoreUnavailable = errors.New("authoritative nullifier store unavailable")

// Record is a persisted nullifier acceptance.
type Record struct {
	Nullifier [NullifierSize]byte `json:"-"`
	Context   string              `json:"context"`
	Epoch     uint64              `json:"epoch"`
	CreatedAt time.Time           `json:"created_at"`
}

type recordJSON struct {
	Nullifier string    `json:"nullifier"`
	Context   string    `json:"context"`
	Epoch     uint64    `json:"epoch"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalJSON hex-encodes the nullifier for on-disk and wire forms.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Nullifier: hex.EncodeToString(r.Nullifier[:]),
		Context:   r.Context,
		Epoch:     r.Epoch,
		CreatedAt: r.CreatedAt,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	var aux recordJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	b, err := hex.DecodeString(aux.Nullifier)
	if err != nil || len(b) != NullifierSize {
		return fmt.Errorf("invalid nullifier encoding")
	}
	copy(r.Nullifier[:], b)
	r.Context = aux.Context
	r.Epoch = aux.Epoch
	r.CreatedAt = aux.CreatedAt
	return nil
}

// Store is the authoritative backing store.
//
// Insert must be atomic per key: concurrent inserts of the same
// (context, epoch, nullifier) must admit exactly one and fail the rest with
// ErrDuplicateNullifier.
type Store interface {
	// Insert persists a record, failing with ErrDuplicateNullifier if the
	// key already exists in hot storage.
	Insert(ctx context.Context, rec *Record) error

	// Has reports whether the key exists in hot storage.
	Has(ctx context.Context, domain string, epoch uint64, n [NullifierSize]byte) (bool, error)

	// ArchiveBefore moves records with epoch < cutoff out of hot storage
	// into cold storage and returns how many moved.
	ArchiveBefore(ctx context.Context, cutoff uint64) (int, error)

	// HotRecords returns all records still in hot storage. Used for filter
	// rebuilds.
	HotRecords(ctx context.Context) ([]Record, error)

	Close() error
}
