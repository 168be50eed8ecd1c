// keys.go - Key hierarchy for the nullifier core.
//
// One master secret fans out into per-context keys, which fan out into
// per-epoch keys. Derivation is HKDF-SHA256 with domain-separated salts, so
// keys for different contexts or epochs are statistically independent and
// cannot be walked back to the master. No component other than this package
// holds the master secret.

package keys

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of every derived key in bytes.
const KeySize = 32

// MinMasterEntropy is the minimum accepted master secret length.
const MinMasterEntropy = 32

// ErrKeyUnavailable signals an absent or destroyed master secret.
// Derivation failures are fatal and non-retryable.
var ErrKeyUnavailable = errors.New("master secret unavailable")

// ContextKey is derived once per (master, context) and cached for the
// lifetime of the context.
type ContextKey [KeySize]byte

// EpochKey is derived from (ContextKey, epoch). Superseded epoch keys are
// evicted, not retained, to provide forward secrecy.
type EpochKey [KeySize]byte

type epochKeyID struct {
	context string
	epoch   uint64
}

// Hierarchy owns the master secret and all derived key caches.
// Caches live in memory only and are never persisted.
type Hierarchy struct {
	mu        sync.Mutex
	master    []byte
	destroyed bool
	ctxKeys   map[string]ContextKey
	epochKeys map[epochKeyID]EpochKey
}

// NewHierarchy wraps a master secret. The secret must carry at least
// MinMasterEntropy bytes.
func NewHierarchy(master []byte) (*Hierarchy, error) {
	if len(master) < MinMasterEntropy {
		return nil, fmt.Errorf("%w: need at least %d bytes of master secret", ErrKeyUnavailable, MinMasterEntropy)
	}
	m := make([]byte, len(master))
	copy(m, master)
	return &Hierarchy{
		master:    m,
		ctxKeys:   make(map[string]ContextKey),
		epochKeys: make(map[epochKeyID]EpochKey),
	}, nil
}

// ContextKey derives (or returns the cached) key for an application context.
func (h *Hierarchy) ContextKey(context string) (ContextKey, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return ContextKey{}, ErrKeyUnavailable
	}
	if ck, ok := h.ctxKeys[context]; ok {
		return ck, nil
	}
	var ck ContextKey
	if err := derive(ck[:], h.master, "context:"+context); err != nil {
		return ContextKey{}, err
	}
	h.ctxKeys[context] = ck
	return ck, nil
}

// EpochKey derives (or returns the cached) key for (context, epoch).
func (h *Hierarchy) EpochKey(context string, epoch uint64) (EpochKey, error) {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return EpochKey{}, ErrKeyUnavailable
	}
	id := epochKeyID{context: context, epoch: epoch}
	if ek, ok := h.epochKeys[id]; ok {
		h.mu.Unlock()
		return ek, nil
	}
	h.mu.Unlock()

	ck, err := h.ContextKey(context)
	if err != nil {
		return EpochKey{}, err
	}
	var ek EpochKey
	if err := derive(ek[:], ck[:], "epoch:"+strconv.FormatUint(epoch, 10)); err != nil {
		return EpochKey{}, err
	}

	h.mu.Lock()
	h.epochKeys[id] = ek
	h.mu.Unlock()
	return ek, nil
}

// EvictBefore drops cached epoch keys for epochs older than the given one,
// across all contexts. Returns the number of keys discarded.
func (h *Hierarchy) EvictBefore(epoch uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id := range h.epochKeys {
		if id.epoch < epoch {
			delete(h.epochKeys, id)
			n++
		}
	}
	return n
}

// Destroy zeroizes the master secret and all caches. Used on identity
// revocation; every later derivation returns ErrKeyUnavailable.
func (h *Hierarchy) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.master {
		h.master[i] = 0
	}
	h.master = nil
	h.ctxKeys = make(map[string]ContextKey)
	h.epochKeys = make(map[epochKeyID]EpochKey)
	h.destroyed = true
}

// derive fills out with HKDF-SHA256 keyed by secret under the given salt.
func derive(out, secret []byte, salt string) error {
	r := hkdf.New(sha256.New, secret, []byte(salt), nil)
	if _, err := io.ReadFull(r, out); err != nil {
		return fmt.Errorf("%w: hkdf expand failed: %v", ErrKeyUnavailable, err)
	}
	return nil
}
