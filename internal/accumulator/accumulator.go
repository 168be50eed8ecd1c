// accumulator.go - Versioned Merkle accumulator over identity symbols.
//
// A fixed-depth MiMC Merkle tree commits to the approved identity set.
// Every mutation produces a new commitment version; witnesses are bound to
// the version they were generated under and are rejected as stale once the
// commitment advances. The construction is hash-based on purpose: no trusted
// setup, and the same path arithmetic is checkable inside a gnark circuit.
//
// Concurrency: mutations are single-writer (the enrollment authority);
// witness generation and verification run against immutable snapshots.

package accumulator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"privcore/internal/symbol"
	"privcore/internal/zkhash"
)

// Depth is the fixed tree depth; the set holds up to 1<<Depth identities.
const Depth = 16

// Capacity is the maximum set size.
const Capacity = 1 << Depth

// DefaultSnapshotRetention is how many historical versions stay available
// for witness generation.
const DefaultSnapshotRetention = 8

// ErrStaleWitness signals a witness bound to a superseded commitment
// version. The caller should re-fetch a fresh witness.
var ErrStaleWitness = errors.New("witness bound to a stale commitment version")

// ErrMembershipNotFound signals that a symbol is not in the approved set.
var ErrMembershipNotFound = errors.New("identity not in the approved set")

// ErrAlreadyMember signals a duplicate enrollment.
var ErrAlreadyMember = errors.New("identity already in the approved set")

// ErrSetFull signals that the tree is at capacity.
var ErrSetFull = errors.New("approved set is at capacity")

// ErrVersionUnavailable signals a pruned or unknown snapshot version.
var ErrVersionUnavailable = errors.New("commitment version not available for witness generation")

// zeroHashes[k] is the hash of an empty subtree of height k.
var zeroHashes [Depth + 1]fr.Element

func init() {
	// zeroHashes[0] stays the zero leaf.
	for k := 1; k <= Depth; k++ {
		zeroHashes[k] = zkhash.SumFields(zeroHashes[k-1], zeroHashes[k-1])
	}
}

// Commitment is a versioned accumulator root.
type Commitment struct {
	Version uint64            `json:"version"`
	Root    [zkhash.Size]byte `json:"-"`
}

// UpdateProof describes one accumulator mutation.
type UpdateProof struct {
	Version  uint64 // version after the mutation
	PrevRoot [zkhash.Size]byte
	NewRoot  [zkhash.Size]byte
	Index    int
}

// Witness proves inclusion of a symbol under one commitment version.
type Witness struct {
	Version uint64
	Index   int
	Path    [Depth][zkhash.Size]byte
}

// PathBit returns direction bit k of the witness position (0 = left child).
func (w *Witness) PathBit(k int) uint8 {
	return uint8((w.Index >> k) & 1)
}

type snapshot struct {
	version uint64
	root    fr.Element
	nodes   [Depth + 1]map[int]fr.Element
}

// Accumulator maintains the committed approved set.
type Accumulator struct {
	mu        sync.RWMutex
	version   uint64
	nextIndex int
	index     map[symbol.Symbol]int
	nodes     [Depth + 1]map[int]fr.Element
	log       []Commitment
	snapshots map[uint64]*snapshot
	keep      int
}

// New creates an empty accumulator at version 0.
func New() *Accumulator {
	a := &Accumulator{
		index:     make(map[symbol.Symbol]int),
		snapshots: make(map[uint64]*snapshot),
		keep:      DefaultSnapshotRetention,
	}
	for k := 0; k <= Depth; k++ {
		a.nodes[k] = make(map[int]fr.Element)
	}
	a.log = append(a.log, Commitment{Version: 0, Root: rootBytes(a.node(Depth, 0))})
	a.snapshots[0] = a.snapshot()
	return a
}

// Add enrolls a symbol and advances the commitment version.
func (a *Accumulator) Add(sym symbol.Symbol) (*UpdateProof, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.index[sym]; ok {
		return nil, ErrAlreadyMember
	}
	if a.nextIndex >= Capacity {
		return nil, ErrSetFull
	}
	prev := a.node(Depth, 0)
	idx := a.nextIndex
	a.nextIndex++
	a.index[sym] = idx
	a.setLeaf(idx, leafOf(sym))
	return a.commit(prev, idx), nil
}

// Remove revokes a symbol and advances the commitment version. The slot is
// reset to the empty leaf; indices are not reused.
func (a *Accumulator) Remove(sym symbol.Symbol) (*UpdateProof, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.index[sym]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	prev := a.node(Depth, 0)
	delete(a.index, sym)
	a.setLeaf(idx, fr.Element{})
	return a.commit(prev, idx), nil
}

// commit records the new version and snapshot. Caller holds a.mu.
func (a *Accumulator) commit(prev fr.Element, idx int) *UpdateProof {
	a.version++
	root := a.node(Depth, 0)
	a.log = append(a.log, Commitment{Version: a.version, Root: rootBytes(root)})
	a.snapshots[a.version] = a.snapshot()
	if pruned, ok := a.snapshots[a.version-uint64(a.keep)]; ok && pruned != nil {
		delete(a.snapshots, a.version-uint64(a.keep))
	}
	return &UpdateProof{
		Version:  a.version,
		PrevRoot: rootBytes(prev),
		NewRoot:  rootBytes(root),
		Index:    idx,
	}
}

// Current returns the latest commitment.
func (a *Accumulator) Current() Commitment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.log[len(a.log)-1]
}

// CommitmentAt returns the commitment for a given version from the log.
func (a *Accumulator) CommitmentAt(version uint64) (Commitment, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if version >= uint64(len(a.log)) {
		return Commitment{}, fmt.Errorf("%w: version %d", ErrVersionUnavailable, version)
	}
	return a.log[version], nil
}

// Log returns the versioned commitment log.
func (a *Accumulator) Log() []Commitment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Commitment, len(a.log))
	copy(out, a.log)
	return out
}

// ProveMembership generates a witness for a symbol under the current
// commitment version.
func (a *Accumulator) ProveMembership(sym symbol.Symbol) (*Witness, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.proveLocked(sym, a.version)
}

// ProveMembershipAt generates a witness pinned to a historical version, as
// long as its snapshot has not been pruned.
func (a *Accumulator) ProveMembershipAt(sym symbol.Symbol, version uint64) (*Witness, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.proveLocked(sym, version)
}

func (a *Accumulator) proveLocked(sym symbol.Symbol, version uint64) (*Witness, error) {
	snap, ok := a.snapshots[version]
	if !ok {
		return nil, fmt.Errorf("%w: version %d", ErrVersionUnavailable, version)
	}
	idx, ok := a.index[sym]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	// The index map reflects the current set; confirm the leaf existed at
	// the pinned version before handing out a path.
	leaf := snapNode(snap, 0, idx)
	if !leaf.Equal(leafPtr(sym)) {
		return nil, ErrMembershipNotFound
	}
	w := &Witness{Version: version, Index: idx}
	pos := idx
	for k := 0; k < Depth; k++ {
		sib := snapNode(snap, k, pos^1)
		w.Path[k] = rootBytes(sib)
		pos >>= 1
	}
	return w, nil
}

// Verify checks a witness against a commitment. A witness whose version does
// not match the commitment is rejected with ErrStaleWitness, never silently
// re-checked against the current root.
func Verify(c Commitment, sym symbol.Symbol, w *Witness) (bool, error) {
	if w == nil {
		return false, ErrMembershipNotFound
	}
	if w.Version != c.Version {
		return false, fmt.Errorf("%w: witness v%d, commitment v%d", ErrStaleWitness, w.Version, c.Version)
	}
	cur := leafOf(sym)
	pos := w.Index
	for k := 0; k < Depth; k++ {
		var sib fr.Element
		sib.SetBytes(w.Path[k][:])
		if pos&1 == 0 {
			cur = zkhash.SumFields(cur, sib)
		} else {
			cur = zkhash.SumFields(sib, cur)
		}
		pos >>= 1
	}
	return rootBytes(cur) == c.Root, nil
}

// Size returns the number of enrolled identities.
func (a *Accumulator) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.index)
}

// setLeaf writes a leaf and rehashes its path to the root. Caller holds a.mu.
func (a *Accumulator) setLeaf(idx int, v fr.Element) {
	a.nodes[0][idx] = v
	pos := idx
	for k := 1; k <= Depth; k++ {
		pos >>= 1
		left := a.node(k-1, 2*pos)
		right := a.node(k-1, 2*pos+1)
		a.nodes[k][pos] = zkhash.SumFields(left, right)
	}
}

// node returns the stored node or the empty-subtree hash for its level.
func (a *Accumulator) node(level, pos int) fr.Element {
	if v, ok := a.nodes[level][pos]; ok {
		return v
	}
	return zeroHashes[level]
}

func snapNode(s *snapshot, level, pos int) fr.Element {
	if v, ok := s.nodes[level][pos]; ok {
		return v
	}
	return zeroHashes[level]
}

// snapshot clones the sparse node maps. Caller holds a.mu.
func (a *Accumulator) snapshot() *snapshot {
	s := &snapshot{version: a.version, root: a.node(Depth, 0)}
	for k := 0; k <= Depth; k++ {
		s.nodes[k] = make(map[int]fr.Element, len(a.nodes[k]))
		for pos, v := range a.nodes[k] {
			s.nodes[k][pos] = v
		}
	}
	return s
}

// leafOf hashes a symbol into its leaf value.
func leafOf(sym symbol.Symbol) fr.Element {
	return zkhash.SumFields(sym.Field())
}

func leafPtr(sym symbol.Symbol) *fr.Element {
	v := leafOf(sym)
	return &v
}

func rootBytes(e fr.Element) [zkhash.Size]byte {
	return e.Bytes()
}
