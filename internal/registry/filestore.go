// filestore.go - JSON-file-backed nullifier store.
//
// Hot records live in memory and are flushed to a single JSON file on every
// insert; archived records are appended to a sibling cold file. This mirrors
// the append-only ledger persistence model and is the default backend for
// single-node deployments.

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// FileStore is an in-memory store persisted as JSON.
// Safe for concurrent use within a single process; cross-process use
// requires the Postgres backend instead.
type FileStore struct {
	mu       sync.Mutex
	path     string
	coldPath string
	records  map[recordKey]Record
}

type recordKey struct {
	Context   string
	Epoch     uint64
	Nullifier [NullifierSize]byte
}

type fileStoreSnapshot struct {
	Records []Record `json:"records"`
}

// NewFileStore opens (or creates) a file-backed store. The cold archive is
// written next to the hot file with an ".archive" suffix.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:     path,
		coldPath: path + ".archive",
		records:  make(map[recordKey]Record),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer f.Close()
	var snap fileStoreSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("%w: corrupt store file: %v", ErrStoreUnavailable, err)
	}
	for _, rec := range snap.Records {
		s.records[keyOf(&rec)] = rec
	}
	return nil
}

// save flushes hot records to disk. Caller holds s.mu.
func (s *FileStore) save() error {
	snap := fileStoreSnapshot{Records: make([]Record, 0, len(s.records))}
	for _, rec := range s.records {
		snap.Records = append(snap.Records, rec)
	}
	sort.Slice(snap.Records, func(i, j int) bool {
		a, b := snap.Records[i], snap.Records[j]
		if a.Epoch != b.Epoch {
			return a.Epoch < b.Epoch
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&snap); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Insert persists a record, rejecting duplicates for the same key.
func (s *FileStore) Insert(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(rec)
	if _, ok := s.records[k]; ok {
		return ErrDuplicateNullifier
	}
	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.records[k] = stored
	if err := s.save(); err != nil {
		// The record is only committed once it hits disk; otherwise a retry
		// would see a phantom duplicate that vanishes on restart.
		delete(s.records, k)
		return err
	}
	return nil
}

// Has reports whether the key exists in hot storage.
func (s *FileStore) Has(ctx context.Context, domain string, epoch uint64, n [NullifierSize]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[recordKey{Context: domain, Epoch: epoch, Nullifier: n}]
	return ok, nil
}

// ArchiveBefore appends expired hot records to the cold file and drops them
// from hot storage.
func (s *FileStore) ArchiveBefore(ctx context.Context, cutoff uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Record
	for k, rec := range s.records {
		if rec.Epoch < cutoff {
			expired = append(expired, rec)
			delete(s.records, k)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(s.coldPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: cold storage: %v", ErrStoreUnavailable, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for i := range expired {
		if err := enc.Encode(&expired[i]); err != nil {
			return 0, fmt.Errorf("%w: cold storage: %v", ErrStoreUnavailable, err)
		}
	}
	if err := s.save(); err != nil {
		return 0, err
	}
	return len(expired), nil
}

// HotRecords returns all records still in hot storage.
func (s *FileStore) HotRecords(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }

func keyOf(rec *Record) recordKey {
	return recordKey{Context: rec.Context, Epoch: rec.Epoch, Nullifier: rec.Nullifier}
}
