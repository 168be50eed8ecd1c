package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"privcore/internal/zkhash"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "nullifiers.json"))
	require.NoError(t, err)
	reg, err := New(store, WithRetention(30), WithFilterCapacity(1024))
	require.NoError(t, err)
	return reg
}

func testNullifier() [NullifierSize]byte {
	var n [NullifierSize]byte
	copy(n[:], zkhash.RandomBytes(NullifierSize))
	return n
}

func TestInsertExactlyOnce(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	n := testNullifier()
	rec := &Record{Nullifier: n, Context: "election-42", Epoch: 100}
	require.NoError(t, reg.Insert(ctx, rec))

	// Second registration for the same (context, epoch) is a duplicate.
	dup := &Record{Nullifier: n, Context: "election-42", Epoch: 100}
	require.ErrorIs(t, reg.Insert(ctx, dup), ErrDuplicateNullifier)

	// Same nullifier under another epoch or context is a different key.
	require.NoError(t, reg.Insert(ctx, &Record{Nullifier: n, Context: "election-42", Epoch: 101}))
	require.NoError(t, reg.Insert(ctx, &Record{Nullifier: n, Context: "messaging", Epoch: 100}))
}

func TestHasReadAfterWrite(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	n := testNullifier()
	ok, err := reg.Has(ctx, "voting", 5, n)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, reg.Insert(ctx, &Record{Nullifier: n, Context: "voting", Epoch: 5}))
	ok, err = reg.Has(ctx, "voting", 5, n)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSweepArchivesExpiredRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "nullifiers.json"))
	require.NoError(t, err)
	reg, err := New(store, WithRetention(10), WithFilterCapacity(1024))
	require.NoError(t, err)
	ctx := context.Background()

	old := &Record{Nullifier: testNullifier(), Context: "voting", Epoch: 50}
	fresh := &Record{Nullifier: testNullifier(), Context: "voting", Epoch: 95}
	require.NoError(t, reg.Insert(ctx, old))
	require.NoError(t, reg.Insert(ctx, fresh))

	// Epoch 100 with retention 10 archives everything below epoch 90.
	require.NoError(t, reg.Sweep(ctx, 100))

	ok, err := reg.Has(ctx, "voting", 50, old.Nullifier)
	require.NoError(t, err)
	require.False(t, ok, "expired record must leave hot storage")

	ok, err = reg.Has(ctx, "voting", 95, fresh.Nullifier)
	require.NoError(t, err)
	require.True(t, ok, "fresh record must survive the sweep")

	// Expired records land in the cold file, not in the void.
	cold, err := os.ReadFile(filepath.Join(dir, "nullifiers.json.archive"))
	require.NoError(t, err)
	require.NotEmpty(t, cold)
}

func TestFileStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nullifiers.json")
	ctx := context.Background()

	store, err := NewFileStore(path)
	require.NoError(t, err)
	rec := &Record{Nullifier: testNullifier(), Context: "voting", Epoch: 7}
	require.NoError(t, store.Insert(ctx, rec))
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	ok, err := reopened.Has(ctx, "voting", 7, rec.Nullifier)
	require.NoError(t, err)
	require.True(t, ok)
	require.ErrorIs(t, reopened.Insert(ctx, rec), ErrDuplicateNullifier)
}

func TestInsertNotCommittedUntilFlushed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nullifiers.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	// Occupy the store path with a directory so the flush fails.
	require.NoError(t, os.Mkdir(path, 0o755))

	rec := &Record{Nullifier: testNullifier(), Context: "voting", Epoch: 7}
	require.ErrorIs(t, store.Insert(ctx, rec), ErrStoreUnavailable)

	// A failed insert must leave no trace: the retry sees the same store
	// error, never a phantom duplicate.
	require.ErrorIs(t, store.Insert(ctx, rec), ErrStoreUnavailable)
	ok, err := store.Has(ctx, "voting", 7, rec.Nullifier)
	require.NoError(t, err)
	require.False(t, ok)

	// Once the disk recovers, the same record registers exactly once.
	require.NoError(t, os.Remove(path))
	require.NoError(t, store.Insert(ctx, rec))
	require.ErrorIs(t, store.Insert(ctx, rec), ErrDuplicateNullifier)
}

// brokenScanStore fails filter rebuilds while leaving the authoritative
// read/write path intact.
type brokenScanStore struct {
	Store
}

func (s *brokenScanStore) HotRecords(ctx context.Context) ([]Record, error) {
	return nil, ErrStoreUnavailable
}

func TestFilterFailureDegradesToStoreOnly(t *testing.T) {
	inner, err := NewFileStore(filepath.Join(t.TempDir(), "nullifiers.json"))
	require.NoError(t, err)
	reg, err := New(&brokenScanStore{Store: inner}, WithFilterCapacity(1024))
	require.NoError(t, err)
	ctx := context.Background()

	require.False(t, reg.FilterHealthy(), "warm-up failure must degrade the filter")

	// Degraded mode answers through the store and stays exactly-once.
	n := testNullifier()
	rec := &Record{Nullifier: n, Context: "voting", Epoch: 12}
	require.NoError(t, reg.Insert(ctx, rec))
	require.ErrorIs(t, reg.Insert(ctx, rec), ErrDuplicateNullifier)

	ok, err := reg.Has(ctx, "voting", 12, n)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = reg.Has(ctx, "voting", 12, testNullifier())
	require.NoError(t, err)
	require.False(t, ok)

	// A sweep whose rebuild also fails keeps the registry degraded but
	// serving.
	require.NoError(t, reg.Sweep(ctx, 35))
	require.False(t, reg.FilterHealthy())
	ok, err = reg.Has(ctx, "voting", 12, n)
	require.NoError(t, err)
	require.True(t, ok)
}

// TestPostgresStore exercises the lib/pq backend against a real database.
// Set PRIVCORE_POSTGRES_DSN to run it.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PRIVCORE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PRIVCORE_POSTGRES_DSN not set")
	}
	store, err := NewPostgresStoreDSN(dsn)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	rec := &Record{Nullifier: testNullifier(), Context: "pg-test", Epoch: 3}
	require.NoError(t, store.Insert(ctx, rec))
	require.ErrorIs(t, store.Insert(ctx, rec), ErrDuplicateNullifier)

	ok, err := store.Has(ctx, "pg-test", 3, rec.Nullifier)
	require.NoError(t, err)
	require.True(t, ok)

	moved, err := store.ArchiveBefore(ctx, 4)
	require.NoError(t, err)
	require.GreaterOrEqual(t, moved, 1)
	ok, err = store.Has(ctx, "pg-test", 3, rec.Nullifier)
	require.NoError(t, err)
	require.False(t, ok)
}
