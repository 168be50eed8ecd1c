// pgstore.go - PostgreSQL-backed nullifier store.
//
// The database enforces the double-use invariant: inserts use
// INSERT ... ON CONFLICT DO NOTHING on the (context, epoch, nullifier)
// primary key, so concurrent writers across processes admit exactly one
// registration. Archival moves expired rows into a cold table.

package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// ConnectionString returns the lib/pq connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects, pings, and migrates the schema.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	return newPostgresStore(config.ConnectionString())
}

// NewPostgresStoreDSN opens a store from a raw connection string.
func NewPostgresStoreDSN(dsn string) (*PostgresStore, error) {
	return newPostgresStore(dsn)
}

func newPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrStoreUnavailable, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: pinging database: %v", ErrStoreUnavailable, err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("%w: running migrations: %v", ErrStoreUnavailable, err)
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nullifier_records (
		context VARCHAR(128) NOT NULL,
		epoch BIGINT NOT NULL,
		nullifier BYTEA NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (context, epoch, nullifier)
	);

	CREATE TABLE IF NOT EXISTS nullifier_archive (
		context VARCHAR(128) NOT NULL,
		epoch BIGINT NOT NULL,
		nullifier BYTEA NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE,
		archived_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (context, epoch, nullifier)
	);

	CREATE INDEX IF NOT EXISTS idx_nullifier_epoch ON nullifier_records(epoch);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Insert persists a record; the primary key makes it a compare-and-insert.
func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO nullifier_records (context, epoch, nullifier, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (context, epoch, nullifier) DO NOTHING
	`, rec.Context, int64(rec.Epoch), rec.Nullifier[:], createdAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n == 0 {
		return ErrDuplicateNullifier
	}
	return nil
}

// Has reports whether the key exists in hot storage.
func (s *PostgresStore) Has(ctx context.Context, domain string, epoch uint64, n [NullifierSize]byte) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
	SELECT 1 FROM nullifier_records WHERE context = $1 AND epoch = $2 AND nullifier = $3
	`, domain, int64(epoch), n[:]).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return true, nil
}

// ArchiveBefore moves rows with epoch < cutoff into the cold table.
func (s *PostgresStore) ArchiveBefore(ctx context.Context, cutoff uint64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO nullifier_archive (context, epoch, nullifier, created_at)
	SELECT context, epoch, nullifier, created_at FROM nullifier_records WHERE epoch < $1
	ON CONFLICT (context, epoch, nullifier) DO NOTHING
	`, int64(cutoff))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	moved, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nullifier_records WHERE epoch < $1`, int64(cutoff)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(moved), nil
}

// HotRecords returns all rows still in hot storage.
func (s *PostgresStore) HotRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT context, epoch, nullifier, created_at FROM nullifier_records
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var epoch int64
		var raw []byte
		if err := rows.Scan(&rec.Context, &epoch, &raw, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		rec.Epoch = uint64(epoch)
		copy(rec.Nullifier[:], raw)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ping verifies database connectivity. Used by the health checker.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
