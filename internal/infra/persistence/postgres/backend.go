// Package postgres stores the serialized dataset as a JSONB document in
// PostgreSQL through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/clinicore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Backend persists the dataset document into the state table.
type Backend struct {
	db  *sql.DB
	key string
}

// Open connects using dsn (falls back to defaultDSN), pings the server and
// ensures the state table exists.
func Open(ctx context.Context, dsn, key string) (*Backend, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	b, err := New(ctx, db, key)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// New wraps an existing handle and ensures the state table exists.
func New(ctx context.Context, db *sql.DB, key string) (*Backend, error) {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	return &Backend{db: db, key: key}, nil
}

// Load returns the stored document, or ok=false when nothing was saved yet.
func (b *Backend) Load(ctx context.Context) ([]byte, bool, error) {
	var payload []byte
	err := b.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = $1`, b.key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select state: %w", err)
	}
	return payload, len(payload) > 0, nil
}

// Save overwrites the stored document.
func (b *Backend) Save(ctx context.Context, payload []byte) error {
	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO state (bucket, payload) VALUES ($1, $2) ON CONFLICT (bucket) DO UPDATE SET payload = EXCLUDED.payload`,
		b.key, payload); err != nil {
		return fmt.Errorf("upsert %s: %w", b.key, err)
	}
	return nil
}

// Close releases the database handle.
func (b *Backend) Close() error { return b.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (b *Backend) DB() *sql.DB { return b.db }
