// Package registry implements the Blob Registry: the persistent
// blob_hash -> point_id dedup mapping backed by SQLite, per spec.md §3/§4.6.
// A blob is embedded at most once per project; Register is an idempotent
// "INSERT OR IGNORE".
package registry

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jsbattig/cidx/pkg/cidxtypes"
)

const schema = `
CREATE TABLE IF NOT EXISTS blob_registry (
	blob_hash TEXT NOT NULL,
	point_id  TEXT NOT NULL,
	PRIMARY KEY (blob_hash, point_id)
);
CREATE INDEX IF NOT EXISTS idx_blob_registry_hash ON blob_registry(blob_hash);
`

// Registry is a SQLite-backed Blob Registry.
type Registry struct {
	db *sql.DB
}

// Open opens (creating if absent) the registry database at path, with WAL
// mode and a busy timeout so concurrent temporal-indexer workers don't
// collide on writes, per spec.md §5's shared-resource policy.
func Open(path string) (*Registry, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=exclusive", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: migrate schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the underlying database handle.
func (r *Registry) Close() error { return r.db.Close() }

// Has reports whether any point is registered for blobHash.
func (r *Registry) Has(ctx context.Context, blobHash string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM blob_registry WHERE blob_hash = ?`, blobHash).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasMany reports, for each hash in blobHashes, whether it already has a
// registered point. Used to partition new_blobs/existing_blobs per
// spec.md §4.6 step 4b in a single round trip.
func (r *Registry) HasMany(ctx context.Context, blobHashes []string) (map[string]bool, error) {
	result := make(map[string]bool, len(blobHashes))
	if len(blobHashes) == 0 {
		return result, nil
	}
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `SELECT COUNT(1) FROM blob_registry WHERE blob_hash = ?`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for _, h := range blobHashes {
		var n int
		if err := stmt.QueryRowContext(ctx, h).Scan(&n); err != nil {
			return nil, err
		}
		result[h] = n > 0
	}
	return result, tx.Commit()
}

// Register records (blob_hash, point_id), idempotently.
func (r *Registry) Register(ctx context.Context, blobHash, pointID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blob_registry (blob_hash, point_id) VALUES (?, ?)`, blobHash, pointID)
	return err
}

// RegisterMany records multiple rows in one exclusive transaction.
func (r *Registry) RegisterMany(ctx context.Context, rows []cidxtypes.BlobRegistryRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO blob_registry (blob_hash, point_id) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.BlobHash, row.PointID); err != nil {
			stmt.Close()
			tx.Rollback()
			return err
		}
	}
	stmt.Close()
	return tx.Commit()
}

// Count returns the total number of distinct blob hashes registered.
func (r *Registry) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT blob_hash) FROM blob_registry`).Scan(&n)
	return n, err
}
