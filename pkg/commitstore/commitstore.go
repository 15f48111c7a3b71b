// Package commitstore implements the Commit Store: commits, trees, and
// commit_branches tables backed by SQLite, per spec.md §3/§4.6.
package commitstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jsbattig/cidx/pkg/cidxtypes"
)

const schema = `
CREATE TABLE IF NOT EXISTS commits (
	hash          TEXT PRIMARY KEY,
	timestamp     DATETIME NOT NULL,
	author_name   TEXT NOT NULL,
	author_email  TEXT NOT NULL,
	message       TEXT NOT NULL,
	parent_hashes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trees (
	commit_hash TEXT NOT NULL,
	file_path   TEXT NOT NULL,
	blob_hash   TEXT NOT NULL,
	PRIMARY KEY (commit_hash, file_path)
);
CREATE INDEX IF NOT EXISTS idx_trees_blob_commit ON trees(blob_hash, commit_hash);

CREATE TABLE IF NOT EXISTS commit_branches (
	commit_hash TEXT NOT NULL,
	branch_name TEXT NOT NULL,
	is_head     INTEGER NOT NULL DEFAULT 0,
	indexed_at  DATETIME NOT NULL,
	PRIMARY KEY (commit_hash, branch_name)
);
CREATE INDEX IF NOT EXISTS idx_commit_branches_commit ON commit_branches(commit_hash);
CREATE INDEX IF NOT EXISTS idx_commit_branches_branch ON commit_branches(branch_name);
`

// Store is a SQLite-backed Commit Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the commit store database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=exclusive", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("commitstore: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("commitstore: migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// WriteCommit records one commit, its tree entries, and its branch rows in
// a single exclusive transaction, satisfying spec.md §4.6's invariant that
// "every commit processed is accompanied by its trees rows before
// progression" and the branch-metadata placement rule (written inside the
// per-commit critical section).
func (s *Store) WriteCommit(ctx context.Context, commit cidxtypes.Commit, trees []cidxtypes.TreeEntry, branches []cidxtypes.CommitBranchRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO commits (hash, timestamp, author_name, author_email, message, parent_hashes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		commit.Hash, commit.Timestamp, commit.AuthorName, commit.AuthorEmail, commit.Message,
		strings.Join(commit.ParentHashes, ","))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("commitstore: write commit %s: %w", commit.Hash, err)
	}

	treeStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO trees (commit_hash, file_path, blob_hash) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, te := range trees {
		if _, err := treeStmt.ExecContext(ctx, te.CommitHash, te.FilePath, te.BlobHash); err != nil {
			treeStmt.Close()
			tx.Rollback()
			return fmt.Errorf("commitstore: write tree entry %s: %w", te.FilePath, err)
		}
	}
	treeStmt.Close()

	branchStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO commit_branches (commit_hash, branch_name, is_head, indexed_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, b := range branches {
		isHead := 0
		if b.IsHead {
			isHead = 1
		}
		if _, err := branchStmt.ExecContext(ctx, b.CommitHash, b.BranchName, isHead, b.IndexedAt); err != nil {
			branchStmt.Close()
			tx.Rollback()
			return fmt.Errorf("commitstore: write branch row %s: %w", b.BranchName, err)
		}
	}
	branchStmt.Close()

	return tx.Commit()
}

// HasCommit reports whether hash is already recorded.
func (s *Store) HasCommit(ctx context.Context, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM commits WHERE hash = ?`, hash).Scan(&n)
	return n > 0, err
}

// TotalCommits returns the number of recorded commits.
func (s *Store) TotalCommits(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM commits`).Scan(&n)
	return n, err
}

// TreesForCommit returns the trees rows for hash.
func (s *Store) TreesForCommit(ctx context.Context, hash string) ([]cidxtypes.TreeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT commit_hash, file_path, blob_hash FROM trees WHERE commit_hash = ?`, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []cidxtypes.TreeEntry
	for rows.Next() {
		var te cidxtypes.TreeEntry
		if err := rows.Scan(&te.CommitHash, &te.FilePath, &te.BlobHash); err != nil {
			return nil, err
		}
		out = append(out, te)
	}
	return out, rows.Err()
}

// BranchesForCommit returns the commit_branches rows for hash.
func (s *Store) BranchesForCommit(ctx context.Context, hash string) ([]cidxtypes.CommitBranchRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT commit_hash, branch_name, is_head, indexed_at FROM commit_branches WHERE commit_hash = ?`, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []cidxtypes.CommitBranchRow
	for rows.Next() {
		var b cidxtypes.CommitBranchRow
		var isHead int
		if err := rows.Scan(&b.CommitHash, &b.BranchName, &isHead, &b.IndexedAt); err != nil {
			return nil, err
		}
		b.IsHead = isHead != 0
		out = append(out, b)
	}
	return out, rows.Err()
}

// LatestCommit returns the most recently timestamped commit hash, or "" if
// the store is empty.
func (s *Store) LatestCommit(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM commits ORDER BY timestamp DESC LIMIT 1`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}
