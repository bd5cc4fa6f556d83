// Package history implements the bounded per-document version history
// SPEC_FULL.md's supplemented-features section adds: a ring of recent CRDT
// snapshots per document, so a caller can list past states or restore one,
// independent of the entrystore's own doc_snapshot entries (which exist to
// bound replay cost, not to serve a user-facing history view).
//
// Grounded on the teacher's internal/version/store.go almost unchanged in
// shape (a SQLite-backed ring keyed by entry id, pruned to maxVersions) but
// rekeyed from a uuid.UUID single-entry id and Tags to MindooDB's string
// docId and a stored CRDT snapshot payload, since MindooDB documents are
// CRDT state, not tagged blobs.
package history

import (
	"database/sql"
	"fmt"
	"time"
)

// Snapshot is one historical CRDT state capture for a document.
type Snapshot struct {
	ID        int64
	DocID     string
	State     []byte // crdtdoc.Doc.Snapshot() bytes
	CreatedAt int64  // millis, matches the triggering entry's createdAt
	Author    string // signer's public key PEM
}

// Store manages document snapshot history in SQLite.
type Store struct {
	db           *sql.DB
	maxSnapshots int // 0 = unlimited
}

// NewStore opens (creating if absent) the history schema on db.
func NewStore(db *sql.DB, maxSnapshots int) (*Store, error) {
	s := &Store{db: db, maxSnapshots: maxSnapshots}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS doc_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL,
			state BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			author TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_doc_snapshots_doc_id ON doc_snapshots(doc_id);
		CREATE INDEX IF NOT EXISTS idx_doc_snapshots_created_at ON doc_snapshots(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSnapshot records a new historical state for docID, pruning to
// maxSnapshots if configured.
func (s *Store) SaveSnapshot(docID string, state []byte, createdAt int64, author string) error {
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	_, err := s.db.Exec(`
		INSERT INTO doc_snapshots (doc_id, state, created_at, author)
		VALUES (?, ?, ?, ?)
	`, docID, state, createdAt, author)
	if err != nil {
		return fmt.Errorf("history: save snapshot: %w", err)
	}
	if s.maxSnapshots > 0 {
		return s.pruneSnapshots(docID)
	}
	return nil
}

// GetHistory returns every retained snapshot for docID, newest first.
func (s *Store) GetHistory(docID string) ([]Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT id, doc_id, state, created_at, author
		FROM doc_snapshots WHERE doc_id = ? ORDER BY created_at DESC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("history: get history: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var author sql.NullString
		if err := rows.Scan(&snap.ID, &snap.DocID, &snap.State, &snap.CreatedAt, &author); err != nil {
			return nil, err
		}
		if author.Valid {
			snap.Author = author.String
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GetSnapshotAt returns the newest retained snapshot at or before timestamp.
func (s *Store) GetSnapshotAt(docID string, timestamp int64) (*Snapshot, error) {
	var snap Snapshot
	var author sql.NullString
	err := s.db.QueryRow(`
		SELECT id, doc_id, state, created_at, author
		FROM doc_snapshots WHERE doc_id = ? AND created_at <= ?
		ORDER BY created_at DESC LIMIT 1
	`, docID, timestamp).Scan(&snap.ID, &snap.DocID, &snap.State, &snap.CreatedAt, &author)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("history: no snapshot for %q at or before %d", docID, timestamp)
	}
	if err != nil {
		return nil, err
	}
	if author.Valid {
		snap.Author = author.String
	}
	return &snap, nil
}

// GetSnapshotCount returns how many snapshots are retained for docID.
func (s *Store) GetSnapshotCount(docID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_snapshots WHERE doc_id = ?`, docID).Scan(&count)
	return count, err
}

// DeleteHistory removes every retained snapshot for docID — called from the
// GDPR purge path (§4.1's PurgeDocHistory) so history doesn't outlive the
// document it describes.
func (s *Store) DeleteHistory(docID string) error {
	_, err := s.db.Exec(`DELETE FROM doc_snapshots WHERE doc_id = ?`, docID)
	return err
}

func (s *Store) pruneSnapshots(docID string) error {
	_, err := s.db.Exec(`
		DELETE FROM doc_snapshots
		WHERE doc_id = ? AND id NOT IN (
			SELECT id FROM doc_snapshots WHERE doc_id = ? ORDER BY created_at DESC LIMIT ?
		)
	`, docID, docID, s.maxSnapshots)
	return err
}
