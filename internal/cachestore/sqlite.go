package cachestore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the cachestore backend named in §4.6's "in-memory,
// filesystem, encrypted wrapper" list as one more legitimate implementation
// of the same opaque (type, id) -> bytes contract. Grounded on
// internal/storage/sqlite/sqlite.go's upsert-via-ON-CONFLICT shape.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed cache store at
// path. Use ":memory:" for an ephemeral in-process database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("cachestore: open sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cachestore: init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			type TEXT NOT NULL,
			id TEXT NOT NULL,
			value BLOB NOT NULL,
			PRIMARY KEY (type, id)
		);
		CREATE INDEX IF NOT EXISTS idx_cache_entries_type ON cache_entries(type);
	`)
	return err
}

func (s *SQLiteStore) Get(key Key) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(
		"SELECT value FROM cache_entries WHERE type = ? AND id = ?", key.Type, key.ID,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cachestore: get: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Put(key Key, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO cache_entries (type, id, value) VALUES (?, ?, ?)
		ON CONFLICT(type, id) DO UPDATE SET value = excluded.value
	`, key.Type, key.ID, value)
	if err != nil {
		return fmt.Errorf("cachestore: put: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key Key) error {
	_, err := s.db.Exec("DELETE FROM cache_entries WHERE type = ? AND id = ?", key.Type, key.ID)
	if err != nil {
		return fmt.Errorf("cachestore: delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(typ string) ([]Key, error) {
	rows, err := s.db.Query("SELECT id FROM cache_entries WHERE type = ?", typ)
	if err != nil {
		return nil, fmt.Errorf("cachestore: list: %w", err)
	}
	defer rows.Close()
	var out []Key
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("cachestore: scan: %w", err)
		}
		out = append(out, Key{Type: typ, ID: id})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec("DELETE FROM cache_entries")
	if err != nil {
		return fmt.Errorf("cachestore: clear: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
