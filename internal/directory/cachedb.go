package directory

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/amaydixit11/mindoodb/internal/mdcore"
)

// cacheDB is a restart-time acceleration for the unified cache, persisting
// trustedKeysCache, grantDocIdToPublicKey, and groupsCache to SQLite so
// IsPublicKeyTrusted doesn't require a full cursor-null replay of the
// directory Database on every process restart. It is never the source of
// truth: a Directory with no cacheDB (or one whose file is missing, so it
// starts empty) rebuilds from scratch via updateUnifiedCache, exactly as if
// the cache had been invalidated. A file that cannot be opened or read makes
// NewWithSQLiteCache return an error; there is no fallback for that case.
//
// Grounded on internal/storage/sqlite/sqlite.go's upsert pattern
// (INSERT ... ON CONFLICT DO UPDATE, one table per cached collection).
type cacheDB struct {
	db *sql.DB
}

// openCacheDB opens (creating if absent) the SQLite acceleration file at
// path. path == "" disables persistence; openCacheDB is not called in that
// case.
func openCacheDB(path string) (*cacheDB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("directory cachedb: open: %w", err)
	}
	c := &cacheDB{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *cacheDB) initSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS trusted_keys (
			public_key   TEXT PRIMARY KEY,
			trusted      INTEGER NOT NULL,
			grant_doc_id TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS groups (
			name           TEXT PRIMARY KEY,
			doc_id         TEXT NOT NULL,
			members_hashes TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS cursor (
			id            INTEGER PRIMARY KEY CHECK (id = 1),
			last_modified INTEGER NOT NULL,
			doc_id        TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("directory cachedb: init schema: %w", err)
	}
	return nil
}

// saveTrustedKey upserts one entry of trustedKeysCache/grantDocIdToPublicKey.
func (c *cacheDB) saveTrustedKey(publicKeyPEM string, trusted bool, grantDocID string) error {
	_, err := c.db.Exec(`
		INSERT INTO trusted_keys (public_key, trusted, grant_doc_id)
		VALUES (?, ?, ?)
		ON CONFLICT(public_key) DO UPDATE SET
			trusted = excluded.trusted,
			grant_doc_id = CASE WHEN excluded.grant_doc_id != '' THEN excluded.grant_doc_id ELSE trusted_keys.grant_doc_id END
	`, publicKeyPEM, boolToInt(trusted), grantDocID)
	if err != nil {
		return fmt.Errorf("directory cachedb: save trusted key: %w", err)
	}
	return nil
}

// saveGroup upserts one groupsCache entry.
func (c *cacheDB) saveGroup(name, docID string, membersHashes map[string]bool) error {
	hashes := make([]string, 0, len(membersHashes))
	for h := range membersHashes {
		hashes = append(hashes, h)
	}
	_, err := c.db.Exec(`
		INSERT INTO groups (name, doc_id, members_hashes)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			doc_id = excluded.doc_id,
			members_hashes = excluded.members_hashes
	`, name, docID, strings.Join(hashes, ","))
	if err != nil {
		return fmt.Errorf("directory cachedb: save group: %w", err)
	}
	return nil
}

func (c *cacheDB) deleteGroup(name string) error {
	_, err := c.db.Exec("DELETE FROM groups WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("directory cachedb: delete group: %w", err)
	}
	return nil
}

// saveCursor persists unifiedCacheLastCursor so a restart can resume
// updateUnifiedCache from where it left off instead of replaying everything.
func (c *cacheDB) saveCursor(cur *mdcore.Cursor) error {
	if cur == nil {
		_, err := c.db.Exec("DELETE FROM cursor WHERE id = 1")
		return err
	}
	_, err := c.db.Exec(`
		INSERT INTO cursor (id, last_modified, doc_id) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_modified = excluded.last_modified, doc_id = excluded.doc_id
	`, cur.LastModified, cur.DocID)
	if err != nil {
		return fmt.Errorf("directory cachedb: save cursor: %w", err)
	}
	return nil
}

// loadAll reads every persisted cache table back into the in-memory shapes
// Directory.applyDocLocked expects, for use on startup before the first
// updateUnifiedCache call.
func (c *cacheDB) loadAll() (trustedKeys map[string]bool, grantDocIdToPublicKey map[string]string, groups map[string]groupEntry, cursor *mdcore.Cursor, err error) {
	trustedKeys = make(map[string]bool)
	grantDocIdToPublicKey = make(map[string]string)
	groups = make(map[string]groupEntry)

	rows, err := c.db.Query("SELECT public_key, trusted, grant_doc_id FROM trusted_keys")
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("directory cachedb: load trusted keys: %w", err)
	}
	for rows.Next() {
		var pub, grantDocID string
		var trusted int
		if err := rows.Scan(&pub, &trusted, &grantDocID); err != nil {
			rows.Close()
			return nil, nil, nil, nil, fmt.Errorf("directory cachedb: scan trusted key: %w", err)
		}
		trustedKeys[pub] = trusted != 0
		if grantDocID != "" {
			grantDocIdToPublicKey[grantDocID] = pub
		}
	}
	rows.Close()

	groupRows, err := c.db.Query("SELECT name, doc_id, members_hashes FROM groups")
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("directory cachedb: load groups: %w", err)
	}
	for groupRows.Next() {
		var name, docID, hashesCSV string
		if err := groupRows.Scan(&name, &docID, &hashesCSV); err != nil {
			groupRows.Close()
			return nil, nil, nil, nil, fmt.Errorf("directory cachedb: scan group: %w", err)
		}
		entry := groupEntry{DocID: docID, MembersHashes: make(map[string]bool)}
		if hashesCSV != "" {
			for _, h := range strings.Split(hashesCSV, ",") {
				entry.MembersHashes[h] = true
			}
		}
		groups[name] = entry
	}
	groupRows.Close()

	var lastModified int64
	var docID string
	row := c.db.QueryRow("SELECT last_modified, doc_id FROM cursor WHERE id = 1")
	switch err := row.Scan(&lastModified, &docID); err {
	case nil:
		cursor = &mdcore.Cursor{LastModified: lastModified, DocID: docID}
	case sql.ErrNoRows:
		cursor = nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("directory cachedb: load cursor: %w", err)
	}

	return trustedKeys, grantDocIdToPublicKey, groups, cursor, nil
}

// reset drops every row, used whenever unifiedCacheLastCursor resets to
// null so the SQLite file never drifts out of sync with a from-scratch
// in-memory rebuild.
func (c *cacheDB) reset() error {
	_, err := c.db.Exec(`
		DELETE FROM trusted_keys;
		DELETE FROM groups;
		DELETE FROM cursor;
	`)
	if err != nil {
		return fmt.Errorf("directory cachedb: reset: %w", err)
	}
	return nil
}

func (c *cacheDB) Close() error { return c.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
