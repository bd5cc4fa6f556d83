package database

import (
	"encoding/json"
	"fmt"

	"github.com/amaydixit11/mindoodb/internal/cachestore"
)

// docIndexEntry is the cached listing record for one document: enough to
// answer "which documents exist and when were they last touched" without
// replaying every doc's full entry chain, per §4.6's rationale for the
// CacheManager (speeding up cold start, not correctness — the entrystore
// remains the durable source of truth).
type docIndexEntry struct {
	DocID        string `json:"docId"`
	LastModified int64  `json:"lastModified"`
	IsDeleted    bool   `json:"isDeleted"`
}

// CachePrefix implements cachemanager.ICacheable.
func (db *Database) CachePrefix() string { return "database:" + db.id }

// HasDirtyState implements cachemanager.ICacheable.
func (db *Database) HasDirtyState() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.dirty
}

// ClearDirty implements cachemanager.ICacheable.
func (db *Database) ClearDirty() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.dirty = false
}

// FlushToCache writes the current doc index (id, lastModified, isDeleted for
// every materialized document) to store, implementing cachemanager.ICacheable.
func (db *Database) FlushToCache(store cachestore.Store) error {
	db.mu.Lock()
	entries := make([]docIndexEntry, 0, len(db.docs))
	for docID, c := range db.docs {
		entries = append(entries, docIndexEntry{DocID: docID, LastModified: c.meta.LastModified, IsDeleted: c.meta.IsDeleted})
	}
	db.mu.Unlock()

	buf, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("database %s: marshal cache index: %w", db.id, err)
	}
	return store.Put(cachestore.Key{Type: db.CachePrefix(), ID: "index"}, buf)
}

// LoadIndexFromCache reads a previously flushed doc index, returning
// nothing (not an error) if no cache entry exists yet — callers fall back
// to entrystore replay for anything the index doesn't cover.
func (db *Database) LoadIndexFromCache(store cachestore.Store) ([]docIndexEntry, error) {
	buf, ok, err := store.Get(cachestore.Key{Type: db.CachePrefix(), ID: "index"})
	if err != nil || !ok {
		return nil, err
	}
	var entries []docIndexEntry
	if err := json.Unmarshal(buf, &entries); err != nil {
		return nil, fmt.Errorf("database %s: unmarshal cache index: %w", db.id, err)
	}
	return entries, nil
}
