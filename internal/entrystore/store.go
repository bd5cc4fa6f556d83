// Package entrystore implements the content-addressed, append-only log of
// StoreEntry records described in §4.1: entry identity and dedup, metadata
// indexing with segment compaction, cursor-based scans, dependency
// resolution, attachment chunking support, and GDPR purge.
//
// Grounded on internal/blob/store.go (content-addressed filesystem storage,
// sharded by the first two hex characters of the hash, atomic
// temp-file+rename writes) for the payload side, and on the
// internal/vault/manager.go / internal/sync/allowlist.go JSON-registry
// pattern for the append-only metadata-segment side (segments.go).
package entrystore

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/mdcore"
	"github.com/amaydixit11/mindoodb/internal/mderrors"
)

// Config configures compaction thresholds for a Store (§4.1).
type Config struct {
	MetadataSegmentCompactionMinFiles int
	MetadataSegmentCompactionMaxBytes int64
}

// CompactionStatus reports the observability counters §4.1 requires.
type CompactionStatus struct {
	TotalCompactions    int64
	LastCompactedBytes  int64
	LastCompactionAt    int64 // millis
	LastDurationMs      int64
}

// IndexBuildStatus reports whether the in-memory index has finished
// replaying segments from disk.
type IndexBuildStatus struct {
	Ready    bool
	EntryCount int
}

// Filter restricts findEntries to a type and half-open [From, Until) window
// on createdAt.
type Filter struct {
	Type  *mdcore.EntryType
	From  *int64
	Until *int64
}

// ScanResult is the return shape of scanEntriesSince.
type ScanResult struct {
	Entries    []mdcore.StoreEntry
	NextCursor *mdcore.EntryCursor
	HasMore    bool
}

// ResolveOptions configures resolveDependencies.
type ResolveOptions struct {
	StopAtEntryType *mdcore.EntryType
	MaxDepth        int // 0 = unbounded
	IncludeStart    bool
}

// Store is one content-addressed append-only entry log. One Database uses
// two Stores: the document-entry store, and optionally the attachment-entry
// store (§4.5).
type Store struct {
	mu  sync.RWMutex
	dir string
	cfg Config

	byID  map[string]mdcore.StoreEntry
	byDoc map[string][]string // docId -> ids, insertion order

	compactionStats CompactionStatus
	ready           bool
}

// Open replays the metadata segments and content-addressed objects under
// dir, rebuilding the in-memory index. dir is the per-database entry store
// root, e.g. <basePath>/<dbId> or <basePath>/<dbId>/attachments.
func Open(dir string, cfg Config) (*Store, error) {
	s := &Store{
		dir:   dir,
		cfg:   cfg,
		byID:  make(map[string]mdcore.StoreEntry),
		byDoc: make(map[string][]string),
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, &mderrors.IoError{Op: "mkdir entrystore", Err: err}
	}
	if err := s.replay(); err != nil {
		return nil, err
	}
	s.ready = true
	return s, nil
}

// replay loads every segment, validating each record's contentHash against
// the underlying object bytes. A crash-stale row (hash mismatch, or a
// referenced object missing) is dropped and the whole surviving index is
// rewritten as one fresh segment (§4.1).
func (s *Store) replay() error {
	files, err := s.listSegmentFiles()
	if err != nil {
		return &mderrors.IoError{Op: "list segments", Err: err}
	}

	var needsRebuild bool
	for _, f := range files {
		records, err := readSegmentFile(f)
		if err != nil {
			needsRebuild = true
			continue
		}
		for _, r := range records {
			if _, exists := s.byID[r.ID]; exists {
				continue
			}
			data, err := s.readObject(r.ContentHash)
			if err != nil || cryptocore.SHA256(data) != r.ContentHash {
				needsRebuild = true
				continue
			}
			entry := mdcore.StoreEntry{
				EntryType:          r.EntryType,
				ID:                 r.ID,
				ContentHash:        r.ContentHash,
				DocID:              r.DocID,
				DependencyIDs:      r.DependencyIDs,
				CreatedAt:          r.CreatedAt,
				CreatedByPublicKey: r.CreatedByPublicKey,
				DecryptionKeyID:    r.DecryptionKeyID,
				Signature:          r.Signature,
				OriginalSize:       r.OriginalSize,
				EncryptedSize:      r.EncryptedSize,
				EncryptedData:      data,
			}
			s.byID[entry.ID] = entry
			s.byDoc[entry.DocID] = append(s.byDoc[entry.DocID], entry.ID)
		}
	}

	if needsRebuild {
		records := make([]metadataRecord, 0, len(s.byID))
		for _, e := range s.byID {
			records = append(records, recordFromEntry(e))
		}
		if _, err := s.writeNewSegment(records); err != nil {
			return &mderrors.IoError{Op: "rebuild segment", Err: err}
		}
		for _, f := range files {
			_ = os.Remove(f)
		}
	}
	return nil
}

func (s *Store) objectPath(hash string) string {
	shard := hash
	if len(shard) > 2 {
		shard = hash[:2]
	}
	return filepath.Join(s.dir, "objects", shard, hash)
}

func (s *Store) readObject(hash string) ([]byte, error) {
	return os.ReadFile(s.objectPath(hash))
}

// writeObject stores data content-addressed, deduplicating identical bytes
// (internal/blob/store.go's atomic-write pattern).
func (s *Store) writeObject(hash string, data []byte) error {
	path := s.objectPath(hash)
	if _, err := os.Stat(path); err == nil {
		return nil // already present, deduplicated
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// PutEntries inserts entries, skipping any id already present. Entries
// sharing a contentHash store their payload once. Durable before return.
//
// Atomic per batch (§4.1): the in-memory index (byID/byDoc) is only mutated
// after writeNewSegment has durably committed the batch's metadata, so a
// writeObject or writeNewSegment failure partway through leaves byID/byDoc
// exactly as they were before the call — never ahead of what's on disk.
func (s *Store) PutEntries(entries []mdcore.StoreEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newRecords []metadataRecord
	var accepted []mdcore.StoreEntry
	for _, e := range entries {
		if _, exists := s.byID[e.ID]; exists {
			continue
		}
		if err := s.writeObject(e.ContentHash, e.EncryptedData); err != nil {
			return &mderrors.IoError{Op: "write object", Err: err}
		}
		accepted = append(accepted, e)
		newRecords = append(newRecords, recordFromEntry(e))
	}
	if len(newRecords) == 0 {
		return nil
	}
	sort.Slice(newRecords, func(i, j int) bool {
		if newRecords[i].CreatedAt != newRecords[j].CreatedAt {
			return newRecords[i].CreatedAt < newRecords[j].CreatedAt
		}
		return newRecords[i].ID < newRecords[j].ID
	})
	if _, err := s.writeNewSegment(newRecords); err != nil {
		return &mderrors.IoError{Op: "write segment", Err: err}
	}
	for _, e := range accepted {
		s.byID[e.ID] = e.Clone()
		s.byDoc[e.DocID] = append(s.byDoc[e.DocID], e.ID)
	}
	return s.maybeCompact()
}

// GetEntries returns entries present, in requested order; missing ids are
// omitted.
func (s *Store) GetEntries(ids []string) []mdcore.StoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]mdcore.StoreEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.byID[id]; ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// HasEntries returns the subset of ids present.
func (s *Store) HasEntries(ids []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// GetAllIDs returns every stored id; order unspecified.
func (s *Store) GetAllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byID))
	for id := range s.byID {
		out = append(out, id)
	}
	return out
}

// FindNewEntries returns metadata for entries not in knownIds.
func (s *Store) FindNewEntries(knownIDs map[string]struct{}) []mdcore.StoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []mdcore.StoreEntry
	for id, e := range s.byID {
		if _, known := knownIDs[id]; !known {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindNewEntriesForDoc is FindNewEntries restricted to one document.
func (s *Store) FindNewEntriesForDoc(knownIDs map[string]struct{}, docID string) []mdcore.StoreEntry {
	s.mu.RLock()
	ids := append([]string(nil), s.byDoc[docID]...)
	s.mu.RUnlock()
	var out []mdcore.StoreEntry
	for _, id := range ids {
		if _, known := knownIDs[id]; known {
			continue
		}
		s.mu.RLock()
		e, ok := s.byID[id]
		s.mu.RUnlock()
		if ok {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindEntries returns metadata filtered by type and half-open [from, until)
// on createdAt.
func (s *Store) FindEntries(filter Filter) []mdcore.StoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []mdcore.StoreEntry
	for _, e := range s.byID {
		if filter.Type != nil && e.EntryType != *filter.Type {
			continue
		}
		if filter.From != nil && e.CreatedAt < *filter.From {
			continue
		}
		if filter.Until != nil && e.CreatedAt >= *filter.Until {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// sortedIndex returns every entry ordered by (createdAt ASC, id ASC). Caller
// holds at least a read lock.
func (s *Store) sortedIndex() []mdcore.StoreEntry {
	out := make([]mdcore.StoreEntry, 0, len(s.byID))
	for _, e := range s.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ScanEntriesSince performs the deterministic cursor scan required by
// §4.1/§8: ordered by (createdAt ASC, id ASC), strictly after cursor.
func (s *Store) ScanEntriesSince(cursor *mdcore.EntryCursor, limit int) ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.sortedIndex()

	start := 0
	if cursor != nil {
		start = sort.Search(len(all), func(i int) bool {
			c := mdcore.EntryCursor{CreatedAt: all[i].CreatedAt, ID: all[i].ID}
			return c.Compare(*cursor) > 0
		})
	}
	if limit <= 0 {
		limit = len(all) - start
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	if end < start {
		end = start
	}

	page := make([]mdcore.StoreEntry, end-start)
	for i := start; i < end; i++ {
		page[i-start] = all[i].Clone()
	}

	result := ScanResult{Entries: page, HasMore: end < len(all)}
	if len(page) > 0 {
		last := page[len(page)-1]
		result.NextCursor = &mdcore.EntryCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	} else if cursor != nil {
		result.NextCursor = cursor
	}
	return result
}

// GetIDBloomSummary returns a bloom-v1 probabilistic id-set summary.
func (s *Store) GetIDBloomSummary() BloomSummary {
	s.mu.RLock()
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	return buildBloomSummary(ids)
}

// ResolveDependencies walks back along dependencyIds from startID, oldest
// first, optionally stopping at the nearest entry of StopAtEntryType (used
// to cap replay at the newest doc_snapshot).
func (s *Store) ResolveDependencies(startID string, opts ResolveOptions) ([]mdcore.StoreEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[string]bool)
	var out []mdcore.StoreEntry

	var walk func(id string, depth int) error
	walk = func(id string, depth int) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		e, ok := s.byID[id]
		if !ok {
			return &mderrors.EntryNotFoundError{ID: id}
		}
		if opts.StopAtEntryType != nil && e.EntryType == *opts.StopAtEntryType && id != startID {
			out = append(out, e.Clone())
			return nil
		}
		if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
			out = append(out, e.Clone())
			return nil
		}
		for _, dep := range e.DependencyIDs {
			if err := walk(dep, depth+1); err != nil {
				return err
			}
		}
		if id != startID || opts.IncludeStart {
			out = append(out, e.Clone())
		}
		return nil
	}
	if err := walk(startID, 0); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// PurgeDocHistory physically removes every entry with docID and any
// content-addressed payload bytes no longer referenced by a surviving
// entry. Breaks append-only semantics by design (right to be forgotten).
func (s *Store) PurgeDocHistory(docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byDoc[docID]
	if len(ids) == 0 {
		return nil
	}
	purgedHashes := make(map[string]bool)
	for _, id := range ids {
		if e, ok := s.byID[id]; ok {
			purgedHashes[e.ContentHash] = true
			delete(s.byID, id)
		}
	}
	delete(s.byDoc, docID)

	// A hash is only safe to delete from disk if no surviving entry still
	// references it (content addressing can be shared across entries).
	for _, e := range s.byID {
		delete(purgedHashes, e.ContentHash)
	}
	for hash := range purgedHashes {
		_ = os.Remove(s.objectPath(hash))
	}

	// Rewrite the metadata index from the surviving set so purged rows
	// don't resurface on the next replay.
	records := make([]metadataRecord, 0, len(s.byID))
	for _, e := range s.byID {
		records = append(records, recordFromEntry(e))
	}
	files, err := s.listSegmentFiles()
	if err != nil {
		return &mderrors.IoError{Op: "list segments", Err: err}
	}
	if _, err := s.writeNewSegment(records); err != nil {
		return &mderrors.IoError{Op: "write segment", Err: err}
	}
	for _, f := range files {
		_ = os.Remove(f)
	}
	return nil
}

// ClearAllLocalData wipes every object and metadata segment.
func (s *Store) ClearAllLocalData() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]mdcore.StoreEntry)
	s.byDoc = make(map[string][]string)
	if err := os.RemoveAll(filepath.Join(s.dir, "objects")); err != nil {
		return &mderrors.IoError{Op: "clear objects", Err: err}
	}
	if err := os.RemoveAll(s.segmentsDir()); err != nil {
		return &mderrors.IoError{Op: "clear segments", Err: err}
	}
	s.compactionStats = CompactionStatus{}
	return nil
}

// AwaitIndexReady blocks (here, returns immediately) until the index has
// finished replaying segments; Open() replays synchronously so the index is
// always ready by the time a Store is returned to a caller.
func (s *Store) AwaitIndexReady() error {
	return nil
}

// GetIndexBuildStatus reports whether the index has finished replaying.
func (s *Store) GetIndexBuildStatus() IndexBuildStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return IndexBuildStatus{Ready: s.ready, EntryCount: len(s.byID)}
}

// GetCompactionStatus reports compaction observability counters.
func (s *Store) GetCompactionStatus() CompactionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compactionStats
}

// GetMaxCreatedAt returns the maximum createdAt across all stored entries,
// used to recover clock/ordering state on restart (engine_impl.go's
// GetMaxTimestamp serves the same purpose for the CRDT clock).
func (s *Store) GetMaxCreatedAt() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	for _, e := range s.byID {
		if e.CreatedAt > max {
			max = e.CreatedAt
		}
	}
	return max
}
