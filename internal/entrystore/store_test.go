package entrystore

import (
	"path/filepath"
	"testing"

	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/mdcore"
)

func testEntry(id, docID string, createdAt int64, data []byte) mdcore.StoreEntry {
	return mdcore.StoreEntry{
		EntryType:     mdcore.EntryDocChange,
		ID:            id,
		ContentHash:   cryptocore.SHA256(data),
		DocID:         docID,
		CreatedAt:     createdAt,
		EncryptedData: data,
		OriginalSize:  int64(len(data)),
		EncryptedSize: int64(len(data)),
	}
}

// Scenario A — persistence across restart.
func TestPersistenceAcrossRestart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test-db")
	cfg := Config{MetadataSegmentCompactionMinFiles: 8, MetadataSegmentCompactionMaxBytes: 8 << 20}

	store, err := Open(dir, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e1 := testEntry("id1", "doc1", 1000, []byte{10, 20, 30, 40, 50})
	if err := store.PutEntries([]mdcore.StoreEntry{e1}); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Restart.
	store2, err := Open(dir, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	ids := store2.GetAllIDs()
	found := false
	for _, id := range ids {
		if id == "id1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("getAllIds() = %v, want to contain id1", ids)
	}

	got := store2.GetEntries([]string{"id1"})
	if len(got) != 1 || got[0].DocID != "doc1" {
		t.Fatalf("getEntries([id1]) = %+v, want docId=doc1", got)
	}
}

// Scenario B — cursor scan across restart and append.
func TestCursorScanAcrossRestartAndAppend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test-db")
	cfg := Config{MetadataSegmentCompactionMinFiles: 8, MetadataSegmentCompactionMaxBytes: 8 << 20}

	store, err := Open(dir, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e1 := testEntry("id1", "docA", 1000, []byte("one"))
	e2 := testEntry("id2", "docA", 1001, []byte("two"))
	if err := store.PutEntries([]mdcore.StoreEntry{e1, e2}); err != nil {
		t.Fatalf("put: %v", err)
	}

	res := store.ScanEntriesSince(nil, 1)
	if len(res.Entries) != 1 || res.Entries[0].ID != "id1" {
		t.Fatalf("first scan = %+v, want [id1]", res.Entries)
	}
	if !res.HasMore {
		t.Fatalf("expected hasMore=true after first page")
	}
	cursor := res.NextCursor

	store2, err := Open(dir, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	e3 := testEntry("id3", "docA", 1002, []byte("three"))
	if err := store2.PutEntries([]mdcore.StoreEntry{e3}); err != nil {
		t.Fatalf("put after restart: %v", err)
	}

	res2 := store2.ScanEntriesSince(cursor, 10)
	if len(res2.Entries) != 2 || res2.Entries[0].ID != "id2" || res2.Entries[1].ID != "id3" {
		t.Fatalf("scan after restart = %+v, want [id2, id3]", res2.Entries)
	}
	if res2.HasMore {
		t.Fatalf("expected hasMore=false at end of store")
	}
}

// Scenario C — purge.
func TestPurgeDocHistory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test-db")
	cfg := Config{MetadataSegmentCompactionMinFiles: 8, MetadataSegmentCompactionMaxBytes: 8 << 20}

	store, err := Open(dir, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e1 := testEntry("id1", "docA", 1000, []byte("a1"))
	e2 := testEntry("id2", "docB", 1001, []byte("b1"))
	e3 := testEntry("id3", "docA", 1002, []byte("a2"))
	if err := store.PutEntries([]mdcore.StoreEntry{e1, e2, e3}); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := store.PurgeDocHistory("docA"); err != nil {
		t.Fatalf("purge: %v", err)
	}

	res := store.ScanEntriesSince(nil, 10)
	if len(res.Entries) != 1 || res.Entries[0].ID != "id2" {
		t.Fatalf("scan after purge = %+v, want [id2]", res.Entries)
	}
}

func TestPutEntriesIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test-db")
	cfg := Config{MetadataSegmentCompactionMinFiles: 8, MetadataSegmentCompactionMaxBytes: 8 << 20}
	store, err := Open(dir, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e := testEntry("id1", "doc1", 1000, []byte("x"))
	if err := store.PutEntries([]mdcore.StoreEntry{e}); err != nil {
		t.Fatalf("put 1: %v", err)
	}
	if err := store.PutEntries([]mdcore.StoreEntry{e}); err != nil {
		t.Fatalf("put 2: %v", err)
	}
	if got := len(store.GetAllIDs()); got != 1 {
		t.Fatalf("getAllIds() len = %d, want 1 (idempotent put)", got)
	}
}

func TestBloomSummaryNoFalseNegatives(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test-db")
	cfg := Config{MetadataSegmentCompactionMinFiles: 8, MetadataSegmentCompactionMaxBytes: 8 << 20}
	store, err := Open(dir, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var entries []mdcore.StoreEntry
	for i := 0; i < 50; i++ {
		id := "id" + string(rune('a'+i%26)) + string(rune('0'+i%10))
		entries = append(entries, testEntry(id, "doc", int64(1000+i), []byte{byte(i)}))
	}
	if err := store.PutEntries(entries); err != nil {
		t.Fatalf("put: %v", err)
	}
	summary := store.GetIDBloomSummary()
	for _, e := range entries {
		if !summary.MayContain(e.ID) {
			t.Fatalf("bloom summary false negative for %q", e.ID)
		}
	}
}

func TestResolveDependenciesOldestFirst(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test-db")
	cfg := Config{MetadataSegmentCompactionMinFiles: 8, MetadataSegmentCompactionMaxBytes: 8 << 20}
	store, err := Open(dir, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e1 := testEntry("id1", "doc1", 1000, []byte("1"))
	e1.EntryType = mdcore.EntryDocCreate
	e2 := testEntry("id2", "doc1", 1001, []byte("2"))
	e2.DependencyIDs = []string{"id1"}
	e3 := testEntry("id3", "doc1", 1002, []byte("3"))
	e3.DependencyIDs = []string{"id2"}
	if err := store.PutEntries([]mdcore.StoreEntry{e1, e2, e3}); err != nil {
		t.Fatalf("put: %v", err)
	}

	chain, err := store.ResolveDependencies("id3", ResolveOptions{IncludeStart: true})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(chain) != 3 || chain[0].ID != "id1" || chain[2].ID != "id3" {
		t.Fatalf("resolveDependencies = %+v, want oldest-first [id1,id2,id3]", chain)
	}
}
