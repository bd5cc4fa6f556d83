package database

import (
	"database/sql"
	"testing"

	"github.com/amaydixit11/mindoodb/internal/config"
	"github.com/amaydixit11/mindoodb/internal/crdtdoc"
	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/history"
	"github.com/amaydixit11/mindoodb/internal/keybag"

	_ "github.com/mattn/go-sqlite3"
)

func newTestDatabase(t *testing.T, id string) *Database {
	t.Helper()
	pub, priv, err := cryptocore.GenerateSigningKeyPair()
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}
	pubPEM, err := cryptocore.EncodeSigningPublicKeyPEM(pub)
	if err != nil {
		t.Fatalf("encode signing pub: %v", err)
	}
	kb := keybag.New("", 60000)
	db, err := Open(Options{
		ID:            id,
		BaseDir:       t.TempDir(),
		KeyBag:        kb,
		SigningPriv:   priv,
		SigningPubPEM: pubPEM,
		Config:        config.Default(""),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return db
}

func TestCreateAndGetDocument(t *testing.T) {
	db := newTestDatabase(t, "db1")
	docID, err := db.CreateDocument(map[string]any{"title": "hello", "count": float64(1)})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	doc, err := db.GetDocument(docID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	fields, err := db.GetDocumentFields(docID)
	if err != nil {
		t.Fatalf("GetDocumentFields: %v", err)
	}
	if fields["title"] != "hello" {
		t.Fatalf("title = %v, want hello", fields["title"])
	}
	if doc.IsDeleted {
		t.Fatal("new document should not be deleted")
	}
}

func TestChangeDocumentAppliesField(t *testing.T) {
	db := newTestDatabase(t, "db1")
	docID, err := db.CreateDocument(map[string]any{"title": "v1"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if err := db.ChangeDocument(docID, func(tx *crdtdoc.Tx) error {
		tx.Set("title", "v2")
		return nil
	}); err != nil {
		t.Fatalf("ChangeDocument: %v", err)
	}
	fields, err := db.GetDocumentFields(docID)
	if err != nil {
		t.Fatalf("GetDocumentFields: %v", err)
	}
	if fields["title"] != "v2" {
		t.Fatalf("title = %v, want v2", fields["title"])
	}
}

func TestDeleteDocumentMarksDeleted(t *testing.T) {
	db := newTestDatabase(t, "db1")
	docID, err := db.CreateDocument(map[string]any{"title": "x"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if err := db.DeleteDocument(docID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	doc, err := db.GetDocument(docID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if !doc.IsDeleted {
		t.Fatal("expected document to be marked deleted")
	}
	if err := db.ChangeDocument(docID, func(tx *crdtdoc.Tx) error { return nil }); err == nil {
		t.Fatal("expected changing a deleted document to fail")
	}
}

func TestMaterializeAfterReopen(t *testing.T) {
	pub, priv, _ := cryptocore.GenerateSigningKeyPair()
	pubPEM, _ := cryptocore.EncodeSigningPublicKeyPEM(pub)
	dir := t.TempDir()
	kb := keybag.New("", 60000)

	db1, err := Open(Options{ID: "db1", BaseDir: dir, KeyBag: kb, SigningPriv: priv, SigningPubPEM: pubPEM, Config: config.Default("")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	docID, err := db1.CreateDocument(map[string]any{"title": "persisted"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	db2, err := Open(Options{ID: "db1", BaseDir: dir, KeyBag: kb, SigningPriv: priv, SigningPubPEM: pubPEM, Config: config.Default("")})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	fields, err := db2.GetDocumentFields(docID)
	if err != nil {
		t.Fatalf("GetDocumentFields after reopen: %v", err)
	}
	if fields["title"] != "persisted" {
		t.Fatalf("title = %v, want persisted", fields["title"])
	}
}

func TestSyncPullPushBetweenDatabases(t *testing.T) {
	pub, priv, _ := cryptocore.GenerateSigningKeyPair()
	pubPEM, _ := cryptocore.EncodeSigningPublicKeyPEM(pub)

	kb1 := keybag.New("", 60000)
	db1, err := Open(Options{ID: "db1", BaseDir: t.TempDir(), KeyBag: kb1, SigningPriv: priv, SigningPubPEM: pubPEM, Config: config.Default("")})
	if err != nil {
		t.Fatalf("Open db1: %v", err)
	}
	docID, err := db1.CreateDocument(map[string]any{"title": "synced"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	kb2 := keybag.New("", 60000)
	// db2 shares the signing identity (same user) and gets a copy of every
	// key in db1's KeyBag before it is opened, mirroring a second device that
	// already holds the decryption key when it pulls changes.
	for _, kind := range kb1.ListKeys() {
		db2KeyBagCopy(kb1, kb2, kind[0], kind[1])
	}
	db2, err := Open(Options{ID: "db1", BaseDir: t.TempDir(), KeyBag: kb2, SigningPriv: priv, SigningPubPEM: pubPEM, Config: config.Default("")})
	if err != nil {
		t.Fatalf("Open db2: %v", err)
	}

	entries := db1.PullChangesFrom(db2.KnownEntryIDs())
	if len(entries) != 1 {
		t.Fatalf("expected 1 new entry to sync, got %d", len(entries))
	}
	if err := db2.ApplyRemoteEntries(entries); err != nil {
		t.Fatalf("ApplyRemoteEntries: %v", err)
	}

	fields, err := db2.GetDocumentFields(docID)
	if err != nil {
		t.Fatalf("GetDocumentFields on db2: %v", err)
	}
	if fields["title"] != "synced" {
		t.Fatalf("title = %v, want synced", fields["title"])
	}
}

func db2KeyBagCopy(src, dst *keybag.KeyBag, kind, id string) {
	for _, v := range src.GetAll(kind, id) {
		dst.Set(kind, id, v.Bytes, v.CreatedAt)
	}
}

// TestPurgeDocumentHistoryAlsoDeletesVersionHistory verifies §4.1's
// PurgeDocHistory GDPR contract extends to the supplemented version-history
// feature: a purge must not leave CRDT-state snapshots behind describing a
// document whose base entry log was just erased.
func TestPurgeDocumentHistoryAlsoDeletesVersionHistory(t *testing.T) {
	pub, priv, err := cryptocore.GenerateSigningKeyPair()
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}
	pubPEM, err := cryptocore.EncodeSigningPublicKeyPEM(pub)
	if err != nil {
		t.Fatalf("encode signing pub: %v", err)
	}
	sqlDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite3: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	hist, err := history.NewStore(sqlDB, 0)
	if err != nil {
		t.Fatalf("history.NewStore: %v", err)
	}

	kb := keybag.New("", 60000)
	db, err := Open(Options{
		ID:            "db1",
		BaseDir:       t.TempDir(),
		KeyBag:        kb,
		SigningPriv:   priv,
		SigningPubPEM: pubPEM,
		Config:        config.Default(""),
		History:       hist,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	docID, err := db.CreateDocument(map[string]any{"title": "to be forgotten"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if err := db.ChangeDocument(docID, func(tx *crdtdoc.Tx) error {
		tx.Set("title", "updated")
		return nil
	}); err != nil {
		t.Fatalf("ChangeDocument: %v", err)
	}

	snapshots, err := hist.GetHistory(docID)
	if err != nil {
		t.Fatalf("GetHistory before purge: %v", err)
	}
	if len(snapshots) == 0 {
		t.Fatalf("expected version history to be recorded before purge")
	}

	if err := db.PurgeDocumentHistory(docID); err != nil {
		t.Fatalf("PurgeDocumentHistory: %v", err)
	}

	snapshots, err = hist.GetHistory(docID)
	if err != nil {
		t.Fatalf("GetHistory after purge: %v", err)
	}
	if len(snapshots) != 0 {
		t.Fatalf("expected version history to be deleted by the purge, got %d snapshots", len(snapshots))
	}
	if _, err := db.GetDocument(docID); err == nil {
		t.Fatalf("expected GetDocument to fail after purge")
	}
}

// TestApplyRemoteEntriesDropsCorruptEntryButKeepsProcessingBatch verifies
// §4.3's ingest pipeline step 2/7 behavior: a single corrupt entry in a
// batch must be dropped with a warning, not abort the rest of the batch
// (spec.md's "Corrupt entry ... drop with warning; do not stop sync").
func TestApplyRemoteEntriesDropsCorruptEntryButKeepsProcessingBatch(t *testing.T) {
	pub, priv, _ := cryptocore.GenerateSigningKeyPair()
	pubPEM, _ := cryptocore.EncodeSigningPublicKeyPEM(pub)

	kb1 := keybag.New("", 60000)
	db1, err := Open(Options{ID: "db1", BaseDir: t.TempDir(), KeyBag: kb1, SigningPriv: priv, SigningPubPEM: pubPEM, Config: config.Default("")})
	if err != nil {
		t.Fatalf("Open db1: %v", err)
	}
	badDocID, err := db1.CreateDocument(map[string]any{"title": "corrupted"})
	if err != nil {
		t.Fatalf("CreateDocument bad: %v", err)
	}
	goodDocID, err := db1.CreateDocument(map[string]any{"title": "intact"})
	if err != nil {
		t.Fatalf("CreateDocument good: %v", err)
	}

	kb2 := keybag.New("", 60000)
	for _, kind := range kb1.ListKeys() {
		db2KeyBagCopy(kb1, kb2, kind[0], kind[1])
	}
	db2, err := Open(Options{ID: "db1", BaseDir: t.TempDir(), KeyBag: kb2, SigningPriv: priv, SigningPubPEM: pubPEM, Config: config.Default("")})
	if err != nil {
		t.Fatalf("Open db2: %v", err)
	}

	entries := db1.PullChangesFrom(db2.KnownEntryIDs())
	if len(entries) != 2 {
		t.Fatalf("expected 2 new entries to sync, got %d", len(entries))
	}
	for i := range entries {
		if entries[i].DocID == badDocID {
			// Tamper the payload without updating contentHash, simulating
			// bit-rot or a malicious peer.
			entries[i].EncryptedData = append(append([]byte(nil), entries[i].EncryptedData...), 0xFF)
		}
	}

	if err := db2.ApplyRemoteEntries(entries); err != nil {
		t.Fatalf("ApplyRemoteEntries should drop the corrupt entry, not fail the batch: %v", err)
	}

	if _, err := db2.GetDocumentFields(goodDocID); err != nil {
		t.Fatalf("GetDocumentFields on good doc should have applied despite the corrupt sibling entry: %v", err)
	}
	if _, err := db2.GetDocumentFields(badDocID); err == nil {
		t.Fatalf("corrupted doc should not have been applied")
	}
}
