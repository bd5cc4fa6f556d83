package database

import (
	"bytes"
	"io"
	"testing"

	"github.com/amaydixit11/mindoodb/internal/crdtdoc"
	"github.com/amaydixit11/mindoodb/internal/mderrors"
)

func TestPutAndGetAttachmentRoundTrip(t *testing.T) {
	db := newTestDatabase(t, "db1")
	docID, err := db.CreateDocument(map[string]any{"title": "with attachment"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	payload := bytes.Repeat([]byte("mindoodb"), 1000)
	attachmentID, err := db.PutAttachment(docID, "notes.txt", "text/plain", payload)
	if err != nil {
		t.Fatalf("PutAttachment: %v", err)
	}

	got, ref, err := db.GetAttachment(docID, attachmentID)
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("GetAttachment returned %d bytes, want %d", len(got), len(payload))
	}
	if ref.FileName != "notes.txt" || ref.Size != int64(len(payload)) {
		t.Fatalf("unexpected ref: %+v", ref)
	}
}

func TestGetAttachmentRangeDecryptsOnlyOverlappingChunks(t *testing.T) {
	db := newTestDatabase(t, "db1")
	db.cfg.ChunkSize = 16
	docID, err := db.CreateDocument(map[string]any{"title": "chunked"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	payload := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	attachmentID, err := db.PutAttachment(docID, "f.bin", "application/octet-stream", payload)
	if err != nil {
		t.Fatalf("PutAttachment: %v", err)
	}

	got, _, err := db.GetAttachmentRange(docID, attachmentID, 5, 20)
	if err != nil {
		t.Fatalf("GetAttachmentRange: %v", err)
	}
	if !bytes.Equal(got, payload[5:20]) {
		t.Fatalf("GetAttachmentRange = %q, want %q", got, payload[5:20])
	}
}

func TestStreamAttachmentReadsFromOffset(t *testing.T) {
	db := newTestDatabase(t, "db1")
	db.cfg.ChunkSize = 8
	docID, err := db.CreateDocument(map[string]any{"title": "streamed"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	payload := bytes.Repeat([]byte("xy"), 50)
	attachmentID, err := db.PutAttachment(docID, "s.bin", "application/octet-stream", payload)
	if err != nil {
		t.Fatalf("PutAttachment: %v", err)
	}

	stream, _, err := db.StreamAttachment(docID, attachmentID, 10)
	if err != nil {
		t.Fatalf("StreamAttachment: %v", err)
	}
	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload[10:]) {
		t.Fatalf("stream from offset 10 = %d bytes, want %d", len(got), len(payload)-10)
	}
}

func TestAppendToAttachmentExtendsChainInPlace(t *testing.T) {
	db := newTestDatabase(t, "db1")
	docID, err := db.CreateDocument(map[string]any{"title": "appendable"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	attachmentID, err := db.PutAttachment(docID, "a.log", "text/plain", []byte("first"))
	if err != nil {
		t.Fatalf("PutAttachment: %v", err)
	}
	if err := db.AppendToAttachment(docID, attachmentID, []byte("second")); err != nil {
		t.Fatalf("AppendToAttachment: %v", err)
	}

	got, ref, err := db.GetAttachment(docID, attachmentID)
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if !bytes.Equal(got, []byte("firstsecond")) {
		t.Fatalf("GetAttachment = %q, want %q", got, "firstsecond")
	}
	if ref.Size != int64(len("firstsecond")) {
		t.Fatalf("ref.Size = %d, want %d", ref.Size, len("firstsecond"))
	}
}

func TestRemoveAttachmentDropsReferenceButKeepsChunks(t *testing.T) {
	db := newTestDatabase(t, "db1")
	docID, err := db.CreateDocument(map[string]any{"title": "removable"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	attachmentID, err := db.PutAttachment(docID, "gone.txt", "text/plain", []byte("bye"))
	if err != nil {
		t.Fatalf("PutAttachment: %v", err)
	}

	if err := db.RemoveAttachment(docID, attachmentID); err != nil {
		t.Fatalf("RemoveAttachment: %v", err)
	}
	_, _, err = db.GetAttachment(docID, attachmentID)
	if _, ok := err.(*mderrors.EntryNotFoundError); !ok {
		t.Fatalf("GetAttachment should fail with EntryNotFoundError once the reference is removed, got %v (%T)", err, err)
	}

	// Chunks themselves remain in the attachment store until a purge.
	ids := db.attachmentStore.GetAllIDs()
	if len(ids) == 0 {
		t.Fatalf("expected attachment chunks to remain in the store after RemoveAttachment")
	}
}

// TestAttachmentWritesAreReentrantSafe proves §4.3/§4.5's claim: a mutator
// already running inside ChangeDocument can call *InTx attachment helpers
// against its own tx without tripping the per-document reentrancy guard,
// while a nested call to ChangeDocument itself for the same document still
// fails with InvalidUseError.
func TestAttachmentWritesAreReentrantSafe(t *testing.T) {
	db := newTestDatabase(t, "db1")
	docID, err := db.CreateDocument(map[string]any{"title": "host"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	var attachmentID string
	err = db.ChangeDocument(docID, func(tx *crdtdoc.Tx) error {
		tx.Set("title", "host-with-attachment")
		id, err := db.AddAttachmentInTx(tx, docID, "inline.txt", "text/plain", []byte("nested"))
		attachmentID = id
		return err
	})
	if err != nil {
		t.Fatalf("nested AddAttachmentInTx should succeed inside the enclosing changeDoc: %v", err)
	}

	data, _, err := db.GetAttachment(docID, attachmentID)
	if err != nil {
		t.Fatalf("GetAttachment after nested write: %v", err)
	}
	if !bytes.Equal(data, []byte("nested")) {
		t.Fatalf("GetAttachment = %q, want %q", data, "nested")
	}

	err = db.ChangeDocument(docID, func(tx *crdtdoc.Tx) error {
		return db.ChangeDocument(docID, func(inner *crdtdoc.Tx) error {
			inner.Set("title", "double-nested")
			return nil
		})
	})
	if _, ok := err.(*mderrors.InvalidUseError); !ok {
		t.Fatalf("nested ChangeDocument for the same doc should fail with InvalidUseError, got %v (%T)", err, err)
	}
}
