// Package mdcore holds the entity types shared by every MindooDB component:
// the StoreEntry wire record, documents, attachment references, and cursors.
// Grounded on internal/core/entry.go's Entry type, generalized to the
// five-field entryType taxonomy and wire shape required by §3/§6.
package mdcore

// EntryType enumerates the kinds of StoreEntry records an EntryStore holds.
type EntryType string

const (
	EntryDocCreate       EntryType = "doc_create"
	EntryDocChange       EntryType = "doc_change"
	EntryDocSnapshot     EntryType = "doc_snapshot"
	EntryDocDelete       EntryType = "doc_delete"
	EntryAttachmentChunk EntryType = "attachment_chunk"
)

// StoreEntry is the immutable, append-only unit of storage. Once durable it
// is never mutated; only EntryStore.purgeDocHistory may physically remove it.
type StoreEntry struct {
	EntryType EntryType `json:"entryType"`

	ID            string   `json:"id"`
	ContentHash   string   `json:"contentHash"`
	DocID         string   `json:"docId"`
	DependencyIDs []string `json:"dependencyIds"`

	CreatedAt          int64  `json:"createdAt"` // millis
	CreatedByPublicKey string `json:"createdByPublicKey"` // SPKI/PEM Ed25519
	DecryptionKeyID    string `json:"decryptionKeyId"`

	Signature []byte `json:"signature"` // 64-byte Ed25519 signature over EncryptedData

	OriginalSize  int64 `json:"originalSize"`
	EncryptedSize int64 `json:"encryptedSize"`

	EncryptedData []byte `json:"encryptedData"`
}

// Clone returns a deep copy so callers can mutate slices without aliasing
// the stored record (mirrors internal/core/entry.go's Clone).
func (e StoreEntry) Clone() StoreEntry {
	c := e
	if e.DependencyIDs != nil {
		c.DependencyIDs = append([]string(nil), e.DependencyIDs...)
	}
	if e.Signature != nil {
		c.Signature = append([]byte(nil), e.Signature...)
	}
	if e.EncryptedData != nil {
		c.EncryptedData = append([]byte(nil), e.EncryptedData...)
	}
	return c
}

// IsDocEntry reports whether the entry belongs to the "_d_" id family.
func (t EntryType) IsDocEntry() bool {
	return t == EntryDocCreate || t == EntryDocChange || t == EntryDocSnapshot || t == EntryDocDelete
}
