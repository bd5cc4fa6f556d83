package mdcore

// MindooDocPayload is a typed JSON-like value: a tagged union over
// null/bool/number/string/array/object, per §9's design note. It is used for
// document fields that must round-trip through canonical-JSON signing
// (internal/docsign) without losing type information.
type MindooDocPayload = any

// MindooDoc is the materialized view of one document: CRDT state plus the
// bookkeeping the modification-order index and attachment API need. The CRDT
// state itself is opaque to everything except internal/crdtdoc.
type MindooDoc struct {
	DocID       string
	LastModified int64 // max(entry.createdAt) across applied entries, §3
	CreatedAt    int64
	IsDeleted    bool
	Attachments  []AttachmentReference

	// CRDTState is the opaque per-document CRDT handle (internal/crdtdoc.Doc).
	// It is stored as `any` here to avoid an import cycle between mdcore and
	// crdtdoc; the engine package that owns both casts it back.
	CRDTState any
}

// AttachmentReference describes one attachment attached to a document.
// Chunks form a linear dependency chain ending at LastChunkID (§3).
type AttachmentReference struct {
	AttachmentID    string `json:"attachmentId"`
	FileName        string `json:"fileName"`
	MimeType        string `json:"mimeType"`
	Size            int64  `json:"size"`
	LastChunkID     string `json:"lastChunkId"`
	DecryptionKeyID string `json:"decryptionKeyId"`
	CreatedAt       int64  `json:"createdAt"`
	CreatedBy       string `json:"createdBy"`
}
