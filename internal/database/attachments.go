package database

import (
	"io"

	"github.com/amaydixit11/mindoodb/internal/crdtdoc"
	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/entrystore"
	"github.com/amaydixit11/mindoodb/internal/mdcore"
	"github.com/amaydixit11/mindoodb/internal/mderrors"
)

// attachmentsField is the CRDT field name MindooDoc.Attachments is derived
// from: attachment references replicate through the same LWW-register CRDT
// as every other document field, while the attachment bytes themselves live
// in the separate, content-addressed attachment entry store (§4.5).
const attachmentsField = "_attachments"

func (db *Database) chunkSize() int {
	if db.cfg.ChunkSize > 0 {
		return db.cfg.ChunkSize
	}
	return 256 * 1024
}

// chunkAttachment encrypts data under key with encryptAttachmentPayload's
// mode=deterministic framing (so identical chunks within one attachment,
// which share its key, store one payload object at the content-address
// layer; each chunk still gets its own entry), chaining new attachment_chunk
// entries off prevEntryID (empty starts a fresh chain). It returns the
// appended entries and the id of the last one, which becomes the document's
// new AttachmentReference.LastChunkID.
func (db *Database) chunkAttachment(docID, attachmentID string, key cryptocore.Key, data []byte, prevEntryID string) ([]mdcore.StoreEntry, string, error) {
	size := db.chunkSize()
	var entries []mdcore.StoreEntry
	for offset := 0; offset < len(data) || (len(data) == 0 && prevEntryID == "" && offset == 0); offset += size {
		end := offset + size
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]

		chunkID := mdcore.NewChunkID()
		encrypted, err := cryptocore.EncryptAttachmentPayload(key, chunk, true)
		if err != nil {
			return nil, "", err
		}
		var deps []string
		if prevEntryID != "" {
			deps = []string{prevEntryID}
		}
		entryID := mdcore.AttachmentChunkEntryID(docID, attachmentID, chunkID)
		entries = append(entries, mdcore.StoreEntry{
			EntryType:          mdcore.EntryAttachmentChunk,
			ID:                 entryID,
			ContentHash:        cryptocore.SHA256(encrypted),
			DocID:              docID,
			DependencyIDs:      deps,
			CreatedAt:          nowMillis(),
			CreatedByPublicKey: db.signingPubPEM,
			DecryptionKeyID:    attachmentID,
			Signature:          cryptocore.Sign(db.signingPriv, encrypted),
			OriginalSize:       int64(len(chunk)),
			EncryptedSize:      int64(len(encrypted)),
			EncryptedData:      encrypted,
		})
		prevEntryID = entryID
		if len(data) == 0 {
			break
		}
	}
	if err := db.attachmentStore.PutEntries(entries); err != nil {
		return nil, "", err
	}
	return entries, prevEntryID, nil
}

// AddAttachmentInTx is addAttachment's transaction-scoped form (§4.5): it
// chunks and encrypts data against the attachment entry store — which takes
// no per-document lock — and appends the resulting AttachmentReference to
// tx directly, rather than opening a new ChangeDocument call of its own.
// This is what makes attachment writes the one reentrant-safe exception
// §4.3 names: a mutator already running inside ChangeDocument(docID, ...)
// can call this against its own tx without tripping enterChange's
// reentrancy guard. PutAttachment is a thin wrapper opening its own
// ChangeDocument scope for ordinary, non-nested callers.
func (db *Database) AddAttachmentInTx(tx *crdtdoc.Tx, docID, fileName, mimeType string, data []byte) (string, error) {
	attachmentID := mdcore.NewAttachmentID()
	key, err := cryptocore.GenerateKey()
	if err != nil {
		return "", err
	}
	db.keyBag.Set("attachment", attachmentID, key[:], 0)

	_, lastEntryID, err := db.chunkAttachment(docID, attachmentID, key, data, "")
	if err != nil {
		return "", err
	}

	ref := mdcore.AttachmentReference{
		AttachmentID:    attachmentID,
		FileName:        fileName,
		MimeType:        mimeType,
		Size:            int64(len(data)),
		LastChunkID:     lastEntryID,
		DecryptionKeyID: attachmentID,
		CreatedAt:       nowMillis(),
		CreatedBy:       db.signingPubPEM,
	}
	existing, _ := tx.Get(attachmentsField)
	refs := append(decodeAttachmentsAny(existing), ref)
	tx.Set(attachmentsField, refs)
	return attachmentID, nil
}

// PutAttachment is addAttachment (§4.5): it opens its own changeDoc scope
// and delegates to AddAttachmentInTx. Not valid to call from within another
// changeDoc callback for the same docID — use AddAttachmentInTx against the
// enclosing tx instead.
func (db *Database) PutAttachment(docID, fileName, mimeType string, data []byte) (string, error) {
	var attachmentID string
	err := db.ChangeDocument(docID, func(tx *crdtdoc.Tx) error {
		id, err := db.AddAttachmentInTx(tx, docID, fileName, mimeType, data)
		if err != nil {
			return err
		}
		attachmentID = id
		return nil
	})
	return attachmentID, err
}

// AddAttachmentStreamInTx is AddAttachmentInTx reading from r in chunkSize
// pieces instead of requiring the whole attachment in memory at once.
func (db *Database) AddAttachmentStreamInTx(tx *crdtdoc.Tx, docID, fileName, mimeType string, r io.Reader) (string, error) {
	attachmentID := mdcore.NewAttachmentID()
	key, err := cryptocore.GenerateKey()
	if err != nil {
		return "", err
	}
	db.keyBag.Set("attachment", attachmentID, key[:], 0)

	size := db.chunkSize()
	buf := make([]byte, size)
	var prevEntryID string
	var total int64
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			_, lastID, err := db.chunkAttachment(docID, attachmentID, key, buf[:n], prevEntryID)
			if err != nil {
				return "", err
			}
			prevEntryID = lastID
			total += int64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return "", &mderrors.IoError{Op: "read attachment stream", Err: readErr}
		}
	}
	if prevEntryID == "" {
		if _, lastID, err := db.chunkAttachment(docID, attachmentID, key, nil, ""); err != nil {
			return "", err
		} else {
			prevEntryID = lastID
		}
	}

	ref := mdcore.AttachmentReference{
		AttachmentID:    attachmentID,
		FileName:        fileName,
		MimeType:        mimeType,
		Size:            total,
		LastChunkID:     prevEntryID,
		DecryptionKeyID: attachmentID,
		CreatedAt:       nowMillis(),
		CreatedBy:       db.signingPubPEM,
	}
	existing, _ := tx.Get(attachmentsField)
	refs := append(decodeAttachmentsAny(existing), ref)
	tx.Set(attachmentsField, refs)
	return attachmentID, nil
}

// PutAttachmentStream is addAttachmentStream (§4.5): like PutAttachment, but
// reads data from r in chunkSize pieces instead of requiring the whole
// attachment in memory at once.
func (db *Database) PutAttachmentStream(docID, fileName, mimeType string, r io.Reader) (string, error) {
	var attachmentID string
	err := db.ChangeDocument(docID, func(tx *crdtdoc.Tx) error {
		id, err := db.AddAttachmentStreamInTx(tx, docID, fileName, mimeType, r)
		if err != nil {
			return err
		}
		attachmentID = id
		return nil
	})
	return attachmentID, err
}

// AppendToAttachmentInTx is appendToAttachment's transaction-scoped form
// (§4.5): it reads attachmentID's current AttachmentReference from tx (not
// from a fresh GetDocument call), chains new chunks onto its existing
// chain, and extends Size/LastChunkID on tx in place.
func (db *Database) AppendToAttachmentInTx(tx *crdtdoc.Tx, docID, attachmentID string, data []byte) error {
	existing, _ := tx.Get(attachmentsField)
	refs := decodeAttachmentsAny(existing)
	idx := -1
	for i := range refs {
		if refs[i].AttachmentID == attachmentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &mderrors.EntryNotFoundError{ID: attachmentID}
	}

	key := db.keyBag.Get("attachment", attachmentID)
	if key == nil {
		return &mderrors.SymmetricKeyNotFound{Kind: "attachment", ID: attachmentID}
	}
	var keyArr cryptocore.Key
	copy(keyArr[:], key)

	_, lastEntryID, err := db.chunkAttachment(docID, attachmentID, keyArr, data, refs[idx].LastChunkID)
	if err != nil {
		return err
	}
	refs[idx].Size += int64(len(data))
	refs[idx].LastChunkID = lastEntryID
	tx.Set(attachmentsField, refs)
	return nil
}

// AppendToAttachment is appendToAttachment (§4.5): it chains new chunks onto
// attachmentID's existing chain and extends its AttachmentReference.Size/
// LastChunkID in place, leaving every previously stored chunk untouched.
func (db *Database) AppendToAttachment(docID, attachmentID string, data []byte) error {
	return db.ChangeDocument(docID, func(tx *crdtdoc.Tx) error {
		return db.AppendToAttachmentInTx(tx, docID, attachmentID, data)
	})
}

// RemoveAttachmentInTx is removeAttachment's transaction-scoped form
// (§4.5): it drops attachmentID's AttachmentReference from tx directly; the
// attachment_chunk entries themselves remain in the append-only attachment
// store (only an explicit PurgeDocumentHistory removes them).
func (db *Database) RemoveAttachmentInTx(tx *crdtdoc.Tx, docID, attachmentID string) error {
	existing, _ := tx.Get(attachmentsField)
	refs := decodeAttachmentsAny(existing)
	found := false
	kept := make([]mdcore.AttachmentReference, 0, len(refs))
	for _, r := range refs {
		if r.AttachmentID == attachmentID {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return &mderrors.EntryNotFoundError{ID: attachmentID}
	}
	tx.Set(attachmentsField, kept)
	return nil
}

// RemoveAttachment is removeAttachment (§4.5): it drops attachmentID's
// AttachmentReference from docID's document; the attachment_chunk entries
// themselves remain in the append-only attachment store (only an explicit
// PurgeDocumentHistory removes them).
func (db *Database) RemoveAttachment(docID, attachmentID string) error {
	return db.ChangeDocument(docID, func(tx *crdtdoc.Tx) error {
		return db.RemoveAttachmentInTx(tx, docID, attachmentID)
	})
}

// GetAttachment reassembles and decrypts the full bytes of one attachment
// belonging to docID.
func (db *Database) GetAttachment(docID, attachmentID string) ([]byte, mdcore.AttachmentReference, error) {
	return db.GetAttachmentRange(docID, attachmentID, 0, -1)
}

// GetAttachmentRange is getAttachmentRange(start,end) (§4.5): it decrypts
// only the chunks overlapping the half-open byte range [start,end) of the
// attachment's plaintext, instead of the whole attachment. end < 0 means
// "through the end of the attachment".
func (db *Database) GetAttachmentRange(docID, attachmentID string, start, end int64) ([]byte, mdcore.AttachmentReference, error) {
	doc, err := db.GetDocument(docID)
	if err != nil {
		return nil, mdcore.AttachmentReference{}, err
	}
	ref, _ := findAttachmentRef(doc, attachmentID)
	if ref == nil {
		return nil, mdcore.AttachmentReference{}, &mderrors.EntryNotFoundError{ID: attachmentID}
	}
	if end < 0 || end > ref.Size {
		end = ref.Size
	}
	if start < 0 {
		start = 0
	}
	if start >= end {
		return nil, *ref, nil
	}

	key := db.keyBag.Get("attachment", attachmentID)
	if key == nil {
		return nil, mdcore.AttachmentReference{}, &mderrors.SymmetricKeyNotFound{Kind: "attachment", ID: attachmentID}
	}
	var keyArr cryptocore.Key
	copy(keyArr[:], key)

	if ref.LastChunkID == "" {
		return nil, *ref, nil
	}
	chain, err := db.attachmentStore.ResolveDependencies(ref.LastChunkID, entrystore.ResolveOptions{IncludeStart: true})
	if err != nil {
		return nil, mdcore.AttachmentReference{}, err
	}

	out := make([]byte, 0, end-start)
	var chunkStart int64
	for _, entry := range chain {
		chunkEnd := chunkStart + entry.OriginalSize
		if chunkEnd <= start || chunkStart >= end {
			chunkStart = chunkEnd
			continue
		}
		plain, err := cryptocore.DecryptAttachmentPayload(keyArr, entry.EncryptedData)
		if err != nil {
			return nil, mdcore.AttachmentReference{}, err
		}
		loStart := int64(0)
		if start > chunkStart {
			loStart = start - chunkStart
		}
		hiEnd := int64(len(plain))
		if end < chunkEnd {
			hiEnd = end - chunkStart
		}
		if loStart < hiEnd {
			out = append(out, plain[loStart:hiEnd]...)
		}
		chunkStart = chunkEnd
	}
	return out, *ref, nil
}

// AttachmentStream is streamAttachment's (§4.5) handle: an io.Reader over
// one attachment's plaintext bytes starting at an arbitrary offset, chunks
// decrypted lazily as Read is called rather than all at once up front.
type AttachmentStream struct {
	db          *Database
	key         cryptocore.Key
	chain       []mdcore.StoreEntry
	chunkIdx    int
	chunkOffset int64 // byte offset within chain[chunkIdx] still to skip (first chunk only)
	buf         []byte
}

// Read implements io.Reader, decrypting one chunk at a time as the buffered
// plaintext from the previous chunk is exhausted.
func (s *AttachmentStream) Read(p []byte) (int, error) {
	for len(s.buf) == 0 {
		if s.chunkIdx >= len(s.chain) {
			return 0, io.EOF
		}
		entry := s.chain[s.chunkIdx]
		s.chunkIdx++
		plain, err := cryptocore.DecryptAttachmentPayload(s.key, entry.EncryptedData)
		if err != nil {
			return 0, err
		}
		if s.chunkOffset > 0 {
			if s.chunkOffset >= int64(len(plain)) {
				s.chunkOffset -= int64(len(plain))
				continue
			}
			plain = plain[s.chunkOffset:]
			s.chunkOffset = 0
		}
		s.buf = plain
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// StreamAttachment is streamAttachment(startOffset?) (§4.5): it returns an
// AttachmentStream positioned at startOffset bytes into attachmentID's
// plaintext, decrypting chunks on demand as the caller reads.
func (db *Database) StreamAttachment(docID, attachmentID string, startOffset int64) (*AttachmentStream, mdcore.AttachmentReference, error) {
	doc, err := db.GetDocument(docID)
	if err != nil {
		return nil, mdcore.AttachmentReference{}, err
	}
	ref, _ := findAttachmentRef(doc, attachmentID)
	if ref == nil {
		return nil, mdcore.AttachmentReference{}, &mderrors.EntryNotFoundError{ID: attachmentID}
	}
	if startOffset < 0 {
		startOffset = 0
	}

	key := db.keyBag.Get("attachment", attachmentID)
	if key == nil {
		return nil, mdcore.AttachmentReference{}, &mderrors.SymmetricKeyNotFound{Kind: "attachment", ID: attachmentID}
	}
	var keyArr cryptocore.Key
	copy(keyArr[:], key)

	var chain []mdcore.StoreEntry
	if ref.LastChunkID != "" {
		chain, err = db.attachmentStore.ResolveDependencies(ref.LastChunkID, entrystore.ResolveOptions{IncludeStart: true})
		if err != nil {
			return nil, mdcore.AttachmentReference{}, err
		}
	}

	var skipped int64
	startIdx := 0
	for startIdx < len(chain) && skipped+chain[startIdx].OriginalSize <= startOffset {
		skipped += chain[startIdx].OriginalSize
		startIdx++
	}

	return &AttachmentStream{
		db:          db,
		key:         keyArr,
		chain:       chain[startIdx:],
		chunkOffset: startOffset - skipped,
	}, *ref, nil
}

// findAttachmentRef returns a copy of doc's AttachmentReference for
// attachmentID and its index, or (nil, -1) if docID has no such attachment.
func findAttachmentRef(doc mdcore.MindooDoc, attachmentID string) (*mdcore.AttachmentReference, int) {
	for i := range doc.Attachments {
		if doc.Attachments[i].AttachmentID == attachmentID {
			ref := doc.Attachments[i]
			return &ref, i
		}
	}
	return nil, -1
}
