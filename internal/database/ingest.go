package database

import (
	"encoding/json"
	"sort"

	"github.com/amaydixit11/mindoodb/internal/crdtdoc"
	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/entrystore"
	"github.com/amaydixit11/mindoodb/internal/hooks"
	"github.com/amaydixit11/mindoodb/internal/mdcore"
	"github.com/amaydixit11/mindoodb/internal/mderrors"
)

// loadOrMaterialize returns the in-memory docCache for docID, replaying it
// from the entry store on first access.
func (db *Database) loadOrMaterialize(docID string) (*docCache, error) {
	db.mu.Lock()
	if c, ok := db.docs[docID]; ok {
		db.mu.Unlock()
		return c, nil
	}
	db.mu.Unlock()

	entries, err := db.causalOrderForDoc(docID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &mderrors.DocumentNotFoundError{DocID: docID}
	}

	cache := &docCache{doc: crdtdoc.New(db.replicaID), headEntryIDs: make(map[string]string), meta: mdcore.MindooDoc{DocID: docID}, keyID: entries[0].DecryptionKeyID}
	for _, e := range entries {
		if err := db.applyStoredEntry(cache, e); err != nil {
			return nil, err
		}
	}

	db.mu.Lock()
	if existing, ok := db.docs[docID]; ok {
		db.mu.Unlock()
		return existing, nil
	}
	db.docs[docID] = cache
	db.mu.Unlock()
	return cache, nil
}

// causalOrderForDoc returns every doc_* entry for docID, oldest dependency
// first, by walking back from every un-superseded frontier entry
// (internal/entrystore.Store.ResolveDependencies already returns each walk
// sorted by (createdAt, id); the union across frontiers is merged the same
// way since a change's createdAt always exceeds its dependencies').
func (db *Database) causalOrderForDoc(docID string) ([]mdcore.StoreEntry, error) {
	all := db.store.FindNewEntriesForDoc(nil, docID)
	if len(all) == 0 {
		return nil, nil
	}

	referenced := make(map[string]bool)
	byID := make(map[string]mdcore.StoreEntry, len(all))
	for _, e := range all {
		byID[e.ID] = e
		for _, dep := range e.DependencyIDs {
			referenced[dep] = true
		}
	}

	merged := make(map[string]mdcore.StoreEntry)
	for _, e := range all {
		if referenced[e.ID] {
			continue // not a frontier entry
		}
		chain, err := db.store.ResolveDependencies(e.ID, entrystore.ResolveOptions{IncludeStart: true})
		if err != nil {
			return nil, err
		}
		for _, c := range chain {
			merged[c.ID] = c
		}
	}

	out := make([]mdcore.StoreEntry, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// applyStoredEntry decrypts and applies an entry already durable in the
// store (local replay or trusted remote sync) without re-verifying its
// signature — remote entries are verified once, in ApplyRemoteEntries, and
// local entries (sealed with this Database's own key by ingestLocalEntry)
// are not verified at all; nothing is re-verified on replay.
func (db *Database) applyStoredEntry(cache *docCache, entry mdcore.StoreEntry) error {
	switch entry.EntryType {
	case mdcore.EntryDocDelete:
		cache.meta.IsDeleted = true
	case mdcore.EntryDocSnapshot:
		plain, err := db.decryptDocEntry(entry)
		if err != nil {
			return err
		}
		if err := cache.doc.Restore(plain); err != nil {
			return err
		}
		cache.changesSinceSnapshot = 0
	case mdcore.EntryDocCreate, mdcore.EntryDocChange:
		plain, err := db.decryptDocEntry(entry)
		if err != nil {
			return err
		}
		hash, err := crdtdoc.HashChange(plain)
		if err != nil {
			return err
		}
		if err := cache.doc.ApplyChange(plain); err != nil {
			return err
		}
		cache.headEntryIDs[hash] = entry.ID
		cache.changesSinceSnapshot++
	}
	if cache.meta.CreatedAt == 0 || entry.CreatedAt < cache.meta.CreatedAt {
		cache.meta.CreatedAt = entry.CreatedAt
	}
	if entry.CreatedAt > cache.meta.LastModified {
		cache.meta.LastModified = entry.CreatedAt
	}
	return nil
}

func (db *Database) decryptDocEntry(entry mdcore.StoreEntry) ([]byte, error) {
	key := db.keyBag.Get("doc", entry.DecryptionKeyID)
	if key == nil {
		return nil, &mderrors.SymmetricKeyNotFound{Kind: "doc", ID: entry.DecryptionKeyID}
	}
	var keyArr cryptocore.Key
	copy(keyArr[:], key)
	return cryptocore.Decrypt(keyArr, entry.EncryptedData, nil)
}

// ingestLocalEntry durably stores an entry this Database itself just sealed
// (no signature/trust check needed, it is our own key), applies it to cache,
// marks the cache dirty, records history, and fires hooks.
func (db *Database) ingestLocalEntry(entry mdcore.StoreEntry, cache *docCache) error {
	if err := db.store.PutEntries([]mdcore.StoreEntry{entry}); err != nil {
		return err
	}
	db.mu.Lock()
	err := db.applyStoredEntry(cache, entry)
	db.dirty = true
	db.mu.Unlock()
	if err != nil {
		return err
	}
	db.afterIngest(entry, cache)
	return nil
}

// ApplyRemoteEntries is the entry ingest pipeline's full form (§4.3): each
// entry is checked for a duplicate id, verified for content-hash integrity,
// verified for a valid signature, verified for signer trust, decrypted, and
// applied to its document's CRDT state, in causal (createdAt, id) order.
// Entries whose dependencies are not yet known are buffered and retried once
// the rest of the batch lands, bounded so a permanently missing dependency
// cannot grow the buffer without limit (§7's "missing-dependency buffering"
// design decision, documented in DESIGN.md).
func (db *Database) ApplyRemoteEntries(entries []mdcore.StoreEntry) error {
	const maxBufferedRounds = 5

	pending := append([]mdcore.StoreEntry(nil), entries...)
	for round := 0; round < maxBufferedRounds && len(pending) > 0; round++ {
		sort.Slice(pending, func(i, j int) bool {
			if pending[i].CreatedAt != pending[j].CreatedAt {
				return pending[i].CreatedAt < pending[j].CreatedAt
			}
			return pending[i].ID < pending[j].ID
		})

		var deferred []mdcore.StoreEntry
		for _, entry := range pending {
			known := db.store.HasEntries(entry.DependencyIDs)
			if len(known) != len(entry.DependencyIDs) {
				deferred = append(deferred, entry)
				continue
			}
			if err := db.ingestRemoteEntry(entry); err != nil {
				switch err.(type) {
				case *mderrors.CorruptionError, *mderrors.PublicKeyNotTrusted, *mderrors.SignatureInvalid:
					db.log.Warnf("database %s: dropping entry %s: %v", db.id, entry.ID, err)
					continue
				}
				return err
			}
		}
		if len(deferred) == len(pending) {
			break // no progress possible this round
		}
		pending = deferred
	}
	if len(pending) > 0 {
		db.log.Warnf("database %s: %d entries still missing dependencies after %d rounds, dropped", db.id, len(pending), maxBufferedRounds)
	}
	return nil
}

func (db *Database) ingestRemoteEntry(entry mdcore.StoreEntry) error {
	if existing := db.store.GetEntries([]string{entry.ID}); len(existing) > 0 {
		return nil // already applied
	}
	if !mdcore.EntryIDPattern.MatchString(entry.ID) {
		return &mderrors.CorruptionError{ID: entry.ID}
	}
	if cryptocore.SHA256(entry.EncryptedData) != entry.ContentHash {
		return &mderrors.CorruptionError{ID: entry.ID}
	}
	pub, err := cryptocore.DecodeSigningPublicKeyPEM(entry.CreatedByPublicKey)
	if err != nil || !cryptocore.Verify(pub, entry.EncryptedData, entry.Signature) {
		return &mderrors.SignatureInvalid{ID: entry.ID}
	}
	if !db.trust.IsPublicKeyTrusted(entry.CreatedByPublicKey) {
		return &mderrors.PublicKeyNotTrusted{PublicKey: entry.CreatedByPublicKey}
	}
	if err := db.store.PutEntries([]mdcore.StoreEntry{entry}); err != nil {
		return err
	}

	db.mu.Lock()
	cache, ok := db.docs[entry.DocID]
	db.mu.Unlock()
	if !ok {
		// Document not yet materialized locally; applyStoredEntry will run
		// lazily against the full causal history next time it's requested.
		return nil
	}
	db.mu.Lock()
	err = db.applyStoredEntry(cache, entry)
	db.dirty = true
	db.mu.Unlock()
	if err != nil {
		return err
	}
	db.afterIngest(entry, cache)
	return nil
}

// afterIngest runs the side effects common to both local and remote ingest:
// cache-manager dirty marking, history snapshots, and webhook/subscription
// dispatch.
func (db *Database) afterIngest(entry mdcore.StoreEntry, cache *docCache) {
	if db.cache != nil {
		db.cache.MarkDirty()
	}
	if db.history != nil && (entry.EntryType == mdcore.EntryDocCreate || entry.EntryType == mdcore.EntryDocChange) {
		if snap, err := cache.doc.Snapshot(); err == nil {
			_ = db.history.SaveSnapshot(entry.DocID, snap, entry.CreatedAt, entry.CreatedByPublicKey)
		}
	}
	if db.hooks != nil {
		db.hooks.Trigger(hooks.NewEntryEvent(db.id, entry))
	}
}

// decodeAttachments reads the "_attachments" CRDT field back into typed
// form.
func decodeAttachments(doc *crdtdoc.Doc) []mdcore.AttachmentReference {
	raw, _ := doc.Get(attachmentsField)
	return decodeAttachmentsAny(raw)
}

// decodeAttachmentsAny round-trips a CRDT field value (plain Go any, as
// produced by json.Unmarshal into interface{} — or, for a same-process
// local write, the []mdcore.AttachmentReference literal itself) into typed
// form.
func decodeAttachmentsAny(raw any) []mdcore.AttachmentReference {
	if raw == nil {
		return nil
	}
	if refs, ok := raw.([]mdcore.AttachmentReference); ok {
		return append([]mdcore.AttachmentReference(nil), refs...)
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var refs []mdcore.AttachmentReference
	if err := json.Unmarshal(buf, &refs); err != nil {
		return nil
	}
	return refs
}
