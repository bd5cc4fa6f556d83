package database

import (
	"sort"

	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/mdcore"
)

// ProcessChangesSince returns up to limit documents modified strictly after
// cursor, ordered by (lastModified, docId) per §3/§4.3, plus the cursor to
// resume from and whether more remain. Used by a VirtualView or a sync
// client walking this Database's modification order.
func (db *Database) ProcessChangesSince(cursor *mdcore.Cursor, limit int) ([]mdcore.MindooDoc, *mdcore.Cursor, bool) {
	ids := db.GetAllDocumentIDs()
	docs := make([]mdcore.MindooDoc, 0, len(ids))
	for _, id := range ids {
		d, err := db.GetDocument(id)
		if err != nil {
			continue
		}
		if cursor != nil {
			c := mdcore.Cursor{LastModified: d.LastModified, DocID: d.DocID}
			if c.Compare(*cursor) <= 0 {
				continue
			}
		}
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		ci := mdcore.Cursor{LastModified: docs[i].LastModified, DocID: docs[i].DocID}
		cj := mdcore.Cursor{LastModified: docs[j].LastModified, DocID: docs[j].DocID}
		return ci.Less(cj)
	})

	if limit <= 0 || limit > len(docs) {
		limit = len(docs)
	}
	page := docs[:limit]
	var next *mdcore.Cursor
	if len(page) > 0 {
		last := page[len(page)-1]
		next = &mdcore.Cursor{LastModified: last.LastModified, DocID: last.DocID}
	} else if cursor != nil {
		next = cursor
	}
	return page, next, limit < len(docs)
}

// ChangeIterator is the named early-stop form of ProcessChangesSince (§4.3's
// iterateChangesSince): it pages internally, handing the caller one document
// at a time so a walk that only needs the first few matches can stop early.
// Each page is one ProcessChangesSince call, which materializes every
// document in the Database to sort them; stopping early skips later page
// calls, not that work.
type ChangeIterator struct {
	db       *Database
	cursor   *mdcore.Cursor
	pageSize int
	page     []mdcore.MindooDoc
	pageIdx  int
	started  bool
	hasMore  bool
	done     bool
}

// IterateChangesSince returns a ChangeIterator starting strictly after
// cursor, fetching pageSize documents at a time (256 when pageSize <= 0).
func (db *Database) IterateChangesSince(cursor *mdcore.Cursor, pageSize int) *ChangeIterator {
	if pageSize <= 0 {
		pageSize = 256
	}
	return &ChangeIterator{db: db, cursor: cursor, pageSize: pageSize, hasMore: true}
}

// Next returns the next changed document in (lastModified, docId) order, and
// false once the walk is exhausted. Callers that stop calling Next early
// never trigger the remaining page fetches.
func (it *ChangeIterator) Next() (mdcore.MindooDoc, bool) {
	for it.pageIdx >= len(it.page) {
		if it.done || (it.started && !it.hasMore) {
			return mdcore.MindooDoc{}, false
		}
		page, next, more := it.db.ProcessChangesSince(it.cursor, it.pageSize)
		it.page = page
		it.pageIdx = 0
		it.cursor = next
		it.hasMore = more
		it.started = true
		if len(page) == 0 {
			it.done = true
			return mdcore.MindooDoc{}, false
		}
	}
	doc := it.page[it.pageIdx]
	it.pageIdx++
	return doc, true
}

// PullChangesFrom returns every doc_* entry this Database holds that is not
// in remoteKnownIDs — the set a sync peer would send to bring a remote
// replica up to date (§4.3's syncStoreChanges, the pull direction).
func (db *Database) PullChangesFrom(remoteKnownIDs map[string]struct{}) []mdcore.StoreEntry {
	return db.store.FindNewEntries(remoteKnownIDs)
}

// PullAttachmentChangesFrom is PullChangesFrom for the attachment entry
// store.
func (db *Database) PullAttachmentChangesFrom(remoteKnownIDs map[string]struct{}) []mdcore.StoreEntry {
	return db.attachmentStore.FindNewEntries(remoteKnownIDs)
}

// KnownEntryIDs returns every doc_* entry id this Database holds, the set a
// sync peer sends as its "known ids" when requesting PullChangesFrom.
func (db *Database) KnownEntryIDs() map[string]struct{} {
	ids := db.store.GetAllIDs()
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// KnownAttachmentEntryIDs is KnownEntryIDs for the attachment entry store.
func (db *Database) KnownAttachmentEntryIDs() map[string]struct{} {
	ids := db.attachmentStore.GetAllIDs()
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// ApplyRemoteAttachmentEntries ingests attachment_chunk entries received
// from a sync peer. Attachment chunks carry no symmetric-key-based CRDT
// state to merge, only content to verify and store, so the pipeline here
// skips the CRDT-apply step applicable to doc_* entries.
func (db *Database) ApplyRemoteAttachmentEntries(entries []mdcore.StoreEntry) error {
	var verified []mdcore.StoreEntry
	for _, entry := range entries {
		if existing := db.attachmentStore.GetEntries([]string{entry.ID}); len(existing) > 0 {
			continue
		}
		if !mdcore.EntryIDPattern.MatchString(entry.ID) {
			continue
		}
		if cryptocore.SHA256(entry.EncryptedData) != entry.ContentHash {
			continue
		}
		if !db.trust.IsPublicKeyTrusted(entry.CreatedByPublicKey) {
			continue
		}
		pub, err := cryptocore.DecodeSigningPublicKeyPEM(entry.CreatedByPublicKey)
		if err != nil || !cryptocore.Verify(pub, entry.EncryptedData, entry.Signature) {
			continue
		}
		verified = append(verified, entry)
	}
	return db.attachmentStore.PutEntries(verified)
}
