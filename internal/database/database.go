// Package database implements MindooDB's Database per §4.3: the per-tenant
// change engine that owns one entrystore.Store of doc_* entries (plus a
// sibling attachment entry store), materializes documents by replaying and
// merging their crdtdoc CRDT state, and exposes the createDocument/changeDoc/
// deleteDocument/getDocument surface every higher-level component (the
// TenantDirectory included, since it is just an admin-only Database) is
// built on.
//
// Grounded on internal/engine's original changeFn-transaction shape (wrap a
// mutation, sign it, append one entry) generalized from whole-entry CRUD to
// per-field CRDT changes, and on internal/vault/manager.go's "one manager
// owns many named sub-resources with a shared mutex" structure for the
// in-memory per-document cache.
package database

import (
	"crypto/ed25519"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/amaydixit11/mindoodb/internal/cachemanager"
	"github.com/amaydixit11/mindoodb/internal/config"
	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/crdtdoc"
	"github.com/amaydixit11/mindoodb/internal/entrystore"
	"github.com/amaydixit11/mindoodb/internal/history"
	"github.com/amaydixit11/mindoodb/internal/hooks"
	"github.com/amaydixit11/mindoodb/internal/keybag"
	"github.com/amaydixit11/mindoodb/internal/mdcore"
	"github.com/amaydixit11/mindoodb/internal/mderrors"
	"github.com/amaydixit11/mindoodb/internal/mdlog"
)

// TrustChecker is the boundary Database calls to ask whether an entry's
// signer is currently trusted. A Tenant's TenantDirectory implements this;
// the directory's own storage uses directory.AdminOnlyTrust, and a Database
// opened standalone (e.g. tests) may pass AllowAll{}.
type TrustChecker interface {
	IsPublicKeyTrusted(publicKeyPEM string) bool
}

// AllowAll trusts every signer; Open uses it when Options.Trust is nil
// (standalone databases and tests).
type AllowAll struct{}

func (AllowAll) IsPublicKeyTrusted(string) bool { return true }

// docCache is the in-memory materialized state of one document.
type docCache struct {
	doc           *crdtdoc.Doc
	headEntryIDs  map[string]string // crdt change hash -> entry id that recorded it
	meta          mdcore.MindooDoc
	changesSinceSnapshot int
	keyID         string // KeyBag ("doc", keyID) this document's entries are encrypted under
}

// Options configures Open.
type Options struct {
	ID      string // database id, e.g. "directory" or a user-chosen db name
	BaseDir string // tenant-scoped root; entries live under BaseDir/ID

	KeyBag        *keybag.KeyBag
	SigningPriv   ed25519.PrivateKey
	SigningPubPEM string

	Trust        TrustChecker
	Hooks        *hooks.Manager
	History      *history.Store
	CacheManager *cachemanager.Manager

	Config config.Config
	Logger *mdlog.Logger
}

// Database is one tenant-scoped, change-replicated collection of documents.
type Database struct {
	id  string
	dir string

	store           *entrystore.Store
	attachmentStore *entrystore.Store

	keyBag        *keybag.KeyBag
	signingPriv   ed25519.PrivateKey
	signingPubPEM string
	replicaID     string

	trust   TrustChecker
	hooks   *hooks.Manager
	history *history.Store
	cache   *cachemanager.Manager

	cfg config.Config
	log *mdlog.Logger

	mu       sync.Mutex
	docs     map[string]*docCache
	dirty    bool
	changing map[string]bool // docIds with a changeDoc in flight, for the re-entrancy guard
}

// Open opens (creating if absent) the entry stores backing a Database.
func Open(opts Options) (*Database, error) {
	if opts.Trust == nil {
		opts.Trust = AllowAll{}
	}
	log := opts.Logger
	if log == nil {
		log = mdlog.Default
	}
	storeCfg := entrystore.Config{
		MetadataSegmentCompactionMinFiles: opts.Config.MetadataSegmentCompactionMinFiles,
		MetadataSegmentCompactionMaxBytes: opts.Config.MetadataSegmentCompactionMaxBytes,
	}
	dir := filepath.Join(opts.BaseDir, opts.ID)
	store, err := entrystore.Open(dir, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("database %s: open doc store: %w", opts.ID, err)
	}
	attachmentStore, err := entrystore.Open(filepath.Join(dir, "attachments"), storeCfg)
	if err != nil {
		return nil, fmt.Errorf("database %s: open attachment store: %w", opts.ID, err)
	}

	db := &Database{
		id:              opts.ID,
		dir:             dir,
		store:           store,
		attachmentStore: attachmentStore,
		keyBag:          opts.KeyBag,
		signingPriv:     opts.SigningPriv,
		signingPubPEM:   opts.SigningPubPEM,
		replicaID:       cryptocore.SHA256([]byte(opts.SigningPubPEM)),
		trust:           opts.Trust,
		hooks:           opts.Hooks,
		history:         opts.History,
		cache:           opts.CacheManager,
		cfg:             opts.Config,
		log:             log,
		docs:            make(map[string]*docCache),
		changing:        make(map[string]bool),
	}
	if db.cache != nil {
		db.cache.Register(db)
	}
	return db, nil
}

// ID returns this database's id.
func (db *Database) ID() string { return db.id }

// SigningIdentity returns the signing key pair this Database was opened
// with, for callers (the directory) that need to pass it explicitly to
// CreateDocumentWithSigningKey/CreateEncryptedDocument rather than relying
// on CreateDocument's implicit use of it.
func (db *Database) SigningIdentity() (ed25519.PrivateKey, string) {
	return db.signingPriv, db.signingPubPEM
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// CreateDocument creates a new document with the given initial fields,
// signed by this Database's own key and encrypted under a freshly generated
// per-document symmetric key stored in the KeyBag under ("doc", docId). It is
// a thin wrapper over CreateDocumentWithSigningKey using this Database's own
// signing identity, which is all most callers (including the directory when
// its backing Database was opened with the administration key) ever need.
func (db *Database) CreateDocument(fields map[string]any) (string, error) {
	return db.CreateDocumentWithSigningKey(fields, db.signingPriv, db.signingPubPEM)
}

// CreateDocumentWithSigningKey is createDocumentWithSigningKey (§4.3): like
// CreateDocument, but the doc_create entry is signed with signingPriv/
// signingPubPEM instead of this Database's own key. Directory writes use
// this to sign grant/revoke/group/settings documents with the tenant's
// administration key regardless of which key opened the backing Database.
func (db *Database) CreateDocumentWithSigningKey(fields map[string]any, signingPriv ed25519.PrivateKey, signingPubPEM string) (string, error) {
	docID := mdcore.NewDocID()
	key, err := cryptocore.GenerateKey()
	if err != nil {
		return "", err
	}
	db.keyBag.Set("doc", docID, key[:], 0)
	return db.createDocument(fields, docID, docID, key, signingPriv, signingPubPEM)
}

// CreateEncryptedDocument is createEncryptedDocument(keyId) (§4.3): like
// CreateDocumentWithSigningKey, but the document is encrypted under the
// existing KeyBag ("doc", keyID) symmetric key instead of a freshly
// generated per-document one. The directory uses this with
// keyID=="$publicinfos" so grant documents can be decrypted by anyone
// holding that one shared key, without needing access to every individual
// grant document's own key (§4.3/§4.4).
func (db *Database) CreateEncryptedDocument(fields map[string]any, keyID string, signingPriv ed25519.PrivateKey, signingPubPEM string) (string, error) {
	raw := db.keyBag.Get("doc", keyID)
	if raw == nil {
		return "", &mderrors.SymmetricKeyNotFound{Kind: "doc", ID: keyID}
	}
	var key cryptocore.Key
	copy(key[:], raw)
	docID := mdcore.NewDocID()
	return db.createDocument(fields, docID, keyID, key, signingPriv, signingPubPEM)
}

func (db *Database) createDocument(fields map[string]any, docID, keyID string, key cryptocore.Key, signingPriv ed25519.PrivateKey, signingPubPEM string) (string, error) {
	doc := crdtdoc.New(db.replicaID)
	binary, hash, err := doc.Change(func(tx *crdtdoc.Tx) error {
		for k, v := range fields {
			tx.Set(k, v)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	entry, err := db.sealDocEntry(mdcore.EntryDocCreate, docID, keyID, nil, hash, key, binary, signingPriv, signingPubPEM)
	if err != nil {
		return "", err
	}

	db.mu.Lock()
	cache := &docCache{doc: doc, headEntryIDs: map[string]string{hash: entry.ID}, meta: mdcore.MindooDoc{DocID: docID, CreatedAt: entry.CreatedAt}, keyID: keyID}
	db.docs[docID] = cache
	db.mu.Unlock()

	if err := db.ingestLocalEntry(entry, cache); err != nil {
		return "", err
	}
	return docID, nil
}

// sealDocEntry encrypts binary under key, signs the ciphertext with
// signingPriv, and builds the StoreEntry with the doc_* entry id grammar
// (§4.3/§6). keyID is the KeyBag ("doc", keyID) name the entry records as
// DecryptionKeyID, which need not equal docID (directory grants use
// "$publicinfos" instead).
func (db *Database) sealDocEntry(entryType mdcore.EntryType, docID, keyID string, depEntryIDs []string, crdtHash string, key cryptocore.Key, binary []byte, signingPriv ed25519.PrivateKey, signingPubPEM string) (mdcore.StoreEntry, error) {
	encrypted, err := cryptocore.Encrypt(key, binary, nil)
	if err != nil {
		return mdcore.StoreEntry{}, err
	}
	contentHash := cryptocore.SHA256(encrypted)
	sig := cryptocore.Sign(signingPriv, encrypted)
	return mdcore.StoreEntry{
		EntryType:          entryType,
		ID:                 mdcore.DocEntryID(docID, depEntryIDs, crdtHash),
		ContentHash:        contentHash,
		DocID:              docID,
		DependencyIDs:       depEntryIDs,
		CreatedAt:          nowMillis(),
		CreatedByPublicKey: signingPubPEM,
		DecryptionKeyID:    keyID,
		Signature:          sig,
		OriginalSize:       int64(len(binary)),
		EncryptedSize:      int64(len(encrypted)),
		EncryptedData:      encrypted,
	}, nil
}

// ChangeDocument runs mutator against the document's current CRDT state,
// appending one doc_change entry dependent on the heads that preceded it. It
// is a thin wrapper over ChangeDocumentWithSigningKey using this Database's
// own signing identity.
func (db *Database) ChangeDocument(docID string, mutator func(tx *crdtdoc.Tx) error) error {
	return db.ChangeDocumentWithSigningKey(docID, mutator, db.signingPriv, db.signingPubPEM)
}

// ChangeDocumentWithSigningKey is changeDocWithSigningKey (§4.3): like
// ChangeDocument, but the doc_change entry is signed with signingPriv/
// signingPubPEM instead of this Database's own key.
//
// changeDoc is not reentrant for a given docID: a mutator that calls back
// into ChangeDocument/ChangeDocumentWithSigningKey for the same document
// (directly or transitively) fails with InvalidUseError rather than
// deadlocking or corrupting the CRDT head it is mid-update on. Attachment
// writes are the one specified reentrant-safe exception (§4.5), but that
// exemption is implemented by giving them a transaction-scoped entry point
// that never calls back into ChangeDocument: AddAttachmentInTx,
// AppendToAttachmentInTx, and RemoveAttachmentInTx (internal/database/
// attachments.go) operate directly against the mutator's own tx. A mutator
// already running inside ChangeDocument can call those against its tx
// safely; calling the top-level PutAttachment/AppendToAttachment/
// RemoveAttachment forms (which open their own ChangeDocument scope) from
// within another changeDoc callback for the same docID still hits this
// guard and fails, same as any other nested changeDoc call.
func (db *Database) ChangeDocumentWithSigningKey(docID string, mutator func(tx *crdtdoc.Tx) error, signingPriv ed25519.PrivateKey, signingPubPEM string) error {
	if err := db.enterChange(docID); err != nil {
		return err
	}
	defer db.exitChange(docID)

	cache, err := db.loadOrMaterialize(docID)
	if err != nil {
		return err
	}
	if cache.meta.IsDeleted {
		return &mderrors.InvalidUseError{Reason: fmt.Sprintf("document %q is deleted", docID)}
	}

	prevHeads := cache.doc.Heads()
	binary, hash, err := cache.doc.Change(mutator)
	if err != nil {
		return err
	}
	depEntryIDs := headsToEntryIDs(prevHeads, cache.headEntryIDs)

	key := db.keyBag.Get("doc", cache.keyID)
	if key == nil {
		return &mderrors.SymmetricKeyNotFound{Kind: "doc", ID: cache.keyID}
	}
	var keyArr cryptocore.Key
	copy(keyArr[:], key)

	entry, err := db.sealDocEntry(mdcore.EntryDocChange, docID, cache.keyID, depEntryIDs, hash, keyArr, binary, signingPriv, signingPubPEM)
	if err != nil {
		return err
	}
	cache.headEntryIDs[hash] = entry.ID

	if err := db.ingestLocalEntry(entry, cache); err != nil {
		return err
	}

	if cache.changesSinceSnapshot >= db.snapshotThreshold() {
		if err := db.snapshotDocument(docID, cache, signingPriv, signingPubPEM); err != nil {
			db.log.Warnf("database %s: snapshot %s failed: %v", db.id, docID, err)
		}
	}
	return nil
}

// enterChange marks docID as having a changeDoc in flight, failing
// InvalidUseError if one is already running (the re-entrancy guard).
func (db *Database) enterChange(docID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.changing[docID] {
		return &mderrors.InvalidUseError{Reason: fmt.Sprintf("changeDoc is not reentrant: document %q is already being changed", docID)}
	}
	db.changing[docID] = true
	return nil
}

func (db *Database) exitChange(docID string) {
	db.mu.Lock()
	delete(db.changing, docID)
	db.mu.Unlock()
}

// snapshotThreshold picks a snapshot cadence in [SnapshotMinChanges,
// SnapshotMaxChanges]; Database always snapshots at the configured minimum
// rather than letting the interval drift up to the max, favoring faster
// cold-start replay over fewer snapshot entries.
func (db *Database) snapshotThreshold() int {
	if db.cfg.SnapshotMinChanges > 0 {
		return db.cfg.SnapshotMinChanges
	}
	return config.DefaultSnapshotMinChanges
}

// snapshotDocument writes a doc_snapshot entry capturing the document's full
// CRDT state. Replay does not stop at it: causalOrderForDoc still walks the
// whole change history (no ResolveOptions.StopAtEntryType), and later
// changes depend on change entries, not on the snapshot entry.
func (db *Database) snapshotDocument(docID string, cache *docCache, signingPriv ed25519.PrivateKey, signingPubPEM string) error {
	snap, err := cache.doc.Snapshot()
	if err != nil {
		return err
	}
	heads := cache.doc.Heads()
	depEntryIDs := headsToEntryIDs(heads, cache.headEntryIDs)
	hash := cryptocore.SHA256(snap)

	key := db.keyBag.Get("doc", cache.keyID)
	if key == nil {
		return &mderrors.SymmetricKeyNotFound{Kind: "doc", ID: cache.keyID}
	}
	var keyArr cryptocore.Key
	copy(keyArr[:], key)

	entry, err := db.sealDocEntry(mdcore.EntryDocSnapshot, docID, cache.keyID, depEntryIDs, hash, keyArr, snap, signingPriv, signingPubPEM)
	if err != nil {
		return err
	}
	if err := db.store.PutEntries([]mdcore.StoreEntry{entry}); err != nil {
		return err
	}
	cache.changesSinceSnapshot = 0
	return nil
}

// DeleteDocument appends a doc_delete entry, signed with this Database's own
// key. The document's entries remain in the store (append-only) until an
// explicit purge (§4.1's PurgeDocHistory, the GDPR path); DeleteDocument
// alone is a tombstone.
func (db *Database) DeleteDocument(docID string) error {
	return db.DeleteDocumentWithSigningKey(docID, db.signingPriv, db.signingPubPEM)
}

// DeleteDocumentWithSigningKey is deleteDocumentWithSigningKey (§4.3): like
// DeleteDocument, but the doc_delete entry is signed with signingPriv/
// signingPubPEM instead of this Database's own key.
func (db *Database) DeleteDocumentWithSigningKey(docID string, signingPriv ed25519.PrivateKey, signingPubPEM string) error {
	cache, err := db.loadOrMaterialize(docID)
	if err != nil {
		return err
	}
	if cache.meta.IsDeleted {
		return nil
	}
	heads := cache.doc.Heads()
	depEntryIDs := headsToEntryIDs(heads, cache.headEntryIDs)

	key := db.keyBag.Get("doc", cache.keyID)
	if key == nil {
		return &mderrors.SymmetricKeyNotFound{Kind: "doc", ID: cache.keyID}
	}
	var keyArr cryptocore.Key
	copy(keyArr[:], key)

	entry, err := db.sealDocEntry(mdcore.EntryDocDelete, docID, cache.keyID, depEntryIDs, "delete", keyArr, nil, signingPriv, signingPubPEM)
	if err != nil {
		return err
	}
	return db.ingestLocalEntry(entry, cache)
}

// GetDocument returns the current materialized state of docID.
func (db *Database) GetDocument(docID string) (mdcore.MindooDoc, error) {
	cache, err := db.loadOrMaterialize(docID)
	if err != nil {
		return mdcore.MindooDoc{}, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	meta := cache.meta
	meta.CRDTState = cache.doc
	meta.Attachments = decodeAttachments(cache.doc)
	return meta, nil
}

// GetDocumentAtTimestamp is getDocumentAtTimestamp (§4.3): it replays docID's
// causal history through only the entries createdAt <= ts into a fresh CRDT
// document, giving a time-travel read as of ts without disturbing the live
// in-memory cache for docID.
func (db *Database) GetDocumentAtTimestamp(docID string, ts int64) (mdcore.MindooDoc, error) {
	entries, err := db.causalOrderForDoc(docID)
	if err != nil {
		return mdcore.MindooDoc{}, err
	}
	cache := &docCache{doc: crdtdoc.New(db.replicaID), headEntryIDs: make(map[string]string), meta: mdcore.MindooDoc{DocID: docID}}
	seen := false
	for _, e := range entries {
		if e.CreatedAt > ts {
			break
		}
		if cache.keyID == "" {
			cache.keyID = e.DecryptionKeyID
		}
		if err := db.applyStoredEntry(cache, e); err != nil {
			return mdcore.MindooDoc{}, err
		}
		seen = true
	}
	if !seen {
		return mdcore.MindooDoc{}, &mderrors.DocumentNotFoundError{DocID: docID}
	}
	meta := cache.meta
	meta.CRDTState = cache.doc
	meta.Attachments = decodeAttachments(cache.doc)
	return meta, nil
}

// GetDocumentFields returns the live field values of docID (the decoded CRDT
// state), or an error if the document does not exist.
func (db *Database) GetDocumentFields(docID string) (map[string]any, error) {
	cache, err := db.loadOrMaterialize(docID)
	if err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return cache.doc.All(), nil
}

// GetAllDocumentIDs returns every document id this Database has seen,
// including deleted (but not purged) documents.
func (db *Database) GetAllDocumentIDs() []string {
	entries := db.store.FindEntries(entrystore.Filter{})
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if !seen[e.DocID] {
			seen[e.DocID] = true
			out = append(out, e.DocID)
		}
	}
	return out
}

// PurgeDocumentHistory permanently removes every entry for docID from both
// the doc and attachment entry stores (the GDPR path triggered by a
// requestdochistorypurge directory entry, §4.1/§4.3), deletes any retained
// version-history snapshots for it so the supplemented history feature
// doesn't outlive the entries it was derived from, and drops any in-memory
// materialized cache so a future access replays from (now empty) history
// and reports DocumentNotFoundError.
func (db *Database) PurgeDocumentHistory(docID string) error {
	if err := db.store.PurgeDocHistory(docID); err != nil {
		return err
	}
	if err := db.attachmentStore.PurgeDocHistory(docID); err != nil {
		return err
	}
	if db.history != nil {
		if err := db.history.DeleteHistory(docID); err != nil {
			return err
		}
	}
	db.mu.Lock()
	delete(db.docs, docID)
	db.dirty = true
	db.mu.Unlock()
	return nil
}

func headsToEntryIDs(heads []string, index map[string]string) []string {
	out := make([]string, 0, len(heads))
	for _, h := range heads {
		if id, ok := index[h]; ok {
			out = append(out, id)
		}
	}
	return out
}
