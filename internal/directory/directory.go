// Package directory implements MindooDB's TenantDirectory (§4.4): a
// distinguished, admin-only Database holding grant/revoke, group, and
// settings documents, and the unified cache built from them that drives
// every other Database's trust decisions.
//
// Grounded on internal/vault/manager.go's JSON-registry-of-named-entities
// pattern for the settings caches, on internal/acl/store.go's
// permission-check call shape for validatePublicSigningKey, and on
// internal/schema/validator.go (kept, repointed at the four directory
// document shapes) for admission-time validation.
package directory

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/amaydixit11/mindoodb/internal/crdtdoc"
	"github.com/amaydixit11/mindoodb/internal/database"
	"github.com/amaydixit11/mindoodb/internal/mdcore"
	"github.com/amaydixit11/mindoodb/internal/mderrors"
	"github.com/amaydixit11/mindoodb/internal/mdlog"
	"github.com/amaydixit11/mindoodb/internal/schema"
)

// Document type tags stored in the "_type" field of every directory
// document, since mdcore.MindooDoc carries no entry-kind metadata of its
// own beyond its CRDT fields.
const (
	TypeGrantAccess            = "grantaccess"
	TypeRevokeAccess           = "revokeaccess"
	TypeGroup                  = "group"
	TypeRequestDocHistoryPurge = "requestdochistorypurge"
	TypeTenantSettings         = "tenantsettings"
	TypeDBSettings             = "dbsettings"
)

// PublicInfosKey is the KeyBag (doc, keyId) every grantaccess document is
// encrypted/signed under, so a server can validate signing keys without
// holding full tenant access (§4.2/§4.4).
const PublicInfosKey = "$publicinfos"

// AdminOnlyTrust trusts exactly one signing key: the tenant's administration
// key. It is the TrustChecker the directory's own Database is opened with,
// standing in for the spec's "adminOnlyDb" flag.
type AdminOnlyTrust struct {
	AdminPublicKeyPEM string
}

func (t AdminOnlyTrust) IsPublicKeyTrusted(pub string) bool { return pub == t.AdminPublicKeyPEM }

type groupEntry struct {
	DocID         string
	MembersHashes map[string]bool
}

// Directory is the unified cache plus write API over a directory Database.
type Directory struct {
	db                 *database.Database
	adminSigningPubPEM string
	registry           *schema.Registry
	log                *mdlog.Logger

	mu                    sync.RWMutex
	additionalTrustedKeys map[string]bool
	lastCursor            *mdcore.Cursor
	trustedKeysCache      map[string]bool
	grantDocIdToPublicKey map[string]string
	groupsCache           map[string]groupEntry
	tenantSettingsCache   map[string]any
	dbSettingsCache       map[string]map[string]any

	cache *cacheDB
}

// New wraps db (which MUST have been opened with AdminOnlyTrust{adminPubPEM}
// as its TrustChecker) as a Directory.
func New(db *database.Database, adminSigningPubPEM string, additionalTrustedKeys map[string]bool, log *mdlog.Logger) *Directory {
	if log == nil {
		log = mdlog.Default
	}
	registry := schema.NewRegistry()
	_ = registry.RegisterFromJSON(TypeGrantAccess, "grantaccess", schema.GrantAccessSchema)
	_ = registry.RegisterFromJSON(TypeRevokeAccess, "revokeaccess", schema.RevokeAccessSchema)
	_ = registry.RegisterFromJSON(TypeGroup, "group", schema.GroupSchema)
	_ = registry.RegisterFromJSON(TypeRequestDocHistoryPurge, "requestdochistorypurge", schema.RequestDocHistoryPurgeSchema)

	if additionalTrustedKeys == nil {
		additionalTrustedKeys = make(map[string]bool)
	}
	return &Directory{
		db:                    db,
		adminSigningPubPEM:    adminSigningPubPEM,
		registry:              registry,
		log:                   log,
		additionalTrustedKeys: additionalTrustedKeys,
		trustedKeysCache:      make(map[string]bool),
		grantDocIdToPublicKey: make(map[string]string),
		groupsCache:           make(map[string]groupEntry),
		tenantSettingsCache:   make(map[string]any),
		dbSettingsCache:       make(map[string]map[string]any),
	}
}

// NewWithSQLiteCache wraps db exactly as New does, additionally opening (or
// creating) a SQLite file at cacheDBPath to accelerate cold-start
// IsPublicKeyTrusted/ResolveGroupsForUser calls across process restarts.
// Any rows already on disk are loaded as the starting point for the unified
// cache, replacing the usual empty map; updateUnifiedCache then advances
// from the persisted cursor instead of cursor-null (§8's persistence
// acceleration, newly added on top of §4.4's in-memory-only contract).
func NewWithSQLiteCache(db *database.Database, adminSigningPubPEM string, additionalTrustedKeys map[string]bool, log *mdlog.Logger, cacheDBPath string) (*Directory, error) {
	d := New(db, adminSigningPubPEM, additionalTrustedKeys, log)

	cdb, err := openCacheDB(cacheDBPath)
	if err != nil {
		return nil, err
	}
	trustedKeys, grantDocIdToPublicKey, groups, cursor, err := cdb.loadAll()
	if err != nil {
		cdb.Close()
		return nil, err
	}

	d.mu.Lock()
	d.cache = cdb
	d.trustedKeysCache = trustedKeys
	d.grantDocIdToPublicKey = grantDocIdToPublicKey
	d.groupsCache = groups
	d.lastCursor = cursor
	d.mu.Unlock()

	return d, nil
}

// Close releases the optional SQLite acceleration file, if one was opened
// via NewWithSQLiteCache. It is a no-op otherwise.
func (d *Directory) Close() error {
	d.mu.Lock()
	cdb := d.cache
	d.mu.Unlock()
	if cdb == nil {
		return nil
	}
	return cdb.Close()
}

// SetAdditionalTrustedKey records an out-of-band trust/revoke decision (e.g.
// a server identity) that always overrides the unified cache, per
// validatePublicSigningKey step 2.
func (d *Directory) SetAdditionalTrustedKey(publicKeyPEM string, trusted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.additionalTrustedKeys[publicKeyPEM] = trusted
}

// IsPublicKeyTrusted implements database.TrustChecker (§4.4's
// validatePublicSigningKey): the administration key is always trusted, an
// out-of-band decision in additionalTrustedKeys always wins next, otherwise
// the unified cache (advanced first) is consulted.
func (d *Directory) IsPublicKeyTrusted(publicKeyPEM string) bool {
	if publicKeyPEM == d.adminSigningPubPEM {
		return true
	}
	d.mu.RLock()
	if v, ok := d.additionalTrustedKeys[publicKeyPEM]; ok {
		d.mu.RUnlock()
		return v
	}
	d.mu.RUnlock()

	d.updateUnifiedCache()

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.trustedKeysCache[publicKeyPEM]
}

// invalidate resets unifiedCacheLastCursor to null, forcing the next consult
// to rebuild every cache from scratch (§4.4).
func (d *Directory) invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastCursor = nil
	d.trustedKeysCache = make(map[string]bool)
	d.grantDocIdToPublicKey = make(map[string]string)
	d.groupsCache = make(map[string]groupEntry)
	d.tenantSettingsCache = make(map[string]any)
	d.dbSettingsCache = make(map[string]map[string]any)
	if d.cache != nil {
		if err := d.cache.reset(); err != nil {
			d.log.Warnf("directory: cachedb reset failed: %v", err)
		}
	}
}

// updateUnifiedCache advances from lastCursor (cursor-strict, in
// modification order) applying the processing rules for each directory
// document kind.
func (d *Directory) updateUnifiedCache() {
	d.mu.Lock()
	cursor := d.lastCursor
	d.mu.Unlock()

	for {
		docs, next, more := d.db.ProcessChangesSince(cursor, 256)
		if len(docs) == 0 {
			cursor = next
			break
		}
		d.mu.Lock()
		for _, doc := range docs {
			d.applyDocLocked(doc)
		}
		d.mu.Unlock()
		cursor = next
		if !more {
			break
		}
	}

	d.mu.Lock()
	d.lastCursor = cursor
	cdb := d.cache
	d.mu.Unlock()

	if cdb != nil {
		if err := cdb.saveCursor(cursor); err != nil {
			d.log.Warnf("directory: cachedb save cursor failed: %v", err)
		}
	}
}

// applyDocLocked applies one directory document to the unified cache.
// Callers must hold d.mu.
func (d *Directory) applyDocLocked(doc mdcore.MindooDoc) {
	fields := fieldsOf(doc)
	typ, _ := fields["_type"].(string)

	switch typ {
	case TypeGrantAccess:
		pub, _ := fields["userSigningPublicKey"].(string)
		if pub == "" {
			return
		}
		// Last processed grant/revoke for a given key wins, in modification
		// order — this reactivates a previously revoked key exactly as
		// §8's trust-monotonicity scenario requires.
		d.trustedKeysCache[pub] = true
		d.grantDocIdToPublicKey[doc.DocID] = pub
		if d.cache != nil {
			if err := d.cache.saveTrustedKey(pub, true, doc.DocID); err != nil {
				d.log.Warnf("directory: cachedb save trusted key failed: %v", err)
			}
		}

	case TypeRevokeAccess:
		revokeDocID, _ := fields["revokeDocId"].(string)
		pub, ok := d.grantDocIdToPublicKey[revokeDocID]
		if !ok {
			d.log.Warnf("directory: revoke %q references unknown grant %q, deferred to full rebuild", doc.DocID, revokeDocID)
			return
		}
		d.trustedKeysCache[pub] = false
		if d.cache != nil {
			if err := d.cache.saveTrustedKey(pub, false, ""); err != nil {
				d.log.Warnf("directory: cachedb save trusted key failed: %v", err)
			}
		}

	case TypeGroup:
		name, _ := fields["groupName"].(string)
		if name == "" {
			return
		}
		name = strings.ToLower(name)
		if deleted, _ := fields["_deleted"].(bool); deleted {
			delete(d.groupsCache, name)
			if d.cache != nil {
				if err := d.cache.deleteGroup(name); err != nil {
					d.log.Warnf("directory: cachedb delete group failed: %v", err)
				}
			}
			return
		}
		entry, ok := d.groupsCache[name]
		if !ok {
			entry = groupEntry{DocID: doc.DocID, MembersHashes: make(map[string]bool)}
		}
		for _, raw := range toStringSlice(fields["members_hashes"]) {
			entry.MembersHashes[raw] = true
		}
		d.groupsCache[name] = entry
		if d.cache != nil {
			if err := d.cache.saveGroup(name, entry.DocID, entry.MembersHashes); err != nil {
				d.log.Warnf("directory: cachedb save group failed: %v", err)
			}
		}

	case TypeTenantSettings:
		d.tenantSettingsCache = fields

	case TypeDBSettings:
		dbID, _ := fields["dbid"].(string)
		if dbID == "" {
			return
		}
		d.dbSettingsCache[dbID] = fields
	}
}

// ResolveGroupsForUser computes the set of group names username (directly or
// transitively, via nested group membership) belongs to, per §4.4's
// resolveGroupsForUser: hash the username and its wildcard variants, find
// direct groups, then walk upward hashing each found group's lowercased name
// to find its parent groups, guarding against membership cycles.
func (d *Directory) ResolveGroupsForUser(username string) []string {
	d.updateUnifiedCache()

	d.mu.RLock()
	defer d.mu.RUnlock()

	wanted := make(map[string]bool)
	for _, v := range usernameVariants(username) {
		wanted[mdcore.HashUsername(v)] = true
	}

	var queue []string
	for name, g := range d.groupsCache {
		if groupMatchesAny(g, wanted) {
			queue = append(queue, name)
		}
	}

	visited := make(map[string]bool)
	var result []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			d.log.Warnf("directory: group membership cycle detected at %q, skipping", name)
			continue
		}
		visited[name] = true
		result = append(result, name)

		nameHash := mdcore.HashUsername(name)
		for parentName, g := range d.groupsCache {
			if visited[parentName] {
				continue
			}
			if g.MembersHashes[nameHash] {
				queue = append(queue, parentName)
			}
		}
	}
	return result
}

func groupMatchesAny(g groupEntry, wanted map[string]bool) bool {
	for h := range g.MembersHashes {
		if wanted[h] {
			return true
		}
	}
	return false
}

// usernameVariants returns username plus its directory-style wildcard forms
// (§4.4: "*/OU=…/O=…" and "*"), letting a group grant access to every member
// of an organizational unit without enumerating individual users.
func usernameVariants(username string) []string {
	variants := []string{username}
	if idx := strings.Index(username, "/"); idx >= 0 {
		variants = append(variants, "*"+username[idx:])
	}
	variants = append(variants, "*")
	return variants
}

// RegisterUser admits a new grantaccess document for username. A
// case-insensitive username already registered with different keys fails
// DuplicateUserError; registering identical keys again is an idempotent
// no-op while their grant is unrevoked (§4.4). A grant that a revokeaccess
// document points at is not reused: a fresh grant is appended instead.
func (d *Directory) RegisterUser(username, usernameEncryptedB64, signingPubPEM, encryptionPubPEM string) (string, error) {
	hash := mdcore.HashUsername(username)
	ids := d.db.GetAllDocumentIDs()

	revokedGrants := make(map[string]bool)
	for _, docID := range ids {
		fields, err := d.db.GetDocumentFields(docID)
		if err == nil && fields["_type"] == TypeRevokeAccess {
			if grantID, ok := fields["revokeDocId"].(string); ok {
				revokedGrants[grantID] = true
			}
		}
	}

	for _, docID := range ids {
		fields, err := d.db.GetDocumentFields(docID)
		if err != nil {
			continue
		}
		if fields["_type"] != TypeGrantAccess || fields["username_hash"] != hash {
			continue
		}
		if fields["userSigningPublicKey"] == signingPubPEM && fields["userEncryptionPublicKey"] == encryptionPubPEM {
			if revokedGrants[docID] {
				continue // revoked grant: append a fresh one below
			}
			return docID, nil // idempotent re-registration
		}
		return "", &mderrors.DuplicateUserError{Username: username}
	}

	return d.createTypedDocument(TypeGrantAccess, map[string]any{
		"username_hash":           hash,
		"username_encrypted":      usernameEncryptedB64,
		"userSigningPublicKey":    signingPubPEM,
		"userEncryptionPublicKey": encryptionPubPEM,
	})
}

// RevokeUser appends a revokeaccess document pointing at grantDocID.
func (d *Directory) RevokeUser(username, usernameEncryptedB64, grantDocID string, requestDataWipe bool) (string, error) {
	return d.createTypedDocument(TypeRevokeAccess, map[string]any{
		"username_hash":      mdcore.HashUsername(username),
		"username_encrypted": usernameEncryptedB64,
		"revokeDocId":        grantDocID,
		"requestDataWipe":    requestDataWipe,
	})
}

// UpsertGroup creates or updates a group/group document. memberHashes are
// SHA-256(lower(username)) hex digests (or group-name hashes, for nested
// groups); memberHashesEncrypted is the matching RSA-OAEP-encrypted roster
// for humans who can decrypt it.
func (d *Directory) UpsertGroup(groupName string, memberHashes, memberHashesEncrypted []string) (string, error) {
	return d.createTypedDocument(TypeGroup, map[string]any{
		"groupName":         strings.ToLower(groupName),
		"members_hashes":    memberHashes,
		"members_encrypted": memberHashesEncrypted,
	})
}

// RequestDocHistoryPurge appends a requestdochistorypurge document. The
// owning Tenant (which has every Database open) is responsible for noticing
// this entry and calling Database.PurgeDocumentHistory.
func (d *Directory) RequestDocHistoryPurge(dbID, docID, reason string, requestedAt int64) (string, error) {
	fields := map[string]any{
		"dbId":        dbID,
		"docId":       docID,
		"requestedAt": requestedAt,
	}
	if reason != "" {
		fields["reason"] = reason
	}
	return d.createTypedDocument(TypeRequestDocHistoryPurge, fields)
}

// PendingPurgeRequests returns every requestdochistorypurge document not yet
// marked processed, for the Tenant's purge-dispatch loop to consume.
func (d *Directory) PendingPurgeRequests() []map[string]any {
	var out []map[string]any
	for _, docID := range d.db.GetAllDocumentIDs() {
		fields, err := d.db.GetDocumentFields(docID)
		if err != nil || fields["_type"] != TypeRequestDocHistoryPurge {
			continue
		}
		if processed, _ := fields["_processed"].(bool); processed {
			continue
		}
		fields["_docId"] = docID
		out = append(out, fields)
	}
	return out
}

// MarkPurgeRequestProcessed flags a requestdochistorypurge document so
// PendingPurgeRequests stops returning it.
func (d *Directory) MarkPurgeRequestProcessed(requestDocID string) error {
	return d.db.ChangeDocument(requestDocID, func(tx *crdtdoc.Tx) error {
		tx.Set("_processed", true)
		return nil
	})
}

// SetTenantSettings overwrites the tenantsettings document (last-write-wins,
// §4.4).
func (d *Directory) SetTenantSettings(fields map[string]any) (string, error) {
	return d.createTypedDocument(TypeTenantSettings, fields)
}

// TenantSettings returns the current cached tenantsettings fields.
func (d *Directory) TenantSettings() map[string]any {
	d.updateUnifiedCache()
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.tenantSettingsCache))
	for k, v := range d.tenantSettingsCache {
		out[k] = v
	}
	return out
}

// SetDBSettings overwrites the dbsettings(dbid=…) document for dbID.
func (d *Directory) SetDBSettings(dbID string, fields map[string]any) (string, error) {
	cp := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		cp[k] = v
	}
	cp["dbid"] = dbID
	return d.createTypedDocument(TypeDBSettings, cp)
}

// DBSettings returns the current cached dbsettings fields for dbID.
func (d *Directory) DBSettings(dbID string) map[string]any {
	d.updateUnifiedCache()
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.dbSettingsCache[dbID]))
	for k, v := range d.dbSettingsCache[dbID] {
		out[k] = v
	}
	return out
}

// createTypedDocument validates fields against docType's registered schema
// and writes it as a directory document, always signed with this
// Directory's own backing Database's signing key (createDocumentWithSigningKey,
// §4.3) — the caller (Tenant.OpenDirectory or the CLI's admin-mode open)
// is responsible for having opened that Database with the administration
// key, since AdminOnlyTrust rejects anything else on ingest. grantaccess
// documents are the one type keyed under PublicInfosKey instead of a fresh
// per-document key (§4.3/§4.4), so a server holding only $publicinfos can
// validate a signing key's trust without full tenant access.
func (d *Directory) createTypedDocument(docType string, fields map[string]any) (string, error) {
	cp := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		cp[k] = v
	}
	cp["_type"] = docType

	payload, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("directory: marshal %s document: %w", docType, err)
	}
	if result := d.registry.Validate(docType, payload); !result.Valid {
		return "", fmt.Errorf("directory: %s document failed schema validation: %v", docType, result.Errors)
	}

	signingPriv, signingPubPEM := d.db.SigningIdentity()
	var docID string
	if docType == TypeGrantAccess {
		docID, err = d.db.CreateEncryptedDocument(cp, PublicInfosKey, signingPriv, signingPubPEM)
	} else {
		docID, err = d.db.CreateDocumentWithSigningKey(cp, signingPriv, signingPubPEM)
	}
	if err != nil {
		return "", err
	}
	d.invalidate()
	return docID, nil
}

func fieldsOf(doc mdcore.MindooDoc) map[string]any {
	type fieldReader interface{ All() map[string]any }
	if r, ok := doc.CRDTState.(fieldReader); ok {
		return r.All()
	}
	return nil
}

func toStringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
