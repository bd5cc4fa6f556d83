package tenant

import (
	"encoding/base64"
	"sync"

	"github.com/amaydixit11/mindoodb/internal/cachemanager"
	"github.com/amaydixit11/mindoodb/internal/config"
	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/database"
	"github.com/amaydixit11/mindoodb/internal/directory"
	"github.com/amaydixit11/mindoodb/internal/history"
	"github.com/amaydixit11/mindoodb/internal/hooks"
	"github.com/amaydixit11/mindoodb/internal/keybag"
	"github.com/amaydixit11/mindoodb/internal/mderrors"
	"github.com/amaydixit11/mindoodb/internal/mdlog"
)

// DirectoryDatabaseID is the reserved Database id that always resolves to
// the TenantDirectory's own storage (§4.8's "forces adminOnlyDb=true when
// id=='directory'").
const DirectoryDatabaseID = "directory"

// Options configures OpenTenant.
type Options struct {
	TenantID string
	BaseDir  string

	AdminSigningPublicKeyPEM    string
	AdminEncryptionPublicKeyPEM string

	User   *Identity
	KeyBag *keybag.KeyBag

	// AdditionalTrustedKeys overrides the unified cache's trust decision for
	// specific keys (e.g. server identities), per §4.4 step 2.
	AdditionalTrustedKeys map[string]bool

	Config       config.Config
	Logger       *mdlog.Logger
	Hooks        *hooks.Manager
	History      *history.Store
	CacheManager *cachemanager.Manager
}

// Tenant owns one user's view of one tenant: its administration keys,
// signed-in user, KeyBag, and every Database (directory included) the user
// has opened so far.
type Tenant struct {
	id      string
	baseDir string

	adminSigningPubPEM string
	adminEncPubPEM     string

	user   *Identity
	keyBag *keybag.KeyBag

	additionalTrustedKeys map[string]bool

	cfg     config.Config
	log     *mdlog.Logger
	hooks   *hooks.Manager
	history *history.Store
	cache   *cachemanager.Manager

	mu        sync.Mutex
	directory *directory.Directory
	dbs       map[string]*database.Database
}

// OpenTenant asserts the KeyBag is ready (holds (tenant, tenantId) and
// (doc, "$publicinfos")), rejects a user signing in with the administration
// key, and returns an opened Tenant (§4.8).
func OpenTenant(opts Options) (*Tenant, error) {
	if !opts.KeyBag.Has("tenant", opts.TenantID) {
		return nil, &mderrors.MissingKeyError{Kind: "tenant", ID: opts.TenantID}
	}
	if !opts.KeyBag.Has("doc", directory.PublicInfosKey) {
		return nil, &mderrors.MissingKeyError{Kind: "doc", ID: directory.PublicInfosKey}
	}
	if opts.User != nil && opts.User.SigningPublicKeyPEM == opts.AdminSigningPublicKeyPEM {
		return nil, &mderrors.InvalidUseError{Reason: "a user may not sign in with the tenant's administration signing key"}
	}

	log := opts.Logger
	if log == nil {
		log = mdlog.Default
	}

	return &Tenant{
		id:                    opts.TenantID,
		baseDir:               opts.BaseDir,
		adminSigningPubPEM:    opts.AdminSigningPublicKeyPEM,
		adminEncPubPEM:        opts.AdminEncryptionPublicKeyPEM,
		user:                  opts.User,
		keyBag:                opts.KeyBag,
		additionalTrustedKeys: opts.AdditionalTrustedKeys,
		cfg:                   opts.Config,
		log:                   log,
		hooks:                 opts.Hooks,
		history:               opts.History,
		cache:                 opts.CacheManager,
		dbs:                   make(map[string]*database.Database),
	}, nil
}

// ID returns the tenant id.
func (t *Tenant) ID() string { return t.id }

// User returns the signed-in user's identity.
func (t *Tenant) User() *Identity { return t.user }

// OpenDirectory returns the singleton TenantDirectory, opening its backing
// Database (adminOnlyDb=true, trusting only the administration key) on
// first call.
func (t *Tenant) OpenDirectory() (*directory.Directory, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.directory != nil {
		return t.directory, nil
	}

	db, err := database.Open(database.Options{
		ID:            DirectoryDatabaseID,
		BaseDir:       t.baseDir,
		KeyBag:        t.keyBag,
		SigningPriv:   t.user.SigningPrivateKey,
		SigningPubPEM: t.user.SigningPublicKeyPEM,
		Trust:         directory.AdminOnlyTrust{AdminPublicKeyPEM: t.adminSigningPubPEM},
		Hooks:         t.hooks,
		History:       t.history,
		CacheManager:  t.cache,
		Config:        t.cfg,
		Logger:        t.log,
	})
	if err != nil {
		return nil, err
	}
	t.dbs[DirectoryDatabaseID] = db
	t.directory = directory.New(db, t.adminSigningPubPEM, t.additionalTrustedKeys, t.log)
	return t.directory, nil
}

// OpenDB opens (or returns the cached handle for) the Database identified by
// id, trusting whatever the directory's unified cache currently trusts. id
// == "directory" is redirected to OpenDirectory's own Database.
func (t *Tenant) OpenDB(id string) (*database.Database, error) {
	if id == DirectoryDatabaseID {
		dir, err := t.OpenDirectory()
		if err != nil {
			return nil, err
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.dbs[DirectoryDatabaseID], dirErrIfNil(dir)
	}

	t.mu.Lock()
	if db, ok := t.dbs[id]; ok {
		t.mu.Unlock()
		return db, nil
	}
	t.mu.Unlock()

	dir, err := t.OpenDirectory()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(database.Options{
		ID:            id,
		BaseDir:       t.baseDir,
		KeyBag:        t.keyBag,
		SigningPriv:   t.user.SigningPrivateKey,
		SigningPubPEM: t.user.SigningPublicKeyPEM,
		Trust:         dir,
		Hooks:         t.hooks,
		History:       t.history,
		CacheManager:  t.cache,
		Config:        t.cfg,
		Logger:        t.log,
	})
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.dbs[id] = db
	t.mu.Unlock()
	return db, nil
}

func dirErrIfNil(dir *directory.Directory) error {
	if dir == nil {
		return &mderrors.InvalidUseError{Reason: "directory not opened"}
	}
	return nil
}

// ProcessPendingPurgeRequests dispatches every unprocessed
// requestdochistorypurge document in the directory to
// Database.PurgeDocumentHistory on the named database, marking each request
// processed once applied (§4.1/§4.3's purge failure-semantics entry).
func (t *Tenant) ProcessPendingPurgeRequests() error {
	dir, err := t.OpenDirectory()
	if err != nil {
		return err
	}
	for _, req := range dir.PendingPurgeRequests() {
		dbID, _ := req["dbId"].(string)
		docID, _ := req["docId"].(string)
		requestDocID, _ := req["_docId"].(string)
		if dbID == "" || docID == "" || requestDocID == "" {
			continue
		}
		db, err := t.OpenDB(dbID)
		if err != nil {
			t.log.Warnf("tenant %s: purge request %s: open db %s: %v", t.id, requestDocID, dbID, err)
			continue
		}
		if err := db.PurgeDocumentHistory(docID); err != nil {
			t.log.Warnf("tenant %s: purge request %s: purge %s/%s: %v", t.id, requestDocID, dbID, docID, err)
			continue
		}
		if err := dir.MarkPurgeRequestProcessed(requestDocID); err != nil {
			t.log.Warnf("tenant %s: purge request %s: mark processed: %v", t.id, requestDocID, err)
		}
	}
	return nil
}

// JoinRequestVersion is the MindooURI payload version for JoinRequest.
const JoinRequestVersion = 1

// JoinResponseVersion is the MindooURI payload version for JoinResponse.
const JoinResponseVersion = 1

// JoinRequest is what a prospective user sends the admin out of band (e.g.
// rendered as an mdb://join-request/ URI) to ask for tenant access.
type JoinRequest struct {
	V                      int    `json:"v"`
	Username               string `json:"username"`
	SigningPublicKeyPEM    string `json:"signingPublicKeyPem"`
	EncryptionPublicKeyPEM string `json:"encryptionPublicKeyPem"`
}

// NewJoinRequest builds a JoinRequest carrying the current MindooURI
// payload version, ready for mindoouri.Encode.
func NewJoinRequest(username, signingPubPEM, encPubPEM string) JoinRequest {
	return JoinRequest{
		V:                      JoinRequestVersion,
		Username:               username,
		SigningPublicKeyPEM:    signingPubPEM,
		EncryptionPublicKeyPEM: encPubPEM,
	}
}

// JoinResponse is what ApproveJoinRequest returns: the tenant key and the
// directory's $publicinfos key, both re-encrypted under a one-time share
// password the new user will use to unlock them.
type JoinResponse struct {
	V                        int                              `json:"v"`
	TenantID                 string                           `json:"tenantId"`
	AdminSigningPublicKeyPEM string                           `json:"adminSigningPublicKeyPem"`
	AdminEncPublicKeyPEM     string                           `json:"adminEncPublicKeyPem"`
	TenantKey                *cryptocore.EncryptedPrivateKey `json:"tenantKey"`
	PublicInfosKey           *cryptocore.EncryptedPrivateKey `json:"publicInfosKey"`
}

// ApproveJoinRequest registers req.Username in the directory (RSA-OAEP
// encrypting the username under the admin encryption key for
// username_encrypted), then exports the tenant's (tenant,tenantId) and
// (doc,"$publicinfos") keys under sharePassword, returning the JoinResponse
// a new device uses to materialize its own KeyBag (§4.8).
func (t *Tenant) ApproveJoinRequest(req JoinRequest, sharePassword []byte) (*JoinResponse, error) {
	dir, err := t.OpenDirectory()
	if err != nil {
		return nil, err
	}

	adminEncPub, err := cryptocore.DecodeEncryptionPublicKeyPEM(t.adminEncPubPEM)
	if err != nil {
		return nil, err
	}
	usernameEncrypted, err := cryptocore.HybridEncrypt(adminEncPub, []byte(req.Username))
	if err != nil {
		return nil, err
	}

	usernameEncryptedB64 := base64.StdEncoding.EncodeToString(usernameEncrypted)
	if _, err := dir.RegisterUser(req.Username, usernameEncryptedB64, req.SigningPublicKeyPEM, req.EncryptionPublicKeyPEM); err != nil {
		return nil, err
	}

	tenantKey, err := t.keyBag.EncryptAndExportKey("tenant", t.id, sharePassword)
	if err != nil {
		return nil, err
	}
	publicInfosKey, err := t.keyBag.EncryptAndExportKey("doc", directory.PublicInfosKey, sharePassword)
	if err != nil {
		return nil, err
	}

	return &JoinResponse{
		V:                        JoinResponseVersion,
		TenantID:                 t.id,
		AdminSigningPublicKeyPEM: t.adminSigningPubPEM,
		AdminEncPublicKeyPEM:     t.adminEncPubPEM,
		TenantKey:                tenantKey,
		PublicInfosKey:           publicInfosKey,
	}, nil
}

// PublishToServer and ConnectToServer are named by §4.8 but out of scope per
// the original spec's Non-goals (no network sync transport); they exist as
// the seam a future server-sync component would implement against.
func (t *Tenant) PublishToServer(serverURL string) error {
	return &mderrors.NotSupportedError{Op: "publishToServer"}
}

func (t *Tenant) ConnectToServer(serverURL string) error {
	return &mderrors.NotSupportedError{Op: "connectToServer"}
}
