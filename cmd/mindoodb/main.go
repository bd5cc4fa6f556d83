// Command mindoodb is the MindooDB CLI: the flag-based subcommand dispatch
// and term.ReadPassword unlock flow named by SPEC_FULL.md §12 as the
// out-of-scope-but-exercised-in-tree surface around the core library.
//
// Grounded directly on cmd/vaultd/main.go's subcommand switch (os.Args[1],
// a printUsage help block, readPassword via golang.org/x/term) and its
// init/status family, adapted to MindooDB's tenant/directory/database model
// in place of vaultd's single local engine.
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/amaydixit11/mindoodb/internal/cachemanager"
	"github.com/amaydixit11/mindoodb/internal/cachestore"
	"github.com/amaydixit11/mindoodb/internal/config"
	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/database"
	"github.com/amaydixit11/mindoodb/internal/directory"
	"github.com/amaydixit11/mindoodb/internal/hooks"
	"github.com/amaydixit11/mindoodb/internal/keybag"
	"github.com/amaydixit11/mindoodb/internal/mdcore"
	"github.com/amaydixit11/mindoodb/internal/mderrors"
	"github.com/amaydixit11/mindoodb/internal/mdlog"
	"github.com/amaydixit11/mindoodb/internal/mindoouri"
	"github.com/amaydixit11/mindoodb/internal/query"
	"github.com/amaydixit11/mindoodb/internal/tenant"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = cmdInit(args)
	case "whoami":
		err = cmdWhoami(args)
	case "join-request":
		err = cmdJoinRequest(args)
	case "approve":
		err = cmdApprove(args)
	case "join":
		err = cmdJoin(args)
	case "adduser":
		err = cmdAddUser(args)
	case "revokeuser":
		err = cmdRevokeUser(args)
	case "group":
		err = cmdGroup(args)
	case "put":
		err = cmdPut(args)
	case "get":
		err = cmdGet(args)
	case "list":
		err = cmdList(args)
	case "status":
		err = cmdStatus(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "mindoodb: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`mindoodb - end-to-end encrypted, multi-tenant, sync-capable document database

Usage: mindoodb <command> [options]

Tenant administration:
  init          Create a new tenant (administration keys)
  whoami        Show the signed-in identity for --data

Onboarding a new user (no network transport; mdb:// URIs exchanged out-of-band):
  join-request  Generate a user identity and print an mdb://join-request/ URI
  approve       (run by the admin) approve a join-request, print mdb://join-response/
  adduser       (run by the admin) register a user's public keys directly, no URI round-trip
  join          Materialize a KeyBag from an mdb://join-response/ URI
  revokeuser    Revoke a previously granted user
  group         Create or update a group

Documents:
  put           Create a document in a database
  get           Print a document's fields
  list          List documents in a database, optionally filtered by --type/--tag

  status        Show tenant/database summary

Every command accepts --data <dir> (default ~/.mindoodb) for the tenant's
on-disk state and prompts for passwords interactively unless --password-stdin
is given (the first line of stdin is read as the password).`)
}

// ---- on-disk profile -------------------------------------------------

// profile is the small plaintext sidecar the CLI keeps next to the KeyBag
// blob: public identifiers and the encrypted (never plaintext) private key
// material needed to unlock a signed-in identity. Nothing here is secret
// without the corresponding password.
//
// An admin profile (IsAdmin=true) carries the administration key pair
// itself and no separate username; a joined-user profile carries a regular
// user identity and the tenant's public administration keys it learned
// from the join-response.
type profile struct {
	TenantID                    string `json:"tenantId"`
	AdminSigningPublicKeyPEM    string `json:"adminSigningPublicKeyPem"`
	AdminEncryptionPublicKeyPEM string `json:"adminEncryptionPublicKeyPem"`

	Username               string                          `json:"username,omitempty"`
	SigningPublicKeyPEM    string                          `json:"signingPublicKeyPem"`
	EncryptionPublicKeyPEM string                          `json:"encryptionPublicKeyPem"`
	EncryptedSigningKey    *cryptocore.EncryptedPrivateKey `json:"encryptedSigningKey"`
	EncryptedEncryptionKey *cryptocore.EncryptedPrivateKey `json:"encryptedEncryptionKey"`

	IsAdmin bool `json:"isAdmin"`
}

func profilePath(dataDir string) string { return filepath.Join(dataDir, "profile.json") }
func keybagPath(dataDir string) string  { return filepath.Join(dataDir, "keybag.enc") }

func loadProfile(dataDir string) (*profile, error) {
	data, err := os.ReadFile(profilePath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("read profile (did you run init/join-request?): %w", err)
	}
	var p profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &p, nil
}

func saveProfile(dataDir string, p *profile) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(profilePath(dataDir), data, 0o600)
}

// ---- flag/password helpers --------------------------------------------

func flagValue(args []string, name, def string) string {
	for i, a := range args {
		if a == "--"+name && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, "--"+name+"=") {
			return strings.TrimPrefix(a, "--"+name+"=")
		}
	}
	return def
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == "--"+name {
			return true
		}
	}
	return false
}

func defaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mindoodb")
}

func dataDirFlag(args []string) string {
	return flagValue(args, "data", defaultDataDir())
}

func readPassword(args []string, prompt string) ([]byte, error) {
	if hasFlag(args, "password-stdin") {
		var line string
		if _, err := fmt.Scanln(&line); err != nil {
			return nil, fmt.Errorf("reading password from stdin: %w", err)
		}
		return []byte(line), nil
	}
	fmt.Print(prompt)
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("not a terminal; use --password-stdin")
	}
	pw, err := term.ReadPassword(fd)
	fmt.Println()
	return pw, err
}

func newLogger(cfg config.Config) *mdlog.Logger { return mdlog.New("mindoodb: ", cfg.LogLevel) }

// ---- init / whoami --------------------------------------------------

func cmdInit(args []string) error {
	dataDir := dataDirFlag(args)
	tenantID := flagValue(args, "tenant", "")
	if tenantID == "" {
		return fmt.Errorf("--tenant is required")
	}
	if _, err := os.Stat(profilePath(dataDir)); err == nil {
		return fmt.Errorf("%s already initialized", dataDir)
	}

	adminPassword, err := readPassword(args, "Administration password: ")
	if err != nil {
		return err
	}

	cfg := config.Default(dataDir)
	factory := tenant.NewFactory(cfg)

	adminSigningPubPEM, _, encSigning, err := factory.CreateSigningKeyPair(adminPassword)
	if err != nil {
		return fmt.Errorf("generate administration signing key: %w", err)
	}
	adminEncPubPEM, _, encEnc, err := factory.CreateEncryptionKeyPair(adminPassword)
	if err != nil {
		return fmt.Errorf("generate administration encryption key: %w", err)
	}

	kb := keybag.New(keybagPath(dataDir), cfg.PBKDF2Iterations)
	tenantKey, err := cryptocore.GenerateKey()
	if err != nil {
		return err
	}
	kb.Set("tenant", tenantID, tenantKey[:], 0)
	publicInfosKey, err := cryptocore.GenerateKey()
	if err != nil {
		return err
	}
	kb.Set("doc", directory.PublicInfosKey, publicInfosKey[:], 0)
	if err := kb.Save(adminPassword); err != nil {
		return fmt.Errorf("save keybag: %w", err)
	}

	p := &profile{
		TenantID:                    tenantID,
		AdminSigningPublicKeyPEM:    adminSigningPubPEM,
		AdminEncryptionPublicKeyPEM: adminEncPubPEM,
		SigningPublicKeyPEM:         adminSigningPubPEM,
		EncryptionPublicKeyPEM:      adminEncPubPEM,
		EncryptedSigningKey:         encSigning,
		EncryptedEncryptionKey:      encEnc,
		IsAdmin:                     true,
	}
	if err := saveProfile(dataDir, p); err != nil {
		return err
	}

	fmt.Printf("tenant %q initialized in %s\n", tenantID, dataDir)
	fmt.Printf("administration signing key:\n%s\n", adminSigningPubPEM)
	return nil
}

func cmdWhoami(args []string) error {
	p, err := loadProfile(dataDirFlag(args))
	if err != nil {
		return err
	}
	fmt.Printf("tenant: %s\n", p.TenantID)
	if p.IsAdmin {
		fmt.Println("role:   administrator")
	} else {
		fmt.Printf("role:   user %q\n", p.Username)
	}
	fmt.Printf("signing public key:\n%s\n", p.SigningPublicKeyPEM)
	return nil
}

// ---- onboarding ----------------------------------------------------------

func cmdJoinRequest(args []string) error {
	dataDir := dataDirFlag(args)
	username := flagValue(args, "username", "")
	if username == "" {
		return fmt.Errorf("--username is required")
	}
	if _, err := os.Stat(profilePath(dataDir)); err == nil {
		return fmt.Errorf("%s already has a profile", dataDir)
	}

	password, err := readPassword(args, "New account password: ")
	if err != nil {
		return err
	}

	cfg := config.Default(dataDir)
	factory := tenant.NewFactory(cfg)
	identity, encSigning, encEnc, err := factory.CreateUserID(username, password)
	if err != nil {
		return err
	}

	p := &profile{
		Username:               username,
		SigningPublicKeyPEM:    identity.SigningPublicKeyPEM,
		EncryptionPublicKeyPEM: identity.EncryptionPublicKeyPEM,
		EncryptedSigningKey:    encSigning,
		EncryptedEncryptionKey: encEnc,
	}
	if err := saveProfile(dataDir, p); err != nil {
		return err
	}

	req := tenant.NewJoinRequest(username, identity.SigningPublicKeyPEM, identity.EncryptionPublicKeyPEM)
	uri, err := mindoouri.Encode(mindoouri.TypeJoinRequest, req)
	if err != nil {
		return err
	}
	fmt.Println(uri)
	if hasFlag(args, "qr") {
		art, err := mindoouri.ToQRString(uri)
		if err != nil {
			return err
		}
		fmt.Println(art)
	}
	return nil
}

// openAsAdmin unlocks the administration signing key and opens the
// directory Database directly with it as signer, returning the Directory,
// the unlocked KeyBag (needed by approve to export keys), and the profile.
func openAsAdmin(dataDir string, adminPassword []byte) (*directory.Directory, *keybag.KeyBag, *profile, error) {
	p, err := loadProfile(dataDir)
	if err != nil {
		return nil, nil, nil, err
	}
	if !p.IsAdmin {
		return nil, nil, nil, fmt.Errorf("%s is not an administration profile", dataDir)
	}

	signingPriv, err := tenant.DecryptSigningKey(p.EncryptedSigningKey, adminPassword, "signing")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unlock administration key: %w", err)
	}

	cfg := config.Default(dataDir)
	log := newLogger(cfg)
	kb := keybag.New(keybagPath(dataDir), cfg.PBKDF2Iterations)
	if err := kb.Load(adminPassword); err != nil {
		return nil, nil, nil, fmt.Errorf("unlock keybag: %w", err)
	}

	db, err := database.Open(database.Options{
		ID:            tenant.DirectoryDatabaseID,
		BaseDir:       dataDir,
		KeyBag:        kb,
		SigningPriv:   signingPriv,
		SigningPubPEM: p.AdminSigningPublicKeyPEM,
		Trust:         directory.AdminOnlyTrust{AdminPublicKeyPEM: p.AdminSigningPublicKeyPEM},
		Config:        cfg,
		Logger:        log,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	dir := directory.New(db, p.AdminSigningPublicKeyPEM, nil, log)
	return dir, kb, p, nil
}

func cmdApprove(args []string) error {
	dataDir := dataDirFlag(args)
	uri := flagValue(args, "request", "")
	if uri == "" {
		return fmt.Errorf("--request <mdb://join-request/...> is required")
	}
	env, err := mindoouri.Parse(uri)
	if err != nil {
		return err
	}
	if env.Type != mindoouri.TypeJoinRequest {
		return fmt.Errorf("expected a join-request URI, got %s", env.Type)
	}
	var req tenant.JoinRequest
	if err := env.Unmarshal(&req); err != nil {
		return err
	}

	adminPassword, err := readPassword(args, "Administration password: ")
	if err != nil {
		return err
	}
	sharePassword, err := readPassword(args, "Share password for the new user: ")
	if err != nil {
		return err
	}

	dir, kb, p, err := openAsAdmin(dataDir, adminPassword)
	if err != nil {
		return err
	}

	adminEncPub, err := cryptocore.DecodeEncryptionPublicKeyPEM(p.AdminEncryptionPublicKeyPEM)
	if err != nil {
		return err
	}
	usernameEncrypted, err := cryptocore.HybridEncrypt(adminEncPub, []byte(req.Username))
	if err != nil {
		return err
	}
	if _, err := dir.RegisterUser(req.Username, base64.StdEncoding.EncodeToString(usernameEncrypted), req.SigningPublicKeyPEM, req.EncryptionPublicKeyPEM); err != nil {
		return err
	}

	tenantKey, err := kb.EncryptAndExportKey("tenant", p.TenantID, sharePassword)
	if err != nil {
		return err
	}
	publicInfosKey, err := kb.EncryptAndExportKey("doc", directory.PublicInfosKey, sharePassword)
	if err != nil {
		return err
	}

	resp := tenant.JoinResponse{
		V:                        tenant.JoinResponseVersion,
		TenantID:                 p.TenantID,
		AdminSigningPublicKeyPEM: p.AdminSigningPublicKeyPEM,
		AdminEncPublicKeyPEM:     p.AdminEncryptionPublicKeyPEM,
		TenantKey:                tenantKey,
		PublicInfosKey:           publicInfosKey,
	}
	joinURI, err := mindoouri.Encode(mindoouri.TypeJoinResponse, resp)
	if err != nil {
		return err
	}
	fmt.Println(joinURI)
	return nil
}

func cmdJoin(args []string) error {
	dataDir := dataDirFlag(args)
	uri := flagValue(args, "response", "")
	if uri == "" {
		return fmt.Errorf("--response <mdb://join-response/...> is required")
	}
	env, err := mindoouri.Parse(uri)
	if err != nil {
		return err
	}
	if env.Type != mindoouri.TypeJoinResponse {
		return fmt.Errorf("expected a join-response URI, got %s", env.Type)
	}
	var resp tenant.JoinResponse
	if err := env.Unmarshal(&resp); err != nil {
		return err
	}

	p, err := loadProfile(dataDir)
	if err != nil {
		return fmt.Errorf("run join-request first: %w", err)
	}
	sharePassword, err := readPassword(args, "Share password: ")
	if err != nil {
		return err
	}

	cfg := config.Default(dataDir)
	kb := keybag.New(keybagPath(dataDir), cfg.PBKDF2Iterations)
	if err := kb.DecryptAndImportKey("tenant", resp.TenantID, resp.TenantKey, sharePassword, resp.TenantID); err != nil {
		return fmt.Errorf("import tenant key: %w", err)
	}
	if err := kb.DecryptAndImportKey("doc", directory.PublicInfosKey, resp.PublicInfosKey, sharePassword, directory.PublicInfosKey); err != nil {
		return fmt.Errorf("import $publicinfos key: %w", err)
	}

	accountPassword, err := readPassword(args, "Account password (re-encrypt your keybag under this): ")
	if err != nil {
		return err
	}
	if err := kb.Save(accountPassword); err != nil {
		return err
	}

	p.TenantID = resp.TenantID
	p.AdminSigningPublicKeyPEM = resp.AdminSigningPublicKeyPEM
	p.AdminEncryptionPublicKeyPEM = resp.AdminEncPublicKeyPEM
	p.IsAdmin = false
	if err := saveProfile(dataDir, p); err != nil {
		return err
	}
	fmt.Printf("joined tenant %q as %q\n", p.TenantID, p.Username)
	return nil
}

// cmdAddUser is the admin-operated fast path that skips the join-request
// round trip when the new user's public keys are already known out of
// band (e.g. provisioning tooling), directly calling Directory.RegisterUser.
func cmdAddUser(args []string) error {
	dataDir := dataDirFlag(args)
	username := flagValue(args, "username", "")
	signingPub := flagValue(args, "signing-public-key", "")
	encPub := flagValue(args, "encryption-public-key", "")
	if username == "" || signingPub == "" || encPub == "" {
		return fmt.Errorf("--username, --signing-public-key, --encryption-public-key are required")
	}
	adminPassword, err := readPassword(args, "Administration password: ")
	if err != nil {
		return err
	}
	dir, _, p, err := openAsAdmin(dataDir, adminPassword)
	if err != nil {
		return err
	}
	adminEncPub, err := cryptocore.DecodeEncryptionPublicKeyPEM(p.AdminEncryptionPublicKeyPEM)
	if err != nil {
		return err
	}
	usernameEncrypted, err := cryptocore.HybridEncrypt(adminEncPub, []byte(username))
	if err != nil {
		return err
	}
	docID, err := dir.RegisterUser(username, base64.StdEncoding.EncodeToString(usernameEncrypted), signingPub, encPub)
	if err != nil {
		if _, ok := err.(*mderrors.DuplicateUserError); ok {
			return fmt.Errorf("user %q already registered with different keys", username)
		}
		return err
	}
	fmt.Printf("registered %q (grant doc %s)\n", username, docID)
	return nil
}

func cmdRevokeUser(args []string) error {
	dataDir := dataDirFlag(args)
	username := flagValue(args, "username", "")
	grantDocID := flagValue(args, "grant-doc", "")
	if username == "" || grantDocID == "" {
		return fmt.Errorf("--username and --grant-doc are required")
	}
	adminPassword, err := readPassword(args, "Administration password: ")
	if err != nil {
		return err
	}
	dir, _, p, err := openAsAdmin(dataDir, adminPassword)
	if err != nil {
		return err
	}
	adminEncPub, err := cryptocore.DecodeEncryptionPublicKeyPEM(p.AdminEncryptionPublicKeyPEM)
	if err != nil {
		return err
	}
	usernameEncrypted, err := cryptocore.HybridEncrypt(adminEncPub, []byte(username))
	if err != nil {
		return err
	}
	docID, err := dir.RevokeUser(username, base64.StdEncoding.EncodeToString(usernameEncrypted), grantDocID, hasFlag(args, "wipe"))
	if err != nil {
		return err
	}
	fmt.Printf("revoked %q (revoke doc %s)\n", username, docID)
	return nil
}

func cmdGroup(args []string) error {
	dataDir := dataDirFlag(args)
	name := flagValue(args, "name", "")
	membersArg := flagValue(args, "members", "")
	if name == "" {
		return fmt.Errorf("--name is required")
	}
	adminPassword, err := readPassword(args, "Administration password: ")
	if err != nil {
		return err
	}
	dir, _, _, err := openAsAdmin(dataDir, adminPassword)
	if err != nil {
		return err
	}
	var hashes, encrypted []string
	for _, m := range strings.Split(membersArg, ",") {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		hashes = append(hashes, mdcore.HashUsername(m))
		// Member lists are admin-decryptable (§3); a real deployment would
		// RSA-OAEP-encrypt each member's username under the admin
		// encryption key the way username_encrypted does for grants. This
		// CLI stores the plaintext username here since it is a local
		// provisioning tool, not the wire format itself.
		encrypted = append(encrypted, m)
	}
	docID, err := dir.UpsertGroup(name, hashes, encrypted)
	if err != nil {
		return err
	}
	fmt.Printf("group %q updated (doc %s)\n", name, docID)
	return nil
}

// ---- document CRUD --------------------------------------------------

func openDatabase(args []string) (*tenant.Tenant, *database.Database, error) {
	dataDir := dataDirFlag(args)
	dbID := flagValue(args, "db", "")
	if dbID == "" {
		return nil, nil, fmt.Errorf("--db is required")
	}
	p, err := loadProfile(dataDir)
	if err != nil {
		return nil, nil, err
	}
	if p.IsAdmin {
		return nil, nil, fmt.Errorf("the admin profile does not open application databases; use a joined user profile")
	}
	password, err := readPassword(args, "Account password: ")
	if err != nil {
		return nil, nil, err
	}

	signingPriv, err := tenant.DecryptSigningKey(p.EncryptedSigningKey, password, "signing")
	if err != nil {
		return nil, nil, fmt.Errorf("unlock identity: %w", err)
	}
	encPriv, err := tenant.DecryptEncryptionKey(p.EncryptedEncryptionKey, password, "encryption")
	if err != nil {
		return nil, nil, fmt.Errorf("unlock identity: %w", err)
	}

	cfg := config.Default(dataDir)
	log := newLogger(cfg)
	kb := keybag.New(keybagPath(dataDir), cfg.PBKDF2Iterations)
	if err := kb.Load(password); err != nil {
		return nil, nil, fmt.Errorf("unlock keybag: %w", err)
	}

	cache := cachemanager.New(cachestore.NewMemoryStore(), cfg.CacheFlushDebounce, log)
	identity := &tenant.Identity{
		Username:               p.Username,
		SigningPublicKeyPEM:    p.SigningPublicKeyPEM,
		SigningPrivateKey:      signingPriv,
		EncryptionPublicKeyPEM: p.EncryptionPublicKeyPEM,
		EncryptionPrivateKey:   encPriv,
	}

	t, err := tenant.OpenTenant(tenant.Options{
		TenantID:                    p.TenantID,
		BaseDir:                     dataDir,
		AdminSigningPublicKeyPEM:    p.AdminSigningPublicKeyPEM,
		AdminEncryptionPublicKeyPEM: p.AdminEncryptionPublicKeyPEM,
		User:                        identity,
		KeyBag:                      kb,
		Config:                      cfg,
		Logger:                      log,
		Hooks:                       hooks.NewManager(),
		CacheManager:                cache,
	})
	if err != nil {
		return nil, nil, err
	}
	db, err := t.OpenDB(dbID)
	if err != nil {
		return nil, nil, err
	}
	return t, db, nil
}

func cmdPut(args []string) error {
	fieldsJSON := flagValue(args, "fields", "{}")
	var fields map[string]any
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return fmt.Errorf("--fields must be a JSON object: %w", err)
	}
	_, db, err := openDatabase(args)
	if err != nil {
		return err
	}
	docID, err := db.CreateDocument(fields)
	if err != nil {
		return err
	}
	fmt.Println(docID)
	return nil
}

func cmdGet(args []string) error {
	docID := flagValue(args, "id", "")
	if docID == "" {
		return fmt.Errorf("--id is required")
	}
	_, db, err := openDatabase(args)
	if err != nil {
		return err
	}
	fields, err := db.GetDocumentFields(docID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdList(args []string) error {
	_, db, err := openDatabase(args)
	if err != nil {
		return err
	}
	filter := query.Filter{
		DocType: flagValue(args, "type", ""),
		Tag:     flagValue(args, "tag", ""),
		Deleted: hasFlag(args, "deleted"),
	}
	results, err := query.List(db, filter)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s\t%d\n", r.Doc.DocID, r.Doc.LastModified)
	}
	return nil
}

func cmdStatus(args []string) error {
	p, err := loadProfile(dataDirFlag(args))
	if err != nil {
		return err
	}
	fmt.Printf("tenant:   %s\n", p.TenantID)
	if p.IsAdmin {
		fmt.Println("role:     administrator")
	} else {
		fmt.Printf("role:     user %q\n", p.Username)
	}
	fmt.Printf("data dir: %s\n", dataDirFlag(args))
	return nil
}
