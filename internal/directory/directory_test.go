package directory

import (
	"testing"

	"github.com/amaydixit11/mindoodb/internal/config"
	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/database"
	"github.com/amaydixit11/mindoodb/internal/keybag"
	"github.com/amaydixit11/mindoodb/internal/mdcore"
)

func newTestDirectory(t *testing.T) (*Directory, string) {
	t.Helper()
	adminPub, adminPriv, err := cryptocore.GenerateSigningKeyPair()
	if err != nil {
		t.Fatalf("generate admin key: %v", err)
	}
	adminPubPEM, err := cryptocore.EncodeSigningPublicKeyPEM(adminPub)
	if err != nil {
		t.Fatalf("encode admin pub: %v", err)
	}
	kb := keybag.New("", 60000)
	publicInfosKey, err := cryptocore.GenerateKey()
	if err != nil {
		t.Fatalf("generate $publicinfos key: %v", err)
	}
	kb.Set("doc", PublicInfosKey, publicInfosKey[:], 0)
	db, err := database.Open(database.Options{
		ID:            "directory",
		BaseDir:       t.TempDir(),
		KeyBag:        kb,
		SigningPriv:   adminPriv,
		SigningPubPEM: adminPubPEM,
		Trust:         AdminOnlyTrust{AdminPublicKeyPEM: adminPubPEM},
		Config:        config.Default(""),
	})
	if err != nil {
		t.Fatalf("open directory db: %v", err)
	}
	return New(db, adminPubPEM, nil, nil), adminPubPEM
}

func TestAdminKeyAlwaysTrusted(t *testing.T) {
	dir, adminPub := newTestDirectory(t)
	if !dir.IsPublicKeyTrusted(adminPub) {
		t.Fatal("admin key should always be trusted")
	}
}

func TestGrantThenRevokeTrustCache(t *testing.T) {
	dir, _ := newTestDirectory(t)

	userPub, _, _ := cryptocore.GenerateSigningKeyPair()
	userPubPEM, _ := cryptocore.EncodeSigningPublicKeyPEM(userPub)

	if dir.IsPublicKeyTrusted(userPubPEM) {
		t.Fatal("unregistered key should not be trusted")
	}

	grantDocID, err := dir.RegisterUser("alice", "cipher", userPubPEM, "enc-pub")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if !dir.IsPublicKeyTrusted(userPubPEM) {
		t.Fatal("key should be trusted after grant")
	}

	if _, err := dir.RevokeUser("alice", "cipher", grantDocID, false); err != nil {
		t.Fatalf("RevokeUser: %v", err)
	}
	if dir.IsPublicKeyTrusted(userPubPEM) {
		t.Fatal("key should not be trusted after revoke")
	}

	// A fresh grant for the same key reactivates it (trust monotonicity
	// within one revocation lifetime, §8).
	if _, err := dir.RegisterUser("alice", "cipher", userPubPEM, "enc-pub"); err != nil {
		t.Fatalf("re-RegisterUser: %v", err)
	}
	if !dir.IsPublicKeyTrusted(userPubPEM) {
		t.Fatal("key should be trusted again after a fresh grant")
	}
}

func TestDuplicateUsernameWithDifferentKeysFails(t *testing.T) {
	dir, _ := newTestDirectory(t)

	pub1, _, _ := cryptocore.GenerateSigningKeyPair()
	pub1PEM, _ := cryptocore.EncodeSigningPublicKeyPEM(pub1)
	if _, err := dir.RegisterUser("bob", "cipher", pub1PEM, "enc1"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	pub2, _, _ := cryptocore.GenerateSigningKeyPair()
	pub2PEM, _ := cryptocore.EncodeSigningPublicKeyPEM(pub2)
	if _, err := dir.RegisterUser("Bob", "cipher", pub2PEM, "enc2"); err == nil {
		t.Fatal("expected DuplicateUserError for re-registration with different keys")
	}

	// Re-registering with the exact same keys is an idempotent no-op.
	if _, err := dir.RegisterUser("bob", "cipher", pub1PEM, "enc1"); err != nil {
		t.Fatalf("idempotent RegisterUser: %v", err)
	}
}

func TestGroupResolutionDirectAndNested(t *testing.T) {
	dir, _ := newTestDirectory(t)

	aliceHash := mdcore.HashUsername("alice")
	if _, err := dir.UpsertGroup("engineers", []string{aliceHash}, nil); err != nil {
		t.Fatalf("UpsertGroup: %v", err)
	}
	// "engineers" is itself a member of "staff" via its lowercased-name hash,
	// so alice should transitively resolve into both groups.
	engineersHash := mdcore.HashUsername("engineers")
	if _, err := dir.UpsertGroup("staff", []string{engineersHash}, nil); err != nil {
		t.Fatalf("UpsertGroup nested: %v", err)
	}

	groups := dir.ResolveGroupsForUser("alice")
	want := map[string]bool{"engineers": true, "staff": true}
	if len(groups) != len(want) {
		t.Fatalf("ResolveGroupsForUser = %v, want %v", groups, want)
	}
	for _, g := range groups {
		if !want[g] {
			t.Fatalf("unexpected group %q in result %v", g, groups)
		}
	}
}

func TestPendingPurgeRequestsRoundTrip(t *testing.T) {
	dir, _ := newTestDirectory(t)

	docID, err := dir.RequestDocHistoryPurge("db1", "doc1", "gdpr", 1000)
	if err != nil {
		t.Fatalf("RequestDocHistoryPurge: %v", err)
	}

	pending := dir.PendingPurgeRequests()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending purge request, got %d", len(pending))
	}
	if pending[0]["_docId"] != docID {
		t.Fatalf("_docId = %v, want %v", pending[0]["_docId"], docID)
	}

	if err := dir.MarkPurgeRequestProcessed(docID); err != nil {
		t.Fatalf("MarkPurgeRequestProcessed: %v", err)
	}
	if pending := dir.PendingPurgeRequests(); len(pending) != 0 {
		t.Fatalf("expected 0 pending purge requests after processing, got %d", len(pending))
	}
}

func TestTenantAndDBSettings(t *testing.T) {
	dir, _ := newTestDirectory(t)

	if _, err := dir.SetTenantSettings(map[string]any{"orgName": "Acme"}); err != nil {
		t.Fatalf("SetTenantSettings: %v", err)
	}
	if got := dir.TenantSettings()["orgName"]; got != "Acme" {
		t.Fatalf("orgName = %v, want Acme", got)
	}

	if _, err := dir.SetDBSettings("inventory", map[string]any{"retentionDays": float64(30)}); err != nil {
		t.Fatalf("SetDBSettings: %v", err)
	}
	if got := dir.DBSettings("inventory")["retentionDays"]; got != float64(30) {
		t.Fatalf("retentionDays = %v, want 30", got)
	}
}
