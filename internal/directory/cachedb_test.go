package directory

import (
	"path/filepath"
	"testing"

	"github.com/amaydixit11/mindoodb/internal/config"
	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/database"
	"github.com/amaydixit11/mindoodb/internal/keybag"
)

func newTestDirectoryWithSQLiteCache(t *testing.T) (*Directory, string, string) {
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
	cachePath := filepath.Join(t.TempDir(), "directory-cache.sqlite3")
	dir, err := NewWithSQLiteCache(db, adminPubPEM, nil, nil, cachePath)
	if err != nil {
		t.Fatalf("NewWithSQLiteCache: %v", err)
	}
	return dir, adminPubPEM, cachePath
}

func TestSQLiteCacheSurvivesRestart(t *testing.T) {
	dir, _, cachePath := newTestDirectoryWithSQLiteCache(t)

	userPub, _, _ := cryptocore.GenerateSigningKeyPair()
	userPubPEM, _ := cryptocore.EncodeSigningPublicKeyPEM(userPub)
	if _, err := dir.RegisterUser("alice", "cipher", userPubPEM, "enc-pub"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if !dir.IsPublicKeyTrusted(userPubPEM) {
		t.Fatal("expected userPubPEM trusted before close")
	}
	if err := dir.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewWithSQLiteCache(dir.db, dir.adminSigningPubPEM, nil, nil, cachePath)
	if err != nil {
		t.Fatalf("reopen NewWithSQLiteCache: %v", err)
	}
	defer reopened.Close()

	reopened.mu.RLock()
	_, ok := reopened.trustedKeysCache[userPubPEM]
	reopened.mu.RUnlock()
	if !ok || !reopened.trustedKeysCache[userPubPEM] {
		t.Fatal("expected trusted-key cache to survive reopen from the SQLite file")
	}
}

func TestSQLiteCacheResetOnInvalidate(t *testing.T) {
	dir, _, _ := newTestDirectoryWithSQLiteCache(t)
	defer dir.Close()

	userPub, _, _ := cryptocore.GenerateSigningKeyPair()
	userPubPEM, _ := cryptocore.EncodeSigningPublicKeyPEM(userPub)
	if _, err := dir.RegisterUser("bob", "cipher", userPubPEM, "enc-pub"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	dir.invalidate()

	trustedKeys, _, _, cursor, err := dir.cache.loadAll()
	if err != nil {
		t.Fatalf("loadAll: %v", err)
	}
	if len(trustedKeys) != 0 {
		t.Fatalf("expected empty trusted_keys table after invalidate, got %d rows", len(trustedKeys))
	}
	if cursor != nil {
		t.Fatal("expected nil cursor after invalidate")
	}
}
