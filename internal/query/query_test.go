package query

import (
	"testing"

	"github.com/amaydixit11/mindoodb/internal/config"
	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/database"
	"github.com/amaydixit11/mindoodb/internal/keybag"
)

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	pub, priv, err := cryptocore.GenerateSigningKeyPair()
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}
	pubPEM, err := cryptocore.EncodeSigningPublicKeyPEM(pub)
	if err != nil {
		t.Fatalf("encode signing pub: %v", err)
	}
	db, err := database.Open(database.Options{
		ID:            "db1",
		BaseDir:       t.TempDir(),
		KeyBag:        keybag.New("", 60000),
		SigningPriv:   priv,
		SigningPubPEM: pubPEM,
		Config:        config.Default(""),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return db
}

func TestListFiltersByDocType(t *testing.T) {
	db := newTestDatabase(t)
	if _, err := db.CreateDocument(map[string]any{"type": "note", "title": "a"}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if _, err := db.CreateDocument(map[string]any{"type": "task", "title": "b"}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	results, err := List(db, Filter{DocType: "note"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Fields["title"] != "a" {
		t.Fatalf("title = %v, want a", results[0].Fields["title"])
	}
}

func TestListFiltersByTag(t *testing.T) {
	db := newTestDatabase(t)
	if _, err := db.CreateDocument(map[string]any{"tags": []any{"work", "urgent"}}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if _, err := db.CreateDocument(map[string]any{"tags": []any{"personal"}}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	results, err := List(db, Filter{Tag: "urgent"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
}

func TestListExcludesDeletedByDefault(t *testing.T) {
	db := newTestDatabase(t)
	docID, err := db.CreateDocument(map[string]any{"title": "x"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if _, err := db.CreateDocument(map[string]any{"title": "y"}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if err := db.DeleteDocument(docID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	results, err := List(db, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (only the undeleted doc)", len(results))
	}

	deleted, err := List(db, Filter{Deleted: true})
	if err != nil {
		t.Fatalf("List(deleted): %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("len(deleted) = %d, want 1", len(deleted))
	}
}

func TestListRespectsLimitAndOffset(t *testing.T) {
	db := newTestDatabase(t)
	for i := 0; i < 5; i++ {
		if _, err := db.CreateDocument(map[string]any{"n": float64(i)}); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}
	}
	results, err := List(db, Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
}
