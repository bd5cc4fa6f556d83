package history

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite3: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndGetHistory(t *testing.T) {
	store, err := NewStore(openTestDB(t), 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.SaveSnapshot("doc1", []byte("state-1"), 100, "author-1"); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := store.SaveSnapshot("doc1", []byte("state-2"), 200, "author-1"); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	hist, err := store.GetHistory("doc1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(hist) != 2 || string(hist[0].State) != "state-2" {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestPruneSnapshotsRespectsMax(t *testing.T) {
	store, err := NewStore(openTestDB(t), 2)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for i := int64(1); i <= 5; i++ {
		if err := store.SaveSnapshot("doc1", []byte("state"), i*100, ""); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}
	count, err := store.GetSnapshotCount("doc1")
	if err != nil {
		t.Fatalf("GetSnapshotCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestGetSnapshotAt(t *testing.T) {
	store, err := NewStore(openTestDB(t), 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.SaveSnapshot("doc1", []byte("v1"), 100, "")
	store.SaveSnapshot("doc1", []byte("v2"), 300, "")

	snap, err := store.GetSnapshotAt("doc1", 200)
	if err != nil {
		t.Fatalf("GetSnapshotAt: %v", err)
	}
	if string(snap.State) != "v1" {
		t.Fatalf("state = %s, want v1", snap.State)
	}
}

func TestDeleteHistory(t *testing.T) {
	store, err := NewStore(openTestDB(t), 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.SaveSnapshot("doc1", []byte("v1"), 100, "")
	if err := store.DeleteHistory("doc1"); err != nil {
		t.Fatalf("DeleteHistory: %v", err)
	}
	count, _ := store.GetSnapshotCount("doc1")
	if count != 0 {
		t.Fatalf("count after delete = %d, want 0", count)
	}
}
