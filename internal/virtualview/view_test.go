package virtualview

import (
	"testing"

	"github.com/amaydixit11/mindoodb/internal/cachestore"
)

func TestCacheRoundTrip(t *testing.T) {
	store := cachestore.NewMemoryStore()

	v := New("viewA", "v1", "byTag", false)
	catWork := v.AddCategory("work", "", nil)
	catHome := v.AddCategory("home", "", nil)
	v.AddDocument("doc1", catWork)
	v.AddDocument("doc2", catWork)
	v.AddDocument("doc3", catHome)

	wantCount := v.DescendantCount("")
	if err := v.FlushToCache(store); err != nil {
		t.Fatalf("FlushToCache: %v", err)
	}

	fresh := New("viewA", "", "byTag", false)
	ok, err := fresh.SetCacheManager(store, "viewA", "v1")
	if err != nil {
		t.Fatalf("SetCacheManager: %v", err)
	}
	if !ok {
		t.Fatal("SetCacheManager(v1) = false, want true")
	}
	if got := fresh.DescendantCount(""); got != wantCount {
		t.Fatalf("DescendantCount after restore = %d, want %d", got, wantCount)
	}

	stale := New("viewA", "", "byTag", false)
	ok, err = stale.SetCacheManager(store, "viewA", "v2")
	if err != nil {
		t.Fatalf("SetCacheManager(v2): %v", err)
	}
	if ok {
		t.Fatal("SetCacheManager(v2) = true, want false on version mismatch")
	}
	if got := stale.DescendantCount(""); got != 0 {
		t.Fatalf("DescendantCount on mismatched-version view = %d, want 0 (left untouched)", got)
	}
}
