// Package virtualview implements the VirtualView cache described in §4.6:
// a version-tagged tree snapshot (category tree + document placement) that
// participates in the CacheManager as an ICacheable, but is otherwise out
// of scope (no rendering, no sort/filter UI logic — just the tree and its
// cache round-trip).
//
// Grounded on internal/database/cacheable.go's CachePrefix/HasDirtyState/
// FlushToCache/ClearDirty shape (json.Marshal a snapshot struct into a
// single cachestore.Key), generalized from "doc index" to "category tree".
package virtualview

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/amaydixit11/mindoodb/internal/cachestore"
)

// Category is one node in the view's category tree. ProviderState is an
// opaque bag the view's categorization provider attaches to a category
// (e.g. a date-bucket provider's range, a tag provider's tag name).
type Category struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	ParentID      string         `json:"parentId"`
	ProviderState map[string]any `json:"providerState,omitempty"`
}

// snapshot is the on-disk shape written by FlushToCache and read by
// SetCacheManager. Field names match what §4.6 names: version,
// categoryIdCounter, categorizationStyle, docOrderDescending, provider
// states (folded into each Category), tree (Categories + Docs).
type snapshot struct {
	Version              string              `json:"version"`
	CategoryIDCounter    int                 `json:"categoryIdCounter"`
	CategorizationStyle  string              `json:"categorizationStyle"`
	DocOrderDescending   bool                `json:"docOrderDescending"`
	Categories           map[string]Category `json:"categories"`
	Docs                 map[string]string   `json:"docs"` // docId -> categoryId ("" = root)
}

// View is an in-memory category tree over a set of document ids. It never
// touches a Database directly; callers populate it via AddCategory/
// AddDocument from whatever set of documents they're presenting.
type View struct {
	mu sync.Mutex

	viewID               string
	version              string
	categorizationStyle  string
	docOrderDescending   bool
	categoryIDCounter    int
	categories           map[string]Category
	docs                 map[string]string

	dirty bool
}

// New constructs an empty View. version tags whatever gets flushed to
// cache; a later SetCacheManager call with a mismatched version rejects
// that cached snapshot rather than materializing it.
func New(viewID, version, categorizationStyle string, docOrderDescending bool) *View {
	return &View{
		viewID:              viewID,
		version:             version,
		categorizationStyle: categorizationStyle,
		docOrderDescending:  docOrderDescending,
		categories:          make(map[string]Category),
		docs:                make(map[string]string),
	}
}

// AddCategory creates a new category under parentID ("" for a root
// category) and returns its freshly minted id.
func (v *View) AddCategory(name, parentID string, providerState map[string]any) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.categoryIDCounter++
	id := fmt.Sprintf("cat-%d", v.categoryIDCounter)
	v.categories[id] = Category{ID: id, Name: name, ParentID: parentID, ProviderState: providerState}
	v.dirty = true
	return id
}

// AddDocument places docID under categoryID ("" for the tree root).
func (v *View) AddDocument(docID, categoryID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.docs[docID] = categoryID
	v.dirty = true
}

// DescendantCount returns how many documents fall under categoryID
// (including its sub-categories, transitively) or, for categoryID=="",
// the total number of documents in the view.
func (v *View) DescendantCount(categoryID string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if categoryID == "" {
		return len(v.docs)
	}
	under := v.descendantCategorySet(categoryID)
	under[categoryID] = struct{}{}
	n := 0
	for _, catID := range v.docs {
		if _, ok := under[catID]; ok {
			n++
		}
	}
	return n
}

func (v *View) descendantCategorySet(categoryID string) map[string]struct{} {
	out := make(map[string]struct{})
	var walk func(string)
	walk = func(id string) {
		for _, c := range v.categories {
			if c.ParentID == id {
				if _, seen := out[c.ID]; seen {
					continue
				}
				out[c.ID] = struct{}{}
				walk(c.ID)
			}
		}
	}
	walk(categoryID)
	return out
}

// CachePrefix implements cachemanager.ICacheable.
func (v *View) CachePrefix() string { return "view:" + v.viewID }

// HasDirtyState implements cachemanager.ICacheable.
func (v *View) HasDirtyState() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dirty
}

// ClearDirty implements cachemanager.ICacheable.
func (v *View) ClearDirty() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dirty = false
}

// FlushToCache writes the full tree snapshot, implementing
// cachemanager.ICacheable.
func (v *View) FlushToCache(store cachestore.Store) error {
	v.mu.Lock()
	snap := snapshot{
		Version:             v.version,
		CategoryIDCounter:   v.categoryIDCounter,
		CategorizationStyle: v.categorizationStyle,
		DocOrderDescending:  v.docOrderDescending,
		Categories:          v.categories,
		Docs:                v.docs,
	}
	v.mu.Unlock()

	buf, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("view %s: marshal snapshot: %w", v.viewID, err)
	}
	return store.Put(cachestore.Key{Type: "view", ID: v.viewID + ":tree"}, buf)
}

// SetCacheManager attempts to restore a previously flushed snapshot for
// viewID from store, accepting it only if its tagged version equals
// version. On a match, the tree is materialized directly in O(n) — no
// re-sorting, no re-deriving categoryIdCounter — and the view adopts
// viewID/version as its own. On a version mismatch, or if nothing was
// cached, the view is left untouched (still empty, per construction) and
// false is returned.
func (v *View) SetCacheManager(store cachestore.Store, viewID, version string) (bool, error) {
	buf, ok, err := store.Get(cachestore.Key{Type: "view", ID: viewID + ":tree"})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	var snap snapshot
	if err := json.Unmarshal(buf, &snap); err != nil {
		return false, fmt.Errorf("view %s: unmarshal snapshot: %w", viewID, err)
	}
	if snap.Version != version {
		return false, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewID = viewID
	v.version = snap.Version
	v.categoryIDCounter = snap.CategoryIDCounter
	v.categorizationStyle = snap.CategorizationStyle
	v.docOrderDescending = snap.DocOrderDescending
	v.categories = snap.Categories
	v.docs = snap.Docs
	v.dirty = false
	return true, nil
}
