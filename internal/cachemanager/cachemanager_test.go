package cachemanager

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amaydixit11/mindoodb/internal/cachestore"
)

type fakeCacheable struct {
	prefix     string
	mu         sync.Mutex
	dirty      bool
	flushCount int32
	failNext   bool
}

func (f *fakeCacheable) CachePrefix() string { return f.prefix }

func (f *fakeCacheable) HasDirtyState() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

func (f *fakeCacheable) FlushToCache(store cachestore.Store) error {
	atomic.AddInt32(&f.flushCount, 1)
	f.mu.Lock()
	fail := f.failNext
	f.mu.Unlock()
	if fail {
		return errors.New("boom")
	}
	return store.Put(cachestore.Key{Type: f.prefix, ID: "state"}, []byte("flushed"))
}

func (f *fakeCacheable) ClearDirty() {
	f.mu.Lock()
	f.dirty = false
	f.mu.Unlock()
}

func (f *fakeCacheable) setDirty() {
	f.mu.Lock()
	f.dirty = true
	f.mu.Unlock()
}

func TestMarkDirtyFlushesAfterDebounce(t *testing.T) {
	store := cachestore.NewMemoryStore()
	m := New(store, 20*time.Millisecond, nil)
	c := &fakeCacheable{prefix: "database"}
	m.Register(c)
	c.setDirty()

	m.MarkDirty()

	time.Sleep(80 * time.Millisecond)

	if got := atomic.LoadInt32(&c.flushCount); got != 1 {
		t.Fatalf("flushCount = %d, want 1", got)
	}
	if c.HasDirtyState() {
		t.Fatalf("expected dirty flag cleared after flush")
	}
	if _, ok, _ := store.Get(cachestore.Key{Type: "database", ID: "state"}); !ok {
		t.Fatalf("expected flushed value in store")
	}
}

func TestMarkDirtyRedebouncesBeforeFlush(t *testing.T) {
	store := cachestore.NewMemoryStore()
	m := New(store, 10*time.Millisecond, nil)
	c := &fakeCacheable{prefix: "database"}
	m.Register(c)
	c.setDirty()

	m.MarkDirty()
	time.Sleep(5 * time.Millisecond)
	m.MarkDirty() // arrives before the first flush has even fired; should just re-debounce

	time.Sleep(60 * time.Millisecond)

	if got := atomic.LoadInt32(&c.flushCount); got < 1 {
		t.Fatalf("flushCount = %d, want >= 1", got)
	}
}

func TestDisposeFlushesSynchronously(t *testing.T) {
	store := cachestore.NewMemoryStore()
	m := New(store, time.Hour, nil) // debounce far longer than the test
	c := &fakeCacheable{prefix: "database"}
	m.Register(c)
	c.setDirty()

	m.MarkDirty()
	m.Dispose()

	if got := atomic.LoadInt32(&c.flushCount); got != 1 {
		t.Fatalf("flushCount after Dispose = %d, want 1", got)
	}
}

func TestFlushErrorDoesNotAbortOthers(t *testing.T) {
	store := cachestore.NewMemoryStore()
	m := New(store, time.Hour, nil)
	bad := &fakeCacheable{prefix: "bad", failNext: true}
	good := &fakeCacheable{prefix: "good"}
	m.Register(bad)
	m.Register(good)
	bad.setDirty()
	good.setDirty()

	m.Dispose()

	if !bad.HasDirtyState() {
		t.Fatalf("failed cacheable should remain dirty")
	}
	if good.HasDirtyState() {
		t.Fatalf("good cacheable should have been cleared")
	}
}
