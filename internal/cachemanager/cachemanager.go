// Package cachemanager implements the CacheManager described in §4.6:
// registers ICacheable objects (Databases, VirtualViews), batches whoever
// called markDirty, and flushes them to a LocalCacheStore on a debounced
// timer. Grounded on internal/hooks/manager.go's async-dispatch/retry style
// for the concurrency-safety and error-isolation shape, generalized from
// "fire a webhook per event" to "flush every dirty cacheable per timer tick".
package cachemanager

import (
	"sync"
	"time"

	"github.com/amaydixit11/mindoodb/internal/cachestore"
	"github.com/amaydixit11/mindoodb/internal/mdlog"
)

// ICacheable is anything the manager can flush to a cachestore.Store.
type ICacheable interface {
	// CachePrefix is this cacheable's type key in the cache store.
	CachePrefix() string
	// HasDirtyState reports whether FlushToCache has unflushed work to do.
	HasDirtyState() bool
	// FlushToCache writes current state to store under CachePrefix()/own id.
	FlushToCache(store cachestore.Store) error
	// ClearDirty resets the dirty flag after a successful flush.
	ClearDirty()
}

// Manager batches markDirty calls and flushes registered cacheables to a
// LocalCacheStore no more often than once per debounce interval. Only one
// flush runs at a time; markDirty calls arriving during a flush are merged
// into the next one (flushPending).
type Manager struct {
	mu         sync.Mutex
	store      cachestore.Store
	debounce   time.Duration
	log        *mdlog.Logger
	cacheables map[string]ICacheable // keyed by CachePrefix()

	timer        *time.Timer
	flushing     bool
	flushPending bool
	disposed     bool
}

// New constructs a Manager flushing to store with the given debounce
// interval (§4.6 default 5000ms).
func New(store cachestore.Store, debounce time.Duration, log *mdlog.Logger) *Manager {
	if log == nil {
		log = mdlog.Default
	}
	return &Manager{
		store:      store,
		debounce:   debounce,
		log:        log,
		cacheables: make(map[string]ICacheable),
	}
}

// Register adds c to the set of cacheables this manager flushes.
func (m *Manager) Register(c ICacheable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheables[c.CachePrefix()] = c
}

// Unregister removes a previously registered cacheable by its prefix.
func (m *Manager) Unregister(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cacheables, prefix)
}

// MarkDirty schedules a flush after the debounce interval. If a flush is
// already pending or in progress, this call is merged into it.
func (m *Manager) MarkDirty() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	if m.flushing {
		m.flushPending = true
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, m.runFlush)
}

func (m *Manager) runFlush() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.flushing = true
	cacheables := make([]ICacheable, 0, len(m.cacheables))
	for _, c := range m.cacheables {
		cacheables = append(cacheables, c)
	}
	m.mu.Unlock()

	m.flushAll(cacheables)

	m.mu.Lock()
	m.flushing = false
	again := m.flushPending
	m.flushPending = false
	m.mu.Unlock()

	if again {
		m.MarkDirty()
	}
}

// flushAll flushes every dirty cacheable; one cacheable's error is logged
// and does not abort the others' (§4.6).
func (m *Manager) flushAll(cacheables []ICacheable) {
	for _, c := range cacheables {
		if !c.HasDirtyState() {
			continue
		}
		if err := c.FlushToCache(m.store); err != nil {
			m.log.Errorf("cachemanager: flush %s failed: %v", c.CachePrefix(), err)
			continue
		}
		c.ClearDirty()
	}
}

// Dispose stops the debounce timer and performs one final synchronous
// flush of every registered cacheable that has dirty state.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	if m.timer != nil {
		m.timer.Stop()
	}
	cacheables := make([]ICacheable, 0, len(m.cacheables))
	for _, c := range m.cacheables {
		cacheables = append(cacheables, c)
	}
	m.mu.Unlock()

	m.flushAll(cacheables)
}
