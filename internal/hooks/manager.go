// Package hooks implements the webhook/event-subscription surface
// SPEC_FULL.md's supplemented-features section adds on top of the
// distilled spec: a Database fires a HookEvent for every doc_create/
// doc_change/doc_delete entry it ingests locally, and for a remote-sync
// entry whose document is already materialized, and callbacks or registered
// HTTP webhooks are notified. Attachment chunks and doc_snapshot entries
// fire no event.
//
// Grounded on the teacher's own internal/hooks/manager.go almost unchanged
// structurally (callback registry + webhook registry + async dispatch with
// retry after attempt² seconds); only the event payload is rekeyed from a
// uuid.UUID single-entry id to MindooDB's string docId/entryId and
// mdcore.EntryType taxonomy.
package hooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/amaydixit11/mindoodb/internal/mdcore"
	"github.com/google/uuid"
)

// EventType mirrors mdcore.EntryType plus a synthetic "sync" event type,
// built by NewSyncEvent; Database itself never triggers it.
type EventType string

const (
	EventDocCreate       EventType = "doc_create"
	EventDocChange       EventType = "doc_change"
	EventDocDelete       EventType = "doc_delete"
	EventAttachmentChunk EventType = "attachment_chunk"
	EventSync            EventType = "sync"
)

// HookEvent contains event data passed to callbacks and webhooks.
type HookEvent struct {
	Type      EventType `json:"type"`
	DatabaseID string   `json:"databaseId"`
	DocID     string    `json:"docId"`
	EntryID   string    `json:"entryId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	PeerID    string    `json:"peerId,omitempty"` // for sync events
}

// Callback is a function called when an event occurs.
type Callback func(event HookEvent)

// WebhookConfig configures an HTTP webhook.
type WebhookConfig struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Events     []EventType       `json:"events"`
	Headers    map[string]string `json:"headers"`
	Secret     string            `json:"secret"`
	MaxRetries int               `json:"maxRetries"`
	Timeout    time.Duration     `json:"timeout"`
	Async      bool              `json:"async"`
}

// Manager manages callbacks and webhooks.
type Manager struct {
	callbacks map[EventType][]Callback
	webhooks  map[string]*WebhookConfig
	client    *http.Client
	mu        sync.RWMutex
}

// NewManager creates a new hook manager.
func NewManager() *Manager {
	return &Manager{
		callbacks: make(map[EventType][]Callback),
		webhooks:  make(map[string]*WebhookConfig),
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *Manager) OnDocCreate(cb Callback)       { m.registerCallback(EventDocCreate, cb) }
func (m *Manager) OnDocChange(cb Callback)       { m.registerCallback(EventDocChange, cb) }
func (m *Manager) OnDocDelete(cb Callback)       { m.registerCallback(EventDocDelete, cb) }
func (m *Manager) OnAttachmentChunk(cb Callback) { m.registerCallback(EventAttachmentChunk, cb) }
func (m *Manager) OnSync(cb Callback)            { m.registerCallback(EventSync, cb) }

// On registers a callback for a specific event type.
func (m *Manager) On(eventType EventType, cb Callback) {
	m.registerCallback(eventType, cb)
}

func (m *Manager) registerCallback(eventType EventType, cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[eventType] = append(m.callbacks[eventType], cb)
}

// RegisterWebhook adds an HTTP webhook.
func (m *Manager) RegisterWebhook(config WebhookConfig) error {
	if config.URL == "" {
		return fmt.Errorf("hooks: webhook URL is required")
	}
	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks[config.ID] = &config
	return nil
}

// UnregisterWebhook removes a webhook.
func (m *Manager) UnregisterWebhook(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.webhooks, id)
}

// ListWebhooks returns all registered webhooks.
func (m *Manager) ListWebhooks() []WebhookConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	configs := make([]WebhookConfig, 0, len(m.webhooks))
	for _, wh := range m.webhooks {
		configs = append(configs, *wh)
	}
	return configs
}

// Trigger fires an event to every registered callback and matching webhook.
func (m *Manager) Trigger(event HookEvent) {
	m.mu.RLock()
	callbacks := m.callbacks[event.Type]
	var webhooks []*WebhookConfig
	for _, wh := range m.webhooks {
		for _, et := range wh.Events {
			if et == event.Type {
				webhooks = append(webhooks, wh)
				break
			}
		}
	}
	m.mu.RUnlock()

	for _, cb := range callbacks {
		cb(event)
	}
	for _, wh := range webhooks {
		if wh.Async {
			go m.executeWebhook(wh, event)
		} else {
			m.executeWebhook(wh, event)
		}
	}
}

// TriggerAsync fires an event in a new goroutine.
func (m *Manager) TriggerAsync(event HookEvent) {
	go m.Trigger(event)
}

func (m *Manager) executeWebhook(cfg *WebhookConfig, event HookEvent) error {
	payload, _ := json.Marshal(event)

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
		if err != nil {
			cancel()
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-MindooDB-Event", string(event.Type))
		if cfg.Secret != "" {
			req.Header.Set("X-MindooDB-Signature", signPayload(cfg.Secret, payload))
		}
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := m.client.Do(req)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("hooks: webhook returned status %d", resp.StatusCode)
	}
	return lastErr
}

// signPayload HMAC-SHA256s a webhook body under its configured secret, hex
// encoded, so a receiver can verify a delivery actually came from this
// Manager instead of trusting X-MindooDB-Event alone.
func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// NewEntryEvent builds a HookEvent from an ingested StoreEntry, mapping
// mdcore.EntryType onto the corresponding EventType.
func NewEntryEvent(databaseID string, entry mdcore.StoreEntry) HookEvent {
	var t EventType
	switch entry.EntryType {
	case mdcore.EntryDocCreate:
		t = EventDocCreate
	case mdcore.EntryDocChange, mdcore.EntryDocSnapshot:
		t = EventDocChange
	case mdcore.EntryDocDelete:
		t = EventDocDelete
	case mdcore.EntryAttachmentChunk:
		t = EventAttachmentChunk
	}
	return HookEvent{
		Type:       t,
		DatabaseID: databaseID,
		DocID:      entry.DocID,
		EntryID:    entry.ID,
		Timestamp:  time.Now(),
	}
}

// NewSyncEvent creates a sync-completed event.
func NewSyncEvent(peerID string) HookEvent {
	return HookEvent{Type: EventSync, PeerID: peerID, Timestamp: time.Now()}
}
