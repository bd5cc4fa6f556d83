package hooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/amaydixit11/mindoodb/internal/mdcore"
)

func TestTriggerInvokesCallback(t *testing.T) {
	m := NewManager()
	var got HookEvent
	var wg sync.WaitGroup
	wg.Add(1)
	m.OnDocCreate(func(e HookEvent) {
		got = e
		wg.Done()
	})

	m.Trigger(NewEntryEvent("db1", mdcore.StoreEntry{EntryType: mdcore.EntryDocCreate, ID: "e1", DocID: "d1"}))
	wg.Wait()

	if got.Type != EventDocCreate || got.DocID != "d1" || got.EntryID != "e1" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestWebhookDeliversOnMatchingEvent(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get("X-MindooDB-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewManager()
	if err := m.RegisterWebhook(WebhookConfig{URL: srv.URL, Events: []EventType{EventDocChange}}); err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}

	m.Trigger(NewEntryEvent("db1", mdcore.StoreEntry{EntryType: mdcore.EntryDocChange, ID: "e2", DocID: "d1"}))

	select {
	case ev := <-received:
		if ev != string(EventDocChange) {
			t.Fatalf("got event header %q", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestWebhookSignsPayloadWithSecret(t *testing.T) {
	const secret = "s3cr3t"
	received := make(chan struct {
		body []byte
		sig  string
	}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- struct {
			body []byte
			sig  string
		}{body, r.Header.Get("X-MindooDB-Signature")}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewManager()
	if err := m.RegisterWebhook(WebhookConfig{URL: srv.URL, Events: []EventType{EventDocChange}, Secret: secret}); err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}
	m.Trigger(NewEntryEvent("db1", mdcore.StoreEntry{EntryType: mdcore.EntryDocChange, ID: "e4", DocID: "d1"}))

	select {
	case got := <-received:
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(got.body)
		want := hex.EncodeToString(mac.Sum(nil))
		if got.sig != want {
			t.Fatalf("X-MindooDB-Signature = %q, want %q", got.sig, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestWebhookIgnoresNonMatchingEvent(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewManager()
	if err := m.RegisterWebhook(WebhookConfig{URL: srv.URL, Events: []EventType{EventDocDelete}}); err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}
	m.Trigger(NewEntryEvent("db1", mdcore.StoreEntry{EntryType: mdcore.EntryDocCreate, ID: "e3", DocID: "d1"}))
	time.Sleep(50 * time.Millisecond)
	if called {
		t.Fatal("webhook fired for a non-subscribed event type")
	}
}
