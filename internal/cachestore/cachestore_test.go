package cachestore

import (
	"testing"
)

func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	key := Key{Type: "database", ID: "doc1"}

	if _, ok, err := store.Get(key); err != nil || ok {
		t.Fatalf("Get on empty store = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	if err := store.Put(key, []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(key)
	if err != nil || !ok || string(got) != "hello" {
		t.Fatalf("Get after Put = (%q, %v, %v), want (hello, true, nil)", got, ok, err)
	}

	if err := store.Put(key, []byte("world")); err != nil {
		t.Fatalf("overwrite Put: %v", err)
	}
	got, _, _ = store.Get(key)
	if string(got) != "world" {
		t.Fatalf("Get after overwrite = %q, want world", got)
	}

	keys, err := store.List("database")
	if err != nil || len(keys) != 1 {
		t.Fatalf("List(database) = %v, %v, want 1 key", keys, err)
	}

	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(key); ok {
		t.Fatalf("Get after Delete: still present")
	}

	_ = store.Put(Key{Type: "database", ID: "doc2"}, []byte("x"))
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	keys, _ = store.List("database")
	if len(keys) != 0 {
		t.Fatalf("List after Clear = %v, want empty", keys)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestFilesystemStoreContract(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	runStoreContract(t, store)
}

func TestSQLiteStoreContract(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()
	runStoreContract(t, store)
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	inner := NewMemoryStore()
	store := NewEncryptedStore(inner, "correct horse", []byte("0123456789abcdef"), 1000)
	key := Key{Type: "database", ID: "doc1"}

	if err := store.Put(key, []byte("secret")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Raw bytes in the wrapped store must not be the plaintext.
	raw, _, _ := inner.Get(key)
	if string(raw) == "secret" {
		t.Fatalf("underlying store holds plaintext, want ciphertext")
	}

	got, ok, err := store.Get(key)
	if err != nil || !ok || string(got) != "secret" {
		t.Fatalf("Get = (%q, %v, %v), want (secret, true, nil)", got, ok, err)
	}
}

func TestEncryptedStoreWrongPasswordReturnsAbsent(t *testing.T) {
	inner := NewMemoryStore()
	salt := []byte("0123456789abcdef")
	writer := NewEncryptedStore(inner, "right-password", salt, 1000)
	key := Key{Type: "database", ID: "doc1"}
	if err := writer.Put(key, []byte("secret")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reader := NewEncryptedStore(inner, "wrong-password", salt, 1000)
	_, ok, err := reader.Get(key)
	if err != nil {
		t.Fatalf("Get with wrong password returned error %v, want (nil, false, nil)", err)
	}
	if ok {
		t.Fatalf("Get with wrong password reported present, want absent")
	}
}
