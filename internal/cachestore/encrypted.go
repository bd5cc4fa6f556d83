package cachestore

import (
	"github.com/amaydixit11/mindoodb/internal/cryptocore"
)

// EncryptedStore wraps another Store, encrypting every value with AES-GCM
// under a key derived once via PBKDF2 and held in memory for the wrapper's
// lifetime (§4.6: "encrypted wrapper (AES-GCM + PBKDF2 key derivation;
// tampered/wrong-password entries return null rather than throw)").
type EncryptedStore struct {
	inner Store
	key   cryptocore.Key
}

// NewEncryptedStore derives a key from password via PBKDF2-SHA256 and wraps
// inner so every Put/Get passes through AES-GCM.
func NewEncryptedStore(inner Store, password string, salt []byte, iterations int) *EncryptedStore {
	key := cryptocore.DeriveKey([]byte(password), salt, "cache-store-encryption", iterations)
	return &EncryptedStore{inner: inner, key: key}
}

// aad binds a ciphertext to the key it was stored under, so swapping entries
// between keys (type, id) pairs is detectable.
func aad(key Key) []byte {
	return []byte(key.Type + "\x00" + key.ID)
}

func (e *EncryptedStore) Get(key Key) ([]byte, bool, error) {
	ciphertext, ok, err := e.inner.Get(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	plaintext, err := cryptocore.Decrypt(e.key, ciphertext, aad(key))
	if err != nil {
		// Wrong password or tampered entry: §4.6 requires this to read as
		// absent, not an error.
		return nil, false, nil
	}
	return plaintext, true, nil
}

func (e *EncryptedStore) Put(key Key, value []byte) error {
	ciphertext, err := cryptocore.Encrypt(e.key, value, aad(key))
	if err != nil {
		return err
	}
	return e.inner.Put(key, ciphertext)
}

func (e *EncryptedStore) Delete(key Key) error {
	return e.inner.Delete(key)
}

func (e *EncryptedStore) List(typ string) ([]Key, error) {
	return e.inner.List(typ)
}

func (e *EncryptedStore) Clear() error {
	return e.inner.Clear()
}
