// Package keybag implements the password-encrypted symmetric-key container
// described in §4.2. Grounded on pkg/crypto/store.go's FileKeyStore
// (Initialize/Unlock/IsInitialized, single encrypted blob on disk) but
// generalized from one key to the namespaced (keyKind, keyId) -> versions
// map the spec requires, and rekeyed onto cryptocore's PBKDF2/AES-256-GCM
// primitives instead of Argon2id/XChaCha20-Poly1305.
package keybag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/amaydixit11/mindoodb/internal/cryptocore"
	"github.com/amaydixit11/mindoodb/internal/mderrors"
)

// KeyVersion is one rotation of a symmetric key.
type KeyVersion struct {
	Bytes     []byte `json:"bytes"`
	CreatedAt int64  `json:"createdAt"`
}

type keyMapKey struct {
	Kind string
	ID   string
}

// KeyBag is a namespaced container of symmetric keys addressable by
// (keyKind, keyId), where keyKind is e.g. "tenant" or "doc".
type KeyBag struct {
	mu   sync.RWMutex
	keys map[keyMapKey][]KeyVersion

	path       string
	iterations int
}

// New creates an empty, in-memory KeyBag. path is where Save/Load persist
// the encrypted blob; it may be empty if the caller never calls Save/Load.
func New(path string, pbkdf2Iterations int) *KeyBag {
	return &KeyBag{
		keys:       make(map[keyMapKey][]KeyVersion),
		path:       path,
		iterations: pbkdf2Iterations,
	}
}

// Get returns the newest key for (kind, keyId), or nil if absent.
func (kb *KeyBag) Get(kind, keyID string) []byte {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	versions := kb.keys[keyMapKey{kind, keyID}]
	if len(versions) == 0 {
		return nil
	}
	return append([]byte(nil), versions[0].Bytes...)
}

// GetAll returns every version of (kind, keyId), newest-first (rotation).
func (kb *KeyBag) GetAll(kind, keyID string) []KeyVersion {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	versions := kb.keys[keyMapKey{kind, keyID}]
	out := make([]KeyVersion, len(versions))
	copy(out, versions)
	return out
}

// Set appends a new key version for (kind, keyId). If createdAt is zero the
// current time is used. Versions are kept newest-first by CreatedAt.
func (kb *KeyBag) Set(kind, keyID string, bytes []byte, createdAt int64) {
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	k := keyMapKey{kind, keyID}
	kb.keys[k] = append(kb.keys[k], KeyVersion{Bytes: append([]byte(nil), bytes...), CreatedAt: createdAt})
	sort.Slice(kb.keys[k], func(i, j int) bool { return kb.keys[k][i].CreatedAt > kb.keys[k][j].CreatedAt })
}

// DeleteKey removes every version of (kind, keyId).
func (kb *KeyBag) DeleteKey(kind, keyID string) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	delete(kb.keys, keyMapKey{kind, keyID})
}

// ListKeys returns every (kind, keyId) pair currently held.
func (kb *KeyBag) ListKeys() [][2]string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	out := make([][2]string, 0, len(kb.keys))
	for k := range kb.keys {
		out = append(out, [2]string{k.Kind, k.ID})
	}
	return out
}

// Has reports whether at least one version of (kind, keyId) is present —
// used by TenantFactory.openTenant's required-key assertion (§4.8).
func (kb *KeyBag) Has(kind, keyID string) bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.keys[keyMapKey{kind, keyID}]) > 0
}

// DecryptAndImportKey decrypts an EncryptedPrivateKey and imports the
// resulting bytes as a new version of (kind, keyId). saltString defaults to
// "default"; callers supply keyId as the saltString when the key was
// exported with it (the KeyBag-rotation convention §4.2 documents for
// encryptAndExportKey).
func (kb *KeyBag) DecryptAndImportKey(kind, keyID string, encrypted *cryptocore.EncryptedPrivateKey, password []byte, saltString string) error {
	if saltString == "" {
		saltString = "default"
	}
	plain, err := cryptocore.DecryptPrivateKey(password, encrypted, saltString)
	if err != nil {
		return &mderrors.SymmetricKeyNotFound{Kind: kind, ID: keyID}
	}
	kb.Set(kind, keyID, plain, encrypted.CreatedAt)
	return nil
}

// EncryptAndExportKey re-encrypts the newest version of (kind, keyId) under
// a new password, using PBKDF2 with keyId as the saltString, preserving
// CreatedAt.
func (kb *KeyBag) EncryptAndExportKey(kind, keyID string, password []byte) (*cryptocore.EncryptedPrivateKey, error) {
	kb.mu.RLock()
	versions := kb.keys[keyMapKey{kind, keyID}]
	kb.mu.RUnlock()
	if len(versions) == 0 {
		return nil, &mderrors.SymmetricKeyNotFound{Kind: kind, ID: keyID}
	}
	newest := versions[0]
	epk, err := cryptocore.EncryptPrivateKey(password, newest.Bytes, keyID, kb.iterations)
	if err != nil {
		return nil, err
	}
	epk.CreatedAt = newest.CreatedAt
	return epk, nil
}

// blobFile is the on-disk/serialized shape of the whole KeyBag before
// encryption: a flat list so keyMapKey (unexported, non-JSON-able as a map
// key) never needs to round-trip directly.
type blobFile struct {
	Entries []blobEntry `json:"entries"`
}

type blobEntry struct {
	Kind     string       `json:"kind"`
	ID       string       `json:"id"`
	Versions []KeyVersion `json:"versions"`
}

// Save serializes the KeyBag and writes it as a single encrypted blob:
// SaltLen(1) ∥ Salt ∥ IV(12) ∥ Tag(16) ∥ Ciphertext(rest), encrypted with an
// AES-GCM key derived
// from (userPassword ∥ "key-bag-encryption") via PBKDF2-SHA256 (§4.2).
func (kb *KeyBag) Save(password []byte) error {
	if kb.path == "" {
		return fmt.Errorf("keybag: no path configured for Save")
	}
	kb.mu.RLock()
	var file blobFile
	for k, v := range kb.keys {
		file.Entries = append(file.Entries, blobEntry{Kind: k.Kind, ID: k.ID, Versions: v})
	}
	kb.mu.RUnlock()

	plain, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("keybag: marshal: %w", err)
	}

	salt, err := cryptocore.GenerateSalt()
	if err != nil {
		return err
	}
	key := cryptocore.DeriveKey(password, salt, "key-bag-encryption", kb.iterations)
	sealed, err := cryptocore.Encrypt(key, plain, nil)
	if err != nil {
		return err
	}
	// sealed = iv(12) ∥ ciphertext_with_tag; reorder to iv ∥ tag ∥ ciphertext
	// per the §4.2 blob layout, and prefix the salt so Load can rederive.
	iv := sealed[:cryptocore.IVSize]
	ciphertextWithTag := sealed[cryptocore.IVSize:]
	ciphertext := ciphertextWithTag[:len(ciphertextWithTag)-cryptocore.TagSize]
	tag := ciphertextWithTag[len(ciphertextWithTag)-cryptocore.TagSize:]

	out := make([]byte, 0, len(salt)+len(iv)+len(tag)+len(ciphertext))
	out = append(out, byte(len(salt)))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ciphertext...)

	if err := os.MkdirAll(filepath.Dir(kb.path), 0700); err != nil {
		return fmt.Errorf("keybag: mkdir: %w", err)
	}
	tmp := kb.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("keybag: open temp file: %w", err)
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		return fmt.Errorf("keybag: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("keybag: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("keybag: close: %w", err)
	}
	return os.Rename(tmp, kb.path)
}

// Load reads and decrypts the blob written by Save. Wrong-password or
// corrupted blobs surface an error — fatal at tenant open, per §7.
func (kb *KeyBag) Load(password []byte) error {
	if kb.path == "" {
		return fmt.Errorf("keybag: no path configured for Load")
	}
	raw, err := os.ReadFile(kb.path)
	if err != nil {
		return fmt.Errorf("keybag: read: %w", err)
	}
	if len(raw) < 1 {
		return fmt.Errorf("keybag: truncated blob")
	}
	saltLen := int(raw[0])
	raw = raw[1:]
	if len(raw) < saltLen+cryptocore.IVSize+cryptocore.TagSize {
		return fmt.Errorf("keybag: truncated blob")
	}
	salt := raw[:saltLen]
	raw = raw[saltLen:]
	iv := raw[:cryptocore.IVSize]
	raw = raw[cryptocore.IVSize:]
	tag := raw[:cryptocore.TagSize]
	ciphertext := raw[cryptocore.TagSize:]

	key := cryptocore.DeriveKey(password, salt, "key-bag-encryption", kb.iterations)
	sealed := make([]byte, 0, len(iv)+len(ciphertext)+len(tag))
	sealed = append(sealed, iv...)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plain, err := cryptocore.Decrypt(key, sealed, nil)
	if err != nil {
		return fmt.Errorf("keybag: decrypt (wrong password or corrupted blob): %w", err)
	}

	var file blobFile
	if err := json.Unmarshal(plain, &file); err != nil {
		return fmt.Errorf("keybag: unmarshal: %w", err)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.keys = make(map[keyMapKey][]KeyVersion, len(file.Entries))
	for _, e := range file.Entries {
		kb.keys[keyMapKey{e.Kind, e.ID}] = e.Versions
	}
	return nil
}
