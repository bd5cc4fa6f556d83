// Package cryptocore implements the stateless cryptographic primitives named
// in §4.7: PBKDF2 key derivation with domain-separated salts, AES-256-GCM
// payload encryption, Ed25519 signing/verification, RSA-OAEP-3072 hybrid
// encryption, and SHA-256 hashing.
//
// Structurally this is grounded on pkg/crypto/crypto.go and pkg/crypto/store.go
// (key type, GenerateKey/DeriveKey/Encrypt/Decrypt shape, externalized KDF
// parameters) with the primitives themselves swapped for the ones §4.7
// mandates: PBKDF2-SHA256 in place of Argon2id, AES-256-GCM in place of
// XChaCha20-Poly1305.
package cryptocore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Key is a raw AES-256 key.
type Key [32]byte

// GenerateKey returns a fresh random AES-256 key.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return k, fmt.Errorf("cryptocore: generate key: %w", err)
	}
	return k, nil
}

// GenerateSalt returns 16 random bytes suitable as a PBKDF2 salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("cryptocore: generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey implements §4.7's deriveKey(password, salt, saltString, iterations):
//  1. combinedSalt = salt ∥ UTF8(saltString)
//  2. PBKDF2-SHA256 with iterations, producing an AES-256 key.
//
// Common saltString domain-separation values: "default", "signing",
// "encryption", "administration", a keyId, or "key-bag-encryption".
func DeriveKey(password []byte, salt []byte, saltString string, iterations int) Key {
	combinedSalt := append(append([]byte(nil), salt...), []byte(saltString)...)
	derived := pbkdf2.Key(password, combinedSalt, iterations, 32, sha256.New)
	var k Key
	copy(k[:], derived)
	return k
}

// Encrypt implements encryptPayload: AES-256-GCM with a random 12-byte IV,
// emitting iv(12) ∥ ciphertext_with_tag. aad may be nil.
func Encrypt(key Key, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptocore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptocore: new gcm: %w", err)
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("cryptocore: generate iv: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, aad)
	out := make([]byte, 0, len(iv)+len(sealed))
	out = append(out, iv...)
	out = append(out, sealed...)
	return out, nil
}

// EncryptDeterministic encrypts with iv = SHA-256(plaintext)[0:12], used by
// the attachment encryption-mode=deterministic framing (§4.5) to enable
// storage-level dedup by contentHash.
func EncryptDeterministic(key Key, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptocore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptocore: new gcm: %w", err)
	}
	sum := sha256.Sum256(plaintext)
	iv := sum[:gcm.NonceSize()]
	sealed := gcm.Seal(nil, iv, plaintext, aad)
	out := make([]byte, 0, len(iv)+len(sealed))
	out = append(out, iv...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt is the inverse of Encrypt/EncryptDeterministic: it expects
// iv(12) ∥ ciphertext_with_tag and rejects inputs shorter than 12 bytes.
func Decrypt(key Key, payload, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptocore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptocore: new gcm: %w", err)
	}
	if len(payload) < gcm.NonceSize() {
		return nil, fmt.Errorf("cryptocore: payload shorter than iv (%d bytes)", gcm.NonceSize())
	}
	iv, ciphertext := payload[:gcm.NonceSize()], payload[gcm.NonceSize():]
	plain, err := gcm.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("cryptocore: decrypt: %w", err)
	}
	return plain, nil
}

// Attachment encryption-mode bytes (§4.5): the first byte of an attachment
// chunk's encrypted payload records which IV strategy produced it, so
// decryptAttachmentPayload never has to guess.
const (
	AttachmentModeRandom        byte = 0x00
	AttachmentModeDeterministic byte = 0x01
)

// EncryptAttachmentPayload frames an attachment chunk's ciphertext with its
// encryption mode: mode(1) ∥ iv(12) ∥ ciphertext_with_tag. deterministic
// selects EncryptDeterministic (content-addressed dedup across chunks with
// identical plaintext) over Encrypt's random IV.
func EncryptAttachmentPayload(key Key, plaintext []byte, deterministic bool) ([]byte, error) {
	mode := AttachmentModeRandom
	encrypt := Encrypt
	if deterministic {
		mode = AttachmentModeDeterministic
		encrypt = EncryptDeterministic
	}
	body, err := encrypt(key, plaintext, nil)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(body))
	out = append(out, mode)
	out = append(out, body...)
	return out, nil
}

// DecryptAttachmentPayload reads the leading mode byte written by
// EncryptAttachmentPayload and decrypts the remaining iv(12) ∥
// ciphertext_with_tag accordingly, rejecting any mode it doesn't recognize.
func DecryptAttachmentPayload(key Key, framed []byte) ([]byte, error) {
	if len(framed) < 1 {
		return nil, fmt.Errorf("cryptocore: attachment payload empty")
	}
	mode, body := framed[0], framed[1:]
	switch mode {
	case AttachmentModeRandom, AttachmentModeDeterministic:
		return Decrypt(key, body, nil)
	default:
		return nil, fmt.Errorf("cryptocore: unknown attachment encryption mode 0x%02x", mode)
	}
}

// SHA256 returns the lowercase-hex SHA-256 digest of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256Bytes returns the raw SHA-256 digest of data.
func SHA256Bytes(data []byte) [32]byte { return sha256.Sum256(data) }

// ConstantTimeEqual reports whether two byte slices are equal without
// leaking timing information, used when comparing hashes derived from
// secrets (e.g. recomputed contentHash against a claimed one is fine to
// compare in variable time since neither side is a secret, but key
// comparisons go through this helper).
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
