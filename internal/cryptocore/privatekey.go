package cryptocore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// IVSize and TagSize are the fixed AES-256-GCM parameters §3/§4.7 mandate.
const (
	IVSize  = 12
	TagSize = 16
)

// EncryptedPrivateKey is the password-encrypted container for a private key
// (§3). iv is 12 bytes, tag is 16 bytes; decryption reassembles
// ciphertext ∥ tag for the GCM call.
type EncryptedPrivateKey struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	Tag        []byte `json:"tag"`
	Salt       []byte `json:"salt"`
	Iterations int    `json:"iterations"`
	CreatedAt  int64  `json:"createdAt,omitempty"`
}

// EncryptPrivateKey password-encrypts plaintext (a PKCS8 private key DER,
// or any raw secret) using PBKDF2-SHA256 with the given domain-separation
// saltString and iterations (floor enforced by callers per §4.7).
func EncryptPrivateKey(password []byte, plaintext []byte, saltString string, iterations int) (*EncryptedPrivateKey, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	key := DeriveKey(password, salt, saltString, iterations)

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
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	if len(sealed) < TagSize {
		return nil, fmt.Errorf("cryptocore: sealed output shorter than tag size")
	}
	ciphertext := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	return &EncryptedPrivateKey{
		Ciphertext: ciphertext,
		IV:         iv,
		Tag:        tag,
		Salt:       salt,
		Iterations: iterations,
	}, nil
}

// DecryptPrivateKey reverses EncryptPrivateKey. saltString must match what
// was used to encrypt (the caller supplies it; §4.2 documents the default
// conventions: "default", a keyId, etc).
func DecryptPrivateKey(password []byte, epk *EncryptedPrivateKey, saltString string) ([]byte, error) {
	if len(epk.IV) != IVSize {
		return nil, fmt.Errorf("cryptocore: iv must be %d bytes, got %d", IVSize, len(epk.IV))
	}
	if len(epk.Tag) != TagSize {
		return nil, fmt.Errorf("cryptocore: tag must be %d bytes, got %d", TagSize, len(epk.Tag))
	}
	key := DeriveKey(password, epk.Salt, saltString, epk.Iterations)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptocore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptocore: new gcm: %w", err)
	}

	sealed := make([]byte, 0, len(epk.Ciphertext)+len(epk.Tag))
	sealed = append(sealed, epk.Ciphertext...)
	sealed = append(sealed, epk.Tag...)

	plain, err := gcm.Open(nil, epk.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptocore: decrypt private key: %w", err)
	}
	return plain, nil
}
