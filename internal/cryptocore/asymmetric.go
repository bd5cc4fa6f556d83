package cryptocore

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
)

// RSAKeyBits is the modulus size §4.7 mandates for the encryption key pair.
const RSAKeyBits = 3072

// GenerateSigningKeyPair creates a fresh Ed25519 key pair.
func GenerateSigningKeyPair() (pub ed25519.PublicKey, priv ed25519.PrivateKey, err error) {
	pub, priv, err = ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptocore: generate signing key pair: %w", err)
	}
	return pub, priv, nil
}

// GenerateEncryptionKeyPair creates a fresh RSA-OAEP 3072-bit key pair.
func GenerateEncryptionKeyPair() (*rsa.PublicKey, *rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptocore: generate encryption key pair: %w", err)
	}
	return &priv.PublicKey, priv, nil
}

// Sign produces a 64-byte Ed25519 signature over data.
func Sign(priv ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(priv, data)
}

// Verify checks an Ed25519 signature over data.
func Verify(pub ed25519.PublicKey, data, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, data, signature)
}

// EncodeSigningPublicKeyPEM renders an Ed25519 public key as SPKI/PEM, the
// wire representation §6 requires for createdByPublicKey.
func EncodeSigningPublicKeyPEM(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("cryptocore: marshal signing public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// DecodeSigningPublicKeyPEM parses a SPKI/PEM Ed25519 public key.
func DecodeSigningPublicKeyPEM(s string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("cryptocore: no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptocore: parse signing public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cryptocore: public key is not Ed25519")
	}
	return pub, nil
}

// EncodeEncryptionPublicKeyPEM renders an RSA public key as SPKI/PEM.
func EncodeEncryptionPublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("cryptocore: marshal encryption public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// DecodeEncryptionPublicKeyPEM parses a SPKI/PEM RSA public key.
func DecodeEncryptionPublicKeyPEM(s string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("cryptocore: no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptocore: parse encryption public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cryptocore: public key is not RSA")
	}
	return pub, nil
}

// HybridEncrypt implements §4.7's cross-cutting rule for RSA payloads:
// a random AES-256 key encrypts the data with AES-GCM; that AES key is
// encrypted with RSA-OAEP-SHA256 under pub; the RSA blob is prefixed with a
// 2-byte big-endian length. Layout: len(2) ∥ rsaBlob ∥ iv(12) ∥ ct ∥ tag(16).
func HybridEncrypt(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	aesKey, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	rsaBlob, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey[:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptocore: rsa-oaep encrypt: %w", err)
	}
	if len(rsaBlob) > 0xFFFF {
		return nil, fmt.Errorf("cryptocore: rsa blob too large to length-prefix")
	}
	aesPayload, err := Encrypt(aesKey, plaintext, nil)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 2+len(rsaBlob)+len(aesPayload))
	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(rsaBlob)))
	out = append(out, lenPrefix[:]...)
	out = append(out, rsaBlob...)
	out = append(out, aesPayload...)
	return out, nil
}

// HybridDecrypt is the inverse of HybridEncrypt.
func HybridDecrypt(priv *rsa.PrivateKey, payload []byte) ([]byte, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("cryptocore: hybrid payload too short")
	}
	rsaLen := int(binary.BigEndian.Uint16(payload[:2]))
	if len(payload) < 2+rsaLen {
		return nil, fmt.Errorf("cryptocore: hybrid payload truncated")
	}
	rsaBlob := payload[2 : 2+rsaLen]
	aesPayload := payload[2+rsaLen:]

	aesKeyBytes, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, rsaBlob, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptocore: rsa-oaep decrypt: %w", err)
	}
	if len(aesKeyBytes) != 32 {
		return nil, fmt.Errorf("cryptocore: unexpected unwrapped key length %d", len(aesKeyBytes))
	}
	var aesKey Key
	copy(aesKey[:], aesKeyBytes)
	return Decrypt(aesKey, aesPayload, nil)
}
