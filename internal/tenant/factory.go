// Package tenant implements TenantFactory and Tenant (§4.8): the entry point
// that mints user identities, asserts a KeyBag is ready to open a tenant,
// and owns every Database (including the singleton directory) a signed-in
// user can reach.
//
// Grounded on internal/vault/manager.go's "one manager owns many named
// sub-stores, looked up and created on demand" shape for Tenant owning
// multiple Databases, and on cmd/vaultd/main.go's password-unlock-then-open
// flow for TenantFactory.openTenant.
package tenant

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/amaydixit11/mindoodb/internal/config"
	"github.com/amaydixit11/mindoodb/internal/cryptocore"
)

// Identity is one user's key material: a signing (Ed25519) and an
// encryption (RSA-OAEP-3072) key pair, per §4.7's cross-cutting rule that
// signing and encryption never share a key.
type Identity struct {
	Username string

	SigningPublicKeyPEM string
	SigningPrivateKey   ed25519.PrivateKey

	EncryptionPublicKeyPEM string
	EncryptionPrivateKey   *rsa.PrivateKey
}

// Factory mints user identities and administration key pairs.
type Factory struct {
	cfg config.Config
}

// NewFactory creates a Factory using cfg's PBKDF2 iteration count for every
// private-key encryption it performs.
func NewFactory(cfg config.Config) *Factory {
	return &Factory{cfg: cfg}
}

// CreateUserID generates a fresh Identity for username, encrypting each
// private key under password with its domain-separated salt string
// ("signing", "encryption" — §4.7).
func (f *Factory) CreateUserID(username string, password []byte) (*Identity, *cryptocore.EncryptedPrivateKey, *cryptocore.EncryptedPrivateKey, error) {
	signingPub, signingPriv, err := cryptocore.GenerateSigningKeyPair()
	if err != nil {
		return nil, nil, nil, err
	}
	encPub, encPriv, err := cryptocore.GenerateEncryptionKeyPair()
	if err != nil {
		return nil, nil, nil, err
	}

	signingPubPEM, err := cryptocore.EncodeSigningPublicKeyPEM(signingPub)
	if err != nil {
		return nil, nil, nil, err
	}
	encPubPEM, err := cryptocore.EncodeEncryptionPublicKeyPEM(encPub)
	if err != nil {
		return nil, nil, nil, err
	}

	encryptedSigning, err := f.encryptSigningKey(signingPriv, password, "signing")
	if err != nil {
		return nil, nil, nil, err
	}
	encryptedEnc, err := f.encryptEncryptionKey(encPriv, password, "encryption")
	if err != nil {
		return nil, nil, nil, err
	}

	return &Identity{
		Username:               username,
		SigningPublicKeyPEM:    signingPubPEM,
		SigningPrivateKey:      signingPriv,
		EncryptionPublicKeyPEM: encPubPEM,
		EncryptionPrivateKey:   encPriv,
	}, encryptedSigning, encryptedEnc, nil
}

// CreateSigningKeyPair generates a standalone Ed25519 key pair (used for the
// tenant's administration key), returning its PEM-encoded public half, the
// private key, and the password-encrypted private key blob.
func (f *Factory) CreateSigningKeyPair(password []byte) (pubPEM string, priv ed25519.PrivateKey, encrypted *cryptocore.EncryptedPrivateKey, err error) {
	pub, priv, err := cryptocore.GenerateSigningKeyPair()
	if err != nil {
		return "", nil, nil, err
	}
	pubPEM, err = cryptocore.EncodeSigningPublicKeyPEM(pub)
	if err != nil {
		return "", nil, nil, err
	}
	encrypted, err = f.encryptSigningKey(priv, password, "signing")
	if err != nil {
		return "", nil, nil, err
	}
	return pubPEM, priv, encrypted, nil
}

// CreateEncryptionKeyPair generates a standalone RSA-OAEP key pair (used for
// the tenant's administration encryption key).
func (f *Factory) CreateEncryptionKeyPair(password []byte) (pubPEM string, priv *rsa.PrivateKey, encrypted *cryptocore.EncryptedPrivateKey, err error) {
	pub, priv, err := cryptocore.GenerateEncryptionKeyPair()
	if err != nil {
		return "", nil, nil, err
	}
	pubPEM, err = cryptocore.EncodeEncryptionPublicKeyPEM(pub)
	if err != nil {
		return "", nil, nil, err
	}
	encrypted, err = f.encryptEncryptionKey(priv, password, "encryption")
	if err != nil {
		return "", nil, nil, err
	}
	return pubPEM, priv, encrypted, nil
}

func (f *Factory) encryptSigningKey(priv ed25519.PrivateKey, password []byte, saltString string) (*cryptocore.EncryptedPrivateKey, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("tenant: marshal signing private key: %w", err)
	}
	return cryptocore.EncryptPrivateKey(password, der, saltString, f.cfg.PBKDF2Iterations)
}

func (f *Factory) encryptEncryptionKey(priv *rsa.PrivateKey, password []byte, saltString string) (*cryptocore.EncryptedPrivateKey, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("tenant: marshal encryption private key: %w", err)
	}
	return cryptocore.EncryptPrivateKey(password, der, saltString, f.cfg.PBKDF2Iterations)
}

// DecryptSigningKey recovers an Ed25519 private key from an EncryptedPrivateKey.
func DecryptSigningKey(encrypted *cryptocore.EncryptedPrivateKey, password []byte, saltString string) (ed25519.PrivateKey, error) {
	der, err := cryptocore.DecryptPrivateKey(password, encrypted, saltString)
	if err != nil {
		return nil, err
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("tenant: parse signing private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("tenant: decrypted key is not Ed25519")
	}
	return priv, nil
}

// DecryptEncryptionKey recovers an RSA private key from an EncryptedPrivateKey.
func DecryptEncryptionKey(encrypted *cryptocore.EncryptedPrivateKey, password []byte, saltString string) (*rsa.PrivateKey, error) {
	der, err := cryptocore.DecryptPrivateKey(password, encrypted, saltString)
	if err != nil {
		return nil, err
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("tenant: parse encryption private key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("tenant: decrypted key is not RSA")
	}
	return priv, nil
}
