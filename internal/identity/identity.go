// Package identity manages long-term Ed25519 signing keypairs and the
// per-op signature/verification primitives used throughout spacewald.
package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"
)

// PassphraseEnv is the environment variable that supplies the key passphrase
// when loading an encrypted private key without one being passed explicitly.
const PassphraseEnv = "SPACEWALD_PASSPHRASE"

// UserID is a 32-byte Ed25519 public key, doubling as the stable identifier
// for a member (spec.md §3: "UserId = public signing key").
type UserID [32]byte

// UserIDFromPublicKey derives a UserID from a public signing key.
func UserIDFromPublicKey(pub ed25519.PublicKey) (UserID, error) {
	var id UserID
	if len(pub) != len(id) {
		return id, fmt.Errorf("identity: public key length %d, want %d", len(pub), len(id))
	}
	copy(id[:], pub)
	return id, nil
}

func (u UserID) String() string { return fmt.Sprintf("%x", u[:]) }

// Keypair bundles a long-term Ed25519 signing key pair.
type Keypair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// Generate creates a new Ed25519 keypair.
func Generate() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return Keypair{}, fmt.Errorf("identity: generate ed25519 key: %w", err)
	}
	return Keypair{Private: priv, Public: pub}, nil
}

// ID returns the UserID corresponding to this keypair's public key.
func (k Keypair) ID() UserID {
	id, _ := UserIDFromPublicKey(k.Public)
	return id
}

// Sign signs data and returns a 64-byte Ed25519 signature.
func Sign(priv ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(priv, data)
}

// Verify checks an Ed25519 signature against data and a public key.
func Verify(pub ed25519.PublicKey, data, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, data, signature)
}

// PrivateKeyToPEM serializes a private key to PKCS8 PEM, encrypting it with
// passphrase when non-empty.
func PrivateKeyToPEM(key ed25519.PrivateKey, passphrase []byte) (string, error) {
	if len(passphrase) > 0 {
		der, err := pkcs8.MarshalPrivateKey(key, passphrase, nil)
		if err != nil {
			return "", fmt.Errorf("identity: marshal encrypted private key: %w", err)
		}
		return string(pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der})), nil
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("identity: marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// PublicKeyToPEM serializes a public key to SPKI PEM.
func PublicKeyToPEM(key ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("identity: marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// LoadPrivateKey parses a private key from PEM. If passphrase is nil it
// falls back to the SPACEWALD_PASSPHRASE environment variable, and finally
// to no passphrase for unencrypted keys.
func LoadPrivateKey(pemStr string, passphrase []byte) (ed25519.PrivateKey, error) {
	if passphrase == nil {
		passphrase = passphraseFromEnv()
	}
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("identity: failed to decode PEM block")
	}

	if block.Type == "ENCRYPTED PRIVATE KEY" {
		key, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, passphrase)
		if err != nil {
			return nil, fmt.Errorf("identity: decrypt private key: %w", err)
		}
		edKey, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("identity: key is not Ed25519")
		}
		return edKey, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse private key: %w", err)
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("identity: key is not Ed25519")
	}
	return edKey, nil
}

// LoadPublicKey parses a public key from SPKI PEM.
func LoadPublicKey(pemStr string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("identity: failed to decode PEM block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse public key: %w", err)
	}
	edKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: key is not Ed25519")
	}
	return edKey, nil
}

// Fingerprint returns a short hex SHA-256 fingerprint of a public key's PEM.
func Fingerprint(pub ed25519.PublicKey) (string, error) {
	pemStr, err := PublicKeyToPEM(pub)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256([]byte(pemStr))
	return fmt.Sprintf("%x", h)[:16], nil
}

func passphraseFromEnv() []byte {
	if v := os.Getenv(PassphraseEnv); v != "" {
		return []byte(v)
	}
	return nil
}
