package crypto

import (
	"crypto/ed25519"
	"fmt"
)

// GenerateKeypair generates an Ed25519 key pair for use by crypto-internal
// callers (the audit seal). Long-term member identity keypairs are managed
// by the identity package instead, which also handles PEM/PKCS8 storage.
func GenerateKeypair() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: ed25519 keygen: %w", err)
	}
	return priv, pub, nil
}

// Sign signs data with Ed25519.
func Sign(privateKey ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(privateKey, data)
}

// Verify verifies an Ed25519 signature. Returns true on success.
func Verify(publicKey ed25519.PublicKey, data, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, data, signature)
}
