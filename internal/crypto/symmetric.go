// Package crypto provides the symmetric and key-derivation primitives
// shared by the MLS Engine, the file-system blob store, and blob-key
// derivation.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// AESKeySize is the key size for AES-256.
	AESKeySize = 32
	// IVSize is the GCM recommended nonce size.
	IVSize = 12
	// TagSize is the GCM authentication tag size.
	TagSize = 16
)

// HKDFExpand derives length bytes from secret using HKDF-SHA256 with the
// given salt and info.
func HKDFExpand(secret, salt, info []byte, length int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("crypto: hkdf expand: %w", err)
	}
	return out, nil
}

// DeriveFileKey derives a per-path AES-256 key from an MLS epoch secret.
//
//	key = HKDF-SHA-256(secret=epochSecret, salt=path, info="spacewald-file-key"||epoch_be64)
func DeriveFileKey(epochSecret []byte, path string, epoch int) []byte {
	info := make([]byte, len("spacewald-file-key")+8)
	copy(info, "spacewald-file-key")
	binary.BigEndian.PutUint64(info[len("spacewald-file-key"):], uint64(epoch))
	key, err := HKDFExpand(epochSecret, []byte(path), info, AESKeySize)
	if err != nil {
		panic(fmt.Sprintf("crypto: derive file key: %v", err))
	}
	return key
}

// DeriveBlobKey derives the per-thread blob encryption key from an MLS
// exporter secret (spec.md §4.3: "Thread blob key =
// HKDF(exporter_secret, salt=thread_id, info=\"blob-v1\")").
func DeriveBlobKey(exporterSecret, threadID []byte) []byte {
	key, err := HKDFExpand(exporterSecret, threadID, []byte("blob-v1"), AESKeySize)
	if err != nil {
		panic(fmt.Sprintf("crypto: derive blob key: %v", err))
	}
	return key
}

// AESGCMEncrypt encrypts plaintext with AES-256-GCM using a random nonce.
// Returns (nonce, ciphertext||tag).
func AESGCMEncrypt(key, plaintext []byte) (nonce, ct []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: random nonce: %w", err)
	}
	ct = gcm.Seal(nil, nonce, plaintext, nil)
	return nonce, ct, nil
}

// AESGCMDecrypt decrypts ciphertext (including its trailing GCM tag) with
// AES-256-GCM. Any failure is an AEAD authentication failure
// (spec.md §4.9: "AEAD failure | Drop ciphertext; log; do not retry").
func AESGCMDecrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < TagSize {
		return nil, fmt.Errorf("crypto: ciphertext too short (missing GCM tag)")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm decrypt: %w", err)
	}
	return plaintext, nil
}
