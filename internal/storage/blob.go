package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spacewald/core/internal/crypto"
	"github.com/spacewald/core/internal/opmodel"
	"github.com/spacewald/core/internal/ports"
)

// FileSystemBlobStore is the disk-backed content-addressed encrypted
// blob store spec.md §6 names as the BlobStore port: blobs are
// AES-GCM-sealed under the caller-supplied key (the thread's MLS
// exporter-derived blob key) and named by the SHA-256 of their
// plaintext, same as the teacher's .mlsgit/ cache split plaintext from
// ciphertext on disk.
type FileSystemBlobStore struct {
	root string
}

// NewFileSystemBlobStore returns a FileSystemBlobStore rooted at root.
func NewFileSystemBlobStore(root string) (*FileSystemBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileSystemBlobStore{root: root}, nil
}

var _ ports.BlobStore = (*FileSystemBlobStore)(nil)

func (b *FileSystemBlobStore) path(hash ports.ContentHash) string {
	hex := hash.String()
	return filepath.Join(b.root, hex[:2], hex+".ct")
}

// Put AEAD-encrypts plaintext under key and stores it at a path derived
// from the plaintext's content hash.
func (b *FileSystemBlobStore) Put(ctx context.Context, plaintext []byte, key []byte) (ports.ContentHash, error) {
	hash := opmodel.Hash32(sha256.Sum256(plaintext))
	nonce, ct, err := crypto.AESGCMEncrypt(key, plaintext)
	if err != nil {
		return hash, fmt.Errorf("storage: seal blob: %w", err)
	}
	p := b.path(hash)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return hash, err
	}
	wire := crypto.B64Encode(append(append([]byte{}, nonce...), ct...), false)
	if err := os.WriteFile(p, []byte(wire), 0o644); err != nil {
		return hash, fmt.Errorf("storage: write blob: %w", err)
	}
	return hash, nil
}

// Get reads and decrypts the blob addressed by hash under key.
func (b *FileSystemBlobStore) Get(ctx context.Context, hash ports.ContentHash, key []byte) ([]byte, error) {
	data, err := os.ReadFile(b.path(hash))
	if err != nil {
		return nil, fmt.Errorf("storage: blob %s: %w", hash, err)
	}
	wire, err := crypto.B64Decode(strings.TrimSpace(string(data)), false)
	if err != nil {
		return nil, fmt.Errorf("storage: decode blob %s: %w", hash, err)
	}
	if len(wire) < crypto.IVSize {
		return nil, fmt.Errorf("storage: blob %s too short", hash)
	}
	nonce, ct := wire[:crypto.IVSize], wire[crypto.IVSize:]
	plaintext, err := crypto.AESGCMDecrypt(key, nonce, ct)
	if err != nil {
		return nil, fmt.Errorf("storage: open blob %s: %w", hash, err)
	}
	return plaintext, nil
}
