package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// ComputeOpLeafHash computes a Merkle leaf hash for one audit-log entry:
// SHA-256(op_id || SHA-256(canonical_op_bytes)).
func ComputeOpLeafHash(opID []byte, canonicalBytes []byte) []byte {
	bodyHash := sha256.Sum256(canonicalBytes)
	combined := append(append([]byte{}, opID...), bodyHash[:]...)
	h := sha256.Sum256(combined)
	return h[:]
}

// LeafHash pairs an audit op id with its leaf hash.
type LeafHash struct {
	OpID string
	Hash []byte
}

// ComputeMerkleRoot computes the Merkle root over a space's audit log.
// Entries are sorted by op id for deterministic ordering. Odd nodes are
// paired with themselves. Returns the hex-encoded root, or empty string
// for an empty log.
func ComputeMerkleRoot(leaves []LeafHash) string {
	if len(leaves) == 0 {
		return ""
	}

	sort.Slice(leaves, func(i, j int) bool {
		return leaves[i].OpID < leaves[j].OpID
	})

	nodes := make([][]byte, len(leaves))
	for i, l := range leaves {
		nodes[i] = l.Hash
	}

	for len(nodes) > 1 {
		var nextLevel [][]byte
		for i := 0; i < len(nodes); i += 2 {
			left := nodes[i]
			right := left
			if i+1 < len(nodes) {
				right = nodes[i+1]
			}
			combined := append(append([]byte{}, left...), right...)
			h := sha256.Sum256(combined)
			nextLevel = append(nextLevel, h[:])
		}
		nodes = nextLevel
	}

	return fmt.Sprintf("%x", nodes[0])
}

// SignMerkleRoot signs a Merkle root hash with Ed25519.
func SignMerkleRoot(rootHash string, privateKey ed25519.PrivateKey) []byte {
	return Sign(privateKey, []byte(rootHash))
}

// VerifyMerkleRoot verifies an Ed25519 signature on a Merkle root hash.
func VerifyMerkleRoot(rootHash string, signature []byte, publicKey ed25519.PublicKey) bool {
	return Verify(publicKey, []byte(rootHash), signature)
}

// AuditSeal is the signed periodic integrity seal over a space's audit
// projection (`spacewald audit-seal`/`spacewald audit-verify`). It plays
// the role the signed Merkle manifest once played over git blob contents:
// here the leaves are audit-log op ids rather than file paths.
type AuditSeal struct {
	SpaceID   string
	RootHash  string
	Signature []byte
	Sealer    string
	Epoch     uint64
	OpCount   int
}

// ToTOML serializes the seal to TOML for on-disk storage alongside a
// space's other persisted state.
func (s AuditSeal) ToTOML() string {
	sigB64 := B64Encode(s.Signature, false)
	return fmt.Sprintf(
		"[audit_seal]\nspace_id = %q\nroot_hash = %q\nsignature = %q\nsealer = %q\nepoch = %d\nop_count = %d\n",
		s.SpaceID, s.RootHash, sigB64, s.Sealer, s.Epoch, s.OpCount)
}

// AuditSealFromTOML parses an AuditSeal from TOML text.
func AuditSealFromTOML(text string) (AuditSeal, error) {
	type sealSection struct {
		SpaceID   string `toml:"space_id"`
		RootHash  string `toml:"root_hash"`
		Signature string `toml:"signature"`
		Sealer    string `toml:"sealer"`
		Epoch     uint64 `toml:"epoch"`
		OpCount   int    `toml:"op_count"`
	}
	type wrapper struct {
		Seal sealSection `toml:"audit_seal"`
	}

	var w wrapper
	if _, err := toml.Decode(text, &w); err != nil {
		return AuditSeal{}, fmt.Errorf("crypto: parsing audit seal TOML: %w", err)
	}

	sig, err := B64Decode(w.Seal.Signature, false)
	if err != nil {
		return AuditSeal{}, fmt.Errorf("crypto: decoding seal signature: %w", err)
	}

	return AuditSeal{
		SpaceID:   w.Seal.SpaceID,
		RootHash:  w.Seal.RootHash,
		Signature: sig,
		Sealer:    w.Seal.Sealer,
		Epoch:     w.Seal.Epoch,
		OpCount:   w.Seal.OpCount,
	}, nil
}
