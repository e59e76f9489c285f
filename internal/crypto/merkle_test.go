package crypto

import (
	"bytes"
	"testing"
)

func TestComputeOpLeafHash(t *testing.T) {
	hash1 := ComputeOpLeafHash([]byte("op1"), []byte("hello"))
	hash2 := ComputeOpLeafHash([]byte("op1"), []byte("hello"))
	hash3 := ComputeOpLeafHash([]byte("op2"), []byte("hello"))
	hash4 := ComputeOpLeafHash([]byte("op1"), []byte("world"))

	if !bytes.Equal(hash1, hash2) {
		t.Error("same inputs must produce same hash")
	}
	if bytes.Equal(hash1, hash3) {
		t.Error("different op ids must produce different hashes")
	}
	if bytes.Equal(hash1, hash4) {
		t.Error("different bodies must produce different hashes")
	}
	if len(hash1) != 32 {
		t.Errorf("hash length = %d, want 32", len(hash1))
	}
}

func TestComputeMerkleRootEmpty(t *testing.T) {
	root := ComputeMerkleRoot(nil)
	if root != "" {
		t.Errorf("empty log root = %q, want empty string", root)
	}
}

func TestComputeMerkleRootSingleLeaf(t *testing.T) {
	hash := ComputeOpLeafHash([]byte("op1"), []byte("hello"))
	root := ComputeMerkleRoot([]LeafHash{{OpID: "op1", Hash: hash}})

	if root == "" {
		t.Error("single-leaf root should not be empty")
	}
	if len(root) != 64 {
		t.Errorf("root hash hex length = %d, want 64", len(root))
	}
}

func TestComputeMerkleRootDeterministic(t *testing.T) {
	leaves := []LeafHash{
		{OpID: "opb", Hash: ComputeOpLeafHash([]byte("opb"), []byte("b"))},
		{OpID: "opa", Hash: ComputeOpLeafHash([]byte("opa"), []byte("a"))},
	}
	root1 := ComputeMerkleRoot(leaves)

	leaves2 := []LeafHash{
		{OpID: "opa", Hash: ComputeOpLeafHash([]byte("opa"), []byte("a"))},
		{OpID: "opb", Hash: ComputeOpLeafHash([]byte("opb"), []byte("b"))},
	}
	root2 := ComputeMerkleRoot(leaves2)

	if root1 != root2 {
		t.Errorf("roots differ: %q vs %q", root1, root2)
	}
}

func TestComputeMerkleRootOddNodes(t *testing.T) {
	leaves := []LeafHash{
		{OpID: "opa", Hash: ComputeOpLeafHash([]byte("opa"), []byte("a"))},
		{OpID: "opb", Hash: ComputeOpLeafHash([]byte("opb"), []byte("b"))},
		{OpID: "opc", Hash: ComputeOpLeafHash([]byte("opc"), []byte("c"))},
	}
	root := ComputeMerkleRoot(leaves)
	if root == "" {
		t.Error("odd-leaf-count root should not be empty")
	}
}

func TestSignVerifyMerkleRoot(t *testing.T) {
	priv, pub, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	rootHash := "abcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890"
	sig := SignMerkleRoot(rootHash, priv)

	if !VerifyMerkleRoot(rootHash, sig, pub) {
		t.Error("valid signature rejected")
	}
	if VerifyMerkleRoot("tampered", sig, pub) {
		t.Error("tampered root should be rejected")
	}
}

func TestAuditSealTOMLRoundtrip(t *testing.T) {
	priv, _, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	seal := AuditSeal{
		SpaceID:   "space-abc123",
		RootHash:  "abcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890",
		Signature: Sign(priv, []byte("test")),
		Sealer:    "user-def456",
		Epoch:     5,
		OpCount:   10,
	}

	text := seal.ToTOML()
	parsed, err := AuditSealFromTOML(text)
	if err != nil {
		t.Fatalf("AuditSealFromTOML error: %v", err)
	}

	if parsed.SpaceID != seal.SpaceID {
		t.Errorf("SpaceID = %q, want %q", parsed.SpaceID, seal.SpaceID)
	}
	if parsed.RootHash != seal.RootHash {
		t.Errorf("RootHash = %q, want %q", parsed.RootHash, seal.RootHash)
	}
	if !bytes.Equal(parsed.Signature, seal.Signature) {
		t.Error("Signature mismatch")
	}
	if parsed.Sealer != seal.Sealer {
		t.Errorf("Sealer = %q, want %q", parsed.Sealer, seal.Sealer)
	}
	if parsed.Epoch != seal.Epoch {
		t.Errorf("Epoch = %d, want %d", parsed.Epoch, seal.Epoch)
	}
	if parsed.OpCount != seal.OpCount {
		t.Errorf("OpCount = %d, want %d", parsed.OpCount, seal.OpCount)
	}
}
