package opmodel

import (
	"bytes"
	"testing"

	"github.com/spacewald/core/internal/hlc"
	"github.com/spacewald/core/internal/identity"
)

func mustKeypair(t *testing.T) identity.Keypair {
	t.Helper()
	kp, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	return kp
}

func sampleOp(author identity.UserID) Op {
	return Op{
		SpaceID: Hash32{1, 2, 3},
		Kind:    KindCreatePost,
		Payload: []byte("hello"),
		Author:  author,
		HLC:     hlc.Timestamp{Wall: 100, Counter: 1},
		Epoch:   0,
	}
}

func TestFinalizeAndVerify(t *testing.T) {
	kp := mustKeypair(t)
	op, err := Finalize(sampleOp(kp.ID()), kp.Private)
	if err != nil {
		t.Fatal(err)
	}
	if op.OpID.IsZero() {
		t.Fatal("op_id should not be zero after finalize")
	}
	if err := VerifyIdentity(op, kp.Public); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

func TestMutationBreaksVerification(t *testing.T) {
	kp := mustKeypair(t)
	op, err := Finalize(sampleOp(kp.ID()), kp.Private)
	if err != nil {
		t.Fatal(err)
	}

	mutated := op
	mutated.Payload = append([]byte{}, op.Payload...)
	mutated.Payload[0] ^= 0xFF

	wantID, err := computeID(mutated)
	if err != nil {
		t.Fatal(err)
	}
	if wantID == op.OpID {
		t.Fatal("mutated payload should change the content-addressed id")
	}

	mutated.OpID = wantID // id matches content but signature no longer covers it
	if err := VerifyIdentity(mutated, kp.Public); err == nil {
		t.Fatal("expected signature verification to fail on mutated op")
	}
}

func TestContentAddressing(t *testing.T) {
	kp := mustKeypair(t)
	op, err := Finalize(sampleOp(kp.ID()), kp.Private)
	if err != nil {
		t.Fatal(err)
	}
	want, err := computeID(op)
	if err != nil {
		t.Fatal(err)
	}
	if want != op.OpID {
		t.Fatalf("op_id = %v, want %v", op.OpID, want)
	}
}

func TestRoundTrip(t *testing.T) {
	kp := mustKeypair(t)
	op, err := Finalize(sampleOp(kp.ID()), kp.Private)
	if err != nil {
		t.Fatal(err)
	}
	op.PrevOps = []OpID{{9, 9, 9}}

	encoded, err := Encode(op)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatal(err)
	}

	reencoded, err := Encode(decoded)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(encoded, reencoded) {
		t.Fatal("canonical encoding is not unique across round-trip")
	}
	if decoded.OpID != op.OpID || decoded.Kind != op.Kind {
		t.Fatalf("decoded op does not match original: %+v vs %+v", decoded, op)
	}
}
