// Package opmodel defines the canonical, signed, causally-ordered
// operation that is the sole currency of the spacewald CRDT log
// (spec.md §3, §4.2, §6).
package opmodel

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/spacewald/core/internal/hlc"
	"github.com/spacewald/core/internal/identity"
)

// Hash32 is a 32-byte content-addressed identifier: OpId, SpaceId,
// ChannelId, ThreadId, PostId, MessageId all share this shape (spec.md §3).
type Hash32 [32]byte

func (h Hash32) String() string { return fmt.Sprintf("%x", h[:]) }

// IsZero reports whether h is the zero hash (used for optional fields).
func (h Hash32) IsZero() bool { return h == Hash32{} }

type (
	OpID      = Hash32
	SpaceID   = Hash32
	ChannelID = Hash32
	ThreadID  = Hash32
	PostID    = Hash32
)

// Kind is the closed, tagged set of operation kinds (spec.md §3, §9: "no
// open-ended plugin surface in the core").
type Kind uint8

const (
	KindCreateSpace Kind = iota + 1
	KindCreateChannel
	KindCreateThread
	KindCreatePost
	KindEditPost
	KindDeletePost
	KindAssignRole
	KindRemoveRole
	KindAddMember
	KindRemoveMember
	KindBanMember
	KindUseInvite
	KindCreateInvite
)

func (k Kind) String() string {
	switch k {
	case KindCreateSpace:
		return "CreateSpace"
	case KindCreateChannel:
		return "CreateChannel"
	case KindCreateThread:
		return "CreateThread"
	case KindCreatePost:
		return "CreatePost"
	case KindEditPost:
		return "EditPost"
	case KindDeletePost:
		return "DeletePost"
	case KindAssignRole:
		return "AssignRole"
	case KindRemoveRole:
		return "RemoveRole"
	case KindAddMember:
		return "AddMember"
	case KindRemoveMember:
		return "RemoveMember"
	case KindBanMember:
		return "BanMember"
	case KindUseInvite:
		return "UseInvite"
	case KindCreateInvite:
		return "CreateInvite"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Op is the signed, epoch-stamped atomic unit of state change (spec.md §3,
// §6 wire format).
type Op struct {
	OpID      OpID        `cbor:"op_id"`
	SpaceID   SpaceID     `cbor:"space_id"`
	ChannelID ChannelID   `cbor:"channel_id"`
	ThreadID  ThreadID    `cbor:"thread_id"`
	Kind      Kind        `cbor:"kind"`
	Payload   []byte      `cbor:"payload"`
	PrevOps   []OpID      `cbor:"prev_ops"`
	Author    identity.UserID `cbor:"author"`
	HLC       hlc.Timestamp   `cbor:"hlc"`
	Epoch     uint64      `cbor:"epoch"`
	Signature []byte      `cbor:"signature"`
}

// HasChannel reports whether this op carries a non-zero channel scope.
func (o Op) HasChannel() bool { return !o.ChannelID.IsZero() }

// HasThread reports whether this op carries a non-zero thread scope.
func (o Op) HasThread() bool { return !o.ThreadID.IsZero() }

// computeID returns SHA256(canonical_bytes(op_without_signature)) per
// spec.md invariant 1.
func computeID(o Op) (OpID, error) {
	unsigned := o
	unsigned.OpID = OpID{}
	unsigned.Signature = nil
	b, err := CanonicalBytes(unsigned)
	if err != nil {
		return OpID{}, fmt.Errorf("opmodel: canonical encode for id: %w", err)
	}
	return sha256.Sum256(b), nil
}

// Finalize computes the op's content-addressed OpID and Ed25519 signature,
// returning a complete, signable Op. The caller's Author field must already
// match the signing key.
func Finalize(o Op, priv ed25519.PrivateKey) (Op, error) {
	o.OpID = OpID{}
	o.Signature = nil
	id, err := computeID(o)
	if err != nil {
		return Op{}, err
	}
	o.OpID = id

	signable := o
	signable.Signature = nil
	signBytes, err := CanonicalBytes(signable)
	if err != nil {
		return Op{}, fmt.Errorf("opmodel: canonical encode for signing: %w", err)
	}
	o.Signature = identity.Sign(priv, signBytes)
	return o, nil
}

// VerifyIdentity checks that op.OpID matches the content hash of its
// unsigned form, and that op.Signature verifies against pub (invariant 1).
func VerifyIdentity(o Op, pub ed25519.PublicKey) error {
	wantID, err := computeID(o)
	if err != nil {
		return err
	}
	if wantID != o.OpID {
		return fmt.Errorf("%w: op_id mismatch", ErrSignatureInvalid)
	}

	signable := o
	signable.Signature = nil
	signBytes, err := CanonicalBytes(signable)
	if err != nil {
		return err
	}
	if !identity.Verify(pub, signBytes, o.Signature) {
		return fmt.Errorf("%w: signature does not verify", ErrSignatureInvalid)
	}
	return nil
}
