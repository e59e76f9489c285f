// Package ports defines the typed boundary interfaces spacewald's core
// correctness engine speaks to, and never implements production adapters
// for: the P2P transport substrate, the content-addressed blob store, and
// the local durable key-value store are all named collaborators kept
// explicitly out of scope (spec.md §1, §6).
package ports

import (
	"context"

	"github.com/spacewald/core/internal/opmodel"
)

// GroupTopic names a transport-level broadcast channel for one MLS group
// scope (a Space, or in channel-MLS mode a Channel).
type GroupTopic string

// ContentHash identifies a blob by the SHA-256 of its plaintext (spec.md
// §6: "storage is content-addressed on the plaintext hash").
type ContentHash = opmodel.Hash32

// GroupID identifies the persistence unit a Batch is written under: the
// MLS scope (Space or Channel) an op's epoch is relative to.
type GroupID = opmodel.Hash32

// Transport is the P2P pubsub/DHT substrate (out of scope per spec.md
// §1); the core only ever sees this interface.
type Transport interface {
	// Publish is a best-effort broadcast; it returns once at least one
	// peer has acknowledged, or after an implementation-defined timeout.
	Publish(ctx context.Context, topic GroupTopic, b []byte) error

	// Subscribe returns a stream of inbound messages for topic,
	// de-duplicated by op_id over a sliding window by the implementation.
	Subscribe(ctx context.Context, topic GroupTopic) (<-chan []byte, error)

	// FetchByID pulls one op's wire bytes from peers by content-addressed
	// id. A nil, nil result means no peer had it.
	FetchByID(ctx context.Context, id opmodel.OpID) ([]byte, error)

	// DeliverWelcome addresses an MLS Welcome to a specific user.
	DeliverWelcome(ctx context.Context, user opmodel.Hash32, b []byte) error
}

// BlobStore is the content-addressed encrypted blob store (out of scope
// per spec.md §1).
type BlobStore interface {
	// Put AEAD-encrypts plaintext under key and stores it, returning the
	// content hash of the plaintext (not the ciphertext).
	Put(ctx context.Context, plaintext []byte, key []byte) (ContentHash, error)

	// Get fetches and decrypts the blob addressed by hash using key.
	Get(ctx context.Context, hash ContentHash, key []byte) ([]byte, error)
}

// Batch is the unit of atomic persistence: one group's newly applied ops,
// its CRDT deltas, its MLS state, and any newly queued outbound entry
// (spec.md §5: "preserve atomicity of 'op + membership-index-update +
// MLS-state' as a single durable group").
type Batch struct {
	Group        GroupID
	Ops          []opmodel.Op
	MLSState     []byte // opaque serialized mls.Group state, or nil if unchanged
	OutboundAdds [][]byte
	OutboundDone []int // indices into a previously persisted outbound queue to drop
}

// Persistence is the local durable key-value store (out of scope per
// spec.md §1); AtomicBatch is the sole write path and must be all-or-
// nothing per group.
type Persistence interface {
	AtomicBatch(ctx context.Context, group GroupID, b Batch) error

	// LoadOps returns every op previously persisted for group, in the
	// order they were written, for local replay on startup.
	LoadOps(ctx context.Context, group GroupID) ([]opmodel.Op, error)

	// LoadMLSState returns the last persisted MLS state for group, or
	// (nil, false) if none has been written yet.
	LoadMLSState(ctx context.Context, group GroupID) ([]byte, bool, error)

	// LoadOutbound returns the pending outbound queue entries for group.
	LoadOutbound(ctx context.Context, group GroupID) ([][]byte, error)
}
