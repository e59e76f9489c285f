package ports

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/spacewald/core/internal/opmodel"
)

// MemoryTransport is a deterministic, in-process fake of Transport: it
// lets the Acceptance Pipeline, Holdback, and multi-node convergence
// tests run without a real P2P stack (spec.md §1 keeps the real substrate
// explicitly out of scope).
type MemoryTransport struct {
	mu   sync.Mutex
	subs map[GroupTopic][]chan []byte
	ops  map[opmodel.OpID][]byte
	welcomes map[opmodel.Hash32][][]byte
}

// NewMemoryTransport returns an empty in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		subs:     make(map[GroupTopic][]chan []byte),
		ops:      make(map[opmodel.OpID][]byte),
		welcomes: make(map[opmodel.Hash32][][]byte),
	}
}

// Publish fans b out to every current subscriber of topic. It stores
// nothing; only Remember makes bytes available to FetchByID.
func (t *MemoryTransport) Publish(ctx context.Context, topic GroupTopic, b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subs[topic] {
		select {
		case ch <- b:
		default:
			go func(ch chan []byte, b []byte) { ch <- b }(ch, b)
		}
	}
	return nil
}

// Remember indexes b by opID so a later FetchByID can serve it, mimicking
// a peer that already applied the op and can answer a pull request.
func (t *MemoryTransport) Remember(opID opmodel.OpID, b []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops[opID] = b
}

// Subscribe returns a channel fed by future Publish calls on topic.
func (t *MemoryTransport) Subscribe(ctx context.Context, topic GroupTopic) (<-chan []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan []byte, 256)
	t.subs[topic] = append(t.subs[topic], ch)
	return ch, nil
}

// FetchByID returns previously Remember-ed bytes for id, or (nil, nil).
func (t *MemoryTransport) FetchByID(ctx context.Context, id opmodel.OpID) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.ops[id]
	if !ok {
		return nil, nil
	}
	return b, nil
}

// DeliverWelcome addresses b to user for later Welcomes(user) retrieval.
func (t *MemoryTransport) DeliverWelcome(ctx context.Context, user opmodel.Hash32, b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.welcomes[user] = append(t.welcomes[user], b)
	return nil
}

// Welcomes drains and returns every Welcome addressed to user.
func (t *MemoryTransport) Welcomes(user opmodel.Hash32) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := t.welcomes[user]
	delete(t.welcomes, user)
	return w
}

// MemoryBlobStore is a deterministic in-process fake of BlobStore. It
// stores plaintext unsealed, content-addressed by its hash, alongside the
// key it was Put under, without persistence or replication.
type MemoryBlobStore struct {
	mu   sync.Mutex
	data map[ContentHash][]byte // plaintext, keyed by plaintext hash
	keys map[ContentHash][]byte
}

// NewMemoryBlobStore returns an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{data: make(map[ContentHash][]byte), keys: make(map[ContentHash][]byte)}
}

// Put stores plaintext content-addressed by its SHA-256 hash. Real AEAD
// sealing under key is the caller's (internal/mls thread blob key)
// responsibility upstream of this port in production; the in-memory fake
// stores plaintext directly since it never leaves the process.
func (b *MemoryBlobStore) Put(ctx context.Context, plaintext []byte, key []byte) (ContentHash, error) {
	hash := opmodel.Hash32(sha256.Sum256(plaintext))
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[hash] = append([]byte(nil), plaintext...)
	b.keys[hash] = append([]byte(nil), key...)
	return hash, nil
}

// Get returns the plaintext for hash, verifying key matches what was
// stored under Put (a stand-in for AEAD tag verification).
func (b *MemoryBlobStore) Get(ctx context.Context, hash ContentHash, key []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	plaintext, ok := b.data[hash]
	if !ok {
		return nil, fmt.Errorf("ports: blob %s not found", hash)
	}
	if string(b.keys[hash]) != string(key) {
		return nil, fmt.Errorf("ports: blob %s: key mismatch", hash)
	}
	return append([]byte(nil), plaintext...), nil
}

// MemoryPersistence is a deterministic in-process fake of Persistence:
// AtomicBatch is applied under a single mutex so it is trivially
// all-or-nothing.
type MemoryPersistence struct {
	mu       sync.Mutex
	ops      map[GroupID][]opmodel.Op
	mlsState map[GroupID][]byte
	outbound map[GroupID][][]byte
}

// NewMemoryPersistence returns an empty in-memory persistence store.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		ops:      make(map[GroupID][]opmodel.Op),
		mlsState: make(map[GroupID][]byte),
		outbound: make(map[GroupID][][]byte),
	}
}

// AtomicBatch appends b's ops, replaces the MLS state if non-nil, appends
// new outbound entries, and drops completed ones, all under one lock.
func (p *MemoryPersistence) AtomicBatch(ctx context.Context, group GroupID, b Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ops[group] = append(p.ops[group], b.Ops...)
	if b.MLSState != nil {
		p.mlsState[group] = append([]byte(nil), b.MLSState...)
	}

	queue := p.outbound[group]
	done := make(map[int]bool, len(b.OutboundDone))
	for _, i := range b.OutboundDone {
		done[i] = true
	}
	if len(done) > 0 {
		kept := queue[:0:0]
		for i, entry := range queue {
			if !done[i] {
				kept = append(kept, entry)
			}
		}
		queue = kept
	}
	queue = append(queue, b.OutboundAdds...)
	p.outbound[group] = queue
	return nil
}

// LoadOps returns every persisted op for group in write order.
func (p *MemoryPersistence) LoadOps(ctx context.Context, group GroupID) ([]opmodel.Op, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]opmodel.Op, len(p.ops[group]))
	copy(out, p.ops[group])
	return out, nil
}

// LoadMLSState returns the last persisted MLS state for group.
func (p *MemoryPersistence) LoadMLSState(ctx context.Context, group GroupID) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.mlsState[group]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), s...), true, nil
}

// LoadOutbound returns group's pending outbound queue.
func (p *MemoryPersistence) LoadOutbound(ctx context.Context, group GroupID) ([][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.outbound[group]))
	copy(out, p.outbound[group])
	return out, nil
}
