package mls

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/spacewald/core/internal/crypto"
)

const (
	markerPlain     byte = 0x00
	markerEncrypted byte = 0x01
)

// ErrNoGroup indicates scope has no locally-adopted MLS group yet: the
// CreateSpace/CreateChannel or Welcome that would establish it hasn't
// been processed by this node. Callers holding a ciphertext against such
// a scope should treat it like an epoch-behind decrypt failure (spec.md
// §4.3: buffered until the group exists, then retried), not a genuine
// AEAD failure.
var ErrNoGroup = errors.New("mls: no group for scope")

// ScopeKey identifies one MLS group: a Space, or in channel-MLS mode a
// Channel within a Space (spec.md §4.3: "one MLS group per Space (and, in
// the channel-MLS mode, one per Channel)").
type ScopeKey [32]byte

// Engine owns every group this node participates in. Per spec.md §5, each
// group's state is exclusively owned by that group's acceptance task. The
// mutex below guards only the engine's map of groups; a Group's own state
// has no lock, so access to one group is serialized by its caller.
type Engine struct {
	mu     sync.RWMutex
	groups map[ScopeKey]*Group
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{groups: make(map[ScopeKey]*Group)}
}

func (e *Engine) group(scope ScopeKey) (*Group, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.groups[scope]
	return g, ok
}

// Group exposes the raw *Group for scope, for callers (node bootstrap,
// CLI persistence) that need to serialize or inspect it directly rather
// than through one of the engine's op-shaped methods.
func (e *Engine) Group(scope ScopeKey) (*Group, bool) {
	return e.group(scope)
}

// CreateGroup creates a new group for scope with the local node as sole
// member and registers it with the engine.
func (e *Engine) CreateGroup(scope ScopeKey, identity []byte, keys MLSKeys) (*Group, error) {
	g, err := Create(scope[:], identity, keys)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.groups[scope] = g
	e.mu.Unlock()
	return g, nil
}

// AdoptGroup registers an already-constructed group (e.g. from
// JoinFromWelcome or FromBytes) under scope.
func (e *Engine) AdoptGroup(scope ScopeKey, g *Group) {
	e.mu.Lock()
	e.groups[scope] = g
	e.mu.Unlock()
}

// CurrentEpoch reports the local epoch for scope, for the Acceptance
// Pipeline's epoch-reconciliation step (spec.md §4.4 step 3).
func (e *Engine) CurrentEpoch(scope ScopeKey) (int, bool) {
	g, ok := e.group(scope)
	if !ok {
		return 0, false
	}
	return g.Epoch(), true
}

// CommitAdd adds user_id's key package to scope's group. Callers must have
// already checked the caller holds manage_members at the current epoch
// (spec.md §4.3); the engine itself does not consult the membership index.
func (e *Engine) CommitAdd(scope ScopeKey, kp KeyPackageData) (commit, welcome []byte, err error) {
	g, ok := e.group(scope)
	if !ok {
		return nil, nil, ErrNoGroup
	}
	return g.AddMember(kp)
}

// LeafIndexOf resolves sigPub (a member's identity/MLS signing public
// key) to its active leaf index in scope's group.
func (e *Engine) LeafIndexOf(scope ScopeKey, sigPub []byte) (int, bool) {
	g, ok := e.group(scope)
	if !ok {
		return 0, false
	}
	return g.LeafIndexOf(sigPub)
}

// CommitRemove removes the member at leafIndex from scope's group.
func (e *Engine) CommitRemove(scope ScopeKey, leafIndex int) ([]byte, error) {
	g, ok := e.group(scope)
	if !ok {
		return nil, ErrNoGroup
	}
	return g.RemoveMember(leafIndex)
}

// ProcessCommit applies a remote commit to scope's group, advancing the
// local epoch. May discover the local node was itself removed, surfaced
// as an error from Group.ApplyCommit.
func (e *Engine) ProcessCommit(scope ScopeKey, commitBytes []byte) error {
	g, ok := e.group(scope)
	if !ok {
		return ErrNoGroup
	}
	return g.ApplyCommit(commitBytes)
}

// EncryptApp seals plaintext under scope's current epoch exporter secret,
// producing the wire envelope [marker=0x01][space_id:32][nonce][ciphertext+tag].
func (e *Engine) EncryptApp(scope ScopeKey, spaceID [32]byte, plaintext []byte) ([]byte, error) {
	g, ok := e.group(scope)
	if !ok {
		return nil, ErrNoGroup
	}
	key := g.ExportEpochSecret()
	nonce, ct, err := crypto.AESGCMEncrypt(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("mls: encrypt app message: %w", err)
	}
	out := make([]byte, 0, 1+len(spaceID)+len(nonce)+len(ct))
	out = append(out, markerEncrypted)
	out = append(out, spaceID[:]...)
	out = append(out, nonce...)
	out = append(out, ct...)
	return out, nil
}

// WrapPlain produces the legacy/lightweight wire envelope
// [marker=0x00][plaintext…] for spaces in non-MLS membership mode.
func WrapPlain(plaintext []byte) []byte {
	out := make([]byte, 0, 1+len(plaintext))
	out = append(out, markerPlain)
	out = append(out, plaintext...)
	return out
}

// DecryptApp opens a wire envelope produced by EncryptApp or WrapPlain.
// AEAD failure is treated as a drop per spec.md §4.9 ("AEAD failure | Drop
// ciphertext; log; do not retry"): it is returned as a plain error, not
// wrapped in a holdback-triggering sentinel. Callers should have already
// performed the epoch-reconciliation step (via CurrentEpoch) before
// calling DecryptApp, since an epoch-ahead condition is buffered rather
// than treated as a decrypt failure.
func (e *Engine) DecryptApp(scope ScopeKey, spaceID [32]byte, wire []byte) ([]byte, error) {
	if len(wire) == 0 {
		return nil, fmt.Errorf("mls: empty wire envelope")
	}
	switch wire[0] {
	case markerPlain:
		return wire[1:], nil
	case markerEncrypted:
	default:
		return nil, fmt.Errorf("mls: unknown wire marker 0x%02x", wire[0])
	}

	if len(wire) < 1+len(spaceID) {
		return nil, fmt.Errorf("mls: wire envelope too short")
	}
	gotSpaceID := wire[1 : 1+len(spaceID)]
	if !bytes.Equal(gotSpaceID, spaceID[:]) {
		return nil, fmt.Errorf("mls: wire envelope space_id mismatch")
	}
	body := wire[1+len(spaceID):]
	if len(body) < crypto.IVSize {
		return nil, fmt.Errorf("mls: wire envelope missing nonce")
	}

	g, ok := e.group(scope)
	if !ok {
		return nil, ErrNoGroup
	}
	key := g.ExportEpochSecret()
	nonce := body[:crypto.IVSize]
	ct := body[crypto.IVSize:]
	plaintext, err := crypto.AESGCMDecrypt(key, nonce, ct)
	if err != nil {
		return nil, fmt.Errorf("mls: aead open failed: %w", err)
	}
	return plaintext, nil
}

// ThreadBlobKey derives the per-thread blob encryption key from scope's
// current epoch exporter secret (spec.md §4.3).
func (e *Engine) ThreadBlobKey(scope ScopeKey, threadID [32]byte) ([]byte, error) {
	g, ok := e.group(scope)
	if !ok {
		return nil, ErrNoGroup
	}
	return crypto.DeriveBlobKey(g.ExportEpochSecret(), threadID[:]), nil
}
