// Package mls maintains one MLS-like group per Space, and in channel-MLS
// mode one per Channel (spec.md §4.3). It provides epoch advancement with
// forward secrecy on removal, exporter-secret derivation, and application
// message sealing.
package mls

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/spacewald/core/internal/crypto"
)

// MLSKeys bundles keys generated for a group member: a long-term Ed25519
// signing key and an X25519 "init" key used to receive Welcome and
// removal-encapsulation ciphertexts.
type MLSKeys struct {
	SigPriv  ed25519.PrivateKey
	SigPub   ed25519.PublicKey
	InitPriv []byte // X25519 private scalar, 32 bytes
	InitPub  []byte // X25519 public key, 32 bytes
}

// GenerateMLSKeys generates all keys needed for group membership.
func GenerateMLSKeys() (MLSKeys, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return MLSKeys{}, fmt.Errorf("mls: generate ed25519: %w", err)
	}
	initPriv := make([]byte, 32)
	if _, err := rand.Read(initPriv); err != nil {
		return MLSKeys{}, fmt.Errorf("mls: generate init key: %w", err)
	}
	initPub, err := curve25519.X25519(initPriv, curve25519.Basepoint)
	if err != nil {
		return MLSKeys{}, fmt.Errorf("mls: derive init public key: %w", err)
	}

	return MLSKeys{
		SigPriv:  priv,
		SigPub:   pub,
		InitPriv: initPriv,
		InitPub:  initPub,
	}, nil
}

// KeysFromIdentity builds MLSKeys reusing identityPriv/identityPub as the
// member's signing key, matching spec.md §4.9's design note that a
// user's identity key doubles as their MLS key package signing key: a
// member's leaf is then resolvable from their UserID alone
// (Group.LeafIndexOf), with no separate MLS-only identity to distribute
// out of band. Only the X25519 init key pair is freshly generated.
func KeysFromIdentity(identityPriv ed25519.PrivateKey, identityPub ed25519.PublicKey) (MLSKeys, error) {
	initPriv := make([]byte, 32)
	if _, err := rand.Read(initPriv); err != nil {
		return MLSKeys{}, fmt.Errorf("mls: generate init key: %w", err)
	}
	initPub, err := curve25519.X25519(initPriv, curve25519.Basepoint)
	if err != nil {
		return MLSKeys{}, fmt.Errorf("mls: derive init public key: %w", err)
	}
	return MLSKeys{
		SigPriv:  identityPriv,
		SigPub:   identityPub,
		InitPriv: initPriv,
		InitPub:  initPub,
	}, nil
}

// KeyPackageData holds the serializable key package for a member.
type KeyPackageData struct {
	Identity []byte `json:"identity"`
	SigPub   []byte `json:"sig_pub"`
	InitPub  []byte `json:"init_pub"`
}

// BuildKeyPackage builds a serializable key package.
func BuildKeyPackage(identity []byte, keys MLSKeys) KeyPackageData {
	return KeyPackageData{
		Identity: identity,
		SigPub:   keys.SigPub,
		InitPub:  keys.InitPub,
	}
}

type memberEntry struct {
	SigPub  []byte `json:"sig_pub"`
	InitPub []byte `json:"init_pub"`
	Active  bool   `json:"active"`
}

// encapRound is one removal's per-recipient forward-secrecy encapsulation:
// a fresh update secret, ECIES-sealed to every member active just before
// the removal. The removed member holds no matching InitPriv and so
// cannot recover the update secret or any epoch secret derived from it.
type encapRound struct {
	Epoch      uint64         `json:"epoch"`
	Recipients map[int][]byte `json:"recipients"` // leaf index -> ECIES ciphertext
}

// groupState is the serializable internal state. EpochSecret and
// OwnLeafIndex are local-only and never appear on the wire (see
// committedState).
type groupState struct {
	GroupID      []byte       `json:"group_id"`
	Epoch        uint64       `json:"epoch"`
	EpochSecret  []byte       `json:"epoch_secret"`
	Members      []memberEntry `json:"members"`
	OwnLeafIndex int          `json:"own_leaf_index"`
	UpdateEncaps []encapRound `json:"update_encaps,omitempty"`
}

// committedState is the wire form of groupState shared with other
// members: no epoch secret, no local leaf index.
type committedState struct {
	GroupID      []byte       `json:"group_id"`
	Epoch        uint64       `json:"epoch"`
	Members      []memberEntry `json:"members"`
	UpdateEncaps []encapRound `json:"update_encaps,omitempty"`
	Op           string       `json:"op"` // "add" or "remove", tells ApplyCommit how to ratchet
}

// WelcomeData holds the data sent to a new member joining the group. It is
// always transmitted ECIES-sealed to the joiner's InitPub (see
// JoinFromWelcome), never in the clear.
type WelcomeData struct {
	GroupID      []byte        `json:"group_id"`
	Epoch        uint64        `json:"epoch"`
	EpochSecret  []byte        `json:"epoch_secret"`
	Members      []memberEntry `json:"members"`
	LeafIndex    int           `json:"leaf_index"`
	UpdateEncaps []encapRound  `json:"update_encaps,omitempty"`
}

// Group wraps MLS-like group state for one Space or Channel.
type Group struct {
	state      groupState
	sigKey     ed25519.PrivateKey
	ownInitKey []byte // X25519 private scalar
}

// Create creates a new group with the creator as the sole member.
func Create(groupID, identity []byte, keys MLSKeys) (*Group, error) {
	epochSecret := make([]byte, 32)
	if _, err := rand.Read(epochSecret); err != nil {
		return nil, fmt.Errorf("mls: generate epoch secret: %w", err)
	}

	g := &Group{
		state: groupState{
			GroupID:     groupID,
			Epoch:       0,
			EpochSecret: epochSecret,
			Members: []memberEntry{{
				SigPub:  keys.SigPub,
				InitPub: keys.InitPub,
				Active:  true,
			}},
			OwnLeafIndex: 0,
		},
		sigKey:     keys.SigPriv,
		ownInitKey: keys.InitPriv,
	}
	return g, nil
}

// JoinFromWelcome joins an existing group from an ECIES-sealed Welcome.
func JoinFromWelcome(encryptedWelcome []byte, keys MLSKeys) (*Group, error) {
	plaintext, err := crypto.DecryptWelcome(keys.InitPriv, encryptedWelcome)
	if err != nil {
		return nil, fmt.Errorf("mls: decrypt welcome: %w", err)
	}
	var w WelcomeData
	if err := json.Unmarshal(plaintext, &w); err != nil {
		return nil, fmt.Errorf("mls: unmarshal welcome: %w", err)
	}

	g := &Group{
		state: groupState{
			GroupID:      w.GroupID,
			Epoch:        w.Epoch,
			EpochSecret:  w.EpochSecret,
			Members:      w.Members,
			OwnLeafIndex: w.LeafIndex,
			UpdateEncaps: w.UpdateEncaps,
		},
		sigKey:     keys.SigPriv,
		ownInitKey: keys.InitPriv,
	}
	return g, nil
}

// FromBytes restores a group from state serialized by ToBytes.
func FromBytes(data []byte, sigPriv ed25519.PrivateKey, ownInitKey []byte) (*Group, error) {
	var s groupState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("mls: unmarshal group state: %w", err)
	}
	return &Group{state: s, sigKey: sigPriv, ownInitKey: ownInitKey}, nil
}

// ToBytes serializes the full local group state, including the epoch
// secret. Only for local persistence, never for transmission.
func (g *Group) ToBytes() ([]byte, error) {
	return json.Marshal(g.state)
}

// ToCommittedBytes serializes the group state for transmission to other
// members: no epoch secret, no local leaf index.
func (g *Group) ToCommittedBytes() ([]byte, error) {
	return json.Marshal(committedState{
		GroupID:      g.state.GroupID,
		Epoch:        g.state.Epoch,
		Members:      g.state.Members,
		UpdateEncaps: g.state.UpdateEncaps,
	})
}

// Epoch returns the current epoch number.
func (g *Group) Epoch() int { return int(g.state.Epoch) }

// MemberCount returns the number of active members.
func (g *Group) MemberCount() int {
	count := 0
	for _, m := range g.state.Members {
		if m.Active {
			count++
		}
	}
	return count
}

// OwnLeafIndex returns this member's leaf index.
func (g *Group) OwnLeafIndex() int { return g.state.OwnLeafIndex }

// LeafIndexOf returns the active leaf index whose signing key matches
// sigPub. spacewald's identity signing key doubles as a member's MLS
// key package signing key (KeyPackageData.SigPub), so callers resolve a
// UserID directly to the leaf MLS removal operates on.
func (g *Group) LeafIndexOf(sigPub []byte) (int, bool) {
	for i, m := range g.state.Members {
		if m.Active && bytesEqual(m.SigPub, sigPub) {
			return i, true
		}
	}
	return 0, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SigPriv returns the signing private key seed (32 bytes).
func (g *Group) SigPriv() []byte { return g.sigKey.Seed() }

// ExportEpochSecret derives the epoch application secret used by
// EncryptApp/DecryptApp and thread blob-key derivation.
func (g *Group) ExportEpochSecret() []byte {
	return exportSecret(g.state.EpochSecret, []byte("spacewald-epoch-secret"), nil, 32)
}

func exportSecret(epochSecret, label, context []byte, length int) []byte {
	info := append(append([]byte{}, label...), context...)
	r := hkdf.New(sha256.New, epochSecret, nil, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		panic(fmt.Sprintf("mls: hkdf export: %v", err))
	}
	return out
}

// advanceEpochAdd derives the next epoch secret for an addition. No member
// is excluded by an add, so a deterministic ratchet is sufficient: every
// current holder of the old secret can compute the new one.
func (g *Group) advanceEpochAdd() {
	epochBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(epochBytes, g.state.Epoch)
	r := hkdf.New(sha256.New, g.state.EpochSecret, epochBytes, []byte("spacewald-epoch-advance"))
	newSecret := make([]byte, 32)
	if _, err := io.ReadFull(r, newSecret); err != nil {
		panic(fmt.Sprintf("mls: hkdf advance: %v", err))
	}
	g.state.EpochSecret = newSecret
	g.state.Epoch++
}

// advanceEpochRemove derives the next epoch secret for a removal from a
// fresh random update secret, and seals that update secret to every
// remaining active member's InitPub. Returns the round so callers can
// include it in the commit and in the group's UpdateEncaps log.
func (g *Group) advanceEpochRemove() (encapRound, error) {
	updateSecret := make([]byte, 32)
	if _, err := rand.Read(updateSecret); err != nil {
		return encapRound{}, fmt.Errorf("mls: generate update secret: %w", err)
	}

	round := encapRound{Epoch: g.state.Epoch + 1, Recipients: make(map[int][]byte)}
	for i, m := range g.state.Members {
		if !m.Active {
			continue
		}
		sealed, err := crypto.EncryptWelcome(m.InitPub, updateSecret)
		if err != nil {
			return encapRound{}, fmt.Errorf("mls: seal update secret to leaf %d: %w", i, err)
		}
		round.Recipients[i] = sealed
	}

	newSecret, err := crypto.HKDFExpand(g.state.EpochSecret, updateSecret, []byte("spacewald-epoch-remove"), 32)
	if err != nil {
		return encapRound{}, fmt.Errorf("mls: derive post-removal secret: %w", err)
	}
	g.state.EpochSecret = newSecret
	g.state.Epoch++
	g.state.UpdateEncaps = append(g.state.UpdateEncaps, round)
	return round, nil
}

// AddMember adds a member to the group. Returns (committedCommitBytes,
// encryptedWelcomeBytes). The epoch advances after this operation.
func (g *Group) AddMember(kp KeyPackageData) ([]byte, []byte, error) {
	newLeafIndex := len(g.state.Members)
	g.state.Members = append(g.state.Members, memberEntry{
		SigPub:  kp.SigPub,
		InitPub: kp.InitPub,
		Active:  true,
	})

	g.advanceEpochAdd()

	welcome := WelcomeData{
		GroupID:      g.state.GroupID,
		Epoch:        g.state.Epoch,
		EpochSecret:  g.state.EpochSecret,
		Members:      g.state.Members,
		LeafIndex:    newLeafIndex,
		UpdateEncaps: g.state.UpdateEncaps,
	}
	welcomePlain, err := json.Marshal(welcome)
	if err != nil {
		return nil, nil, fmt.Errorf("mls: marshal welcome: %w", err)
	}
	welcomeSealed, err := crypto.EncryptWelcome(kp.InitPub, welcomePlain)
	if err != nil {
		return nil, nil, fmt.Errorf("mls: seal welcome: %w", err)
	}

	commit := committedState{
		GroupID:      g.state.GroupID,
		Epoch:        g.state.Epoch,
		Members:      g.state.Members,
		UpdateEncaps: g.state.UpdateEncaps,
		Op:           "add",
	}
	commitBytes, err := json.Marshal(commit)
	if err != nil {
		return nil, nil, fmt.Errorf("mls: marshal commit: %w", err)
	}

	return commitBytes, welcomeSealed, nil
}

// RemoveMember removes a member by leaf index with forward secrecy: the
// removed member cannot derive epoch secrets for this or any later epoch.
// Returns the committed commit bytes for other members.
func (g *Group) RemoveMember(leafIndex int) ([]byte, error) {
	if leafIndex < 0 || leafIndex >= len(g.state.Members) {
		return nil, fmt.Errorf("mls: leaf index %d out of range [0, %d)", leafIndex, len(g.state.Members))
	}
	if leafIndex == g.state.OwnLeafIndex {
		return nil, fmt.Errorf("mls: cannot remove self")
	}

	g.state.Members[leafIndex].Active = false
	if _, err := g.advanceEpochRemove(); err != nil {
		return nil, err
	}

	commit := committedState{
		GroupID:      g.state.GroupID,
		Epoch:        g.state.Epoch,
		Members:      g.state.Members,
		UpdateEncaps: g.state.UpdateEncaps,
		Op:           "remove",
	}
	commitBytes, err := json.Marshal(commit)
	if err != nil {
		return nil, fmt.Errorf("mls: marshal commit: %w", err)
	}
	return commitBytes, nil
}

// ApplyCommit applies a commit received from another member, ratcheting
// the local epoch secret forward to match.
func (g *Group) ApplyCommit(commitBytes []byte) error {
	var commit committedState
	if err := json.Unmarshal(commitBytes, &commit); err != nil {
		return fmt.Errorf("mls: unmarshal commit: %w", err)
	}
	if commit.Epoch <= g.state.Epoch {
		return nil // already applied or stale; idempotent
	}

	switch commit.Op {
	case "remove":
		round := commit.UpdateEncaps[len(commit.UpdateEncaps)-1]
		sealed, ok := round.Recipients[g.state.OwnLeafIndex]
		if !ok {
			return fmt.Errorf("mls: no update encap for this member; removed?")
		}
		updateSecret, err := crypto.DecryptWelcome(g.ownInitKey, sealed)
		if err != nil {
			return fmt.Errorf("mls: decrypt update encap: %w", err)
		}
		newSecret, err := crypto.HKDFExpand(g.state.EpochSecret, updateSecret, []byte("spacewald-epoch-remove"), 32)
		if err != nil {
			return fmt.Errorf("mls: derive post-removal secret: %w", err)
		}
		g.state.EpochSecret = newSecret
	default: // "add", or unlabeled legacy commits
		g.advanceEpochAdd()
	}

	g.state.Epoch = commit.Epoch
	g.state.Members = commit.Members
	g.state.UpdateEncaps = commit.UpdateEncaps
	return nil
}

// SyncFromCommitted updates group state from committed state bytes (e.g.
// pulled from transport after being offline), ratcheting the epoch secret
// through every intervening remove encap. Preserves the local
// OwnLeafIndex and signing/init keys. Returns true if state was updated.
//
// Accepts either ToCommittedBytes or ToBytes output (legacy full-state
// dumps carry epoch_secret/own_leaf_index, which are ignored here).
func (g *Group) SyncFromCommitted(committedBytes []byte) bool {
	var committed committedState
	if err := json.Unmarshal(committedBytes, &committed); err != nil {
		return false
	}
	if committed.Epoch <= g.state.Epoch {
		return false
	}
	ownLeaf := g.state.OwnLeafIndex
	if ownLeaf >= len(committed.Members) || !committed.Members[ownLeaf].Active {
		return false // we were removed
	}

	for _, round := range committed.UpdateEncaps {
		if round.Epoch <= g.state.Epoch {
			continue
		}
		sealed, ok := round.Recipients[ownLeaf]
		if !ok {
			continue // an add-round carries no recipients; deterministic ratchet instead
		}
		updateSecret, err := crypto.DecryptWelcome(g.ownInitKey, sealed)
		if err != nil {
			return false
		}
		newSecret, err := crypto.HKDFExpand(g.state.EpochSecret, updateSecret, []byte("spacewald-epoch-remove"), 32)
		if err != nil {
			return false
		}
		g.state.EpochSecret = newSecret
		g.state.Epoch = round.Epoch
	}

	// Catch any trailing add-only epochs the encap log didn't cover
	// (legacy/backward-compat: old-format callers never populated
	// UpdateEncaps for adds).
	for g.state.Epoch < committed.Epoch {
		g.advanceEpochAdd()
	}

	g.state.OwnLeafIndex = ownLeaf
	g.state.Members = committed.Members
	g.state.UpdateEncaps = committed.UpdateEncaps
	return true
}
