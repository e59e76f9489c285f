package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spacewald/core/internal/crypto"
	"github.com/spacewald/core/internal/opmodel"
	"github.com/spacewald/core/internal/ports"
)

// FileSystemPersistence is the local durable key-value store (spec.md
// §6's Persistence port), rooted at a directory and laid out one
// subtree per group via Paths. It is the disk-backed replacement for
// the teacher's .mlsgit/ working-copy layout, generalized from "one
// repo, one group" to "one root, many groups".
type FileSystemPersistence struct {
	paths Paths

	mu     sync.Mutex
	groups map[opmodel.Hash32]*sync.Mutex
}

// NewFileSystemPersistence returns a FileSystemPersistence rooted at
// root, creating it if necessary.
func NewFileSystemPersistence(root string) (*FileSystemPersistence, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &FileSystemPersistence{
		paths:  Paths{Root: root},
		groups: make(map[opmodel.Hash32]*sync.Mutex),
	}, nil
}

func (s *FileSystemPersistence) lockFor(group opmodel.Hash32) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.groups[group]
	if !ok {
		m = &sync.Mutex{}
		s.groups[group] = m
	}
	return m
}

var _ ports.Persistence = (*FileSystemPersistence)(nil)

// ListGroups returns every group that has at least one persisted batch
// under this root, for startup replay (cli.App.replay).
func (s *FileSystemPersistence) ListGroups() ([]opmodel.Hash32, error) {
	entries, err := os.ReadDir(filepath.Join(s.paths.Root, "groups"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var groups []opmodel.Hash32
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		raw, err := hex.DecodeString(e.Name())
		if err != nil || len(raw) != len(opmodel.Hash32{}) {
			continue
		}
		var id opmodel.Hash32
		copy(id[:], raw)
		groups = append(groups, id)
	}
	return groups, nil
}

// AtomicBatch durably writes b's new ops, MLS state, and outbound queue
// changes for group. Every op and outbound entry is written to its own
// file before the manifest is updated; the manifest rename is the single
// atomic commit point a crash can never observe half-applied, matching
// spec.md §5's per-group durability requirement.
func (s *FileSystemPersistence) AtomicBatch(ctx context.Context, group opmodel.Hash32, b ports.Batch) error {
	lock := s.lockFor(group)
	lock.Lock()
	defer lock.Unlock()

	if err := s.paths.EnsureGroupDirs(group); err != nil {
		return fmt.Errorf("storage: ensure dirs: %w", err)
	}
	m, err := readManifest(s.paths.ManifestTOML(group))
	if err != nil {
		return fmt.Errorf("storage: read manifest: %w", err)
	}

	for i, op := range b.Ops {
		wire, err := opmodel.Encode(op)
		if err != nil {
			return fmt.Errorf("storage: encode op %s: %w", op.OpID, err)
		}
		if err := os.WriteFile(s.paths.OpFile(group, m.OpCount+i), []byte(crypto.B64Encode(wire, false)), 0o644); err != nil {
			return fmt.Errorf("storage: write op %s: %w", op.OpID, err)
		}
	}
	m.OpCount += len(b.Ops)

	if b.MLSState != nil {
		if err := os.WriteFile(s.paths.MLSStateFile(group), []byte(crypto.B64Encode(b.MLSState, false)), 0o600); err != nil {
			return fmt.Errorf("storage: write mls state: %w", err)
		}
		m.HasMLSState = true
	}

	for i, entry := range b.OutboundAdds {
		if err := os.WriteFile(s.paths.OutboundFile(group, m.OutboundCount+i), []byte(crypto.B64Encode(entry, false)), 0o644); err != nil {
			return fmt.Errorf("storage: write outbound entry: %w", err)
		}
	}
	m.OutboundCount += len(b.OutboundAdds)

	for _, idx := range b.OutboundDone {
		if idx >= m.OutboundNextUnread {
			m.OutboundNextUnread = idx + 1
		}
		_ = os.Remove(s.paths.OutboundFile(group, idx))
	}

	return writeManifestAtomic(s.paths.ManifestTOML(group), m)
}

// LoadOps returns every op previously persisted for group, in write
// order, for local replay on startup.
func (s *FileSystemPersistence) LoadOps(ctx context.Context, group opmodel.Hash32) ([]opmodel.Op, error) {
	lock := s.lockFor(group)
	lock.Lock()
	defer lock.Unlock()

	m, err := readManifest(s.paths.ManifestTOML(group))
	if err != nil {
		return nil, err
	}
	ops := make([]opmodel.Op, 0, m.OpCount)
	for i := 0; i < m.OpCount; i++ {
		data, err := os.ReadFile(s.paths.OpFile(group, i))
		if err != nil {
			return nil, fmt.Errorf("storage: read op %d: %w", i, err)
		}
		wire, err := crypto.B64Decode(strings.TrimSpace(string(data)), false)
		if err != nil {
			return nil, fmt.Errorf("storage: decode op %d: %w", i, err)
		}
		op, err := opmodel.Decode(wire)
		if err != nil {
			return nil, fmt.Errorf("storage: unmarshal op %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// LoadMLSState returns the last persisted MLS state for group, or
// (nil, false) if none has been written yet.
func (s *FileSystemPersistence) LoadMLSState(ctx context.Context, group opmodel.Hash32) ([]byte, bool, error) {
	lock := s.lockFor(group)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.paths.MLSStateFile(group))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	state, err := crypto.B64Decode(strings.TrimSpace(string(data)), false)
	if err != nil {
		return nil, false, fmt.Errorf("storage: decode mls state: %w", err)
	}
	return state, true, nil
}

// LoadOutbound returns the pending (not-yet-consumed) outbound queue
// entries for group, in the order they were queued.
func (s *FileSystemPersistence) LoadOutbound(ctx context.Context, group opmodel.Hash32) ([][]byte, error) {
	lock := s.lockFor(group)
	lock.Lock()
	defer lock.Unlock()

	m, err := readManifest(s.paths.ManifestTOML(group))
	if err != nil {
		return nil, err
	}
	var out [][]byte
	for i := m.OutboundNextUnread; i < m.OutboundCount; i++ {
		data, err := os.ReadFile(s.paths.OutboundFile(group, i))
		if os.IsNotExist(err) {
			continue // already consumed and removed
		}
		if err != nil {
			return nil, fmt.Errorf("storage: read outbound %d: %w", i, err)
		}
		entry, err := crypto.B64Decode(strings.TrimSpace(string(data)), false)
		if err != nil {
			return nil, fmt.Errorf("storage: decode outbound %d: %w", i, err)
		}
		out = append(out, entry)
	}
	return out, nil
}
