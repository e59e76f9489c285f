// Package storage provides the local durable key-value store spec.md §6
// names as the Persistence port: one directory per group, holding its
// applied ops, its last MLS state snapshot, and its pending outbound
// queue, in the same TOML-manifest-plus-base64-blob idiom the teacher
// used for its .mlsgit/ directory layout.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spacewald/core/internal/opmodel"
)

// Paths derives every well-known file under root for one group.
type Paths struct {
	Root string
}

// GroupDir is the directory holding everything persisted for group.
func (p Paths) GroupDir(group opmodel.Hash32) string {
	return filepath.Join(p.Root, "groups", group.String())
}

func (p Paths) ManifestTOML(group opmodel.Hash32) string {
	return filepath.Join(p.GroupDir(group), "manifest.toml")
}

func (p Paths) OpsDir(group opmodel.Hash32) string {
	return filepath.Join(p.GroupDir(group), "ops")
}

func (p Paths) OpFile(group opmodel.Hash32, index int) string {
	return filepath.Join(p.OpsDir(group), fmt.Sprintf("%08d.op.b64", index))
}

func (p Paths) MLSStateFile(group opmodel.Hash32) string {
	return filepath.Join(p.GroupDir(group), "mls_state.b64")
}

func (p Paths) OutboundDir(group opmodel.Hash32) string {
	return filepath.Join(p.GroupDir(group), "outbound")
}

func (p Paths) OutboundFile(group opmodel.Hash32, index int) string {
	return filepath.Join(p.OutboundDir(group), fmt.Sprintf("%08d.b64", index))
}

// EnsureGroupDirs creates group's directory tree (idempotent).
func (p Paths) EnsureGroupDirs(group opmodel.Hash32) error {
	for _, d := range []string{p.GroupDir(group), p.OpsDir(group), p.OutboundDir(group)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
