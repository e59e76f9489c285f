package storage

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// manifest tracks, per group, how many ops and outbound entries have
// been durably written, and how many of the outbound entries have since
// been consumed. It is the single file whose rename commits a batch
// (spec.md §5: "preserve atomicity of 'op + membership-index-update +
// MLS-state' as a single durable group").
type manifest struct {
	OpCount            int  `toml:"op_count"`
	OutboundCount      int  `toml:"outbound_count"`
	OutboundNextUnread int  `toml:"outbound_next_unread"`
	HasMLSState        bool `toml:"has_mls_state"`
}

func readManifest(path string) (manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return manifest{}, nil
		}
		return manifest{}, err
	}
	var m manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return manifest{}, fmt.Errorf("storage: parse manifest: %w", err)
	}
	return m, nil
}

// writeManifestAtomic writes m to path via a temp file + rename, so a
// crash mid-write never leaves a partially-written manifest behind.
func writeManifestAtomic(path string, m manifest) error {
	content := fmt.Sprintf(
		"op_count = %d\noutbound_count = %d\noutbound_next_unread = %d\nhas_mls_state = %t\n",
		m.OpCount, m.OutboundCount, m.OutboundNextUnread, m.HasMLSState,
	)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
