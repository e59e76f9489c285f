package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spacewald/core/internal/opmodel"
)

// parseID decodes a hex-encoded Hash32 CLI argument (space/channel/
// thread/post/user id). An empty string decodes to the zero hash, the
// convention Op.HasChannel/HasThread rely on for "no scope".
func parseID(s string) (opmodel.Hash32, error) {
	var h opmodel.Hash32
	if s == "" {
		return h, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("cli: invalid id %q: %w", s, err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("cli: id %q is %d bytes, want %d", s, len(raw), len(h))
	}
	copy(h[:], raw)
	return h, nil
}

// printJSON writes v to stdout as indented JSON, the way the teacher's
// ls/review commands reported structured results.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
