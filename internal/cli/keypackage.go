package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacewald/core/internal/mls"
)

// keypackageCmd prints this node's MLS key package for a fresh
// membership it is not yet part of: a fresh X25519 init key pair paired
// with its long-term identity signing key (spec.md §4.9's design note
// that identity doubles as MLS signing identity). The out-of-band
// recipient (an existing member of the target group) pastes the output
// into add-member's <keypackage-file> argument. With --save, the
// matching InitPriv is also printed (hex, to stderr). Nothing stores it
// locally, and every run generates a new init key pair, so the key
// printed alongside a key package is the only one that matches it.
var keypackageSave bool

var keypackageCmd = &cobra.Command{
	Use:   "keypackage",
	Short: "Print this node's MLS key package for joining a group",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := currentDir()
		if err != nil {
			return err
		}
		a, err := loadApp(root)
		if err != nil {
			return err
		}

		keys, err := mls.KeysFromIdentity(a.Identity.Private, a.Identity.Public)
		if err != nil {
			return err
		}
		id := a.Identity.ID()
		kp := mls.BuildKeyPackage(id[:], keys)
		b, err := json.MarshalIndent(kp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(b))

		if keypackageSave {
			fmt.Fprintf(os.Stderr, "init_priv_hex: %x\n", keys.InitPriv)
		}
		return nil
	},
}

func init() {
	keypackageCmd.Flags().BoolVar(&keypackageSave, "save", false, "also print the init private key, to persist after the add-member round trip completes")
}
