package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacewald/core/internal/identity"
)

var initPassphrase string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new node: generate an identity and default config",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := currentDir()
		if err != nil {
			return err
		}
		pass := initPassphrase
		if pass == "" {
			pass = os.Getenv(identity.PassphraseEnv)
		}
		var passphrase []byte
		if pass != "" {
			passphrase = []byte(pass)
		}
		kp, err := bootstrap(root, passphrase)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "initialized node at %s\nuser_id: %s\n", root, kp.ID())
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initPassphrase, "passphrase", "", "encrypt the identity private key with this passphrase (falls back to "+identity.PassphraseEnv+")")
}
