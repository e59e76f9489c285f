package cli

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacewald/core/internal/mls"
	"github.com/spacewald/core/internal/opmodel"
)

var createSpaceCmd = &cobra.Command{
	Use:   "create-space <name>",
	Short: "Create a new space, with this node as its first admin member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := currentDir()
		if err != nil {
			return err
		}
		a, err := loadApp(root)
		if err != nil {
			return err
		}

		var spaceID opmodel.Hash32
		if _, err := rand.Read(spaceID[:]); err != nil {
			return err
		}

		keys, err := mls.KeysFromIdentity(a.Identity.Private, a.Identity.Public)
		if err != nil {
			return err
		}
		id := a.Identity.ID()
		kp, err := json.Marshal(mls.BuildKeyPackage(id[:], keys))
		if err != nil {
			return err
		}

		op, _, err := a.newOp(cmd.Context(), spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindCreateSpace,
			opmodel.CreateSpacePayload{Name: args[0], KeyPackage: kp})
		if err != nil {
			return err
		}
		if err := a.adoptOwnSecrets(spaceID, keys); err != nil {
			return fmt.Errorf("cli: adopt own mls secrets: %w", err)
		}
		fmt.Fprintf(os.Stdout, "space_id: %s\nop_id: %s\n", spaceID, op.OpID)
		return nil
	},
}
