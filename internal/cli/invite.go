package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacewald/core/internal/opmodel"
)

var (
	createInviteMaxUses     int
	createInviteExpiresUnix int64
)

var createInviteCmd = &cobra.Command{
	Use:   "create-invite <space-id> <code>",
	Short: "Mint a signed invite code for a space",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		root, err := currentDir()
		if err != nil {
			return err
		}
		a, err := loadApp(root)
		if err != nil {
			return err
		}

		op, _, err := a.newOp(cmd.Context(), spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindCreateInvite,
			opmodel.CreateInvitePayload{Code: args[1], MaxUses: createInviteMaxUses, ExpiresAtUnix: createInviteExpiresUnix})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "op_id: %s\n", op.OpID)
		return nil
	},
}

func init() {
	createInviteCmd.Flags().IntVar(&createInviteMaxUses, "max-uses", 0, "maximum redemptions, 0 for unlimited")
	createInviteCmd.Flags().Int64Var(&createInviteExpiresUnix, "expires-at", 0, "unix timestamp the invite expires at, 0 for never")
}

var useInviteCmd = &cobra.Command{
	Use:   "use-invite <space-id> <code>",
	Short: "Redeem an invite code (records one use; membership comes from a separate add-member)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		root, err := currentDir()
		if err != nil {
			return err
		}
		a, err := loadApp(root)
		if err != nil {
			return err
		}

		op, _, err := a.newOp(cmd.Context(), spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindUseInvite,
			opmodel.UseInvitePayload{Code: args[1], SpaceID: spaceID})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "op_id: %s\n", op.OpID)
		return nil
	},
}
