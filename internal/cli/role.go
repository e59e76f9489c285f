package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacewald/core/internal/opmodel"
)

var assignRoleCmd = &cobra.Command{
	Use:   "assign-role <space-id> <user-id> <role-id>",
	Short: "Assign a role to a member (role-id \"\" reverts to the default member role)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		user, err := parseID(args[1])
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

		op, _, err := a.newOp(cmd.Context(), spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindAssignRole,
			opmodel.AssignRolePayload{User: user, RoleID: args[2]})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "op_id: %s\n", op.OpID)
		return nil
	},
}

var removeRoleCmd = &cobra.Command{
	Use:   "remove-role <space-id> <user-id>",
	Short: "Clear a member's role assignment, reverting them to the default member role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		user, err := parseID(args[1])
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

		op, _, err := a.newOp(cmd.Context(), spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindRemoveRole,
			opmodel.RemoveRolePayload{User: user})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "op_id: %s\n", op.OpID)
		return nil
	},
}
