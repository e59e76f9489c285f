package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacewald/core/internal/opmodel"
)

var addMemberCmd = &cobra.Command{
	Use:   "add-member <space-id> <channel-id> <user-id> <role-id> <keypackage-file>",
	Short: "Add a member to a space (or, with a non-empty channel-id, to that channel's own MLS group), sealing them a Welcome",
	Long:  "channel-id may be the empty string (\"\") to add to the space's group.",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		channelID, err := parseID(args[1])
		if err != nil {
			return err
		}
		user, err := parseID(args[2])
		if err != nil {
			return err
		}
		kpBytes, err := os.ReadFile(args[4])
		if err != nil {
			return fmt.Errorf("cli: read key package: %w", err)
		}
		root, err := currentDir()
		if err != nil {
			return err
		}
		a, err := loadApp(root)
		if err != nil {
			return err
		}

		op, _, err := a.newOp(cmd.Context(), spaceID, channelID, opmodel.Hash32{}, opmodel.KindAddMember,
			opmodel.AddMemberPayload{User: user, RoleID: args[3], KeyPackage: kpBytes})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "op_id: %s\n", op.OpID)
		return nil
	},
}

var removeMemberCmd = &cobra.Command{
	Use:   "remove-member <space-id> <channel-id> <user-id>",
	Short: "Remove a member, ratcheting the group's MLS epoch forward",
	Long:  "channel-id may be the empty string (\"\") to remove from the space's group.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		channelID, err := parseID(args[1])
		if err != nil {
			return err
		}
		user, err := parseID(args[2])
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

		op, _, err := a.newOp(cmd.Context(), spaceID, channelID, opmodel.Hash32{}, opmodel.KindRemoveMember,
			opmodel.RemoveMemberPayload{User: user})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "op_id: %s\n", op.OpID)
		return nil
	},
}

var banMemberReason string

var banMemberCmd = &cobra.Command{
	Use:   "ban-member <space-id> <channel-id> <user-id>",
	Short: "Remove a member and record a moderation reason",
	Long:  "channel-id may be the empty string (\"\") to ban from the space's group.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		channelID, err := parseID(args[1])
		if err != nil {
			return err
		}
		user, err := parseID(args[2])
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

		op, _, err := a.newOp(cmd.Context(), spaceID, channelID, opmodel.Hash32{}, opmodel.KindBanMember,
			opmodel.BanMemberPayload{User: user, Reason: banMemberReason})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "op_id: %s\n", op.OpID)
		return nil
	},
}

func init() {
	banMemberCmd.Flags().StringVar(&banMemberReason, "reason", "", "moderation reason recorded alongside the ban")
}
