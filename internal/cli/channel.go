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

var channelOwnMLSGroup bool

var createChannelCmd = &cobra.Command{
	Use:   "create-channel <space-id> <name>",
	Short: "Create a channel within a space",
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

		var channelID opmodel.Hash32
		if _, err := rand.Read(channelID[:]); err != nil {
			return err
		}

		payload := opmodel.CreateChannelPayload{Name: args[1], HasOwnMLSGroup: channelOwnMLSGroup}
		var keys mls.MLSKeys
		if channelOwnMLSGroup {
			keys, err = mls.KeysFromIdentity(a.Identity.Private, a.Identity.Public)
			if err != nil {
				return err
			}
			id := a.Identity.ID()
			kp, err := json.Marshal(mls.BuildKeyPackage(id[:], keys))
			if err != nil {
				return err
			}
			payload.KeyPackage = kp
		}

		op, _, err := a.newOp(cmd.Context(), spaceID, channelID, opmodel.Hash32{}, opmodel.KindCreateChannel, payload)
		if err != nil {
			return err
		}
		if channelOwnMLSGroup {
			if err := a.adoptOwnSecrets(channelID, keys); err != nil {
				return fmt.Errorf("cli: adopt own mls secrets: %w", err)
			}
		}
		fmt.Fprintf(os.Stdout, "channel_id: %s\nop_id: %s\n", channelID, op.OpID)
		return nil
	},
}

func init() {
	createChannelCmd.Flags().BoolVar(&channelOwnMLSGroup, "own-mls-group", false, "give this channel its own MLS group instead of inheriting the space's")
}
