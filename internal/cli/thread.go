package cli

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacewald/core/internal/opmodel"
)

var createThreadCmd = &cobra.Command{
	Use:   "create-thread <space-id> <channel-id> <title>",
	Short: "Open a new thread within a channel",
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
		root, err := currentDir()
		if err != nil {
			return err
		}
		a, err := loadApp(root)
		if err != nil {
			return err
		}

		var threadID opmodel.Hash32
		if _, err := rand.Read(threadID[:]); err != nil {
			return err
		}

		op, _, err := a.newOp(cmd.Context(), spaceID, channelID, threadID, opmodel.KindCreateThread,
			opmodel.CreateThreadPayload{Title: args[2]})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "thread_id: %s\nop_id: %s\n", threadID, op.OpID)
		return nil
	},
}
