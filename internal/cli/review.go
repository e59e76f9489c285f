package cli

import (
	"github.com/spf13/cobra"

	"github.com/spacewald/core/internal/visibility"
)

var reviewCmd = &cobra.Command{
	Use:   "review <space-id> <thread-id>",
	Short: "Render a thread's posts in display order, with moderation tombstones overlaid",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		threadID, err := parseID(args[1])
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

		docs := a.Store.Space(spaceID)
		resolver := visibility.New(a.Pipeline.RoleLookup(spaceID))
		posts := resolver.RenderThread(docs.Thread(threadID), docs.Moderation)
		return printJSON(posts)
	},
}
