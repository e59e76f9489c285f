package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacewald/core/internal/delta"
	"github.com/spacewald/core/internal/opmodel"
)

var postParent string

var postCmd = &cobra.Command{
	Use:   "post <space-id> <channel-id> <thread-id> <content>",
	Short: "Create a post in a thread",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		channelID, err := parseID(args[1])
		if err != nil {
			return err
		}
		threadID, err := parseID(args[2])
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

		key, err := a.Pipeline.ThreadBlobKey(spaceID, channelID, threadID)
		if err != nil {
			return fmt.Errorf("cli: derive thread blob key: %w", err)
		}
		contentHash, err := a.Blobs.Put(cmd.Context(), []byte(args[3]), key)
		if err != nil {
			return fmt.Errorf("cli: store post content: %w", err)
		}

		payload := opmodel.CreatePostPayload{ContentHash: contentHash}
		if postParent != "" {
			parent, err := parseID(postParent)
			if err != nil {
				return err
			}
			payload.HasParent = true
			payload.Parent = parent
		}

		op, _, err := a.newOp(cmd.Context(), spaceID, channelID, threadID, opmodel.KindCreatePost, payload)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "post_id: %s\nop_id: %s\n", op.OpID, op.OpID)
		return nil
	},
}

func init() {
	postCmd.Flags().StringVar(&postParent, "parent", "", "reply to this post id")
}

var editPostCmd = &cobra.Command{
	Use:   "edit-post <space-id> <channel-id> <thread-id> <target-post-id> <new-content>",
	Short: "Replace a post's visible content, carrying a delta against the prior text when available",
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
		threadID, err := parseID(args[2])
		if err != nil {
			return err
		}
		target, err := parseID(args[3])
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

		key, err := a.Pipeline.ThreadBlobKey(spaceID, channelID, threadID)
		if err != nil {
			return fmt.Errorf("cli: derive thread blob key: %w", err)
		}

		newContent := args[4]
		var deltaBytes []byte
		if oldHash, ok := a.Store.Space(spaceID).Thread(threadID).VisibleContent(target); ok {
			if oldContent, err := a.Blobs.Get(cmd.Context(), oldHash, key); err == nil {
				deltaBytes = []byte(delta.ComputeDelta(string(oldContent), newContent))
			}
		}

		contentHash, err := a.Blobs.Put(cmd.Context(), []byte(newContent), key)
		if err != nil {
			return fmt.Errorf("cli: store edited content: %w", err)
		}

		op, _, err := a.newOp(cmd.Context(), spaceID, channelID, threadID, opmodel.KindEditPost,
			opmodel.EditPostPayload{Target: target, ContentHash: contentHash, Delta: deltaBytes})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "op_id: %s\n", op.OpID)
		return nil
	},
}

var deletePostCmd = &cobra.Command{
	Use:   "delete-post <space-id> <channel-id> <thread-id> <target-post-id>",
	Short: "Tombstone a post",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		spaceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		channelID, err := parseID(args[1])
		if err != nil {
			return err
		}
		threadID, err := parseID(args[2])
		if err != nil {
			return err
		}
		target, err := parseID(args[3])
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

		op, _, err := a.newOp(cmd.Context(), spaceID, channelID, threadID, opmodel.KindDeletePost,
			opmodel.DeletePostPayload{Target: target})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "op_id: %s\n", op.OpID)
		return nil
	},
}
