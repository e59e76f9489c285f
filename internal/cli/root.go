// Package cli implements spacewald's command-line interface using Cobra,
// one subcommand per Op kind plus node lifecycle and read-only queries.
package cli

import (
	"github.com/spf13/cobra"
)

var nodeDir string

var rootCmd = &cobra.Command{
	Use:   "spacewald",
	Short: "E2E-encrypted community spaces over MLS-protected CRDT ops",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&nodeDir, "dir", "", "node directory (default: current directory)")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(createSpaceCmd)
	rootCmd.AddCommand(createChannelCmd)
	rootCmd.AddCommand(createThreadCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(editPostCmd)
	rootCmd.AddCommand(deletePostCmd)
	rootCmd.AddCommand(addMemberCmd)
	rootCmd.AddCommand(removeMemberCmd)
	rootCmd.AddCommand(banMemberCmd)
	rootCmd.AddCommand(assignRoleCmd)
	rootCmd.AddCommand(removeRoleCmd)
	rootCmd.AddCommand(createInviteCmd)
	rootCmd.AddCommand(useInviteCmd)
	rootCmd.AddCommand(keypackageCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(auditSealCmd)
	rootCmd.AddCommand(auditVerifyCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func currentDir() (string, error) {
	if nodeDir != "" {
		return nodeDir, nil
	}
	return ".", nil
}
