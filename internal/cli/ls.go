package cli

import (
	"github.com/spf13/cobra"

	"github.com/spacewald/core/internal/visibility"
)

// memberView is ls's per-member row.
type memberView struct {
	UserID   string `json:"user_id"`
	RoleID   string `json:"role_id,omitempty"`
	JoinedAt uint64 `json:"joined_at_epoch"`
}

var lsCmd = &cobra.Command{
	Use:   "ls <space-id>",
	Short: "List a space's current members and their roles",
	Args:  cobra.ExactArgs(1),
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

		docs := a.Store.Space(spaceID)
		members := visibility.New(nil).RenderMembers(docs.Members, docs.Roles)

		out := make([]memberView, 0, len(members))
		for _, m := range members {
			roleID := ""
			if m.HasRole {
				roleID = string(m.RoleID)
			}
			out = append(out, memberView{UserID: m.UserID.String(), RoleID: roleID, JoinedAt: m.JoinedAt})
		}
		return printJSON(out)
	},
}
