package domain

import (
	"strings"

	"github.com/spacewald/core/internal/opmodel"
)

// Permissions is the role permission bitfield named in spec.md §3:
// view_channel, send, manage_roles, manage_channels, kick, ban,
// create_invite, administrator.
type Permissions uint32

const (
	PermViewChannel Permissions = 1 << iota
	PermSend
	PermManageRoles
	PermManageChannels
	PermKick
	PermBan
	PermCreateInvite
	PermAdministrator
)

var permissionNames = map[Permissions]string{
	PermViewChannel:     "view_channel",
	PermSend:            "send",
	PermManageRoles:     "manage_roles",
	PermManageChannels:  "manage_channels",
	PermKick:            "kick",
	PermBan:             "ban",
	PermCreateInvite:    "create_invite",
	PermAdministrator:   "administrator",
}

// Has reports whether p grants flag, with Administrator bypassing every
// other check (spec.md §4.4 step 5: "Admins bypass").
func (p Permissions) Has(flag Permissions) bool {
	if p&PermAdministrator != 0 {
		return true
	}
	return p&flag == flag
}

// Grant returns p with flag set.
func (p Permissions) Grant(flag Permissions) Permissions { return p | flag }

// Revoke returns p with flag cleared.
func (p Permissions) Revoke(flag Permissions) Permissions { return p &^ flag }

// Names renders the set bits as a sorted, human-readable list.
func (p Permissions) Names() []string {
	var names []string
	for _, flag := range []Permissions{
		PermViewChannel, PermSend, PermManageRoles, PermManageChannels,
		PermKick, PermBan, PermCreateInvite, PermAdministrator,
	} {
		if p&flag != 0 {
			names = append(names, permissionNames[flag])
		}
	}
	return names
}

func (p Permissions) String() string { return strings.Join(p.Names(), ",") }

// RequiredPermission returns the permission flag an op kind requires from
// its author, per spec.md §4.4 step 5. The boolean is false for kinds that
// carry no blanket permission requirement beyond membership (e.g. EditPost/DeletePost by the
// author themself need no extra permission at all -- moderation-by-
// non-author is handled separately by the caller).
func RequiredPermission(kind opmodel.Kind) (Permissions, bool) {
	switch kind {
	case opmodel.KindCreateChannel, opmodel.KindCreateThread:
		return PermManageChannels, true
	case opmodel.KindCreatePost:
		return PermSend, true
	case opmodel.KindAssignRole, opmodel.KindRemoveRole:
		return PermManageRoles, true
	case opmodel.KindAddMember:
		return PermManageRoles, true // MLS commit_add requires manage_members-equivalent
	case opmodel.KindRemoveMember:
		return PermKick, true
	case opmodel.KindBanMember:
		return PermBan, true
	case opmodel.KindCreateInvite:
		return PermCreateInvite, true
	default:
		return 0, false
	}
}
