// Package domain defines the storage-facing value types that the CRDT
// store and Visibility Resolver project from applied ops (spec.md §3).
package domain

import (
	"time"

	"github.com/spacewald/core/internal/hlc"
	"github.com/spacewald/core/internal/opmodel"
)

// Visibility is a Space's discoverability level.
type Visibility int

const (
	VisibilityPublic Visibility = iota
	VisibilityPrivate
	VisibilityHidden
)

// MembershipMode selects whether a Space's membership is enforced
// cryptographically (MLS) or left to application-level bookkeeping.
type MembershipMode int

const (
	MembershipLightweight MembershipMode = iota
	MembershipMLS
)

// Space is a top-level community and, in MLS mode, an MLS trust domain.
type Space struct {
	ID             opmodel.SpaceID
	Name           string
	Creator        opmodel.Hash32
	Visibility     Visibility
	MembershipMode MembershipMode
	CreatedAt      time.Time
}

// Channel subdivides a Space and may own its own MLS group
// (spec.md §4.9 design note: channel-MLS mode).
type Channel struct {
	ID            opmodel.ChannelID
	SpaceID       opmodel.SpaceID
	Name          string
	MLSGroupID    opmodel.Hash32 // zero if the channel has no group of its own
	HasOwnMLSGroup bool
}

// Thread is an ordered post sequence within a channel.
type Thread struct {
	ID          opmodel.ThreadID
	ChannelID   opmodel.ChannelID
	Title       string
	FirstPostID opmodel.PostID
}

// Post is a single signed, content-addressed message.
type Post struct {
	ID            opmodel.PostID
	ThreadID      opmodel.ThreadID
	Author        opmodel.Hash32
	HLC           hlc.Timestamp
	Epoch         uint64
	ContentBlobRef opmodel.Hash32
	Parent        opmodel.PostID
	HasParent     bool
}

// Member is a Space's record of a user's tenure.
type Member struct {
	UserID        opmodel.Hash32
	RoleID        RoleID
	JoinedAtEpoch uint64
	RemovedAtEpoch *uint64
}

// Active reports whether the member has not been removed.
func (m Member) Active() bool { return m.RemovedAtEpoch == nil }

// RoleID identifies a role; built-in ids are stable well-known values.
type RoleID string

const (
	RoleAdmin     RoleID = "admin"
	RoleModerator RoleID = "moderator"
	RoleMember    RoleID = "member"
)

// Role carries a name, a permission bitfield, and a priority used to break
// ties between concurrent moderation ops (spec.md invariant 6).
type Role struct {
	ID          RoleID
	Name        string
	Permissions Permissions
	Priority    int
}

// BuiltinRolePriority is priority(Admin) > priority(Moderator) > priority(Member).
var BuiltinRolePriority = map[RoleID]int{
	RoleAdmin:     300,
	RoleModerator: 200,
	RoleMember:    100,
}

// IsBuiltin reports whether id names one of the three built-in roles,
// which can never be deleted (spec.md invariant 6).
func IsBuiltin(id RoleID) bool {
	_, ok := BuiltinRolePriority[id]
	return ok
}

// BuiltinRoles returns the three default roles with their standard
// permission grants.
func BuiltinRoles() map[RoleID]Role {
	return map[RoleID]Role{
		RoleAdmin: {
			ID: RoleAdmin, Name: "Admin",
			Permissions: PermAdministrator,
			Priority:    BuiltinRolePriority[RoleAdmin],
		},
		RoleModerator: {
			ID: RoleModerator, Name: "Moderator",
			Permissions: PermViewChannel | PermSend | PermKick | PermBan | PermCreateInvite,
			Priority:    BuiltinRolePriority[RoleModerator],
		},
		RoleMember: {
			ID: RoleMember, Name: "Member",
			Permissions: PermViewChannel | PermSend | PermCreateInvite,
			Priority:    BuiltinRolePriority[RoleMember],
		},
	}
}

// Invite is a signed, issuer-bound join token (spec.md §3, §9: the short
// code alone is never sufficient to locate a space).
type Invite struct {
	Code      string // 8 base32 characters
	SpaceID   opmodel.SpaceID
	Issuer    opmodel.Hash32
	MaxUses   *int
	ExpiresAt *time.Time
	Uses      int
	Signature []byte
}

// Expired reports whether the invite is past its expiry at instant now.
func (i Invite) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// Exhausted reports whether the invite has hit its use cap.
func (i Invite) Exhausted() bool {
	return i.MaxUses != nil && i.Uses >= *i.MaxUses
}
