// Package crdt implements the per-document CRDT store dispatched to by
// the Acceptance Pipeline's merge step (spec.md §4.5): an add-tag set
// of members, an LWW-map of roles, an RGA-style post sequence, and
// append-only moderation and audit logs.
package crdt

import (
	"github.com/spacewald/core/internal/domain"
	"github.com/spacewald/core/internal/hlc"
	"github.com/spacewald/core/internal/opmodel"
)

// memberTag is one applied "add" for a user, identified by the op that
// added them. Remove drops every tag held for the user.
type memberTag struct {
	opID  opmodel.OpID
	epoch uint64
}

// MemberEntry is the current observed state for one user.
type MemberEntry struct {
	UserID        opmodel.Hash32
	JoinedAtEpoch uint64
	RemovedAtEpoch *uint64
}

// Active reports whether the user currently holds any unremoved add tag.
func (m MemberEntry) Active() bool { return m.RemovedAtEpoch == nil }

// MemberSet is a set of add tags keyed by user_id (spec.md §4.5); see
// Remove for how a removal treats a user's tags.
type MemberSet struct {
	tags map[opmodel.Hash32]map[opmodel.OpID]memberTag
}

// NewMemberSet returns an empty set.
func NewMemberSet() *MemberSet {
	return &MemberSet{tags: make(map[opmodel.Hash32]map[opmodel.OpID]memberTag)}
}

// Add records an observed AddMember op for user, tagged by the op that
// added them.
func (s *MemberSet) Add(user opmodel.Hash32, addOpID opmodel.OpID, epoch uint64) {
	byOp, ok := s.tags[user]
	if !ok {
		byOp = make(map[opmodel.OpID]memberTag)
		s.tags[user] = byOp
	}
	byOp[addOpID] = memberTag{opID: addOpID, epoch: epoch}
}

// Remove deletes every add tag currently held for user, whether or not
// the removing op had seen the add that created it; tags are not tracked
// per remover, so an add applied locally before a concurrent remove does
// not survive it. An add applied after the remove creates a new tag and
// makes the user active again.
func (s *MemberSet) Remove(user opmodel.Hash32) {
	delete(s.tags, user)
}

// RemoveWins applies a concurrent add/remove per spec.md §4.5: "remove
// wins only if the removing op's author has kick/ban permission at its
// epoch; otherwise ignored." The caller (Acceptance Pipeline) has already
// evaluated that permission; RemoveWins just performs the removal when
// authorized, and is a no-op otherwise.
func (s *MemberSet) RemoveWins(user opmodel.Hash32, removerAuthorized bool) {
	if removerAuthorized {
		s.Remove(user)
	}
}

// Active reports whether user currently holds at least one add tag.
func (s *MemberSet) Active(user opmodel.Hash32) bool {
	tags, ok := s.tags[user]
	return ok && len(tags) > 0
}

// Members returns every user with at least one surviving add tag, along
// with the epoch of their earliest observed add.
func (s *MemberSet) Members() []MemberEntry {
	out := make([]MemberEntry, 0, len(s.tags))
	for user, tags := range s.tags {
		if len(tags) == 0 {
			continue
		}
		var earliest uint64 = ^uint64(0)
		for _, tag := range tags {
			if tag.epoch < earliest {
				earliest = tag.epoch
			}
		}
		out = append(out, MemberEntry{UserID: user, JoinedAtEpoch: earliest})
	}
	return out
}

// roleAssignment is one LWW entry in the Roles map.
type roleAssignment struct {
	roleID domain.RoleID
	hlc    hlc.Timestamp
	author opmodel.Hash32
	opID   opmodel.OpID
}

// RoleMap is an LWW-map keyed by user_id, clocked by HLC with ties broken
// by (author, op_id) (spec.md §4.5).
type RoleMap struct {
	current map[opmodel.Hash32]roleAssignment
}

// NewRoleMap returns an empty map.
func NewRoleMap() *RoleMap {
	return &RoleMap{current: make(map[opmodel.Hash32]roleAssignment)}
}

// Assign applies an AssignRole/RemoveRole op's resulting role for user,
// keeping the write that wins under LWW ordering. roleID == "" represents
// RemoveRole (falls back to the default Member role for permission
// checks -- callers should treat an empty RoleID that way).
func (m *RoleMap) Assign(user opmodel.Hash32, roleID domain.RoleID, at hlc.Timestamp, author opmodel.Hash32, opID opmodel.OpID) {
	next := roleAssignment{roleID: roleID, hlc: at, author: author, opID: opID}
	existing, ok := m.current[user]
	if !ok || wins(next, existing) {
		m.current[user] = next
	}
}

// wins reports whether a should replace b under LWW-HLC with
// (author, op_id) tiebreaking.
func wins(a, b roleAssignment) bool {
	if a.hlc != b.hlc {
		return hlcGreater(a.hlc, b.hlc)
	}
	if a.author != b.author {
		return bytesGreater(a.author[:], b.author[:])
	}
	return bytesGreater(a.opID[:], b.opID[:])
}

func hlcGreater(a, b hlc.Timestamp) bool { return b.Less(a) }

func bytesGreater(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// RoleOf returns the role currently assigned to user, or the zero value
// and false if none.
func (m *RoleMap) RoleOf(user opmodel.Hash32) (domain.RoleID, bool) {
	a, ok := m.current[user]
	if !ok {
		return "", false
	}
	return a.roleID, true
}
