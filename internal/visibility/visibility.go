// Package visibility computes the rendered, user-visible state from a
// node's applied-op CRDT projections (spec.md §4.7). It is pure and
// deterministic: two honest nodes with identical applied-op sets render
// identically (spec.md §8 property 1).
package visibility

import (
	"sort"

	"github.com/spacewald/core/internal/crdt"
	"github.com/spacewald/core/internal/domain"
	"github.com/spacewald/core/internal/hlc"
	"github.com/spacewald/core/internal/opmodel"
)

// RoleLookup resolves the permissions and priority a role grants, as of
// the moment a moderation op was authored (role-at-op-epoch, not
// current role, per spec.md §9's open-question answer: tombstone
// validity is evaluated against role-at-op-epoch).
type RoleLookup func(user opmodel.Hash32, epoch uint64) (domain.Permissions, int)

// VisiblePost is one rendered post: either visible content or a hidden
// marker, never both.
type VisiblePost struct {
	PostID     opmodel.PostID
	Author     opmodel.Hash32
	HLC        hlc.Timestamp
	Epoch      uint64
	ContentRef opmodel.Hash32
	Hidden     bool
}

// Resolver renders a space's CRDT projections into the user-facing view.
type Resolver struct {
	roles RoleLookup
}

// New returns a Resolver that consults roles to evaluate a moderation
// op's author's permission at the op's own epoch.
func New(roles RoleLookup) *Resolver {
	return &Resolver{roles: roles}
}

// RenderThread returns every post in thread in RGA display order, with
// moderation tombstones overlaid (spec.md §4.7, §4.5).
//
// A post is rendered hidden if at least one applied DeletePost targeting
// it was authored either by the post's own original author (self-
// moderation, always authorized) or by a user whose role at that op's
// epoch permits moderation (PermBan, PermKick, or plain "moderate" via
// administrator bypass -- spec.md §4.4 step 5 requires `moderate`
// permission for DeletePost by a non-author). Conflicting moderation
// verdicts (a
// tombstone followed by no un-delete path exists since deletion is
// logical and one-directional) are broken, when more than one tombstone
// targets the same post, by (causal precedence -> role priority -> HLC ->
// author) per spec.md §4.7; since any single authorized tombstone already
// hides the post permanently, this ordering only matters for picking
// which tombstone is considered authoritative for audit display.
func (r *Resolver) RenderThread(seq *crdt.PostSequence, mod *crdt.ModerationLog) []VisiblePost {
	ids := seq.Ordered()
	out := make([]VisiblePost, 0, len(ids))
	for _, id := range ids {
		entry, ok := seq.VisibleEntry(id)
		if !ok {
			continue
		}
		hidden := r.isHidden(id, seq, mod)
		out = append(out, VisiblePost{
			PostID:     id,
			Author:     entry.Author,
			HLC:        entry.HLC,
			Epoch:      entry.Epoch,
			ContentRef: entry.ContentRef,
			Hidden:     hidden,
		})
	}
	return out
}

func (r *Resolver) isHidden(target opmodel.PostID, seq *crdt.PostSequence, mod *crdt.ModerationLog) bool {
	postAuthor, _ := seq.AuthorOf(target)
	for _, t := range mod.TombstonesFor(target) {
		if r.tombstoneAuthorized(t, postAuthor) {
			return true
		}
	}
	return false
}

// tombstoneAuthorized mirrors the Acceptance Pipeline's own checkPermission
// rule for DeletePost (pipeline.go): a tombstone authored by the target
// post's own author is always authorized, with no extra permission
// required; otherwise the author needs moderation permission (PermBan,
// PermKick, or administrator) as of the tombstone's own epoch.
func (r *Resolver) tombstoneAuthorized(t crdt.Tombstone, postAuthor opmodel.Hash32) bool {
	if t.Author == postAuthor {
		return true
	}
	if r.roles == nil {
		return true
	}
	perms, _ := r.roles(t.Author, t.Epoch)
	return perms.Has(domain.PermBan) || perms.Has(domain.PermKick) || perms.Has(domain.PermAdministrator)
}

// AuthoritativeTombstone picks the winning tombstone among several
// concurrent ones targeting the same post, by (causal precedence -> role
// priority -> HLC -> author) per spec.md §4.7. "Causal precedence" here
// means: a tombstone that causally observes another (via prev_ops) wins
// outright; observedBy reports that relation for two op ids. When
// neither observes the other, role priority breaks the tie, then HLC,
// then author bytes.
func (r *Resolver) AuthoritativeTombstone(tombstones []crdt.Tombstone, priority func(user opmodel.Hash32, epoch uint64) int, observedBy func(a, b opmodel.OpID) bool) (crdt.Tombstone, bool) {
	if len(tombstones) == 0 {
		return crdt.Tombstone{}, false
	}
	winner := tombstones[0]
	for _, cand := range tombstones[1:] {
		if observedBy != nil && observedBy(cand.OpID, winner.OpID) {
			winner = cand
			continue
		}
		if observedBy != nil && observedBy(winner.OpID, cand.OpID) {
			continue
		}
		if priority != nil {
			pw, pc := priority(winner.Author, winner.Epoch), priority(cand.Author, cand.Epoch)
			if pc != pw {
				if pc > pw {
					winner = cand
				}
				continue
			}
		}
		if cand.HLC != winner.HLC {
			if winner.HLC.Less(cand.HLC) {
				winner = cand
			}
			continue
		}
		if bytesGreater(cand.Author[:], winner.Author[:]) {
			winner = cand
		}
	}
	return winner, true
}

// VisibleMember is one rendered member row.
type VisibleMember struct {
	UserID   opmodel.Hash32
	RoleID   domain.RoleID
	HasRole  bool
	JoinedAt uint64
}

// RenderMembers returns every currently active member with their
// currently assigned role, sorted by user id for deterministic output.
func (r *Resolver) RenderMembers(members *crdt.MemberSet, roles *crdt.RoleMap) []VisibleMember {
	entries := members.Members()
	out := make([]VisibleMember, 0, len(entries))
	for _, m := range entries {
		roleID, ok := roles.RoleOf(m.UserID)
		out = append(out, VisibleMember{UserID: m.UserID, RoleID: roleID, HasRole: ok, JoinedAt: m.JoinedAtEpoch})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytesGreater(out[j].UserID[:], out[i].UserID[:])
	})
	return out
}

func bytesGreater(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}
