package pipeline

import (
	"context"
	"fmt"

	"github.com/spacewald/core/internal/domain"
	"github.com/spacewald/core/internal/membership"
	"github.com/spacewald/core/internal/mls"
	"github.com/spacewald/core/internal/opmodel"
)

// merge dispatches op to its per-document CRDT per spec.md §4.5, and
// performs the side effects spec.md §4.4 step 7 calls for (Welcome
// consumption/issuance, MLS commit application, membership-index
// updates). Dispatch is total over the closed Kind set (spec.md §9: "no
// open-ended plugin surface in the core").
func (p *Pipeline) merge(op opmodel.Op) error {
	switch op.Kind {
	case opmodel.KindCreateSpace:
		return p.mergeCreateSpace(op)
	case opmodel.KindCreateChannel:
		return p.mergeCreateChannel(op)
	case opmodel.KindCreateThread:
		return p.mergeCreateThread(op)
	case opmodel.KindCreatePost:
		return p.mergeCreatePost(op)
	case opmodel.KindEditPost:
		return p.mergeEditPost(op)
	case opmodel.KindDeletePost:
		return p.mergeDeletePost(op)
	case opmodel.KindAssignRole:
		return p.mergeAssignRole(op)
	case opmodel.KindRemoveRole:
		return p.mergeRemoveRole(op)
	case opmodel.KindAddMember:
		return p.mergeAddMember(op)
	case opmodel.KindRemoveMember:
		return p.mergeRemoveMember(op)
	case opmodel.KindBanMember:
		return p.mergeBanMember(op)
	case opmodel.KindCreateInvite:
		return p.mergeCreateInvite(op)
	case opmodel.KindUseInvite:
		return p.mergeUseInvite(op)
	default:
		return fmt.Errorf("%w: kind %s", errUnknownKind, op.Kind)
	}
}

func (p *Pipeline) mergeCreateSpace(op opmodel.Op) error {
	var payload opmodel.CreateSpacePayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode CreateSpace payload: %w", err)
	}

	space := &domain.Space{
		ID:             op.SpaceID,
		Name:           payload.Name,
		Creator:        op.Author,
		Visibility:     domain.Visibility(payload.Visibility),
		MembershipMode: domain.MembershipMode(payload.MembershipMode),
	}
	p.spaces[op.SpaceID] = space
	p.roles[op.SpaceID] = domain.BuiltinRoles()

	docs := p.Store.Space(op.SpaceID)
	docs.Members.Add(op.Author, op.OpID, 0)
	docs.Roles.Assign(op.Author, domain.RoleAdmin, op.HLC, op.Author, op.OpID)

	scope := membership.Scope{SpaceID: op.SpaceID}
	p.Membership.Record(scope, membership.Event{UserID: op.Author, Kind: membership.EventAdd, RoleID: domain.RoleAdmin, Epoch: 0, HLC: op.HLC})

	if _, ok := p.MLS.CurrentEpoch(mls.ScopeKey(op.SpaceID)); !ok {
		var kp mls.KeyPackageData
		if err := decodeJSON(payload.KeyPackage, &kp); err != nil {
			return fmt.Errorf("pipeline: decode creator key package: %w", err)
		}
		keys := mls.MLSKeys{SigPub: kp.SigPub, InitPub: kp.InitPub}
		if _, err := p.MLS.CreateGroup(mls.ScopeKey(op.SpaceID), op.Author[:], keys); err != nil {
			return fmt.Errorf("pipeline: create mls group: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) mergeCreateChannel(op opmodel.Op) error {
	var payload opmodel.CreateChannelPayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode CreateChannel payload: %w", err)
	}
	ch := &domain.Channel{
		ID: op.ChannelID, SpaceID: op.SpaceID, Name: payload.Name,
		HasOwnMLSGroup: payload.HasOwnMLSGroup,
	}
	if payload.HasOwnMLSGroup {
		ch.MLSGroupID = op.ChannelID
		if _, ok := p.MLS.CurrentEpoch(mls.ScopeKey(op.ChannelID)); !ok {
			var kp mls.KeyPackageData
			if err := decodeJSON(payload.KeyPackage, &kp); err != nil {
				return fmt.Errorf("pipeline: decode channel creator key package: %w", err)
			}
			keys := mls.MLSKeys{SigPub: kp.SigPub, InitPub: kp.InitPub}
			if _, err := p.MLS.CreateGroup(mls.ScopeKey(op.ChannelID), op.Author[:], keys); err != nil {
				return fmt.Errorf("pipeline: create channel mls group: %w", err)
			}
		}
	}
	p.channels[op.ChannelID] = ch
	return nil
}

func (p *Pipeline) mergeCreateThread(op opmodel.Op) error {
	var payload opmodel.CreateThreadPayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode CreateThread payload: %w", err)
	}
	p.threads[op.ThreadID] = &domain.Thread{ID: op.ThreadID, ChannelID: op.ChannelID, Title: payload.Title}
	p.Store.Space(op.SpaceID).Thread(op.ThreadID)
	return nil
}

func (p *Pipeline) mergeCreatePost(op opmodel.Op) error {
	var payload opmodel.CreatePostPayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode CreatePost payload: %w", err)
	}
	seq := p.Store.Space(op.SpaceID).Thread(op.ThreadID)
	seq.InsertCreate(op.OpID, op.Author, op.HLC, op.Epoch, payload.ContentHash, payload.Parent, payload.HasParent)
	return nil
}

func (p *Pipeline) mergeEditPost(op opmodel.Op) error {
	var payload opmodel.EditPostPayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode EditPost payload: %w", err)
	}
	seq := p.Store.Space(op.SpaceID).Thread(op.ThreadID)
	if !seq.Has(payload.Target) {
		return fmt.Errorf("%w: edit target %s not found", errInternal("edit target missing"), payload.Target)
	}
	seq.ApplyEdit(payload.Target, op.Author, op.HLC, op.Epoch, payload.ContentHash)
	return nil
}

func (p *Pipeline) mergeDeletePost(op opmodel.Op) error {
	var payload opmodel.DeletePostPayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode DeletePost payload: %w", err)
	}
	p.Store.Space(op.SpaceID).Moderation.Append(crdtTombstone(op, payload.Target))
	return nil
}

func (p *Pipeline) mergeAssignRole(op opmodel.Op) error {
	var payload opmodel.AssignRolePayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode AssignRole payload: %w", err)
	}
	if domain.IsBuiltin(domain.RoleID(payload.RoleID)) || payload.RoleID == "" {
		p.Store.Space(op.SpaceID).Roles.Assign(payload.User, domain.RoleID(payload.RoleID), op.HLC, op.Author, op.OpID)
		return nil
	}
	return fmt.Errorf("%w: unknown role %q", errInternal("assign unknown role"), payload.RoleID)
}

func (p *Pipeline) mergeRemoveRole(op opmodel.Op) error {
	var payload opmodel.RemoveRolePayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode RemoveRole payload: %w", err)
	}
	p.Store.Space(op.SpaceID).Roles.Assign(payload.User, "", op.HLC, op.Author, op.OpID)
	return nil
}

func (p *Pipeline) mergeAddMember(op opmodel.Op) error {
	var payload opmodel.AddMemberPayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode AddMember payload: %w", err)
	}

	scopeKey := p.scopeKeyFor(op)
	var kp mls.KeyPackageData
	if err := decodeJSON(payload.KeyPackage, &kp); err != nil {
		return fmt.Errorf("pipeline: decode key package: %w", err)
	}
	_, welcome, err := p.MLS.CommitAdd(scopeKey, kp)
	if err != nil {
		return fmt.Errorf("pipeline: mls commit_add: %w", err)
	}
	newEpoch, _ := p.MLS.CurrentEpoch(scopeKey)

	docs := p.Store.Space(op.SpaceID)
	docs.Members.Add(payload.User, op.OpID, uint64(newEpoch))
	roleID := domain.RoleID(payload.RoleID)
	if roleID == "" {
		roleID = domain.RoleMember
	}
	docs.Roles.Assign(payload.User, roleID, op.HLC, op.Author, op.OpID)

	scope := p.membershipScope(op)
	p.Membership.Record(scope, membership.Event{UserID: payload.User, Kind: membership.EventAdd, RoleID: roleID, Epoch: uint64(newEpoch), HLC: op.HLC})

	if p.Transport != nil && welcome != nil {
		_ = p.Transport.DeliverWelcome(context.Background(), payload.User, welcome)
	}
	return nil
}

func (p *Pipeline) mergeRemoveMember(op opmodel.Op) error {
	var payload opmodel.RemoveMemberPayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode RemoveMember payload: %w", err)
	}
	return p.removeMemberUser(op, payload.User, "")
}

func (p *Pipeline) mergeBanMember(op opmodel.Op) error {
	var payload opmodel.BanMemberPayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode BanMember payload: %w", err)
	}
	return p.removeMemberUser(op, payload.User, payload.Reason)
}

// removeMemberUser applies a removal per spec.md §4.5's concurrent add/remove rule
// ("remove wins only if the removing op's author has kick/ban
// permission at its epoch"); the Acceptance Pipeline's step-5 permission
// check has already enforced exactly that before merge runs, so every
// RemoveMember/BanMember op that reaches here is authorized by
// construction and the removal always applies.
func (p *Pipeline) removeMemberUser(op opmodel.Op, user opmodel.Hash32, reason string) error {
	scopeKey := p.scopeKeyFor(op)
	if leafIndex, ok := p.MLS.LeafIndexOf(scopeKey, user[:]); ok {
		if _, err := p.MLS.CommitRemove(scopeKey, leafIndex); err != nil {
			return fmt.Errorf("pipeline: mls commit_remove: %w", err)
		}
	}
	newEpoch, _ := p.MLS.CurrentEpoch(scopeKey)

	docs := p.Store.Space(op.SpaceID)
	docs.Members.RemoveWins(user, true)

	scope := p.membershipScope(op)
	p.Membership.Record(scope, membership.Event{UserID: user, Kind: membership.EventRemove, Epoch: uint64(newEpoch), HLC: op.HLC})
	return nil
}

func (p *Pipeline) mergeCreateInvite(op opmodel.Op) error {
	var payload opmodel.CreateInvitePayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode CreateInvite payload: %w", err)
	}
	inv := &domain.Invite{Code: payload.Code, SpaceID: op.SpaceID, Issuer: op.Author}
	if payload.MaxUses > 0 {
		m := payload.MaxUses
		inv.MaxUses = &m
	}
	p.invites[payload.Code] = inv
	return nil
}

func (p *Pipeline) mergeUseInvite(op opmodel.Op) error {
	var payload opmodel.UseInvitePayload
	if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
		return fmt.Errorf("pipeline: decode UseInvite payload: %w", err)
	}
	if payload.SpaceID != op.SpaceID {
		return fmt.Errorf("%w: invite space_id mismatch", errInternal("use invite space mismatch"))
	}
	inv, ok := p.invites[payload.Code]
	if !ok {
		return fmt.Errorf("%w: unknown invite code", errInternal("unknown invite"))
	}
	if inv.Exhausted() {
		return fmt.Errorf("%w: invite exhausted", errInternal("invite exhausted"))
	}
	inv.Uses++
	return nil
}
