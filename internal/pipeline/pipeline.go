// Package pipeline implements the Acceptance Pipeline (spec.md §4.4): the
// single state machine every decrypted op passes through before it is
// reflected in the CRDT store. It is unique-on-op_id and idempotent, and
// is the sole mutator of both MLS group state and CRDT membership
// (spec.md §9: "the Acceptance Pipeline is the sole mutator and performs
// the dual update atomically per batch").
package pipeline

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spacewald/core/internal/crdt"
	"github.com/spacewald/core/internal/domain"
	"github.com/spacewald/core/internal/holdback"
	"github.com/spacewald/core/internal/membership"
	"github.com/spacewald/core/internal/mls"
	"github.com/spacewald/core/internal/opmodel"
	"github.com/spacewald/core/internal/ports"
	"github.com/spacewald/core/internal/visibility"
)

// Verdict is the terminal classification the pipeline surfaces per op
// (spec.md §6: "the core returns {Ok, Buffered, Rejected(reason)}").
type Verdict int

const (
	Accepted Verdict = iota
	Buffered
	Rejected
	Duplicate
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "Accepted"
	case Buffered:
		return "Buffered"
	case Rejected:
		return "Rejected"
	case Duplicate:
		return "Duplicate"
	default:
		return "Unknown"
	}
}

// Result is the outcome of one Admit call.
type Result struct {
	Verdict Verdict
	Err     error // non-nil for Rejected and for the transient reason behind Buffered
}

// Pipeline owns the CRDT store, membership index, and MLS engine for
// every group this node participates in, and is the only component
// permitted to mutate them (spec.md §5).
type Pipeline struct {
	Store       *crdt.Store
	Membership  *membership.Index
	MLS         *mls.Engine
	Holdback    *holdback.Buffer
	Persistence ports.Persistence
	Transport   ports.Transport
	Log         *zap.Logger

	spaces   map[opmodel.SpaceID]*domain.Space
	channels map[opmodel.ChannelID]*domain.Channel
	threads  map[opmodel.ThreadID]*domain.Thread
	invites  map[string]*domain.Invite
	roles    map[opmodel.SpaceID]map[domain.RoleID]domain.Role
}

// New constructs an empty Pipeline backed by store/membershipIdx/mlsEngine
// and the given ports. log may be nil, in which case a no-op logger is
// used (matching the teacher's fallback pattern elsewhere in this repo).
func New(store *crdt.Store, idx *membership.Index, engine *mls.Engine, hb *holdback.Buffer, persistence ports.Persistence, transport ports.Transport, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		Store:       store,
		Membership:  idx,
		MLS:         engine,
		Holdback:    hb,
		Persistence: persistence,
		Transport:   transport,
		Log:         log,
		spaces:      make(map[opmodel.SpaceID]*domain.Space),
		channels:    make(map[opmodel.ChannelID]*domain.Channel),
		threads:     make(map[opmodel.ThreadID]*domain.Thread),
		invites:     make(map[string]*domain.Invite),
		roles:       make(map[opmodel.SpaceID]map[domain.RoleID]domain.Role),
	}
}

// scopeKeyFor returns the MLS ScopeKey op.epoch is relative to: the
// channel's own group if it has one (spec.md §4.9 design note on
// channel-MLS mode), else the space's group.
func (p *Pipeline) scopeKeyFor(op opmodel.Op) mls.ScopeKey {
	if op.HasChannel() {
		if ch, ok := p.channels[op.ChannelID]; ok && ch.HasOwnMLSGroup {
			return mls.ScopeKey(op.ChannelID)
		}
	}
	return mls.ScopeKey(op.SpaceID)
}

// CurrentEpochFor reports the MLS epoch an op for (spaceID, channelID)
// should be stamped with: the channel's own group epoch if it has one,
// else the space's. Exported for callers (the CLI's op-building path)
// that need to know the right epoch before Finalize-ing an Op.
func (p *Pipeline) CurrentEpochFor(spaceID, channelID opmodel.Hash32) uint64 {
	scopeKey := p.scopeKeyFor(opmodel.Op{SpaceID: spaceID, ChannelID: channelID})
	epoch, _ := p.MLS.CurrentEpoch(scopeKey)
	return uint64(epoch)
}

// ThreadBlobKey derives the symmetric key post content in thread
// (within channelID of spaceID) is sealed under: the exporter secret of
// whichever MLS group the thread's messages are epoch-relative to
// (CurrentEpochFor's same scope rule).
func (p *Pipeline) ThreadBlobKey(spaceID, channelID, threadID opmodel.Hash32) ([]byte, error) {
	scopeKey := p.scopeKeyFor(opmodel.Op{SpaceID: spaceID, ChannelID: channelID})
	return p.MLS.ThreadBlobKey(scopeKey, [32]byte(threadID))
}

// RoleLookup builds a visibility.RoleLookup over spaceID's currently
// assigned roles, for rendering reads (visibility.Resolver) outside the
// Acceptance Pipeline itself. It consults the role a user currently
// holds rather than the role they held at a past epoch, an
// approximation acceptable for the CLI's own read path (spec.md leaves
// role-at-op-epoch evaluation as an acceptance-time concern; the
// Pipeline itself already evaluates it precisely in checkPermission).
func (p *Pipeline) RoleLookup(spaceID opmodel.SpaceID) visibility.RoleLookup {
	return func(user opmodel.Hash32, epoch uint64) (domain.Permissions, int) {
		roleID, hasRole := p.Store.Space(spaceID).Roles.RoleOf(user)
		hasRole = hasRole && roleID != ""
		perms := p.permissionsFor(spaceID, roleID, hasRole)
		if !hasRole {
			roleID = domain.RoleMember
		}
		return perms, domain.BuiltinRolePriority[roleID]
	}
}

func (p *Pipeline) membershipScope(op opmodel.Op) membership.Scope {
	sc := membership.Scope{SpaceID: op.SpaceID}
	if op.HasChannel() {
		if ch, ok := p.channels[op.ChannelID]; ok && ch.HasOwnMLSGroup {
			sc.ChannelID = op.ChannelID
			sc.HasChannel = true
		}
	}
	return sc
}

func (p *Pipeline) roleOf(spaceID opmodel.SpaceID, roleID domain.RoleID) (domain.Role, bool) {
	if m, ok := p.roles[spaceID]; ok {
		if r, ok := m[roleID]; ok {
			return r, true
		}
	}
	if r, ok := domain.BuiltinRoles()[roleID]; ok {
		return r, true
	}
	return domain.Role{}, false
}

func (p *Pipeline) permissionsFor(spaceID opmodel.SpaceID, roleID domain.RoleID, hasRole bool) domain.Permissions {
	if !hasRole {
		roleID = domain.RoleMember
	}
	if r, ok := p.roleOf(spaceID, roleID); ok {
		return r.Permissions
	}
	return 0
}

// Admit runs op through the Acceptance Pipeline's steps 1-7 (spec.md
// §4.4). The caller (a Scheduler worker) must guarantee that Admit is
// never called concurrently for two ops in the same MLS group, since
// Commit processing must complete before any application op at its
// resulting epoch can be admitted (spec.md §5).
func (p *Pipeline) Admit(ctx context.Context, op opmodel.Op) Result {
	// Duplicate check, ahead of everything else: idempotent re-delivery
	// is always a silent no-op (spec.md §4.9).
	if p.alreadyApplied(op) {
		return Result{Verdict: Duplicate}
	}

	// Step 1: signature verify.
	pub := ed25519.PublicKey(op.Author[:])
	if err := opmodel.VerifyIdentity(op, pub); err != nil {
		p.Log.Warn("op rejected: signature invalid", zap.String("op_id", op.OpID.String()), zap.Error(err))
		return Result{Verdict: Rejected, Err: err}
	}

	// Step 2: dependency check.
	missing := p.missingDeps(op)
	if len(missing) > 0 {
		p.Holdback.BufferDeps(op, missing)
		p.Log.Debug("op buffered: missing deps", zap.String("op_id", op.OpID.String()), zap.Int("missing", len(missing)))
		return Result{Verdict: Buffered, Err: fmt.Errorf("%w: %d missing", opmodel.ErrDependencyMissing, len(missing))}
	}

	// Step 3: epoch reconciliation.
	scopeKey := p.scopeKeyFor(op)
	localEpoch, haveGroup := p.MLS.CurrentEpoch(scopeKey)
	if op.Kind != opmodel.KindCreateSpace && op.Kind != opmodel.KindCreateChannel && op.Kind != opmodel.KindUseInvite {
		if !haveGroup || op.Epoch > uint64(localEpoch) {
			p.Holdback.BufferEpoch(op, holdback.EpochScope{SpaceID: op.SpaceID, ChannelID: op.ChannelID})
			p.Log.Debug("op buffered: epoch ahead", zap.String("op_id", op.OpID.String()), zap.Uint64("needed", op.Epoch))
			return Result{Verdict: Buffered, Err: fmt.Errorf("%w: needed %d", opmodel.ErrEpochAhead, op.Epoch)}
		}
	}

	// Step 4: membership check (bypassed for CreateSpace, whose author
	// becomes the first member as a side effect of the op itself, and for
	// UseInvite, whose author is not yet a member).
	var role domain.RoleID
	var hasRole bool
	if op.Kind != opmodel.KindCreateSpace && op.Kind != opmodel.KindUseInvite {
		scope := p.membershipScope(op)
		r, active := p.Membership.WasMember(scope, op.Author, op.Epoch, op.HLC)
		if !active {
			p.Log.Warn("op rejected: not a member", zap.String("op_id", op.OpID.String()))
			return Result{Verdict: Rejected, Err: opmodel.ErrNotMember}
		}
		role, hasRole = r, r != ""
	}

	// Step 5: permission check.
	if err := p.checkPermission(op, role, hasRole); err != nil {
		p.Log.Warn("op rejected: insufficient permission", zap.String("op_id", op.OpID.String()), zap.Error(err))
		return Result{Verdict: Rejected, Err: err}
	}

	// Step 6: CRDT merge.
	if err := p.merge(op); err != nil {
		p.Log.Error("op rejected: merge conflict", zap.String("op_id", op.OpID.String()), zap.Error(err))
		return Result{Verdict: Rejected, Err: err}
	}

	// Step 7: side effects + audit.
	p.recordAudit(op)
	p.Log.Debug("op accepted", zap.String("op_id", op.OpID.String()), zap.Stringer("kind", op.Kind))
	return Result{Verdict: Accepted}
}

func (p *Pipeline) alreadyApplied(op opmodel.Op) bool {
	return p.Store.Space(op.SpaceID).Audit.Contains(op.OpID)
}

func (p *Pipeline) missingDeps(op opmodel.Op) []opmodel.OpID {
	audit := p.Store.Space(op.SpaceID).Audit
	var missing []opmodel.OpID
	for _, dep := range op.PrevOps {
		if !audit.Contains(dep) {
			missing = append(missing, dep)
		}
	}
	return missing
}

func (p *Pipeline) checkPermission(op opmodel.Op, role domain.RoleID, hasRole bool) error {
	perms := p.permissionsFor(op.SpaceID, role, hasRole)

	switch op.Kind {
	case opmodel.KindDeletePost:
		var payload opmodel.DeletePostPayload
		if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
			return fmt.Errorf("pipeline: decode DeletePost payload: %w", err)
		}
		if p.isAuthor(op, payload.Target) {
			return nil
		}
		if !(perms.Has(domain.PermKick) || perms.Has(domain.PermBan) || perms.Has(domain.PermAdministrator)) {
			return fmt.Errorf("%w: DeletePost by non-author requires moderation permission", opmodel.ErrInsufficientPermission)
		}
		return nil
	case opmodel.KindEditPost:
		var payload opmodel.EditPostPayload
		if err := opmodel.DecodePayload(op.Payload, &payload); err != nil {
			return fmt.Errorf("pipeline: decode EditPost payload: %w", err)
		}
		if p.isAuthor(op, payload.Target) {
			return nil
		}
		if !(perms.Has(domain.PermKick) || perms.Has(domain.PermBan) || perms.Has(domain.PermAdministrator)) {
			return fmt.Errorf("%w: EditPost by non-author requires moderation permission", opmodel.ErrInsufficientPermission)
		}
		return nil
	}

	required, needs := domain.RequiredPermission(op.Kind)
	if !needs {
		return nil
	}
	if !perms.Has(required) {
		return fmt.Errorf("%w: %s requires %s", opmodel.ErrInsufficientPermission, op.Kind, required)
	}
	return nil
}

func (p *Pipeline) isAuthor(op opmodel.Op, target opmodel.PostID) bool {
	seq := p.Store.Space(op.SpaceID).Thread(op.ThreadID)
	author, ok := seq.AuthorOf(target)
	return ok && author == op.Author
}

func (p *Pipeline) recordAudit(op opmodel.Op) {
	canonical, err := opmodel.CanonicalBytes(op)
	if err != nil && p.Log != nil {
		p.Log.Warn("audit: canonical encoding failed", zap.String("op_id", op.OpID.String()), zap.Error(err))
	}
	p.Store.Space(op.SpaceID).Audit.Append(crdt.AuditEntry{
		OpID: op.OpID, Kind: op.Kind, Author: op.Author, Epoch: op.Epoch, HLC: op.HLC,
		CanonicalBytes: canonical,
	})
}

// errInternal wraps unexpected internal conditions surfaced as
// opmodel.ErrConflict (spec.md §7: "presence indicates a bug").
func errInternal(msg string) error {
	return fmt.Errorf("%w: %s", opmodel.ErrConflict, msg)
}

var errUnknownKind = errors.New("pipeline: unknown op kind")
