package crdt

import (
	"github.com/spacewald/core/internal/hlc"
	"github.com/spacewald/core/internal/opmodel"
)

// Tombstone records one DeletePost applied against a target post.
type Tombstone struct {
	Target opmodel.PostID
	Author opmodel.Hash32
	HLC    hlc.Timestamp
	Epoch  uint64
	OpID   opmodel.OpID
}

// ModerationLog is the per-space append-only moderation log (spec.md
// §4.5). A DeletePost tombstones its target; deletion is logical, so the
// target op remains in storage (invariant 5) and the tombstone is purely
// additive.
type ModerationLog struct {
	entries    []Tombstone
	byTarget   map[opmodel.PostID][]Tombstone
}

// NewModerationLog returns an empty log.
func NewModerationLog() *ModerationLog {
	return &ModerationLog{byTarget: make(map[opmodel.PostID][]Tombstone)}
}

// Append records a DeletePost tombstone. Idempotent per op_id is the
// caller's responsibility.
func (l *ModerationLog) Append(t Tombstone) {
	l.entries = append(l.entries, t)
	l.byTarget[t.Target] = append(l.byTarget[t.Target], t)
}

// IsTombstoned reports whether target has at least one applied
// DeletePost. Conflicting concurrent moderation ops are broken by the
// Visibility Resolver (causal precedence -> role priority -> HLC ->
// author), not here; ModerationLog only records facts.
func (l *ModerationLog) IsTombstoned(target opmodel.PostID) bool {
	return len(l.byTarget[target]) > 0
}

// TombstonesFor returns every tombstone recorded against target, in
// application order.
func (l *ModerationLog) TombstonesFor(target opmodel.PostID) []Tombstone {
	return l.byTarget[target]
}

// All returns every tombstone in application order.
func (l *ModerationLog) All() []Tombstone {
	return l.entries
}
