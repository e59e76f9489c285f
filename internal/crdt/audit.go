package crdt

import (
	"github.com/spacewald/core/internal/hlc"
	"github.com/spacewald/core/internal/opmodel"
)

// AuditEntry records one applied op for local-only inspection (spec.md
// §4.5: "records every applied op id with author, epoch, hlc, and kind").
type AuditEntry struct {
	OpID           opmodel.OpID
	Kind           opmodel.Kind
	Author         opmodel.Hash32
	Epoch          uint64
	HLC            hlc.Timestamp
	CanonicalBytes []byte
}

// AuditLog is the per-space append-only projection fed by the Acceptance
// Pipeline's side-effects step, and sealed periodically by the audit
// Merkle seal (internal/crypto's AuditSeal).
type AuditLog struct {
	entries []AuditEntry
	seen    map[opmodel.OpID]struct{}
}

// NewAuditLog returns an empty log.
func NewAuditLog() *AuditLog {
	return &AuditLog{seen: make(map[opmodel.OpID]struct{})}
}

// Append records op's admission, ignoring duplicate op_ids (spec.md §4.9:
// "Duplicate op_id | Ignored (idempotent)").
func (l *AuditLog) Append(e AuditEntry) {
	if _, dup := l.seen[e.OpID]; dup {
		return
	}
	l.seen[e.OpID] = struct{}{}
	l.entries = append(l.entries, e)
}

// Entries returns every recorded entry in application order.
func (l *AuditLog) Entries() []AuditEntry {
	return l.entries
}

// Len reports how many distinct ops have been recorded.
func (l *AuditLog) Len() int {
	return len(l.entries)
}

// Contains reports whether opID has already been applied, for the
// Acceptance Pipeline's duplicate-op_id check (spec.md §4.9: "Duplicate
// op_id | Ignored (idempotent)").
func (l *AuditLog) Contains(opID opmodel.OpID) bool {
	_, ok := l.seen[opID]
	return ok
}
