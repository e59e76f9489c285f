// Package membership answers "was user U a member of this Space or
// Channel at MLS epoch E, as of HLC time T" (spec.md §4.4 step 4), built
// from the causal history of applied AddMember/RemoveMember/BanMember
// ops rather than from current CRDT state alone -- the Acceptance
// Pipeline needs the membership state AS OF the op being evaluated, not
// the latest state.
package membership

import (
	"sort"
	"sync"

	"github.com/spacewald/core/internal/domain"
	"github.com/spacewald/core/internal/hlc"
	"github.com/spacewald/core/internal/opmodel"
)

// Scope identifies a Space, or in channel-MLS mode a specific Channel
// within it.
type Scope struct {
	SpaceID    opmodel.SpaceID
	ChannelID  opmodel.ChannelID
	HasChannel bool
}

type scopeKey [64]byte

func (s Scope) key() scopeKey {
	var k scopeKey
	copy(k[:32], s.SpaceID[:])
	if s.HasChannel {
		copy(k[32:], s.ChannelID[:])
	}
	return k
}

// EventKind distinguishes membership grant from membership loss.
type EventKind int

const (
	EventAdd EventKind = iota
	EventRemove
)

// Event is one causal membership change.
type Event struct {
	UserID opmodel.Hash32
	Kind   EventKind
	RoleID domain.RoleID // role granted; meaningful only for EventAdd
	Epoch  uint64
	HLC    hlc.Timestamp
}

// Index is the queryable membership timeline, fed by the Members CRDT as
// ops are applied.
type Index struct {
	mu     sync.RWMutex
	events map[scopeKey][]Event
}

// New returns an empty index.
func New() *Index {
	return &Index{events: make(map[scopeKey][]Event)}
}

// Record appends a membership event observed for scope. Order of calls
// need not match causal order; queries sort by (epoch, hlc) themselves.
func (idx *Index) Record(scope Scope, ev Event) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	k := scope.key()
	idx.events[k] = append(idx.events[k], ev)
}

// sortedEvents returns scope's events for user, ordered causally.
func (idx *Index) sortedEvents(scope Scope, user opmodel.Hash32) []Event {
	k := scope.key()
	all := idx.events[k]
	out := make([]Event, 0, len(all))
	for _, ev := range all {
		if ev.UserID == user {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Epoch != out[j].Epoch {
			return out[i].Epoch < out[j].Epoch
		}
		return out[i].HLC.Less(out[j].HLC)
	})
	return out
}

// WasMember computes was_member(user, scope, atEpoch) restricted to
// events with epoch <= atEpoch and hlc < beforeHLC (spec.md §4.4 step 4:
// "causally prior membership state"). Returns the active role alongside.
func (idx *Index) WasMember(scope Scope, user opmodel.Hash32, atEpoch uint64, beforeHLC hlc.Timestamp) (domain.RoleID, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var active bool
	var role domain.RoleID
	for _, ev := range idx.sortedEvents(scope, user) {
		if ev.Epoch > atEpoch || !ev.HLC.Less(beforeHLC) {
			break
		}
		switch ev.Kind {
		case EventAdd:
			active = true
			role = ev.RoleID
		case EventRemove:
			active = false
			role = ""
		}
	}
	return role, active
}

// IsMemberNow reports current membership irrespective of epoch, for
// CLI/read-path convenience (spec.md §6 command surface doesn't gate on
// historical epoch the way the Acceptance Pipeline must).
func (idx *Index) IsMemberNow(scope Scope, user opmodel.Hash32) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	events := idx.sortedEvents(scope, user)
	if len(events) == 0 {
		return false
	}
	return events[len(events)-1].Kind == EventAdd
}
