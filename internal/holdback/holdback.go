// Package holdback buffers ops that cannot yet be admitted: either
// because one or more causal predecessors (prev_ops) are unknown locally,
// or because the op's epoch is ahead of the local MLS group's current
// epoch and the Commit that would advance it has not been processed
// (spec.md §4.6). Two independent buckets exist because the two waits
// resolve differently: a dependency is satisfied the moment the missing
// op is admitted; an epoch wait is satisfied only by a Commit.
package holdback

import (
	"sync"

	"github.com/spacewald/core/internal/opmodel"
)

// FetchFunc requests a missing op by id from peers (spec.md §4.6:
// "requests missing ops by id from peers").
type FetchFunc func(id opmodel.OpID)

// EpochScope identifies the MLS group an epoch-ahead wait is relative to.
type EpochScope struct {
	SpaceID   opmodel.SpaceID
	ChannelID opmodel.ChannelID
}

// DefaultRetryBudget bounds how many times a stuck fetch is retried
// before the op is marked stale (spec.md §4.6: "bounded... on fetch
// failure after a retry budget the op is marked stale").
const DefaultRetryBudget = 5

// entry is one buffered op plus its outstanding wait condition.
type entry struct {
	op      opmodel.Op
	waiting map[opmodel.OpID]struct{} // remaining unmet prev_ops, for the deps bucket
	epoch   uint64                    // needed epoch, for the epoch bucket
	scope   EpochScope
	attempts int
	stale    bool
}

// Buffer is the Holdback / Dependency Resolver (spec.md §4.6): an
// op-deps bucket keyed by missing op id, and an mls-epoch bucket keyed by
// (group, epoch).
type Buffer struct {
	mu sync.Mutex

	fetch        FetchFunc
	fetchCommits func(scope EpochScope, epoch uint64)

	// byMissingDep indexes entries in the deps bucket by each unmet
	// prev_op id they're still waiting on.
	byMissingDep map[opmodel.OpID]map[opmodel.OpID]*entry
	depEntries   map[opmodel.OpID]*entry // keyed by the buffered op's own id

	// byEpochWait indexes entries in the epoch bucket by (scope, epoch).
	byEpochWait   map[epochKey][]*entry
	epochEntries  map[opmodel.OpID]*entry

	stale []opmodel.Op
}

type epochKey struct {
	scope EpochScope
	epoch uint64
}

// New returns an empty Buffer. fetch is called (once per missing id each
// time an op waiting on it is buffered, and again on each RetryFetches
// pass while a live entry still waits on it) to request a dependency by
// op_id; fetchCommits
// is called to request the Commit/Welcome chain needed to reach epoch.
func New(fetch FetchFunc, fetchCommits func(scope EpochScope, epoch uint64)) *Buffer {
	return &Buffer{
		fetch:        fetch,
		fetchCommits: fetchCommits,
		byMissingDep: make(map[opmodel.OpID]map[opmodel.OpID]*entry),
		depEntries:   make(map[opmodel.OpID]*entry),
		byEpochWait:  make(map[epochKey][]*entry),
		epochEntries: make(map[opmodel.OpID]*entry),
	}
}

// BufferDeps enqueues op, waiting on the subset of missing that remain
// unapplied. It triggers a fetch for each missing id.
func (b *Buffer) BufferDeps(op opmodel.Op, missing []opmodel.OpID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.depEntries[op.OpID]; ok {
		e.op = op // refresh in case of a re-delivery
		return
	}

	waiting := make(map[opmodel.OpID]struct{}, len(missing))
	for _, id := range missing {
		waiting[id] = struct{}{}
	}
	e := &entry{op: op, waiting: waiting}
	b.depEntries[op.OpID] = e
	for id := range waiting {
		if b.byMissingDep[id] == nil {
			b.byMissingDep[id] = make(map[opmodel.OpID]*entry)
		}
		b.byMissingDep[id][op.OpID] = e
		if b.fetch != nil {
			b.fetch(id)
		}
	}
}

// BufferEpoch enqueues op, waiting for scope's local epoch to reach
// op.Epoch. It triggers a Commit/Welcome fetch.
func (b *Buffer) BufferEpoch(op opmodel.Op, scope EpochScope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.epochEntries[op.OpID]; ok {
		return
	}
	e := &entry{op: op, epoch: op.Epoch, scope: scope}
	b.epochEntries[op.OpID] = e
	k := epochKey{scope: scope, epoch: op.Epoch}
	b.byEpochWait[k] = append(b.byEpochWait[k], e)
	if b.fetchCommits != nil {
		b.fetchCommits(scope, op.Epoch)
	}
}

// Admit marks opID as applied, releasing any deps-bucket entry that was
// waiting solely on it. Returns the ops now ready for re-admission
// (in no particular order; callers should re-run them through the
// Acceptance Pipeline, which will re-check deps/epoch/membership).
func (b *Buffer) Admit(opID opmodel.OpID) []opmodel.Op {
	b.mu.Lock()
	defer b.mu.Unlock()

	waiters, ok := b.byMissingDep[opID]
	if !ok {
		return nil
	}
	delete(b.byMissingDep, opID)

	var ready []opmodel.Op
	for _, e := range waiters {
		delete(e.waiting, opID)
		if len(e.waiting) == 0 {
			delete(b.depEntries, e.op.OpID)
			ready = append(ready, e.op)
		}
	}
	return ready
}

// AdvanceEpoch signals that scope's local epoch has reached newEpoch
// (a Commit was just processed), releasing every epoch-bucket entry
// waiting on an epoch <= newEpoch.
func (b *Buffer) AdvanceEpoch(scope EpochScope, newEpoch uint64) []opmodel.Op {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ready []opmodel.Op
	for k, entries := range b.byEpochWait {
		if k.scope != scope || k.epoch > newEpoch {
			continue
		}
		for _, e := range entries {
			delete(b.epochEntries, e.op.OpID)
			ready = append(ready, e.op)
		}
		delete(b.byEpochWait, k)
	}
	return ready
}

// RetryFetches re-issues fetches for every outstanding dependency and
// epoch wait, incrementing each entry's attempt counter. Entries past
// DefaultRetryBudget are moved to the stale set and stop being retried
// (spec.md §4.6, §4.9: "kept persistently but not applied... becomes
// applicable automatically when deps later arrive").
func (b *Buffer) RetryFetches() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, waiters := range b.byMissingDep {
		var anyLive bool
		for opID, e := range waiters {
			e.attempts++
			if e.attempts > DefaultRetryBudget {
				if !e.stale {
					e.stale = true
					b.stale = append(b.stale, e.op)
				}
				delete(waiters, opID)
				delete(b.depEntries, opID)
				continue
			}
			anyLive = true
		}
		if len(waiters) == 0 {
			delete(b.byMissingDep, id)
		}
		if anyLive && b.fetch != nil {
			b.fetch(id)
		}
	}

	for k, entries := range b.byEpochWait {
		var live []*entry
		for _, e := range entries {
			e.attempts++
			if e.attempts > DefaultRetryBudget {
				if !e.stale {
					e.stale = true
					b.stale = append(b.stale, e.op)
				}
				delete(b.epochEntries, e.op.OpID)
				continue
			}
			live = append(live, e)
		}
		if len(live) == 0 {
			delete(b.byEpochWait, k)
			continue
		}
		b.byEpochWait[k] = live
		if b.fetchCommits != nil {
			b.fetchCommits(k.scope, k.epoch)
		}
	}
}

// Stale returns every op that exhausted its retry budget without its
// dependency ever arriving, and clears the list. Stale ops remain in the
// caller's storage but are not applied (spec.md §4.9).
func (b *Buffer) Stale() []opmodel.Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.stale
	b.stale = nil
	return out
}

// Len reports how many distinct ops are buffered across both buckets
// (diagnostic / test use).
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.depEntries) + len(b.epochEntries)
}
