package holdback

import (
	"testing"

	"github.com/spacewald/core/internal/opmodel"
)

func opWithID(b byte) opmodel.Op {
	var id opmodel.OpID
	id[0] = b
	return opmodel.Op{OpID: id}
}

func TestBufferDepsReleasesOnceAllDepsAdmitted(t *testing.T) {
	var fetched []opmodel.OpID
	b := New(func(id opmodel.OpID) { fetched = append(fetched, id) }, nil)

	dep1 := opWithID(1)
	dep2 := opWithID(2)
	waiting := opWithID(3)

	b.BufferDeps(waiting, []opmodel.OpID{dep1.OpID, dep2.OpID})
	if len(fetched) != 2 {
		t.Fatalf("expected a fetch for each missing dep, got %d", len(fetched))
	}
	if b.Len() != 1 {
		t.Fatalf("expected 1 buffered op, got %d", b.Len())
	}

	if ready := b.Admit(dep1.OpID); len(ready) != 0 {
		t.Fatalf("op with an unmet dep must not be released yet, got %v", ready)
	}
	ready := b.Admit(dep2.OpID)
	if len(ready) != 1 || ready[0].OpID != waiting.OpID {
		t.Fatalf("expected waiting op released once both deps admitted, got %v", ready)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer must be empty after release, got %d", b.Len())
	}
}

func TestBufferDepsRedeliveryRefreshesEntryNotDuplicate(t *testing.T) {
	b := New(nil, nil)
	dep := opWithID(1)
	waiting := opWithID(2)

	b.BufferDeps(waiting, []opmodel.OpID{dep.OpID})
	b.BufferDeps(waiting, []opmodel.OpID{dep.OpID}) // re-delivery
	if b.Len() != 1 {
		t.Fatalf("re-delivering the same buffered op must not duplicate it, got %d entries", b.Len())
	}
}

func TestBufferEpochReleasesAtOrBelowNewEpoch(t *testing.T) {
	var fetchedEpochs []uint64
	b := New(nil, func(scope EpochScope, epoch uint64) { fetchedEpochs = append(fetchedEpochs, epoch) })

	scope := EpochScope{SpaceID: opmodel.Hash32{0xAA}}
	low := opWithID(1)
	low.Epoch = 2
	high := opWithID(2)
	high.Epoch = 5

	b.BufferEpoch(low, scope)
	b.BufferEpoch(high, scope)
	if len(fetchedEpochs) != 2 {
		t.Fatalf("expected a commit fetch per buffered epoch wait, got %d", len(fetchedEpochs))
	}

	ready := b.AdvanceEpoch(scope, 3)
	if len(ready) != 1 || ready[0].OpID != low.OpID {
		t.Fatalf("expected only the epoch<=3 op released, got %v", ready)
	}
	if b.Len() != 1 {
		t.Fatalf("expected the epoch-5 op still buffered, got %d", b.Len())
	}

	ready = b.AdvanceEpoch(scope, 5)
	if len(ready) != 1 || ready[0].OpID != high.OpID {
		t.Fatalf("expected the epoch-5 op released at epoch 5, got %v", ready)
	}
}

func TestBufferEpochScopedIndependently(t *testing.T) {
	b := New(nil, nil)
	scopeA := EpochScope{SpaceID: opmodel.Hash32{0x01}}
	scopeB := EpochScope{SpaceID: opmodel.Hash32{0x02}}

	opA := opWithID(1)
	opA.Epoch = 1
	b.BufferEpoch(opA, scopeA)

	ready := b.AdvanceEpoch(scopeB, 10)
	if len(ready) != 0 {
		t.Fatalf("advancing an unrelated scope must not release entries in a different scope, got %v", ready)
	}
	if b.Len() != 1 {
		t.Fatalf("expected the original entry still buffered, got %d", b.Len())
	}
}

func TestRetryFetchesMarksStaleAfterBudget(t *testing.T) {
	calls := 0
	b := New(func(id opmodel.OpID) { calls++ }, nil)

	dep := opWithID(1)
	waiting := opWithID(2)
	b.BufferDeps(waiting, []opmodel.OpID{dep.OpID})
	calls = 0

	for i := 0; i < DefaultRetryBudget; i++ {
		b.RetryFetches()
		if len(b.Stale()) != 0 {
			t.Fatalf("must not go stale before exceeding the retry budget (attempt %d)", i)
		}
	}
	if calls == 0 {
		t.Fatal("expected retries to re-issue fetches while live")
	}

	b.RetryFetches()
	stale := b.Stale()
	if len(stale) != 1 || stale[0].OpID != waiting.OpID {
		t.Fatalf("expected the op to go stale once the retry budget is exceeded, got %v", stale)
	}
	if b.Len() != 0 {
		t.Fatalf("a stale op must be removed from the live buffer, got %d", b.Len())
	}
	if len(b.Stale()) != 0 {
		t.Fatal("Stale() must clear the stale list once read")
	}
}
