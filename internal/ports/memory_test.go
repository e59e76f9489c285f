package ports

import (
	"context"
	"testing"

	"github.com/spacewald/core/internal/opmodel"
)

func TestMemoryTransportPublishSubscribe(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()

	ch, err := tr.Subscribe(ctx, "topic-a")
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Publish(ctx, "topic-a", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-ch:
		if string(got) != "hello" {
			t.Fatalf("got %q, want %q", got, "hello")
		}
	default:
		t.Fatal("expected a message delivered to the subscriber")
	}
}

func TestMemoryTransportFetchByID(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()
	var id opmodel.OpID
	id[0] = 1

	got, err := tr.FetchByID(ctx, id)
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil) for an unknown op, got (%v, %v)", got, err)
	}

	tr.Remember(id, []byte("op-bytes"))
	got, err = tr.FetchByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "op-bytes" {
		t.Fatalf("got %q, want %q", got, "op-bytes")
	}
}

func TestMemoryTransportWelcomesDrainOnce(t *testing.T) {
	tr := NewMemoryTransport()
	ctx := context.Background()
	var user opmodel.Hash32
	user[0] = 9

	if err := tr.DeliverWelcome(ctx, user, []byte("welcome-1")); err != nil {
		t.Fatal(err)
	}
	if err := tr.DeliverWelcome(ctx, user, []byte("welcome-2")); err != nil {
		t.Fatal(err)
	}
	welcomes := tr.Welcomes(user)
	if len(welcomes) != 2 {
		t.Fatalf("expected 2 queued welcomes, got %d", len(welcomes))
	}
	if len(tr.Welcomes(user)) != 0 {
		t.Fatal("Welcomes must drain the queue, not just peek it")
	}
}

func TestMemoryBlobStorePutGet(t *testing.T) {
	bs := NewMemoryBlobStore()
	ctx := context.Background()
	key := []byte("thread-key")
	plaintext := []byte("the actual post content")

	hash, err := bs.Put(ctx, plaintext, key)
	if err != nil {
		t.Fatal(err)
	}
	got, err := bs.Get(ctx, hash, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestMemoryBlobStoreGetUnknownHashErrors(t *testing.T) {
	bs := NewMemoryBlobStore()
	ctx := context.Background()
	if _, err := bs.Get(ctx, opmodel.Hash32{0xFF}, nil); err == nil {
		t.Fatal("expected an error fetching an unknown blob hash")
	}
}

func TestMemoryPersistenceAtomicBatchAndLoad(t *testing.T) {
	p := NewMemoryPersistence()
	ctx := context.Background()
	group := opmodel.Hash32{0x01}

	op := opmodel.Op{OpID: opmodel.OpID{0x1}}
	err := p.AtomicBatch(ctx, group, Batch{
		Group:        group,
		Ops:          []opmodel.Op{op},
		MLSState:     []byte("state-1"),
		OutboundAdds: [][]byte{[]byte("out-1"), []byte("out-2")},
	})
	if err != nil {
		t.Fatal(err)
	}

	ops, err := p.LoadOps(ctx, group)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].OpID != op.OpID {
		t.Fatalf("expected the persisted op back, got %v", ops)
	}

	state, ok, err := p.LoadMLSState(ctx, group)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(state) != "state-1" {
		t.Fatalf("expected mls state %q, got %q (ok=%v)", "state-1", state, ok)
	}

	outbound, err := p.LoadOutbound(ctx, group)
	if err != nil {
		t.Fatal(err)
	}
	if len(outbound) != 2 {
		t.Fatalf("expected 2 outbound entries, got %d", len(outbound))
	}

	if err := p.AtomicBatch(ctx, group, Batch{Group: group, OutboundDone: []int{0}}); err != nil {
		t.Fatal(err)
	}
	outbound, err = p.LoadOutbound(ctx, group)
	if err != nil {
		t.Fatal(err)
	}
	if len(outbound) != 1 || string(outbound[0]) != "out-2" {
		t.Fatalf("expected only the undone outbound entry to remain, got %v", outbound)
	}
}

func TestMemoryPersistenceUnknownGroupReturnsEmpty(t *testing.T) {
	p := NewMemoryPersistence()
	ctx := context.Background()
	ops, err := p.LoadOps(ctx, opmodel.Hash32{0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected no ops for an unknown group, got %v", ops)
	}
	_, ok, err := p.LoadMLSState(ctx, opmodel.Hash32{0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ok=false for an unknown group's mls state")
	}
}
