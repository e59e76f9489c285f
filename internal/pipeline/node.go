package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spacewald/core/internal/mls"
	"github.com/spacewald/core/internal/opmodel"
	"github.com/spacewald/core/internal/ports"
)

// Node runs the three cooperating tasks spec.md §5 describes ("an
// intake task per transport subscription, an acceptance task per group,
// and a broadcast/relay task") over one Scheduler, coordinated with
// errgroup so that a fatal error in any task tears down the others.
//
// A Node is bound to exactly one MLS scope, matching ports.GroupTopic's
// own doc comment that one topic names exactly one MLS group scope: the
// wire it reads from and writes to topic is always sealed under that
// scope's current epoch application key (spec.md §2, §6).
type Node struct {
	Scheduler *Scheduler
	Pipeline  *Pipeline
	Transport ports.Transport
	Scope     mls.ScopeKey
	Log       *zap.Logger

	outbound chan opmodel.Op

	holdMu sync.Mutex
	hold   [][]byte // ciphertexts received before Scope's group existed locally
}

// NewNode wires scheduler, transport, and the MLS scope topic is
// sealed under into a runnable Node. log may be nil.
func NewNode(scheduler *Scheduler, pipeline *Pipeline, transport ports.Transport, scope mls.ScopeKey, log *zap.Logger) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{
		Scheduler: scheduler,
		Pipeline:  pipeline,
		Transport: transport,
		Scope:     scope,
		Log:       log,
		outbound:  make(chan opmodel.Op, 256),
	}
}

// Run subscribes to topic and runs intake + broadcast until ctx is
// cancelled or a task fails. Acceptance itself happens inside the
// Scheduler's per-group workers, already running; Run only needs to feed
// them from the wire and relay their output back to the wire.
func (n *Node) Run(ctx context.Context, topic ports.GroupTopic) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return n.intake(gctx, topic) })
	g.Go(func() error { return n.broadcast(gctx, topic) })

	return g.Wait()
}

// intake pulls wire bytes off topic, opens the MLS application-message
// envelope (spec.md §6), decodes the resulting plaintext into an Op, and
// submits it to the Scheduler. One op is submitted per message; the
// queue inside the Scheduler's per-group worker is the only buffering
// point, per spec.md §9's "do not spawn one task per op".
func (n *Node) intake(ctx context.Context, topic ports.GroupTopic) error {
	stream, err := n.Transport.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("pipeline: subscribe %s: %w", topic, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wire, ok := <-stream:
			if !ok {
				return nil
			}
			n.retryHeld(ctx)
			n.processWire(ctx, wire)
		}
	}
}

// processWire opens and admits one inbound wire message. A ciphertext
// whose group isn't locally known yet (mls.ErrNoGroup: the Commit or
// Welcome that would establish Scope's group hasn't arrived) is held and
// retried on the next message for this topic, mirroring spec.md §4.3's
// MLS holdback for undecryptable ciphertext; any other decrypt failure
// (AEAD failure, malformed envelope) is dropped and logged per spec.md
// §4.9's failure table ("AEAD failure | Drop ciphertext; log; do not
// retry") since DecryptApp itself never distinguishes a stale epoch from
// a tampered/wrong-key ciphertext.
func (n *Node) processWire(ctx context.Context, wire []byte) {
	plaintext, err := n.Pipeline.MLS.DecryptApp(n.Scope, [32]byte(n.Scope), wire)
	if err != nil {
		if errors.Is(err, mls.ErrNoGroup) {
			n.holdMu.Lock()
			n.hold = append(n.hold, wire)
			n.holdMu.Unlock()
			n.Log.Debug("intake: holding ciphertext until group exists")
			return
		}
		n.Log.Warn("intake: dropping undecryptable op", zap.Error(err))
		return
	}
	op, err := opmodel.Decode(plaintext)
	if err != nil {
		n.Log.Warn("intake: dropping malformed op", zap.Error(err))
		return
	}
	res := n.Scheduler.Submit(ctx, op)
	if res.Verdict == Accepted {
		n.enqueueBroadcast(op)
	}
}

// retryHeld re-attempts every ciphertext held back by processWire. A new
// message arriving on topic is itself evidence of forward progress (the
// Commit/Welcome that unblocks the held ciphertexts is delivered over
// this same topic), so there is no separate retry schedule to maintain.
func (n *Node) retryHeld(ctx context.Context) {
	n.holdMu.Lock()
	held := n.hold
	n.hold = nil
	n.holdMu.Unlock()

	for _, wire := range held {
		n.processWire(ctx, wire)
	}
}

func (n *Node) enqueueBroadcast(op opmodel.Op) {
	select {
	case n.outbound <- op:
	default:
		n.Log.Warn("broadcast: outbound queue full, dropping relay", zap.String("op_id", op.OpID.String()))
	}
}

// broadcast republishes locally-accepted ops to topic so peers that
// haven't seen them yet converge (spec.md §4's gossip/relay model),
// sealing each one under Scope's current MLS application key before it
// ever reaches the wire (spec.md §2, §6).
func (n *Node) broadcast(ctx context.Context, topic ports.GroupTopic) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-n.outbound:
			plaintext, err := opmodel.Encode(op)
			if err != nil {
				n.Log.Error("broadcast: encode op", zap.Error(err))
				continue
			}
			wire, err := n.Pipeline.MLS.EncryptApp(n.Scope, [32]byte(n.Scope), plaintext)
			if err != nil {
				n.Log.Error("broadcast: encrypt op", zap.Error(err), zap.String("op_id", op.OpID.String()))
				continue
			}
			if err := n.Transport.Publish(ctx, topic, wire); err != nil {
				n.Log.Warn("broadcast: publish failed", zap.Error(err), zap.String("op_id", op.OpID.String()))
			}
		}
	}
}

// SubmitLocal is the entry point for ops originated on this node (via the
// CLI) rather than received over the wire: it submits directly to the
// Scheduler and, on acceptance, queues the op for broadcast to peers.
func (n *Node) SubmitLocal(ctx context.Context, op opmodel.Op) Result {
	res := n.Scheduler.Submit(ctx, op)
	if res.Verdict == Accepted {
		n.enqueueBroadcast(op)
	}
	return res
}
