package pipeline

import (
	"context"
	"sync"

	"github.com/spacewald/core/internal/holdback"
	"github.com/spacewald/core/internal/opmodel"
	"github.com/spacewald/core/internal/ports"
)

// job is one Admit request queued to a group worker, paired with the
// channel its result is delivered on.
type job struct {
	op   opmodel.Op
	done chan Result
}

// worker is the per-GroupID state machine spec.md §9 calls for ("model
// it as a state machine per group with an explicit queue. Do not spawn
// one task per op"): a single goroutine draining an ordered queue, so
// every op belonging to one MLS group is admitted strictly in the order
// it was submitted and never concurrently with another op in that same
// group.
type worker struct {
	queue chan job
}

// Scheduler fans incoming ops out to one worker goroutine per GroupID,
// giving the Acceptance Pipeline the per-group serialization spec.md §5
// requires while letting unrelated groups make progress concurrently.
// Workers are created lazily and kept in a sync.Map since the set of
// live groups is open-ended and read far more often than written.
type Scheduler struct {
	pipeline *Pipeline

	workers sync.Map // GroupID -> *worker
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	queueDepth int
}

// NewScheduler starts a Scheduler over pipeline. queueDepth bounds each
// group's backlog; Submit blocks once a group's queue is full, which is
// the intended back-pressure signal up to the intake task (spec.md §5).
func NewScheduler(ctx context.Context, pipeline *Pipeline, queueDepth int) *Scheduler {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	sctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		pipeline:   pipeline,
		ctx:        sctx,
		cancel:     cancel,
		queueDepth: queueDepth,
	}
}

// Stop cancels all workers and waits for them to drain their in-flight
// job, if any.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) groupFor(op opmodel.Op) ports.GroupID {
	scope := s.pipeline.membershipScope(op)
	if scope.HasChannel {
		return ports.GroupID(scope.ChannelID)
	}
	return ports.GroupID(op.SpaceID)
}

func (s *Scheduler) workerFor(id ports.GroupID) *worker {
	if w, ok := s.workers.Load(id); ok {
		return w.(*worker)
	}
	w := &worker{queue: make(chan job, s.queueDepth)}
	actual, loaded := s.workers.LoadOrStore(id, w)
	w = actual.(*worker)
	if !loaded {
		s.wg.Add(1)
		go s.run(id, w)
	}
	return w
}

// run is the state machine for one GroupID: it admits jobs one at a
// time, and after each Accepted result drains the Holdback buffer for
// ops newly unblocked in this same group, re-submitting them to the back
// of this same worker's queue rather than recursing, so a long causal
// chain cannot grow the goroutine's stack.
func (s *Scheduler) run(id ports.GroupID, w *worker) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case j, ok := <-w.queue:
			if !ok {
				return
			}
			res := s.pipeline.Admit(s.ctx, j.op)
			if j.done != nil {
				j.done <- res
				close(j.done)
			}
			if res.Verdict == Accepted {
				s.releaseHoldback(j.op, w)
			}
		}
	}
}

// releaseHoldback re-enqueues ops the Holdback buffer now considers
// admissible following j.op's acceptance: either because j.op satisfied
// a dependency, or because j.op was itself the Commit that advanced the
// group's epoch.
func (s *Scheduler) releaseHoldback(op opmodel.Op, w *worker) {
	hb := s.pipeline.Holdback
	if hb == nil {
		return
	}
	for _, ready := range hb.Admit(op.OpID) {
		s.enqueue(w, ready, nil)
	}
	switch op.Kind {
	case opmodel.KindAddMember, opmodel.KindRemoveMember, opmodel.KindBanMember:
		scopeKey := s.pipeline.scopeKeyFor(op)
		if epoch, ok := s.pipeline.MLS.CurrentEpoch(scopeKey); ok {
			scope := holdback.EpochScope{SpaceID: op.SpaceID, ChannelID: op.ChannelID}
			for _, ready := range hb.AdvanceEpoch(scope, uint64(epoch)) {
				s.enqueue(w, ready, nil)
			}
		}
	}
}

func (s *Scheduler) enqueue(w *worker, op opmodel.Op, done chan Result) {
	select {
	case w.queue <- job{op: op, done: done}:
	case <-s.ctx.Done():
		if done != nil {
			close(done)
		}
	}
}

// Submit queues op for admission on its group's worker and blocks until
// the op has been admitted, buffered, or rejected. Safe to call
// concurrently from multiple intake goroutines; ops for the same group
// are still serialized by the single worker they land on.
func (s *Scheduler) Submit(ctx context.Context, op opmodel.Op) Result {
	id := s.groupFor(op)
	w := s.workerFor(id)
	done := make(chan Result, 1)
	select {
	case w.queue <- job{op: op, done: done}:
	case <-ctx.Done():
		return Result{Verdict: Rejected, Err: ctx.Err()}
	case <-s.ctx.Done():
		return Result{Verdict: Rejected, Err: s.ctx.Err()}
	}
	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return Result{Verdict: Rejected, Err: ctx.Err()}
	}
}

// SubmitAsync is Submit without waiting for the result, for callers (the
// broadcast/relay task) that only need admission to happen eventually.
func (s *Scheduler) SubmitAsync(op opmodel.Op) {
	id := s.groupFor(op)
	w := s.workerFor(id)
	s.enqueue(w, op, nil)
}
