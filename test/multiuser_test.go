package test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/spacewald/core/internal/crdt"
	"github.com/spacewald/core/internal/domain"
	"github.com/spacewald/core/internal/hlc"
	"github.com/spacewald/core/internal/holdback"
	"github.com/spacewald/core/internal/identity"
	"github.com/spacewald/core/internal/membership"
	"github.com/spacewald/core/internal/mls"
	"github.com/spacewald/core/internal/opmodel"
	"github.com/spacewald/core/internal/pipeline"
	"github.com/spacewald/core/internal/ports"
	"github.com/spacewald/core/internal/visibility"
)

// testNode is one independent participant's correctness engine: its own
// CRDT store, membership index, and MLS engine, wired through its own
// Pipeline, mirroring the independent state every real node in the field
// holds and nobody else touches directly.
type testNode struct {
	kp    identity.Keypair
	store *crdt.Store
	mls   *mls.Engine
	clock *hlc.Clock
	pipe  *pipeline.Pipeline
}

func newTestNode(t *testing.T, transport ports.Transport) *testNode {
	t.Helper()
	kp, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	var tick uint64
	n := &testNode{
		kp:    kp,
		store: crdt.NewStore(),
		mls:   mls.NewEngine(),
		clock: hlc.New(func() uint64 { tick++; return tick }),
	}
	n.pipe = pipeline.New(n.store, membership.New(), n.mls, holdback.New(nil, nil), nil, transport, nil)
	return n
}

func (n *testNode) userID() opmodel.Hash32 { return opmodel.Hash32(n.kp.ID()) }

// submit builds, signs, and admits one op originating from n, failing the
// test unless the result matches want.
func (n *testNode) submit(t *testing.T, spaceID, channelID, threadID opmodel.Hash32, kind opmodel.Kind, epoch uint64, prevOps []opmodel.OpID, payload interface{}, want pipeline.Verdict) opmodel.Op {
	t.Helper()
	body, err := opmodel.EncodePayload(payload)
	if err != nil {
		t.Fatal(err)
	}
	op := opmodel.Op{
		SpaceID: spaceID, ChannelID: channelID, ThreadID: threadID,
		Kind: kind, Payload: body, PrevOps: prevOps,
		Author: n.kp.ID(), HLC: n.clock.Tick(), Epoch: epoch,
	}
	op, err = opmodel.Finalize(op, n.kp.Private)
	if err != nil {
		t.Fatal(err)
	}
	res := n.pipe.Admit(context.Background(), op)
	if res.Verdict != want {
		t.Fatalf("submit %s: got %s (%v), want %s", kind, res.Verdict, res.Err, want)
	}
	return op
}

// deliver admits a foreign op (one this node did not author) into n,
// simulating the op arriving over the wire. Like a Scheduler worker, it
// marks an Accepted op as applied in the Holdback so entries waiting
// only on it leave the buffer.
func (n *testNode) deliver(t *testing.T, op opmodel.Op) pipeline.Result {
	t.Helper()
	res := n.pipe.Admit(context.Background(), op)
	if res.Verdict == pipeline.Accepted && n.pipe.Holdback != nil {
		n.pipe.Holdback.Admit(op.OpID)
	}
	return res
}

func keyPackageFor(t *testing.T, kp identity.Keypair) (mls.MLSKeys, []byte) {
	t.Helper()
	keys, err := mls.KeysFromIdentity(kp.Private, kp.Public)
	if err != nil {
		t.Fatal(err)
	}
	id := kp.ID()
	b, err := json.Marshal(mls.BuildKeyPackage(id[:], keys))
	if err != nil {
		t.Fatal(err)
	}
	return keys, b
}

func renderedPosts(n *testNode, spaceID, threadID opmodel.Hash32) []visibility.VisiblePost {
	docs := n.store.Space(spaceID)
	resolver := visibility.New(n.pipe.RoleLookup(spaceID))
	return resolver.RenderThread(docs.Thread(threadID), docs.Moderation)
}

// TestBasicPostConvergence is spec.md scenario S1: Alice creates a Space,
// Channel, and Thread, then posts P1; a peer that receives every op in
// reverse causal order buffers each on its unmet prev_ops and converges
// to the identical final view once the chain completes.
func TestBasicPostConvergence(t *testing.T) {
	transport := ports.NewMemoryTransport()
	alice := newTestNode(t, transport)

	spaceID := opmodel.Hash32{1}
	channelID := opmodel.Hash32{2}
	threadID := opmodel.Hash32{3}

	_, kpBytes := keyPackageFor(t, alice.kp)
	opSpace := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindCreateSpace, 0, nil,
		opmodel.CreateSpacePayload{Name: "Test Space", KeyPackage: kpBytes}, pipeline.Accepted)
	opChannel := alice.submit(t, spaceID, channelID, opmodel.Hash32{}, opmodel.KindCreateChannel, 0, []opmodel.OpID{opSpace.OpID},
		opmodel.CreateChannelPayload{Name: "general"}, pipeline.Accepted)
	opThread := alice.submit(t, spaceID, channelID, threadID, opmodel.KindCreateThread, 0, []opmodel.OpID{opChannel.OpID},
		opmodel.CreateThreadPayload{Title: "hello thread"}, pipeline.Accepted)
	contentHash := opmodel.Hash32{9, 9, 9}
	opPost := alice.submit(t, spaceID, channelID, threadID, opmodel.KindCreatePost, 0, []opmodel.OpID{opThread.OpID},
		opmodel.CreatePostPayload{ContentHash: contentHash}, pipeline.Accepted)

	alicePosts := renderedPosts(alice, spaceID, threadID)
	if len(alicePosts) != 1 || alicePosts[0].ContentRef != contentHash {
		t.Fatalf("alice's own view: got %+v", alicePosts)
	}

	// A peer receives the same four ops in reverse causal order. Each one
	// but CreateSpace buffers on its unmet prev_ops; delivering the chain
	// back in order unwinds the buffer and converges to Alice's view.
	peer := newTestNode(t, transport)
	for _, op := range []opmodel.Op{opPost, opThread, opChannel} {
		if res := peer.deliver(t, op); res.Verdict != pipeline.Buffered {
			t.Fatalf("deliver %s out of order: got %s (%v), want Buffered", op.Kind, res.Verdict, res.Err)
		}
	}
	if res := peer.deliver(t, opSpace); res.Verdict != pipeline.Accepted {
		t.Fatalf("deliver CreateSpace: got %s (%v)", res.Verdict, res.Err)
	}
	for _, op := range []opmodel.Op{opChannel, opThread, opPost} {
		if res := peer.deliver(t, op); res.Verdict != pipeline.Accepted {
			t.Fatalf("redeliver %s: got %s (%v), want Accepted", op.Kind, res.Verdict, res.Err)
		}
	}

	peerPosts := renderedPosts(peer, spaceID, threadID)
	if len(peerPosts) != 1 || peerPosts[0].ContentRef != contentHash {
		t.Fatalf("peer's view after out-of-order delivery: got %+v", peerPosts)
	}
	if peerPosts[0].PostID != alicePosts[0].PostID {
		t.Fatalf("peer and alice converged on different posts: %s vs %s", peerPosts[0].PostID, alicePosts[0].PostID)
	}
}

// TestJoinAndSee is spec.md scenario S2: Alice creates a Space and posts
// P1, then admits Bob via a real MLS AddMember/Welcome round trip. Bob
// renders the thread once he has replayed the Welcome, and a post Alice
// makes afterward at the new epoch is visible to both.
func TestJoinAndSee(t *testing.T) {
	transport := ports.NewMemoryTransport()
	alice := newTestNode(t, transport)
	bob := newTestNode(t, transport)

	spaceID := opmodel.Hash32{1}
	channelID := opmodel.Hash32{2}
	threadID := opmodel.Hash32{3}

	_, aliceKP := keyPackageFor(t, alice.kp)
	opSpace := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindCreateSpace, 0, nil,
		opmodel.CreateSpacePayload{Name: "S", KeyPackage: aliceKP}, pipeline.Accepted)
	opChannel := alice.submit(t, spaceID, channelID, opmodel.Hash32{}, opmodel.KindCreateChannel, 0, nil,
		opmodel.CreateChannelPayload{Name: "general"}, pipeline.Accepted)
	opThread := alice.submit(t, spaceID, channelID, threadID, opmodel.KindCreateThread, 0, nil,
		opmodel.CreateThreadPayload{Title: "t"}, pipeline.Accepted)
	p1Hash := opmodel.Hash32{0xA1}
	opP1 := alice.submit(t, spaceID, channelID, threadID, opmodel.KindCreatePost, 0, nil,
		opmodel.CreatePostPayload{ContentHash: p1Hash}, pipeline.Accepted)

	bobKeys, bobKP := keyPackageFor(t, bob.kp)
	opAdd := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindAddMember, 0, nil,
		opmodel.AddMemberPayload{User: bob.userID(), RoleID: string(domain.RoleMember), KeyPackage: bobKP}, pipeline.Accepted)

	// Bob replays the space's history, then the Welcome addressed to him,
	// mirroring what a real join handler's replay path would do.
	for _, op := range []opmodel.Op{opSpace, opChannel, opThread, opP1, opAdd} {
		res := bob.deliver(t, op)
		if res.Verdict != pipeline.Accepted {
			t.Fatalf("bob replay %s: %s (%v)", op.Kind, res.Verdict, res.Err)
		}
	}
	welcomes := transport.Welcomes(bob.userID())
	if len(welcomes) != 1 {
		t.Fatalf("expected exactly one welcome for bob, got %d", len(welcomes))
	}
	group, err := mls.JoinFromWelcome(welcomes[0], bobKeys)
	if err != nil {
		t.Fatalf("bob joins from welcome: %v", err)
	}
	bob.mls.AdoptGroup(mls.ScopeKey(spaceID), group)

	// P1 predates Bob's join; he still sees it, since authoring epoch (0)
	// was valid at the time and visibility does not depend on current
	// membership.
	bobPosts := renderedPosts(bob, spaceID, threadID)
	if len(bobPosts) != 1 || bobPosts[0].ContentRef != p1Hash {
		t.Fatalf("bob's view before P2: got %+v", bobPosts)
	}

	p2Hash := opmodel.Hash32{0xB2}
	opP2 := alice.submit(t, spaceID, channelID, threadID, opmodel.KindCreatePost, 1, nil,
		opmodel.CreatePostPayload{ContentHash: p2Hash}, pipeline.Accepted)
	if res := bob.deliver(t, opP2); res.Verdict != pipeline.Accepted {
		t.Fatalf("bob admits P2: %s (%v)", res.Verdict, res.Err)
	}

	bobPosts = renderedPosts(bob, spaceID, threadID)
	if len(bobPosts) != 2 {
		t.Fatalf("bob's view after P2: got %+v", bobPosts)
	}
	alicePosts := renderedPosts(alice, spaceID, threadID)
	if len(alicePosts) != 2 {
		t.Fatalf("alice's view after P2: got %+v", alicePosts)
	}
}

// TestPostRaceRemoveThenModeration covers S3+S4: Bob posts at epoch 1
// concurrently with Alice removing him (landing at epoch 2). Bob's post
// is accepted since he was a member as of its stamped epoch; Alice's
// later DeletePost hides P3 from rendering while it remains in the audit
// projection.
func TestPostRaceRemoveThenModeration(t *testing.T) {
	transport := ports.NewMemoryTransport()
	alice := newTestNode(t, transport)
	bob := newTestNode(t, transport)

	spaceID := opmodel.Hash32{1}
	channelID := opmodel.Hash32{2}
	threadID := opmodel.Hash32{3}

	_, aliceKP := keyPackageFor(t, alice.kp)
	opSpace := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindCreateSpace, 0, nil,
		opmodel.CreateSpacePayload{Name: "S", KeyPackage: aliceKP}, pipeline.Accepted)
	opChannel := alice.submit(t, spaceID, channelID, opmodel.Hash32{}, opmodel.KindCreateChannel, 0, nil,
		opmodel.CreateChannelPayload{Name: "general"}, pipeline.Accepted)
	opThread := alice.submit(t, spaceID, channelID, threadID, opmodel.KindCreateThread, 0, nil,
		opmodel.CreateThreadPayload{Title: "t"}, pipeline.Accepted)

	bobKeys, bobKP := keyPackageFor(t, bob.kp)
	opAdd := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindAddMember, 0, nil,
		opmodel.AddMemberPayload{User: bob.userID(), RoleID: string(domain.RoleMember), KeyPackage: bobKP}, pipeline.Accepted)

	for _, op := range []opmodel.Op{opSpace, opChannel, opThread, opAdd} {
		if res := bob.deliver(t, op); res.Verdict != pipeline.Accepted {
			t.Fatalf("bob replay %s: %s (%v)", op.Kind, res.Verdict, res.Err)
		}
	}
	welcomes := transport.Welcomes(bob.userID())
	group, err := mls.JoinFromWelcome(welcomes[0], bobKeys)
	if err != nil {
		t.Fatal(err)
	}
	bob.mls.AdoptGroup(mls.ScopeKey(spaceID), group)

	// Bob authors P3 at epoch 1 (the epoch he was admitted into).
	p3Hash := opmodel.Hash32{0xC3}
	opP3 := bob.submit(t, spaceID, channelID, threadID, opmodel.KindCreatePost, 1, nil,
		opmodel.CreatePostPayload{ContentHash: p3Hash}, pipeline.Accepted)

	// Concurrently, Alice removes Bob, advancing the space to epoch 2.
	opRemove := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindRemoveMember, 1, nil,
		opmodel.RemoveMemberPayload{User: bob.userID()}, pipeline.Accepted)

	// Alice admits P3 after the removal; it is still accepted, since P3's
	// stamped epoch (1) predates the removal's epoch (2) and Bob held
	// membership as of epoch 1.
	if res := alice.deliver(t, opP3); res.Verdict != pipeline.Accepted {
		t.Fatalf("alice admits P3: %s (%v)", res.Verdict, res.Err)
	}
	posts := renderedPosts(alice, spaceID, threadID)
	if len(posts) != 1 || posts[0].ContentRef != p3Hash || posts[0].Hidden {
		t.Fatalf("alice's view after P3: got %+v", posts)
	}

	// Bob, in turn, admits the removal op against himself.
	if res := bob.deliver(t, opRemove); res.Verdict != pipeline.Accepted {
		t.Fatalf("bob admits his own removal: %s (%v)", res.Verdict, res.Err)
	}

	// S4: Alice now moderates P3.
	alice.submit(t, spaceID, channelID, threadID, opmodel.KindDeletePost, 2, nil,
		opmodel.DeletePostPayload{Target: opP3.OpID}, pipeline.Accepted)
	posts = renderedPosts(alice, spaceID, threadID)
	if len(posts) != 1 || !posts[0].Hidden {
		t.Fatalf("P3 should render hidden after DeletePost: got %+v", posts)
	}
	if !alice.store.Space(spaceID).Audit.Contains(opP3.OpID) {
		t.Fatal("P3 must remain in the audit projection even though hidden")
	}
}

// TestPostAfterRemovalRejected is S5: a removed member who keeps
// stamping an op at the epoch they were removed from is rejected as no
// longer a member once the removal has been locally admitted.
func TestPostAfterRemovalRejected(t *testing.T) {
	transport := ports.NewMemoryTransport()
	alice := newTestNode(t, transport)
	bob := newTestNode(t, transport)

	spaceID := opmodel.Hash32{1}
	channelID := opmodel.Hash32{2}
	threadID := opmodel.Hash32{3}

	_, aliceKP := keyPackageFor(t, alice.kp)
	opSpace := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindCreateSpace, 0, nil,
		opmodel.CreateSpacePayload{Name: "S", KeyPackage: aliceKP}, pipeline.Accepted)
	opChannel := alice.submit(t, spaceID, channelID, opmodel.Hash32{}, opmodel.KindCreateChannel, 0, nil,
		opmodel.CreateChannelPayload{Name: "general"}, pipeline.Accepted)
	opThread := alice.submit(t, spaceID, channelID, threadID, opmodel.KindCreateThread, 0, nil,
		opmodel.CreateThreadPayload{Title: "t"}, pipeline.Accepted)

	bobKeys, bobKP := keyPackageFor(t, bob.kp)
	opAdd := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindAddMember, 0, nil,
		opmodel.AddMemberPayload{User: bob.userID(), RoleID: string(domain.RoleMember), KeyPackage: bobKP}, pipeline.Accepted)
	for _, op := range []opmodel.Op{opSpace, opChannel, opThread, opAdd} {
		bob.deliver(t, op)
	}
	welcomes := transport.Welcomes(bob.userID())
	group, err := mls.JoinFromWelcome(welcomes[0], bobKeys)
	if err != nil {
		t.Fatal(err)
	}
	bob.mls.AdoptGroup(mls.ScopeKey(spaceID), group)

	opRemove := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindRemoveMember, 1, nil,
		opmodel.RemoveMemberPayload{User: bob.userID()}, pipeline.Accepted)
	if res := alice.deliver(t, opRemove); res.Verdict != pipeline.Duplicate {
		t.Fatalf("alice re-delivers her own already-applied removal: got %s, want Duplicate", res.Verdict)
	}

	ghostHash := opmodel.Hash32{0xDE, 0xAD}
	body, err := opmodel.EncodePayload(opmodel.CreatePostPayload{ContentHash: ghostHash})
	if err != nil {
		t.Fatal(err)
	}
	ghost := opmodel.Op{
		SpaceID: spaceID, ChannelID: channelID, ThreadID: threadID,
		Kind: opmodel.KindCreatePost, Payload: body, Author: bob.kp.ID(), HLC: bob.clock.Tick(), Epoch: 1,
	}
	ghost, err = opmodel.Finalize(ghost, bob.kp.Private)
	if err != nil {
		t.Fatal(err)
	}
	res := alice.deliver(t, ghost)
	if res.Verdict != pipeline.Rejected {
		t.Fatalf("ghost post from removed bob: got %s (%v), want Rejected", res.Verdict, res.Err)
	}
}

// TestOutOfOrderDeliveryConverges is S6: a peer that receives a post
// before the AddMember op it causally depends on buffers it, then admits
// it once the dependency chain has been delivered -- final state matches
// a peer that received everything in causal order.
func TestOutOfOrderDeliveryConverges(t *testing.T) {
	transport := ports.NewMemoryTransport()
	alice := newTestNode(t, transport)
	bob := newTestNode(t, transport)

	spaceID := opmodel.Hash32{1}
	channelID := opmodel.Hash32{2}
	threadID := opmodel.Hash32{3}

	_, aliceKP := keyPackageFor(t, alice.kp)
	opSpace := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindCreateSpace, 0, nil,
		opmodel.CreateSpacePayload{Name: "S", KeyPackage: aliceKP}, pipeline.Accepted)
	opChannel := alice.submit(t, spaceID, channelID, opmodel.Hash32{}, opmodel.KindCreateChannel, 0, []opmodel.OpID{opSpace.OpID},
		opmodel.CreateChannelPayload{Name: "general"}, pipeline.Accepted)
	opThread := alice.submit(t, spaceID, channelID, threadID, opmodel.KindCreateThread, 0, []opmodel.OpID{opChannel.OpID},
		opmodel.CreateThreadPayload{Title: "t"}, pipeline.Accepted)

	bobKeys, bobKP := keyPackageFor(t, bob.kp)
	opAdd := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindAddMember, 0, []opmodel.OpID{opThread.OpID},
		opmodel.AddMemberPayload{User: bob.userID(), RoleID: string(domain.RoleMember), KeyPackage: bobKP}, pipeline.Accepted)

	p2Hash := opmodel.Hash32{0xF2}
	opP2 := alice.submit(t, spaceID, channelID, threadID, opmodel.KindCreatePost, 1, []opmodel.OpID{opAdd.OpID},
		opmodel.CreatePostPayload{ContentHash: p2Hash}, pipeline.Accepted)

	// A third observer receives P2 before any of its causal ancestors.
	observer := newTestNode(t, transport)
	if res := observer.deliver(t, opP2); res.Verdict != pipeline.Buffered {
		t.Fatalf("P2 delivered first: got %s, want Buffered", res.Verdict)
	}
	for _, op := range []opmodel.Op{opSpace, opChannel, opThread, opAdd} {
		if res := observer.deliver(t, op); res.Verdict != pipeline.Accepted {
			t.Fatalf("observer backfill %s: %s (%v)", op.Kind, res.Verdict, res.Err)
		}
	}
	// Now that opAdd (P2's direct prev_op) has landed, redelivering P2
	// succeeds: the dependency resolver's wait condition is satisfied.
	if res := observer.deliver(t, opP2); res.Verdict != pipeline.Accepted {
		t.Fatalf("redeliver P2 after backfill: got %s (%v)", res.Verdict, res.Err)
	}

	posts := renderedPosts(observer, spaceID, threadID)
	if len(posts) != 1 || posts[0].ContentRef != p2Hash {
		t.Fatalf("observer's view after backfill: got %+v", posts)
	}
	if observer.pipe.Holdback.Len() != 0 {
		t.Fatalf("holdback should be drained, has %d entries left", observer.pipe.Holdback.Len())
	}
}

// TestMemberSelfDeletesOwnPost covers the self-moderation path S4 doesn't:
// an ordinary member (no ban/kick/admin permission) deleting their own post
// is accepted by the pipeline without any moderation permission, and the
// resulting tombstone still hides the post when rendered.
func TestMemberSelfDeletesOwnPost(t *testing.T) {
	transport := ports.NewMemoryTransport()
	alice := newTestNode(t, transport)
	bob := newTestNode(t, transport)

	spaceID := opmodel.Hash32{1}
	channelID := opmodel.Hash32{2}
	threadID := opmodel.Hash32{3}

	_, aliceKP := keyPackageFor(t, alice.kp)
	opSpace := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindCreateSpace, 0, nil,
		opmodel.CreateSpacePayload{Name: "S", KeyPackage: aliceKP}, pipeline.Accepted)
	opChannel := alice.submit(t, spaceID, channelID, opmodel.Hash32{}, opmodel.KindCreateChannel, 0, nil,
		opmodel.CreateChannelPayload{Name: "general"}, pipeline.Accepted)
	opThread := alice.submit(t, spaceID, channelID, threadID, opmodel.KindCreateThread, 0, nil,
		opmodel.CreateThreadPayload{Title: "t"}, pipeline.Accepted)

	bobKeys, bobKP := keyPackageFor(t, bob.kp)
	opAdd := alice.submit(t, spaceID, opmodel.Hash32{}, opmodel.Hash32{}, opmodel.KindAddMember, 0, nil,
		opmodel.AddMemberPayload{User: bob.userID(), RoleID: string(domain.RoleMember), KeyPackage: bobKP}, pipeline.Accepted)

	for _, op := range []opmodel.Op{opSpace, opChannel, opThread, opAdd} {
		if res := bob.deliver(t, op); res.Verdict != pipeline.Accepted {
			t.Fatalf("bob replay %s: %s (%v)", op.Kind, res.Verdict, res.Err)
		}
	}
	welcomes := transport.Welcomes(bob.userID())
	group, err := mls.JoinFromWelcome(welcomes[0], bobKeys)
	if err != nil {
		t.Fatal(err)
	}
	bob.mls.AdoptGroup(mls.ScopeKey(spaceID), group)

	// Bob, an ordinary member with no moderation permission, posts...
	postHash := opmodel.Hash32{0xF0}
	opPost := bob.submit(t, spaceID, channelID, threadID, opmodel.KindCreatePost, 1, nil,
		opmodel.CreatePostPayload{ContentHash: postHash}, pipeline.Accepted)
	if res := alice.deliver(t, opPost); res.Verdict != pipeline.Accepted {
		t.Fatalf("alice admits bob's post: %s (%v)", res.Verdict, res.Err)
	}

	// ...then deletes it himself. checkPermission's DeletePost case exempts
	// the post's own author from needing PermKick/PermBan/PermAdministrator.
	opDelete := bob.submit(t, spaceID, channelID, threadID, opmodel.KindDeletePost, 1, nil,
		opmodel.DeletePostPayload{Target: opPost.OpID}, pipeline.Accepted)
	if res := alice.deliver(t, opDelete); res.Verdict != pipeline.Accepted {
		t.Fatalf("alice admits bob's self-delete: %s (%v)", res.Verdict, res.Err)
	}

	for _, n := range []*testNode{alice, bob} {
		posts := renderedPosts(n, spaceID, threadID)
		if len(posts) != 1 || !posts[0].Hidden {
			t.Fatalf("self-deleted post must render hidden: got %+v", posts)
		}
	}
}
