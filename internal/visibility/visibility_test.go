package visibility

import (
	"testing"

	"github.com/spacewald/core/internal/crdt"
	"github.com/spacewald/core/internal/domain"
	"github.com/spacewald/core/internal/hlc"
	"github.com/spacewald/core/internal/opmodel"
)

func ts(wall uint64, counter uint32) hlc.Timestamp { return hlc.Timestamp{Wall: wall, Counter: counter} }

func TestRenderThreadOrdersByHLCAndHidesTombstoned(t *testing.T) {
	seq := crdt.NewPostSequence()
	mod := crdt.NewModerationLog()

	var author opmodel.Hash32
	author[0] = 1
	var post1, post2 opmodel.PostID
	post1[0] = 0xA1
	post2[0] = 0xA2
	var content1, content2 opmodel.Hash32
	content1[0] = 0xC1
	content2[0] = 0xC2

	seq.InsertCreate(post2, author, ts(20, 0), 1, content2, opmodel.PostID{}, false)
	seq.InsertCreate(post1, author, ts(10, 0), 1, content1, opmodel.PostID{}, false)

	var modAuthor opmodel.Hash32
	modAuthor[0] = 2
	roles := func(user opmodel.Hash32, epoch uint64) (domain.Permissions, int) {
		if user == modAuthor {
			return domain.PermBan, 10
		}
		return 0, 0
	}
	mod.Append(crdt.Tombstone{Target: post1, Author: modAuthor, HLC: ts(30, 0), Epoch: 1})

	r := New(roles)
	rendered := r.RenderThread(seq, mod)
	if len(rendered) != 2 {
		t.Fatalf("expected 2 rendered posts, got %d", len(rendered))
	}
	if rendered[0].PostID != post1 || rendered[1].PostID != post2 {
		t.Fatalf("expected post1 then post2 in HLC order, got %v then %v", rendered[0].PostID, rendered[1].PostID)
	}
	if !rendered[0].Hidden {
		t.Fatal("post1 has an authorized tombstone and must render hidden")
	}
	if rendered[1].Hidden {
		t.Fatal("post2 has no tombstone and must not render hidden")
	}
}

func TestRenderThreadUnauthorizedTombstoneDoesNotHide(t *testing.T) {
	seq := crdt.NewPostSequence()
	mod := crdt.NewModerationLog()

	var author opmodel.Hash32
	author[0] = 1
	var post opmodel.PostID
	post[0] = 0xB1
	var content opmodel.Hash32
	content[0] = 0xC1
	seq.InsertCreate(post, author, ts(10, 0), 1, content, opmodel.PostID{}, false)

	var unauthorized opmodel.Hash32
	unauthorized[0] = 3
	roles := func(user opmodel.Hash32, epoch uint64) (domain.Permissions, int) {
		return 0, 0 // no ban/kick/admin at this epoch
	}
	mod.Append(crdt.Tombstone{Target: post, Author: unauthorized, HLC: ts(20, 0), Epoch: 1})

	r := New(roles)
	rendered := r.RenderThread(seq, mod)
	if len(rendered) != 1 {
		t.Fatalf("expected 1 rendered post, got %d", len(rendered))
	}
	if rendered[0].Hidden {
		t.Fatal("a tombstone from an author with no ban/kick/admin permission must not hide the post")
	}
}

func TestRenderThreadSelfAuthoredTombstoneHidesWithoutModerationPermission(t *testing.T) {
	seq := crdt.NewPostSequence()
	mod := crdt.NewModerationLog()

	var author opmodel.Hash32
	author[0] = 1
	var post opmodel.PostID
	post[0] = 0xB2
	var content opmodel.Hash32
	content[0] = 0xC2
	seq.InsertCreate(post, author, ts(10, 0), 1, content, opmodel.PostID{}, false)

	roles := func(user opmodel.Hash32, epoch uint64) (domain.Permissions, int) {
		return 0, 0 // author holds no ban/kick/admin permission
	}
	mod.Append(crdt.Tombstone{Target: post, Author: author, HLC: ts(20, 0), Epoch: 1})

	r := New(roles)
	rendered := r.RenderThread(seq, mod)
	if len(rendered) != 1 {
		t.Fatalf("expected 1 rendered post, got %d", len(rendered))
	}
	if !rendered[0].Hidden {
		t.Fatal("a post's own author deleting it must hide it even without moderation permission")
	}
}

func TestRenderThreadPopulatesAuthorHLCAndEpoch(t *testing.T) {
	seq := crdt.NewPostSequence()
	mod := crdt.NewModerationLog()

	var author opmodel.Hash32
	author[0] = 5
	var post opmodel.PostID
	post[0] = 0xD1
	var content opmodel.Hash32
	content[0] = 0xC3

	seq.InsertCreate(post, author, ts(10, 3), 2, content, opmodel.PostID{}, false)

	r := New(nil)
	rendered := r.RenderThread(seq, mod)
	if len(rendered) != 1 {
		t.Fatalf("expected 1 rendered post, got %d", len(rendered))
	}
	got := rendered[0]
	if got.Author != author {
		t.Fatalf("Author = %v, want %v", got.Author, author)
	}
	if got.HLC != ts(10, 3) {
		t.Fatalf("HLC = %v, want %v", got.HLC, ts(10, 3))
	}
	if got.Epoch != 2 {
		t.Fatalf("Epoch = %d, want 2", got.Epoch)
	}
	if got.ContentRef != content {
		t.Fatalf("ContentRef = %v, want %v", got.ContentRef, content)
	}
}

func TestRenderThreadPopulatesWinningEditorAfterEdit(t *testing.T) {
	seq := crdt.NewPostSequence()
	mod := crdt.NewModerationLog()

	var author, editor opmodel.Hash32
	author[0] = 1
	editor[0] = 2
	var post opmodel.PostID
	post[0] = 0xD2
	var original, edited opmodel.Hash32
	original[0] = 0xC4
	edited[0] = 0xC5

	seq.InsertCreate(post, author, ts(10, 0), 1, original, opmodel.PostID{}, false)
	seq.ApplyEdit(post, editor, ts(20, 0), 3, edited)

	r := New(nil)
	rendered := r.RenderThread(seq, mod)
	if len(rendered) != 1 {
		t.Fatalf("expected 1 rendered post, got %d", len(rendered))
	}
	got := rendered[0]
	if got.ContentRef != edited {
		t.Fatalf("ContentRef = %v, want the winning edit's %v", got.ContentRef, edited)
	}
	if got.Author != editor {
		t.Fatalf("Author = %v, want the winning edit's author %v", got.Author, editor)
	}
	if got.Epoch != 3 {
		t.Fatalf("Epoch = %d, want the winning edit's epoch 3", got.Epoch)
	}
}

func TestRenderThreadNilRoleLookupTreatsEveryTombstoneAuthorized(t *testing.T) {
	seq := crdt.NewPostSequence()
	mod := crdt.NewModerationLog()
	var post opmodel.PostID
	post[0] = 1
	seq.InsertCreate(post, opmodel.Hash32{}, ts(1, 0), 1, opmodel.Hash32{0x9}, opmodel.PostID{}, false)
	mod.Append(crdt.Tombstone{Target: post, HLC: ts(2, 0), Epoch: 1})

	r := New(nil)
	rendered := r.RenderThread(seq, mod)
	if !rendered[0].Hidden {
		t.Fatal("with no role lookup, every tombstone must be treated as authorized")
	}
}

func TestRenderMembersSortedByUserID(t *testing.T) {
	members := crdt.NewMemberSet()
	roles := crdt.NewRoleMap()

	var u1, u2, u3 opmodel.Hash32
	u1[0], u2[0], u3[0] = 0x03, 0x01, 0x02
	members.Add(u1, opmodel.OpID{0x1}, 0)
	members.Add(u2, opmodel.OpID{0x2}, 0)
	members.Add(u3, opmodel.OpID{0x3}, 0)
	roles.Assign(u1, domain.RoleID("admin"), ts(1, 0), u1, opmodel.OpID{0x1})

	r := New(nil)
	rendered := r.RenderMembers(members, roles)
	if len(rendered) != 3 {
		t.Fatalf("expected 3 members, got %d", len(rendered))
	}
	if rendered[0].UserID != u2 || rendered[1].UserID != u3 || rendered[2].UserID != u1 {
		t.Fatalf("expected ascending user id order, got %v", rendered)
	}
	if !rendered[2].HasRole || rendered[2].RoleID != domain.RoleID("admin") {
		t.Fatal("expected u1's assigned role to be reflected")
	}
	if rendered[0].HasRole {
		t.Fatal("u2 was never assigned a role")
	}
}

func TestAuthoritativeTombstonePicksHigherPriority(t *testing.T) {
	r := New(nil)
	var lowAuthor, highAuthor opmodel.Hash32
	lowAuthor[0] = 1
	highAuthor[0] = 2

	low := crdt.Tombstone{Author: lowAuthor, HLC: ts(10, 0), OpID: opmodel.OpID{0x1}}
	high := crdt.Tombstone{Author: highAuthor, HLC: ts(5, 0), OpID: opmodel.OpID{0x2}}

	priority := func(user opmodel.Hash32, epoch uint64) int {
		if user == highAuthor {
			return 10
		}
		return 1
	}
	winner, ok := r.AuthoritativeTombstone([]crdt.Tombstone{low, high}, priority, nil)
	if !ok {
		t.Fatal("expected a winner")
	}
	if winner.Author != highAuthor {
		t.Fatalf("expected the higher-priority author to win despite an earlier HLC, got %v", winner.Author)
	}
}

func TestAuthoritativeTombstoneCausalPrecedenceOverridesPriority(t *testing.T) {
	r := New(nil)
	var lowAuthor, highAuthor opmodel.Hash32
	lowAuthor[0] = 1
	highAuthor[0] = 2

	low := crdt.Tombstone{Author: lowAuthor, HLC: ts(10, 0), OpID: opmodel.OpID{0x1}}
	high := crdt.Tombstone{Author: highAuthor, HLC: ts(5, 0), OpID: opmodel.OpID{0x2}}

	priority := func(user opmodel.Hash32, epoch uint64) int {
		if user == highAuthor {
			return 10
		}
		return 1
	}
	observedBy := func(a, b opmodel.OpID) bool {
		return a == low.OpID && b == high.OpID // low causally observes high
	}
	winner, ok := r.AuthoritativeTombstone([]crdt.Tombstone{low, high}, priority, observedBy)
	if !ok {
		t.Fatal("expected a winner")
	}
	if winner.Author != lowAuthor {
		t.Fatal("a tombstone that causally observes another must win outright regardless of priority")
	}
}
