package crdt

import (
	"sort"

	"github.com/spacewald/core/internal/hlc"
	"github.com/spacewald/core/internal/opmodel"
)

// postNode is one entry in a thread's RGA-style sequence: either an
// original CreatePost or an EditPost replacing an earlier node's visible
// content.
type postNode struct {
	postID        opmodel.PostID
	author        opmodel.Hash32
	hlc           hlc.Timestamp
	epoch         uint64
	contentRef    opmodel.Hash32
	parent        opmodel.PostID
	hasParent     bool
	editTarget    opmodel.PostID // set when this node is an EditPost
	isEdit        bool
}

// PostSequence is the per-thread RGA-style CRDT (spec.md §4.5). Concurrent
// inserts resolve by (HLC, author, op_id); edits are replace-ops
// referencing the target post_id, and the latest causally-reachable edit
// wins.
type PostSequence struct {
	nodes map[opmodel.PostID]postNode // original CreatePost nodes, keyed by their own id
	edits map[opmodel.PostID][]postNode // edits targeting a post, unsorted insertion order
}

// NewPostSequence returns an empty sequence.
func NewPostSequence() *PostSequence {
	return &PostSequence{
		nodes: make(map[opmodel.PostID]postNode),
		edits: make(map[opmodel.PostID][]postNode),
	}
}

// InsertCreate inserts a new post. Idempotent on postID.
func (s *PostSequence) InsertCreate(postID opmodel.PostID, author opmodel.Hash32, at hlc.Timestamp, epoch uint64, contentRef opmodel.Hash32, parent opmodel.PostID, hasParent bool) {
	if _, exists := s.nodes[postID]; exists {
		return
	}
	s.nodes[postID] = postNode{
		postID: postID, author: author, hlc: at, epoch: epoch,
		contentRef: contentRef, parent: parent, hasParent: hasParent,
	}
}

// ApplyEdit records an EditPost targeting target. Idempotent per edit op
// identity is the caller's responsibility (the Acceptance Pipeline
// dedups on op_id before dispatch); ApplyEdit simply appends and lets
// VisibleContent resolve the winner.
func (s *PostSequence) ApplyEdit(target opmodel.PostID, author opmodel.Hash32, at hlc.Timestamp, epoch uint64, contentRef opmodel.Hash32) {
	s.edits[target] = append(s.edits[target], postNode{
		postID: target, author: author, hlc: at, epoch: epoch,
		contentRef: contentRef, editTarget: target, isEdit: true,
	})
}

// VisibleContent returns the currently winning content ref for postID:
// the original content if no edits exist, else the latest edit by
// (HLC, author) among applied edits targeting it. When two candidates tie
// on both HLC and author, the one applied first is kept.
func (s *PostSequence) VisibleContent(postID opmodel.PostID) (opmodel.Hash32, bool) {
	entry, ok := s.VisibleEntry(postID)
	if !ok {
		return opmodel.Hash32{}, false
	}
	return entry.ContentRef, true
}

// VisibleEntry is the full winning node for a post: the content ref
// VisibleContent exposes, plus the author/HLC/epoch of whichever node
// (original CreatePost or an edit) currently wins -- spec.md §3's Post
// fields {author, hlc, epoch}, needed by rendering callers that display
// more than a post's content.
type VisibleEntry struct {
	ContentRef opmodel.Hash32
	Author     opmodel.Hash32
	HLC        hlc.Timestamp
	Epoch      uint64
}

// VisibleEntry returns the currently winning node for postID in full,
// resolved by the same (HLC, author) tiebreak VisibleContent uses.
func (s *PostSequence) VisibleEntry(postID opmodel.PostID) (VisibleEntry, bool) {
	orig, ok := s.nodes[postID]
	if !ok {
		return VisibleEntry{}, false
	}
	winner := orig
	for _, e := range s.edits[postID] {
		if e.hlc != winner.hlc {
			if hlcGreater(e.hlc, winner.hlc) {
				winner = e
			}
			continue
		}
		if bytesGreater(e.author[:], winner.author[:]) {
			winner = e
		}
	}
	return VisibleEntry{
		ContentRef: winner.contentRef,
		Author:     winner.author,
		HLC:        winner.hlc,
		Epoch:      winner.epoch,
	}, true
}

// Ordered returns every post id in the thread in RGA display order:
// (HLC, author, post_id) ascending. Edits do not change position; only
// CreatePost nodes are ordered.
func (s *PostSequence) Ordered() []opmodel.PostID {
	nodes := make([]postNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.hlc != b.hlc {
			return hlcGreater(b.hlc, a.hlc)
		}
		if a.author != b.author {
			return bytesGreater(b.author[:], a.author[:])
		}
		return bytesGreater(b.postID[:], a.postID[:])
	})
	out := make([]opmodel.PostID, len(nodes))
	for i, n := range nodes {
		out[i] = n.postID
	}
	return out
}

// Has reports whether postID's CreatePost has been applied.
func (s *PostSequence) Has(postID opmodel.PostID) bool {
	_, ok := s.nodes[postID]
	return ok
}

// AuthorOf returns the original author of postID's CreatePost, used by
// the Acceptance Pipeline to decide whether a DeletePost is self-
// moderation (no extra permission required) or moderation of another
// author's post (spec.md §4.4 step 5).
func (s *PostSequence) AuthorOf(postID opmodel.PostID) (opmodel.Hash32, bool) {
	n, ok := s.nodes[postID]
	if !ok {
		return opmodel.Hash32{}, false
	}
	return n.author, true
}
