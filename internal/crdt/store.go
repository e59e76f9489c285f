package crdt

import (
	"sync"

	"github.com/spacewald/core/internal/opmodel"
)

// SpaceDocs bundles the per-space CRDT projections: members, roles, and
// the moderation and audit logs. Post sequences are additionally keyed
// per-thread since each thread is independently ordered.
type SpaceDocs struct {
	Members    *MemberSet
	Roles      *RoleMap
	Moderation *ModerationLog
	Audit      *AuditLog

	mu      sync.Mutex
	threads map[opmodel.ThreadID]*PostSequence
}

func newSpaceDocs() *SpaceDocs {
	return &SpaceDocs{
		Members:    NewMemberSet(),
		Roles:      NewRoleMap(),
		Moderation: NewModerationLog(),
		Audit:      NewAuditLog(),
		threads:    make(map[opmodel.ThreadID]*PostSequence),
	}
}

// Thread returns the post sequence for threadID, creating it on first use.
func (d *SpaceDocs) Thread(threadID opmodel.ThreadID) *PostSequence {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.threads[threadID]
	if !ok {
		t = NewPostSequence()
		d.threads[threadID] = t
	}
	return t
}

// Store is single-writer-per-document across every space this node holds
// state for (spec.md §5: "single-writer per document (the acceptance
// task for that op's group)").
type Store struct {
	mu     sync.RWMutex
	spaces map[opmodel.SpaceID]*SpaceDocs
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{spaces: make(map[opmodel.SpaceID]*SpaceDocs)}
}

// Space returns spaceID's document bundle, creating it on first use.
func (s *Store) Space(spaceID opmodel.SpaceID) *SpaceDocs {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.spaces[spaceID]
	if !ok {
		d = newSpaceDocs()
		s.spaces[spaceID] = d
	}
	return d
}
