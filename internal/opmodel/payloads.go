package opmodel

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Payload structs carry the kind-specific data of an Op's opaque
// payload field (spec.md §3: "Op := {... kind, payload:bytes ...}").
// spec.md leaves the payload encoding unspecified beyond "bytes"; each
// is canonical CBOR, matching the Op envelope's own encoding
// (internal/opmodel/encoding.go).

// CreateSpacePayload is CreateSpace's payload. KeyPackage is the
// creator's own MLS key package (JSON-encoded mls.KeyPackageData, same
// convention as AddMemberPayload.KeyPackage): it seeds the new group's
// sole initial member deterministically from the signed op itself,
// rather than from keys invented independently by whichever node
// happens to process the op.
type CreateSpacePayload struct {
	Name           string `cbor:"name"`
	Visibility     uint8  `cbor:"visibility"`
	MembershipMode uint8  `cbor:"membership_mode"`
	KeyPackage     []byte `cbor:"key_package"`
}

// CreateChannelPayload is CreateChannel's payload. KeyPackage is the
// creator's MLS key package for the channel's own group, present only
// when HasOwnMLSGroup is set.
type CreateChannelPayload struct {
	Name           string `cbor:"name"`
	HasOwnMLSGroup bool   `cbor:"has_own_mls_group"`
	KeyPackage     []byte `cbor:"key_package,omitempty"`
}

// CreateThreadPayload is CreateThread's payload.
type CreateThreadPayload struct {
	Title string `cbor:"title"`
}

// CreatePostPayload is CreatePost's payload. ContentHash is SHA256 of the
// plaintext (spec.md invariant 2); the plaintext itself lives in the
// external blob store keyed by ContentHash.
type CreatePostPayload struct {
	ContentHash Hash32 `cbor:"content_hash"`
	HasParent   bool   `cbor:"has_parent"`
	Parent      PostID `cbor:"parent"`
}

// EditPostPayload replaces a post's visible content. Delta optionally
// carries a compact character-level delta against the parent post
// instead of requiring the reader to fetch a full replacement blob
// (spec.md §9 design notes: diff/delta repurposing).
type EditPostPayload struct {
	Target      PostID `cbor:"target"`
	ContentHash Hash32 `cbor:"content_hash"`
	Delta       []byte `cbor:"delta,omitempty"`
}

// DeletePostPayload tombstones a target post.
type DeletePostPayload struct {
	Target PostID `cbor:"target"`
}

// AssignRolePayload assigns roleID to user.
type AssignRolePayload struct {
	User   Hash32 `cbor:"user"`
	RoleID string `cbor:"role_id"`
}

// RemoveRolePayload clears user's role assignment, reverting to the
// default Member role for permission evaluation.
type RemoveRolePayload struct {
	User Hash32 `cbor:"user"`
}

// AddMemberPayload admits user with an initial role and MLS key package
// (spec.md §4.3 commit_add; §4.4 step 7's paired Welcome).
type AddMemberPayload struct {
	User       Hash32 `cbor:"user"`
	RoleID     string `cbor:"role_id"`
	KeyPackage []byte `cbor:"key_package"`
}

// RemoveMemberPayload removes user voluntarily or administratively
// (without the ban connotation of BanMemberPayload).
type RemoveMemberPayload struct {
	User Hash32 `cbor:"user"`
}

// BanMemberPayload removes user and records the ban for audit purposes.
type BanMemberPayload struct {
	User   Hash32 `cbor:"user"`
	Reason string `cbor:"reason,omitempty"`
}

// CreateInvitePayload mints a signed invite (spec.md §3 Invite, §6 Invite
// code). ExpiresAtUnix is 0 when the invite never expires; MaxUses is 0
// when unlimited.
type CreateInvitePayload struct {
	Code        string `cbor:"code"`
	MaxUses     int    `cbor:"max_uses,omitempty"`
	ExpiresAtUnix int64 `cbor:"expires_at,omitempty"`
}

// UseInvitePayload redeems an invite. spec.md §9: the short code alone is
// never sufficient to locate the space, so the full SpaceID always
// travels alongside it; SpaceID here duplicates Op.SpaceID for the
// canonical-encoding self-containment of the payload, but acceptance
// must additionally validate it matches Op.SpaceID.
type UseInvitePayload struct {
	Code    string  `cbor:"code"`
	SpaceID SpaceID `cbor:"space_id"`
}

// EncodePayload renders v to canonical CBOR for embedding in Op.Payload.
func EncodePayload(v interface{}) ([]byte, error) {
	b, err := canonicalEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("opmodel: encode payload: %w", err)
	}
	return b, nil
}

// DecodePayload parses an Op's payload bytes into v (a pointer to one of
// the Payload structs above).
func DecodePayload(b []byte, v interface{}) error {
	if err := cbor.Unmarshal(b, v); err != nil {
		return fmt.Errorf("opmodel: decode payload: %w", err)
	}
	return nil
}
