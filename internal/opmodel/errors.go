package opmodel

import "errors"

// Error kinds from spec.md §7. Each is a sentinel wrapped with context via
// fmt.Errorf("...: %w", ...) at the call site, following the teacher's
// convention throughout internal/crypto, internal/mls, internal/storage.
var (
	// ErrSignatureInvalid is a permanent rejection: the op's signature does
	// not verify, or its op_id does not match its content hash.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrDependencyMissing is transient: one or more prev_ops are unknown
	// locally. Triggers a fetch-by-id and buffers the op.
	ErrDependencyMissing = errors.New("dependency missing")

	// ErrEpochAhead is transient: op.epoch exceeds the local MLS group's
	// current epoch. Triggers a Commit/Welcome fetch and buffers the op.
	ErrEpochAhead = errors.New("epoch ahead of local state")

	// ErrNotMember is a permanent rejection: the author was not a member of
	// the relevant group at op.epoch.
	ErrNotMember = errors.New("author not a member at epoch")

	// ErrInsufficientPermission is a permanent rejection: the author's role
	// does not permit op.Kind.
	ErrInsufficientPermission = errors.New("insufficient permission")

	// ErrAeadFailure means the ciphertext failed AEAD authentication; the
	// ciphertext is dropped and never retried.
	ErrAeadFailure = errors.New("aead authentication failed")

	// ErrDuplicateOp means the op_id was already applied; idempotently
	// ignored rather than reprocessed.
	ErrDuplicateOp = errors.New("duplicate op")

	// ErrConflict is surfaced from CRDT merge for unresolvable edits. Its
	// presence indicates a bug: the merge rules are meant to be total.
	ErrConflict = errors.New("unresolvable crdt conflict")

	// ErrStorageFailure is fatal to the current batch and is retried on the
	// next start.
	ErrStorageFailure = errors.New("storage failure")

	// ErrTransportUnavailable is non-fatal: the op is applied locally and
	// queued for later broadcast.
	ErrTransportUnavailable = errors.New("transport unavailable")
)
