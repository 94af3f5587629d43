package mvcc

import "errors"

// Conflicts and type errors are raised synchronously to the caller and
// abort the current statement; this package never rolls back the
// transaction itself and never retries internally.
var (
	// ErrWriteWriteConflict: a concurrent, still-uncommitted writer already
	// holds the head of this catalog chain.
	ErrWriteWriteConflict = errors.New("mvcc: catalog write-write conflict")

	// ErrUpdateConflict: the tuple ids being updated overlap with a version
	// from a concurrent or post-snapshot writer on the same vector.
	ErrUpdateConflict = errors.New("mvcc: update conflict")

	// ErrOutstandingUpdates: an IndexScan was attempted on a vector that
	// still has an update chain; indexes are only built over quiescent data.
	ErrOutstandingUpdates = errors.New("mvcc: outstanding updates on vector")

	// ErrInvalidType: filterSelection was asked to operate on a physical
	// type it doesn't support.
	ErrInvalidType = errors.New("mvcc: invalid physical type for filter")

	// ErrNotImplemented: a comparison operator outside {=, <, >, <=, >=}, or
	// an operation whose behavior is reserved but unimplemented.
	ErrNotImplemented = errors.New("mvcc: not implemented")

	// ErrSegmentNotMutable: Update was called on a segment whose block id is
	// still below MaximumBlock; the caller must call ToTemporary first.
	ErrSegmentNotMutable = errors.New("mvcc: segment is not mutable, call ToTemporary first")

	// ErrIDsNotAscending: Update was called with ids not in strictly
	// ascending order.
	ErrIDsNotAscending = errors.New("mvcc: update ids must be strictly ascending")

	// ErrIDsSpanVectors: Update was called with ids that don't all fall
	// within the single vector implied by ids[0] and offset.
	ErrIDsSpanVectors = errors.New("mvcc: update ids span more than one vector")
)
