// Package mvcc implements the multi-version concurrency control core that
// links the catalog and the columnar storage engine: a versioned catalog
// set providing snapshot-isolated name lookups, and columnar segments
// carrying per-vector chains of uncommitted updates.
//
// Durability, replication, SQL parsing/binding/planning, and buffer-pool
// internals beyond the BufferManager contract are out of scope for this
// package.
package mvcc

// Timestamp is a tagged value: either a commit timestamp (< TransactionIDStart)
// or a transaction id (>= TransactionIDStart) while the transaction that
// produced it is still uncommitted. The tag is the threshold itself, not a
// separate bit, so visibility comparisons stay branchless.
type Timestamp uint64

// RowID identifies a row within a table, independent of any particular
// segment's offset.
type RowID int64

// BlockID identifies a block owned by the buffer manager. Values at or
// above MaximumBlock denote mutable, in-memory-only blocks; values below it
// denote read-only persisted blocks.
type BlockID uint64

const (
	// TransactionIDStart is the smallest transaction id the system will ever
	// assign, and therefore also the threshold above which a Timestamp is an
	// uncommitted transaction id rather than a commit timestamp. It must
	// exceed any commit timestamp the system will ever issue.
	TransactionIDStart Timestamp = 1 << 62

	// MaximumBlock is the boundary between persisted block ids (below) and
	// mutable, in-memory block ids (at or above).
	MaximumBlock BlockID = 1 << 31

	// StandardVectorSize is the fixed number of rows in one vector.
	StandardVectorSize = 2048

	// BlockSize is the size, in bytes, of one persisted block's column data.
	BlockSize = 16 * 1024

	// BlockAllocSize is the size of a freshly allocated mutable block. It
	// exceeds BlockSize to leave room for trailing metadata such as a null
	// mask.
	BlockAllocSize = BlockSize + 1024
)
