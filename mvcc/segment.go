package mvcc

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Segment is one column's storage for a run of rows: base data (ColumnData)
// plus, per StandardVectorSize-row vector, an optional update chain
// recording in-snapshot overwrites. blockID tags the base data as either a
// read-only persisted block (< MaximumBlock) or a mutable one (>=
// MaximumBlock); Update requires the latter, reached via ToTemporary.
type Segment struct {
	blockID   BlockID
	bufferMgr BufferManager

	base ColumnData
	typ  PhysicalType

	maxVectorCount int
	mutex          sync.RWMutex
	versions       []*UpdateInfo

	log *log.Logger
}

// NewSegment returns a Segment over base, already mutable (blockID ==
// MaximumBlock), with room for vectorCount vectors of update-chain heads.
// Use NewPersistedSegment to model a segment that must be promoted via
// ToTemporary before Update will accept it.
func NewSegment(base ColumnData, vectorCount int, logger *log.Logger) *Segment {
	return &Segment{
		blockID:        MaximumBlock,
		base:           base,
		typ:            base.PhysicalType(),
		maxVectorCount: vectorCount,
		versions:       make([]*UpdateInfo, vectorCount),
		log:            logger,
	}
}

// NewPersistedSegment returns a Segment whose base data lives in blockID, a
// read-only block pinned through mgr on demand. Update fails with
// ErrSegmentNotMutable until ToTemporary promotes blockID to a mutable one.
func NewPersistedSegment(blockID BlockID, mgr BufferManager, typ PhysicalType, length, vectorCount int, logger *log.Logger) *Segment {
	s := &Segment{
		blockID:        blockID,
		bufferMgr:      mgr,
		typ:            typ,
		maxVectorCount: vectorCount,
		versions:       make([]*UpdateInfo, vectorCount),
		log:            logger,
	}
	s.base = &blockColumnData{segment: s, length: length}
	return s
}

func (s *Segment) logf() *log.Entry {
	if s.log != nil {
		return s.log.WithField("component", "segment")
	}
	return log.WithField("component", "segment")
}

// ColumnScanState tracks a cursor's progress through a Select/IndexScan
// call sequence over one segment; callers create a zero-valued one per
// scan. IndexScan parks its shared lock here on the vectorIndex == 0 call
// and holds it across every subsequent vector visited by the same scan;
// callers must call Release when the scan ends.
type ColumnScanState struct {
	VectorIndex int

	locks []func()
}

// Release unlocks every lock IndexScan parked in this state and clears it
// for reuse. A no-op if nothing was ever parked.
func (st *ColumnScanState) Release() {
	for _, unlock := range st.locks {
		unlock()
	}
	st.locks = nil
}

// Update applies newValues at row ids (global row ids, strictly ascending)
// within the table region that starts at offset, under txn's snapshot. All
// of ids must fall within the single vector implied by ids[0] and offset;
// Update derives vector_index and vector_offset from them rather than
// taking either as a parameter. It returns ErrIDsNotAscending if ids isn't
// strictly ascending, ErrIDsSpanVectors if any id falls outside that single
// vector, and ErrUpdateConflict if any targeted row was committed after
// txn's snapshot began or is held by a different, still-uncommitted
// transaction.
func (s *Segment) Update(txn *Transaction, ids []int, offset int, newValues *Vector) error {
	if len(ids) == 0 {
		return nil
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			return ErrIDsNotAscending
		}
	}

	vectorIndex := (ids[0] - offset) / StandardVectorSize
	vectorOffset := offset + vectorIndex*StandardVectorSize
	for _, id := range ids {
		if id < vectorOffset || id >= vectorOffset+StandardVectorSize {
			return ErrIDsSpanVectors
		}
	}
	tuples := make([]int, len(ids))
	for i, id := range ids {
		tuples[i] = id - vectorOffset
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.blockID < MaximumBlock {
		return ErrSegmentNotMutable
	}

	head := s.versions[vectorIndex]
	sameTxn, err := checkForConflicts(head, tuples, txn)
	if err != nil {
		return err
	}

	if sameTxn != nil {
		sameTxn.merge(tuples, newValues)
		return nil
	}

	info := txn.CreateUpdateInfo(s.typ.TypeSize(), len(tuples))
	info.segment = s
	info.vectorIndex = vectorIndex
	info.tuples = append(info.tuples, tuples...)
	info.values = NewVector(s.typ, len(tuples))
	for i := range tuples {
		info.values.copyInto(i, newValues, i)
	}
	info.next = head
	if head != nil {
		head.prev = info
	}
	s.versions[vectorIndex] = info

	txn.pushSegmentUndo(info)
	s.logf().WithFields(log.Fields{"vector": vectorIndex, "rows": len(tuples)}).Debug("segment update")
	return nil
}

// checkForConflicts walks the update chain for one vector, iteratively
// rather than recursively so chain depth cannot overflow the stack,
// looking for an update conflict against tuples. It also
// returns the caller's own existing node in the chain, if any — found
// anywhere, not just at the head — so Update can extend it regardless of
// where a third party's update landed in the chain afterward.
func checkForConflicts(head *UpdateInfo, tuples []int, txn *Transaction) (*UpdateInfo, error) {
	var sameTxn *UpdateInfo
	for node := head; node != nil; node = node.next {
		if node.versionNumber == txn.id {
			sameTxn = node
			continue
		}
		// Uncommitted versions of other transactions are >= TransactionIDStart
		// and therefore always newer than txn's snapshot.
		if node.versionNumber > txn.startTime {
			if overlaps(node.tuples, tuples) {
				return nil, ErrUpdateConflict
			}
		}
	}
	return sameTxn, nil
}

// overlaps reports whether two ascending, sorted tuple-id slices share any
// element, via a merge-scan rather than an O(n*m) nested loop.
func overlaps(a, b []int) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			return true
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return false
}

// rollbackUpdate reverses one Update call: it removes info entirely from
// its chain.
func (s *Segment) rollbackUpdate(info *UpdateInfo) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if info.prev != nil {
		info.prev.next = info.next
	} else {
		s.versions[info.vectorIndex] = info.next
	}
	if info.next != nil {
		info.next.prev = info.prev
	}
	s.logf().WithField("vector", info.vectorIndex).Debug("rollback segment update")
}

// Select fetches rows [start, end) of state.VectorIndex's vector as visible
// to txn into a freshly materialized Vector, then refines candidates (the
// incoming selection; nil means every fetched row is a candidate) through
// every filter in order. The returned slice's length is the approved count.
//
// If the vector has an outstanding update chain this is the slow path:
// selectWithChain folds every version visible to txn into the base data
// before filtering runs. Otherwise it's the fast path: FetchBaseData
// already pins whatever block backs s.base and fills in the null mask, so
// filtering runs directly against that data with no chain to reconstruct.
func (s *Segment) Select(txn *Transaction, state *ColumnScanState, start, end int, filters []Filter, candidates []int) (*Vector, []int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	vectorIndex := state.VectorIndex
	base := vectorIndex * s.maxVectorSpan()

	var result *Vector
	if head := s.versions[vectorIndex]; head != nil {
		result = s.selectWithChain(txn, head, base, start, end)
	} else {
		result = NewVector(s.typ, end-start)
		s.base.FetchBaseData(result, 0, base+start, base+end)
	}

	for _, f := range filters {
		refined, err := f.Select(result, candidates)
		if err != nil {
			return nil, nil, err
		}
		candidates = refined
	}
	return result, candidates, nil
}

// selectWithChain materializes rows [start, end) of a vector (whose chain
// head is head) as visible to txn: base data overlaid with every version
// visible under the same rule as CatalogEntry.visible, newest applicable
// write winning. Caller must hold at least the segment's shared lock.
func (s *Segment) selectWithChain(txn *Transaction, head *UpdateInfo, base, start, end int) *Vector {
	result := NewVector(s.typ, end-start)
	s.base.FetchBaseData(result, 0, base+start, base+end)

	applied := make(map[int]bool)
	for node := head; node != nil; node = node.next {
		visible := node.versionNumber == txn.id || node.versionNumber <= txn.startTime
		if !visible {
			continue
		}
		for i, id := range node.tuples {
			if id < start || id >= end || applied[id] {
				continue
			}
			result.copyInto(id-start, node.values, i)
			applied[id] = true
		}
	}
	return result
}

// maxVectorSpan returns the number of base rows one vector covers.
func (s *Segment) maxVectorSpan() int {
	return StandardVectorSize
}

// IndexScan fetches base data directly with no update-chain overlay, for
// use by index structures built over quiescent data. On vectorIndex == 0 it
// acquires the segment's shared lock and parks it in state, held across
// every later vectorIndex the caller visits in this same scan; the caller
// must call state.Release once the index build finishes, to prevent a
// concurrent Update from landing on an untouched vector mid-build. It
// returns ErrOutstandingUpdates if vectorIndex still has an update chain.
func (s *Segment) IndexScan(state *ColumnScanState, vectorIndex, start, end int) (*Vector, error) {
	if vectorIndex == 0 {
		s.mutex.RLock()
		state.locks = append(state.locks, s.mutex.RUnlock)
	}

	if s.versions[vectorIndex] != nil {
		return nil, ErrOutstandingUpdates
	}
	result := NewVector(s.typ, end-start)
	base := vectorIndex * s.maxVectorSpan()
	s.base.FetchBaseData(result, 0, base+start, base+end)
	return result, nil
}

// ToTemporary promotes a persisted block to a mutable one, exactly once: it
// pins the source block, allocates a BlockAllocSize buffer, copies BlockSize
// bytes, and adopts the new block id. A second, concurrent call after the
// first has won is a no-op (idempotent): both callers observe blockID >=
// MaximumBlock on return.
func (s *Segment) ToTemporary() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.blockID >= MaximumBlock {
		return nil
	}
	if s.bufferMgr == nil {
		return fmt.Errorf("mvcc: segment has no buffer manager to promote through")
	}

	src, err := s.bufferMgr.Pin(s.blockID)
	if err != nil {
		return err
	}
	defer src.Unpin()

	dst, err := s.bufferMgr.Allocate(BlockAllocSize)
	if err != nil {
		return err
	}
	copy(dst.Bytes(), src.Bytes()[:BlockSize])
	dst.Unpin()

	s.logf().WithFields(log.Fields{"oldBlockID": s.blockID, "newBlockID": dst.BlockID()}).
		Debug("promoted segment to mutable block")
	s.blockID = dst.BlockID()
	return nil
}

// blockColumnData is the BufferManager-backed ColumnData for a
// NewPersistedSegment: it decodes values on demand from whatever block its
// owning segment currently points at, so promoting the segment via
// ToTemporary is visible to subsequent fetches with no extra bookkeeping.
type blockColumnData struct {
	segment *Segment
	length  int
}

func (c *blockColumnData) PhysicalType() PhysicalType { return c.segment.typ }
func (c *blockColumnData) Length() int                { return c.length }

func (c *blockColumnData) FetchBaseData(result *Vector, resultOffset, start, end int) {
	handle, err := c.segment.bufferMgr.Pin(c.segment.blockID)
	if err != nil {
		panic(fmt.Errorf("mvcc: pinning block %d: %w", c.segment.blockID, err))
	}
	defer handle.Unpin()

	decoded, err := DecodeBlock(handle.Bytes(), c.segment.typ, c.length)
	if err != nil {
		panic(fmt.Errorf("mvcc: decoding block %d: %w", c.segment.blockID, err))
	}
	for i := start; i < end; i++ {
		result.copyInto(resultOffset+(i-start), decoded, i)
	}
}
