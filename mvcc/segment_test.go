package mvcc

import (
	"testing"
	"time"
)

func newTestSegment() *Segment {
	base := NewVector(PhysicalInt64, 4)
	for i, val := range []int64{10, 20, 30, 40} {
		base.int64s[i] = val
	}
	return NewSegment(NewInMemoryColumnData(base), 1, nil)
}

func newValues(vals ...int64) *Vector {
	v := NewVector(PhysicalInt64, len(vals))
	for i, val := range vals {
		v.int64s[i] = val
	}
	return v
}

// mustSelect is a convenience wrapper over Segment.Select for tests that
// only care about the materialized vector, not the filter/candidate
// machinery.
func mustSelect(t *testing.T, seg *Segment, txn *Transaction, start, end int) *Vector {
	t.Helper()
	result, _, err := seg.Select(txn, &ColumnScanState{VectorIndex: 0}, start, end, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestSegmentUpdateVisibility(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()

	txn1 := mgr.Begin()
	if err := seg.Update(txn1, []int{1}, 0, newValues(99)); err != nil {
		t.Fatal(err)
	}

	got := mustSelect(t, seg, txn1, 0, 4)
	if got.int64s[1] != 99 {
		t.Fatalf("updater should see its own write, got %d", got.int64s[1])
	}

	txn2 := mgr.Begin()
	got2 := mustSelect(t, seg, txn2, 0, 4)
	if got2.int64s[1] != 20 {
		t.Fatalf("concurrent snapshot should not see uncommitted write, got %d", got2.int64s[1])
	}

	mgr.Commit(txn1)

	txn3 := mgr.Begin()
	got3 := mustSelect(t, seg, txn3, 0, 4)
	if got3.int64s[1] != 99 {
		t.Fatalf("transaction started after commit should see update, got %d", got3.int64s[1])
	}
	if got2.int64s[1] != 20 {
		t.Fatal("already-fetched older snapshot result should not retroactively change")
	}
}

func TestSegmentUpdateWriteWriteConflict(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()

	txn1 := mgr.Begin()
	if err := seg.Update(txn1, []int{1}, 0, newValues(99)); err != nil {
		t.Fatal(err)
	}

	txn2 := mgr.Begin()
	err := seg.Update(txn2, []int{1}, 0, newValues(7))
	if err != ErrUpdateConflict {
		t.Fatalf("expected ErrUpdateConflict for a row held by a concurrent uncommitted writer, got %v", err)
	}
}

func TestSegmentUpdateConflictAfterCommit(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()

	txn1 := mgr.Begin()
	txn2 := mgr.Begin()

	if err := seg.Update(txn1, []int{1}, 0, newValues(99)); err != nil {
		t.Fatal(err)
	}
	mgr.Commit(txn1)

	err := seg.Update(txn2, []int{1}, 0, newValues(7))
	if err != ErrUpdateConflict {
		t.Fatalf("expected ErrUpdateConflict for a row committed after txn2's snapshot began, got %v", err)
	}
}

func TestSegmentUpdateExtendInPlace(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()

	txn1 := mgr.Begin()
	if err := seg.Update(txn1, []int{1}, 0, newValues(99)); err != nil {
		t.Fatal(err)
	}
	if err := seg.Update(txn1, []int{2}, 0, newValues(100)); err != nil {
		t.Fatal(err)
	}

	if seg.versions[0].next != nil {
		t.Fatal("expected second update from the same transaction to extend the existing node, not stack a new one")
	}

	got := mustSelect(t, seg, txn1, 0, 4)
	if got.int64s[1] != 99 || got.int64s[2] != 100 {
		t.Fatalf("expected both updates visible, got %v", got.int64s)
	}
}

func TestSegmentUpdateRollback(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()

	txn1 := mgr.Begin()
	if err := seg.Update(txn1, []int{1}, 0, newValues(99)); err != nil {
		t.Fatal(err)
	}
	mgr.Rollback(txn1)

	if seg.versions[0] != nil {
		t.Fatal("expected rollback to remove the update chain node entirely")
	}

	txn2 := mgr.Begin()
	got := mustSelect(t, seg, txn2, 0, 4)
	if got.int64s[1] != 20 {
		t.Fatalf("expected original value after rollback, got %d", got.int64s[1])
	}
}

func TestSegmentIndexScanRejectsOutstandingUpdates(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()

	state := &ColumnScanState{}
	got, err := seg.IndexScan(state, 0, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if got.int64s[1] != 20 {
		t.Fatalf("IndexScan reads base data only; expected unmodified 20, got %d", got.int64s[1])
	}
	state.Release()

	txn1 := mgr.Begin()
	seg.Update(txn1, []int{1}, 0, newValues(99))

	state = &ColumnScanState{}
	_, err = seg.IndexScan(state, 0, 0, 4)
	if err != ErrOutstandingUpdates {
		t.Fatalf("expected ErrOutstandingUpdates while an update chain exists, got %v", err)
	}
	state.Release()

	mgr.Commit(txn1)

	state = &ColumnScanState{}
	_, err = seg.IndexScan(state, 0, 0, 4)
	if err != ErrOutstandingUpdates {
		t.Fatalf("expected ErrOutstandingUpdates to persist after commit (the chain node is not removed), got %v", err)
	}
	state.Release()
}

func TestIndexScanHoldsLockUntilRelease(t *testing.T) {
	seg := newTestSegment()

	state := &ColumnScanState{}
	if _, err := seg.IndexScan(state, 0, 0, 4); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		txn := NewTransactionManager().Begin()
		done <- seg.Update(txn, []int{0}, 0, newValues(1))
	}()

	select {
	case <-done:
		t.Fatal("Update should block while IndexScan's shared lock is still parked in state")
	case <-time.After(50 * time.Millisecond):
	}

	state.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Update should proceed once IndexScan's lock is released")
	}
}

func TestSegmentUpdateDisjointRowsSucceed(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()

	txn1 := mgr.Begin()
	if err := seg.Update(txn1, []int{1, 3}, 0, newValues(99, 97)); err != nil {
		t.Fatal(err)
	}
	mgr.Commit(txn1)

	txn2 := mgr.Begin()
	if err := seg.Update(txn2, []int{0, 2}, 0, newValues(11, 33)); err != nil {
		t.Fatalf("disjoint update from a transaction started after txn1's write should succeed, got %v", err)
	}

	got := mustSelect(t, seg, txn2, 0, 4)
	if got.int64s[0] != 11 || got.int64s[1] != 99 || got.int64s[2] != 33 || got.int64s[3] != 97 {
		t.Fatalf("expected both writers' rows visible, got %v", got.int64s)
	}

	if seg.versions[0] == nil || seg.versions[0].next == nil {
		t.Fatal("expected two chain nodes after two disjoint updates from different transactions")
	}
}

func TestSegmentUpdateRejectsNonAscendingIDs(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()
	txn := mgr.Begin()

	if err := seg.Update(txn, []int{3, 1}, 0, newValues(99, 97)); err != ErrIDsNotAscending {
		t.Fatalf("expected ErrIDsNotAscending for out-of-order ids, got %v", err)
	}
	if err := seg.Update(txn, []int{1, 1}, 0, newValues(99, 97)); err != ErrIDsNotAscending {
		t.Fatalf("expected ErrIDsNotAscending for a repeated id, got %v", err)
	}
}

func TestSegmentUpdateRejectsIDsSpanningVectors(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()
	txn := mgr.Begin()

	ids := []int{StandardVectorSize - 1, StandardVectorSize}
	if err := seg.Update(txn, ids, 0, newValues(1, 2)); err != ErrIDsSpanVectors {
		t.Fatalf("expected ErrIDsSpanVectors for ids straddling a vector boundary, got %v", err)
	}
}

func TestSegmentUpdateDerivesVectorIndexFromIDsAndOffset(t *testing.T) {
	mgr := NewTransactionManager()
	base := NewVector(PhysicalInt64, 4)
	seg := NewSegment(NewInMemoryColumnData(base), 2, nil)
	txn := mgr.Begin()

	// Global ids 2048 and 2049, with offset 0, fall in vector 1; Update must
	// derive that itself and land the update in versions[1], not versions[0].
	if err := seg.Update(txn, []int{StandardVectorSize, StandardVectorSize + 1}, 0, newValues(1, 2)); err != nil {
		t.Fatal(err)
	}
	if seg.versions[0] != nil {
		t.Fatal("expected vector 0 to be untouched")
	}
	if seg.versions[1] == nil || seg.versions[1].tuples[0] != 0 || seg.versions[1].tuples[1] != 1 {
		t.Fatalf("expected vector 1's node with tuples relative to its own vector_offset, got %+v", seg.versions[1])
	}
}

func TestSegmentUpdateExtendsOwnNodeBuriedInChain(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()

	txn1 := mgr.Begin()
	if err := seg.Update(txn1, []int{1}, 0, newValues(99)); err != nil {
		t.Fatal(err)
	}

	// txn2 starts after txn1 but updates a disjoint row, so it succeeds and
	// becomes the new head: chain is now H2(txn2) -> H1(txn1).
	txn2 := mgr.Begin()
	if err := seg.Update(txn2, []int{2}, 0, newValues(50)); err != nil {
		t.Fatal(err)
	}
	if seg.versions[0].versionNumber != txn2.id {
		t.Fatal("expected txn2's node to be the head after its disjoint update")
	}

	// txn1 updates again. Its own node is no longer at the head, so it must
	// be found and extended wherever it sits in the chain rather than a new
	// node being stacked on top of it.
	if err := seg.Update(txn1, []int{3}, 0, newValues(97)); err != nil {
		t.Fatal(err)
	}

	head := seg.versions[0]
	if head.versionNumber != txn2.id {
		t.Fatal("txn1's update should not have displaced txn2's head node")
	}
	if head.next == nil || head.next.versionNumber != txn1.id {
		t.Fatal("expected txn1's original node still directly behind txn2's head")
	}
	if head.next.next != nil {
		t.Fatalf("expected exactly two chain nodes, found a third: txn1's second update must extend its existing node, not stack a new one with a duplicate version number")
	}

	got := mustSelect(t, seg, txn1, 0, 4)
	if got.int64s[1] != 99 || got.int64s[2] != 30 || got.int64s[3] != 97 {
		t.Fatalf("expected txn1's two writes visible and txn2's uncommitted write hidden from txn1, got %v", got.int64s)
	}
}

func TestSegmentSelectFastPathAppliesFilter(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()
	txn := mgr.Begin()

	filters := []Filter{{Op: OpGreaterEqual, Constant: newValues(30)}}
	result, sel, err := seg.Select(txn, &ColumnScanState{VectorIndex: 0}, 0, 4, filters, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sel) != 2 || sel[0] != 2 || sel[1] != 3 {
		t.Fatalf("fast path (no update chain) filter: got sel %v, want [2 3]", sel)
	}
	if result.int64s[2] != 30 || result.int64s[3] != 40 {
		t.Fatalf("fast path should return unmodified base data, got %v", result.int64s)
	}
}

func TestSegmentSelectSlowPathFoldsChainThenFilters(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()

	txn1 := mgr.Begin()
	if err := seg.Update(txn1, []int{1}, 0, newValues(99)); err != nil {
		t.Fatal(err)
	}

	filters := []Filter{{Op: OpGreaterEqual, Constant: newValues(30)}}
	result, sel, err := seg.Select(txn1, &ColumnScanState{VectorIndex: 0}, 0, 4, filters, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Base rows are [10 20 30 40]; the chain overlays row 1 with 99, so rows
	// >= 30 are now {1, 2, 3}.
	if len(sel) != 3 || sel[0] != 1 || sel[1] != 2 || sel[2] != 3 {
		t.Fatalf("slow path (update chain present) filter: got sel %v, want [1 2 3]", sel)
	}
	if result.int64s[1] != 99 {
		t.Fatalf("expected the chain overlay folded into result before filtering, got %v", result.int64s)
	}
}

func TestSegmentSelectChainsMultipleFilters(t *testing.T) {
	mgr := NewTransactionManager()
	seg := newTestSegment()
	txn := mgr.Begin()

	filters := []Filter{
		{Op: OpGreaterEqual, Constant: newValues(20)},
		{Op: OpLessEqual, Constant: newValues(30)},
	}
	_, sel, err := seg.Select(txn, &ColumnScanState{VectorIndex: 0}, 0, 4, filters, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sel) != 2 || sel[0] != 1 || sel[1] != 2 {
		t.Fatalf("expected the second filter to refine the first's survivors, got %v, want [1 2]", sel)
	}
}

func TestSegmentUpdateNotMutableUntilToTemporary(t *testing.T) {
	mgr := NewTransactionManager()
	base := NewVector(PhysicalInt64, 4)
	for i, val := range []int64{10, 20, 30, 40} {
		base.int64s[i] = val
	}
	blk, err := EncodeBlock(base)
	if err != nil {
		t.Fatal(err)
	}

	bm := NewMemoryBufferManager()
	// Seed block id 0 (a persisted block id, below MaximumBlock) directly;
	// Allocate always hands back a mutable id, so the persisted block a
	// real BufferManager would have loaded from disk is emulated by writing
	// straight into whatever Pin first materializes for that id.
	persistedID := BlockID(0)
	pinned, err := bm.Pin(persistedID)
	if err != nil {
		t.Fatal(err)
	}
	copy(pinned.Bytes(), blk)
	pinned.Unpin()

	seg := NewPersistedSegment(persistedID, bm, PhysicalInt64, 4, 1, nil)

	txn1 := mgr.Begin()
	if err := seg.Update(txn1, []int{1}, 0, newValues(99)); err != ErrSegmentNotMutable {
		t.Fatalf("expected ErrSegmentNotMutable before ToTemporary, got %v", err)
	}

	if err := seg.ToTemporary(); err != nil {
		t.Fatal(err)
	}
	if seg.blockID < MaximumBlock {
		t.Fatalf("expected blockID >= MaximumBlock after ToTemporary, got %d", seg.blockID)
	}

	if err := seg.ToTemporary(); err != nil {
		t.Fatalf("expected ToTemporary to be idempotent once already mutable, got %v", err)
	}

	if err := seg.Update(txn1, []int{1}, 0, newValues(99)); err != nil {
		t.Fatalf("expected Update to succeed once the segment is mutable, got %v", err)
	}

	got := mustSelect(t, seg, txn1, 0, 4)
	if got.int64s[0] != 10 || got.int64s[1] != 99 || got.int64s[2] != 30 || got.int64s[3] != 40 {
		t.Fatalf("expected base values decoded from the promoted block with the update overlaid, got %v", got.int64s)
	}
}
