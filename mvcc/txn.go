package mvcc

import "sync"

// stampable is a version object a Transaction produced: something that must
// be re-stamped with the commit timestamp when the transaction commits.
// CatalogEntry and UpdateInfo both implement it.
type stampable interface {
	stamp(ts Timestamp)
}

// undoable is an entry in a transaction's undo buffer: something that must
// be reversed when the transaction aborts.
type undoable interface {
	undo()
}

// catalogUndo reverses one CatalogSet splice. entry is the child of the
// version being rolled back, matching the contract of CatalogSet.Undo.
type catalogUndo struct {
	entry *CatalogEntry
}

func (u catalogUndo) undo() {
	u.entry.set.Undo(u.entry)
}

// segmentUndo reverses one Segment.Update splice or extension.
type segmentUndo struct {
	info *UpdateInfo
}

func (u segmentUndo) undo() {
	u.info.segment.rollbackUpdate(u.info)
}

// Transaction is the transaction context: identity, start time, an undo
// buffer, and an allocator for UpdateInfo records. It is
// mutated only by its owning goroutine except where guarded explicitly
// (PushCatalogEntry/CreateUpdateInfo may be called from code paths that
// share a transaction across goroutines of one logical worker).
type Transaction struct {
	id        Timestamp
	startTime Timestamp

	mutex    sync.Mutex
	undoLog  []undoable
	versions []stampable
}

// TransactionID returns the transaction's identity, a tagged value always
// >= TransactionIDStart until commit re-stamps the versions it produced.
func (txn *Transaction) TransactionID() Timestamp { return txn.id }

// StartTime returns the latest commit timestamp visible when the
// transaction began.
func (txn *Transaction) StartTime() Timestamp { return txn.startTime }

// PushCatalogEntry records old (the previous head of a catalog chain, now
// displaced) so it can be restored on abort.
func (txn *Transaction) PushCatalogEntry(old *CatalogEntry) {
	txn.mutex.Lock()
	defer txn.mutex.Unlock()
	txn.undoLog = append(txn.undoLog, catalogUndo{old})
}

// trackVersion records v (a version this transaction just produced) so
// commit can stamp it with the commit timestamp.
func (txn *Transaction) trackVersion(v stampable) {
	txn.mutex.Lock()
	defer txn.mutex.Unlock()
	txn.versions = append(txn.versions, v)
}

// pushSegmentUndo records info (a freshly spliced UpdateInfo) so the splice
// can be reversed on abort. Later extensions of the same node are not pushed
// again; undoing the splice removes the node together with them.
func (txn *Transaction) pushSegmentUndo(info *UpdateInfo) {
	txn.mutex.Lock()
	defer txn.mutex.Unlock()
	txn.undoLog = append(txn.undoLog, segmentUndo{info})
	txn.versions = append(txn.versions, info)
}

// CreateUpdateInfo allocates an UpdateInfo with room for vectorSize tuple
// offsets, stamped with this transaction's id until commit. It does not
// allocate the value payload (typeSize is unused); the caller sets values.
func (txn *Transaction) CreateUpdateInfo(typeSize, vectorSize int) *UpdateInfo {
	return &UpdateInfo{
		versionNumber: txn.id,
		tuples:        make([]int, 0, vectorSize),
	}
}

// commit stamps every version this transaction produced with ts and clears
// both buffers. Called by TransactionManager.Commit.
func (txn *Transaction) commit(ts Timestamp) {
	txn.mutex.Lock()
	defer txn.mutex.Unlock()
	for _, v := range txn.versions {
		v.stamp(ts)
	}
	txn.versions = nil
	txn.undoLog = nil
}

// rollback walks the undo buffer in reverse, undoing each entry. Called by
// TransactionManager.Rollback.
func (txn *Transaction) rollback() {
	txn.mutex.Lock()
	defer txn.mutex.Unlock()
	for i := len(txn.undoLog) - 1; i >= 0; i-- {
		txn.undoLog[i].undo()
	}
	txn.versions = nil
	txn.undoLog = nil
}

// TransactionManager assigns transaction identities and commit timestamps.
// Nothing else in this module provides begin/commit/abort lifecycle, and
// the core needs one to be runnable.
type TransactionManager struct {
	mutex      sync.Mutex
	nextID     Timestamp
	lastCommit Timestamp
}

// NewTransactionManager returns a manager with no committed history: the
// first transaction's start time is 0, and the first commit timestamp
// issued is 1.
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{
		nextID:     TransactionIDStart,
		lastCommit: 0,
	}
}

// Begin starts a new transaction whose start time is the latest commit
// timestamp visible at this moment.
func (m *TransactionManager) Begin() *Transaction {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	txn := &Transaction{
		id:        m.nextID,
		startTime: m.lastCommit,
	}
	m.nextID++
	return txn
}

// Commit assigns the next commit timestamp, stamps every version the
// transaction produced with it, and returns the timestamp assigned.
func (m *TransactionManager) Commit(txn *Transaction) Timestamp {
	m.mutex.Lock()
	m.lastCommit++
	ts := m.lastCommit
	m.mutex.Unlock()

	txn.commit(ts)
	return ts
}

// Rollback reverses every change the transaction made.
func (m *TransactionManager) Rollback(txn *Transaction) {
	txn.rollback()
}
