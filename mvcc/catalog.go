package mvcc

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// CatalogEntry is one node in a singly-linked (from the head) version chain
// for a single logical name. child is owned by this node; parent is a
// non-owning back-reference used only by Undo.
type CatalogEntry struct {
	Name      string
	Timestamp Timestamp
	Deleted   bool
	Value     any

	child  *CatalogEntry
	parent *CatalogEntry
	set    *CatalogSet
}

func (e *CatalogEntry) stamp(ts Timestamp) {
	e.Timestamp = ts
}

// visible reports whether this node is the version txn should see: its own
// uncommitted write, or something committed at or before txn's start time
// (the latest commit timestamp when txn began).
func (e *CatalogEntry) visible(txn *Transaction) bool {
	return e.Timestamp == txn.id || e.Timestamp <= txn.startTime
}

// CatalogSet is a snapshot-isolated name -> version-chain-head map, guarded
// by a single mutex covering both map and chain mutations. Entries are
// never physically removed; deletion is a new version with Deleted = true.
type CatalogSet struct {
	mutex sync.Mutex
	data  map[string]*CatalogEntry
	log   *log.Logger
}

// NewCatalogSet returns an empty catalog set. logger may be nil, in which
// case logrus's standard logger is used.
func NewCatalogSet(logger *log.Logger) *CatalogSet {
	return &CatalogSet{
		data: map[string]*CatalogEntry{},
		log:  logger,
	}
}

func (cs *CatalogSet) logf() *log.Entry {
	if cs.log != nil {
		return cs.log.WithField("component", "catalog")
	}
	return log.WithField("component", "catalog")
}

// CreateEntry links value as the new head of name's version chain, stamped
// with txn's id. Returns false (not an error) if a committed, non-deleted
// version already exists. Returns ErrWriteWriteConflict if the current head
// is still uncommitted.
func (cs *CatalogSet) CreateEntry(txn *Transaction, name string, value *CatalogEntry) (bool, error) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	head, ok := cs.data[name]
	if !ok {
		dummy := &CatalogEntry{Name: name, Timestamp: 0, Deleted: true, set: cs}
		cs.data[name] = dummy
	} else {
		if head.Timestamp >= TransactionIDStart {
			cs.logf().WithField("name", name).Debug("write-write conflict on create")
			return false, ErrWriteWriteConflict
		}
		if !head.Deleted {
			return false, nil
		}
	}

	cs.spliceHead(txn, name, value)
	return true, nil
}

// DropEntry splices a new deleted=true node as head, using the same
// conflict-detection protocol as CreateEntry. Returns false (not an error)
// if the name has never been created, or if the currently visible version
// is already deleted.
func (cs *CatalogSet) DropEntry(txn *Transaction, name string) (bool, error) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	head, ok := cs.data[name]
	if !ok {
		return false, nil
	}
	if head.Timestamp >= TransactionIDStart {
		cs.logf().WithField("name", name).Debug("write-write conflict on drop")
		return false, ErrWriteWriteConflict
	}

	visible := visibleNode(head, txn)
	if visible.Deleted {
		return false, nil
	}

	dummy := &CatalogEntry{Name: name, Deleted: true}
	cs.spliceHead(txn, name, dummy)
	return true, nil
}

// spliceHead links value as the new head of name's chain (which must
// already exist in cs.data), pushes the displaced head into txn's undo
// buffer, and registers value for commit-time stamping. Caller must hold
// cs.mutex.
func (cs *CatalogSet) spliceHead(txn *Transaction, name string, value *CatalogEntry) {
	value.Timestamp = txn.id
	value.child = cs.data[name]
	value.child.parent = value
	value.set = cs

	txn.PushCatalogEntry(value.child)
	txn.trackVersion(value)
	cs.data[name] = value
}

// EntryExists reports whether name currently has a visible, non-deleted
// version.
func (cs *CatalogSet) EntryExists(txn *Transaction, name string) bool {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	head, ok := cs.data[name]
	if !ok {
		return false
	}
	return !visibleNode(head, txn).Deleted
}

// GetEntry returns the version of name visible to txn, or nil if absent or
// deleted.
func (cs *CatalogSet) GetEntry(txn *Transaction, name string) *CatalogEntry {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	head, ok := cs.data[name]
	if !ok {
		return nil
	}
	current := visibleNode(head, txn)
	if current.Deleted {
		return nil
	}
	return current
}

// visibleNode walks the chain from head choosing the first node visible to
// txn; the tail dummy (child == nil) is always visible.
func visibleNode(head *CatalogEntry, txn *Transaction) *CatalogEntry {
	current := head
	for current.child != nil {
		if current.visible(txn) {
			break
		}
		current = current.child
	}
	return current
}

// Undo reverses one splice. entry must be the child of the version being
// rolled back (the value PushCatalogEntry was handed). It restores the
// chain by promoting entry to the position its parent currently occupies.
func (cs *CatalogSet) Undo(entry *CatalogEntry) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	parent := entry.parent
	grandparent := parent.parent
	if grandparent != nil {
		grandparent.child = entry
		entry.parent = grandparent
	} else {
		cs.data[entry.Name] = entry
		entry.parent = nil
	}

	cs.logf().WithFields(log.Fields{"name": entry.Name}).Debug("undo catalog splice")
}
