package mvcc

import (
	"sync"
	"sync/atomic"
)

// BufferHandle is a pinned, addressable view of one block. The caller must
// call Unpin exactly once when done; the view is not valid afterward.
type BufferHandle interface {
	BlockID() BlockID
	Bytes() []byte
	Unpin()
}

// BufferManager is the external collaborator this package depends on: Pin
// addresses an existing block, Allocate creates a new, mutable one.
type BufferManager interface {
	Pin(id BlockID) (BufferHandle, error)
	Allocate(size int) (BufferHandle, error)
}

// pinnedPage is one cached block, reference-counted the way
// engine.Page/engine.PageCache pin persisted pages: a map of pages guarded
// by a mutex, each page carrying a pin count. Pin, Allocate and Unpin do not
// take the per-page mutex.
type pinnedPage struct {
	id    BlockID
	mgr   *memoryBufferManager
	mutex sync.RWMutex
	pin   int32
	bytes []byte
}

func (pg *pinnedPage) BlockID() BlockID { return pg.id }
func (pg *pinnedPage) Bytes() []byte    { return pg.bytes }

func (pg *pinnedPage) Unpin() {
	atomic.AddInt32(&pg.pin, -1)
}

// memoryBufferManager is an in-memory BufferManager: every block, persisted
// or mutable, is kept resident for the process lifetime. It is the default
// BufferManager used by tests and by callers that don't need a pebble-backed
// one (see buffer_pebble.go).
type memoryBufferManager struct {
	mutex   sync.Mutex
	pages   map[BlockID]*pinnedPage
	nextID  uint64
	blockSz int
}

// NewMemoryBufferManager returns a BufferManager that keeps every block in
// memory, allocating new mutable block ids starting at MaximumBlock.
func NewMemoryBufferManager() BufferManager {
	return &memoryBufferManager{
		pages:   map[BlockID]*pinnedPage{},
		nextID:  uint64(MaximumBlock),
		blockSz: BlockAllocSize,
	}
}

func (m *memoryBufferManager) Pin(id BlockID) (BufferHandle, error) {
	m.mutex.Lock()
	pg, ok := m.pages[id]
	if !ok {
		pg = &pinnedPage{id: id, mgr: m, bytes: make([]byte, m.blockSz)}
		m.pages[id] = pg
	}
	m.mutex.Unlock()

	atomic.AddInt32(&pg.pin, 1)
	return pg, nil
}

func (m *memoryBufferManager) Allocate(size int) (BufferHandle, error) {
	id := BlockID(atomic.AddUint64(&m.nextID, 1) - 1)

	sz := size
	if sz < m.blockSz {
		sz = m.blockSz
	}
	pg := &pinnedPage{id: id, mgr: m, bytes: make([]byte, sz), pin: 1}

	m.mutex.Lock()
	m.pages[id] = pg
	m.mutex.Unlock()

	return pg, nil
}
