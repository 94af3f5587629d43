package mvcc

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	log "github.com/sirupsen/logrus"
)

// pebbleBufferManager persists blocks below MaximumBlock in an embedded
// pebble LSM tree, keyed by their big-endian block id; mutable blocks at or
// above MaximumBlock live purely in memory, since they're never the target
// of Pin from a fresh process. Grounded in storage/kvrows/pebble.go's
// MakePebbleKV: same pebble.Open(dataDir, &pebble.Options{Logger: logger})
// constructor shape.
type pebbleBufferManager struct {
	db      *pebble.DB
	log     *log.Logger
	mutex   sync.Mutex
	mutable map[BlockID][]byte
	nextID  uint64
}

// NewPebbleBufferManager opens (or creates) a pebble store at dataDir and
// returns a BufferManager backed by it.
func NewPebbleBufferManager(dataDir string, logger *log.Logger) (BufferManager, error) {
	db, err := pebble.Open(dataDir, &pebble.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	return &pebbleBufferManager{
		db:      db,
		log:     logger,
		mutable: map[BlockID][]byte{},
		nextID:  uint64(MaximumBlock),
	}, nil
}

func blockKey(id BlockID) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return buf[:]
}

type pebbleHandle struct {
	id    BlockID
	bytes []byte
	mgr   *pebbleBufferManager
}

func (h *pebbleHandle) BlockID() BlockID { return h.id }
func (h *pebbleHandle) Bytes() []byte    { return h.bytes }

func (h *pebbleHandle) Unpin() {
	if h.id < MaximumBlock {
		return
	}
	h.mgr.mutex.Lock()
	h.mgr.mutable[h.id] = h.bytes
	h.mgr.mutex.Unlock()
}

func (m *pebbleBufferManager) Pin(id BlockID) (BufferHandle, error) {
	if id >= MaximumBlock {
		m.mutex.Lock()
		bytes, ok := m.mutable[id]
		if !ok {
			bytes = make([]byte, BlockAllocSize)
			m.mutable[id] = bytes
		}
		m.mutex.Unlock()
		return &pebbleHandle{id: id, bytes: bytes, mgr: m}, nil
	}

	val, closer, err := m.db.Get(blockKey(id))
	if err == pebble.ErrNotFound {
		return &pebbleHandle{id: id, bytes: make([]byte, BlockSize), mgr: m}, nil
	}
	if err != nil {
		return nil, err
	}
	bytes := make([]byte, len(val))
	copy(bytes, val)
	closer.Close()
	return &pebbleHandle{id: id, bytes: bytes, mgr: m}, nil
}

func (m *pebbleBufferManager) Allocate(size int) (BufferHandle, error) {
	id := BlockID(atomic.AddUint64(&m.nextID, 1) - 1)
	sz := size
	if sz < BlockAllocSize {
		sz = BlockAllocSize
	}
	bytes := make([]byte, sz)

	m.mutex.Lock()
	m.mutable[id] = bytes
	m.mutex.Unlock()

	return &pebbleHandle{id: id, bytes: bytes, mgr: m}, nil
}

// Persist writes bytes to the pebble store under id's key. Pin reads the
// store only for ids below MaximumBlock; ids at or above it are always
// served from memory, and Persist does not assign a new id. This is the only
// "checkpoint" operation this core performs; it is never called implicitly.
func (m *pebbleBufferManager) Persist(id BlockID, bytes []byte) error {
	return m.db.Set(blockKey(id), bytes, pebble.Sync)
}

func (m *pebbleBufferManager) Close() error {
	return m.db.Close()
}
