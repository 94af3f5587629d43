package mvcc

import "testing"

func TestMemoryBufferManagerAllocateThenPin(t *testing.T) {
	bm := NewMemoryBufferManager()

	h, err := bm.Allocate(BlockSize)
	if err != nil {
		t.Fatal(err)
	}
	copy(h.Bytes(), []byte("hello"))
	id := h.BlockID()
	h.Unpin()

	if id < MaximumBlock {
		t.Fatalf("expected allocated block id >= MaximumBlock, got %d", id)
	}

	h2, err := bm.Pin(id)
	if err != nil {
		t.Fatal(err)
	}
	defer h2.Unpin()

	if string(h2.Bytes()[:5]) != "hello" {
		t.Fatalf("expected to read back written bytes, got %q", h2.Bytes()[:5])
	}
}

func TestMemoryBufferManagerDistinctIDs(t *testing.T) {
	bm := NewMemoryBufferManager()

	h1, _ := bm.Allocate(BlockSize)
	h2, _ := bm.Allocate(BlockSize)
	defer h1.Unpin()
	defer h2.Unpin()

	if h1.BlockID() == h2.BlockID() {
		t.Fatal("expected distinct block ids from successive Allocate calls")
	}
}

func TestMemoryBufferManagerPinIsIdempotentBacking(t *testing.T) {
	bm := NewMemoryBufferManager()

	h1, _ := bm.Pin(BlockID(5))
	h1.Bytes()[0] = 0x42
	h1.Unpin()

	h2, _ := bm.Pin(BlockID(5))
	defer h2.Unpin()
	if h2.Bytes()[0] != 0x42 {
		t.Fatal("expected repeated Pin of the same block id to see the same backing bytes")
	}
}
