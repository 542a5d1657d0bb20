package mem

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// BuddyAllocator_t is a simulated physical frame allocator standing in for
// the out-of-scope buddy allocator described by the design: a fixed pool
// of page-sized frames handed out zeroed and returned to a free list on
// Free. The free list is threaded through a nexti index per frame, the
// same linked-freelist shape as the teacher's Physmem_t
// (Physpg_t.nexti/_phys_new/_phys_insert in mem.go), simplified to a
// single list since this package does not model per-CPU frame caches.
//
// A golang.org/x/sync/semaphore.Weighted sized to the pool bounds
// concurrent outstanding frames, the portable analogue of the teacher's
// (stubbed) res/bounds resource-accounting packages
// (res.Resadd_noblock in vm/as.go).
type BuddyAllocator_t struct {
	mu        sync.Mutex
	pool      []byte
	nexti     []int32
	freei     int32
	freeCount int32
	sem       *semaphore.Weighted
	closeFn   func()
}

// NewBuddyAllocator reserves npages page-sized frames.
func NewBuddyAllocator(npages int) (*BuddyAllocator_t, error) {
	if npages <= 0 {
		panic("npages must be positive")
	}
	pool, closeFn, err := newPool(npages)
	if err != nil {
		return nil, err
	}
	b := &BuddyAllocator_t{
		pool:      pool,
		nexti:     make([]int32, npages),
		freeCount: int32(npages),
		sem:       semaphore.NewWeighted(int64(npages)),
		closeFn:   closeFn,
	}
	for i := range b.nexti {
		if i == npages-1 {
			b.nexti[i] = -1
		} else {
			b.nexti[i] = int32(i + 1)
		}
	}
	return b, nil
}

// AllocZero returns a zero-filled frame, or false if the pool is
// exhausted.
func (b *BuddyAllocator_t) AllocZero() (Frame, bool) {
	if !b.sem.TryAcquire(1) {
		return 0, false
	}

	b.mu.Lock()
	idx := b.freei
	if idx < 0 {
		b.mu.Unlock()
		b.sem.Release(1)
		return 0, false
	}
	b.freei = b.nexti[idx]
	b.freeCount--
	b.mu.Unlock()

	off := int(idx) * int(PGSIZE)
	page := b.pool[off : off+int(PGSIZE)]
	clear(page)
	return Frame(off), true
}

// Free returns f to the pool.
func (b *BuddyAllocator_t) Free(f Frame) {
	idx := int32(uintptr(f) / PGSIZE)

	b.mu.Lock()
	if idx < 0 || int(idx) >= len(b.nexti) {
		b.mu.Unlock()
		panic("mem: free of out-of-range frame")
	}
	b.nexti[idx] = b.freei
	b.freei = idx
	b.freeCount++
	b.mu.Unlock()

	b.sem.Release(1)
}

// Bytes exposes the raw backing bytes for a frame; used by tests and by
// CopyPage.
func (b *BuddyAllocator_t) Bytes(f Frame) []byte {
	off := int(f)
	return b.pool[off : off+int(PGSIZE)]
}

// CopyPage copies src's contents into dst, implementing
// mem.FrameAllocator's CopyPage for the copy-on-write fault path.
func (b *BuddyAllocator_t) CopyPage(dst, src Frame) {
	copy(b.Bytes(dst), b.Bytes(src))
}

// Avail reports the number of frames currently free.
func (b *BuddyAllocator_t) Avail() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.freeCount)
}

// Close releases the backing pool. Safe to call once, after all frames
// have been returned.
func (b *BuddyAllocator_t) Close() {
	if b.closeFn != nil {
		b.closeFn()
	}
}
