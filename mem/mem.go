// Package mem defines the physical-address types, page-table-entry flag
// bits, and the buddy-allocator abstraction consumed by the vm package.
// The page size, PTE flag and Pa_t naming follow the teacher's mem
// package (biscuit/src/mem/mem.go); the physical allocator itself
// (Physmem_t's percpu freelists tied to amd64 cr3/direct-map setup) is
// not portable outside a real kernel, so it is replaced here by a
// simulated BuddyAllocator_t with the same alloc_zero/free contract
// described for the out-of-scope collaborator.
package mem

// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

// PGSIZE is the size of a single page in bytes.
const PGSIZE uintptr = 1 << PGSHIFT

// PGOFFSET masks offsets within a page.
const PGOFFSET uintptr = PGSIZE - 1

// PGMASK masks the page number of an address.
const PGMASK uintptr = ^PGOFFSET

// Hardware PTE flag bits, installed by the page directory's Map operation
// and inspected by the fault handler. Named after the teacher's PTE_*
// constants in mem.go.
const (
	PTE_P uintptr = 1 << 0 // present
	PTE_W uintptr = 1 << 1 // writable
	PTE_U uintptr = 1 << 2 // user-accessible
)

// Frame is the address of one physical page, as returned by a
// FrameAllocator. It plays the role of the teacher's Pa_t for the subset
// of operations this subsystem needs.
type Frame uintptr

// FrameAllocator is the buddy-allocator collaborator of the design: a
// source of zeroed physical frames. AllocZero mirrors buddy_alloc_zero(0)
// of the original source (order is always 0 at this subsystem's only call
// site, the page-fault handler) and Free mirrors buddy_free.
type FrameAllocator interface {
	// AllocZero returns a physically distinct, zero-filled frame, or
	// false if none is available.
	AllocZero() (Frame, bool)
	// Free returns a previously allocated frame to the allocator.
	Free(Frame)
	// CopyPage overwrites dst with src's contents. This is the one
	// operation the design's alloc_zero/free pair does not name, added
	// because the copy-on-write fault path (spec.md §4.5 step 5) must
	// materialize a private copy of a shared page and nothing else at
	// this boundary can move bytes between frames.
	CopyPage(dst, src Frame)
}
