// Package vm is the memory-space manager: the per-process address space
// object, its region/gap allocator, clone/copy-on-write, page-fault
// resolution, and the access-permission check. It is the Go port of the
// teacher's vm package (biscuit/src/vm/as.go, Vm_t/Vminfo_t) re-targeted
// at the simpler region/gap/shared-ring model of original_source's
// mem_space.c, which this specification was distilled from.
package vm

import (
	"fmt"
	"sort"
	"sync"

	"memspace/defs"
	"memspace/mem"
	"memspace/ordmap"
	"memspace/pagedir"
	"memspace/slab"
	"memspace/util"
)

// Flags are per-region access permissions, the Go names for the
// original's MEM_REGION_FLAG_* bits (and the teacher's PTE_W/PTE_U
// hardware bits they are translated to at fault time).
type Flags uint8

const (
	FlagWrite Flags = 1 << iota
	FlagUser
	FlagStack
)

// Range describes a half-open virtual-page range, used for the caller
// supplied kernel-reserved exclusion list (spec.md §9's Open Question:
// "accept an explicit reserved-range list at init rather than fabricate
// a policy").
type Range struct {
	Begin uintptr // page-aligned virtual address
	Pages uintptr
}

func (r Range) end() uintptr { return r.Begin + r.Pages*mem.PGSIZE }

// Config configures a Space at Init time.
type Config struct {
	// Base and Pages describe the managed virtual range. Zero values
	// default to the conventional user range from spec.md §3:
	// [0x1000, 0x1000+0xfffff*PAGE_SIZE).
	Base  uintptr
	Pages uintptr
	// Reserved lists sub-ranges of [Base, Base+Pages*PAGE_SIZE) to
	// exclude from the initial gap set (e.g. kernel code/syscall stubs).
	Reserved []Range
	// Buddy is the physical frame allocator. Required: this package
	// never fabricates physical memory.
	Buddy mem.FrameAllocator
	// Dir, if non-nil, is used as the new space's page directory
	// instead of a fresh pagedir.NewSimDirectory(). Used by tests that
	// want to inspect directory state directly.
	Dir pagedir.Directory
}

const (
	defaultBase  uintptr = 0x1000
	defaultPages uintptr = 0xfffff
)

// Subsystem holds the process-wide object caches a kernel would
// initialize once at boot, replacing the original's hidden
// mem_space_cache/mem_gap_cache globals with fields on a handle the
// embedder constructs and injects (spec.md §9's "exposed as fields of a
// subsystem handle injected at kernel startup").
type Subsystem struct {
	regionCache *slab.Cache[Region]
	gapCache    *slab.Cache[Gap]
}

// NewSubsystem creates the region/gap object caches. Call once at
// startup and share the result across every Init call.
func NewSubsystem() *Subsystem {
	return &Subsystem{
		regionCache: slab.New[Region]("mem_region", nil, nil),
		gapCache:    slab.New[Gap]("mem_gap", nil, nil),
	}
}

var defaultSubsystem = sync.OnceValue(NewSubsystem)

// Region is a contiguous run of virtual pages owned by one space,
// spec.md §3. See region.go for the allocator operations and clone.go
// for the shared ring.
type Region struct {
	space *Space // owning space, non-owning back-reference
	Flags Flags
	Begin uintptr // page-aligned virtual start
	Pages uintptr

	UsedPages uintptr
	Bitmap    *Bitmap

	// privatized counts pages that have already taken their one-time
	// copy-on-write fault (fault.go's resolveCOW) and therefore hold a
	// frame no sibling on the shared ring references. Because the shared
	// ring links whole regions rather than individual pages, r can only
	// safely leave the ring once every in-use page has privatized,
	// otherwise a later Free would return a still-shared frame to the
	// buddy allocator out from under a sibling.
	privatized uintptr

	next                   *Region // list link within the owning space
	prevShared, nextShared *Region // shared ring across clones

	usedNode *ordmap.Node[uintptr, *Region]
}

// End returns the exclusive end address of the region.
func (r *Region) End() uintptr { return r.Begin + r.Pages*mem.PGSIZE }

// contains reports whether addr falls inside [Begin, End).
func (r *Region) contains(addr uintptr) bool {
	return addr >= r.Begin && addr < r.End()
}

// Gap is a contiguous run of free virtual pages, spec.md §3.
type Gap struct {
	Begin uintptr
	Pages uintptr

	next, prev *Gap // list links, in no particular address order

	freeNode *ordmap.Node[uintptr, *Gap]
}

// Space is one process's address space: the region list, the two
// ordered-map views (free-tree by size, used-tree by start), the page
// directory, and the lock guarding all of it, per spec.md §3.
type Space struct {
	sync.Mutex
	faulting bool // asserts the lock is held during fault resolution, as
	// in the teacher's Vm_t.pgfltaken/Lock_pmap/Lockassert_pmap.

	regions *Region
	gaps    *Gap

	freeTree ordmap.Tree[uintptr, *Gap]
	usedTree ordmap.Tree[uintptr, *Region]

	dir   pagedir.Directory
	buddy mem.FrameAllocator

	sub *Subsystem
}

func (s *Space) lockPmap() {
	s.Lock()
	s.faulting = true
}

func (s *Space) unlockPmap() {
	s.faulting = false
	s.Unlock()
}

func (s *Space) lockassertPmap() {
	if !s.faulting {
		panic("vm: page-directory operation without the space lock held")
	}
}

// Init creates a new address space per spec.md §4.1: one gap spanning
// the managed virtual range (minus Reserved sub-ranges), and an empty
// page directory. On any failure, partially-constructed state is
// released before returning.
func Init(sub *Subsystem, cfg Config) (*Space, error) {
	if cfg.Buddy == nil {
		return nil, fmt.Errorf("vm: Init: Config.Buddy is required")
	}
	if sub == nil {
		sub = defaultSubsystem()
	}
	base := cfg.Base
	if base == 0 {
		base = defaultBase
	}
	pages := cfg.Pages
	if pages == 0 {
		pages = defaultPages
	}
	if !util.Aligned(base, mem.PGSIZE) {
		return nil, fmt.Errorf("vm: Init: Config.Base %#x is not page aligned", base)
	}

	segs, err := carve(Range{Begin: base, Pages: pages}, cfg.Reserved)
	if err != nil {
		return nil, err
	}

	dir := cfg.Dir
	if dir == nil {
		dir = pagedir.NewSimDirectory()
	}

	s := &Space{dir: dir, buddy: cfg.Buddy, sub: sub}

	var tail *Gap
	for _, seg := range segs {
		if seg.Pages == 0 {
			continue
		}
		g := sub.gapCache.Alloc()
		g.Begin = seg.Begin
		g.Pages = seg.Pages
		g.next, g.prev = nil, tail
		if tail != nil {
			tail.next = g
		} else {
			s.gaps = g
		}
		tail = g
		g.freeNode = s.freeTree.Insert(g.Pages, g)
	}
	return s, nil
}

// carve subtracts the reserved sub-ranges from the managed range,
// returning the remaining segments in address order. It is the
// implementation of the Open Question in spec.md §9 ("the initial gap
// appears to include the kernel's code/syscall-stub range... implementers
// should accept an explicit reserved-range list").
func carve(whole Range, reserved []Range) ([]Range, error) {
	cut := make([]Range, len(reserved))
	copy(cut, reserved)
	sort.Slice(cut, func(i, j int) bool { return cut[i].Begin < cut[j].Begin })

	var out []Range
	cur := whole.Begin
	end := whole.end()
	for _, r := range cut {
		if r.Begin < whole.Begin || r.end() > end {
			return nil, fmt.Errorf("vm: Init: reserved range [%#x,%#x) outside managed range", r.Begin, r.end())
		}
		if r.Begin > cur {
			out = append(out, Range{Begin: cur, Pages: (r.Begin - cur) / mem.PGSIZE})
		}
		if r.end() > cur {
			cur = r.end()
		}
	}
	if cur < end {
		out = append(out, Range{Begin: cur, Pages: (end - cur) / mem.PGSIZE})
	}
	return out, nil
}

// Destroy releases every region, every gap, the page directory, and the
// space itself (spec.md §4.1). It is idempotent: calling Destroy twice
// is a safe no-op the second time, mirroring "idempotent on a null/unset
// handle".
func (s *Space) Destroy() {
	s.lockPmap()
	defer s.unlockPmap()
	if s.dir == nil {
		return
	}

	for r := s.regions; r != nil; {
		next := r.next
		s.freeRegionLocked(r)
		r = next
	}
	s.regions = nil

	for g := s.gaps; g != nil; {
		next := g.next
		s.sub.gapCache.Free(g)
		g = next
	}
	s.gaps = nil

	s.dir.Destroy()
	s.dir = nil
}
