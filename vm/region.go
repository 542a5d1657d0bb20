package vm

import (
	"memspace/defs"
	"memspace/mem"
	"memspace/ordmap"
)

// findGap returns the best-fit (smallest sufficient) free gap for pages,
// spec.md §4.2's find_gap.
func (s *Space) findGap(pages uintptr) (*ordmap.Node[uintptr, *Gap], bool) {
	return s.freeTree.Ceil(pages)
}

// shrinkGap consumes pages from the start of the gap held by node,
// spec.md §4.2's shrink_gap. It returns the original gap's start
// address, i.e. the address the caller should hand out.
func (s *Space) shrinkGap(node *ordmap.Node[uintptr, *Gap], pages uintptr) uintptr {
	g := node.Value
	begin := g.Begin
	if g.Pages == pages {
		s.freeTree.Delete(node)
		s.unlinkGap(g)
		s.sub.gapCache.Free(g)
		return begin
	}
	s.freeTree.Delete(node)
	g.Begin += pages * mem.PGSIZE
	g.Pages -= pages
	g.freeNode = s.freeTree.Insert(g.Pages, g)
	return begin
}

func (s *Space) unlinkGap(g *Gap) {
	if g.prev != nil {
		g.prev.next = g.next
	} else {
		s.gaps = g.next
	}
	if g.next != nil {
		g.next.prev = g.prev
	}
	g.next, g.prev = nil, nil
}

func (s *Space) insertGapFront(g *Gap) {
	g.prev = nil
	g.next = s.gaps
	if s.gaps != nil {
		s.gaps.prev = g
	}
	s.gaps = g
}

// regionCreate carves a region of the requested size out of the best-fit
// gap, spec.md §4.3's region_create. pages == 0 is rejected.
func (s *Space) regionCreate(pages uintptr, flags Flags) (*Region, error) {
	if pages == 0 {
		return nil, defs.ErrInvalidArgument
	}

	r := s.sub.regionCache.Alloc()
	node, ok := s.findGap(pages)
	if !ok {
		s.sub.regionCache.Free(r)
		return nil, defs.ErrNoGapFits
	}
	g := node.Value

	r.space = s
	r.Flags = flags
	r.Begin = g.Begin
	r.Pages = pages
	r.UsedPages = 0
	r.Bitmap = NewBitmap(pages)
	r.next = nil
	r.prevShared, r.nextShared = nil, nil
	r.privatized = 0

	r.usedNode = s.usedTree.Insert(r.Begin, r)
	s.shrinkGap(node, pages)
	return r, nil
}

// Alloc carves a pages-page heap region and returns its start address,
// spec.md §4.3's alloc. No physical memory is committed; pages fault in
// lazily (fault.go).
func (s *Space) Alloc(pages uintptr) (uintptr, error) {
	s.lockPmap()
	defer s.unlockPmap()

	r, err := s.regionCreate(pages, FlagWrite|FlagUser)
	if err != nil {
		return 0, err
	}
	r.UsedPages = r.Pages
	r.Bitmap.SetRange(0, r.Pages)
	r.next = s.regions
	s.regions = r
	return r.Begin, nil
}

// AllocStack carves a maxPages-page stack region and returns its top
// (the last valid byte, so callers get a descending stack pointer),
// spec.md §4.3's alloc_stack.
func (s *Space) AllocStack(maxPages uintptr) (uintptr, error) {
	s.lockPmap()
	defer s.unlockPmap()

	r, err := s.regionCreate(maxPages, FlagWrite|FlagUser|FlagStack)
	if err != nil {
		return 0, err
	}
	r.UsedPages = r.Pages
	r.Bitmap.SetRange(0, r.Pages)
	r.next = s.regions
	s.regions = r
	return r.Begin + r.Pages*mem.PGSIZE - 1, nil
}

// findRegion returns the region containing addr, if any. It implements
// spec.md §4.5's strict-contains used-tree lookup: the floor node (the
// region with the greatest Begin <= addr) is the only candidate, and its
// bounds are checked explicitly.
func (s *Space) findRegion(addr uintptr) (*Region, bool) {
	node, ok := s.usedTree.Floor(addr)
	if !ok {
		return nil, false
	}
	r := node.Value
	if r.contains(addr) {
		return r, true
	}
	return nil, false
}

// unlinkRegionList removes r from the space's region list.
func (s *Space) unlinkRegionList(r *Region) {
	if s.regions == r {
		s.regions = r.next
		return
	}
	for cur := s.regions; cur != nil; cur = cur.next {
		if cur.next == r {
			cur.next = r.next
			return
		}
	}
}

// Free releases the pages-page region starting at ptr, spec.md §4.3's
// "Region free" together with the supplemented mem_space_free
// (original_source's version is an unimplemented TODO; spec.md §9
// requires a working free that coalesces into the gap set).
func (s *Space) Free(ptr uintptr, pages uintptr) error {
	s.lockPmap()
	defer s.unlockPmap()
	return s.freeRange(ptr, pages)
}

// FreeStack releases the region backing a stack previously returned by
// AllocStack. stack is the stack-top address AllocStack returned, so the
// region's actual Begin is recovered via the used-tree lookup rather
// than recomputed arithmetically (the caller doesn't know the region's
// page count).
func (s *Space) FreeStack(stack uintptr) error {
	s.lockPmap()
	defer s.unlockPmap()

	r, ok := s.findRegion(stack)
	if !ok || r.Flags&FlagStack == 0 {
		return defs.ErrInvalidAddress
	}
	return s.freeRange(r.Begin, r.Pages)
}

func (s *Space) freeRange(ptr, pages uintptr) error {
	if ptr == 0 || pages == 0 {
		return defs.ErrInvalidArgument
	}
	r, ok := s.findRegion(ptr)
	if !ok || r.Begin != ptr || r.Pages != pages {
		return defs.ErrInvalidAddress
	}
	s.unlinkRegionList(r)
	s.freeRegionLocked(r)
	return nil
}

// freeRegionLocked removes r's mapping(s), returns its physical frames to
// the buddy allocator when it is the last member of its shared ring
// (spec.md §4.3's "Region free"), and merges the vacated virtual range
// back into the gap set (spec.md §4.2/§9's required coalescing). Caller
// must already hold s's pmap lock (lockPmap), matching the teacher's
// Lockassert_pmap convention for internal helpers that touch the
// directory.
func (s *Space) freeRegionLocked(r *Region) {
	s.lockassertPmap()
	alone := r.prevShared == nil && r.nextShared == nil
	for i := uintptr(0); i < r.Pages; i++ {
		if !r.Bitmap.Test(i) {
			continue
		}
		va := r.Begin + i*mem.PGSIZE
		pte, ok := s.dir.Unmap(va)
		if ok && alone {
			s.buddy.Free(pte.Frame)
		}
	}

	if !alone {
		unlinkShared(r)
	}

	s.usedTree.Delete(r.usedNode)
	begin, pages := r.Begin, r.Pages
	s.sub.regionCache.Free(r)

	s.mergeGap(begin, pages)
}

// mergeGap inserts a freed [begin, begin+pages*PAGE_SIZE) virtual range
// into the gap set, coalescing with an immediately adjacent gap on
// either side so the address space does not fragment monotonically
// (spec.md §9).
func (s *Space) mergeGap(begin, pages uintptr) {
	end := begin + pages*mem.PGSIZE

	var left, right *Gap
	for g := s.gaps; g != nil; g = g.next {
		if g.Begin+g.Pages*mem.PGSIZE == begin {
			left = g
		}
		if g.Begin == end {
			right = g
		}
	}

	switch {
	case left != nil && right != nil:
		s.freeTree.Delete(left.freeNode)
		s.freeTree.Delete(right.freeNode)
		left.Pages += pages + right.Pages
		s.unlinkGap(right)
		s.sub.gapCache.Free(right)
		left.freeNode = s.freeTree.Insert(left.Pages, left)
	case left != nil:
		s.freeTree.Delete(left.freeNode)
		left.Pages += pages
		left.freeNode = s.freeTree.Insert(left.Pages, left)
	case right != nil:
		s.freeTree.Delete(right.freeNode)
		right.Begin = begin
		right.Pages += pages
		right.freeNode = s.freeTree.Insert(right.Pages, right)
	default:
		g := s.sub.gapCache.Alloc()
		g.Begin = begin
		g.Pages = pages
		s.insertGapFront(g)
		g.freeNode = s.freeTree.Insert(g.Pages, g)
	}
}
