package vm

import (
	"memspace/mem"
	"memspace/pagedir"
)

// unlinkShared removes r from its shared ring, the circular list of
// regions (one per cloned space) that back the same physical frames,
// spec.md §4.4's clone_regions/remove_regions. It is a no-op if r is
// already alone.
func unlinkShared(r *Region) {
	if r.prevShared == nil && r.nextShared == nil {
		return
	}
	if r.nextShared == r.prevShared {
		// Two-member ring: the sole remaining sibling becomes unshared,
		// not a one-node self-loop.
		sole := r.nextShared
		sole.prevShared, sole.nextShared = nil, nil
	} else {
		r.prevShared.nextShared = r.nextShared
		r.nextShared.prevShared = r.prevShared
	}
	r.prevShared, r.nextShared = nil, nil
}

// linkShared inserts child into parent's shared ring.
func linkShared(parent, child *Region) {
	next := parent.nextShared
	if next == nil {
		parent.nextShared, parent.prevShared = child, child
		child.nextShared, child.prevShared = parent, parent
		return
	}
	child.nextShared = next
	child.prevShared = parent
	parent.nextShared = child
	next.prevShared = child
}

// Clone produces a copy-on-write duplicate of parent, spec.md §4.4's
// mem_space_clone: every region is shared (via the shared ring) rather
// than copied, every writable mapping is downgraded to read-only in both
// spaces so a subsequent write faults into fault.go's copy-on-write
// path, and the gap set is duplicated so the two spaces can allocate
// independently afterward.
func Clone(parent *Space) (*Space, error) {
	parent.lockPmap()
	defer parent.unlockPmap()

	dir, err := parent.dir.Clone()
	if err != nil {
		return nil, err
	}

	child := &Space{dir: dir, buddy: parent.buddy, sub: parent.sub}

	for g := parent.gaps; g != nil; g = g.next {
		cg := child.sub.gapCache.Alloc()
		cg.Begin = g.Begin
		cg.Pages = g.Pages
		child.insertGapFront(cg)
		cg.freeNode = child.freeTree.Insert(cg.Pages, cg)
	}

	// Walk parent's region list oldest-linked-first by collecting into a
	// slice first: appending to child.regions while iterating parent's
	// list (both singly linked, independent heads) is safe, but doing it
	// in original order keeps clone order deterministic for tests.
	var parentRegions []*Region
	for r := parent.regions; r != nil; r = r.next {
		parentRegions = append(parentRegions, r)
	}

	for i := len(parentRegions) - 1; i >= 0; i-- {
		r := parentRegions[i]

		cr := child.sub.regionCache.Alloc()
		cr.space = child
		cr.Flags = r.Flags
		cr.Begin = r.Begin
		cr.Pages = r.Pages
		cr.UsedPages = r.UsedPages
		cr.Bitmap = r.Bitmap.Clone()
		cr.privatized = 0

		// Cloning resumes sharing on every present page, even ones this
		// region privatized via an earlier COW fault: the child's mapping
		// is a fresh copy of the current (now read-only) PTE, so both
		// sides must re-arm their privatized counters.
		r.privatized = 0
		linkShared(r, cr)

		cr.usedNode = child.usedTree.Insert(cr.Begin, cr)
		cr.next = child.regions
		child.regions = cr

		if r.Flags&FlagWrite != 0 {
			downgradeWritable(parent.dir, r)
			downgradeWritable(child.dir, cr)
		}
	}

	return child, nil
}

// downgradeWritable clears PTE_W on every present mapping in r, forcing
// the next write into that region (in either the parent or the clone) to
// take the copy-on-write fault path (fault.go), spec.md §4.4's
// regions_disable_write. Caller must hold the owning space's pmap lock.
func downgradeWritable(dir pagedir.Directory, r *Region) {
	for i := uintptr(0); i < r.Pages; i++ {
		if !r.Bitmap.Test(i) {
			continue
		}
		va := r.Begin + i*mem.PGSIZE
		pte, ok := dir.Resolve(va)
		if !ok || !pte.Writable() {
			continue
		}
		if err := dir.Map(va, pte.Frame, pte.Flags&^mem.PTE_W); err != nil {
			panic(err)
		}
	}
}
