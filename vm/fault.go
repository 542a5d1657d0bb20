package vm

import (
	"memspace/mem"
	"memspace/pagedir"
	"memspace/util"
)

// HandlePageFault resolves a hardware page fault at addr, spec.md §4.5's
// mem_space_handle_page_fault. It returns false whenever the fault
// cannot be resolved (no enclosing region, page not in use, allocator
// exhaustion, or a directory failure), which the kernel caller is
// expected to turn into a segmentation signal to the faulting task, the
// same contract as the teacher's Sys_pgfault return value (as.go).
func (s *Space) HandlePageFault(addr uintptr) bool {
	s.lockPmap()
	defer s.unlockPmap()

	addr = util.Rounddown(addr, mem.PGSIZE)

	r, ok := s.findRegion(addr)
	if !ok {
		return false
	}
	idx := (addr - r.Begin) / mem.PGSIZE
	if !r.Bitmap.Test(idx) {
		return false
	}

	pte, present := s.dir.Resolve(addr)
	if present && pte.Present() {
		if pte.Writable() || r.Flags&FlagWrite == 0 {
			// Already mapped with the permissions this access needs, or a
			// write into a read-only region: not a fault this handler
			// resolves (the latter is a genuine protection violation).
			return false
		}
		return s.resolveCOW(r, addr, pte)
	}

	return s.resolveNotPresent(r, addr)
}

// resolveNotPresent implements spec.md §4.5 step 4: demand-allocate a
// zeroed frame and install it with the region's effective permissions.
func (s *Space) resolveNotPresent(r *Region, addr uintptr) bool {
	frame, ok := s.buddy.AllocZero()
	if !ok {
		return false
	}

	flags := uintptr(mem.PTE_P)
	if r.Flags&FlagWrite != 0 {
		flags |= mem.PTE_W
	}
	if r.Flags&FlagUser != 0 {
		flags |= mem.PTE_U
	}

	if err := s.dir.Map(addr, frame, flags); err != nil {
		s.buddy.Free(frame)
		return false
	}
	return true
}

// resolveCOW implements spec.md §4.5 step 5: a write fault on a present,
// read-only mapping means the page is shared copy-on-write across a
// clone's shared ring. Allocate a private frame, copy the shared page's
// contents, and install it writable. The region leaves its shared ring
// only once r.privatized reaches r.Pages; until then it stays linked.
func (s *Space) resolveCOW(r *Region, addr uintptr, old *pagedir.PTE) bool {
	frame, ok := s.buddy.AllocZero()
	if !ok {
		return false
	}
	s.buddy.CopyPage(frame, old.Frame)

	flags := old.Flags | mem.PTE_W
	if err := s.dir.Map(addr, frame, flags); err != nil {
		s.buddy.Free(frame)
		return false
	}

	if r.prevShared != nil || r.nextShared != nil {
		r.privatized++
		if r.privatized >= r.Pages {
			// Every in-use page r holds now has its own private frame: r no
			// longer references anything a sibling depends on, so it can
			// leave the shared ring (spec.md §4.4: "a region is physically
			// freed when it leaves a ring of size one").
			unlinkShared(r)
		}
	}
	return true
}
