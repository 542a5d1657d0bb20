package vm

import (
	"testing"

	"memspace/mem"
)

func TestCanAccessWithinSingleRegion(t *testing.T) {
	s, _ := newTestSpace(t, 16)
	addr, err := s.Alloc(4)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	if !s.CanAccess(addr, 1, false) {
		t.Fatal("expected read access to an allocated, user-writable region to succeed")
	}
	if !s.CanAccess(addr, 1, true) {
		t.Fatal("expected write access to succeed: the region was allocated with FlagWrite")
	}
}

func TestCanAccessRejectsUnallocatedRange(t *testing.T) {
	s, _ := newTestSpace(t, 16)
	if s.CanAccess(0x1000, mem.PGSIZE, false) {
		t.Fatal("expected access to an address with no backing region to fail")
	}
}

func TestCanAccessSpanningAdjacentRegions(t *testing.T) {
	s, _ := newTestSpace(t, 16)
	a1, err := s.Alloc(4)
	if err != nil {
		t.Fatalf("Alloc a1: %v", err)
	}
	a2, err := s.Alloc(4)
	if err != nil {
		t.Fatalf("Alloc a2: %v", err)
	}
	if a2 != a1+4*mem.PGSIZE {
		t.Fatalf("expected a2 to be adjacent to a1: a1=%#x a2=%#x", a1, a2)
	}

	if !s.CanAccess(a1, 8*mem.PGSIZE, false) {
		t.Fatal("expected a range spanning two adjacent allocated regions to be accessible")
	}
}

func TestCanAccessFailsAcrossAGap(t *testing.T) {
	s, _ := newTestSpace(t, 16)
	a1, err := s.Alloc(2)
	if err != nil {
		t.Fatalf("Alloc a1: %v", err)
	}

	// a1 spans pages [0,2); the remaining 14 pages are still a single
	// free gap, so a range starting at a1 and running past the region's
	// end must fail even though it starts inside a valid region.
	if s.CanAccess(a1, 4*mem.PGSIZE, false) {
		t.Fatal("expected access running off the end of the region into free space to fail")
	}
}

func TestCanAccessRejectsZeroSize(t *testing.T) {
	s, _ := newTestSpace(t, 16)
	addr, err := s.Alloc(1)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if s.CanAccess(addr, 0, false) {
		t.Fatal("expected a zero-size access to be rejected")
	}
}

func TestCanAccessRejectsWriteToReadOnlyRegion(t *testing.T) {
	s, _ := newTestSpace(t, 16)
	r, err := s.regionCreate(2, FlagUser)
	if err != nil {
		t.Fatalf("regionCreate: %v", err)
	}
	r.next = s.regions
	s.regions = r

	if !s.CanAccess(r.Begin, 1, false) {
		t.Fatal("expected read access to a user region to succeed")
	}
	if s.CanAccess(r.Begin, 1, true) {
		t.Fatal("expected write access to a region without FlagWrite to fail")
	}
}
