package vm

import (
	"testing"

	"memspace/mem"
)

func TestCloneSharesRegionsAndGaps(t *testing.T) {
	parent, _ := newTestSpace(t, 16)
	addr, err := parent.Alloc(4)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	child, err := Clone(parent)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	pr, ok := parent.findRegion(addr)
	if !ok {
		t.Fatal("parent region missing after clone")
	}
	cr, ok := child.findRegion(addr)
	if !ok {
		t.Fatal("child has no region at the cloned address")
	}
	if cr == pr {
		t.Fatal("clone must produce a distinct region object")
	}
	if cr.Begin != pr.Begin || cr.Pages != pr.Pages || cr.Flags != pr.Flags {
		t.Fatalf("clone region mismatch: child=%+v parent=%+v", cr, pr)
	}
	if pr.nextShared != cr || cr.nextShared != pr {
		t.Fatal("expected parent and child regions spliced into the same shared ring")
	}

	if child.freeTree.Len() != parent.freeTree.Len() {
		t.Fatalf("child freeTree.Len() = %d, want %d (gap list duplicated)", child.freeTree.Len(), parent.freeTree.Len())
	}
}

func TestCloneWritesDivergeViaCOW(t *testing.T) {
	parent, parentBuddy := newTestSpace(t, 16)
	addr, err := parent.Alloc(4)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if !parent.HandlePageFault(addr) {
		t.Fatal("expected initial not-present fault to resolve")
	}

	child, err := Clone(parent)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	// Post-clone, both spaces' mappings for a writable region must be
	// read-only (spec.md §4.4 step 7 / §8 scenario 6).
	ppte, ok := parent.dir.Resolve(addr)
	if !ok || ppte.Writable() {
		t.Fatalf("parent PTE still writable after clone: %+v ok=%v", ppte, ok)
	}
	cpte, ok := child.dir.Resolve(addr)
	if !ok || cpte.Writable() {
		t.Fatalf("child PTE still writable after clone: %+v ok=%v", cpte, ok)
	}
	if ppte.Frame != cpte.Frame {
		t.Fatal("expected parent and child to share the same physical frame right after clone")
	}

	before := parentBuddy.Avail()

	// A write fault in the child must materialize a private frame there,
	// leaving the parent's mapping untouched.
	if !child.HandlePageFault(addr) {
		t.Fatal("expected the child's write fault to resolve via copy-on-write")
	}

	if after := parentBuddy.Avail(); after != before-1 {
		t.Fatalf("Avail() = %d, want %d (one new frame for the child's private copy)", after, before-1)
	}

	ppte2, _ := parent.dir.Resolve(addr)
	if ppte2.Frame != ppte.Frame {
		t.Fatal("parent's mapping must be unchanged by the child's COW fault")
	}
	if ppte2.Writable() {
		t.Fatal("parent's mapping must remain read-only: the parent never wrote to this page")
	}

	cpte2, ok := child.dir.Resolve(addr)
	if !ok || !cpte2.Writable() {
		t.Fatalf("child's mapping must be writable after its own COW fault: %+v ok=%v", cpte2, ok)
	}
	if cpte2.Frame == ppte.Frame {
		t.Fatal("child's COW fault must allocate a frame distinct from the parent's")
	}
}

func TestCloneOfCloneProducesIndependentRegions(t *testing.T) {
	s1, _ := newTestSpace(t, 16)
	if _, err := s1.Alloc(4); err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	mid, err := Clone(s1)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	s2, err := Clone(mid)
	if err != nil {
		t.Fatalf("Clone of clone: %v", err)
	}

	var regions1, regions2 []*Region
	for r := s1.regions; r != nil; r = r.next {
		regions1 = append(regions1, r)
	}
	for r := s2.regions; r != nil; r = r.next {
		regions2 = append(regions2, r)
	}
	if len(regions1) != len(regions2) {
		t.Fatalf("region count mismatch: %d vs %d", len(regions1), len(regions2))
	}
	for i := range regions1 {
		if regions1[i] == regions2[i] {
			t.Fatal("clone must not share region objects")
		}
		if regions1[i].Begin != regions2[i].Begin || regions1[i].Pages != regions2[i].Pages {
			t.Fatalf("region %d mismatch: %+v vs %+v", i, regions1[i], regions2[i])
		}
	}
}

func TestCloneFreeingSoleSiblingReturnsFramesOnlyOnce(t *testing.T) {
	parent, buddy := newTestSpace(t, 16)
	addr, err := parent.Alloc(2)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if !parent.HandlePageFault(addr) {
		t.Fatal("fault should resolve")
	}
	if !parent.HandlePageFault(addr + mem.PGSIZE) {
		t.Fatal("fault should resolve")
	}

	child, err := Clone(parent)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	before := buddy.Avail()
	if err := child.Free(addr, 2); err != nil {
		t.Fatalf("Free: %v", err)
	}
	// Frames are still referenced by the parent's sibling region: freeing
	// the child's region must not return them to the allocator.
	if got := buddy.Avail(); got != before {
		t.Fatalf("Avail() = %d, want %d (parent still shares these frames)", got, before)
	}

	if err := parent.Free(addr, 2); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if got := buddy.Avail(); got != before+2 {
		t.Fatalf("Avail() = %d, want %d (last sibling freed returns both frames)", got, before+2)
	}
}
