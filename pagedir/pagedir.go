// Package pagedir is the hardware page-directory abstraction consumed by
// the vm package: init/clone/map/resolve/destroy, per the design's
// external interfaces. The teacher's equivalent (mem.Pmap_t plus the
// recursive-mapping setup in dmap.go) is wired directly into amd64
// cr3/page-table-walk assembly this module has no access to, so this
// package re-expresses the same operations as a portable simulated
// directory: a page-aligned table of PTE slots guarded by a mutex.
package pagedir

import (
	"fmt"
	"sync"

	"memspace/mem"
	"memspace/util"
)

// PTE is one page-table-entry slot: a physical frame plus hardware flag
// bits (mem.PTE_P/PTE_W/PTE_U), mirroring what the teacher's
// vmem_resolve()/Ptefor() return a mutable reference to.
type PTE struct {
	Frame mem.Frame
	Flags uintptr
}

// Present reports whether the PTE_P bit is set.
func (p PTE) Present() bool { return p.Flags&mem.PTE_P != 0 }

// Writable reports whether the PTE_W bit is set.
func (p PTE) Writable() bool { return p.Flags&mem.PTE_W != 0 }

// Directory is the hardware page-directory collaborator: init, clone,
// map, resolve, destroy, exactly the operations the design lists as
// consumed from this boundary.
type Directory interface {
	// Map installs one page translation. flags must include PTE_P.
	Map(virt uintptr, phys mem.Frame, flags uintptr) error
	// Resolve returns the PTE slot for virt, or ok=false if no mapping
	// is currently installed there.
	Resolve(virt uintptr) (pte *PTE, ok bool)
	// Unmap removes any mapping at virt and returns the entry that was
	// removed. This is the portable stand-in for the teacher's
	// Page_remove (as.go), needed here because explicit single-region
	// free (spec_full.md's supplemented mem_space_free) must drop the
	// directory's mapping in lock-step with the region's own bookkeeping.
	Unmap(virt uintptr) (pte *PTE, ok bool)
	// Clone produces a directory that shares the same physical frames
	// (copy-on-write): subsequent writes must be reconciled by the
	// caller via Map, not by the directory itself.
	Clone() (Directory, error)
	// Destroy releases the directory. Safe to call on an already
	// destroyed directory.
	Destroy()
}

// SimDirectory is the default, host-portable Directory implementation: a
// plain map keyed by page-aligned virtual address, guarded by a mutex.
// There is no recursive-mapping trick or TLB to manage because this
// module never executes the addresses it maps.
type SimDirectory struct {
	mu   sync.Mutex
	ptes map[uintptr]*PTE
}

// NewSimDirectory creates an empty directory, playing the role of the
// teacher's Pmap_new/vmem_init.
func NewSimDirectory() *SimDirectory {
	return &SimDirectory{ptes: make(map[uintptr]*PTE)}
}

func (d *SimDirectory) Map(virt uintptr, phys mem.Frame, flags uintptr) error {
	if !util.Aligned(virt, mem.PGSIZE) {
		return fmt.Errorf("pagedir: Map: virt %#x is not page aligned", virt)
	}
	if flags&mem.PTE_P == 0 {
		return fmt.Errorf("pagedir: Map: flags %#x missing PTE_P", flags)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ptes[virt] = &PTE{Frame: phys, Flags: flags}
	return nil
}

func (d *SimDirectory) Resolve(virt uintptr) (*PTE, bool) {
	virt = util.Rounddown(virt, mem.PGSIZE)
	d.mu.Lock()
	defer d.mu.Unlock()
	pte, ok := d.ptes[virt]
	return pte, ok
}

func (d *SimDirectory) Unmap(virt uintptr) (*PTE, bool) {
	virt = util.Rounddown(virt, mem.PGSIZE)
	d.mu.Lock()
	defer d.mu.Unlock()
	pte, ok := d.ptes[virt]
	if ok {
		delete(d.ptes, virt)
	}
	return pte, ok
}

// Clone copies every PTE slot by value into a new directory. Physical
// frames are shared by construction (the Frame field is copied, not
// duplicated) and each entry keeps its flags; callers that need
// copy-on-write semantics must clear PTE_W on the writable entries of
// both directories (vm.Clone does this after calling Clone).
func (d *SimDirectory) Clone() (Directory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	child := NewSimDirectory()
	for va, pte := range d.ptes {
		cp := *pte
		child.ptes[va] = &cp
	}
	return child, nil
}

func (d *SimDirectory) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ptes = nil
}
