//go:build unix

package mem

import "golang.org/x/sys/unix"

// newPool reserves npages physically-backed (from the host's point of
// view) pages in one contiguous anonymous mapping, echoing the teacher's
// direct-map design (mem.Dmap/Vdirect in dmap.go), where all of physical
// memory is addressed through a single large mapped region rather than
// one allocation call per page.
func newPool(npages int) (pool []byte, closeFn func(), err error) {
	size := npages * int(PGSIZE)
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, nil, err
	}
	return b, func() { _ = unix.Munmap(b) }, nil
}
