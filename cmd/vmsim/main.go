// Command vmsim exercises a vm.Space end-to-end: it allocates a heap
// region and a stack, resolves the faults a real program's first touches
// would generate, clones the space the way a fork() would, and confirms
// the clone's copy-on-write behavior before tearing everything down. It
// prints a short summary at each step, the same register as the
// teacher's chentry command-line tool.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"memspace/diag"
	"memspace/mem"
	"memspace/vm"
)

func main() {
	npages := flag.Int("frames", 4096, "number of simulated physical frames")
	pprofOut := flag.String("pprof", "", "if set, write a pprof snapshot of the parent space to this file")
	flag.Parse()

	buddy, err := mem.NewBuddyAllocator(*npages)
	if err != nil {
		log.Fatal(err)
	}
	defer buddy.Close()

	parent, err := vm.Init(vm.NewSubsystem(), vm.Config{Buddy: buddy})
	if err != nil {
		log.Fatal(err)
	}

	heap, err := parent.Alloc(16)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("heap region at %#x (16 pages)\n", heap)

	stack, err := parent.AllocStack(8)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("stack region top at %#x (8 pages)\n", stack)

	if !parent.HandlePageFault(heap) {
		log.Fatal("expected the first touch of the heap region to fault in cleanly")
	}
	fmt.Printf("resolved initial fault at %#x, %d frames left\n", heap, buddy.Avail())

	child, err := vm.Clone(parent)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("cloned parent into a child space sharing %d region(s)\n", len(child.Regions()))

	if !child.HandlePageFault(heap) {
		log.Fatal("expected the child's first write to the shared heap page to COW-fault cleanly")
	}
	fmt.Printf("child COW-faulted at %#x, %d frames left\n", heap, buddy.Avail())

	if !parent.CanAccess(heap, mem.PGSIZE, true) {
		log.Fatal("parent should still be able to write its own heap page")
	}

	if *pprofOut != "" {
		f, err := os.Create(*pprofOut)
		if err != nil {
			log.Fatal(err)
		}
		if err := diag.Write(f, parent); err != nil {
			f.Close()
			log.Fatal(err)
		}
		f.Close()
		fmt.Printf("wrote pprof snapshot to %s\n", *pprofOut)
	}

	child.Destroy()
	parent.Destroy()
	fmt.Printf("destroyed both spaces, %d frames left\n", buddy.Avail())
}
