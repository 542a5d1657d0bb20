package mem

import "testing"

func TestBuddyAllocZeroed(t *testing.T) {
	b, err := NewBuddyAllocator(4)
	if err != nil {
		t.Fatalf("NewBuddyAllocator: %v", err)
	}
	defer b.Close()

	page := b.Bytes(mustAlloc(t, b))
	for i, v := range page {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, v)
		}
	}
	for i := range page {
		page[i] = 0xff
	}
}

func TestBuddyAllocZeroedOnReuse(t *testing.T) {
	b, err := NewBuddyAllocator(1)
	if err != nil {
		t.Fatalf("NewBuddyAllocator: %v", err)
	}
	defer b.Close()

	f := mustAlloc(t, b)
	page := b.Bytes(f)
	for i := range page {
		page[i] = 0x42
	}
	b.Free(f)

	f2, ok := b.AllocZero()
	if !ok {
		t.Fatal("expected reuse to succeed")
	}
	for i, v := range b.Bytes(f2) {
		if v != 0 {
			t.Fatalf("byte %d not zeroed on reuse: %#x", i, v)
		}
	}
}

func TestBuddyExhaustion(t *testing.T) {
	b, err := NewBuddyAllocator(2)
	if err != nil {
		t.Fatalf("NewBuddyAllocator: %v", err)
	}
	defer b.Close()

	mustAlloc(t, b)
	mustAlloc(t, b)
	if _, ok := b.AllocZero(); ok {
		t.Fatal("expected allocator to be exhausted")
	}
	if got := b.Avail(); got != 0 {
		t.Fatalf("Avail() = %d, want 0", got)
	}
}

func TestBuddyFreeReplenishesAvail(t *testing.T) {
	b, err := NewBuddyAllocator(1)
	if err != nil {
		t.Fatalf("NewBuddyAllocator: %v", err)
	}
	defer b.Close()

	f := mustAlloc(t, b)
	if got := b.Avail(); got != 0 {
		t.Fatalf("Avail() = %d, want 0", got)
	}
	b.Free(f)
	if got := b.Avail(); got != 1 {
		t.Fatalf("Avail() = %d, want 1", got)
	}
}

func TestBuddyCopyPage(t *testing.T) {
	b, err := NewBuddyAllocator(2)
	if err != nil {
		t.Fatalf("NewBuddyAllocator: %v", err)
	}
	defer b.Close()

	src := mustAlloc(t, b)
	dst := mustAlloc(t, b)
	for i, p := 0, b.Bytes(src); i < len(p); i++ {
		p[i] = byte(i)
	}

	b.CopyPage(dst, src)

	sp, dp := b.Bytes(src), b.Bytes(dst)
	for i := range sp {
		if dp[i] != sp[i] {
			t.Fatalf("byte %d: dst=%#x src=%#x", i, dp[i], sp[i])
		}
	}
	dp[0] = 0xaa
	if sp[0] == 0xaa {
		t.Fatal("CopyPage should not alias src and dst")
	}
}

func mustAlloc(t *testing.T, b *BuddyAllocator_t) Frame {
	t.Helper()
	f, ok := b.AllocZero()
	if !ok {
		t.Fatal("AllocZero: unexpected exhaustion")
	}
	return f
}
