// Package ordmap implements the generic ordered-map data structure the
// design lists as an external collaborator: insert, delete, ordered
// descent and in-order iteration. Keys are ordered by the cmp.Ordered
// constraint; callers do not supply a comparator. The teacher's hashtable package
// (biscuit/src/hashtable) shows the house style for this kind of
// capability type — Go generics instead of interface{} boxing, a small
// exported _t type, one operation per method — but hashtable itself
// indexes by hash, which cannot answer the best-fit/floor descents the
// free-tree and used-tree need. This package is therefore a binary
// search tree ordered by key, not a hash table.
//
// The tree is intentionally unbalanced: the original mem_space.c builds
// on an avl_tree_t but never shows rebalancing logic in the retrieved
// excerpt, and the vm package's access patterns (a handful of gaps and
// regions per address space, not a database-sized key set) do not need
// guaranteed O(log n) depth to meet the design's testable properties.
package ordmap

import "cmp"

// Node is one tree node. Fields are exported so the tree's shape can be
// inspected directly; the vm package's find_gap/find_region lookups
// (spec.md §4.2/§4.5) go through Ceil and Floor rather than walking
// Left/Right themselves.
type Node[K cmp.Ordered, V any] struct {
	Key         K
	Value       V
	Left, Right *Node[K, V]
	seq         uint64
}

// Tree is an ordered map keyed by K, allowing duplicate keys (broken by
// insertion order, a stable stand-in for the "tie break by pointer
// identity" invariant of the design's data model).
type Tree[K cmp.Ordered, V any] struct {
	Root  *Node[K, V]
	count int
	next  uint64
}

// Len reports the number of entries in the tree.
func (t *Tree[K, V]) Len() int { return t.count }

// Insert adds a key/value pair and returns the node created for it. The
// returned node is a stable handle: callers (vm.Space) keep it to call
// Delete later without repeating a key-only search that could find the
// wrong node among duplicates.
func (t *Tree[K, V]) Insert(key K, value V) *Node[K, V] {
	n := &Node[K, V]{Key: key, Value: value, seq: t.next}
	t.next++
	t.count++

	if t.Root == nil {
		t.Root = n
		return n
	}
	cur := t.Root
	for {
		if less(key, n.seq, cur.Key, cur.seq) {
			if cur.Left == nil {
				cur.Left = n
				return n
			}
			cur = cur.Left
		} else {
			if cur.Right == nil {
				cur.Right = n
				return n
			}
			cur = cur.Right
		}
	}
}

func less[K cmp.Ordered](k1 K, seq1 uint64, k2 K, seq2 uint64) bool {
	if k1 != k2 {
		return k1 < k2
	}
	return seq1 < seq2
}

// Delete removes a specific node (by identity, not just by key, since
// keys may repeat) from the tree. It panics if n does not belong to t,
// matching the design's "no recoverable internal errors" stance on
// structural corruption (spec.md §7).
func (t *Tree[K, V]) Delete(n *Node[K, V]) {
	var parent *Node[K, V]
	cur := t.Root
	for cur != nil {
		if cur == n {
			break
		}
		parent = cur
		if less(n.Key, n.seq, cur.Key, cur.seq) {
			cur = cur.Left
		} else {
			cur = cur.Right
		}
	}
	if cur == nil {
		panic("ordmap: delete of node not present in tree")
	}
	t.deleteNode(parent, cur)
	t.count--
}

func (t *Tree[K, V]) deleteNode(parent, n *Node[K, V]) {
	replace := func(old, new *Node[K, V]) {
		switch {
		case parent == nil:
			t.Root = new
		case parent.Left == old:
			parent.Left = new
		default:
			parent.Right = new
		}
	}

	switch {
	case n.Left == nil:
		replace(n, n.Right)
	case n.Right == nil:
		replace(n, n.Left)
	default:
		// In-order successor: leftmost node of the right subtree.
		succParent := n
		succ := n.Right
		for succ.Left != nil {
			succParent = succ
			succ = succ.Left
		}
		if succParent != n {
			succParent.Left = succ.Right
			succ.Right = n.Right
		}
		succ.Left = n.Left
		replace(n, succ)
	}
}

// Floor returns the node with the greatest key <= key, or ok=false if no
// such node exists. Used for the used-tree's "find the region, if any,
// that might contain this address" lookup (spec.md §4.5): the region
// with the greatest Begin <= the fault address is the only candidate,
// and the caller still must check containment against Pages.
func (t *Tree[K, V]) Floor(key K) (*Node[K, V], bool) {
	var best *Node[K, V]
	cur := t.Root
	for cur != nil {
		if cur.Key <= key {
			best = cur
			cur = cur.Right
		} else {
			cur = cur.Left
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Ceil returns the node with the smallest key >= key, or ok=false if no
// such node exists. This is the best-fit descent of spec.md §4.2's
// find_gap: "go left if the left subtree contains a gap large enough;
// otherwise if the current node is large enough, pick it; otherwise go
// right" is exactly the standard order-statistic ceiling search below,
// once restated without the original C source's child-only comparisons
// (which never test the current node against the target and so do not
// implement that prose correctly; the restatement in spec.md is what
// this method follows).
func (t *Tree[K, V]) Ceil(key K) (*Node[K, V], bool) {
	var best *Node[K, V]
	cur := t.Root
	for cur != nil {
		switch {
		case cur.Key == key:
			return cur, true
		case cur.Key < key:
			cur = cur.Right
		default:
			best = cur
			cur = cur.Left
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Each visits every node in ascending key order.
func (t *Tree[K, V]) Each(f func(*Node[K, V])) {
	var walk func(*Node[K, V])
	walk = func(n *Node[K, V]) {
		if n == nil {
			return
		}
		walk(n.Left)
		f(n)
		walk(n.Right)
	}
	walk(t.Root)
}
