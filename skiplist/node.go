// Package skiplist is a lock-free, ordered map keyed by uint64,
// built on top of package epoch for memory reclamation. It adapts
// osi_cas_skip_adt.c's CAS-linked skip list: the same search,
// insert, remove and traversal algorithms, re-expressed over Go
// pointers instead of raw marked-bit pointers (see node.go's doc
// comment on link for why).
package skiplist

import "sync/atomic"

// levelMask and readyForFree split a node's level word the same way
// the C original packs level (1..NUM_LEVELS) and a "someone already
// tried to delete me before I finished inserting" flag into one int,
// so both can be read and CAS'd together without a separate lock.
const (
	levelMask    = 0x0ff
	readyForFree = 0x100
)

// link is a node's forward pointer at one level, plus the deletion
// tombstone the C original steals from the pointer's low bit. Go's
// garbage collector requires every live reference to be a real,
// correctly-typed pointer — stealing a bit from a *node would make it
// an invalid pointer the instant the bit is set — so the tombstone
// lives next to the pointer in a small boxed value instead, swapped in
// as a unit with one atomic.Pointer CAS. This costs one extra
// allocation per mark/swing, in exchange for never needing unsafe
// pointer arithmetic on a GC-managed reference.
type link[V any] struct {
	to     *node[V]
	marked bool
}

// node is one skip-list entry. level is packed (see levelMask /
// readyForFree above); key is immutable once published; value is nil
// exactly when the node is logically deleted; next holds one link per
// level, index 0 being the bottom (densest) level.
type node[V any] struct {
	level atomic.Uint32
	key   uint64
	value atomic.Pointer[V]
	next  []atomic.Pointer[link[V]]
}

func (n *node[V]) heightAndFlags() (height int, ready bool) {
	w := n.level.Load()
	return int(w & levelMask), w&readyForFree != 0
}

func (n *node[V]) height() int {
	h, _ := n.heightAndFlags()
	return h
}

// checkForFullDelete sets the readyForFree bit if it is not already
// set, returning whether it was already set (by this call or an
// earlier one) — i.e. whether full deletion is already somebody's
// responsibility. It corresponds to check_for_full_delete.
func (n *node[V]) checkForFullDelete() bool {
	for {
		old := n.level.Load()
		if old&readyForFree != 0 {
			return true
		}
		if n.level.CompareAndSwap(old, old|readyForFree) {
			return false
		}
	}
}

func newLink[V any](to *node[V]) *link[V] {
	return &link[V]{to: to}
}

func (n *node[V]) loadNext(i int) *link[V] {
	return n.next[i].Load()
}

// markNext sets the tombstone on level i's forward pointer, looping
// until it succeeds or finds it already set. It corresponds to the
// inner loop of mark_deleted.
func (n *node[V]) markNext(i int) {
	for {
		l := n.next[i].Load()
		if l.marked {
			return
		}
		if n.next[i].CompareAndSwap(l, &link[V]{to: l.to, marked: true}) {
			return
		}
	}
}

// swingNext attempts to CAS level i's forward pointer from (from,
// unmarked) to (to, unmarked), the predecessor-repair step both
// strong_search_predecessors and the remover's unlink loop perform.
func (n *node[V]) swingNext(i int, from, to *node[V]) (ok bool, observed *link[V]) {
	old := n.next[i].Load()
	if old.to != from || old.marked {
		return false, old
	}
	return n.next[i].CompareAndSwap(old, &link[V]{to: to}), old
}
