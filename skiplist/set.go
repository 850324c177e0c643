package skiplist

import (
	"sync/atomic"
	"unsafe"

	"github.com/lockfree-go/epochset/epoch"
)

// Set is an ordered map keyed by uint64, safe for any number of
// goroutines to read and write concurrently through their own
// *epoch.Handle. It corresponds to the osi_cas_skip_adt.c set_st,
// minus the per-level allocator array (see New's doc comment) and
// with head/tail sentinels carrying epoch.KeyReservedMin and
// epoch.KeyReservedMax instead of
// the C original's SENTINEL_KEYMIN/SENTINEL_KEYMAX.
type Set[V any] struct {
	g           *epoch.Global
	sizeClassID int
	numLevels   int
	head, tail  *node[V]
}

// New builds an empty Set against g, registering a size class for its
// node type. The C original gives each of NUM_LEVELS node heights its
// own allocator, to avoid a second allocation for the forward-pointer
// array (a flexible array member sized to the drawn level); a Go
// node's next field is already a slice with its own backing array, so
// one typed size class serves every height.
func New[V any](g *epoch.Global) *Set[V] {
	numLevels := g.Config().NumLevels
	s := &Set[V]{g: g, numLevels: numLevels}
	s.sizeClassID = g.RegisterTypedSizeClass(func() unsafe.Pointer {
		return unsafe.Pointer(&node[V]{})
	}, "skiplist.node")

	s.tail = &node[V]{key: epoch.KeyReservedMax}
	s.tail.level.Store(uint32(numLevels))
	s.tail.next = make([]atomic.Pointer[link[V]], numLevels)
	for i := range s.tail.next {
		s.tail.next[i].Store(newLink[V](s.tail))
	}

	s.head = &node[V]{key: epoch.KeyReservedMin}
	s.head.level.Store(uint32(numLevels))
	s.head.next = make([]atomic.Pointer[link[V]], numLevels)
	for i := range s.head.next {
		s.head.next[i].Store(newLink[V](s.tail))
	}

	return s
}

// allocNode draws a level from h's private random source and returns
// a fresh node carrying value, ready to be linked in. It corresponds
// to alloc_node.
func (s *Set[V]) allocNode(h *epoch.Handle, key uint64, value V) *node[V] {
	level := randomLevel(h.Rand(), s.numLevels)

	n := (*node[V])(h.Alloc(s.sizeClassID))
	n.level.Store(uint32(level))
	n.key = key
	v := value
	n.value.Store(&v)
	n.next = make([]atomic.Pointer[link[V]], level)
	return n
}

// freeNode retires n through h, corresponding to free_node. The
// reclamation core holds n until no handle can still be mid-traversal
// through it.
func (s *Set[V]) freeNode(h *epoch.Handle, n *node[V]) {
	h.Free(unsafe.Pointer(n), s.sizeClassID)
}

// markDeleted sets the tombstone on every level n participates in, so
// searches know to route around it. It corresponds to mark_deleted.
func (s *Set[V]) markDeleted(n *node[V]) {
	for i := n.height() - 1; i >= 0; i-- {
		n.markNext(i)
	}
}

// doFullDelete physically unlinks n from every level via a strong
// search (which repairs predecessor pointers past n as a side effect)
// and retires it. It corresponds to do_full_delete.
func (s *Set[V]) doFullDelete(h *epoch.Handle, n *node[V]) {
	s.strongSearchPredecessors(n.key, nil, nil)
	s.freeNode(h, n)
}

// Update inserts key/value if key is absent, or — when overwrite is
// true — replaces the existing value. It returns the value key
// previously mapped to, or nil if key was absent. Callers must invoke
// it inside h.Critical (or an equivalent Enter/Exit pair). It
// corresponds to osi_cas_skip_update_critical, including its handling
// of a concurrent Remove racing to fully delete the very node Update
// is still linking into the upper levels: each side calls
// checkForFullDelete on the shared node, and whichever call finds the
// readyForFree bit unset claims the physical unlink for itself, so
// exactly one of them ever calls doFullDelete.
func (s *Set[V]) Update(h *epoch.Handle, key uint64, value V, overwrite bool) (prev *V) {
	epoch.AssertValidKey(key)

	newNode := s.allocNode(h, key, value)
	level := newNode.height()

	preds := make([]*node[V], s.numLevels)
	succs := make([]*node[V], s.numLevels)

	for {
		succ := s.weakSearchPredecessors(key, preds, succs)
		if succ != s.tail && succ.key == key {
			old := succ.value.Load()
			if old == nil {
				// succ is being concurrently removed; treat as absent
				// and retry the search once it clears.
				continue
			}
			if !overwrite {
				s.freeNode(h, newNode)
				return old
			}
			v := value
			if succ.value.CompareAndSwap(old, &v) {
				s.freeNode(h, newNode)
				return old
			}
			continue
		}

		for i := 0; i < level; i++ {
			newNode.next[i].Store(newLink(succs[i]))
		}

		if ok, _ := preds[0].swingNext(0, succs[0], newNode); ok {
			break
		}
	}

	// Insert at each of the other levels in turn. newNode is already
	// reachable at level 0, so a concurrent Remove can find and start
	// deleting it at any point from here on; every iteration re-checks
	// for that before touching shared state.
	i := 1
levels:
	for i < level {
		pred, succ := preds[i], succs[i]

		// Someone can delete newNode out from under us.
		newNext := newNode.loadNext(i)
		if newNext.marked {
			break levels
		}

		// Ensure newNode's forward pointer at this level is up to date.
		if newNext.to != succ {
			if !newNode.next[i].CompareAndSwap(newNext, newLink(succ)) {
				// Only a concurrent markNext touches this pointer
				// besides us; re-read and re-evaluate this level.
				continue
			}
		}

		// Ensure we have unique key values at every level.
		if succ != s.tail && succ.key == key {
			s.strongSearchPredecessors(key, preds, succs)
			continue
		}

		// Replumb the predecessor's forward pointer.
		if ok, _ := pred.swingNext(i, succ, newNode); !ok {
			s.strongSearchPredecessors(key, preds, succs)
			continue
		}

		// Succeeded at this level.
		i++
	}

	// Ensure node is visible at all levels before punting deletion:
	// whichever of Update or a concurrent Remove calls
	// checkForFullDelete first claims the physical unlink.
	if !newNode.checkForFullDelete() {
		s.doFullDelete(h, newNode)
	}

	return nil
}

// Lookup returns the value mapped to key, if any. Callers must invoke
// it inside h.Critical. It corresponds to osi_cas_skip_lookup_critical.
func (s *Set[V]) Lookup(h *epoch.Handle, key uint64) (value *V, ok bool) {
	epoch.AssertValidKey(key)

	succ := s.weakSearchPredecessors(key, nil, nil)
	if succ == s.tail || succ.key != key {
		return nil, false
	}
	v := succ.value.Load()
	if v == nil {
		return nil, false
	}
	return v, true
}

// Remove deletes key if present, returning the value it mapped to, or
// nil if key was absent. The value CAS to nil is the linearization
// point; physical unlinking may complete after Remove returns, once no
// handle is still mid-traversal through the node. It corresponds to
// osi_cas_skip_remove_critical.
func (s *Set[V]) Remove(h *epoch.Handle, key uint64) (prev *V) {
	epoch.AssertValidKey(key)

	x := s.weakSearchPredecessors(key, nil, nil)
	if x == s.tail || x.key != key {
		return nil
	}

	var old *V
	for {
		old = x.value.Load()
		if old == nil {
			return nil
		}
		if x.value.CompareAndSwap(old, nil) {
			break
		}
	}

	s.markDeleted(x)

	if !x.checkForFullDelete() {
		s.doFullDelete(h, x)
	}

	return old
}

// ForEach visits every live key/value pair in ascending key order.
// Callers must invoke it inside h.Critical. A visitor may safely call
// Remove on the key it was just given: markNext preserves a marked
// link's destination, and the node itself stays pinned by the
// enclosing critical section, so the traversal is unaffected by a
// deletion the visitor triggers on the node it is currently visiting.
// It corresponds to osi_cas_skip_for_each_critical.
func (s *Set[V]) ForEach(h *epoch.Handle, visitor func(key uint64, value *V)) {
	for x := s.head.loadNext(0).to; x != s.tail; x = x.loadNext(0).to {
		if v := x.value.Load(); v != nil {
			visitor(x.key, v)
		}
	}
}
