package epoch

import (
	"unsafe"

	"github.com/lockfree-go/epochset/platform"
)

// reclaim is gc_reclaim: a single attempt to retire the oldest
// generation's garbage and advance the epoch. Any Handle may trigger
// one opportunistically from Enter; at most one runs at a time, and a
// losing caller simply returns rather than waiting, matching the C
// original's non-blocking inreclaim guard.
func (g *Global) reclaim() {
	if !g.inReclaim.CompareAndSwap(false, true) {
		g.diag.contention("reclaim")
		return
	}
	defer g.inReclaim.Store(false)

	curr := g.epoch()

	nrEpochs := uint32(g.cfg.NrEpochs())
	twoAgo := (curr + 2) % nrEpochs
	threeAgo := (curr + 1) % nrEpochs

	// A handle only ever occupies the slot matching the epoch it last
	// observed in Enter; one still sitting in curr's slot is doing
	// brand-new work under the live epoch and never blocks reclaim.
	// What would make reclaiming twoAgo/threeAgo's garbage unsafe is a
	// handle stuck behind, still occupying any slot other than curr's
	// because it entered before the epoch last advanced and hasn't
	// re-entered since (with three generations those are exactly the
	// twoAgo and threeAgo slots). Checking curr here, as the C
	// original's thread scan does not, would have reclaim stall for as
	// long as any handle is merely busy under the current epoch —
	// which under sustained load is close to "never" — rather than
	// only when a straggler is actually lagging.
	for e := uint32(0); e < nrEpochs; e++ {
		if e != curr && !g.tracker.Quiescent(e) {
			return
		}
	}

	g.handlesMu.Lock()
	handles := append([]*Handle(nil), g.handles...)
	g.handlesMu.Unlock()

	nSizes := g.sizeClassCount()
	nHooks := g.hookCount()

	poisoned := false
	for _, h := range handles {
		h.ensureSizeClassColumns(sizeClassID(nSizes - 1))
		h.ensureHookColumns(hookID(nHooks - 1))

		for i := 0; i < nSizes; i++ {
			sc := g.sizeClassAt(sizeClassID(i))

			// Byte-level poisoning only makes sense for byte-backed
			// (pointer-free) size classes: a typed size class's blocks
			// are live *T values reused by reference, not memory that
			// gets handed back to a raw allocator, and sc.blkSize for
			// them is a placeholder word count, not T's real size.
			if g.cfg.WeakOrder && sc.newBlock == nil {
				poisonRing(h.garbageHead[twoAgo][i], sc.blkSize)
				poisoned = true
			}

			returned := h.returnGarbage(threeAgo, i, sc.allocHd)
			g.diag.chunksReturned(i, sc.tag, returned)
		}

		for i := 0; i < nHooks; i++ {
			fn := g.hookAt(hookID(i))
			delivered := h.deliverHooks(threeAgo, i, fn, g.freeChunks)
			g.diag.hookDelivered(i, delivered)
		}
	}

	if poisoned {
		// Force every CPU to observe the poisoning writes above before
		// the chunks they live in become eligible for reuse below,
		// mirroring gc_async_barrier's placement in gc_reclaim's
		// WEAK_MEM_ORDER branch.
		platform.AsyncBarrier()
		platform.WriteFence()
	}

	next := (curr + 1) % nrEpochs
	g.current.Store(next)
	g.tracker.Advance(next)
	g.diag.reclaimAdvanced(curr, next, int(threeAgo))
}

// returnGarbage implements gc_reclaim's three-epoch-old handling for
// one (epoch, size class) cell: every chunk but the most recently
// allocated one (which may still be partially filled) is spliced onto
// the size class's shared allocation list. It returns how many chunks
// moved, for diagnostics only.
func (h *Handle) returnGarbage(epoch uint32, id int, allocHd *chunk) int {
	t := h.garbageHead[epoch][id]
	if t == nil {
		return 0
	}
	ch := t.next.Load()
	if ch == t {
		return 0
	}

	tail := h.garbageTail[epoch][id]
	n := ringLen(ch, tail)

	tail.next.Store(ch)
	h.garbageTail[epoch][id] = t
	t.next.Store(t)

	addChunksToList(ch, allocHd)
	return n
}

// deliverHooks implements gc_reclaim's hook-invocation pass: run fn
// once per retired pointer recorded against hook id in epoch, then
// return the whole chunk chain to the shared free-chunk pool. Unlike
// garbage lists, a hook list is reset to empty every pass — nothing is
// ever left behind, since hook chunks carry no allocation obligation.
func (h *Handle) deliverHooks(epoch uint32, id int, fn HookFunc, freeChunks *chunk) int {
	ch := h.hookHead[epoch][id]
	if ch == nil {
		return 0
	}
	h.hookHead[epoch][id] = nil

	n := 0
	if fn != nil {
		t := ch
		for {
			for j := 0; j < t.i; j++ {
				fn(t.blk[j])
				n++
			}
			next := t.next.Load()
			if next == ch {
				break
			}
			t = next
		}
	}

	addChunksToList(ch, freeChunks)
	return n
}

// poisonRing overwrites every retired pointer's backing bytes with
// zero, under Config.WeakOrder: a later read through a reference a
// caller should have already dropped reads zeros instead of silently
// "working" by accident, turning a use-after-generation bug into a
// visible one during testing.
func poisonRing(head *chunk, blkSize int) {
	if head == nil {
		return
	}
	ch := head
	for {
		for j := 0; j < ch.i; j++ {
			mem := unsafe.Slice((*byte)(ch.blk[j]), blkSize)
			clear(mem)
		}
		next := ch.next.Load()
		if next == head {
			return
		}
		ch = next
	}
}

// ringLen counts the chunks from head up to and including tail in a
// circular chain, used only to size a diagnostic log line.
func ringLen(head, tail *chunk) int {
	n := 1
	for p := head; p != tail; {
		p = p.next.Load()
		n++
	}
	return n
}
