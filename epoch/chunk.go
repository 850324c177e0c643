package epoch

import (
	"sync/atomic"
	"unsafe"
)

// chunk batches up to blksPerChunk pointers behind a single atomic
// link, the same batching gc.c uses so that splicing a whole run of
// chunks onto a free list costs one CAS no matter how many individual
// pointers it carries. Depending on which list a chunk currently lives
// on, i and blk mean different things: on a garbage or hook list, blk
// holds i retired pointers waiting on a generation to pass; on an
// allocation list, blk holds up to blksPerChunk slots and i is how many
// of those remain to be handed out (Alloc takes blk[i-1]).
type chunk struct {
	next atomic.Pointer[chunk]
	i    int
	blk  []unsafe.Pointer
}

func newChunk(blksPerChunk int) *chunk {
	return &chunk{blk: make([]unsafe.Pointer, blksPerChunk)}
}

// newSentinel returns a chunk looped onto itself, used as the
// permanent, never-removed head of every free/alloc list this package
// keeps. A sentinel carries no payload of its own; it only ever
// appears as the head argument to addChunksToList and getEmptyChunks.
func newSentinel() *chunk {
	s := &chunk{}
	s.next.Store(s)
	return s
}

// newChunkRing allocates n chunks linked into their own circle,
// mirroring alloc_more_chunks: a caller wanting to grow a shared list
// builds a private ring first, then splices the whole thing on with a
// single addChunksToList call.
func newChunkRing(n, blksPerChunk int) *chunk {
	if n <= 0 {
		return nil
	}
	head := newChunk(blksPerChunk)
	p := head
	for i := 1; i < n; i++ {
		next := newChunk(blksPerChunk)
		p.next.Store(next)
		p = next
	}
	p.next.Store(head)
	return head
}

// addChunksToList splices the circular chain rooted at ch onto head's
// list, immediately after head, in one CAS regardless of how many
// chunks ch's ring holds. head must already be a member of a circular
// list — in practice always a newSentinel, never a bare chunk.
func addChunksToList(ch, head *chunk) {
	chNext := ch.next.Load()
	for {
		hNext := head.next.Load()
		ch.next.Store(hNext)
		if head.next.CompareAndSwap(hNext, chNext) {
			return
		}
	}
}

// getEmptyChunks detaches a chain of exactly n chunks from head's
// list and returns it closed into its own circle, growing the shared
// list via refill whenever fewer than n chunks are currently on it.
// The pointers inside the returned chunks are garbage until the
// caller fills them in.
func getEmptyChunks(head *chunk, n int, refill func() *chunk) *chunk {
	for {
		rh := head.next.Load()
		rt := head
		ranOut := false
		for i := 0; i < n; i++ {
			rt = rt.next.Load()
			if rt == head {
				ranOut = true
				break
			}
		}
		if ranOut {
			addChunksToList(refill(), head)
			continue
		}
		if head.next.CompareAndSwap(rh, rt.next.Load()) {
			rt.next.Store(rh)
			return rh
		}
	}
}

// getFilledChunks detaches n empty chunks from head's list and fills
// every slot in every chunk with a pointer into a freshly allocated,
// size-class-sized backing array. The backing array is never freed
// individually; Go's garbage collector keeps it alive for as long as
// any blk entry derived from it is reachable, and reclaims it as a
// whole once the last such entry is dropped.
//
// This is only sound for payload types with no pointer or interface
// fields: a []byte backing array is not scanned field-by-field by the
// garbage collector, so a slot carved out of it cannot itself contain
// a live Go pointer. Size classes registered for pointer-bearing types
// (the skip-list node, for instance) use getFilledChunksTyped instead.
func getFilledChunks(head *chunk, n, blksPerChunk, sz int, refill func() *chunk) *chunk {
	backing := make([]byte, n*blksPerChunk*sz)
	return getFilledChunksTyped(head, n, blksPerChunk, func() unsafe.Pointer {
		p := unsafe.Pointer(&backing[0])
		backing = backing[sz:]
		return p
	}, refill)
}

// getFilledChunksTyped is getFilledChunks generalized over how each
// slot's backing memory is produced: newBlock is called once per slot,
// and its result is stored as-is. A newBlock that returns
// unsafe.Pointer(new(T)) for some pointer-bearing T is sound because
// unsafe.Pointer-typed storage — including a blk slice element — is
// itself scanned and kept alive by the garbage collector, unlike a
// uintptr or an offset into a []byte.
func getFilledChunksTyped(head *chunk, n, blksPerChunk int, newBlock func() unsafe.Pointer, refill func() *chunk) *chunk {
	h := getEmptyChunks(head, n, refill)
	p := h
	for {
		p.i = blksPerChunk
		for j := 0; j < blksPerChunk; j++ {
			p.blk[j] = newBlock()
		}
		p = p.next.Load()
		if p == h {
			break
		}
	}
	return h
}
