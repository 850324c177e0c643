package epoch

import "unsafe"

// Alloc returns a block from size class id's local allocation list,
// refilling it from the shared allocation chain when exhausted. It
// corresponds to gc_alloc.
func (h *Handle) Alloc(id int) unsafe.Pointer {
	h.ensureSizeClassColumns(sizeClassID(id))

	ch := h.allocList[id]
	if ch == nil || ch.i == 0 {
		sc := h.g.sizeClassAt(sizeClassID(id))
		if ch == nil {
			ch = h.g.getAllocChunk(sc)
			h.allocList[id] = ch
		} else {
			cnt := h.allocChunks[id]
			h.allocChunks[id] = cnt + 1
			if cnt == 100 {
				h.allocChunks[id] = 0
				addChunksToList(ch, h.g.freeChunks)
				ch = h.g.getAllocChunk(sc)
			} else {
				och := ch
				ch = h.g.getAllocChunk(sc)
				ch.next.Store(och.next.Load())
				och.next.Store(ch)
			}
			h.allocList[id] = ch
		}
	}

	ch.i--
	blk := ch.blk[ch.i]

	if h.g.cfg.Profile {
		h.g.allocations.Add(1)
		h.g.totalSize.Add(uint64(h.g.sizeClassAt(sizeClassID(id)).blkSize))
	}

	return blk
}

// getAllocChunk implements get_alloc_chunk: detach one chunk from size
// class sc's shared allocation chain, refilling that chain (growing
// its refill size by an eighth, rounded down, same as
// ADD_TO(alloc_size[i], ...) in the C original) whenever it runs dry.
func (g *Global) getAllocChunk(sc *sizeClass) *chunk {
	allocHd := sc.allocHd
	for {
		p := allocHd.next.Load()
		for p == allocHd {
			grow := sc.allocLen.Load()
			if grow == 0 {
				grow = 1
			}
			filled := sc.fill(g, int(grow))
			sc.allocLen.Add(grow >> 3)
			addChunksToList(filled, allocHd)
			p = allocHd.next.Load()
		}
		next := p.next.Load()
		if allocHd.next.CompareAndSwap(p, next) {
			p.next.Store(p)
			return p
		}
	}
}

// Free retires a pointer into size class id's garbage list for the
// handle's current epoch, where it sits until the reclaimer proves no
// other handle can still observe it. It corresponds to gc_free.
func (h *Handle) Free(ptr unsafe.Pointer, id int) {
	h.ensureSizeClassColumns(sizeClassID(id))

	e := h.epoch
	ch := h.garbageHead[e][id]
	switch {
	case ch == nil:
		ch = h.chunkFromCache()
		h.garbageHead[e][id] = ch
		h.garbageTail[e][id] = ch
	case ch.i == h.g.cfg.BlksPerChunk:
		prev := h.garbageTail[e][id]
		nw := h.chunkFromCache()
		h.garbageHead[e][id] = nw
		nw.next.Store(ch)
		prev.next.Store(nw)
		ch = nw
	}

	ch.blk[ch.i] = ptr
	ch.i++
}

// UnsafeFree returns ptr directly to the local allocation list when
// there is room, skipping the epoch-delay Free would impose. It is
// only safe when the caller can prove no other handle retains a
// reference to ptr — e.g. it was allocated and freed within the same
// critical section without ever being published. It corresponds to
// gc_unsafe_free.
func (h *Handle) UnsafeFree(ptr unsafe.Pointer, id int) {
	h.ensureSizeClassColumns(sizeClassID(id))

	ch := h.allocList[id]
	if ch != nil && ch.i < h.g.cfg.BlksPerChunk {
		ch.blk[ch.i] = ptr
		ch.i++
		return
	}
	h.Free(ptr, id)
}

// AddPtrToHook records ptr against hook id for the handle's current
// epoch; once that epoch is retired, the hook registered under id runs
// once against ptr. It corresponds to gc_add_ptr_to_hook_list.
func (h *Handle) AddPtrToHook(ptr unsafe.Pointer, id int) {
	h.ensureHookColumns(hookID(id))

	e := h.epoch
	ch := h.hookHead[e][id]
	if ch == nil {
		ch = h.chunkFromCache()
		h.hookHead[e][id] = ch
	} else {
		ch = ch.next.Load()
		if ch.i == h.g.cfg.BlksPerChunk {
			och := h.hookHead[e][id]
			ch = h.chunkFromCache()
			ch.next.Store(och.next.Load())
			och.next.Store(ch)
		}
	}

	ch.blk[ch.i] = ptr
	ch.i++
}

// chunkFromCache detaches one chunk from the handle's private 100-deep
// cache of empty chunks, refilling the cache from the shared free pool
// whenever it runs dry. Keeping this cache per-handle is what lets
// Free and AddPtrToHook avoid touching any shared list on the common
// path. It corresponds to chunk_from_cache.
func (h *Handle) chunkFromCache() *chunk {
	if h.chunkCache == nil {
		h.chunkCache = getEmptyChunks(h.g.freeChunks, 100, h.g.refillFreeChunks)
	}

	ch := h.chunkCache
	p := ch.next.Load()
	if ch == p {
		h.chunkCache = getEmptyChunks(h.g.freeChunks, 100, h.g.refillFreeChunks)
	} else {
		ch.next.Store(p.next.Load())
		p.next.Store(p)
	}
	p.i = 0
	return p
}
