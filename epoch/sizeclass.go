package epoch

import (
	"sync/atomic"
	"unsafe"
)

// sizeClass is one registered allocator: gc_add_allocator's blk_sizes/
// tags/alloc/alloc_size quartet, collapsed into a single struct. id is
// the index this size class was assigned at registration and never
// changes afterward, so handles can address it with a plain int.
//
// newBlock is nil for a byte-backed size class (blkSize bytes carved
// out of a shared backing array — sound only for payloads with no
// pointer or interface fields) and non-nil for a typed size class
// (one newBlock() call per slot, see getFilledChunksTyped).
type sizeClass struct {
	id       int
	blkSize  int
	tag      string
	newBlock func() unsafe.Pointer
	allocHd  *chunk // sentinel head of the shared allocation list
	allocLen atomic.Uint32
}

// sizeClassID identifies a registered size class by position; Global
// keeps sizeClasses as an append-only slice guarded by sizeClassesMu,
// so any sizeClassID handed out remains valid for the Global's whole
// lifetime.
type sizeClassID int

// registerSizeClass implements gc_add_allocator: allocate a fresh slot
// below MaxSizes, seed its shared allocation list with
// AllocChunksPerList filled chunks, and hand the caller back a stable
// id. It panics with a FatalError if MaxSizes is already exhausted,
// matching the C original's "MAX_SIZES exceeded" abort — this is a
// configuration mistake discovered at startup, not a runtime condition
// a caller can recover from mid-operation.
func (g *Global) registerSizeClass(blkSize int, tag string) sizeClassID {
	return g.addSizeClass(blkSize, nil, tag)
}

// registerTypedSizeClass is registerSizeClass for a payload type that
// carries its own pointer or interface fields (the skip-list node,
// notably): each slot is produced by calling newBlock, instead of
// slicing a shared byte-backing array.
func (g *Global) registerTypedSizeClass(newBlock func() unsafe.Pointer, tag string) sizeClassID {
	return g.addSizeClass(int(unsafe.Sizeof(uintptr(0))), newBlock, tag)
}

func (g *Global) addSizeClass(blkSize int, newBlock func() unsafe.Pointer, tag string) sizeClassID {
	g.sizeClassesMu.Lock()
	defer g.sizeClassesMu.Unlock()

	if len(g.sizeClasses) >= g.cfg.MaxSizes {
		g.fatalf("registerSizeClass", "MaxSizes (%d) exceeded registering %q", g.cfg.MaxSizes, tag)
	}

	id := len(g.sizeClasses)
	sc := &sizeClass{
		id:       id,
		blkSize:  blkSize,
		tag:      tag,
		newBlock: newBlock,
		allocHd:  newSentinel(),
	}

	n := g.cfg.AllocChunksPerList
	filled := sc.fill(g, n)
	addChunksToList(filled, sc.allocHd)
	sc.allocLen.Store(uint32(n))

	g.sizeClasses = append(g.sizeClasses, sc)
	return sizeClassID(id)
}

// fill produces n freshly-filled chunks for this size class, routing
// to the byte-backed or typed path as appropriate.
func (sc *sizeClass) fill(g *Global, n int) *chunk {
	if sc.newBlock != nil {
		return getFilledChunksTyped(g.freeChunks, n, g.cfg.BlksPerChunk, sc.newBlock, g.refillFreeChunks)
	}
	return getFilledChunks(g.freeChunks, n, g.cfg.BlksPerChunk, sc.blkSize, g.refillFreeChunks)
}

func (g *Global) sizeClassAt(id sizeClassID) *sizeClass {
	g.sizeClassesMu.RLock()
	defer g.sizeClassesMu.RUnlock()
	return g.sizeClasses[id]
}

func (g *Global) sizeClassCount() int {
	g.sizeClassesMu.RLock()
	defer g.sizeClassesMu.RUnlock()
	return len(g.sizeClasses)
}
