package epoch

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/lockfree-go/epochset/internal/ringfence"
	"github.com/lockfree-go/epochset/platform"
)

// Global is the shared reclamation core every Handle registers with:
// one per process, or one per independently-reclaimed domain if a
// program wants several. It corresponds to gc_global_st; the padding
// between its hottest fields follows the same CACHE_PAD(n) layout
// gc_global_st itself uses to keep current/inReclaim apart from the
// allocator and hook tables, which are written far less often.
type Global struct {
	cfg  Config
	diag diagnostics

	current   atomic.Uint32 // the epoch new critical sections observe
	inReclaim atomic.Bool   // exclusive access guard for Reclaim
	_         platform.Pad

	tracker ringfence.Tracker // per-epoch outstanding-critical-section counts
	_       platform.Pad

	sizeClassesMu sync.RWMutex
	sizeClasses   []*sizeClass

	hooksMu sync.RWMutex
	hooks   []HookFunc

	freeChunks *chunk // shared pool of chunks not yet assigned a size class

	handlesMu sync.Mutex
	handles   []*Handle // every Handle ever registered; never shrinks

	totalSize   atomic.Uint64 // bytes allocated, when cfg.Profile
	allocations atomic.Uint64 // allocation calls, when cfg.Profile
}

// Option configures a Global at construction time.
type Option func(*Global)

// WithLogger attaches a structured logger; diagnostics are silent
// without one.
func WithLogger(log Logger) Option {
	return func(g *Global) { g.diag = newDiagnostics(log) }
}

// New builds a Global ready to register size classes, hooks, and
// handles against. It corresponds to _init_gc_subsystem, minus the
// mmap page-table bookkeeping WEAK_MEM_ORDER's async barrier needs on
// the platforms this port targets (see platform.AsyncBarrier).
func New(cfg Config, opts ...Option) *Global {
	g := &Global{
		cfg:        cfg,
		freeChunks: newSentinel(),
	}
	for _, o := range opts {
		o(g)
	}
	addChunksToList(newChunkRing(chunksPerAlloc, cfg.BlksPerChunk), g.freeChunks)
	g.current.Store(0)
	g.tracker.Advance(0)
	platform.FullFence() // publish the freshly built free-chunk ring before any Handle can observe g
	return g
}

// chunksPerAlloc mirrors gc.c's CHUNKS_PER_ALLOC: how many chunks a
// single refill of the shared free-chunk pool allocates at once.
const chunksPerAlloc = 1000

func (g *Global) refillFreeChunks() *chunk {
	return newChunkRing(chunksPerAlloc, g.cfg.BlksPerChunk)
}

// RegisterSizeClass declares a new object size the reclamation core
// will batch-allocate and batch-reclaim. It should be called once per
// distinct object type at startup, typically from an objcache.Cache
// constructor; it panics with a FatalError if Config.MaxSizes size
// classes have already been registered.
func (g *Global) RegisterSizeClass(blkSize int, tag string) int {
	return int(g.registerSizeClass(blkSize, tag))
}

// RegisterTypedSizeClass declares a new pointer-bearing object type
// the reclamation core will batch-allocate and batch-reclaim, calling
// newBlock once per slot instead of slicing a shared byte array. Use
// this instead of RegisterSizeClass whenever the allocated type itself
// contains pointer, interface, slice, map, or atomic.Pointer fields —
// the skip-list package registers its node type this way.
func (g *Global) RegisterTypedSizeClass(newBlock func() unsafe.Pointer, tag string) int {
	return int(g.registerTypedSizeClass(newBlock, tag))
}

// RegisterHook installs fn to run once per retired pointer, after the
// generation it was retired in becomes unobservable. It panics with a
// FatalError once Config.MaxHooks hooks are already registered.
func (g *Global) RegisterHook(fn HookFunc) int {
	return int(g.registerHook(fn))
}

// RemoveHook disables a previously registered hook; its id is not
// reused.
func (g *Global) RemoveHook(id int) {
	g.removeHook(hookID(id))
}

// Stats reports the allocation counters gc_global_st keeps under
// PROFILE_GC; both fields stay zero unless Config.Profile is set.
type Stats struct {
	TotalBytes  uint64
	Allocations uint64
}

func (g *Global) Stats() Stats {
	return Stats{
		TotalBytes:  g.totalSize.Load(),
		Allocations: g.allocations.Load(),
	}
}

// TotalBytesAllocated returns the running byte total Alloc has handed
// out, or zero unless Config.Profile is set. An allocation from a
// typed size class counts one pointer word, not the size of its type.
// It corresponds to the PROFILE_GC-gated total_size counter in
// gc_global_st.
func (g *Global) TotalBytesAllocated() uint64 {
	return g.totalSize.Load()
}

// AllocationCount returns the running count of Alloc calls, or zero
// unless Config.Profile is set. It corresponds to the PROFILE_GC-gated
// allocations counter in gc_global_st.
func (g *Global) AllocationCount() uint64 {
	return g.allocations.Load()
}

// Reclaim makes a single, non-blocking attempt to retire the oldest
// generation's garbage and advance the epoch. Handles already trigger
// this automatically on roughly every Config.EntriesPerReclaimAttempt
// entries; Reclaim is exposed for tests and administrative tooling
// that want to force an attempt immediately, e.g. right before
// reporting Stats.
func (g *Global) Reclaim() {
	g.reclaim()
}

// Config returns the configuration this Global was constructed with.
func (g *Global) Config() Config {
	return g.cfg
}

func (g *Global) epoch() uint32 {
	return g.current.Load()
}

func (g *Global) registerHandle(h *Handle) {
	g.handlesMu.Lock()
	defer g.handlesMu.Unlock()
	g.handles = append(g.handles, h)
}
