package epoch

import (
	"math/rand/v2"

	"github.com/lockfree-go/epochset/internal/ringfence"
	"github.com/lockfree-go/epochset/platform"
)

// Handle is a single goroutine's (or single worker's) entry point into
// a Global's reclamation core. The C original reaches its per-thread
// state through pthread-local storage; Go has no equivalent, so a
// Handle is instead created once per worker and threaded explicitly
// through every call that needs one — the substitution spec.md's
// platform notes call for. A Handle must never be shared between
// concurrently running goroutines.
type Handle struct {
	g *Global

	count  uint32
	epoch  uint32
	ticket ringfence.Ticket

	entriesSinceReclaim       uint32
	reclaimAttemptsSinceYield uint32

	garbageHead [][]*chunk // [epoch][sizeClassID]
	garbageTail [][]*chunk

	chunkCache *chunk

	allocList   []*chunk // [sizeClassID], local per-handle allocation list
	allocChunks []uint32 // chunk refills since this handle last returned its list

	hookHead [][]*chunk // [epoch][hookID]

	rng *rand.Rand
}

// NewHandle registers a new Handle against g. Call it once per worker
// goroutine and reuse the result for that goroutine's whole lifetime;
// it corresponds to gc_init plus the ptst_t slot a real critical_enter
// would have claimed.
func (g *Global) NewHandle() *Handle {
	nrEpochs := g.cfg.NrEpochs()
	h := &Handle{
		g:           g,
		garbageHead: make([][]*chunk, nrEpochs),
		garbageTail: make([][]*chunk, nrEpochs),
		hookHead:    make([][]*chunk, nrEpochs),
		rng:         rand.New(rand.NewPCG(newSeed(), newSeed())),
	}
	g.registerHandle(h)
	return h
}

// Enter begins a critical region: while any Handle is inside one, the
// reclaimer will not retire the generation it entered under. Enter
// nests; an equal number of Exit calls is required to leave. It
// corresponds to gc_enter / critical_enter.
func (h *Handle) Enter() {
	h.count++
	if h.count != 1 {
		return
	}

	cur := h.g.epoch()
	platform.ReadFence() // pairs with the write fence reclaim takes before publishing a new epoch
	if h.epoch != cur {
		h.epoch = cur
		h.entriesSinceReclaim = 0
		h.reclaimAttemptsSinceYield = 0
	} else if h.entriesSinceReclaim++; h.entriesSinceReclaim >= h.g.cfg.EntriesPerReclaimAttempt {
		h.entriesSinceReclaim = 0
		h.count--
		h.maybeYield()
		h.g.reclaim()
		h.count++
		cur = h.g.epoch()
		if cur != h.epoch {
			h.reclaimAttemptsSinceYield = 0
		}
		h.epoch = cur
	}

	h.ticket = h.g.tracker.Enter(h.epoch)
}

// Exit leaves a critical region entered with Enter.
func (h *Handle) Exit() {
	h.count--
	if h.count == 0 {
		h.g.tracker.Exit(h.ticket)
	}
}

// Critical runs fn inside a single Enter/Exit pair.
func (h *Handle) Critical(fn func()) {
	h.Enter()
	defer h.Exit()
	fn()
}

func (h *Handle) maybeYield() {
	if !h.g.cfg.YieldToHelpProgress {
		return
	}
	h.reclaimAttemptsSinceYield++
	if h.reclaimAttemptsSinceYield >= h.g.cfg.ReclaimYieldThreshold {
		h.reclaimAttemptsSinceYield = 0
		yieldProcessor()
	}
}

// Rand returns the Handle's private random source, used by the
// skip-list package to draw node levels without any cross-handle
// contention on a shared generator.
func (h *Handle) Rand() *rand.Rand {
	return h.rng
}

func (h *Handle) ensureSizeClassColumns(id sizeClassID) {
	for e := range h.garbageHead {
		for len(h.garbageHead[e]) <= int(id) {
			h.garbageHead[e] = append(h.garbageHead[e], nil)
			h.garbageTail[e] = append(h.garbageTail[e], nil)
		}
	}
	for len(h.allocList) <= int(id) {
		h.allocList = append(h.allocList, nil)
		h.allocChunks = append(h.allocChunks, 0)
	}
}

func (h *Handle) ensureHookColumns(id hookID) {
	for e := range h.hookHead {
		for len(h.hookHead[e]) <= int(id) {
			h.hookHead[e] = append(h.hookHead[e], nil)
		}
	}
}
