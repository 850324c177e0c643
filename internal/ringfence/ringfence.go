// Package ringfence answers, without ever blocking, the question the
// reclaimer asks every time it considers recycling a generation's
// garbage: "has everyone who entered a critical section while that
// generation was still live finished and left?"
//
// The C original answers this by walking a global list of per-thread
// ptst_st records and checking each one's (count, epoch) pair. Go has
// no equivalent registry to walk cheaply — goroutines aren't threads,
// and there is no per-goroutine storage to hang a ptst_st off of — so
// ringfence inverts the check: instead of asking every participant
// individually, it keeps one atomic occupancy counter per generation
// slot and asks the aggregate. Entering a generation bumps its
// counter; leaving decrements it; a generation is quiescent exactly
// when its counter reads zero. This is the same fact the C scan
// computes, collapsed into a handful of atomics instead of a linked
// list walk, in the spirit of tef-crow's Roundabout packing an
// epoch/flags/bitmap triple into one atomic word so a reader never
// observes the pieces out of step with each other.
package ringfence

import (
	"sync/atomic"

	"github.com/lockfree-go/epochset/platform"
)

// Width is the number of generation slots tracked. It must be at least
// as large as the reclaim protocol's generation count (3 or 4,
// depending on Config.WeakOrder); a Tracker sized for 4 works fine
// when only 3 are in use, it just leaves one slot always at zero.
const Width = 4

// Ticket is a receipt from Enter; it must be passed to Exit exactly
// once, by whichever goroutine called Enter.
type Ticket struct {
	slot uint32
}

// slot is one generation's occupancy counter, padded to its own cache
// line: every Enter/Exit across every goroutine in the same generation
// hammers the same counter, and without padding that traffic would
// also invalidate the neighboring generation's counter on every write.
type slot struct {
	count atomic.Int64
	_     platform.Pad
}

// Tracker holds one occupancy counter per generation slot, plus the
// current generation number as last published by Advance and reported
// by Current. Quiescent reads only a slot's counter, not current.
type Tracker struct {
	current atomic.Uint32
	_       platform.Pad
	counts  [Width]slot
}

// Enter records that a critical section starting in generation g has
// begun. It never blocks.
func (t *Tracker) Enter(g uint32) Ticket {
	t.counts[g%Width].count.Add(1)
	return Ticket{slot: g % Width}
}

// Exit records that the critical section a Ticket was issued for has
// ended.
func (t *Tracker) Exit(tk Ticket) {
	t.counts[tk.slot].count.Add(-1)
}

// Advance publishes a new current generation. Only the single
// goroutine driving reclaim calls this, immediately after confirming
// Quiescent for the generation being retired.
func (t *Tracker) Advance(g uint32) {
	t.current.Store(g)
}

// Current returns the most recently Advanced generation.
func (t *Tracker) Current() uint32 {
	return t.current.Load()
}

// Quiescent reports whether generation g currently has zero
// outstanding Enter calls. A false answer just means "try again on
// the next reclaim attempt" — it is never a correctness signal beyond
// that instant, since a new Enter(g) can always race in afterward; the
// reclaim protocol only ever asks about generations it has already
// stopped handing out, so that race cannot happen for the slot it
// cares about.
func (t *Tracker) Quiescent(g uint32) bool {
	return t.counts[g%Width].count.Load() == 0
}
