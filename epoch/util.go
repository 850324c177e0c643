package epoch

import (
	"runtime"
	"sync/atomic"
	"time"
)

// newSeed produces a seed for a Handle's private PCG generator. It
// does not need to be cryptographically strong, only distinct across
// Handles; mixing the wall clock with a monotonically increasing
// counter is enough for that and avoids pulling in crypto/rand for a
// non-adversarial use.
var seedCounter atomic.Uint64

func newSeed() uint64 {
	return uint64(time.Now().UnixNano()) ^ (seedCounter.Add(1) * 0x9e3779b97f4a7c15)
}

// yieldProcessor stands in for gc.c's optional sched_yield() under
// YIELD_TO_HELP_PROGRESS: a thread that has attempted reclaim many
// times without making progress gives the runtime a chance to run
// whatever is blocking it.
func yieldProcessor() {
	runtime.Gosched()
}
