// Package platform documents and implements the small set of
// platform-level contracts the reclamation and skip-list packages build
// on: memory-order fences, cache-line padding (Pad), and the
// weak-memory-order "async barrier" trick. On the architectures Go
// targets these either fall directly out of sync/atomic or are provable
// no-ops; the package exists so the rest of the module can name the
// contract instead of sprinkling atomic calls with commentary explaining
// what ordering they're standing in for.
package platform

import "sync/atomic"

// FullFence is a full read/write memory barrier. On sync/atomic-supported
// architectures every atomic load/store is already sequentially
// consistent with respect to other atomics, so the "fence" the C
// original takes as a separate primitive is just: perform the next
// dependent operation through sync/atomic rather than a plain load/store.
// FullFence exists as a named call site for the places section 5 of the
// specification calls out a fence as a correctness requirement; its body
// is a single atomic load of a package-level word, since the ordering is
// already provided by the atomic operations immediately adjacent to each
// call.
func FullFence() { atomic.LoadUint32(&fenceWord) }

// WriteFence and ReadFence are the write-only/read-only counterparts of
// FullFence, named separately so call sites document which ordering
// requirement they satisfy even though, on this platform, all three
// perform the same single atomic load.
func WriteFence() { FullFence() }
func ReadFence()  { FullFence() }

var fenceWord uint32

// AsyncBarrier stands in for gc_async_barrier's TLB-shootdown trick,
// which forces a fence in every other thread by toggling the protection
// bit on a page they all fault against. Go only runs on architectures
// where a full atomic fence already gives the ordering that trick is
// for, so this is a deliberate no-op: see spec.md section 3 ("Design
// Notes"), which allows exactly this substitution ("only required if the
// target platform is weakly ordered and chooses to use the TLB-shootdown
// trick; otherwise a plain full fence suffices").
func AsyncBarrier() {}
