// Package objcache is a typed allocation facade over a single
// epoch.Global size class — the Go shape of osi_mcas_obj_cache_t. It
// adapts osi_mcas_obj_cache.c: Create registers the size class once,
// then Alloc/Free (or their *Critical variants, for a caller already
// holding an entered *epoch.Handle) are thin wrappers over
// epoch.Handle's Alloc/Free.
package objcache

import (
	"fmt"
	"unsafe"

	"github.com/lockfree-go/epochset/epoch"
)

// Cache is a handle to one registered size class, typed to the Go
// value it allocates.
type Cache[T any] struct {
	g   *epoch.Global
	id  int
	tag string
}

// Create registers a size class for T and returns a Cache bound to
// it. It corresponds to osi_mcas_obj_cache_create; the C original
// pads its requested size by one pointer word for an intrusive
// free-list link, which a Go value of type T never needs since
// reclamation tracks blocks by address in a separate chunk, not by an
// embedded link field.
//
// MaxSizes exhaustion surfaces here as an error rather than the
// FatalError panic epoch.Global.RegisterTypedSizeClass otherwise raises,
// since a cache constructor is a place a caller can reasonably check
// and report rather than crash: any other panic is not ours to
// interpret and propagates unchanged.
func Create[T any](g *epoch.Global, tag string) (c Cache[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(epoch.FatalError)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("objcache: create %q: %w", tag, fe)
		}
	}()

	id := g.RegisterTypedSizeClass(func() unsafe.Pointer {
		return unsafe.Pointer(new(T))
	}, tag)
	return Cache[T]{g: g, id: id, tag: tag}, nil
}

// AllocCritical draws one *T from the cache, using a handle already
// inside a critical section. It corresponds to
// osi_mcas_obj_cache_alloc_critical.
func (c Cache[T]) AllocCritical(h *epoch.Handle) *T {
	return (*T)(h.Alloc(c.id))
}

// Alloc enters and exits its own critical section around a single
// allocation. It corresponds to osi_mcas_obj_cache_alloc.
func (c Cache[T]) Alloc(h *epoch.Handle) *T {
	h.Enter()
	defer h.Exit()
	return c.AllocCritical(h)
}

// FreeCritical retires obj, using a handle already inside a critical
// section. It corresponds to osi_mcas_obj_cache_free_critical.
func (c Cache[T]) FreeCritical(h *epoch.Handle, obj *T) {
	h.Free(unsafe.Pointer(obj), c.id)
}

// Free enters and exits its own critical section around a single
// retirement. It corresponds to osi_mcas_obj_cache_free.
func (c Cache[T]) Free(h *epoch.Handle, obj *T) {
	h.Enter()
	defer h.Exit()
	c.FreeCritical(h, obj)
}

// Destroy is a no-op. The C original's own destroy function carries a
// "TODO: implement, will need gc_remove_allocator" comment and never
// released anything either; a size class here likewise lives for the
// lifetime of the Global it was registered against.
func (c Cache[T]) Destroy() {}

// Tag returns the label Create registered this cache's size class
// under.
func (c Cache[T]) Tag() string { return c.tag }
