package platform

// CacheLineSize is the assumed false-sharing boundary used to separate
// hot, independently-written fields of the reclamation core's global
// state (current epoch, the in-reclaim guard, the allocator tables, the
// thread-registry head), per spec.md's CACHE_PAD design note.
const CacheLineSize = 64

// Pad is used as a blank field type by callers that want one cache
// line of trailing pad after a hot field, without pulling in a third
// party cache-padding helper for something this small.
type Pad [CacheLineSize]byte
