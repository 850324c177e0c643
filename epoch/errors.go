package epoch

import "fmt"

// Debug gates the reserved-key assertion described in
// section 7 ("Invalid key: programmer error, assertion"). It defaults to
// true; production callers that have already validated their key space
// may turn it off to shave the check, matching the C original's
// assert() being compiled out of non-debug builds.
var Debug = true

// FatalError is panicked, never returned, for the resource-exhaustion
// conditions section 7 calls fatal that this package detects: exceeding
// MaxSizes or MaxHooks. The specification's C original aborts the
// process outright; panicking lets an embedding Go program recover at
// its own top level if it would rather exit cleanly, while still making
// it impossible to silently continue past the condition.
type FatalError struct {
	Op  string
	Msg string
}

func (e FatalError) Error() string {
	return fmt.Sprintf("epoch: fatal: %s: %s", e.Op, e.Msg)
}

// fatalf logs (if a Logger is configured) and then panics with a
// FatalError, the resource-exhaustion path section 7 calls fatal.
func (g *Global) fatalf(op, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	g.diag.fatal(op, msg)
	panic(FatalError{Op: op, Msg: msg})
}

// reservedKeyError is raised (via AssertValidKey) when Debug is true
// and a caller passes one of the three reserved skip-list keys.
type reservedKeyError struct {
	Key uint64
}

func (e reservedKeyError) Error() string {
	return fmt.Sprintf("epoch: reserved key used as a real key: %#x", e.Key)
}

// The three key values a skip-list Set reserves for its own bookkeeping
// (the two bounding sentinels, plus one held back the way the C
// original held back pointer value 0x1) and will never accept from a
// caller.
const (
	KeyReservedMin = uint64(0)
	KeyReserved    = uint64(1)
	KeyReservedMax = ^uint64(0)
)

// IsReservedKey reports whether key is one of the three values a
// skip-list Set reserves for itself.
func IsReservedKey(key uint64) bool {
	return key == KeyReservedMin || key == KeyReserved || key == KeyReservedMax
}

// AssertValidKey panics a reservedKeyError if Debug is enabled and key
// is reserved. Skip-list operations call this once, at the entry
// point, rather than on every internal comparison.
func AssertValidKey(key uint64) {
	if Debug && IsReservedKey(key) {
		panic(reservedKeyError{Key: key})
	}
}
