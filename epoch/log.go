package epoch

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured-logging type a Global accepts through
// WithLogger. A nil Logger is valid and silences diagnostics entirely,
// matching the C original having no logging path by default.
type Logger = *logiface.Logger[*stumpy.Event]

// NewLogger returns the default JSON logger (github.com/joeycumines/stumpy),
// writing to the given option set; passing no options yields stumpy's
// stderr default.
func NewLogger(options ...stumpy.Option) Logger {
	opts := make([]logiface.Option[*stumpy.Event], 0, len(options))
	if len(options) != 0 {
		opts = append(opts, stumpy.L.WithStumpy(options...))
	}
	return stumpy.L.New(opts...)
}

// diagnostics bundles the optional logger together with a rate limiter
// that keeps a hot contention loop (CAS loss, reclaim-already-running)
// from flooding the log: section 7 classes contention as "not an
// error", so it must never dominate log volume the way a true error
// would.
type diagnostics struct {
	log     Logger
	limiter *catrate.Limiter
}

func newDiagnostics(log Logger) diagnostics {
	return diagnostics{
		log: log,
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 5,
		}),
	}
}

func (d diagnostics) contention(category string) {
	if d.log == nil {
		return
	}
	if _, ok := d.limiter.Allow(category); !ok {
		return
	}
	d.log.Debug().Str("category", category).Log("contention, retrying")
}

func (d diagnostics) reclaimAdvanced(from, to uint32, threeAgo int) {
	if d.log == nil {
		return
	}
	d.log.Debug().
		Uint64("epoch_from", uint64(from)).
		Uint64("epoch_to", uint64(to)).
		Int("generation_recycled", threeAgo).
		Log("reclaim: epoch advanced")
}

func (d diagnostics) chunksReturned(sizeClass int, tag string, n int) {
	if d.log == nil || n == 0 {
		return
	}
	d.log.Debug().
		Int("size_class", sizeClass).
		Str("tag", tag).
		Int("chunks_returned", n).
		Log("reclaim: chunks returned to allocator")
}

func (d diagnostics) hookDelivered(hookID int, n int) {
	if d.log == nil || n == 0 {
		return
	}
	d.log.Debug().
		Int("hook_id", hookID).
		Int("pointers_delivered", n).
		Log("reclaim: hook payloads delivered")
}

// fatal logs a best-effort diagnostic at critical level before the
// caller panics with a FatalError. It deliberately does not use the
// Logger's own Fatal()/Panic() builders: those call os.Exit or panic
// from inside the logging call itself, which would pre-empt our own
// FatalError and deny an embedder the chance to recover with context.
func (d diagnostics) fatal(op, msg string) {
	if d.log == nil {
		return
	}
	d.log.Crit().Str("op", op).Log(msg)
}
