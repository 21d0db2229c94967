package worker

import "time"

// Backoff computes a bounded exponential delay before re-enqueuing a
// deferred task, the optional defer backoff spec.md §5 recommends ("there
// is no backoff primitive; workers may therefore busy-loop... implementations
// MAY add a bounded exponential backoff"). Grounded in the pack's use of
// golang.org/x/time for throttling, adapted here to a plain capped-doubling
// sequence since JetStream's manual redelivery has no rate-limiter hook to
// attach to directly.
type Backoff struct {
	base, max time.Duration
}

func NewBackoff(base, max time.Duration) Backoff {
	return Backoff{base: base, max: max}
}

// Delay returns the backoff duration for the given 0-indexed defer count.
func (b Backoff) Delay(deferCount int) time.Duration {
	d := b.base
	for i := 0; i < deferCount; i++ {
		d *= 2
		if d >= b.max {
			return b.max
		}
	}
	return d
}
