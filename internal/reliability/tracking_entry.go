package reliability

import "time"

// TrackingEntry is the per-message aggregate of observed failures: an
// append-only, chronologically ordered list of CaughtFailure plus a
// sticky "final" flag. TrackingEntry is logically immutable — updates
// produce a replacement value that the registry swaps in atomically;
// see extend.
type TrackingEntry struct {
	failures []CaughtFailure
	final    bool
}

// newTrackingEntry creates the first entry for a message, with a
// single failure.
func newTrackingEntry(failure CaughtFailure, final bool) *TrackingEntry {
	return &TrackingEntry{
		failures: []CaughtFailure{failure},
		final:    final,
	}
}

// extend produces the entry that should replace prev after a new
// failure is observed. If prev is already final, the sticky-final
// rule applies: prev is returned unchanged and the new failure is
// dropped. Otherwise a new entry is built with failure appended.
func (prev *TrackingEntry) extend(failure CaughtFailure, final bool) *TrackingEntry {
	if prev.final {
		return prev
	}

	next := make([]CaughtFailure, len(prev.failures)+1)
	copy(next, prev.failures)
	next[len(prev.failures)] = failure

	return &TrackingEntry{
		failures: next,
		final:    final,
	}
}

// Count returns the number of recorded failures.
func (e *TrackingEntry) Count() int {
	return len(e.failures)
}

// Final reports whether this entry is sticky-final.
func (e *TrackingEntry) Final() bool {
	return e.final
}

// lastFailureTime returns the latest time among the recorded
// failures, which differs from the most recently appended one only if
// the clock moved backward. failures is never empty for an entry
// present in the registry.
func (e *TrackingEntry) lastFailureTime() time.Time {
	latest := e.failures[0].time
	for _, f := range e.failures[1:] {
		if f.time.After(latest) {
			latest = f.time
		}
	}
	return latest
}

// ElapsedSinceLastFailure returns clock.ElapsedSince(lastFailureTime),
// which clamps negative results to zero.
func (e *TrackingEntry) ElapsedSinceLastFailure(clock Clock) time.Duration {
	return clock.ElapsedSince(e.lastFailureTime())
}

// exceptions returns a stable copy of the captured exceptions, in
// failures order. The copy is decoupled from the entry: later calls to
// extend never mutate a slice already handed out.
func (e *TrackingEntry) exceptions() []error {
	out := make([]error, len(e.failures))
	for i, f := range e.failures {
		out[i] = f.exception
	}
	return out
}
