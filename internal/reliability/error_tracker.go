package reliability

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultReclaimIdleAfter is how long an entry may sit without a
	// new failure before the cleanup task evicts it.
	DefaultReclaimIdleAfter = 10 * time.Minute

	// DefaultCleanupInterval is how often the cleanup task sweeps the
	// registry.
	DefaultCleanupInterval = 60 * time.Second

	// DefaultCleanupTaskName is the name handed to the
	// PeriodicTaskFactory for the cleanup task.
	DefaultCleanupTaskName = "CleanupTrackedErrors"
)

// Config configures an ErrorTracker.
type Config struct {
	// MaxDeliveryAttempts is the failure count at which
	// HasFailedTooManyTimes starts reporting true. Must be >= 1.
	MaxDeliveryAttempts int

	// ReclaimIdleAfter is how long an entry may go without a new
	// failure before the cleanup task evicts it. Defaults to
	// DefaultReclaimIdleAfter.
	ReclaimIdleAfter time.Duration

	// CleanupInterval is the sweep period of the cleanup task.
	// Defaults to DefaultCleanupInterval.
	CleanupInterval time.Duration

	// CleanupTaskName names the periodic task for logging/diagnostics.
	// Defaults to DefaultCleanupTaskName.
	CleanupTaskName string
}

func (c Config) withDefaults() Config {
	if c.ReclaimIdleAfter <= 0 {
		c.ReclaimIdleAfter = DefaultReclaimIdleAfter
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.CleanupTaskName == "" {
		c.CleanupTaskName = DefaultCleanupTaskName
	}
	return c
}

// trackerState is the tracker's own lifecycle, independent of any
// single entry's state.
type trackerState int32

const (
	stateConstructed trackerState = iota
	stateInitialized
	stateDisposed
)

// ErrorTracker is a concurrent registry mapping message IDs to
// TrackingEntry aggregates. It is the decision point for whether a
// repeatedly-failing delivery should be retried again or handed to the
// poison/dead-letter sink.
//
// ErrorTracker is safe for concurrent use by any number of delivery
// workers plus the one background cleanup worker it owns.
type ErrorTracker struct {
	cfg    Config
	logger *slog.Logger
	clock  Clock

	mu       sync.Mutex
	entries  map[string]*TrackingEntry

	cleanupTask PeriodicTask
	state       atomic.Int32
}

// NewErrorTracker constructs an ErrorTracker and starts its cleanup
// task. Construction fails with an error wrapping ErrInvalidArgument
// if cfg.MaxDeliveryAttempts < 1 or a required collaborator (logger,
// clock, scheduler) is nil.
func NewErrorTracker(cfg Config, logger *slog.Logger, clock Clock, scheduler PeriodicTaskFactory) (*ErrorTracker, error) {
	if cfg.MaxDeliveryAttempts < 1 {
		return nil, wrapInvalidArgument("max delivery attempts must be >= 1")
	}
	if logger == nil {
		return nil, wrapInvalidArgument("logger must not be nil")
	}
	if clock == nil {
		return nil, wrapInvalidArgument("clock must not be nil")
	}
	if scheduler == nil {
		return nil, wrapInvalidArgument("scheduler must not be nil")
	}

	cfg = cfg.withDefaults()

	t := &ErrorTracker{
		cfg:     cfg,
		logger:  logger,
		clock:   clock,
		entries: make(map[string]*TrackingEntry),
	}

	t.cleanupTask = scheduler.Create(cfg.CleanupTaskName, t.sweep, cfg.CleanupInterval)
	t.cleanupTask.Start()
	t.state.Store(int32(stateInitialized))

	return t, nil
}

// RegisterError records a failed delivery attempt for id. If id has no
// entry yet, a new one is created with this failure. Otherwise the
// existing entry is atomically replaced by its extension, honoring
// the sticky-final rule: once final has been true for id, further
// calls are no-ops on the stored entry.
//
// RegisterError returns an error wrapping ErrInvalidArgument if
// exception is nil or id is empty. It never returns any other error;
// a failure to emit the warning log is swallowed.
func (t *ErrorTracker) RegisterError(id string, exception error, final bool) error {
	if id == "" {
		return wrapInvalidArgument("message id must not be empty")
	}

	failure, err := newCaughtFailure(t.clock, exception)
	if err != nil {
		return err
	}

	t.mu.Lock()
	existing, ok := t.entries[id]
	var updated *TrackingEntry
	if ok {
		updated = existing.extend(failure, final)
	} else {
		updated = newTrackingEntry(failure, final)
	}
	t.entries[id] = updated
	t.mu.Unlock()

	t.logWarning(id, updated)

	return nil
}

func (t *ErrorTracker) logWarning(id string, entry *TrackingEntry) {
	defer func() {
		// A misbehaving logger must never break the hot path.
		_ = recover()
	}()

	suffix := ""
	if entry.Final() {
		suffix = " (FINAL)"
	}

	t.logger.Warn(
		fmt.Sprintf("Unhandled exception %d while handling message %s%s", entry.Count(), id, suffix),
		"errorNumber", entry.Count(),
		"messageId", id,
	)
}

// HasFailedTooManyTimes reports whether id's entry is final or has
// reached MaxDeliveryAttempts failures. Returns false when no entry
// exists for id. Never errors.
func (t *ErrorTracker) HasFailedTooManyTimes(id string) bool {
	entry, ok := t.get(id)
	if !ok {
		return false
	}
	return entry.Final() || entry.Count() >= t.cfg.MaxDeliveryAttempts
}

// ShortDescription returns "<n> unhandled exceptions" for id, or false
// if no entry exists.
func (t *ErrorTracker) ShortDescription(id string) (string, bool) {
	entry, ok := t.get(id)
	if !ok {
		return "", false
	}
	return shortDescription(entry), true
}

func shortDescription(entry *TrackingEntry) string {
	return strconv.Itoa(entry.Count()) + " unhandled exceptions"
}

// FullDescription returns "<n> unhandled exceptions: <line>\n..." with
// one "<time>: <exception>" line per failure in chronological order,
// or false if no entry exists for id.
func (t *ErrorTracker) FullDescription(id string) (string, bool) {
	entry, ok := t.get(id)
	if !ok {
		return "", false
	}

	var b strings.Builder
	b.WriteString(shortDescription(entry))
	b.WriteString(": ")
	for i, f := range entry.failures {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(f.String())
	}
	return b.String(), true
}

// Exceptions returns a stable snapshot of id's captured exceptions in
// chronological order, or an empty slice if no entry exists. The
// returned slice is decoupled from the registry: subsequent
// RegisterError calls never mutate it.
func (t *ErrorTracker) Exceptions(id string) []error {
	entry, ok := t.get(id)
	if !ok {
		return []error{}
	}
	return entry.exceptions()
}

// CleanUp removes id's entry if present. No-op otherwise. Never
// errors.
func (t *ErrorTracker) CleanUp(id string) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

func (t *ErrorTracker) get(id string) (*TrackingEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[id]
	return entry, ok
}

// sweep is the cleanup task's job: evict every entry idle beyond
// ReclaimIdleAfter. It tolerates removing an entry that gained a fresh
// failure between the snapshot and the removal — the caller simply
// recreates it on the next failure, and retry-count slippage from this
// race is bounded to one attempt.
func (t *ErrorTracker) sweep(ctx context.Context) error {
	type candidate struct {
		id    string
		entry *TrackingEntry
	}

	t.mu.Lock()
	snapshot := make([]candidate, 0, len(t.entries))
	for id, entry := range t.entries {
		snapshot = append(snapshot, candidate{id: id, entry: entry})
	}
	t.mu.Unlock()

	for _, c := range snapshot {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if c.entry.ElapsedSinceLastFailure(t.clock) > t.cfg.ReclaimIdleAfter {
			t.CleanUp(c.id)
		}
	}

	return nil
}

// Dispose stops the cleanup task. Idempotent and safe to call
// multiple times or after partial construction failure. Public
// operations remain valid after Dispose, but Dispose never restarts
// the cleanup task.
func (t *ErrorTracker) Dispose() {
	if !t.state.CompareAndSwap(int32(stateInitialized), int32(stateDisposed)) {
		return
	}
	if t.cleanupTask != nil {
		t.cleanupTask.Dispose()
	}
}
