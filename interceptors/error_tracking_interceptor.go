package interceptors

import (
	"context"

	"github.com/glimte/mmate-go/contracts"
	"github.com/glimte/mmate-go/internal/reliability"
)

// ErrorTrackingInterceptor consults an ErrorTracker before dispatching
// a message and registers handler failures with it, the way
// RetryInterceptor consults a RetryPolicy. Placed ahead of
// RetryInterceptor in the chain, it lets the dispatcher decide whether
// a message has already exhausted its delivery attempts before paying
// for another handler invocation.
type ErrorTrackingInterceptor struct {
	tracker *reliability.ErrorTracker
	final   func(err error) bool
}

// NewErrorTrackingInterceptor creates an interceptor backed by
// tracker. By default no failure is treated as final; use
// WithFinalClassifier to mark specific errors (e.g. a poison-message
// sentinel) as final on first occurrence.
func NewErrorTrackingInterceptor(tracker *reliability.ErrorTracker) *ErrorTrackingInterceptor {
	return &ErrorTrackingInterceptor{
		tracker: tracker,
		final:   func(error) bool { return false },
	}
}

// WithFinalClassifier sets the predicate used to decide whether a
// given handler error should mark the message's entry final
// immediately, bypassing the attempt-count threshold.
func (i *ErrorTrackingInterceptor) WithFinalClassifier(final func(err error) bool) *ErrorTrackingInterceptor {
	i.final = final
	return i
}

// Intercept implements Interceptor. It short-circuits with the
// tracker's recorded state if the message has already failed too many
// times, otherwise it runs the handler and records any failure.
func (i *ErrorTrackingInterceptor) Intercept(ctx context.Context, msg contracts.Message, next MessageHandler) error {
	id := msg.GetID()

	if i.tracker.HasFailedTooManyTimes(id) {
		return &PoisonedMessageError{MessageID: id, Tracker: i.tracker}
	}

	err := next.Handle(ctx, msg)
	if err == nil {
		return nil
	}

	_ = i.tracker.RegisterError(id, err, i.final(err))
	return err
}

// Name implements Interceptor.
func (i *ErrorTrackingInterceptor) Name() string {
	return "ErrorTrackingInterceptor"
}

// PoisonedMessageError is returned when a message is rejected before
// handler invocation because it has already exhausted its delivery
// attempts. Its Error text includes the tracker's short description
// of the message's failures while the tracker still holds an entry.
type PoisonedMessageError struct {
	MessageID string
	Tracker   *reliability.ErrorTracker
}

// Error implements error.
func (e *PoisonedMessageError) Error() string {
	if desc, ok := e.Tracker.ShortDescription(e.MessageID); ok {
		return "message " + e.MessageID + " poisoned: " + desc
	}
	return "message " + e.MessageID + " poisoned"
}
