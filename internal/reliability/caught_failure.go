package reliability

import "time"

// CaughtFailure is an immutable snapshot of a single handler failure:
// the error value observed and the clock time it was observed at.
type CaughtFailure struct {
	exception error
	time      time.Time
}

// newCaughtFailure captures exception at the clock's current time.
func newCaughtFailure(clock Clock, exception error) (CaughtFailure, error) {
	if exception == nil {
		return CaughtFailure{}, wrapInvalidArgument("exception must not be nil")
	}
	return CaughtFailure{exception: exception, time: clock.Now()}, nil
}

// Exception returns the captured error value.
func (f CaughtFailure) Exception() error {
	return f.exception
}

// Time returns the clock time the failure was captured.
func (f CaughtFailure) Time() time.Time {
	return f.time
}

// String renders the failure the way it appears in a full description:
// "<time>: <exception>".
func (f CaughtFailure) String() string {
	return f.time.Format(time.RFC3339Nano) + ": " + f.exception.Error()
}
