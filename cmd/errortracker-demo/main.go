// Command errortracker-demo exercises reliability.ErrorTracker end to
// end: register a handful of failing delivery attempts for a message,
// watch the tracker decide it has failed too many times, read back its
// diagnostics the way a poison-queue handler would, then clean up.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/glimte/mmate-go/internal/reliability"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	tracker, err := reliability.NewErrorTracker(
		reliability.Config{MaxDeliveryAttempts: 3},
		logger,
		reliability.NewSystemClock(),
		reliability.NewTickerPeriodicTaskFactory(logger),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start error tracker:", err)
		os.Exit(1)
	}
	defer tracker.Dispose()

	const messageID = "order-123"

	for attempt := 1; attempt <= 3; attempt++ {
		err := tracker.RegisterError(messageID, fmt.Errorf("handler attempt %d failed", attempt), false)
		if err != nil {
			fmt.Fprintln(os.Stderr, "register error:", err)
			os.Exit(1)
		}

		if tracker.HasFailedTooManyTimes(messageID) {
			break
		}
	}

	if !tracker.HasFailedTooManyTimes(messageID) {
		fmt.Println("message would still be retried")
		return
	}

	full, _ := tracker.FullDescription(messageID)
	fmt.Println("poisoning message, dead-letter annotation:")
	fmt.Println(full)

	// A message flagged final on the first attempt skips the count
	// threshold entirely — the classic "do not retry this" case.
	_ = tracker.RegisterError("order-456", errors.New("unrecoverable validation failure"), true)
	fmt.Println("\norder-456 final on first failure:", tracker.HasFailedTooManyTimes("order-456"))

	tracker.CleanUp(messageID)
	tracker.CleanUp("order-456")

	time.Sleep(10 * time.Millisecond)
}
