package delivery

import (
	"log/slog"
	"time"
)

// Outcome is the result of a transmission attempt.
type Outcome int

const (
	Sent Outcome = iota
	TransmitFailed
)

// SendFunc performs one transmission attempt. The helper is agnostic to
// the payload kind: status text, audio and video sends all go through it.
type SendFunc func() error

// TransmitWithRetry attempts send up to maxAttempts times, sleeping a
// fixed backoff between attempts. Only errors the classifier marks as
// transient are retried; any other error aborts immediately. Exhaustion
// is reported as TransmitFailed, never raised to the caller.
func TransmitWithRetry(send SendFunc, transient func(error) bool, maxAttempts int, backoff time.Duration) Outcome {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := send()
		if err == nil {
			return Sent
		}

		if !transient(err) {
			slog.Error("Send failed with non-retryable error",
				"attempt", attempt,
				"error", err,
			)
			return TransmitFailed
		}

		slog.Warn("Send failed, will retry",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if attempt < maxAttempts {
			time.Sleep(backoff)
		}
	}

	return TransmitFailed
}
