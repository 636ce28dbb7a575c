package delivery

import (
	"errors"
	"testing"
	"time"
)

var errTimeout = errors.New("request timed out")

func alwaysTransient(error) bool { return true }

func TestTransmitWithRetryEventualSuccess(t *testing.T) {
	calls := 0
	send := func() error {
		calls++
		if calls < 3 {
			return errTimeout
		}
		return nil
	}

	outcome := TransmitWithRetry(send, alwaysTransient, 3, time.Millisecond)

	if outcome != Sent {
		t.Errorf("Expected Sent, got %v", outcome)
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}

func TestTransmitWithRetryFirstTry(t *testing.T) {
	calls := 0
	send := func() error {
		calls++
		return nil
	}

	if outcome := TransmitWithRetry(send, alwaysTransient, 3, time.Millisecond); outcome != Sent {
		t.Errorf("Expected Sent, got %v", outcome)
	}
	if calls != 1 {
		t.Errorf("Expected 1 attempt, got %d", calls)
	}
}

func TestTransmitWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	send := func() error {
		calls++
		return errTimeout
	}

	outcome := TransmitWithRetry(send, alwaysTransient, 3, time.Millisecond)

	if outcome != TransmitFailed {
		t.Errorf("Expected TransmitFailed, got %v", outcome)
	}
	if calls != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", calls)
	}
}

func TestTransmitWithRetryAbortsOnPermanentError(t *testing.T) {
	calls := 0
	send := func() error {
		calls++
		return errors.New("chat not found")
	}

	outcome := TransmitWithRetry(send, func(error) bool { return false }, 3, time.Millisecond)

	if outcome != TransmitFailed {
		t.Errorf("Expected TransmitFailed, got %v", outcome)
	}
	if calls != 1 {
		t.Errorf("Expected no retry on permanent error, got %d attempts", calls)
	}
}

func TestTransmitWithRetryBacksOffBetweenAttempts(t *testing.T) {
	calls := 0
	send := func() error {
		calls++
		return errTimeout
	}

	start := time.Now()
	TransmitWithRetry(send, alwaysTransient, 3, 20*time.Millisecond)
	elapsed := time.Since(start)

	// Two waits between three attempts, none after the last.
	if elapsed < 40*time.Millisecond {
		t.Errorf("Expected at least 40ms of backoff, got %v", elapsed)
	}
}
