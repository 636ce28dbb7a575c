package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestStartRejectsSecondSession(t *testing.T) {
	store := NewStore()

	if _, err := store.Start(1); err != nil {
		t.Fatalf("Expected first Start to succeed, got %v", err)
	}

	_, err := store.Start(1)
	if !errors.Is(err, ErrActiveDownload) {
		t.Errorf("Expected ErrActiveDownload, got %v", err)
	}

	// A different user is unaffected.
	if _, err := store.Start(2); err != nil {
		t.Errorf("Expected Start for another user to succeed, got %v", err)
	}
}

func TestConcurrentStartAdmitsExactlyOne(t *testing.T) {
	store := NewStore()

	const goroutines = 50
	var wg sync.WaitGroup
	var admitted atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Start(42); err == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 1 {
		t.Errorf("Expected exactly 1 admitted session, got %d", got)
	}
	if store.Count() != 1 {
		t.Errorf("Expected 1 active session, got %d", store.Count())
	}
}

func TestCancelSignalsContext(t *testing.T) {
	store := NewStore()

	ctx, err := store.Start(1)
	if err != nil {
		t.Fatalf("Expected Start to succeed, got %v", err)
	}

	if !store.Cancel(1) {
		t.Fatal("Expected Cancel to find the session")
	}

	select {
	case <-ctx.Done():
	default:
		t.Error("Expected session context to be cancelled")
	}

	// Cancelled sessions remain active until Finish.
	if !store.IsActive(1) {
		t.Error("Expected session to stay registered after Cancel")
	}
}

func TestCancelWithoutSession(t *testing.T) {
	store := NewStore()

	if store.Cancel(1) {
		t.Error("Expected Cancel to report no session")
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	store := NewStore()

	if _, err := store.Start(1); err != nil {
		t.Fatalf("Expected Start to succeed, got %v", err)
	}

	store.Finish(1)
	store.Finish(1) // no-op
	store.Finish(2) // never started, no-op

	if store.IsActive(1) {
		t.Error("Expected session to be removed")
	}
	if store.Count() != 0 {
		t.Errorf("Expected 0 active sessions, got %d", store.Count())
	}
}

func TestStartAfterFinish(t *testing.T) {
	store := NewStore()

	if _, err := store.Start(1); err != nil {
		t.Fatalf("Expected Start to succeed, got %v", err)
	}
	store.Finish(1)

	if _, err := store.Start(1); err != nil {
		t.Errorf("Expected Start after Finish to succeed, got %v", err)
	}
}
