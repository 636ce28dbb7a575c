// Package session tracks the single in-flight download per user.
package session

import (
	"context"
	"errors"
	"sync"
)

// ErrActiveDownload is returned when a user already has a download in flight.
var ErrActiveDownload = errors.New("user already has an active download")

// entry holds the cancellation handle for one user's download.
type entry struct {
	cancel context.CancelFunc
}

// Store owns the active-session map. At most one session exists per
// user; a second Start for the same user is rejected until Finish.
type Store struct {
	mu     sync.Mutex
	active map[int64]*entry
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		active: make(map[int64]*entry),
	}
}

// Start registers a session for the user and returns its cancellation
// context. Returns ErrActiveDownload if the user already has one.
func (s *Store) Start(userID int64) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[userID]; exists {
		return nil, ErrActiveDownload
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.active[userID] = &entry{cancel: cancel}
	return ctx, nil
}

// Cancel signals the user's active session, if any. The signal is
// advisory: the fetcher observes it at its own checkpoints. Returns
// whether a session was found.
func (s *Store) Cancel(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.active[userID]
	if !exists {
		return false
	}
	e.cancel()
	return true
}

// Finish removes the user's session unconditionally. Calling it for a
// user without a session is a no-op, so it is safe on every exit path.
func (s *Store) Finish(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.active[userID]
	if !exists {
		return
	}
	// Release the context's resources even on non-cancelled exits.
	e.cancel()
	delete(s.active, userID)
}

// IsActive reports whether the user has a session in flight.
func (s *Store) IsActive(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.active[userID]
	return exists
}

// Count returns the number of active sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
