// Package session owns the engine list a running service operates on.
// Every access goes through the session lock; engines themselves are not
// safe for concurrent use.
package session

import (
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"

	"github.com/stuwilkins/hkl/internal/pseudo"
)

// Session serializes access to one engine list and counts its changes.
type Session struct {
	mu        deadlock.Mutex
	list      *pseudo.EngineList
	updatedAt time.Time

	version atomic.Uint64
}

// New wraps l. The session takes ownership of it.
func New(l *pseudo.EngineList) *Session {
	return &Session{list: l, updatedAt: time.Now()}
}

// Do runs fn with exclusive access. A nil return marks the session as
// changed.
func (s *Session) Do(fn func(l *pseudo.EngineList) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.list); err != nil {
		return err
	}
	s.updatedAt = time.Now()
	s.version.Add(1)
	return nil
}

// View runs fn with exclusive access without marking a change. Reading
// pseudo-axes still needs the lock since engines cache their last values.
func (s *Session) View(fn func(l *pseudo.EngineList) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.list)
}

// Clone returns an independent copy for work outside the lock.
func (s *Session) Clone() *pseudo.EngineList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Clone()
}

// Replace swaps in a new engine list, e.g. one restored from a snapshot.
func (s *Session) Replace(l *pseudo.EngineList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = l
	s.updatedAt = time.Now()
	s.version.Add(1)
}

// Version increases on every change; stream clients poll it.
func (s *Session) Version() uint64 { return s.version.Load() }

// AgeSeconds returns the time since the last change.
func (s *Session) AgeSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.updatedAt).Seconds()
}
