// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package env

import "sync"

// Store holds the latest reading. The sensor driver is the only writer;
// the controller, reporters and publishers read snapshots.
//
// The store is allocated once by the host and handed to the driver, so
// several driver types can share the same consumers.
type Store struct {
	mu      sync.RWMutex
	current Reading
	lastErr error
}

// NewStore returns an empty store. Its snapshot is not valid until the
// first successful Set.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the current reading and clears the last error.
func (s *Store) Set(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = r
	s.lastErr = nil
}

// Invalidate marks the current reading as stale after a failed sample.
// The measured values are kept for diagnostics but Valid is cleared.
func (s *Store) Invalidate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Valid = false
	s.lastErr = err
}

// Snapshot returns a copy of the current reading.
func (s *Store) Snapshot() Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// LastError returns the error of the last failed sample, or nil when the
// last sample succeeded.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}
