// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"log/slog"
	"sync"

	"github.com/sideline-ai/sideline/lib/clock"
)

// Store is the registry of live sessions. Sessions materialize on
// first reference and live for the process lifetime; there is no
// eviction, since a meeting session is bounded by the meeting.
type Store struct {
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Context
}

// NewStore returns an empty registry. A nil logger discards; a nil
// clock uses real time.
func NewStore(clk clock.Clock, logger *slog.Logger) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		clock:    clk,
		logger:   logger,
		sessions: make(map[string]*Context),
	}
}

// Get returns the session Context for id, creating it on first use.
func (s *Store) Get(id string) *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing
	}
	created := newContext(id, s.clock.Now())
	s.sessions[id] = created
	s.logger.Info("session created", "session_id", id)
	return created
}

// Lookup returns the session Context for id without creating one.
func (s *Store) Lookup(id string) (*Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.sessions[id]
	return ctx, ok
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
