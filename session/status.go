// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"
	"time"

	"github.com/sideline-ai/sideline/schema"
)

// AgentState is one agent's last observed status: what it is doing,
// when that was recorded, which session it was working in, and its
// most recent output.
type AgentState struct {
	Agent  string
	Status schema.AgentStatus
	At     time.Time

	// LastSessionID is the session of the most recent update.
	LastSessionID string

	// LastResults is the agent's most recent result snapshot. Updates
	// without results (working and error transitions) keep the prior
	// snapshot, so a completed agent's output survives its next
	// working phase.
	LastResults any
}

// StatusTable tracks the latest status per agent across all sessions.
// Set reports whether the status actually changed, so callers can
// broadcast transitions without spamming repeats of the same state.
type StatusTable struct {
	mu     sync.Mutex
	states map[string]AgentState
}

// NewStatusTable returns an empty table. Agents absent from the table
// are implicitly idle.
func NewStatusTable() *StatusTable {
	return &StatusTable{states: make(map[string]AgentState)}
}

// Set records the agent's status along with the session it was
// observed in and, when non-nil, its result snapshot. Returns true if
// this is a transition, false if the agent was already in that status
// — the table itself is refreshed either way.
func (t *StatusTable) Set(agent string, status schema.AgentStatus, sessionID string, results any, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.states[agent]
	next := AgentState{
		Agent:         agent,
		Status:        status,
		At:            now,
		LastSessionID: sessionID,
		LastResults:   results,
	}
	if results == nil {
		next.LastResults = current.LastResults
	}
	t.states[agent] = next
	return !(ok && current.Status == status)
}

// Get returns the agent's last observed status. Unknown agents report
// idle.
func (t *StatusTable) Get(agent string) schema.AgentStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.states[agent]; ok {
		return state.Status
	}
	return schema.StatusIdle
}

// Snapshot returns a copy of every known agent state.
func (t *StatusTable) Snapshot() map[string]AgentState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]AgentState, len(t.states))
	for agent, state := range t.states {
		out[agent] = state
	}
	return out
}
