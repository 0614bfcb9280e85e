// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// AgentStatus is the lifecycle state of a named agent. Transitions are
// broadcast on TopicAgentStatus; for every invoked agent, a working
// transition is published before completed or errored.
type AgentStatus string

const (
	// StatusIdle means the agent has no work in flight.
	StatusIdle AgentStatus = "idle"

	// StatusWorking means the agent has accepted work and not yet
	// produced a result.
	StatusWorking AgentStatus = "working"

	// StatusCompleted means the agent's last invocation produced a
	// result.
	StatusCompleted AgentStatus = "completed"

	// StatusError means the agent's last invocation failed. The
	// failure is contained to that invocation; the agent remains
	// available for new work.
	StatusError AgentStatus = "error"
)

// Valid reports whether s is one of the four defined statuses.
func (s AgentStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusWorking, StatusCompleted, StatusError:
		return true
	}
	return false
}

// ParseAgentStatus converts a wire string into an AgentStatus.
func ParseAgentStatus(raw string) (AgentStatus, error) {
	status := AgentStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("schema: unknown agent status %q", raw)
	}
	return status, nil
}
