// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"fmt"
	"time"
)

// Envelope is the immutable record of one computation step.
type Envelope struct {
	// AgentID names the agent that performed the step.
	AgentID string `json:"agent_id" cbor:"agent_id"`

	// Timestamp is when the step completed.
	Timestamp time.Time `json:"timestamp" cbor:"timestamp"`

	// Inputs is what the agent was given.
	Inputs map[string]any `json:"inputs" cbor:"inputs"`

	// Outputs is what the agent produced.
	Outputs map[string]any `json:"outputs" cbor:"outputs"`

	// Confidence is the agent's self-assessed confidence in [0,1].
	Confidence float64 `json:"confidence" cbor:"confidence"`

	// Sources lists the evidence sources consulted, in order.
	Sources []string `json:"sources" cbor:"sources"`

	// ProcessingTime is how long the step took, in seconds.
	ProcessingTime float64 `json:"processing_time" cbor:"processing_time"`
}

// New builds an envelope for a completed step. elapsed is converted to
// seconds for the wire shape.
func New(agentID string, inputs, outputs map[string]any, confidence float64, sources []string, timestamp time.Time, elapsed time.Duration) Envelope {
	return Envelope{
		AgentID:        agentID,
		Timestamp:      timestamp,
		Inputs:         inputs,
		Outputs:        outputs,
		Confidence:     confidence,
		Sources:        sources,
		ProcessingTime: elapsed.Seconds(),
	}
}

// Validate checks the envelope's structural invariants.
func (e *Envelope) Validate() error {
	if e.AgentID == "" {
		return fmt.Errorf("provenance: envelope missing agent_id")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("provenance: envelope missing timestamp")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("provenance: confidence %v outside [0,1]", e.Confidence)
	}
	return nil
}
