// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/sideline-ai/sideline/lib/codec"
)

// link is a BLAKE3 hash binding an envelope to everything appended
// before it.
type link [32]byte

// entry pairs an envelope with its link hash.
type entry struct {
	envelope Envelope
	link     link
}

// Chain is a session's append-only audit trail. Envelopes are added
// with Append in wall-clock append order and never removed or
// reordered.
type Chain struct {
	entries []entry
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Append validates the envelope and adds it to the chain, computing
// its link hash over the previous link and the envelope's canonical
// CBOR encoding.
func (c *Chain) Append(envelope Envelope) error {
	if err := envelope.Validate(); err != nil {
		return err
	}

	encoded, err := codec.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("provenance: encoding envelope for %s: %w", envelope.AgentID, err)
	}

	var previous link
	if len(c.entries) > 0 {
		previous = c.entries[len(c.entries)-1].link
	}

	hasher := blake3.New()
	hasher.Write(previous[:])
	hasher.Write(encoded)

	var next link
	copy(next[:], hasher.Sum(nil))

	c.entries = append(c.entries, entry{envelope: envelope, link: next})
	return nil
}

// Len returns the number of envelopes in the chain.
func (c *Chain) Len() int { return len(c.entries) }

// Envelopes returns a copy of the chain's envelopes in append order.
func (c *Chain) Envelopes() []Envelope {
	envelopes := make([]Envelope, len(c.entries))
	for i, e := range c.entries {
		envelopes[i] = e.envelope
	}
	return envelopes
}

// Head returns the hex-encoded link hash of the newest envelope, or
// the empty string for an empty chain.
func (c *Chain) Head() string {
	if len(c.entries) == 0 {
		return ""
	}
	head := c.entries[len(c.entries)-1].link
	return hex.EncodeToString(head[:])
}

// Serialize renders every envelope as JSON, in append order, for the
// terminal suggestions_ready event's provenance_chain field.
func (c *Chain) Serialize() ([]json.RawMessage, error) {
	serialized := make([]json.RawMessage, 0, len(c.entries))
	for _, e := range c.entries {
		encoded, err := json.Marshal(e.envelope)
		if err != nil {
			return nil, fmt.Errorf("provenance: serializing envelope for %s: %w", e.envelope.AgentID, err)
		}
		serialized = append(serialized, encoded)
	}
	return serialized, nil
}

// Verify recomputes every link hash from the envelopes and reports
// whether the stored links match. A false result means an envelope or
// link was altered after it was appended.
func (c *Chain) Verify() bool {
	var previous link
	for _, e := range c.entries {
		encoded, err := codec.Marshal(e.envelope)
		if err != nil {
			return false
		}
		hasher := blake3.New()
		hasher.Write(previous[:])
		hasher.Write(encoded)

		var expected link
		copy(expected[:], hasher.Sum(nil))
		if expected != e.link {
			return false
		}
		previous = expected
	}
	return true
}
