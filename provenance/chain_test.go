// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package provenance

import (
	"testing"
	"time"
)

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testEnvelope(agentID string, confidence float64) Envelope {
	return New(agentID,
		map[string]any{"text": "input"},
		map[string]any{"result": "output"},
		confidence,
		[]string{"TestSource"},
		testTime,
		250*time.Millisecond,
	)
}

func TestEnvelopeValidate(t *testing.T) {
	valid := testEnvelope("extractor", 0.9)
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}
	if valid.ProcessingTime != 0.25 {
		t.Fatalf("ProcessingTime = %v, want 0.25", valid.ProcessingTime)
	}

	missing := valid
	missing.AgentID = ""
	if err := missing.Validate(); err == nil {
		t.Fatal("expected error for missing agent_id")
	}

	outOfRange := valid
	outOfRange.Confidence = 1.5
	if err := outOfRange.Validate(); err == nil {
		t.Fatal("expected error for confidence > 1")
	}
}

func TestChainAppendOrder(t *testing.T) {
	chain := NewChain()
	for _, agent := range []string{"extractor", "profile", "synthesis"} {
		if err := chain.Append(testEnvelope(agent, 0.8)); err != nil {
			t.Fatalf("Append(%s): %v", agent, err)
		}
	}

	if chain.Len() != 3 {
		t.Fatalf("Len = %d, want 3", chain.Len())
	}
	envelopes := chain.Envelopes()
	want := []string{"extractor", "profile", "synthesis"}
	for i, agent := range want {
		if envelopes[i].AgentID != agent {
			t.Fatalf("envelope %d agent = %q, want %q", i, envelopes[i].AgentID, agent)
		}
	}
}

func TestChainRejectsInvalidEnvelope(t *testing.T) {
	chain := NewChain()
	bad := testEnvelope("extractor", 2.0)
	if err := chain.Append(bad); err == nil {
		t.Fatal("expected error for invalid envelope")
	}
	if chain.Len() != 0 {
		t.Fatal("invalid envelope was appended")
	}
}

func TestChainVerify(t *testing.T) {
	chain := NewChain()
	for i := 0; i < 5; i++ {
		if err := chain.Append(testEnvelope("agent", 0.5)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if !chain.Verify() {
		t.Fatal("freshly built chain failed verification")
	}

	// Tampering with an envelope after the fact must break the links.
	chain.entries[2].envelope.Confidence = 0.99
	if chain.Verify() {
		t.Fatal("tampered chain passed verification")
	}
}

func TestChainHeadChangesPerAppend(t *testing.T) {
	chain := NewChain()
	if chain.Head() != "" {
		t.Fatal("empty chain has non-empty head")
	}

	chain.Append(testEnvelope("a", 0.5))
	first := chain.Head()
	chain.Append(testEnvelope("a", 0.5))
	second := chain.Head()

	if first == "" || second == "" || first == second {
		t.Fatalf("head did not advance: %q → %q", first, second)
	}
}

func TestChainSerialize(t *testing.T) {
	chain := NewChain()
	chain.Append(testEnvelope("extractor", 0.9))
	chain.Append(testEnvelope("ranking", 0.8))

	serialized, err := chain.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if len(serialized) != 2 {
		t.Fatalf("serialized %d envelopes, want 2", len(serialized))
	}
	for i, raw := range serialized {
		if len(raw) == 0 {
			t.Fatalf("serialized envelope %d is empty", i)
		}
	}
}
