// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topic names the append-only logs on the event bus. Producers append
// to a topic; consumer groups read from it at their own pace.
type Topic string

const (
	// TopicTranscripts carries transcript_received events from the
	// capture bridge to the orchestrator.
	TopicTranscripts Topic = "meeting:transcripts"

	// TopicEntities carries entities_extracted events. Informational;
	// the orchestrator consumes its own extraction results in-process
	// and publishes here for external observers.
	TopicEntities Topic = "meeting:entities"

	// TopicDomainRequests is reserved for routing enrichment requests
	// through the bus instead of the in-process worker pool. No
	// producer writes to it today.
	TopicDomainRequests Topic = "meeting:domain_requests"

	// TopicDomainResponses carries domain_response events, one per
	// landed enrichment job result.
	TopicDomainResponses Topic = "meeting:domain_responses"

	// TopicSuggestions carries the terminal suggestions_ready events.
	TopicSuggestions Topic = "meeting:suggestions"

	// TopicUIUpdates is reserved for an outbound delivery channel.
	// No producer writes to it today.
	TopicUIUpdates Topic = "meeting:ui_updates"

	// TopicAgentStatus carries agent_status_changed events, published
	// on every agent status transition.
	TopicAgentStatus Topic = "meeting:agent_status"
)

// Event type constants. These are the "type" field of the envelope and
// select the payload struct DecodePayload produces.
const (
	// EventTypeTranscriptReceived is one spoken fragment for a
	// session. Payload: TranscriptPayload.
	EventTypeTranscriptReceived = "transcript_received"

	// EventTypeEntitiesExtracted reports the entities found in one
	// fragment. Payload: EntitiesPayload.
	EventTypeEntitiesExtracted = "entities_extracted"

	// EventTypeDomainResponse reports one enrichment job result landed
	// in a session's domain data. Payload: DomainResponsePayload.
	EventTypeDomainResponse = "domain_response"

	// EventTypeSuggestionsReady is the terminal event for one
	// synthesis turn: the ranked talking points plus the session's
	// full provenance chain. Payload: SuggestionsReadyPayload.
	EventTypeSuggestionsReady = "suggestions_ready"

	// EventTypeAgentStatus reports an agent status transition.
	// Payload: AgentStatusPayload.
	EventTypeAgentStatus = "agent_status_changed"
)

// Event is the envelope for every message on the bus. All five fields
// are mandatory on publish. An event is immutable once published and
// belongs to exactly one session.
type Event struct {
	// Type selects the payload shape. One of the EventType constants.
	Type string `json:"type"`

	// SessionID identifies the meeting session this event belongs to.
	SessionID string `json:"session_id"`

	// AgentID names the agent that produced the event.
	AgentID string `json:"agent_id"`

	// Data is the JSON payload for Type. Decode it with DecodePayload.
	Data json.RawMessage `json:"data"`

	// Timestamp is when the producer created the event.
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks that all five envelope fields are present. The bus
// rejects events that fail validation at publish time, before anything
// reaches storage.
func (e *Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("schema: event missing type")
	}
	if e.SessionID == "" {
		return fmt.Errorf("schema: event missing session_id")
	}
	if e.AgentID == "" {
		return fmt.Errorf("schema: event missing agent_id")
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("schema: event missing data")
	}
	if !json.Valid(e.Data) {
		return fmt.Errorf("schema: event data is not valid JSON")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("schema: event missing timestamp")
	}
	return nil
}

// NewEvent builds an envelope with the payload marshalled to JSON.
// The caller supplies the timestamp so that event creation stays
// clock-injectable.
func NewEvent(eventType, sessionID, agentID string, payload any, timestamp time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("schema: encoding %s payload: %w", eventType, err)
	}
	return Event{
		Type:      eventType,
		SessionID: sessionID,
		AgentID:   agentID,
		Data:      data,
		Timestamp: timestamp,
	}, nil
}
