// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownEventType is returned by DecodePayload for an envelope
// whose Type matches no known payload shape. Subscription handlers
// treat this as a poison message and dead-letter it.
var ErrUnknownEventType = errors.New("schema: unknown event type")

// Entity is one extracted entity from a transcript fragment.
type Entity struct {
	// Name is the canonical surface form ("Acme", "Dr. Chen").
	Name string `json:"name"`

	// Type is the entity class: "ORG", "PERSON", or an extractor-
	// specific label for anything else.
	Type string `json:"type"`

	// Specifications are short descriptors attached to the entity in
	// its sentence ("our competitor", "the CFO").
	Specifications []string `json:"specifications,omitempty"`

	// OriginalMentions are the surface forms the entity appeared
	// under, in first-seen order.
	OriginalMentions []string `json:"original_mentions,omitempty"`
}

// EntityTypeOrganization and EntityTypePerson are the entity classes
// the orchestrator fans out on. Other classes pass through unenriched.
const (
	EntityTypeOrganization = "ORG"
	EntityTypePerson       = "PERSON"
)

// Enrichment job kinds. Each kind writes its own slot in a session's
// domain data, so jobs of different kinds never contend.
const (
	JobKindProfile     = "profile"
	JobKindNews        = "news"
	JobKindCompetitors = "competitors"
	JobKindPerson      = "person"
)

// TranscriptPayload is the payload of transcript_received.
type TranscriptPayload struct {
	// Text is the transcribed fragment. Never empty.
	Text string `json:"text"`
}

// EntitiesPayload is the payload of entities_extracted.
type EntitiesPayload struct {
	ExtractedEntities []Entity `json:"extracted_entities"`
}

// EnrichmentResult is the outcome of one enrichment collaborator call,
// as defined by the collaborator contract.
type EnrichmentResult struct {
	// Event is the collaborator's own event label, e.g.
	// "domain.company_profile.fetched".
	Event string `json:"event"`

	SessionID string `json:"session_id"`

	// Exactly one of CompanyName or PersonName is set, matching the
	// entity type the job ran for.
	CompanyName string `json:"company_name,omitempty"`
	PersonName  string `json:"person_name,omitempty"`

	// Data is the fetched evidence. Shape varies by job kind.
	Data map[string]any `json:"data"`

	// Sources lists where the evidence came from, in fetch order.
	Sources []string `json:"sources"`

	// Confidence is the collaborator's self-assessed confidence in
	// [0,1].
	Confidence float64 `json:"confidence"`
}

// Empty reports whether the result carries no evidence. Readiness
// checks skip empty results.
func (r *EnrichmentResult) Empty() bool {
	return r == nil || len(r.Data) == 0
}

// DomainResponsePayload is the payload of domain_response: one
// enrichment job's result landed in a session's domain data.
type DomainResponsePayload struct {
	Entity string            `json:"entity"`
	Kind   string            `json:"kind"`
	Result *EnrichmentResult `json:"result"`
}

// Suggestion is one evidence-linked talking point. Field names follow
// the outbound delivery contract.
type Suggestion struct {
	ID              string  `json:"id"`
	TalkingPoint    string  `json:"talkingPoint"`
	Context         string  `json:"context"`
	ConfidenceScore float64 `json:"confidenceScore"`
	Source          string  `json:"source"`
	AgentName       string  `json:"agentName"`
	Type            string  `json:"type"`
	Provenance      string  `json:"provenance"`

	// Rank and RankingConfidence are attached by the ranking step:
	// Rank is the 1-based position, RankingConfidence is
	// monotonically non-increasing with rank.
	Rank              int     `json:"rank,omitempty"`
	RankingConfidence float64 `json:"ranking_confidence,omitempty"`
}

// SuggestionsReadyPayload is the payload of the terminal
// suggestions_ready event: the ranked list plus the complete
// serialized provenance chain (full audit lineage, not just the last
// step).
type SuggestionsReadyPayload struct {
	Suggestions     []Suggestion      `json:"suggestions"`
	ProvenanceChain []json.RawMessage `json:"provenance_chain"`
	CurrentAgent    string            `json:"current_agent"`
}

// AgentStatusPayload is the payload of agent_status_changed.
type AgentStatusPayload struct {
	AgentName string      `json:"agent_name"`
	Status    AgentStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`

	// Results carries the agent's output snapshot on completed
	// transitions; nil otherwise.
	Results any `json:"results,omitempty"`
}

// DecodePayload decodes an envelope's Data into the payload struct for
// its Type and validates the per-type required fields. Returns
// ErrUnknownEventType (wrapped) for types this process does not know,
// and a descriptive error for structurally invalid payloads. Both are
// poison-message conditions — redelivery cannot fix them.
func DecodePayload(event Event) (any, error) {
	switch event.Type {
	case EventTypeTranscriptReceived:
		var payload TranscriptPayload
		if err := decodeStrict(event.Data, &payload); err != nil {
			return nil, err
		}
		if payload.Text == "" {
			return nil, fmt.Errorf("schema: %s payload missing text", event.Type)
		}
		return payload, nil

	case EventTypeEntitiesExtracted:
		var payload EntitiesPayload
		if err := decodeStrict(event.Data, &payload); err != nil {
			return nil, err
		}
		for i, entity := range payload.ExtractedEntities {
			if entity.Name == "" || entity.Type == "" {
				return nil, fmt.Errorf("schema: %s payload entity %d missing name or type", event.Type, i)
			}
		}
		return payload, nil

	case EventTypeDomainResponse:
		var payload DomainResponsePayload
		if err := decodeStrict(event.Data, &payload); err != nil {
			return nil, err
		}
		if payload.Entity == "" || payload.Kind == "" {
			return nil, fmt.Errorf("schema: %s payload missing entity or kind", event.Type)
		}
		return payload, nil

	case EventTypeSuggestionsReady:
		var payload SuggestionsReadyPayload
		if err := decodeStrict(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeAgentStatus:
		var payload AgentStatusPayload
		if err := decodeStrict(event.Data, &payload); err != nil {
			return nil, err
		}
		if payload.AgentName == "" {
			return nil, fmt.Errorf("schema: %s payload missing agent_name", event.Type)
		}
		if !payload.Status.Valid() {
			return nil, fmt.Errorf("schema: %s payload has invalid status %q", event.Type, payload.Status)
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}
}

// decodeStrict unmarshals JSON into target, rejecting payloads that
// are not JSON objects of the expected shape. Unknown fields are
// tolerated for forward compatibility; type mismatches are not.
func decodeStrict(data json.RawMessage, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema: decoding payload: %w", err)
	}
	return nil
}
