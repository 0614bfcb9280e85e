// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"

	"github.com/sideline-ai/sideline/schema"
)

// EntitiesKey is the reserved key in synthesis evidence under which the
// raw per-entity data is nested, alongside the per-kind categories. No
// job kind may use this name.
const EntitiesKey = "_entities"

// Extractor finds named entities in one transcript fragment.
type Extractor interface {
	// Extract returns the entities mentioned in text. An empty slice is
	// a normal result, not an error.
	Extract(ctx context.Context, text string) ([]schema.Entity, error)
}

// Enricher fetches domain evidence of one kind for one entity.
// Implementations are keyed by the job kinds in package schema.
type Enricher interface {
	// Kind returns the job kind this enricher serves, one of the
	// schema.JobKind constants.
	Kind() string

	// Enrich fetches evidence for the named entity. The result's
	// Confidence and Sources feed the provenance envelope the
	// orchestrator wraps around the call.
	Enrich(ctx context.Context, sessionID, entityName string) (*schema.EnrichmentResult, error)
}

// Evidence is the synthesis input: job-kind categories mapping entity
// name to that kind's fetched data, plus the raw per-entity nesting
// under [EntitiesKey].
type Evidence map[string]map[string]any

// Synthesis is a synthesizer's output for one turn.
type Synthesis struct {
	// Suggestions are the proposed talking points, at most a handful
	// per turn, unranked.
	Suggestions []schema.Suggestion

	// Confidence is the synthesizer's self-assessed confidence in the
	// set as a whole, in [0,1].
	Confidence float64

	// Sources lists the evidence sources the synthesizer drew on.
	Sources []string
}

// Synthesizer turns accumulated evidence and transcript history into
// talking-point suggestions.
type Synthesizer interface {
	Synthesize(ctx context.Context, sessionID string, evidence Evidence, transcript string) (*Synthesis, error)
}

// Ranker orders suggestions for delivery. Implementations must be
// deterministic and must not mutate the input slice.
type Ranker interface {
	Rank(suggestions []schema.Suggestion) []schema.Suggestion
}
