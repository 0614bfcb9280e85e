// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sideline-ai/sideline/provenance"
	"github.com/sideline-ai/sideline/schema"
)

// Context is the mutable aggregate for one meeting session. It
// accumulates monotonically: transcripts append, entities merge,
// domain data lands per (entity, kind) slot, and the provenance chain
// grows. Nothing is ever removed while the session lives.
type Context struct {
	id        string
	createdAt time.Time

	mu          sync.Mutex
	updatedAt   time.Time
	transcripts []string
	entities    []schema.Entity
	byKey       map[string]int // entity key -> index into entities
	domain      map[string]map[string]*schema.EnrichmentResult
	chain       *provenance.Chain
	suggestions []schema.Suggestion
}

func newContext(id string, now time.Time) *Context {
	return &Context{
		id:        id,
		createdAt: now,
		updatedAt: now,
		byKey:     make(map[string]int),
		domain:    make(map[string]map[string]*schema.EnrichmentResult),
		chain:     provenance.NewChain(),
	}
}

// ID returns the session identifier.
func (c *Context) ID() string { return c.id }

// CreatedAt returns when the session was first seen.
func (c *Context) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the time of the last mutation.
func (c *Context) UpdatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

// AppendTranscript adds one spoken fragment to the session history.
func (c *Context) AppendTranscript(text string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcripts = append(c.transcripts, text)
	c.updatedAt = now
}

// Transcript returns the accumulated fragments joined in arrival
// order.
func (c *Context) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.transcripts, " ")
}

// TranscriptCount returns how many fragments have arrived.
func (c *Context) TranscriptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transcripts)
}

// entityKey dedupes case-insensitively within a type: "Acme" and
// "acme" are one organization, but an ORG and a PERSON may share a
// name.
func entityKey(e schema.Entity) string {
	return e.Type + "\x00" + strings.ToLower(e.Name)
}

// MergeEntities folds newly extracted entities into the session's set
// and returns the ones not seen before. Known entities absorb any new
// specifications and mentions instead of duplicating.
func (c *Context) MergeEntities(extracted []schema.Entity, now time.Time) []schema.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fresh []schema.Entity
	for _, entity := range extracted {
		key := entityKey(entity)
		idx, seen := c.byKey[key]
		if !seen {
			c.byKey[key] = len(c.entities)
			c.entities = append(c.entities, entity)
			fresh = append(fresh, entity)
			continue
		}
		known := &c.entities[idx]
		known.Specifications = appendMissing(known.Specifications, entity.Specifications)
		known.OriginalMentions = appendMissing(known.OriginalMentions, entity.OriginalMentions)
	}
	if len(extracted) > 0 {
		c.updatedAt = now
	}
	return fresh
}

// appendMissing adds the strings not already present, preserving
// distinct surface forms ("Acme" and "ACME" are both kept).
func appendMissing(have, extra []string) []string {
	for _, s := range extra {
		if !slices.Contains(have, s) {
			have = append(have, s)
		}
	}
	return have
}

// Entities returns a copy of the session's deduplicated entity set in
// first-seen order.
func (c *Context) Entities() []schema.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schema.Entity, len(c.entities))
	copy(out, c.entities)
	return out
}

// SetDomainData records one enrichment job's result in the session's
// (entity, kind) slot. Later results for the same slot overwrite
// earlier ones: enrichment is idempotent and fresher data wins.
func (c *Context) SetDomainData(entity, kind string, result *schema.EnrichmentResult, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.domain[entity]
	if !ok {
		slot = make(map[string]*schema.EnrichmentResult)
		c.domain[entity] = slot
	}
	slot[kind] = result
	c.updatedAt = now
}

// DomainData returns a snapshot of the session's enrichment results,
// keyed by entity name then job kind. The maps are copies; the results
// themselves are shared and treated as immutable once landed.
func (c *Context) DomainData() map[string]map[string]*schema.EnrichmentResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]map[string]*schema.EnrichmentResult, len(c.domain))
	for entity, slots := range c.domain {
		copied := make(map[string]*schema.EnrichmentResult, len(slots))
		for kind, result := range slots {
			copied[kind] = result
		}
		out[entity] = copied
	}
	return out
}

// HasEvidence reports whether at least one non-empty enrichment result
// has landed. Synthesis without evidence produces only the fallback
// suggestion, so the orchestrator checks this first.
func (c *Context) HasEvidence() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, slots := range c.domain {
		for _, result := range slots {
			if !result.Empty() {
				return true
			}
		}
	}
	return false
}

// AppendProvenance adds one audit envelope to the session's chain.
func (c *Context) AppendProvenance(envelope provenance.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.chain.Append(envelope); err != nil {
		return fmt.Errorf("session %s: %w", c.id, err)
	}
	return nil
}

// ChainLen returns the number of envelopes in the provenance chain.
func (c *Context) ChainLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chain.Len()
}

// SerializeChain returns the full chain as JSON documents, oldest
// first, for inclusion in the terminal suggestions event.
func (c *Context) SerializeChain() ([]json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	serialized, err := c.chain.Serialize()
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", c.id, err)
	}
	return serialized, nil
}

// VerifyChain re-walks the chain's hash links and reports whether they
// are intact.
func (c *Context) VerifyChain() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chain.Verify()
}

// SetSuggestions replaces the session's latest ranked suggestion list.
func (c *Context) SetSuggestions(suggestions []schema.Suggestion, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suggestions = suggestions
	c.updatedAt = now
}

// Suggestions returns a copy of the latest ranked suggestion list.
func (c *Context) Suggestions() []schema.Suggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schema.Suggestion, len(c.suggestions))
	copy(out, c.suggestions)
	return out
}
