// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"

	"github.com/sideline-ai/sideline/agent"
	"github.com/sideline-ai/sideline/agent/synth"
	"github.com/sideline-ai/sideline/provenance"
	"github.com/sideline-ai/sideline/schema"
	"github.com/sideline-ai/sideline/session"
)

// maybeSynthesize runs at most one synthesis turn for the batch that
// just completed. The dirty flag is set before taking the turn mutex,
// so of two concurrent batch completions one synthesizes with both
// batches' evidence and the other finds the flag already consumed and
// skips — synthesis is debounced per completed batch, never dropped.
func (o *Orchestrator) maybeSynthesize(ctx context.Context, sess *session.Context) {
	st := o.synthStateFor(sess.ID())

	st.mu.Lock()
	st.dirty = true
	st.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.dirty {
		return
	}
	if !sess.HasEvidence() {
		// Not ready: no non-empty result has landed yet. The flag stays
		// set so the first evidence-bearing batch synthesizes over
		// everything accumulated so far.
		return
	}
	st.dirty = false
	o.synthesizeSuggestions(ctx, sess)
}

// synthesizeSuggestions runs one synthesis turn over the session's
// accumulated evidence and hands the outcome to ranking. A failing
// synthesizer yields the labeled fallback suggestion — the turn always
// publishes.
func (o *Orchestrator) synthesizeSuggestions(ctx context.Context, sess *session.Context) {
	o.updateStatus(ctx, synthesisAgent, schema.StatusWorking, sess.ID(), nil)

	evidence := transposeEvidence(sess.DomainData())
	transcript := sess.Transcript()

	if err := o.acquireWorker(ctx); err != nil {
		return
	}
	start := o.clock.Now()
	synthesis, err := o.cfg.Synthesizer.Synthesize(ctx, sess.ID(), evidence, transcript)
	elapsed := o.clock.Now().Sub(start)
	o.releaseWorker()

	if err != nil {
		o.logger.Warn("synthesis failed, using fallback suggestion",
			"session_id", sess.ID(),
			"error", err)
		o.updateStatus(ctx, synthesisAgent, schema.StatusError, sess.ID(), nil)
		synthesis = &agent.Synthesis{
			Suggestions: []schema.Suggestion{synth.Fallback()},
			Confidence:  0.3,
			Sources:     []string{"fallback"},
		}
	} else {
		o.updateStatus(ctx, synthesisAgent, schema.StatusCompleted, sess.ID(), synthesis.Suggestions)
	}

	envelope := provenance.New(synthesisAgent,
		map[string]any{
			"evidence_categories": len(evidence),
			"transcript_length":   len(transcript),
		},
		map[string]any{"suggestions": len(synthesis.Suggestions)},
		synthesis.Confidence, synthesis.Sources,
		o.clock.Now(), elapsed)
	if err := sess.AppendProvenance(envelope); err != nil {
		o.logger.Error("recording synthesis provenance failed", "error", err)
	}

	o.rankAndPublish(ctx, sess, synthesis.Suggestions)
}

// rankAndPublish orders the suggestions and publishes the turn's
// single terminal suggestions_ready event, carrying the ranked list
// and the session's full provenance chain.
func (o *Orchestrator) rankAndPublish(ctx context.Context, sess *session.Context, suggestions []schema.Suggestion) {
	o.updateStatus(ctx, rankingAgent, schema.StatusWorking, sess.ID(), nil)

	start := o.clock.Now()
	ranked := o.cfg.Ranker.Rank(suggestions)
	elapsed := o.clock.Now().Sub(start)
	sess.SetSuggestions(ranked, o.clock.Now())

	envelope := provenance.New(rankingAgent,
		map[string]any{"suggestions": len(suggestions)},
		map[string]any{"ranked": len(ranked)},
		1.0, []string{"internal"},
		o.clock.Now(), elapsed)
	if err := sess.AppendProvenance(envelope); err != nil {
		o.logger.Error("recording ranking provenance failed", "error", err)
	}
	o.updateStatus(ctx, rankingAgent, schema.StatusCompleted, sess.ID(), ranked)

	chain, err := sess.SerializeChain()
	if err != nil {
		o.logger.Error("serializing provenance chain failed",
			"session_id", sess.ID(),
			"error", err)
	}
	event, err := schema.NewEvent(schema.EventTypeSuggestionsReady, sess.ID(), orchestratorID,
		schema.SuggestionsReadyPayload{
			Suggestions:     ranked,
			ProvenanceChain: chain,
			CurrentAgent:    rankingAgent,
		}, o.clock.Now())
	if err != nil {
		o.logger.Error("building suggestions event failed", "error", err)
		return
	}
	if _, err := o.log.Publish(ctx, schema.TopicSuggestions, event); err != nil {
		o.logger.Error("publishing suggestions failed",
			"session_id", sess.ID(),
			"error", err)
		return
	}
	o.logger.Info("suggestions published",
		"session_id", sess.ID(),
		"count", len(ranked),
		"chain_length", sess.ChainLen())
}

// transposeEvidence flips the session's {entity → {kind → result}}
// domain data into the synthesis shape {kind → {entity → data}}, with
// the raw per-entity nesting preserved under the reserved key. Empty
// results are dropped.
func transposeEvidence(domain map[string]map[string]*schema.EnrichmentResult) agent.Evidence {
	evidence := agent.Evidence{}
	raw := map[string]any{}

	for entity, slots := range domain {
		perEntity := map[string]any{}
		for kind, result := range slots {
			if result.Empty() {
				continue
			}
			category, ok := evidence[kind]
			if !ok {
				category = map[string]any{}
				evidence[kind] = category
			}
			category[entity] = result.Data
			perEntity[kind] = result.Data
		}
		if len(perEntity) > 0 {
			raw[entity] = perEntity
		}
	}

	evidence[agent.EntitiesKey] = raw
	return evidence
}
