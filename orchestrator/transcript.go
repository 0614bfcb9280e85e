// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sideline-ai/sideline/agent"
	"github.com/sideline-ai/sideline/eventlog"
	"github.com/sideline-ai/sideline/provenance"
	"github.com/sideline-ai/sideline/schema"
	"github.com/sideline-ai/sideline/session"
)

// extractionConfidence is the fixed self-assessment attached to
// heuristic extraction provenance. The extractor contract has no
// per-call confidence.
const extractionConfidence = 0.85

// handleTranscript is the transcripts-group handler. It records the
// fragment synchronously (exactly one history entry per handled
// event), then hands the pipeline to a goroutine so the subscription
// loop is never blocked by collaborator calls.
func (o *Orchestrator) handleTranscript(ctx context.Context, event schema.Event) error {
	decoded, err := schema.DecodePayload(event)
	if err != nil {
		return fmt.Errorf("transcript payload: %v: %w", err, eventlog.ErrPermanent)
	}
	payload, ok := decoded.(schema.TranscriptPayload)
	if !ok {
		return fmt.Errorf("unexpected %s event on transcripts topic: %w", event.Type, eventlog.ErrPermanent)
	}

	sess := o.sessions.Get(event.SessionID)
	sess.AppendTranscript(payload.Text, o.clock.Now())

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.processTranscript(ctx, sess, payload.Text)
	}()
	return nil
}

// processTranscript runs extraction for one fragment and fans out
// enrichment for the entities it surfaces.
func (o *Orchestrator) processTranscript(ctx context.Context, sess *session.Context, text string) {
	o.updateStatus(ctx, extractionAgent, schema.StatusWorking, sess.ID(), nil)

	if err := o.acquireWorker(ctx); err != nil {
		return
	}
	start := o.clock.Now()
	entities, err := o.cfg.Extractor.Extract(ctx, text)
	elapsed := o.clock.Now().Sub(start)
	o.releaseWorker()

	if err != nil {
		o.logger.Error("entity extraction failed",
			"session_id", sess.ID(),
			"error", err)
		o.updateStatus(ctx, extractionAgent, schema.StatusError, sess.ID(), nil)
		return
	}

	envelope := provenance.New(extractionAgent,
		map[string]any{"text": text},
		map[string]any{"extracted_entities": entities},
		extractionConfidence, []string{"transcript"},
		o.clock.Now(), elapsed)
	if err := sess.AppendProvenance(envelope); err != nil {
		o.logger.Error("recording extraction provenance failed", "error", err)
	}

	fresh := sess.MergeEntities(entities, o.clock.Now())
	o.updateStatus(ctx, extractionAgent, schema.StatusCompleted, sess.ID(),
		schema.EntitiesPayload{ExtractedEntities: entities})

	if event, err := schema.NewEvent(schema.EventTypeEntitiesExtracted, sess.ID(), extractionAgent,
		schema.EntitiesPayload{ExtractedEntities: entities}, o.clock.Now()); err == nil {
		o.publishAdvisory(ctx, schema.TopicEntities, event)
	}

	o.fanOutEnrichment(ctx, sess, fresh)
}

// enrichmentJob is one (entity, kind) unit of a fan-out batch.
type enrichmentJob struct {
	entity    schema.Entity
	enricher  agent.Enricher
	agentName string
}

// jobsFor expands an entity into its enrichment jobs: organizations
// get every company-facing kind with a configured enricher, people get
// person enrichment. Other entity types pass through unenriched.
func (o *Orchestrator) jobsFor(entity schema.Entity) []enrichmentJob {
	var kinds []string
	switch entity.Type {
	case schema.EntityTypeOrganization:
		kinds = []string{schema.JobKindProfile, schema.JobKindNews, schema.JobKindCompetitors}
	case schema.EntityTypePerson:
		kinds = []string{schema.JobKindPerson}
	default:
		return nil
	}

	var jobs []enrichmentJob
	for _, kind := range kinds {
		enricher, ok := o.enrichers[kind]
		if !ok {
			continue
		}
		jobs = append(jobs, enrichmentJob{
			entity:    entity,
			enricher:  enricher,
			agentName: enrichmentAgentNames[kind],
		})
	}
	return jobs
}

// fanOutEnrichment launches all jobs for one fragment's fresh entities
// together, joins them as a batch, and triggers a synthesis turn. One
// job's failure never cancels its siblings. Readiness is evaluated
// even for an empty batch — earlier fragments may already have
// supplied evidence.
func (o *Orchestrator) fanOutEnrichment(ctx context.Context, sess *session.Context, entities []schema.Entity) {
	var jobs []enrichmentJob
	for _, entity := range entities {
		jobs = append(jobs, o.jobsFor(entity)...)
	}

	var batch sync.WaitGroup
	for _, job := range jobs {
		batch.Add(1)
		o.wg.Add(1)
		go func(job enrichmentJob) {
			defer batch.Done()
			defer o.wg.Done()
			o.runEnrichmentJob(ctx, sess, job)
		}(job)
	}
	batch.Wait()

	o.maybeSynthesize(ctx, sess)
}

// runEnrichmentJob calls one enricher with a timeout and lands its
// result. On failure nothing is stored: the (entity, kind) slot stays
// absent and the failure is contained to this job.
func (o *Orchestrator) runEnrichmentJob(ctx context.Context, sess *session.Context, job enrichmentJob) {
	o.updateStatus(ctx, job.agentName, schema.StatusWorking, sess.ID(), nil)

	if err := o.acquireWorker(ctx); err != nil {
		return
	}
	jobCtx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	start := o.clock.Now()
	result, err := job.enricher.Enrich(jobCtx, sess.ID(), job.entity.Name)
	elapsed := o.clock.Now().Sub(start)
	cancel()
	o.releaseWorker()

	if err != nil {
		o.logger.Warn("enrichment job failed",
			"session_id", sess.ID(),
			"entity", job.entity.Name,
			"kind", job.enricher.Kind(),
			"elapsed", elapsed,
			"error", err)
		o.updateStatus(ctx, job.agentName, schema.StatusError, sess.ID(), nil)
		return
	}

	o.storeDomainData(ctx, sess, job, result, elapsed)
	o.updateStatus(ctx, job.agentName, schema.StatusCompleted, sess.ID(), result)
}

// storeDomainData writes a landed result into the session, appends its
// provenance envelope, and announces it with a fire-and-forget
// domain_response event.
func (o *Orchestrator) storeDomainData(ctx context.Context, sess *session.Context, job enrichmentJob, result *schema.EnrichmentResult, elapsed time.Duration) {
	kind := job.enricher.Kind()
	now := o.clock.Now()
	sess.SetDomainData(job.entity.Name, kind, result, now)

	envelope := provenance.New(job.agentName,
		map[string]any{"entity": job.entity.Name, "kind": kind},
		map[string]any{"data": result.Data},
		result.Confidence, result.Sources,
		now, elapsed)
	if err := sess.AppendProvenance(envelope); err != nil {
		o.logger.Error("recording enrichment provenance failed",
			"entity", job.entity.Name,
			"kind", kind,
			"error", err)
	}

	if event, err := schema.NewEvent(schema.EventTypeDomainResponse, sess.ID(), job.agentName,
		schema.DomainResponsePayload{Entity: job.entity.Name, Kind: kind, Result: result},
		now); err == nil {
		o.publishAdvisory(ctx, schema.TopicDomainResponses, event)
	}
}
