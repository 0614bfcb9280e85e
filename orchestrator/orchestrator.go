// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sideline-ai/sideline/agent"
	"github.com/sideline-ai/sideline/eventlog"
	"github.com/sideline-ai/sideline/lib/clock"
	"github.com/sideline-ai/sideline/schema"
	"github.com/sideline-ai/sideline/session"
)

// Agent names as they appear in status broadcasts and provenance
// envelopes.
const (
	extractionAgent = "entity-extraction"
	synthesisAgent  = "synthesis"
	rankingAgent    = "ranking"
	orchestratorID  = "orchestrator"
)

// enrichmentAgentNames maps job kinds to broadcast agent names.
var enrichmentAgentNames = map[string]string{
	schema.JobKindProfile:     "company-profile",
	schema.JobKindNews:        "company-news",
	schema.JobKindCompetitors: "competitor-landscape",
	schema.JobKindPerson:      "person-enrichment",
}

// Config wires an Orchestrator. Log, Extractor, Synthesizer, and
// Ranker are required; missing Enrichers simply mean those job kinds
// never run.
type Config struct {
	Log         *eventlog.Log
	Extractor   agent.Extractor
	Enrichers   []agent.Enricher
	Synthesizer agent.Synthesizer
	Ranker      agent.Ranker

	// Workers bounds concurrent collaborator calls across all
	// sessions. Defaults to 8.
	Workers int

	// JobTimeout bounds one enrichment call. Defaults to 15s.
	JobTimeout time.Duration

	// ConsumerName identifies this process within its consumer groups.
	// Defaults to "orchestrator-1".
	ConsumerName string

	// Logger receives pipeline diagnostics. Defaults to slog.Default.
	Logger *slog.Logger

	// Clock drives timestamps and job timing. Defaults to real time.
	Clock clock.Clock
}

// Orchestrator runs the transcript-to-suggestions pipeline. Create
// with New, attach with Start, and Drain before discarding.
type Orchestrator struct {
	cfg       Config
	log       *eventlog.Log
	enrichers map[string]agent.Enricher
	sessions  *session.Store
	statuses  *session.StatusTable
	logger    *slog.Logger
	clock     clock.Clock

	workers chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	synthesis map[string]*synthState

	domainResponses atomic.Int64
}

// synthState debounces synthesis per session: dirty marks that new
// evidence landed since the last turn, and the mutex serializes turns.
type synthState struct {
	mu    sync.Mutex
	dirty bool
}

// New validates cfg and returns an unstarted Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("orchestrator: config requires an event log")
	}
	if cfg.Extractor == nil || cfg.Synthesizer == nil || cfg.Ranker == nil {
		return nil, fmt.Errorf("orchestrator: config requires extractor, synthesizer, and ranker")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 15 * time.Second
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "orchestrator-1"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	enrichers := make(map[string]agent.Enricher, len(cfg.Enrichers))
	for _, enricher := range cfg.Enrichers {
		kind := enricher.Kind()
		if kind == agent.EntitiesKey {
			return nil, fmt.Errorf("orchestrator: job kind %q is reserved", kind)
		}
		if _, dup := enrichers[kind]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate enricher for kind %q", kind)
		}
		enrichers[kind] = enricher
	}

	logger := cfg.Logger.With("component", "orchestrator")
	return &Orchestrator{
		cfg:       cfg,
		log:       cfg.Log,
		enrichers: enrichers,
		sessions:  session.NewStore(cfg.Clock, logger),
		statuses:  session.NewStatusTable(),
		logger:    logger,
		clock:     cfg.Clock,
		workers:   make(chan struct{}, cfg.Workers),
		synthesis: make(map[string]*synthState),
	}, nil
}

// Start attaches the orchestrator's consumer groups. The pipeline runs
// until ctx is cancelled; call Drain afterwards to wait for in-flight
// work.
func (o *Orchestrator) Start(ctx context.Context) error {
	err := o.log.Subscribe(ctx, schema.TopicTranscripts, "orchestrator_main", o.cfg.ConsumerName,
		func(ctx context.Context, event schema.Event) error {
			return o.handleTranscript(ctx, event)
		})
	if err != nil {
		return fmt.Errorf("orchestrator: subscribing to transcripts: %w", err)
	}

	// Passive: counts landed enrichment results for observability. The
	// pipeline itself aggregates in-process.
	err = o.log.Subscribe(ctx, schema.TopicDomainResponses, "orchestrator_aggregator", o.cfg.ConsumerName,
		func(ctx context.Context, event schema.Event) error {
			o.domainResponses.Add(1)
			o.logger.Debug("domain response observed",
				"session_id", event.SessionID,
				"agent_id", event.AgentID)
			return nil
		})
	if err != nil {
		return fmt.Errorf("orchestrator: subscribing to domain responses: %w", err)
	}
	return nil
}

// Drain waits for all in-flight pipeline goroutines to finish.
func (o *Orchestrator) Drain() {
	o.wg.Wait()
}

// Session exposes a session context for inspection.
func (o *Orchestrator) Session(id string) (*session.Context, bool) {
	return o.sessions.Lookup(id)
}

// AgentStatuses returns a snapshot of the status table.
func (o *Orchestrator) AgentStatuses() map[string]session.AgentState {
	return o.statuses.Snapshot()
}

// DomainResponsesSeen reports how many domain_response events the
// aggregator group has observed.
func (o *Orchestrator) DomainResponsesSeen() int64 {
	return o.domainResponses.Load()
}

// acquireWorker takes a worker-pool slot, failing only on context
// cancellation. Every collaborator call holds a slot for its duration.
func (o *Orchestrator) acquireWorker(ctx context.Context) error {
	select {
	case o.workers <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) releaseWorker() {
	<-o.workers
}

// synthStateFor returns the session's debounce state, creating it on
// first use.
func (o *Orchestrator) synthStateFor(sessionID string) *synthState {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.synthesis[sessionID]
	if !ok {
		st = &synthState{}
		o.synthesis[sessionID] = st
	}
	return st
}

// updateStatus records an agent status transition and broadcasts it.
// Broadcasting is best-effort: a publish failure is logged and never
// fails the pipeline. Repeats of the current status are not
// re-broadcast.
func (o *Orchestrator) updateStatus(ctx context.Context, agentName string, status schema.AgentStatus, sessionID string, results any) {
	now := o.clock.Now()
	if !o.statuses.Set(agentName, status, sessionID, results, now) {
		return
	}

	event, err := schema.NewEvent(schema.EventTypeAgentStatus, sessionID, agentName,
		schema.AgentStatusPayload{
			AgentName: agentName,
			Status:    status,
			Timestamp: now,
			Results:   results,
		}, now)
	if err != nil {
		o.logger.Error("building status event failed", "agent", agentName, "error", err)
		return
	}
	if _, err := o.log.Publish(ctx, schema.TopicAgentStatus, event); err != nil {
		o.logger.Warn("status broadcast failed",
			"agent", agentName,
			"status", status,
			"error", err)
	}
}

// publishAdvisory sends an event to a topic, logging instead of
// failing when the write cannot land.
func (o *Orchestrator) publishAdvisory(ctx context.Context, topic schema.Topic, event schema.Event) {
	if _, err := o.log.Publish(ctx, topic, event); err != nil {
		o.logger.Warn("advisory publish failed",
			"topic", topic,
			"type", event.Type,
			"error", err)
	}
}
