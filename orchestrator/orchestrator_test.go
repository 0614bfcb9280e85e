// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sideline-ai/sideline/agent"
	"github.com/sideline-ai/sideline/agent/rank"
	"github.com/sideline-ai/sideline/eventlog"
	"github.com/sideline-ai/sideline/lib/testutil"
	"github.com/sideline-ai/sideline/schema"
	"github.com/sideline-ai/sideline/session"
)

const testTimeout = 5 * time.Second

type extractorFunc func(ctx context.Context, text string) ([]schema.Entity, error)

func (f extractorFunc) Extract(ctx context.Context, text string) ([]schema.Entity, error) {
	return f(ctx, text)
}

type fakeEnricher struct {
	kind string
	fn   func(ctx context.Context, sessionID, entityName string) (*schema.EnrichmentResult, error)
}

func (f *fakeEnricher) Kind() string { return f.kind }
func (f *fakeEnricher) Enrich(ctx context.Context, sessionID, entityName string) (*schema.EnrichmentResult, error) {
	return f.fn(ctx, sessionID, entityName)
}

type synthesizerFunc func(ctx context.Context, sessionID string, evidence agent.Evidence, transcript string) (*agent.Synthesis, error)

func (f synthesizerFunc) Synthesize(ctx context.Context, sessionID string, evidence agent.Evidence, transcript string) (*agent.Synthesis, error) {
	return f(ctx, sessionID, evidence, transcript)
}

// succeedingEnricher returns a non-empty result for its kind.
func succeedingEnricher(kind string) *fakeEnricher {
	return &fakeEnricher{kind: kind, fn: func(ctx context.Context, sessionID, entityName string) (*schema.EnrichmentResult, error) {
		return &schema.EnrichmentResult{
			Event:       "domain." + kind + ".fetched",
			SessionID:   sessionID,
			CompanyName: entityName,
			Data:        map[string]any{kind: "evidence for " + entityName},
			Sources:     []string{"https://example.test/" + kind},
			Confidence:  0.8,
		}, nil
	}}
}

// acmeExtractor finds "Acme" as an organization wherever it appears.
func acmeExtractor() extractorFunc {
	return func(ctx context.Context, text string) ([]schema.Entity, error) {
		if !strings.Contains(text, "Acme") {
			return nil, nil
		}
		return []schema.Entity{{
			Name:             "Acme",
			Type:             schema.EntityTypeOrganization,
			OriginalMentions: []string{"Acme"},
		}}, nil
	}
}

// defaultSynthesizer produces one suggestion per evidence category,
// skipping the reserved raw-entities key.
func defaultSynthesizer() synthesizerFunc {
	return func(ctx context.Context, sessionID string, evidence agent.Evidence, transcript string) (*agent.Synthesis, error) {
		synthesis := &agent.Synthesis{Confidence: 0.8}
		i := 0
		for category := range evidence {
			if category == agent.EntitiesKey {
				continue
			}
			synthesis.Suggestions = append(synthesis.Suggestions, schema.Suggestion{
				ID:              fmt.Sprintf("s-%s", category),
				TalkingPoint:    "Raise " + category,
				ConfidenceScore: 0.9 - 0.1*float64(i),
				Source:          category,
				AgentName:       "synthesis",
				Type:            "insight",
				Provenance:      "test",
			})
			i++
		}
		synthesis.Sources = []string{"test"}
		return synthesis, nil
	}
}

// harness wires an orchestrator over a fresh log with observer
// subscriptions on the outcome topics.
type harness struct {
	log         *eventlog.Log
	orch        *Orchestrator
	suggestions chan schema.Event
	statuses    chan schema.Event
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	log, err := eventlog.Open(eventlog.Config{
		Path:         filepath.Join(t.TempDir(), "events.db"),
		PollInterval: 50 * time.Millisecond,
		Logger:       slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("eventlog.Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	cfg.Log = log
	if cfg.Ranker == nil {
		cfg.Ranker = rank.New()
	}
	cfg.Logger = slog.New(slog.DiscardHandler)

	orch, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h := &harness{
		log:         log,
		orch:        orch,
		suggestions: make(chan schema.Event, 16),
		statuses:    make(chan schema.Event, 64),
	}
	forward := func(ch chan schema.Event) eventlog.Handler {
		return func(ctx context.Context, event schema.Event) error {
			ch <- event
			return nil
		}
	}
	if err := log.Subscribe(ctx, schema.TopicSuggestions, "test_observer", "t-1", forward(h.suggestions)); err != nil {
		t.Fatalf("Subscribe suggestions: %v", err)
	}
	if err := log.Subscribe(ctx, schema.TopicAgentStatus, "test_observer", "t-1", forward(h.statuses)); err != nil {
		t.Fatalf("Subscribe statuses: %v", err)
	}
	return h
}

func (h *harness) say(t *testing.T, sessionID, text string) {
	t.Helper()
	event, err := schema.NewEvent(schema.EventTypeTranscriptReceived, sessionID, "capture-bridge",
		schema.TranscriptPayload{Text: text}, time.Now().Truncate(time.Second))
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if _, err := h.log.Publish(context.Background(), schema.TopicTranscripts, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

// waitForSession polls until the session exists and has seen count
// fragments.
func (h *harness) waitForSession(t *testing.T, sessionID string, count int) *session.Context {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if sess, ok := h.orch.Session(sessionID); ok && sess.TranscriptCount() >= count {
			return sess
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s never reached %d fragments", sessionID, count)
	return nil
}

func suggestionsPayload(t *testing.T, event schema.Event) schema.SuggestionsReadyPayload {
	t.Helper()
	decoded, err := schema.DecodePayload(event)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	return decoded.(schema.SuggestionsReadyPayload)
}

func TestEndToEndAcme(t *testing.T) {
	h := newHarness(t, Config{
		Extractor: acmeExtractor(),
		Enrichers: []agent.Enricher{
			succeedingEnricher(schema.JobKindProfile),
			succeedingEnricher(schema.JobKindNews),
			succeedingEnricher(schema.JobKindCompetitors),
		},
		Synthesizer: defaultSynthesizer(),
	})

	h.say(t, "meeting-1", "We just met with Acme about the renewal.")
	event := testutil.RequireReceive(t, h.suggestions, testTimeout, "suggestions_ready")
	payload := suggestionsPayload(t, event)

	if len(payload.Suggestions) != 3 {
		t.Fatalf("got %d suggestions, want one per evidence category: %+v", len(payload.Suggestions), payload.Suggestions)
	}
	for i, s := range payload.Suggestions {
		if s.Rank != i+1 {
			t.Errorf("suggestion %d has rank %d", i, s.Rank)
		}
		if i > 0 && payload.Suggestions[i-1].RankingConfidence < s.RankingConfidence {
			t.Error("ranking confidence increased down the list")
		}
	}
	if payload.CurrentAgent != rankingAgent {
		t.Errorf("current_agent = %q", payload.CurrentAgent)
	}

	// Chain: extraction + 3 enrichments + synthesis + ranking.
	if len(payload.ProvenanceChain) < 5 {
		t.Errorf("provenance chain length = %d, want >= 5", len(payload.ProvenanceChain))
	}

	sess, ok := h.orch.Session("meeting-1")
	if !ok {
		t.Fatal("session missing")
	}
	if !sess.VerifyChain() {
		t.Error("provenance chain does not verify")
	}
	domain := sess.DomainData()
	if len(domain["Acme"]) != 3 {
		t.Errorf("domain data kinds for Acme = %d, want 3", len(domain["Acme"]))
	}

	// The aggregator group eventually observes all three landed jobs.
	deadline := time.Now().Add(testTimeout)
	for h.orch.DomainResponsesSeen() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := h.orch.DomainResponsesSeen(); got != 3 {
		t.Errorf("aggregator observed %d domain responses, want 3", got)
	}
}

func TestFanOutFailureIsolation(t *testing.T) {
	failing := &fakeEnricher{kind: schema.JobKindNews, fn: func(ctx context.Context, sessionID, entityName string) (*schema.EnrichmentResult, error) {
		return nil, fmt.Errorf("news upstream down")
	}}
	h := newHarness(t, Config{
		Extractor: acmeExtractor(),
		Enrichers: []agent.Enricher{
			succeedingEnricher(schema.JobKindProfile),
			failing,
			succeedingEnricher(schema.JobKindCompetitors),
		},
		Synthesizer: defaultSynthesizer(),
	})

	h.say(t, "meeting-1", "Acme came up.")
	event := testutil.RequireReceive(t, h.suggestions, testTimeout, "suggestions despite one failing job")
	payload := suggestionsPayload(t, event)
	if len(payload.Suggestions) != 2 {
		t.Errorf("got %d suggestions, want 2 (one per surviving category)", len(payload.Suggestions))
	}

	sess, _ := h.orch.Session("meeting-1")
	domain := sess.DomainData()["Acme"]
	if domain[schema.JobKindProfile] == nil || domain[schema.JobKindCompetitors] == nil {
		t.Error("surviving jobs' results missing")
	}
	if _, present := domain[schema.JobKindNews]; present {
		t.Error("failing job left a domain data slot behind")
	}
}

func TestZeroEntitiesStillAccumulates(t *testing.T) {
	h := newHarness(t, Config{
		Extractor:   acmeExtractor(),
		Enrichers:   []agent.Enricher{succeedingEnricher(schema.JobKindProfile)},
		Synthesizer: defaultSynthesizer(),
	})

	h.say(t, "meeting-1", "Nothing notable was said.")
	sess := h.waitForSession(t, "meeting-1", 1)
	h.orch.Drain()

	if got := sess.TranscriptCount(); got != 1 {
		t.Errorf("transcript count = %d, want 1", got)
	}
	if len(sess.Entities()) != 0 {
		t.Errorf("entities = %+v, want none", sess.Entities())
	}
	// No evidence, so no synthesis turn.
	select {
	case event := <-h.suggestions:
		t.Errorf("unexpected suggestions event: %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTranscriptHistoryOrder(t *testing.T) {
	h := newHarness(t, Config{
		Extractor:   extractorFunc(func(ctx context.Context, text string) ([]schema.Entity, error) { return nil, nil }),
		Synthesizer: defaultSynthesizer(),
	})

	for i := 1; i <= 3; i++ {
		h.say(t, "meeting-1", fmt.Sprintf("fragment %d.", i))
	}
	sess := h.waitForSession(t, "meeting-1", 3)
	h.orch.Drain()

	want := "fragment 1. fragment 2. fragment 3."
	if got := sess.Transcript(); got != want {
		t.Errorf("transcript = %q, want %q", got, want)
	}
}

func TestLaterFragmentRetriggersSynthesis(t *testing.T) {
	h := newHarness(t, Config{
		Extractor:   acmeExtractor(),
		Enrichers:   []agent.Enricher{succeedingEnricher(schema.JobKindProfile)},
		Synthesizer: defaultSynthesizer(),
	})

	h.say(t, "meeting-1", "Acme is on the call.")
	testutil.RequireReceive(t, h.suggestions, testTimeout, "first turn")

	// The second fragment adds no entities, but evidence already
	// exists, so readiness is re-evaluated and a new turn runs over the
	// longer transcript.
	h.say(t, "meeting-1", "They want a discount.")
	testutil.RequireReceive(t, h.suggestions, testTimeout, "second turn after entity-free fragment")
}

func TestSynthesisFallback(t *testing.T) {
	h := newHarness(t, Config{
		Extractor: acmeExtractor(),
		Enrichers: []agent.Enricher{succeedingEnricher(schema.JobKindProfile)},
		Synthesizer: synthesizerFunc(func(ctx context.Context, sessionID string, evidence agent.Evidence, transcript string) (*agent.Synthesis, error) {
			return nil, fmt.Errorf("model unavailable")
		}),
	})

	h.say(t, "meeting-1", "Acme again.")
	event := testutil.RequireReceive(t, h.suggestions, testTimeout, "fallback turn")
	payload := suggestionsPayload(t, event)
	if len(payload.Suggestions) != 1 {
		t.Fatalf("got %d suggestions, want the single fallback", len(payload.Suggestions))
	}
	fallback := payload.Suggestions[0]
	if fallback.Type != "fallback" || fallback.Source != "fallback" {
		t.Errorf("fallback not labeled: %+v", fallback)
	}
	if fallback.Rank != 1 {
		t.Errorf("fallback rank = %d, want 1", fallback.Rank)
	}
}

func TestWorkingPrecedesTerminalStatus(t *testing.T) {
	h := newHarness(t, Config{
		Extractor:   acmeExtractor(),
		Enrichers:   []agent.Enricher{succeedingEnricher(schema.JobKindProfile)},
		Synthesizer: defaultSynthesizer(),
	})

	h.say(t, "meeting-1", "Acme kickoff.")
	testutil.RequireReceive(t, h.suggestions, testTimeout, "turn finished")

	firstSeen := make(map[string]schema.AgentStatus)
drain:
	for {
		select {
		case event := <-h.statuses:
			decoded, err := schema.DecodePayload(event)
			if err != nil {
				t.Fatalf("DecodePayload: %v", err)
			}
			status := decoded.(schema.AgentStatusPayload)
			if _, seen := firstSeen[status.AgentName]; !seen {
				firstSeen[status.AgentName] = status.Status
				if status.Status != schema.StatusWorking {
					t.Errorf("agent %s reported %s before working", status.AgentName, status.Status)
				}
			}
		case <-time.After(500 * time.Millisecond):
			break drain
		}
	}
	for _, name := range []string{extractionAgent, "company-profile", synthesisAgent, rankingAgent} {
		if _, seen := firstSeen[name]; !seen {
			t.Errorf("agent %s never reported a status", name)
		}
	}
}

func TestRedeliveryDoesNotEraseContext(t *testing.T) {
	h := newHarness(t, Config{
		Extractor:   acmeExtractor(),
		Enrichers:   []agent.Enricher{succeedingEnricher(schema.JobKindProfile)},
		Synthesizer: defaultSynthesizer(),
	})

	h.say(t, "meeting-1", "Acme fragment one.")
	testutil.RequireReceive(t, h.suggestions, testTimeout, "first turn")
	sess, _ := h.orch.Session("meeting-1")
	entitiesBefore := len(sess.Entities())

	// A duplicate delivery of an equivalent fragment must merge, not
	// reset: the entity set stays deduplicated and history only grows.
	h.say(t, "meeting-1", "Acme fragment one.")
	h.waitForSession(t, "meeting-1", 2)
	h.orch.Drain()

	if got := len(sess.Entities()); got != entitiesBefore {
		t.Errorf("entity count changed from %d to %d on duplicate", entitiesBefore, got)
	}
	if got := sess.TranscriptCount(); got != 2 {
		t.Errorf("transcript count = %d, want 2", got)
	}
}
