// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"
	"time"

	"github.com/sideline-ai/sideline/lib/clock"
	"github.com/sideline-ai/sideline/provenance"
	"github.com/sideline-ai/sideline/schema"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestStoreCreatesOnFirstUse(t *testing.T) {
	store := NewStore(clock.Fake(testEpoch), nil)

	first := store.Get("meeting-1")
	if first.ID() != "meeting-1" {
		t.Errorf("ID = %q, want meeting-1", first.ID())
	}
	if again := store.Get("meeting-1"); again != first {
		t.Error("Get returned a new Context for an existing session")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}

	if _, ok := store.Lookup("meeting-2"); ok {
		t.Error("Lookup materialized a session")
	}
	store.Get("meeting-2")
	if _, ok := store.Lookup("meeting-2"); !ok {
		t.Error("Lookup missed an existing session")
	}
}

func TestTranscriptAccumulates(t *testing.T) {
	store := NewStore(clock.Fake(testEpoch), nil)
	ctx := store.Get("meeting-1")

	ctx.AppendTranscript("We met with Acme yesterday.", testEpoch)
	ctx.AppendTranscript("Their CFO seemed interested.", testEpoch.Add(time.Second))

	if got := ctx.TranscriptCount(); got != 2 {
		t.Errorf("TranscriptCount = %d, want 2", got)
	}
	want := "We met with Acme yesterday. Their CFO seemed interested."
	if got := ctx.Transcript(); got != want {
		t.Errorf("Transcript = %q, want %q", got, want)
	}
}

func TestMergeEntitiesDeduplicates(t *testing.T) {
	store := NewStore(clock.Fake(testEpoch), nil)
	ctx := store.Get("meeting-1")

	fresh := ctx.MergeEntities([]schema.Entity{
		{Name: "Acme", Type: schema.EntityTypeOrganization, OriginalMentions: []string{"Acme"}},
		{Name: "Dana Ortiz", Type: schema.EntityTypePerson},
	}, testEpoch)
	if len(fresh) != 2 {
		t.Fatalf("first merge returned %d fresh entities, want 2", len(fresh))
	}

	// Same org under a different casing, with a new mention and spec:
	// not fresh, but the details must merge in.
	fresh = ctx.MergeEntities([]schema.Entity{
		{
			Name:             "acme",
			Type:             schema.EntityTypeOrganization,
			Specifications:   []string{"our competitor"},
			OriginalMentions: []string{"acme"},
		},
	}, testEpoch)
	if len(fresh) != 0 {
		t.Fatalf("re-merge returned %d fresh entities, want 0", len(fresh))
	}

	entities := ctx.Entities()
	if len(entities) != 2 {
		t.Fatalf("Entities returned %d, want 2", len(entities))
	}
	acme := entities[0]
	if acme.Name != "Acme" {
		t.Errorf("first-seen surface form lost: %q", acme.Name)
	}
	if len(acme.Specifications) != 1 || acme.Specifications[0] != "our competitor" {
		t.Errorf("specifications not merged: %v", acme.Specifications)
	}
	if len(acme.OriginalMentions) != 2 {
		t.Errorf("mentions not merged: %v", acme.OriginalMentions)
	}
}

func TestEntityKeySeparatesTypes(t *testing.T) {
	store := NewStore(clock.Fake(testEpoch), nil)
	ctx := store.Get("meeting-1")

	fresh := ctx.MergeEntities([]schema.Entity{
		{Name: "Mercury", Type: schema.EntityTypeOrganization},
		{Name: "Mercury", Type: schema.EntityTypePerson},
	}, testEpoch)
	if len(fresh) != 2 {
		t.Errorf("same name under different types merged; fresh = %d, want 2", len(fresh))
	}
}

func TestDomainDataSlots(t *testing.T) {
	store := NewStore(clock.Fake(testEpoch), nil)
	ctx := store.Get("meeting-1")

	if ctx.HasEvidence() {
		t.Error("empty session claims evidence")
	}

	empty := &schema.EnrichmentResult{Event: "domain.company_news.fetched", SessionID: "meeting-1"}
	ctx.SetDomainData("Acme", schema.JobKindNews, empty, testEpoch)
	if ctx.HasEvidence() {
		t.Error("empty result counted as evidence")
	}

	profile := &schema.EnrichmentResult{
		Event:       "domain.company_profile.fetched",
		SessionID:   "meeting-1",
		CompanyName: "Acme",
		Data:        map[string]any{"description": "Industrial supplier."},
		Sources:     []string{"https://en.wikipedia.org/wiki/Acme"},
		Confidence:  0.8,
	}
	ctx.SetDomainData("Acme", schema.JobKindProfile, profile, testEpoch)
	if !ctx.HasEvidence() {
		t.Error("non-empty result not counted as evidence")
	}

	data := ctx.DomainData()
	if data["Acme"][schema.JobKindProfile] != profile {
		t.Error("profile slot missing from snapshot")
	}

	// Snapshot mutation must not leak back into the session.
	delete(data["Acme"], schema.JobKindProfile)
	if ctx.DomainData()["Acme"][schema.JobKindProfile] == nil {
		t.Error("snapshot shares internal maps")
	}
}

func TestProvenanceChainThroughContext(t *testing.T) {
	store := NewStore(clock.Fake(testEpoch), nil)
	ctx := store.Get("meeting-1")

	for i, agent := range []string{"entity-extraction", "company-domain", "synthesis"} {
		envelope := provenance.New(agent,
			map[string]any{"step": i},
			map[string]any{"ok": true},
			0.9, []string{"internal"},
			testEpoch.Add(time.Duration(i)*time.Second), 10*time.Millisecond)
		if err := ctx.AppendProvenance(envelope); err != nil {
			t.Fatalf("AppendProvenance(%s): %v", agent, err)
		}
	}

	if got := ctx.ChainLen(); got != 3 {
		t.Errorf("ChainLen = %d, want 3", got)
	}
	if !ctx.VerifyChain() {
		t.Error("chain verification failed on untampered chain")
	}
	serialized, err := ctx.SerializeChain()
	if err != nil {
		t.Fatalf("SerializeChain: %v", err)
	}
	if len(serialized) != 3 {
		t.Errorf("serialized %d envelopes, want 3", len(serialized))
	}
}

func TestStatusTableReportsTransitions(t *testing.T) {
	table := NewStatusTable()

	if got := table.Get("synthesis"); got != schema.StatusIdle {
		t.Errorf("unknown agent status = %q, want idle", got)
	}
	if !table.Set("synthesis", schema.StatusWorking, "meeting-1", nil, testEpoch) {
		t.Error("first Set reported no transition")
	}
	if table.Set("synthesis", schema.StatusWorking, "meeting-1", nil, testEpoch.Add(time.Second)) {
		t.Error("repeated Set reported a transition")
	}
	results := map[string]any{"suggestions": 3}
	if !table.Set("synthesis", schema.StatusCompleted, "meeting-1", results, testEpoch.Add(2*time.Second)) {
		t.Error("status change reported no transition")
	}

	snapshot := table.Snapshot()
	state := snapshot["synthesis"]
	if state.Status != schema.StatusCompleted {
		t.Errorf("snapshot status = %q, want completed", state.Status)
	}
	if state.LastSessionID != "meeting-1" {
		t.Errorf("snapshot last session = %q, want meeting-1", state.LastSessionID)
	}
	if got, ok := state.LastResults.(map[string]any); !ok || got["suggestions"] != 3 {
		t.Errorf("snapshot last results = %v, want the completed snapshot", state.LastResults)
	}

	// A later working phase in another session moves the session but
	// keeps the last completed output visible.
	table.Set("synthesis", schema.StatusWorking, "meeting-2", nil, testEpoch.Add(3*time.Second))
	state = table.Snapshot()["synthesis"]
	if state.LastSessionID != "meeting-2" {
		t.Errorf("last session after new work = %q, want meeting-2", state.LastSessionID)
	}
	if state.LastResults == nil {
		t.Error("working transition erased the last result snapshot")
	}
}
