// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"context"
	"testing"

	"github.com/sideline-ai/sideline/schema"
)

func extractOne(t *testing.T, text string) []schema.Entity {
	t.Helper()
	entities, err := New().Extract(context.Background(), text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return entities
}

func findEntity(entities []schema.Entity, name string) *schema.Entity {
	for i := range entities {
		if entities[i].Name == name {
			return &entities[i]
		}
	}
	return nil
}

func TestExtractClassification(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantName string
		wantType string
	}{
		{"corporate suffix", "We met with Acme Corp yesterday.", "Acme Corp", schema.EntityTypeOrganization},
		{"single capitalized word", "The pitch to Initech went well.", "Initech", schema.EntityTypeOrganization},
		{"honorific", "Dr. Chen asked about pricing.", "Dr. Chen", schema.EntityTypePerson},
		{"two-word name", "Dana Ortiz raised the budget question.", "Dana Ortiz", schema.EntityTypePerson},
		{"suffix beats name shape", "Morgan Holdings wants a demo.", "Morgan Holdings", schema.EntityTypeOrganization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := extractOne(t, tt.text)
			entity := findEntity(entities, tt.wantName)
			if entity == nil {
				t.Fatalf("entity %q not found in %+v", tt.wantName, entities)
			}
			if entity.Type != tt.wantType {
				t.Errorf("type = %q, want %q", entity.Type, tt.wantType)
			}
		})
	}
}

func TestExtractIgnoresSentenceStarters(t *testing.T) {
	entities := extractOne(t, "Yesterday we talked. Tomorrow they decide. The deal is close.")
	if len(entities) != 0 {
		t.Errorf("extracted from entity-free text: %+v", entities)
	}
}

func TestExtractDeduplicatesMentions(t *testing.T) {
	entities := extractOne(t, "Acme called again. I think Acme is ready, and ACME always pays on time.")
	if len(entities) != 1 {
		t.Fatalf("got %d entities, want 1: %+v", len(entities), entities)
	}
	acme := entities[0]
	if acme.Name != "Acme" {
		t.Errorf("first-seen surface form lost: %q", acme.Name)
	}
	if len(acme.OriginalMentions) != 2 {
		t.Errorf("mentions = %v, want the two distinct casings", acme.OriginalMentions)
	}
}

func TestExtractSpecifications(t *testing.T) {
	t.Run("relation before the entity", func(t *testing.T) {
		entities := extractOne(t, "They are talking to our competitor Initech.")
		initech := findEntity(entities, "Initech")
		if initech == nil {
			t.Fatalf("Initech not found: %+v", entities)
		}
		if len(initech.Specifications) != 1 || initech.Specifications[0] != "our competitor" {
			t.Errorf("specifications = %v, want [our competitor]", initech.Specifications)
		}
	})
	t.Run("role in the appositive", func(t *testing.T) {
		entities := extractOne(t, "Dana Ortiz, the CFO, seemed hesitant.")
		dana := findEntity(entities, "Dana Ortiz")
		if dana == nil {
			t.Fatalf("Dana Ortiz not found: %+v", entities)
		}
		if len(dana.Specifications) != 1 || dana.Specifications[0] != "cfo" {
			t.Errorf("specifications = %v, want [cfo]", dana.Specifications)
		}
	})
}

func TestExtractSpansStopAtSentenceBoundaries(t *testing.T) {
	entities := extractOne(t, "The meeting covered Acme. Initech came up later.")
	if findEntity(entities, "Acme") == nil || findEntity(entities, "Initech") == nil {
		t.Fatalf("expected Acme and Initech separately, got %+v", entities)
	}
	if findEntity(entities, "Acme Initech") != nil {
		t.Error("span crossed a sentence boundary")
	}
}

func TestExtractCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Extract(ctx, "Acme"); err == nil {
		t.Error("Extract ignored a cancelled context")
	}
}
