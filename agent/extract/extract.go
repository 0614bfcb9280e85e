// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package extract is an offline heuristic entity extractor: capitalized
// spans classified by corporate suffixes, honorifics, and shape. It
// stands in for a real NLP pipeline behind the same contract, which is
// enough to exercise the orchestration end to end.
package extract

import (
	"context"
	"slices"
	"strings"
	"unicode"

	"github.com/sideline-ai/sideline/schema"
)

// stopwords are capitalized words that never belong to an entity span,
// mostly sentence starters.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true,
	"but": true, "by": true, "for": true, "from": true, "he": true,
	"her": true, "his": true, "i": true, "if": true, "in": true,
	"it": true, "its": true, "last": true, "my": true, "next": true,
	"of": true, "on": true, "or": true, "our": true, "she": true,
	"so": true, "that": true, "the": true, "their": true, "then": true,
	"they": true, "this": true, "to": true, "today": true,
	"tomorrow": true, "we": true, "what": true, "when": true,
	"with": true, "yesterday": true, "you": true,
}

// corporateSuffixes mark a span as an organization.
var corporateSuffixes = map[string]bool{
	"co": true, "corp": true, "gmbh": true, "group": true,
	"holdings": true, "inc": true, "industries": true, "labs": true,
	"llc": true, "ltd": true, "partners": true, "software": true,
	"systems": true, "technologies": true, "ventures": true,
}

// honorifics mark the following span as a person and stay part of the
// surface form ("Dr. Chen").
var honorifics = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true,
}

// roleWords qualify an entity when they appear in an appositive right
// after it ("Dana Ortiz, the CFO, ...").
var roleWords = map[string]bool{
	"ceo": true, "cfo": true, "coo": true, "cto": true,
	"chairman": true, "director": true, "founder": true,
	"manager": true, "president": true, "vp": true,
}

// relationWords qualify an entity when they appear right before it
// ("our competitor Initech").
var relationWords = map[string]bool{
	"client": true, "competitor": true, "customer": true,
	"investor": true, "partner": true, "prospect": true,
	"supplier": true, "vendor": true,
}

// Extractor implements the extraction contract with the heuristics
// above. Stateless and safe for concurrent use.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

// Extract finds entity mentions in text and returns them deduplicated
// by (type, name), first surface form winning. The error return exists
// for the contract; extraction itself cannot fail.
func (e *Extractor) Extract(ctx context.Context, text string) ([]schema.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entities []schema.Entity
	index := make(map[string]int)

	words := strings.Fields(text)
	for i := 0; i < len(words); {
		span, next := spanAt(words, i)
		if span == nil {
			i++
			continue
		}
		entity := classify(span)
		entity.Specifications = specifications(words, i, next)

		key := entity.Type + "\x00" + strings.ToLower(entity.Name)
		if at, seen := index[key]; seen {
			known := &entities[at]
			known.Specifications = mergeUnique(known.Specifications, entity.Specifications)
			known.OriginalMentions = mergeUnique(known.OriginalMentions, entity.OriginalMentions)
		} else {
			index[key] = len(entities)
			entities = append(entities, entity)
		}
		i = next
	}
	return entities, nil
}

// spanAt returns the capitalized span starting at position i, or nil
// if none starts there. next is the position after the span. Sentence
// punctuation on a token ends the span, so spans never cross sentence
// boundaries.
func spanAt(words []string, i int) (span []string, next int) {
	if honorifics[strings.ToLower(trimWord(words[i]))] && i+1 < len(words) && isCapitalized(trimWord(words[i+1])) {
		span = append(span, words[i])
		i++
	}
	for i < len(words) {
		word := trimWord(words[i])
		if !isCapitalized(word) || stopwords[strings.ToLower(word)] {
			break
		}
		span = append(span, word)
		i++
		if strings.ContainsAny(words[i-1], ".,;:!?") {
			break
		}
	}
	if len(span) == 0 || (len(span) == 1 && honorifics[strings.ToLower(trimWord(span[0]))]) {
		return nil, i
	}
	return span, i
}

// classify decides the entity type from the span's shape.
func classify(span []string) schema.Entity {
	name := strings.Join(span, " ")
	entity := schema.Entity{Name: name, OriginalMentions: []string{name}}

	if honorifics[strings.ToLower(trimWord(span[0]))] {
		entity.Type = schema.EntityTypePerson
		return entity
	}
	for _, word := range span {
		if corporateSuffixes[strings.ToLower(trimWord(word))] {
			entity.Type = schema.EntityTypeOrganization
			return entity
		}
	}
	// Bare multi-word spans read as personal names; single capitalized
	// words read as organizations ("Acme").
	if len(span) >= 2 {
		entity.Type = schema.EntityTypePerson
	} else {
		entity.Type = schema.EntityTypeOrganization
	}
	return entity
}

// specifications collects qualifiers around the span: a relation word
// just before it ("our competitor Initech"), or a role word in the
// appositive just after it ("Dana Ortiz, the CFO").
func specifications(words []string, start, end int) []string {
	var specs []string
	if start > 0 {
		before := strings.ToLower(trimWord(words[start-1]))
		if relationWords[before] {
			qualifier := before
			if start > 1 {
				possessive := strings.ToLower(trimWord(words[start-2]))
				switch possessive {
				case "our", "their", "a", "the":
					qualifier = possessive + " " + qualifier
				}
			}
			specs = append(specs, qualifier)
		}
	}
	if end > start && strings.HasSuffix(words[end-1], ",") {
		for j := end; j < len(words) && j < end+3; j++ {
			word := strings.ToLower(trimWord(words[j]))
			if roleWords[word] {
				specs = append(specs, word)
				break
			}
		}
	}
	return specs
}

func trimWord(word string) string {
	return strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func isCapitalized(word string) bool {
	if word == "" {
		return false
	}
	runes := []rune(word)
	return unicode.IsUpper(runes[0])
}

// mergeUnique adds the strings not already present, preserving
// distinct surface forms.
func mergeUnique(have, extra []string) []string {
	for _, s := range extra {
		if !slices.Contains(have, s) {
			have = append(have, s)
		}
	}
	return have
}
