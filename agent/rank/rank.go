// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package rank orders suggestions for delivery.
package rank

import (
	"slices"

	"github.com/sideline-ai/sideline/schema"
)

// Ranker sorts suggestions by confidence score, descending and stable:
// equal scores keep their input order, so ranking is deterministic.
// Rank is the 1-based position; ranking confidence decays by 0.1 per
// position from 0.9 and floors at 0.5, which keeps it non-increasing
// down the list.
type Ranker struct{}

func New() *Ranker { return &Ranker{} }

// Rank returns a ranked copy of suggestions. The input is not
// mutated.
func (r *Ranker) Rank(suggestions []schema.Suggestion) []schema.Suggestion {
	ranked := slices.Clone(suggestions)
	slices.SortStableFunc(ranked, func(a, b schema.Suggestion) int {
		switch {
		case a.ConfidenceScore > b.ConfidenceScore:
			return -1
		case a.ConfidenceScore < b.ConfidenceScore:
			return 1
		}
		return 0
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].RankingConfidence = max(0.9-0.1*float64(i), 0.5)
	}
	return ranked
}
