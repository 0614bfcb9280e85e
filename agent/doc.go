// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent defines the collaborator contracts the orchestrator
// consumes: entity extraction, per-kind enrichment, suggestion
// synthesis, and ranking.
//
// The orchestrator only sees these interfaces. The sibling packages
// agent/extract, agent/enrich, agent/synth, and agent/rank provide the
// shipped implementations; tests substitute fakes. Collaborators
// signal failure with ordinary errors — the orchestrator contains each
// failure to the job that raised it.
package agent
