// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator drives the pipeline from transcript fragments
// to ranked talking points.
//
// One Orchestrator owns one session store and one agent status table.
// Start attaches two durable consumer groups to the event log: the
// main group consumes transcript_received events and runs the
// pipeline; the aggregator group passively counts domain_response
// events as telemetry.
//
// For each fragment the orchestrator extracts entities, fans out
// enrichment jobs (organizations get profile, news, and competitor
// lookups; people get person enrichment), joins the batch, and — once
// any evidence exists — synthesizes and ranks suggestions, publishing
// exactly one terminal suggestions_ready event per completed batch.
// Synthesis is debounced per session: concurrent batch completions
// trigger it once, not once each.
//
// Failure is contained at the narrowest scope that can absorb it: a
// failing enrichment job leaves its siblings' results intact, a
// failing synthesizer yields the labeled fallback suggestion, and a
// failing status publish is logged and ignored. Collaborator calls run
// on a bounded worker pool so they never block the subscription loops.
package orchestrator
