// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds the orchestrator's per-meeting state: the
// accumulated transcript, the deduplicated entity set, the domain data
// gathered by enrichment jobs, and the session's provenance chain.
//
// A [Context] is created on the first event that names its session ID
// and lives for the process lifetime. All Context methods are safe for
// concurrent use — the transcript handler and the aggregator run on
// separate subscription loops and touch the same session.
//
// [Store] is the registry mapping session IDs to Contexts. [StatusTable]
// tracks the latest observed status per agent and reports transitions,
// so status broadcasts fire only on change.
package session
