// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the event types and payload structures that
// constitute the Sideline protocol: the five-field event envelope
// every producer publishes, the topic names, and one Go struct per
// event type describing its JSON payload.
//
// Payloads travel as JSON so that consumers outside this process can
// decode them with any JSON library. [DecodePayload] is the tagged
// union over the envelope's Type field: it decodes the payload into
// the matching struct and validates the per-type required fields,
// returning [ErrUnknownEventType] or a wrapped validation error for
// anything malformed. Subscription handlers route decode failures to
// the dead-letter path rather than retrying them forever.
//
// Key event types:
//
//   - [EventTypeTranscriptReceived] — one spoken fragment for a session
//   - [EventTypeEntitiesExtracted] — entities found in a fragment
//   - [EventTypeDomainResponse] — one enrichment job's landed result
//   - [EventTypeSuggestionsReady] — the terminal ranked talking points
//   - [EventTypeAgentStatus] — an agent's {idle,working,completed,error}
//     transition
//
// This package depends on no other Sideline packages.
package schema
