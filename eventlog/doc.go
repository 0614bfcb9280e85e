// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventlog is Sideline's durable event bus: a topic-keyed
// append-only log in SQLite with consumer-group delivery.
//
// Producers call [Log.Publish], which assigns the next per-topic
// sequence number and stores the event envelope as deterministic CBOR
// (large payloads are transparently zstd-compressed). Publish never
// blocks on consumers and never retries — on failure the caller gets
// an error and decides whether the loss matters.
//
// Consumers call [Log.Subscribe] with a (topic, group, consumer) triple
// and a handler. Each subscription runs its own read loop goroutine.
// The group's cursor — the last-acknowledged sequence, owned solely by
// the log — is created at the earliest position on first use;
// re-subscribing an existing group is idempotent and never rewinds
// prior progress. Messages are read one at a time and acknowledged
// (cursor advanced) only when the handler returns nil. This is an
// at-least-once contract: a handler error leaves the message
// unacknowledged for redelivery, so all handlers must tolerate
// duplicates.
//
// Two failure paths keep the loop alive. Storage errors back off
// exponentially and retry — the loop never terminates on a transport
// fault. Poison messages — payloads that fail to decode, or handlers
// that fail more than the configured attempt limit — are recorded in a
// dead-letter table and skipped, so one bad message can never wedge a
// group.
//
// Because the log is durable and cursors are per-group, a fresh group
// subscribed to an old topic replays its full history from the
// beginning.
package eventlog
