// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Sideline's standard serialization for durable
// storage: CBOR with Core Deterministic Encoding.
//
// The event log stores every published event as a single CBOR envelope
// blob, and the orchestrator snapshots provenance chains through the
// same encoder. Deterministic encoding (sorted map keys, smallest
// integer forms, no indefinite-length items) means the same logical
// record always produces identical bytes, which keeps the provenance
// hash chain stable across processes.
//
// External payloads — the `data` field of every event — remain JSON so
// that consumers outside this process can decode them with any JSON
// library. CBOR is an internal storage choice, not a wire contract.
package codec
