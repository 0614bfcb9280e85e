// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package provenance records how every derived value in a session came
// to be. Each computation step — extraction, enrichment, synthesis,
// ranking — wraps its inputs, outputs, confidence, sources, and timing
// in an [Envelope]. Envelopes are immutable: appended to a session's
// [Chain], never mutated, so the full derivation history survives even
// where the live domain data value is overwritten.
//
// The chain is strictly append-only in wall-clock append order. Every
// append computes a BLAKE3 link hash over the previous link and the
// canonical CBOR encoding of the new envelope, making the audit trail
// tamper-evident: [Chain.Verify] recomputes the links and reports any
// divergence. Deterministic CBOR (lib/codec) guarantees the same
// envelope always hashes to the same link.
//
// A Chain is exclusively owned by the orchestrator operation that
// mutates its session; it is not safe for concurrent use on its own.
package provenance
