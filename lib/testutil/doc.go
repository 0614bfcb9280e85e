// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Sideline packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. These are
// the only places in the test suite where real wall-clock timeouts are
// used; everything else drives a clock.FakeClock.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// session IDs or message bodies distinguishable in a shared log.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Sideline-internal dependencies.
package testutil
