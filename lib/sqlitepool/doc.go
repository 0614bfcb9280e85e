// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a SQLite connection pool for Sideline's
// durable state: the event log (topics, messages, consumer-group
// cursors, dead letters) and the enrichment lookup cache. It wraps
// zombiezen.com/go/sqlite with the pragmas both workloads need.
//
// WAL mode is the important one: the event log has one writer per
// publish and many concurrent subscription read loops, and WAL lets
// readers proceed without blocking the writer. The busy timeout
// absorbs the brief writer serialization that SQLite imposes.
//
// The pool exposes the underlying zombiezen types directly — callers
// use sqlitex.Execute against a borrowed connection. There is no query
// abstraction layer.
package sqlitepool
