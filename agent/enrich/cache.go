// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/sideline-ai/sideline/lib/clock"
	"github.com/sideline-ai/sideline/lib/codec"
	"github.com/sideline-ai/sideline/lib/sqlitepool"
	"github.com/sideline-ai/sideline/schema"
)

// cacheTTL is how long a fetched result stays fresh. Company and
// person facts do not move fast; a day keeps repeat mentions within a
// meeting (and across a day of meetings) from re-fetching.
const cacheTTL = 24 * time.Hour

// Cache is a SQLite-backed result cache shared by the enrichers.
// Entries are keyed by (kind, entity) and expire after cacheTTL.
type Cache struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// OpenCache opens (creating if needed) the cache database at path.
func OpenCache(path string, clk clock.Clock, logger *slog.Logger) (*Cache, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: 2,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecScript(conn, `
CREATE TABLE IF NOT EXISTS enrichment_cache (
    key        TEXT PRIMARY KEY,
    result     BLOB    NOT NULL,
    fetched_at INTEGER NOT NULL
);`)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("enrich: opening cache %s: %w", path, err)
	}
	return &Cache{pool: pool, clock: clk, logger: logger}, nil
}

// Get returns the cached result for key if present and fresh.
func (c *Cache) Get(ctx context.Context, key string) (*schema.EnrichmentResult, bool, error) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("enrich: cache get: %w", err)
	}
	defer c.pool.Put(conn)

	var blob []byte
	var fetchedAt int64
	found := false
	err = sqlitex.Execute(conn, `SELECT result, fetched_at FROM enrichment_cache WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			blob = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, blob)
			fetchedAt = stmt.ColumnInt64(1)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("enrich: cache get %q: %w", key, err)
	}
	if !found {
		return nil, false, nil
	}
	if c.clock.Now().Sub(time.UnixMilli(fetchedAt)) > cacheTTL {
		return nil, false, nil
	}

	var result schema.EnrichmentResult
	if err := codec.Unmarshal(blob, &result); err != nil {
		// A corrupt entry is a miss, not a failure.
		c.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		return nil, false, nil
	}
	return &result, true, nil
}

// Put stores a result for key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, result *schema.EnrichmentResult) error {
	blob, err := codec.Marshal(result)
	if err != nil {
		return fmt.Errorf("enrich: encoding cache entry %q: %w", key, err)
	}
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("enrich: cache put: %w", err)
	}
	defer c.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO enrichment_cache (key, result, fetched_at) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{key, blob, c.clock.Now().UnixMilli()}})
	if err != nil {
		return fmt.Errorf("enrich: cache put %q: %w", key, err)
	}
	return nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.pool.Close()
}
