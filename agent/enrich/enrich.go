// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

// Package enrich provides the shipped enrichment collaborators: a
// Wikipedia-backed company profile lookup and generic JSON endpoint
// lookups for news, competitor, and person data, all fronted by a
// shared 24-hour SQLite cache.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sideline-ai/sideline/lib/clock"
	"github.com/sideline-ai/sideline/schema"
)

// maxResponseBytes caps how much of an enrichment response is read.
// Evidence payloads are small; anything bigger is a misbehaving
// endpoint.
const maxResponseBytes = 1 << 20

// Config carries the shared plumbing for all enrichers in this
// package.
type Config struct {
	// HTTPClient performs the lookups. Defaults to a client with a 10s
	// timeout.
	HTTPClient *http.Client

	// Cache, when non-nil, is consulted before and populated after
	// every fetch.
	Cache *Cache

	// Logger receives fetch and cache diagnostics. Defaults to discard.
	Logger *slog.Logger

	// Clock supplies timestamps. Defaults to the real clock.
	Clock clock.Clock
}

func (cfg Config) withDefaults() Config {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return cfg
}

// cacheKey namespaces cached results by job kind, case-insensitively
// on the entity name.
func cacheKey(kind, entity string) string {
	return kind + "\x00" + strings.ToLower(entity)
}

// cachedFetch runs fetch for (kind, entity) with a cache lookup on
// both sides. Cache failures are logged, never propagated: the cache
// is an optimization, not a dependency.
func cachedFetch(ctx context.Context, cfg Config, kind, entity string,
	fetch func(ctx context.Context) (*schema.EnrichmentResult, error)) (*schema.EnrichmentResult, error) {

	key := cacheKey(kind, entity)
	if cfg.Cache != nil {
		cached, hit, err := cfg.Cache.Get(ctx, key)
		if err != nil {
			cfg.Logger.Warn("enrichment cache read failed", "key", key, "error", err)
		} else if hit {
			cfg.Logger.Debug("enrichment cache hit", "kind", kind, "entity", entity)
			return cached, nil
		}
	}

	result, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Cache != nil {
		if err := cfg.Cache.Put(ctx, key, result); err != nil {
			cfg.Logger.Warn("enrichment cache write failed", "key", key, "error", err)
		}
	}
	return result, nil
}

// fetchBytes GETs rawURL and returns the response body. Non-2xx
// statuses are errors except 404, which returns (nil, nil) so callers
// can distinguish "not found" from failure.
func fetchBytes(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("enrich: building request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", "sideline/1.0")

	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("enrich: fetching %s: %w", rawURL, err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("enrich: fetching %s: status %d", rawURL, response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("enrich: reading %s: %w", rawURL, err)
	}
	return body, nil
}

// fetchJSON GETs rawURL and decodes the body as a JSON object, with
// fetchBytes's 404 convention.
func fetchJSON(ctx context.Context, client *http.Client, rawURL string) (map[string]any, error) {
	body, err := fetchBytes(ctx, client, rawURL)
	if err != nil || body == nil {
		return nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("enrich: decoding %s: %w", rawURL, err)
	}
	return decoded, nil
}

// Lookup is a generic enricher against a configured JSON endpoint: it
// GETs endpoint?name=<entity> and treats the response object as the
// evidence. News, competitor, and person enrichment all use it with
// different kinds.
type Lookup struct {
	cfg      Config
	kind     string
	event    string
	endpoint string
	person   bool
}

// NewNews returns the company-news enricher against endpoint.
func NewNews(cfg Config, endpoint string) *Lookup {
	return &Lookup{cfg: cfg.withDefaults(), kind: schema.JobKindNews,
		event: "domain.company_news.fetched", endpoint: endpoint}
}

// NewCompetitors returns the competitor-landscape enricher against
// endpoint.
func NewCompetitors(cfg Config, endpoint string) *Lookup {
	return &Lookup{cfg: cfg.withDefaults(), kind: schema.JobKindCompetitors,
		event: "domain.competitor_landscape.fetched", endpoint: endpoint}
}

// NewPerson returns the person enricher against endpoint.
func NewPerson(cfg Config, endpoint string) *Lookup {
	return &Lookup{cfg: cfg.withDefaults(), kind: schema.JobKindPerson,
		event: "domain.person_info.fetched", endpoint: endpoint, person: true}
}

// Kind returns the job kind this lookup serves.
func (l *Lookup) Kind() string { return l.kind }

// Enrich fetches evidence for entityName from the configured endpoint.
func (l *Lookup) Enrich(ctx context.Context, sessionID, entityName string) (*schema.EnrichmentResult, error) {
	if l.endpoint == "" {
		return nil, fmt.Errorf("enrich: no %s endpoint configured", l.kind)
	}
	return cachedFetch(ctx, l.cfg, l.kind, entityName, func(ctx context.Context) (*schema.EnrichmentResult, error) {
		lookupURL := l.endpoint + "?name=" + url.QueryEscape(entityName)
		data, err := fetchJSON(ctx, l.cfg.HTTPClient, lookupURL)
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, fmt.Errorf("enrich: %s endpoint has nothing for %q", l.kind, entityName)
		}

		confidence := 0.7
		if reported, ok := data["confidence"].(float64); ok && reported >= 0 && reported <= 1 {
			confidence = reported
		}
		result := &schema.EnrichmentResult{
			Event:      l.event,
			SessionID:  sessionID,
			Data:       data,
			Sources:    []string{l.endpoint},
			Confidence: confidence,
		}
		if l.person {
			result.PersonName = entityName
		} else {
			result.CompanyName = entityName
		}
		return result, nil
	})
}
