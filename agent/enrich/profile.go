// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/sideline-ai/sideline/schema"
)

// DefaultWikipediaBaseURL is the production Wikipedia instance the
// profile enricher talks to. Tests point it at an httptest server.
const DefaultWikipediaBaseURL = "https://en.wikipedia.org"

// Profile enriches organizations with a company profile from the
// Wikipedia REST summary API. When the entity's exact title misses, it
// falls back to opensearch and retries the top hit.
type Profile struct {
	cfg     Config
	baseURL string
}

// NewProfile returns the company-profile enricher. An empty baseURL
// uses DefaultWikipediaBaseURL.
func NewProfile(cfg Config, baseURL string) *Profile {
	if baseURL == "" {
		baseURL = DefaultWikipediaBaseURL
	}
	return &Profile{cfg: cfg.withDefaults(), baseURL: baseURL}
}

// Kind returns the profile job kind.
func (p *Profile) Kind() string { return schema.JobKindProfile }

// Enrich fetches a profile summary for entityName.
func (p *Profile) Enrich(ctx context.Context, sessionID, entityName string) (*schema.EnrichmentResult, error) {
	return cachedFetch(ctx, p.cfg, schema.JobKindProfile, entityName, func(ctx context.Context) (*schema.EnrichmentResult, error) {
		summary, source, err := p.summary(ctx, entityName)
		if err != nil {
			return nil, err
		}
		confidence := 0.75
		if summary == nil {
			// Exact title missed: search for the closest page title and
			// retry once. A search hit is weaker evidence than an exact
			// title match.
			title, searchErr := p.search(ctx, entityName)
			if searchErr != nil {
				return nil, searchErr
			}
			if title == "" {
				return nil, fmt.Errorf("enrich: no profile found for %q", entityName)
			}
			summary, source, err = p.summary(ctx, title)
			if err != nil {
				return nil, err
			}
			if summary == nil {
				return nil, fmt.Errorf("enrich: no profile found for %q (searched %q)", entityName, title)
			}
			confidence = 0.6
		}

		data := map[string]any{
			"title":       summary["title"],
			"description": summary["description"],
			"summary":     summary["extract"],
		}
		return &schema.EnrichmentResult{
			Event:       "domain.company_profile.fetched",
			SessionID:   sessionID,
			CompanyName: entityName,
			Data:        data,
			Sources:     []string{source},
			Confidence:  confidence,
		}, nil
	})
}

// summary fetches the REST summary for a page title. A missing page
// returns (nil, "", nil).
func (p *Profile) summary(ctx context.Context, title string) (map[string]any, string, error) {
	summaryURL := p.baseURL + "/api/rest_v1/page/summary/" + url.PathEscape(title)
	decoded, err := fetchJSON(ctx, p.cfg.HTTPClient, summaryURL)
	if err != nil {
		return nil, "", err
	}
	return decoded, summaryURL, nil
}

// search returns the top opensearch title for query, or "" when
// nothing matches. The opensearch response is a positional array:
// [query, titles, descriptions, urls].
func (p *Profile) search(ctx context.Context, query string) (string, error) {
	searchURL := p.baseURL + "/w/api.php?action=opensearch&format=json&limit=1&search=" + url.QueryEscape(query)
	body, err := fetchBytes(ctx, p.cfg.HTTPClient, searchURL)
	if err != nil {
		return "", err
	}
	if body == nil {
		return "", nil
	}

	var positional []json.RawMessage
	if err := json.Unmarshal(body, &positional); err != nil {
		return "", fmt.Errorf("enrich: decoding opensearch response: %w", err)
	}
	if len(positional) < 2 {
		return "", nil
	}
	var titles []string
	if err := json.Unmarshal(positional[1], &titles); err != nil {
		return "", fmt.Errorf("enrich: decoding opensearch titles: %w", err)
	}
	if len(titles) == 0 {
		return "", nil
	}
	return titles[0], nil
}
