// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vocabulary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const maxSearchLimit = 100

// Client speaks to the external OMOP vocabulary HTTP API and exposes the
// three normalized operations: search, get_concept, get_relationships.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	cache   *lruCache
	policy  retryPolicy
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a zap logger; defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient overrides the underlying *http.Client (tests use this to
// inject a fake transport).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a vocabulary Client. timeout bounds every call including
// retries' total wall clock; cacheSize bounds the LRU.
func New(baseURL string, timeout time.Duration, cacheSize int, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: &http.Transport{MaxIdleConnsPerHost: 8},
		},
		timeout: timeout,
		cache:   newLRUCache(cacheSize),
		policy:  defaultRetryPolicy(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchParams are the normalized inputs to Search.
type SearchParams struct {
	Query        string
	Domain       Domain // "" means unfiltered
	Vocabulary   string // "" means unfiltered
	StandardOnly bool
	Limit        int
	Offset       int
}

func (p SearchParams) cacheKey() string {
	return fmt.Sprintf("search:%s:%s:%s:%t:%d:%d", p.Query, p.Domain, p.Vocabulary, p.StandardOnly, p.Limit, p.Offset)
}

// Search performs a paginated lexical concept search. Limit is capped
// at 100 regardless of the caller's requested value.
func (c *Client) Search(ctx context.Context, p SearchParams) (Page, error) {
	if p.Limit <= 0 || p.Limit > maxSearchLimit {
		p.Limit = maxSearchLimit
	}

	key := p.cacheKey()
	if cached, ok := c.cache.get(key); ok {
		return cached.(Page), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("query", p.Query)
	if p.Domain != "" {
		q.Set("domain", string(p.Domain))
	}
	if p.Vocabulary != "" {
		q.Set("vocabulary", p.Vocabulary)
	}
	q.Set("standard_only", strconv.FormatBool(p.StandardOnly))
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(p.Offset))

	var page Page
	_, err := withRetry(ctx, c.policy, func(ctx context.Context, attempt int) (any, bool, error) {
		var raw searchResponse
		retryable, err := c.doGET(ctx, "/search", q, &raw)
		if err != nil {
			return nil, retryable, err
		}
		page = raw.toPage(p.Offset, p.Limit)
		return nil, false, nil
	})
	if err != nil {
		return Page{}, err
	}

	c.cache.put(key, page)
	return page, nil
}

// GetConcept fetches a single record by id.
func (c *Client) GetConcept(ctx context.Context, id int64) (Concept, error) {
	key := fmt.Sprintf("concept:%d", id)
	if cached, ok := c.cache.get(key); ok {
		return cached.(Concept), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var concept Concept
	_, err := withRetry(ctx, c.policy, func(ctx context.Context, attempt int) (any, bool, error) {
		var raw conceptDTO
		retryable, err := c.doGET(ctx, fmt.Sprintf("/concepts/%d", id), nil, &raw)
		if err != nil {
			return nil, retryable, err
		}
		concept = raw.normalize()
		return nil, false, nil
	})
	if err != nil {
		return Concept{}, err
	}

	c.cache.put(key, concept)
	return concept, nil
}

// GetRelationships fetches outgoing edges from id, optionally filtered
// by relationship kind.
func (c *Client) GetRelationships(ctx context.Context, id int64, relationship string) ([]Relationship, error) {
	key := fmt.Sprintf("relationships:%d:%s", id, relationship)
	if cached, ok := c.cache.get(key); ok {
		return cached.([]Relationship), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	if relationship != "" {
		q.Set("relationship_id", relationship)
	}

	var rels []Relationship
	_, err := withRetry(ctx, c.policy, func(ctx context.Context, attempt int) (any, bool, error) {
		var raw []relationshipDTO
		retryable, err := c.doGET(ctx, fmt.Sprintf("/concepts/%d/relationships", id), q, &raw)
		if err != nil {
			return nil, retryable, err
		}
		rels = make([]Relationship, 0, len(raw))
		for _, r := range raw {
			rels = append(rels, r.normalize())
		}
		return nil, false, nil
	})
	if err != nil {
		return nil, err
	}

	c.cache.put(key, rels)
	return rels, nil
}

// doGET issues one HTTP GET and decodes the JSON body into out. The
// returned bool reports whether the error (if any) is retryable:
// network errors, 5xx, and 429 are retryable; 400/404 are not.
func (c *Client) doGET(ctx context.Context, path string, query url.Values, out any) (bool, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, newError(KindInvalidRequest, err, "build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, newError(KindTimeout, err, "request timed out")
		}
		return true, newError(KindUnavailable, err, "request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, newError(KindNotFound, nil, "not found")
	case resp.StatusCode == http.StatusBadRequest:
		return false, newError(KindInvalidRequest, nil, "bad request")
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, newError(KindUnavailable, nil, "rate limited")
	case resp.StatusCode >= 500:
		return true, newError(KindUnavailable, nil, "upstream error (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		return false, newError(KindInvalidRequest, nil, "client error (status %d)", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, newError(KindUnavailable, err, "decode response")
	}
	return false, nil
}
