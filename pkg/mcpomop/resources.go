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

package mcpomop

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/teradata-labs/omop-mcp-server/pkg/mcp/protocol"
	"github.com/teradata-labs/omop-mcp-server/pkg/vocabulary"
)

const defaultSearchPageSize = 20

// ListResources advertises only the static capabilities:// resource.
// The concept://{id} and search://?... forms are not listed; MCP clients
// construct those URIs themselves and ReadResource serves them.
func (s *Server) ListResources(ctx context.Context) ([]protocol.Resource, error) {
	return []protocol.Resource{
		{
			URI:         "capabilities://",
			Name:        "Backend capabilities",
			Description: "Registered backends, their dialects, and supported features.",
			MimeType:    "application/json",
		},
	}, nil
}

// ReadResource dispatches by URI scheme.
func (s *Server) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	switch {
	case uri == "capabilities://":
		return s.readCapabilities(ctx, uri)
	case strings.HasPrefix(uri, "concept://"):
		return s.readConcept(ctx, uri)
	case strings.HasPrefix(uri, "search://"):
		return s.readSearch(ctx, uri)
	default:
		return nil, invalidRequest("unrecognized resource URI scheme: %q", uri)
	}
}

func (s *Server) readCapabilities(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	caps, err := s.drivers.List()
	if err != nil {
		return nil, err
	}
	views := make([]BackendCapabilityView, len(caps))
	for i, c := range caps {
		views[i] = BackendCapabilityView{Name: c.Name, Dialect: c.Dialect, Features: c.Features, Status: c.Status}
	}
	raw, err := json.MarshalIndent(map[string]any{
		"default_backend": s.drivers.DefaultName(),
		"backends":        views,
	}, "", "  ")
	if err != nil {
		return nil, invalidRequest("marshaling capabilities: %v", err)
	}
	return &protocol.ReadResourceResult{
		Contents: []protocol.ResourceContents{{URI: uri, MimeType: "application/json", Text: string(raw)}},
	}, nil
}

func (s *Server) readConcept(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	idStr := strings.TrimPrefix(uri, "concept://")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, invalidRequest("concept:// URI must have an integer id, got %q", idStr)
	}

	concept, err := s.vocab.GetConcept(ctx, id)
	if err != nil {
		return nil, err
	}

	raw, err := json.MarshalIndent(concept, "", "  ")
	if err != nil {
		return nil, invalidRequest("marshaling concept: %v", err)
	}
	return &protocol.ReadResourceResult{
		Contents: []protocol.ResourceContents{{URI: uri, MimeType: "application/json", Text: string(raw)}},
	}, nil
}

// readSearch parses a search://?query=...&domain=...&vocabulary=...&
// standard_only=...&cursor=offset:{N}&page_size=... URI. The cursor is
// an opaque "offset:{N}" token; any other shape is a malformed cursor.
func (s *Server) readSearch(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, invalidRequest("malformed search:// URI: %v", err)
	}
	q := parsed.Query()

	query := q.Get("query")
	if query == "" {
		return nil, invalidRequest("search:// URI requires a non-empty query parameter")
	}

	pageSize := defaultSearchPageSize
	if raw := q.Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, invalidRequest("page_size must be a positive integer, got %q", raw)
		}
		pageSize = n
	}

	offset := 0
	if cursor := q.Get("cursor"); cursor != "" {
		rest, ok := strings.CutPrefix(cursor, "offset:")
		if !ok {
			return nil, invalidRequest("malformed cursor %q: expected offset:{N}", cursor)
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return nil, invalidRequest("malformed cursor %q: expected offset:{N}", cursor)
		}
		offset = n
	}

	standardOnly := false
	if raw := q.Get("standard_only"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, invalidRequest("standard_only must be a boolean, got %q", raw)
		}
		standardOnly = b
	}

	page, err := s.vocab.Search(ctx, vocabulary.SearchParams{
		Query:        query,
		Domain:       vocabulary.Domain(q.Get("domain")),
		Vocabulary:   q.Get("vocabulary"),
		StandardOnly: standardOnly,
		Limit:        pageSize,
		Offset:       offset,
	})
	if err != nil {
		return nil, err
	}

	result := map[string]any{"concepts": page.Concepts}
	if page.NextOffset != nil {
		result["next_cursor"] = "offset:" + strconv.Itoa(*page.NextOffset)
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, invalidRequest("marshaling search result: %v", err)
	}
	return &protocol.ReadResourceResult{
		Contents: []protocol.ResourceContents{{URI: uri, MimeType: "application/json", Text: string(raw)}},
	}, nil
}
