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
	"sort"
	"time"

	"github.com/teradata-labs/omop-mcp-server/pkg/dialect"
	"github.com/teradata-labs/omop-mcp-server/pkg/export"
	"github.com/teradata-labs/omop-mcp-server/pkg/mcp/protocol"
	"github.com/teradata-labs/omop-mcp-server/pkg/observability"
	"github.com/teradata-labs/omop-mcp-server/pkg/omoperr"
	"github.com/teradata-labs/omop-mcp-server/pkg/safety"
	"github.com/teradata-labs/omop-mcp-server/pkg/sqlgen"
	"github.com/teradata-labs/omop-mcp-server/pkg/vocabulary"
)

// ListTools returns the core tool set plus the export helpers.
func (s *Server) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	return []protocol.Tool{
		{
			Name:        "discover_concepts",
			Description: "Search the OMOP vocabulary for matching concepts.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"query":         map[string]interface{}{"type": "string"},
					"domain":        map[string]interface{}{"type": "string"},
					"vocabulary":    map[string]interface{}{"type": "string"},
					"standard_only": map[string]interface{}{"type": "boolean", "default": true},
					"limit":         map[string]interface{}{"type": "integer", "maximum": 100},
				},
			},
		},
		{
			Name:        "get_concept_relationships",
			Description: "List the relationships for a given concept id.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"concept_id"},
				"properties": map[string]interface{}{
					"concept_id":      map[string]interface{}{"type": "integer"},
					"relationship_id": map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:        "query_omop",
			Description: "Generate and optionally execute an analytical OMOP query (count, breakdown, or list_patients).",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query_type", "concept_ids", "domain"},
				"properties": map[string]interface{}{
					"query_type":  map[string]interface{}{"type": "string", "enum": []string{"count", "breakdown", "list_patients"}},
					"concept_ids": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
					"domain":      map[string]interface{}{"type": "string"},
					"backend":     map[string]interface{}{"type": "string"},
					"execute":     map[string]interface{}{"type": "boolean", "default": true},
					"limit":       map[string]interface{}{"type": "integer"},
				},
			},
		},
		{
			Name:        "generate_cohort_sql",
			Description: "Generate (and optionally validate) cohort-identification SQL from exposure/outcome concept sets. Never executes.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"exposure_ids", "outcome_ids"},
				"properties": map[string]interface{}{
					"exposure_ids":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
					"outcome_ids":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
					"exposure_domain":  map[string]interface{}{"type": "string", "default": "Drug"},
					"outcome_domain":   map[string]interface{}{"type": "string", "default": "Condition"},
					"pre_outcome_days": map[string]interface{}{"type": "integer", "default": 90},
					"backend":          map[string]interface{}{"type": "string"},
					"validate":         map[string]interface{}{"type": "boolean", "default": true},
				},
			},
		},
		{
			Name:        "get_information_schema",
			Description: "List tables and columns discovered on a backend, flagging each column's CDM standardness.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"table_name": map[string]interface{}{"type": "string"},
					"backend":    map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:        "select_query",
			Description: "Run caller-provided SQL through the safety pipeline, then optionally execute it. The only tool accepting raw SQL.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"sql"},
				"properties": map[string]interface{}{
					"sql":      map[string]interface{}{"type": "string"},
					"validate": map[string]interface{}{"type": "boolean", "default": true},
					"execute":  map[string]interface{}{"type": "boolean", "default": true},
					"backend":  map[string]interface{}{"type": "string"},
					"limit":    map[string]interface{}{"type": "integer"},
				},
			},
		},
		{
			Name:        "export_concepts",
			Description: "Serialize a concept set to json, csv, or jsonl with optional gzip.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"concept_ids"},
				"properties": map[string]interface{}{
					"concept_ids": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
					"format":      map[string]interface{}{"type": "string", "enum": []string{"json", "csv", "jsonl"}, "default": "json"},
					"gzip":        map[string]interface{}{"type": "boolean", "default": false},
				},
			},
		},
		{
			Name:        "export_query_result",
			Description: "Run an analytical query and serialize its result to json, csv, or jsonl with optional gzip.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query_type", "concept_ids", "domain"},
				"properties": map[string]interface{}{
					"query_type":  map[string]interface{}{"type": "string", "enum": []string{"count", "breakdown", "list_patients"}},
					"concept_ids": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
					"domain":      map[string]interface{}{"type": "string"},
					"backend":     map[string]interface{}{"type": "string"},
					"format":      map[string]interface{}{"type": "string", "enum": []string{"json", "csv", "jsonl"}, "default": "json"},
					"gzip":        map[string]interface{}{"type": "boolean", "default": false},
				},
			},
		},
		{
			Name:        "export_cohort_definition",
			Description: "Generate cohort SQL and serialize the definition to json or jsonl with optional gzip.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"exposure_ids", "outcome_ids"},
				"properties": map[string]interface{}{
					"exposure_ids":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
					"outcome_ids":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}},
					"pre_outcome_days": map[string]interface{}{"type": "integer", "default": 90},
					"backend":          map[string]interface{}{"type": "string"},
					"format":           map[string]interface{}{"type": "string", "enum": []string{"json", "jsonl"}, "default": "json"},
					"gzip":             map[string]interface{}{"type": "boolean", "default": false},
				},
			},
		},
	}, nil
}

// CallTool dispatches by name; input validation happens before any I/O.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	ctx, span := s.obs.StartSpan(ctx, "mcp.tools.call", observability.WithSpanKind("tool"), observability.WithAttribute("tool.name", name))
	defer s.obs.EndSpan(span)

	result, err := s.dispatchTool(ctx, name, args)

	if err != nil {
		span.RecordError(err)
		code, _ := omoperr.CodeOf(err)
		s.obs.RecordMetric("tool_call_errors_total", 1, map[string]string{"tool": name, "code": string(code)})
	} else {
		s.obs.RecordMetric("tool_calls_total", 1, map[string]string{"tool": name})
	}
	return result, err
}

func (s *Server) dispatchTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	switch name {
	case "discover_concepts":
		return s.callDiscoverConcepts(ctx, args)
	case "get_concept_relationships":
		return s.callGetConceptRelationships(ctx, args)
	case "query_omop":
		return s.callQueryOMOP(ctx, args)
	case "generate_cohort_sql":
		return s.callGenerateCohortSQL(ctx, args)
	case "get_information_schema":
		return s.callGetInformationSchema(ctx, args)
	case "select_query":
		return s.callSelectQuery(ctx, args)
	case "export_concepts":
		return s.callExportConcepts(ctx, args)
	case "export_query_result":
		return s.callExportQueryResult(ctx, args)
	case "export_cohort_definition":
		return s.callExportCohortDefinition(ctx, args)
	default:
		return nil, omoperr.Newf(omoperr.NotFound, "unknown tool %q", name)
	}
}

func jsonContent(v any) (*protocol.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, omoperr.Wrap(omoperr.InvalidRequest, err, "marshaling tool result")
	}
	return &protocol.CallToolResult{Content: []protocol.Content{{Type: "text", Text: string(raw)}}}, nil
}

func (s *Server) callDiscoverConcepts(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	query, err := argString(args, "query", true)
	if err != nil {
		return nil, err
	}
	domain, err := argString(args, "domain", false)
	if err != nil {
		return nil, err
	}
	voc, err := argString(args, "vocabulary", false)
	if err != nil {
		return nil, err
	}
	standardOnly, err := argBool(args, "standard_only", true)
	if err != nil {
		return nil, err
	}
	limit, err := argInt(args, "limit", 20)
	if err != nil {
		return nil, err
	}

	page, err := s.vocab.Search(ctx, vocabulary.SearchParams{
		Query: query, Domain: vocabulary.Domain(domain), Vocabulary: voc,
		StandardOnly: standardOnly, Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	result := vocabulary.NewConceptDiscoveryResult(query, page.Concepts, map[string]string{
		"domain": domain, "vocabulary": voc,
	})
	return jsonContent(result)
}

func (s *Server) callGetConceptRelationships(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	conceptID, err := argInt64(args, "concept_id", true)
	if err != nil {
		return nil, err
	}
	relationshipID, err := argString(args, "relationship_id", false)
	if err != nil {
		return nil, err
	}

	rels, err := s.vocab.GetRelationships(ctx, conceptID, relationshipID)
	if err != nil {
		return nil, err
	}
	return jsonContent(map[string]any{"concept_id": conceptID, "relationships": rels})
}

func (s *Server) callQueryOMOP(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	queryType, err := argString(args, "query_type", true)
	if err != nil {
		return nil, err
	}
	conceptIDs, err := argInt64Slice(args, "concept_ids", true)
	if err != nil {
		return nil, err
	}
	domain, err := argString(args, "domain", true)
	if err != nil {
		return nil, err
	}
	backend, err := argString(args, "backend", false)
	if err != nil {
		return nil, err
	}
	execute, err := argBool(args, "execute", true)
	if err != nil {
		return nil, err
	}
	limit, err := argInt(args, "limit", 0)
	if err != nil {
		return nil, err
	}

	if queryType == string(sqlgen.QueryListPatients) && execute && !s.requireAllowPatientList() {
		return nil, omoperr.New(omoperr.SecurityViolation, "list_patients is disabled by configuration (allow_patient_list=false)")
	}

	d, err := s.resolveDriver(backend)
	if err != nil {
		return nil, err
	}

	rowLimit := limit
	if rowLimit <= 0 {
		rowLimit = s.cfg.DefaultRowLimit
	}

	start := time.Now()
	sql, warnings, err := sqlgen.Analytical(ctx, sqlgen.AnalyticalParams{
		QueryType:        sqlgen.QueryType(queryType),
		ConceptIDs:       conceptIDs,
		Domain:           domain,
		RowLimit:         rowLimit,
		MaxRowLimit:      s.cfg.MaxRowLimit,
		AllowPatientList: s.requireAllowPatientList(),
	}, d)
	if err != nil {
		return nil, err
	}

	pipeline := s.pipelineFor(d)
	pr, err := pipeline.Run(ctx, safety.Request{
		SQL: sql, Dialect: dialect.Dialect(d.Dialect()), RowLimit: rowLimit, Execute: execute,
	})
	if err != nil {
		return nil, err
	}

	result := QueryResult{
		SQL: pr.SQL, Rows: pr.Rows, RowCount: len(pr.Rows),
		EstimatedBytes: pr.EstimatedBytes, EstimatedCostUSD: pr.EstimatedCostUSD,
		Backend: d.Name(), Dialect: d.Dialect(), LatencyMS: time.Since(start).Milliseconds(),
		Warnings: warningMessages(warnings),
	}
	return jsonContent(result)
}

func (s *Server) callGenerateCohortSQL(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	exposureIDs, err := argInt64Slice(args, "exposure_ids", true)
	if err != nil {
		return nil, err
	}
	outcomeIDs, err := argInt64Slice(args, "outcome_ids", true)
	if err != nil {
		return nil, err
	}
	exposureDomain, err := argString(args, "exposure_domain", false)
	if err != nil {
		return nil, err
	}
	if exposureDomain == "" {
		exposureDomain = "Drug"
	}
	outcomeDomain, err := argString(args, "outcome_domain", false)
	if err != nil {
		return nil, err
	}
	if outcomeDomain == "" {
		outcomeDomain = "Condition"
	}
	preOutcomeDays, err := argInt(args, "pre_outcome_days", 90)
	if err != nil {
		return nil, err
	}
	backend, err := argString(args, "backend", false)
	if err != nil {
		return nil, err
	}
	doValidate, err := argBool(args, "validate", true)
	if err != nil {
		return nil, err
	}

	d, err := s.resolveDriver(backend)
	if err != nil {
		return nil, err
	}

	sql, warnings, err := sqlgen.Cohort(ctx, sqlgen.CohortParams{
		ExposureIDs: exposureIDs, OutcomeIDs: outcomeIDs,
		ExposureDomain: exposureDomain, OutcomeDomain: outcomeDomain,
		PreOutcomeDays: preOutcomeDays,
	}, d)
	if err != nil {
		return nil, err
	}

	result := CohortSQLResult{
		SQL: sql, ExposureCount: len(exposureIDs), OutcomeCount: len(outcomeIDs),
		Backend: d.Name(), Dialect: d.Dialect(), GeneratedAt: time.Now(),
		Warnings: warningMessages(warnings),
	}

	if doValidate {
		pipeline := s.pipelineFor(d)
		pr, err := pipeline.Run(ctx, safety.Request{
			SQL: sql, Dialect: dialect.Dialect(d.Dialect()), Execute: false,
		})
		if err != nil {
			result.Validation = &SQLValidationResult{Valid: false, Error: err.Error()}
			return jsonContent(result)
		}
		result.Validation = &SQLValidationResult{
			Valid: true, EstimatedBytes: pr.EstimatedBytes, EstimatedCostUSD: pr.EstimatedCostUSD,
		}
	}

	return jsonContent(result)
}

func (s *Server) callGetInformationSchema(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	tableName, err := argString(args, "table_name", false)
	if err != nil {
		return nil, err
	}
	backend, err := argString(args, "backend", false)
	if err != nil {
		return nil, err
	}

	d, err := s.resolveDriver(backend)
	if err != nil {
		return nil, err
	}

	tables, err := d.ListTables(ctx)
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "list_tables")
	}

	if tableName != "" {
		schema, ok := tables[tableName]
		if !ok {
			return nil, notFound("table %q not found on backend %q", tableName, d.Name())
		}
		return jsonContent(TableInfo{Table: tableName, Columns: classifyColumns(tableName, schema.Columns)})
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]TableInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, TableInfo{Table: name, Columns: classifyColumns(name, tables[name].Columns)})
	}
	return jsonContent(infos)
}

func (s *Server) callSelectQuery(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	sql, err := argString(args, "sql", true)
	if err != nil {
		return nil, err
	}
	doValidate, err := argBool(args, "validate", true)
	if err != nil {
		return nil, err
	}
	execute, err := argBool(args, "execute", true)
	if err != nil {
		return nil, err
	}
	backend, err := argString(args, "backend", false)
	if err != nil {
		return nil, err
	}
	limit, err := argInt(args, "limit", 0)
	if err != nil {
		return nil, err
	}

	d, err := s.resolveDriver(backend)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	pipeline := s.pipelineFor(d)
	pr, err := pipeline.Run(ctx, safety.Request{
		SQL: sql, Dialect: dialect.Dialect(d.Dialect()), RowLimit: limit,
		Execute: execute, SkipDryRun: !doValidate,
	})
	if err != nil {
		return nil, err
	}

	result := QueryResult{
		SQL: pr.SQL, Rows: pr.Rows, RowCount: len(pr.Rows),
		EstimatedBytes: pr.EstimatedBytes, EstimatedCostUSD: pr.EstimatedCostUSD,
		Backend: d.Name(), Dialect: d.Dialect(), LatencyMS: time.Since(start).Milliseconds(),
	}
	return jsonContent(result)
}

func (s *Server) callExportConcepts(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	conceptIDs, err := argInt64Slice(args, "concept_ids", true)
	if err != nil {
		return nil, err
	}
	format, err := argString(args, "format", false)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = "json"
	}
	gzipped, err := argBool(args, "gzip", false)
	if err != nil {
		return nil, err
	}

	concepts := make([]vocabulary.Concept, 0, len(conceptIDs))
	for _, id := range conceptIDs {
		c, err := s.vocab.GetConcept(ctx, id)
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}

	result, err := export.Concepts(concepts, export.Format(format), gzipped)
	if err != nil {
		return nil, err
	}
	return exportContent(result)
}

func (s *Server) callExportQueryResult(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	queryResult, err := s.callQueryOMOP(ctx, withDefault(args, "execute", true))
	if err != nil {
		return nil, err
	}
	var qr QueryResult
	if err := json.Unmarshal([]byte(queryResult.Content[0].Text), &qr); err != nil {
		return nil, omoperr.Wrap(omoperr.InvalidRequest, err, "decoding intermediate query result")
	}

	format, err := argString(args, "format", false)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = "json"
	}
	gzipped, err := argBool(args, "gzip", false)
	if err != nil {
		return nil, err
	}

	result, err := export.QueryResultExport(export.QueryResult{
		SQL: qr.SQL, Rows: qr.Rows, RowCount: qr.RowCount,
		EstimatedBytes: qr.EstimatedBytes, EstimatedCostUSD: qr.EstimatedCostUSD,
		Backend: qr.Backend, Dialect: qr.Dialect,
	}, export.Format(format), gzipped)
	if err != nil {
		return nil, err
	}
	return exportContent(result)
}

func (s *Server) callExportCohortDefinition(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	exposureIDs, err := argInt64Slice(args, "exposure_ids", true)
	if err != nil {
		return nil, err
	}
	outcomeIDs, err := argInt64Slice(args, "outcome_ids", true)
	if err != nil {
		return nil, err
	}
	preOutcomeDays, err := argInt(args, "pre_outcome_days", 90)
	if err != nil {
		return nil, err
	}
	backend, err := argString(args, "backend", false)
	if err != nil {
		return nil, err
	}
	format, err := argString(args, "format", false)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = "json"
	}
	gzipped, err := argBool(args, "gzip", false)
	if err != nil {
		return nil, err
	}

	d, err := s.resolveDriver(backend)
	if err != nil {
		return nil, err
	}

	sql, _, err := sqlgen.Cohort(ctx, sqlgen.CohortParams{
		ExposureIDs: exposureIDs, OutcomeIDs: outcomeIDs,
		ExposureDomain: "Drug", OutcomeDomain: "Condition", PreOutcomeDays: preOutcomeDays,
	}, d)
	if err != nil {
		return nil, err
	}

	pipeline := s.pipelineFor(d)
	pr, valErr := pipeline.Run(ctx, safety.Request{
		SQL: sql, Dialect: dialect.Dialect(d.Dialect()), Execute: false,
	})

	cd := export.CohortDefinition{
		SQL: sql, ExposureIDs: exposureIDs, OutcomeIDs: outcomeIDs,
		PreOutcomeDays: preOutcomeDays, Backend: d.Name(), Dialect: d.Dialect(),
	}
	if valErr != nil {
		cd.Valid = false
		cd.ValidationErr = valErr.Error()
	} else {
		cd.Valid = true
		_ = pr
	}

	result, err := export.CohortDefinitionExport(cd, export.Format(format), gzipped)
	if err != nil {
		return nil, err
	}
	return exportContent(result)
}

func exportContent(r export.Result) (*protocol.CallToolResult, error) {
	return &protocol.CallToolResult{
		Content: []protocol.Content{{Type: "text", Text: string(r.Bytes), MimeType: r.ContentType}},
	}, nil
}

func withDefault(args map[string]interface{}, key string, value interface{}) map[string]interface{} {
	if _, ok := args[key]; ok {
		return args
	}
	merged := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		merged[k] = v
	}
	merged[key] = value
	return merged
}

func warningMessages(warnings []sqlgen.Warning) []string {
	if len(warnings) == 0 {
		return nil
	}
	msgs := make([]string, len(warnings))
	for i, w := range warnings {
		msgs[i] = w.Message
	}
	return msgs
}
