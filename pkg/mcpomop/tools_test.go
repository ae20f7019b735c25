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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/omop-mcp-server/pkg/observability"
	"github.com/teradata-labs/omop-mcp-server/pkg/omoperr"
)

// spyTracer wraps a real Tracer and records every metric name passed to
// RecordMetric, so tests can assert on CallTool's instrumentation without
// a live OTLP collector.
type spyTracer struct {
	observability.Tracer
	metricNames []string
}

func (s *spyTracer) RecordMetric(name string, value float64, labels map[string]string) {
	s.metricNames = append(s.metricNames, name)
	s.Tracer.RecordMetric(name, value, labels)
}

func TestListToolsReturnsCoreAndExportTools(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	tools, err := s.ListTools(context.Background())
	require.NoError(t, err)

	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"discover_concepts", "get_concept_relationships", "query_omop",
		"generate_cohort_sql", "get_information_schema", "select_query",
		"export_concepts", "export_query_result", "export_cohort_definition",
	} {
		assert.True(t, names[want], "expected tool %q", want)
	}
}

func TestCallToolUnknownNameIsNotFound(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	_, err := s.CallTool(context.Background(), "does_not_exist", nil)
	require.Error(t, err)
	code, _ := omoperr.CodeOf(err)
	assert.Equal(t, omoperr.NotFound, code)
}

func TestCallToolRecordsMetricsOnTracer(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	spy := &spyTracer{Tracer: observability.NewNoOpTracer()}
	s.obs = spy

	_, err := s.CallTool(context.Background(), "does_not_exist", nil)
	require.Error(t, err)
	assert.Equal(t, []string{"tool_call_errors_total"}, spy.metricNames)

	spy.metricNames = nil
	_, err = s.CallTool(context.Background(), "discover_concepts", map[string]interface{}{"query": "diabetes"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tool_calls_total"}, spy.metricNames)
}

func TestDiscoverConceptsRequiresQuery(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	_, err := s.CallTool(context.Background(), "discover_concepts", map[string]interface{}{})
	require.Error(t, err)
	code, _ := omoperr.CodeOf(err)
	assert.Equal(t, omoperr.InvalidRequest, code)
}

func TestDiscoverConceptsReturnsMatches(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	result, err := s.CallTool(context.Background(), "discover_concepts", map[string]interface{}{
		"query": "diabetes",
	})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "Type 2 diabetes mellitus")
}

func TestGetConceptRelationshipsRequiresConceptID(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	_, err := s.CallTool(context.Background(), "get_concept_relationships", map[string]interface{}{})
	require.Error(t, err)
	code, _ := omoperr.CodeOf(err)
	assert.Equal(t, omoperr.InvalidRequest, code)
}

func TestGetConceptRelationshipsReturnsEdges(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	result, err := s.CallTool(context.Background(), "get_concept_relationships", map[string]interface{}{
		"concept_id": float64(201826),
	})
	require.NoError(t, err)
	assert.Contains(t, result.Content[0].Text, "Is a")
}

func TestQueryOMOPCountExecutesAndInjectsLimit(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	result, err := s.CallTool(context.Background(), "query_omop", map[string]interface{}{
		"query_type":  "count",
		"concept_ids": []interface{}{float64(201826)},
		"domain":      "Condition",
	})
	require.NoError(t, err)

	var qr QueryResult
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &qr))
	assert.Contains(t, qr.SQL, "LIMIT")
	assert.True(t, qr.RowCount > 0)
}

func TestQueryOMOPListPatientsRejectedWhenDisabled(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	_, err := s.CallTool(context.Background(), "query_omop", map[string]interface{}{
		"query_type":  "list_patients",
		"concept_ids": []interface{}{float64(201826)},
		"domain":      "Condition",
		"execute":     true,
	})
	require.Error(t, err)
	code, _ := omoperr.CodeOf(err)
	assert.Equal(t, omoperr.SecurityViolation, code)
}

func TestGenerateCohortSQLNeverExecutesAndValidatesByDefault(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	result, err := s.CallTool(context.Background(), "generate_cohort_sql", map[string]interface{}{
		"exposure_ids": []interface{}{float64(1)},
		"outcome_ids":  []interface{}{float64(2)},
	})
	require.NoError(t, err)

	var cr CohortSQLResult
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &cr))
	assert.Contains(t, cr.SQL, "matched")
	require.NotNil(t, cr.Validation)
	assert.True(t, cr.Validation.Valid)
}

func TestGetInformationSchemaFlagsNonStandardColumn(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	result, err := s.CallTool(context.Background(), "get_information_schema", map[string]interface{}{
		"table_name": "condition_occurrence",
	})
	require.NoError(t, err)

	var info TableInfo
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &info))

	found := false
	for _, col := range info.Columns {
		if col.Name == "local_ext_col" {
			found = true
			assert.False(t, col.Standard)
		}
	}
	assert.True(t, found, "expected local_ext_col in the discovered columns")
}

func TestGetInformationSchemaUnknownTableIsNotFound(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	_, err := s.CallTool(context.Background(), "get_information_schema", map[string]interface{}{
		"table_name": "nonexistent_table",
	})
	require.Error(t, err)
	code, _ := omoperr.CodeOf(err)
	assert.Equal(t, omoperr.NotFound, code)
}

func TestSelectQueryRejectsMutationStatements(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	_, err := s.CallTool(context.Background(), "select_query", map[string]interface{}{
		"sql": "DELETE FROM condition_occurrence",
	})
	require.Error(t, err)
	code, _ := omoperr.CodeOf(err)
	assert.Equal(t, omoperr.SecurityViolation, code)
}

func TestSelectQuerySkipsDryRunButKeepsStructuralGuards(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	result, err := s.CallTool(context.Background(), "select_query", map[string]interface{}{
		"sql":      "SELECT person_id FROM condition_occurrence",
		"validate": false,
	})
	require.NoError(t, err)

	var qr QueryResult
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &qr))
	assert.Zero(t, qr.EstimatedCostUSD)
	assert.True(t, qr.RowCount > 0)
}

func TestExportConceptsJSONL(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	result, err := s.CallTool(context.Background(), "export_concepts", map[string]interface{}{
		"concept_ids": []interface{}{float64(201826)},
		"format":      "jsonl",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Content[0].Text, "Type 2 diabetes mellitus")
}

func TestExportCohortDefinitionRejectsCSV(t *testing.T) {
	s, _ := newTestServer(t, vocabFixtureHandler(t))
	_, err := s.CallTool(context.Background(), "export_cohort_definition", map[string]interface{}{
		"exposure_ids": []interface{}{float64(1)},
		"outcome_ids":  []interface{}{float64(2)},
		"format":       "csv",
	})
	require.Error(t, err)
}
