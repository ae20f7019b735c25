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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/omop-mcp-server/pkg/config"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
	"github.com/teradata-labs/omop-mcp-server/pkg/vocabulary"
)

// testDriver is an in-memory Driver double so mcpomop's dispatch layer
// can be tested without a real warehouse.
type testDriver struct {
	name           string
	dialectName    string
	tables         map[string]driver.TableSchema
	validateResult driver.ValidationResult
	executeRows    []driver.Row
}

func newTestDriver() *testDriver {
	return &testDriver{
		name:        "stub",
		dialectName: "bigquery",
		tables: map[string]driver.TableSchema{
			"condition_occurrence": {
				Columns:     []string{"person_id", "condition_concept_id", "condition_start_date", "local_ext_col"},
				DateColumns: []string{"condition_start_date"},
			},
			"drug_exposure": {
				Columns:     []string{"person_id", "drug_concept_id", "drug_exposure_start_date"},
				DateColumns: []string{"drug_exposure_start_date"},
			},
		},
		validateResult: driver.ValidationResult{Valid: true, EstimatedBytes: 2048, EstimatedCostUSD: 0.01},
		executeRows:    []driver.Row{{"person_id": int64(1)}, {"person_id": int64(2)}},
	}
}

func (d *testDriver) Name() string    { return d.name }
func (d *testDriver) Dialect() string { return d.dialectName }
func (d *testDriver) QualifiedTable(name string) string { return "omop." + name }
func (d *testDriver) AgeExpression(col string) string   { return "AGE(" + col + ")" }
func (d *testDriver) DateDiffExpression(unit driver.DateUnit, start, end string) string {
	return "DATE_DIFF(" + end + "," + start + ")"
}
func (d *testDriver) ListTables(ctx context.Context) (map[string]driver.TableSchema, error) {
	return d.tables, nil
}
func (d *testDriver) Validate(ctx context.Context, sql string) (driver.ValidationResult, error) {
	return d.validateResult, nil
}
func (d *testDriver) Execute(ctx context.Context, sql string, rowLimit int, timeout time.Duration) ([]driver.Row, error) {
	rows := d.executeRows
	if rowLimit > 0 && rowLimit < len(rows) {
		rows = rows[:rowLimit]
	}
	return rows, nil
}
func (d *testDriver) TranslateFrom(ctx context.Context, src, sql string) (string, error) { return sql, nil }
func (d *testDriver) Capabilities() driver.Capability {
	return driver.Capability{
		Name: d.name, Dialect: d.dialectName,
		Features: []driver.Feature{driver.FeatureDryRun, driver.FeatureExecute},
		Status:   driver.StatusLive,
	}
}
func (d *testDriver) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		MaxQueryCostUSD:       10.0,
		QueryTimeoutSec:       5,
		AllowPatientList:      false,
		PHIMode:               false,
		DefaultRowLimit:       1000,
		MaxRowLimit:           10000,
		StrictTableValidation: true,
		OMOPAllowedTables:     []string{"condition_occurrence", "drug_exposure"},
		OMOPBlockedColumns:    []string{"person_source_value"},
	}
}

// newTestServer wires a Server with a fake vocabulary backend (served
// by an httptest.Server so no network call leaves the process) and the
// in-memory testDriver registered as both "stub" and the registry
// default.
func newTestServer(t *testing.T, handler http.HandlerFunc) (*Server, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	vocab := vocabulary.New(srv.URL, time.Second, 100)

	registry := driver.NewRegistry("stub")
	d := newTestDriver()
	registry.Register("stub", func() (driver.Driver, error) { return d, nil })

	return New(testConfig(), vocab, registry, zap.NewNop()), srv
}

func vocabFixtureHandler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"concepts": []map[string]any{
					{"conceptId": 201826, "conceptName": "Type 2 diabetes mellitus", "domainId": "Condition", "standardConcept": "S"},
				},
				"total": 1,
			})
		case r.URL.Path == "/concepts/201826":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"conceptId": 201826, "conceptName": "Type 2 diabetes mellitus", "domainId": "Condition", "standardConcept": "S",
			})
		case r.URL.Path == "/concepts/201826/relationships":
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"conceptId1": 201826, "conceptId2": 4193704, "relationshipName": "Is a"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}
