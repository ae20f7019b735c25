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
	"time"

	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
)

// SQLValidationResult mirrors driver.ValidationResult for JSON responses.
type SQLValidationResult struct {
	Valid            bool    `json:"valid"`
	Error            string  `json:"error,omitempty"`
	EstimatedBytes   int64   `json:"estimated_bytes"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// CohortSQLResult is the response shape for generate_cohort_sql.
type CohortSQLResult struct {
	SQL           string               `json:"sql"`
	Validation    *SQLValidationResult `json:"validation,omitempty"`
	ExposureCount int                  `json:"exposure_count"`
	OutcomeCount  int                  `json:"outcome_count"`
	Backend       string               `json:"backend"`
	Dialect       string               `json:"dialect"`
	GeneratedAt   time.Time            `json:"generated_at"`
	Warnings      []string             `json:"warnings,omitempty"`
}

// QueryResult is the response shape for query_omop and select_query.
type QueryResult struct {
	SQL              string       `json:"sql"`
	Rows             []driver.Row `json:"rows,omitempty"`
	RowCount         int          `json:"row_count"`
	EstimatedBytes   int64        `json:"estimated_bytes"`
	EstimatedCostUSD float64      `json:"estimated_cost_usd"`
	Backend          string       `json:"backend"`
	Dialect          string       `json:"dialect"`
	LatencyMS        int64        `json:"latency_ms"`
	Warnings         []string     `json:"warnings,omitempty"`
}

// BackendCapabilityView is the JSON-facing projection of driver.Capability.
type BackendCapabilityView struct {
	Name     string           `json:"name"`
	Dialect  string           `json:"dialect"`
	Features []driver.Feature `json:"features"`
	Status   driver.Status    `json:"status"`
}

// ColumnInfo describes one discovered column and whether it belongs to
// the OMOP CDM reference schema for its table.
type ColumnInfo struct {
	Name     string `json:"name"`
	Standard bool   `json:"standard"`
}

// TableInfo is one table's columns as returned by get_information_schema.
type TableInfo struct {
	Table   string       `json:"table"`
	Columns []ColumnInfo `json:"columns"`
}
