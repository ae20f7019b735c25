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

// Package sqlgen builds cohort and analytical SQL from concept ids and
// parameters using only the selected driver's dialect helpers, so the
// emitted text is portable across warehouses.
package sqlgen

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
	"github.com/teradata-labs/omop-mcp-server/pkg/omoperr"
)

// QueryType selects the analytical shape to emit.
type QueryType string

const (
	QueryCount        QueryType = "count"
	QueryBreakdown    QueryType = "breakdown"
	QueryListPatients QueryType = "list_patients"
)

// factTable maps an OMOP domain to its fact table and concept-id column.
type factTable struct {
	table         string
	conceptColumn string
	dateColumn    string
}

var domainTables = map[string]factTable{
	"Condition":   {table: "condition_occurrence", conceptColumn: "condition_concept_id", dateColumn: "condition_start_date"},
	"Drug":        {table: "drug_exposure", conceptColumn: "drug_concept_id", dateColumn: "drug_exposure_start_date"},
	"Procedure":   {table: "procedure_occurrence", conceptColumn: "procedure_concept_id", dateColumn: "procedure_date"},
	"Measurement": {table: "measurement", conceptColumn: "measurement_concept_id", dateColumn: "measurement_date"},
	"Observation": {table: "observation", conceptColumn: "observation_concept_id", dateColumn: "observation_date"},
}

const maxConceptIDs = 1000

// Warning records a schema-adaptation decision made during generation
// (see AdaptSchema) so callers can surface it to the user.
type Warning struct {
	Message string
}

// AnalyticalParams are the validated inputs to Analytical.
type AnalyticalParams struct {
	QueryType        QueryType
	ConceptIDs       []int64
	Domain           string
	RowLimit         int
	MaxRowLimit      int
	AllowPatientList bool
}

func validateConceptIDs(ids []int64) error {
	if len(ids) == 0 {
		return omoperr.New(omoperr.InvalidRequest, "concept_ids must be non-empty")
	}
	if len(ids) > maxConceptIDs {
		return omoperr.Newf(omoperr.InvalidRequest, "concept_ids exceeds maximum of %d entries", maxConceptIDs)
	}
	for _, id := range ids {
		if id <= 0 {
			return omoperr.Newf(omoperr.InvalidRequest, "concept id %d is not a positive integer", id)
		}
	}
	return nil
}

func idList(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// Analytical builds one of the three analytical query shapes (count,
// breakdown, list_patients) using d's dialect helpers.
func Analytical(ctx context.Context, p AnalyticalParams, d driver.Driver) (string, []Warning, error) {
	ft, ok := domainTables[p.Domain]
	if !ok {
		return "", nil, omoperr.Newf(omoperr.InvalidRequest, "unknown domain %q", p.Domain)
	}
	if err := validateConceptIDs(p.ConceptIDs); err != nil {
		return "", nil, err
	}
	if p.RowLimit <= 0 || p.RowLimit > p.MaxRowLimit {
		return "", nil, omoperr.Newf(omoperr.InvalidRequest, "row_limit must be in [1, %d]", p.MaxRowLimit)
	}

	ft, warnings, err := adaptFactTable(ctx, d, ft)
	if err != nil {
		return "", nil, err
	}

	table := d.QualifiedTable(ft.table)
	personTable := d.QualifiedTable("person")
	ids := idList(p.ConceptIDs)

	switch p.QueryType {
	case QueryCount:
		sql := fmt.Sprintf(
			"SELECT COUNT(DISTINCT person_id) AS patient_count FROM %s WHERE %s IN (%s)",
			table, ft.conceptColumn, ids,
		)
		return sql, warnings, nil

	case QueryBreakdown:
		age := d.AgeExpression(personTable + ".birth_datetime")
		sql := fmt.Sprintf(
			"SELECT p.gender_concept_id AS gender_concept_id, %s AS age, COUNT(DISTINCT f.person_id) AS patient_count "+
				"FROM %s f JOIN %s p ON f.person_id = p.person_id "+
				"WHERE f.%s IN (%s) "+
				"GROUP BY p.gender_concept_id, age "+
				"ORDER BY patient_count DESC "+
				"LIMIT %d",
			age, table, personTable, ft.conceptColumn, ids, p.RowLimit,
		)
		return sql, warnings, nil

	case QueryListPatients:
		if !p.AllowPatientList {
			return "", nil, omoperr.New(omoperr.SecurityViolation, "list_patients is disabled by configuration (allow_patient_list=false)")
		}
		sql := fmt.Sprintf(
			"SELECT DISTINCT person_id FROM %s WHERE %s IN (%s) LIMIT %d",
			table, ft.conceptColumn, ids, p.RowLimit,
		)
		return sql, warnings, nil

	default:
		return "", nil, omoperr.Newf(omoperr.InvalidRequest, "unknown query_type %q", p.QueryType)
	}
}

// CohortParams are the validated inputs to Cohort.
type CohortParams struct {
	ExposureIDs    []int64
	OutcomeIDs     []int64
	ExposureDomain string
	OutcomeDomain  string
	PreOutcomeDays int
}

// Cohort builds the cohort-identification query: three CTEs
// (exposure/outcome/cohort) with a trailing QUALIFY on dialects that
// support it, otherwise a fourth CTE carries the equivalent
// ROW_NUMBER() subquery dedup.
func Cohort(ctx context.Context, p CohortParams, d driver.Driver) (string, []Warning, error) {
	if err := validateConceptIDs(p.ExposureIDs); err != nil {
		return "", nil, err
	}
	if err := validateConceptIDs(p.OutcomeIDs); err != nil {
		return "", nil, err
	}
	if p.PreOutcomeDays < 0 {
		return "", nil, omoperr.New(omoperr.InvalidRequest, "pre_outcome_days must be >= 0")
	}

	exposureFT, ok := domainTables[p.ExposureDomain]
	if !ok {
		return "", nil, omoperr.Newf(omoperr.InvalidRequest, "unknown exposure domain %q", p.ExposureDomain)
	}
	outcomeFT, ok := domainTables[p.OutcomeDomain]
	if !ok {
		return "", nil, omoperr.Newf(omoperr.InvalidRequest, "unknown outcome domain %q", p.OutcomeDomain)
	}

	var warnings []Warning
	exposureFT, w, err := adaptFactTable(ctx, d, exposureFT)
	if err != nil {
		return "", nil, err
	}
	warnings = append(warnings, w...)
	outcomeFT, w, err = adaptFactTable(ctx, d, outcomeFT)
	if err != nil {
		return "", nil, err
	}
	warnings = append(warnings, w...)

	exposureTable := d.QualifiedTable(exposureFT.table)
	outcomeTable := d.QualifiedTable(outcomeFT.table)
	dateDiff := d.DateDiffExpression(driver.UnitDay, "e.exposure_date", "o.outcome_date")

	var sql string
	if hasFeature(d, driver.FeatureQualify) {
		// Dialect supports QUALIFY natively: dedup the first qualifying
		// exposure per person in the same CTE that computes it, so the
		// cohort is three CTEs deep instead of four.
		sql = fmt.Sprintf(
			`WITH exposure AS (
  SELECT DISTINCT person_id, %s AS exposure_date
  FROM %s
  WHERE %s IN (%s)
),
outcome AS (
  SELECT DISTINCT person_id, %s AS outcome_date
  FROM %s
  WHERE %s IN (%s)
),
cohort AS (
  SELECT e.person_id, e.exposure_date, o.outcome_date
  FROM exposure e
  JOIN outcome o ON e.person_id = o.person_id
  WHERE e.exposure_date <= o.outcome_date
    AND %s <= %d
  QUALIFY ROW_NUMBER() OVER (PARTITION BY person_id ORDER BY exposure_date) = 1
)
SELECT person_id, exposure_date, outcome_date FROM cohort`,
			exposureFT.dateColumn, exposureTable, exposureFT.conceptColumn, idList(p.ExposureIDs),
			outcomeFT.dateColumn, outcomeTable, outcomeFT.conceptColumn, idList(p.OutcomeIDs),
			dateDiff, p.PreOutcomeDays,
		)
	} else {
		// No native QUALIFY: dedup via a ROW_NUMBER() subquery, which
		// costs an extra CTE but is portable to every dialect.
		sql = fmt.Sprintf(
			`WITH exposure AS (
  SELECT DISTINCT person_id, %s AS exposure_date
  FROM %s
  WHERE %s IN (%s)
),
outcome AS (
  SELECT DISTINCT person_id, %s AS outcome_date
  FROM %s
  WHERE %s IN (%s)
),
matched AS (
  SELECT e.person_id, e.exposure_date, o.outcome_date,
    ROW_NUMBER() OVER (PARTITION BY e.person_id ORDER BY e.exposure_date) AS rn
  FROM exposure e
  JOIN outcome o ON e.person_id = o.person_id
  WHERE e.exposure_date <= o.outcome_date
    AND %s <= %d
),
cohort AS (
  SELECT person_id, exposure_date, outcome_date FROM matched WHERE rn = 1
)
SELECT person_id, exposure_date, outcome_date FROM cohort`,
			exposureFT.dateColumn, exposureTable, exposureFT.conceptColumn, idList(p.ExposureIDs),
			outcomeFT.dateColumn, outcomeTable, outcomeFT.conceptColumn, idList(p.OutcomeIDs),
			dateDiff, p.PreOutcomeDays,
		)
	}

	return sql, warnings, nil
}

func hasFeature(d driver.Driver, f driver.Feature) bool {
	for _, got := range d.Capabilities().Features {
		if got == f {
			return true
		}
	}
	return false
}

// adaptFactTable applies the schema adaptation policy: when the live
// schema is missing the expected date column, substitute the closest
// available date-role column within the same table and return a warning
// naming the substitution; if the table has no date-role column at all,
// return a ValidationFailed error telling the caller to exclude the
// concept set, since Analytical and Cohort cannot proceed without a
// date column.
func adaptFactTable(ctx context.Context, d driver.Driver, ft factTable) (factTable, []Warning, error) {
	tables, err := d.ListTables(ctx)
	if err != nil {
		return ft, nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "list_tables")
	}

	schema, ok := tables[ft.table]
	if !ok {
		// Table itself is unknown to the live schema; nothing to adapt to.
		return ft, nil, omoperr.Newf(omoperr.NotFound, "table %q not present in backend schema", ft.table)
	}

	for _, c := range schema.Columns {
		if c == ft.dateColumn {
			return ft, nil, nil
		}
	}

	// Date column missing under its canonical name: substitute the first
	// available date-role column in the same table.
	if len(schema.DateColumns) > 0 {
		adapted := ft
		adapted.dateColumn = schema.DateColumns[0]
		return adapted, []Warning{{Message: fmt.Sprintf(
			"substituted date column %q for missing %q on table %q", adapted.dateColumn, ft.dateColumn, ft.table,
		)}}, nil
	}

	return ft, nil, omoperr.Newf(omoperr.ValidationFailed, "table %q has no date-role column to satisfy %q; exclude this concept set", ft.table, ft.dateColumn)
}
