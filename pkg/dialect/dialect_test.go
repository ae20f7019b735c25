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

package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateDateDiffRoundTrip(t *testing.T) {
	sql := "SELECT DATE_DIFF(DAY, exposure_date, outcome_date) FROM cohort"

	toDuckDB, err := Translate(sql, BigQuery, DuckDB)
	require.NoError(t, err)
	assert.Contains(t, toDuckDB, "julianday")

	toPostgres, err := Translate(sql, BigQuery, Postgres)
	require.NoError(t, err)
	assert.Contains(t, toPostgres, "EXTRACT(DAY FROM AGE(")
}

func TestTranslateUnknownDialect(t *testing.T) {
	_, err := Translate("SELECT 1", "oracle", BigQuery)
	assert.Error(t, err)
}

func TestTranslateQualifyFailsLoudlyForUnsupportedTarget(t *testing.T) {
	sql := "SELECT * FROM t QUALIFY ROW_NUMBER() OVER (PARTITION BY person_id ORDER BY exposure_date) = 1"
	_, err := Translate(sql, BigQuery, Postgres)
	require.Error(t, err, "QUALIFY must fail loudly rather than being silently dropped")
}

func TestTranslateQualifyPassesThroughBetweenSupportingDialects(t *testing.T) {
	sql := "SELECT * FROM t QUALIFY ROW_NUMBER() OVER (PARTITION BY person_id ORDER BY exposure_date) = 1"
	out, err := Translate(sql, BigQuery, Snowflake)
	require.NoError(t, err)
	assert.Contains(t, out, "QUALIFY")
}

func TestValidateSyntaxUnbalancedParens(t *testing.T) {
	err := ValidateSyntax("SELECT COUNT(DISTINCT person_id FROM t", BigQuery)
	assert.Error(t, err)
}

func TestExtractTables(t *testing.T) {
	sql := `WITH exposure AS (SELECT person_id FROM condition_occurrence)
	SELECT * FROM exposure JOIN person ON exposure.person_id = person.person_id`
	tables, err := ExtractTables(sql, BigQuery)
	require.NoError(t, err)
	assert.Contains(t, tables, "condition_occurrence")
	assert.NotContains(t, tables, "exposure")
	assert.Contains(t, tables, "person")
}
