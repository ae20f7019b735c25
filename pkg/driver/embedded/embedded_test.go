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

package embedded

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/omop-mcp-server/pkg/config"
	"github.com/teradata-labs/omop-mcp-server/pkg/dialect"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := New(context.Background(), "embedded", config.BackendCredentials{Path: ""})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func seedPersonTable(t *testing.T, d *Driver) {
	t.Helper()
	_, err := d.db.ExecContext(context.Background(), `
		CREATE TABLE person (
			person_id INTEGER,
			year_of_birth INTEGER,
			birth_datetime TEXT,
			gender_concept_id INTEGER
		)`)
	require.NoError(t, err)
	_, err = d.db.ExecContext(context.Background(), `
		INSERT INTO person (person_id, year_of_birth, birth_datetime, gender_concept_id)
		VALUES (1, 1980, '1980-05-01', 8507), (2, 1992, '1992-11-12', 8532)`)
	require.NoError(t, err)
}

func TestNewOpensInMemoryDatabaseByDefault(t *testing.T) {
	d := newTestDriver(t)
	assert.Equal(t, "embedded", d.Name())
	assert.Equal(t, string(dialect.DuckDB), d.Dialect())
}

func TestListTablesDiscoversColumnsAndDateTypes(t *testing.T) {
	d := newTestDriver(t)
	seedPersonTable(t, d)

	tables, err := d.ListTables(context.Background())
	require.NoError(t, err)

	person, ok := tables["person"]
	require.True(t, ok)
	assert.Contains(t, person.Columns, "person_id")
	assert.Contains(t, person.Columns, "gender_concept_id")
	assert.Contains(t, person.DateColumns, "birth_datetime")
	assert.NotContains(t, person.DateColumns, "person_id")
}

func TestListTablesExcludesSQLiteInternalTables(t *testing.T) {
	d := newTestDriver(t)
	seedPersonTable(t, d)

	tables, err := d.ListTables(context.Background())
	require.NoError(t, err)
	for name := range tables {
		assert.NotContains(t, name, "sqlite_")
	}
}

func TestValidateAcceptsWellFormedSelect(t *testing.T) {
	d := newTestDriver(t)
	seedPersonTable(t, d)

	result, err := d.Validate(context.Background(), "SELECT person_id FROM person")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, float64(0), result.EstimatedCostUSD)
}

func TestValidateRejectsMalformedSQL(t *testing.T) {
	d := newTestDriver(t)

	result, err := d.Validate(context.Background(), "SELECT FROM WHERE")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Error)
}

func TestExecuteReturnsRowsRespectingLimit(t *testing.T) {
	d := newTestDriver(t)
	seedPersonTable(t, d)

	rows, err := d.Execute(context.Background(), "SELECT person_id, year_of_birth FROM person ORDER BY person_id", 1, time.Second)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0]["person_id"])
}

func TestExecuteZeroRowLimitMeansUnlimited(t *testing.T) {
	d := newTestDriver(t)
	seedPersonTable(t, d)

	rows, err := d.Execute(context.Background(), "SELECT person_id FROM person", 0, time.Second)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestAgeAndDateDiffExpressionsAreNonEmpty(t *testing.T) {
	d := newTestDriver(t)
	assert.Contains(t, d.AgeExpression("birth_datetime"), "julianday")
	assert.Contains(t, d.DateDiffExpression(driver.UnitYear, "start_date", "end_date"), "julianday")
}

func TestCapabilitiesReportsLocalFeature(t *testing.T) {
	d := newTestDriver(t)
	caps := d.Capabilities()
	assert.Equal(t, driver.StatusLive, caps.Status)
	assert.Contains(t, caps.Features, driver.FeatureLocal)
}
