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

// This package's New/Execute/Validate all require a live Postgres
// connection, which isn't available in this harness (no Go toolchain or
// network access is used to run tests). Coverage here is limited to the
// pure helper functions that build the connection string and the
// dialect-specific SQL fragments; connection and row-scanning behavior
// is exercised indirectly through pkg/mcpomop's driver.Driver double.
package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teradata-labs/omop-mcp-server/pkg/config"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
)

func TestBuildDSNIncludesDefaultPort(t *testing.T) {
	dsn := buildDSN(config.BackendCredentials{Host: "db.internal", Database: "omop", User: "reader"}, "public")
	assert.Contains(t, dsn, "host='db.internal'")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "dbname='omop'")
	assert.Contains(t, dsn, "user='reader'")
	assert.Contains(t, dsn, "sslmode='require'")
}

func TestBuildDSNRespectsExplicitPort(t *testing.T) {
	dsn := buildDSN(config.BackendCredentials{Host: "db.internal", Port: 6543, Database: "omop"}, "public")
	assert.Contains(t, dsn, "port=6543")
}

func TestBuildDSNOmitsCredentialsWhenUnset(t *testing.T) {
	dsn := buildDSN(config.BackendCredentials{Host: "db.internal", Database: "omop"}, "public")
	assert.NotContains(t, dsn, "user=")
	assert.NotContains(t, dsn, "password=")
}

func TestQuoteEscapesQuotesAndBackslashes(t *testing.T) {
	assert.Equal(t, `'it\'s\\here'`, quote(`it's\here`))
}

func TestQualifiedTableUsesConfiguredSchema(t *testing.T) {
	d := &Driver{name: "pg", schema: "cdm"}
	assert.Equal(t, "cdm.person", d.QualifiedTable("person"))
}

func TestAgeExpressionUsesAgeFunction(t *testing.T) {
	d := &Driver{schema: "public"}
	assert.Contains(t, d.AgeExpression("birth_datetime"), "AGE(CURRENT_DATE")
}

func TestDateDiffExpressionVariesByUnit(t *testing.T) {
	d := &Driver{schema: "public"}
	assert.Contains(t, d.DateDiffExpression(driver.UnitYear, "s", "e"), "DATE_PART('year'")
	assert.Contains(t, d.DateDiffExpression(driver.UnitMonth, "s", "e"), "* 12")
	assert.Equal(t, "(e - s)", d.DateDiffExpression(driver.UnitDay, "s", "e"))
}

func TestCapabilitiesNeverIncludeCostEstimate(t *testing.T) {
	d := &Driver{name: "pg", schema: "public"}
	caps := d.Capabilities()
	assert.NotContains(t, caps.Features, driver.FeatureCostEstimate)
}
