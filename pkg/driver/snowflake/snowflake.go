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

// Package snowflake adapts github.com/snowflakedb/gosnowflake, driven
// through database/sql, to pkg/driver's Driver contract.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"

	"github.com/teradata-labs/omop-mcp-server/pkg/config"
	"github.com/teradata-labs/omop-mcp-server/pkg/dialect"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
	"github.com/teradata-labs/omop-mcp-server/pkg/omoperr"
)

// Driver runs OMOP queries against a Snowflake warehouse.
type Driver struct {
	name     string
	database string
	schema   string
	db       *sql.DB
}

// New opens a database/sql connection pool via gosnowflake's driver,
// using creds.Account/Warehouse/Database/Schema/User/Password.
func New(ctx context.Context, name string, creds config.BackendCredentials) (*Driver, error) {
	cfg := &sf.Config{
		Account:   creds.Account,
		User:      creds.User,
		Password:  creds.Password,
		Database:  creds.Database,
		Schema:    creds.Schema,
		Warehouse: creds.Warehouse,
	}
	dsn, err := sf.DSN(cfg)
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "building snowflake DSN")
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "opening snowflake connection")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "pinging snowflake")
	}

	return &Driver{name: name, database: creds.Database, schema: creds.Schema, db: db}, nil
}

func (d *Driver) Name() string    { return d.name }
func (d *Driver) Dialect() string { return string(dialect.Snowflake) }

func (d *Driver) QualifiedTable(logicalName string) string {
	return fmt.Sprintf("%s.%s.%s", d.database, d.schema, logicalName)
}

func (d *Driver) AgeExpression(birthColumn string) string {
	return fmt.Sprintf("DATEDIFF(YEAR, %s, CURRENT_DATE())", birthColumn)
}

func (d *Driver) DateDiffExpression(unit driver.DateUnit, start, end string) string {
	return fmt.Sprintf("DATEDIFF(%s, %s, %s)", unit, start, end)
}

func (d *Driver) ListTables(ctx context.Context) (map[string]driver.TableSchema, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = ?
		ORDER BY table_name, ordinal_position`, d.schema)
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "querying information_schema")
	}
	defer rows.Close()

	tables := make(map[string]driver.TableSchema)
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "scanning information_schema row")
		}
		schema := tables[table]
		schema.Columns = append(schema.Columns, column)
		if strings.HasPrefix(strings.ToUpper(dataType), "DATE") || strings.HasPrefix(strings.ToUpper(dataType), "TIMESTAMP") {
			schema.DateColumns = append(schema.DateColumns, column)
		}
		tables[table] = schema
	}
	if err := rows.Err(); err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "reading information_schema rows")
	}
	return tables, nil
}

// Validate delegates to EXPLAIN USING TEXT, which Snowflake accepts for
// any SELECT without executing it.
func (d *Driver) Validate(ctx context.Context, sql string) (driver.ValidationResult, error) {
	rows, err := d.db.QueryContext(ctx, "EXPLAIN USING TEXT "+sql)
	if err != nil {
		return driver.ValidationResult{Valid: false, Error: err.Error()}, nil
	}
	defer rows.Close()
	if err := rows.Err(); err != nil {
		return driver.ValidationResult{Valid: false, Error: err.Error()}, nil
	}
	return driver.ValidationResult{Valid: true}, nil
}

func (d *Driver) Execute(ctx context.Context, query string, rowLimit int, timeout time.Duration) ([]driver.Row, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "executing query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "reading result columns")
	}

	var result []driver.Row
	for rows.Next() {
		if rowLimit > 0 && len(result) >= rowLimit {
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "scanning result row")
		}
		row := make(driver.Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "reading result rows")
	}
	return result, nil
}

func (d *Driver) TranslateFrom(ctx context.Context, sourceDialect, query string) (string, error) {
	out, err := dialect.Translate(query, dialect.Dialect(sourceDialect), dialect.Snowflake)
	if err != nil {
		return "", omoperr.Wrap(omoperr.DialectError, err, "translating to snowflake")
	}
	return out, nil
}

func (d *Driver) Capabilities() driver.Capability {
	return driver.Capability{
		Name:    d.name,
		Dialect: string(dialect.Snowflake),
		Features: []driver.Feature{
			driver.FeatureDryRun, driver.FeatureExplain, driver.FeatureExecute, driver.FeatureTranslate,
			driver.FeatureQualify,
		},
		Status: driver.StatusLive,
	}
}

func (d *Driver) Close() error {
	return d.db.Close()
}
