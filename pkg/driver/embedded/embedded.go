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

// Package embedded adapts modernc.org/sqlite, a pure-Go SQLite driver
// requiring no cgo, to pkg/driver's Driver contract. It serves as the
// local, connectionless analytical backend for demos, tests, and
// single-node deployments that would otherwise run DuckDB; its SQL
// surface is close enough to DuckDB's that it reports dialect.DuckDB
// and relies on the same translator rules.
package embedded

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teradata-labs/omop-mcp-server/pkg/config"
	"github.com/teradata-labs/omop-mcp-server/pkg/dialect"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
	"github.com/teradata-labs/omop-mcp-server/pkg/omoperr"
)

// Driver runs OMOP queries against a local SQLite file.
type Driver struct {
	name string
	db   *sql.DB
}

// New opens (creating if absent) the SQLite database at creds.Path. An
// empty Path opens an in-memory database, useful for tests and demos.
func New(ctx context.Context, name string, creds config.BackendCredentials) (*Driver, error) {
	path := creds.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "opening embedded database")
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; one conn avoids lock contention

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "pinging embedded database")
	}

	return &Driver{name: name, db: db}, nil
}

func (d *Driver) Name() string    { return d.name }
func (d *Driver) Dialect() string { return string(dialect.DuckDB) }

func (d *Driver) QualifiedTable(logicalName string) string {
	return logicalName
}

func (d *Driver) AgeExpression(birthColumn string) string {
	return fmt.Sprintf("CAST((julianday('now') - julianday(%s)) / 365.25 AS INTEGER)", birthColumn)
}

func (d *Driver) DateDiffExpression(unit driver.DateUnit, start, end string) string {
	switch unit {
	case driver.UnitYear:
		return fmt.Sprintf("CAST((julianday(%s) - julianday(%s)) / 365.25 AS INTEGER)", end, start)
	case driver.UnitMonth:
		return fmt.Sprintf("CAST((julianday(%s) - julianday(%s)) / 30.44 AS INTEGER)", end, start)
	default:
		return fmt.Sprintf("CAST(julianday(%s) - julianday(%s) AS INTEGER)", end, start)
	}
}

// ListTables discovers tables and columns via SQLite's pragma interface,
// since SQLite has no information_schema.
func (d *Driver) ListTables(ctx context.Context) (map[string]driver.TableSchema, error) {
	tableRows, err := d.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "listing tables")
	}
	defer tableRows.Close()

	var tableNames []string
	for tableRows.Next() {
		var name string
		if err := tableRows.Scan(&name); err != nil {
			return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "scanning table name")
		}
		tableNames = append(tableNames, name)
	}
	if err := tableRows.Err(); err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "reading table names")
	}

	tables := make(map[string]driver.TableSchema, len(tableNames))
	for _, table := range tableNames {
		colRows, err := d.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
		if err != nil {
			return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "querying table_info for "+table)
		}

		var schema driver.TableSchema
		for colRows.Next() {
			var cid int
			var name, colType string
			var notNull, pk int
			var dflt sql.NullString
			if err := colRows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
				colRows.Close()
				return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "scanning table_info row")
			}
			schema.Columns = append(schema.Columns, name)
			if strings.Contains(strings.ToUpper(colType), "DATE") || strings.Contains(strings.ToUpper(colType), "TIME") {
				schema.DateColumns = append(schema.DateColumns, name)
			}
		}
		colRows.Close()
		tables[table] = schema
	}
	return tables, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Validate runs EXPLAIN QUERY PLAN, SQLite's syntactic check that never
// touches table data. No cost figure is meaningful here: this backend
// is local and free, so EstimatedCostUSD is always 0.
func (d *Driver) Validate(ctx context.Context, sql string) (driver.ValidationResult, error) {
	rows, err := d.db.QueryContext(ctx, "EXPLAIN QUERY PLAN "+sql)
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
	out, err := dialect.Translate(query, dialect.Dialect(sourceDialect), dialect.DuckDB)
	if err != nil {
		return "", omoperr.Wrap(omoperr.DialectError, err, "translating to embedded dialect")
	}
	return out, nil
}

func (d *Driver) Capabilities() driver.Capability {
	return driver.Capability{
		Name:    d.name,
		Dialect: string(dialect.DuckDB),
		Features: []driver.Feature{
			driver.FeatureDryRun, driver.FeatureExplain, driver.FeatureExecute, driver.FeatureTranslate, driver.FeatureLocal,
		},
		Status: driver.StatusLive,
	}
}

func (d *Driver) Close() error {
	return d.db.Close()
}
