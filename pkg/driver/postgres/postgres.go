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

// Package postgres adapts a pgx/v5 connection pool to pkg/driver's
// Driver contract, for warehouses that speak standard PostgreSQL (or an
// OMOP CDM deployed on a Postgres-compatible analytical store).
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teradata-labs/omop-mcp-server/pkg/config"
	"github.com/teradata-labs/omop-mcp-server/pkg/dialect"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
	"github.com/teradata-labs/omop-mcp-server/pkg/omoperr"
)

// Driver runs OMOP queries against a Postgres connection pool.
type Driver struct {
	name   string
	schema string
	pool   *pgxpool.Pool
}

// New connects a pool from creds and verifies connectivity. schema
// defaults to "public" when unset, mirroring the teacher's pgxdriver
// convention.
func New(ctx context.Context, name string, creds config.BackendCredentials) (*Driver, error) {
	schema := creds.Schema
	if schema == "" {
		schema = "public"
	}

	dsn := buildDSN(creds, schema)
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "parsing postgres DSN")
	}

	poolCfg.MaxConns = 25
	poolCfg.MinConns = 2
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "creating postgres connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "pinging postgres")
	}

	return &Driver{name: name, schema: schema, pool: pool}, nil
}

// buildDSN constructs a libpq keyword/value connection string, quoting
// every value per https://www.postgresql.org/docs/current/libpq-connect.html#LIBPQ-CONNSTRING.
func buildDSN(creds config.BackendCredentials, schema string) string {
	port := creds.Port
	if port == 0 {
		port = 5432
	}
	parts := []string{
		fmt.Sprintf("host=%s", quote(creds.Host)),
		fmt.Sprintf("port=%d", port),
		fmt.Sprintf("dbname=%s", quote(creds.Database)),
		"sslmode=" + quote("require"),
	}
	if creds.User != "" {
		parts = append(parts, "user="+quote(creds.User))
	}
	if creds.Password != "" {
		parts = append(parts, "password="+quote(creds.Password))
	}
	return strings.Join(parts, " ")
}

func quote(v string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
	return "'" + escaped + "'"
}

func (d *Driver) Name() string    { return d.name }
func (d *Driver) Dialect() string { return string(dialect.Postgres) }

func (d *Driver) QualifiedTable(logicalName string) string {
	return fmt.Sprintf("%s.%s", d.schema, logicalName)
}

func (d *Driver) AgeExpression(birthColumn string) string {
	return fmt.Sprintf("DATE_PART('year', AGE(CURRENT_DATE, %s))", birthColumn)
}

func (d *Driver) DateDiffExpression(unit driver.DateUnit, start, end string) string {
	switch unit {
	case driver.UnitYear:
		return fmt.Sprintf("DATE_PART('year', AGE(%s, %s))", end, start)
	case driver.UnitMonth:
		return fmt.Sprintf("(DATE_PART('year', AGE(%s, %s)) * 12 + DATE_PART('month', AGE(%s, %s)))", end, start, end, start)
	default:
		return fmt.Sprintf("(%s - %s)", end, start)
	}
}

// ListTables discovers columns from information_schema, restricted to
// this driver's configured schema.
func (d *Driver) ListTables(ctx context.Context) (map[string]driver.TableSchema, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1
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
		if dataType == "date" || dataType == "timestamp without time zone" || dataType == "timestamp with time zone" {
			schema.DateColumns = append(schema.DateColumns, column)
		}
		tables[table] = schema
	}
	if err := rows.Err(); err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "reading information_schema rows")
	}
	return tables, nil
}

// Validate runs EXPLAIN (FORMAT JSON) to check sql without executing
// it. EstimatedCostUSD is always 0.
func (d *Driver) Validate(ctx context.Context, sql string) (driver.ValidationResult, error) {
	rows, err := d.pool.Query(ctx, "EXPLAIN (FORMAT JSON) "+sql)
	if err != nil {
		return driver.ValidationResult{Valid: false, Error: err.Error()}, nil
	}
	defer rows.Close()

	var totalCost float64
	for rows.Next() {
		var plan []byte
		if err := rows.Scan(&plan); err != nil {
			return driver.ValidationResult{}, omoperr.Wrap(omoperr.BackendUnavailable, err, "scanning explain plan")
		}
		totalCost = estimateCostFromPlan(plan)
	}
	if err := rows.Err(); err != nil {
		return driver.ValidationResult{Valid: false, Error: err.Error()}, nil
	}

	return driver.ValidationResult{Valid: true, EstimatedBytes: int64(totalCost * 1024), EstimatedCostUSD: 0}, nil
}

// estimateCostFromPlan is a placeholder cost proxy: Postgres's planner
// cost units aren't dollars, so downstream cost-cap enforcement is a
// no-op for this driver (EstimatedCostUSD stays 0); only the BigQuery
// driver's byte-scan estimate feeds the dollar cost cap meaningfully.
func estimateCostFromPlan(plan []byte) float64 {
	return float64(len(plan))
}

func (d *Driver) Execute(ctx context.Context, sql string, rowLimit int, timeout time.Duration) ([]driver.Row, error) {
	rows, err := d.pool.Query(ctx, sql)
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "executing query")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var result []driver.Row
	for rows.Next() {
		if rowLimit > 0 && len(result) >= rowLimit {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "scanning result row")
		}
		row := make(driver.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "reading result rows")
	}
	return result, nil
}

func (d *Driver) TranslateFrom(ctx context.Context, sourceDialect, sql string) (string, error) {
	out, err := dialect.Translate(sql, dialect.Dialect(sourceDialect), dialect.Postgres)
	if err != nil {
		return "", omoperr.Wrap(omoperr.DialectError, err, "translating to postgres")
	}
	return out, nil
}

func (d *Driver) Capabilities() driver.Capability {
	return driver.Capability{
		Name:    d.name,
		Dialect: string(dialect.Postgres),
		Features: []driver.Feature{
			driver.FeatureDryRun, driver.FeatureExplain, driver.FeatureExecute, driver.FeatureTranslate,
		},
		Status: driver.StatusBeta,
	}
}

func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}
