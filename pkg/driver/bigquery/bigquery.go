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

// Package bigquery adapts cloud.google.com/go/bigquery to pkg/driver's
// Driver contract. Dry-run queries return BigQuery's own bytes-processed
// estimate, which this driver converts to a dollar estimate using a
// configured cost-per-TB constant (on-demand BigQuery billing has no
// native dollar unit).
package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/teradata-labs/omop-mcp-server/pkg/config"
	"github.com/teradata-labs/omop-mcp-server/pkg/dialect"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
	"github.com/teradata-labs/omop-mcp-server/pkg/omoperr"
)

// Driver runs OMOP queries against a BigQuery dataset.
type Driver struct {
	name         string
	project      string
	dataset      string
	client       *bigquery.Client
	costPerTBUSD float64
}

// New constructs a client for project/dataset. If creds.Credentials is
// set it's used as a service-account key file path; otherwise Application
// Default Credentials apply.
func New(ctx context.Context, name string, creds config.BackendCredentials, costPerTBUSD float64) (*Driver, error) {
	var opts []option.ClientOption
	if creds.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(creds.Credentials))
	}

	client, err := bigquery.NewClient(ctx, creds.Project, opts...)
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "creating bigquery client")
	}

	return &Driver{
		name: name, project: creds.Project, dataset: creds.Dataset,
		client: client, costPerTBUSD: costPerTBUSD,
	}, nil
}

func (d *Driver) Name() string    { return d.name }
func (d *Driver) Dialect() string { return string(dialect.BigQuery) }

func (d *Driver) QualifiedTable(logicalName string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.project, d.dataset, logicalName)
}

func (d *Driver) AgeExpression(birthColumn string) string {
	return fmt.Sprintf("DATE_DIFF(CURRENT_DATE(), %s, YEAR)", birthColumn)
}

func (d *Driver) DateDiffExpression(unit driver.DateUnit, start, end string) string {
	return fmt.Sprintf("DATE_DIFF(%s, %s, %s)", end, start, unit)
}

// ListTables enumerates the dataset's tables and their columns via
// table metadata (BigQuery has no information_schema.columns until
// recent preview releases, so schema introspection goes through the
// table resource directly).
func (d *Driver) ListTables(ctx context.Context) (map[string]driver.TableSchema, error) {
	tables := make(map[string]driver.TableSchema)
	it := d.client.Dataset(d.dataset).Tables(ctx)
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "listing bigquery tables")
		}

		meta, err := t.Metadata(ctx)
		if err != nil {
			return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "fetching table metadata")
		}

		schema := driver.TableSchema{}
		for _, field := range meta.Schema {
			schema.Columns = append(schema.Columns, field.Name)
			if field.Type == bigquery.DateFieldType || field.Type == bigquery.DateTimeFieldType || field.Type == bigquery.TimestampFieldType {
				schema.DateColumns = append(schema.DateColumns, field.Name)
			}
		}
		tables[t.TableID] = schema
	}
	return tables, nil
}

// Validate runs sql as a dry-run job, translating BigQuery's bytes-
// processed estimate into an estimated dollar cost.
func (d *Driver) Validate(ctx context.Context, sql string) (driver.ValidationResult, error) {
	q := d.client.Query(sql)
	q.DryRun = true

	job, err := q.Run(ctx)
	if err != nil {
		return driver.ValidationResult{Valid: false, Error: err.Error()}, nil
	}

	status := job.LastStatus()
	if status.Err() != nil {
		return driver.ValidationResult{Valid: false, Error: status.Err().Error()}, nil
	}

	stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok {
		return driver.ValidationResult{Valid: true}, nil
	}

	costUSD := float64(stats.TotalBytesProcessed) / 1e12 * d.costPerTBUSD
	return driver.ValidationResult{
		Valid: true, EstimatedBytes: stats.TotalBytesProcessed, EstimatedCostUSD: costUSD,
	}, nil
}

func (d *Driver) Execute(ctx context.Context, sql string, rowLimit int, timeout time.Duration) ([]driver.Row, error) {
	q := d.client.Query(sql)
	it, err := q.Read(ctx)
	if err != nil {
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "running bigquery query")
	}

	var result []driver.Row
	for {
		if rowLimit > 0 && len(result) >= rowLimit {
			break
		}
		var values map[string]bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "reading bigquery result row")
		}
		row := make(driver.Row, len(values))
		for k, v := range values {
			row[k] = v
		}
		result = append(result, row)
	}
	return result, nil
}

func (d *Driver) TranslateFrom(ctx context.Context, sourceDialect, sql string) (string, error) {
	if strings.EqualFold(sourceDialect, string(dialect.BigQuery)) {
		return sql, nil
	}
	out, err := dialect.Translate(sql, dialect.Dialect(sourceDialect), dialect.BigQuery)
	if err != nil {
		return "", omoperr.Wrap(omoperr.DialectError, err, "translating to bigquery")
	}
	return out, nil
}

func (d *Driver) Capabilities() driver.Capability {
	return driver.Capability{
		Name:    d.name,
		Dialect: string(dialect.BigQuery),
		Features: []driver.Feature{
			driver.FeatureDryRun, driver.FeatureCostEstimate, driver.FeatureExecute, driver.FeatureTranslate,
			driver.FeatureQualify,
		},
		Status: driver.StatusLive,
	}
}

func (d *Driver) Close() error {
	return d.client.Close()
}
