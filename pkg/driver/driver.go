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

// Package driver defines the uniform capability contract every warehouse
// backend satisfies, and the registry that maps backend names to lazily
// constructed driver instances.
package driver

import (
	"context"
	"time"
)

// DateUnit is the granularity accepted by DateDiffExpression.
type DateUnit string

const (
	UnitDay   DateUnit = "DAY"
	UnitMonth DateUnit = "MONTH"
	UnitYear  DateUnit = "YEAR"
)

// TableSchema describes one table's discovered columns, reported by
// ListTables so the SQL generator can accommodate non-standard naming.
type TableSchema struct {
	Columns     []string
	DateColumns []string
}

// ValidationResult is the outcome of Validate: a dry-run or EXPLAIN-
// equivalent check. Invariant: if Valid is false, Error is non-empty.
type ValidationResult struct {
	Valid             bool
	Error             string
	EstimatedBytes    int64
	EstimatedCostUSD   float64
}

// Row is one result row as a string-keyed map; it carries no column order.
type Row map[string]any

// Feature is one of the documented capability flags.
type Feature string

const (
	FeatureDryRun       Feature = "dry_run"
	FeatureCostEstimate Feature = "cost_estimate"
	FeatureExecute      Feature = "execute"
	FeatureExplain      Feature = "explain"
	FeatureTranslate    Feature = "translate"
	FeatureLocal        Feature = "local"
	FeatureQualify      Feature = "qualify"
)

// Status is a driver's operational standing.
type Status string

const (
	StatusLive       Status = "live"
	StatusBeta       Status = "beta"
	StatusDeprecated Status = "deprecated"
)

// Capability describes one registered driver for the capabilities://
// resource and the backend registry's list() operation.
type Capability struct {
	Name    string
	Dialect string
	Features []Feature
	Status  Status
}

// Driver is the uniform contract every warehouse backend implements.
// execute never mutates; validate never executes; both must be safe to
// call concurrently from different requests.
type Driver interface {
	Name() string
	Dialect() string

	// QualifiedTable returns the dialect-correct fully-qualified
	// identifier for an OMOP logical table name.
	QualifiedTable(logicalName string) string

	// AgeExpression returns a dialect-specific SQL fragment computing
	// age in years as of the current date from birthColumn.
	AgeExpression(birthColumn string) string

	// DateDiffExpression returns a dialect-specific date arithmetic
	// fragment for the given unit between start and end expressions.
	DateDiffExpression(unit DateUnit, start, end string) string

	// ListTables discovers the actual schema of the configured dataset.
	ListTables(ctx context.Context) (map[string]TableSchema, error)

	// Validate performs a syntactic/logical check without side effects.
	Validate(ctx context.Context, sql string) (ValidationResult, error)

	// Execute runs sql as given, returning up to rowLimit rows (0 means
	// no cap). The implementations stop through ctx cancellation and do
	// not apply timeout themselves; pkg/safety puts the deadline on ctx.
	// The implementations do not check the statement kind; pkg/safety
	// rejects anything but a single read-only SELECT before Execute runs.
	Execute(ctx context.Context, sql string, rowLimit int, timeout time.Duration) ([]Row, error)

	// TranslateFrom delegates to the dialect translator to rewrite sql
	// from sourceDialect into this driver's dialect.
	TranslateFrom(ctx context.Context, sourceDialect, sql string) (string, error)

	// Capabilities reports this driver's feature set and status.
	Capabilities() Capability

	// Close releases any held connections/clients.
	Close() error
}
