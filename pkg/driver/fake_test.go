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

package driver

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// fakeDriver is an in-memory test double satisfying Driver, used by the
// registry tests so they don't require a real warehouse.
type fakeDriver struct {
	name              string
	dialect           string
	validateFn        func(sql string) ValidationResult
	executeRows       []Row
	executeErr        error
	executeCalls      int
	closeCalls        int
	tables            map[string]TableSchema
}

func newFakeDriver(name string) *fakeDriver {
	return &fakeDriver{
		name:    name,
		dialect: name + "-dialect",
		validateFn: func(sql string) ValidationResult {
			return ValidationResult{Valid: true}
		},
		tables: map[string]TableSchema{
			"person": {Columns: []string{"person_id", "gender_concept_id", "birth_datetime"}, DateColumns: []string{"birth_datetime"}},
			"condition_occurrence": {
				Columns:     []string{"person_id", "condition_concept_id", "condition_start_date"},
				DateColumns: []string{"condition_start_date"},
			},
		},
	}
}

func (f *fakeDriver) Name() string    { return f.name }
func (f *fakeDriver) Dialect() string { return f.dialect }

func (f *fakeDriver) QualifiedTable(logicalName string) string {
	return fmt.Sprintf("%s.%s", f.name, logicalName)
}

func (f *fakeDriver) AgeExpression(birthColumn string) string {
	return fmt.Sprintf("AGE(%s)", birthColumn)
}

func (f *fakeDriver) DateDiffExpression(unit DateUnit, start, end string) string {
	return fmt.Sprintf("DATE_DIFF(%s, %s, %s)", unit, start, end)
}

func (f *fakeDriver) ListTables(ctx context.Context) (map[string]TableSchema, error) {
	return f.tables, nil
}

func (f *fakeDriver) Validate(ctx context.Context, sql string) (ValidationResult, error) {
	return f.validateFn(sql), nil
}

func (f *fakeDriver) Execute(ctx context.Context, sql string, rowLimit int, timeout time.Duration) ([]Row, error) {
	f.executeCalls++
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	rows := f.executeRows
	if len(rows) > rowLimit {
		rows = rows[:rowLimit]
	}
	return rows, nil
}

func (f *fakeDriver) TranslateFrom(ctx context.Context, sourceDialect, sql string) (string, error) {
	return strings.ReplaceAll(sql, sourceDialect, f.dialect), nil
}

func (f *fakeDriver) Capabilities() Capability {
	return Capability{Name: f.name, Dialect: f.dialect, Features: []Feature{FeatureDryRun, FeatureExecute}, Status: StatusLive}
}

func (f *fakeDriver) Close() error {
	f.closeCalls++
	return nil
}
