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

// Package safety wraps every SQL-emitting tool invocation in a fixed,
// ordered pipeline: statement kind, table allowlist, column blocklist,
// row-limit injection, dry-run, cost cap, execution timeout. The seven
// steps are not pluggable — their order and all-or-fail semantics are
// part of the contract callers depend on.
package safety

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/omop-mcp-server/pkg/dialect"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
	"github.com/teradata-labs/omop-mcp-server/pkg/omoperr"
)

var mutationKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "TRUNCATE", "ALTER", "CREATE", "MERGE", "GRANT", "REVOKE",
}

var leadingKeywordPattern = regexp.MustCompile(`(?i)^\s*(WITH|SELECT)\b`)
var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\s*;?\s*$`)
var wordPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Policy is the set of caller-configured thresholds the pipeline
// enforces. It is derived from pkg/config.Config and does not change
// across requests.
type Policy struct {
	StrictTableValidation bool
	AllowedTables         map[string]bool
	PHIMode               bool
	BlockedColumns        map[string]bool
	DefaultRowLimit       int
	MaxRowLimit           int
	MaxQueryCostUSD       float64
	QueryTimeout          time.Duration
}

// Request is one call through the pipeline.
type Request struct {
	SQL        string
	Dialect    dialect.Dialect
	RowLimit   int  // caller-requested limit; 0 means use Policy.DefaultRowLimit
	Execute    bool // when false, stop after the cost-cap step
	SkipDryRun bool // when true, steps 5-6 (dry-run, cost cap) are skipped; steps 1-4 and 7 still apply
}

// Result is what the pipeline produced after all applicable steps ran.
type Result struct {
	SQL              string // the SQL actually validated/executed, with LIMIT injected
	EstimatedBytes   int64
	EstimatedCostUSD float64
	Rows             []driver.Row
	Executed         bool
}

// Pipeline runs the seven-step sequence against a single driver.
type Pipeline struct {
	policy Policy
	driver driver.Driver
	logger *zap.Logger
}

// New constructs a Pipeline bound to one driver and one policy snapshot.
func New(policy Policy, d driver.Driver, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{policy: policy, driver: d, logger: logger}
}

// Run executes the seven steps in order, stopping at the first failure.
// A successful run with req.Execute=false stops after the cost-cap step
// (7 does not apply); Rows is nil in that case.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	sql := strings.TrimSpace(req.SQL)

	if err := p.checkStatementKind(sql); err != nil {
		return Result{}, err
	}

	if p.policy.StrictTableValidation {
		if err := p.checkTableAllowlist(sql, req.Dialect); err != nil {
			return Result{}, err
		}
	}

	if !p.policy.PHIMode {
		if err := p.checkColumnBlocklist(sql); err != nil {
			return Result{}, err
		}
	}

	limited, err := p.injectRowLimit(sql, req.RowLimit)
	if err != nil {
		return Result{}, err
	}

	result := Result{SQL: limited}

	if !req.SkipDryRun {
		validation, err := p.dryRun(ctx, limited)
		if err != nil {
			return Result{}, err
		}
		if err := p.checkCostCap(validation); err != nil {
			return Result{}, err
		}
		result.EstimatedBytes = validation.EstimatedBytes
		result.EstimatedCostUSD = validation.EstimatedCostUSD
	}

	if !req.Execute {
		return result, nil
	}

	rows, err := p.executeWithTimeout(ctx, limited, p.effectiveLimit(req.RowLimit))
	if err != nil {
		return Result{}, err
	}
	result.Rows = rows
	result.Executed = true
	return result, nil
}

// 1. Statement kind: a single SELECT or WITH-led SELECT; no mutation verbs.
func (p *Pipeline) checkStatementKind(sql string) error {
	if sql == "" {
		return omoperr.New(omoperr.SecurityViolation, "empty SQL is not a valid statement")
	}
	if !leadingKeywordPattern.MatchString(sql) {
		return omoperr.New(omoperr.SecurityViolation, "statement must begin with SELECT or WITH")
	}
	upper := strings.ToUpper(sql)
	for _, kw := range mutationKeywords {
		if containsWord(upper, kw) {
			return omoperr.Newf(omoperr.SecurityViolation, "mutation keyword %q is not permitted", kw)
		}
	}
	if strings.Count(strings.Trim(sql, "; \t\n"), ";") > 0 {
		return omoperr.New(omoperr.SecurityViolation, "only a single statement is permitted")
	}
	return nil
}

func containsWord(haystack, word string) bool {
	for _, m := range wordPattern.FindAllString(haystack, -1) {
		if m == word {
			return true
		}
	}
	return false
}

// 2. Table allowlist: every referenced table must be pre-approved.
func (p *Pipeline) checkTableAllowlist(sql string, d dialect.Dialect) error {
	tables, err := dialect.ExtractTables(sql, d)
	if err != nil {
		return omoperr.Wrap(omoperr.DialectError, err, "extracting referenced tables")
	}
	for _, t := range tables {
		if !p.policy.AllowedTables[strings.ToLower(t)] {
			return omoperr.Newf(omoperr.SecurityViolation, "table %q is not on the allowed list", t)
		}
	}
	return nil
}

// 3. Column blocklist: reject PHI-identifying source-value columns.
func (p *Pipeline) checkColumnBlocklist(sql string) error {
	for col := range p.policy.BlockedColumns {
		if containsWord(strings.ToUpper(sql), strings.ToUpper(col)) {
			return omoperr.Newf(omoperr.SecurityViolation, "column %q is blocked under the current PHI policy", col)
		}
	}
	return nil
}

func (p *Pipeline) effectiveLimit(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = p.policy.DefaultRowLimit
	}
	if limit > p.policy.MaxRowLimit {
		limit = p.policy.MaxRowLimit
	}
	return limit
}

// 4. Row limit injection: append LIMIT if absent; fail if present and
// above the configured ceiling.
func (p *Pipeline) injectRowLimit(sql string, requested int) (string, error) {
	if m := limitPattern.FindStringSubmatch(sql); m != nil {
		existing, _ := strconv.Atoi(m[1])
		if existing > p.policy.MaxRowLimit {
			return "", omoperr.Newf(omoperr.InvalidRequest, "LIMIT %d exceeds max_row_limit %d", existing, p.policy.MaxRowLimit)
		}
		return sql, nil
	}
	limit := p.effectiveLimit(requested)
	return strings.TrimRight(sql, "; \t\n") + " LIMIT " + strconv.Itoa(limit), nil
}

// 5. Dry-run: a driver-native validation pass with no side effects.
func (p *Pipeline) dryRun(ctx context.Context, sql string) (driver.ValidationResult, error) {
	result, err := p.driver.Validate(ctx, sql)
	if err != nil {
		return driver.ValidationResult{}, omoperr.Wrap(omoperr.BackendUnavailable, err, "dry-run validation")
	}
	if !result.Valid {
		return driver.ValidationResult{}, omoperr.New(omoperr.ValidationFailed, result.Error)
	}
	return result, nil
}

// 6. Cost cap: reject estimates exceeding the configured ceiling.
func (p *Pipeline) checkCostCap(v driver.ValidationResult) error {
	if v.EstimatedCostUSD > p.policy.MaxQueryCostUSD {
		return omoperr.Newf(omoperr.CostLimitExceeded, "estimated cost $%.4f exceeds cap $%.4f", v.EstimatedCostUSD, p.policy.MaxQueryCostUSD).
			WithDetails(map[string]any{"estimated_cost_usd": v.EstimatedCostUSD, "cap_usd": p.policy.MaxQueryCostUSD})
	}
	return nil
}

// 7. Execution timeout: wrap Execute in a deadline; cancel and fail with
// Timeout on expiry.
func (p *Pipeline) executeWithTimeout(ctx context.Context, sql string, rowLimit int) ([]driver.Row, error) {
	timeout := p.policy.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := p.driver.Execute(execCtx, sql, rowLimit, timeout)
	if err != nil {
		if execCtx.Err() != nil {
			return nil, omoperr.Wrap(omoperr.Timeout, err, "query exceeded query_timeout_sec")
		}
		return nil, omoperr.Wrap(omoperr.BackendUnavailable, err, "execute")
	}
	return rows, nil
}
