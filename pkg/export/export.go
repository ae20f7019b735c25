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

// Package export serializes core value types (concept sets, query
// results, cohort definitions) to JSON, CSV, or JSONL, with optional
// gzip. These are thin wrappers over encoding/* and never touch the
// safety pipeline.
package export

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
	"github.com/teradata-labs/omop-mcp-server/pkg/omoperr"
	"github.com/teradata-labs/omop-mcp-server/pkg/vocabulary"
)

// Format is one of the supported serialization formats.
type Format string

const (
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// Result is the serialized output plus a content-type hint for callers
// wrapping it in an MCP content block.
type Result struct {
	Bytes       []byte
	ContentType string
	Gzipped     bool
}

func maybeGzip(data []byte, gzipped bool) ([]byte, error) {
	if !gzipped {
		return data, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, omoperr.Wrap(omoperr.InvalidRequest, err, "gzip encoding")
	}
	if err := w.Close(); err != nil {
		return nil, omoperr.Wrap(omoperr.InvalidRequest, err, "gzip close")
	}
	return buf.Bytes(), nil
}

func contentType(format Format, gzipped bool) string {
	base := map[Format]string{
		FormatJSON:  "application/json",
		FormatCSV:   "text/csv",
		FormatJSONL: "application/x-ndjson",
	}[format]
	if gzipped {
		return base + "+gzip"
	}
	return base
}

// Concepts serializes a concept set in the requested format.
func Concepts(concepts []vocabulary.Concept, format Format, gzipped bool) (Result, error) {
	var raw []byte
	var err error

	switch format {
	case FormatJSON:
		raw, err = json.MarshalIndent(concepts, "", "  ")
	case FormatJSONL:
		var buf bytes.Buffer
		for _, c := range concepts {
			line, e := json.Marshal(c)
			if e != nil {
				return Result{}, omoperr.Wrap(omoperr.InvalidRequest, e, "marshaling concept")
			}
			buf.Write(line)
			buf.WriteByte('\n')
		}
		raw = buf.Bytes()
	case FormatCSV:
		raw, err = conceptsCSV(concepts)
	default:
		return Result{}, omoperr.Newf(omoperr.InvalidRequest, "unsupported export format %q", format)
	}
	if err != nil {
		return Result{}, omoperr.Wrap(omoperr.InvalidRequest, err, "serializing concepts")
	}

	body, err := maybeGzip(raw, gzipped)
	if err != nil {
		return Result{}, err
	}
	return Result{Bytes: body, ContentType: contentType(format, gzipped), Gzipped: gzipped}, nil
}

func conceptsCSV(concepts []vocabulary.Concept) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"concept_id", "name", "domain", "vocabulary", "concept_class", "standard", "source_code"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, c := range concepts {
		row := []string{
			strconv.FormatInt(c.ID, 10), c.Name, string(c.Domain), c.Vocabulary,
			c.ConceptClass, string(c.Standard), c.SourceCode,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// QueryResult is the minimal shape export needs out of a query result;
// callers in pkg/mcpomop populate it from driver.Row slices.
type QueryResult struct {
	SQL              string
	Rows             []driver.Row
	RowCount         int
	EstimatedBytes   int64
	EstimatedCostUSD float64
	Backend          string
	Dialect          string
}

// QueryResultExport serializes a query result. CSV output derives its
// column order from the union of keys across all rows, sorted for
// determinism, since driver.Row carries no fixed schema.
func QueryResultExport(qr QueryResult, format Format, gzipped bool) (Result, error) {
	var raw []byte
	var err error

	switch format {
	case FormatJSON:
		raw, err = json.MarshalIndent(qr, "", "  ")
	case FormatJSONL:
		var buf bytes.Buffer
		for _, r := range qr.Rows {
			line, e := json.Marshal(r)
			if e != nil {
				return Result{}, omoperr.Wrap(omoperr.InvalidRequest, e, "marshaling row")
			}
			buf.Write(line)
			buf.WriteByte('\n')
		}
		raw = buf.Bytes()
	case FormatCSV:
		raw, err = rowsCSV(qr.Rows)
	default:
		return Result{}, omoperr.Newf(omoperr.InvalidRequest, "unsupported export format %q", format)
	}
	if err != nil {
		return Result{}, omoperr.Wrap(omoperr.InvalidRequest, err, "serializing query result")
	}

	body, err := maybeGzip(raw, gzipped)
	if err != nil {
		return Result{}, err
	}
	return Result{Bytes: body, ContentType: contentType(format, gzipped), Gzipped: gzipped}, nil
}

func rowsCSV(rows []driver.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	columns := map[string]bool{}
	for _, r := range rows {
		for k := range r {
			columns[k] = true
		}
	}
	header := make([]string, 0, len(columns))
	for k := range columns {
		header = append(header, k)
	}
	sort.Strings(header)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, r := range rows {
		row := make([]string, len(header))
		for i, col := range header {
			row[i] = fmt.Sprintf("%v", r[col])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CohortDefinition is the minimal shape export needs for a generated
// cohort; callers populate it from the sqlgen/safety outputs.
type CohortDefinition struct {
	SQL            string
	ExposureIDs    []int64
	OutcomeIDs     []int64
	PreOutcomeDays int
	Backend        string
	Dialect        string
	Valid          bool
	ValidationErr  string
}

// CohortDefinitionExport serializes a cohort definition. CSV is not a
// meaningful shape for a single definition record, so only JSON/JSONL
// are supported.
func CohortDefinitionExport(cd CohortDefinition, format Format, gzipped bool) (Result, error) {
	var raw []byte
	var err error

	switch format {
	case FormatJSON:
		raw, err = json.MarshalIndent(cd, "", "  ")
	case FormatJSONL:
		raw, err = json.Marshal(cd)
	default:
		return Result{}, omoperr.Newf(omoperr.InvalidRequest, "cohort definitions support json/jsonl only, got %q", format)
	}
	if err != nil {
		return Result{}, omoperr.Wrap(omoperr.InvalidRequest, err, "serializing cohort definition")
	}

	body, err := maybeGzip(raw, gzipped)
	if err != nil {
		return Result{}, err
	}
	return Result{Bytes: body, ContentType: contentType(format, gzipped), Gzipped: gzipped}, nil
}
