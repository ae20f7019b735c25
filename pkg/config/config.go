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

// Package config loads process-wide settings from environment variables
// and an optional YAML file. File values are defaults; environment
// variables always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultOMOPAllowedTables is the OMOP CDM standard table set used when
// strict_table_validation is enabled and no override is configured.
var defaultOMOPAllowedTables = []string{
	"person", "observation_period", "visit_occurrence",
	"condition_occurrence", "drug_exposure", "procedure_occurrence",
	"measurement", "observation", "death", "concept", "concept_relationship",
}

// defaultOMOPBlockedColumns is the PHI source-value identity column set
// blocked unless phi_mode is enabled.
var defaultOMOPBlockedColumns = []string{
	"person_source_value", "provider_source_value",
	"condition_source_value", "drug_source_value",
	"procedure_source_value", "measurement_source_value",
	"observation_source_value", "visit_source_value",
}

// BackendCredentials holds the per-backend connection fields. Only the
// fields relevant to Config.BackendType need be populated.
type BackendCredentials struct {
	// Cloud column-store (bigquery)
	Project     string
	Dataset     string
	Credentials string // path to service-account JSON, or empty for ADC

	// Enterprise cloud (snowflake)
	Account   string
	Warehouse string

	// Relational (postgres) / shared with enterprise cloud
	Host     string
	Port     int
	Database string
	Schema   string
	User     string
	Password string

	// Embedded (duckdb-slot, backed by sqlite)
	Path string
}

// Config is the process-wide, read-only settings object. Construct it
// with Load; do not mutate after load.
type Config struct {
	MaxQueryCostUSD        float64
	BigQueryCostPerTBUSD   float64
	QueryTimeoutSec        int
	AllowPatientList       bool
	PHIMode                bool
	DefaultRowLimit        int
	MaxRowLimit            int
	StrictTableValidation  bool
	OMOPAllowedTables      []string
	OMOPBlockedColumns     []string
	BackendType            string
	Backends               map[string]BackendCredentials
	VocabularyBaseURL      string
	VocabularyTimeoutSec   int
	VocabularyCacheSize    int
	OAuthIssuer            string
	OAuthAudience          string
}

// fileConfig mirrors the optional YAML file's shape. Every field is a
// pointer or zero-valued so "absent" is distinguishable from "zero".
type fileConfig struct {
	MaxQueryCostUSD       *float64                       `yaml:"max_query_cost_usd"`
	BigQueryCostPerTBUSD  *float64                       `yaml:"bigquery_cost_per_tb_usd"`
	QueryTimeoutSec       *int                           `yaml:"query_timeout_sec"`
	AllowPatientList      *bool                          `yaml:"allow_patient_list"`
	PHIMode               *bool                          `yaml:"phi_mode"`
	DefaultRowLimit       *int                           `yaml:"default_row_limit"`
	MaxRowLimit           *int                           `yaml:"max_row_limit"`
	StrictTableValidation *bool                          `yaml:"strict_table_validation"`
	OMOPAllowedTables     []string                       `yaml:"omop_allowed_tables"`
	OMOPBlockedColumns    []string                       `yaml:"omop_blocked_columns"`
	BackendType           string                         `yaml:"backend_type"`
	Backends              map[string]backendCredsYAML    `yaml:"backends"`
	VocabularyBaseURL     string                         `yaml:"vocabulary_base_url"`
	VocabularyTimeoutSec  *int                           `yaml:"vocabulary_timeout_sec"`
	VocabularyCacheSize   *int                           `yaml:"vocabulary_cache_size"`
	OAuthIssuer           string                         `yaml:"oauth_issuer"`
	OAuthAudience         string                         `yaml:"oauth_audience"`
}

type backendCredsYAML struct {
	Project     string `yaml:"project"`
	Dataset     string `yaml:"dataset"`
	Credentials string `yaml:"credentials"`
	Account     string `yaml:"account"`
	Warehouse   string `yaml:"warehouse"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Database    string `yaml:"database"`
	Schema      string `yaml:"schema"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Path        string `yaml:"path"`
}

// Load builds a Config from defaults, an optional YAML file at path
// (ignored if path is ""), and environment variable overrides, in that
// precedence order (env wins). Malformed numeric/bool values return a
// diagnostic error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		fc, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
		applyFile(cfg, fc)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		MaxQueryCostUSD:      1.0,
		BigQueryCostPerTBUSD: 5.0,
		QueryTimeoutSec:      30,
		AllowPatientList:     false,
		PHIMode:              false,
		DefaultRowLimit:      1000,
		MaxRowLimit:          10000,
		OMOPAllowedTables:    append([]string(nil), defaultOMOPAllowedTables...),
		OMOPBlockedColumns:   append([]string(nil), defaultOMOPBlockedColumns...),
		BackendType:          "bigquery",
		Backends:             map[string]BackendCredentials{},
		VocabularyTimeoutSec: 30,
		VocabularyCacheSize:  1000,
	}
}

func loadFile(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path from CLI flag, operator controlled
	if err != nil {
		return nil, err
	}

	expanded := os.Expand(string(raw), os.Getenv)

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &fc, nil
}

func applyFile(cfg *Config, fc *fileConfig) {
	if fc.MaxQueryCostUSD != nil {
		cfg.MaxQueryCostUSD = *fc.MaxQueryCostUSD
	}
	if fc.BigQueryCostPerTBUSD != nil {
		cfg.BigQueryCostPerTBUSD = *fc.BigQueryCostPerTBUSD
	}
	if fc.QueryTimeoutSec != nil {
		cfg.QueryTimeoutSec = *fc.QueryTimeoutSec
	}
	if fc.AllowPatientList != nil {
		cfg.AllowPatientList = *fc.AllowPatientList
	}
	if fc.PHIMode != nil {
		cfg.PHIMode = *fc.PHIMode
	}
	if fc.DefaultRowLimit != nil {
		cfg.DefaultRowLimit = *fc.DefaultRowLimit
	}
	if fc.MaxRowLimit != nil {
		cfg.MaxRowLimit = *fc.MaxRowLimit
	}
	if fc.StrictTableValidation != nil {
		cfg.StrictTableValidation = *fc.StrictTableValidation
	}
	if len(fc.OMOPAllowedTables) > 0 {
		cfg.OMOPAllowedTables = fc.OMOPAllowedTables
	}
	if len(fc.OMOPBlockedColumns) > 0 {
		cfg.OMOPBlockedColumns = fc.OMOPBlockedColumns
	}
	if fc.BackendType != "" {
		cfg.BackendType = fc.BackendType
	}
	for name, creds := range fc.Backends {
		cfg.Backends[name] = BackendCredentials{
			Project: creds.Project, Dataset: creds.Dataset, Credentials: creds.Credentials,
			Account: creds.Account, Warehouse: creds.Warehouse,
			Host: creds.Host, Port: creds.Port, Database: creds.Database,
			Schema: creds.Schema, User: creds.User, Password: creds.Password,
			Path: creds.Path,
		}
	}
	if fc.VocabularyBaseURL != "" {
		cfg.VocabularyBaseURL = fc.VocabularyBaseURL
	}
	if fc.VocabularyTimeoutSec != nil {
		cfg.VocabularyTimeoutSec = *fc.VocabularyTimeoutSec
	}
	if fc.VocabularyCacheSize != nil {
		cfg.VocabularyCacheSize = *fc.VocabularyCacheSize
	}
	if fc.OAuthIssuer != "" {
		cfg.OAuthIssuer = fc.OAuthIssuer
	}
	if fc.OAuthAudience != "" {
		cfg.OAuthAudience = fc.OAuthAudience
	}
}

// envPrefix namespaces every recognized environment variable.
const envPrefix = "OMOP_MCP_"

func applyEnv(cfg *Config) error {
	if v, ok := lookupEnv("MAX_QUERY_COST_USD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", envPrefix+"MAX_QUERY_COST_USD", err)
		}
		cfg.MaxQueryCostUSD = f
	}
	if v, ok := lookupEnv("BIGQUERY_COST_PER_TB_USD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", envPrefix+"BIGQUERY_COST_PER_TB_USD", err)
		}
		cfg.BigQueryCostPerTBUSD = f
	}
	if v, ok := lookupEnv("QUERY_TIMEOUT_SEC"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPrefix+"QUERY_TIMEOUT_SEC", err)
		}
		cfg.QueryTimeoutSec = n
	}
	if v, ok := lookupEnv("ALLOW_PATIENT_LIST"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPrefix+"ALLOW_PATIENT_LIST", err)
		}
		cfg.AllowPatientList = b
	}
	if v, ok := lookupEnv("PHI_MODE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPrefix+"PHI_MODE", err)
		}
		cfg.PHIMode = b
	}
	if v, ok := lookupEnv("DEFAULT_ROW_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPrefix+"DEFAULT_ROW_LIMIT", err)
		}
		cfg.DefaultRowLimit = n
	}
	if v, ok := lookupEnv("MAX_ROW_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPrefix+"MAX_ROW_LIMIT", err)
		}
		cfg.MaxRowLimit = n
	}
	if v, ok := lookupEnv("STRICT_TABLE_VALIDATION"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPrefix+"STRICT_TABLE_VALIDATION", err)
		}
		cfg.StrictTableValidation = b
	}
	if v, ok := lookupEnv("BACKEND_TYPE"); ok {
		cfg.BackendType = v
	}
	if v, ok := lookupEnv("VOCABULARY_BASE_URL"); ok {
		cfg.VocabularyBaseURL = v
	}
	if v, ok := lookupEnv("VOCABULARY_TIMEOUT_SEC"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPrefix+"VOCABULARY_TIMEOUT_SEC", err)
		}
		cfg.VocabularyTimeoutSec = n
	}
	if v, ok := lookupEnv("VOCABULARY_CACHE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPrefix+"VOCABULARY_CACHE_SIZE", err)
		}
		cfg.VocabularyCacheSize = n
	}
	if v, ok := lookupEnv("OAUTH_ISSUER"); ok {
		cfg.OAuthIssuer = v
	}
	if v, ok := lookupEnv("OAUTH_AUDIENCE"); ok {
		cfg.OAuthAudience = v
	}

	return applyBackendEnv(cfg)
}

// applyBackendEnv fills credentials for the selected backend from its
// per-type environment variables. Unknown keys elsewhere are ignored
// per the closed-option-set rule.
func applyBackendEnv(cfg *Config) error {
	creds := cfg.Backends[cfg.BackendType]

	if v, ok := lookupEnv("PROJECT"); ok {
		creds.Project = v
	}
	if v, ok := lookupEnv("DATASET"); ok {
		creds.Dataset = v
	}
	if v, ok := lookupEnv("CREDENTIALS"); ok {
		creds.Credentials = v
	}
	if v, ok := lookupEnv("ACCOUNT"); ok {
		creds.Account = v
	}
	if v, ok := lookupEnv("WAREHOUSE"); ok {
		creds.Warehouse = v
	}
	if v, ok := lookupEnv("HOST"); ok {
		creds.Host = v
	}
	if v, ok := lookupEnv("PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envPrefix+"PORT", err)
		}
		creds.Port = n
	}
	if v, ok := lookupEnv("DATABASE"); ok {
		creds.Database = v
	}
	if v, ok := lookupEnv("SCHEMA"); ok {
		creds.Schema = v
	}
	if v, ok := lookupEnv("USER"); ok {
		creds.User = v
	}
	if v, ok := lookupEnv("PASSWORD"); ok {
		creds.Password = v
	}
	if v, ok := lookupEnv("PATH"); ok {
		creds.Path = v
	}

	cfg.Backends[cfg.BackendType] = creds
	return nil
}

func lookupEnv(suffix string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + suffix)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

var validBackendTypes = map[string]bool{
	"bigquery": true, "snowflake": true, "duckdb": true, "postgres": true,
}

func validate(cfg *Config) error {
	if !validBackendTypes[cfg.BackendType] {
		return fmt.Errorf("unknown backend_type %q", cfg.BackendType)
	}
	if cfg.MaxQueryCostUSD < 0 {
		return fmt.Errorf("max_query_cost_usd must be >= 0")
	}
	if cfg.QueryTimeoutSec <= 0 {
		return fmt.Errorf("query_timeout_sec must be > 0")
	}
	if cfg.DefaultRowLimit <= 0 || cfg.DefaultRowLimit > cfg.MaxRowLimit {
		return fmt.Errorf("default_row_limit must be in (0, max_row_limit]")
	}
	if cfg.VocabularyCacheSize <= 0 {
		return fmt.Errorf("vocabulary_cache_size must be > 0")
	}
	return nil
}
