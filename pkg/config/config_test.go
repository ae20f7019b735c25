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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1.0, cfg.MaxQueryCostUSD)
	assert.Equal(t, 5.0, cfg.BigQueryCostPerTBUSD)
	assert.Equal(t, 30, cfg.QueryTimeoutSec)
	assert.False(t, cfg.AllowPatientList)
	assert.False(t, cfg.PHIMode)
	assert.Equal(t, "bigquery", cfg.BackendType)
	assert.Contains(t, cfg.OMOPBlockedColumns, "person_source_value")
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("max_query_cost_usd: 2.5\nbackend_type: postgres\n"), 0600))

	t.Setenv("OMOP_MCP_MAX_QUERY_COST_USD", "9.0")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 9.0, cfg.MaxQueryCostUSD, "env var must win over file value")
	assert.Equal(t, "postgres", cfg.BackendType, "file value applies where env is unset")
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("OMOP_MCP_BACKEND_TYPE", "redshift")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadRejectsMalformedNumber(t *testing.T) {
	t.Setenv("OMOP_MCP_MAX_QUERY_COST_USD", "not-a-number")
	_, err := Load("")
	require.Error(t, err)
}

func TestBackendEnvPopulatesCredentials(t *testing.T) {
	t.Setenv("OMOP_MCP_BACKEND_TYPE", "postgres")
	t.Setenv("OMOP_MCP_HOST", "db.internal")
	t.Setenv("OMOP_MCP_PORT", "5432")
	t.Setenv("OMOP_MCP_DATABASE", "omop")

	cfg, err := Load("")
	require.NoError(t, err)
	creds := cfg.Backends["postgres"]
	assert.Equal(t, "db.internal", creds.Host)
	assert.Equal(t, 5432, creds.Port)
	assert.Equal(t, "omop", creds.Database)
}
