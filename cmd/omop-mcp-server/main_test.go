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

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teradata-labs/omop-mcp-server/pkg/auth"
	"github.com/teradata-labs/omop-mcp-server/pkg/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zap.DebugLevel},
		{"info", zap.InfoLevel},
		{"warn", zap.WarnLevel},
		{"error", zap.ErrorLevel},
		{"", zap.InfoLevel},
		{"unknown", zap.InfoLevel},
		{"DEBUG", zap.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestBuildLoggerWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")

	logger, err := buildLogger(logPath, "info")
	require.NoError(t, err)
	logger.Info("hello from test")
	_ = logger.Sync()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}

func TestBuildLoggerDefaultsToStderr(t *testing.T) {
	logger, err := buildLogger("", "debug")
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestBuildLoggerRejectsUnwritablePath(t *testing.T) {
	_, err := buildLogger("/no/such/directory/server.log", "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open log file")
}

func TestBuildRegistryRegistersExactlyTheConfiguredBackendType(t *testing.T) {
	for _, backendType := range []string{"postgres", "bigquery", "snowflake", "duckdb"} {
		t.Run(backendType, func(t *testing.T) {
			cfg := &config.Config{
				BackendType: backendType,
				Backends:    map[string]config.BackendCredentials{backendType: {}},
			}

			registry, err := buildRegistry(context.Background(), cfg)
			require.NoError(t, err)
			assert.Equal(t, backendType, registry.DefaultName())
		})
	}
}

func TestBuildRegistryRejectsUnknownBackendType(t *testing.T) {
	cfg := &config.Config{BackendType: "redshift", Backends: map[string]config.BackendCredentials{}}

	_, err := buildRegistry(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend_type")
}

func TestBuildAuthHookIsNoopWithoutIssuer(t *testing.T) {
	hook := buildAuthHook(&config.Config{})
	_, ok := hook.(auth.NoopVerifier)
	assert.True(t, ok, "expected a NoopVerifier when OAuthIssuer is unset")
}

func TestBuildAuthHookIsOIDCWithIssuer(t *testing.T) {
	hook := buildAuthHook(&config.Config{OAuthIssuer: "https://issuer.example.com", OAuthAudience: "omop-mcp"})
	_, ok := hook.(*auth.OIDCVerifier)
	assert.True(t, ok, "expected an OIDCVerifier when OAuthIssuer is set")
}
