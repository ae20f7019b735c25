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

// Package mcpomop wires the vocabulary client, driver registry, SQL
// generator, safety pipeline, and export helpers into the MCP tool,
// resource, and prompt surfaces: it is the only package that imports
// both pkg/mcp/server's provider interfaces and the domain packages.
package mcpomop

import (
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/omop-mcp-server/pkg/config"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
	"github.com/teradata-labs/omop-mcp-server/pkg/observability"
	"github.com/teradata-labs/omop-mcp-server/pkg/omoperr"
	"github.com/teradata-labs/omop-mcp-server/pkg/safety"
	"github.com/teradata-labs/omop-mcp-server/pkg/vocabulary"
)

// Server implements pkg/mcp/server's ToolProvider, ResourceProvider, and
// PromptProvider over the OMOP domain packages.
type Server struct {
	cfg     *config.Config
	vocab   *vocabulary.Client
	drivers *driver.Registry
	logger  *zap.Logger
	obs     observability.Tracer
}

// Option configures optional Server behavior beyond its required
// constructor arguments.
type Option func(*Server)

// WithTracer installs a non-default observability.Tracer (the zero
// value is a NoOpTracer). Use observability.NewOTelTracer to export
// spans/metrics in production.
func WithTracer(t observability.Tracer) Option {
	return func(s *Server) { s.obs = t }
}

// New constructs a Server. drivers must already have every backend
// named in cfg.Backends registered; New does not register drivers
// itself since construction is driver-package-specific (see
// cmd/omop-mcp-server for the wiring).
func New(cfg *config.Config, vocab *vocabulary.Client, drivers *driver.Registry, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, vocab: vocab, drivers: drivers, logger: logger, obs: observability.NewNoOpTracer()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolveDriver returns the named backend, or the registry default when
// name is empty.
func (s *Server) resolveDriver(name string) (driver.Driver, error) {
	if name == "" {
		return s.drivers.Default()
	}
	return s.drivers.Get(name)
}

// policy builds the safety.Policy snapshot for the current config. It
// is cheap to construct per-call since Config is immutable after load.
func (s *Server) policy() safety.Policy {
	allowed := make(map[string]bool, len(s.cfg.OMOPAllowedTables))
	for _, t := range s.cfg.OMOPAllowedTables {
		allowed[t] = true
	}
	blocked := make(map[string]bool, len(s.cfg.OMOPBlockedColumns))
	for _, c := range s.cfg.OMOPBlockedColumns {
		blocked[c] = true
	}
	return safety.Policy{
		StrictTableValidation: s.cfg.StrictTableValidation,
		AllowedTables:         allowed,
		PHIMode:               s.cfg.PHIMode,
		BlockedColumns:        blocked,
		DefaultRowLimit:       s.cfg.DefaultRowLimit,
		MaxRowLimit:           s.cfg.MaxRowLimit,
		MaxQueryCostUSD:       s.cfg.MaxQueryCostUSD,
		QueryTimeout:          time.Duration(s.cfg.QueryTimeoutSec) * time.Second,
	}
}

func (s *Server) pipelineFor(d driver.Driver) *safety.Pipeline {
	return safety.New(s.policy(), d, s.logger)
}

// requireAllowPatientList is shared by query_omop's list_patients path.
func (s *Server) requireAllowPatientList() bool {
	return s.cfg.AllowPatientList
}

func notFound(format string, args ...any) error {
	return omoperr.Newf(omoperr.NotFound, format, args...)
}

func invalidRequest(format string, args ...any) error {
	return omoperr.Newf(omoperr.InvalidRequest, format, args...)
}
