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

// omop-mcp-server is a Model Context Protocol server exposing OMOP
// Common Data Model vocabulary lookup, safety-gated analytical queries,
// cohort SQL generation, and export over a choice of warehouse backends.
//
// It speaks MCP over stdio (the default, for desktop clients) or as a
// streamable-HTTP endpoint bound to localhost.
//
// Usage:
//
//	omop-mcp-server --stdio
//	omop-mcp-server --http --port 8765
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teradata-labs/omop-mcp-server/internal/version"
	"github.com/teradata-labs/omop-mcp-server/pkg/auth"
	"github.com/teradata-labs/omop-mcp-server/pkg/config"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver/bigquery"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver/embedded"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver/postgres"
	"github.com/teradata-labs/omop-mcp-server/pkg/driver/snowflake"
	"github.com/teradata-labs/omop-mcp-server/pkg/mcp/server"
	"github.com/teradata-labs/omop-mcp-server/pkg/mcp/transport"
	"github.com/teradata-labs/omop-mcp-server/pkg/mcpomop"
	"github.com/teradata-labs/omop-mcp-server/pkg/observability"
	"github.com/teradata-labs/omop-mcp-server/pkg/vocabulary"
)

const serverName = "omop-mcp-server"

var (
	stdioMode    bool
	httpMode     bool
	httpPort     int
	configPath   string
	logFile      string
	logLevel     string
	otlpEndpoint string
)

func main() {
	root := &cobra.Command{
		Use:     serverName,
		Short:   "MCP server for safety-gated OMOP Common Data Model access",
		Version: version.Get(),
		RunE:    run,
	}

	root.PersistentFlags().BoolVar(&stdioMode, "stdio", true, "serve MCP over stdio (default transport)")
	root.PersistentFlags().BoolVar(&httpMode, "http", false, "serve MCP over streamable HTTP, bound to localhost only")
	root.PersistentFlags().IntVar(&httpPort, "port", 8765, "listen port for --http mode")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional YAML config file")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "log file path (defaults to stderr)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP collector endpoint; empty disables span export")
	root.MarkFlagsMutuallyExclusive("stdio", "http")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	// CRITICAL: never write logs to stdout -- stdout is the MCP stdio
	// transport when --http isn't set.
	logger, err := buildLogger(logFile, logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting omop-mcp-server",
		zap.String("version", version.Get()),
		zap.Bool("http", httpMode),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vocab := vocabulary.New(cfg.VocabularyBaseURL, time.Duration(cfg.VocabularyTimeoutSec)*time.Second, cfg.VocabularyCacheSize)

	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		logger.Error("failed to configure warehouse backend", zap.Error(err))
		return err
	}
	defer registry.Close()

	tracer, err := buildTracer(ctx, cfg)
	if err != nil {
		logger.Error("failed to configure observability", zap.Error(err))
		return err
	}
	defer func() { _ = tracer.Flush(context.Background()) }()

	omopServer := mcpomop.New(cfg, vocab, registry, logger, mcpomop.WithTracer(tracer))

	authHook := buildAuthHook(cfg)

	mcpServer := server.NewMCPServer(serverName, version.Get(), logger,
		server.WithToolProvider(omopServer),
		server.WithResourceProvider(omopServer),
		server.WithPromptProvider(omopServer),
		server.WithAuthHook(authHook),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	if httpMode {
		return serveHTTP(ctx, logger, mcpServer, tracer)
	}
	return serveStdio(ctx, logger, mcpServer)
}

func serveStdio(ctx context.Context, logger *zap.Logger, mcpServer *server.MCPServer) error {
	stdioTransport := transport.NewStdioServerTransport(os.Stdin, os.Stdout)
	logger.Info("MCP server ready on stdio")
	if err := mcpServer.Serve(ctx, stdioTransport); err != nil {
		if ctx.Err() != nil {
			logger.Info("server stopped gracefully")
			return nil
		}
		return err
	}
	return nil
}

func serveHTTP(ctx context.Context, logger *zap.Logger, mcpServer *server.MCPServer, tracer observability.Tracer) error {
	addr := fmt.Sprintf("127.0.0.1:%d", httpPort)
	transport.WarnIfNotLocalhost(logger, addr)

	mcpHandler, err := transport.NewStreamableHTTPServer(transport.StreamableHTTPServerConfig{
		Handler:    func(msg []byte) ([]byte, error) { return mcpServer.HandleMessage(ctx, msg) },
		Logger:     logger,
		SessionTTL: transport.DefaultSessionTTL,
	})
	if err != nil {
		return fmt.Errorf("creating http transport: %w", err)
	}
	defer mcpHandler.Close()

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpHandler)
	if otelTracer, ok := tracer.(*observability.OTelTracer); ok {
		mux.Handle("/metrics", otelTracer.MetricsHandler())
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	logger.Info("MCP server ready on http", zap.String("addr", addr))
	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// buildRegistry registers exactly one driver factory, matching
// cfg.BackendType, under that type name as both its registered name and
// the registry's default.
func buildRegistry(ctx context.Context, cfg *config.Config) (*driver.Registry, error) {
	registry := driver.NewRegistry(cfg.BackendType)
	creds := cfg.Backends[cfg.BackendType]

	switch cfg.BackendType {
	case "postgres":
		registry.Register(cfg.BackendType, func() (driver.Driver, error) {
			return postgres.New(ctx, cfg.BackendType, creds)
		})
	case "bigquery":
		registry.Register(cfg.BackendType, func() (driver.Driver, error) {
			return bigquery.New(ctx, cfg.BackendType, creds, cfg.BigQueryCostPerTBUSD)
		})
	case "snowflake":
		registry.Register(cfg.BackendType, func() (driver.Driver, error) {
			return snowflake.New(ctx, cfg.BackendType, creds)
		})
	case "duckdb":
		registry.Register(cfg.BackendType, func() (driver.Driver, error) {
			return embedded.New(ctx, cfg.BackendType, creds)
		})
	default:
		return nil, fmt.Errorf("unknown backend_type %q", cfg.BackendType)
	}

	return registry, nil
}

// buildTracer always installs the OTel/Prometheus tracer. Spans are
// exported when --otlp-endpoint or OMOP_MCP_OTLP_ENDPOINT names a
// collector and are otherwise tracked in-process only. Metrics
// accumulate in a Prometheus registry that --http mode serves at
// /metrics; under --stdio it is not exposed.
func buildTracer(ctx context.Context, cfg *config.Config) (observability.Tracer, error) {
	endpoint := otlpEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OMOP_MCP_OTLP_ENDPOINT")
	}
	return observability.NewOTelTracer(ctx, observability.OTelConfig{
		ServiceName:    serverName,
		ServiceVersion: version.Get(),
		OTLPEndpoint:   endpoint,
		OTLPInsecure:   true,
	})
}

// buildAuthHook installs OIDC token introspection when cfg.OAuthIssuer is
// configured; client credentials for the introspection call itself come
// from the environment rather than the YAML config so secrets never
// round-trip through a config file on disk.
func buildAuthHook(cfg *config.Config) server.AuthHook {
	if cfg.OAuthIssuer == "" {
		return auth.NoopVerifier{}
	}

	clientID := os.Getenv("OMOP_MCP_OAUTH_CLIENT_ID")
	clientSecret := os.Getenv("OMOP_MCP_OAUTH_CLIENT_SECRET")
	tokenURL := os.Getenv("OMOP_MCP_OAUTH_TOKEN_URL")

	return auth.NewOIDCVerifier(cfg.OAuthIssuer, cfg.OAuthAudience, tokenURL, clientID, clientSecret)
}

func buildLogger(path, level string) (*zap.Logger, error) {
	var output zapcore.WriteSyncer
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 -- path from CLI flag, operator controlled
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		output = zapcore.AddSync(f)
	} else {
		output = zapcore.AddSync(os.Stderr)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), output, parseLogLevel(level))
	return zap.New(core), nil
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
