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
package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// OTelConfig configures OTelTracer. OTLPEndpoint is the collector's
// HTTP endpoint (e.g. "otel-collector:4318"); an empty value disables
// span export and only the in-process Prometheus registry is used.
type OTelConfig struct {
	ServiceName  string
	ServiceVersion string
	OTLPEndpoint string
	OTLPInsecure bool
}

// OTelTracer exports spans via OpenTelemetry OTLP/HTTP and metrics
// through a dedicated Prometheus registry, scraped from the
// --http transport's /metrics endpoint. It satisfies the Tracer
// interface alongside NoOpTracer.
type OTelTracer struct {
	provider *sdktrace.TracerProvider
	tracer   oteltrace.Tracer
	registry *prometheus.Registry

	mu     sync.Mutex
	gauges map[string]*prometheus.GaugeVec
}

// NewOTelTracer builds the SDK tracer provider and Prometheus registry.
// When cfg.OTLPEndpoint is empty, spans are created and tracked
// in-process but no exporter is registered, so EndSpan is a cheap no-op
// beyond bookkeeping; metrics still accumulate either way.
func NewOTelTracer(ctx context.Context, cfg OTelConfig) (*OTelTracer, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building otel resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("creating otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)

	return &OTelTracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}, nil
}

// MetricsHandler exposes the tracer's Prometheus registry for a
// cmd/omop-mcp-server --http mux to mount at /metrics.
func (t *OTelTracer) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *OTelTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	otelCtx, otelSpan := t.tracer.Start(ctx, name)

	span := &Span{
		TraceID:    otelSpan.SpanContext().TraceID().String(),
		SpanID:     otelSpan.SpanContext().SpanID().String(),
		Name:       name,
		StartTime:  time.Now(),
		Attributes: make(map[string]interface{}),
		otelSpan:   otelSpan,
	}
	if span.TraceID == "" || span.SpanID == "" {
		// No exporter registered: the SDK still allocates an unexported
		// span context. Fall back to locally generated IDs so callers
		// always see a populated span.
		span.TraceID = uuid.New().String()
		span.SpanID = uuid.New().String()
	}
	for _, opt := range opts {
		opt(span)
	}

	return context.WithValue(otelCtx, spanContextKey, span), span
}

func (t *OTelTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)

	otelSpan, ok := span.otelSpan.(oteltrace.Span)
	if !ok {
		return
	}
	for k, v := range span.Attributes {
		otelSpan.SetAttributes(attribute.String(k, fmt.Sprintf("%v", v)))
	}
	switch span.Status.Code {
	case StatusError:
		otelSpan.SetStatus(codes.Error, span.Status.Message)
	case StatusOK:
		otelSpan.SetStatus(codes.Ok, span.Status.Message)
	}
	otelSpan.End()
}

// RecordMetric publishes value as a Prometheus gauge named
// "omop_mcp_<name>" with labels as constant label values, creating the
// gauge vector on first use.
func (t *OTelTracer) RecordMetric(name string, value float64, labels map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	labelNames := make([]string, 0, len(labels))
	for k := range labels {
		labelNames = append(labelNames, k)
	}

	gauge, ok := t.gauges[name]
	if !ok {
		gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "omop_mcp_" + sanitizeMetricName(name),
			Help: "omop-mcp-server metric: " + name,
		}, labelNames)
		if err := t.registry.Register(gauge); err != nil {
			return // duplicate registration with a different label set; drop rather than panic
		}
		t.gauges[name] = gauge
	}
	gauge.With(labels).Set(value)
}

func (t *OTelTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	span := SpanFromContext(ctx)
	if span == nil {
		return
	}
	span.AddEvent(name, attributes)
}

func (t *OTelTracer) Flush(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

func sanitizeMetricName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
