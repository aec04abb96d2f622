// Package telemetry implements core.Telemetry with real OpenTelemetry tracing and
// metrics, wired into the LLM Router/Registry, the Orchestrator, and the HTTP API
// surface (spec SPEC_FULL.md ambient stack). Traces export over OTLP/gRPC in
// production and to stdout in development; metrics are aggregated in-process via the
// SDK's meter (spec scope does not call for a metrics backend, so no metric exporter
// is wired — see DESIGN.md).
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmesh/swarmcore/core"
)

// Config controls how a Provider exports traces. Development services have no
// collector to talk to, so they get a pretty-printed stdout trace exporter instead of
// failing to dial an OTLP endpoint.
type Config struct {
	ServiceName    string
	OTLPEndpoint   string
	Development    bool
	ResourceLabels map[string]string
}

// Provider implements core.Telemetry on top of the OpenTelemetry SDK. Unlike the
// package-level global registry pattern, a Provider is constructed once in
// cmd/server/main.go and passed by reference into every component that needs it,
// matching the rest of swarmcore's dependency-injected components (llm.Router,
// orchestrator.Orchestrator, api.Server).
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	logger core.Logger

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// New builds a Provider. In development (or when OTLPEndpoint is empty) traces are
// written to stdout; otherwise they are batched to an OTLP/gRPC collector.
func New(ctx context.Context, cfg Config, logger core.Logger) (*Provider, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "swarmcore"
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	for k, v := range cfg.ResourceLabels {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	exporter, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewManualReader()),
		sdkmetric.WithResource(res),
	)

	logger.Info("telemetry: provider initialized", map[string]interface{}{
		"service_name":  cfg.ServiceName,
		"development":   cfg.Development,
		"otlp_endpoint": cfg.OTLPEndpoint,
	})

	return &Provider{
		tracer:     tp.Tracer(cfg.ServiceName),
		meter:      mp.Meter(cfg.ServiceName),
		tp:         tp,
		mp:         mp,
		logger:     logger,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}, nil
}

func newTraceExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.Development || cfg.OTLPEndpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	return otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(5*time.Second),
	)
}

// StartSpan implements core.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry. Names containing "duration", "latency",
// "tokens", "_ms", or "score" are recorded as histograms; everything else is a monotonic
// counter, mirroring the naming convention already used at every RecordMetric call
// site in llm/router.go and llm/registry.go.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	opt := metric.WithAttributes(attrs...)
	ctx := context.Background()

	if isHistogramMetric(name) {
		h := p.histogramFor(name)
		if h != nil {
			h.Record(ctx, value, opt)
		}
		return
	}
	c := p.counterFor(name)
	if c != nil {
		c.Add(ctx, value, opt)
	}
}

func isHistogramMetric(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range []string{"duration", "latency", "tokens", "_ms", "score"} {
		if strings.Contains(lower, suffix) {
			return true
		}
	}
	return false
}

func (p *Provider) counterFor(name string) metric.Float64Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c, err := p.meter.Float64Counter(name)
	if err != nil {
		p.logger.Warn("telemetry: failed to create counter", map[string]interface{}{"name": name, "error": err.Error()})
		return nil
	}
	p.counters[name] = c
	return c
}

func (p *Provider) histogramFor(name string) metric.Float64Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return h
	}
	h, err := p.meter.Float64Histogram(name)
	if err != nil {
		p.logger.Warn("telemetry: failed to create histogram", map[string]interface{}{"name": name, "error": err.Error()})
		return nil
	}
	p.histograms[name] = h
	return h
}

// Shutdown flushes pending spans and releases the provider's exporters. cmd/server's
// graceful shutdown calls this after the HTTP server stops accepting new requests.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutting down trace provider: %w", err)
	}
	if err := p.mp.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutting down meter provider: %w", err)
	}
	return nil
}
