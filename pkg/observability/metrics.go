// Package observability carries the card engine's metric instruments and
// the collector behind the monitoring dashboard. Instruments go through
// the OpenTelemetry metric API with a Prometheus exporter as the reader,
// so everything lands in one process-wide registry.
package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Metrics bundles the engine's metric instruments.
type Metrics struct {
	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram

	ingestCycles  metric.Int64Counter
	ingestFetched metric.Int64Counter
	ingestAdded   metric.Int64Counter
	ingestSkipped metric.Int64Counter
	ingestErrors  metric.Int64Counter
}

// InitMetrics wires the OpenTelemetry meter into the given Prometheus
// registry and creates the engine's instruments.
func InitMetrics(registry *promclient.Registry) (*Metrics, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName("card-engine"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter("card-engine")

	httpRequests, err := meter.Int64Counter(
		"cardengine_http_requests_total",
		metric.WithDescription("Total HTTP requests by route, method and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	httpDuration, err := meter.Float64Histogram(
		"cardengine_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	ingestCycles, err := meter.Int64Counter(
		"cardengine_ingest_cycles_total",
		metric.WithDescription("Total ingestion cycles run"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest cycles counter: %w", err)
	}

	ingestFetched, err := meter.Int64Counter(
		"cardengine_ingest_items_fetched_total",
		metric.WithDescription("Total candidate questions fetched"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest fetched counter: %w", err)
	}

	ingestAdded, err := meter.Int64Counter(
		"cardengine_ingest_items_added_total",
		metric.WithDescription("Total trivia cards added by ingestion"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest added counter: %w", err)
	}

	ingestSkipped, err := meter.Int64Counter(
		"cardengine_ingest_items_skipped_total",
		metric.WithDescription("Total candidates skipped as duplicates"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest skipped counter: %w", err)
	}

	ingestErrors, err := meter.Int64Counter(
		"cardengine_ingest_errors_total",
		metric.WithDescription("Total ingestion errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest errors counter: %w", err)
	}

	return &Metrics{
		httpRequests:  httpRequests,
		httpDuration:  httpDuration,
		ingestCycles:  ingestCycles,
		ingestFetched: ingestFetched,
		ingestAdded:   ingestAdded,
		ingestSkipped: ingestSkipped,
		ingestErrors:  ingestErrors,
	}, nil
}

// RecordRequest counts one served HTTP request.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}

// ObserveCycle records the outcome of one ingestion cycle. Satisfies the
// ingestion daemon's observer interface.
func (m *Metrics) ObserveCycle(fetched, added, skipped, failures int) {
	if m == nil || m.ingestCycles == nil {
		return
	}
	ctx := context.Background()
	m.ingestCycles.Add(ctx, 1)
	m.ingestFetched.Add(ctx, int64(fetched))
	m.ingestAdded.Add(ctx, int64(added))
	m.ingestSkipped.Add(ctx, int64(skipped))
	if failures > 0 {
		m.ingestErrors.Add(ctx, int64(failures))
	}
}
