package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
type Telemetry struct {
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	meter         metric.Meter
	exporter      *prometheus.Exporter

	// RED metrics for the REST surface
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Business metrics
	downloadsTotal     metric.Int64Counter
	downloadsActive    metric.Int64UpDownCounter
	downloadDuration   metric.Float64Histogram
	batchesTotal       metric.Int64Counter
	batchFilesTotal    metric.Int64Counter
	storeOpsTotal      metric.Int64Counter
	storeOpDuration    metric.Float64Histogram
	manifestPruneTotal metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

// New creates a new telemetry instance. When disabled, the zero instance is
// returned and every method becomes a no-op.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(10 * time.Second)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	t := &Telemetry{
		meterProvider: meterProvider,
		tracer:        otel.Tracer(cfg.ServiceName),
		meter:         otel.Meter(cfg.ServiceName),
		exporter:      exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return t, nil
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	if t.httpRequestsTotal, err = t.meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total HTTP requests")); err != nil {
		return err
	}

	if t.httpRequestDuration, err = t.meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration")); err != nil {
		return err
	}

	if t.downloadsTotal, err = t.meter.Int64Counter("downloads_total",
		metric.WithDescription("Total file downloads by status")); err != nil {
		return err
	}

	if t.downloadsActive, err = t.meter.Int64UpDownCounter("downloads_active",
		metric.WithDescription("Downloads currently in flight")); err != nil {
		return err
	}

	if t.downloadDuration, err = t.meter.Float64Histogram("download_duration_seconds",
		metric.WithDescription("File download duration")); err != nil {
		return err
	}

	if t.batchesTotal, err = t.meter.Int64Counter("batches_total",
		metric.WithDescription("Total batch download calls")); err != nil {
		return err
	}

	if t.batchFilesTotal, err = t.meter.Int64Counter("batch_files_total",
		metric.WithDescription("Files attempted by batch downloads, by outcome")); err != nil {
		return err
	}

	if t.storeOpsTotal, err = t.meter.Int64Counter("manifest_operations_total",
		metric.WithDescription("Manifest store operations by status")); err != nil {
		return err
	}

	if t.storeOpDuration, err = t.meter.Float64Histogram("manifest_operation_duration_seconds",
		metric.WithDescription("Manifest store operation duration")); err != nil {
		return err
	}

	if t.manifestPruneTotal, err = t.meter.Int64Counter("manifest_pruned_total",
		metric.WithDescription("Manifest entries pruned by reconciliation")); err != nil {
		return err
	}

	return nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if t == nil || t.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)

	t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordDownload records one finished download attempt.
func (t *Telemetry) RecordDownload(status string, duration time.Duration) {
	if t == nil || t.downloadsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status))

	t.downloadsTotal.Add(context.Background(), 1, attrs)
	t.downloadDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// IncrementActiveDownloads increments the in-flight downloads counter.
func (t *Telemetry) IncrementActiveDownloads() {
	if t == nil || t.downloadsActive == nil {
		return
	}

	t.downloadsActive.Add(context.Background(), 1)
}

// DecrementActiveDownloads decrements the in-flight downloads counter.
func (t *Telemetry) DecrementActiveDownloads() {
	if t == nil || t.downloadsActive == nil {
		return
	}

	t.downloadsActive.Add(context.Background(), -1)
}

// RecordBatch records the aggregated outcome of one batch download call.
func (t *Telemetry) RecordBatch(succeeded, failed int) {
	if t == nil || t.batchesTotal == nil {
		return
	}

	t.batchesTotal.Add(context.Background(), 1)
	t.batchFilesTotal.Add(context.Background(), int64(succeeded),
		metric.WithAttributes(attribute.String("outcome", "success")))
	t.batchFilesTotal.Add(context.Background(), int64(failed),
		metric.WithAttributes(attribute.String("outcome", "failure")))
}

// RecordStoreOperation records manifest store operation metrics.
func (t *Telemetry) RecordStoreOperation(operation, status string, duration time.Duration) {
	if t == nil || t.storeOpsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.storeOpsTotal.Add(context.Background(), 1, attrs)
	t.storeOpDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordManifestPrune records entries removed by reconciliation.
func (t *Telemetry) RecordManifestPrune(count int) {
	if t == nil || t.manifestPruneTotal == nil {
		return
	}

	t.manifestPruneTotal.Add(context.Background(), int64(count))
}

// Handler returns the HTTP handler for the metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.Handler()
}
