package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers. A nil *Telemetry
// or one built with Enabled=false is valid and records nothing.
type Telemetry struct {
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	meter         metric.Meter
	exporter      *prometheus.Exporter

	// RED
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Engine
	engineOperationsTotal metric.Int64Counter
	engineErrors          metric.Int64Counter
	engineDuration        metric.Float64Histogram

	// Lifecycles
	lifecyclesStarted  metric.Int64Counter
	lifecyclesFinished metric.Int64Counter
	lifecyclesActive   metric.Int64UpDownCounter
	pollRetries        metric.Int64Counter
	metadataSwitches   metric.Int64Counter

	// Bot
	commandsTotal metric.Int64Counter
	uploadedBytes metric.Int64Counter

	// Storage
	dbOperationsTotal   metric.Int64Counter
	dbOperationDuration metric.Float64Histogram

	systemErrors metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

// New creates a new telemetry instance.
func New(_ context.Context, cfg Config) (*Telemetry, error) {
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

	t := &Telemetry{
		meterProvider: meterProvider,
		tracer:        otel.Tracer(cfg.ServiceName),
		meter:         meterProvider.Meter(cfg.ServiceName, metric.WithInstrumentationVersion(cfg.ServiceVersion)),
		exporter:      exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return t, nil
}

// NewWithMeterProvider builds an enabled Telemetry on top of an existing
// provider. Tests use it with a manual reader.
func NewWithMeterProvider(mp metric.MeterProvider, serviceName string) (*Telemetry, error) {
	t := &Telemetry{
		meterProvider: mp,
		tracer:        otel.Tracer(serviceName),
		meter:         mp.Meter(serviceName),
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return t, nil
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

func (t *Telemetry) IncrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), 1)
	}
}

func (t *Telemetry) DecrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), -1)
	}
}

// RecordEngineOperation records one download engine RPC.
func (t *Telemetry) RecordEngineOperation(engine, operation, status string, duration time.Duration) {
	if t == nil || t.engineOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.engineOperationsTotal.Add(context.Background(), 1, attrs)
	t.engineDuration.Record(context.Background(), duration.Seconds(), attrs)

	if status == "error" {
		t.engineErrors.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("engine", engine),
				attribute.String("operation", operation),
			),
		)
	}
}

// LifecycleStarted counts a new lifecycle and marks it active.
func (t *Telemetry) LifecycleStarted() {
	if t == nil || t.lifecyclesStarted == nil {
		return
	}

	t.lifecyclesStarted.Add(context.Background(), 1)
	t.lifecyclesActive.Add(context.Background(), 1)
}

// LifecycleFinished records the outcome of a lifecycle and releases its
// active slot.
func (t *Telemetry) LifecycleFinished(outcome string) {
	if t == nil || t.lifecyclesFinished == nil {
		return
	}

	t.lifecyclesFinished.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	t.lifecyclesActive.Add(context.Background(), -1)
}

func (t *Telemetry) RecordPollRetry() {
	if t != nil && t.pollRetries != nil {
		t.pollRetries.Add(context.Background(), 1)
	}
}

func (t *Telemetry) RecordMetadataSwitch() {
	if t != nil && t.metadataSwitches != nil {
		t.metadataSwitches.Add(context.Background(), 1)
	}
}

// RecordCommand records a handled chat command.
func (t *Telemetry) RecordCommand(command, status string) {
	if t == nil || t.commandsTotal == nil {
		return
	}

	t.commandsTotal.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}

func (t *Telemetry) RecordUploadedBytes(n int64) {
	if t != nil && t.uploadedBytes != nil && n > 0 {
		t.uploadedBytes.Add(context.Background(), n)
	}
}

// RecordDBOperation records database operation metrics.
func (t *Telemetry) RecordDBOperation(operation, status string, duration time.Duration) {
	if t == nil || t.dbOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.dbOperationsTotal.Add(context.Background(), 1, attrs)
	t.dbOperationDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(component, errorType string) {
	if t == nil || t.systemErrors == nil {
		return
	}

	t.systemErrors.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("error_type", errorType),
		),
	)
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown gracefully shuts down the telemetry system.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if mp, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		return mp.Shutdown(ctx)
	}

	return nil
}

func (t *Telemetry) initializeMetrics() error {
	for _, init := range []func() error{
		t.initializeREDMetrics,
		t.initializeEngineMetrics,
		t.initializeLifecycleMetrics,
		t.initializeBotMetrics,
		t.initializeStorageMetrics,
	} {
		if err := init(); err != nil {
			return err
		}
	}

	return nil
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeEngineMetrics() error {
	var err error

	t.engineOperationsTotal, err = t.meter.Int64Counter(
		"engine_operations_total",
		metric.WithDescription("Total number of download engine RPCs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine_operations_total counter: %w", err)
	}

	t.engineErrors, err = t.meter.Int64Counter(
		"engine_errors_total",
		metric.WithDescription("Total number of failed download engine RPCs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine_errors_total counter: %w", err)
	}

	t.engineDuration, err = t.meter.Float64Histogram(
		"engine_operation_duration_seconds",
		metric.WithDescription("Download engine RPC duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine_operation_duration histogram: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeLifecycleMetrics() error {
	var err error

	t.lifecyclesStarted, err = t.meter.Int64Counter(
		"lifecycles_started_total",
		metric.WithDescription("Total number of download lifecycles started"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create lifecycles_started_total counter: %w", err)
	}

	t.lifecyclesFinished, err = t.meter.Int64Counter(
		"lifecycles_finished_total",
		metric.WithDescription("Total number of download lifecycles finished, by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create lifecycles_finished_total counter: %w", err)
	}

	t.lifecyclesActive, err = t.meter.Int64UpDownCounter(
		"lifecycles_active",
		metric.WithDescription("Number of download lifecycles being monitored"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create lifecycles_active counter: %w", err)
	}

	t.pollRetries, err = t.meter.Int64Counter(
		"poll_retries_total",
		metric.WithDescription("Total number of transient poll failures"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create poll_retries_total counter: %w", err)
	}

	t.metadataSwitches, err = t.meter.Int64Counter(
		"metadata_switches_total",
		metric.WithDescription("Total number of metadata to payload job handoffs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create metadata_switches_total counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeBotMetrics() error {
	var err error

	t.commandsTotal, err = t.meter.Int64Counter(
		"bot_commands_total",
		metric.WithDescription("Total number of chat commands handled"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create bot_commands_total counter: %w", err)
	}

	t.uploadedBytes, err = t.meter.Int64Counter(
		"uploaded_bytes_total",
		metric.WithDescription("Total bytes saved from chat attachments"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create uploaded_bytes_total counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeStorageMetrics() error {
	var err error

	t.dbOperationsTotal, err = t.meter.Int64Counter(
		"db_operations_total",
		metric.WithDescription("Total number of database operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operations_total counter: %w", err)
	}

	t.dbOperationDuration, err = t.meter.Float64Histogram(
		"db_operation_duration_seconds",
		metric.WithDescription("Database operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operation_duration histogram: %w", err)
	}

	t.systemErrors, err = t.meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	return nil
}
