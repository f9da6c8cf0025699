package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
	FiscalMode       string
}

// Metrics exposes fiscal instruments exported over OTLP.
type Metrics struct {
	submissions        metric.Int64Counter
	finalizations      metric.Int64Counter
	validationFailures metric.Int64Counter
	referenceLookups   metric.Int64Counter
}

const exportInterval = 30 * time.Second

// NewProvider registers the OTLP meter provider, or a no-op one when OTLP is
// disabled. Prometheus scraping is independent of it.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resourceFor(cfg)),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: provider.Shutdown,
		})
	}
	if log != nil {
		log.Info("otlp metrics enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Duration("interval", exportInterval),
		)
	}
	return provider, nil
}

func resourceFor(cfg Config) *resource.Resource {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName(cfg)),
		attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
	}
	if mode := strings.TrimSpace(cfg.FiscalMode); mode != "" {
		attrs = append(attrs, attribute.String("emecf.mode", mode))
	}
	return resource.NewSchemaless(attrs...)
}

func serviceName(cfg Config) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return "sygmef"
}

// New creates the fiscal OTLP counters.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(serviceName(cfg))

	m := &Metrics{}
	counters := []struct {
		dst         *metric.Int64Counter
		name        string
		description string
	}{
		{&m.submissions, "sygmef_invoice_submissions_total", "Invoices sent for registration, by kind and local tracking outcome."},
		{&m.finalizations, "sygmef_invoice_finalizations_total", "Confirm and cancel attempts, by outcome."},
		{&m.validationFailures, "sygmef_invoice_validation_failures_total", "Invoices rejected before reaching e-MECeF, by first violation."},
		{&m.referenceLookups, "sygmef_reference_data_lookups_total", "Reference data reads, by kind and cache hit."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

// RecordSubmission counts submissions by invoice kind and local tracking
// outcome.
func (m *Metrics) RecordSubmission(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("invoice_kind", strings.TrimSpace(kind)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.submissions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFinalization counts confirm and cancel attempts.
func (m *Metrics) RecordFinalization(ctx context.Context, action, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("action", strings.TrimSpace(action)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.finalizations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordValidationFailure counts rejected invoices by first violation code.
func (m *Metrics) RecordValidationFailure(ctx context.Context, code string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(code)))
	m.validationFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReferenceLookup counts reference-data reads and whether the cache
// served them.
func (m *Metrics) RecordReferenceLookup(ctx context.Context, kind string, hit bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("reference_kind", strings.TrimSpace(kind)),
		attribute.Bool("cache_hit", hit),
	)
	m.referenceLookups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"invoice_kind":   {},
	"action":         {},
	"outcome":        {},
	"reason":         {},
	"reference_kind": {},
	"cache_hit":      {},
	"status_code":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
