package observability

import (
	"github.com/smallbiznis/sygmef/internal/observability/logger"
	"github.com/smallbiznis/sygmef/internal/observability/metrics"
	"github.com/smallbiznis/sygmef/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(cfg Config) logger.Config {
			return logger.Config{
				ServiceName:  cfg.ServiceName,
				Environment:  cfg.Environment,
				Version:      cfg.Version,
				FiscalMode:   cfg.FiscalMode,
				Level:        cfg.Log.Level,
				Format:       cfg.Log.Format,
				Sampling:     cfg.Log.Sampling,
				StackOnError: cfg.Debug(),
			}
		},
		logger.New,
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.Otel.Enabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.Otel.Endpoint,
				ExporterProtocol: cfg.Otel.Protocol,
				SamplingRatio:    cfg.Otel.SamplingRatio,
			}
		},
		tracing.NewProvider,
		func(cfg Config) metrics.Config {
			return metrics.Config{
				Enabled:          cfg.Otel.Enabled,
				ExporterEndpoint: cfg.Otel.Endpoint,
				ExporterProtocol: cfg.Otel.Protocol,
				ServiceName:      cfg.ServiceName,
				Environment:      cfg.Environment,
				FiscalMode:       cfg.FiscalMode,
			}
		},
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.FiscalWithConfig,
	),
	// The tracer provider is only consumed through the otel globals.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
