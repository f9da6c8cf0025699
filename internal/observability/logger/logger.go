package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/sygmef/internal/observability/context"
	"github.com/smallbiznis/sygmef/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string
	FiscalMode  string

	Level        string
	Format       string
	Sampling     bool
	StackOnError bool
}

// New builds the process logger, installs it as the zap global and flushes
// it on shutdown.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	zapCfg, err := buildConfig(cfg)
	if err != nil {
		return nil, err
	}

	options := []zap.Option{zap.AddCaller()}
	if cfg.StackOnError {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	if cfg.Sampling {
		options = append(options, zap.WrapCore(sampled))
	}

	logger, err := zapCfg.Build(options...)
	if err != nil {
		return nil, err
	}

	logger = logger.With(baseFields(cfg)...)
	zap.ReplaceGlobals(logger)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = logger.Sync()
				return nil
			},
		})
	}

	return logger, nil
}

func buildConfig(cfg Config) (zap.Config, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Sampling = nil
	zapCfg.Encoding = "json"
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		zapCfg.Encoding = "console"
	}
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	if err := zapCfg.Level.UnmarshalText([]byte(level)); err != nil {
		return zap.Config{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zapCfg, nil
}

func baseFields(cfg Config) []zap.Field {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "sygmef"
	}
	fields := []zap.Field{
		zap.String("service", service),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	}
	if mode := strings.TrimSpace(cfg.FiscalMode); mode != "" {
		fields = append(fields, zap.String("emecf_mode", mode))
	}
	return fields
}

// sampled samples entries below error level per second; error entries
// always pass.
func sampled(core zapcore.Core) zapcore.Core {
	return zapcore.NewTee(
		zapcore.NewSamplerWithOptions(belowError{core}, time.Second, 100, 100),
		errorsOnly{core},
	)
}

type belowError struct{ zapcore.Core }

func (c belowError) Enabled(level zapcore.Level) bool {
	return level < zapcore.ErrorLevel && c.Core.Enabled(level)
}

func (c belowError) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c belowError) With(fields []zapcore.Field) zapcore.Core {
	return belowError{c.Core.With(fields)}
}

type errorsOnly struct{ zapcore.Core }

func (c errorsOnly) Enabled(level zapcore.Level) bool {
	return level >= zapcore.ErrorLevel && c.Core.Enabled(level)
}

func (c errorsOnly) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c errorsOnly) With(fields []zapcore.Field) zapcore.Core {
	return errorsOnly{c.Core.With(fields)}
}

// FromContext returns the global logger with request-scoped fields.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds the request, correlation and trace identifiers found in
// ctx. Absent identifiers are omitted.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	var fields []zap.Field
	if id := obscontext.RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := correlation.ID(ctx); id != "" {
		fields = append(fields, zap.String("correlation_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// WithInvoice adds the e-MECeF invoice uid.
func WithInvoice(log *zap.Logger, uid string) *zap.Logger {
	if log == nil {
		return nil
	}
	return log.With(zap.String("uid", strings.TrimSpace(uid)))
}
