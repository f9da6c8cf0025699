package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/sygmef/internal/config"
)

// Config is the observability view of the process settings.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	// FiscalMode is the e-MECeF mode (test or production), stamped on every
	// log line and metric series.
	FiscalMode string

	Log  LogConfig
	Otel OtelConfig
}

type LogConfig struct {
	Level    string
	Format   string
	Sampling bool
}

type OtelConfig struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "sygmef"
	}

	protocol := strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = strings.ToLower(traces)
	}

	fiscalMode := config.ModeTest
	if cfg.EMECF.IsProduction() {
		fiscalMode = config.ModeProduction
	}

	return Config{
		ServiceName: serviceName,
		Environment: getenv("DEPLOYMENT_ENV", cfg.Environment),
		Version:     getenv("SERVICE_VERSION", cfg.AppVersion),
		FiscalMode:  fiscalMode,
		Log: LogConfig{
			Level:    strings.ToLower(getenv("LOG_LEVEL", "info")),
			Format:   strings.ToLower(getenv("LOG_FORMAT", "json")),
			Sampling: getenvBool("LOG_SAMPLING", true),
		},
		Otel: OtelConfig{
			Enabled:       getenvBool("OTEL_ENABLED", false),
			Endpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
			Protocol:      protocol,
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
	}
}

// Debug is true for debug logging or a development environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.Log.Level), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(def)
}

func getenvBool(key string, def bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return parsed
}
