package config

import (
	"errors"
	"io/fs"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	ModeTest       = "test"
	ModeProduction = "production"

	DefaultTestURL       = "https://developper.impots.bj/sygmef-emcf/api"
	DefaultProductionURL = "https://sygmef.impots.bj/emcf/api"
)

// EMECF holds the fiscal API settings.
type EMECF struct {
	Mode           string         `mapstructure:"mode"`
	Token          string         `mapstructure:"token"`
	URLs           EMECFURLs      `mapstructure:"urls"`
	Timeouts       EMECFTimeouts  `mapstructure:"timeouts"`
	HTTP           EMECFHTTP      `mapstructure:"http"`
	Retry          EMECFRetry     `mapstructure:"retry"`
	Cache          EMECFCache     `mapstructure:"cache"`
	RateLimit      EMECFRateLimit `mapstructure:"rate_limit"`
	SaveInvoices   bool           `mapstructure:"save_invoices"`
	CreditNoteSign string         `mapstructure:"credit_note_sign"`
	SanitizeText   bool           `mapstructure:"sanitize_text"`
}

type EMECFURLs struct {
	Test       string `mapstructure:"test"`
	Production string `mapstructure:"production"`
}

// EMECFTimeouts are per call class budgets, in seconds.
type EMECFTimeouts struct {
	Submission   int `mapstructure:"submission"`
	Finalization int `mapstructure:"finalization"`
	Status       int `mapstructure:"status"`
	Info         int `mapstructure:"info"`
}

type EMECFHTTP struct {
	ConnectTimeout int `mapstructure:"connect_timeout"`
}

type EMECFRetry struct {
	MaxAttempts int     `mapstructure:"max_attempts"`
	DelayMS     int     `mapstructure:"delay_ms"`
	Multiplier  float64 `mapstructure:"multiplier"`
}

// EMECFCache are reference-data TTLs, in seconds.
type EMECFCache struct {
	TaxGroupsTTL    int `mapstructure:"tax_groups_ttl"`
	InvoiceTypesTTL int `mapstructure:"invoice_types_ttl"`
	PaymentTypesTTL int `mapstructure:"payment_types_ttl"`
	EmcfInfoTTL     int `mapstructure:"emcf_info_ttl"`
}

type EMECFRateLimit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// DefaultEMECF returns the settings used when no file or env override exists.
func DefaultEMECF() EMECF {
	return EMECF{
		Mode: ModeTest,
		URLs: EMECFURLs{
			Test:       DefaultTestURL,
			Production: DefaultProductionURL,
		},
		Timeouts: EMECFTimeouts{
			Submission:   30,
			Finalization: 30,
			Status:       10,
			Info:         10,
		},
		HTTP:  EMECFHTTP{ConnectTimeout: 10},
		Retry: EMECFRetry{MaxAttempts: 3, DelayMS: 1000, Multiplier: 2},
		Cache: EMECFCache{
			TaxGroupsTTL:    3600,
			InvoiceTypesTTL: 3600,
			PaymentTypesTTL: 3600,
			EmcfInfoTTL:     300,
		},
		RateLimit:      EMECFRateLimit{RPS: 5, Burst: 10},
		SaveInvoices:   true,
		CreditNoteSign: "negative",
		SanitizeText:   true,
	}
}

// BaseURL returns the API root for the configured mode, without trailing
// slash.
func (e EMECF) BaseURL() string {
	url := e.URLs.Test
	if strings.EqualFold(strings.TrimSpace(e.Mode), ModeProduction) {
		url = e.URLs.Production
	}
	return strings.TrimRight(strings.TrimSpace(url), "/")
}

func (e EMECF) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(e.Mode), ModeProduction)
}

func (t EMECFTimeouts) SubmissionTimeout() time.Duration   { return seconds(t.Submission) }
func (t EMECFTimeouts) FinalizationTimeout() time.Duration { return seconds(t.Finalization) }
func (t EMECFTimeouts) StatusTimeout() time.Duration       { return seconds(t.Status) }
func (t EMECFTimeouts) InfoTimeout() time.Duration         { return seconds(t.Info) }

func (h EMECFHTTP) Connect() time.Duration { return seconds(h.ConnectTimeout) }

func (r EMECFRetry) InitialDelay() time.Duration {
	return time.Duration(r.DelayMS) * time.Millisecond
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

func newEMECFViper(path string) *viper.Viper {
	v := viper.New()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("emecf")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/sygmef")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("EMECF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEMECF()
	v.SetDefault("mode", defaults.Mode)
	v.SetDefault("token", defaults.Token)
	v.SetDefault("urls.test", defaults.URLs.Test)
	v.SetDefault("urls.production", defaults.URLs.Production)
	v.SetDefault("timeouts.submission", defaults.Timeouts.Submission)
	v.SetDefault("timeouts.finalization", defaults.Timeouts.Finalization)
	v.SetDefault("timeouts.status", defaults.Timeouts.Status)
	v.SetDefault("timeouts.info", defaults.Timeouts.Info)
	v.SetDefault("http.connect_timeout", defaults.HTTP.ConnectTimeout)
	v.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	v.SetDefault("retry.delay_ms", defaults.Retry.DelayMS)
	v.SetDefault("retry.multiplier", defaults.Retry.Multiplier)
	v.SetDefault("cache.tax_groups_ttl", defaults.Cache.TaxGroupsTTL)
	v.SetDefault("cache.invoice_types_ttl", defaults.Cache.InvoiceTypesTTL)
	v.SetDefault("cache.payment_types_ttl", defaults.Cache.PaymentTypesTTL)
	v.SetDefault("cache.emcf_info_ttl", defaults.Cache.EmcfInfoTTL)
	v.SetDefault("rate_limit.rps", defaults.RateLimit.RPS)
	v.SetDefault("rate_limit.burst", defaults.RateLimit.Burst)
	v.SetDefault("save_invoices", defaults.SaveInvoices)
	v.SetDefault("credit_note_sign", defaults.CreditNoteSign)
	v.SetDefault("sanitize_text", defaults.SanitizeText)

	return v
}

func readEMECF(v *viper.Viper, readFile bool) (EMECF, bool, error) {
	found := readFile
	if readFile {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return EMECF{}, false, err
			}
			found = false
		}
	}

	var cfg EMECF
	if err := v.Unmarshal(&cfg); err != nil {
		return EMECF{}, found, err
	}
	return cfg, found, validateEMECF(cfg)
}

// LoadEMECF reads the optional fiscal settings file and EMECF_* overrides.
// Invalid files fall back to defaults with env overrides.
func LoadEMECF(path string) EMECF {
	cfg, _, err := readEMECF(newEMECFViper(path), true)
	if err == nil {
		return cfg
	}
	fallback, _, err := readEMECF(newEMECFViper(path), false)
	if err != nil {
		return DefaultEMECF()
	}
	return fallback
}

func validateEMECF(cfg EMECF) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case ModeTest, ModeProduction:
	default:
		return errors.New("emecf.mode must be test or production")
	}
	if cfg.BaseURL() == "" {
		return errors.New("emecf base url cannot be empty")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("emecf.retry.max_attempts must be at least 1")
	}
	return nil
}

// EMECFHolder exposes the fiscal settings and reloads them when the config
// file changes, so a rotated token is picked up without restart.
type EMECFHolder struct {
	current atomic.Value // holds EMECF
}

// NewEMECFHolder seeds the holder from cfg and watches the settings file if
// one exists.
func NewEMECFHolder(cfg Config, log *zap.Logger) *EMECFHolder {
	holder := &EMECFHolder{}
	holder.current.Store(cfg.EMECF)

	v := newEMECFViper(getenv("EMECF_CONFIG_FILE", ""))
	if _, found, err := readEMECF(v, true); err != nil || !found {
		return holder
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EMECF
		if err := v.Unmarshal(&updated); err != nil {
			log.Warn("emecf config reload failed", zap.Error(err))
			return
		}
		if err := validateEMECF(updated); err != nil {
			log.Warn("emecf config ignored", zap.Error(err))
			return
		}
		holder.Replace(updated)
		log.Info("emecf config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder
}

// NewStaticEMECFHolder returns a holder that never reloads.
func NewStaticEMECFHolder(cfg EMECF) *EMECFHolder {
	holder := &EMECFHolder{}
	holder.current.Store(cfg)
	return holder
}

// Replace swaps the current settings. Readers see either the old or the new
// value, never a mix.
func (h *EMECFHolder) Replace(cfg EMECF) {
	h.current.Store(cfg)
}

func (h *EMECFHolder) Get() EMECF {
	return h.current.Load().(EMECF)
}

// Token returns the current bearer token.
func (h *EMECFHolder) Token() string {
	return strings.TrimSpace(h.Get().Token)
}
