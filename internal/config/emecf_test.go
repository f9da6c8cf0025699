package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEMECF(t *testing.T) {
	cfg := DefaultEMECF()

	assert.Equal(t, DefaultTestURL, cfg.BaseURL())
	assert.Equal(t, 30*time.Second, cfg.Timeouts.SubmissionTimeout())
	assert.Equal(t, 30*time.Second, cfg.Timeouts.FinalizationTimeout())
	assert.Equal(t, 10*time.Second, cfg.Timeouts.StatusTimeout())
	assert.Equal(t, 10*time.Second, cfg.Timeouts.InfoTimeout())
	assert.Equal(t, 10*time.Second, cfg.HTTP.Connect())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay())
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 3600, cfg.Cache.TaxGroupsTTL)
	assert.Equal(t, 300, cfg.Cache.EmcfInfoTTL)
	assert.True(t, cfg.SaveInvoices)
}

func TestBaseURLFollowsMode(t *testing.T) {
	cfg := DefaultEMECF()
	cfg.Mode = "PRODUCTION"
	assert.Equal(t, DefaultProductionURL, cfg.BaseURL())
	assert.True(t, cfg.IsProduction())

	cfg.URLs.Production = "https://example.test/api/"
	assert.Equal(t, "https://example.test/api", cfg.BaseURL())
}

func TestLoadEMECFFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emecf.yml")
	content := []byte(`
mode: production
token: file-token
timeouts:
  submission: 45
retry:
  max_attempts: 5
cache:
  emcf_info_ttl: 60
save_invoices: false
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("EMECF_TOKEN", "env-token")

	cfg := LoadEMECF(path)

	assert.Equal(t, ModeProduction, cfg.Mode)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, 45*time.Second, cfg.Timeouts.SubmissionTimeout())
	assert.Equal(t, 10*time.Second, cfg.Timeouts.StatusTimeout())
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 60, cfg.Cache.EmcfInfoTTL)
	assert.Equal(t, 3600, cfg.Cache.TaxGroupsTTL)
	assert.False(t, cfg.SaveInvoices)
}

func TestLoadEMECFInvalidModeFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emecf.yml")
	require.NoError(t, os.WriteFile(path, []byte("mode: staging\n"), 0o600))

	cfg := LoadEMECF(path)
	assert.Equal(t, ModeTest, cfg.Mode)
}

func TestStaticHolderToken(t *testing.T) {
	cfg := DefaultEMECF()
	cfg.Token = "  abc  "
	holder := NewStaticEMECFHolder(cfg)
	assert.Equal(t, "abc", holder.Token())
	assert.Equal(t, cfg, holder.Get())
}
