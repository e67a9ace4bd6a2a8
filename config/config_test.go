package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 1800, cfg.Shipping.PollInterval)
	assert.Equal(t, 6, cfg.Otp.Length)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storefront.yml")
	content := []byte(`
system:
  workdir: /tmp/sf
web:
  port: 9090
database:
  type: sqlite
  name: shop.db
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("STOREFRONT_WEB_PORT", "9191")
	t.Setenv("STOREFRONT_SMS_ENABLED", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/sf", cfg.System.Workdir)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 9191, cfg.Web.Port)
	assert.True(t, cfg.Sms.Enabled)
	// untouched sections keep defaults
	assert.Equal(t, "INR", cfg.Payment.Currency)
}

func TestValidateProductionSecrets(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Logger.Mode = "production"
	assert.Error(t, cfg.Validate())

	cfg.Web.Secret = "jwt-secret"
	cfg.Otp.Secret = "otp-secret"
	assert.NoError(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	d := DBConfig{Host: "db", Port: 5432, User: "u", Passwd: "p", Name: "shop"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=shop sslmode=disable TimeZone=UTC", d.DSN())
}
