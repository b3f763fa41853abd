package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "custodia.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults when file is missing", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.Dispatch.BatchSize)
		assert.Equal(t, 30*24*time.Hour, cfg.Onboarding.Window)
		assert.Equal(t, "x-internal-cron", cfg.Cron.Header)
		assert.True(t, cfg.HasDatastore())
	})

	t.Run("file then env", func(t *testing.T) {
		path := writeFile(t, `
[database]
driver = "postgres"
dsn = "postgres://custodia@localhost/custodia"

[dispatch]
batch_size = 10
stuck_after = "5m"
`)
		t.Setenv("CUSTODIA_DISPATCH_BATCH_SIZE", "25")
		t.Setenv("CUSTODIA_APP_BASE_URL", "https://app.custodia360.es")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 25, cfg.Dispatch.BatchSize)
		assert.Equal(t, 5*time.Minute, cfg.Dispatch.StuckAfter)
		assert.Equal(t, "https://app.custodia360.es", cfg.App.BaseURL)
	})

	t.Run("malformed file", func(t *testing.T) {
		_, err := Load(writeFile(t, "[database\n"))
		assert.ErrorContains(t, err, "failed to decode config file")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"bad base url", func(c *Config) { c.App.BaseURL = "not a url" }, "app.base_url"},
		{"no cron header", func(c *Config) { c.Cron.Header = "" }, "cron.header"},
		{"negative catch up", func(c *Config) { c.Guard.CatchUpDays = -1 }, "catch_up_days"},
		{"zero batch", func(c *Config) { c.Dispatch.BatchSize = 0 }, "batch_size"},
		{"sendgrid without key", func(c *Config) { c.Mail.Provider = "sendgrid" }, "sendgrid"},
		{"unknown provider", func(c *Config) { c.Mail.Provider = "resend" }, "mail.provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
