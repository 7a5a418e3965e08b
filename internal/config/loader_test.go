package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Executor.Workers)
	assert.Equal(t, 30*time.Second, cfg.Executor.GracePeriod)
	assert.Equal(t, 2*time.Minute, cfg.Alerts.Interval)
	assert.Equal(t, 30*time.Minute, cfg.Alerts.Cooldown)
	assert.Equal(t, 4, cfg.Alerts.PruneFactor)
	assert.Equal(t, []string{"nginx", "mysql", "pdns", "postfix", "dovecot"}, cfg.Alerts.Thresholds.Services)
	assert.Equal(t, "https://api.telegram.org", cfg.Notifications.Telegram.APIURL)
	assert.Equal(t, "0 */6 * * *", cfg.Renewal.Schedule)
	assert.Zero(t, cfg.Alerts.Thresholds.CertExpiryQuiet)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: memory
alerts:
  cooldown: 45m
  thresholds:
    disk_warning: 70
notifications:
  slack:
    enabled: true
    webhook_url: https://hooks.slack.com/services/T/B/X
`), 0o600))

	t.Setenv("HOSTPANEL_SERVER_PORT", "9090")
	t.Setenv("HOSTPANEL_AUTH_ADMIN_API_KEY", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 45*time.Minute, cfg.Alerts.Cooldown)
	assert.Equal(t, 70.0, cfg.Alerts.Thresholds.DiskWarning)
	assert.True(t, cfg.Notifications.Slack.Enabled)
	assert.Equal(t, "hostpanel", cfg.Notifications.Slack.Username)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Auth.AdminAPIKey)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("executor:\n  workers: 0\ndatabase:\n  driver: sqlite\n"), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "executor.workers")
		assert.Contains(t, err.Error(), "sqlite")
	})
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Alerts.PruneFactor = 0
	cfg.Runner.Mode = "telnet"
	cfg.Alerts.Thresholds.CertExpiryQuiet = cfg.Alerts.Thresholds.CertExpiryLead
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alerts.prune_factor")
	assert.Contains(t, err.Error(), "telnet")
	assert.Contains(t, err.Error(), "cert_expiry_quiet")
}
