package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/engine
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.False(t, cfg.Server.IsProduction())

	assert.Equal(t, int64(60), cfg.Monitor.MinSendsForPause)
	assert.Equal(t, 0.03, cfg.Monitor.PauseBounceRate)
	assert.Equal(t, int64(200), cfg.Monitor.DomainMinSends)
	assert.Equal(t, 48*time.Hour, cfg.Monitor.Cooldown())
	assert.Equal(t, 15, cfg.Monitor.PausePenalty)
	assert.Equal(t, 0.02, cfg.Monitor.CampaignWarnRate)

	assert.Equal(t, int64(50), cfg.Recovery.RestrictedSendTarget)
	assert.Equal(t, int64(150), cfg.Recovery.RestrictedSendRepeatTarget)
	assert.Equal(t, int64(300), cfg.Recovery.WarmRecoveryTarget)
	assert.Equal(t, 7, cfg.Recovery.WarmRecoveryMinDays)

	assert.Equal(t, 10, cfg.Warmup.RestrictedDailyVolume)
	assert.Equal(t, 40, cfg.Warmup.WarmDailyVolume)
	assert.Equal(t, 15*time.Second, cfg.Warmup.CallTimeout())

	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, "X-Webhook-Signature", cfg.Ingress.SignatureHeader)
	assert.Equal(t, int64(1<<20), cfg.Ingress.MaxBodyBytes)

	assert.Equal(t, 60, cfg.Workers.LeadReevalIntervalMinutes)
	assert.Equal(t, 15, cfg.Workers.GraduationIntervalMinutes)
	assert.Equal(t, 90, cfg.Workers.RetentionDays)
	assert.Equal(t, "instantly", cfg.Platform.Default)
}

func TestLoadHonorsFileValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  environment: production
monitor:
  min_sends_for_pause: 100
  pause_bounce_rate: 0.05
recovery:
  warm_recovery_min_days: 14
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.IsProduction())
	assert.Equal(t, int64(100), cfg.Monitor.MinSendsForPause)
	assert.Equal(t, 0.05, cfg.Monitor.PauseBounceRate)
	assert.Equal(t, 14, cfg.Recovery.WarmRecoveryMinDays)

	// Untouched sections still get defaults.
	assert.Equal(t, int64(300), cfg.Recovery.WarmRecoveryTarget)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://file/engine
`)
	t.Setenv("DATABASE_URL", "postgres://env/engine")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("INSTANTLY_API_KEY", "key-123")
	t.Setenv("RETENTION_S3_BUCKET", "raw-archive")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/engine", cfg.Database.URL)
	assert.True(t, cfg.Server.IsProduction())
	assert.Equal(t, "key-123", cfg.Platform.Instantly.APIKey)
	assert.Equal(t, "raw-archive", cfg.Workers.RetentionS3Bucket)
}

func TestLoadFromEnvWithoutFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/engine")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/engine", cfg.Database.URL)
	assert.Equal(t, 8080, cfg.Server.Port, "defaults still apply without a file")
}
