package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Ingress  IngressConfig  `yaml:"ingress"`
	Queue    QueueConfig    `yaml:"queue"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Warmup   WarmupConfig   `yaml:"warmup"`
	Routing  RoutingConfig  `yaml:"routing"`
	Workers  WorkersConfig  `yaml:"workers"`
	Platform PlatformConfig `yaml:"platform"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"` // development, staging, production
}

// IsProduction reports whether the server runs in production mode. Unsigned
// webhooks are never accepted in production.
func (s ServerConfig) IsProduction() bool { return s.Environment == "production" }

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis settings for the event queue. An empty Addr
// disables Redis entirely; dispatch then degrades to in-process execution.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// IngressConfig holds webhook ingress settings.
type IngressConfig struct {
	SignatureHeader string `yaml:"signature_header"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
}

// QueueConfig holds event queue dispatch settings.
type QueueConfig struct {
	Workers     int `yaml:"workers"`
	MaxAttempts int `yaml:"max_attempts"`
}

// MonitorConfig holds bounce-threshold settings for the real-time auto-pause
// rule.
type MonitorConfig struct {
	MinSendsForPause  int64   `yaml:"min_sends_for_pause"`
	PauseBounceRate   float64 `yaml:"pause_bounce_rate"`
	DomainMinSends    int64   `yaml:"domain_min_sends"`
	CooldownHours     int     `yaml:"cooldown_hours"`
	PausePenalty      int     `yaml:"pause_penalty"`
	CampaignWarnRate  float64 `yaml:"campaign_warn_rate"`
	CampaignMinVolume int64   `yaml:"campaign_min_volume"`
}

// Cooldown returns the configured quarantine cooldown duration.
func (m MonitorConfig) Cooldown() time.Duration {
	return time.Duration(m.CooldownHours) * time.Hour
}

// RecoveryConfig holds graduation targets for the recovery state machine.
type RecoveryConfig struct {
	RestrictedSendTarget       int64 `yaml:"restricted_send_target"`
	RestrictedSendRepeatTarget int64 `yaml:"restricted_send_repeat_target"`
	WarmRecoveryTarget         int64 `yaml:"warm_recovery_target"`
	WarmRecoveryMinDays        int   `yaml:"warm_recovery_min_days"`
	RelapsePenalty             int   `yaml:"relapse_penalty"`
	GraduationReward           int   `yaml:"graduation_reward"`
}

// WarmupConfig holds per-phase external warmup volumes.
type WarmupConfig struct {
	RestrictedDailyVolume int     `yaml:"restricted_daily_volume"`
	RestrictedRampUp      int     `yaml:"restricted_ramp_up"`
	WarmDailyVolume       int     `yaml:"warm_daily_volume"`
	WarmRampUp            int     `yaml:"warm_ramp_up"`
	TargetReplyRate       float64 `yaml:"target_reply_rate"`
	MaintenanceVolume     int     `yaml:"maintenance_volume"` // 0 disables warmup after graduation
	CallTimeoutSeconds    int     `yaml:"call_timeout_seconds"`
}

// CallTimeout bounds every external warmup/platform call.
func (w WarmupConfig) CallTimeout() time.Duration {
	return time.Duration(w.CallTimeoutSeconds) * time.Second
}

// RoutingConfig holds lead-routing settings.
type RoutingConfig struct {
	DefaultCampaignCapacity int `yaml:"default_campaign_capacity"`
}

// WorkersConfig holds intervals for the periodic reconciliation jobs.
type WorkersConfig struct {
	LeadReevalIntervalMinutes  int    `yaml:"lead_reeval_interval_minutes"`
	GraduationIntervalMinutes  int    `yaml:"graduation_interval_minutes"`
	RetentionIntervalHours     int    `yaml:"retention_interval_hours"`
	RetentionDays              int    `yaml:"retention_days"`
	RetentionS3Bucket          string `yaml:"retention_s3_bucket"`
	RetentionS3Region          string `yaml:"retention_s3_region"`
	TrialExpiryIntervalHours  int    `yaml:"trial_expiry_interval_hours"`
}

// PlatformConfig holds external sending-platform adapter settings.
type PlatformConfig struct {
	Default   string          `yaml:"default"`
	Instantly InstantlyConfig `yaml:"instantly"`
	SES       SESConfig       `yaml:"ses"`
}

// InstantlyConfig holds credentials for the Instantly-style platform API.
type InstantlyConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SESConfig holds AWS SES suppression-adapter settings.
type SESConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30
	}
	if c.Ingress.SignatureHeader == "" {
		c.Ingress.SignatureHeader = "X-Webhook-Signature"
	}
	if c.Ingress.MaxBodyBytes == 0 {
		c.Ingress.MaxBodyBytes = 1 << 20 // 1MB
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Monitor.MinSendsForPause == 0 {
		c.Monitor.MinSendsForPause = 60
	}
	if c.Monitor.PauseBounceRate == 0 {
		c.Monitor.PauseBounceRate = 0.03
	}
	if c.Monitor.DomainMinSends == 0 {
		c.Monitor.DomainMinSends = 200
	}
	if c.Monitor.CooldownHours == 0 {
		c.Monitor.CooldownHours = 48
	}
	if c.Monitor.PausePenalty == 0 {
		c.Monitor.PausePenalty = 15
	}
	if c.Monitor.CampaignWarnRate == 0 {
		c.Monitor.CampaignWarnRate = 0.02
	}
	if c.Monitor.CampaignMinVolume == 0 {
		c.Monitor.CampaignMinVolume = 100
	}
	if c.Recovery.RestrictedSendTarget == 0 {
		c.Recovery.RestrictedSendTarget = 50
	}
	if c.Recovery.RestrictedSendRepeatTarget == 0 {
		c.Recovery.RestrictedSendRepeatTarget = 150
	}
	if c.Recovery.WarmRecoveryTarget == 0 {
		c.Recovery.WarmRecoveryTarget = 300
	}
	if c.Recovery.WarmRecoveryMinDays == 0 {
		c.Recovery.WarmRecoveryMinDays = 7
	}
	if c.Recovery.RelapsePenalty == 0 {
		c.Recovery.RelapsePenalty = 10
	}
	if c.Recovery.GraduationReward == 0 {
		c.Recovery.GraduationReward = 5
	}
	if c.Warmup.RestrictedDailyVolume == 0 {
		c.Warmup.RestrictedDailyVolume = 10
	}
	if c.Warmup.RestrictedRampUp == 0 {
		c.Warmup.RestrictedRampUp = 2
	}
	if c.Warmup.WarmDailyVolume == 0 {
		c.Warmup.WarmDailyVolume = 40
	}
	if c.Warmup.WarmRampUp == 0 {
		c.Warmup.WarmRampUp = 5
	}
	if c.Warmup.TargetReplyRate == 0 {
		c.Warmup.TargetReplyRate = 0.30
	}
	if c.Warmup.CallTimeoutSeconds == 0 {
		c.Warmup.CallTimeoutSeconds = 15
	}
	if c.Routing.DefaultCampaignCapacity == 0 {
		c.Routing.DefaultCampaignCapacity = 1000
	}
	if c.Workers.LeadReevalIntervalMinutes == 0 {
		c.Workers.LeadReevalIntervalMinutes = 60
	}
	if c.Workers.GraduationIntervalMinutes == 0 {
		c.Workers.GraduationIntervalMinutes = 15
	}
	if c.Workers.RetentionIntervalHours == 0 {
		c.Workers.RetentionIntervalHours = 24
	}
	if c.Workers.RetentionDays == 0 {
		c.Workers.RetentionDays = 90
	}
	if c.Workers.TrialExpiryIntervalHours == 0 {
		c.Workers.TrialExpiryIntervalHours = 6
	}
	if c.Platform.Default == "" {
		c.Platform.Default = "instantly"
	}
	if c.Platform.Instantly.TimeoutSeconds == 0 {
		c.Platform.Instantly.TimeoutSeconds = 15
	}
	if c.Platform.SES.Region == "" {
		c.Platform.SES.Region = "us-east-1"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars on the deployment host.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		// No config file is fine; defaults plus env overrides carry a
		// development setup.
		cfg = &Config{}
		cfg.applyDefaults()
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Server.Environment = v
	}
	if v := os.Getenv("INSTANTLY_API_KEY"); v != "" {
		cfg.Platform.Instantly.APIKey = v
	}
	if v := os.Getenv("INSTANTLY_BASE_URL"); v != "" {
		cfg.Platform.Instantly.BaseURL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Platform.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Platform.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Platform.SES.Region = v
	}
	if v := os.Getenv("RETENTION_S3_BUCKET"); v != "" {
		cfg.Workers.RetentionS3Bucket = v
	}
	if v := os.Getenv("RETENTION_S3_REGION"); v != "" {
		cfg.Workers.RetentionS3Region = v
	}

	return cfg, nil
}
