package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Auth       AuthConfig
	Alerting   AlertingConfig
	Email      EmailConfig
	Retention  RetentionConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `envconfig:"PORT" default:"8080"`
	Environment  string        `envconfig:"ENV" default:"development"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	DashboardURL string        `envconfig:"DASHBOARD_URL" default:"http://localhost:3000"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port            int           `envconfig:"POSTGRES_PORT" default:"5432"`
	User            string        `envconfig:"POSTGRES_USER" default:"faultline"`
	Password        string        `envconfig:"POSTGRES_PASSWORD" default:"faultline"`
	Database        string        `envconfig:"POSTGRES_DB" default:"faultline"`
	SSLMode         string        `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"25"`
	ConnMaxLifetime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"5m"`
}

// DSN returns the PostgreSQL connection string
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the PostgreSQL connection URL used by golang-migrate
func (c PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// ClickHouseConfig holds ClickHouse connection configuration for the
// occurrence store
type ClickHouseConfig struct {
	Host        string        `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port        int           `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	Database    string        `envconfig:"CLICKHOUSE_DB" default:"faultline"`
	User        string        `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password    string        `envconfig:"CLICKHOUSE_PASSWORD" default:""`
	DialTimeout time.Duration `envconfig:"CLICKHOUSE_DIAL_TIMEOUT" default:"5s"`
	MaxOpenConn int           `envconfig:"CLICKHOUSE_MAX_OPEN_CONN" default:"10"`
	MaxIdleConn int           `envconfig:"CLICKHOUSE_MAX_IDLE_CONN" default:"5"`
}

// AuthConfig holds project credential configuration
type AuthConfig struct {
	APIKeySalt string `envconfig:"API_KEY_SALT" required:"true"`
}

// AlertingConfig tunes the notification engine and channel dispatcher
type AlertingConfig struct {
	AggregationWindowMs  int     `envconfig:"ALERT_AGGREGATION_WINDOW_MS" default:"300000"`
	CooldownMinutes      float64 `envconfig:"ALERT_COOLDOWN_MINUTES" default:"30"`
	EscalationMinutes    float64 `envconfig:"ALERT_ESCALATION_MINUTES" default:"120"`
	DeploymentLookbackMs int     `envconfig:"ALERT_DEPLOYMENT_LOOKBACK_MS" default:"43200000"`
	DigestIntervalMs     int     `envconfig:"ALERT_DIGEST_INTERVAL_MS" default:"900000"`
	StateDriver          string  `envconfig:"ALERT_STATE_DRIVER" default:"memory"`
	WebhookTimeoutMs     int     `envconfig:"WEBHOOK_TIMEOUT_MS" default:"7000"`
}

// AggregationWindow returns the aggregation window as a duration
func (c AlertingConfig) AggregationWindow() time.Duration {
	return time.Duration(c.AggregationWindowMs) * time.Millisecond
}

// WebhookTimeout returns the outbound HTTP timeout as a duration
func (c AlertingConfig) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutMs) * time.Millisecond
}

// DeploymentLookback returns the enricher lookback as a duration
func (c AlertingConfig) DeploymentLookback() time.Duration {
	return time.Duration(c.DeploymentLookbackMs) * time.Millisecond
}

// DigestInterval returns the digest scheduler tick as a duration
func (c AlertingConfig) DigestInterval() time.Duration {
	return time.Duration(c.DigestIntervalMs) * time.Millisecond
}

// EmailConfig holds email pipeline configuration
type EmailConfig struct {
	SendGridAPIKey     string `envconfig:"SENDGRID_API_KEY" default:""`
	FromAddress        string `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@faultline.dev"`
	FromName           string `envconfig:"EMAIL_FROM_NAME" default:"Faultline Alerts"`
	UnsubscribeBaseURL string `envconfig:"EMAIL_UNSUBSCRIBE_BASE_URL" default:"http://localhost:8080/api/unsubscribe"`
}

// RetentionConfig tunes the retention cleanup scheduler
type RetentionConfig struct {
	CleanupIntervalMs int `envconfig:"RETENTION_CLEANUP_INTERVAL_MS" default:"3600000"`
}

// CleanupInterval returns the retention tick as a duration
func (c RetentionConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMs) * time.Millisecond
}

// Load reads configuration from environment variables. The alerting and
// retention variables are unprefixed so deployments address them by their
// documented names.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if cfg.Alerting.StateDriver != "memory" && cfg.Alerting.StateDriver != "postgres" {
		return nil, fmt.Errorf("invalid ALERT_STATE_DRIVER %q (expected memory or postgres)", cfg.Alerting.StateDriver)
	}
	return &cfg, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
