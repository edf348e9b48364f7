package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Johnnenna2/weekly-news/internal/domain"
)

// Default production schedule: every Sunday at 14:00 (timezone below).
const (
	DefaultSchedule = "0 14 * * 0"
	DefaultTimezone = "UTC"
)

// Config holds all configuration for weeklynews.
// Values are loaded from environment variables; see printUsage() in
// cmd/weeklynews for the full list.
type Config struct {
	// Credentials required by the script. Passed into the run explicitly;
	// nothing else reads them from the environment after Load.
	Credentials domain.Credentials `json:"-"`

	Schedule string `json:"schedule"`
	Timezone string `json:"timezone"`

	// ScriptCommand is the argv of the script invocation. The script takes
	// no arguments beyond the configured command and reads its secrets from
	// the environment.
	ScriptCommand    []string `json:"-"`
	ScriptCommandStr string   `json:"script_command"`

	// InstallCommand provisions the script's dependencies before each run.
	// Empty disables provisioning.
	InstallCommand    []string `json:"-"`
	InstallCommandStr string   `json:"install_command"`

	WorkDir string `json:"workdir,omitempty"`

	ScriptTimeout       time.Duration `json:"-"`
	ScriptTimeoutStr    string        `json:"script_timeout"`
	ProvisionTimeout    time.Duration `json:"-"`
	ProvisionTimeoutStr string        `json:"provision_timeout"`

	TickInterval    time.Duration `json:"-"`
	TickIntervalStr string        `json:"tick_interval"`

	HTTPAddr               string        `json:"http_addr"`
	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	RunnerDrainTimeout    time.Duration `json:"-"`
	RunnerDrainTimeoutStr string        `json:"runner_drain_timeout"`
	EventBusBufferSize    int           `json:"eventbus_buffer_size"`

	DatabaseURL       string        `json:"database_url"`
	DBOpTimeout       time.Duration `json:"-"`
	DBOpTimeoutStr    string        `json:"db_op_timeout"`
	DBMaxOpenConns    int           `json:"db_max_open_conns"`
	DBMaxIdleConns    int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime time.Duration `json:"-"`
	DBConnMaxLifetimeStr string     `json:"db_conn_max_lifetime"`

	RedisAddr string `json:"redis_addr,omitempty"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	ReconcileEnabled     bool          `json:"reconcile_enabled"`
	ReconcileInterval    time.Duration `json:"-"`
	ReconcileIntervalStr string        `json:"reconcile_interval"`

	// ReconcileThreshold must comfortably exceed the longest expected run.
	ReconcileThreshold    time.Duration `json:"-"`
	ReconcileThresholdStr string        `json:"reconcile_threshold"`
	ReconcileBatchSize    int           `json:"reconcile_batch_size"`

	// LeaderEnabled requires DATABASE_URL; all instances sharing the same
	// database must use the same lock key.
	LeaderEnabled              bool          `json:"leader_enabled"`
	LeaderLockKey              int64         `json:"leader_lock_key"`
	LeaderRetryInterval        time.Duration `json:"-"`
	LeaderRetryIntervalStr     string        `json:"leader_retry_interval"`
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`
}

// Load reads configuration from environment variables with defaults.
// A .env file in the working directory is loaded first if present, matching
// how the bot behaves on a laptop vs. the hosted runner.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Credentials: domain.Credentials{
			WebhookURL: os.Getenv(domain.EnvWebhookURL),
			AIAPIKey:   os.Getenv(domain.EnvAIAPIKey),
			NewsAPIKey: os.Getenv(domain.EnvNewsAPIKey),
		},
		Schedule:                   os.Getenv("SCHEDULE"),
		Timezone:                   os.Getenv("TIMEZONE"),
		ScriptCommandStr:           os.Getenv("SCRIPT_COMMAND"),
		InstallCommandStr:          os.Getenv("INSTALL_COMMAND"),
		WorkDir:                    os.Getenv("WORKDIR"),
		ScriptTimeoutStr:           os.Getenv("SCRIPT_TIMEOUT"),
		ProvisionTimeoutStr:        os.Getenv("PROVISION_TIMEOUT"),
		TickIntervalStr:            os.Getenv("TICK_INTERVAL"),
		HTTPAddr:                   os.Getenv("HTTP_ADDR"),
		HTTPShutdownTimeoutStr:     os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		RunnerDrainTimeoutStr:      os.Getenv("RUNNER_DRAIN_TIMEOUT"),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		DBOpTimeoutStr:             os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:       os.Getenv("DB_CONN_MAX_LIFETIME"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		MetricsEnabled:             os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:                os.Getenv("METRICS_PATH"),
		MetricsPort:                os.Getenv("METRICS_PORT"),
		ReconcileEnabled:           os.Getenv("RECONCILE_ENABLED") == "true",
		ReconcileIntervalStr:       os.Getenv("RECONCILE_INTERVAL"),
		ReconcileThresholdStr:      os.Getenv("RECONCILE_THRESHOLD"),
		LeaderEnabled:              os.Getenv("LEADER_ELECTION_ENABLED") == "true",
		LeaderRetryIntervalStr:     os.Getenv("LEADER_RETRY_INTERVAL"),
		LeaderHeartbeatIntervalStr: os.Getenv("LEADER_HEARTBEAT_INTERVAL"),
	}

	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.ScriptCommandStr == "" {
		cfg.ScriptCommandStr = "python3 main.py"
	}
	// INSTALL_COMMAND set to the empty string disables provisioning;
	// unset falls back to the pip install the original workflow ran.
	if _, set := os.LookupEnv("INSTALL_COMMAND"); !set {
		cfg.InstallCommandStr = "python3 -m pip install -r requirements.txt"
	}
	cfg.ScriptCommand = strings.Fields(cfg.ScriptCommandStr)
	cfg.InstallCommand = strings.Fields(cfg.InstallCommandStr)

	cfg.EventBusBufferSize = intFromEnv("EVENTBUS_BUFFER_SIZE", 16)
	cfg.ReconcileBatchSize = intFromEnv("RECONCILE_BATCH_SIZE", 50)
	cfg.DBMaxOpenConns = intFromEnv("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = intFromEnv("DB_MAX_IDLE_CONNS", 5)

	if lockKeyStr := os.Getenv("LEADER_LOCK_KEY"); lockKeyStr != "" {
		if n, err := strconv.ParseInt(lockKeyStr, 10, 64); err == nil && n > 0 {
			cfg.LeaderLockKey = n
		} else {
			log.Printf("config: invalid LEADER_LOCK_KEY %q (must be a positive integer), using default 917405", lockKeyStr)
		}
	}
	if cfg.LeaderLockKey == 0 {
		cfg.LeaderLockKey = 917405
	}

	// Support the hosting platform's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.ScriptTimeoutStr == "" {
		cfg.ScriptTimeoutStr = "0"
	}
	if cfg.ProvisionTimeoutStr == "" {
		cfg.ProvisionTimeoutStr = "10m"
	}
	if cfg.TickIntervalStr == "" {
		cfg.TickIntervalStr = "30s"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.RunnerDrainTimeoutStr == "" {
		cfg.RunnerDrainTimeoutStr = "30s"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.ReconcileIntervalStr == "" {
		cfg.ReconcileIntervalStr = "5m"
	}
	if cfg.ReconcileThresholdStr == "" {
		cfg.ReconcileThresholdStr = "2h"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.ScriptTimeoutStr); err == nil {
		cfg.ScriptTimeout = d
	}
	if d, err := time.ParseDuration(cfg.ProvisionTimeoutStr); err == nil {
		cfg.ProvisionTimeout = d
	}
	if d, err := time.ParseDuration(cfg.TickIntervalStr); err == nil {
		cfg.TickInterval = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.RunnerDrainTimeoutStr); err == nil {
		cfg.RunnerDrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.ReconcileIntervalStr); err == nil {
		cfg.ReconcileInterval = d
	}
	if d, err := time.ParseDuration(cfg.ReconcileThresholdStr); err == nil {
		cfg.ReconcileThreshold = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}

	return cfg
}

func intFromEnv(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s %q (must be a positive integer), using default %d", key, s, def)
		return def
	}
	return n
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		WebhookURL string `json:"discord_webhook_url"`
		AIAPIKey   string `json:"openai_api_key"`
		NewsAPIKey string `json:"news_api_key"`

		Schedule         string `json:"schedule"`
		Timezone         string `json:"timezone"`
		ScriptCommand    string `json:"script_command"`
		InstallCommand   string `json:"install_command"`
		WorkDir          string `json:"workdir,omitempty"`
		ScriptTimeout    string `json:"script_timeout"`
		ProvisionTimeout string `json:"provision_timeout"`

		TickInterval        string `json:"tick_interval"`
		HTTPAddr            string `json:"http_addr"`
		HTTPShutdownTimeout string `json:"http_shutdown_timeout"`
		RunnerDrainTimeout  string `json:"runner_drain_timeout"`
		EventBusBufferSize  int    `json:"eventbus_buffer_size"`

		DatabaseURL       string `json:"database_url"`
		DBOpTimeout       string `json:"db_op_timeout"`
		DBMaxOpenConns    int    `json:"db_max_open_conns"`
		DBMaxIdleConns    int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime string `json:"db_conn_max_lifetime"`
		RedisAddr         string `json:"redis_addr,omitempty"`

		MetricsEnabled bool   `json:"metrics_enabled"`
		MetricsPath    string `json:"metrics_path"`
		MetricsPort    string `json:"metrics_port"`

		ReconcileEnabled   bool   `json:"reconcile_enabled"`
		ReconcileInterval  string `json:"reconcile_interval"`
		ReconcileThreshold string `json:"reconcile_threshold"`
		ReconcileBatchSize int    `json:"reconcile_batch_size"`

		LeaderEnabled           bool   `json:"leader_enabled"`
		LeaderLockKey           int64  `json:"leader_lock_key"`
		LeaderRetryInterval     string `json:"leader_retry_interval"`
		LeaderHeartbeatInterval string `json:"leader_heartbeat_interval"`
	}{
		WebhookURL:       maskSecret(c.Credentials.WebhookURL),
		AIAPIKey:         maskSecret(c.Credentials.AIAPIKey),
		NewsAPIKey:       maskSecret(c.Credentials.NewsAPIKey),
		Schedule:         c.Schedule,
		Timezone:         c.Timezone,
		ScriptCommand:    c.ScriptCommandStr,
		InstallCommand:   c.InstallCommandStr,
		WorkDir:          c.WorkDir,
		ScriptTimeout:    c.ScriptTimeoutStr,
		ProvisionTimeout: c.ProvisionTimeoutStr,

		TickInterval:        c.TickIntervalStr,
		HTTPAddr:            c.HTTPAddr,
		HTTPShutdownTimeout: c.HTTPShutdownTimeoutStr,
		RunnerDrainTimeout:  c.RunnerDrainTimeoutStr,
		EventBusBufferSize:  c.EventBusBufferSize,

		DatabaseURL:       maskDatabaseURL(c.DatabaseURL),
		DBOpTimeout:       c.DBOpTimeoutStr,
		DBMaxOpenConns:    c.DBMaxOpenConns,
		DBMaxIdleConns:    c.DBMaxIdleConns,
		DBConnMaxLifetime: c.DBConnMaxLifetimeStr,
		RedisAddr:         c.RedisAddr,

		MetricsEnabled: c.MetricsEnabled,
		MetricsPath:    c.MetricsPath,
		MetricsPort:    c.MetricsPort,

		ReconcileEnabled:   c.ReconcileEnabled,
		ReconcileInterval:  c.ReconcileIntervalStr,
		ReconcileThreshold: c.ReconcileThresholdStr,
		ReconcileBatchSize: c.ReconcileBatchSize,

		LeaderEnabled:           c.LeaderEnabled,
		LeaderLockKey:           c.LeaderLockKey,
		LeaderRetryInterval:     c.LeaderRetryIntervalStr,
		LeaderHeartbeatInterval: c.LeaderHeartbeatIntervalStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value entirely; presence is all an operator
// needs to confirm.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// maskDatabaseURL masks the connection string, preserving only the scheme.
func maskDatabaseURL(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(s, scheme) {
			return scheme + "***"
		}
	}
	return "***"
}
