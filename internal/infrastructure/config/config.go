package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every environment override.
const envPrefix = "AIRSENSE_"

// Config is the root configuration structure for the Airsense backend.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	API           APIConfig           `yaml:"api"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
	Security      SecurityConfig      `yaml:"security"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Ingest        IngestConfig        `yaml:"ingest"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// MaxOpenConns caps the pool shared by bus handlers and HTTP hooks.
	// Zero selects the database package default.
	MaxOpenConns int `yaml:"max_open_conns"`
}

// MQTTConfig contains MQTT broker connection settings.
//
// The backend always connects with client id "api" and username "api"; its
// password is generated at process start and never configured.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig    `yaml:"broker"`
	QoS            int                 `yaml:"qos"`
	KeepAlive      int                 `yaml:"keep_alive"`
	ConnectTimeout int                 `yaml:"connect_timeout"`
	ShutdownGrace  int                 `yaml:"shutdown_grace"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
}

// MQTTReconnectConfig bounds the initial connection attempts.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// URL returns the broker address as a URL string understood by the MQTT client.
func (b MQTTBrokerConfig) URL() string {
	scheme := "mqtt"
	if b.TLS {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Sizes are in megabytes, ages in days.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT         JWTConfig         `yaml:"jwt"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	BrokerHooks BrokerHooksConfig `yaml:"broker_hooks"`
}

// BrokerHooksConfig guards the /mqtt/auth and /mqtt/acl endpoints.
// With Secret empty the hooks accept any caller, which is only safe when the
// API port is reachable by the broker alone.
type BrokerHooksConfig struct {
	// Secret must arrive in the X-Broker-Secret header of every hook call.
	Secret string `yaml:"secret"`
}

// JWTConfig contains settings for operator bearer tokens.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// NotificationsConfig contains push notification settings.
type NotificationsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	CredentialsFile string        `yaml:"credentials_file"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of push delivery.
type BreakerConfig struct {
	MaxFailures int `yaml:"max_failures"`
	Interval    int `yaml:"interval"`
	Timeout     int `yaml:"timeout"`
}

// IngestConfig contains sensor ingestion settings.
type IngestConfig struct {
	HandlerTimeout int `yaml:"handler_timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file in the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: AIRSENSE_SECTION_KEY
// For example: AIRSENSE_DATABASE_PATH, AIRSENSE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/airsense.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:            1,
			KeepAlive:      30,
			ConnectTimeout: 10,
			ShutdownGrace:  5,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Org:           "airsense",
			Bucket:        "readings",
			BatchSize:     500,
			FlushInterval: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/airsense.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
				Burst:             50,
			},
		},
		Notifications: NotificationsConfig{
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Interval:    60,
				Timeout:     30,
			},
		},
		Ingest: IngestConfig{
			HandlerTimeout: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AIRSENSE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	if v := getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := getenv("MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := getenv("MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %sMQTT_PORT: %w", envPrefix, err)
		}
		cfg.MQTT.Broker.Port = port
	}

	if v := getenv("API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %sAPI_PORT: %w", envPrefix, err)
		}
		cfg.API.Port = port
	}

	if v := getenv("INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := getenv("JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	if v := getenv("BROKER_HOOK_SECRET"); v != "" {
		cfg.Security.BrokerHooks.Secret = v
	}

	if v := getenv("FCM_CREDENTIALS_FILE"); v != "" {
		cfg.Notifications.CredentialsFile = v
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Curve updates are guarded by operator tokens signed with this secret.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set AIRSENSE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	const minBrokerSecretLength = 16
	if s := c.Security.BrokerHooks.Secret; s != "" && len(s) < minBrokerSecretLength {
		errs = append(errs, "security.broker_hooks.secret must be at least 16 characters")
	}

	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be positive when enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Notifications.Enabled && c.Notifications.CredentialsFile == "" {
		errs = append(errs, "notifications.credentials_file is required when notifications are enabled")
	}

	if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetShutdownGrace returns how long the bus connection may take to drain on stop.
func (c *Config) GetShutdownGrace() time.Duration {
	return time.Duration(c.MQTT.ShutdownGrace) * time.Second
}

// GetHandlerTimeout returns the per-message ingestion deadline.
func (c *Config) GetHandlerTimeout() time.Duration {
	return time.Duration(c.Ingest.HandlerTimeout) * time.Second
}
