package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Lock backend types.
const (
	BackendCloud     = "cloud"
	BackendSimulator = "simulator"
)

// Config is the root configuration structure for the lock bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Lock      LockConfig      `yaml:"lock"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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
// Used when Output is "file"; sizes are in megabytes, age in days.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// LockConfig contains settings for the smart-lock bridge.
type LockConfig struct {
	Enabled bool `yaml:"enabled"`

	// DeviceID is the registry ID for the lock.
	// Default: smartlock.DefaultDeviceID(lock_id).
	DeviceID string `yaml:"device_id"`

	// Email and Password are the vendor account credentials.
	// WARNING: Never log Password. Use String() for safe logging.
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// LockID is the vendor identifier of the lock.
	LockID string `yaml:"lock_id"`

	// MaxRetries is the number of lookup attempts at startup. Default: 3.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the pause between lookup attempts (seconds). Default: 2.
	RetryDelay int `yaml:"retry_delay"`

	// Optimistic records the commanded state without querying the bolt.
	// Default: true.
	Optimistic bool `yaml:"optimistic"`

	// TrustCachedLocked skips the refresh query while the lock is known
	// locked. Default: true.
	TrustCachedLocked bool `yaml:"trust_cached_locked"`

	// PollInterval is how often the state is refreshed (seconds). Default: 30.
	PollInterval int `yaml:"poll_interval"`

	// HealthInterval is how often bridge health is published (seconds).
	// Default: 30.
	HealthInterval int `yaml:"health_interval"`

	Backend LockBackendConfig `yaml:"backend"`
}

// LockBackendConfig selects the vendor service implementation.
type LockBackendConfig struct {
	// Type is "cloud" or "simulator". Default: cloud.
	Type string `yaml:"type"`

	// URL is the vendor API base URL (cloud only).
	URL string `yaml:"url"`

	// Timeout bounds each vendor request (seconds). Default: 10.
	Timeout int `yaml:"timeout"`
}

// String returns a string representation with the password masked.
func (l LockConfig) String() string {
	password := ""
	if l.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("LockConfig{Enabled:%t, DeviceID:%q, Email:%q, Password:%s, LockID:%q, Backend:%s}",
		l.Enabled, l.DeviceID, l.Email, password, l.LockID, l.Backend.Type)
}

// MarshalJSON implements json.Marshaler to redact the password.
func (l LockConfig) MarshalJSON() ([]byte, error) {
	type redacted LockConfig
	safe := redacted(l)
	if safe.Password != "" {
		safe.Password = "[REDACTED]"
	}
	return json.Marshal(safe)
}

// GetRetryDelay returns the retry delay as a Duration.
func (l LockConfig) GetRetryDelay() time.Duration {
	return time.Duration(l.RetryDelay) * time.Second
}

// GetPollInterval returns the poll interval as a Duration.
func (l LockConfig) GetPollInterval() time.Duration {
	return time.Duration(l.PollInterval) * time.Second
}

// GetHealthInterval returns the health interval as a Duration.
func (l LockConfig) GetHealthInterval() time.Duration {
	return time.Duration(l.HealthInterval) * time.Second
}

// GetBackendTimeout returns the vendor request timeout as a Duration.
func (l LockConfig) GetBackendTimeout() time.Duration {
	return time.Duration(l.Backend.Timeout) * time.Second
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_LOCK_PASSWORD
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/lockbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-lockbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/lockbridge.log",
				MaxSize:    100,
				MaxBackups: 5,
				MaxAge:     30,
			},
		},
		Lock: LockConfig{
			Enabled:           true,
			MaxRetries:        3,
			RetryDelay:        2,
			Optimistic:        true,
			TrustCachedLocked: true,
			PollInterval:      30,
			HealthInterval:    30,
			Backend: LockBackendConfig{
				Type:    BackendCloud,
				Timeout: 10,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Lock vendor account
	if v := os.Getenv("GRAYLOGIC_LOCK_EMAIL"); v != "" {
		cfg.Lock.Email = v
	}
	if v := os.Getenv("GRAYLOGIC_LOCK_PASSWORD"); v != "" {
		cfg.Lock.Password = v
	}
	if v := os.Getenv("GRAYLOGIC_LOCK_ID"); v != "" {
		cfg.Lock.LockID = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}

		// The JWT secret must be at least 32 characters.
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
	}

	if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if c.Lock.Enabled {
		errs = append(errs, c.Lock.validate()...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (l LockConfig) validate() []string {
	var errs []string
	if l.Email == "" {
		errs = append(errs, "lock.email is required (set GRAYLOGIC_LOCK_EMAIL environment variable)")
	}
	if l.Password == "" {
		errs = append(errs, "lock.password is required (set GRAYLOGIC_LOCK_PASSWORD environment variable)")
	}
	if l.LockID == "" {
		errs = append(errs, "lock.lock_id is required")
	}
	if l.MaxRetries < 1 {
		errs = append(errs, "lock.max_retries must be positive")
	}
	if l.RetryDelay < 1 {
		errs = append(errs, "lock.retry_delay must be positive")
	}
	if l.PollInterval < 1 {
		errs = append(errs, "lock.poll_interval must be positive")
	}
	if l.HealthInterval < 1 {
		errs = append(errs, "lock.health_interval must be positive")
	}
	switch l.Backend.Type {
	case BackendCloud:
		if l.Backend.URL == "" {
			errs = append(errs, "lock.backend.url is required for the cloud backend")
		}
	case BackendSimulator:
	default:
		errs = append(errs, fmt.Sprintf("lock.backend.type must be %q or %q", BackendCloud, BackendSimulator))
	}
	return errs
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
