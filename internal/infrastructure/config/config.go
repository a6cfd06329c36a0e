package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for Glove Core, loaded from YAML
// with GLOVECORE_* environment overrides on top.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Retention RetentionConfig `yaml:"retention"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"` // seconds
}

// MQTTConfig configures the broker connection carrying the glove
// telemetry feed. When disabled, ingest is HTTP only.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig identifies the broker endpoint.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig carries broker credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig tunes the reconnect backoff (seconds).
// MaxAttempts of zero retries forever.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// ReadTimeout returns the HTTP read timeout as a Duration.
func (a APIConfig) ReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// WriteTimeout returns the HTTP write timeout as a Duration.
func (a APIConfig) WriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// IdleTimeout returns the HTTP idle timeout as a Duration.
func (a APIConfig) IdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
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

// WebSocketConfig contains settings for the live telemetry feed.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"` // bytes
	PingInterval   int    `yaml:"ping_interval"`    // seconds
	PongTimeout    int    `yaml:"pong_timeout"`     // seconds
}

// InfluxDBConfig configures the optional time-series mirror of numeric
// sensor readings. SQLite remains the system of record.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // milliseconds
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stdout, stderr
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains access token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// RetentionConfig controls the periodic raw-telemetry sweep. Sensor
// events older than MaxAgeDays are purged; gesture results and learning
// records are never touched by retention.
type RetentionConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxAgeDays    int  `yaml:"max_age_days"`
	IntervalHours int  `yaml:"interval_hours"`
}

// RetentionMaxAge returns the retention cutoff age as a Duration.
func (c *Config) RetentionMaxAge() time.Duration {
	return time.Duration(c.Retention.MaxAgeDays) * 24 * time.Hour
}

// RetentionInterval returns the retention sweep interval as a Duration.
func (c *Config) RetentionInterval() time.Duration {
	return time.Duration(c.Retention.IntervalHours) * time.Hour
}

// Load reads the YAML file at path on top of the built-in defaults,
// applies GLOVECORE_* environment overrides, and validates the result.
//
// Precedence, lowest to highest: defaults, file, environment.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/glovecore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "glove-core",
			},
			QoS: 1,
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
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		Retention: RetentionConfig{
			Enabled:       false,
			MaxAgeDays:    30,
			IntervalHours: 24,
		},
	}
}

// applyEnvOverrides layers GLOVECORE_* variables over the file values.
// Secrets are expected to arrive this way rather than via the file.
func applyEnvOverrides(cfg *Config) {
	stringVars := map[string]*string{
		"GLOVECORE_DATABASE_PATH":  &cfg.Database.Path,
		"GLOVECORE_MQTT_HOST":      &cfg.MQTT.Broker.Host,
		"GLOVECORE_MQTT_USERNAME":  &cfg.MQTT.Auth.Username,
		"GLOVECORE_MQTT_PASSWORD":  &cfg.MQTT.Auth.Password,
		"GLOVECORE_API_HOST":       &cfg.API.Host,
		"GLOVECORE_INFLUXDB_URL":   &cfg.InfluxDB.URL,
		"GLOVECORE_INFLUXDB_TOKEN": &cfg.InfluxDB.Token,
		"GLOVECORE_JWT_SECRET":     &cfg.Security.JWT.Secret,
	}
	for name, target := range stringVars {
		if v := os.Getenv(name); v != "" {
			*target = v
		}
	}

	intVars := map[string]*int{
		"GLOVECORE_MQTT_PORT": &cfg.MQTT.Broker.Port,
		"GLOVECORE_API_PORT":  &cfg.API.Port,
	}
	for name, target := range intVars {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*target = n
			}
		}
	}
}

// Validate rejects configurations that cannot run safely.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Telemetry is attributed to user accounts; a forgeable token would
	// let an attacker read or fake another user's practice history.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GLOVECORE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.Retention.Enabled {
		if c.Retention.MaxAgeDays < 1 {
			errs = append(errs, "retention.max_age_days must be at least 1")
		}
		if c.Retention.IntervalHours < 1 {
			errs = append(errs, "retention.interval_hours must be at least 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
