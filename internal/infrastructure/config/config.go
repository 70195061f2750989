package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the pin core service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Statsd     StatsdConfig     `yaml:"statsd"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
	Automation AutomationConfig `yaml:"automation"`
	Modules    ModulesConfig    `yaml:"modules"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	// Timezone is the IANA zone used to evaluate time-of-day windows.
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
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

// KafkaConfig contains settings for the optional sensor reading stream.
type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	GroupID     string   `yaml:"group_id"`
	PollTimeout int      `yaml:"poll_timeout_ms"`
}

// StatsdConfig contains DogStatsD metric emission settings.
type StatsdConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Address   string   `yaml:"address"`
	Namespace string   `yaml:"namespace"`
	Tags      []string `yaml:"tags"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	// AccessTokenTTL is in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// AutomationConfig tunes the per-module scheduler.
type AutomationConfig struct {
	// WindowTick is how often time-of-day windows are re-evaluated.
	WindowTick time.Duration `yaml:"window_tick"`

	// ExpectedReadingInterval is the nominal period between sensor readings.
	ExpectedReadingInterval time.Duration `yaml:"expected_reading_interval"`

	// StalenessBound is how old a reading may be before threshold policies
	// treat the sensor as silent. Zero means twice ExpectedReadingInterval.
	StalenessBound time.Duration `yaml:"staleness_bound"`

	// MaxClockSkew is how far a sensor timestamp may run ahead of the
	// local clock. Readings further ahead are rejected; closer ones are
	// clamped to the local time.
	MaxClockSkew time.Duration `yaml:"max_clock_skew"`

	// StalenessCheckInterval is how often threshold policies are re-checked
	// for staleness when no new reading arrives.
	StalenessCheckInterval time.Duration `yaml:"staleness_check_interval"`

	// QueueDepth bounds the number of pending operations per module.
	QueueDepth int `yaml:"queue_depth"`

	// HistorySize is the number of readings retained per sensor for metrics.
	HistorySize int `yaml:"history_size"`

	// StoreRetryDelay is how long an automated transition that failed to
	// persist waits before it is re-evaluated.
	StoreRetryDelay time.Duration `yaml:"store_retry_delay"`
}

// ModulesConfig lists the hardware inventory provisioned at startup.
type ModulesConfig struct {
	DefaultMaxPins int               `yaml:"default_max_pins"`
	Inventory      []InventoryModule `yaml:"inventory"`
}

// InventoryModule describes one physical module available for claiming.
type InventoryModule struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	MaxPins     int    `yaml:"max_pins"`
	// Secret is the claim password printed on the hardware. Empty disables
	// the check.
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PINCORE_SECTION_KEY
// For example: PINCORE_DATABASE_PATH, PINCORE_API_PORT
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
			ID:       "site-001",
			Name:     "Pin Core",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/pincore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "pincore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
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
		Kafka: KafkaConfig{
			Topic:       "sensor-readings",
			GroupID:     "pincore",
			PollTimeout: 1000,
		},
		Statsd: StatsdConfig{
			Address:   "127.0.0.1:8125",
			Namespace: "pincore.",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Automation: AutomationConfig{
			WindowTick:              time.Minute,
			ExpectedReadingInterval: 30 * time.Second,
			StalenessCheckInterval:  15 * time.Second,
			MaxClockSkew:            5 * time.Second,
			QueueDepth:              64,
			HistorySize:             288,
			StoreRetryDelay:         5 * time.Second,
		},
		Modules: ModulesConfig{
			DefaultMaxPins: 120,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PINCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("PINCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PINCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PINCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("PINCORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("PINCORE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("PINCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("PINCORE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	if v := os.Getenv("PINCORE_STATSD_ADDRESS"); v != "" {
		cfg.Statsd.Address = v
	}

	// Always override the JWT secret in production.
	if v := os.Getenv("PINCORE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Timezone != "" {
		if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka.brokers is required when kafka is enabled")
	}

	if c.Automation.WindowTick < 0 || c.Automation.ExpectedReadingInterval < 0 ||
		c.Automation.StalenessBound < 0 || c.Automation.StalenessCheckInterval < 0 ||
		c.Automation.StoreRetryDelay < 0 || c.Automation.MaxClockSkew < 0 {
		errs = append(errs, "automation intervals must not be negative")
	}

	if c.Modules.DefaultMaxPins < 0 {
		errs = append(errs, "modules.default_max_pins must not be negative")
	}
	seen := make(map[string]bool, len(c.Modules.Inventory))
	for i, m := range c.Modules.Inventory {
		if m.ID == "" {
			errs = append(errs, fmt.Sprintf("modules.inventory[%d].id is required", i))
			continue
		}
		if seen[m.ID] {
			errs = append(errs, fmt.Sprintf("modules.inventory[%d].id %q is duplicated", i, m.ID))
		}
		seen[m.ID] = true
		if m.MaxPins < 0 {
			errs = append(errs, fmt.Sprintf("modules.inventory[%d].max_pins must not be negative", i))
		}
	}

	// Forged tokens would allow anyone to drive physical outputs.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set PINCORE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
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

// GetStalenessBound returns the effective staleness bound for sensor readings.
func (c *Config) GetStalenessBound() time.Duration {
	if c.Automation.StalenessBound > 0 {
		return c.Automation.StalenessBound
	}
	return 2 * c.Automation.ExpectedReadingInterval
}

// GetLocation returns the site timezone, falling back to UTC.
func (c *Config) GetLocation() *time.Location {
	if c.Site.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
