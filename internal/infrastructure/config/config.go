package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for ThingLink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Home       HomeConfig      `yaml:"home"`
	Database   DatabaseConfig  `yaml:"database"`
	MQTT       MQTTConfig      `yaml:"mqtt"`
	API        APIConfig       `yaml:"api"`
	WebSocket  WebSocketConfig `yaml:"websocket"`
	InfluxDB   InfluxDBConfig  `yaml:"influxdb"`
	Logging    LoggingConfig   `yaml:"logging"`
	Provider   ProviderConfig  `yaml:"provider"`
	Pairing    PairingConfig   `yaml:"pairing"`
	DataPoints DataPointConfig `yaml:"datapoints"`
	Security   SecurityConfig  `yaml:"security"`
}

// HomeConfig identifies the vendor home that new devices are bound to.
type HomeConfig struct {
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for DP telemetry.
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
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ProviderConfig describes how the core reaches the vendor provider bridge.
type ProviderConfig struct {
	// TopicPrefix is the MQTT namespace shared with the bridge.
	TopicPrefix string `yaml:"topic_prefix"`

	// RequestTimeoutMS bounds a single request/response exchange when the
	// caller's context carries no deadline of its own.
	RequestTimeoutMS int `yaml:"request_timeout_ms"`

	Bridge BridgeConfig `yaml:"bridge"`
}

// BridgeConfig controls supervision of the provider bridge sidecar.
type BridgeConfig struct {
	// Managed indicates whether the core starts and supervises the bridge.
	// If false, the bridge is expected to be running externally.
	Managed bool `yaml:"managed"`

	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`
	WorkDir string   `yaml:"work_dir"`

	RestartOnFailure    bool `yaml:"restart_on_failure"`
	RestartDelaySeconds int  `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
}

// PairingConfig holds pairing windows. All values are milliseconds.
type PairingConfig struct {
	ScanTimeoutMS   int `yaml:"scan_timeout_ms"`
	BLETimeoutMS    int `yaml:"ble_timeout_ms"`
	ComboTimeoutMS  int `yaml:"combo_timeout_ms"`
	WifiEzTimeoutMS int `yaml:"wifi_ez_timeout_ms"`

	// CancelledTTLMS is how long late events for a cancelled attempt are ignored.
	CancelledTTLMS int `yaml:"cancelled_ttl_ms"`
}

// DataPointConfig locates the DP descriptor registry.
type DataPointConfig struct {
	// RegistryFile is a YAML descriptor file. Empty uses the built-in registry.
	RegistryFile string `yaml:"registry_file"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	APIKey    string          `yaml:"api_key"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// RateLimitConfig contains rate limiting settings for device commands.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern THINGLINK_SECTION_KEY,
// for example THINGLINK_DATABASE_PATH or THINGLINK_MQTT_HOST.
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
		Home: HomeConfig{
			Name: "Home",
		},
		Database: DatabaseConfig{
			Path:        "./data/thinglink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "thinglink-core",
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
		InfluxDB: InfluxDBConfig{
			Bucket:        "thinglink",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Provider: ProviderConfig{
			TopicPrefix:      "thinglink/provider",
			RequestTimeoutMS: 15000,
			Bridge: BridgeConfig{
				RestartOnFailure:    true,
				RestartDelaySeconds: 5,
				MaxRestartAttempts:  10,
			},
		},
		Pairing: PairingConfig{
			ScanTimeoutMS:   30000,
			BLETimeoutMS:    100000,
			ComboTimeoutMS:  120000,
			WifiEzTimeoutMS: 120000,
			CancelledTTLMS:  300000,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
			},
		},
	}
}

// applyEnvOverrides applies THINGLINK_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("THINGLINK_HOME_ID"); v != "" {
		cfg.Home.ID = v
	}

	if v := os.Getenv("THINGLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("THINGLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("THINGLINK_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("THINGLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("THINGLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("THINGLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("THINGLINK_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("THINGLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("THINGLINK_PROVIDER_BRIDGE_BINARY"); v != "" {
		cfg.Provider.Bridge.Binary = v
	}

	// Secrets belong in the environment, not the file.
	if v := os.Getenv("THINGLINK_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("THINGLINK_API_KEY"); v != "" {
		cfg.Security.APIKey = v
	}
}

// minJWTSecretLength is the shortest HS256 secret accepted.
const minJWTSecretLength = 32

// Validate checks the configuration for errors and collects all of them.
func (c *Config) Validate() error {
	var errs []string

	if c.Home.ID == "" {
		errs = append(errs, "home.id is required (set THINGLINK_HOME_ID environment variable)")
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

	if c.Provider.TopicPrefix == "" {
		errs = append(errs, "provider.topic_prefix is required")
	} else if strings.ContainsAny(c.Provider.TopicPrefix, "+#") {
		errs = append(errs, "provider.topic_prefix must not contain MQTT wildcards")
	}
	if c.Provider.RequestTimeoutMS <= 0 {
		errs = append(errs, "provider.request_timeout_ms must be positive")
	}
	if c.Provider.Bridge.Managed && c.Provider.Bridge.Binary == "" {
		errs = append(errs, "provider.bridge.binary is required when the bridge is managed")
	}

	for name, v := range map[string]int{
		"pairing.scan_timeout_ms":    c.Pairing.ScanTimeoutMS,
		"pairing.ble_timeout_ms":     c.Pairing.BLETimeoutMS,
		"pairing.combo_timeout_ms":   c.Pairing.ComboTimeoutMS,
		"pairing.wifi_ez_timeout_ms": c.Pairing.WifiEzTimeoutMS,
	} {
		if v <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set THINGLINK_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be positive when enabled")
	}

	if len(errs) > 0 {
		// Map iteration above is unordered; keep the message stable.
		sort.Strings(errs)
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ScanTimeout returns the default discovery window.
func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.Pairing.ScanTimeoutMS) * time.Millisecond
}

// CancelledTTL returns how long cancelled attempts stay tombstoned.
func (c *Config) CancelledTTL() time.Duration {
	return time.Duration(c.Pairing.CancelledTTLMS) * time.Millisecond
}

// RequestTimeout returns the provider request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Provider.RequestTimeoutMS) * time.Millisecond
}
