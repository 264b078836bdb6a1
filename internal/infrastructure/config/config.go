package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for pubsubd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Broker        BrokerConfig       `yaml:"broker"`
	Auth          AuthConfig         `yaml:"auth"`
	Subscriptions SubscriptionConfig `yaml:"subscriptions"`
	Trust         TrustConfig        `yaml:"trust"`
	API           APIConfig          `yaml:"api"`
	WebSocket     WebSocketConfig    `yaml:"websocket"`
	Journal       JournalConfig      `yaml:"journal"`
	InfluxDB      InfluxDBConfig     `yaml:"influxdb"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// BrokerConfig contains broker connection settings.
type BrokerConfig struct {
	// Address is the broker URL. Scheme must be ws, wss, http or https.
	Address string `yaml:"address"`

	// Namespace scopes every topic on the broker (the message VPN).
	Namespace string `yaml:"namespace"`

	// ClientIDPrefix is combined with a random suffix per connection.
	ClientIDPrefix string `yaml:"client_id_prefix"`

	// ConnectTimeout bounds one transport open (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// KeepAlive is the MQTT keepalive interval (seconds).
	KeepAlive int `yaml:"keep_alive"`

	// ConnectOnStart makes the daemon connect as soon as it is up.
	ConnectOnStart bool `yaml:"connect_on_start"`
}

// AuthConfig contains broker credentials.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SubscriptionConfig contains the initial topic set and acknowledgment timing.
type SubscriptionConfig struct {
	Topics          []string `yaml:"topics"`
	TimeoutMS       int      `yaml:"timeout_ms"`
	SweepIntervalMS int      `yaml:"sweep_interval_ms"`
	QoS             int      `yaml:"qos"`
}

// TrustConfig controls certificate provisioning for secure broker addresses.
type TrustConfig struct {
	// CheckPath is fetched over HTTPS from the broker host before connecting.
	CheckPath string `yaml:"check_path"`

	// CAFile optionally adds a PEM bundle to the system roots.
	CAFile string `yaml:"ca_file"`

	// Timeout bounds the check (seconds).
	Timeout int `yaml:"timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APIAuthConfig controls bearer-token authentication of the HTTP API and
// WebSocket relay.
type APIAuthConfig struct {
	Enabled bool `yaml:"enabled"`

	// JWTSecret signs and verifies HS256 tokens. At least 32 characters;
	// prefer PUBSUB_API_JWT_SECRET over the file.
	JWTSecret string `yaml:"jwt_secret"`

	// Issuer is written to minted tokens and required on presented ones.
	Issuer string `yaml:"issuer"`

	// TokenTTL is the lifetime of tokens minted by "pubsubd token" (minutes).
	TokenTTL int `yaml:"token_ttl"`
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

// WebSocketConfig contains WebSocket relay settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// JournalConfig contains SQLite lifecycle journal settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PUBSUB_SECTION_KEY
// For example: PUBSUB_BROKER_ADDRESS, PUBSUB_AUTH_PASSWORD
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			ClientIDPrefix: "pubsubd",
			ConnectTimeout: 30,
			KeepAlive:      60,
			ConnectOnStart: true,
		},
		Subscriptions: SubscriptionConfig{
			TimeoutMS:       10000,
			SweepIntervalMS: 1000,
			QoS:             1,
		},
		Trust: TrustConfig{
			CheckPath: "/crossdomain.xml",
			Timeout:   10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Auth: APIAuthConfig{
				Issuer:   "pubsubd",
				TokenTTL: 60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Journal: JournalConfig{
			Enabled:     true,
			Path:        "./data/pubsubd.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PUBSUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("PUBSUB_BROKER_ADDRESS"); v != "" {
		cfg.Broker.Address = v
	}
	if v := os.Getenv("PUBSUB_BROKER_NAMESPACE"); v != "" {
		cfg.Broker.Namespace = v
	}

	// Credentials belong in the environment, not the file.
	if v := os.Getenv("PUBSUB_AUTH_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("PUBSUB_AUTH_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}

	if v := os.Getenv("PUBSUB_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	if v := os.Getenv("PUBSUB_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("PUBSUB_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}

	if v := os.Getenv("PUBSUB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Broker address scheme and credential checks are repeated by the client on
// every Connect; here they only catch a daemon that could never connect.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Broker.Address == "" {
		errs = append(errs, "broker.address is required")
	}
	if c.Broker.Namespace == "" {
		errs = append(errs, "broker.namespace is required")
	}
	if c.Auth.Username == "" {
		errs = append(errs, "auth.username is required (set PUBSUB_AUTH_USERNAME)")
	}
	if c.Auth.Password == "" {
		errs = append(errs, "auth.password is required (set PUBSUB_AUTH_PASSWORD)")
	}

	if c.Subscriptions.QoS < 0 || c.Subscriptions.QoS > 2 {
		errs = append(errs, "subscriptions.qos must be 0, 1, or 2")
	}
	if c.Subscriptions.TimeoutMS <= 0 {
		errs = append(errs, "subscriptions.timeout_ms must be positive")
	}
	if c.Subscriptions.SweepIntervalMS <= 0 {
		errs = append(errs, "subscriptions.sweep_interval_ms must be positive")
	}
	for i, topic := range c.Subscriptions.Topics {
		if topic == "" {
			errs = append(errs, fmt.Sprintf("subscriptions.topics[%d] is empty", i))
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Auth.Enabled {
		const minJWTSecretLength = 32
		if c.API.Auth.JWTSecret == "" {
			errs = append(errs, "api.auth.jwt_secret is required when auth is enabled (set PUBSUB_API_JWT_SECRET)")
		} else if len(c.API.Auth.JWTSecret) < minJWTSecretLength {
			errs = append(errs, "api.auth.jwt_secret must be at least 32 characters")
		}
		if c.API.Auth.TokenTTL <= 0 {
			errs = append(errs, "api.auth.token_ttl must be positive")
		}
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
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

// SubscribeTimeout returns the acknowledgment timeout as a Duration.
func (c *Config) SubscribeTimeout() time.Duration {
	return time.Duration(c.Subscriptions.TimeoutMS) * time.Millisecond
}

// TokenTTL returns the lifetime of minted API tokens as a Duration.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.API.Auth.TokenTTL) * time.Minute
}

// SweepInterval returns the pending-operation sweep interval as a Duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Subscriptions.SweepIntervalMS) * time.Millisecond
}
