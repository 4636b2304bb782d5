package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Storage      StorageConfig      `yaml:"storage" envconfig:"STORAGE"`
	SessionStore SessionStoreConfig `yaml:"session_store" envconfig:"SESSION_STORE"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	Auth         AuthConfig         `yaml:"auth" envconfig:"AUTH"`
	Notifier     NotifierConfig     `yaml:"notifier" envconfig:"NOTIFIER"`
	Security     SecurityConfig     `yaml:"security" envconfig:"SECURITY"`
	CORS         CORSConfig         `yaml:"cors" envconfig:"CORS"`
	Audit        AuditConfig        `yaml:"audit" envconfig:"AUDIT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"HOST"`
	Port int    `yaml:"port" envconfig:"PORT"`
}

// StorageConfig contains storage configuration
type StorageConfig struct {
	Type    string        `yaml:"type" envconfig:"TYPE"` // memory, mongodb
	MongoDB MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Timeout  int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// SessionStoreConfig selects where admin sessions live.
// An empty type keeps sessions in the main storage backend.
type SessionStoreConfig struct {
	Type  string      `yaml:"type" envconfig:"TYPE"` // "", memory, redis
	Redis RedisConfig `yaml:"redis" envconfig:"REDIS"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Address   string `yaml:"address" envconfig:"ADDRESS"`
	Password  string `yaml:"password" envconfig:"PASSWORD"`
	DB        int    `yaml:"db" envconfig:"DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// AuthConfig contains admin authentication settings
type AuthConfig struct {
	KeyTTLSeconds   int `yaml:"key_ttl_seconds" envconfig:"KEY_TTL_SECONDS"`
	CodeTTLSeconds  int `yaml:"code_ttl_seconds" envconfig:"CODE_TTL_SECONDS"`
	SessionTTLHours int `yaml:"session_ttl_hours" envconfig:"SESSION_TTL_HOURS"`

	// AdminContactMethod and AdminContactValue name the pre-configured channel
	// that receives two-factor codes. Requesters never choose it.
	AdminContactMethod string `yaml:"admin_contact_method" envconfig:"ADMIN_CONTACT_METHOD"`
	AdminContactValue  string `yaml:"admin_contact_value" envconfig:"ADMIN_CONTACT_VALUE"`
}

// KeyTTL returns the lifetime of an issued admin key
func (c AuthConfig) KeyTTL() time.Duration {
	return time.Duration(c.KeyTTLSeconds) * time.Second
}

// CodeTTL returns the lifetime of a two-factor code
func (c AuthConfig) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLSeconds) * time.Second
}

// SessionTTL returns the lifetime of an admin session
func (c AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// NotifierConfig configures the out-of-band delivery channel
type NotifierConfig struct {
	Type           string `yaml:"type" envconfig:"TYPE"` // log, webhook
	WebhookURL     string `yaml:"webhook_url" envconfig:"WEBHOOK_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
}

// SecurityConfig groups abuse protections and background hygiene
type SecurityConfig struct {
	AuthRateLimit  AuthRateLimitConfig  `yaml:"auth_rate_limit" envconfig:"AUTH_RATE_LIMIT"`
	SessionCleanup SessionCleanupConfig `yaml:"session_cleanup" envconfig:"SESSION_CLEANUP"`
}

// AuthRateLimitConfig limits requests to the auth endpoint per client IP
type AuthRateLimitConfig struct {
	Enabled        bool `yaml:"enabled" envconfig:"ENABLED"`
	MaxAttempts    int  `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	WindowSeconds  int  `yaml:"window_seconds" envconfig:"WINDOW_SECONDS"`
	LockoutSeconds int  `yaml:"lockout_seconds" envconfig:"LOCKOUT_SECONDS"`
}

// SetDefaults fills zero values
func (c *AuthRateLimitConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	if c.LockoutSeconds <= 0 {
		c.LockoutSeconds = 300
	}
}

// SessionCleanupConfig configures the expired session sweep
type SessionCleanupConfig struct {
	Enabled         bool `yaml:"enabled" envconfig:"ENABLED"`
	IntervalSeconds int  `yaml:"interval_seconds" envconfig:"INTERVAL_SECONDS"`
}

// SetDefaults fills zero values
func (c *SessionCleanupConfig) SetDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 600
	}
}

// CORSConfig contains CORS settings for the admin panel origin
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// AuditConfig configures the audit trail
type AuditConfig struct {
	Kafka KafkaConfig `yaml:"kafka" envconfig:"KAFKA"`
}

// KafkaConfig configures the Kafka audit shipper
type KafkaConfig struct {
	Enabled         bool     `yaml:"enabled" envconfig:"ENABLED"`
	Brokers         []string `yaml:"brokers" envconfig:"BROKERS"`
	Topic           string   `yaml:"topic" envconfig:"TOPIC"`
	BatchSize       int      `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	FlushIntervalMS int      `yaml:"flush_interval_ms" envconfig:"FLUSH_INTERVAL_MS"`
	QueueCapacity   int      `yaml:"queue_capacity" envconfig:"QUEUE_CAPACITY"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load from YAML file if provided (overrides defaults)
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("STOREFRONT", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Type: "memory",
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "storefront",
				Timeout:  10,
			},
		},
		SessionStore: SessionStoreConfig{
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "storefront:session:",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			KeyTTLSeconds:      300,
			CodeTTLSeconds:     600,
			SessionTTLHours:    24,
			AdminContactMethod: "email",
		},
		Notifier: NotifierConfig{
			Type:           "log",
			TimeoutSeconds: 10,
		},
		Security: SecurityConfig{
			AuthRateLimit: AuthRateLimitConfig{
				Enabled:        true,
				MaxAttempts:    10,
				WindowSeconds:  60,
				LockoutSeconds: 300,
			},
			SessionCleanup: SessionCleanupConfig{
				Enabled:         true,
				IntervalSeconds: 600,
			},
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Audit: AuditConfig{
			Kafka: KafkaConfig{
				Topic:           "storefront.admin-auth",
				BatchSize:       100,
				FlushIntervalMS: 1000,
				QueueCapacity:   1024,
			},
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Storage.Type != "memory" && c.Storage.Type != "mongodb" {
		return fmt.Errorf("invalid storage type: %s (must be memory or mongodb)", c.Storage.Type)
	}

	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb storage")
	}

	switch c.SessionStore.Type {
	case "", "memory":
	case "redis":
		if c.SessionStore.Redis.Address == "" {
			return fmt.Errorf("redis address is required when using redis session store")
		}
	default:
		return fmt.Errorf("invalid session store type: %s (must be memory or redis)", c.SessionStore.Type)
	}

	if c.Auth.KeyTTLSeconds <= 0 || c.Auth.CodeTTLSeconds <= 0 || c.Auth.SessionTTLHours <= 0 {
		return fmt.Errorf("auth ttls must be positive")
	}

	if c.Auth.AdminContactMethod != "email" && c.Auth.AdminContactMethod != "sms" {
		return fmt.Errorf("invalid admin contact method: %s (must be email or sms)", c.Auth.AdminContactMethod)
	}

	if c.Auth.AdminContactValue == "" {
		return fmt.Errorf("admin contact value is required")
	}

	switch c.Notifier.Type {
	case "log":
	case "webhook":
		if c.Notifier.WebhookURL == "" {
			return fmt.Errorf("webhook url is required when using webhook notifier")
		}
	default:
		return fmt.Errorf("invalid notifier type: %s (must be log or webhook)", c.Notifier.Type)
	}

	if c.Audit.Kafka.Enabled {
		if len(c.Audit.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when kafka audit is enabled")
		}
		if c.Audit.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when kafka audit is enabled")
		}
	}

	return nil
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
