package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Log           LogConfig           `mapstructure:"log"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Collaborators CollaboratorsConfig `mapstructure:"collaborators"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Ops           OpsConfig           `mapstructure:"ops"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// URL returns the database connection string in URL form (used by migrations).
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WebhookConfig holds inbound webhook configuration.
type WebhookConfig struct {
	// MaxBodyBytes caps the size of an inbound payload.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
	// VerifyTimeout bounds remote signature verification (PayPal).
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
	// IdempotencyBackend is "postgres" or "redis".
	IdempotencyBackend string `mapstructure:"idempotency_backend"`
	// IdempotencyTTL applies to the redis backend only; zero keeps keys forever.
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	// InsecureSkipVerify is honored only in builds tagged webhooktest.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`

	Click       SharedSecretConfig `mapstructure:"click"`
	Alipay      AlipayConfig       `mapstructure:"alipay"`
	PayPal      PayPalConfig       `mapstructure:"paypal"`
	PayFort     PayFortConfig      `mapstructure:"payfort"`
	TwoCheckout SharedSecretConfig `mapstructure:"twocheckout"`
}

// SharedSecretConfig holds an HMAC shared secret for a provider.
type SharedSecretConfig struct {
	Secret string `mapstructure:"secret"`
}

// AlipayConfig holds Alipay webhook configuration.
type AlipayConfig struct {
	Secret          string `mapstructure:"secret"`            // HMAC shared secret
	AlipayPublicKey string `mapstructure:"alipay_public_key"` // RSA2 public key (PEM); takes precedence over Secret
}

// PayPalConfig holds PayPal webhook verification configuration.
type PayPalConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	WebhookID    string `mapstructure:"webhook_id"`
	BaseURL      string `mapstructure:"base_url"`
}

// PayFortConfig holds PayFort signature phrases.
type PayFortConfig struct {
	RequestPhrase  string `mapstructure:"request_phrase"`
	ResponsePhrase string `mapstructure:"response_phrase"`
}

// RetryConfig holds retry scheduler configuration.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Lease          time.Duration `mapstructure:"lease"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
}

// CollaboratorsConfig holds downstream collaborator endpoints.
type CollaboratorsConfig struct {
	OrderBaseURL        string        `mapstructure:"order_base_url"`
	NotificationBaseURL string        `mapstructure:"notification_base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	FailureThreshold    uint32        `mapstructure:"failure_threshold"`
	CircuitTimeout      time.Duration `mapstructure:"circuit_timeout"`
}

// StorageConfig holds object storage configuration for the raw payload archive.
type StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
}

// Enabled reports whether the archive is configured.
func (c *StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

// OpsConfig holds operator API configuration.
type OpsConfig struct {
	JWTSecret      string   `mapstructure:"jwt_secret"`
	JWTIssuer      string   `mapstructure:"jwt_issuer"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/payhook")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("PAYHOOK")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applySecretEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applySecretEnv overrides sensitive values from dedicated environment variables.
func applySecretEnv(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"PAYHOOK_DB_PASSWORD", &cfg.Database.Password},
		{"PAYHOOK_REDIS_PASSWORD", &cfg.Redis.Password},
		{"PAYHOOK_CLICK_SECRET", &cfg.Webhook.Click.Secret},
		{"PAYHOOK_ALIPAY_SECRET", &cfg.Webhook.Alipay.Secret},
		{"PAYHOOK_ALIPAY_PUBLIC_KEY", &cfg.Webhook.Alipay.AlipayPublicKey},
		{"PAYHOOK_PAYPAL_CLIENT_ID", &cfg.Webhook.PayPal.ClientID},
		{"PAYHOOK_PAYPAL_CLIENT_SECRET", &cfg.Webhook.PayPal.ClientSecret},
		{"PAYHOOK_PAYPAL_WEBHOOK_ID", &cfg.Webhook.PayPal.WebhookID},
		{"PAYHOOK_PAYFORT_REQUEST_PHRASE", &cfg.Webhook.PayFort.RequestPhrase},
		{"PAYHOOK_PAYFORT_RESPONSE_PHRASE", &cfg.Webhook.PayFort.ResponsePhrase},
		{"PAYHOOK_TWOCHECKOUT_SECRET", &cfg.Webhook.TwoCheckout.Secret},
		{"PAYHOOK_STORAGE_SECRET_KEY", &cfg.Storage.SecretAccessKey},
		{"PAYHOOK_OPS_JWT_SECRET", &cfg.Ops.JWTSecret},
	}
	for _, o := range overrides {
		if value := os.Getenv(o.env); value != "" {
			*o.target = value
		}
	}
}

// Validate checks configuration invariants that would otherwise surface at request time.
func (c *Config) Validate() error {
	switch c.Webhook.IdempotencyBackend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("config: unsupported idempotency backend %q", c.Webhook.IdempotencyBackend)
	}
	if c.Webhook.IdempotencyBackend == "redis" && c.Redis.Address == "" {
		return fmt.Errorf("config: redis idempotency backend requires redis.address")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("config: retry.max_attempts must be positive")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "payhook")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Webhook defaults
	v.SetDefault("webhook.max_body_bytes", 1<<20)
	v.SetDefault("webhook.verify_timeout", 5*time.Second)
	v.SetDefault("webhook.idempotency_backend", "postgres")
	v.SetDefault("webhook.idempotency_ttl", 0)
	v.SetDefault("webhook.paypal.base_url", "https://api-m.paypal.com")

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", 10*time.Second)
	v.SetDefault("retry.attempt_timeout", 5*time.Second)
	v.SetDefault("retry.poll_interval", 2*time.Second)
	v.SetDefault("retry.lease", time.Minute)
	v.SetDefault("retry.batch_size", 50)
	v.SetDefault("retry.max_concurrent", 10)

	// Collaborator defaults
	v.SetDefault("collaborators.timeout", 3*time.Second)
	v.SetDefault("collaborators.failure_threshold", 5)
	v.SetDefault("collaborators.circuit_timeout", 30*time.Second)

	// Ops defaults
	v.SetDefault("ops.jwt_issuer", "payhook-ops")
}
