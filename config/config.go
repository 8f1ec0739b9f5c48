package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// AppName is reported by the introspection endpoints.
const AppName = "Botte BE"

// Environment selects the production or test variant of the settings.
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentTest       Environment = "test"
)

// Config holds the application configuration
type Config struct {
	Environment Environment     `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Queue       QueueConfig     `mapstructure:"queue"`
	Client      ClientConfig    `mapstructure:"client"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RequestsPerSecond and Burst limit the message endpoints.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the delivery guard connection. An empty Addr disables it.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// TelegramConfig holds the bot API configuration
type TelegramConfig struct {
	Token             string        `mapstructure:"token"`
	TokenFile         string        `mapstructure:"token_file"`
	TokenCacheTTL     time.Duration `mapstructure:"token_cache_ttl"`
	ChatID            string        `mapstructure:"chat_id"`
	APIBaseURL        string        `mapstructure:"api_base_url"`
	WebhookURL        string        `mapstructure:"webhook_url"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialBackoffMs  int           `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int           `mapstructure:"max_backoff_ms"`
	Timeout           time.Duration `mapstructure:"timeout"`
	// BreakerFailures consecutive send failures open the circuit for
	// BreakerResetTimeout. Zero disables the breaker.
	BreakerFailures     int           `mapstructure:"breaker_failures"`
	BreakerResetTimeout time.Duration `mapstructure:"breaker_reset_timeout"`
}

// AuthConfig holds the API authorizer configuration
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token_file"`
}

// QueueConfig holds the task table and change stream configuration
type QueueConfig struct {
	ConsumerName    string        `mapstructure:"consumer_name"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchWindow     time.Duration `mapstructure:"batch_window"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	EventNames      []string      `mapstructure:"event_names"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	StreamRetention time.Duration `mapstructure:"stream_retention"`
}

// ClientConfig holds the settings used by the CLI clients
type ClientConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	SenderApp string `mapstructure:"sender_app"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// IsTest reports whether the test variant is active.
func (c *Config) IsTest() bool {
	return c.Environment == EnvironmentTest
}

// TelegramToken returns the secret source of the bot token.
func (c *Config) TelegramToken() *SecretSource {
	return NewSecretSource(c.Telegram.Token, c.Telegram.TokenFile, c.Telegram.TokenCacheTTL)
}

// AuthToken returns the secret source of the API authorizer token.
func (c *Config) AuthToken() *SecretSource {
	return NewSecretSource(c.Auth.Token, c.Auth.TokenFile, c.Telegram.TokenCacheTTL)
}

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := loadEnvFile(); err != nil {
		// .env is optional
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.SetEnvPrefix("BOTTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Environment {
	case EnvironmentProduction, EnvironmentTest:
	default:
		return fmt.Errorf("invalid environment %q: use %q or %q", c.Environment, EnvironmentProduction, EnvironmentTest)
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive: %d", c.Queue.BatchSize)
	}
	if c.Telegram.RequestsPerSecond <= 0 {
		return fmt.Errorf("telegram.requests_per_second must be positive: %d", c.Telegram.RequestsPerSecond)
	}
	return nil
}

// loadEnvFile loads the first .env file found
func loadEnvFile() error {
	for _, path := range []string{".", "./config"} {
		envFile := fmt.Sprintf("%s/.env", path)
		if _, err := os.Stat(envFile); err == nil {
			return loadDotEnvFile(envFile)
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads a .env file and sets environment variables that are
// not already set
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// bindEnvVars binds the conventional unprefixed variables
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", "BOTTE_DATABASE_URL", "DATABASE_URL")
	v.BindEnv("redis.addr", "BOTTE_REDIS_ADDR", "REDIS_ADDR")

	v.BindEnv("server.port", "BOTTE_SERVER_PORT", "PORT")
	v.BindEnv("server.host", "BOTTE_SERVER_HOST", "HOST")

	v.BindEnv("telegram.token", "BOTTE_TELEGRAM_TOKEN", "TELEGRAM_TOKEN")
	v.BindEnv("telegram.chat_id", "BOTTE_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")
	v.BindEnv("auth.token", "BOTTE_AUTH_TOKEN", "API_AUTHORIZER_TOKEN")

	v.BindEnv("logging.level", "BOTTE_LOGGING_LEVEL", "LOG_LEVEL")
	v.BindEnv("environment", "BOTTE_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("telemetry.endpoint", "BOTTE_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", string(EnvironmentProduction))

	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.requests_per_second", 5)
	v.SetDefault("server.burst", 20)

	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 1)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "botte:delivered:")

	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")
	v.SetDefault("telegram.token_cache_ttl", 60*time.Second)
	v.SetDefault("telegram.requests_per_second", 1)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.initial_backoff_ms", 500)
	v.SetDefault("telegram.max_backoff_ms", 30000)
	v.SetDefault("telegram.timeout", 10*time.Second)
	v.SetDefault("telegram.breaker_failures", 5)
	v.SetDefault("telegram.breaker_reset_timeout", 30*time.Second)

	v.SetDefault("auth.enabled", true)

	v.SetDefault("queue.consumer_name", "botte-relay")
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.batch_window", 500*time.Millisecond)
	v.SetDefault("queue.poll_interval", 30*time.Second)
	v.SetDefault("queue.event_names", []string{"INSERT"})
	v.SetDefault("queue.sweep_interval", 5*time.Minute)
	v.SetDefault("queue.stream_retention", 24*time.Hour)

	v.SetDefault("client.base_url", "http://localhost:3000")
	v.SetDefault("client.sender_app", "BOTTE_CLI")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "opentelemetry-collector:4317")
}
