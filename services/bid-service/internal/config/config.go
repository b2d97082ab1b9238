package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names an optional YAML file loaded before the environment
const FileEnv = "BID_CONFIG_FILE"

// Config holds the settings shared by the api and worker binaries.
// Environment variables override the YAML file, which overrides defaults.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`
	RabbitMQURL string `yaml:"rabbitmq_url"`

	Redis struct {
		Addr      string        `yaml:"addr"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		KeyPrefix string        `yaml:"key_prefix"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"redis"`

	Tx struct {
		LockTimeout    time.Duration `yaml:"lock_timeout"`
		MaxRetries     int           `yaml:"max_retries"`
		RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	} `yaml:"tx"`

	JWT struct {
		PrivateKeyPath string        `yaml:"private_key_path"`
		PublicKeyPath  string        `yaml:"public_key_path"`
		Issuer         string        `yaml:"issuer"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
	} `yaml:"jwt"`

	Outbox struct {
		BatchSize int           `yaml:"batch_size"`
		Interval  time.Duration `yaml:"interval"`
	} `yaml:"outbox"`
}

// Load reads .env.local and .env (local overrides .env), then the YAML file
// named by BID_CONFIG_FILE if set, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv(FileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{HTTPAddr: ":8080"}
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.KeyPrefix = "bidgate"
	cfg.Redis.Timeout = 100 * time.Millisecond
	cfg.Tx.LockTimeout = 3 * time.Second
	cfg.Tx.MaxRetries = 5
	cfg.Tx.RetryBaseDelay = 10 * time.Millisecond
	cfg.JWT.Issuer = "bidgate"
	cfg.JWT.TokenTTL = 15 * time.Minute
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.Interval = time.Second
	return cfg
}

func overrideWithEnv(cfg *Config) error {
	setString(&cfg.DatabaseURL, "BID_DB_URL")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.RabbitMQURL, "RABBITMQ_URL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Redis.KeyPrefix, "CACHE_KEY_PREFIX")
	setString(&cfg.JWT.PrivateKeyPath, "JWT_PRIVATE_KEY_PATH")
	setString(&cfg.JWT.PublicKeyPath, "JWT_PUBLIC_KEY_PATH")
	setString(&cfg.JWT.Issuer, "JWT_ISSUER")

	return errors.Join(
		setInt(&cfg.Redis.DB, "REDIS_DB"),
		setInt(&cfg.Tx.MaxRetries, "TX_MAX_RETRIES"),
		setInt(&cfg.Outbox.BatchSize, "OUTBOX_BATCH_SIZE"),
		setDuration(&cfg.Redis.Timeout, "CACHE_TIMEOUT"),
		setDuration(&cfg.Tx.LockTimeout, "TX_LOCK_TIMEOUT"),
		setDuration(&cfg.Tx.RetryBaseDelay, "TX_RETRY_BASE_DELAY"),
		setDuration(&cfg.JWT.TokenTTL, "JWT_TOKEN_TTL"),
		setDuration(&cfg.Outbox.Interval, "OUTBOX_INTERVAL"),
	)
}

// Validate checks the settings every binary needs
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("BID_DB_URL is not set"))
	}
	if c.Redis.Timeout <= 0 {
		errs = append(errs, errors.New("cache timeout must be positive"))
	}
	if c.Tx.MaxRetries < 0 {
		errs = append(errs, errors.New("tx max retries cannot be negative"))
	}
	if c.Tx.LockTimeout < 0 || c.Tx.RetryBaseDelay < 0 {
		errs = append(errs, errors.New("tx durations cannot be negative"))
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.Interval <= 0 {
		errs = append(errs, errors.New("outbox batch size and interval must be positive"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid int for %s: %q", key, v)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %q", key, v)
	}
	*dst = d
	return nil
}
