package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the api and worker roles.
// Values come from environment variables, optionally overridden by a YAML
// file passed on the command line.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	JWTSecret        string        `yaml:"jwt_secret"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	EncryptionKeyHex string        `yaml:"encryption_key"`

	MaxConcurrent     int  `yaml:"max_concurrent"`
	WorkerConcurrency int  `yaml:"worker_concurrency"`
	TrustedProxy      bool `yaml:"trusted_proxy"`

	LLMModel       string `yaml:"llm_model"`
	VectorStoreURL string `yaml:"vector_store_url"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Defaults returns the baseline configuration before any overrides.
func Defaults() *Config {
	return &Config{
		ListenAddr:        ":3000",
		DataDir:           "./data",
		RedisAddr:         "127.0.0.1:6379",
		TokenTTL:          14 * 24 * time.Hour,
		MaxConcurrent:     5,
		WorkerConcurrency: 2,
		LLMModel:          "openai/gpt-4o",
		LogLevel:          "info",
		LogJSON:           true,
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.DataDir, "DATA_DIR")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setInt(&c.RedisDB, "REDIS_DB")
	setString(&c.JWTSecret, "JWT_SECRET")
	setDuration(&c.TokenTTL, "TOKEN_TTL")
	setString(&c.EncryptionKeyHex, "ENCRYPTION_KEY")
	setInt(&c.MaxConcurrent, "MAX_CONCURRENT_GENERATIONS")
	setInt(&c.WorkerConcurrency, "WORKER_CONCURRENCY")
	setBool(&c.TrustedProxy, "TRUSTED_PROXY")
	setString(&c.LLMModel, "LLM_MODEL")
	setString(&c.VectorStoreURL, "VECTOR_STORE_URL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setBool(&c.LogJSON, "LOG_JSON")
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
	}
	if c.EncryptionKeyHex != "" {
		key, err := hex.DecodeString(c.EncryptionKeyHex)
		if err != nil {
			return fmt.Errorf("ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
		}
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("MAX_CONCURRENT_GENERATIONS must be at least 1")
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	return nil
}

// EncryptionKey returns the raw 32-byte key, or nil when the key should be
// derived from the JWT secret instead.
func (c *Config) EncryptionKey() []byte {
	if c.EncryptionKeyHex == "" {
		return nil
	}
	key, err := hex.DecodeString(c.EncryptionKeyHex)
	if err != nil {
		return nil
	}
	return key
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
