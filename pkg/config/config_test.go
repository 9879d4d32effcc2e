package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSecret = "a-jwt-secret-that-is-long-enough-to-pass"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", validSecret)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, 14*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5, cfg.MaxConcurrent)
	assert.Equal(t, 2, cfg.WorkerConcurrency)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadYAMLFileThenEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":8080"
jwt_secret: `+validSecret+`
max_concurrent: 3
llm_model: "openai/gpt-4o-mini"
`), 0o600))

	t.Setenv("LISTEN_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	// The environment overrides the file; the file overrides defaults.
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 3, cfg.MaxConcurrent)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.LLMModel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"short jwt secret", func(c *Config) { c.JWTSecret = "short" }, false},
		{"encryption key not hex", func(c *Config) { c.EncryptionKeyHex = "zz" }, false},
		{"encryption key wrong length", func(c *Config) { c.EncryptionKeyHex = "deadbeef" }, false},
		{"encryption key valid", func(c *Config) {
			c.EncryptionKeyHex = "000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f"
		}, true},
		{"zero max concurrent", func(c *Config) { c.MaxConcurrent = 0 }, false},
		{"zero worker concurrency", func(c *Config) { c.WorkerConcurrency = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.JWTSecret = validSecret
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEncryptionKey(t *testing.T) {
	cfg := Defaults()
	assert.Nil(t, cfg.EncryptionKey())

	cfg.EncryptionKeyHex = "000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f"
	key := cfg.EncryptionKey()
	require.Len(t, key, 32)
	assert.Equal(t, byte(0x0f), key[15])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
