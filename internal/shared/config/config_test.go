package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "postgres", cfg.Webhook.IdempotencyBackend)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.False(t, cfg.Storage.Enabled())
}

func TestLoad_SecretEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PAYHOOK_CLICK_SECRET", "click-secret")
	t.Setenv("PAYHOOK_PAYFORT_RESPONSE_PHRASE", "resp-phrase")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "click-secret", cfg.Webhook.Click.Secret)
	assert.Equal(t, "resp-phrase", cfg.Webhook.PayFort.ResponsePhrase)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("rejects unknown idempotency backend", func(t *testing.T) {
		cfg := &Config{Webhook: WebhookConfig{IdempotencyBackend: "memory"}, Retry: RetryConfig{MaxAttempts: 3}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("redis backend requires an address", func(t *testing.T) {
		cfg := &Config{Webhook: WebhookConfig{IdempotencyBackend: "redis"}, Retry: RetryConfig{MaxAttempts: 3}}
		assert.Error(t, cfg.Validate())

		cfg.Redis.Address = "localhost:6379"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects non-positive retry attempts", func(t *testing.T) {
		cfg := &Config{Webhook: WebhookConfig{IdempotencyBackend: "postgres"}}
		assert.Error(t, cfg.Validate())
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Database: "payhook", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u dbname=payhook sslmode=disable", cfg.DSN())

	cfg.Password = "p"
	assert.Contains(t, cfg.DSN(), "password=p")
	assert.Equal(t, "postgres://u:p@db:5432/payhook?sslmode=disable", cfg.URL())
}
