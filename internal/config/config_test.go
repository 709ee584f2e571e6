package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cartd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, "bolt", cfg.Storage.Backend)
	assert.Equal(t, "cart", cfg.Cart.SlotKey)
	assert.Equal(t, "X-Session-ID", cfg.Cart.SessionHeader)
	assert.Equal(t, DefaultShippingRule, cfg.Shipping.Rule)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
http:
  port: "9090"
  request_timeout: 5s
storage:
  backend: redis
  redis_addr: redis:6379
  redis_prefix: "shop:"
cart:
  slot_key: basket
  watch: true
api:
  base_url: https://shop.example.com/api
  timeout: 2s
kafka:
  enabled: true
  brokers: [kafka-1:9092, kafka-2:9092]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "shop:", cfg.Storage.RedisPrefix)
	assert.Equal(t, "basket", cfg.Cart.SlotKey)
	assert.True(t, cfg.Cart.Watch)
	assert.Equal(t, 2*time.Second, cfg.API.Timeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "checkout-outbox", cfg.Kafka.Topic)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: file\n  path: /var/lib/cart\n")
	t.Setenv("CART_STORAGE_BACKEND", "sqlite")
	t.Setenv("CART_STORAGE_PATH", "/tmp/cart.sqlite")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("CART_WATCH", "true")
	t.Setenv("HTTP_PORT", "7000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/cart.sqlite", cfg.Storage.Path)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Cart.Watch)
	assert.Equal(t, "7000", cfg.HTTP.Port)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "http: [unterminated"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "storage:\n  backend: floppy\ncart:\n  slot_key: \"\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floppy")
	assert.Contains(t, err.Error(), "slot_key")
}

func TestValidate_KafkaNeedsBrokers(t *testing.T) {
	cfg := Default()
	cfg.Kafka.Enabled = true
	cfg.Kafka.Brokers = nil

	assert.Error(t, cfg.Validate())
}
