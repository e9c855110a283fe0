package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load("../../cmd/indexer/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "0x4e3fbd56cd56c3e72c1403e103b45db9da5b9d2b", cfg.Protocol.TokenAddress)
	assert.Equal(t, RateFallbackZero, cfg.Oracle.Fallback)
	assert.Equal(t, time.Minute, cfg.Oracle.RateTTL)
	assert.Equal(t, int32(18), cfg.Oracle.Tokens["0x4e3fbd56cd56c3e72c1403e103b45db9da5b9d2b"].Decimals)
	assert.Equal(t, "locker.events", cfg.PubSub.NATS.IngestSubject)
	assert.Equal(t, 500*time.Millisecond, cfg.Stores.ClickHouse.Writer.BatchMaxInterval)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
protocol:
  token_address: "0x4e3fbd56cd56c3e72c1403e103b45db9da5b9d2b"
stores:
  driver: memory
pubsub:
  nats:
    url: nats://127.0.0.1:4222
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "static", cfg.Oracle.Driver)
	assert.Equal(t, RateFallbackZero, cfg.Oracle.Fallback)
	assert.Equal(t, "LOCKER_EVENTS", cfg.PubSub.NATS.Stream)
	assert.Equal(t, "movements", cfg.Stores.ClickHouse.Table)
	assert.Equal(t, ":8080", cfg.API.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.App.ShutdownTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeConfig(t, `
oracle:
  driver: http
  fallback: maybe
stores:
  driver: redis
`)

	_, err := Load(path)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "protocol.token_address is required")
	assert.Contains(t, msg, "oracle.fallback must be zero|fail")
	assert.Contains(t, msg, "oracle.base_url is required")
	assert.Contains(t, msg, "stores.redis.addr is required")
	assert.Contains(t, msg, "pubsub.nats.url is required")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
