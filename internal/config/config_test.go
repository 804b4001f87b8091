package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QR_SIGNING_SECRET", "test-secret")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8086", cfg.Server.Addr)
	assert.Equal(t, "test-secret", cfg.Token.SigningSecret)
	assert.Equal(t, DefaultTokenTTL, cfg.Token.TTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "checkin.scan.recorded", cfg.Kafka.Topics.ScanRecorded)
	assert.Equal(t, "checkin.guest.checked-in", cfg.Kafka.Topics.CheckedIn)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QR_SIGNING_SECRET", "test-secret")
	t.Setenv("PORT", ":9000")
	t.Setenv("QR_TOKEN_TTL_HOURS", "48")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("KAFKA_TOPIC_SCAN_RECORDED", "custom.scans")

	cfg := Load()

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 48*time.Hour, cfg.Token.TTL)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "custom.scans", cfg.Kafka.Topics.ScanRecorded)
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	cfg := &Config{Token: Token{SigningSecret: "", TTL: time.Hour}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveTTL(t *testing.T) {
	cfg := &Config{Token: Token{SigningSecret: "s", TTL: 0}}
	assert.Error(t, cfg.Validate())

	cfg.Token.TTL = -time.Hour
	assert.Error(t, cfg.Validate())
}
