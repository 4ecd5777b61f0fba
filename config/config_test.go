package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "3000", cfg.ServicePort)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "orders", cfg.Kafka.OrdersTopic)
	assert.Equal(t, "executions", cfg.Kafka.ExecutionsTopic)
	assert.Equal(t, 5*time.Second, cfg.Verify.Timeout)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVICE_PORT", "8080")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ORDERS_TOPIC", "in")
	t.Setenv("EXECUTIONS_TOPIC", "out")
	t.Setenv("KAFKA_GROUP_ID", "g1")
	t.Setenv("VERIFY_URL", "http://verify:4000")
	t.Setenv("VERIFY_TIMEOUT_MS", "1500")
	t.Setenv("OUTBOX_DIR", "/tmp/box")
	t.Setenv("BROADCAST_INTERVAL_MS", "100")

	cfg := LoadFromEnv("")

	assert.Equal(t, "8080", cfg.ServicePort)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "in", cfg.Kafka.OrdersTopic)
	assert.Equal(t, "out", cfg.Kafka.ExecutionsTopic)
	assert.Equal(t, "g1", cfg.Kafka.GroupID)
	assert.Equal(t, "http://verify:4000", cfg.Verify.URL)
	assert.Equal(t, 1500*time.Millisecond, cfg.Verify.Timeout)
	assert.Equal(t, "/tmp/box", cfg.OutboxDir)
	assert.Equal(t, 100*time.Millisecond, cfg.BroadcastInterval)
}

func TestBadNumbersKeepDefaults(t *testing.T) {
	t.Setenv("VERIFY_TIMEOUT_MS", "not-a-number")
	t.Setenv("BROADCAST_INTERVAL_MS", "-5")

	cfg := LoadFromEnv("")

	assert.Equal(t, Default().Verify.Timeout, cfg.Verify.Timeout)
	assert.Equal(t, Default().BroadcastInterval, cfg.BroadcastInterval)
}
