// Package config loads service configuration from a .env file and the
// environment. Environment variables win over the .env file, which wins
// over defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Kafka struct {
	Brokers         []string
	OrdersTopic     string
	ExecutionsTopic string
	GroupID         string
}

type Verify struct {
	URL     string
	Timeout time.Duration
}

type Config struct {
	ServicePort       string
	Kafka             Kafka
	Verify            Verify
	OutboxDir         string
	BroadcastInterval time.Duration
}

func Default() Config {
	return Config{
		ServicePort: "3000",
		Kafka: Kafka{
			Brokers:         []string{"localhost:9092"},
			OrdersTopic:     "orders",
			ExecutionsTopic: "executions",
			GroupID:         "opinion-trade-orderbook",
		},
		Verify: Verify{
			URL:     "http://localhost:4000",
			Timeout: 5 * time.Second,
		},
		OutboxDir:         "./outbox_data",
		BroadcastInterval: 250 * time.Millisecond,
	}
}

// LoadFromEnv loads .env (optional) and applies environment overrides.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if port := os.Getenv("SERVICE_PORT"); port != "" {
		cfg.ServicePort = port
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if topic := os.Getenv("ORDERS_TOPIC"); topic != "" {
		cfg.Kafka.OrdersTopic = topic
	}
	if topic := os.Getenv("EXECUTIONS_TOPIC"); topic != "" {
		cfg.Kafka.ExecutionsTopic = topic
	}
	if group := os.Getenv("KAFKA_GROUP_ID"); group != "" {
		cfg.Kafka.GroupID = group
	}
	if url := os.Getenv("VERIFY_URL"); url != "" {
		cfg.Verify.URL = url
	}
	if timeout := os.Getenv("VERIFY_TIMEOUT_MS"); timeout != "" {
		if ms, err := strconv.Atoi(timeout); err == nil && ms > 0 {
			cfg.Verify.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	if dir := os.Getenv("OUTBOX_DIR"); dir != "" {
		cfg.OutboxDir = dir
	}
	if interval := os.Getenv("BROADCAST_INTERVAL_MS"); interval != "" {
		if ms, err := strconv.Atoi(interval); err == nil && ms > 0 {
			cfg.BroadcastInterval = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}
