// Package config loads runtime settings from the environment, with an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Notification transports.
const (
	TransportSQS   = "sqs"
	TransportKafka = "kafka"
	TransportNone  = "none"
)

// Config holds application configuration values.
type Config struct {
	RunLocal   bool
	ListenAddr string
	AWSRegion  string

	ProductsTable    string
	PromoCodesTable  string
	OrdersTable      string
	UsersTable       string
	IdempotencyTable string
	IdempotencyTTL   time.Duration

	NotifyTransport string
	QueueURL        string
	KafkaBrokers    []string
	KafkaTopic      string
	KafkaGroupID    string

	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration

	MetricsNamespace string
	LogFile          string
	LogLevel         string
	RequestTimeout   time.Duration
}

// Load reads environment variables (after an optional .env) and returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RunLocal:   getEnv("RUN_LOCAL", "false") == "true",
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		AWSRegion:  getEnv("AWS_REGION", ""),

		ProductsTable:    getEnv("PRODUCTS_TABLE", "products"),
		PromoCodesTable:  getEnv("PROMO_CODES_TABLE", "promo_codes"),
		OrdersTable:      getEnv("ORDERS_TABLE", "orders"),
		UsersTable:       getEnv("USERS_TABLE", "users"),
		IdempotencyTable: getEnv("IDEMPOTENCY_TABLE", "idempotency"),
		IdempotencyTTL:   getEnvDuration("IDEMPOTENCY_TTL", 48*time.Hour),

		NotifyTransport: strings.ToLower(getEnv("NOTIFY_TRANSPORT", TransportSQS)),
		QueueURL:        getEnv("ORDERS_QUEUE_URL", ""),
		KafkaBrokers:    splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "order-notifications"),
		KafkaGroupID:    getEnv("KAFKA_GROUP_ID", "storefront-notify"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SessionTTL:    getEnvDuration("SESSION_TTL", 7*24*time.Hour),

		MetricsNamespace: getEnv("METRICS_NAMESPACE", "Storefront"),
		LogFile:          getEnv("LOG_FILE", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.NotifyTransport {
	case TransportSQS:
		if c.QueueURL == "" && !c.RunLocal {
			return fmt.Errorf("ORDERS_QUEUE_URL must be set when NOTIFY_TRANSPORT=sqs")
		}
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC must be set when NOTIFY_TRANSPORT=kafka")
		}
	case TransportNone:
	default:
		return fmt.Errorf("unknown NOTIFY_TRANSPORT %q", c.NotifyTransport)
	}
	if c.RedisAddr == "" && !c.RunLocal {
		return fmt.Errorf("REDIS_ADDR must be set unless RUN_LOCAL=true")
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvDuration accepts Go durations ("36h") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
