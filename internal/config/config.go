package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	DBConn        string
	LogLevel      string
	JWTSecret     string
	EncryptionKey string

	GatewayMode    string
	GatewayURL     string
	GatewayTimeout time.Duration
	GatewayLatency time.Duration
	DeclinedCards  []string

	RedisAddr      string
	IdempotencyTTL time.Duration

	RabbitMQURL        string
	RabbitMQExchange   string
	RabbitMQRoutingKey string

	ReportSchedule  string
	ReportRecipient string
	SMTPHost        string
	SMTPPort        string
	SMTPUsername    string
	SMTPPassword    string
	SenderEmail     string
}

const (
	GatewaySimulated = "simulated"
	GatewaySOAP      = "soap"
)

// NewConfig loads configuration from environment variables, seeding them
// from a .env file in the working directory when one exists
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	gatewayTimeout, err := getDuration("GATEWAY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	gatewayLatency, err := getDuration("GATEWAY_LATENCY", time.Second)
	if err != nil {
		return nil, err
	}
	idempotencyTTL, err := getDuration("IDEMPOTENCY_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBConn:        getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=payments sslmode=disable"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		GatewayMode:    strings.ToLower(getEnv("GATEWAY_MODE", GatewaySimulated)),
		GatewayURL:     getEnv("GATEWAY_URL", ""),
		GatewayTimeout: gatewayTimeout,
		GatewayLatency: gatewayLatency,
		DeclinedCards:  splitList(getEnv("DECLINED_CARDS", "4111111111111112")),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		IdempotencyTTL: idempotencyTTL,

		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", "payments.transactions"),
		RabbitMQRoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "payments.transactions.processed"),

		ReportSchedule:  getEnv("REPORT_SCHEDULE", "0 0 * * *"),
		ReportRecipient: getEnv("REPORT_RECIPIENT", ""),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnv("SMTP_PORT", "587"),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SenderEmail:     getEnv("SENDER_EMAIL", ""),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	switch cfg.GatewayMode {
	case GatewaySimulated:
	case GatewaySOAP:
		if cfg.GatewayURL == "" {
			return nil, fmt.Errorf("GATEWAY_URL is required when GATEWAY_MODE=soap")
		}
	default:
		return nil, fmt.Errorf("unknown GATEWAY_MODE %q", cfg.GatewayMode)
	}

	return cfg, nil
}

// EmailEnabled reports whether SMTP settings are complete enough to send reports
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SenderEmail != "" && c.ReportRecipient != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
