// Package config содержит логику чтения конфигурации витрины веб-агентства.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Поддерживаемые хранилища сессий оформления.
const (
	SessionBackendRedis    = "redis"
	SessionBackendDynamoDB = "dynamodb"
)

// Поддерживаемые платёжные провайдеры.
const (
	PaymentProviderHTTP        = "http"
	PaymentProviderMercadoPago = "mercadopago"
)

// Config содержит параметры конфигурации витрины.
type Config struct {
	RunAddress     string `env:"RUN_ADDRESS"`
	DatabaseURI    string `env:"DATABASE_URI"`
	GatewayAddress string `env:"GATEWAY_ADDRESS"`
	RedisAddress   string `env:"REDIS_ADDRESS"`

	RedisPassword string `env:"REDIS_PASSWORD"`
	JWTSecret     string `env:"JWT_SECRET"`

	PaymentProvider     string        `env:"PAYMENT_PROVIDER" envDefault:"http"`
	CallbackSecret      string        `env:"CALLBACK_SECRET"`
	GatewayAPIKey       string        `env:"GATEWAY_API_KEY"`
	GatewayPrivateKey   string        `env:"GATEWAY_PRIVATE_KEY"`
	GatewayMerchantCode string        `env:"GATEWAY_MERCHANT_CODE"`
	GatewayMethod       string        `env:"GATEWAY_METHOD"`
	PaymentTTL          time.Duration `env:"PAYMENT_TTL" envDefault:"24h"`
	MercadoPagoToken    string        `env:"MERCADOPAGO_ACCESS_TOKEN"`
	MercadoPagoSandbox  bool          `env:"MERCADOPAGO_SANDBOX"`
	Currency            string        `env:"CURRENCY" envDefault:"IDR"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`

	SessionBackend string        `env:"SESSION_BACKEND" envDefault:"redis"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	DynamoTable    string        `env:"DYNAMODB_TABLE" envDefault:"checkout_sessions"`
	DynamoEndpoint string        `env:"DYNAMODB_ENDPOINT"`
	AWSRegion      string        `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSAccessKey   string        `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string        `env:"AWS_SECRET_ACCESS_KEY"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"orders"`

	AdminLogins   []string `env:"ADMIN_LOGINS" envSeparator:","`
	PublicBaseURL string   `env:"PUBLIC_BASE_URL"`
	FrontendURL   string   `env:"FRONTEND_URL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayAddress := cfg.GatewayAddress
	envRedisAddress := cfg.RedisAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.GatewayAddress, "g", "", "payment gateway address")
	flag.StringVar(&cfg.RedisAddress, "s", "localhost:6379", "redis address for checkout sessions")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayAddress != "" {
		cfg.GatewayAddress = envGatewayAddress
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://" + cfg.RunAddress
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SessionBackend {
	case SessionBackendRedis, SessionBackendDynamoDB:
	default:
		return fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}

	switch c.PaymentProvider {
	case PaymentProviderHTTP, PaymentProviderMercadoPago:
	default:
		return fmt.Errorf("unknown payment provider %q", c.PaymentProvider)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}

	return nil
}
