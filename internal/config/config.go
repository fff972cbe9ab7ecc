package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewCheckoutConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// PublicBaseURL is used to build gateway callback URLs.
	PublicBaseURL string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// RedisEnabled=false turns off the checkout rate limit and the
	// publish lock.
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthJWTSecret string
	AuthJWTIssuer string

	Gateway GatewayConfig
}

// GatewayConfig configures the external payment gateway. Parsed from
// GATEWAY_* variables.
type GatewayConfig struct {
	BaseURL      string        `env:"BASE_URL,required,notEmpty"`
	ClientID     string        `env:"CLIENT_ID,required,notEmpty"`
	ClientSecret string        `env:"CLIENT_SECRET,required,notEmpty"`
	InvoiceCode  string        `env:"INVOICE_CODE,required,notEmpty"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

// Load loads configuration from environment variables and .env file.
// Missing gateway settings fail startup with a *ConfigError.
func Load() (Config, error) {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "coursepay"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       environment,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL:     strings.TrimRight(strings.TrimSpace(getenv("PUBLIC_BASE_URL", "")), "/"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "coursepay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RedisEnabled:      getenvBool("REDIS_ENABLED", true),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		AuthJWTSecret:     strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer:     strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
	}

	gateway, err := env.ParseAsWithOptions[GatewayConfig](env.Options{Prefix: "GATEWAY_"})
	if err != nil {
		return Config{}, &ConfigError{Field: "gateway", Err: err}
	}
	cfg.Gateway = gateway

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first fatal misconfiguration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		return &ConfigError{Field: "GATEWAY_BASE_URL", Err: ErrMissingValue}
	}
	if strings.TrimSpace(c.Gateway.ClientID) == "" || strings.TrimSpace(c.Gateway.ClientSecret) == "" {
		return &ConfigError{Field: "GATEWAY_CLIENT_ID", Err: ErrMissingValue}
	}
	if strings.TrimSpace(c.Gateway.InvoiceCode) == "" {
		return &ConfigError{Field: "GATEWAY_INVOICE_CODE", Err: ErrMissingValue}
	}
	if c.PublicBaseURL == "" {
		return &ConfigError{Field: "PUBLIC_BASE_URL", Err: ErrMissingValue}
	}
	if c.AuthJWTSecret == "" {
		return &ConfigError{Field: "AUTH_JWT_SECRET", Err: ErrMissingValue}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}
