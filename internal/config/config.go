package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	DBUrl     string
	JWTSecret string
	AppEnv    string

	// Payment gateway REST endpoint for holds, captures and releases.
	GatewayBaseURL   string
	GatewaySecretKey string
	// MinChargeMinor is the gateway's minimum capturable amount in minor
	// units; computed charges below it release the hold instead.
	MinChargeMinor int64

	RedisAddr     string
	RedisPassword string
	AmqpURL       string

	// GraceMinutes pads the scheduled end before overtime minutes count.
	GraceMinutes int
	Currency     string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		DBUrl:            getEnv("DB_URL", ""),
		JWTSecret:        jwtSecret,
		AppEnv:           normalizeEnv(getEnv("APP_ENV", "production")),
		GatewayBaseURL:   getEnv("GATEWAY_BASE_URL", ""),
		GatewaySecretKey: getEnv("GATEWAY_SECRET_KEY", ""),
		MinChargeMinor:   getEnvInt64("GATEWAY_MIN_CHARGE_MINOR", 50),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		AmqpURL:          getEnv("AMQP_URL", ""),
		GraceMinutes:     int(getEnvInt64("SESSION_GRACE_MINUTES", 5)),
		Currency:         getEnv("DEFAULT_CURRENCY", "USD"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
