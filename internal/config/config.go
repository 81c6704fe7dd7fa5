package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Quote    QuoteConfig
	Session  SessionConfig
	Kafka    KafkaConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// QuoteConfig holds market-data API configuration
type QuoteConfig struct {
	APIKey   string
	BaseURL  string
	CacheTTL time.Duration
}

// SessionConfig holds session store configuration. An empty RedisAddr
// selects the in-memory store.
type SessionConfig struct {
	RedisAddr string
	TTL       time.Duration
}

// KafkaConfig holds Kafka configuration. Empty brokers disable publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "brokerage"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),
		},
		Quote: QuoteConfig{
			APIKey:   getEnv("ALPHA_VANTAGE_API_KEY", ""),
			BaseURL:  getEnv("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
			CacheTTL: time.Duration(getEnvInt("TTL_SECONDS", 60)) * time.Second,
		},
		Session: SessionConfig{
			RedisAddr: getEnv("REDIS_ADDR", ""),
			TTL:       time.Duration(getEnvInt("SESSION_TTL_MINUTES", 60)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "trade-events"),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
