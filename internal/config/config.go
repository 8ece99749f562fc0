package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis Config
	RedisAddr         string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass         string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB" envDefault:"0"`
	RedisRelayEnabled bool          `env:"REDIS_RELAY_ENABLED" envDefault:"false"`
	IncidentCacheTTL  time.Duration `env:"INCIDENT_CACHE_TTL" envDefault:"5m"`

	// Auth Config
	JWTSecret string `env:"JWT_SECRET"`

	// Mapbox Config
	MapboxAccessToken string        `env:"MAPBOX_ACCESS_TOKEN"`
	MapboxBaseURL     string        `env:"MAPBOX_BASE_URL" envDefault:"https://api.mapbox.com"`
	LookupTimeout     time.Duration `env:"LOOKUP_TIMEOUT" envDefault:"3s"`

	// Dispatch Config
	DispatchRadiusMeters float64       `env:"DISPATCH_RADIUS_METERS" envDefault:"5000"`
	LocationFreshness    time.Duration `env:"LOCATION_FRESHNESS" envDefault:"30m"`

	// WebSocket Config
	WSAllowedOrigins []string `env:"WS_ALLOWED_ORIGINS"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		DBMaxConns:           int32(getEnvAsInt("DB_MAX_CONNS", 10)),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getEnvAsInt("REDIS_DB", 0),
		RedisRelayEnabled:    getEnvAsBool("REDIS_RELAY_ENABLED", false),
		IncidentCacheTTL:     getEnvAsDuration("INCIDENT_CACHE_TTL", 5*time.Minute),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		MapboxAccessToken:    os.Getenv("MAPBOX_ACCESS_TOKEN"),
		MapboxBaseURL:        getEnv("MAPBOX_BASE_URL", "https://api.mapbox.com"),
		LookupTimeout:        getEnvAsDuration("LOOKUP_TIMEOUT", 3*time.Second),
		DispatchRadiusMeters: getEnvAsFloat("DISPATCH_RADIUS_METERS", 5000),
		LocationFreshness:    getEnvAsDuration("LOCATION_FRESHNESS", 30*time.Minute),
		WSAllowedOrigins:     getEnvAsList("WS_ALLOWED_ORIGINS"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	return cfg, nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

// getEnvAsList разбирает список значений, разделенных запятыми
func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}
