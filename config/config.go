// Package config provides application configuration management.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	ServerPort           string
	APIToken             string
	LogLevel             string
	SSEHeartbeatInterval time.Duration

	// Upstream inference backend
	UpstreamBaseURL     string
	UpstreamAPIKey      string
	UpstreamModel       string
	UpstreamTemperature float64
	RelayTimeout        time.Duration
	RelayEchoPrompt     bool

	// Persistence + cache configuration
	StatePath         string
	DataStoreDriver   string
	DataStoreDSN      string
	SnapshotCacheTTL  time.Duration
	LocationPathLimit int

	// Redis / events configuration
	RedisURL         string
	RedisAddr        string
	RedisUsername    string
	RedisPassword    string
	RedisDB          int
	RedisTLSEnabled  bool
	RedisTLSInsecure bool
	EventsChannel    string
	TelemetryStream  string
	TelemetryGroup   string
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	statePath := getEnv("STATE_PATH", "/app/state")
	dataStoreDriver := strings.ToLower(getEnv("DATASTORE_DRIVER", "sqlite"))
	dataStoreDSN := getEnv("DATASTORE_DSN", "")
	if dataStoreDSN == "" && dataStoreDriver == "postgres" {
		dataStoreDSN = os.Getenv("POSTGRES_DSN")
	}
	if dataStoreDSN == "" {
		dataStoreDSN = filepath.Join(statePath, "advisor-relay.db")
	}
	return &Config{
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		APIToken:             os.Getenv("API_TOKEN"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		SSEHeartbeatInterval: getEnvDuration("SSE_HEARTBEAT_INTERVAL", 15*time.Second),
		UpstreamBaseURL:      getEnv("UPSTREAM_BASE_URL", "http://localhost:8000"),
		UpstreamAPIKey:       os.Getenv("UPSTREAM_API_KEY"),
		UpstreamModel:        getEnv("UPSTREAM_MODEL", "gpt-4o-mini"),
		UpstreamTemperature:  getEnvFloat("UPSTREAM_TEMPERATURE", 0.2),
		RelayTimeout:         getEnvDuration("RELAY_TIMEOUT", 60*time.Second),
		RelayEchoPrompt:      getEnvBool("RELAY_ECHO_PROMPT", false),
		StatePath:            statePath,
		DataStoreDriver:      dataStoreDriver,
		DataStoreDSN:         dataStoreDSN,
		SnapshotCacheTTL:     getEnvDuration("SNAPSHOT_CACHE_TTL", 30*time.Second),
		LocationPathLimit:    getEnvInt("LOCATION_PATH_LIMIT", 2000),
		RedisURL:             os.Getenv("REDIS_URL"),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisUsername:        getEnv("REDIS_USERNAME", ""),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisTLSEnabled:      getEnvBool("REDIS_TLS_ENABLED", false),
		RedisTLSInsecure:     getEnvBool("REDIS_TLS_INSECURE_SKIP_VERIFY", false),
		EventsChannel:        getEnv("EVENTS_CHANNEL", "advisor-relay-events"),
		TelemetryStream:      getEnv("TELEMETRY_STREAM", "advisor:telemetry"),
		TelemetryGroup:       getEnv("TELEMETRY_GROUP", "telemetry-workers"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
		log.Printf("Invalid duration for %s: %s, using default %s", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("Invalid float for %s: %s, using default %f", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Printf("Invalid int for %s: %s, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "y":
			return true
		case "0", "false", "no", "n":
			return false
		default:
			log.Printf("Invalid bool for %s: %s, using default %t", key, value, defaultValue)
		}
	}
	return defaultValue
}
