package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Upstream  UpstreamConfig
	Auth      AuthConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// StorageConfig bounds the draft store: which backend holds drafts, how many
// bytes they may occupy and how many synced press runs are retained.
type StorageConfig struct {
	Backend              string
	SQLitePath           string
	MaxStorageBytes      int64
	MaxRetainedPressRuns int
}

// UpstreamConfig points at the cidery API that owns the authoritative
// press-run records.
type UpstreamConfig struct {
	BaseURL string
	Token   string
}

type AuthConfig struct {
	JWTSecret string
}

type WebSocketConfig struct {
	ReadBufferSize     int
	WriteBufferSize    int
	MaxMessageSize     int64
	WriteWait          time.Duration
	PongWait           time.Duration
	PingPeriod         time.Duration
	MaxConnPerOperator int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "cidermill"),
		},
		Storage: StorageConfig{
			Backend:              getEnv("STORAGE_BACKEND", "couch"),
			SQLitePath:           getEnv("STORAGE_SQLITE_PATH", "cidermill.db"),
			MaxStorageBytes:      getEnvAsInt64("STORAGE_MAX_BYTES", 50*1024*1024),
			MaxRetainedPressRuns: getEnvAsInt("STORAGE_MAX_RETAINED_PRESS_RUNS", 100),
		},
		Upstream: UpstreamConfig{
			BaseURL: getEnv("UPSTREAM_BASE_URL", "http://localhost:9090"),
			Token:   getEnv("UPSTREAM_TOKEN", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:     getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize:    getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:     int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 10485760)),
			WriteWait:          10 * time.Second,
			PongWait:           60 * time.Second,
			PingPeriod:         54 * time.Second,
			MaxConnPerOperator: getEnvAsInt("WS_MAX_CONN_PER_OPERATOR", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}
