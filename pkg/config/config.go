package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment driven settings for the API server.
type Config struct {
	Env            string
	Host           string
	Port           string
	AllowedOrigins []string
	LogLevel       string

	JWTSecret string

	Database DatabaseConfig
	Redis    RedisConfig
	Mux      MuxConfig
	Updates  UpdatesConfig
}

// MuxConfig contains credentials for the external video provider.
type MuxConfig struct {
	TokenID       string
	TokenSecret   string
	BaseURL       string
	SigningKeyID  string
	SigningKey    string // base64 encoded PEM private key
	StreamBaseURL string
	ImageBaseURL  string
	TokenTTL      int // seconds
}

// RedisConfig contains cache connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// UpdatesConfig tunes the course updates stream.
type UpdatesConfig struct {
	KeepAliveSeconds  int
	ReconcileMinutes  int
	PendingStaleAfter int // minutes before a pending lesson is re-queried
	SubscriberBuffer  int
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	TimeZone        string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // seconds
	ConnMaxIdleTime int // seconds
	RunMigrations   bool
}

// Load builds a Config from environment variables with sensible defaults.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Env:       getEnv("VIDEO_SERVER_ENV", "development"),
		Host:      getEnv("VIDEO_SERVER_HOST", "0.0.0.0"),
		Port:      getEnv("VIDEO_SERVER_PORT", "8080"),
		LogLevel:  getEnv("VIDEO_LOG_LEVEL", "info"),
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-me"),
	}

	cfg.AllowedOrigins = splitAndTrim(os.Getenv("VIDEO_ALLOWED_ORIGINS"))
	cfg.Database = loadDatabaseConfig()
	cfg.Redis = loadRedisConfig()
	cfg.Mux = loadMuxConfig()
	cfg.Updates = loadUpdatesConfig()

	return cfg, nil
}

// ServerAddress joins the host and port into a listen address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsProduction reports whether the app is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// DSN builds a PostgreSQL DSN for gorm.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
		d.TimeZone,
	)
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnv("VIDEO_DB_HOST", "127.0.0.1"),
		Port:            getEnv("VIDEO_DB_PORT", "5432"),
		User:            getEnv("VIDEO_DB_USER", "postgres"),
		Password:        os.Getenv("VIDEO_DB_PASSWORD"),
		Name:            getEnv("VIDEO_DB_NAME", "courseflow"),
		SSLMode:         getEnv("VIDEO_DB_SSLMODE", "disable"),
		TimeZone:        getEnv("VIDEO_DB_TIMEZONE", "UTC"),
		MaxIdleConns:    getEnvAsInt("VIDEO_DB_MAX_IDLE_CONNS", 5),
		MaxOpenConns:    getEnvAsInt("VIDEO_DB_MAX_OPEN_CONNS", 20),
		ConnMaxLifetime: getEnvAsInt("VIDEO_DB_CONN_MAX_LIFETIME", 1800),
		ConnMaxIdleTime: getEnvAsInt("VIDEO_DB_CONN_MAX_IDLE_TIME", 300),
		RunMigrations:   getEnv("VIDEO_DB_RUN_MIGRATIONS", "false") == "true",
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("VIDEO_REDIS_ADDR", ""),
		Password: os.Getenv("VIDEO_REDIS_PASSWORD"),
		DB:       getEnvAsInt("VIDEO_REDIS_DB", 0),
	}
}

func loadMuxConfig() MuxConfig {
	return MuxConfig{
		TokenID:       getEnv("MUX_TOKEN_ID", ""),
		TokenSecret:   getEnv("MUX_TOKEN_SECRET", ""),
		BaseURL:       getEnv("MUX_BASE_URL", "https://api.mux.com"),
		SigningKeyID:  getEnv("MUX_SIGNING_KEY_ID", ""),
		SigningKey:    getEnv("MUX_SIGNING_KEY", ""),
		StreamBaseURL: getEnv("MUX_STREAM_BASE_URL", "https://stream.mux.com"),
		ImageBaseURL:  getEnv("MUX_IMAGE_BASE_URL", "https://image.mux.com"),
		TokenTTL:      getEnvAsInt("MUX_TOKEN_TTL", 3600),
	}
}

func loadUpdatesConfig() UpdatesConfig {
	return UpdatesConfig{
		KeepAliveSeconds:  getEnvAsInt("VIDEO_UPDATES_KEEPALIVE", 25),
		ReconcileMinutes:  getEnvAsInt("VIDEO_RECONCILE_INTERVAL", 15),
		PendingStaleAfter: getEnvAsInt("VIDEO_PENDING_STALE_AFTER", 60),
		SubscriberBuffer:  getEnvAsInt("VIDEO_UPDATES_BUFFER", 16),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitAndTrim(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
