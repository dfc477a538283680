package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Target     TargetConfig
	Translator TranslatorConfig
	Scan       ScanConfig
	Logging    LoggingConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	FrontendURL     string
	Environment     string
}

// StoreConfig contains configuration for the internal store holding
// rules, violations, scan runs and the schedule.
type StoreConfig struct {
	Driver          string // sqlite or postgres
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// TargetConfig contains connection settings for the customer database
// being scanned. The scanner only ever reads from it.
type TargetConfig struct {
	Host           string
	Port           int
	Name           string
	User           string
	Password       string
	SSLMode        string
	ConnectTimeout time.Duration
	MaxOpenConns   int
}

// TranslatorConfig contains settings for the rule-to-SQL translator
type TranslatorConfig struct {
	OpenAIAPIKey string
	Model        string
	Timeout      time.Duration
}

// ScanConfig contains scan execution tuning
type ScanConfig struct {
	QueryTimeout    time.Duration
	RunTimeout      time.Duration
	RowLimit        int
	Workers         int
	MaxRetries      int
	BaseRetryDelay  time.Duration
	MaxRetryDelay   time.Duration
	IntervalMinutes int
	Enabled         bool
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Schedule interval bounds in minutes (hourly to daily)
const (
	MinIntervalMinutes = 60
	MaxIntervalMinutes = 1440
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:5173"),
			Environment:     getEnv("ENVIRONMENT", "development"),
		},
		Store: StoreConfig{
			Driver:          getEnv("STORE_DRIVER", "sqlite"),
			Host:            getEnv("STORE_HOST", "localhost"),
			Port:            getEnvAsInt("STORE_PORT", 5432),
			Name:            getEnv("STORE_NAME", "policyscan"),
			User:            getEnv("STORE_USER", ""),
			Password:        getEnv("STORE_PASSWORD", ""),
			SSLMode:         getEnv("STORE_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("STORE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("STORE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("STORE_CONN_MAX_LIFETIME", 5*time.Minute),
			Path:            getEnv("STORE_PATH", "./policyscan.db"),
		},
		Target: TargetConfig{
			Host:           getEnv("TARGET_DB_HOST", "localhost"),
			Port:           getEnvAsInt("TARGET_DB_PORT", 5432),
			Name:           getEnv("TARGET_DB_NAME", ""),
			User:           getEnv("TARGET_DB_USER", ""),
			Password:       getEnv("TARGET_DB_PASSWORD", ""),
			SSLMode:        getEnv("TARGET_DB_SSLMODE", "disable"),
			ConnectTimeout: getEnvAsDuration("TARGET_DB_CONNECT_TIMEOUT", 30*time.Second),
			MaxOpenConns:   getEnvAsInt("TARGET_DB_MAX_OPEN_CONNS", 4),
		},
		Translator: TranslatorConfig{
			OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
			Model:        getEnv("TRANSLATOR_MODEL", "gpt-4o-mini"),
			Timeout:      getEnvAsDuration("TRANSLATOR_TIMEOUT", 60*time.Second),
		},
		Scan: ScanConfig{
			QueryTimeout:    getEnvAsDuration("SCAN_QUERY_TIMEOUT", 30*time.Second),
			RunTimeout:      getEnvAsDuration("SCAN_RUN_TIMEOUT", 15*time.Minute),
			RowLimit:        getEnvAsInt("SCAN_ROW_LIMIT", 50),
			Workers:         getEnvAsInt("SCAN_WORKERS", 2),
			MaxRetries:      getEnvAsInt("SCAN_MAX_RETRIES", 3),
			BaseRetryDelay:  getEnvAsDuration("SCAN_BASE_RETRY_DELAY", 30*time.Second),
			MaxRetryDelay:   getEnvAsDuration("SCAN_MAX_RETRY_DELAY", 10*time.Minute),
			IntervalMinutes: getEnvAsInt("SCAN_INTERVAL_MINUTES", 60),
			Enabled:         getEnvAsBool("SCAN_SCHEDULE_ENABLED", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		return fmt.Errorf("unsupported store driver: %s", c.Store.Driver)
	}

	if c.Scan.IntervalMinutes < MinIntervalMinutes || c.Scan.IntervalMinutes > MaxIntervalMinutes {
		return fmt.Errorf("scan interval must be between %d and %d minutes, got %d",
			MinIntervalMinutes, MaxIntervalMinutes, c.Scan.IntervalMinutes)
	}

	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan workers must be at least 1, got %d", c.Scan.Workers)
	}

	if c.Scan.RowLimit < 1 {
		return fmt.Errorf("scan row limit must be at least 1, got %d", c.Scan.RowLimit)
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
