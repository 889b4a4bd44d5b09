// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Scraper     ScraperConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type ScraperConfig struct {
	BaseURL            string
	StoreID            string
	UserAgent          string
	RequestTimeout     time.Duration
	MinRequestInterval time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
	RetryBackoffMax    time.Duration
	Parallelism        int
	PriceBatchSize     int
	StepLookback       time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "5000"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "canadiantracker"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		Scraper: ScraperConfig{
			BaseURL:            getEnv("CT_API_BASE_URL", "https://apim.canadiantire.ca"),
			StoreID:            getEnv("CT_STORE_ID", "64"),
			UserAgent:          getEnv("CT_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/102.0.0.0 Safari/537.36"),
			RequestTimeout:     getEnvAsDuration("CT_REQUEST_TIMEOUT", 10*time.Second),
			MinRequestInterval: getEnvAsDuration("CT_MIN_REQUEST_INTERVAL", 500*time.Millisecond),
			MaxRetries:         getEnvAsInt("CT_MAX_RETRIES", 4),
			RetryBackoff:       getEnvAsDuration("CT_RETRY_BACKOFF", time.Second),
			RetryBackoffMax:    getEnvAsDuration("CT_RETRY_BACKOFF_MAX", 30*time.Second),
			Parallelism:        getEnvAsInt("CT_PARALLELISM", 4),
			PriceBatchSize:     getEnvAsInt("CT_PRICE_BATCH_SIZE", 50),
			StepLookback:       getEnvAsDuration("CT_STEP_LOOKBACK", 24*time.Hour),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	s := c.Scraper
	if s.BaseURL == "" {
		return fmt.Errorf("scraper base URL cannot be empty")
	}
	if s.MinRequestInterval <= 0 {
		return fmt.Errorf("minimum request interval must be positive")
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if s.RetryBackoffMax > 0 && s.RetryBackoff > s.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", s.RetryBackoff, s.RetryBackoffMax)
	}
	if s.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if s.PriceBatchSize <= 0 || s.PriceBatchSize > 50 {
		// The upstream price endpoint rejects batches larger than 50 SKUs.
		return fmt.Errorf("price batch size must be between 1 and 50")
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
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
