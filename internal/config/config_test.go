// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Scraper: ScraperConfig{
			BaseURL:            "https://apim.example",
			MinRequestInterval: 500 * time.Millisecond,
			MaxRetries:         4,
			RetryBackoff:       time.Second,
			RetryBackoffMax:    30 * time.Second,
			Parallelism:        4,
			PriceBatchSize:     50,
		},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Scraper.BaseURL = "" }},
		{"zero interval", func(c *Config) { c.Scraper.MinRequestInterval = 0 }},
		{"negative retries", func(c *Config) { c.Scraper.MaxRetries = -1 }},
		{"backoff above cap", func(c *Config) { c.Scraper.RetryBackoff = time.Minute }},
		{"zero parallelism", func(c *Config) { c.Scraper.Parallelism = 0 }},
		{"batch too large", func(c *Config) { c.Scraper.PriceBatchSize = 51 }},
		{"zero batch", func(c *Config) { c.Scraper.PriceBatchSize = 0 }},
		{"production without db password", func(c *Config) { c.Environment = "production" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CT_MIN_REQUEST_INTERVAL", "250ms")
	t.Setenv("CT_PRICE_BATCH_SIZE", "10")
	t.Setenv("CT_STORE_ID", "144")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Scraper.MinRequestInterval)
	assert.Equal(t, 10, cfg.Scraper.PriceBatchSize)
	assert.Equal(t, "144", cfg.Scraper.StoreID)
}
