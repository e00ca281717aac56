package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Pepper site configuration
	BaseURL           string
	SearchURLTemplate string
	GroupURLTemplate  string
	FlightURL         string

	// Schedule configuration
	WatchInterval time.Duration
	CategoryTick  time.Duration
	DigestHour    int
	ResultLimit   int

	// Fetcher configuration
	FetchTimeout  time.Duration
	FetchRetries  int
	FetchPacing   time.Duration
	BlockCooldown time.Duration

	// Storage configuration
	DatabasePath string

	// Memcache configuration
	MemcacheAddr string

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Delivery destination for the daily digest
	DigestChannelID string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	redisStreamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAXLEN", "500"))
	watchInterval, _ := strconv.Atoi(getEnv("WATCH_INTERVAL_MINUTES", "15"))
	categoryTick, _ := strconv.Atoi(getEnv("CATEGORY_TICK_SECONDS", "60"))
	digestHour, _ := strconv.Atoi(getEnv("DIGEST_HOUR", "8"))
	resultLimit, _ := strconv.Atoi(getEnv("RESULT_LIMIT", "7"))
	fetchTimeout, _ := strconv.Atoi(getEnv("FETCH_TIMEOUT_SECONDS", "15"))
	fetchRetries, _ := strconv.Atoi(getEnv("FETCH_RETRIES", "3"))
	fetchPacing, _ := strconv.Atoi(getEnv("FETCH_PACING_MILLIS", "1500"))
	blockCooldown, _ := strconv.Atoi(getEnv("BLOCK_COOLDOWN_SECONDS", "500"))

	return Config{
		BaseURL:              getEnv("PEPPER_BASE_URL", "https://www.pepper.pl"),
		SearchURLTemplate:    getEnv("PEPPER_SEARCH_URL", "https://www.pepper.pl/search?q=%s"),
		GroupURLTemplate:     getEnv("PEPPER_GROUP_URL", "https://www.pepper.pl/grupa/%s"),
		FlightURL:            getEnv("PEPPER_FLIGHT_URL", "https://www.pepper.pl/grupa/loty"),
		WatchInterval:        time.Duration(watchInterval) * time.Minute,
		CategoryTick:         time.Duration(categoryTick) * time.Second,
		DigestHour:           digestHour,
		ResultLimit:          resultLimit,
		FetchTimeout:         time.Duration(fetchTimeout) * time.Second,
		FetchRetries:         fetchRetries,
		FetchPacing:          time.Duration(fetchPacing) * time.Millisecond,
		BlockCooldown:        time.Duration(blockCooldown) * time.Second,
		DatabasePath:         getEnv("DATABASE_PATH", "./data/pepperwatch.db"),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", "localhost:11211"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "deliveries"),
		RedisStreamMaxLength: redisStreamMaxLen,
		DigestChannelID:      getEnv("DIGEST_CHANNEL_ID", ""),
		Environment:          getEnv("PEPPERWATCH_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL must not be empty")
	}
	if c.WatchInterval < time.Minute {
		return fmt.Errorf("watch interval %s is below the 1 minute minimum", c.WatchInterval)
	}
	if c.CategoryTick < time.Second {
		return fmt.Errorf("category tick %s is below the 1 second minimum", c.CategoryTick)
	}
	if c.DigestHour < 0 || c.DigestHour > 23 {
		return fmt.Errorf("digest hour %d is outside 0..23", c.DigestHour)
	}
	if c.ResultLimit <= 0 {
		return fmt.Errorf("result limit must be positive")
	}
	if c.FetchRetries < 0 {
		return fmt.Errorf("fetch retries must not be negative")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
