// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides Redis connection settings for pool state and task queues.
type RedisConfig interface {
	GetRedisURL() string
}

// DedupeConfig provides settings for the deduplication engine.
type DedupeConfig interface {
	GetDedupeHashSalt() string
	GetStoreTimeout() time.Duration
	GetDomainNameThreshold() float64
	GetNameOnlyThreshold() float64
	GetDedupeLookback() time.Duration
	GetNameScanLimit() int
	GetCompanyDomainGuess() bool
	GetDefaultPhoneRegion() string
}

// RoutingConfig provides settings for the routing engine.
type RoutingConfig interface {
	GetDefaultPool() string
	GetPoolAMinCapacity() int
	GetPoolBMinCapacity() int
	GetAlertQueue() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	DatabaseURL         string
	RedisURL            string
	DedupeHashSalt      string
	StoreTimeout        time.Duration
	DomainNameThreshold float64
	NameOnlyThreshold   float64
	DedupeLookback      time.Duration
	NameScanLimit       int
	CompanyDomainGuess  bool
	DefaultPool         string
	PoolAMinCapacity    int
	PoolBMinCapacity    int
	AlertQueue          string
	DefaultPhoneRegion  string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig implementation
func (c *Config) GetRedisURL() string { return c.RedisURL }

// DedupeConfig implementation
func (c *Config) GetDedupeHashSalt() string          { return c.DedupeHashSalt }
func (c *Config) GetStoreTimeout() time.Duration     { return c.StoreTimeout }
func (c *Config) GetDomainNameThreshold() float64    { return c.DomainNameThreshold }
func (c *Config) GetNameOnlyThreshold() float64      { return c.NameOnlyThreshold }
func (c *Config) GetDedupeLookback() time.Duration   { return c.DedupeLookback }
func (c *Config) GetNameScanLimit() int              { return c.NameScanLimit }
func (c *Config) GetCompanyDomainGuess() bool        { return c.CompanyDomainGuess }
func (c *Config) GetDefaultPhoneRegion() string      { return c.DefaultPhoneRegion }

// RoutingConfig implementation
func (c *Config) GetDefaultPool() string   { return c.DefaultPool }
func (c *Config) GetPoolAMinCapacity() int { return c.PoolAMinCapacity }
func (c *Config) GetPoolBMinCapacity() int { return c.PoolBMinCapacity }
func (c *Config) GetAlertQueue() string    { return c.AlertQueue }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DedupeHashSalt:      getEnv("DEDUPE_HASH_SALT", ""),
		StoreTimeout:        mustDuration(getEnv("STORE_TIMEOUT", "5s")),
		DomainNameThreshold: mustFloat(getEnv("DEDUPE_DOMAIN_NAME_THRESHOLD", "0.5")),
		NameOnlyThreshold:   mustFloat(getEnv("DEDUPE_NAME_THRESHOLD", "0.85")),
		DedupeLookback:      mustDuration(getEnv("DEDUPE_LOOKBACK", "0")),
		NameScanLimit:       mustInt(getEnv("DEDUPE_NAME_SCAN_LIMIT", "500")),
		CompanyDomainGuess:  strings.EqualFold(getEnv("DEDUPE_COMPANY_DOMAIN_GUESS", "true"), "true"),
		DefaultPool:         getEnv("ROUTING_DEFAULT_POOL", "POOL_SDR"),
		PoolAMinCapacity:    mustInt(getEnv("ROUTING_POOL_A_MIN_CAPACITY", "50")),
		PoolBMinCapacity:    mustInt(getEnv("ROUTING_POOL_B_MIN_CAPACITY", "20")),
		AlertQueue:          getEnv("ROUTING_ALERT_QUEUE", "routing"),
		DefaultPhoneRegion:  getEnv("DEFAULT_PHONE_REGION", "US"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	// The email fingerprint salt must come from the environment. A compiled-in
	// salt would make fingerprints portable across deployments.
	if cfg.DedupeHashSalt == "" {
		return nil, fmt.Errorf("DEDUPE_HASH_SALT is required")
	}
	if cfg.DomainNameThreshold < 0 || cfg.DomainNameThreshold > 1 {
		return nil, fmt.Errorf("DEDUPE_DOMAIN_NAME_THRESHOLD must be in [0,1]")
	}
	if cfg.NameOnlyThreshold < 0 || cfg.NameOnlyThreshold > 1 {
		return nil, fmt.Errorf("DEDUPE_NAME_THRESHOLD must be in [0,1]")
	}
	if cfg.PoolBMinCapacity >= cfg.PoolAMinCapacity {
		return nil, fmt.Errorf("ROUTING_POOL_B_MIN_CAPACITY must be below ROUTING_POOL_A_MIN_CAPACITY")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	if value == "0" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}
