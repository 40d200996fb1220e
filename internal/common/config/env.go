package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// Storage backends
const (
	StorageDynamoDB = "dynamodb"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Lock backends
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config represents the application configuration
// This struct contains all configuration parameters for the application
type Config struct {
	// Environment and region info
	Environment string
	AWSRegion   string

	// Storage
	StorageBackend      string
	DynamoDBTableName   string
	DynamoDBEndpoint    string
	DynamoDBMaxAttempts int
	PostgresDSN         string
	PostgresDSNSecretID string

	// Balance cache
	CacheBackend    string
	BalanceCacheTTL time.Duration

	// Redis, shared by the redis cache and the redis lock
	RedisAddr             string
	RedisPassword         string
	RedisPasswordSecretID string

	// Account locks
	LockBackend string
	LockExpiry  time.Duration

	// SingleInstance declares that one process owns the store, which makes the
	// in-process cache and lock safe on shared storage
	SingleInstance bool

	// Currencies
	Pair         money.Pair
	FallbackRate decimal.Decimal

	// Settlement
	CostAccountID string

	// Local HTTP server
	HTTPAddr string

	LogLevel string

	// Lambda detection flag (cached)
	isLambda bool
}

// LoadFromEnv loads the configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}

	// Environment and region info
	cfg.Environment = getEnv("ENVIRONMENT", "dev")
	cfg.AWSRegion = getEnv("AWS_REGION", "us-east-1")

	// Storage
	cfg.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", StorageDynamoDB))
	cfg.DynamoDBTableName = os.Getenv("DYNAMODB_TABLE_NAME")
	cfg.DynamoDBEndpoint = os.Getenv("DYNAMODB_ENDPOINT")
	if v := os.Getenv("DYNAMODB_MAX_ATTEMPTS"); v != "" {
		attempts, err := strconv.Atoi(v)
		if err != nil || attempts < 1 {
			return nil, fmt.Errorf("DYNAMODB_MAX_ATTEMPTS must be a positive integer")
		}
		cfg.DynamoDBMaxAttempts = attempts
	}
	cfg.PostgresDSN = os.Getenv("POSTGRES_DSN")
	cfg.PostgresDSNSecretID = os.Getenv("POSTGRES_DSN_SECRET_ID")
	switch cfg.StorageBackend {
	case StorageDynamoDB:
		if cfg.DynamoDBTableName == "" {
			return nil, errors.New("DYNAMODB_TABLE_NAME environment variable is required")
		}
	case StoragePostgres:
		if cfg.PostgresDSN == "" && cfg.PostgresDSNSecretID == "" {
			return nil, errors.New("POSTGRES_DSN or POSTGRES_DSN_SECRET_ID environment variable is required")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	// Redis
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisPasswordSecretID = os.Getenv("REDIS_PASSWORD_SECRET_ID")

	cfg.SingleInstance = os.Getenv("SINGLE_INSTANCE") == "true"
	defaultCache, defaultLock := CacheMemory, LockLocal
	switch {
	case cfg.RedisAddr != "":
		defaultCache, defaultLock = CacheRedis, LockRedis
	case cfg.StorageBackend != StorageMemory:
		defaultCache = CacheNone
	}

	// Balance cache
	cfg.CacheBackend = strings.ToLower(getEnv("CACHE_BACKEND", defaultCache))
	switch cfg.CacheBackend {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}
	ttl, err := getDuration("BALANCE_CACHE_TTL", 0)
	if err != nil {
		return nil, err
	}
	cfg.BalanceCacheTTL = ttl

	// Account locks
	cfg.LockBackend = strings.ToLower(getEnv("LOCK_BACKEND", defaultLock))
	switch cfg.LockBackend {
	case LockLocal, LockRedis:
	default:
		return nil, fmt.Errorf("unknown LOCK_BACKEND %q", cfg.LockBackend)
	}
	expiry, err := getDuration("LOCK_EXPIRY", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.LockExpiry = expiry

	if (cfg.CacheBackend == CacheRedis || cfg.LockBackend == LockRedis) && cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR environment variable is required for the redis cache or lock")
	}
	if err := cfg.checkCoordination(); err != nil {
		return nil, err
	}

	// Currencies
	reporting, err := money.ParseCurrency(getEnv("REPORTING_CURRENCY", string(money.ARS)))
	if err != nil {
		return nil, fmt.Errorf("REPORTING_CURRENCY: %w", err)
	}
	secondary, err := money.ParseCurrency(getEnv("SECONDARY_CURRENCY", string(money.USD)))
	if err != nil {
		return nil, fmt.Errorf("SECONDARY_CURRENCY: %w", err)
	}
	cfg.Pair = money.Pair{Reporting: reporting, Secondary: secondary}
	if err := cfg.Pair.Validate(); err != nil {
		return nil, err
	}

	cfg.FallbackRate, err = decimal.NewFromString(getEnv("FALLBACK_EXCHANGE_RATE", "1000"))
	if err != nil || !cfg.FallbackRate.IsPositive() {
		return nil, fmt.Errorf("FALLBACK_EXCHANGE_RATE must be a positive number")
	}

	cfg.CostAccountID = os.Getenv("COST_ACCOUNT_ID")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	// Check if running in Lambda
	cfg.isLambda = os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""

	return cfg, nil
}

// checkCoordination rejects per-process caches and locks on storage that other
// processes write to, since neither sees the other instances' debits
func (c *Config) checkCoordination() error {
	if c.StorageBackend == StorageMemory || c.SingleInstance {
		return nil
	}
	if c.LockBackend == LockLocal {
		return fmt.Errorf("LOCK_BACKEND=local does not serialize debits across instances sharing %s storage: set REDIS_ADDR for the redis lock or SINGLE_INSTANCE=true", c.StorageBackend)
	}
	if c.CacheBackend == CacheMemory {
		return fmt.Errorf("CACHE_BACKEND=memory goes stale when other instances write to %s storage: use redis or none, or set SINGLE_INSTANCE=true", c.StorageBackend)
	}
	return nil
}

func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}

// IsLambda returns true if the application is running in AWS Lambda
func (c *Config) IsLambda() bool {
	return c.isLambda
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	if value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration such as 30s", key)
	}
	return d, nil
}
