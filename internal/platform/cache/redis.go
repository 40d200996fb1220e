package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisConfig configures the shared Redis layer
type RedisConfig struct {
	Name        string
	Addr        string
	Username    string
	Password    string
	DB          int
	KeyPrefix   string
	DialTimeout time.Duration
}

// DefaultRedisConfig returns the defaults for a single Redis node
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Name:        "redis",
		Addr:        "localhost:6379",
		KeyPrefix:   "ledger:",
		DialTimeout: 5 * time.Second,
	}
}

// RedisLayer is a Layer backed by Redis through rueidis. It is shared by every
// instance, so one Invalidate is seen by all of them.
type RedisLayer struct {
	client rueidis.Client
	config RedisConfig
}

// NewRedisLayer connects to Redis and pings it
func NewRedisLayer(config RedisConfig) (*RedisLayer, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.Addr == "" {
		return nil, fmt.Errorf("redis: no address configured")
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:   []string{config.Addr},
		Username:      config.Username,
		Password:      config.Password,
		SelectDB:      config.DB,
		MaxFlushDelay: 100 * time.Microsecond,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &RedisLayer{client: client, config: config}, nil
}

// Get implements Layer
func (r *RedisLayer) Get(ctx context.Context, key string) (string, error) {
	cmd := r.client.B().Get().Key(r.config.KeyPrefix + key).Build()
	value, err := r.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

// Set implements Layer
func (r *RedisLayer) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	fullKey := r.config.KeyPrefix + key

	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = r.client.B().Set().Key(fullKey).Value(value).Ex(ttl).Build()
	} else {
		cmd = r.client.B().Set().Key(fullKey).Value(value).Build()
	}
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Layer
func (r *RedisLayer) Delete(ctx context.Context, key string) error {
	cmd := r.client.B().Del().Key(r.config.KeyPrefix + key).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Name implements Layer
func (r *RedisLayer) Name() string {
	return r.config.Name
}

// Close closes the client
func (r *RedisLayer) Close() error {
	r.client.Close()
	return nil
}
