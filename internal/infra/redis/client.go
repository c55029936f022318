package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/streamwatch/internal/core/domain"
)

// Client wraps Redis operations for system command bookkeeping.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func commandKey(commandID uuid.UUID) string {
	return fmt.Sprintf("system_command:%s", commandID)
}

func commandLockKey(name string) string {
	return fmt.Sprintf("system_command_lock:%s", name)
}

// SaveCommandStatus stores the status of a system command with a TTL so
// finished commands stay pollable for a while.
func (c *Client) SaveCommandStatus(ctx context.Context, status *domain.CommandStatus, ttl time.Duration) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal command status: %w", err)
	}
	if err := c.rdb.Set(ctx, commandKey(status.CommandID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save command status: %w", err)
	}
	return nil
}

// GetCommandStatus retrieves the status of a system command, or nil when the
// command id is unknown or expired.
func (c *Client) GetCommandStatus(ctx context.Context, commandID uuid.UUID) (*domain.CommandStatus, error) {
	data, err := c.rdb.Get(ctx, commandKey(commandID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get command status: %w", err)
	}

	var status domain.CommandStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command status: %w", err)
	}
	return &status, nil
}

// AcquireCommandLock attempts to take the single-flight lock for a named
// command so only one run is in flight at a time.
func (c *Client) AcquireCommandLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, commandLockKey(name), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ReleaseCommandLock releases the single-flight lock for a named command.
func (c *Client) ReleaseCommandLock(ctx context.Context, name string) error {
	return c.rdb.Del(ctx, commandLockKey(name)).Err()
}
