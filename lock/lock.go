// Package lock guards a live pass so that only one process trades a bot at
// a time. The default is a no-op for single-instance deployments.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type DistributedLock interface {
	// TryLock acquires key without waiting. It reports false when another
	// holder owns the key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	Type    string        `json:"type" yaml:"type" validate:"omitempty,oneof=redis"`
	Prefix  string        `json:"prefix" yaml:"prefix"`
	TTL     time.Duration `json:"ttl" yaml:"ttl"`
	Redis   RedisConfig   `json:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
}

// New returns the lock selected by cfg, or a NopLock when disabled.
func New(cfg Config) (DistributedLock, error) {
	if !cfg.Enabled {
		return NopLock{}, nil
	}

	switch cfg.Type {
	case "", "redis":
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("lock: redis addr is required")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		return NewRedisLock(client, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("lock: unsupported type %q", cfg.Type)
	}
}

// NopLock always grants the lock.
type NopLock struct{}

func (NopLock) TryLock(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (NopLock) Unlock(context.Context, string) error { return nil }
func (NopLock) Close() error { return nil }
