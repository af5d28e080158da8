package cache

import (
	"context"
	"fmt"
	"time"
)

// Backend selects a Store implementation at startup.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendBolt   Backend = "bolt"
	BackendRemote Backend = "remote"
)

// Config is the finished configuration for one store instance.
type Config struct {
	Backend Backend
	TTL     time.Duration

	// memory
	Workers   int
	QueueSize int

	// redis
	Redis RedisOptions

	// bolt
	Path   string
	Bucket string

	// remote
	Address string
}

// CloseableStore is a Store that owns resources.
type CloseableStore interface {
	Store
	Close() error
}

// Open builds the store named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (CloseableStore, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(MemoryOptions{
			Workers:   cfg.Workers,
			QueueSize: cfg.QueueSize,
			TTL:       cfg.TTL,
		}), nil
	case BackendRedis:
		s, err := NewRedisStore(ctx, cfg.Redis, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBolt:
		if cfg.Path == "" {
			return nil, fmt.Errorf("cache: bolt backend requires a path")
		}
		s, err := OpenBolt(cfg.Path, BoltOptions{Bucket: cfg.Bucket, TTL: cfg.TTL})
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRemote:
		if cfg.Address == "" {
			return nil, fmt.Errorf("cache: remote backend requires an address")
		}
		c := NewClient(cfg.Address, ClientOptions{})
		if err := c.Ping(ctx); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}
