package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scope is prepended to every key written to Redis so cached feeds cannot
// collide with unrelated data in a shared instance.
const Scope = "RSS_CACHE"

const redisBackend = "redis"

// RedisOptions describes the remote instance. URL wins when set, otherwise
// Host, Port, DB and Password are used.
type RedisOptions struct {
	URL      string
	Host     string
	Port     int
	DB       int
	Password string
	// PoolSize caps the client's connection pool. Zero keeps the go-redis
	// default.
	PoolSize int
}

func (o RedisOptions) clientOptions() (*redis.Options, error) {
	var opts *redis.Options
	if o.URL != "" {
		parsed, err := redis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("cache: parse redis url: %w", err)
		}
		opts = parsed
	} else {
		host := o.Host
		if host == "" {
			host = "127.0.0.1"
		}
		port := o.Port
		if port == 0 {
			port = 6379
		}
		opts = &redis.Options{
			Addr:     host + ":" + strconv.Itoa(port),
			DB:       o.DB,
			Password: o.Password,
		}
	}
	if o.PoolSize > 0 {
		opts.PoolSize = o.PoolSize
	}
	// Retry policy belongs to the caller.
	opts.MaxRetries = -1
	return opts, nil
}

// RedisStore relies on Redis' own key expiry; no timestamps are kept
// locally. The go-redis client pools connections, so concurrent callers do
// not queue behind one another.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects once and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions, ttl time.Duration) (*RedisStore, error) {
	clientOpts, err := opts.clientOptions()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(clientOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &TransportError{Backend: redisBackend, Op: "ping", Err: err}
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func scopedKey(key []byte) string {
	return Scope + ":" + string(key)
}

// Set issues SET with the store TTL. A non-positive TTL stores without
// expiry.
func (s *RedisStore) Set(ctx context.Context, key, value []byte) error {
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, scopedKey(key), value, ttl).Err(); err != nil {
		return &TransportError{Backend: redisBackend, Op: OpSet, Err: err}
	}
	return nil
}

// Get maps the nil reply to a miss. An empty string reply is a present,
// empty value.
func (s *RedisStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, scopedKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &TransportError{Backend: redisBackend, Op: OpGet, Err: err}
	}
	return v, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key []byte) error {
	if err := s.client.Del(ctx, scopedKey(key)).Err(); err != nil {
		return &TransportError{Backend: redisBackend, Op: OpDelete, Err: err}
	}
	return nil
}

// TTL returns the expiry sent with every SET.
func (s *RedisStore) TTL() time.Duration { return s.ttl }

func (s *RedisStore) Close() error { return s.client.Close() }
