package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/leonardcser/magnetite/internal/cache"
)

// Environment variable naming the config file when no path is given.
const envConfigPath = "MAGNETITE_CONFIG"

type Config struct {
	Server      Server            `yaml:"server"`
	Cache       Cache             `yaml:"cache"`
	Daemon      Daemon            `yaml:"daemon"`
	Env         map[string]string `yaml:"env"`
	LoggerLevel string            `yaml:"logger_level"`
	LogPath     string            `yaml:"log_path"`
	Proxy       string            `yaml:"proxy"`
	Sites       Sites             `yaml:"sites"`
}

type Server struct {
	Listen string `yaml:"listen"`
	Port   int    `yaml:"port"`
}

func (s Server) Addr() string {
	return net.JoinHostPort(s.Listen, strconv.Itoa(s.Port))
}

type Cache struct {
	// Expire is the TTL in seconds shared by every entry.
	Expire    int    `yaml:"expire"`
	Type      string `yaml:"type"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
	Redis     Redis  `yaml:"redis"`
	Path      string `yaml:"path"`
	Bucket    string `yaml:"bucket"`
	// Address of the cache daemon, for type "remote".
	Address string `yaml:"address"`
	// AutoStart launches the cache daemon when it cannot be reached.
	AutoStart bool `yaml:"auto_start"`
}

type Redis struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
	PoolSize int    `yaml:"pool_size"`
}

// Daemon configures cmd/cache-server. It listens on Cache.Address.
type Daemon struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type Sites struct {
	Gcores Gcores `yaml:"gcores"`
}

type Gcores struct {
	BaseURL  string `yaml:"base_url"`
	ImageURL string `yaml:"image_url"`
	// Format of item descriptions: "html" or "markdown".
	Format      string `yaml:"format"`
	Concurrency int    `yaml:"concurrency"`
}

// TTL returns Cache.Expire as a duration.
func (c Cache) TTL() time.Duration {
	return time.Duration(c.Expire) * time.Second
}

// StoreConfig converts the cache section into the value cache.Open takes.
func (c Cache) StoreConfig() cache.Config {
	return cache.Config{
		Backend:   cache.Backend(c.Type),
		TTL:       c.TTL(),
		Workers:   c.Workers,
		QueueSize: c.QueueSize,
		Redis: cache.RedisOptions{
			URL:      c.Redis.URL,
			Host:     c.Redis.Host,
			Port:     c.Redis.Port,
			DB:       c.Redis.DB,
			Password: c.Redis.Password,
			PoolSize: c.Redis.PoolSize,
		},
		Path:    c.Path,
		Bucket:  c.Bucket,
		Address: c.Address,
	}
}

// DaemonStoreConfig is the store served by cmd/cache-server.
func (c Config) DaemonStoreConfig() cache.Config {
	sc := c.Cache.StoreConfig()
	sc.Backend = cache.Backend(c.Daemon.Backend)
	sc.Path = c.Daemon.Path
	return sc
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: Server{Listen: "127.0.0.1", Port: 8080},
		Cache: Cache{
			Expire:    5 * 60,
			Type:      string(cache.BackendMemory),
			Workers:   cache.DefaultWorkers,
			QueueSize: cache.DefaultQueueSize,
			Bucket:    "feeds",
			Address:   DefaultSocketPath(),
		},
		Daemon:      Daemon{Backend: string(cache.BackendBolt), Path: DefaultDBPath()},
		LoggerLevel: "info",
		Sites: Sites{Gcores: Gcores{
			BaseURL:     "https://www.gcores.com",
			ImageURL:    "https://image.gcores.com",
			Format:      "html",
			Concurrency: 4,
		}},
	}
}

// Load reads .env (if present), then the YAML file at path (or
// $MAGNETITE_CONFIG), then applies MAGNETITE_* overrides and validates.
// With no file at all the defaults are used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv(envConfigPath)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	for k, v := range cfg.Env {
		if err := os.Setenv(k, v); err != nil {
			return nil, fmt.Errorf("failed to export env %s: %w", k, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"MAGNETITE_LISTEN":        &cfg.Server.Listen,
		"MAGNETITE_CACHE_TYPE":    &cfg.Cache.Type,
		"MAGNETITE_CACHE_PATH":    &cfg.Cache.Path,
		"MAGNETITE_CACHE_ADDRESS": &cfg.Cache.Address,
		"MAGNETITE_REDIS_URL":     &cfg.Cache.Redis.URL,
		"MAGNETITE_REDIS_HOST":    &cfg.Cache.Redis.Host,
		"MAGNETITE_LOG_LEVEL":     &cfg.LoggerLevel,
		"MAGNETITE_LOG":           &cfg.LogPath,
		"MAGNETITE_PROXY":         &cfg.Proxy,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAGNETITE_PORT":          &cfg.Server.Port,
		"MAGNETITE_CACHE_EXPIRE":  &cfg.Cache.Expire,
		"MAGNETITE_CACHE_WORKERS": &cfg.Cache.Workers,
		"MAGNETITE_CACHE_QUEUE":   &cfg.Cache.QueueSize,
		"MAGNETITE_REDIS_PORT":    &cfg.Cache.Redis.Port,
	}
	for name, dst := range ints {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", name, err)
		}
		*dst = n
	}
	return nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Cache.Expire <= 0 {
		return fmt.Errorf("cache.expire must be positive, got %d", c.Cache.Expire)
	}
	switch cache.Backend(c.Cache.Type) {
	case cache.BackendMemory:
		if c.Cache.Workers < 0 || c.Cache.QueueSize < 0 {
			return fmt.Errorf("cache.workers and cache.queue_size must not be negative")
		}
	case cache.BackendRedis:
		if c.Cache.Redis.URL == "" && c.Cache.Redis.Host == "" {
			return fmt.Errorf("cache.redis.url or cache.redis.host is required for the redis cache")
		}
	case cache.BackendBolt:
		if c.Cache.Path == "" {
			c.Cache.Path = DefaultDBPath()
		}
	case cache.BackendRemote:
		if c.Cache.Address == "" {
			return fmt.Errorf("cache.address is required for the remote cache")
		}
	default:
		return fmt.Errorf("unknown cache.type %q", c.Cache.Type)
	}
	switch c.Sites.Gcores.Format {
	case "html", "markdown":
	default:
		return fmt.Errorf("sites.gcores.format must be html or markdown, got %q", c.Sites.Gcores.Format)
	}
	return nil
}

func cacheDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "magnetite")
}

// DefaultSocketPath is where the cache daemon listens by default.
func DefaultSocketPath() string { return filepath.Join(cacheDir(), "cache.sock") }

// DefaultDBPath is the default bolt file of the cache daemon.
func DefaultDBPath() string { return filepath.Join(cacheDir(), "cache.bbolt") }
