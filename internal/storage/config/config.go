package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/edgeflow/config"
)

// Config represents the store configuration.
type Config struct {
	// Backend selects the store implementation: redis or memory.
	Backend string `yaml:"backend"`

	// RetentionSec is the retention horizon in seconds. It is both the TTL of
	// a stored record and the age past which index entries are evicted.
	RetentionSec int64 `yaml:"retention_sec"`

	// KeyPrefix namespaces every key the store writes, ahead of the
	// "idx:{device}" / "rec:{device}:{ts}" layout.
	KeyPrefix string `yaml:"key_prefix"`

	// Redis configures the backing service connection.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	// Addr is host:port of the store service.
	Addr string `yaml:"addr"`

	// Username and Password are optional ACL credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// DB is the logical database index.
	DB int `yaml:"db"`

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ReadTimeout and WriteTimeout bound socket I/O per command.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PoolSize is the maximum number of pooled connections.
	PoolSize int `yaml:"pool_size"`
}

// Retention returns the retention horizon as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionSec) * time.Second
}

// Load loads store configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:      defaults.DefaultBackend,
		RetentionSec: defaults.DefaultRetentionSec,
		Redis: RedisConfig{
			Addr:         defaults.DefaultRedisAddr,
			DB:           defaults.DefaultRedisDB,
			DialTimeout:  defaults.DefaultRedisDialTimeout,
			ReadTimeout:  defaults.DefaultRedisIOTimeout,
			WriteTimeout: defaults.DefaultRedisIOTimeout,
			PoolSize:     defaults.DefaultRedisPoolSize,
		},
	}
}
