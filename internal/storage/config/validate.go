package config

import (
	"errors"
	"fmt"

	"github.com/xtxerr/edgeflow/internal/constants"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if !constants.IsValidBackend(c.Backend) {
		errs = append(errs, fmt.Errorf("backend must be one of %v, got %q", constants.ValidBackends, c.Backend))
	}

	if c.RetentionSec <= 0 {
		errs = append(errs, errors.New("retention_sec must be positive"))
	}

	if c.Backend == constants.BackendRedis {
		if err := c.Redis.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the Redis connection settings.
func (c *RedisConfig) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}

	if c.DB < 0 {
		errs = append(errs, errors.New("db must not be negative"))
	}

	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}

	if c.PoolSize < 0 {
		errs = append(errs, errors.New("pool_size must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
