// Package loader handles configuration file loading, validation, and
// conversion into component options.
//
// LOCATION: internal/loader/loader.go
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables and applying EDGEFLOW_* overrides
//   - Validating the combined configuration
//   - Converting the YAML representation into component options

package loader

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/edgeflow/internal/archive"
	"github.com/xtxerr/edgeflow/internal/constants"
	"github.com/xtxerr/edgeflow/internal/errors"
	"github.com/xtxerr/edgeflow/internal/logging"
	"github.com/xtxerr/edgeflow/internal/transport/mqtt"
	"github.com/xtxerr/edgeflow/internal/validation"
	"github.com/xtxerr/edgeflow/internal/window"
)

// Environment overrides, applied after the file is parsed.
const (
	EnvRedisAddr    = "EDGEFLOW_REDIS_ADDR"
	EnvRedisDB      = "EDGEFLOW_REDIS_DB"
	EnvMQTTBroker   = "EDGEFLOW_MQTT_BROKER"
	EnvRetentionSec = "EDGEFLOW_RETENTION_SEC"
	EnvWindowSec    = "EDGEFLOW_WINDOW_SEC"
)

// reservedFields are payload keys of the filled-window message; a window
// column with one of these names would collide.
var reservedFields = map[string]bool{
	constants.FieldTimestamp:       true,
	constants.KeyDeviceID:          true,
	constants.KeyUpstreamRequestID: true,
	"start":                        true,
	"end":                          true,
}

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv applies the EDGEFLOW_* overrides found through lookup, normally
// os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	errs := errors.NewValidationErrors()

	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v, ok := lookup(EnvRedisDB); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs.AddField(EnvRedisDB, "not an integer")
		} else {
			cfg.Store.Redis.DB = n
		}
	}
	if v, ok := lookup(EnvMQTTBroker); ok && v != "" {
		cfg.MQTT.Broker = v
	}
	if v, ok := lookup(EnvRetentionSec); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs.AddField(EnvRetentionSec, "not an integer")
		} else {
			cfg.Store.RetentionSec = n
		}
	}
	if v, ok := lookup(EnvWindowSec); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs.AddField(EnvWindowSec, "not an integer")
		} else {
			cfg.Window.WidthSec = n
		}
	}

	return errs.ErrOrNil()
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if !constants.IsValidRole(cfg.Role) {
		errs.AddField("role", fmt.Sprintf("must be one of %v", constants.ValidRoles))
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs.AddField("log.level", err.Error())
	}

	if err := cfg.Store.Validate(); err != nil {
		errs.Add(fmt.Errorf("store: %w: %w", errors.ErrInvalidConfig, err))
	}

	// Window validation
	if cfg.Window.WidthSec <= 0 {
		errs.AddField("window.width_sec", "must be positive")
	}
	if cfg.Window.MinResolutionSec <= 0 {
		errs.AddField("window.min_resolution_sec", "must be positive")
	} else if cfg.Window.MinResolutionSec > cfg.Window.WidthSec && cfg.Window.WidthSec > 0 {
		errs.AddField("window.min_resolution_sec", "cannot exceed window.width_sec")
	}
	if len(cfg.Window.Fields) == 0 {
		errs.AddField("window.fields", "at least one field is required")
	}
	seen := make(map[string]bool, len(cfg.Window.Fields))
	for i, f := range cfg.Window.Fields {
		if err := validation.ValidateFieldName(f); err != nil {
			errs.AddField(fmt.Sprintf("window.fields[%d]", i), err.Error())
			continue
		}
		switch {
		case reservedFields[f]:
			errs.AddField(fmt.Sprintf("window.fields[%d]", i), fmt.Sprintf("%q is reserved", f))
		case seen[f]:
			errs.AddField(fmt.Sprintf("window.fields[%d]", i), fmt.Sprintf("duplicate field %q", f))
		}
		seen[f] = true
	}

	// MQTT validation
	if cfg.MQTT.Broker == "" {
		errs.AddField("mqtt.broker", "cannot be empty")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		errs.AddField("mqtt.qos", "must be 0, 1 or 2")
	}
	if cfg.MQTT.ConnectRetryInterval < 0 || cfg.MQTT.ConnectTimeout < 0 || cfg.MQTT.InvocationTimeout < 0 {
		errs.AddField("mqtt", "timeouts must not be negative")
	}

	// Archive validation (if enabled)
	if cfg.Archive.Enabled {
		if cfg.Archive.Dir == "" {
			errs.AddField("archive.dir", "cannot be empty when enabled")
		}
		if _, err := archive.ParseCompression(cfg.Archive.Compression); err != nil {
			errs.Add(err)
		}
	}

	return errs.ErrOrNil()
}

// =============================================================================
// Conversion: Config → component options
// =============================================================================

// MQTTOptions converts the broker configuration. The client id gets the
// role appended so a receiver and an analyzer can share a broker.
func MQTTOptions(cfg *Config) mqtt.Options {
	return mqtt.Options{
		BrokerURL:            cfg.MQTT.Broker,
		ClientID:             cfg.MQTT.ClientID + "-" + cfg.Role,
		Username:             cfg.MQTT.Username,
		Password:             cfg.MQTT.Password,
		QoS:                  byte(cfg.MQTT.QoS),
		ConnectRetryInterval: cfg.MQTT.ConnectRetryInterval.Duration(),
		ConnectTimeout:       cfg.MQTT.ConnectTimeout.Duration(),
		InvocationTimeout:    cfg.MQTT.InvocationTimeout.Duration(),
	}
}

// WindowOptions converts the window configuration. Clock and sink are left
// to the caller.
func WindowOptions(cfg *Config) window.Options {
	return window.Options{
		Width:  cfg.Window.Width(),
		Fields: append([]string(nil), cfg.Window.Fields...),
	}
}

// ArchiveOptions converts the archive configuration.
func ArchiveOptions(cfg *Config) archive.Options {
	return archive.Options{
		Dir:         cfg.Archive.Dir,
		Compression: cfg.Archive.Compression,
	}
}

