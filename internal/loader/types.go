// Package loader - Configuration Types
//
// LOCATION: internal/loader/types.go
//
// Defines the YAML configuration structure for edgeflowd.
//
//	role:     receiver, analyzer, or all
//	log:      level and output format
//	store:    backend selection, retention, Redis connection
//	window:   trailing window width and materialized fields
//	mqtt:     broker connection shared by both handlers
//	archive:  optional Parquet sink for materialized windows

package loader

import (
	"fmt"
	"strconv"
	"time"

	defaults "github.com/xtxerr/edgeflow/config"
	"github.com/xtxerr/edgeflow/internal/constants"
	storageconfig "github.com/xtxerr/edgeflow/internal/storage/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for edgeflowd.
type Config struct {
	// Role selects which handlers this process runs.
	Role string `yaml:"role"`

	Log     LogConfig            `yaml:"log"`
	Store   storageconfig.Config `yaml:"store"`
	Window  WindowConfig         `yaml:"window"`
	MQTT    MQTTConfig           `yaml:"mqtt"`
	Archive ArchiveConfig        `yaml:"archive"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON selects JSON output instead of text.
	JSON bool `yaml:"json"`
}

// WindowConfig configures the analyzer's trailing window.
type WindowConfig struct {
	// WidthSec is the window length in seconds.
	WidthSec int64 `yaml:"width_sec"`

	// MinResolutionSec is the nominal sampling resolution of devices. It is
	// not enforced by the reader.
	MinResolutionSec int64 `yaml:"min_resolution_sec"`

	// Fields are the columns materialized for every window.
	Fields []string `yaml:"fields"`
}

// Width returns the window length as a duration.
func (w WindowConfig) Width() time.Duration {
	return time.Duration(w.WidthSec) * time.Second
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`

	ConnectRetryInterval Duration `yaml:"connect_retry_interval"`
	ConnectTimeout       Duration `yaml:"connect_timeout"`
	InvocationTimeout    Duration `yaml:"invocation_timeout"`
}

// ArchiveConfig configures the Parquet window archive.
type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Role: constants.RoleAll,
		Log: LogConfig{
			Level: "info",
		},
		Store: *storageconfig.DefaultConfig(),
		Window: WindowConfig{
			WidthSec:         defaults.DefaultWindowSec,
			MinResolutionSec: defaults.DefaultMinResolutionSec,
			Fields:           append([]string(nil), defaults.DefaultWindowFields...),
		},
		MQTT: MQTTConfig{
			Broker:               defaults.DefaultMQTTBroker,
			ClientID:             defaults.DefaultMQTTClientID,
			QoS:                  defaults.DefaultMQTTQoS,
			ConnectRetryInterval: Duration(defaults.DefaultMQTTConnectRetryInterval),
			ConnectTimeout:       Duration(defaults.DefaultMQTTConnectTimeout),
			InvocationTimeout:    Duration(defaults.DefaultInvocationTimeout),
		},
		Archive: ArchiveConfig{
			Dir:         defaults.DefaultArchiveDir,
			Compression: defaults.DefaultArchiveCompression,
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML as either a
// duration string ("2s") or whole seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if dur, err := time.ParseDuration(s); err == nil {
		*d = Duration(dur)
		return nil
	}
	sec, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(time.Duration(sec) * time.Second)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
