// Package config provides configuration defaults for edgeflow.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or EDGEFLOW_* environment
// variables.
package config

import "time"

// =============================================================================
// Retention Defaults
// =============================================================================

const (
	// DefaultRetentionSec is how long a record stays queryable after its
	// timestamp. Applied uniformly to all devices, both as the record TTL and
	// as the index eviction horizon.
	// Override via config: store.retention_sec
	DefaultRetentionSec = 3600

	// DefaultWindowSec is the width of the trailing window the analyzer reads.
	// Override via config: window.width_sec
	DefaultWindowSec = 3600

	// DefaultMinResolutionSec is the nominal sampling resolution of devices.
	// It is carried as configuration for downstream stages; nothing in the
	// store or the window reader enforces it.
	// Override via config: window.min_resolution_sec
	DefaultMinResolutionSec = 10
)

// DefaultWindowFields are the fields the analyzer materializes per row.
var DefaultWindowFields = []string{"temperature", "pressure", "humidity"}

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultBackend selects the store implementation: redis or memory.
	// Override via config: store.backend
	DefaultBackend = "redis"

	// DefaultRedisAddr is the local store service address.
	// Override via config: store.redis.addr or EDGEFLOW_REDIS_ADDR
	DefaultRedisAddr = "localhost:6379"

	// DefaultRedisDB is the logical database index.
	// Override via config: store.redis.db or EDGEFLOW_REDIS_DB
	DefaultRedisDB = 0

	// DefaultRedisDialTimeout bounds connection establishment.
	// Override via config: store.redis.dial_timeout
	DefaultRedisDialTimeout = 5 * time.Second

	// DefaultRedisIOTimeout bounds every read and write on the connection.
	// This is the only timeout the store layer defines.
	// Override via config: store.redis.read_timeout / write_timeout
	DefaultRedisIOTimeout = 3 * time.Second

	// DefaultRedisPoolSize is the connection pool size per process.
	// Override via config: store.redis.pool_size
	DefaultRedisPoolSize = 10
)

// =============================================================================
// Transport Defaults
// =============================================================================

const (
	// DefaultMQTTBroker is the broker the handlers subscribe and publish to.
	// Override via config: mqtt.broker or EDGEFLOW_MQTT_BROKER
	DefaultMQTTBroker = "tcp://localhost:1883"

	// DefaultMQTTClientID prefixes the broker client id.
	// Override via config: mqtt.client_id
	DefaultMQTTClientID = "edgeflow"

	// DefaultMQTTQoS is used for both subscriptions and publishes.
	// Override via config: mqtt.qos
	DefaultMQTTQoS = 0

	// DefaultMQTTConnectRetryInterval is the delay between connect attempts.
	// Override via config: mqtt.connect_retry_interval
	DefaultMQTTConnectRetryInterval = 2 * time.Second

	// DefaultMQTTConnectTimeout bounds the initial broker connect at startup.
	// Override via config: mqtt.connect_timeout
	DefaultMQTTConnectTimeout = 30 * time.Second

	// DefaultMQTTDisconnectQuiesceMs is how long Close waits for in-flight work.
	DefaultMQTTDisconnectQuiesceMs = 250

	// DefaultInvocationTimeout bounds a single handler invocation.
	// Override via config: mqtt.invocation_timeout
	DefaultInvocationTimeout = 30 * time.Second
)

// =============================================================================
// Archive Defaults
// =============================================================================

const (
	// DefaultArchiveDir is where materialized windows are written when the
	// archive is enabled.
	// Override via config: archive.dir
	DefaultArchiveDir = "/var/lib/edgeflow/windows"

	// DefaultArchiveCompression is the Parquet codec for archived windows.
	// Override via config: archive.compression
	DefaultArchiveCompression = "zstd"
)
