// Package constants provides centralized domain-specific constants
// for edgeflow: topic names, payload keys, roles and backend names.
package constants

// =============================================================================
// Topics
// =============================================================================

const (
	// TopicRawFilter is the subscription of the receiver.
	TopicRawFilter = "metrics/raw/#"

	// TopicStoredFilter is the subscription of the analyzer.
	TopicStoredFilter = "metrics/stored/#"

	// TopicStoredPrefix is published to after a record is stored.
	TopicStoredPrefix = "metrics/stored/"

	// TopicFilledPrefix is published to after a window is materialized.
	TopicFilledPrefix = "metrics/filled/"
)

// =============================================================================
// Payload Keys
// =============================================================================

const (
	// FieldTimestamp is the record field holding Unix seconds.
	FieldTimestamp = "timestamp"

	// KeyUpstreamRequestID carries the correlation id between stages.
	KeyUpstreamRequestID = "upstream-request-id"

	// KeyDeviceID names the device in published window payloads.
	KeyDeviceID = "device_id"
)

// =============================================================================
// Roles
// =============================================================================

const (
	RoleReceiver = "receiver"
	RoleAnalyzer = "analyzer"
	RoleAll      = "all"
)

// ValidRoles contains all valid process roles
var ValidRoles = []string{RoleReceiver, RoleAnalyzer, RoleAll}

// IsValidRole checks if a role is valid
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// =============================================================================
// Store Backends
// =============================================================================

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// ValidBackends contains all valid store backends
var ValidBackends = []string{BackendRedis, BackendMemory}

// IsValidBackend checks if a backend is valid
func IsValidBackend(backend string) bool {
	for _, b := range ValidBackends {
		if b == backend {
			return true
		}
	}
	return false
}
