package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/edgeflow/internal/constants"
	"github.com/xtxerr/edgeflow/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("EDGEFLOW_TEST_PASSWORD", "s3cret")

	path := writeConfig(t, `
role: analyzer
log:
  level: debug
  json: true
store:
  backend: memory
  retention_sec: 600
  key_prefix: "edge:"
window:
  width_sec: 300
  fields: [temperature, vibration]
mqtt:
  broker: tcp://broker:1883
  password: ${EDGEFLOW_TEST_PASSWORD}
  qos: 1
  connect_retry_interval: 500ms
  invocation_timeout: 10
archive:
  enabled: true
  dir: /tmp/windows
  compression: snappy
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Role != constants.RoleAnalyzer {
		t.Errorf("expected role analyzer, got %s", cfg.Role)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
	if cfg.Store.Backend != constants.BackendMemory || cfg.Store.RetentionSec != 600 || cfg.Store.KeyPrefix != "edge:" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Store.Redis.Addr != "localhost:6379" {
		t.Errorf("expected default redis addr to survive, got %s", cfg.Store.Redis.Addr)
	}
	if cfg.Window.WidthSec != 300 || cfg.Window.MinResolutionSec != 10 {
		t.Errorf("unexpected window config %+v", cfg.Window)
	}
	if strings.Join(cfg.Window.Fields, ",") != "temperature,vibration" {
		t.Errorf("unexpected fields %v", cfg.Window.Fields)
	}
	if cfg.MQTT.Password != "s3cret" {
		t.Errorf("expected expanded password, got %q", cfg.MQTT.Password)
	}
	if cfg.MQTT.ConnectRetryInterval.Duration() != 500*time.Millisecond {
		t.Errorf("expected 500ms retry, got %v", cfg.MQTT.ConnectRetryInterval.Duration())
	}
	if cfg.MQTT.InvocationTimeout.Duration() != 10*time.Second {
		t.Errorf("expected 10s invocation timeout, got %v", cfg.MQTT.InvocationTimeout.Duration())
	}

	opts := MQTTOptions(cfg)
	if opts.ClientID != "edgeflow-analyzer" || opts.QoS != 1 {
		t.Errorf("unexpected mqtt options %+v", opts)
	}
	if w := WindowOptions(cfg); w.Width != 300*time.Second || len(w.Fields) != 2 {
		t.Errorf("unexpected window options %+v", w)
	}
	if a := ArchiveOptions(cfg); a.Dir != "/tmp/windows" || a.Compression != "snappy" {
		t.Errorf("unexpected archive options %+v", a)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeConfig(t, "role: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvRedisAddr:    "redis:6380",
		EnvRedisDB:      "2",
		EnvMQTTBroker:   "tcp://mqtt:1883",
		EnvRetentionSec: "120",
		EnvWindowSec:    "60",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Store.Redis.Addr != "redis:6380" || cfg.Store.Redis.DB != 2 {
		t.Errorf("unexpected redis config %+v", cfg.Store.Redis)
	}
	if cfg.MQTT.Broker != "tcp://mqtt:1883" {
		t.Errorf("unexpected broker %s", cfg.MQTT.Broker)
	}
	if cfg.Store.RetentionSec != 120 || cfg.Window.WidthSec != 60 {
		t.Errorf("unexpected retention/window %d/%d", cfg.Store.RetentionSec, cfg.Window.WidthSec)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == EnvRetentionSec || k == EnvRedisDB {
			return "soon", true
		}
		return "", false
	}

	cfg := DefaultConfig()
	err := ApplyEnv(cfg, lookup)
	if !errors.Is(err, errors.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	var verrs *errors.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs.Errors) != 2 {
		t.Errorf("expected 2 collected errors, got %v", err)
	}
	if cfg.Store.RetentionSec != 3600 {
		t.Errorf("invalid override changed retention to %d", cfg.Store.RetentionSec)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"bad role", func(c *Config) { c.Role = "poller" }, "role"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad backend", func(c *Config) { c.Store.Backend = "sqlite" }, "store"},
		{"zero retention", func(c *Config) { c.Store.RetentionSec = 0 }, "retention_sec"},
		{"zero width", func(c *Config) { c.Window.WidthSec = 0 }, "window.width_sec"},
		{"resolution above width", func(c *Config) { c.Window.MinResolutionSec = 7200 }, "window.min_resolution_sec"},
		{"no fields", func(c *Config) { c.Window.Fields = nil }, "window.fields"},
		{"reserved field", func(c *Config) { c.Window.Fields = []string{"timestamp"} }, "window.fields[0]"},
		{"duplicate field", func(c *Config) { c.Window.Fields = []string{"a", "a"} }, "window.fields[1]"},
		{"dotted field", func(c *Config) { c.Window.Fields = []string{"temperature", "gps.lat"} }, "window.fields[1]"},
		{"empty broker", func(c *Config) { c.MQTT.Broker = "" }, "mqtt.broker"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"archive codec", func(c *Config) { c.Archive.Enabled = true; c.Archive.Compression = "brotli" }, "archive.compression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := Validate(cfg)
			if !errors.Is(err, errors.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to mention %q, got %v", tt.field, err)
			}
		})
	}
}

func TestValidate_DisabledArchiveIgnored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Archive.Compression = "brotli"
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled archive should not be validated: %v", err)
	}
}
