package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Rules.Dir != "rules" {
		t.Errorf("expected default rules dir, got %s", cfg.Rules.Dir)
	}
	if cfg.Scanner.Workers != 4 {
		t.Errorf("expected 4 scan workers, got %d", cfg.Scanner.Workers)
	}
	if cfg.Storage.Enabled {
		t.Error("expected storage disabled by default")
	}
	if cfg.Storage.ClickHouse.Database != "iris_triage" {
		t.Errorf("expected iris_triage database, got %s", cfg.Storage.ClickHouse.Database)
	}
	if cfg.Storage.Retention.FindingsTTL != 90*24*time.Hour {
		t.Errorf("expected 90 day finding retention, got %s", cfg.Storage.Retention.FindingsTTL)
	}
	if cfg.Kafka.Topic != "iris-findings" {
		t.Errorf("expected iris-findings topic, got %s", cfg.Kafka.Topic)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  http_port: 9090
  read_timeout: 15s
rules:
  dir: /var/lib/iris/rules
scanner:
  workers: 8
  max_read_bytes: 1048576
logging:
  level: debug
custody:
  enabled: true
  path: /var/lib/iris/custody.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("IRIS_CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("expected 15s read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Rules.Dir != "/var/lib/iris/rules" {
		t.Errorf("expected overridden rules dir, got %s", cfg.Rules.Dir)
	}
	if cfg.Scanner.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Scanner.Workers)
	}
	if !cfg.Custody.Enabled || cfg.Custody.Path != "/var/lib/iris/custody.db" {
		t.Errorf("expected custody settings applied: %+v", cfg.Custody)
	}
	// Untouched sections keep defaults.
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Errorf("expected default write timeout, got %v", cfg.Server.WriteTimeout)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("IRIS_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("expected defaults, got port %d", cfg.Server.HTTPPort)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IRIS_CONFIG_PATH", path)

	if _, err := Load(); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IRIS_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	t.Setenv("IRIS_HTTP_PORT", "7070")
	t.Setenv("IRIS_LOG_LEVEL", "debug")
	t.Setenv("IRIS_RULES_DIR", "/opt/rules")
	t.Setenv("IRIS_SCAN_WORKERS", "16")
	t.Setenv("IRIS_API_KEY", "secret-key")
	t.Setenv("IRIS_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("IRIS_CUSTODY_PATH", "/data/custody.db")
	t.Setenv("CLICKHOUSE_HOST", "ch.internal:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPPort != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Rules.Dir != "/opt/rules" {
		t.Errorf("expected /opt/rules, got %s", cfg.Rules.Dir)
	}
	if cfg.Scanner.Workers != 16 {
		t.Errorf("expected 16 workers, got %d", cfg.Scanner.Workers)
	}
	if !cfg.Auth.Enabled || len(cfg.Auth.APIKeys) != 1 {
		t.Errorf("expected auth enabled with one key: %+v", cfg.Auth)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected kafka enabled by broker override")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("expected trimmed broker list, got %v", cfg.Kafka.Brokers)
	}
	if !cfg.Custody.Enabled || cfg.Custody.Path != "/data/custody.db" {
		t.Errorf("expected custody override: %+v", cfg.Custody)
	}
	if len(cfg.Storage.ClickHouse.Hosts) != 1 || cfg.Storage.ClickHouse.Hosts[0] != "ch.internal:9000" {
		t.Errorf("expected clickhouse host override, got %v", cfg.Storage.ClickHouse.Hosts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }, true},
		{"port too high", func(c *Config) { c.Server.HTTPPort = 70000 }, true},
		{"empty rules dir", func(c *Config) { c.Rules.Dir = "" }, true},
		{"zero max file size", func(c *Config) { c.Rules.MaxFileSize = 0 }, true},
		{"zero workers", func(c *Config) { c.Scanner.Workers = 0 }, true},
		{"zero read cap", func(c *Config) { c.Scanner.MaxReadBytes = 0 }, true},
		{"storage without hosts", func(c *Config) {
			c.Storage.Enabled = true
			c.Storage.ClickHouse.Hosts = nil
		}, true},
		{"kafka without brokers", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}, true},
		{"archive without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Bucket = ""
		}, true},
		{"custody without path", func(c *Config) {
			c.Custody.Enabled = true
			c.Custody.Path = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" a, b ,, c ", ",")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("part %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
