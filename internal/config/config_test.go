package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("Expected LogLevel to be INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.LogFormat != "json" {
		t.Errorf("Expected LogFormat to be json, got %s", cfg.Global.LogFormat)
	}
	if cfg.Global.MetricsPort != 0 {
		t.Errorf("Expected metrics to be disabled, got port %d", cfg.Global.MetricsPort)
	}

	if cfg.Remote.Backend != BackendGDocs {
		t.Errorf("Expected Backend to be gdocs, got %s", cfg.Remote.Backend)
	}
	if cfg.Remote.BaseURL != "https://docs.google.com" {
		t.Errorf("Unexpected BaseURL %s", cfg.Remote.BaseURL)
	}
	if !cfg.Remote.AcceptGzip {
		t.Error("Expected AcceptGzip to be true")
	}
	if cfg.Remote.Timeout != 0 || cfg.Remote.RefreshInterval != 0 {
		t.Error("Expected no timeout and no periodic refresh by default")
	}

	if cfg.Mount.FSName != "drivefs" {
		t.Errorf("Expected FSName to be drivefs, got %s", cfg.Mount.FSName)
	}
	if !cfg.Mount.SingleThreaded {
		t.Error("Expected SingleThreaded to be true")
	}
	if cfg.Mount.AllowOther {
		t.Error("Expected AllowOther to be false")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration does not validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Configuration)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(*Configuration) {},
		},
		{
			name:   "valid s3 config",
			mutate: func(c *Configuration) { c.Remote.Backend = BackendS3; c.S3.Bucket = "docs" },
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Configuration) { c.Global.LogLevel = "INVALID" },
			wantErr: true,
			errMsg:  "invalid log_level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Configuration) { c.Global.LogFormat = "xml" },
			wantErr: true,
			errMsg:  "invalid log_format",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *Configuration) { c.Global.MetricsPort = 70000 },
			wantErr: true,
			errMsg:  "metrics_port",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Configuration) { c.Remote.Backend = "ftp" },
			wantErr: true,
			errMsg:  "invalid backend",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Configuration) { c.Remote.Backend = BackendS3 },
			wantErr: true,
			errMsg:  "s3.bucket is required",
		},
		{
			name:    "relative base url",
			mutate:  func(c *Configuration) { c.Remote.BaseURL = "docs.example.com" },
			wantErr: true,
			errMsg:  "invalid base_url",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Configuration) { c.Remote.Timeout = -time.Second },
			wantErr: true,
			errMsg:  "timeout cannot be negative",
		},
		{
			name:    "negative refresh interval",
			mutate:  func(c *Configuration) { c.Remote.RefreshInterval = -time.Second },
			wantErr: true,
			errMsg:  "refresh_interval cannot be negative",
		},
		{
			name:    "negative attr timeout",
			mutate:  func(c *Configuration) { c.Mount.AttrTimeout = -time.Second },
			wantErr: true,
			errMsg:  "attr_timeout",
		},
		{
			name:    "empty fs name",
			mutate:  func(c *Configuration) { c.Mount.FSName = "" },
			wantErr: true,
			errMsg:  "fs_name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
global:
  log_level: DEBUG
  metrics_port: 9090

remote:
  backend: s3
  refresh_interval: 5m

s3:
  bucket: team-docs
  endpoint: http://localhost:9000
  use_path_style: true

mount:
  allow_other: true
`

	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(configFile); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Global.LogLevel != "DEBUG" {
		t.Errorf("Expected LogLevel to be DEBUG, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.MetricsPort != 9090 {
		t.Errorf("Expected MetricsPort to be 9090, got %d", cfg.Global.MetricsPort)
	}
	if cfg.Remote.Backend != BackendS3 {
		t.Errorf("Expected Backend to be s3, got %s", cfg.Remote.Backend)
	}
	if cfg.Remote.RefreshInterval != 5*time.Minute {
		t.Errorf("Expected RefreshInterval to be 5m, got %v", cfg.Remote.RefreshInterval)
	}
	if cfg.S3.Bucket != "team-docs" || !cfg.S3.UsePathStyle {
		t.Errorf("Unexpected s3 section %+v", cfg.S3)
	}
	if !cfg.Mount.AllowOther {
		t.Error("Expected AllowOther to be true")
	}
	// keys absent from the file keep their defaults
	if cfg.Mount.FSName != "drivefs" || !cfg.Remote.AcceptGzip {
		t.Error("Expected unset keys to keep defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded configuration does not validate: %v", err)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error when loading non-existent config file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("global: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := cfg.LoadFromFile(bad); err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("Expected parse error, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DRIVEFS_LOG_LEVEL", "debug")
	t.Setenv("DRIVEFS_METRICS_PORT", "9100")
	t.Setenv("DRIVEFS_BACKEND", "S3")
	t.Setenv("DRIVEFS_TIMEOUT", "30s")
	t.Setenv("DRIVEFS_REFRESH_INTERVAL", "10m")
	t.Setenv("DRIVEFS_S3_BUCKET", "env-bucket")
	t.Setenv("DRIVEFS_S3_REGION", "eu-west-1")
	t.Setenv("DRIVEFS_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("DRIVEFS_ALLOW_OTHER", "true")
	t.Setenv("DRIVEFS_DEBUG", "TRUE")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Global.LogLevel != "DEBUG" {
		t.Errorf("Expected LogLevel DEBUG, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.MetricsPort != 9100 {
		t.Errorf("Expected MetricsPort 9100, got %d", cfg.Global.MetricsPort)
	}
	if cfg.Remote.Backend != BackendS3 {
		t.Errorf("Expected Backend s3, got %s", cfg.Remote.Backend)
	}
	if cfg.Remote.Timeout != 30*time.Second {
		t.Errorf("Expected Timeout 30s, got %v", cfg.Remote.Timeout)
	}
	if cfg.Remote.RefreshInterval != 10*time.Minute {
		t.Errorf("Expected RefreshInterval 10m, got %v", cfg.Remote.RefreshInterval)
	}
	if cfg.S3.Bucket != "env-bucket" || cfg.S3.Region != "eu-west-1" || cfg.S3.Endpoint != "http://minio:9000" {
		t.Errorf("Unexpected s3 section %+v", cfg.S3)
	}
	if !cfg.Mount.AllowOther || !cfg.Mount.Debug {
		t.Error("Expected AllowOther and Debug to be true")
	}
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"DRIVEFS_METRICS_PORT", "abc"},
		{"DRIVEFS_TIMEOUT", "soon"},
		{"DRIVEFS_REFRESH_INTERVAL", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := NewDefault()
			err := cfg.LoadFromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("LoadFromEnv() error = %v, want error naming %s", err, tt.key)
			}
		})
	}
}

func TestSaveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "drivefs.yaml")

	cfg := NewDefault()
	cfg.Remote.Backend = BackendS3
	cfg.S3.Bucket = "saved"
	cfg.Mount.AttrTimeout = 3 * time.Second
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.S3.Bucket != "saved" || loaded.Remote.Backend != BackendS3 {
		t.Errorf("Unexpected reloaded config %+v", loaded.Remote)
	}
	if loaded.Mount.AttrTimeout != 3*time.Second {
		t.Errorf("Expected AttrTimeout 3s, got %v", loaded.Mount.AttrTimeout)
	}
}
