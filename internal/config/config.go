package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Backend names accepted in remote.backend.
const (
	BackendGDocs = "gdocs"
	BackendS3    = "s3"
)

// Configuration represents the complete DriveFS configuration
type Configuration struct {
	Global GlobalConfig `yaml:"global"`
	Remote RemoteConfig `yaml:"remote"`
	S3     S3Config     `yaml:"s3"`
	Mount  MountConfig  `yaml:"mount"`
}

// GlobalConfig represents global settings
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	LogFile     string `yaml:"log_file"`
	MetricsPort int    `yaml:"metrics_port"`
}

// RemoteConfig selects and tunes the remote document service.
type RemoteConfig struct {
	Backend   string `yaml:"backend"`
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
	// Timeout bounds each request; 0 means no timeout.
	Timeout    time.Duration `yaml:"timeout"`
	AcceptGzip bool          `yaml:"accept_gzip"`
	// RefreshInterval resyncs the listing periodically; 0 syncs only at
	// startup.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	MaxResults      int           `yaml:"max_results"`
}

// S3Config represents the object store backend settings
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	Prefix       string `yaml:"prefix"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// MountConfig represents FUSE mount settings
type MountConfig struct {
	FSName         string        `yaml:"fs_name"`
	Subtype        string        `yaml:"subtype"`
	AllowOther     bool          `yaml:"allow_other"`
	Debug          bool          `yaml:"debug"`
	SingleThreaded bool          `yaml:"single_threaded"`
	AttrTimeout    time.Duration `yaml:"attr_timeout"`
	EntryTimeout   time.Duration `yaml:"entry_timeout"`
}

// NewDefault returns a configuration with default values
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFormat:   "json",
			LogFile:     "",
			MetricsPort: 0,
		},
		Remote: RemoteConfig{
			Backend:         BackendGDocs,
			BaseURL:         "https://docs.google.com",
			UserAgent:       "drivefs",
			Timeout:         0,
			AcceptGzip:      true,
			RefreshInterval: 0,
			MaxResults:      0,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Mount: MountConfig{
			FSName:         "drivefs",
			Subtype:        "drivefs",
			AllowOther:     false,
			Debug:          false,
			SingleThreaded: true,
			AttrTimeout:    time.Second,
			EntryTimeout:   time.Second,
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("DRIVEFS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv("DRIVEFS_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("DRIVEFS_METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid DRIVEFS_METRICS_PORT: %w", err)
		}
		c.Global.MetricsPort = port
	}

	// Remote settings
	if val := os.Getenv("DRIVEFS_BACKEND"); val != "" {
		c.Remote.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("DRIVEFS_BASE_URL"); val != "" {
		c.Remote.BaseURL = val
	}
	if val := os.Getenv("DRIVEFS_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid DRIVEFS_TIMEOUT: %w", err)
		}
		c.Remote.Timeout = d
	}
	if val := os.Getenv("DRIVEFS_REFRESH_INTERVAL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid DRIVEFS_REFRESH_INTERVAL: %w", err)
		}
		c.Remote.RefreshInterval = d
	}

	// S3 settings
	if val := os.Getenv("DRIVEFS_S3_BUCKET"); val != "" {
		c.S3.Bucket = val
	}
	if val := os.Getenv("DRIVEFS_S3_REGION"); val != "" {
		c.S3.Region = val
	}
	if val := os.Getenv("DRIVEFS_S3_ENDPOINT"); val != "" {
		c.S3.Endpoint = val
	}

	// Mount settings
	if val := os.Getenv("DRIVEFS_ALLOW_OTHER"); val != "" {
		c.Mount.AllowOther = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("DRIVEFS_DEBUG"); val != "" {
		c.Mount.Debug = strings.ToLower(val) == "true"
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !contains(validLogLevels, c.Global.LogLevel) {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"json", "console"}
	if !contains(validFormats, c.Global.LogFormat) {
		return fmt.Errorf("invalid log_format: %s (must be one of: %s)",
			c.Global.LogFormat, strings.Join(validFormats, ", "))
	}

	if c.Global.MetricsPort < 0 || c.Global.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port must be between 0 and 65535")
	}

	switch c.Remote.Backend {
	case BackendGDocs:
		u, err := url.Parse(c.Remote.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base_url: %q", c.Remote.BaseURL)
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid backend: %s (must be one of: %s, %s)",
			c.Remote.Backend, BackendGDocs, BackendS3)
	}

	if c.Remote.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if c.Remote.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval cannot be negative")
	}
	if c.Remote.MaxResults < 0 {
		return fmt.Errorf("max_results cannot be negative")
	}
	if c.Mount.AttrTimeout < 0 || c.Mount.EntryTimeout < 0 {
		return fmt.Errorf("attr_timeout and entry_timeout cannot be negative")
	}
	if c.Mount.FSName == "" {
		return fmt.Errorf("fs_name cannot be empty")
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
