// Package config provides YAML-based configuration for the solver client.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/bytes"
	"github.com/qps-ai/client/internal/solver"
	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration.
type AppConfig struct {
	// Collaborator service that extracts and answers questions
	Service ServiceConfig `yaml:"service"`

	// HTTP server for the presentation layer
	Server ServerConfig `yaml:"server"`

	// Upload limits
	Documents DocumentsConfig `yaml:"documents"`

	Advanced AdvancedConfig `yaml:"advanced"`
}

// ServiceConfig contains collaborator connection settings
type ServiceConfig struct {
	URL                   string  `yaml:"url"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	UploadTimeoutSeconds  int     `yaml:"upload_timeout_seconds"`
	RequestsPerSecond     float64 `yaml:"requests_per_second"`
	Burst                 int     `yaml:"burst"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bind_address"`
	EnableCORS   bool   `yaml:"enable_cors"`
	AllowOrigins string `yaml:"allow_origins"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
	IdleTimeout  int    `yaml:"idle_timeout_seconds"`
	BodyLimit    string `yaml:"body_limit"`
}

// DocumentsConfig contains upload settings
type DocumentsConfig struct {
	MaxUploadSize string `yaml:"max_upload_size"`
	AllowedTypes  string `yaml:"allowed_types"`
}

// AdvancedConfig contains logging and diagnostics options
type AdvancedConfig struct {
	LogLevel             string `yaml:"log_level"`
	LogFormat            string `yaml:"log_format"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
	EnableMetrics        bool   `yaml:"enable_metrics"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Service: ServiceConfig{
			URL:                   "http://localhost:8000",
			RequestTimeoutSeconds: 120,
			UploadTimeoutSeconds:  300,
			RequestsPerSecond:     0,
			Burst:                 1,
		},
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 330,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Documents: DocumentsConfig{
			MaxUploadSize: "50M",
			AllowedTypes:  ".pdf,image/*",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			LogFormat:            "console",
			EnableRequestLogging: true,
			EnableMetrics:        true,
		},
	}
}

// LoadEnvFile loads variables from a .env file if one exists. Variables
// already set in the environment win.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file, writing the defaults
// there on first run.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Fields missing from the file keep their defaults.
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Question paper solver configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if url := os.Getenv("QPS_SERVICE_URL"); url != "" {
		c.Service.URL = url
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Advanced.LogFormat = format
	}
}

// Validate checks values that would otherwise fail later at startup.
func (c *AppConfig) Validate() error {
	if c.Service.URL == "" {
		return errors.New("service.url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Service.RequestsPerSecond < 0 {
		return fmt.Errorf("service.requests_per_second must not be negative: %v", c.Service.RequestsPerSecond)
	}
	if _, err := c.MaxUploadBytes(); err != nil {
		return err
	}
	return nil
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// MaxUploadBytes parses Documents.MaxUploadSize ("50M", "1G"). Empty means
// no limit.
func (c *AppConfig) MaxUploadBytes() (int64, error) {
	if c.Documents.MaxUploadSize == "" {
		return 0, nil
	}
	n, err := bytes.Parse(c.Documents.MaxUploadSize)
	if err != nil {
		return 0, fmt.Errorf("invalid documents.max_upload_size %q: %w", c.Documents.MaxUploadSize, err)
	}
	return n, nil
}

// AllowedTypes returns the upload filter patterns.
func (c *AppConfig) AllowedTypes() []string {
	var out []string
	for _, p := range strings.Split(c.Documents.AllowedTypes, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SolverConfig converts the service section for solver.NewClient.
func (c *AppConfig) SolverConfig() solver.Config {
	return solver.Config{
		BaseURL:           c.Service.URL,
		RequestTimeout:    time.Duration(c.Service.RequestTimeoutSeconds) * time.Second,
		UploadTimeout:     time.Duration(c.Service.UploadTimeoutSeconds) * time.Second,
		RequestsPerSecond: c.Service.RequestsPerSecond,
		Burst:             c.Service.Burst,
	}
}
