// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for mailpipe.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DefaultSendmailPath is where the sendmail binary is looked up when no
// path is configured.
const DefaultSendmailPath = "/usr/sbin/sendmail"

// Config holds the complete application configuration.
type Config struct {
	Transport string         `yaml:"transport"`
	Sendmail  SendmailConfig `yaml:"sendmail"`
	SES       SESConfig      `yaml:"ses"`
	Graph     GraphConfig    `yaml:"graph"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// SendmailConfig holds the local sendmail transport configuration.
type SendmailConfig struct {
	Path string `yaml:"path"`
	// Strict turns a non-zero sendmail exit status into an error.
	Strict bool `yaml:"strict"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() Config {
	return Config{
		Transport: "sendmail",
		Sendmail:  SendmailConfig{Path: DefaultSendmailPath},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Keys absent from the file keep
// their defaults. Returns an error if the specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	// Environment variables always override YAML values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	cfg.normalize()

	return cfg, nil
}

// SESConfigured returns true if an SES region is set. Credentials may come
// from the default AWS chain.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != ""
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// applyDefaults fills every zero-valued field from defaults.
func (c *Config) applyDefaults() error {
	if err := mergo.Merge(c, defaults()); err != nil {
		return fmt.Errorf("failed to apply config defaults: %w", err)
	}
	return nil
}

// normalize lowercases the enumerated values so YAML and environment
// spellings compare equal.
func (c *Config) normalize() {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	if v := os.Getenv("TRANSPORT"); v != "" {
		c.Transport = v
	}

	if v := os.Getenv("SENDMAIL_PATH"); v != "" {
		c.Sendmail.Path = v
	}
	if v := os.Getenv("SENDMAIL_STRICT"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SENDMAIL_STRICT %q: %w", v, err)
		}
		c.Sendmail.Strict = strict
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}

	if v := os.Getenv("GRAPH_TENANT_ID"); v != "" {
		c.Graph.TenantID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_ID"); v != "" {
		c.Graph.ClientID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_SECRET"); v != "" {
		c.Graph.ClientSecret = v
	}
	if v := os.Getenv("GRAPH_SENDER"); v != "" {
		c.Graph.Sender = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	return nil
}
