// ABOUTME: Configuration loading and parsing for the agentchat client
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/agentchat/internal/auth"
)

// Server modes.
const (
	ModeStream  = "stream"
	ModeExecute = "execute"
)

// Config represents the complete client configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Display DisplayConfig `yaml:"display" toml:"display"`
}

// ServerConfig describes where the agent service lives and how to talk to it
type ServerConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	StreamPath  string `yaml:"stream_path" toml:"stream_path"`
	ExecutePath string `yaml:"execute_path" toml:"execute_path"`
	Mode        string `yaml:"mode" toml:"mode"`

	DialTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	DialTimeoutRaw string `yaml:"dial_timeout" toml:"dial_timeout"`
}

// AuthConfig holds the credential and how it is sent
type AuthConfig struct {
	// Scheme is "api_key" (X-API-Key header) or "bearer"
	Scheme    string `yaml:"scheme" toml:"scheme"`
	Token     string `yaml:"token" toml:"token"`
	TokenFile string `yaml:"token_file" toml:"token_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DisplayConfig tunes terminal output
type DisplayConfig struct {
	Markdown bool `yaml:"markdown" toml:"markdown"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:     "http://localhost:8080",
			StreamPath:  "/api/agent/stream",
			ExecutePath: "/api/agent/execute",
			Mode:        ModeStream,
			DialTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Scheme: string(auth.SchemeAPIKey),
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Display: DisplayConfig{
			Markdown: true,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/agentchat/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "agentchat", "config.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url must use http or https scheme")
	}

	for name, p := range map[string]string{
		"server.stream_path":  c.Server.StreamPath,
		"server.execute_path": c.Server.ExecutePath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with /", name)
		}
	}

	switch c.Server.Mode {
	case ModeStream, ModeExecute:
	default:
		return fmt.Errorf("server.mode must be %q or %q, got %q", ModeStream, ModeExecute, c.Server.Mode)
	}

	if c.Server.DialTimeout < 0 {
		return fmt.Errorf("server.dial_timeout must not be negative")
	}

	if _, err := auth.ParseScheme(c.Auth.Scheme); err != nil {
		return fmt.Errorf("auth.scheme: %w", err)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Server.DialTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Server.DialTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing dial_timeout %q: %w", cfg.Server.DialTimeoutRaw, err)
		}
		cfg.Server.DialTimeout = d
	}
	return nil
}
