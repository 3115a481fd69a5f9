// ABOUTME: Configuration loading and parsing for the ocm server
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultHTTPAddr        = "127.0.0.1:7420"
	DefaultCacheTTL        = 60 * time.Second
	DefaultHostKeyTimeout  = 5 * time.Minute
	DefaultAskpassSession  = 12 * time.Hour
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	minHostKeyTimeout      = time.Second
	askpassSecretMinLength = 32
)

// Config represents the complete ocm configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Tailscale   TailscaleConfig   `yaml:"tailscale" toml:"tailscale"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Askpass     AskpassConfig     `yaml:"askpass" toml:"askpass"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	SSH         SSHConfig         `yaml:"ssh" toml:"ssh"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"` // serve :443 with tailnet certs
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig controls the bearer-token gate on /api/*.
type AuthConfig struct {
	// Disabled lets every request through with an anonymous identity.
	Disabled       bool     `yaml:"disabled" toml:"disabled"`
	PublicPaths    []string `yaml:"public_paths" toml:"public_paths"`
	PublicPrefixes []string `yaml:"public_prefixes" toml:"public_prefixes"`
}

// AskpassConfig controls the /git/askpass endpoint.
type AskpassConfig struct {
	// JWTSecret, when set, requires spawned Git processes to present a
	// session token minted with this secret.
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	// AllowRemote accepts askpass calls from non-loopback peers.
	AllowRemote bool `yaml:"allow_remote" toml:"allow_remote"`

	SessionTTL    time.Duration `yaml:"-" toml:"-"`
	SessionTTLRaw string        `yaml:"session_ttl" toml:"session_ttl"`
}

// CredentialsConfig tunes the credential broker.
type CredentialsConfig struct {
	CacheTTL    time.Duration `yaml:"-" toml:"-"`
	CacheTTLRaw string        `yaml:"cache_ttl" toml:"cache_ttl"`
}

// SSHConfig tunes host-key trust.
type SSHConfig struct {
	HostKeyTimeout    time.Duration `yaml:"-" toml:"-"`
	HostKeyTimeoutRaw string        `yaml:"host_key_timeout" toml:"host_key_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration usable without a file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overrides fields from OCM_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("OCM_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv("OCM_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("OCM_AUTH_DISABLED"); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing OCM_AUTH_DISABLED %q: %w", v, err)
		}
		c.Auth.Disabled = disabled
	}
	if v := os.Getenv("OCM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return c.Validate()
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

func applyDefaults(cfg *Config) {
	// the loopback listener serves askpass even when tailscale is enabled
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Credentials.CacheTTL == 0 {
		cfg.Credentials.CacheTTL = DefaultCacheTTL
	}
	if cfg.SSH.HostKeyTimeout == 0 {
		cfg.SSH.HostKeyTimeout = DefaultHostKeyTimeout
	}
	if cfg.Askpass.SessionTTL == 0 {
		cfg.Askpass.SessionTTL = DefaultAskpassSession
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Server.HTTPAddr); err != nil {
		return fmt.Errorf("server.http_addr %q: %w", c.Server.HTTPAddr, err)
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Askpass.JWTSecret != "" && len(c.Askpass.JWTSecret) < askpassSecretMinLength {
		return fmt.Errorf("askpass.jwt_secret must be at least %d bytes", askpassSecretMinLength)
	}

	if c.Credentials.CacheTTL < 0 {
		return fmt.Errorf("credentials.cache_ttl must not be negative")
	}
	if c.SSH.HostKeyTimeout < minHostKeyTimeout {
		return fmt.Errorf("ssh.host_key_timeout must be at least %s", minHostKeyTimeout)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"askpass.session_ttl", cfg.Askpass.SessionTTLRaw, &cfg.Askpass.SessionTTL},
		{"credentials.cache_ttl", cfg.Credentials.CacheTTLRaw, &cfg.Credentials.CacheTTL},
		{"ssh.host_key_timeout", cfg.SSH.HostKeyTimeoutRaw, &cfg.SSH.HostKeyTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
