// ABOUTME: Configuration loading and parsing for vito-gateway
// ABOUTME: Supports YAML or TOML files with .env loading, environment variable expansion, and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // embedded zoneinfo for persona.timezone

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete vito-gateway configuration
type Config struct {
	Access       AccessConfig       `yaml:"access" toml:"access"`
	Providers    ProvidersConfig    `yaml:"providers" toml:"providers"`
	Matrix       MatrixConfig       `yaml:"matrix" toml:"matrix"`
	Storage      StorageConfig      `yaml:"storage" toml:"storage"`
	Conversation ConversationConfig `yaml:"conversation" toml:"conversation"`
	Admission    AdmissionConfig    `yaml:"admission" toml:"admission"`
	Replies      RepliesConfig      `yaml:"replies" toml:"replies"`
	Persona      PersonaConfig      `yaml:"persona" toml:"persona"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics" toml:"metrics"`
	Status       StatusConfig       `yaml:"status" toml:"status"`
}

// AccessConfig names the privileged identities
type AccessConfig struct {
	Creator string   `yaml:"creator" toml:"creator"`
	Admins  []string `yaml:"admins" toml:"admins"`
}

// ProvidersConfig holds the two completion backends
type ProvidersConfig struct {
	Gemini     ProviderConfig `yaml:"gemini" toml:"gemini"`
	OpenRouter ProviderConfig `yaml:"openrouter" toml:"openrouter"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// ProviderConfig holds credentials and model selection for one backend
type ProviderConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// MatrixConfig holds Matrix transport configuration
type MatrixConfig struct {
	Homeserver      string   `yaml:"homeserver" toml:"homeserver"`
	UserID          string   `yaml:"user_id" toml:"user_id"`
	AccessToken     string   `yaml:"access_token" toml:"access_token"`
	Username        string   `yaml:"username" toml:"username"`
	Password        string   `yaml:"password" toml:"password"`
	DeviceID        string   `yaml:"device_id" toml:"device_id"`
	Encryption      bool     `yaml:"encryption" toml:"encryption"`
	RecoveryKey     string   `yaml:"recovery_key" toml:"recovery_key"`
	AllowedRooms    []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
	IgnoreUsers     []string `yaml:"ignore_users" toml:"ignore_users"`
	TypingIndicator *bool    `yaml:"typing_indicator" toml:"typing_indicator"`
}

// Typing reports whether the typing indicator is enabled. Defaults to true.
func (m MatrixConfig) Typing() bool {
	return m.TypingIndicator == nil || *m.TypingIndicator
}

// StorageConfig holds on-disk locations
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" toml:"database_path"`
	MemoryPath   string `yaml:"memory_path" toml:"memory_path"`
	CryptoDir    string `yaml:"crypto_dir" toml:"crypto_dir"`
}

// ConversationConfig holds context lifetime settings
type ConversationConfig struct {
	TTL           time.Duration `yaml:"-" toml:"-"`
	SweepInterval time.Duration `yaml:"-" toml:"-"`

	TTLRaw           string `yaml:"ttl" toml:"ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval" toml:"sweep_interval"`
}

// AdmissionConfig holds admission gate settings
type AdmissionConfig struct {
	RecheckInterval    time.Duration `yaml:"-" toml:"-"`
	RecheckIntervalRaw string        `yaml:"recheck_interval" toml:"recheck_interval"`
}

// RepliesConfig controls how long replies are split and paced
type RepliesConfig struct {
	SoftLimit int `yaml:"soft_limit" toml:"soft_limit"`
	HardLimit int `yaml:"hard_limit" toml:"hard_limit"`

	ChunkDelay    time.Duration `yaml:"-" toml:"-"`
	ChunkDelayRaw string        `yaml:"chunk_delay" toml:"chunk_delay"`
}

// PersonaConfig overrides the assistant's system prompt and clock
type PersonaConfig struct {
	SystemPrompt string `yaml:"system_prompt" toml:"system_prompt"`
	Timezone     string `yaml:"timezone" toml:"timezone"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// StatusConfig holds the status server address. Empty disables the server.
type StatusConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Defaults applied when a value is absent.
const (
	DefaultProviderTimeout = 60 * time.Second
	DefaultTTL             = time.Hour
	DefaultSweepInterval   = 5 * time.Minute
	DefaultRecheckInterval = 100 * time.Millisecond
	DefaultSoftLimit       = 1900
	DefaultHardLimit       = 2000
	DefaultChunkDelay      = 250 * time.Millisecond
	DefaultTimezone        = "Asia/Singapore"
	DefaultMetricsPath     = "/metrics"
)

// Path returns the config file location.
// Priority: VITO_CONFIG env var > XDG_CONFIG_HOME/vito/gateway.yaml > ~/.config/vito/gateway.yaml
func Path() string {
	if envPath := os.Getenv("VITO_CONFIG"); envPath != "" {
		return envPath
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "vito", "gateway.yaml")
}

// DataDir returns the default data directory.
// Priority: XDG_DATA_HOME/vito > ~/.local/share/vito
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "vito")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file in the working directory or next to the config file is loaded
// first; variables already set in the environment win. ${VAR_NAME} references
// are then expanded. Files ending in .toml are decoded as TOML, anything else
// as YAML.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	candidates := []string{".env", filepath.Join(filepath.Dir(configPath), ".env")}
	for _, p := range candidates {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Providers.Timeout == 0 {
		c.Providers.Timeout = DefaultProviderTimeout
	}
	if c.Conversation.TTL == 0 {
		c.Conversation.TTL = DefaultTTL
	}
	if c.Conversation.SweepInterval == 0 {
		c.Conversation.SweepInterval = DefaultSweepInterval
	}
	if c.Admission.RecheckIntervalRaw == "" {
		c.Admission.RecheckInterval = DefaultRecheckInterval
	}
	if c.Replies.SoftLimit == 0 {
		c.Replies.SoftLimit = DefaultSoftLimit
	}
	if c.Replies.HardLimit == 0 {
		c.Replies.HardLimit = DefaultHardLimit
	}
	if c.Replies.ChunkDelayRaw == "" {
		c.Replies.ChunkDelay = DefaultChunkDelay
	}
	if c.Persona.Timezone == "" {
		c.Persona.Timezone = DefaultTimezone
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	dataDir := DataDir()
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(dataDir, "vito.db")
	}
	if c.Storage.MemoryPath == "" {
		c.Storage.MemoryPath = filepath.Join(dataDir, "memory.json")
	}
	if c.Storage.CryptoDir == "" {
		c.Storage.CryptoDir = filepath.Join(dataDir, "crypto")
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Access.Creator == "" {
		return errors.New("access.creator is required")
	}

	if c.Providers.Gemini.APIKey == "" {
		return errors.New("providers.gemini.api_key is required")
	}
	if c.Providers.OpenRouter.APIKey == "" {
		return errors.New("providers.openrouter.api_key is required")
	}
	if c.Providers.OpenRouter.Model == "" {
		return errors.New("providers.openrouter.model is required")
	}

	if c.Matrix.Homeserver == "" {
		return errors.New("matrix.homeserver is required")
	}
	u, err := url.Parse(c.Matrix.Homeserver)
	if err != nil {
		return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("matrix.homeserver must use http or https scheme")
	}
	if c.Matrix.AccessToken == "" && (c.Matrix.Username == "" || c.Matrix.Password == "") {
		return errors.New("matrix.access_token or matrix.username and matrix.password are required")
	}
	if c.Matrix.AccessToken != "" && c.Matrix.UserID == "" {
		return errors.New("matrix.user_id is required with matrix.access_token")
	}

	if c.Conversation.TTL < 0 {
		return errors.New("conversation.ttl must be positive")
	}
	if c.Conversation.SweepInterval <= 0 {
		return errors.New("conversation.sweep_interval must be positive")
	}
	if c.Replies.SoftLimit < 0 || c.Replies.HardLimit < c.Replies.SoftLimit {
		return fmt.Errorf("replies.soft_limit (%d) must be positive and not exceed replies.hard_limit (%d)",
			c.Replies.SoftLimit, c.Replies.HardLimit)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
}

// Location resolves persona.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Persona.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("persona.timezone %q: %w", tz, err)
	}
	return loc, nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"providers.timeout", cfg.Providers.TimeoutRaw, &cfg.Providers.Timeout},
		{"conversation.ttl", cfg.Conversation.TTLRaw, &cfg.Conversation.TTL},
		{"conversation.sweep_interval", cfg.Conversation.SweepIntervalRaw, &cfg.Conversation.SweepInterval},
		{"admission.recheck_interval", cfg.Admission.RecheckIntervalRaw, &cfg.Admission.RecheckInterval},
		{"replies.chunk_delay", cfg.Replies.ChunkDelayRaw, &cfg.Replies.ChunkDelay},
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
