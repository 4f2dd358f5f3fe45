package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the config file written by payrecon init.
const FileName = "payrecon.yaml"

// EnvPrefix prefixes environment overrides, e.g. PAYRECON_AITABLE_TOKEN.
const EnvPrefix = "PAYRECON"

// Store backends.
const (
	BackendAITable = "aitable"
	BackendSQLite  = "sqlite"
)

// Config represents the top-level payrecon.yaml configuration.
type Config struct {
	AITable  AITableConfig  `yaml:"aitable"`
	Store    StoreConfig    `yaml:"store"`
	Matching MatchingConfig `yaml:"matching"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AITableConfig points at the AITable space holding the datasheets.
type AITableConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
	Tables  TablesConfig  `yaml:"tables"`
}

// TablesConfig holds datasheet ids. With the sqlite backend they are just
// table names.
type TablesConfig struct {
	Payments       string `yaml:"payments"`
	Clients        string `yaml:"clients"`
	ClientMappings string `yaml:"client_mappings"`
	Subscriptions  string `yaml:"subscriptions"` // optional
}

// StoreConfig selects where records live.
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

// MatchingConfig controls automatic client matching.
type MatchingConfig struct {
	AutoThreshold int `yaml:"auto_threshold"` // 1..100
}

// ServerConfig controls payrecon serve.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// Load reads a payrecon.yaml file from disk. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		AITable: AITableConfig{
			BaseURL: "https://aitable.ai/fusion/v1",
			Timeout: 30 * time.Second,
			Tables: TablesConfig{
				Payments:       "payments",
				Clients:        "clients",
				ClientMappings: "client_mappings",
				Subscriptions:  "subscriptions",
			},
		},
		Store: StoreConfig{
			Backend:    BackendAITable,
			SQLitePath: "payrecon.db",
		},
		Matching: MatchingConfig{
			AutoThreshold: 70,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"console", "json"}
)

// Validate reports every problem with cfg at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendAITable:
		if c.AITable.BaseURL == "" {
			errs = append(errs, errors.New("aitable.base_url is required"))
		}
		if c.AITable.Token == "" {
			errs = append(errs, fmt.Errorf("aitable.token is required (set it in %s or %s_AITABLE_TOKEN)", FileName, EnvPrefix))
		}
		if c.AITable.Timeout < 0 {
			errs = append(errs, errors.New("aitable.timeout must not be negative"))
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be %q or %q, got %q", BackendAITable, BackendSQLite, c.Store.Backend))
	}

	for name, id := range map[string]string{
		"payments":        c.AITable.Tables.Payments,
		"clients":         c.AITable.Tables.Clients,
		"client_mappings": c.AITable.Tables.ClientMappings,
	} {
		if id == "" {
			errs = append(errs, fmt.Errorf("aitable.tables.%s is required", name))
		}
	}

	if t := c.Matching.AutoThreshold; t < 1 || t > 100 {
		errs = append(errs, fmt.Errorf("matching.auto_threshold must be between 1 and 100, got %d", t))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("server.max_upload_mb must be positive"))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, fmt.Errorf("logging.level must be one of %s", strings.Join(logLevels, ", ")))
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Logging.Format)) {
		errs = append(errs, fmt.Errorf("logging.format must be one of %s", strings.Join(logFormats, ", ")))
	}

	return errors.Join(errs...)
}

// NewViper returns a viper instance reading PAYRECON_* environment variables,
// e.g. PAYRECON_AITABLE_TOKEN for aitable.token. Callers may bind flags to it.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// overrides lists every key ApplyEnv reads and where it lands.
var overrides = []struct {
	key   string
	apply func(c *Config, v *viper.Viper)
}{
	{"aitable.base_url", func(c *Config, v *viper.Viper) { c.AITable.BaseURL = v.GetString("aitable.base_url") }},
	{"aitable.token", func(c *Config, v *viper.Viper) { c.AITable.Token = v.GetString("aitable.token") }},
	{"aitable.timeout", func(c *Config, v *viper.Viper) { c.AITable.Timeout = v.GetDuration("aitable.timeout") }},
	{"aitable.tables.payments", func(c *Config, v *viper.Viper) { c.AITable.Tables.Payments = v.GetString("aitable.tables.payments") }},
	{"aitable.tables.clients", func(c *Config, v *viper.Viper) { c.AITable.Tables.Clients = v.GetString("aitable.tables.clients") }},
	{"aitable.tables.client_mappings", func(c *Config, v *viper.Viper) {
		c.AITable.Tables.ClientMappings = v.GetString("aitable.tables.client_mappings")
	}},
	{"aitable.tables.subscriptions", func(c *Config, v *viper.Viper) {
		c.AITable.Tables.Subscriptions = v.GetString("aitable.tables.subscriptions")
	}},
	{"store.backend", func(c *Config, v *viper.Viper) { c.Store.Backend = strings.ToLower(v.GetString("store.backend")) }},
	{"store.sqlite_path", func(c *Config, v *viper.Viper) { c.Store.SQLitePath = v.GetString("store.sqlite_path") }},
	{"matching.auto_threshold", func(c *Config, v *viper.Viper) { c.Matching.AutoThreshold = v.GetInt("matching.auto_threshold") }},
	{"server.addr", func(c *Config, v *viper.Viper) { c.Server.Addr = v.GetString("server.addr") }},
	{"server.max_upload_mb", func(c *Config, v *viper.Viper) { c.Server.MaxUploadMB = v.GetInt("server.max_upload_mb") }},
	{"logging.level", func(c *Config, v *viper.Viper) { c.Logging.Level = v.GetString("logging.level") }},
	{"logging.format", func(c *Config, v *viper.Viper) { c.Logging.Format = v.GetString("logging.format") }},
}

// ApplyEnv overlays values set in the environment or on bound flags.
func (c *Config) ApplyEnv(v *viper.Viper) {
	for _, o := range overrides {
		if v.IsSet(o.key) {
			o.apply(c, v)
		}
	}
}
