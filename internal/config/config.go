package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.datasync/datasync.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Store    StoreConfig    `yaml:"store"`
	Extracts ExtractsConfig `yaml:"extracts"`
	Sync     SyncConfig     `yaml:"sync,omitempty"`
	Logging  LogConfig      `yaml:"logging,omitempty"`
}

// StoreConfig defines the relational store connection.
type StoreConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Database       string `yaml:"database"`
	Schema         string `yaml:"schema,omitempty"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	SSL            bool   `yaml:"ssl,omitempty"`
	MaxConnections int    `yaml:"max_connections,omitempty"` // default 10, max 50
}

// ExtractsConfig defines where source extract files live.
type ExtractsConfig struct {
	Directory string `yaml:"directory"`
}

// SyncConfig defines run behavior.
type SyncConfig struct {
	BatchSize int    `yaml:"batch_size,omitempty"` // default 500
	BackupDir string `yaml:"backup_dir,omitempty"` // default ~/.datasync/backups/
	ReportDir string `yaml:"report_dir,omitempty"` // default ~/.datasync/reports/
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level         string `yaml:"level,omitempty"`          // debug, info, warn, error
	Directory     string `yaml:"directory,omitempty"`      // default ~/.datasync/logs/
	RetentionDays int    `yaml:"retention_days,omitempty"` // default 30
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Store.MaxConnections == 0 {
		c.Store.MaxConnections = 10
	}
	if c.Store.MaxConnections > 50 {
		c.Store.MaxConnections = 50
	}
	if c.Store.Schema == "" {
		c.Store.Schema = "public"
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 500
	}
	if c.Sync.BackupDir == "" {
		c.Sync.BackupDir = ExpandHome("~/.datasync/backups/")
	}
	if c.Sync.ReportDir == "" {
		c.Sync.ReportDir = ExpandHome("~/.datasync/reports/")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.datasync/logs/")
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = 30
	}
}

// ConnString builds a pgx connection string for the store.
func (c *StoreConfig) ConnString() string {
	sslmode := "disable"
	if c.SSL {
		sslmode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.Username), url.QueryEscape(c.Password),
		c.Host, c.Port, c.Database, sslmode)
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Store.Password, err = ResolveValue(c.Store.Password)
	if err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	return nil
}

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
