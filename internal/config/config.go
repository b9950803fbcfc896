package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir  = ".pimsync"
	DefaultConfigFile = "config.yaml"
)

// Config represents the application configuration
type Config struct {
	Remote   RemoteConfig   `yaml:"remote"`
	Files    FilesConfig    `yaml:"files"`
	Sync     SyncConfig     `yaml:"sync"`
	Database DatabaseConfig `yaml:"database,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// RemoteConfig holds Shopify Admin API settings
type RemoteConfig struct {
	Store           string      `yaml:"store"`                // Store name (e.g., "badno")
	BaseURL         string      `yaml:"base_url,omitempty"`   // Overrides the store-derived URL
	APIKeyEnv       string      `yaml:"api_key_env"`          // Environment variable for access token
	APIVersion      string      `yaml:"api_version"`          // e.g. 2024-01
	TimeoutSeconds  int         `yaml:"timeout_seconds"`      // Per-attempt timeout
	Retry           RetryConfig `yaml:"retry"`                // 429 policy
	PageSize        int         `yaml:"page_size"`            // Products per page
	LookupBatchSize int         `yaml:"lookup_batch_size"`    // Ids per batched lookup
}

// RetryConfig holds the rate-limit retry policy
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	DelayMs     int `yaml:"delay_ms"`
}

// FilesConfig holds the flat file locations
type FilesConfig struct {
	DataDir      string `yaml:"data_dir"`
	ProductsFile string `yaml:"products_file"`
	FieldsFile   string `yaml:"fields_file"`
	ExportDir    string `yaml:"export_dir,omitempty"`
}

// SyncConfig holds push/pull settings
type SyncConfig struct {
	Live               bool     `yaml:"live"`                // Remote sync toggle
	BatchSize          int      `yaml:"batch_size"`          // Products per push batch
	PaceMs             int      `yaml:"pace_ms"`             // Delay between pushed items
	MetafieldNamespace string   `yaml:"metafield_namespace"` // Namespace for custom fields
	MetafieldType      string   `yaml:"metafield_type"`      // Metafield value type
	BusinessKeys       []string `yaml:"business_keys"`       // Identity keys when no remote id
	StateFile          string   `yaml:"state_file,omitempty"`
	LockFile           string   `yaml:"lock_file,omitempty"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	UseDB      bool             `yaml:"use_db"` // Record sync runs in PostgreSQL
}

// PostgresConfig holds PostgreSQL settings
type PostgresConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Database    string `yaml:"database"`
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`
	SSLMode     string `yaml:"ssl_mode"`
}

// ClickHouseConfig holds ClickHouse settings for sync event analytics
type ClickHouseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Database    string `yaml:"database"`
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`
	Secure      bool   `yaml:"secure"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
	Output string `yaml:"output"` // stderr, stdout or a file path
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			Store:           "badno",
			APIKeyEnv:       "SHOPIFY_ACCESS_TOKEN",
			APIVersion:      "2024-01",
			TimeoutSeconds:  20,
			Retry:           RetryConfig{MaxAttempts: 2, DelayMs: 1500},
			PageSize:        250,
			LookupBatchSize: 50,
		},
		Files: FilesConfig{
			DataDir:      "./data",
			ProductsFile: "products.csv",
			FieldsFile:   "categories.csv",
		},
		Sync: SyncConfig{
			Live:               false,
			BatchSize:          5,
			PaceMs:             500,
			MetafieldNamespace: "custom",
			MetafieldType:      "single_line_text_field",
			BusinessKeys:       []string{"handle", "Product number", "sku_primary"},
		},
		Database: DatabaseConfig{
			UseDB: false,
			Postgres: PostgresConfig{
				Host:        "localhost",
				Port:        5432,
				Database:    "pimsync",
				UsernameEnv: "POSTGRES_USER",
				PasswordEnv: "POSTGRES_PASSWORD",
				SSLMode:     "prefer",
			},
			ClickHouse: ClickHouseConfig{
				Enabled:     false,
				Host:        "localhost",
				Port:        9000,
				Database:    "pimsync",
				UsernameEnv: "CLICKHOUSE_USERNAME",
				PasswordEnv: "CLICKHOUSE_PASSWORD",
				Secure:      false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// LoadEnv reads an optional .env file from the working directory.
// Variables already present in the environment win.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// Load reads the configuration from the config file
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFrom(configPath)
}

// LoadFrom reads the configuration from a specific path
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	return &config, nil
}

// SaveTo writes the configuration to a specific path
func SaveTo(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// InitAt creates a new config file with defaults at path
func InitAt(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	return SaveTo(DefaultConfig(), path)
}

// Exists checks if the config file exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// applyDefaults fills in missing values with defaults
func applyDefaults(config *Config) {
	defaults := DefaultConfig()

	// Remote
	if config.Remote.APIKeyEnv == "" {
		config.Remote.APIKeyEnv = defaults.Remote.APIKeyEnv
	}
	if config.Remote.APIVersion == "" {
		config.Remote.APIVersion = defaults.Remote.APIVersion
	}
	if config.Remote.TimeoutSeconds <= 0 {
		config.Remote.TimeoutSeconds = defaults.Remote.TimeoutSeconds
	}
	if config.Remote.Retry.MaxAttempts <= 0 {
		config.Remote.Retry.MaxAttempts = defaults.Remote.Retry.MaxAttempts
	}
	if config.Remote.Retry.DelayMs < 0 {
		config.Remote.Retry.DelayMs = defaults.Remote.Retry.DelayMs
	}
	if config.Remote.PageSize <= 0 {
		config.Remote.PageSize = defaults.Remote.PageSize
	}
	if config.Remote.LookupBatchSize <= 0 {
		config.Remote.LookupBatchSize = defaults.Remote.LookupBatchSize
	}

	// Files
	if config.Files.DataDir == "" {
		config.Files.DataDir = defaults.Files.DataDir
	}
	if config.Files.ProductsFile == "" {
		config.Files.ProductsFile = defaults.Files.ProductsFile
	}
	if config.Files.FieldsFile == "" {
		config.Files.FieldsFile = defaults.Files.FieldsFile
	}

	// Sync
	if config.Sync.BatchSize <= 0 {
		config.Sync.BatchSize = defaults.Sync.BatchSize
	}
	if config.Sync.PaceMs < 0 {
		config.Sync.PaceMs = defaults.Sync.PaceMs
	}
	if config.Sync.MetafieldNamespace == "" {
		config.Sync.MetafieldNamespace = defaults.Sync.MetafieldNamespace
	}
	if config.Sync.MetafieldType == "" {
		config.Sync.MetafieldType = defaults.Sync.MetafieldType
	}
	if len(config.Sync.BusinessKeys) == 0 {
		config.Sync.BusinessKeys = defaults.Sync.BusinessKeys
	}

	// Database
	if config.Database.Postgres.Port == 0 {
		config.Database.Postgres.Port = defaults.Database.Postgres.Port
	}
	if config.Database.ClickHouse.Port == 0 {
		config.Database.ClickHouse.Port = defaults.Database.ClickHouse.Port
	}

	// Logging
	if config.Logging.Level == "" {
		config.Logging.Level = defaults.Logging.Level
	}
	if config.Logging.Format == "" {
		config.Logging.Format = defaults.Logging.Format
	}
	if config.Logging.Output == "" {
		config.Logging.Output = defaults.Logging.Output
	}
}

// ProductsPath returns the products file path
func (c *Config) ProductsPath() string {
	return filepath.Join(c.Files.DataDir, c.Files.ProductsFile)
}

// FieldsPath returns the category fields file path
func (c *Config) FieldsPath() string {
	return filepath.Join(c.Files.DataDir, c.Files.FieldsFile)
}

// ExportPath returns the directory exports are written to
func (c *Config) ExportPath() string {
	if c.Files.ExportDir != "" {
		return c.Files.ExportDir
	}
	return filepath.Join(c.Files.DataDir, "exports")
}

// StatePath returns the sync journal path
func (c *Config) StatePath() string {
	if c.Sync.StateFile != "" {
		return c.Sync.StateFile
	}
	return filepath.Join(c.Files.DataDir, ".pimsync-state.json")
}

// LockPath returns the job lock path
func (c *Config) LockPath() string {
	if c.Sync.LockFile != "" {
		return c.Sync.LockFile
	}
	return filepath.Join(c.Files.DataDir, ".pimsync.lock")
}

// Timeout returns the per-attempt HTTP timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// RetryDelay returns the fixed delay before a rate-limited request is retried
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Remote.Retry.DelayMs) * time.Millisecond
}

// PaceDelay returns the delay between pushed items
func (c *Config) PaceDelay() time.Duration {
	return time.Duration(c.Sync.PaceMs) * time.Millisecond
}

// Set updates a specific config value
func (c *Config) Set(key, value string) error {
	switch key {
	case "remote.store":
		c.Remote.Store = value
	case "remote.base_url":
		c.Remote.BaseURL = value
	case "remote.api_key_env":
		c.Remote.APIKeyEnv = value
	case "remote.api_version":
		c.Remote.APIVersion = value
	case "remote.timeout_seconds":
		return setInt(&c.Remote.TimeoutSeconds, key, value)
	case "remote.retry.max_attempts":
		return setInt(&c.Remote.Retry.MaxAttempts, key, value)
	case "remote.retry.delay_ms":
		return setInt(&c.Remote.Retry.DelayMs, key, value)
	case "files.data_dir":
		c.Files.DataDir = value
	case "files.products_file":
		c.Files.ProductsFile = value
	case "files.fields_file":
		c.Files.FieldsFile = value
	case "sync.live":
		c.Sync.Live = value == "true"
	case "sync.batch_size":
		return setInt(&c.Sync.BatchSize, key, value)
	case "sync.pace_ms":
		return setInt(&c.Sync.PaceMs, key, value)
	case "sync.metafield_namespace":
		c.Sync.MetafieldNamespace = value
	case "sync.business_keys":
		c.Sync.BusinessKeys = splitList(value)
	case "database.use_db":
		c.Database.UseDB = value == "true"
	case "database.postgres.host":
		c.Database.Postgres.Host = value
	case "database.postgres.database":
		c.Database.Postgres.Database = value
	case "database.postgres.username_env":
		c.Database.Postgres.UsernameEnv = value
	case "database.postgres.password_env":
		c.Database.Postgres.PasswordEnv = value
	case "database.clickhouse.enabled":
		c.Database.ClickHouse.Enabled = value == "true"
	case "database.clickhouse.host":
		c.Database.ClickHouse.Host = value
	case "database.clickhouse.database":
		c.Database.ClickHouse.Database = value
	case "logging.level":
		c.Logging.Level = value
	case "logging.format":
		c.Logging.Format = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// Get retrieves a specific config value
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "remote.store":
		return c.Remote.Store, nil
	case "remote.base_url":
		return c.Remote.BaseURL, nil
	case "remote.api_key_env":
		return c.Remote.APIKeyEnv, nil
	case "remote.api_version":
		return c.Remote.APIVersion, nil
	case "remote.timeout_seconds":
		return strconv.Itoa(c.Remote.TimeoutSeconds), nil
	case "remote.retry.max_attempts":
		return strconv.Itoa(c.Remote.Retry.MaxAttempts), nil
	case "remote.retry.delay_ms":
		return strconv.Itoa(c.Remote.Retry.DelayMs), nil
	case "files.data_dir":
		return c.Files.DataDir, nil
	case "files.products_file":
		return c.Files.ProductsFile, nil
	case "files.fields_file":
		return c.Files.FieldsFile, nil
	case "sync.live":
		return strconv.FormatBool(c.Sync.Live), nil
	case "sync.batch_size":
		return strconv.Itoa(c.Sync.BatchSize), nil
	case "sync.pace_ms":
		return strconv.Itoa(c.Sync.PaceMs), nil
	case "sync.metafield_namespace":
		return c.Sync.MetafieldNamespace, nil
	case "sync.business_keys":
		return strings.Join(c.Sync.BusinessKeys, ","), nil
	case "database.use_db":
		return strconv.FormatBool(c.Database.UseDB), nil
	case "database.postgres.host":
		return c.Database.Postgres.Host, nil
	case "database.postgres.database":
		return c.Database.Postgres.Database, nil
	case "database.postgres.username_env":
		return c.Database.Postgres.UsernameEnv, nil
	case "database.postgres.password_env":
		return c.Database.Postgres.PasswordEnv, nil
	case "database.clickhouse.enabled":
		return strconv.FormatBool(c.Database.ClickHouse.Enabled), nil
	case "database.clickhouse.host":
		return c.Database.ClickHouse.Host, nil
	case "database.clickhouse.database":
		return c.Database.ClickHouse.Database, nil
	case "logging.level":
		return c.Logging.Level, nil
	case "logging.format":
		return c.Logging.Format, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
