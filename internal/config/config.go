package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the creditledger API configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Payments PaymentsConfig `yaml:"payments"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Events   EventsConfig   `yaml:"events"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PaymentsConfig holds payment gateway settings.
type PaymentsConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

// LedgerConfig holds deduction and retry settings.
type LedgerConfig struct {
	MaxRetries     int     `yaml:"max_retries"`      // conflict retry attempts per write
	RetryBaseMs    int     `yaml:"retry_base_ms"`    // initial backoff between attempts
	WarnFraction   float64 `yaml:"warn_fraction"`    // warn status below this share of the monthly allocation
	HistoryPageMax int     `yaml:"history_page_max"` // upper bound on ledger page size
}

// EventsConfig holds the event pipeline settings. Empty brokers disables
// publishing.
type EventsConfig struct {
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	BufferSize int      `yaml:"buffer_size"`
}

// CatalogConfig overrides the built-in plan and cost tables. Empty maps
// keep the defaults.
type CatalogConfig struct {
	Plans map[string]PlanConfig `yaml:"plans"`
	Costs map[string]int64      `yaml:"costs"`
}

// PlanConfig describes one subscription plan.
type PlanConfig struct {
	MonthlyCredits    int64 `yaml:"monthly_credits"`
	PriceCents        int64 `yaml:"price_cents"`
	MaxJournalists    int   `yaml:"max_journalists"`
	MaxArticlesPerDay int   `yaml:"max_articles_per_day"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Ledger.MaxRetries <= 0 {
		c.Ledger.MaxRetries = 5
	}
	if c.Ledger.RetryBaseMs <= 0 {
		c.Ledger.RetryBaseMs = 20
	}
	if c.Ledger.WarnFraction <= 0 {
		c.Ledger.WarnFraction = 0.15
	}
	if c.Ledger.HistoryPageMax <= 0 {
		c.Ledger.HistoryPageMax = 200
	}
	if c.Events.Topic == "" {
		c.Events.Topic = "credit-ledger-entries"
	}
	if c.Events.BufferSize <= 0 {
		c.Events.BufferSize = 1024
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Ledger.WarnFraction >= 1 {
		return fmt.Errorf("ledger.warn_fraction must be below 1, got %g", c.Ledger.WarnFraction)
	}
	for id, p := range c.Catalog.Plans {
		if p.MonthlyCredits < 0 {
			return fmt.Errorf("catalog.plans.%s.monthly_credits must not be negative, got %d", id, p.MonthlyCredits)
		}
	}
	for action, cost := range c.Catalog.Costs {
		if cost <= 0 {
			return fmt.Errorf("catalog.costs.%s must be positive, got %d", action, cost)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
