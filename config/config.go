package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"journeykit/adapters/redis"
	"journeykit/adapters/sqlx"
	"journeykit/points"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" env:"JOURNEYKIT_ENV" validate:"required"`
	Profile     string      `json:"profile" env:"JOURNEYKIT_PROFILE"`

	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
	Security SecurityConfig `json:"security"`

	// Gamification settings
	Economy     EconomyConfig     `json:"economy"`
	Catalog     CatalogConfig     `json:"catalog"`
	Celebration CelebrationConfig `json:"celebration"`
	Webhook     WebhookConfig     `json:"webhook"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"JOURNEYKIT_SERVER_ADDR" validate:"required"`
	PathPrefix        string        `json:"path_prefix" env:"JOURNEYKIT_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"JOURNEYKIT_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"JOURNEYKIT_SERVER_READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"JOURNEYKIT_SERVER_WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"JOURNEYKIT_SERVER_IDLE_TIMEOUT" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"JOURNEYKIT_SERVER_READ_HEADER_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"JOURNEYKIT_SERVER_SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string       `json:"adapter" env:"JOURNEYKIT_STORAGE_ADAPTER" validate:"oneof=memory redis sql file"`
	Redis   redis.Config `json:"redis,omitempty"`
	SQL     sqlx.Config  `json:"sql,omitempty"`
	File    FileConfig   `json:"file,omitempty"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" env:"JOURNEYKIT_STORAGE_FILE_PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"JOURNEYKIT_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format     string            `json:"format" env:"JOURNEYKIT_LOG_FORMAT" validate:"oneof=json text"`
	Output     string            `json:"output" env:"JOURNEYKIT_LOG_OUTPUT" validate:"oneof=stdout stderr"`
	Attributes map[string]string `json:"attributes,omitempty" env:"JOURNEYKIT_LOG_ATTRIBUTES"`
}

// MetricsConfig holds metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"JOURNEYKIT_METRICS_ENABLED"`
	Address string `json:"address" env:"JOURNEYKIT_METRICS_ADDR" validate:"required_if=Enabled true"`
	Path    string `json:"path" env:"JOURNEYKIT_METRICS_PATH" validate:"required_if=Enabled true"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"JOURNEYKIT_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"JOURNEYKIT_SECURITY_API_KEYS" validate:"dive,notblank"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" env:"JOURNEYKIT_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int `json:"burst_size" env:"JOURNEYKIT_SECURITY_RATE_LIMIT_BURST"`
}

// Economy sources.
const (
	EconomyFromConfig = "config"
	EconomyFromSQL    = "sql"
)

// EconomyConfig tunes points. Empty tiers or base points fall back to the
// stock tables.
type EconomyConfig struct {
	Source          string         `json:"source" env:"JOURNEYKIT_ECONOMY_SOURCE" validate:"oneof=config sql"`
	Tiers           []points.Tier  `json:"tiers,omitempty"`
	BasePoints      map[string]int `json:"base_points,omitempty" env:"JOURNEYKIT_ECONOMY_BASE_POINTS"`
	ComboBonus      int            `json:"combo_bonus" env:"JOURNEYKIT_ECONOMY_COMBO_BONUS"`
	EarlyBirdBonus  int            `json:"early_bird_bonus" env:"JOURNEYKIT_ECONOMY_EARLY_BIRD_BONUS"`
	EarlyBirdCutoff string         `json:"early_bird_cutoff" env:"JOURNEYKIT_ECONOMY_EARLY_BIRD_CUTOFF"`
}

// CatalogConfig points at a badge catalog file. An empty path selects the
// built-in catalog.
type CatalogConfig struct {
	Path string `json:"path" env:"JOURNEYKIT_CATALOG_PATH"`
}

// CelebrationConfig bounds how long idle session queues are kept.
type CelebrationConfig struct {
	SessionIdleTTL time.Duration `json:"session_idle_ttl" env:"JOURNEYKIT_CELEBRATION_SESSION_IDLE_TTL" validate:"gt=0"`
	SweepInterval  time.Duration `json:"sweep_interval" env:"JOURNEYKIT_CELEBRATION_SWEEP_INTERVAL" validate:"gt=0"`
}

// WebhookConfig lists endpoints that receive domain events.
type WebhookConfig struct {
	Endpoints  []string      `json:"endpoints,omitempty" env:"JOURNEYKIT_WEBHOOK_ENDPOINTS" validate:"dive,http_url"`
	Events     []string      `json:"events,omitempty" env:"JOURNEYKIT_WEBHOOK_EVENTS" validate:"dive,oneof=points_added badge_awarded celebration_queued evaluation_failed"`
	Secret     string        `json:"secret,omitempty" env:"JOURNEYKIT_WEBHOOK_SECRET"`
	Timeout    time.Duration `json:"timeout" env:"JOURNEYKIT_WEBHOOK_TIMEOUT"`
	MaxRetries int           `json:"max_retries" env:"JOURNEYKIT_WEBHOOK_MAX_RETRIES" validate:"gte=0"`
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load from environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

var configExtensions = []string{".json", ".yaml", ".yml"}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return errors.New("config file path cannot contain '..'")
	}

	ext := strings.ToLower(filepath.Ext(cleanPath))
	known := false
	for _, e := range configExtensions {
		if ext == e {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("config file must have one of the extensions: %s", strings.Join(configExtensions, ", "))
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file. Environment
// variables override file values.
func LoadFromFile(path string) (*Config, error) {
	// Validate the path for security
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share the
// json struct tags.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			File: FileConfig{
				Path: "./data/journeykit.json",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
			APIKeys: []string{},
		},
		Economy: EconomyConfig{
			Source:          EconomyFromConfig,
			ComboBonus:      points.DefaultComboBonus,
			EarlyBirdBonus:  points.DefaultEarlyBirdBonus,
			EarlyBirdCutoff: points.DefaultEarlyBirdCutoff.String(),
		},
		Celebration: CelebrationConfig{
			SessionIdleTTL: 2 * time.Hour,
			SweepInterval:  5 * time.Minute,
		},
		Webhook: WebhookConfig{
			Timeout:    5 * time.Second,
			MaxRetries: 3,
		},
	}
}

// Validate checks field rules from the validate tags in one pass, then the
// cross-field rules of each section, and reports every problem grouped by
// section.
func (c *Config) Validate() error {
	top, bySection, err := fieldErrors(c)
	if err != nil {
		return err
	}

	sections := []struct {
		name string
		fn   func() error
	}{
		{"server", nil},
		{"storage", c.Storage.Validate},
		{"logging", nil},
		{"metrics", nil},
		{"security", c.Security.Validate},
		{"economy", c.Economy.Validate},
		{"catalog", c.Catalog.Validate},
		{"celebration", nil},
		{"webhook", c.Webhook.Validate},
	}
	errs := top
	for _, s := range sections {
		msgs := bySection[s.name]
		if s.fn != nil {
			if err := s.fn(); err != nil {
				msgs = append(msgs, err.Error())
			}
		}
		if len(msgs) > 0 {
			errs = append(errs, fmt.Sprintf("%s config: %s", s.name, strings.Join(msgs, "; ")))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	// Create a copy for redaction
	cfg := *c

	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if cfg.Webhook.Secret != "" {
		cfg.Webhook.Secret = "[REDACTED]"
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{"[REDACTED]"}
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
