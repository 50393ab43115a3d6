package config

import (
	"fmt"
	"time"
)

// LoadProfile returns the defaults tuned for a named deployment profile.
// The result is validated but not overlaid with environment variables.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name

	switch Environment(name) {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"

	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Server.Address = "127.0.0.1:0"
		cfg.Logging.Level = "warn"
		cfg.Celebration.SessionIdleTTL = time.Minute
		cfg.Celebration.SweepInterval = 10 * time.Second

	case EnvStaging:
		cfg.Environment = EnvStaging
		cfg.Storage.Adapter = "redis"
		cfg.Security.EnableRateLimit = true
		cfg.Metrics.Enabled = true

	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Server.CORSOrigin = ""
		cfg.Storage.Adapter = "sql"
		cfg.Storage.SQL.AutoMigrate = false
		cfg.Economy.Source = EconomyFromSQL
		cfg.Logging.Level = "info"
		cfg.Security.EnableRateLimit = true
		cfg.Security.RateLimit = RateLimitConfig{RequestsPerMinute: 120, BurstSize: 20}
		cfg.Metrics.Enabled = true
		cfg.Webhook.MaxRetries = 5

	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}
	return cfg, nil
}
