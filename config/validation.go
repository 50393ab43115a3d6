package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"journeykit/adapters/sqlx"
	"journeykit/core"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names so messages match the file keys
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// fieldErrors runs the tag rules over c. Messages for top-level fields are
// returned in top, the rest keyed by section name.
func fieldErrors(c *Config) (top []string, bySection map[string][]string, err error) {
	bySection = map[string][]string{}
	verr := validate.Struct(c)
	if verr == nil {
		return nil, bySection, nil
	}
	var fes validator.ValidationErrors
	if !errors.As(verr, &fes) {
		return nil, nil, verr
	}
	for _, fe := range fes {
		// Namespace is Config.<section>.<field...>
		parts := strings.SplitN(fe.Namespace(), ".", 3)
		switch len(parts) {
		case 3:
			bySection[parts[1]] = append(bySection[parts[1]], fieldMessage(parts[2], fe))
		default:
			top = append(top, fieldMessage(fe.Field(), fe))
		}
	}
	return top, bySection, nil
}

func fieldMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return field + " cannot be empty"
	case "notblank":
		return field + " cannot be blank"
	case "gt":
		return field + " must be positive"
	case "gte":
		return field + " cannot be negative"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(strings.Fields(fe.Param()), ", "))
	case "http_url":
		return fmt.Sprintf("%s %q must be an absolute http(s) URL", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// Validate checks the settings of the selected adapter.
func (s *StorageConfig) Validate() error {
	var errs []string

	switch s.Adapter {
	case "file":
		if s.File.Path == "" {
			errs = append(errs, "file config: path cannot be empty")
		}
	case "redis":
		if s.Redis.Addr == "" {
			errs = append(errs, "redis config: addr cannot be empty")
		}
	case "sql":
		if s.SQL.Driver != sqlx.DriverPostgres && s.SQL.Driver != sqlx.DriverMySQL {
			errs = append(errs, fmt.Sprintf("sql config: driver must be one of: %s, %s", sqlx.DriverPostgres, sqlx.DriverMySQL))
		}
		if s.SQL.DSN == "" {
			errs = append(errs, "sql config: dsn cannot be empty")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate checks the rate limit budget when limiting is on.
func (s *SecurityConfig) Validate() error {
	if !s.EnableRateLimit {
		return nil
	}
	var errs []string
	if s.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "rate_limit.requests_per_minute must be positive")
	}
	if s.RateLimit.BurstSize <= 0 {
		errs = append(errs, "rate_limit.burst_size must be positive")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks that config-sourced economy tables build.
func (e *EconomyConfig) Validate() error {
	if e.Source != EconomyFromConfig {
		return nil
	}
	if _, err := e.Build(); err != nil {
		var inErr *core.InputError
		if errors.As(err, &inErr) {
			return fmt.Errorf("%s: %s", inErr.Field, inErr.Reason)
		}
		return err
	}
	return nil
}

// Validate validates the catalog path extension.
func (c *CatalogConfig) Validate() error {
	if c.Path == "" {
		return nil
	}
	switch strings.ToLower(filepath.Ext(c.Path)) {
	case ".json", ".yaml", ".yml":
		return nil
	}
	return errors.New("path must end in .json, .yaml or .yml")
}

// Validate requires a delivery timeout once endpoints are configured.
func (w *WebhookConfig) Validate() error {
	if len(w.Endpoints) > 0 && w.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}
