package config

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SecretStore resolves secrets by key.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvironmentSecretStore reads secrets from process environment variables.
type EnvironmentSecretStore struct{}

// NewEnvironmentSecretStore returns a store backed by os.LookupEnv.
func NewEnvironmentSecretStore() *EnvironmentSecretStore {
	return &EnvironmentSecretStore{}
}

// Get returns the value of key or an error when it is unset or empty.
func (s *EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("secret %s not set", key)
	}
	return v, nil
}

// GetWithDefault returns def when key cannot be resolved.
func (s *EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, def string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// Secret keys read by LoadSecrets.
const (
	SecretSQLDSN        = "JOURNEYKIT_SECRET_SQL_DSN"
	SecretRedisPassword = "JOURNEYKIT_SECRET_REDIS_PASSWORD"
	SecretWebhook       = "JOURNEYKIT_SECRET_WEBHOOK"
	SecretAPIKeys       = "JOURNEYKIT_SECRET_API_KEYS"
)

// LoadSecrets fills credential fields from store. Missing secrets leave the
// current values in place.
func (c *Config) LoadSecrets(ctx context.Context, store SecretStore) {
	get := func(key, current string) string {
		v, err := store.Get(ctx, key)
		if err != nil {
			return current
		}
		return v
	}

	c.Storage.SQL.DSN = get(SecretSQLDSN, c.Storage.SQL.DSN)
	c.Storage.Redis.Password = get(SecretRedisPassword, c.Storage.Redis.Password)
	c.Webhook.Secret = get(SecretWebhook, c.Webhook.Secret)

	if keys := get(SecretAPIKeys, ""); keys != "" {
		c.Security.APIKeys = c.Security.APIKeys[:0]
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Security.APIKeys = append(c.Security.APIKeys, k)
			}
		}
	}
}

// LoadSecretsFromEnv is LoadSecrets with an EnvironmentSecretStore.
func (c *Config) LoadSecretsFromEnv(ctx context.Context) {
	c.LoadSecrets(ctx, NewEnvironmentSecretStore())
}
