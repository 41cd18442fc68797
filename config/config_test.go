/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/pagecache/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.Paging.PageSize)
	assert.Equal(t, 3, cfg.Paging.PrefetchDistance)
	assert.Equal(t, 60, cfg.Paging.InitialLoadSize)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "pokemon", cfg.Remote.Collection)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pagecache.yml")
	content := `
remote:
  base_url: http://localhost:8080/api
  timeout: 2s
store:
  driver: memory
paging:
  page_size: 10
  initial_load_size: 30
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api", cfg.Remote.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Paging.PageSize)
	assert.Equal(t, 3, cfg.Paging.PrefetchDistance, "unset keys keep their defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PAGECACHE_REMOTE_BASE_URL", "http://remote.test")
	t.Setenv("PAGECACHE_REMOTE_TIMEOUT", "750ms")
	t.Setenv("PAGECACHE_STORE_DRIVER", "dynamodb")
	t.Setenv("PAGECACHE_DDB_TABLE", "cache")
	t.Setenv("PAGECACHE_DDB_REGION", "eu-west-1")
	t.Setenv("AWS_ACCESS_KEY", "AKID")
	t.Setenv("AWS_SECRET_KEY", "SECRET")
	t.Setenv("PAGECACHE_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "http://remote.test", cfg.Remote.BaseURL)
	assert.Equal(t, 750*time.Millisecond, cfg.Remote.Timeout)
	assert.Equal(t, "dynamodb", cfg.Store.Driver)
	assert.Equal(t, "cache", cfg.Store.DynamoDB.Table)
	assert.Equal(t, "eu-west-1", cfg.Store.DynamoDB.Region)
	assert.Equal(t, "AKID", cfg.Store.DynamoDB.AccessKey)
	assert.Equal(t, "SECRET", cfg.Store.DynamoDB.SecretKey)
	assert.Equal(t, "warn", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty base url", func(c *Config) { c.Remote.BaseURL = "" }, "remote.base_url"},
		{"negative retries", func(c *Config) { c.Remote.MaxRetries = -1 }, "remote.max_retries"},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"dynamodb without table", func(c *Config) { c.Store.Driver = "dynamodb"; c.Store.DynamoDB.Region = "us-east-1" }, "store.dynamodb.table"},
		{"zero page size", func(c *Config) { c.Paging.PageSize = 0 }, "paging.page_size"},
		{"small initial load", func(c *Config) { c.Paging.InitialLoadSize = 5 }, "paging.initial_load_size"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))

			var verr *errors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
