/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package config loads pagecache configuration.
//
// Order: DefaultConfig -> .env (optional) -> YAML file (optional) ->
// ApplyEnvOverrides -> Validate.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/suparena/pagecache/errors"
)

// Config holds the engine configuration
type Config struct {
	Remote RemoteConfig `yaml:"remote"`
	Store  StoreConfig  `yaml:"store"`
	Paging PagingConfig `yaml:"paging"`
	Log    LogConfig    `yaml:"log"`
}

// RemoteConfig configures the HTTP collection source
type RemoteConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Collection   string        `yaml:"collection"`
	ArtworkBase  string        `yaml:"artwork_base"`
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// StoreConfig selects and configures the local store backend
type StoreConfig struct {
	// Driver is one of the registered localstore drivers: sqlite, dynamodb, memory.
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// DynamoDBConfig configures the DynamoDB store backend
type DynamoDBConfig struct {
	Table      string `yaml:"table"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	Collection string `yaml:"collection"`
	AccessKey  string `yaml:"-"`
	SecretKey  string `yaml:"-"`
}

// PagingConfig holds the paging constants
type PagingConfig struct {
	PageSize         int `yaml:"page_size"`
	PrefetchDistance int `yaml:"prefetch_distance"`
	InitialLoadSize  int `yaml:"initial_load_size"`
	MaxConcurrency   int `yaml:"max_concurrency"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

const (
	DefaultPageSize         = 20
	DefaultPrefetchDistance = 3
)

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Remote: RemoteConfig{
			BaseURL:      "https://pokeapi.co/api/v2",
			Collection:   "pokemon",
			ArtworkBase:  "https://raw.githubusercontent.com/PokeAPI/sprites/master/sprites/pokemon/other/official-artwork",
			UserAgent:    "pagecache",
			Timeout:      15 * time.Second,
			MaxRetries:   3,
			RetryBackoff: 500 * time.Millisecond,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "pagecache.db",
			DynamoDB: DynamoDBConfig{
				Collection: "pokemon",
			},
		},
		Paging: PagingConfig{
			PageSize:         DefaultPageSize,
			PrefetchDistance: DefaultPrefetchDistance,
			InitialLoadSize:  3 * DefaultPageSize,
			MaxConcurrency:   DefaultPageSize,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, an optional .env file, an optional
// YAML file at path and environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile merges the YAML file at path into cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("PAGECACHE_REMOTE_BASE_URL"); val != "" {
		c.Remote.BaseURL = val
	}
	if val := os.Getenv("PAGECACHE_REMOTE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Remote.Timeout = d
		}
	}
	if val := os.Getenv("PAGECACHE_REMOTE_MAX_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Remote.MaxRetries = n
		}
	}
	if val := os.Getenv("PAGECACHE_STORE_DRIVER"); val != "" {
		c.Store.Driver = val
	}
	if val := os.Getenv("PAGECACHE_STORE_PATH"); val != "" {
		c.Store.Path = val
	}
	if val := os.Getenv("PAGECACHE_DDB_TABLE"); val != "" {
		c.Store.DynamoDB.Table = val
	}
	if val := os.Getenv("PAGECACHE_DDB_REGION"); val != "" {
		c.Store.DynamoDB.Region = val
	} else if val := os.Getenv("AWS_REGION"); val != "" && c.Store.DynamoDB.Region == "" {
		c.Store.DynamoDB.Region = val
	}
	if val := os.Getenv("PAGECACHE_DDB_ENDPOINT"); val != "" {
		c.Store.DynamoDB.Endpoint = val
	}
	if val := os.Getenv("AWS_ACCESS_KEY"); val != "" {
		c.Store.DynamoDB.AccessKey = val
	}
	if val := os.Getenv("AWS_SECRET_KEY"); val != "" {
		c.Store.DynamoDB.SecretKey = val
	}
	if val := os.Getenv("PAGECACHE_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return errors.NewValidationError("remote.base_url", "must not be empty")
	}
	if c.Remote.Collection == "" {
		return errors.NewValidationError("remote.collection", "must not be empty")
	}
	if c.Remote.MaxRetries < 0 {
		return errors.NewValidationError("remote.max_retries", "must not be negative")
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Paging.Validate(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewValidationError("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	return nil
}

// Validate checks the store section.
func (c *StoreConfig) Validate() error {
	switch c.Driver {
	case "sqlite":
		if c.Path == "" {
			return errors.NewValidationError("store.path", "required for the sqlite driver")
		}
	case "dynamodb":
		if c.DynamoDB.Table == "" {
			return errors.NewValidationError("store.dynamodb.table", "required for the dynamodb driver")
		}
		if c.DynamoDB.Region == "" {
			return errors.NewValidationError("store.dynamodb.region", "required for the dynamodb driver")
		}
		if c.DynamoDB.Collection == "" {
			return errors.NewValidationError("store.dynamodb.collection", "must not be empty")
		}
	case "memory":
	case "":
		return errors.NewValidationError("store.driver", "must not be empty")
	}
	return nil
}

// Validate checks the paging section.
func (c *PagingConfig) Validate() error {
	if c.PageSize <= 0 {
		return errors.NewValidationError("paging.page_size", "must be positive")
	}
	if c.PrefetchDistance < 0 {
		return errors.NewValidationError("paging.prefetch_distance", "must not be negative")
	}
	if c.InitialLoadSize < c.PageSize {
		return errors.NewValidationError("paging.initial_load_size", "must be at least page_size")
	}
	if c.MaxConcurrency <= 0 {
		return errors.NewValidationError("paging.max_concurrency", "must be positive")
	}
	return nil
}
