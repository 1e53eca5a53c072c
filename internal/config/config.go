// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vgate Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	vgerr "github.com/vgate-dev/vgate/pkg/errors"
)

// Config is the top-level Vgate configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Gateway   GatewayConfig             `mapstructure:"gateway"`
	Backend   BackendConfig             `mapstructure:"backend"`
	Cache     CacheConfig               `mapstructure:"cache"`
	Search    SearchConfig              `mapstructure:"search"`
	Pool      PoolConfig                `mapstructure:"pool"`
	Endpoints map[string]EndpointConfig `mapstructure:"endpoints"`
	Groups    map[string]GroupConfig    `mapstructure:"groups"`
}

// ServerConfig controls how Vgate listens for connections.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// GatewayConfig controls request dispatch behavior.
type GatewayConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// BackendConfig selects and tunes the vector storage engine.
type BackendConfig struct {
	Engine      string        `mapstructure:"engine"`
	Path        string        `mapstructure:"path"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	Retry       RetryConfig   `mapstructure:"retry"`
}

// RetryConfig tunes the backend retry policy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// CacheConfig tunes the search result cache.
type CacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// SearchConfig tunes the search engine.
type SearchConfig struct {
	EmbedGroup string `mapstructure:"embed_group"`
	MaxTopK    int    `mapstructure:"max_top_k"`
}

// PoolConfig tunes external model connection health tracking.
type PoolConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ProbeInterval    time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
}

// EndpointConfig holds credentials and location for one external model endpoint.
type EndpointConfig struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
}

// GroupConfig defines a pool group over a set of endpoints.
type GroupConfig struct {
	Size      int      `mapstructure:"size"`
	Endpoints []string `mapstructure:"endpoints"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix VGATE_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("gateway.request_timeout", "30s")
	v.SetDefault("backend.engine", "sqlite")
	v.SetDefault("backend.path", "vgate.db")
	v.SetDefault("backend.call_timeout", "5s")
	v.SetDefault("backend.retry.max_attempts", 3)
	v.SetDefault("backend.retry.base_delay", "100ms")
	v.SetDefault("backend.retry.max_delay", "2s")
	v.SetDefault("cache.max_entries", 4096)
	v.SetDefault("cache.ttl", "60s")
	v.SetDefault("search.embed_group", "default")
	v.SetDefault("search.max_top_k", 1000)
	v.SetDefault("pool.failure_threshold", 3)
	v.SetDefault("pool.probe_interval", "10s")
	v.SetDefault("pool.probe_timeout", "2s")

	// Environment
	v.SetEnvPrefix("VGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, vgerr.Errorf(vgerr.CodeConfigLoadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, vgerr.Errorf(vgerr.CodeConfigLoadFailure, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns a slice
// of all validation errors found, collecting all issues rather than
// stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateGateway()...)
	errs = append(errs, c.validateBackend()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateSearch()...)
	errs = append(errs, c.validatePool()...)
	errs = append(errs, c.validateEndpoints()...)
	errs = append(errs, c.validateGroups()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else {
		host, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else {
			_ = host // host can be empty (e.g., ":8080"), which is valid
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 1 || port > 65535 {
				errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be between 1 and 65535, got %d",
					port,
				))
			}
		}
	}

	return errs
}

func (c *Config) validateGateway() []error {
	var errs []error

	if c.Gateway.RequestTimeout <= 0 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: gateway.request_timeout must be greater than 0, got %s",
			c.Gateway.RequestTimeout,
		))
	}

	return errs
}

func (c *Config) validateBackend() []error {
	var errs []error

	validEngines := map[string]bool{"sqlite": true, "memory": true}
	if !validEngines[c.Backend.Engine] {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: backend.engine must be one of [sqlite, memory], got %q",
			c.Backend.Engine,
		))
	}

	if c.Backend.Engine == "sqlite" && c.Backend.Path == "" {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: backend.path must not be empty when backend.engine is sqlite"))
	}

	if c.Backend.CallTimeout <= 0 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: backend.call_timeout must be greater than 0, got %s",
			c.Backend.CallTimeout,
		))
	}

	if c.Backend.Retry.MaxAttempts < 1 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: backend.retry.max_attempts must be at least 1, got %d",
			c.Backend.Retry.MaxAttempts,
		))
	}

	if c.Backend.Retry.BaseDelay <= 0 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: backend.retry.base_delay must be greater than 0, got %s",
			c.Backend.Retry.BaseDelay,
		))
	}

	if c.Backend.Retry.MaxDelay < c.Backend.Retry.BaseDelay {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: backend.retry.max_delay must be at least base_delay, got %s",
			c.Backend.Retry.MaxDelay,
		))
	}

	return errs
}

func (c *Config) validateCache() []error {
	var errs []error

	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: cache.max_entries must be greater than 0, got %d",
			c.Cache.MaxEntries,
		))
	}

	if c.Cache.TTL <= 0 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: cache.ttl must be greater than 0, got %s",
			c.Cache.TTL,
		))
	}

	return errs
}

func (c *Config) validateSearch() []error {
	var errs []error

	if c.Search.EmbedGroup == "" {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue, "config: search.embed_group must not be empty"))
	}

	if c.Search.MaxTopK <= 0 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: search.max_top_k must be greater than 0, got %d",
			c.Search.MaxTopK,
		))
	}

	return errs
}

func (c *Config) validatePool() []error {
	var errs []error

	if c.Pool.FailureThreshold < 1 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: pool.failure_threshold must be at least 1, got %d",
			c.Pool.FailureThreshold,
		))
	}

	if c.Pool.ProbeInterval <= 0 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: pool.probe_interval must be greater than 0, got %s",
			c.Pool.ProbeInterval,
		))
	}

	if c.Pool.ProbeTimeout <= 0 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: pool.probe_timeout must be greater than 0, got %s",
			c.Pool.ProbeTimeout,
		))
	}

	return errs
}

func (c *Config) validateEndpoints() []error {
	var errs []error

	validProviders := map[string]bool{"openai": true}
	for name, ep := range c.Endpoints {
		if !validProviders[ep.Provider] {
			errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
				"config: endpoints.%s.provider must be one of [openai], got %q",
				name, ep.Provider,
			))
		}
	}

	return errs
}

func (c *Config) validateGroups() []error {
	var errs []error

	for name, grp := range c.Groups {
		if grp.Size < 1 {
			errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
				"config: groups.%s.size must be at least 1, got %d",
				name, grp.Size,
			))
		}

		if len(grp.Endpoints) == 0 {
			errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
				"config: groups.%s.endpoints must not be empty", name))
			continue
		}

		// Groups may only reference configured endpoints.
		for i, epName := range grp.Endpoints {
			if _, ok := c.Endpoints[epName]; !ok {
				errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
					"config: groups.%s.endpoints[%d] references endpoint %q which is not configured",
					name, i, epName,
				))
			}
		}
	}

	return errs
}
