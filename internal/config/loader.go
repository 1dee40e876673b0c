package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"tensord/internal/bufferpool"
	"tensord/internal/common/fsutil"
	"tensord/internal/registry"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	MaxBufferCount         int    `json:"max_buffer_count" yaml:"max_buffer_count" toml:"max_buffer_count"`
	DefaultBufferSizeBytes uint64 `json:"default_buffer_size_bytes" yaml:"default_buffer_size_bytes" toml:"default_buffer_size_bytes"`

	ModelCacheDirectory string `json:"model_cache_directory" yaml:"model_cache_directory" toml:"model_cache_directory"`
	MaxCachedModels     int    `json:"max_cached_models" yaml:"max_cached_models" toml:"max_cached_models"`
	MaxCacheMemoryBytes uint64 `json:"max_cache_memory_bytes" yaml:"max_cache_memory_bytes" toml:"max_cache_memory_bytes"`
	EvictionPolicy      string `json:"eviction_policy" yaml:"eviction_policy" toml:"eviction_policy"`
	// TrackVersions is a pointer so an explicit false survives defaulting.
	TrackVersions       *bool  `json:"track_versions" yaml:"track_versions" toml:"track_versions"`
	MaxVersionsPerModel int    `json:"max_versions_per_model" yaml:"max_versions_per_model" toml:"max_versions_per_model"`
	HistoryDB           string `json:"history_db" yaml:"history_db" toml:"history_db"`

	NativeLibrary     string   `json:"native_library" yaml:"native_library" toml:"native_library"`
	NativeSearchPaths []string `json:"native_search_paths" yaml:"native_search_paths" toml:"native_search_paths"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
}

// Defaults for keys left unset.
const (
	DefaultAddr       = ":8080"
	DefaultLogLevel   = "info"
	DefaultModelCache = "~/.cache/tensord/models"
)

// Defaults returns a Config with every key set to its default.
func Defaults() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset keys in place.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MaxBufferCount == 0 {
		c.MaxBufferCount = bufferpool.DefaultMaxBuffers
	}
	if c.DefaultBufferSizeBytes == 0 {
		c.DefaultBufferSizeBytes = bufferpool.DefaultBufferSize
	}
	if c.ModelCacheDirectory == "" {
		c.ModelCacheDirectory = DefaultModelCache
	}
	if c.MaxCachedModels == 0 {
		c.MaxCachedModels = registry.DefaultMaxCachedModels
	}
	if c.MaxCacheMemoryBytes == 0 {
		c.MaxCacheMemoryBytes = registry.DefaultMaxCacheMemoryBytes
	}
	if c.EvictionPolicy == "" {
		c.EvictionPolicy = string(registry.PolicyLRU)
	}
	if c.TrackVersions == nil {
		t := true
		c.TrackVersions = &t
	}
	if c.MaxVersionsPerModel == 0 {
		c.MaxVersionsPerModel = registry.DefaultMaxVersionsPerModel
	}
}

// Validate reports the first invalid key. It expects defaults to be applied.
func (c Config) Validate() error {
	if c.MaxBufferCount < 0 {
		return fmt.Errorf("max_buffer_count must be positive, got %d", c.MaxBufferCount)
	}
	if c.MaxCachedModels < 0 {
		return fmt.Errorf("max_cached_models must be positive, got %d", c.MaxCachedModels)
	}
	if c.MaxVersionsPerModel < 0 {
		return fmt.Errorf("max_versions_per_model must be positive, got %d", c.MaxVersionsPerModel)
	}
	if _, err := registry.ParsePolicy(c.EvictionPolicy); err != nil {
		return fmt.Errorf("eviction_policy: %w", err)
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if c.CORSEnabled && len(c.CORSAllowedOrigins) == 0 {
		return fmt.Errorf("cors_allowed_origins is required when cors_enabled is set")
	}
	return nil
}

// RegistryConfig converts the registry keys.
func (c Config) RegistryConfig() (registry.Config, error) {
	p, err := registry.ParsePolicy(c.EvictionPolicy)
	if err != nil {
		return registry.Config{}, err
	}
	track := true
	if c.TrackVersions != nil {
		track = *c.TrackVersions
	}
	return registry.Config{
		MaxCachedModels:     c.MaxCachedModels,
		MaxCacheMemoryBytes: c.MaxCacheMemoryBytes,
		Policy:              p,
		TrackVersions:       track,
		MaxVersionsPerModel: c.MaxVersionsPerModel,
	}, nil
}

// ResolvePaths expands '~' in the directory and file keys.
func (c *Config) ResolvePaths() error {
	for _, p := range []*string{&c.ModelCacheDirectory, &c.HistoryDB} {
		abs, err := fsutil.Abs(*p)
		if err != nil {
			return err
		}
		*p = abs
	}
	for i, sp := range c.NativeSearchPaths {
		abs, err := fsutil.Abs(sp)
		if err != nil {
			return err
		}
		c.NativeSearchPaths[i] = abs
	}
	return nil
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
