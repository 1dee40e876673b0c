package config

import (
	"os"
	"path/filepath"
	"testing"

	"tensord/internal/registry"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `addr: ":9999"
max_buffer_count: 8
model_cache_directory: /tmp/models
eviction_policy: lfu
track_versions: false
native_search_paths: [/opt/a, /opt/b]
cors_enabled: true
cors_allowed_origins: ["https://example.com"]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.MaxBufferCount != 8 || cfg.ModelCacheDirectory != "/tmp/models" || cfg.EvictionPolicy != "lfu" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.TrackVersions == nil || *cfg.TrackVersions {
		t.Fatalf("explicit track_versions=false lost")
	}
	if len(cfg.NativeSearchPaths) != 2 || !cfg.CORSEnabled || cfg.CORSAllowedOrigins[0] != "https://example.com" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","max_cached_models":3,"max_cache_memory_bytes":1048576,"history_db":"/var/lib/h.db"}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.MaxCachedModels != 3 || cfg.MaxCacheMemoryBytes != 1<<20 || cfg.HistoryDB != "/var/lib/h.db" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\ndefault_buffer_size_bytes=4096\nnative_library=\"/opt/lib/libtensor_ops.so\"\nmax_versions_per_model=5\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.DefaultBufferSizeBytes != 4096 || cfg.NativeLibrary != "/opt/lib/libtensor_ops.so" || cfg.MaxVersionsPerModel != 5 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestDefaults(t *testing.T) {
	c := Defaults()
	if c.Addr != DefaultAddr || c.LogLevel != "info" || c.MaxBufferCount != 16 || c.DefaultBufferSizeBytes != 64<<20 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.MaxCachedModels != 10 || c.MaxCacheMemoryBytes != 4<<30 || c.EvictionPolicy != "lru" || c.MaxVersionsPerModel != 3 {
		t.Fatalf("unexpected registry defaults: %+v", c)
	}
	if c.TrackVersions == nil || !*c.TrackVersions {
		t.Fatalf("track_versions should default to true")
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	rc, err := c.RegistryConfig()
	if err != nil || rc != registry.DefaultConfig() {
		t.Fatalf("registry config=%+v err=%v", rc, err)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	off := false
	c := Config{MaxBufferCount: 2, EvictionPolicy: "size-based", TrackVersions: &off}
	c.ApplyDefaults()
	if c.MaxBufferCount != 2 || *c.TrackVersions {
		t.Fatalf("explicit values overwritten: %+v", c)
	}
	rc, err := c.RegistryConfig()
	if err != nil || rc.Policy != registry.PolicySizeBased || rc.TrackVersions {
		t.Fatalf("registry config=%+v err=%v", rc, err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"policy":      func(c *Config) { c.EvictionPolicy = "mru" },
		"buffers":     func(c *Config) { c.MaxBufferCount = -1 },
		"models":      func(c *Config) { c.MaxCachedModels = -2 },
		"versions":    func(c *Config) { c.MaxVersionsPerModel = -1 },
		"log level":   func(c *Config) { c.LogLevel = "loud" },
		"cors origin": func(c *Config) { c.CORSEnabled = true },
	}
	for name, mutate := range cases {
		c := Defaults()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestResolvePaths(t *testing.T) {
	c := Config{ModelCacheDirectory: "models", NativeSearchPaths: []string{"lib"}}
	if err := c.ResolvePaths(); err != nil {
		t.Fatalf("ResolvePaths: %v", err)
	}
	if !filepath.IsAbs(c.ModelCacheDirectory) || !filepath.IsAbs(c.NativeSearchPaths[0]) {
		t.Fatalf("paths not absolute: %+v", c)
	}
	if c.HistoryDB != "" {
		t.Fatalf("empty history_db must stay empty")
	}
}
