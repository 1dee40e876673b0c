package manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"tensord/internal/native/nativetest"
	"tensord/internal/registry"
)

const (
	testLib        = "/opt/tensord/lib/libtensor_ops.so"
	testBufferSize = 256 << 10
)

// newGPUManager builds a Manager whose resolver loads a simulated backend.
func newGPUManager(t *testing.T, mutate func(*ManagerConfig)) (*Manager, *nativetest.Backend) {
	t.Helper()
	be := nativetest.New()
	cfg := ManagerConfig{
		Native:     nativetest.ResolverOptions(be, testLib),
		MaxBuffers:        4,
		DefaultBufferSize: testBufferSize,
		Registry:          registry.DefaultConfig(),
		Registerer:        prometheus.NewRegistry(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, be
}

// newCPUManager builds a Manager whose resolver finds no backend.
func newCPUManager(t *testing.T, mutate func(*ManagerConfig)) *Manager {
	t.Helper()
	cfg := ManagerConfig{
		Native:   nativetest.ResolverOptions(nativetest.New(), ""),
		Registry: registry.DefaultConfig(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func writeModel(t *testing.T, dir, name string, size int) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
}
