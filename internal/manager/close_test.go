package manager

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tensord/internal/native/nativetest"
	"tensord/internal/registry"
)

// startSlowMatmul launches a device matmul and returns once its buffers are
// allocated, i.e. while the kernel is still sleeping.
func startSlowMatmul(t *testing.T, m *Manager, be *nativetest.Backend) (<-chan error, []float32) {
	t.Helper()
	c := make([]float32, 4)
	done := make(chan error, 1)
	go func() {
		_, err := m.Runtime().MatrixMultiply(context.Background(), []float32{1, 2, 3, 4}, []float32{1, 0, 0, 1}, c, 2, 2, 2)
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for be.Live() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("matmul never reached the device")
		}
		time.Sleep(time.Millisecond)
	}
	return done, c
}

func slowGPUManager(t *testing.T, delay, drain time.Duration) (*Manager, *nativetest.Backend, *[]*nativetest.Library) {
	t.Helper()
	be := nativetest.New()
	be.KernelDelay = delay
	libs := &[]*nativetest.Library{}
	m, _ := newGPUManager(t, func(c *ManagerConfig) {
		c.Native = nativetest.ResolverOptions(be, testLib)
		c.Native.Open = nativetest.Opener(be, nil, libs)
		c.DrainTimeout = drain
	})
	if len(*libs) != 1 {
		t.Fatalf("expected one opened library, got %d", len(*libs))
	}
	return m, be, libs
}

func TestClose_WaitsForDeviceWorkBeforeUnloading(t *testing.T) {
	m, be, libs := slowGPUManager(t, 200*time.Millisecond, 0)
	lib := (*libs)[0]
	done, c := startSlowMatmul(t, m, be)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if lib.Closed() != 1 {
		t.Fatalf("library closed %d times", lib.Closed())
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("in-flight matmul failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("matmul still running after Close returned")
	}
	if n := lib.CallsAfterClose(); n != 0 {
		t.Fatalf("%d backend calls after the library was closed", n)
	}
	if be.Live() != 0 {
		t.Fatalf("%d device buffers leaked", be.Live())
	}
	if c[0] != 1 || c[1] != 2 || c[2] != 3 || c[3] != 4 {
		t.Fatalf("c=%v", c)
	}

	if _, err := m.DeviceSnapshot(0); !IsClosed(err) {
		t.Fatalf("snapshot after Close: %v", err)
	}
	// Later work runs on the host.
	out := make([]float32, 1)
	if _, err := m.Runtime().MatrixMultiply(context.Background(), []float32{2}, []float32{3}, out, 1, 1, 1); err != nil || out[0] != 6 {
		t.Fatalf("host matmul after Close: out=%v err=%v", out, err)
	}
	if lib.CallsAfterClose() != 0 {
		t.Fatalf("host path reached the closed library")
	}
}

func TestClose_DrainTimeoutLeavesBackendLoaded(t *testing.T) {
	m, be, libs := slowGPUManager(t, 300*time.Millisecond, 20*time.Millisecond)
	lib := (*libs)[0]
	done, _ := startSlowMatmul(t, m, be)

	if err := m.Close(); err == nil {
		t.Fatalf("expected Close to report the running operation")
	}
	if lib.Closed() != 0 {
		t.Fatalf("library unloaded under a running kernel")
	}
	if err := <-done; err != nil {
		t.Fatalf("matmul: %v", err)
	}
	if lib.CallsAfterClose() != 0 {
		t.Fatalf("backend used after close")
	}
}

func TestNewWithConfig_FailureReleasesStoreAndBackend(t *testing.T) {
	be := nativetest.New()
	libs := &[]*nativetest.Library{}
	db := filepath.Join(t.TempDir(), "history.db")
	cfg := ManagerConfig{
		Native:            nativetest.ResolverOptions(be, testLib),
		MaxBuffers:        4,
		DefaultBufferSize: testBufferSize,
		HistoryDB:         db,
		Registry:          registry.DefaultConfig(),
		Registerer:        prometheus.NewRegistry(),
	}
	cfg.Native.Open = nativetest.Opener(be, nil, libs)
	cfg.Registry.Policy = "mru"

	if m, err := NewWithConfig(cfg); err == nil {
		_ = m.Close()
		t.Fatalf("expected an unknown policy to fail construction")
	}
	if len(*libs) != 1 {
		t.Fatalf("expected one opened library, got %d", len(*libs))
	}
	if (*libs)[0].Closed() != 1 {
		t.Fatalf("library closed %d times after failed construction", (*libs)[0].Closed())
	}

	store, err := registry.OpenSQLiteStore(db)
	if err != nil {
		t.Fatalf("reopen history store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close history store: %v", err)
	}
}
