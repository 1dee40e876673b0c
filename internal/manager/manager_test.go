package manager

import (
	"context"
	"path/filepath"
	"testing"

	"tensord/internal/native/nativetest"
	"tensord/internal/registry"
)

func TestNewWithConfig_GPUMode(t *testing.T) {
	m, be := newGPUManager(t, nil)
	if !m.Ready() || !m.IsGPUAvailable() || m.DeviceCount() != 1 {
		t.Fatalf("expected ready gpu manager")
	}
	if m.Pool() == nil || m.Pool().MaxBuffers() != 4 {
		t.Fatalf("pool not configured")
	}
	if !m.Runtime().DeviceAvailable() {
		t.Fatalf("runtime should dispatch to the device")
	}
	snap, err := m.DeviceSnapshot(0)
	if err != nil || snap.ComputeCapability != "8.6" {
		t.Fatalf("snapshot=%+v err=%v", snap, err)
	}

	c := make([]float32, 1)
	if _, err := m.Runtime().MatrixMultiply(context.Background(), []float32{2}, []float32{5}, c, 1, 1, 1); err != nil {
		t.Fatalf("MatrixMultiply: %v", err)
	}
	if c[0] != 10 {
		t.Fatalf("c=%v", c)
	}
	if be.Live() == 0 {
		t.Fatalf("device buffers should be pooled after a dispatch")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if be.Live() != 0 {
		t.Fatalf("Close leaked %d device buffers", be.Live())
	}
	if m.Ready() {
		t.Fatalf("closed manager must not be ready")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNewWithConfig_CPUFallback(t *testing.T) {
	m := newCPUManager(t, nil)
	if !m.Ready() {
		t.Fatalf("cpu mode is still ready")
	}
	if m.IsGPUAvailable() || m.Pool() != nil {
		t.Fatalf("no backend expected")
	}
	if _, err := m.DeviceSnapshot(0); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	out := make([]float32, 2)
	if _, err := m.Runtime().MeanPooling(context.Background(), []float32{1, 3, 5, 7}, []int64{1, 1}, out, 1, 2, 2); err != nil {
		t.Fatalf("MeanPooling: %v", err)
	}
	if out[0] != 3 || out[1] != 5 {
		t.Fatalf("out=%v", out)
	}
	d := m.Diagnostics()
	if !d.Initialized || d.Loaded || d.LastError == "" {
		t.Fatalf("diagnostics=%+v", d)
	}
	st := m.Status()
	if st.Mode != ModeCPU || st.Pool != nil || st.LastError == "" {
		t.Fatalf("status=%+v", st)
	}
}

func TestGetModel_DiskFallback(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "minilm@2.onnx", 64)
	m, _ := newGPUManager(t, func(c *ManagerConfig) { c.ModelDir = dir })

	info, err := m.GetModel(context.Background(), "minilm")
	if err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if info.Version != "2" || info.SizeBytes != 64 || info.DeviceTarget != defaultGPUTarget {
		t.Fatalf("unexpected info %+v", info)
	}
	again, err := m.GetModel(context.Background(), "minilm")
	if err != nil || again.AccessCount != 1 {
		t.Fatalf("second lookup should hit the cache: %+v err=%v", again, err)
	}
	if _, err := m.GetModel(context.Background(), "missing"); !IsModelNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if models := m.ListModels(); len(models) != 1 || models[0].Name != "minilm" || models[0].Size != "64 B" {
		t.Fatalf("ListModels=%+v", models)
	}
	arts, err := m.AvailableModels()
	if err != nil || len(arts) != 1 {
		t.Fatalf("AvailableModels=%+v err=%v", arts, err)
	}
}

func TestGetModel_NoModelDir(t *testing.T) {
	m := newCPUManager(t, nil)
	if _, err := m.GetModel(context.Background(), "x"); !IsModelNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	_ = m.Close()
	if _, err := m.GetModel(context.Background(), "x"); !IsClosed(err) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestHistoryPersistsThroughManager(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "history.db")
	writeModel(t, dir, "enc@1.onnx", 8)
	m := newCPUManager(t, func(c *ManagerConfig) {
		c.ModelDir = dir
		c.HistoryDB = db
	})
	if _, err := m.GetModel(context.Background(), "enc"); err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if !m.Registry().Unload("enc") {
		t.Fatalf("unload failed")
	}
	if h := m.History("enc"); len(h) != 1 || h[0].IsLoaded {
		t.Fatalf("history=%+v", h)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m2 := newCPUManager(t, func(c *ManagerConfig) { c.HistoryDB = db })
	if h := m2.History("enc"); len(h) != 1 || h[0].Version != "1" {
		t.Fatalf("history after restart=%+v", h)
	}
}

func TestStatus_GPU(t *testing.T) {
	m, _ := newGPUManager(t, func(c *ManagerConfig) {
		c.Registry.Policy = registry.PolicyFIFO
	})
	st := m.Status()
	if st.State != string(StateReady) || st.Mode != ModeGPU || !st.GPUAvailable {
		t.Fatalf("status=%+v", st)
	}
	if st.LoadedPath != testLib || st.LastError != "" {
		t.Fatalf("loaded path=%q last error=%q", st.LoadedPath, st.LastError)
	}
	if st.Pool == nil || st.Pool.MaxBuffers != 4 || st.Pool.DefaultBufferSize != testBufferSize {
		t.Fatalf("pool status=%+v", st.Pool)
	}
	if st.Registry.Policy != "fifo" || st.Registry.MaxCachedModels != 10 {
		t.Fatalf("registry status=%+v", st.Registry)
	}
}

func TestSanityCheck(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "a.onnx", 1)
	writeModel(t, dir, "b.gguf", 1)
	m, _ := newGPUManager(t, func(c *ManagerConfig) { c.ModelDir = dir })
	r := m.SanityCheck()
	if !r.BackendLoaded || r.LibraryPath != testLib || !r.ModelDirExists || r.Artifacts != 2 || r.Error != "" {
		t.Fatalf("report=%+v", r)
	}

	missing := newCPUManager(t, func(c *ManagerConfig) { c.ModelDir = filepath.Join(dir, "nope") })
	r = missing.SanityCheck()
	if r.BackendLoaded || r.ModelDirExists || r.Error == "" {
		t.Fatalf("report=%+v", r)
	}
}

func TestNewWithConfig_BadPolicy(t *testing.T) {
	_, err := NewWithConfig(ManagerConfig{
		Native:   nativetest.ResolverOptions(nativetest.New(), ""),
		Registry: registry.Config{Policy: "mru"},
	})
	if err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestServiceMethods(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "clip@3.safetensors", 2048)
	m, _ := newGPUManager(t, func(c *ManagerConfig) { c.ModelDir = dir })

	mod, err := m.LoadModel(context.Background(), "clip")
	if err != nil || mod.Type != "safetensors" || mod.Size != "2.0 KiB" || !mod.IsLoaded {
		t.Fatalf("LoadModel=%+v err=%v", mod, err)
	}
	arts, err := m.Artifacts()
	if err != nil || len(arts) != 1 || arts[0].Version != "3" {
		t.Fatalf("Artifacts=%+v err=%v", arts, err)
	}
	dev, err := m.Device(0)
	if err != nil || dev.MultiprocessorCount != 68 || dev.TimestampUnixMs == 0 {
		t.Fatalf("Device=%+v err=%v", dev, err)
	}
	if _, err := m.Device(5); err == nil {
		t.Fatalf("expected out of range device error")
	}
	if !m.UnloadModel("clip") || m.UnloadModel("clip") {
		t.Fatalf("unload should succeed exactly once")
	}
}
