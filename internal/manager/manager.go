package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tensord/internal/bufferpool"
	"tensord/internal/compute"
	"tensord/internal/native"
	"tensord/internal/registry"
	"tensord/internal/telemetry"
)

// Manager owns the process-wide runtime components: the native resolver, the
// buffer pool, the compute runtime and the model registry.
type Manager struct {
	mu    sync.RWMutex
	state State

	resolver     *native.Resolver
	ownsResolver bool
	pool         *bufferpool.Pool
	runtime      *compute.Runtime
	registry     *registry.Registry
	store        *registry.SQLiteStore
	metrics      *telemetry.Metrics

	modelDir     string
	deviceTarget string
	startTime    time.Time
	drainTimeout time.Duration
	log          zerolog.Logger
}

// New constructs a Manager with package defaults and the given model
// directory.
func New(modelDir string) (*Manager, error) {
	return NewWithConfig(ManagerConfig{
		ModelDir: modelDir,
		Registry: registry.DefaultConfig(),
	})
}

func newRuntime(res *native.Resolver, pool *bufferpool.Pool, metrics *telemetry.Metrics, batch int, log *zerolog.Logger) *compute.Runtime {
	opts := compute.Options{BatchConcurrency: batch, Logger: log}
	if metrics != nil {
		opts.Recorder = metrics
	}
	return compute.New(res, pool, opts)
}

// Runtime returns the compute runtime.
func (m *Manager) Runtime() *compute.Runtime { return m.runtime }

// Registry returns the model registry.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// Pool returns the device buffer pool, or nil in cpu mode.
func (m *Manager) Pool() *bufferpool.Pool { return m.pool }

// Ready reports whether the manager is constructed and not closed.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady
}

// IsGPUAvailable reports whether the native backend is loaded.
func (m *Manager) IsGPUAvailable() bool { return m.resolver.IsLoaded() }

// DeviceCount returns the number of devices reported by the backend.
func (m *Manager) DeviceCount() int { return m.resolver.DeviceCount() }

// Diagnostics returns the resolver's search report.
func (m *Manager) Diagnostics() native.Diagnostics { return m.resolver.Diagnostics() }

// DeviceSnapshot reads the current state of device id. Close waits for
// snapshots in progress.
func (m *Manager) DeviceSnapshot(id int) (native.DeviceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateClosed {
		return native.DeviceSnapshot{}, closedError{}
	}
	be, ok := m.resolver.Backend()
	if !ok {
		return native.DeviceSnapshot{}, ErrDependencyUnavailable("native backend not loaded")
	}
	return native.TakeSnapshot(be, id)
}

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mode := ModeCPU
	if m.pool != nil {
		mode = ModeGPU
	}
	return Snapshot{State: m.state, Mode: mode, DeviceTarget: m.deviceTarget}
}

// GetModel returns the cached entry for name. On a miss the model directory
// is searched and a matching artifact is registered.
func (m *Manager) GetModel(ctx context.Context, name string) (registry.ModelInfo, error) {
	if !m.Ready() {
		return registry.ModelInfo{}, closedError{}
	}
	if info, ok := m.registry.TryGet(name); ok {
		return info, nil
	}
	if m.modelDir == "" {
		return registry.ModelInfo{}, ErrModelNotFound(name)
	}
	art, err := registry.Find(m.modelDir, name)
	if err != nil {
		if !IsModelNotFound(err) {
			m.log.Warn().Err(err).Str("dir", m.modelDir).Msg("scan model directory")
		}
		return registry.ModelInfo{}, ErrModelNotFound(name)
	}
	info, err := m.registry.Register(ctx, art.Request(m.deviceTarget))
	if err != nil {
		return registry.ModelInfo{}, err
	}
	m.log.Info().Str("model", info.Name).Str("version", info.Version).Str("path", info.StoragePath).Msg("model loaded from disk")
	return info, nil
}

// AvailableModels lists artifacts in the model directory.
func (m *Manager) AvailableModels() ([]registry.Artifact, error) {
	if m.modelDir == "" {
		return nil, nil
	}
	return registry.Discover(m.modelDir)
}

// Close waits for device operations in flight, releases the pool and the
// history store and, unless injected, unloads the resolver. When device work
// is still running after DrainTimeout the backend is left loaded and an error
// is returned. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosed
	m.mu.Unlock()

	var firstErr error
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			firstErr = err
		}
	}
	if err := m.closeBackend(); err != nil && firstErr == nil {
		firstErr = err
	}
	m.log.Info().Msg("manager closed")
	return firstErr
}

// closeBackend drains the runtime and the pool before the library is
// unloaded; buffers and kernels must never outlive it.
func (m *Manager) closeBackend() error {
	timeout := m.drainTimeout
	if timeout <= 0 {
		timeout = defaultDrainTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if m.runtime != nil {
		if err := m.runtime.Shutdown(ctx); err != nil {
			m.log.Error().Err(err).Msg("device operations still running, native backend left loaded")
			return err
		}
	}
	if m.pool != nil {
		_ = m.pool.Close()
		if err := m.pool.Drain(ctx); err != nil {
			m.log.Error().Err(err).Msg("device buffers still checked out, native backend left loaded")
			return err
		}
	}
	if m.ownsResolver {
		return m.resolver.Close()
	}
	return nil
}
