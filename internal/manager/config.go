package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"tensord/internal/bufferpool"
	"tensord/internal/native"
	"tensord/internal/registry"
	"tensord/internal/telemetry"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultBatchConcurrency = 4
	defaultGPUTarget        = "cuda:0"
	defaultCPUTarget        = "cpu"
	defaultDrainTimeout     = 30 * time.Second
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Native controls how the backend library is searched for. Ignored when
	// Resolver is set.
	Native native.Options
	// Resolver, when set, is used instead of building one from Native. The
	// Manager does not close an injected resolver.
	Resolver *native.Resolver

	MaxBuffers        int
	DefaultBufferSize uint64

	Registry registry.Config
	// ModelDir is scanned for artifacts on registry misses.
	ModelDir string
	// HistoryDB is the SQLite file that persists version history. Empty
	// keeps history in memory only.
	HistoryDB string

	BatchConcurrency int
	// DrainTimeout bounds how long Close waits for device work in flight
	// before unloading the backend. Defaults to 30s.
	DrainTimeout time.Duration

	// Metrics, when nil and Registerer is set, is created against Registerer.
	// With both nil no metrics are recorded.
	Metrics    *telemetry.Metrics
	Registerer prometheus.Registerer

	Publisher registry.EventPublisher
	Logger    *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) (*Manager, error) {
	m := &Manager{
		state:    StateLoading,
		modelDir: cfg.ModelDir,
		log:      zerolog.Nop(),
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = defaultBatchConcurrency
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	m.drainTimeout = cfg.DrainTimeout

	m.metrics = cfg.Metrics
	if m.metrics == nil && cfg.Registerer != nil {
		m.metrics = telemetry.New(cfg.Registerer)
	}

	// Resolve the native backend; failure degrades to host execution.
	if cfg.Resolver != nil {
		m.resolver = cfg.Resolver
	} else {
		opts := cfg.Native
		if opts.Logger == nil {
			opts.Logger = &m.log
		}
		m.resolver = native.NewResolver(opts)
		m.ownsResolver = true
	}
	m.resolver.Initialize()
	m.metrics.SetBackend(m.resolver.IsLoaded(), m.resolver.DeviceCount())

	if be, ok := m.resolver.Backend(); ok {
		m.pool = bufferpool.New(be, bufferpool.Config{
			MaxBuffers:        cfg.MaxBuffers,
			DefaultBufferSize: cfg.DefaultBufferSize,
			Logger:            &m.log,
		})
		m.metrics.ObservePool(m.pool.Stats)
		m.deviceTarget = defaultGPUTarget
	} else {
		m.deviceTarget = defaultCPUTarget
	}

	m.runtime = newRuntime(m.resolver, m.pool, m.metrics, cfg.BatchConcurrency, &m.log)

	var regOpts []registry.Option
	regOpts = append(regOpts, registry.WithLogger(m.log))
	pubs := registry.MultiPublisher{}
	if cfg.Publisher != nil {
		pubs = append(pubs, cfg.Publisher)
	}
	if m.metrics != nil {
		pubs = append(pubs, m.metrics)
	}
	regOpts = append(regOpts, registry.WithPublisher(pubs))
	if cfg.HistoryDB != "" {
		store, err := registry.OpenSQLiteStore(cfg.HistoryDB)
		if err != nil {
			m.abort()
			return nil, ErrDependencyUnavailable("history store: " + err.Error())
		}
		m.store = store
		regOpts = append(regOpts, registry.WithHistoryStore(store))
	}
	reg, err := registry.New(cfg.Registry, regOpts...)
	if err != nil {
		m.abort()
		return nil, err
	}
	m.registry = reg
	m.metrics.ObserveRegistry(reg.Stats)

	m.state = StateReady
	m.startTime = timeNow()
	return m, nil
}

// abort releases what a failed NewWithConfig already acquired.
func (m *Manager) abort() {
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.log.Warn().Err(err).Msg("close history store")
		}
		m.store = nil
	}
	if err := m.closeBackend(); err != nil {
		m.log.Warn().Err(err).Msg("release native backend")
	}
}
