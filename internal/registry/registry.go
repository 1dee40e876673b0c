// Package registry caches model metadata under a count and memory budget.
//
// Lookups update access statistics without blocking other readers.
// Registration and eviction run one cycle at a time under an exclusive,
// cancellable lock. Superseded entries are kept in a bounded per-name
// version history.
//
// The registry does not reference-count entries: a model may be evicted or
// unloaded while a caller still uses what it returned. Callers that need a
// model to stay resident take a lease with Pin; eviction skips pinned
// entries, Unload and Clear do not.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultMaxCachedModels            = 10
	DefaultMaxCacheMemoryBytes uint64 = 4 << 30
	DefaultMaxVersionsPerModel        = 3
)

// Config bounds the registry.
type Config struct {
	MaxCachedModels     int
	MaxCacheMemoryBytes uint64
	Policy              Policy
	TrackVersions       bool
	MaxVersionsPerModel int
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		MaxCachedModels:     DefaultMaxCachedModels,
		MaxCacheMemoryBytes: DefaultMaxCacheMemoryBytes,
		Policy:              PolicyLRU,
		TrackVersions:       true,
		MaxVersionsPerModel: DefaultMaxVersionsPerModel,
	}
}

// ModelInfo describes one cached model. Values returned by the registry are
// copies.
type ModelInfo struct {
	Name           string    `json:"name"`
	Version        string    `json:"version"`
	Type           string    `json:"type"`
	SizeBytes      uint64    `json:"size_bytes"`
	StoragePath    string    `json:"storage_path"`
	DeviceTarget   string    `json:"device_target"`
	LoadedAt       time.Time `json:"loaded_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int64     `json:"access_count"`
	IsLoaded       bool      `json:"is_loaded"`
}

// RegisterRequest carries the fields a caller supplies on registration.
type RegisterRequest struct {
	Name         string
	Version      string
	Type         string
	StoragePath  string
	SizeBytes    uint64
	DeviceTarget string
}

// Stats summarizes registry state.
type Stats struct {
	Models              int    `json:"models"`
	MaxCachedModels     int    `json:"max_cached_models"`
	UsedBytes           uint64 `json:"used_bytes"`
	MaxCacheMemoryBytes uint64 `json:"max_cache_memory_bytes"`
	Policy              Policy `json:"policy"`
	Pinned              int    `json:"pinned"`
	HistoryEntries      int    `json:"history_entries"`
	Registrations       uint64 `json:"registrations"`
	Evictions           uint64 `json:"evictions"`
	Hits                uint64 `json:"hits"`
	Misses              uint64 `json:"misses"`
}

// entry is one active model. Descriptive fields are fixed at registration;
// access statistics are updated atomically by lookups.
type entry struct {
	info        ModelInfo
	seq         uint64
	lastAccess  atomic.Int64 // unix nanos
	accessCount atomic.Int64
	pins        atomic.Int32
}

func (e *entry) snapshot() ModelInfo {
	info := e.info
	info.LastAccessedAt = time.Unix(0, e.lastAccess.Load())
	info.AccessCount = e.accessCount.Load()
	info.IsLoaded = true
	return info
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l.With().Str("component", "registry").Logger() }
}

// WithPublisher sets the event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(r *Registry) {
		if p != nil {
			r.pub = p
		}
	}
}

// WithHistoryStore persists version history through s. History already in
// the store is loaded by New.
func WithHistoryStore(s HistoryStore) Option {
	return func(r *Registry) { r.store = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry is the model cache. It is safe for concurrent use.
type Registry struct {
	cfg   Config
	log   zerolog.Logger
	pub   EventPublisher
	store HistoryStore
	now   func() time.Time

	// cycle admits one registration or eviction cycle at a time.
	cycle *semaphore.Weighted

	mu      sync.RWMutex
	entries map[string]*entry
	used    uint64
	seq     uint64
	history map[string][]ModelInfo

	registrations atomic.Uint64
	evictions     atomic.Uint64
	hits          atomic.Uint64
	misses        atomic.Uint64
}

// New constructs a Registry, applying defaults for unset numeric fields.
func New(cfg Config, opts ...Option) (*Registry, error) {
	if cfg.MaxCachedModels <= 0 {
		cfg.MaxCachedModels = DefaultMaxCachedModels
	}
	if cfg.MaxCacheMemoryBytes == 0 {
		cfg.MaxCacheMemoryBytes = DefaultMaxCacheMemoryBytes
	}
	if cfg.MaxVersionsPerModel <= 0 {
		cfg.MaxVersionsPerModel = DefaultMaxVersionsPerModel
	}
	p, err := ParsePolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}
	cfg.Policy = p

	r := &Registry{
		cfg:     cfg,
		log:     zerolog.Nop(),
		pub:     noopPublisher{},
		now:     time.Now,
		cycle:   semaphore.NewWeighted(1),
		entries: make(map[string]*entry),
		history: make(map[string][]ModelInfo),
	}
	for _, o := range opts {
		o(r)
	}
	if r.store != nil && cfg.TrackVersions {
		loaded, err := r.store.Load(context.Background(), cfg.MaxVersionsPerModel)
		if err != nil {
			return nil, err
		}
		r.history = loaded
		r.log.Debug().Int("models", len(loaded)).Msg("version history loaded")
	}
	return r, nil
}

// Config returns the effective configuration.
func (r *Registry) Config() Config { return r.cfg }

// TryGet returns the active entry for name and records the access.
func (r *Registry) TryGet(name string) (ModelInfo, bool) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		r.misses.Inc()
		return ModelInfo{}, false
	}
	e.lastAccess.Store(r.now().UnixNano())
	e.accessCount.Inc()
	r.hits.Inc()
	return e.snapshot(), true
}

// Get is TryGet returning a ModelNotFound error on a miss.
func (r *Registry) Get(name string) (ModelInfo, error) {
	info, ok := r.TryGet(name)
	if !ok {
		return ModelInfo{}, ErrModelNotFound(name)
	}
	return info, nil
}

// Peek returns the active entry for name without recording an access.
func (r *Registry) Peek(name string) (ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return ModelInfo{}, false
	}
	return e.snapshot(), true
}

// Register inserts or replaces the entry for req.Name, evicting other entries
// first when the new entry would exceed the count or memory budget.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (ModelInfo, error) {
	if req.Name == "" {
		return ModelInfo{}, invalidRequestError{msg: "name is required"}
	}
	if req.SizeBytes > r.cfg.MaxCacheMemoryBytes {
		return ModelInfo{}, capacityError{
			name: req.Name, required: req.SizeBytes, available: r.cfg.MaxCacheMemoryBytes,
			reason: "model exceeds the cache memory budget",
		}
	}
	if err := r.cycle.Acquire(ctx, 1); err != nil {
		return ModelInfo{}, cancelledError{err: err}
	}
	defer r.cycle.Release(1)

	var events []Event
	var archived []ModelInfo

	r.mu.Lock()
	prev, replacing := r.entries[req.Name]
	usedOthers := r.used
	if replacing {
		usedOthers -= prev.info.SizeBytes
	}
	var required uint64
	if usedOthers+req.SizeBytes > r.cfg.MaxCacheMemoryBytes {
		required = usedOthers + req.SizeBytes - r.cfg.MaxCacheMemoryBytes
	}
	victims, err := r.evictLocked(req.Name, required)
	if err != nil {
		r.mu.Unlock()
		return ModelInfo{}, err
	}
	for _, v := range victims {
		archived = append(archived, v)
		events = append(events, r.newEvent(EventEvict, v, map[string]any{"policy": string(r.cfg.Policy), "reason": "register " + req.Name}))
	}
	if replacing {
		old := prev.snapshot()
		old.IsLoaded = false
		delete(r.entries, req.Name)
		r.used -= old.SizeBytes
		archived = append(archived, old)
		events = append(events, r.newEvent(EventReplace, old, map[string]any{"new_version": req.Version}))
	}

	now := r.now()
	r.seq++
	e := &entry{
		seq: r.seq,
		info: ModelInfo{
			Name:         req.Name,
			Version:      req.Version,
			Type:         req.Type,
			SizeBytes:    req.SizeBytes,
			StoragePath:  req.StoragePath,
			DeviceTarget: req.DeviceTarget,
			LoadedAt:     now,
		},
	}
	e.lastAccess.Store(now.UnixNano())
	r.entries[req.Name] = e
	r.used += req.SizeBytes
	dropped := r.archiveLocked(archived)
	info := e.snapshot()
	r.mu.Unlock()

	r.registrations.Inc()
	events = append(events, r.newEvent(EventRegister, info, map[string]any{"size_bytes": info.SizeBytes}))
	for _, d := range dropped {
		events = append(events, r.newEvent(EventHistoryDrop, d, nil))
	}
	r.persist(ctx, archived)
	r.publish(events)
	r.log.Debug().Str("model", info.Name).Str("version", info.Version).Int("evicted", len(victims)).
		Bool("replaced", replacing).Msg("model registered")
	return info, nil
}

// Evict removes entries in policy order until requiredBytes have been freed
// and the entry count is below MaxCachedModels. It returns the number of
// entries removed. When pinned entries prevent both conditions from being met
// it evicts nothing and returns a CapacityExhausted error.
func (r *Registry) Evict(ctx context.Context, requiredBytes uint64) (int, error) {
	if err := r.cycle.Acquire(ctx, 1); err != nil {
		return 0, cancelledError{err: err}
	}
	defer r.cycle.Release(1)

	r.mu.Lock()
	victims, err := r.evictLocked("", requiredBytes)
	var dropped []ModelInfo
	if err == nil {
		dropped = r.archiveLocked(victims)
	}
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}

	events := make([]Event, 0, len(victims)+len(dropped))
	for _, v := range victims {
		events = append(events, r.newEvent(EventEvict, v, map[string]any{"policy": string(r.cfg.Policy)}))
	}
	for _, d := range dropped {
		events = append(events, r.newEvent(EventHistoryDrop, d, nil))
	}
	r.persist(ctx, victims)
	r.publish(events)
	return len(victims), nil
}

// Unload removes the active entry for name. It reports whether an entry was
// removed.
func (r *Registry) Unload(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	info := r.removeLocked(e)
	dropped := r.archiveLocked([]ModelInfo{info})
	r.mu.Unlock()

	events := []Event{r.newEvent(EventUnload, info, nil)}
	for _, d := range dropped {
		events = append(events, r.newEvent(EventHistoryDrop, d, nil))
	}
	r.persist(context.Background(), []ModelInfo{info})
	r.publish(events)
	return true
}

// Clear removes every active entry, pinned or not.
func (r *Registry) Clear() int {
	r.mu.Lock()
	removed := make([]ModelInfo, 0, len(r.entries))
	for _, e := range r.sortedEntriesLocked() {
		removed = append(removed, r.removeLocked(e))
	}
	dropped := r.archiveLocked(removed)
	r.mu.Unlock()

	events := make([]Event, 0, len(removed)+len(dropped))
	for _, info := range removed {
		events = append(events, r.newEvent(EventUnload, info, map[string]any{"reason": "clear"}))
	}
	for _, d := range dropped {
		events = append(events, r.newEvent(EventHistoryDrop, d, nil))
	}
	r.persist(context.Background(), removed)
	r.publish(events)
	return len(removed)
}

// removeLocked deletes e and returns its final snapshot marked not loaded.
func (r *Registry) removeLocked(e *entry) ModelInfo {
	info := e.snapshot()
	info.IsLoaded = false
	delete(r.entries, info.Name)
	r.used -= info.SizeBytes
	return info
}

func (r *Registry) sortedEntriesLocked() []*entry {
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].info.Name < out[j].info.Name })
	return out
}

// List returns the active entries sorted by name.
func (r *Registry) List() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.sortedEntriesLocked()
	out := make([]ModelInfo, len(entries))
	for i, e := range entries {
		out[i] = e.snapshot()
	}
	return out
}

// Stats returns current registry accounting.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	s := Stats{
		Models:              len(r.entries),
		MaxCachedModels:     r.cfg.MaxCachedModels,
		UsedBytes:           r.used,
		MaxCacheMemoryBytes: r.cfg.MaxCacheMemoryBytes,
		Policy:              r.cfg.Policy,
	}
	for _, e := range r.entries {
		if e.pins.Load() > 0 {
			s.Pinned++
		}
	}
	for _, h := range r.history {
		s.HistoryEntries += len(h)
	}
	r.mu.RUnlock()
	s.Registrations = r.registrations.Load()
	s.Evictions = r.evictions.Load()
	s.Hits = r.hits.Load()
	s.Misses = r.misses.Load()
	return s
}

// Pin takes a lease on the active entry for name. Eviction skips entries with
// outstanding leases. The returned release func is safe to call more than
// once.
func (r *Registry) Pin(name string) (release func(), err error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	if ok {
		e.pins.Inc()
	}
	r.mu.RUnlock()
	if !ok {
		return nil, ErrModelNotFound(name)
	}
	var once sync.Once
	return func() { once.Do(func() { e.pins.Dec() }) }, nil
}
