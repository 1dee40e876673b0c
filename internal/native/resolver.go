package native

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// Options configures a Resolver. Zero values fall back to the real process
// environment; tests override individual hooks.
type Options struct {
	// LibraryName is a base name ("tensor_ops") or a full file name.
	LibraryName string
	// SearchPaths are probed before any built-in location.
	SearchPaths []string

	GOOS   string
	GOARCH string

	Getenv     func(string) string
	Stat       func(string) (fs.FileInfo, error)
	Executable func() (string, error)
	Getwd      func() (string, error)
	Glob       func(string) ([]string, error)
	Open       Opener

	Logger *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.GOOS == "" {
		o.GOOS = runtime.GOOS
	}
	if o.GOARCH == "" {
		o.GOARCH = runtime.GOARCH
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.Stat == nil {
		o.Stat = os.Stat
	}
	if o.Executable == nil {
		o.Executable = os.Executable
	}
	if o.Getwd == nil {
		o.Getwd = os.Getwd
	}
	if o.Glob == nil {
		o.Glob = filepath.Glob
	}
	if o.Open == nil {
		o.Open = OpenLibrary
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return o
}

// Attempt records the outcome of probing one candidate path.
type Attempt struct {
	Path    string `json:"path"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// Attempt outcomes.
const (
	OutcomeNotFound  = "not_found"
	OutcomeLoadError = "load_error"
	OutcomeNoDevices = "no_devices"
	OutcomeLoaded    = "loaded"
)

// Diagnostics describes how the backend was (or would be) resolved. It is
// meant for support output, not for control flow.
type Diagnostics struct {
	Initialized       bool              `json:"initialized"`
	OS                string            `json:"os"`
	Arch              string            `json:"arch"`
	RuntimeIdentifier string            `json:"runtime_identifier"`
	LibraryFile       string            `json:"library_file"`
	Containerized     bool              `json:"containerized"`
	ContainerMarkers  []string          `json:"container_markers,omitempty"`
	ToolkitEnv        map[string]string `json:"toolkit_env,omitempty"`
	LinkerEnv         map[string]string `json:"linker_env,omitempty"`
	SearchPaths       []string          `json:"search_paths"`
	Attempts          []Attempt         `json:"attempts,omitempty"`
	Loaded            bool              `json:"loaded"`
	LoadedPath        string            `json:"loaded_path,omitempty"`
	LastError         string            `json:"last_error,omitempty"`
	DeviceCount       int               `json:"device_count"`
}

// Resolver finds and loads the backend library once per process. The zero
// value is not usable; construct with NewResolver or use Default.
type Resolver struct {
	opts Options
	log  zerolog.Logger

	once sync.Once

	loaded      atomic.Bool
	loadedPath  atomic.String
	lastError   atomic.String
	deviceCount atomic.Int32

	mu   sync.RWMutex
	lib  Library
	diag Diagnostics
}

// NewResolver constructs a resolver; nothing is probed until Initialize.
func NewResolver(opts Options) *Resolver {
	opts = opts.withDefaults()
	return &Resolver{opts: opts, log: opts.Logger.With().Str("component", "native").Logger()}
}

var (
	defaultOnce     sync.Once
	defaultResolver *Resolver
)

// Default returns the process-wide resolver built from the real environment.
func Default() *Resolver {
	defaultOnce.Do(func() { defaultResolver = NewResolver(Options{}) })
	return defaultResolver
}

// Initialize probes candidate locations and loads the first library that
// binds and reports at least one device. It is idempotent and never fails:
// the return value is the resulting IsLoaded.
func (r *Resolver) Initialize() bool {
	r.once.Do(r.initialize)
	return r.loaded.Load()
}

func (r *Resolver) initialize() {
	env := r.detectEnvironment()
	dirs := r.candidateDirs(env)
	file := LibraryFileName(r.opts.GOOS, r.opts.LibraryName)
	diag := r.baseDiagnostics(env, dirs, file)
	diag.Initialized = true

	var lastErr string
	for _, dir := range dirs {
		p := filepath.Join(dir, file)
		if _, err := r.opts.Stat(p); err != nil {
			diag.Attempts = append(diag.Attempts, Attempt{Path: p, Outcome: OutcomeNotFound})
			continue
		}
		lib, err := r.opts.Open(p)
		if err != nil {
			lastErr = err.Error()
			diag.Attempts = append(diag.Attempts, Attempt{Path: p, Outcome: OutcomeLoadError, Error: lastErr})
			r.log.Debug().Str("path", p).Err(err).Msg("backend candidate rejected")
			continue
		}
		n := lib.DeviceCount()
		if n <= 0 {
			_ = lib.Close()
			lastErr = fmt.Sprintf("%s: no devices (InitTensorContext=%d)", p, n)
			diag.Attempts = append(diag.Attempts, Attempt{Path: p, Outcome: OutcomeNoDevices, Error: lastErr})
			continue
		}
		diag.Attempts = append(diag.Attempts, Attempt{Path: p, Outcome: OutcomeLoaded})
		diag.Loaded = true
		diag.LoadedPath = p
		diag.DeviceCount = n

		r.mu.Lock()
		r.lib = lib
		r.diag = diag
		r.mu.Unlock()
		r.deviceCount.Store(int32(n))
		r.loadedPath.Store(p)
		r.loaded.Store(true)
		r.log.Info().Str("path", p).Int("devices", n).Msg("native backend loaded")
		return
	}

	if lastErr == "" {
		lastErr = fmt.Sprintf("%s not found in %d locations", file, len(dirs))
	}
	diag.LastError = lastErr
	r.mu.Lock()
	r.diag = diag
	r.mu.Unlock()
	r.lastError.Store(lastErr)
	r.log.Warn().Str("error", lastErr).Msg("native backend unavailable, using CPU reference path")
}

func (r *Resolver) baseDiagnostics(env environment, dirs []string, file string) Diagnostics {
	d := Diagnostics{
		OS:                env.goos,
		Arch:              env.goarch,
		RuntimeIdentifier: env.rid,
		LibraryFile:       file,
		Containerized:     env.containerized,
		ContainerMarkers:  env.markers,
		ToolkitEnv:        env.toolkitEnv,
		SearchPaths:       dirs,
	}
	if env.linkerValue != "" {
		d.LinkerEnv = map[string]string{env.linkerVar: env.linkerValue}
	}
	return d
}

// IsLoaded reports whether a backend with at least one device is loaded.
func (r *Resolver) IsLoaded() bool { return r.loaded.Load() }

// LoadedPath returns the path of the loaded library.
func (r *Resolver) LoadedPath() (string, bool) {
	if !r.loaded.Load() {
		return "", false
	}
	return r.loadedPath.Load(), true
}

// LastError returns the reason the backend could not be loaded.
func (r *Resolver) LastError() (string, bool) {
	s := r.lastError.Load()
	return s, s != ""
}

// DeviceCount returns the number of devices reported at load time.
func (r *Resolver) DeviceCount() int { return int(r.deviceCount.Load()) }

// Backend returns the loaded backend.
func (r *Resolver) Backend() (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lib == nil {
		return nil, false
	}
	return r.lib, true
}

// Diagnostics returns the resolution report. Before Initialize it describes
// the search that would be performed.
func (r *Resolver) Diagnostics() Diagnostics {
	r.mu.RLock()
	d := r.diag
	r.mu.RUnlock()
	if !d.Initialized {
		env := r.detectEnvironment()
		return r.baseDiagnostics(env, r.candidateDirs(env), LibraryFileName(r.opts.GOOS, r.opts.LibraryName))
	}
	d.SearchPaths = append([]string(nil), d.SearchPaths...)
	d.Attempts = append([]Attempt(nil), d.Attempts...)
	return d
}

// Close unloads the backend. Buffers allocated from it must be released
// first. Close does not re-run the search; the resolver stays unloaded.
func (r *Resolver) Close() error {
	r.once.Do(func() {})
	r.mu.Lock()
	lib := r.lib
	r.lib = nil
	r.mu.Unlock()
	r.loaded.Store(false)
	if lib == nil {
		return nil
	}
	return lib.Close()
}
