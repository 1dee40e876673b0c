package native

import (
	"path/filepath"
	"sort"
	"strings"
)

// DefaultLibraryBase is the backend library name without platform prefix or
// extension.
const DefaultLibraryBase = "tensor_ops"

// Environment variables consulted while resolving the backend.
var (
	toolkitEnvVars   = []string{"CUDA_PATH", "CUDA_HOME", "CUDA_ROOT"}
	containerEnvVars = []string{"container", "DOTNET_RUNNING_IN_CONTAINER", "KUBERNETES_SERVICE_HOST"}
	containerMarkers = []string{"/.dockerenv", "/run/.containerenv"}
)

// containerLibDirs are conventional library mount points inside images.
var containerLibDirs = []string{
	"/usr/local/lib",
	"/usr/lib",
	"/usr/lib/x86_64-linux-gnu",
	"/usr/lib/aarch64-linux-gnu",
	"/opt/tensord/lib",
	"/app",
	"/app/native",
}

// RuntimeIdentifier returns the os-arch identifier used for the
// runtimes/<rid>/native layout (e.g. linux-x64, osx-arm64, win-x64).
func RuntimeIdentifier(goos, goarch string) string {
	osPart := goos
	switch goos {
	case "darwin":
		osPart = "osx"
	case "windows":
		osPart = "win"
	}
	archPart := goarch
	switch goarch {
	case "amd64":
		archPart = "x64"
	case "386":
		archPart = "x86"
	}
	return osPart + "-" + archPart
}

// LibraryFileName maps a library base name to the platform file name.
// Names that already carry an extension are returned unchanged.
func LibraryFileName(goos, base string) string {
	if base == "" {
		base = DefaultLibraryBase
	}
	if filepath.Ext(base) != "" {
		return base
	}
	switch goos {
	case "windows":
		return base + ".dll"
	case "darwin":
		return "lib" + base + ".dylib"
	default:
		return "lib" + base + ".so"
	}
}

// linkerEnvVar names the variable the platform loader searches.
func linkerEnvVar(goos string) string {
	switch goos {
	case "windows":
		return "PATH"
	case "darwin":
		return "DYLD_LIBRARY_PATH"
	default:
		return "LD_LIBRARY_PATH"
	}
}

func splitPathList(goos, v string) []string {
	if v == "" {
		return nil
	}
	sep := ":"
	if goos == "windows" {
		sep = ";"
	}
	var out []string
	for _, p := range strings.Split(v, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// environment is the probed process environment that drives the search.
type environment struct {
	goos, goarch  string
	rid           string
	exeDir        string
	baseDir       string
	containerized bool
	markers       []string
	toolkitEnv    map[string]string
	linkerVar     string
	linkerValue   string
}

func (r *Resolver) detectEnvironment() environment {
	o := r.opts
	env := environment{
		goos:       o.GOOS,
		goarch:     o.GOARCH,
		rid:        RuntimeIdentifier(o.GOOS, o.GOARCH),
		toolkitEnv: make(map[string]string),
		linkerVar:  linkerEnvVar(o.GOOS),
	}
	if exe, err := o.Executable(); err == nil && exe != "" {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		env.exeDir = filepath.Dir(exe)
	}
	if wd, err := o.Getwd(); err == nil {
		env.baseDir = wd
	}
	for _, m := range containerMarkers {
		if _, err := o.Stat(m); err == nil {
			env.markers = append(env.markers, m)
		}
	}
	for _, k := range containerEnvVars {
		if v := o.Getenv(k); v != "" && v != "false" {
			env.markers = append(env.markers, "$"+k)
		}
	}
	env.containerized = len(env.markers) > 0
	for _, k := range toolkitEnvVars {
		if v := o.Getenv(k); v != "" {
			env.toolkitEnv[k] = v
		}
	}
	env.linkerValue = o.Getenv(env.linkerVar)
	return env
}

// candidateDirs returns the ordered, de-duplicated list of directories that
// may contain the backend library.
func (r *Resolver) candidateDirs(env environment) []string {
	var dirs []string
	add := func(ds ...string) {
		for _, d := range ds {
			if d != "" {
				dirs = append(dirs, filepath.Clean(d))
			}
		}
	}

	add(r.opts.SearchPaths...)
	add(env.exeDir, env.baseDir)
	for _, root := range []string{env.exeDir, env.baseDir} {
		if root != "" {
			add(filepath.Join(root, "runtimes", env.rid, "native"))
		}
	}
	if env.containerized {
		add(containerLibDirs...)
	}
	add(r.toolkitDirs(env)...)
	add(splitPathList(env.goos, env.linkerValue)...)

	seen := make(map[string]struct{}, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

func (r *Resolver) toolkitDirs(env environment) []string {
	var out []string
	for _, k := range toolkitEnvVars {
		root, ok := env.toolkitEnv[k]
		if !ok {
			continue
		}
		if env.goos == "windows" {
			out = append(out, filepath.Join(root, "bin"), filepath.Join(root, "lib", "x64"))
		} else {
			out = append(out, filepath.Join(root, "lib64"), filepath.Join(root, "lib"))
		}
	}
	switch env.goos {
	case "windows":
		matches, _ := r.opts.Glob(`C:\Program Files\NVIDIA GPU Computing Toolkit\CUDA\v*`)
		// newest toolkit first
		sort.Sort(sort.Reverse(sort.StringSlice(matches)))
		for _, m := range matches {
			out = append(out, filepath.Join(m, "bin"))
		}
	case "darwin":
		out = append(out, "/usr/local/cuda/lib")
	default:
		out = append(out, "/usr/local/cuda/lib64", "/usr/local/cuda/lib", "/opt/cuda/lib64")
	}
	return out
}
