package nativetest

import (
	"io/fs"
	"path/filepath"
	"sync"

	"tensord/internal/native"
)

// Library wraps a Backend so it can be returned from a native.Opener.
type Library struct {
	*Backend
	path string

	mu         sync.Mutex
	closed     int
	afterClose int
}

func (l *Library) Path() string { return l.path }

func (l *Library) Close() error {
	l.mu.Lock()
	l.closed++
	l.mu.Unlock()
	return nil
}

// touch counts a backend call made after Close.
func (l *Library) touch() {
	l.mu.Lock()
	if l.closed > 0 {
		l.afterClose++
	}
	l.mu.Unlock()
}

// CallsAfterClose reports how many backend calls reached the library after
// it was closed. A real library would have been unmapped by then.
func (l *Library) CallsAfterClose() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.afterClose
}

func (l *Library) Free(h native.Handle) {
	l.touch()
	l.Backend.Free(h)
}

func (l *Library) CopyToHost(dst []byte, src native.Handle) error {
	l.touch()
	return l.Backend.CopyToHost(dst, src)
}

func (l *Library) DeviceInfo(deviceID int) (native.DeviceInfo, error) {
	l.touch()
	return l.Backend.DeviceInfo(deviceID)
}

func (l *Library) ValidateContent(data []float32, threshold float32) (int, native.Metrics, error) {
	l.touch()
	return l.Backend.ValidateContent(data, threshold)
}

// Closed reports how many times Close was called.
func (l *Library) Closed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Opener returns a native.Opener that "loads" b for any path accepted by
// match (all paths when match is nil). Rejected paths fail with err-like
// load errors. Every opened Library is appended to *opened when non-nil.
func Opener(b *Backend, match func(path string) bool, opened *[]*Library) native.Opener {
	var mu sync.Mutex
	return func(path string) (native.Library, error) {
		if match != nil && !match(path) {
			return nil, loadError(path)
		}
		lib := &Library{Backend: b, path: path}
		if opened != nil {
			mu.Lock()
			*opened = append(*opened, lib)
			mu.Unlock()
		}
		return lib, nil
	}
}

type loadError string

func (e loadError) Error() string { return "cannot load " + string(e) }

// ResolverOptions returns native.Options that see a single library file at
// libPath (nothing at all when libPath is empty) and open it as b. The
// process environment is not consulted.
func ResolverOptions(b *Backend, libPath string) native.Options {
	dir := filepath.Dir(libPath)
	return native.Options{
		GOOS:        "linux",
		GOARCH:      "amd64",
		SearchPaths: []string{dir},
		Getenv:      func(string) string { return "" },
		Stat: func(p string) (fs.FileInfo, error) {
			if libPath != "" && filepath.Clean(p) == filepath.Clean(libPath) {
				return nil, nil
			}
			return nil, fs.ErrNotExist
		},
		Executable: func() (string, error) { return "/opt/tensord/bin/tensord", nil },
		Getwd:      func() (string, error) { return "/opt/tensord", nil },
		Glob:       func(string) ([]string, error) { return nil, nil },
		Open:       Opener(b, nil, nil),
	}
}
