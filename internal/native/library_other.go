//go:build !darwin && !freebsd && !linux && !windows

package native

import (
	"runtime"

	"github.com/pkg/errors"
)

// OpenLibrary always fails on platforms without dynamic loading support; the
// resolver then settles on CPU-only mode.
func OpenLibrary(path string) (Library, error) {
	return nil, errors.Errorf("dynamic loading not supported on %s/%s (%s)", runtime.GOOS, runtime.GOARCH, path)
}
