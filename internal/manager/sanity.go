package manager

import (
	"os"

	"tensord/internal/common/fsutil"
)

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	BackendLoaded  bool   `json:"backend_loaded"`
	LibraryPath    string `json:"library_path,omitempty"`
	DeviceCount    int    `json:"device_count"`
	ModelDir       string `json:"model_dir,omitempty"`
	ModelDirExists bool   `json:"model_dir_exists"`
	Artifacts      int    `json:"artifacts"`
	Error          string `json:"error,omitempty"`
}

// SanityCheck validates that the native backend and the model directory are
// usable. It does not mutate state and is safe to call at any time. A missing
// backend is reported but is not an error: the runtime falls back to the
// host.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{
		BackendLoaded: m.IsGPUAvailable(),
		DeviceCount:   m.DeviceCount(),
		ModelDir:      m.modelDir,
	}
	if p, ok := m.resolver.LoadedPath(); ok {
		r.LibraryPath = p
	}
	if m.modelDir == "" {
		return r
	}
	dir, err := fsutil.ExpandHome(m.modelDir)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	fi, err := os.Stat(dir)
	switch {
	case err != nil && !fsutil.PathExists(dir):
		r.Error = "model directory does not exist"
		return r
	case err != nil:
		r.Error = err.Error()
		return r
	case !fi.IsDir():
		r.Error = "model directory is a file"
		return r
	}
	r.ModelDirExists = true
	arts, err := m.AvailableModels()
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Artifacts = len(arts)
	return r
}
