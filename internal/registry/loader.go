package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tensord/internal/common/fsutil"
)

// Artifact is a model file found on disk.
type Artifact struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Type      string `json:"type"`
	Path      string `json:"path"`
	SizeBytes uint64 `json:"size_bytes"`
}

// DefaultVersion is assigned to artifacts whose file name carries no version.
const DefaultVersion = "latest"

// artifactTypes maps recognized extensions to model types.
var artifactTypes = map[string]string{
	".onnx":        "onnx",
	".safetensors": "safetensors",
	".gguf":        "gguf",
	".bin":         "bin",
	".pt":          "torch",
	".pth":         "torch",
}

// Request returns the registration request for a.
func (a Artifact) Request(device string) RegisterRequest {
	return RegisterRequest{
		Name:         a.Name,
		Version:      a.Version,
		Type:         a.Type,
		StoragePath:  a.Path,
		SizeBytes:    a.SizeBytes,
		DeviceTarget: device,
	}
}

// ParseArtifactName splits a file name of the form name@version.ext. ok is
// false when the extension is not a recognized model format.
func ParseArtifactName(file string) (name, version, typ string, ok bool) {
	ext := strings.ToLower(filepath.Ext(file))
	typ, ok = artifactTypes[ext]
	if !ok {
		return "", "", "", false
	}
	stem := strings.TrimSuffix(file, filepath.Ext(file))
	name, version = stem, DefaultVersion
	if i := strings.LastIndexByte(stem, '@'); i > 0 && i < len(stem)-1 {
		name, version = stem[:i], stem[i+1:]
	}
	return name, version, typ, true
}

// Discover scans dir (not recursively) for model artifacts. When several
// files share a name, the one modified last wins.
func Discover(dir string) ([]Artifact, error) {
	abs, err := fsutil.Abs(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	type found struct {
		a       Artifact
		modTime int64
	}
	byName := make(map[string]found)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, version, typ, ok := ParseArtifactName(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		f := found{
			a: Artifact{
				Name:      name,
				Version:   version,
				Type:      typ,
				Path:      filepath.Join(abs, e.Name()),
				SizeBytes: uint64(fi.Size()),
			},
			modTime: fi.ModTime().UnixNano(),
		}
		if prev, dup := byName[name]; !dup || f.modTime > prev.modTime {
			byName[name] = f
		}
	}

	out := make([]Artifact, 0, len(byName))
	for _, f := range byName {
		out = append(out, f.a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Find returns the artifact for name in dir.
func Find(dir, name string) (Artifact, error) {
	arts, err := Discover(dir)
	if err != nil {
		return Artifact{}, err
	}
	for _, a := range arts {
		if a.Name == name {
			return a, nil
		}
	}
	return Artifact{}, ErrModelNotFound(name)
}
