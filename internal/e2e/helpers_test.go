package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"tensord/internal/httpapi"
	"tensord/internal/manager"
	"tensord/internal/native/nativetest"
	"tensord/internal/registry"
)

const libPath = "/opt/tensord/lib/libtensor_ops.so"

// createTempModelsDir creates a temporary directory holding one artifact of
// the given size per file name.
func createTempModelsDir(t *testing.T, files map[string]int) string {
	t.Helper()
	dir := t.TempDir()
	for n, size := range files {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir
}

// newServer starts the HTTP API over a Manager backed by a simulated device.
// When be is nil the manager runs in cpu mode.
func newServer(t *testing.T, be *nativetest.Backend, cfg manager.ManagerConfig) (*httptest.Server, *manager.Manager) {
	t.Helper()
	if be != nil {
		cfg.Native = nativetest.ResolverOptions(be, libPath)
	} else {
		cfg.Native = nativetest.ResolverOptions(nativetest.New(), "")
	}
	if cfg.Registry == (registry.Config{}) {
		cfg.Registry = registry.DefaultConfig()
	}
	if cfg.DefaultBufferSize == 0 {
		cfg.DefaultBufferSize = 256 << 10
	}
	cfg.Registerer = prometheus.NewRegistry()
	mgr, err := manager.NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close()
	})
	return srv, mgr
}

func do(t *testing.T, method, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func decode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, body)
	}
}
