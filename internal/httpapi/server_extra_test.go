package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"tensord/internal/manager"
	"tensord/internal/native/nativetest"
	"tensord/internal/registry"
	"tensord/pkg/types"
)

var _ Service = (*manager.Manager)(nil)

// Service whose LoadModel blocks until the context is done; used to exercise
// the timeout path.
type blockService struct{ mockService }

func (b *blockService) LoadModel(ctx context.Context, name string) (types.Model, error) {
	<-ctx.Done()
	return types.Model{}, ctx.Err()
}

func TestLoadLogsWithZerologInfo(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer func() { zlog = nil }()

	svc := &mockService{}
	w := serve(t, svc, http.MethodPost, "/models/m1/load?log=info")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with info logging, got %d", w.Code)
	}
	if !strings.Contains(buf.String(), `"message":"load end"`) || !strings.Contains(buf.String(), `"request_id"`) {
		t.Fatalf("missing structured log line: %q", buf.String())
	}
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	// Enable CORS temporarily
	SetCORSOptions(true, []string{"*"}, []string{"GET", "POST", "OPTIONS"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)

	svc := &mockService{ready: true}
	h := NewMux(svc)
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options=nosniff, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected CORS header Access-Control-Allow-Origin to be set, got empty")
	}
}

func TestCORSDisabledByDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected CORS header %q", got)
	}
}

func TestLoadTimeoutReturns500(t *testing.T) {
	defer SetLoadTimeoutSeconds(0)
	SetLoadTimeoutSeconds(1)

	start := time.Now()
	w := serve(t, &blockService{}, http.MethodPost, "/models/slow/load")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on timeout, got %d", w.Code)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout not applied")
	}
}

func TestLoadCancelledByServerShutdown(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	SetBaseContext(base)
	defer SetBaseContext(nil)

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- serve(t, &blockService{}, http.MethodPost, "/models/slow/load") }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case w := <-done:
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500 after shutdown, got %d", w.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not observe shutdown")
	}
}

// TestManagerEndToEnd drives the router against a real Manager backed by the
// simulated device.
func TestManagerEndToEnd(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "minilm@1.onnx"), make([]byte, 512), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := manager.NewWithConfig(manager.ManagerConfig{
		Native:     nativetest.ResolverOptions(nativetest.New(), "/opt/tensord/lib/libtensor_ops.so"),
		ModelDir:   dir,
		Registry:   registry.DefaultConfig(),
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer m.Close()
	h := NewMux(m)

	do := func(method, target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
		return w
	}

	if w := do(http.MethodGet, "/readyz"); w.Code != http.StatusOK {
		t.Fatalf("readyz=%d", w.Code)
	}
	if w := do(http.MethodPost, "/models/minilm/load"); w.Code != http.StatusOK {
		t.Fatalf("load=%d body=%s", w.Code, w.Body.String())
	}
	if w := do(http.MethodPost, "/models/absent/load"); w.Code != http.StatusNotFound {
		t.Fatalf("load absent=%d", w.Code)
	}

	var models types.ModelsResponse
	w := do(http.MethodGet, "/models")
	if err := json.Unmarshal(w.Body.Bytes(), &models); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(models.Models) != 1 || models.Models[0].DeviceTarget != "cuda:0" || len(models.Available) != 1 {
		t.Fatalf("models=%+v", models)
	}

	var st types.StatusResponse
	w = do(http.MethodGet, "/status")
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !st.GPUAvailable || st.Registry.Models != 1 || st.Pool == nil {
		t.Fatalf("status=%+v", st)
	}

	if w := do(http.MethodGet, "/devices/0"); w.Code != http.StatusOK {
		t.Fatalf("device=%d", w.Code)
	}
	if w := do(http.MethodGet, "/devices/9"); w.Code != http.StatusNotFound {
		t.Fatalf("device out of range=%d", w.Code)
	}
	if w := do(http.MethodDelete, "/models/minilm"); w.Code != http.StatusNoContent {
		t.Fatalf("unload=%d", w.Code)
	}
	var hist types.HistoryResponse
	w = do(http.MethodGet, "/models/minilm/history")
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(hist.Versions) != 1 || hist.Versions[0].IsLoaded {
		t.Fatalf("history=%+v", hist)
	}
}
