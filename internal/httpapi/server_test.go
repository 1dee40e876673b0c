package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tensord/internal/manager"
	"tensord/internal/native"
	"tensord/pkg/types"
)

type mockService struct {
	models    []types.Model
	artifacts []types.Artifact
	artErr    error
	history   map[string][]types.Model
	status    types.StatusResponse
	diag      native.Diagnostics
	ready     bool
	loadErr   error
	unloaded  []string
	device    types.DeviceResponse
	deviceErr error
}

func (m *mockService) ListModels() []types.Model           { return append([]types.Model(nil), m.models...) }
func (m *mockService) Status() types.StatusResponse        { return m.status }
func (m *mockService) Ready() bool                         { return m.ready }
func (m *mockService) Diagnostics() native.Diagnostics     { return m.diag }
func (m *mockService) History(name string) []types.Model   { return m.history[name] }
func (m *mockService) Artifacts() ([]types.Artifact, error) { return m.artifacts, m.artErr }
func (m *mockService) Device(id int) (types.DeviceResponse, error) {
	if m.deviceErr != nil {
		return types.DeviceResponse{}, m.deviceErr
	}
	d := m.device
	d.DeviceID = id
	return d, nil
}
func (m *mockService) LoadModel(ctx context.Context, name string) (types.Model, error) {
	if m.loadErr != nil {
		return types.Model{}, m.loadErr
	}
	return types.Model{Name: name, IsLoaded: true}, nil
}
func (m *mockService) UnloadModel(name string) bool {
	for _, md := range m.models {
		if md.Name == name {
			m.unloaded = append(m.unloaded, name)
			return true
		}
	}
	return false
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func serve(t *testing.T, svc Service, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestModelsHandler(t *testing.T) {
	svc := &mockService{
		models:    []types.Model{{Name: "m1"}, {Name: "m2"}},
		artifacts: []types.Artifact{{Name: "m3", Version: "latest"}},
	}
	w := serve(t, svc, http.MethodGet, "/models")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Models) != 2 || len(body.Available) != 1 || body.Available[0].Name != "m3" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestModelsHandler_ScanErrorStillListsCache(t *testing.T) {
	svc := &mockService{models: []types.Model{{Name: "m1"}}, artErr: errors.New("read dir: permission denied")}
	w := serve(t, svc, http.MethodGet, "/models")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Models) != 1 || len(body.Available) != 0 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", Mode: "gpu", DeviceCount: 1}}
	w := serve(t, svc, http.MethodGet, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Mode != "gpu" || body.DeviceCount != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestDiagnosticsHandler(t *testing.T) {
	svc := &mockService{diag: native.Diagnostics{Initialized: true, LibraryFile: "libtensor_ops.so", SearchPaths: []string{"/a"}}}
	w := serve(t, svc, http.MethodGet, "/diagnostics")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body native.Diagnostics
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !body.Initialized || body.LibraryFile != "libtensor_ops.so" || len(body.SearchPaths) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHistoryHandler(t *testing.T) {
	svc := &mockService{history: map[string][]types.Model{"enc": {{Name: "enc", Version: "1"}, {Name: "enc", Version: "2"}}}}
	w := serve(t, svc, http.MethodGet, "/models/enc/history")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Name != "enc" || len(body.Versions) != 2 || body.Versions[1].Version != "2" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestReadyz(t *testing.T) {
	w := serve(t, &mockService{ready: true}, http.MethodGet, "/readyz")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	w := serve(t, &mockService{ready: false}, http.MethodGet, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "loading") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	w := serve(t, &mockService{}, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestLoadHandler(t *testing.T) {
	w := serve(t, &mockService{}, http.MethodPost, "/models/minilm/load")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.Model
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Name != "minilm" || !body.IsLoaded {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestUnloadHandler(t *testing.T) {
	svc := &mockService{models: []types.Model{{Name: "m1"}}}
	if w := serve(t, svc, http.MethodDelete, "/models/m1"); w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	if w := serve(t, svc, http.MethodDelete, "/models/other"); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	if len(svc.unloaded) != 1 || svc.unloaded[0] != "m1" {
		t.Fatalf("unloaded=%v", svc.unloaded)
	}
}

func TestDeviceHandler(t *testing.T) {
	svc := &mockService{device: types.DeviceResponse{ComputeCapability: "8.6"}}
	w := serve(t, svc, http.MethodGet, "/devices/0")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.DeviceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.ComputeCapability != "8.6" {
		t.Fatalf("unexpected body: %+v", body)
	}
	for _, bad := range []string{"/devices/x", "/devices/-1"} {
		if w := serve(t, svc, http.MethodGet, bad); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", bad, w.Code)
		}
	}
}

func TestDeviceHandler_Errors(t *testing.T) {
	svc := &mockService{deviceErr: manager.ErrDependencyUnavailable("native backend not loaded")}
	if w := serve(t, svc, http.MethodGet, "/devices/0"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	svc = &mockService{deviceErr: errors.New("device 4 out of range (devices=1)")}
	if w := serve(t, svc, http.MethodGet, "/devices/4"); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}
