package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"tensord/internal/manager"
	"tensord/internal/registry"
	"tensord/pkg/types"
)

// capacityErr drives a real registry into CapacityExhausted.
func capacityErr(t *testing.T) error {
	t.Helper()
	reg, err := registry.New(registry.Config{MaxCacheMemoryBytes: 10})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	_, err = reg.Register(context.Background(), registry.RegisterRequest{Name: "huge", SizeBytes: 11})
	if !registry.IsCapacityExhausted(err) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	return err
}

func TestLoad_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", manager.ErrModelNotFound("m-missing"), http.StatusNotFound},
		{"dependency", manager.ErrDependencyUnavailable("history store: locked"), http.StatusServiceUnavailable},
		{"capacity", capacityErr(t), http.StatusInsufficientStorage},
		{"http error", mockHTTPError{msg: "teapot", code: http.StatusTeapot}, http.StatusTeapot},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		w := serve(t, &mockService{loadErr: c.err}, http.MethodPost, "/models/m/load")
		if w.Code != c.want {
			t.Fatalf("%s: expected %d, got %d", c.name, c.want, w.Code)
		}
		var body types.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: json: %v", c.name, err)
		}
		if body.Code != c.want || body.Error == "" {
			t.Fatalf("%s: unexpected body %+v", c.name, body)
		}
	}
}
