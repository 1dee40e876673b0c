package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tensord/internal/native"
	"tensord/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Ready() bool
	Status() types.StatusResponse
	Diagnostics() native.Diagnostics
	ListModels() []types.Model
	Artifacts() ([]types.Artifact, error)
	History(name string) []types.Model
	LoadModel(ctx context.Context, name string) (types.Model, error)
	UnloadModel(name string) bool
	Device(id int) (types.DeviceResponse, error)
}

// NewMux builds the HTTP router for svc.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		methods := corsAllowedMethods
		if len(methods) == 0 {
			methods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: methods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}

	h := &handlers{svc: svc}
	r.Group(func(r chi.Router) {
		// Route-level so the gauge is labelled with the resolved pattern.
		r.Use(InflightMiddleware)
		r.Get("/healthz", h.healthz)
		r.Get("/readyz", h.readyz)
		r.Get("/status", h.status)
		r.Get("/diagnostics", h.diagnostics)
		r.Get("/models", h.models)
		r.Get("/models/{name}/history", h.history)
		r.Post("/models/{name}/load", h.load)
		r.Delete("/models/{name}", h.unload)
		r.Get("/devices/{id}", h.device)
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

type handlers struct {
	svc Service
}

// healthz godoc
// @Summary  Liveness probe
// @Produce  plain
// @Success  200 {string} string "ok"
// @Router   /healthz [get]
func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz godoc
// @Summary  Readiness probe
// @Produce  plain
// @Success  200 {string} string "ready"
// @Failure  503 {string} string "loading"
// @Router   /readyz [get]
func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.svc.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("loading"))
}

// status godoc
// @Summary  Runtime status
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Status())
}

// diagnostics godoc
// @Summary  Native library search report
// @Produce  json
// @Success  200 {object} object
// @Router   /diagnostics [get]
func (h *handlers) diagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Diagnostics())
}

// models godoc
// @Summary  Cached models and artifacts available on disk
// @Produce  json
// @Success  200 {object} types.ModelsResponse
// @Router   /models [get]
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	resp := types.ModelsResponse{Models: h.svc.ListModels()}
	arts, err := h.svc.Artifacts()
	if err != nil {
		logOutcome(r, requestLogLevel(r), "scan model directory", http.StatusOK, time.Now(), err)
	}
	resp.Available = arts
	writeJSON(w, resp)
}

// history godoc
// @Summary  Superseded versions of a model, oldest first
// @Produce  json
// @Param    name path string true "model name"
// @Success  200 {object} types.HistoryResponse
// @Router   /models/{name}/history [get]
func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	writeJSON(w, types.HistoryResponse{Name: name, Versions: h.svc.History(name)})
}

// load godoc
// @Summary  Load a model from the model directory into the cache
// @Produce  json
// @Param    name path string true "model name"
// @Success  200 {object} types.Model
// @Failure  404 {object} types.ErrorResponse
// @Failure  503 {object} types.ErrorResponse
// @Failure  507 {object} types.ErrorResponse
// @Router   /models/{name}/load [post]
func (h *handlers) load(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lvl := requestLogLevel(r)
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "model name is required")
		return
	}

	ctx, release := loadContext(r)
	defer release()

	m, err := h.svc.LoadModel(ctx, name)
	if err != nil {
		// If the client went away there is nobody to answer.
		if r.Context().Err() != nil {
			return
		}
		status, reason := statusForError(err)
		if reason != "" {
			IncrementRejection(reason)
		}
		recordLoad(status)
		writeJSONError(w, status, err.Error())
		logOutcome(r, lvl, "load end", status, start, err)
		return
	}
	recordLoad(http.StatusOK)
	writeJSON(w, m)
	logOutcome(r, lvl, "load end", http.StatusOK, start, nil)
}

// unload godoc
// @Summary  Remove a model from the cache
// @Param    name path string true "model name"
// @Success  204
// @Failure  404 {object} types.ErrorResponse
// @Router   /models/{name} [delete]
func (h *handlers) unload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.svc.UnloadModel(name) {
		writeJSONError(w, http.StatusNotFound, "model not cached: "+name)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// device godoc
// @Summary  Point-in-time device snapshot
// @Produce  json
// @Param    id path int true "device id"
// @Success  200 {object} types.DeviceResponse
// @Failure  400 {object} types.ErrorResponse
// @Failure  503 {object} types.ErrorResponse
// @Router   /devices/{id} [get]
func (h *handlers) device(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeJSONError(w, http.StatusBadRequest, "device id must be a non-negative integer")
		return
	}
	d, err := h.svc.Device(id)
	if err != nil {
		status, reason := statusForError(err)
		if status == http.StatusInternalServerError {
			// Out-of-range ids are the only other failure.
			status = http.StatusNotFound
		}
		if reason != "" {
			IncrementRejection(reason)
		}
		writeJSONError(w, status, err.Error())
		return
	}
	writeJSON(w, d)
}
