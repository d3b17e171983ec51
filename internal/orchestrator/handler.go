package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"dash-resolver/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const jsonContentType = "application/json"

// Handler exposes the manifest endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

// Routes mounts the manifest endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/manifests", func(r chi.Router) {
		r.Post("/", h.CreateManifest)
		r.Get("/", h.ListManifests)
		r.Get("/{manifest_id}", h.GetManifest)
		r.Delete("/{manifest_id}", h.DeleteManifest)
	})
}

type createRequest struct {
	URL string `json:"url"`
}

// CreateManifest handles POST /manifests.
// Body: { "url": "https://example.com/live.mpd" }.
func (h *Handler) CreateManifest(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		h.log.Debug("invalid manifest body", slog.Any("error", err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	entry, err := h.svc.Resolve(r.Context(), req.URL)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidURL):
			h.log.Debug("manifest rejected", slog.String("url", req.URL), slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadRequest)
		case errors.Is(err, context.Canceled):
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			h.log.Error("manifest resolution failed", slog.String("url", req.URL), slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadGateway)
		}
		return
	}

	if entry.Manifest.Lifetime != nil {
		h.svc.Track(entry.URL)
	}
	h.updateTracked()
	h.log.Info("manifest resolved",
		slog.String("manifest_id", string(entry.ID)),
		slog.String("url", entry.URL),
		slog.Bool("dynamic", entry.Manifest.IsDynamic))
	h.writeJSON(w, http.StatusCreated, Summarize(entry))
}

// ListManifests handles GET /manifests.
func (h *Handler) ListManifests(w http.ResponseWriter, r *http.Request) {
	entries := h.svc.List()
	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		out = append(out, Summarize(e))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// GetManifest handles GET /manifests/{manifest_id}.
func (h *Handler) GetManifest(w http.ResponseWriter, r *http.Request) {
	id := ManifestID(chi.URLParam(r, "manifest_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	entry, err := h.svc.Get(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, Summarize(entry))
}

// DeleteManifest handles DELETE /manifests/{manifest_id}.
func (h *Handler) DeleteManifest(w http.ResponseWriter, r *http.Request) {
	id := ManifestID(chi.URLParam(r, "manifest_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.Delete(id); err != nil {
		if errors.Is(err, ErrManifestNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("delete manifest failed", slog.String("manifest_id", string(id)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.updateTracked()
	h.log.Info("manifest deleted", slog.String("manifest_id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateTracked() {
	if h.metrics != nil {
		h.metrics.SetManifestsTracked(h.svc.TrackedCount())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.log.Error("encode response failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	w.Write(body)
}
