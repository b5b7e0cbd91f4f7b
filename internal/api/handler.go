// Package api serves the snapshot query endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/query"
	"RegionMetrics/internal/snapshot"
)

// Service is the query surface the handlers depend on.
type Service interface {
	Districts() (map[string][]string, error)
	Heatmap() (map[string]query.HeatCell, error)
	Audit(ctx context.Context, region, district string) (query.Audit, error)
	District(region, district string) (domain.MetricsRow, error)
}

// Handler wires query endpoints to the query service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// NewHandler constructs the API handler.
func NewHandler(service Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{service: service, logger: log}
}

// Register mounts the API endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/metadata", h.HandleMetadata)
	r.Get("/api/heatmap", h.HandleHeatmap)
	r.Get("/api/audit", h.HandleAudit)
	r.Get("/api/regions/{region}/districts/{district}", h.HandleDistrict)
}

// HandleMetadata handles GET /api/metadata.
func (h *Handler) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	districts, err := h.service.Districts()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "metadata": districts})
}

// HandleHeatmap handles GET /api/heatmap.
func (h *Handler) HandleHeatmap(w http.ResponseWriter, r *http.Request) {
	heat, err := h.service.Heatmap()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": heat})
}

// HandleAudit handles GET /api/audit?state=&district=.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	region := query.Normalize(r.URL.Query().Get("state"))
	district := query.Normalize(r.URL.Query().Get("district"))

	audit, err := h.service.Audit(r.Context(), region, district)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"location": audit.Location,
		"cards":    audit.Cards,
	})
}

// HandleDistrict handles GET /api/regions/{region}/districts/{district}.
func (h *Handler) HandleDistrict(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.District(chi.URLParam(r, "region"), chi.URLParam(r, "district"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": row})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
		status, message = http.StatusServiceUnavailable, "snapshot not available"
	case errors.Is(err, query.ErrRegionNotFound):
		status, message = http.StatusNotFound, "State not found"
	case errors.Is(err, query.ErrDistrictNotFound):
		status, message = http.StatusNotFound, "District not found"
	}

	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	} else {
		h.logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]any{"status": "error", "message": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
