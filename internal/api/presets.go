package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flexinfer/mentatlab/services/workbench-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/presets"
)

// SavePresetRequest is the request body for saving a node preset.
type SavePresetRequest struct {
	ID         string         `json:"id,omitempty" validate:"omitempty,max=128"`
	Name       string         `json:"name" validate:"required,max=128"`
	NodeType   string         `json:"node_type" validate:"required,max=256"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ListPresets handles GET /api/v1/presets?node_type=
func (h *Handlers) ListPresets(w http.ResponseWriter, r *http.Request) {
	list, err := h.presets.List(r.Context(), r.URL.Query().Get("node_type"))
	metrics.ObserveStore("presets", "list", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"presets": list})
}

// SavePreset handles POST /api/v1/presets
func (h *Handlers) SavePreset(w http.ResponseWriter, r *http.Request) {
	var req SavePresetRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	p, err := h.presets.Save(r.Context(), &presets.Preset{
		ID:         req.ID,
		Name:       req.Name,
		NodeType:   req.NodeType,
		Properties: req.Properties,
	})
	metrics.ObserveStore("presets", "save", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, p)
}

// DeletePreset handles DELETE /api/v1/presets/{id}
func (h *Handlers) DeletePreset(w http.ResponseWriter, r *http.Request) {
	err := h.presets.Delete(r.Context(), mux.Vars(r)["id"])
	metrics.ObserveStore("presets", "delete", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
