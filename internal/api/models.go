package api

import (
	"net/http"
	"strings"

	"github.com/flexinfer/mentatlab/services/workbench-go/internal/models"
)

// ModelsRequest carries provider model descriptors.
type ModelsRequest struct {
	Models []models.RawModel `json:"models" validate:"required,max=10000,dive"`
}

// FilterModelsRequest filters descriptors after normalizing them.
type FilterModelsRequest struct {
	Models  []models.RawModel    `json:"models" validate:"required,max=10000,dive"`
	Filters models.ActiveFilters `json:"filters"`
}

// sizeBucketRule restricts size_bucket filters to known buckets.
var sizeBucketRule = "omitempty,oneof=" + strings.Join(models.SizeBuckets, " ")

// NormalizeModels handles POST /api/v1/models/normalize
func (h *Handlers) NormalizeModels(w http.ResponseWriter, r *http.Request) {
	var req ModelsRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"models": models.NormalizeAll(req.Models),
	})
}

// FilterModels handles POST /api/v1/models/filter
func (h *Handlers) FilterModels(w http.ResponseWriter, r *http.Request) {
	var req FilterModelsRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.requests.Var(req.Filters.SizeBucket, sizeBucketRule); err != nil {
		h.respondError(w, r, err)
		return
	}

	normalized := models.NormalizeAll(req.Models)
	filtered := models.Filter(normalized, req.Filters)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"models": filtered,
		"total":  len(normalized),
		"facets": models.ComputeFacets(normalized),
	})
}

// ModelFacets handles POST /api/v1/models/facets
func (h *Handlers) ModelFacets(w http.ResponseWriter, r *http.Request) {
	var req ModelsRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.ComputeFacets(models.NormalizeAll(req.Models)))
}
