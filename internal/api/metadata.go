package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flexinfer/mentatlab/services/workbench-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/registry"
)

// ListMetadata handles GET /api/v1/metadata?namespace=&limit=&offset=
func (h *Handlers) ListMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := queryInt(r, "limit")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	list, err := h.registry.List(ctx, &registry.ListOptions{
		Namespace: r.URL.Query().Get("namespace"),
		Limit:     limit,
		Offset:    offset,
	})
	metrics.ObserveStore("registry", "list", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	gen, err := h.registry.Generation(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"nodes":              list,
		"catalog_generation": gen,
	})
}

// RegisterMetadata handles POST /api/v1/metadata. The body is a catalog
// document (JSON or YAML, an array or {"nodes": [...]}); with ?uri= the
// document is read from the artifact backend instead.
func (h *Handlers) RegisterMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		data []byte
		err  error
	)
	if uri := r.URL.Query().Get("uri"); uri != "" {
		if h.artifacts == nil {
			h.respondError(w, r, errors.New("artifact backend not configured"), http.StatusServiceUnavailable)
			return
		}
		data, err = h.artifacts.LoadDocument(ctx, uri)
	} else {
		data, err = io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err == nil && len(data) == 0 {
			err = fmt.Errorf("%w: empty catalog document", errBadRequest)
		}
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	n, err := h.loader.LoadBytes(ctx, data)
	metrics.ObserveStore("registry", "register", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	gen, err := h.registry.Generation(ctx)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	metrics.RegistryGeneration.Set(float64(gen))

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"registered":         n,
		"catalog_generation": gen,
	})
}

// GetMetadata handles GET /api/v1/metadata/{type}
func (h *Handlers) GetMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.registry.Get(r.Context(), mux.Vars(r)["type"])
	metrics.ObserveStore("registry", "get", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, meta)
}

// DeleteMetadata handles DELETE /api/v1/metadata/{type}
func (h *Handlers) DeleteMetadata(w http.ResponseWriter, r *http.Request) {
	err := h.registry.Delete(r.Context(), mux.Vars(r)["type"])
	metrics.ObserveStore("registry", "delete", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
