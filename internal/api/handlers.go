// Package api provides HTTP handlers and routing for the workbench service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/flexinfer/mentatlab/services/workbench-go/internal/config"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/dataflow"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/flowstore"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/inference"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/presets"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/registry"
	schemavalidator "github.com/flexinfer/mentatlab/services/workbench-go/internal/validator"
	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// maxBodySize bounds request bodies, including inline catalogs.
const maxBodySize = 16 << 20

// Deps are the stores and services the handlers operate on.
type Deps struct {
	Workflows flowstore.Store
	Registry  registry.Registry
	Presets   presets.Store
	Artifacts *dataflow.Service
	Schemas   *schemavalidator.Validator
	Cache     *inference.Cache
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	workflows flowstore.Store
	registry  registry.Registry
	presets   presets.Store
	artifacts *dataflow.Service
	schemas   *schemavalidator.Validator
	cache     *inference.Cache
	loader    *registry.Loader
	requests  *validator.Validate
	config    *config.Config
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Load()
	}
	if deps.Cache == nil {
		deps.Cache = inference.NewCache(cfg.CacheSize)
	}

	requests := validator.New(validator.WithRequiredStructEnabled())
	requests.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	var catalogValidator registry.CatalogValidator
	if deps.Schemas != nil {
		catalogValidator = deps.Schemas
	}

	return &Handlers{
		workflows: deps.Workflows,
		registry:  deps.Registry,
		presets:   deps.Presets,
		artifacts: deps.Artifacts,
		schemas:   deps.Schemas,
		cache:     deps.Cache,
		loader:    registry.NewLoader(deps.Registry, catalogValidator, logger),
		requests:  requests,
		config:    cfg,
		logger:    logger,
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking the stores.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.workflows.List(ctx, &flowstore.ListOptions{Limit: 1}); err != nil {
		h.respondError(w, r, fmt.Errorf("workflow store unhealthy: %w", err), http.StatusServiceUnavailable)
		return
	}

	gen, err := h.registry.Generation(ctx)
	if err != nil {
		h.respondError(w, r, fmt.Errorf("registry unhealthy: %w", err), http.StatusServiceUnavailable)
		return
	}
	metrics.RegistryGeneration.Set(float64(gen))

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "ready",
		"catalog_generation": gen,
	})
}

// --- Helper Methods ---

// decode reads a JSON body into dst and validates its struct tags.
func (h *Handlers) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return h.requests.Struct(dst)
}

// decodeGraph validates a raw graph document and decodes it.
func (h *Handlers) decodeGraph(raw json.RawMessage) (*types.Graph, error) {
	if h.schemas != nil {
		if err := h.schemas.ValidateGraphJSON(raw).Err(); err != nil {
			return nil, fmt.Errorf("%w: graph: %v", errBadRequest, err)
		}
	}
	var g types.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("%w: graph: %v", errBadRequest, err)
	}
	return &g, nil
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// respondError writes err as an ErrorResponse. The status is derived from
// the error unless one is given.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error, status ...int) {
	code := statusFor(err)
	if len(status) > 0 {
		code = status[0]
	}

	attrs := []any{
		slog.String("request_id", GetRequestID(r.Context(), r)),
		slog.String("path", r.URL.Path),
		slog.Int("status", code),
		slog.String("error", err.Error()),
	}
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
		writeErrorResponse(w, r, code, HTTPStatusToErrorCode(code), http.StatusText(code), nil)
		return
	}
	h.logger.Warn("request rejected", attrs...)

	errCode := HTTPStatusToErrorCode(code)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		errCode = ErrCodeValidation
	}
	writeErrorResponse(w, r, code, errCode, err.Error(), validationDetails(err))
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, key)
	}
	return n, nil
}

// queryFloat parses an optional float query parameter.
func queryFloat(r *http.Request, key string) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadRequest, key)
	}
	return f, nil
}
