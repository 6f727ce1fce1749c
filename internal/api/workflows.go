package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"

	"github.com/flexinfer/mentatlab/services/workbench-go/internal/auth"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/dataflow"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/diff"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/flowstore"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/search"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/tracing"
	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// downloadURLExpiry is the lifetime of presigned export links.
const downloadURLExpiry = 15 * time.Minute

// CreateWorkflowRequest is the request body for creating a workflow.
type CreateWorkflowRequest struct {
	ID          string          `json:"id,omitempty" validate:"omitempty,max=128,excludesall=/"`
	Name        string          `json:"name" validate:"required,max=256"`
	Description string          `json:"description,omitempty" validate:"max=4096"`
	Tags        []string        `json:"tags,omitempty" validate:"max=32,dive,required,max=64"`
	Graph       json.RawMessage `json:"graph" validate:"required"`
	Thumbnail   string          `json:"thumbnail,omitempty"`
	Settings    map[string]any  `json:"settings,omitempty"`
}

// UpdateWorkflowRequest is the request body for updating a workflow.
// Absent fields are left unchanged.
type UpdateWorkflowRequest struct {
	Name        *string         `json:"name,omitempty" validate:"omitempty,min=1,max=256"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=4096"`
	Tags        []string        `json:"tags,omitempty" validate:"max=32,dive,required,max=64"`
	Graph       json.RawMessage `json:"graph,omitempty"`
	Thumbnail   *string         `json:"thumbnail,omitempty"`
	Settings    map[string]any  `json:"settings,omitempty"`
}

// ImportWorkflowRequest imports a workflow from an artifact or inline document.
type ImportWorkflowRequest struct {
	URI      string          `json:"uri,omitempty" validate:"required_without=Workflow"`
	Workflow *types.Workflow `json:"workflow,omitempty" validate:"required_without=URI"`
	// ID overrides the imported document's id.
	ID string `json:"id,omitempty" validate:"omitempty,max=128,excludesall=/"`
}

// ExportResponse describes an exported workflow artifact.
type ExportResponse struct {
	Artifact    *dataflow.ArtifactRef `json:"artifact"`
	DownloadURL string                `json:"download_url,omitempty"`
}

// DiffResponse is the diff between two stored versions.
type DiffResponse struct {
	WorkflowID  string       `json:"workflow_id"`
	FromVersion int          `json:"from_version"`
	ToVersion   int          `json:"to_version"`
	Diff        *diff.Result `json:"diff"`
}

// --- Workflow CRUD ---

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	g, err := h.decodeGraph(req.Graph)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	wf, err := h.workflows.Create(r.Context(), &flowstore.CreateWorkflowRequest{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		Graph:       g,
		Thumbnail:   req.Thumbnail,
		Settings:    req.Settings,
		CreatedBy:   principal(r),
	})
	metrics.ObserveStore("workflows", "create", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, wf)
}

// ListWorkflows handles GET /api/v1/workflows. With q set, results are
// ranked by fuzzy match; mode=nodes restricts matching to node titles and
// types, nodes=true adds them in the default mode.
func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

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

	opts := &flowstore.ListOptions{
		CreatedBy: q.Get("created_by"),
		Tag:       q.Get("tag"),
	}

	query := q.Get("q")
	if query == "" {
		opts.Limit, opts.Offset = limit, offset
		list, err := h.workflows.List(ctx, opts)
		metrics.ObserveStore("workflows", "list", err)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusOK, map[string]interface{}{"workflows": list})
		return
	}

	mode := search.Mode(q.Get("mode"))
	switch mode {
	case "":
		mode = search.ModeAll
	case search.ModeAll, search.ModeNodes:
	default:
		h.respondError(w, r, fmt.Errorf("%w: unknown search mode %q", errBadRequest, mode))
		return
	}
	threshold, err := queryFloat(r, "threshold")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	includeNodes, _ := strconv.ParseBool(q.Get("nodes"))

	list, err := h.workflows.List(ctx, opts)
	metrics.ObserveStore("workflows", "list", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	_, span := tracing.Tracer().Start(ctx, "search.workflows")
	start := time.Now()
	results := search.Workflows(list, query, search.Options{
		Threshold:    threshold,
		IncludeNodes: includeNodes,
		Mode:         mode,
		Limit:        limit,
	})
	metrics.SearchDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("search.mode", string(mode)),
		attribute.Int("search.candidates", len(list)),
		attribute.Int("search.results", len(results)),
	)
	span.End()

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": results,
	})
}

// SearchNodes handles GET /api/v1/workflows/nodes/search
func (h *Handlers) SearchNodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("q")

	threshold, err := queryFloat(r, "threshold")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	list, err := h.workflows.List(ctx, nil)
	metrics.ObserveStore("workflows", "list", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	_, span := tracing.Tracer().Start(ctx, "search.matching_nodes")
	start := time.Now()
	results := search.MatchingNodes(list, query, threshold)
	metrics.SearchDuration.WithLabelValues("matching_nodes").Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("search.results", len(results)))
	span.End()

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": results,
	})
}

// GetWorkflow handles GET /api/v1/workflows/{id}
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.workflows.Get(r.Context(), mux.Vars(r)["id"])
	metrics.ObserveStore("workflows", "get", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, wf)
}

// UpdateWorkflow handles PUT /api/v1/workflows/{id}
func (h *Handlers) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req UpdateWorkflowRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	update := &flowstore.UpdateWorkflowRequest{
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		Thumbnail:   req.Thumbnail,
		Settings:    req.Settings,
	}
	if len(req.Graph) > 0 && string(req.Graph) != "null" {
		g, err := h.decodeGraph(req.Graph)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		update.Graph = g
	}

	wf, err := h.workflows.Update(r.Context(), mux.Vars(r)["id"], update)
	metrics.ObserveStore("workflows", "update", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, wf)
}

// DeleteWorkflow handles DELETE /api/v1/workflows/{id}. Exported artifacts
// are removed on a best-effort basis.
func (h *Handlers) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	err := h.workflows.Delete(ctx, id)
	metrics.ObserveStore("workflows", "delete", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if h.artifacts != nil {
		if err := h.artifacts.DeleteExports(ctx, id); err != nil {
			h.logger.Warn("failed to delete workflow exports",
				slog.String("workflow_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Versions ---

// ListVersions handles GET /api/v1/workflows/{id}/versions
func (h *Handlers) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.workflows.ListVersions(r.Context(), mux.Vars(r)["id"])
	metrics.ObserveStore("workflows", "list_versions", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

// GetVersion handles GET /api/v1/workflows/{id}/versions/{version}
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	version, err := strconv.Atoi(vars["version"])
	if err != nil || version < 1 {
		h.respondError(w, r, fmt.Errorf("%w: version must be a positive integer", errBadRequest))
		return
	}

	v, err := h.workflows.GetVersion(r.Context(), vars["id"], version)
	metrics.ObserveStore("workflows", "get_version", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, v)
}

// DiffVersions handles GET /api/v1/workflows/{id}/diff?from=&to=.
// to defaults to the current version and from to the one before it. Diffing
// from version 0 compares against an empty graph.
func (h *Handlers) DiffVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	wf, err := h.workflows.Get(ctx, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	to, from := wf.Version, wf.Version-1
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = strconv.Atoi(raw); err != nil || to < 1 {
			h.respondError(w, r, fmt.Errorf("%w: to must be a positive integer", errBadRequest))
			return
		}
		from = to - 1
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = strconv.Atoi(raw); err != nil || from < 0 {
			h.respondError(w, r, fmt.Errorf("%w: from must be a non-negative integer", errBadRequest))
			return
		}
	}

	fromGraph, err := h.versionGraph(r, id, from)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	toGraph, err := h.versionGraph(r, id, to)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, DiffResponse{
		WorkflowID:  id,
		FromVersion: from,
		ToVersion:   to,
		Diff:        h.computeDiff(r, fromGraph, toGraph),
	})
}

// versionGraph returns the graph of a stored version; version 0 is empty.
func (h *Handlers) versionGraph(r *http.Request, id string, version int) (*types.Graph, error) {
	if version == 0 {
		return &types.Graph{}, nil
	}
	v, err := h.workflows.GetVersion(r.Context(), id, version)
	if err != nil {
		return nil, err
	}
	return &v.Graph, nil
}

// computeDiff runs diff.Compute inside a span and records change metrics.
func (h *Handlers) computeDiff(r *http.Request, from, to *types.Graph) *diff.Result {
	_, span := tracing.Tracer().Start(r.Context(), "diff.compute")
	defer span.End()

	result := diff.Compute(from, to)
	for _, st := range []diff.Status{diff.StatusAdded, diff.StatusRemoved, diff.StatusModified} {
		if n := len(result.NodesWithStatus(st)); n > 0 {
			metrics.DiffChanges.WithLabelValues("node", string(st)).Add(float64(n))
		}
		if n := len(result.EdgesWithStatus(st)); n > 0 {
			metrics.DiffChanges.WithLabelValues("edge", string(st)).Add(float64(n))
		}
	}
	span.SetAttributes(
		attribute.Int("diff.added", result.Summary.Added),
		attribute.Int("diff.removed", result.Summary.Removed),
		attribute.Int("diff.modified", result.Summary.Modified),
	)
	return result
}

// --- Output schema ---

// WorkflowOutputSchema handles GET /api/v1/workflows/{id}/output-schema.
// explain=true adds per-output resolutions.
func (h *Handlers) WorkflowOutputSchema(w http.ResponseWriter, r *http.Request) {
	wf, err := h.workflows.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	explain, _ := strconv.ParseBool(r.URL.Query().Get("explain"))
	resp, err := h.inferSchema(r, &wf.Graph, explain)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// --- Export / import ---

// ExportWorkflow handles POST /api/v1/workflows/{id}/export?version=
func (h *Handlers) ExportWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.artifacts == nil {
		h.respondError(w, r, errors.New("artifact backend not configured"), http.StatusServiceUnavailable)
		return
	}

	wf, err := h.workflows.Get(ctx, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	version, err := queryInt(r, "version")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if version > 0 && version != wf.Version {
		v, err := h.workflows.GetVersion(ctx, id, version)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		wf.Version = v.Version
		wf.Name = v.Name
		wf.Description = v.Description
		wf.Graph = v.Graph
		wf.UpdatedAt = v.SavedAt
	}

	ref, err := h.artifacts.ExportWorkflow(ctx, wf)
	metrics.ObserveStore("artifacts", "export", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := ExportResponse{Artifact: ref}
	url, err := h.artifacts.GetDownloadURL(ctx, ref, downloadURLExpiry)
	switch {
	case err == nil:
		resp.DownloadURL = url
	case !errors.Is(err, dataflow.ErrPresignNotSupported):
		h.logger.Warn("failed to presign export", slog.String("uri", ref.URI), slog.String("error", err.Error()))
	}

	h.respondJSON(w, http.StatusCreated, resp)
}

// ListExports handles GET /api/v1/workflows/{id}/exports
func (h *Handlers) ListExports(w http.ResponseWriter, r *http.Request) {
	if h.artifacts == nil {
		h.respondJSON(w, http.StatusOK, map[string]interface{}{"exports": []*dataflow.ArtifactRef{}})
		return
	}
	refs, err := h.artifacts.ListExports(r.Context(), mux.Vars(r)["id"])
	metrics.ObserveStore("artifacts", "list", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"exports": refs})
}

// ImportWorkflow handles POST /api/v1/workflows/import. The imported
// workflow starts a fresh history at version 1.
func (h *Handlers) ImportWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ImportWorkflowRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	doc := req.Workflow
	if req.URI != "" {
		if h.artifacts == nil {
			h.respondError(w, r, errors.New("artifact backend not configured"), http.StatusServiceUnavailable)
			return
		}
		var err error
		doc, err = h.artifacts.ImportWorkflow(ctx, req.URI)
		metrics.ObserveStore("artifacts", "import", err)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
	}

	if h.schemas != nil {
		if err := h.schemas.ValidateValue(doc.Graph).Err(); err != nil {
			h.respondError(w, r, fmt.Errorf("%w: graph: %v", errBadRequest, err))
			return
		}
	}

	id := doc.ID
	if req.ID != "" {
		id = req.ID
	}
	wf, err := h.workflows.Create(ctx, &flowstore.CreateWorkflowRequest{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Tags:        doc.Tags,
		Graph:       &doc.Graph,
		Thumbnail:   doc.Thumbnail,
		Settings:    doc.Settings,
		CreatedBy:   principal(r),
	})
	metrics.ObserveStore("workflows", "create", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, wf)
}

// principal returns the authenticated caller, if any.
func principal(r *http.Request) string {
	if claims := auth.GetClaims(r.Context()); claims != nil {
		return claims.Principal()
	}
	return ""
}
