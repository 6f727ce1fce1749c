package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flexinfer/mentatlab/services/workbench-go/internal/inference"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/tracing"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/typeutil"
	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// OutputSchemaRequest asks for the output schema of an unsaved graph.
type OutputSchemaRequest struct {
	Graph   json.RawMessage `json:"graph" validate:"required"`
	Explain bool            `json:"explain,omitempty"`
}

// OutputSchemaResponse carries an inferred schema. Schema is null when no
// output node resolves to a type.
type OutputSchemaResponse struct {
	Schema            *types.InferredOutputSchema `json:"schema"`
	CatalogGeneration int64                       `json:"catalog_generation"`
	Cached            bool                        `json:"cached"`
	Resolutions       []inference.Resolution      `json:"resolutions,omitempty"`
}

// GraphDiffRequest holds two graphs to compare.
type GraphDiffRequest struct {
	From json.RawMessage `json:"from" validate:"required"`
	To   json.RawMessage `json:"to" validate:"required"`
}

// ReduceTypeRequest holds a type descriptor to reduce.
type ReduceTypeRequest struct {
	Type *types.TypeMetadata `json:"type" validate:"required"`
}

// ReduceTypeResponse is the reduced type name.
type ReduceTypeResponse struct {
	Type    string   `json:"type"`
	Union   bool     `json:"union"`
	Members []string `json:"members,omitempty"`
}

// GraphOutputSchema handles POST /api/v1/graphs/output-schema
func (h *Handlers) GraphOutputSchema(w http.ResponseWriter, r *http.Request) {
	var req OutputSchemaRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	g, err := h.decodeGraph(req.Graph)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp, err := h.inferSchema(r, g, req.Explain)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// inferSchema resolves g against the current catalog snapshot through the
// schema cache.
func (h *Handlers) inferSchema(r *http.Request, g *types.Graph, explain bool) (*OutputSchemaResponse, error) {
	ctx, span := tracing.Tracer().Start(r.Context(), "inference.output_schema")
	defer span.End()

	catalog, err := h.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	metrics.RegistryGeneration.Set(float64(catalog.Generation()))

	schema, hit, err := h.cache.Infer(g, catalog, catalog.Generation())
	if err != nil {
		return nil, err
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	metrics.InferenceCache.WithLabelValues(result).Inc()

	resp := &OutputSchemaResponse{
		Schema:            schema,
		CatalogGeneration: catalog.Generation(),
		Cached:            hit,
	}
	debug := h.logger.Enabled(ctx, slog.LevelDebug)
	if explain || debug {
		resolutions := inference.ResolveOutputs(g, catalog)
		for _, res := range resolutions {
			outcome := "inferred"
			if res.Skipped != inference.SkipNone {
				outcome = string(res.Skipped)
				h.logger.LogAttrs(ctx, slog.LevelDebug, "output skipped",
					slog.String("output_node", res.OutputNodeID),
					slog.String("source_node", res.SourceNodeID),
					slog.String("source_type", res.SourceType),
					slog.String("reason", outcome),
				)
			}
			if explain {
				metrics.InferredOutputs.WithLabelValues(outcome).Inc()
			}
		}
		if explain {
			resp.Resolutions = resolutions
		}
	}

	outputs := 0
	if schema != nil {
		outputs = schema.Properties.Len()
	}
	span.SetAttributes(
		attribute.Int("graph.nodes", len(g.Nodes)),
		attribute.Int("schema.outputs", outputs),
		attribute.Bool("cache.hit", hit),
		attribute.Int64("catalog.generation", catalog.Generation()),
	)
	return resp, nil
}

// GraphDiff handles POST /api/v1/graphs/diff
func (h *Handlers) GraphDiff(w http.ResponseWriter, r *http.Request) {
	var req GraphDiffRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	from, err := h.decodeGraph(req.From)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	to, err := h.decodeGraph(req.To)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, h.computeDiff(r, from, to))
}

// ReduceType handles POST /api/v1/types/reduce
func (h *Handlers) ReduceType(w http.ResponseWriter, r *http.Request) {
	var req ReduceTypeRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := ReduceTypeResponse{
		Type:  typeutil.ReduceUnionType(*req.Type),
		Union: typeutil.IsUnion(*req.Type),
	}
	if resp.Union {
		resp.Members = typeutil.MemberTypes(*req.Type)
	}
	h.respondJSON(w, http.StatusOK, resp)
}
