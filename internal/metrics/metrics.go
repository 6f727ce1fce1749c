// Package metrics provides Prometheus metrics for the workbench service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "workbench",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mentatlab",
			Subsystem: "workbench",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// InferredOutputs counts output-node outcomes during schema inference.
	InferredOutputs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "workbench",
			Name:      "inferred_outputs_total",
			Help:      "Output nodes seen by inference, by outcome",
		},
		[]string{"outcome"}, // "inferred", or the skip reason
	)

	// InferenceCache counts output-schema cache lookups.
	InferenceCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "workbench",
			Name:      "inference_cache_total",
			Help:      "Output schema cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// SearchDuration tracks fuzzy search latency.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mentatlab",
			Subsystem: "workbench",
			Name:      "search_duration_seconds",
			Help:      "Workflow search duration in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"mode"},
	)

	// DiffChanges counts node and edge changes reported by diffs.
	DiffChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "workbench",
			Name:      "diff_changes_total",
			Help:      "Node and edge changes reported by workflow diffs",
		},
		[]string{"kind", "status"}, // kind: node, edge
	)

	// RegistryGeneration reports the current metadata catalog generation.
	RegistryGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mentatlab",
			Subsystem: "workbench",
			Name:      "registry_generation",
			Help:      "Generation of the node metadata catalog",
		},
	)

	// StoreOperations counts persistence operations.
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "workbench",
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"store", "operation", "result"}, // result: success, error
	)

	// CatalogReloads counts catalog loads from disk.
	CatalogReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "workbench",
			Name:      "catalog_reloads_total",
			Help:      "Catalog file loads by result",
		},
		[]string{"result"},
	)
)

// ObserveStore records the outcome of a store operation.
func ObserveStore(store, operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StoreOperations.WithLabelValues(store, operation, result).Inc()
}
