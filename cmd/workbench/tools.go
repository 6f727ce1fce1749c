package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flexinfer/mentatlab/services/workbench-go/internal/auth"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/config"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/diff"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/inference"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/models"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/registry"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/validator"
	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

var (
	inferCatalog string
	inferExplain bool

	modelFilters models.ActiveFilters
	modelFacets  bool

	tokenSubject string
	tokenRoles   []string
	tokenTTL     time.Duration
)

var inferCmd = &cobra.Command{
	Use:   "infer [graph-file]",
	Short: "Infer the output schema of a graph or workflow document",
	Long: `Reads a graph (or a workflow document with a "graph" field) and prints
its inferred output schema. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfer,
}

var diffCmd = &cobra.Command{
	Use:   "diff [from-file] [to-file]",
	Short: "Print the structural diff between two graphs",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

var modelsCmd = &cobra.Command{
	Use:   "models [models-file]",
	Short: "Normalize and filter a JSON list of model descriptors",
	Args:  cobra.ExactArgs(1),
	RunE:  runModels,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a service token signed with SERVICE_TOKEN_SECRET",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	inferCmd.Flags().StringVar(&inferCatalog, "catalog", "", "Node metadata catalog file, JSON or YAML (required)")
	inferCmd.Flags().BoolVar(&inferExplain, "explain", false, "Print per-output resolutions instead of the schema")
	inferCmd.MarkFlagRequired("catalog")

	modelsCmd.Flags().StringVar(&modelFilters.SizeBucket, "size-bucket", "", "Keep models in this size bucket")
	modelsCmd.Flags().StringSliceVar(&modelFilters.TypeTags, "tag", nil, "Keep models with any of these type tags")
	modelsCmd.Flags().StringSliceVar(&modelFilters.Families, "family", nil, "Keep models in any of these families")
	modelsCmd.Flags().BoolVar(&modelFacets, "facets", false, "Print facet counts instead of models")

	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject (required)")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", nil, "Roles to grant")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.MarkFlagRequired("subject")
}

func runInfer(cmd *cobra.Command, args []string) error {
	g, err := readGraph(cmd, args[0])
	if err != nil {
		return err
	}

	data, err := os.ReadFile(inferCatalog)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	metas, err := registry.DecodeCatalog(data)
	if err != nil {
		return fmt.Errorf("catalog %s: %w", inferCatalog, err)
	}
	catalog := registry.NewCatalog(0, metas)

	logger := newLogger(config.Load(), cmd.ErrOrStderr())
	lookup := inference.LookupFunc(func(nodeType string) (*types.NodeMetadata, bool) {
		meta, ok := catalog.Lookup(nodeType)
		if !ok {
			logger.Debug("node type not in catalog",
				slog.String("node_type", nodeType),
				slog.String("catalog", inferCatalog),
			)
		}
		return meta, ok
	})

	if inferExplain {
		return writeJSON(cmd.OutOrStdout(), inference.ResolveOutputs(g, lookup))
	}
	return writeJSON(cmd.OutOrStdout(), inference.InferOutputSchema(g, lookup))
}

func runDiff(cmd *cobra.Command, args []string) error {
	from, err := readGraph(cmd, args[0])
	if err != nil {
		return err
	}
	to, err := readGraph(cmd, args[1])
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), diff.Compute(from, to))
}

func runModels(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	var raw []models.RawModel
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode models: %w", err)
	}

	normalized := models.NormalizeAll(raw)
	if modelFacets {
		return writeJSON(cmd.OutOrStdout(), models.ComputeFacets(normalized))
	}
	return writeJSON(cmd.OutOrStdout(), models.Filter(normalized, modelFilters))
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.ServiceTokenSecret == "" {
		return fmt.Errorf("SERVICE_TOKEN_SECRET is not set")
	}
	tokens, err := auth.NewServiceTokens(cfg.ServiceTokenSecret, auth.DefaultServiceIssuer)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(tokenSubject, tokenRoles, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

// readGraph loads a graph document, validating it against the graph schema.
// Workflow documents are unwrapped to their graph.
func readGraph(cmd *cobra.Command, path string) (*types.Graph, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Graph json.RawMessage `json:"graph"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(doc.Graph) > 0 {
		data = doc.Graph
	}

	v, err := validator.New()
	if err != nil {
		return nil, err
	}
	if err := v.ValidateGraphJSON(data).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var g types.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode graph %s: %w", path, err)
	}
	return &g, nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
