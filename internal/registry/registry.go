// Package registry stores node metadata, the catalog that output-type
// inference resolves node types against.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// Common errors returned by Registry implementations.
var (
	ErrMetadataNotFound = errors.New("node metadata not found")
	ErrInvalidMetadata  = errors.New("invalid node metadata")
)

// ListOptions configures list queries.
type ListOptions struct {
	// Namespace filters entries to a namespace, or a node type prefix when
	// the entry has no namespace set.
	Namespace string

	// Limit is the maximum number of entries to return (0 = no limit)
	Limit int

	// Offset is the number of entries to skip (for pagination)
	Offset int
}

// Registry defines the interface for node metadata storage.
// Implementations must be safe for concurrent use.
type Registry interface {
	// Register stores or replaces the metadata for meta.NodeType.
	Register(ctx context.Context, meta *types.NodeMetadata) error

	// RegisterMany stores a batch of entries and bumps the generation once.
	RegisterMany(ctx context.Context, metas []*types.NodeMetadata) error

	// Replace swaps the whole catalog for metas: entries not in metas are
	// removed. The generation is bumped once.
	Replace(ctx context.Context, metas []*types.NodeMetadata) error

	// Get retrieves metadata by node type. Returns ErrMetadataNotFound if missing.
	Get(ctx context.Context, nodeType string) (*types.NodeMetadata, error)

	// Delete removes metadata by node type. Returns ErrMetadataNotFound if missing.
	Delete(ctx context.Context, nodeType string) error

	// List returns entries sorted by node type.
	List(ctx context.Context, opts *ListOptions) ([]*types.NodeMetadata, error)

	// Snapshot returns an immutable view of the whole catalog.
	Snapshot(ctx context.Context) (*Catalog, error)

	// Generation is incremented on every change. Inference results cached
	// against one generation are stale under another.
	Generation(ctx context.Context) (int64, error)

	// Close releases any resources.
	Close() error
}

// Validate checks that meta can be stored.
func Validate(meta *types.NodeMetadata) error {
	if meta == nil {
		return fmt.Errorf("%w: nil entry", ErrInvalidMetadata)
	}
	if meta.NodeType == "" {
		return fmt.Errorf("%w: node_type is required", ErrInvalidMetadata)
	}
	seen := make(map[string]bool, len(meta.Outputs))
	for _, o := range meta.Outputs {
		if o.Name == "" {
			return fmt.Errorf("%w: %s: output name is required", ErrInvalidMetadata, meta.NodeType)
		}
		if seen[o.Name] {
			return fmt.Errorf("%w: %s: duplicate output %q", ErrInvalidMetadata, meta.NodeType, o.Name)
		}
		seen[o.Name] = true
	}
	return nil
}

// Catalog is an immutable snapshot of the registry at one generation.
type Catalog struct {
	generation int64
	entries    map[string]*types.NodeMetadata
}

// NewCatalog builds a catalog from metas. Later entries replace earlier
// ones with the same node type.
func NewCatalog(generation int64, metas []*types.NodeMetadata) *Catalog {
	c := &Catalog{
		generation: generation,
		entries:    make(map[string]*types.NodeMetadata, len(metas)),
	}
	for _, m := range metas {
		if m == nil {
			continue
		}
		c.entries[m.NodeType] = cloneMetadata(m)
	}
	return c
}

// Lookup implements inference.MetadataLookup.
func (c *Catalog) Lookup(nodeType string) (*types.NodeMetadata, bool) {
	if c == nil {
		return nil, false
	}
	m, ok := c.entries[nodeType]
	return m, ok
}

// Generation returns the registry generation the snapshot was taken at.
func (c *Catalog) Generation() int64 {
	if c == nil {
		return 0
	}
	return c.generation
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// NormalizeCatalog converts a catalog document to JSON. JSON input is
// returned unchanged; anything else is parsed as YAML.
func NormalizeCatalog(data []byte) ([]byte, error) {
	if json.Valid(data) {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode catalog yaml: %v", ErrInvalidMetadata, err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert catalog yaml: %w", err)
	}
	return out, nil
}

// DecodeCatalog parses a catalog document: either an array of node metadata
// or an object with a "nodes" array, in JSON or YAML.
func DecodeCatalog(data []byte) ([]*types.NodeMetadata, error) {
	data, err := NormalizeCatalog(data)
	if err != nil {
		return nil, err
	}

	var metas []*types.NodeMetadata
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		if err := json.Unmarshal(data, &metas); err != nil {
			return nil, fmt.Errorf("%w: decode catalog: %v", ErrInvalidMetadata, err)
		}
	} else {
		var doc struct {
			Nodes []*types.NodeMetadata `json:"nodes"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: decode catalog: %v", ErrInvalidMetadata, err)
		}
		metas = doc.Nodes
	}

	for _, m := range metas {
		if err := Validate(m); err != nil {
			return nil, err
		}
	}
	return metas, nil
}

func matchesNamespace(meta *types.NodeMetadata, ns string) bool {
	if ns == "" {
		return true
	}
	if meta.Namespace != "" {
		return meta.Namespace == ns || strings.HasPrefix(meta.Namespace, ns+".")
	}
	return strings.HasPrefix(meta.NodeType, ns+".")
}

// paginate sorts metas by node type and applies offset and limit.
func paginate(metas []*types.NodeMetadata, opts *ListOptions) []*types.NodeMetadata {
	sort.Slice(metas, func(i, j int) bool { return metas[i].NodeType < metas[j].NodeType })

	if opts.Offset > 0 {
		if opts.Offset >= len(metas) {
			return []*types.NodeMetadata{}
		}
		metas = metas[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(metas) {
		metas = metas[:opts.Limit]
	}
	return metas
}

// cloneMetadata returns a copy that shares no slices with m.
func cloneMetadata(m *types.NodeMetadata) *types.NodeMetadata {
	c := *m
	if m.Properties != nil {
		c.Properties = make([]types.Property, len(m.Properties))
		copy(c.Properties, m.Properties)
	}
	if m.Outputs != nil {
		c.Outputs = make([]types.OutputSlot, len(m.Outputs))
		copy(c.Outputs, m.Outputs)
	}
	return &c
}
