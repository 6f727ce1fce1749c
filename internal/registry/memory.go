package registry

import (
	"context"
	"sync"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// MemoryRegistry implements Registry using in-memory storage.
// Suitable for testing and local development.
type MemoryRegistry struct {
	mu         sync.RWMutex
	entries    map[string]*types.NodeMetadata
	generation int64
}

// NewMemoryRegistry creates a new in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]*types.NodeMetadata),
	}
}

// Register stores or replaces an entry.
func (r *MemoryRegistry) Register(ctx context.Context, meta *types.NodeMetadata) error {
	return r.RegisterMany(ctx, []*types.NodeMetadata{meta})
}

// RegisterMany stores a batch of entries. Nothing is stored if any entry is invalid.
func (r *MemoryRegistry) RegisterMany(ctx context.Context, metas []*types.NodeMetadata) error {
	for _, m := range metas {
		if err := Validate(m); err != nil {
			return err
		}
	}
	if len(metas) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range metas {
		r.entries[m.NodeType] = cloneMetadata(m)
	}
	r.generation++
	return nil
}

// Replace swaps all entries for metas. Nothing changes if any entry is invalid.
func (r *MemoryRegistry) Replace(ctx context.Context, metas []*types.NodeMetadata) error {
	for _, m := range metas {
		if err := Validate(m); err != nil {
			return err
		}
	}

	entries := make(map[string]*types.NodeMetadata, len(metas))
	for _, m := range metas {
		entries[m.NodeType] = cloneMetadata(m)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = entries
	r.generation++
	return nil
}

// Get retrieves an entry by node type.
func (r *MemoryRegistry) Get(ctx context.Context, nodeType string) (*types.NodeMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.entries[nodeType]
	if !ok {
		return nil, ErrMetadataNotFound
	}

	// Return a copy to prevent external mutation
	return cloneMetadata(meta), nil
}

// Delete removes an entry.
func (r *MemoryRegistry) Delete(ctx context.Context, nodeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[nodeType]; !ok {
		return ErrMetadataNotFound
	}

	delete(r.entries, nodeType)
	r.generation++
	return nil
}

// List returns entries matching the options, sorted by node type.
func (r *MemoryRegistry) List(ctx context.Context, opts *ListOptions) ([]*types.NodeMetadata, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	metas := make([]*types.NodeMetadata, 0, len(r.entries))
	for _, meta := range r.entries {
		if !matchesNamespace(meta, opts.Namespace) {
			continue
		}
		metas = append(metas, cloneMetadata(meta))
	}

	return paginate(metas, opts), nil
}

// Snapshot returns an immutable catalog of all entries.
func (r *MemoryRegistry) Snapshot(ctx context.Context) (*Catalog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metas := make([]*types.NodeMetadata, 0, len(r.entries))
	for _, meta := range r.entries {
		metas = append(metas, meta)
	}
	return NewCatalog(r.generation, metas), nil
}

// Generation returns the current generation.
func (r *MemoryRegistry) Generation(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation, nil
}

// Close is a no-op for the memory registry.
func (r *MemoryRegistry) Close() error {
	return nil
}
