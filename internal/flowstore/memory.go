package flowstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for testing and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*types.Workflow
	versions  map[string][]*types.WorkflowVersion
}

// NewMemoryStore creates a new in-memory workflow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*types.Workflow),
		versions:  make(map[string][]*types.WorkflowVersion),
	}
}

// Create saves a new workflow as version 1.
func (s *MemoryStore) Create(ctx context.Context, req *CreateWorkflowRequest) (*types.Workflow, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	if _, exists := s.workflows[id]; exists {
		return nil, ErrWorkflowExists
	}

	wf := newWorkflow(id, req)
	s.workflows[id] = wf
	s.versions[id] = []*types.WorkflowVersion{snapshot(wf)}
	return cloneWorkflow(wf), nil
}

// Get retrieves a workflow by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}

	// Return a copy to prevent external mutation
	return cloneWorkflow(wf), nil
}

// Update modifies an existing workflow.
func (s *MemoryStore) Update(ctx context.Context, id string, req *UpdateWorkflowRequest) (*types.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}

	history := s.versions[id]
	if applyUpdate(wf, req) || len(history) == 0 {
		s.versions[id] = append(history, snapshot(wf))
	} else {
		history[len(history)-1] = snapshot(wf)
	}

	return cloneWorkflow(wf), nil
}

// Delete removes a workflow and its versions.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return ErrWorkflowNotFound
	}

	delete(s.workflows, id)
	delete(s.versions, id)
	return nil
}

// List returns workflows matching the options.
func (s *MemoryStore) List(ctx context.Context, opts *ListOptions) ([]*types.Workflow, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	wfs := make([]*types.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		if !matches(wf, opts) {
			continue
		}
		wfs = append(wfs, cloneWorkflow(wf))
	}

	return paginate(wfs, opts), nil
}

// ListVersions returns the version history, oldest first.
func (s *MemoryStore) ListVersions(ctx context.Context, id string) ([]*types.WorkflowVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.workflows[id]; !ok {
		return nil, ErrWorkflowNotFound
	}

	history := s.versions[id]
	out := make([]*types.WorkflowVersion, len(history))
	for i, v := range history {
		c := *v
		out[i] = &c
	}
	return out, nil
}

// GetVersion returns one version of a workflow.
func (s *MemoryStore) GetVersion(ctx context.Context, id string, version int) (*types.WorkflowVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.workflows[id]; !ok {
		return nil, ErrWorkflowNotFound
	}

	for _, v := range s.versions[id] {
		if v.Version == version {
			c := *v
			return &c, nil
		}
	}
	return nil, ErrVersionNotFound
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
