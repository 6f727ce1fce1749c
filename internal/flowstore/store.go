// Package flowstore provides workflow persistence with version history.
package flowstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/flexinfer/mentatlab/services/workbench-go/internal/diff"
	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// Common errors returned by Store implementations.
var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrWorkflowExists   = errors.New("workflow already exists")
	ErrVersionNotFound  = errors.New("workflow version not found")
	ErrInvalidWorkflow  = errors.New("invalid workflow")
)

// CreateWorkflowRequest is the input for creating a new workflow.
type CreateWorkflowRequest struct {
	ID          string         `json:"id,omitempty"` // Optional, auto-generated if empty
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Graph       *types.Graph   `json:"graph"`
	Thumbnail   string         `json:"thumbnail,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
}

// UpdateWorkflowRequest is the input for updating an existing workflow.
// Nil fields are left unchanged.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Graph       *types.Graph   `json:"graph,omitempty"`
	Thumbnail   *string        `json:"thumbnail,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
}

// ListOptions configures list queries.
type ListOptions struct {
	Limit     int
	Offset    int
	CreatedBy string // Filter by creator
	Tag       string // Filter by tag
}

// Store defines the interface for workflow persistence.
// Implementations must be safe for concurrent use.
//
// Version numbers start at 1. An update that changes the graph structure
// (per diff.Compute) records a new version; other updates, including
// layout-only graph edits, rewrite the latest version in place.
type Store interface {
	// Create saves a new workflow. Returns ErrWorkflowExists if ID is taken.
	Create(ctx context.Context, req *CreateWorkflowRequest) (*types.Workflow, error)

	// Get retrieves a workflow by ID. Returns ErrWorkflowNotFound if not found.
	Get(ctx context.Context, id string) (*types.Workflow, error)

	// Update modifies an existing workflow. Returns ErrWorkflowNotFound if not found.
	Update(ctx context.Context, id string, req *UpdateWorkflowRequest) (*types.Workflow, error)

	// Delete removes a workflow and its history. Returns ErrWorkflowNotFound if not found.
	Delete(ctx context.Context, id string) error

	// List returns workflows matching the options, most recently updated first.
	List(ctx context.Context, opts *ListOptions) ([]*types.Workflow, error)

	// ListVersions returns the version history, oldest first.
	ListVersions(ctx context.Context, id string) ([]*types.WorkflowVersion, error)

	// GetVersion returns one version. Returns ErrVersionNotFound if missing.
	GetVersion(ctx context.Context, id string, version int) (*types.WorkflowVersion, error)

	// Close releases any resources.
	Close() error
}

// Validate checks if a CreateWorkflowRequest is valid.
func (r *CreateWorkflowRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidWorkflow)
	}
	if r.Graph == nil {
		return fmt.Errorf("%w: graph is required", ErrInvalidWorkflow)
	}
	return nil
}

func newWorkflow(id string, req *CreateWorkflowRequest) *types.Workflow {
	now := time.Now().UTC()
	return &types.Workflow{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		Graph:       cloneGraph(*req.Graph),
		Version:     1,
		Thumbnail:   req.Thumbnail,
		Settings:    req.Settings,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// applyUpdate mutates wf and reports whether the update warrants a new version.
func applyUpdate(wf *types.Workflow, req *UpdateWorkflowRequest) (newVersion bool) {
	if req.Name != nil {
		wf.Name = *req.Name
	}
	if req.Description != nil {
		wf.Description = *req.Description
	}
	if req.Tags != nil {
		wf.Tags = req.Tags
	}
	if req.Thumbnail != nil {
		wf.Thumbnail = *req.Thumbnail
	}
	if req.Settings != nil {
		wf.Settings = req.Settings
	}
	if req.Graph != nil {
		newVersion = diff.Compute(&wf.Graph, req.Graph).HasChanges()
		wf.Graph = cloneGraph(*req.Graph)
	}
	if newVersion {
		wf.Version++
	}
	wf.UpdatedAt = time.Now().UTC()
	return newVersion
}

func snapshot(wf *types.Workflow) *types.WorkflowVersion {
	return &types.WorkflowVersion{
		WorkflowID:  wf.ID,
		Version:     wf.Version,
		Name:        wf.Name,
		Description: wf.Description,
		Graph:       cloneGraph(wf.Graph),
		SavedAt:     wf.UpdatedAt,
	}
}

func cloneWorkflow(wf *types.Workflow) *types.Workflow {
	c := *wf
	c.Graph = cloneGraph(wf.Graph)
	if wf.Tags != nil {
		c.Tags = append([]string(nil), wf.Tags...)
	}
	return &c
}

// cloneGraph copies the node and edge slices. Node payload maps are shared
// and must be treated as read-only.
func cloneGraph(g types.Graph) types.Graph {
	c := types.Graph{}
	if g.Nodes != nil {
		c.Nodes = append([]types.Node(nil), g.Nodes...)
	}
	if g.Edges != nil {
		c.Edges = append([]types.Edge(nil), g.Edges...)
	}
	return c
}

func matches(wf *types.Workflow, opts *ListOptions) bool {
	if opts.CreatedBy != "" && wf.CreatedBy != opts.CreatedBy {
		return false
	}
	if opts.Tag != "" {
		for _, t := range wf.Tags {
			if t == opts.Tag {
				return true
			}
		}
		return false
	}
	return true
}

// paginate orders workflows most recently updated first, then by ID, and
// applies offset and limit.
func paginate(wfs []*types.Workflow, opts *ListOptions) []*types.Workflow {
	sort.Slice(wfs, func(i, j int) bool {
		if !wfs[i].UpdatedAt.Equal(wfs[j].UpdatedAt) {
			return wfs[i].UpdatedAt.After(wfs[j].UpdatedAt)
		}
		return wfs[i].ID < wfs[j].ID
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(wfs) {
			return []*types.Workflow{}
		}
		wfs = wfs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(wfs) {
		wfs = wfs[:opts.Limit]
	}
	return wfs
}
