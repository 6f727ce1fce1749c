package flowstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

func testGraph() *types.Graph {
	return &types.Graph{
		Nodes: []types.Node{
			{ID: "in", Type: "nodetool.input.StringInput"},
			{ID: "out", Type: "nodetool.output.StringOutput", Data: types.NodeData{"name": "result"}},
		},
		Edges: []types.Edge{
			{ID: "e1", Source: "in", SourceHandle: "output", Target: "out", TargetHandle: "value"},
		},
	}
}

func ptr[T any](v T) *T { return &v }

func TestMemoryStore_Create(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	t.Run("creates new workflow", func(t *testing.T) {
		req := &CreateWorkflowRequest{
			Name:        "Test Workflow",
			Description: "A test workflow",
			Graph:       testGraph(),
		}

		wf, err := store.Create(ctx, req)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		if wf.ID == "" {
			t.Error("expected ID to be generated")
		}
		if wf.Name != req.Name {
			t.Errorf("expected Name %q, got %q", req.Name, wf.Name)
		}
		if wf.Version != 1 {
			t.Errorf("expected Version 1, got %d", wf.Version)
		}
		if wf.CreatedAt.IsZero() || wf.UpdatedAt.IsZero() {
			t.Error("timestamps should be set")
		}
	})

	t.Run("creates workflow with custom ID", func(t *testing.T) {
		wf, err := store.Create(ctx, &CreateWorkflowRequest{ID: "custom-id", Name: "Custom", Graph: testGraph()})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if wf.ID != "custom-id" {
			t.Errorf("expected ID %q, got %q", "custom-id", wf.ID)
		}
	})

	t.Run("returns error for duplicate ID", func(t *testing.T) {
		req := &CreateWorkflowRequest{ID: "dup", Name: "Dup", Graph: testGraph()}
		if _, err := store.Create(ctx, req); err != nil {
			t.Fatalf("first create failed: %v", err)
		}
		if _, err := store.Create(ctx, req); !errors.Is(err, ErrWorkflowExists) {
			t.Errorf("expected ErrWorkflowExists, got %v", err)
		}
	})

	t.Run("validates required fields", func(t *testing.T) {
		tests := []struct {
			name string
			req  *CreateWorkflowRequest
		}{
			{"missing name", &CreateWorkflowRequest{Graph: testGraph()}},
			{"missing graph", &CreateWorkflowRequest{Name: "x"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := store.Create(ctx, tt.req); !errors.Is(err, ErrInvalidWorkflow) {
					t.Errorf("expected ErrInvalidWorkflow, got %v", err)
				}
			})
		}
	})
}

func TestMemoryStore_Get(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Create(ctx, &CreateWorkflowRequest{ID: "wf", Name: "WF", Graph: testGraph()})

	t.Run("gets existing workflow", func(t *testing.T) {
		wf, err := store.Get(ctx, "wf")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(wf.Graph.Nodes) != 2 {
			t.Errorf("expected 2 nodes, got %d", len(wf.Graph.Nodes))
		}
	})

	t.Run("returned copy is isolated", func(t *testing.T) {
		wf, _ := store.Get(ctx, "wf")
		wf.Name = "mutated"
		wf.Graph.Nodes[0].ID = "mutated"

		again, _ := store.Get(ctx, "wf")
		if again.Name != "WF" || again.Graph.Nodes[0].ID != "in" {
			t.Error("stored workflow was mutated through returned copy")
		}
	})

	t.Run("returns error for missing workflow", func(t *testing.T) {
		if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrWorkflowNotFound) {
			t.Errorf("expected ErrWorkflowNotFound, got %v", err)
		}
	})
}

func TestMemoryStore_UpdateVersions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Create(ctx, &CreateWorkflowRequest{ID: "wf", Name: "WF", Description: "original", Graph: testGraph()})

	t.Run("metadata update keeps version", func(t *testing.T) {
		wf, err := store.Update(ctx, "wf", &UpdateWorkflowRequest{Name: ptr("Renamed")})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if wf.Version != 1 {
			t.Errorf("expected Version 1, got %d", wf.Version)
		}
		if wf.Description != "original" {
			t.Error("Description should be preserved")
		}

		v1, _ := store.GetVersion(ctx, "wf", 1)
		if v1.Name != "Renamed" {
			t.Errorf("expected latest version to be rewritten, got name %q", v1.Name)
		}
	})

	t.Run("layout-only graph change keeps version", func(t *testing.T) {
		g := testGraph()
		g.Nodes[0].UIProperties = map[string]any{"position": map[string]any{"x": 10.0, "y": 20.0}}

		wf, err := store.Update(ctx, "wf", &UpdateWorkflowRequest{Graph: g})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if wf.Version != 1 {
			t.Errorf("expected Version 1, got %d", wf.Version)
		}
	})

	t.Run("structural graph change adds version", func(t *testing.T) {
		g := testGraph()
		g.Nodes = append(g.Nodes, types.Node{ID: "fmt", Type: "nodetool.text.Format"})

		wf, err := store.Update(ctx, "wf", &UpdateWorkflowRequest{Graph: g})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if wf.Version != 2 {
			t.Errorf("expected Version 2, got %d", wf.Version)
		}

		versions, err := store.ListVersions(ctx, "wf")
		if err != nil {
			t.Fatalf("ListVersions failed: %v", err)
		}
		if len(versions) != 2 {
			t.Fatalf("expected 2 versions, got %d", len(versions))
		}
		if versions[0].Version != 1 || versions[1].Version != 2 {
			t.Errorf("expected versions [1 2], got [%d %d]", versions[0].Version, versions[1].Version)
		}
		if len(versions[0].Graph.Nodes) != 2 || len(versions[1].Graph.Nodes) != 3 {
			t.Error("version snapshots should keep their own graphs")
		}
	})

	t.Run("missing version", func(t *testing.T) {
		if _, err := store.GetVersion(ctx, "wf", 9); !errors.Is(err, ErrVersionNotFound) {
			t.Errorf("expected ErrVersionNotFound, got %v", err)
		}
		if _, err := store.GetVersion(ctx, "missing", 1); !errors.Is(err, ErrWorkflowNotFound) {
			t.Errorf("expected ErrWorkflowNotFound, got %v", err)
		}
	})

	t.Run("returns error for missing workflow", func(t *testing.T) {
		if _, err := store.Update(ctx, "missing", &UpdateWorkflowRequest{}); !errors.Is(err, ErrWorkflowNotFound) {
			t.Errorf("expected ErrWorkflowNotFound, got %v", err)
		}
	})
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Create(ctx, &CreateWorkflowRequest{ID: "wf", Name: "WF", Graph: testGraph()})

	if err := store.Delete(ctx, "wf"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "wf"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("expected ErrWorkflowNotFound, got %v", err)
	}
	if _, err := store.ListVersions(ctx, "wf"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("expected history to be deleted, got %v", err)
	}
	if err := store.Delete(ctx, "wf"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestMemoryStore_List(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, req := range []*CreateWorkflowRequest{
		{ID: "a", Name: "A", Graph: testGraph(), CreatedBy: "alice", Tags: []string{"image"}},
		{ID: "b", Name: "B", Graph: testGraph(), CreatedBy: "bob", Tags: []string{"text"}},
		{ID: "c", Name: "C", Graph: testGraph(), CreatedBy: "alice", Tags: []string{"text", "audio"}},
	} {
		if _, err := store.Create(ctx, req); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	tests := []struct {
		name string
		opts *ListOptions
		want []string
	}{
		{"all, newest first", nil, []string{"c", "b", "a"}},
		{"by creator", &ListOptions{CreatedBy: "alice"}, []string{"c", "a"}},
		{"by tag", &ListOptions{Tag: "text"}, []string{"c", "b"}},
		{"limit", &ListOptions{Limit: 1}, []string{"c"}},
		{"offset", &ListOptions{Offset: 2}, []string{"a"}},
		{"offset past end", &ListOptions{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := store.List(ctx, tt.opts)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(list) != len(tt.want) {
				t.Fatalf("expected %d workflows, got %d", len(tt.want), len(list))
			}
			for i, wf := range list {
				if wf.ID != tt.want[i] {
					t.Errorf("position %d: expected %q, got %q", i, tt.want[i], wf.ID)
				}
			}
		})
	}
}
