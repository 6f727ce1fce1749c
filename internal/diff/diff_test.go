package diff

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

func baseGraph() *types.Graph {
	return &types.Graph{
		Nodes: []types.Node{
			{ID: "in", Type: "nodetool.input.StringInput", Data: types.NodeData{"name": "prompt", "value": "hi"}},
			{ID: "llm", Type: "openai.text.Chat", Data: types.NodeData{"model": "gpt-4o", "temperature": 0.7}},
			{ID: "out", Type: "nodetool.output.StringOutput", Data: types.NodeData{"name": "answer"}},
		},
		Edges: []types.Edge{
			{ID: "e1", Source: "in", SourceHandle: "output", Target: "llm", TargetHandle: "prompt"},
			{ID: "e2", Source: "llm", SourceHandle: "output", Target: "out", TargetHandle: "value"},
		},
	}
}

func statuses(r *Result) map[string]Status {
	out := make(map[string]Status)
	for _, n := range r.Nodes {
		out["node:"+n.ID] = n.Status
	}
	for _, e := range r.Edges {
		out["edge:"+e.ID] = e.Status
	}
	return out
}

func TestCompute_Identical(t *testing.T) {
	r := Compute(baseGraph(), baseGraph())

	if r.HasChanges() {
		t.Errorf("expected no changes, got %+v", r.Summary)
	}
	want := Summary{Unchanged: 5}
	if r.Summary != want {
		t.Errorf("expected summary %+v, got %+v", want, r.Summary)
	}
}

func TestCompute_Classification(t *testing.T) {
	from := baseGraph()
	to := baseGraph()

	// llm: data change; out: removed; fmt: added
	to.Nodes[1].Data["temperature"] = 0.2
	to.Nodes = to.Nodes[:2]
	to.Nodes = append(to.Nodes, types.Node{ID: "fmt", Type: "nodetool.text.Format"})
	// e2 removed, e3 added, e1 rewired
	to.Edges = []types.Edge{
		{ID: "e1", Source: "in", SourceHandle: "output", Target: "llm", TargetHandle: "system"},
		{ID: "e3", Source: "llm", SourceHandle: "output", Target: "fmt", TargetHandle: "text"},
	}

	r := Compute(from, to)

	want := map[string]Status{
		"node:fmt": StatusAdded,
		"node:in":  StatusUnchanged,
		"node:llm": StatusModified,
		"node:out": StatusRemoved,
		"edge:e1":  StatusModified,
		"edge:e2":  StatusRemoved,
		"edge:e3":  StatusAdded,
	}
	if diff := cmp.Diff(want, statuses(r)); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}

	wantSummary := Summary{Added: 2, Removed: 2, Modified: 2, Unchanged: 1}
	if r.Summary != wantSummary {
		t.Errorf("expected summary %+v, got %+v", wantSummary, r.Summary)
	}
}

func TestCompute_PropertyChanges(t *testing.T) {
	from := baseGraph()
	to := baseGraph()
	to.Nodes[1].Data["temperature"] = 0.2
	to.Nodes[1].Data["max_tokens"] = 256.0
	delete(to.Nodes[1].Data, "model")

	r := Compute(from, to)
	modified := r.NodesWithStatus(StatusModified)
	if len(modified) != 1 {
		t.Fatalf("expected 1 modified node, got %d", len(modified))
	}

	want := []PropertyChange{
		{Key: "max_tokens", Old: nil, New: 256.0},
		{Key: "model", Old: "gpt-4o", New: nil},
		{Key: "temperature", Old: 0.7, New: 0.2},
	}
	if diff := cmp.Diff(want, modified[0].Changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if modified[0].TypeChanged {
		t.Error("expected type to be unchanged")
	}
}

func TestCompute_TypeChange(t *testing.T) {
	from := baseGraph()
	to := baseGraph()
	to.Nodes[1].Type = "anthropic.text.Chat"

	r := Compute(from, to)
	modified := r.NodesWithStatus(StatusModified)
	if len(modified) != 1 || !modified[0].TypeChanged {
		t.Fatalf("expected llm to be modified by type, got %+v", modified)
	}
	if len(modified[0].Changes) != 0 {
		t.Errorf("expected no property changes, got %v", modified[0].Changes)
	}
}

func TestCompute_NestedDataDeepEqual(t *testing.T) {
	from := &types.Graph{Nodes: []types.Node{
		{ID: "a", Type: "x", Data: types.NodeData{"cfg": map[string]any{"k": []any{1.0, "two"}}}},
	}}
	to := &types.Graph{Nodes: []types.Node{
		{ID: "a", Type: "x", Data: types.NodeData{"cfg": map[string]any{"k": []any{1.0, "two"}}}},
	}}

	if r := Compute(from, to); r.HasChanges() {
		t.Errorf("expected deep-equal data to be unchanged, got %+v", r.Nodes)
	}

	to.Nodes[0].Data["cfg"].(map[string]any)["k"] = []any{1.0, "three"}
	if r := Compute(from, to); r.Summary.Modified != 1 {
		t.Errorf("expected nested change to be detected, got %+v", r.Summary)
	}
}

func TestCompute_NilAndEmptyData(t *testing.T) {
	from := &types.Graph{Nodes: []types.Node{{ID: "a", Type: "x"}}}
	to := &types.Graph{Nodes: []types.Node{{ID: "a", Type: "x", Data: types.NodeData{}}}}

	if r := Compute(from, to); r.HasChanges() {
		t.Errorf("nil and empty data should compare equal, got %+v", r.Summary)
	}
}

func TestCompute_EdgeAuxiliaryFieldsIgnored(t *testing.T) {
	from := baseGraph()
	to := baseGraph()
	to.Edges[0].UIProperties = map[string]any{"className": "highlight"}

	r := Compute(from, to)
	if r.HasChanges() {
		t.Errorf("expected ui-only edge change to be ignored, got %+v", r.Edges)
	}
}

func TestCompute_EdgeKeyFallback(t *testing.T) {
	from := &types.Graph{Edges: []types.Edge{{Source: "a", SourceHandle: "out", Target: "b", TargetHandle: "in"}}}
	to := &types.Graph{Edges: []types.Edge{{Source: "a", SourceHandle: "out", Target: "c", TargetHandle: "in"}}}

	r := Compute(from, to)

	want := map[string]Status{
		"edge:a:out->b:in": StatusRemoved,
		"edge:a:out->c:in": StatusAdded,
	}
	if diff := cmp.Diff(want, statuses(r)); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestCompute_NilGraphs(t *testing.T) {
	r := Compute(nil, baseGraph())
	if r.Summary.Added != 5 || r.Summary.Total() != 5 {
		t.Errorf("expected everything added, got %+v", r.Summary)
	}

	r = Compute(baseGraph(), nil)
	if r.Summary.Removed != 5 || r.Summary.Total() != 5 {
		t.Errorf("expected everything removed, got %+v", r.Summary)
	}

	r = Compute(nil, nil)
	if r.Summary.Total() != 0 || len(r.Nodes) != 0 || len(r.Edges) != 0 {
		t.Errorf("expected empty diff, got %+v", r)
	}
}

func TestCompute_Partition(t *testing.T) {
	from := baseGraph()
	to := baseGraph()
	to.Nodes = append(to.Nodes, types.Node{ID: "extra"}, types.Node{ID: "extra", Type: "dup"})
	to.Nodes[0].Data["value"] = "changed"

	r := Compute(from, to)

	seen := make(map[string]int)
	for _, n := range r.Nodes {
		seen[n.ID]++
	}
	for id, c := range seen {
		if c != 1 {
			t.Errorf("node %s classified %d times", id, c)
		}
	}
	if len(seen) != 4 {
		t.Errorf("expected 4 distinct node ids, got %d", len(seen))
	}
	if got := r.Summary.Total(); got != len(r.Nodes)+len(r.Edges) {
		t.Errorf("summary total %d does not match classified ids %d", got, len(r.Nodes)+len(r.Edges))
	}

	for i := 1; i < len(r.Nodes); i++ {
		if r.Nodes[i-1].ID >= r.Nodes[i].ID {
			t.Errorf("nodes not sorted by id: %s before %s", r.Nodes[i-1].ID, r.Nodes[i].ID)
		}
	}
}
